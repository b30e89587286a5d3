// Package anthropicsummarizer implements page summarization against the
// Anthropic Messages API.
package anthropicsummarizer

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitedigest/internal/scraper"
)

const (
	defaultModel     = "claude-sonnet-4-20250514"
	defaultMaxTokens = 1024

	// Pages are truncated before prompting; summaries only need the
	// opening of the document.
	maxContentChars = 2000
)

const systemPrompt = "You summarize web pages. Respond with a single JSON object " +
	`of the form {"title": "...", "description": "..."} where title is the page ` +
	"title and description is a one or two sentence summary. Respond with JSON only."

var codeFence = regexp.MustCompile("(?s)^```(?:json)?\\s*(.*?)\\s*```$")

// Config holds Anthropic API settings.
type Config struct {
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// Summarizer implements scraper.Summarizer using Claude.
type Summarizer struct {
	client      anthropic.Client
	model       string
	maxTokens   int
	temperature float64
	timeout     time.Duration
	logger      *zap.Logger
}

// New builds a Summarizer.
func New(cfg Config, logger *zap.Logger) (*Summarizer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("summarizer.api_key is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Summarizer{
		client:      anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:       model,
		maxTokens:   maxTokens,
		temperature: cfg.Temperature,
		timeout:     timeout,
		logger:      logger,
	}, nil
}

// Summarize sends the page text to Claude and decodes the structured
// summary from the reply.
func (s *Summarizer) Summarize(ctx context.Context, text string) (scraper.PageSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	prompt := fmt.Sprintf("Summarize this page content:\n\n%s", truncate(text, maxContentChars))

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(s.model),
		MaxTokens: int64(s.maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
	}
	if s.temperature > 0 {
		params.Temperature = anthropic.Float(s.temperature)
	}

	resp, err := s.client.Messages.New(ctx, params)
	if err != nil {
		// API failures are worth retrying; malformed replies are not.
		return scraper.PageSummary{}, scraper.MarkTransient(fmt.Errorf("anthropic request: %w", err))
	}

	var reply strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			reply.WriteString(block.Text)
		}
	}
	if reply.Len() == 0 {
		return scraper.PageSummary{}, scraper.MarkTransient(fmt.Errorf("anthropic request: empty reply"))
	}

	summary, err := parseSummary(reply.String())
	if err != nil {
		s.logger.Warn("summary reply unparsable", zap.Error(err))
		return scraper.PageSummary{}, err
	}
	return summary, nil
}

// parseSummary decodes the model reply, tolerating a markdown code
// fence around the JSON object.
func parseSummary(raw string) (scraper.PageSummary, error) {
	trimmed := strings.TrimSpace(raw)
	if m := codeFence.FindStringSubmatch(trimmed); m != nil {
		trimmed = m[1]
	}
	var summary scraper.PageSummary
	if err := json.Unmarshal([]byte(trimmed), &summary); err != nil {
		return scraper.PageSummary{}, fmt.Errorf("%w: %v", scraper.ErrUnparsable, err)
	}
	if summary.Title == "" && summary.Description == "" {
		return scraper.PageSummary{}, fmt.Errorf("%w: empty summary object", scraper.ErrUnparsable)
	}
	return summary, nil
}

// truncate cuts at the byte limit, backing off to a rune boundary so
// the prompt stays valid UTF-8.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
