package engine

import "github.com/JakeFAU/sitedigest/internal/scraper"

// NextNode is the pure routing table evaluated after every node
// execution. A nil failure advances the sequence; a retryable failure
// with retry budget left routes to ErrorRecovery; anything else
// terminates at Complete (the caller marks the state failed).
func NextNode(current scraper.Node, failure *scraper.StepFailure, retryCount, maxRetries int) scraper.Node {
	if failure == nil {
		switch current {
		case scraper.NodeInitialize:
			return scraper.NodeDiscovery
		case scraper.NodeDiscovery:
			return scraper.NodeRetrieval
		case scraper.NodeRetrieval:
			return scraper.NodeTransformation
		case scraper.NodeTransformation:
			return scraper.NodePersistence
		case scraper.NodePersistence:
			return scraper.NodeComplete
		default:
			return scraper.NodeComplete
		}
	}
	if failure.Retryable && retryCount < maxRetries {
		return scraper.NodeErrorRecovery
	}
	return scraper.NodeComplete
}
