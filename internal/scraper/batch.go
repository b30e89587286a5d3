package scraper

// PlanBatches truncates urls to the first urlLimit entries (discovery
// order wins when the cap binds) and partitions the remainder into
// contiguous chunks of at most batchSize. Deterministic; an empty input
// yields an empty plan. batchSize <= 0 yields a single batch.
func PlanBatches(urls []string, urlLimit, batchSize int) [][]string {
	if len(urls) == 0 {
		return nil
	}
	if urlLimit > 0 && len(urls) > urlLimit {
		urls = urls[:urlLimit]
	}
	if batchSize <= 0 || batchSize >= len(urls) {
		batch := make([]string, len(urls))
		copy(batch, urls)
		return [][]string{batch}
	}
	batches := make([][]string, 0, (len(urls)+batchSize-1)/batchSize)
	for start := 0; start < len(urls); start += batchSize {
		end := start + batchSize
		if end > len(urls) {
			end = len(urls)
		}
		batch := make([]string, end-start)
		copy(batch, urls[start:end])
		batches = append(batches, batch)
	}
	return batches
}
