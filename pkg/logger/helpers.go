package logger

// LogDownload records the outcome of one media download through the
// global logger. A nil err with success=false means the item was
// skipped rather than failed.
func LogDownload(url, filename, mediaType string, success bool, err error) {
	l := GetLogger().WithFields(map[string]interface{}{
		"url":        url,
		"filename":   filename,
		"media_type": mediaType,
	})

	switch {
	case err != nil:
		l.WithError(err).Error("download failed")
	case success:
		l.Info("download completed")
	default:
		l.Warn("download skipped")
	}
}

// LogCrawlProgress records one visited page against the page budget.
func LogCrawlProgress(pageURL string, depth, visited, maxPages int) {
	GetLogger().InfoWithFields("crawl progress", map[string]interface{}{
		"page":      pageURL,
		"depth":     depth,
		"visited":   visited,
		"max_pages": maxPages,
	})
}
