package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// mockFetcher serves canned HTML documents and JSON payloads keyed by
// URL. JSON lookups fall back to prefix matching so query strings with
// cursors still resolve.
type mockFetcher struct {
	documents map[string]string
	jsonByURL map[string]string
	requests  []string
}

func (m *mockFetcher) GetDocument(ctx context.Context, url string) (*goquery.Document, error) {
	m.requests = append(m.requests, url)
	html, ok := m.documents[url]
	if !ok {
		return nil, fmt.Errorf("no document for %s", url)
	}
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

func (m *mockFetcher) GetJSON(ctx context.Context, url string, target interface{}) error {
	m.requests = append(m.requests, url)
	if body, ok := m.jsonByURL[url]; ok {
		return json.Unmarshal([]byte(body), target)
	}
	for key, body := range m.jsonByURL {
		if strings.HasPrefix(url, key) {
			return json.Unmarshal([]byte(body), target)
		}
	}
	return fmt.Errorf("no JSON fixture for %s", url)
}
