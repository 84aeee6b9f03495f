package provider

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"deep-research-be/pkg/store"
)

const arxivEndpoint = "https://export.arxiv.org/api/query"

// arXiv asks clients to stay under one request per second.
const arxivMinInterval = time.Second

// ArxivProvider queries the public arXiv Atom API. No key required.
type ArxivProvider struct {
	cfg     Config
	baseURL string
	client  *http.Client

	mu          sync.Mutex
	lastRequest time.Time
}

var _ SearchProvider = &ArxivProvider{}

func NewArxivProvider(cfg Config) *ArxivProvider {
	return &ArxivProvider{
		cfg:     cfg,
		baseURL: arxivEndpoint,
		client:  &http.Client{},
	}
}

func (a *ArxivProvider) Name() string { return store.SourceArxiv }

func (a *ArxivProvider) Timeout() time.Duration { return a.cfg.timeout() }

// rateLimit sleeps until a full interval has passed since the last request.
func (a *ArxivProvider) rateLimit(ctx context.Context) error {
	a.mu.Lock()
	wait := arxivMinInterval - time.Since(a.lastRequest)
	a.lastRequest = time.Now().Add(wait)
	a.mu.Unlock()

	if wait <= 0 {
		return nil
	}
	select {
	case <-time.After(wait):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type atomFeed struct {
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	Title     string       `xml:"title"`
	Summary   string       `xml:"summary"`
	Published string       `xml:"published"`
	Links     []atomLink   `xml:"link"`
	Authors   []atomAuthor `xml:"author"`
}

type atomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
}

type atomAuthor struct {
	Name string `xml:"name"`
}

func (e atomEntry) url() string {
	for _, l := range e.Links {
		if l.Rel == "alternate" || l.Rel == "" {
			return l.Href
		}
	}
	if len(e.Links) > 0 {
		return e.Links[0].Href
	}
	return ""
}

func (a *ArxivProvider) Search(ctx context.Context, keywords []string) ([]store.ResultItem, error) {
	if err := a.rateLimit(ctx); err != nil {
		return nil, fmt.Errorf("arxiv search: %w", err)
	}

	max := a.cfg.MaxResults
	if max <= 0 {
		max = 5
	}

	params := url.Values{}
	params.Set("search_query", "all:"+joinKeywords(keywords))
	params.Set("max_results", fmt.Sprintf("%d", max))
	params.Set("sortBy", "relevance")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("arxiv search: create request: %w", err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("arxiv search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("arxiv search: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("arxiv search: read response: %w", err)
	}

	var feed atomFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("arxiv search: parse feed: %w", err)
	}

	results := make([]store.ResultItem, 0, len(feed.Entries))
	for _, entry := range feed.Entries {
		item := store.ResultItem{
			Source:  store.SourceArxiv,
			Title:   strings.TrimSpace(entry.Title),
			URL:     entry.url(),
			Snippet: strings.TrimSpace(entry.Summary),
		}
		for _, author := range entry.Authors {
			item.Authors = append(item.Authors, author.Name)
		}
		if ts, err := time.Parse(time.RFC3339, entry.Published); err == nil {
			item.PublishedAt = &ts
		}
		results = append(results, item)
	}
	return results, nil
}
