package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"deep-research-be/pkg/store"
)

const duckduckgoEndpoint = "https://api.duckduckgo.com/"

// DuckDuckGoProvider queries the DuckDuckGo instant-answer API. No key
// required; answers are abstracts and related topics rather than full web
// results.
type DuckDuckGoProvider struct {
	cfg    Config
	client *http.Client
}

var _ SearchProvider = &DuckDuckGoProvider{}

func NewDuckDuckGoProvider(cfg Config) *DuckDuckGoProvider {
	return &DuckDuckGoProvider{
		cfg:    cfg,
		client: &http.Client{},
	}
}

func (d *DuckDuckGoProvider) Name() string { return store.SourceDuckDuckGo }

func (d *DuckDuckGoProvider) Timeout() time.Duration { return d.cfg.timeout() }

type ddgTopic struct {
	Text     string     `json:"Text"`
	FirstURL string     `json:"FirstURL"`
	Topics   []ddgTopic `json:"Topics"`
}

type ddgResponse struct {
	Heading       string     `json:"Heading"`
	AbstractText  string     `json:"AbstractText"`
	AbstractURL   string     `json:"AbstractURL"`
	RelatedTopics []ddgTopic `json:"RelatedTopics"`
}

func (d *DuckDuckGoProvider) Search(ctx context.Context, keywords []string) ([]store.ResultItem, error) {
	params := url.Values{}
	params.Set("q", joinKeywords(keywords))
	params.Set("format", "json")
	params.Set("no_html", "1")
	params.Set("skip_disambig", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, duckduckgoEndpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("duckduckgo search: create request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("duckduckgo search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("duckduckgo search: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("duckduckgo search: read response: %w", err)
	}

	var parsed ddgResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("duckduckgo search: unmarshal: %w", err)
	}

	max := d.cfg.MaxResults
	if max <= 0 {
		max = 10
	}

	var results []store.ResultItem
	if parsed.AbstractText != "" && parsed.AbstractURL != "" {
		results = append(results, store.ResultItem{
			Source:  store.SourceDuckDuckGo,
			Title:   parsed.Heading,
			URL:     parsed.AbstractURL,
			Snippet: parsed.AbstractText,
		})
	}
	for _, topic := range flattenTopics(parsed.RelatedTopics) {
		if len(results) >= max {
			break
		}
		if topic.Text == "" || topic.FirstURL == "" {
			continue
		}
		results = append(results, store.ResultItem{
			Source:  store.SourceDuckDuckGo,
			Title:   topic.Text,
			URL:     topic.FirstURL,
			Snippet: topic.Text,
		})
	}
	return results, nil
}

// flattenTopics unrolls nested topic groups into a single list.
func flattenTopics(topics []ddgTopic) []ddgTopic {
	var flat []ddgTopic
	for _, t := range topics {
		if len(t.Topics) > 0 {
			flat = append(flat, flattenTopics(t.Topics)...)
			continue
		}
		flat = append(flat, t)
	}
	return flat
}
