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

const bingEndpoint = "https://api.bing.microsoft.com/v7.0/search"

// BingProvider queries the Bing Web Search API.
type BingProvider struct {
	subscriptionKey string
	cfg             Config
	client          *http.Client
}

var _ SearchProvider = &BingProvider{}

func NewBingProvider(subscriptionKey string, cfg Config) *BingProvider {
	return &BingProvider{
		subscriptionKey: subscriptionKey,
		cfg:             cfg,
		client:          &http.Client{},
	}
}

func (b *BingProvider) Name() string { return store.SourceBing }

func (b *BingProvider) Timeout() time.Duration { return b.cfg.timeout() }

type bingResponse struct {
	WebPages struct {
		Value []struct {
			Name    string `json:"name"`
			URL     string `json:"url"`
			Snippet string `json:"snippet"`
		} `json:"value"`
	} `json:"webPages"`
}

func (b *BingProvider) Search(ctx context.Context, keywords []string) ([]store.ResultItem, error) {
	max := b.cfg.MaxResults
	if max <= 0 {
		max = 10
	}

	params := url.Values{}
	params.Set("q", joinKeywords(keywords))
	params.Set("count", fmt.Sprintf("%d", max))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, bingEndpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("bing search: create request: %w", err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", b.subscriptionKey)

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("bing search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bing search: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("bing search: read response: %w", err)
	}

	var parsed bingResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("bing search: unmarshal: %w", err)
	}

	results := make([]store.ResultItem, 0, len(parsed.WebPages.Value))
	for _, page := range parsed.WebPages.Value {
		results = append(results, store.ResultItem{
			Source:  store.SourceBing,
			Title:   page.Name,
			URL:     page.URL,
			Snippet: page.Snippet,
		})
	}
	return results, nil
}
