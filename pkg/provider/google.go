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

const googleEndpoint = "https://www.googleapis.com/customsearch/v1"

// GoogleProvider queries the Google Custom Search JSON API.
// The API caps a single request at 10 results.
type GoogleProvider struct {
	apiKey   string
	engineID string
	cfg      Config
	client   *http.Client
}

var _ SearchProvider = &GoogleProvider{}

func NewGoogleProvider(apiKey, engineID string, cfg Config) *GoogleProvider {
	return &GoogleProvider{
		apiKey:   apiKey,
		engineID: engineID,
		cfg:      cfg,
		client:   &http.Client{},
	}
}

func (g *GoogleProvider) Name() string { return store.SourceGoogle }

func (g *GoogleProvider) Timeout() time.Duration { return g.cfg.timeout() }

type googleResponse struct {
	Items []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"items"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (g *GoogleProvider) Search(ctx context.Context, keywords []string) ([]store.ResultItem, error) {
	num := g.cfg.MaxResults
	if num <= 0 || num > 10 {
		num = 10
	}

	params := url.Values{}
	params.Set("key", g.apiKey)
	params.Set("cx", g.engineID)
	params.Set("q", joinKeywords(keywords))
	params.Set("num", fmt.Sprintf("%d", num))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, googleEndpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("google search: create request: %w", err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("google search: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("google search: read response: %w", err)
	}

	var parsed googleResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("google search: unmarshal (status %d): %w", resp.StatusCode, err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("google search: api error %d: %s", parsed.Error.Code, parsed.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("google search: status %d", resp.StatusCode)
	}

	results := make([]store.ResultItem, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		results = append(results, store.ResultItem{
			Source:  store.SourceGoogle,
			Title:   item.Title,
			URL:     item.Link,
			Snippet: item.Snippet,
		})
	}
	return results, nil
}
