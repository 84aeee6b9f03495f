package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"
)

const arxivSampleFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <entry>
    <title>Quantum Error Correction
      with Surface Codes</title>
    <summary>  We review surface code thresholds.  </summary>
    <published>2024-03-12T09:30:00Z</published>
    <link href="http://arxiv.org/abs/2403.0001v1" rel="alternate" type="text/html"/>
    <link href="http://arxiv.org/pdf/2403.0001v1" rel="related" type="application/pdf"/>
    <author><name>A. Author</name></author>
    <author><name>B. Author</name></author>
  </entry>
  <entry>
    <title>Qubit Coherence Times</title>
    <summary>Coherence measurements across platforms.</summary>
    <published>not-a-timestamp</published>
    <link href="http://arxiv.org/pdf/2403.0002v1" rel="related" type="application/pdf"/>
  </entry>
</feed>`

func arxivTestProvider(t *testing.T, handler http.HandlerFunc) *ArxivProvider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	p := NewArxivProvider(Config{Timeout: 5 * time.Second, MaxResults: 5})
	p.baseURL = server.URL
	// skip the politeness delay in tests
	p.lastRequest = time.Now().Add(-2 * arxivMinInterval)
	return p
}

func TestArxivParsesAtomFeed(t *testing.T) {
	var gotQuery url.Values
	p := arxivTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Write([]byte(arxivSampleFeed))
	})

	results, err := p.Search(context.Background(), []string{"quantum", "error correction"})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	if gotQuery.Get("search_query") != "all:quantum error correction" {
		t.Errorf("search_query = %q", gotQuery.Get("search_query"))
	}
	if gotQuery.Get("max_results") != "5" {
		t.Errorf("max_results = %q", gotQuery.Get("max_results"))
	}

	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}

	first := results[0]
	if first.Title != "Quantum Error Correction\n      with Surface Codes" {
		t.Errorf("title not trimmed: %q", first.Title)
	}
	if first.URL != "http://arxiv.org/abs/2403.0001v1" {
		t.Errorf("url = %q, want the alternate link", first.URL)
	}
	if first.Snippet != "We review surface code thresholds." {
		t.Errorf("snippet = %q", first.Snippet)
	}
	if len(first.Authors) != 2 || first.Authors[0] != "A. Author" {
		t.Errorf("authors = %v", first.Authors)
	}
	if first.PublishedAt == nil || first.PublishedAt.Year() != 2024 {
		t.Errorf("published = %v", first.PublishedAt)
	}

	second := results[1]
	if second.URL != "http://arxiv.org/pdf/2403.0002v1" {
		t.Errorf("url = %q, want the only link as fallback", second.URL)
	}
	if second.PublishedAt != nil {
		t.Error("unparseable timestamp should leave PublishedAt nil")
	}
}

func TestArxivRejectsNonOKStatus(t *testing.T) {
	p := arxivTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	if _, err := p.Search(context.Background(), []string{"quantum"}); err == nil {
		t.Fatal("expected error on 503 response")
	}
}

func TestArxivRateLimitHonorsCancellation(t *testing.T) {
	p := arxivTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(arxivSampleFeed))
	})
	p.lastRequest = time.Now()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := p.Search(ctx, []string{"quantum"}); err == nil {
		t.Fatal("expected context error while waiting out the rate limit")
	}
}
