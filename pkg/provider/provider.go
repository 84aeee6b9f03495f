// Package provider contains the external search backends the gather stage
// fans out to. Every backend implements the same capability and carries an
// explicit timeout; the fan-out executor applies it as a context deadline on
// each call.
package provider

import (
	"context"
	"strings"
	"time"

	"deep-research-be/pkg/store"
)

// DefaultTimeout bounds a single provider call when none is configured.
// Providers vary widely in latency, so the bound is per call, not per step.
const DefaultTimeout = 45 * time.Second

// Config is the uniform per-provider tuning every backend accepts.
type Config struct {
	Timeout    time.Duration
	MaxResults int
}

func (c Config) timeout() time.Duration {
	if c.Timeout <= 0 {
		return DefaultTimeout
	}
	return c.Timeout
}

// SearchProvider is the capability a search backend exposes. Implementations
// must honor ctx cancellation; they may return an error freely, as the caller
// absorbs failures and continues with the remaining providers.
type SearchProvider interface {
	Name() string
	Timeout() time.Duration
	Search(ctx context.Context, keywords []string) ([]store.ResultItem, error)
}

// joinKeywords builds the query string providers send upstream.
func joinKeywords(keywords []string) string {
	return strings.Join(keywords, " ")
}
