package provider

import (
	"context"
	"time"

	"deep-research-be/pkg/store"
)

// StubProvider serves canned results after an optional delay. It backs the
// simulation binary and tests, where real search APIs are unavailable.
type StubProvider struct {
	name    string
	results []store.ResultItem
	delay   time.Duration
	err     error
	timeout time.Duration
}

func NewStubProvider(name string, results []store.ResultItem) *StubProvider {
	return &StubProvider{
		name:    name,
		results: results,
		timeout: DefaultTimeout,
	}
}

// WithDelay makes every search wait before responding.
func (p *StubProvider) WithDelay(d time.Duration) *StubProvider {
	p.delay = d
	return p
}

// WithError makes every search fail.
func (p *StubProvider) WithError(err error) *StubProvider {
	p.err = err
	return p
}

// WithTimeout overrides the per-search deadline.
func (p *StubProvider) WithTimeout(d time.Duration) *StubProvider {
	p.timeout = d
	return p
}

func (p *StubProvider) Name() string {
	return p.name
}

func (p *StubProvider) Timeout() time.Duration {
	return p.timeout
}

func (p *StubProvider) Search(ctx context.Context, keywords []string) ([]store.ResultItem, error) {
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if p.err != nil {
		return nil, p.err
	}

	out := make([]store.ResultItem, len(p.results))
	copy(out, p.results)
	for i := range out {
		out[i].Source = p.name
	}
	return out, nil
}
