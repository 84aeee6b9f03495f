package stage

import (
	"context"
	"strings"
	"testing"

	"deep-research-be/pkg/events"
	"deep-research-be/pkg/llm"
)

type nopLogger struct{}

func (nopLogger) Debug(string, string, map[string]interface{}) {}
func (nopLogger) Info(string, string, map[string]interface{})  {}
func (nopLogger) Warn(string, string, map[string]interface{})  {}
func (nopLogger) Error(string, string, map[string]interface{}) {}
func (nopLogger) Sync() error                                  { return nil }

// fakeLLM replies based on substring rules, in rule order. An unmatched
// prompt gets the fallback reply, or the configured error.
type fakeLLM struct {
	rules []llmRule
	err   error
}

type llmRule struct {
	contains string
	reply    string
}

func (f *fakeLLM) Chat(ctx context.Context, history []llm.Message, options ...llm.Option) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	last := history[len(history)-1].Content
	for _, r := range f.rules {
		if strings.Contains(last, r.contains) {
			return r.reply, nil
		}
	}
	return "", nil
}

func (f *fakeLLM) Generate(ctx context.Context, prompt string, options ...llm.Option) (string, error) {
	return f.Chat(ctx, []llm.Message{{Role: "user", Content: prompt}}, options...)
}

func silentBus(t *testing.T) *events.Bus {
	t.Helper()
	pubSub := events.NewPubSub(8)
	t.Cleanup(func() { pubSub.Close() })
	return events.NewBus(pubSub, "test")
}
