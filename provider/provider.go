// Package provider abstracts LLM backends behind a single gateway. Each
// backend adapter normalizes its vendor SDK into the Request/Reply types
// here; the Gateway layers model routing, retry with backoff, and
// cross-provider fallback on top, so the engine never talks to a vendor
// SDK directly.
package provider

import (
	"context"

	"github.com/juniperhq/agentloop/core"
	"github.com/juniperhq/agentloop/prompt"
)

// Request is a normalized completion request. The prompt segments carry the
// system prompt split by cache eligibility; adapters for caching-capable
// backends mark the static segment accordingly.
type Request struct {
	Model       string
	Segments    prompt.Segments
	Messages    []core.Message
	Temperature float64
	MaxTokens   int
}

// Usage is normalized token accounting. CacheRead and CacheWrite are zero
// for backends that do not report prompt-cache activity.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	CacheRead        int
	CacheWrite       int
}

// Reply is a normalized completion result. Text carries the raw model
// output; the action parser decides what it means.
type Reply struct {
	Text     string
	Model    string
	Provider string
	Usage    Usage
}

// Provider is one LLM backend. Complete must honor ctx cancellation and
// return a classified *Error on failure so the gateway can decide whether
// to retry.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request) (*Reply, error)
}
