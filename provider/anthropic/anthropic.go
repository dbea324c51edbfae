// Package anthropic adapts the Anthropic Messages API to the provider
// interface. The static prompt segment is sent as a system block carrying
// an ephemeral cache_control marker so repeated turns of a run hit the
// provider-side prompt cache.
package anthropic

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/juniperhq/agentloop/core"
	"github.com/juniperhq/agentloop/provider"
)

// Options configures the Anthropic provider adapter.
type Options struct {
	APIKey string
	// MaxTokens is the default completion cap when the request leaves it
	// unset.
	MaxTokens int64
	// OneHourCacheTTL selects the 1-hour prompt-cache TTL (2x write cost)
	// over the 5-minute default (1.25x write cost). Worth it for agents
	// whose runs routinely outlive five minutes.
	OneHourCacheTTL bool
}

// Provider wraps the Anthropic Messages API.
type Provider struct {
	client *anthropic.Client
	opts   Options
}

// NewProvider creates an Anthropic provider using the official client.
func NewProvider(optFns ...func(o *Options)) *Provider {
	opts := Options{MaxTokens: 4096}
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := anthropic.NewClient(clientOpts...)

	return &Provider{client: &client, opts: opts}
}

// NewProviderFromClient creates an Anthropic provider from an existing client.
func NewProviderFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Provider {
	opts := Options{MaxTokens: 4096}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Provider{client: client, opts: opts}
}

// Name implements provider.Provider.
func (p *Provider) Name() string { return provider.NameAnthropic }

// Complete implements provider.Provider.
func (p *Provider) Complete(ctx context.Context, req provider.Request) (*provider.Reply, error) {
	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = p.opts.MaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: maxTokens,
		Messages:  buildMessages(req.Messages),
		System:    p.buildSystem(req),
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic api error: %w", err)
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.AsText().Text
		}
	}

	return &provider.Reply{
		Text:     text,
		Model:    string(resp.Model),
		Provider: p.Name(),
		Usage: provider.Usage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
			TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
			CacheRead:        int(resp.Usage.CacheReadInputTokens),
			CacheWrite:       int(resp.Usage.CacheCreationInputTokens),
		},
	}, nil
}

// buildSystem renders the prompt segments as system blocks. The static
// segment gets the cache_control marker; the dynamic segment follows
// unmarked so its churn never invalidates the cached prefix.
func (p *Provider) buildSystem(req provider.Request) []anthropic.TextBlockParam {
	var blocks []anthropic.TextBlockParam
	if req.Segments.Static != "" {
		cc := anthropic.NewCacheControlEphemeralParam()
		if p.opts.OneHourCacheTTL {
			cc.TTL = anthropic.CacheControlEphemeralTTLTTL1h
		} else {
			cc.TTL = anthropic.CacheControlEphemeralTTLTTL5m
		}
		blocks = append(blocks, anthropic.TextBlockParam{
			Text:         req.Segments.Static,
			CacheControl: cc,
		})
	}
	if req.Segments.Dynamic != "" {
		blocks = append(blocks, anthropic.TextBlockParam{Text: req.Segments.Dynamic})
	}
	return blocks
}

func buildMessages(messages []core.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		block := anthropic.NewTextBlock(msg.Content)
		switch msg.Role {
		case core.RoleAssistant:
			out = append(out, anthropic.NewAssistantMessage(block))
		default:
			out = append(out, anthropic.NewUserMessage(block))
		}
	}
	return out
}
