// Package openai adapts the OpenAI Chat Completions API to the provider
// interface. OpenAI caches long prompt prefixes automatically, so the
// static segment is simply placed first in the system message with the
// dynamic segment appended after it.
package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/juniperhq/agentloop/core"
	"github.com/juniperhq/agentloop/provider"
)

// Options configures the OpenAI provider adapter.
type Options struct {
	APIKey string
	// MaxCompletionTokens is the default completion cap when the request
	// leaves it unset.
	MaxCompletionTokens int64
}

// Provider wraps the OpenAI Chat Completions API.
type Provider struct {
	client *openai.Client
	opts   Options
}

// NewProvider creates an OpenAI provider using the official client.
func NewProvider(optFns ...func(o *Options)) *Provider {
	opts := Options{MaxCompletionTokens: 4096}
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := openai.NewClient(clientOpts...)

	return &Provider{client: &client, opts: opts}
}

// NewProviderFromClient creates an OpenAI provider from an existing client.
func NewProviderFromClient(client *openai.Client, optFns ...func(o *Options)) *Provider {
	opts := Options{MaxCompletionTokens: 4096}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Provider{client: client, opts: opts}
}

// Name implements provider.Provider.
func (p *Provider) Name() string { return provider.NameOpenAI }

// Complete implements provider.Provider.
func (p *Provider) Complete(ctx context.Context, req provider.Request) (*provider.Reply, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(req.Model),
		Messages: buildMessages(req),
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	} else if p.opts.MaxCompletionTokens > 0 {
		params.MaxCompletionTokens = openai.Int(p.opts.MaxCompletionTokens)
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai api error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, provider.NewError(provider.ErrorTypeEmptyResponse, p.Name(), req.Model, "no choices in completion")
	}

	return &provider.Reply{
		Text:     resp.Choices[0].Message.Content,
		Model:    resp.Model,
		Provider: p.Name(),
		Usage: provider.Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
			CacheRead:        int(resp.Usage.PromptTokensDetails.CachedTokens),
		},
	}, nil
}

// buildMessages renders the prompt segments as the leading system message,
// static segment first so the provider's automatic prefix caching can hit,
// followed by the conversation history.
func buildMessages(req provider.Request) []openai.ChatCompletionMessageParamUnion {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)

	system := req.Segments.Static
	if req.Segments.Dynamic != "" {
		if system != "" {
			system += "\n\n"
		}
		system += req.Segments.Dynamic
	}
	if system != "" {
		messages = append(messages, openai.SystemMessage(system))
	}

	for _, msg := range req.Messages {
		switch msg.Role {
		case core.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(msg.Content))
		default:
			messages = append(messages, openai.UserMessage(msg.Content))
		}
	}
	return messages
}
