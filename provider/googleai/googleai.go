// Package googleai adapts the Gemini API (google.golang.org/genai) to the
// provider interface. Gemini applies implicit context caching to repeated
// prompt prefixes, so the static segment leads the system instruction with
// the dynamic segment appended after it.
package googleai

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/juniperhq/agentloop/core"
	"github.com/juniperhq/agentloop/provider"
)

// Options configures the Gemini provider adapter.
type Options struct {
	APIKey string
	// MaxOutputTokens is the default completion cap when the request leaves
	// it unset.
	MaxOutputTokens int32
}

// Provider wraps the Gemini API.
type Provider struct {
	client *genai.Client
	opts   Options
}

// NewProvider creates a Gemini provider using the official client.
func NewProvider(ctx context.Context, optFns ...func(o *Options)) (*Provider, error) {
	opts := Options{MaxOutputTokens: 4096}
	for _, fn := range optFns {
		fn(&opts)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Provider{client: client, opts: opts}, nil
}

// NewProviderFromClient creates a Gemini provider from an existing client.
func NewProviderFromClient(client *genai.Client, optFns ...func(o *Options)) *Provider {
	opts := Options{MaxOutputTokens: 4096}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Provider{client: client, opts: opts}
}

// Name implements provider.Provider.
func (p *Provider) Name() string { return provider.NameGoogleAI }

// Complete implements provider.Provider.
func (p *Provider) Complete(ctx context.Context, req provider.Request) (*provider.Reply, error) {
	config := &genai.GenerateContentConfig{}
	if req.Temperature > 0 {
		temp := float32(req.Temperature)
		config.Temperature = &temp
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	} else {
		config.MaxOutputTokens = p.opts.MaxOutputTokens
	}

	system := req.Segments.Static
	if req.Segments.Dynamic != "" {
		if system != "" {
			system += "\n\n"
		}
		system += req.Segments.Dynamic
	}
	if system != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: system}},
		}
	}

	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, msg := range req.Messages {
		var role genai.Role = genai.RoleUser
		if msg.Role == core.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(msg.Content, role))
	}

	resp, err := p.client.Models.GenerateContent(ctx, req.Model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("gemini api error: %w", err)
	}

	usage := provider.Usage{}
	if resp.UsageMetadata != nil {
		usage.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
		usage.CompletionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
		usage.TotalTokens = int(resp.UsageMetadata.TotalTokenCount)
		usage.CacheRead = int(resp.UsageMetadata.CachedContentTokenCount)
	}

	return &provider.Reply{
		Text:     resp.Text(),
		Model:    req.Model,
		Provider: p.Name(),
		Usage:    usage,
	}, nil
}
