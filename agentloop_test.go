package agentloop

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/juniperhq/agentloop/action"
	"github.com/juniperhq/agentloop/cache"
	"github.com/juniperhq/agentloop/core"
	"github.com/juniperhq/agentloop/engine"
	"github.com/juniperhq/agentloop/provider"
	"github.com/juniperhq/agentloop/telemetry"
)

type cannedProvider struct {
	name  string
	text  string
	calls int
}

func (c *cannedProvider) Name() string { return c.name }

func (c *cannedProvider) Complete(context.Context, provider.Request) (*provider.Reply, error) {
	c.calls++
	return &provider.Reply{Text: c.text, Provider: c.name}, nil
}

func TestFacadeEndToEnd(t *testing.T) {
	p := &cannedProvider{
		name: provider.NameAnthropic,
		text: `{"thought": "simple", "type": "response", "response": "hi there"}`,
	}
	sink := telemetry.NewInMemorySink()
	loop := New(func(o *Options) {
		o.Providers = []provider.Provider{p}
		o.Sink = sink
	})

	registry := action.MustNewRegistry(cache.FetchFromCacheSpec(loop.Cache()))
	agent := loop.NewAgent("chat", registry)

	result, err := loop.Run(context.Background(), agent, "req-42", core.Identity{UserID: "u1"}, []core.Message{
		core.NewUserMessage("hello"),
	})
	require.NoError(t, err)
	assert.Equal(t, engine.StatusCompleted, result.Status)
	assert.Equal(t, "hi there", result.Response)
	assert.Equal(t, 1, p.calls)

	// Lifecycle events flowed to the shared sink.
	assert.NotEmpty(t, sink.EventsOfType(telemetry.EventUserRequest))
	assert.NotEmpty(t, sink.EventsOfType(telemetry.EventResponse))

	// The request's cache scope was swept after the run.
	assert.Empty(t, loop.Cache().Keys("req-42"))
}

func TestNewProvidersFromCredentials(t *testing.T) {
	providers, err := NewProviders(context.Background(), nil, ProviderCredentials{
		Anthropic: "key-a",
		OpenAI:    "key-o",
		GoogleAI:  "key-g",
	})
	require.NoError(t, err)
	require.Len(t, providers, 3)
	assert.Equal(t, provider.NameAnthropic, providers[0].Name())
	assert.Equal(t, provider.NameOpenAI, providers[1].Name())
	assert.Equal(t, provider.NameGoogleAI, providers[2].Name())

	// Empty credentials skip the adapter.
	providers, err = NewProviders(context.Background(), nil, ProviderCredentials{OpenAI: "key-o"})
	require.NoError(t, err)
	require.Len(t, providers, 1)
	assert.Equal(t, provider.NameOpenAI, providers[0].Name())
}

func TestFacadeMintsRequestID(t *testing.T) {
	p := &cannedProvider{
		name: provider.NameAnthropic,
		text: `{"thought": "t", "type": "response", "response": "ok"}`,
	}
	loop := New(func(o *Options) { o.Providers = []provider.Provider{p} })
	agent := loop.NewAgent("chat", action.MustNewRegistry(cache.FetchFromCacheSpec(loop.Cache())))

	result, err := loop.Run(context.Background(), agent, "", core.Identity{}, []core.Message{
		core.NewUserMessage("hello"),
	})
	require.NoError(t, err)
	assert.Equal(t, engine.StatusCompleted, result.Status)
}
