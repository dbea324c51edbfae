// Package agentloop provides a high-level façade over the orchestration
// engine and its collaborators (provider gateway, action registry, content
// cache, telemetry). Most applications interact with this package by:
//  1. Creating an AgentLoop via New() (providers, retry policy, collaborators)
//  2. Building agents over action registries with NewAgent
//  3. Running them with Run, which manages the request scope end to end
//
// The façade delegates orchestration to engine.Agent while keeping setup
// ergonomics concise. All defaults are safe for local development and
// testing; production deployments typically supply real provider
// credentials, a durable telemetry sink and a structured logger.
package agentloop

import (
	"context"

	"github.com/google/uuid"

	"github.com/juniperhq/agentloop/action"
	"github.com/juniperhq/agentloop/cache"
	"github.com/juniperhq/agentloop/config"
	"github.com/juniperhq/agentloop/core"
	"github.com/juniperhq/agentloop/engine"
	"github.com/juniperhq/agentloop/logging"
	"github.com/juniperhq/agentloop/provider"
	"github.com/juniperhq/agentloop/provider/anthropic"
	"github.com/juniperhq/agentloop/provider/googleai"
	"github.com/juniperhq/agentloop/provider/openai"
	"github.com/juniperhq/agentloop/telemetry"
)

// Options configures the AgentLoop instance.
type Options struct {
	// Config supplies process-level defaults (agent roles, retry policy,
	// cache thresholds, tier models). Defaults to config.Default().
	Config *config.Config

	// Providers are the LLM backends the gateway routes across. At least
	// one is required for real runs; tests register fakes.
	Providers []provider.Provider

	// Oracle answers cancellation polls. Defaults to core.NeverCancelled.
	Oracle core.CancelOracle

	// Sink receives lifecycle events. Defaults to a no-op sink.
	Sink telemetry.Sink

	// Logger (defaults to NoOp logger if nil).
	Logger logging.Logger
}

// AgentLoop is the high-level façade aggregating the gateway, cache and
// shared collaborators every agent built from it uses.
type AgentLoop struct {
	opts    Options
	gateway *provider.Gateway
	store   *cache.Store
}

// New creates a new AgentLoop instance with optional overrides.
func New(optFns ...func(o *Options)) *AgentLoop {
	opts := Options{
		Config: config.Default(),
		Oracle: core.NeverCancelled{},
		Sink:   telemetry.NoOpSink{},
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Config == nil {
		opts.Config = config.Default()
	}
	if opts.Oracle == nil {
		opts.Oracle = core.NeverCancelled{}
	}
	if opts.Sink == nil {
		opts.Sink = telemetry.NoOpSink{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	gateway := provider.NewGateway(opts.Providers, func(o *provider.GatewayOptions) {
		o.Policy = opts.Config.RetryPolicy()
		o.Sink = opts.Sink
		o.Logger = opts.Logger
	})
	store := cache.NewStore(func(o *cache.Options) {
		o.MaxChars = opts.Config.Cache.MaxChars
		o.PreviewThreshold = opts.Config.Cache.ContentThreshold
		o.Logger = opts.Logger
	})

	return &AgentLoop{opts: opts, gateway: gateway, store: store}
}

// ProviderCredentials holds the API keys for the closed provider set. An
// empty key skips that provider.
type ProviderCredentials struct {
	Anthropic string
	OpenAI    string
	GoogleAI  string
}

// NewProviders builds the provider adapters from configuration, one per
// non-empty credential, for use as Options.Providers. The Anthropic adapter
// honors the configured prompt-cache TTL.
func NewProviders(ctx context.Context, cfg *config.Config, creds ProviderCredentials) ([]provider.Provider, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	var providers []provider.Provider
	if creds.Anthropic != "" {
		providers = append(providers, anthropic.NewProvider(func(o *anthropic.Options) {
			o.APIKey = creds.Anthropic
			o.OneHourCacheTTL = cfg.Cache.OneHourPromptTTL
		}))
	}
	if creds.OpenAI != "" {
		providers = append(providers, openai.NewProvider(func(o *openai.Options) {
			o.APIKey = creds.OpenAI
		}))
	}
	if creds.GoogleAI != "" {
		p, err := googleai.NewProvider(ctx, func(o *googleai.Options) {
			o.APIKey = creds.GoogleAI
		})
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	return providers, nil
}

// Gateway exposes the shared provider gateway.
func (l *AgentLoop) Gateway() *provider.Gateway { return l.gateway }

// Cache exposes the shared content store. Registered fetch_from_cache
// actions and PutWithPreview callers all go through it.
func (l *AgentLoop) Cache() *cache.Store { return l.store }

// NewAgent builds an agent for a configured role over the given registry.
// Role settings come from the configuration; optFns override per agent.
func (l *AgentLoop) NewAgent(role string, registry *action.Registry, optFns ...func(o *engine.Options)) *engine.Agent {
	agentCfg := l.opts.Config.Agent(role)
	base := func(o *engine.Options) {
		o.Name = role
		o.Model = agentCfg.Model
		o.MaxTurns = agentCfg.MaxTurns
		o.Temperature = agentCfg.Temperature
		o.MaxTokens = agentCfg.MaxTokens
		o.TierModels = l.opts.Config.TierModels
		o.ActionTimeout = l.opts.Config.Actions.DefaultTimeout.Std()
		o.Oracle = l.opts.Oracle
		o.Sink = l.opts.Sink
		o.Cache = l.store
		o.Logger = l.opts.Logger
	}
	return engine.NewAgent(registry, l.gateway, append([]func(o *engine.Options){base}, optFns...)...)
}

// Run executes one request against an agent: it mints a request ID when the
// caller has none, runs the loop, and sweeps the request's cache scope on
// completion.
func (l *AgentLoop) Run(ctx context.Context, agent *engine.Agent, requestID string, identity core.Identity, messages []core.Message) (*engine.Result, error) {
	if requestID == "" {
		requestID = uuid.NewString()
	}
	rc := core.NewRunContext(ctx, requestID, identity, l.opts.Logger)
	defer l.store.CleanupScope(requestID)
	return agent.Run(rc, messages)
}
