// Package engine drives the think/act/observe orchestration loop: per
// turn it calls the provider gateway, parses the reply into an action or a
// final response, executes the action, and feeds the observation back into
// conversation history until the model responds, the turn budget runs out,
// the request is cancelled, or the provider chain is exhausted.
package engine

import (
	"time"

	"github.com/juniperhq/agentloop/action"
	"github.com/juniperhq/agentloop/cache"
	"github.com/juniperhq/agentloop/core"
	"github.com/juniperhq/agentloop/logging"
	"github.com/juniperhq/agentloop/prompt"
	"github.com/juniperhq/agentloop/provider"
	"github.com/juniperhq/agentloop/telemetry"
)

const (
	// DefaultMaxTurns bounds the loop when no per-agent value is set.
	DefaultMaxTurns = 10
	// DefaultActionTimeout bounds one action handler execution.
	DefaultActionTimeout = 240 * time.Second
	// MaxActionTimeout is the ceiling any configured action timeout is
	// clamped to.
	MaxActionTimeout = 3600 * time.Second
)

// DefaultTierModels maps capability tiers to model identifiers. Tier 1 is
// the inexpensive default; handlers that need deeper reasoning report a
// higher required tier and the loop upgrades mid-run.
var DefaultTierModels = map[int]string{
	1: "gemini-2.5-pro",
	2: "claude-sonnet-4-5",
}

// Options configures an Agent.
type Options struct {
	// Name identifies the agent in logs and telemetry.
	Name string
	// Model is the starting model identifier. Defaults to the Tier entry
	// of TierModels.
	Model string
	// Tier is the starting capability tier. Defaults to 1.
	Tier int
	// TierModels maps capability tiers to models for mid-run upgrades.
	// Defaults to DefaultTierModels. Immutable after construction.
	TierModels map[int]string
	// MaxTurns caps loop iterations. Defaults to DefaultMaxTurns.
	MaxTurns int
	// Temperature and MaxTokens pass through to the provider request.
	Temperature float64
	MaxTokens   int

	// Context, Instructions, Examples and ResponseTemplate feed the prompt
	// assembler; Context and the action catalog form the static segment.
	Context          string
	Instructions     string
	Examples         []string
	ResponseTemplate string

	// ActionTimeout bounds each handler execution. Defaults to
	// DefaultActionTimeout, clamped to MaxActionTimeout.
	ActionTimeout time.Duration

	// Oracle answers cancellation polls. Defaults to core.NeverCancelled.
	Oracle core.CancelOracle
	// Sink receives lifecycle events. Defaults to a no-op sink.
	Sink telemetry.Sink
	// Cache, when set, receives the original user message at loop start so
	// actions can retrieve it via fetch_from_cache.
	Cache *cache.Store
	// Logger defaults to a no-op logger.
	Logger logging.Logger
}

// Agent is one configured loop instantiation: a capability set, a gateway,
// prompt material and a turn budget. Safe for concurrent Run calls; all
// mutable state lives in the per-run loopState.
type Agent struct {
	registry *action.Registry
	gateway  *provider.Gateway
	parser   *action.Parser
	segments prompt.Segments
	opts     Options
}

// NewAgent builds an agent over a registry and gateway. The prompt's static
// segment is assembled once here so every run presents an identical prefix
// to caching-capable providers.
func NewAgent(registry *action.Registry, gateway *provider.Gateway, optFns ...func(o *Options)) *Agent {
	opts := Options{
		Name:          "agent",
		Tier:          1,
		TierModels:    DefaultTierModels,
		MaxTurns:      DefaultMaxTurns,
		ActionTimeout: DefaultActionTimeout,
		Oracle:        core.NeverCancelled{},
		Sink:          telemetry.NoOpSink{},
		Logger:        logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Model == "" {
		opts.Model = opts.TierModels[opts.Tier]
	}
	if opts.MaxTurns <= 0 {
		opts.MaxTurns = DefaultMaxTurns
	}
	if opts.ActionTimeout <= 0 {
		opts.ActionTimeout = DefaultActionTimeout
	}
	if opts.ActionTimeout > MaxActionTimeout {
		opts.ActionTimeout = MaxActionTimeout
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

	segments := prompt.Build(prompt.Input{
		Context:          opts.Context,
		Catalog:          registry.Specs(),
		ResponseTemplate: opts.ResponseTemplate,
		Instructions:     opts.Instructions,
		Examples:         opts.Examples,
	})

	return &Agent{
		registry: registry,
		gateway:  gateway,
		parser:   action.NewParser(opts.Logger),
		segments: segments,
		opts:     opts,
	}
}

// Name returns the agent's telemetry name.
func (a *Agent) Name() string { return a.opts.Name }

// Segments exposes the assembled prompt segments, mainly for tests and
// diagnostics.
func (a *Agent) Segments() prompt.Segments { return a.segments }
