package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/juniperhq/agentloop/core"
	"github.com/juniperhq/agentloop/logging"
	"github.com/juniperhq/agentloop/telemetry"
)

// Canonical provider names used for model routing and fallback ordering.
const (
	NameAnthropic = "anthropic"
	NameOpenAI    = "openai"
	NameGoogleAI  = "googleai"
)

// ProviderForModel maps a model identifier to the provider that serves it.
// Returns "" for unrecognized models.
func ProviderForModel(model string) string {
	switch {
	case strings.HasPrefix(model, "claude"):
		return NameAnthropic
	case strings.HasPrefix(model, "gpt"),
		strings.HasPrefix(model, "o1"),
		strings.HasPrefix(model, "o3"),
		strings.HasPrefix(model, "o4"):
		return NameOpenAI
	case strings.HasPrefix(model, "gemini"):
		return NameGoogleAI
	default:
		return ""
	}
}

// GatewayOptions configures a Gateway.
type GatewayOptions struct {
	// Policy governs retries and fallback. Defaults to DefaultRetryPolicy.
	Policy RetryPolicy
	// Sink receives cache-metrics events. Defaults to a no-op sink.
	Sink telemetry.Sink
	// Logger for attempt-level diagnostics. Defaults to a no-op logger.
	Logger logging.Logger
}

// Gateway routes completion requests to the provider serving the requested
// model, retrying with exponential backoff and falling through the fallback
// chain when a provider's retry budget is exhausted. Safe for concurrent
// use once built.
type Gateway struct {
	providers map[string]Provider
	policy    RetryPolicy
	sink      telemetry.Sink
	logger    logging.Logger
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewGateway builds a gateway over the given providers.
func NewGateway(providers []Provider, optFns ...func(o *GatewayOptions)) *Gateway {
	opts := GatewayOptions{
		Policy: DefaultRetryPolicy,
		Sink:   telemetry.NoOpSink{},
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Sink == nil {
		opts.Sink = telemetry.NoOpSink{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	g := &Gateway{
		providers: make(map[string]Provider, len(providers)),
		policy:    opts.Policy,
		sink:      opts.Sink,
		logger:    opts.Logger,
		sleep:     sleepCtx,
	}
	for _, p := range providers {
		g.providers[p.Name()] = p
	}
	return g
}

// Has reports whether a provider is registered under name.
func (g *Gateway) Has(name string) bool {
	_, ok := g.providers[name]
	return ok
}

// Complete resolves the provider for req.Model and runs the retry/fallback
// chain. On total failure the returned error identifies the last provider
// attempted.
func (g *Gateway) Complete(rc *core.RunContext, req Request) (*Reply, error) {
	primary := ProviderForModel(req.Model)
	if primary == "" {
		return nil, NewError(ErrorTypeBadPrompt, "", req.Model,
			fmt.Sprintf("no provider serves model %q", req.Model))
	}

	chain := g.chain(primary)
	if len(chain) == 0 {
		return nil, NewError(ErrorTypeBadPrompt, primary, req.Model,
			fmt.Sprintf("provider %q not registered", primary))
	}

	var lastErr error
	for i, p := range chain {
		reply, err := g.completeOne(rc, p, req)
		if err == nil {
			g.recordCacheMetrics(rc, reply)
			return reply, nil
		}
		lastErr = err
		if rc.Context().Err() != nil {
			break
		}
		// Fallback only covers exhausted retry budgets. A non-retryable
		// failure (bad request, invalid credentials) would repeat a
		// guaranteed failure on the next vendor, so it ends the chain.
		if !TypeOf(err).Retryable() {
			break
		}
		if i < len(chain)-1 {
			g.logger.Warn("provider exhausted, trying fallback",
				"provider", p.Name(), "next", chain[i+1].Name(), "model", req.Model, "error", err.Error())
		}
	}
	return nil, lastErr
}

// chain returns the providers to attempt in order: the primary, then the
// configured fallbacks that are registered, skipping duplicates.
func (g *Gateway) chain(primary string) []Provider {
	var chain []Provider
	seen := make(map[string]bool)
	add := func(name string) {
		if seen[name] {
			return
		}
		seen[name] = true
		if p, ok := g.providers[name]; ok {
			chain = append(chain, p)
		}
	}
	add(primary)
	if g.policy.FallbackEnabled {
		for _, name := range g.policy.Fallback {
			add(name)
		}
	}
	return chain
}

// completeOne runs the retry loop for a single provider with a fresh retry
// budget. Non-retryable failures return immediately.
func (g *Gateway) completeOne(rc *core.RunContext, p Provider, req Request) (*Reply, error) {
	logger := rc.Logger()
	var lastErr *Error
	for attempt := 0; attempt <= g.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := g.policy.Delay(attempt)
			logger.Debug("retrying provider call",
				"provider", p.Name(), "model", req.Model,
				"attempt", attempt, "delay", delay.String(),
				"error_type", lastErr.Type.String())
			if err := g.sleep(rc.Context(), delay); err != nil {
				return nil, WrapError(err, p.Name(), req.Model)
			}
		}

		start := time.Now()
		reply, err := p.Complete(rc.Context(), req)
		if err == nil {
			if reply.Text == "" {
				lastErr = NewError(ErrorTypeEmptyResponse, p.Name(), req.Model, "empty response from model")
				g.recordAttempt(rc, p.Name(), req.Model, attempt, lastErr)
				continue
			}
			logging.LogProviderCall(logger, p.Name(), req.Model, reply.Usage.TotalTokens, time.Since(start), true, nil)
			g.recordAttempt(rc, p.Name(), req.Model, attempt, nil)
			return reply, nil
		}

		lastErr = WrapError(err, p.Name(), req.Model)
		logging.LogProviderCall(logger, p.Name(), req.Model, 0, time.Since(start), false, lastErr)
		g.recordAttempt(rc, p.Name(), req.Model, attempt, lastErr)
		if !lastErr.Type.Retryable() {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

// recordAttempt forwards one completion attempt to the telemetry sink so
// every provider tried for a request stays visible after fallback.
func (g *Gateway) recordAttempt(rc *core.RunContext, providerName, model string, attempt int, attemptErr *Error) {
	ev := telemetry.Event{
		RequestID: rc.RequestID(),
		UserID:    rc.UserID(),
		Type:      telemetry.EventProviderCall,
		Model:     model,
		Metadata: map[string]any{
			"provider": providerName,
			"attempt":  attempt,
			"success":  attemptErr == nil,
		},
		CreatedAt: time.Now(),
	}
	if attemptErr != nil {
		ev.Content = attemptErr.Message
		ev.Metadata["error_type"] = attemptErr.Type.String()
	}
	g.sink.Record(ev)
}

// recordCacheMetrics forwards provider-reported cache token counts to the
// telemetry sink. Never affects control flow.
func (g *Gateway) recordCacheMetrics(rc *core.RunContext, reply *Reply) {
	if reply.Usage.CacheRead == 0 && reply.Usage.CacheWrite == 0 {
		return
	}
	g.sink.Record(telemetry.Event{
		RequestID: rc.RequestID(),
		UserID:    rc.UserID(),
		Type:      telemetry.EventCacheMetrics,
		Model:     reply.Model,
		Metadata: map[string]any{
			"provider":           reply.Provider,
			"cache_read_tokens":  reply.Usage.CacheRead,
			"cache_write_tokens": reply.Usage.CacheWrite,
		},
		CreatedAt: time.Now(),
	})
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
