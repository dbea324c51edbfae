package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/juniperhq/agentloop/core"
	"github.com/juniperhq/agentloop/telemetry"
)

// fakeProvider fails a scripted number of times before succeeding.
type fakeProvider struct {
	name     string
	failures int
	failWith error
	reply    *Reply
	calls    int
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Complete(context.Context, Request) (*Reply, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, f.failWith
	}
	if f.reply == nil {
		return &Reply{Text: "ok", Provider: f.name}, nil
	}
	return f.reply, nil
}

func noSleep(g *Gateway) { g.sleep = func(context.Context, time.Duration) error { return nil } }

func testRunContext() *core.RunContext {
	return core.NewRunContext(context.Background(), "req-1", core.Identity{UserID: "user-1"}, nil)
}

func TestProviderForModel(t *testing.T) {
	assert.Equal(t, NameAnthropic, ProviderForModel("claude-sonnet-4-5"))
	assert.Equal(t, NameOpenAI, ProviderForModel("gpt-4.1"))
	assert.Equal(t, NameOpenAI, ProviderForModel("o3-mini"))
	assert.Equal(t, NameGoogleAI, ProviderForModel("gemini-2.5-pro"))
	assert.Equal(t, "", ProviderForModel("llama-3"))
}

func TestRetryEventuallySucceeds(t *testing.T) {
	p := &fakeProvider{
		name:     NameAnthropic,
		failures: 2,
		failWith: errors.New("503 service unavailable"),
	}
	g := NewGateway([]Provider{p}, func(o *GatewayOptions) {
		o.Policy = RetryPolicy{MaxRetries: 3, BaseDelay: time.Millisecond}
	})
	noSleep(g)

	reply, err := g.Complete(testRunContext(), Request{Model: "claude-sonnet-4-5"})
	require.NoError(t, err)
	assert.Equal(t, "ok", reply.Text)
	// Two observed retries for two transient failures, then success.
	assert.Equal(t, 3, p.calls)
}

func TestNonRetryableFailsImmediately(t *testing.T) {
	p := &fakeProvider{
		name:     NameAnthropic,
		failures: 10,
		failWith: errors.New("401 unauthorized"),
	}
	g := NewGateway([]Provider{p}, func(o *GatewayOptions) {
		o.Policy = RetryPolicy{MaxRetries: 3}
	})
	noSleep(g)

	_, err := g.Complete(testRunContext(), Request{Model: "claude-sonnet-4-5"})
	require.Error(t, err)
	assert.Equal(t, 1, p.calls)
	assert.Equal(t, ErrorTypeAuth, TypeOf(err))
}

func TestNonRetryableSkipsFallback(t *testing.T) {
	// A rejected request would be rejected by every vendor; the chain must
	// not repeat it on a healthy secondary.
	primary := &fakeProvider{
		name:     NameAnthropic,
		failures: 10,
		failWith: errors.New("400 invalid request: context length exceeded"),
	}
	secondary := &fakeProvider{
		name:  NameOpenAI,
		reply: &Reply{Text: "from secondary", Provider: NameOpenAI},
	}
	g := NewGateway([]Provider{primary, secondary}, func(o *GatewayOptions) {
		o.Policy = RetryPolicy{
			MaxRetries:      3,
			FallbackEnabled: true,
			Fallback:        []string{NameOpenAI},
		}
	})
	noSleep(g)

	_, err := g.Complete(testRunContext(), Request{Model: "claude-sonnet-4-5"})
	require.Error(t, err)

	var pe *Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, ErrorTypeBadPrompt, pe.Type)
	assert.Equal(t, NameAnthropic, pe.Provider)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 0, secondary.calls)
}

func TestFallbackToSecondary(t *testing.T) {
	primary := &fakeProvider{
		name:     NameAnthropic,
		failures: 100,
		failWith: errors.New("500 internal server error"),
	}
	secondary := &fakeProvider{
		name:  NameOpenAI,
		reply: &Reply{Text: "from secondary", Provider: NameOpenAI},
	}
	sink := telemetry.NewInMemorySink()
	g := NewGateway([]Provider{primary, secondary}, func(o *GatewayOptions) {
		o.Policy = RetryPolicy{
			MaxRetries:      1,
			FallbackEnabled: true,
			Fallback:        []string{NameOpenAI},
		}
		o.Sink = sink
	})
	noSleep(g)

	reply, err := g.Complete(testRunContext(), Request{Model: "claude-sonnet-4-5"})
	require.NoError(t, err)
	assert.Equal(t, "from secondary", reply.Text)
	// Primary exhausted its fresh budget before the secondary was tried.
	assert.Equal(t, 2, primary.calls)
	assert.Equal(t, 1, secondary.calls)

	// Every attempt against both providers is visible in telemetry.
	attempts := sink.EventsOfType(telemetry.EventProviderCall)
	require.Len(t, attempts, 3)
	assert.Equal(t, NameAnthropic, attempts[0].Metadata["provider"])
	assert.Equal(t, NameAnthropic, attempts[1].Metadata["provider"])
	assert.Equal(t, NameOpenAI, attempts[2].Metadata["provider"])
	assert.Equal(t, true, attempts[2].Metadata["success"])
}

func TestFallbackDisabledSurfacesPrimaryError(t *testing.T) {
	primary := &fakeProvider{
		name:     NameAnthropic,
		failures: 100,
		failWith: errors.New("request timed out"),
	}
	secondary := &fakeProvider{name: NameOpenAI}
	g := NewGateway([]Provider{primary, secondary}, func(o *GatewayOptions) {
		o.Policy = RetryPolicy{MaxRetries: 3, FallbackEnabled: false}
	})
	noSleep(g)

	_, err := g.Complete(testRunContext(), Request{Model: "claude-sonnet-4-5"})
	require.Error(t, err)

	var pe *Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, NameAnthropic, pe.Provider)
	assert.Equal(t, ErrorTypeTransient, pe.Type)
	assert.Equal(t, 4, primary.calls)
	assert.Equal(t, 0, secondary.calls)
}

func TestEmptyReplyRetried(t *testing.T) {
	p := &fakeProvider{name: NameAnthropic, reply: &Reply{Text: ""}}
	g := NewGateway([]Provider{p}, func(o *GatewayOptions) {
		o.Policy = RetryPolicy{MaxRetries: 2}
	})
	noSleep(g)

	_, err := g.Complete(testRunContext(), Request{Model: "claude-sonnet-4-5"})
	require.Error(t, err)
	assert.Equal(t, ErrorTypeEmptyResponse, TypeOf(err))
	assert.Equal(t, 3, p.calls)
}

func TestUnknownModelRejected(t *testing.T) {
	g := NewGateway(nil)

	_, err := g.Complete(testRunContext(), Request{Model: "llama-3"})
	require.Error(t, err)
	assert.Equal(t, ErrorTypeBadPrompt, TypeOf(err))
}

func TestCacheMetricsForwarded(t *testing.T) {
	p := &fakeProvider{
		name: NameAnthropic,
		reply: &Reply{
			Text:     "ok",
			Model:    "claude-sonnet-4-5",
			Provider: NameAnthropic,
			Usage:    Usage{CacheRead: 1200, CacheWrite: 300},
		},
	}
	sink := telemetry.NewInMemorySink()
	g := NewGateway([]Provider{p}, func(o *GatewayOptions) {
		o.Sink = sink
	})
	noSleep(g)

	_, err := g.Complete(testRunContext(), Request{Model: "claude-sonnet-4-5"})
	require.NoError(t, err)

	events := sink.EventsOfType(telemetry.EventCacheMetrics)
	require.Len(t, events, 1)
	assert.Equal(t, "req-1", events[0].RequestID)
	assert.Equal(t, 1200, events[0].Metadata["cache_read_tokens"])
	assert.Equal(t, 300, events[0].Metadata["cache_write_tokens"])
}

func TestRetryPolicyDelay(t *testing.T) {
	p := RetryPolicy{BaseDelay: time.Second, MaxDelay: 5 * time.Second, BackoffFactor: 2.0}

	assert.Equal(t, time.Second, p.Delay(1))
	assert.Equal(t, 2*time.Second, p.Delay(2))
	assert.Equal(t, 4*time.Second, p.Delay(3))
	// Capped.
	assert.Equal(t, 5*time.Second, p.Delay(4))
	assert.Equal(t, time.Duration(0), p.Delay(0))
}

func TestRetryPolicyJitterBounds(t *testing.T) {
	p := RetryPolicy{BaseDelay: time.Second, MaxDelay: time.Minute, BackoffFactor: 2.0, Jitter: true}

	for i := 0; i < 50; i++ {
		d := p.Delay(1)
		assert.GreaterOrEqual(t, d, 750*time.Millisecond)
		assert.LessOrEqual(t, d, 1250*time.Millisecond)
	}
}
