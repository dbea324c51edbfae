package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/juniperhq/agentloop/action"
	"github.com/juniperhq/agentloop/cache"
	"github.com/juniperhq/agentloop/core"
	"github.com/juniperhq/agentloop/provider"
	"github.com/juniperhq/agentloop/telemetry"
)

const testModel = "claude-sonnet-4-5"

type step struct {
	text string
	err  error
}

// scriptedProvider replays a fixed sequence of replies, repeating the last
// step once the script runs out. It records every request it sees.
type scriptedProvider struct {
	name     string
	script   []step
	calls    int
	requests []provider.Request
}

func (s *scriptedProvider) Name() string { return s.name }

func (s *scriptedProvider) Complete(_ context.Context, req provider.Request) (*provider.Reply, error) {
	s.requests = append(s.requests, req)
	i := s.calls
	s.calls++
	if i >= len(s.script) {
		i = len(s.script) - 1
	}
	st := s.script[i]
	if st.err != nil {
		return nil, st.err
	}
	return &provider.Reply{Text: st.text, Model: req.Model, Provider: s.name}, nil
}

func respond(text string) step {
	return step{text: fmt.Sprintf(`{"thought": "t", "type": "response", "response": %q}`, text)}
}

func invoke(name, paramsJSON string) step {
	return step{text: fmt.Sprintf(`{"thought": "t", "type": "action", "action": {"name": %q, "parameters": %s}}`, name, paramsJSON)}
}

func newTestGateway(p provider.Provider, sink telemetry.Sink) *provider.Gateway {
	return provider.NewGateway([]provider.Provider{p}, func(o *provider.GatewayOptions) {
		// Zero delays keep retry paths instant in tests.
		o.Policy = provider.RetryPolicy{MaxRetries: 3}
		if sink != nil {
			o.Sink = sink
		}
	})
}

func echoRegistry(t *testing.T) *action.Registry {
	t.Helper()
	return action.MustNewRegistry(action.Spec{
		Name:        "echo",
		Description: "Echo the input back.",
		Parameters: map[string]action.Param{
			"input": {Type: "string", Required: true},
		},
		Handler: func(_ *core.RunContext, params map[string]any) (*action.Result, error) {
			input, _ := params["input"].(string)
			return &action.Result{Text: "echo: " + input}, nil
		},
	})
}

func testRun(t *testing.T, agent *Agent) (*Result, error) {
	t.Helper()
	rc := core.NewRunContext(context.Background(), "req-1", core.Identity{UserID: "user-1"}, nil)
	return agent.Run(rc, []core.Message{core.NewUserMessage("hello")})
}

func TestRunImmediateResponse(t *testing.T) {
	p := &scriptedProvider{name: provider.NameAnthropic, script: []step{respond("Done")}}
	agent := NewAgent(echoRegistry(t), newTestGateway(p, nil), func(o *Options) {
		o.Model = testModel
	})

	result, err := testRun(t, agent)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, result.Status)
	assert.Equal(t, "Done", result.Response)
	assert.Equal(t, 1, result.Turns)
	// Exactly one model call for a direct response.
	assert.Equal(t, 1, p.calls)
}

func TestRunActionThenResponse(t *testing.T) {
	p := &scriptedProvider{name: provider.NameAnthropic, script: []step{
		invoke("echo", `{"input": "ping"}`),
		respond("pong"),
	}}
	sink := telemetry.NewInMemorySink()
	agent := NewAgent(echoRegistry(t), newTestGateway(p, nil), func(o *Options) {
		o.Model = testModel
		o.Sink = sink
	})

	result, err := testRun(t, agent)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, result.Status)
	assert.Equal(t, "pong", result.Response)
	assert.Equal(t, 2, result.Turns)

	// The observation reached the model on the second call.
	require.Equal(t, 2, p.calls)
	secondHistory := p.requests[1].Messages
	assert.Equal(t, "Observation: echo: ping", secondHistory[len(secondHistory)-1].Content)

	observations := sink.EventsOfType(telemetry.EventObservation)
	require.Len(t, observations, 1)
	assert.Equal(t, "echo: ping", observations[0].Content)
	require.Len(t, sink.EventsOfType(telemetry.EventAction), 1)
	require.Len(t, sink.EventsOfType(telemetry.EventResponse), 1)
}

func TestRunTurnBudgetExhausted(t *testing.T) {
	p := &scriptedProvider{name: provider.NameAnthropic, script: []step{
		invoke("echo", `{"input": "again"}`),
	}}
	agent := NewAgent(echoRegistry(t), newTestGateway(p, nil), func(o *Options) {
		o.Model = testModel
		o.MaxTurns = 3
	})

	result, err := testRun(t, agent)
	require.NoError(t, err)
	assert.Equal(t, StatusTruncated, result.Status)
	assert.True(t, result.Truncated())
	assert.Equal(t, 3, result.Turns)
	assert.Equal(t, "echo: again", result.Response)
	// Never more model calls than turns.
	assert.Equal(t, 3, p.calls)
}

func TestRunMalformedReplyRecovers(t *testing.T) {
	p := &scriptedProvider{name: provider.NameAnthropic, script: []step{
		{text: `{"thought": "broken", "type": "action"}`},
		respond("recovered"),
	}}
	sink := telemetry.NewInMemorySink()
	agent := NewAgent(echoRegistry(t), newTestGateway(p, nil), func(o *Options) {
		o.Model = testModel
		o.Sink = sink
	})

	result, err := testRun(t, agent)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, result.Status)
	assert.Equal(t, "recovered", result.Response)

	// The parse error became an observation the model saw next turn.
	secondHistory := p.requests[1].Messages
	assert.Contains(t, secondHistory[len(secondHistory)-1].Content, "could not be parsed")
	assert.NotEmpty(t, sink.EventsOfType(telemetry.EventError))
}

func TestRunUnregisteredActionContinues(t *testing.T) {
	p := &scriptedProvider{name: provider.NameAnthropic, script: []step{
		invoke("does_not_exist", `{}`),
		respond("ok"),
	}}
	agent := NewAgent(echoRegistry(t), newTestGateway(p, nil), func(o *Options) {
		o.Model = testModel
	})

	result, err := testRun(t, agent)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, result.Status)
	assert.Equal(t, 2, result.Turns)

	secondHistory := p.requests[1].Messages
	last := secondHistory[len(secondHistory)-1].Content
	assert.Contains(t, last, "unknown action")
	assert.Contains(t, last, "echo")
}

func TestRunHandlerErrorBecomesObservation(t *testing.T) {
	registry := action.MustNewRegistry(action.Spec{
		Name:        "flaky",
		Description: "Always fails.",
		Handler: func(*core.RunContext, map[string]any) (*action.Result, error) {
			return nil, errors.New("backend exploded")
		},
	})
	p := &scriptedProvider{name: provider.NameAnthropic, script: []step{
		invoke("flaky", `{}`),
		respond("gave up"),
	}}
	agent := NewAgent(registry, newTestGateway(p, nil), func(o *Options) {
		o.Model = testModel
	})

	result, err := testRun(t, agent)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, result.Status)

	secondHistory := p.requests[1].Messages
	last := secondHistory[len(secondHistory)-1].Content
	assert.Contains(t, last, "flaky failed")
	assert.Contains(t, last, "backend exploded")
}

func TestRunHandlerPanicBecomesObservation(t *testing.T) {
	registry := action.MustNewRegistry(action.Spec{
		Name:        "explosive",
		Description: "Panics on call.",
		Handler: func(*core.RunContext, map[string]any) (*action.Result, error) {
			panic("boom")
		},
	})
	p := &scriptedProvider{name: provider.NameAnthropic, script: []step{
		invoke("explosive", `{}`),
		respond("survived"),
	}}
	agent := NewAgent(registry, newTestGateway(p, nil), func(o *Options) {
		o.Model = testModel
	})

	result, err := testRun(t, agent)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, result.Status)

	secondHistory := p.requests[1].Messages
	last := secondHistory[len(secondHistory)-1].Content
	assert.Contains(t, last, "explosive failed")
	assert.Contains(t, last, "handler panic: boom")
}

func TestRunMarkerRelaysLatestErrorObservation(t *testing.T) {
	registry := action.MustNewRegistry(action.Spec{
		Name:        "flaky",
		Description: "Always fails.",
		Handler: func(*core.RunContext, map[string]any) (*action.Result, error) {
			return nil, errors.New("backend exploded")
		},
	})
	p := &scriptedProvider{name: provider.NameAnthropic, script: []step{
		invoke("flaky", `{}`),
		{text: "Here is what happened: " + action.ObservationMarker},
	}}
	agent := NewAgent(registry, newTestGateway(p, nil), func(o *Options) {
		o.Model = testModel
	})

	result, err := testRun(t, agent)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, result.Status)
	// The failure observation is the current substitution source.
	assert.Contains(t, result.Response, "backend exploded")
	assert.NotContains(t, result.Response, action.ObservationMarker)
}

func TestRunActionTimeout(t *testing.T) {
	registry := action.MustNewRegistry(action.Spec{
		Name:        "slow",
		Description: "Never finishes in time.",
		Handler: func(rc *core.RunContext, _ map[string]any) (*action.Result, error) {
			<-rc.Context().Done()
			return nil, rc.Context().Err()
		},
	})
	p := &scriptedProvider{name: provider.NameAnthropic, script: []step{
		invoke("slow", `{}`),
		respond("moved on"),
	}}
	agent := NewAgent(registry, newTestGateway(p, nil), func(o *Options) {
		o.Model = testModel
		o.ActionTimeout = 20 * time.Millisecond
	})

	result, err := testRun(t, agent)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, result.Status)

	secondHistory := p.requests[1].Messages
	assert.Contains(t, secondHistory[len(secondHistory)-1].Content, "timed out")
}

func TestRunCancelledBeforeFirstCheckpoint(t *testing.T) {
	oracle := core.NewInMemoryOracle()
	oracle.Cancel("req-1")
	p := &scriptedProvider{name: provider.NameAnthropic, script: []step{respond("never")}}
	agent := NewAgent(echoRegistry(t), newTestGateway(p, nil), func(o *Options) {
		o.Model = testModel
		o.Oracle = oracle
	})

	result, err := testRun(t, agent)
	require.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, StatusCancelled, result.Status)
	// No model call was issued.
	assert.Equal(t, 0, p.calls)
}

func TestRunCancelledBeforeActionExecution(t *testing.T) {
	oracle := core.NewInMemoryOracle()
	executed := false
	registry := action.MustNewRegistry(action.Spec{
		Name:        "noop",
		Description: "Should never run.",
		Handler: func(*core.RunContext, map[string]any) (*action.Result, error) {
			executed = true
			return &action.Result{}, nil
		},
	})
	p := &scriptedProvider{name: provider.NameAnthropic, script: []step{invoke("noop", `{}`)}}
	agent := NewAgent(registry, newTestGateway(p, nil), func(o *Options) {
		o.Model = testModel
		o.Oracle = cancelAfterFirstPoll{oracle}
	})

	result, err := testRun(t, agent)
	require.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, StatusCancelled, result.Status)
	assert.Equal(t, 1, p.calls)
	assert.False(t, executed)
}

// cancelAfterFirstPoll reports not-cancelled on the first poll and cancelled
// on every poll after it, simulating a cancellation arriving mid-turn.
type cancelAfterFirstPoll struct{ oracle *core.InMemoryOracle }

func (c cancelAfterFirstPoll) IsCancelled(requestID string) bool {
	if !c.oracle.IsCancelled(requestID) {
		c.oracle.Cancel(requestID)
		return false
	}
	return true
}

func TestRunProviderExhaustionIsFatal(t *testing.T) {
	p := &scriptedProvider{name: provider.NameAnthropic, script: []step{
		{err: errors.New("503 service unavailable")},
	}}
	sink := telemetry.NewInMemorySink()
	agent := NewAgent(echoRegistry(t), newTestGateway(p, sink), func(o *Options) {
		o.Model = testModel
		o.Sink = sink
	})

	result, err := testRun(t, agent)
	require.Error(t, err)
	assert.Equal(t, StatusFailed, result.Status)

	// Three transient failures plus the initial attempt, primary identified.
	assert.Equal(t, 4, p.calls)
	var pe *provider.Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, provider.NameAnthropic, pe.Provider)
	assert.NotEmpty(t, sink.EventsOfType(telemetry.EventError))
}

func TestRunTierUpgradeSwitchesModel(t *testing.T) {
	registry := action.MustNewRegistry(action.Spec{
		Name:        "think_hard",
		Description: "Needs a stronger model.",
		Handler: func(*core.RunContext, map[string]any) (*action.Result, error) {
			return &action.Result{Text: "deep thought", RequiredTier: 2}, nil
		},
	})
	p := &scriptedProvider{name: provider.NameGoogleAI, script: []step{
		invoke("think_hard", `{}`),
		respond("upgraded answer"),
	}}
	anthropicFake := &scriptedProvider{name: provider.NameAnthropic, script: []step{respond("upgraded answer")}}
	gateway := provider.NewGateway(
		[]provider.Provider{p, anthropicFake},
		func(o *provider.GatewayOptions) { o.Policy = provider.RetryPolicy{} },
	)
	agent := NewAgent(registry, gateway, func(o *Options) {
		o.Model = "gemini-2.5-pro"
		o.Tier = 1
	})

	result, err := testRun(t, agent)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, result.Status)
	assert.Equal(t, "upgraded answer", result.Response)

	// First call on the tier-1 model, second on the upgraded one.
	assert.Equal(t, 1, p.calls)
	require.Equal(t, 1, anthropicFake.calls)
	assert.Equal(t, "claude-sonnet-4-5", anthropicFake.requests[0].Model)
	// The upgrade note reached the model.
	history := anthropicFake.requests[0].Messages
	found := false
	for _, msg := range history {
		if msg.Role == core.RoleUser && strings.Contains(msg.Content, "capability tier upgraded") {
			found = true
		}
	}
	assert.True(t, found)
}

func TestRunResponseMarkersStripped(t *testing.T) {
	p := &scriptedProvider{name: provider.NameAnthropic, script: []step{
		respond("All set. [SETTINGS_UPDATED]"),
	}}
	agent := NewAgent(echoRegistry(t), newTestGateway(p, nil), func(o *Options) {
		o.Model = testModel
	})

	result, err := testRun(t, agent)
	require.NoError(t, err)
	assert.Equal(t, "All set.", result.Response)
	assert.True(t, result.SettingsUpdated)
	assert.False(t, result.IntegrationInProgress)
}

func TestRunCachesOriginalUserMessage(t *testing.T) {
	store := cache.NewStore()
	p := &scriptedProvider{name: provider.NameAnthropic, script: []step{respond("Done")}}
	agent := NewAgent(echoRegistry(t), newTestGateway(p, nil), func(o *Options) {
		o.Model = testModel
		o.Cache = store
	})

	_, err := testRun(t, agent)
	require.NoError(t, err)

	got, err := store.Fetch("req-1", "original_user_message_req-1")
	require.NoError(t, err)
	assert.Equal(t, "hello", got)
}

func TestSubAgentComposition(t *testing.T) {
	subProvider := &scriptedProvider{name: provider.NameAnthropic, script: []step{
		respond("settings saved [SETTINGS_UPDATED]"),
	}}
	sub := NewAgent(echoRegistry(t), newTestGateway(subProvider, nil), func(o *Options) {
		o.Name = "config"
		o.Model = testModel
	})

	parentProvider := &scriptedProvider{name: provider.NameAnthropic, script: []step{
		invoke("call_config_agent", `{"query": "enable dark mode"}`),
		respond("Your settings were saved. [SETTINGS_UPDATED]"),
	}}
	registry := action.MustNewRegistry(sub.AsAction("call_config_agent", "Delegate settings changes."))
	parent := NewAgent(registry, newTestGateway(parentProvider, nil), func(o *Options) {
		o.Name = "chat"
		o.Model = testModel
	})

	result, err := testRun(t, parent)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, result.Status)
	assert.Equal(t, "Your settings were saved.", result.Response)
	assert.True(t, result.SettingsUpdated)

	// The sub-agent saw the delegated query as its user message.
	require.Equal(t, 1, subProvider.calls)
	assert.Equal(t, "enable dark mode", subProvider.requests[0].Messages[0].Content)

	// The marker survived into the parent's observation.
	parentSecond := parentProvider.requests[1].Messages
	assert.Contains(t, parentSecond[len(parentSecond)-1].Content, "[SETTINGS_UPDATED]")
}
