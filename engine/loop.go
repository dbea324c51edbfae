package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/juniperhq/agentloop/action"
	"github.com/juniperhq/agentloop/core"
	"github.com/juniperhq/agentloop/logging"
	"github.com/juniperhq/agentloop/provider"
	"github.com/juniperhq/agentloop/telemetry"
)

// loopState is the mutable state of one run. Owned exclusively by the run
// that created it; the Agent itself stays read-only.
type loopState struct {
	history         []core.Message
	turn            int
	model           string
	tier            int
	lastObservation string
	userMessage     string
}

// Run drives the loop to a terminal state. Cancellation is polled at two
// checkpoints per turn: before the model call and before action execution.
// Everything recoverable (parse errors, validation failures, handler errors
// and timeouts) becomes an observation fed back to the model; only
// cancellation, provider-chain exhaustion and the turn budget terminate.
func (a *Agent) Run(rc *core.RunContext, messages []core.Message) (*Result, error) {
	if rc == nil {
		rc = core.NewRunContext(context.Background(), "", core.Identity{}, a.opts.Logger)
	}
	logger := logging.WithRequest(rc.Logger(), rc.RequestID(), a.opts.Name)
	start := time.Now()

	st := &loopState{
		history:     core.CloneHistory(messages),
		model:       a.opts.Model,
		tier:        a.opts.Tier,
		userMessage: lastUserContent(messages),
	}

	if a.opts.Cache != nil && st.userMessage != "" {
		a.opts.Cache.Put(rc.RequestID(), "original_user_message_"+rc.RequestID(), st.userMessage)
	}
	a.record(rc, st, telemetry.EventUserRequest, st.userMessage, nil)

	for st.turn = 1; st.turn <= a.opts.MaxTurns; st.turn++ {
		// Checkpoint one: before spending a model call.
		if a.opts.Oracle.IsCancelled(rc.RequestID()) {
			logger.Info("run cancelled before model call", "turn", st.turn)
			a.record(rc, st, telemetry.EventError, "cancelled", nil)
			return &Result{Status: StatusCancelled, Turns: st.turn - 1}, ErrCancelled
		}

		reply, err := a.gateway.Complete(rc, provider.Request{
			Model:       st.model,
			Segments:    a.segments,
			Messages:    st.history,
			Temperature: a.opts.Temperature,
			MaxTokens:   a.opts.MaxTokens,
		})
		if err != nil {
			logging.LogLoopRun(logger, a.opts.Name, st.turn, time.Since(start), false, err)
			a.record(rc, st, telemetry.EventError, err.Error(), nil)
			return &Result{Status: StatusFailed, Turns: st.turn}, err
		}
		st.history = append(st.history, core.NewAssistantMessage(reply.Text))

		parsed, perr := a.parser.Parse(reply.Text, st.lastObservation)
		if perr != nil {
			a.record(rc, st, telemetry.EventError, perr.Error(), nil)
			a.observe(rc, st, fmt.Sprintf(
				"Your reply could not be parsed: %v. Reply with a single JSON object in the required format.", perr))
			continue
		}
		if parsed.Thought != "" {
			a.record(rc, st, telemetry.EventThought, parsed.Thought, nil)
		}

		if !parsed.IsAction() {
			response, settingsUpdated, integrationInProgress := stripMarkers(parsed.Response)
			a.record(rc, st, telemetry.EventResponse, response, nil)
			logging.LogLoopRun(logger, a.opts.Name, st.turn, time.Since(start), true, nil)
			return &Result{
				Status:                StatusCompleted,
				Response:              response,
				Turns:                 st.turn,
				SettingsUpdated:       settingsUpdated,
				IntegrationInProgress: integrationInProgress,
			}, nil
		}

		inv := parsed.Invocation
		if err := a.registry.Validate(inv, st.userMessage); err != nil {
			a.record(rc, st, telemetry.EventError, err.Error(), inv)
			a.observe(rc, st, err.Error())
			continue
		}
		a.record(rc, st, telemetry.EventAction, "", inv)

		// Checkpoint two: before spending an action execution.
		if a.opts.Oracle.IsCancelled(rc.RequestID()) {
			logger.Info("run cancelled before action execution", "turn", st.turn, "action", inv.Name)
			a.record(rc, st, telemetry.EventError, "cancelled", inv)
			return &Result{Status: StatusCancelled, Turns: st.turn}, ErrCancelled
		}

		spec, _ := a.registry.Get(inv.Name)
		result, err := a.execute(rc, spec, inv)
		if err != nil {
			a.record(rc, st, telemetry.EventError, err.Error(), inv)
			a.observe(rc, st, fmt.Sprintf("Action %s failed: %v", inv.Name, err))
			continue
		}

		if result.RequiredTier > st.tier {
			a.upgradeTier(rc, st, inv.Name, result.RequiredTier)
		}

		a.observe(rc, st, result.Text)
	}

	logger.Warn("turn budget exhausted", "max_turns", a.opts.MaxTurns)
	a.record(rc, st, telemetry.EventError, "max turns exceeded", nil)
	return &Result{
		Status:   StatusTruncated,
		Response: st.lastObservation,
		Turns:    a.opts.MaxTurns,
	}, nil
}

// observe appends an observation to history and records it. Observations
// are framed as user-role messages so every backend accepts the alternating
// conversation. Every observation, error feedback included, becomes the
// current relay-marker substitution source.
func (a *Agent) observe(rc *core.RunContext, st *loopState, text string) {
	st.history = append(st.history, core.NewUserMessage("Observation: "+text))
	st.lastObservation = text
	a.record(rc, st, telemetry.EventObservation, text, nil)
}

// upgradeTier swaps the active model for the one serving requiredTier and
// notes the change in history. Monotonic: the loop never downgrades, and
// only action handlers can request a tier at all.
func (a *Agent) upgradeTier(rc *core.RunContext, st *loopState, actionName string, requiredTier int) {
	model, ok := a.opts.TierModels[requiredTier]
	if !ok {
		rc.Logger().Warn("no model for required capability tier",
			"tier", requiredTier, "action", actionName)
		return
	}
	st.tier = requiredTier
	st.model = model
	rc.Logger().Info("capability tier upgraded",
		"tier", requiredTier, "model", model, "action", actionName)
	st.history = append(st.history, core.NewUserMessage(fmt.Sprintf(
		"Note: capability tier upgraded to %d (%s) because action %s requires it.",
		requiredTier, model, actionName)))
	a.record(rc, st, telemetry.EventObservation,
		fmt.Sprintf("capability tier upgraded to %d (%s)", requiredTier, model), nil)
}

// execute runs one handler under the action timeout. The handler receives a
// run context whose context.Context carries the deadline; handlers that
// ignore it are abandoned to finish in the background while the loop moves
// on with a timeout observation.
func (a *Agent) execute(rc *core.RunContext, spec action.Spec, inv *action.Invocation) (*action.Result, error) {
	ctx, cancel := context.WithTimeout(rc.Context(), a.opts.ActionTimeout)
	defer cancel()

	type outcome struct {
		result *action.Result
		err    error
	}
	done := make(chan outcome, 1)
	start := time.Now()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				err := fmt.Errorf("handler panic: %v", r)
				logging.ErrorWithStack(rc.Logger(), err, "action handler panicked")
				done <- outcome{nil, err}
			}
		}()
		result, err := spec.Handler(rc.WithContext(ctx), inv.Parameters)
		done <- outcome{result, err}
	}()

	select {
	case <-ctx.Done():
		err := ctx.Err()
		logging.LogActionCall(rc.Logger(), inv.Name, time.Since(start), false, err)
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &action.Error{
				Action:  inv.Name,
				Message: fmt.Sprintf("timed out after %s", a.opts.ActionTimeout),
				Code:    action.CodeTimeout,
			}
		}
		return nil, err
	case o := <-done:
		if o.err != nil {
			logging.LogActionCall(rc.Logger(), inv.Name, time.Since(start), false, o.err)
			var ae *action.Error
			if errors.As(o.err, &ae) {
				return nil, ae
			}
			return nil, &action.Error{
				Action:  inv.Name,
				Message: o.err.Error(),
				Code:    action.CodeExecution,
				Details: o.err,
			}
		}
		logging.LogActionCall(rc.Logger(), inv.Name, time.Since(start), true, nil)
		if o.result == nil {
			o.result = &action.Result{}
		}
		return o.result, nil
	}
}

// record forwards one lifecycle event to the sink. Fire and forget.
func (a *Agent) record(rc *core.RunContext, st *loopState, eventType telemetry.EventType, content string, inv *action.Invocation) {
	ev := telemetry.Event{
		RequestID: rc.RequestID(),
		UserID:    rc.UserID(),
		Type:      eventType,
		Turn:      st.turn,
		AgentName: a.opts.Name,
		Content:   content,
		Model:     st.model,
		CreatedAt: time.Now(),
	}
	if inv != nil {
		ev.ActionName = inv.Name
		ev.ActionParams = inv.Parameters
	}
	a.opts.Sink.Record(ev)
}

func lastUserContent(messages []core.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == core.RoleUser {
			return messages[i].Content
		}
	}
	return ""
}
