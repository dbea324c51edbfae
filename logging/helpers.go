package logging

import "time"

// Package-level mirrors of the AgentLoopLogger domain helpers. Components
// hold the minimal Logger interface; these helpers use the rich methods
// when the underlying logger is an AgentLoopLogger and fall back to plain
// structured fields otherwise.

// WithRequest attaches request and agent identifiers when supported.
func WithRequest(l Logger, requestID, agentName string) Logger {
	if al, ok := l.(*AgentLoopLogger); ok {
		return al.WithRequest(requestID, agentName)
	}
	return l
}

// ErrorWithStack logs err with a stack snapshot when the logger supports it.
func ErrorWithStack(l Logger, err error, msg string) {
	if al, ok := l.(*AgentLoopLogger); ok {
		al.ErrorWithStack(err, msg)
		return
	}
	l.Error(msg, "error", err)
}

// LogActionCall records execution details for an action invocation.
func LogActionCall(l Logger, action string, dur time.Duration, success bool, err error) {
	if al, ok := l.(*AgentLoopLogger); ok {
		al.LogActionCall(action, dur, success, err)
		return
	}
	if success {
		l.Info("Action execution completed", "action_name", action, "duration", dur)
		return
	}
	l.Error("Action execution failed", "action_name", action, "duration", dur, "error", err)
}

// LogProviderCall records model call latency, token usage and success.
func LogProviderCall(l Logger, provider, model string, tokens int, dur time.Duration, success bool, err error) {
	if al, ok := l.(*AgentLoopLogger); ok {
		al.LogProviderCall(provider, model, tokens, dur, success, err)
		return
	}
	if success {
		l.Info("Provider call completed", "provider", provider, "model", model, "token_count", tokens, "duration", dur)
		return
	}
	l.Error("Provider call failed", "provider", provider, "model", model, "duration", dur, "error", err)
}

// LogLoopRun records aggregate loop run metrics.
func LogLoopRun(l Logger, agent string, turns int, dur time.Duration, success bool, err error) {
	if al, ok := l.(*AgentLoopLogger); ok {
		al.LogLoopRun(agent, turns, dur, success, err)
		return
	}
	if success {
		l.Info("Loop run completed", "agent_name", agent, "turn_count", turns, "duration", dur)
		return
	}
	l.Error("Loop run failed", "agent_name", agent, "turn_count", turns, "duration", dur, "error", err)
}
