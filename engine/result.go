package engine

import (
	"errors"
	"strings"
)

// ErrCancelled is returned by Run when the cancellation oracle reports the
// request cancelled at a checkpoint.
var ErrCancelled = errors.New("engine: run cancelled")

// Status is the terminal state of a loop run.
type Status string

const (
	// StatusCompleted means the model produced a final response.
	StatusCompleted Status = "completed"
	// StatusTruncated means the turn budget ran out; Response carries a
	// best-effort partial result.
	StatusTruncated Status = "truncated"
	// StatusCancelled means the cancellation oracle stopped the run.
	StatusCancelled Status = "cancelled"
	// StatusFailed means the provider chain was exhausted.
	StatusFailed Status = "failed"
)

// Response markers sub-agents append to signal side effects to the caller.
// The loop strips them from the final response and raises the matching
// Result flag instead.
const (
	settingsUpdatedMarker       = "[SETTINGS_UPDATED]"
	integrationInProgressMarker = "[INTEGRATION_IN_PROGRESS]"
)

// Result is the outcome of one loop run.
type Result struct {
	Status   Status
	Response string
	Turns    int

	// SettingsUpdated reports that a sub-agent updated user configuration
	// during the run.
	SettingsUpdated bool
	// IntegrationInProgress reports that a sub-agent started a long-running
	// integration build during the run.
	IntegrationInProgress bool
}

// Truncated reports whether the run hit the turn budget.
func (r *Result) Truncated() bool { return r.Status == StatusTruncated }

// stripMarkers removes recognized trailing markers from a final response
// and returns the cleaned text plus the flags raised.
func stripMarkers(response string) (string, bool, bool) {
	settingsUpdated := strings.Contains(response, settingsUpdatedMarker)
	integrationInProgress := strings.Contains(response, integrationInProgressMarker)
	if settingsUpdated {
		response = strings.ReplaceAll(response, " "+settingsUpdatedMarker, "")
		response = strings.ReplaceAll(response, settingsUpdatedMarker, "")
	}
	if integrationInProgress {
		response = strings.ReplaceAll(response, " "+integrationInProgressMarker, "")
		response = strings.ReplaceAll(response, integrationInProgressMarker, "")
	}
	return strings.TrimSpace(response), settingsUpdated, integrationInProgress
}
