package action

import "fmt"

// Error codes used for categorization across the engine and telemetry.
const (
	// CodeUnknownAction marks invocations of a name missing from the registry.
	CodeUnknownAction = "UNKNOWN_ACTION"
	// CodeValidation marks schema or argument mismatches.
	CodeValidation = "VALIDATION_ERROR"
	// CodeGuardRejected marks invocations refused by the registry guard.
	CodeGuardRejected = "GUARD_REJECTED"
	// CodeExecution marks handler failures that are not already *Error.
	CodeExecution = "EXECUTION_ERROR"
	// CodeTimeout marks handlers that exceeded their execution budget.
	CodeTimeout = "TIMEOUT_ERROR"
)

// Error represents errors raised while validating or executing an action.
// The engine converts every *Error into an observation, never a crash.
type Error struct {
	Action  string      `json:"action"`            // Name of the action involved
	Message string      `json:"message"`           // Error message
	Code    string      `json:"code"`              // Error code for categorization
	Details interface{} `json:"details,omitempty"` // Additional error details
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("action error [%s] in %s: %s", e.Code, e.Action, e.Message)
	}
	return fmt.Sprintf("action error in %s: %s", e.Action, e.Message)
}

// NewError creates an Error with the given details.
func NewError(action, message, code string) *Error {
	return &Error{Action: action, Message: message, Code: code}
}
