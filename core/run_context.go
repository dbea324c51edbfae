package core

import (
	"context"

	"github.com/google/uuid"

	"github.com/juniperhq/agentloop/logging"
)

// Identity names the principal a loop run acts on behalf of. UserID is an
// opaque string (typically a UUID) and is forwarded to telemetry untouched.
type Identity struct {
	UserID string
}

// RunContext carries the per-request values shared by the orchestration loop
// and its action handlers: the request id partitioning cache and telemetry,
// the caller identity, the Go context governing all network calls, and the
// logger. One RunContext is created per originating request and flows through
// nested sub-agent loops unchanged so that everything a request triggers
// stays within one scope.
type RunContext struct {
	ctx       context.Context
	requestID string
	identity  Identity
	logger    logging.Logger
}

// NewRunContext constructs a RunContext. A nil context or logger is replaced
// with context.Background() / NoOpLogger; an empty requestID gets a fresh
// UUID so cache scoping always has a key.
func NewRunContext(ctx context.Context, requestID string, identity Identity, logger logging.Logger) *RunContext {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	if requestID == "" {
		requestID = uuid.NewString()
	}
	return &RunContext{ctx: ctx, requestID: requestID, identity: identity, logger: logger}
}

// Context returns the Go context governing blocking work for this request.
func (rc *RunContext) Context() context.Context { return rc.ctx }

// RequestID returns the identifier scoping cache entries and telemetry events.
func (rc *RunContext) RequestID() string { return rc.requestID }

// Identity returns the caller identity for this request.
func (rc *RunContext) Identity() Identity { return rc.identity }

// UserID is shorthand for Identity().UserID.
func (rc *RunContext) UserID() string { return rc.identity.UserID }

// Logger returns the request logger, never nil.
func (rc *RunContext) Logger() logging.Logger { return rc.logger }

// WithContext derives a RunContext with a replacement Go context. Used by the
// engine to impose per-action timeouts without mutating the parent.
func (rc *RunContext) WithContext(ctx context.Context) *RunContext {
	nc := *rc
	nc.ctx = ctx
	return &nc
}
