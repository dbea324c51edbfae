package action

import (
	"fmt"
	"strings"
)

// Guard is a validation predicate applied to an invocation after schema
// validation and before dispatch. It receives the user message that started
// the current turn so policies can depend on what the user actually asked.
// Returning a non-nil error rejects the invocation; the engine converts the
// rejection into an observation.
//
// Guards exist for domain policy that does not belong inside the engine,
// such as only allowing outbound "send" style actions when the user's
// message shows intent to send something.
type Guard func(inv *Invocation, userMessage string) error

// SendKeywordGuard returns a Guard that rejects the named actions unless at
// least one of the keywords appears (case-insensitively) in the user
// message. Actions outside the named set always pass.
func SendKeywordGuard(guarded []string, keywords []string) Guard {
	guardedSet := make(map[string]struct{}, len(guarded))
	for _, name := range guarded {
		guardedSet[name] = struct{}{}
	}
	lowered := make([]string, len(keywords))
	for i, kw := range keywords {
		lowered[i] = strings.ToLower(kw)
	}
	return func(inv *Invocation, userMessage string) error {
		if _, ok := guardedSet[inv.Name]; !ok {
			return nil
		}
		msg := strings.ToLower(userMessage)
		for _, kw := range lowered {
			if strings.Contains(msg, kw) {
				return nil
			}
		}
		return fmt.Errorf("action %q requires explicit user intent; none of %v found in the user message", inv.Name, keywords)
	}
}
