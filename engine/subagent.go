package engine

import (
	"fmt"

	"github.com/juniperhq/agentloop/action"
	"github.com/juniperhq/agentloop/core"
)

// AsAction wraps the agent as an action so another agent can delegate to it.
// The handler runs a full nested loop under the caller's run context: same
// request ID, oracle and logger, no other shared state. Response markers
// stripped by the nested run are re-appended so they propagate through the
// parent's observation into its own final response.
func (a *Agent) AsAction(name, description string) action.Spec {
	return action.Spec{
		Name:        name,
		Description: description,
		Parameters: map[string]action.Param{
			"query": {
				Type:        "string",
				Required:    true,
				Description: "The task or question to hand to the sub-agent, with all context it needs.",
			},
		},
		Returns: "The sub-agent's final response.",
		Handler: func(rc *core.RunContext, params map[string]any) (*action.Result, error) {
			query, _ := params["query"].(string)
			result, err := a.Run(rc, []core.Message{core.NewUserMessage(query)})
			if err != nil {
				return nil, err
			}
			text := result.Response
			if result.Truncated() && text == "" {
				return nil, fmt.Errorf("sub-agent %s exhausted its turn budget without a final response", a.opts.Name)
			}
			if result.SettingsUpdated {
				text += " " + settingsUpdatedMarker
			}
			if result.IntegrationInProgress {
				text += " " + integrationInProgressMarker
			}
			return &action.Result{Text: text}, nil
		},
	}
}
