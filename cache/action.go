package cache

import (
	"errors"
	"fmt"

	"github.com/juniperhq/agentloop/action"
	"github.com/juniperhq/agentloop/core"
)

// FetchFromCacheSpec builds the fetch_from_cache action backed by store.
// The scope is taken from the run context's request ID, so agents sharing
// one store still only see their own request's entries. Register it on any
// agent whose actions use PutWithPreview.
func FetchFromCacheSpec(store *Store) action.Spec {
	return action.Spec{
		Name:        "fetch_from_cache",
		Description: "Retrieve the full content previously cached under a key. Use when an observation contains a [CACHED CONTENT ...] reference.",
		Parameters: map[string]action.Param{
			"cache_key": {
				Type:        "string",
				Required:    true,
				Description: "The cache key from the [CACHED CONTENT ...] reference.",
			},
		},
		Returns: "The full cached content.",
		Example: `fetch_from_cache: {"cache_key": "chat_context_42_1a2b3c4d"}`,
		Handler: func(rc *core.RunContext, params map[string]any) (*action.Result, error) {
			key, _ := params["cache_key"].(string)
			content, err := store.Fetch(rc.RequestID(), key)
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					availableKeys := store.Keys(rc.RequestID())
					return nil, fmt.Errorf("no cached content under key %q; available keys: %v", key, availableKeys)
				}
				return nil, err
			}
			return &action.Result{Text: content}, nil
		},
	}
}
