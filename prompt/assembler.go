// Package prompt builds the two-part system prompt the provider gateway
// sends with every model call. The static segment (shared context, action
// catalog, response-format template) is byte-identical across turns of a run
// so caching-capable providers can avoid reprocessing it; the dynamic
// segment (per-call instructions and examples) is never cached.
//
// Build is pure: identical inputs always yield byte-identical Segments.
// Anything that would break that — map iteration order, timestamps — is
// either sorted here or excluded from the inputs.
package prompt

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/juniperhq/agentloop/action"
)

// DefaultResponseTemplate instructs the model to answer with the structured
// action envelope. Callers may override it per agent, but the engine's
// parser always accepts this shape.
const DefaultResponseTemplate = `Respond with a single JSON object and nothing else:

{"thought": "<your reasoning>", "type": "action", "action": {"name": "<action name>", "parameters": {<parameters>}}}

or, when you are ready to answer the user:

{"thought": "<your reasoning>", "type": "response", "response": "<your answer>"}

Exactly one of "action" or "response" must be present, matching "type".`

// Segments is a built system prompt split by cache eligibility.
type Segments struct {
	// Static is the cache-eligible block: context, action catalog,
	// response-format template. Byte-identical across turns within one run.
	Static string
	// Dynamic is the per-call block: instructions and examples. Never cached.
	Dynamic string
}

// Fingerprint returns a stable hash of the static block, used to verify
// cache-hit eligibility across turns and to key provider-side diagnostics.
func (s Segments) Fingerprint() uint64 {
	return xxhash.Sum64String(s.Static)
}

// Input collects everything a system prompt is assembled from.
type Input struct {
	// Context is the agent's standing context (who it is, what system it
	// belongs to). Part of the static block.
	Context string
	// Catalog is the agent's capability set. Rendered sorted by name into
	// the static block. Handlers are ignored.
	Catalog []action.Spec
	// ResponseTemplate overrides DefaultResponseTemplate when non-empty.
	ResponseTemplate string
	// Instructions are per-call directives. Part of the dynamic block.
	Instructions string
	// Examples are per-call usage examples. Part of the dynamic block.
	Examples []string
}

// Build assembles prompt segments from the input. Pure and deterministic.
func Build(in Input) Segments {
	catalog := make([]action.Spec, len(in.Catalog))
	copy(catalog, in.Catalog)
	sort.Slice(catalog, func(i, j int) bool { return catalog[i].Name < catalog[j].Name })

	template := in.ResponseTemplate
	if template == "" {
		template = DefaultResponseTemplate
	}

	var static strings.Builder
	if in.Context != "" {
		static.WriteString(strings.TrimSpace(in.Context))
		static.WriteString("\n\n")
	}
	if len(catalog) > 0 {
		static.WriteString("Available Actions:\n")
		for _, spec := range catalog {
			writeSpec(&static, spec)
		}
		static.WriteString("\n")
	}
	static.WriteString(template)

	var dynamic strings.Builder
	if in.Instructions != "" {
		dynamic.WriteString(strings.TrimSpace(in.Instructions))
	}
	for _, ex := range in.Examples {
		if dynamic.Len() > 0 {
			dynamic.WriteString("\n\n")
		}
		dynamic.WriteString("Example:\n")
		dynamic.WriteString(strings.TrimSpace(ex))
	}

	return Segments{Static: static.String(), Dynamic: dynamic.String()}
}

// writeSpec renders one catalog entry as name/description/parameters/returns
// /example lines. Parameter order is sorted for determinism.
func writeSpec(b *strings.Builder, spec action.Spec) {
	fmt.Fprintf(b, "\n- %s: %s\n", spec.Name, spec.Description)

	if len(spec.Parameters) > 0 {
		names := make([]string, 0, len(spec.Parameters))
		for name := range spec.Parameters {
			names = append(names, name)
		}
		sort.Strings(names)
		b.WriteString("  Parameters:\n")
		for _, name := range names {
			p := spec.Parameters[name]
			required := "optional"
			if p.Required {
				required = "required"
			}
			fmt.Fprintf(b, "    %s (%s, %s)", name, p.Type, required)
			if p.Description != "" {
				fmt.Fprintf(b, ": %s", p.Description)
			}
			b.WriteString("\n")
		}
	}
	if spec.Returns != "" {
		fmt.Fprintf(b, "  Returns: %s\n", spec.Returns)
	}
	if spec.Example != "" {
		fmt.Fprintf(b, "  Example: %s\n", spec.Example)
	}
}
