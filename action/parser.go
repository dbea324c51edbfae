package action

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/juniperhq/agentloop/logging"
)

// ObservationMarker is the legacy relay marker. A reply containing it asks
// the engine to substitute the most recent observation verbatim in its
// place, letting the model relay a sub-agent's answer without restating it.
const ObservationMarker = "$$$observation$$$"

// legacyDirective introduces an inline action in the legacy text format:
// "Action: <name>: {<json parameters>}".
const legacyDirective = "Action:"

// Parsed is the normalized result of parsing one model reply. Exactly one of
// Invocation (action) and Response (final answer) is populated; downstream
// logic never sees which wire format produced it.
type Parsed struct {
	Thought    string
	Invocation *Invocation
	Response   string
}

// IsAction reports whether the reply invoked an action.
func (p *Parsed) IsAction() bool { return p.Invocation != nil }

// ParseError reports a reply that matched neither wire format. It is
// recoverable: the engine feeds it back as an observation so the model can
// self-correct, up to the turn budget.
type ParseError struct {
	Reason string
	Raw    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("could not parse model reply: %s", e.Reason)
}

// Parser normalizes raw model replies into Parsed values, accepting the
// structured JSON envelope first and falling back to the legacy text format.
// A Parser is stateless and safe for concurrent use.
type Parser struct {
	logger logging.Logger
}

// NewParser constructs a Parser. A nil logger is replaced with NoOpLogger.
func NewParser(logger logging.Logger) *Parser {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Parser{logger: logger}
}

// Parse interprets one raw reply. lastObservation is the most recent
// observation in the current run, used for ObservationMarker substitution;
// pass "" when no observation exists yet.
func (p *Parser) Parse(raw, lastObservation string) (*Parsed, error) {
	body := stripFences(raw)

	structured := looksStructured(body)
	if structured {
		if parsed, ok := p.parseStructured(body); ok {
			if !parsed.IsAction() {
				// The relay marker may sit inside the envelope's response
				// field; substitute there too.
				parsed.Response = p.substituteObservation(parsed.Response, lastObservation)
			}
			return parsed, nil
		}
		p.logger.Debug("parser.structured.malformed", "len", len(raw))
	}

	if parsed, ok, err := p.parseLegacyAction(body); ok {
		return parsed, nil
	} else if err != nil {
		return nil, err
	}

	if structured {
		// Looked like an envelope but neither format could make sense of it.
		return nil, &ParseError{Reason: "malformed action envelope and no legacy action directive found", Raw: raw}
	}

	return &Parsed{Response: p.substituteObservation(body, lastObservation)}, nil
}

// parseStructured attempts the JSON envelope. The reply may wrap the object
// in prose or fences, so parsing starts at the first '{' and ends at the
// last '}'. gjson tolerates the trailing noise models occasionally emit.
func (p *Parser) parseStructured(body string) (*Parsed, bool) {
	start := strings.Index(body, "{")
	end := strings.LastIndex(body, "}")
	if start < 0 || end <= start {
		return nil, false
	}
	obj := gjson.Parse(body[start : end+1])
	if !obj.IsObject() {
		return nil, false
	}

	thought := obj.Get("thought").String()

	switch obj.Get("type").String() {
	case "action":
		name := obj.Get("action.name").String()
		if name == "" {
			return nil, false
		}
		params := map[string]any{}
		if raw, ok := obj.Get("action.parameters").Value().(map[string]any); ok {
			params = raw
		}
		return &Parsed{
			Thought:    thought,
			Invocation: &Invocation{Name: name, Parameters: params},
		}, true
	case "response":
		resp := obj.Get("response")
		if !resp.Exists() {
			return nil, false
		}
		return &Parsed{Thought: thought, Response: resp.String()}, true
	default:
		return nil, false
	}
}

// parseLegacyAction scans for an inline "Action: name: {json}" directive.
// Returns (parsed, true, nil) on success, (nil, false, nil) when no
// directive is present, and (nil, false, err) when a directive exists but
// its parameters are not valid JSON.
func (p *Parser) parseLegacyAction(body string) (*Parsed, bool, error) {
	idx := strings.Index(body, legacyDirective)
	if idx < 0 {
		return nil, false, nil
	}

	rest := body[idx+len(legacyDirective):]
	colon := strings.Index(rest, ":")
	if colon < 0 {
		return nil, false, nil
	}
	name := strings.TrimSpace(rest[:colon])
	if !isActionName(name) {
		// "Action:" appeared in prose, not as a directive.
		return nil, false, nil
	}

	argText := strings.TrimSpace(rest[colon+1:])
	params := map[string]any{}
	if strings.HasPrefix(argText, "{") {
		// Decode stops at the end of the first JSON value, tolerating any
		// trailing commentary the model appended.
		dec := json.NewDecoder(strings.NewReader(argText))
		if err := dec.Decode(&params); err != nil {
			return nil, false, &ParseError{Reason: fmt.Sprintf("legacy action parameters are not valid JSON: %v", err), Raw: body}
		}
	} else if argText != "" {
		// Bare argument convention: a single unnamed input string.
		params["input"] = argText
	}

	thought := strings.TrimSpace(body[:idx])
	return &Parsed{
		Thought:    thought,
		Invocation: &Invocation{Name: name, Parameters: params},
	}, true, nil
}

// substituteObservation replaces the relay marker with the most recent
// observation. With no observation available the marker is left in place;
// that surfaces the model's mistake rather than silently dropping content.
func (p *Parser) substituteObservation(body, lastObservation string) string {
	if !strings.Contains(body, ObservationMarker) {
		return body
	}
	if lastObservation == "" {
		p.logger.Warn("parser.observation_marker.no_observation")
		return body
	}
	return strings.ReplaceAll(body, ObservationMarker, lastObservation)
}

// isActionName reports whether s is a plausible snake_case action name.
func isActionName(s string) bool {
	if s == "" || len(s) > 64 {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
		default:
			return false
		}
	}
	return true
}

// looksStructured reports whether a reply plausibly carries the JSON
// envelope. Used to decide whether a failed structured parse is a parse
// error or just ordinary free text.
func looksStructured(body string) bool {
	trimmed := strings.TrimSpace(body)
	if strings.HasPrefix(trimmed, "{") {
		return true
	}
	return strings.Contains(body, `"type"`) && strings.Contains(body, "{")
}

// stripFences removes a surrounding markdown code fence, with or without a
// language tag, returning the inner text.
func stripFences(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	inner := strings.TrimPrefix(trimmed, "```")
	if nl := strings.Index(inner, "\n"); nl >= 0 {
		// Drop the fence line itself ("```json" etc.).
		inner = inner[nl+1:]
	}
	inner = strings.TrimSuffix(strings.TrimSpace(inner), "```")
	return strings.TrimSpace(inner)
}
