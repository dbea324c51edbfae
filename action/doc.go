// Package action implements the capability subsystem of agentloop: schema
// described action specs, the per-agent registry they are collected in, the
// parser that turns raw model replies into validated invocations or final
// responses, and the overridable guard policy applied before dispatch.
//
// Two wire formats are accepted. The primary format is a JSON envelope
//
//	{"thought": "...", "type": "action"|"response",
//	 "action": {"name": "...", "parameters": {...}},
//	 "response": "..."}
//
// and the legacy format is free text that may contain an inline
//
//	Action: <name>: {<json parameters>}
//
// directive or the $$$observation$$$ relay marker. Both normalize into the
// same Parsed representation so nothing downstream branches on format.
package action
