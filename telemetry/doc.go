// Package telemetry defines the structured lifecycle events the engine emits
// (request, thought, action, observation, response, error) and the Sink
// interface that receives them. Sinks are fire-and-forget collaborators: the
// engine never blocks on or inspects the result of a Record call, and a
// misbehaving sink must not affect loop control flow.
//
// Two in-process sinks ship with the package: InMemorySink for tests and
// local inspection, and PrometheusSink exposing per-type event counters.
// Durable sinks (database, message bus) live outside this module.
package telemetry
