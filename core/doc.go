// Package core contains the shared primitives every other agentloop package
// builds on: conversation messages, the per-request RunContext handed to the
// orchestration loop and its action handlers, and the cancellation oracle
// polled at loop checkpoints.
//
// Nothing in this package performs I/O. The types here are deliberately small
// so that provider adapters, the action registry and the engine can share
// them without import cycles.
package core
