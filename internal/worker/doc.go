// Package worker wraps user node logic in a NodeWorker, the per-node
// execution state machine.
//
// A worker moves through IDLE -> ENABLED -> FIRED -> PROCESSING -> IDLE.
// Readiness checks (IDLE <-> ENABLED) may run on any goroutine and are
// compare-and-transition operations on a single state cell. Firing and
// processing are performed only by the thread group loop that currently owns
// the worker.
//
// Node logic declares its connectors and parameters once in Setup and then
// reads inputs and publishes outputs from Process. Nodes that finish their
// work on another goroutine implement AsyncNode instead.
package worker
