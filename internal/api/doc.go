// Package api exposes a running session over HTTP using fiber.
//
// Edits go through the command dispatcher so that they are undoable from
// any client:
//
//	POST /api/commands   {"type": "add_node", "node_type": "counter"}
//	POST /api/undo
//	POST /api/redo
//
// Run control (pause, stepping, reset, manual ticks), read-only views of the
// graph and named snapshots complete the surface. GET /health answers
// liveness probes.
package api
