// Package connector implements node endpoints and the per-cycle handshake
// between producers and consumers.
//
// # Endpoints
//
// Every node owns Inputs and Outputs. Their ConnectorKind is a closed set:
// DataInput, DataOutput, Event, and Slot. Data outputs feed data inputs and
// events feed slots. A Connection links exactly one Output to one Input and
// carries an active flag marking trigger links.
//
// # Handshake
//
// An OutputTransition groups all outputs of one node:
//
//  1. Idle: every owned connection is NOT_INITIALIZED and every output IDLE.
//  2. Commit: SendMessages commits each output's pending token (or an explicit
//     no-message token) and stamps all of them with one shared sequence number.
//  3. Fan-out: each committed token is written into every connection of its
//     output, moving the connection to IN_FLIGHT. Outputs without connections
//     go back to IDLE immediately.
//  4. Consumption: the consuming InputTransition marks each connection DONE
//     once the downstream node has processed the token.
//  5. Completion: when every connection filled in this cycle is DONE they are
//     reset to NOT_INITIALIZED, outputs return to IDLE, and MessagesProcessed
//     fires.
//
// CanStartSendingMessages is the backpressure rule: a new cycle may only start
// once every connected, enabled output is IDLE and no connection is IN_FLIGHT.
//
// Broken preconditions (committing into a connection that is not
// NOT_INITIALIZED, outputs disagreeing on the sequence number) panic with an
// *InvariantViolation. They indicate a scheduling defect and are never
// recovered by the scheduler.
//
// # Locking
//
// Lock order is OutputTransition -> Connection. Connection state reads are
// atomic. StateChanged handlers run while the connection lock is held and
// must not call back into the connection's mutating methods.
package connector
