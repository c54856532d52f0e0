// Package graph owns the nodes and connections of one (sub)graph level and
// exposes them to commands, persistence and the scheduler.
//
// # Why Graph Package Exists
//
// Every structural edit (adding a node, linking two connectors, deleting a
// node) has consequences outside the tables themselves: the node must be
// scheduled or unscheduled, downstream readiness changes, the editor must be
// told. The graph package keeps those consequences in one place so that
// commands only describe the edit.
//
// # Architecture: Tables and Facade
//
//	┌─────────────────────────────────────┐
//	│              Facade                 │
//	│ (lookups, pause/stop/reset, thread  │
//	│  groups, nested subgraphs)          │
//	└──────────┬────────────┬─────────────┘
//	           │            │
//	           ▼            ▼
//	  ┌────────────┐  ┌────────────────┐
//	  │   Graph    │  │ scheduler.     │
//	  │  (tables,  │  │ ThreadPool     │
//	  │  signals)  │  │ (dispatch)     │
//	  └────────────┘  └────────────────┘
//
// **Graph** holds the ordered node table, the connection list and the UUID
// provider. Mutations emit typed signals (NodeAdded, NodeRemoved,
// ConnectionAdded, ConnectionRemoved, StructureChanged).
//
// **Facade** subscribes to those signals, wraps every added node in a
// scheduler.NodeRunner and places it in the thread group recorded in the
// node's state. Removal unschedules and destroys the worker.
//
// # Transactions
//
// BeginTransaction and FinalizeTransaction bracket bulk edits such as loading
// a saved graph. Inside a transaction NodeAdded and ConnectionAdded are
// buffered and replayed once, followed by a single StructureChanged, so that
// loading n nodes does not reschedule the graph n times. Transactions nest.
//
// # Lookups
//
// Hard lookups (FindNode, FindConnector) return an error wrapping ErrNotFound.
// Soft lookups (FindNodeNoThrow) return a boolean instead. Edits rejected for
// structural reasons return a *StructuralError, which matches ErrStructural.
//
// # Thread-Safety
//
// All Graph and Facade methods are safe for concurrent use. Signals are
// emitted after the graph lock is released, so handlers may query the graph.
package graph
