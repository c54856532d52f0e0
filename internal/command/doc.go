// Package command implements the undoable editing surface of a graph.
//
// Every structural or state change an editor (or the HTTP and remote
// surfaces) makes goes through a Command executed by a Dispatcher. The
// Dispatcher keeps two stacks:
//
//	done:   commands that were executed (or redone), most recent last
//	undone: commands that were undone, most recent last
//
// A fresh Execute clears the undone stack. Undo and Redo move a single
// command between the stacks.
//
// # Savepoints
//
// ResetDirtyPoint marks the current history position as matching the
// persisted snapshot. The marker lives on the stack entries themselves: the
// top of done is flagged "before savepoint" and the top of undone "after
// savepoint". A command executed while the document is clean is also
// flagged "after savepoint". IsDirty is then recomputed from those flags on
// every Undo and Redo, so walking back to the savepoint from either side
// reports a clean document again.
//
// # Failures
//
// A command that fails leaves both stacks and the dirty flag untouched. Meta
// commands roll back the children they already applied, so a failed Meta
// leaves the graph as it found it.
package command
