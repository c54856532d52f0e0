// Package graphio converts between a running graph and its persisted form.
//
// A Snapshot carries the logical content of a graph level: nodes with their
// type, editor position and saved state, connections keyed by source
// connector, the fulcrums of each connection, the user thread groups and
// the id generator counters. Execution ignores positions and fulcrums; they
// are kept so a save and load round-trips.
//
// Snapshots are encoded as JSON (for the HTTP API and the snapshot stores)
// or as HCL (for files edited by hand). Loading is forgiving: entries that
// cannot be applied are skipped, reported in the returned Report and
// published as graph notifications.
package graphio
