// Package scheduler runs node workers on thread groups.
//
// # Why Scheduler Exists
//
// Nodes become ready at unpredictable times: a token arrives, a downstream
// consumer frees its connection, a source tick falls due. The scheduler turns
// that readiness into execution without a global lock over the graph, while
// still letting the user pin related nodes to one execution context.
//
// # How It Works
//
// Every node is exposed as a TaskGenerator. A ThreadPool owns a set of
// ThreadGroups and every generator belongs to exactly one of them. Each group
// runs its own dispatch loop on a goroutine borrowed from an ants pool:
//  1. Scan the group's generators in insertion order.
//  2. For every generator that CanProduce, pass the dispatch gate (pause and
//     stepping), take ownership of it, Fire it and Execute it.
//  3. When a scan produced no work, sleep until woken by a generator, by the
//     pool, or by the earliest future tick deadline.
//
// # Ownership
//
// A generator is only fired by the loop of the group that currently owns it.
// Moving a generator detaches it from its old group, waiting for a dispatch
// in progress to return, and attaches it to the new group. The generator's
// own state survives the move, so a node that was ENABLED stays ENABLED and is
// dispatched once by its new group.
//
// # Failures
//
// Errors returned by Execute are logged and the loop continues. When
// exceptions are not suppressed, the first error halts the group's loop and
// is reported through ThreadPool.GroupFailed. Invariant violations are
// re-raised and never recovered.
package scheduler
