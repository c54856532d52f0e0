// internal/nodeid/doc.go

/*
Package nodeid provides the hierarchical identifiers used to name nodes,
connectors, and nested subgraphs.

A UUID is a sequence of segments joined by the namespace separator `:|:`,
e.g. `counter_0`, `counter_0:|:out_1`, or `sub_2:|:relay_0:|:in_0`. Each
segment is a name with an optional numeric index suffix (`name_index`).
A UUID with more than one segment is composite: its root segment names
the owner (a node or a subgraph) and the nested part is resolved inside it.

UUIDs are comparable values and are used directly as map keys.

The Provider mints fresh ids per type prefix and never hands out an id that
is still registered as live.
*/
package nodeid
