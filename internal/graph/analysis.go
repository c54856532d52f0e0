package graph

import (
	"github.com/vk/flowgridgo/internal/nodeid"
)

// analysis caches connectivity results until the next structural edit.
type analysis struct {
	component map[nodeid.UUID]int
	members   map[nodeid.UUID][]nodeid.UUID
	depth     map[nodeid.UUID]int
}

func (g *Graph) analyzed() *analysis {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.analysis != nil {
		return g.analysis
	}

	order := make([]nodeid.UUID, len(g.nodes))
	pos := make(map[nodeid.UUID]int, len(g.nodes))
	for i, w := range g.nodes {
		order[i] = w.UUID()
		pos[w.UUID()] = i
	}

	// union-find over node positions
	parent := make([]int, len(order))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}

	succ := make(map[int][]int)
	indeg := make([]int, len(order))
	preds := make(map[int][]int)
	for _, c := range g.connections {
		a, okA := pos[c.From().Owner()]
		b, okB := pos[c.To().Owner()]
		if !okA || !okB {
			continue
		}
		if ra, rb := find(a), find(b); ra != rb {
			parent[ra] = rb
		}
		if a == b {
			continue
		}
		succ[a] = append(succ[a], b)
		preds[b] = append(preds[b], a)
		indeg[b]++
	}

	// A component is numbered by the position of its first node.
	groups := make(map[int][]nodeid.UUID)
	first := make(map[int]int)
	for i, id := range order {
		r := find(i)
		if _, ok := first[r]; !ok {
			first[r] = i
		}
		groups[r] = append(groups[r], id)
	}
	res := &analysis{
		component: make(map[nodeid.UUID]int, len(order)),
		members:   make(map[nodeid.UUID][]nodeid.UUID, len(order)),
		depth:     make(map[nodeid.UUID]int, len(order)),
	}
	for i, id := range order {
		r := find(i)
		res.component[id] = first[r]
		res.members[id] = groups[r]
	}

	// Longest path from a source. Nodes on a cycle never reach zero
	// in-degree; they take their depth from predecessors already placed.
	depth := make([]int, len(order))
	done := make([]bool, len(order))
	queue := make([]int, 0, len(order))
	for i := range order {
		if indeg[i] == 0 {
			queue = append(queue, i)
		}
	}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		done[n] = true
		for _, m := range succ[n] {
			depth[m] = max(depth[m], depth[n]+1)
			indeg[m]--
			if indeg[m] == 0 {
				queue = append(queue, m)
			}
		}
	}
	for i := range order {
		if done[i] {
			continue
		}
		for _, p := range preds[i] {
			if done[p] {
				depth[i] = max(depth[i], depth[p]+1)
			}
		}
	}
	for i, id := range order {
		res.depth[id] = depth[i]
	}

	g.analysis = res
	return res
}

// Component returns the id of the weakly connected component containing id.
// Nodes share an id exactly when they are connected. Ids stay stable until
// the next structural edit.
func (g *Graph) Component(id nodeid.UUID) (int, error) {
	c, ok := g.analyzed().component[id]
	if !ok {
		return 0, notFound("node", id)
	}
	return c, nil
}

// ComponentMembers returns the nodes of the component containing id, in
// node order.
func (g *Graph) ComponentMembers(id nodeid.UUID) ([]nodeid.UUID, error) {
	c, ok := g.analyzed().members[id]
	if !ok {
		return nil, notFound("node", id)
	}
	return append([]nodeid.UUID(nil), c...), nil
}

// Depth returns the longest path length from any source to id.
func (g *Graph) Depth(id nodeid.UUID) (int, error) {
	d, ok := g.analyzed().depth[id]
	if !ok {
		return 0, notFound("node", id)
	}
	return d, nil
}
