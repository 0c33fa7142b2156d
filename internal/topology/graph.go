package topology

import (
	"strconv"

	"github.com/katalvlaran/lvlath/core"
	"github.com/ts2/railctl/internal/geometry"
)

// Edge is a rail-geometry edge of the frozen topology: a sequence of rails
// (bends) connecting two node indices, stored alongside the lvlath graph
// that carries the scalar weight and adjacency bookkeeping.
type Edge struct {
	ID    string
	From  int
	To    int
	Rails []geometry.Rail
}

// ManhattanCost is the edge's total cost for A* edge-cost accumulation
// (§4.5): the sum of each rail's Manhattan distance.
func (e Edge) ManhattanCost() int {
	return geometry.RailsManhattanDistance(e.Rails)
}

// Topology is the frozen, immutable-after-build rail network: a directed
// multigraph of typed Nodes joined by rail Edges. Topology entities never
// change after Build (§3 Lifecycle); only the mutable per-element state held
// elsewhere (internal/resources, internal/signaling) changes at runtime.
type Topology struct {
	graph *core.Graph // substrate: adjacency, locking, vertex/edge catalog
	nodes []Node
	edges map[string]Edge

	outEdges map[int][]Edge // node index -> outgoing edges, in connect order
	inEdges  map[int][]Edge // node index -> incoming edges, in connect order

	addrToIndices map[addrKey][]int // address (scoped by kind) -> node indices sharing it
}

type addrKey struct {
	kind NodeKind
	addr uint16
}

func vertexID(index int) string { return strconv.Itoa(index) }

// NodeCount returns the number of nodes in the frozen topology.
func (t *Topology) NodeCount() int { return len(t.nodes) }

// Node returns the node at index, and whether index is valid.
func (t *Topology) Node(index int) (Node, bool) {
	if index < 0 || index >= len(t.nodes) {
		return Node{}, false
	}
	return t.nodes[index], true
}

// OutEdges returns the edges leaving node index, in the deterministic order
// they were connected in the builder.
func (t *Topology) OutEdges(index int) []Edge {
	return t.outEdges[index]
}

// InEdges returns the edges entering node index, in deterministic order.
func (t *Topology) InEdges(index int) []Edge {
	return t.inEdges[index]
}

// IndicesForSignal returns the first node index registered for a signal
// address (a bidirectional signal registers two; only the first is
// returned).
func (t *Topology) IndicesForSignal(addr SignalAddress) (int, bool) {
	idx := t.addrToIndices[addrKey{KindSignal, uint16(addr)}]
	if len(idx) == 0 {
		return 0, false
	}
	return idx[0], true
}

// IndicesForSensor returns every node index sharing a sensor/station
// address (one for a unidirectional sensor, two for a bidirectional one).
func (t *Topology) IndicesForSensor(addr SensorAddress) []int {
	out := append([]int(nil), t.addrToIndices[addrKey{KindSensor, uint16(addr)}]...)
	out = append(out, t.addrToIndices[addrKey{KindStation, uint16(addr)}]...)
	return out
}

// IndicesForSwitch returns every node index sharing a switch address.
func (t *Topology) IndicesForSwitch(addr SwitchAddress) []int {
	return t.addrToIndices[addrKey{KindSwitch, uint16(addr)}]
}

// IndicesForCrossing returns the two node indices of a crossing's tracks.
func (t *Topology) IndicesForCrossing(addr CrossingAddress) []int {
	return t.addrToIndices[addrKey{KindCross, uint16(addr)}]
}

// undirectedNeighbors returns every node reachable from index by one edge in
// either direction, plus — per §4.4 — a Cross node's direct link to its
// peer track.
func (t *Topology) undirectedNeighbors(index int) []int {
	var out []int
	for _, e := range t.outEdges[index] {
		out = append(out, e.To)
	}
	for _, e := range t.inEdges[index] {
		out = append(out, e.From)
	}
	if n, ok := t.Node(index); ok {
		if cv, ok := n.Variant.(CrossVariant); ok {
			out = append(out, cv.Peer)
		}
	}
	return out
}

// DiscoverBlock runs the undirected, single-sweep BFS of §4.4 from a signal
// node, stopping descent at any other signal. It returns the sensors/
// stations encountered (the block), the other signals encountered (the
// block's peer input signals), and any switches encountered (traversed like
// ordinary nodes, but reported separately so the interlocking knows which
// switches it must command before a grant, §4.9).
func (t *Topology) DiscoverBlock(signalIndex int) (sensors []int, peers []int, switches []int) {
	visited := map[int]bool{signalIndex: true}
	queue := []int{signalIndex}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, nb := range t.undirectedNeighbors(cur) {
			if visited[nb] {
				continue
			}
			visited[nb] = true
			node, ok := t.Node(nb)
			if !ok {
				continue
			}
			switch node.Kind() {
			case KindSignal:
				peers = append(peers, nb)
				// do not descend past another signal
			default:
				if node.IsSensorLike() {
					sensors = append(sensors, nb)
				}
				if node.Kind() == KindSwitch {
					switches = append(switches, nb)
				}
				queue = append(queue, nb)
			}
		}
	}
	return sensors, peers, switches
}

// NearestSignalAhead walks the graph forward (out-edges only) from a node
// to find the nearest Signal guarding the block the node is about to enter
// — used by reset_position (§4.10) to locate "the input signal of the
// block containing node": the block a stationary train must next request
// to keep moving is the one guarded by the next signal down its direction
// of travel, not the one it already passed.
func (t *Topology) NearestSignalAhead(from int) (int, bool) {
	visited := map[int]bool{from: true}
	queue := []int{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, e := range t.outEdges[cur] {
			if visited[e.To] {
				continue
			}
			visited[e.To] = true
			node, ok := t.Node(e.To)
			if !ok {
				continue
			}
			if node.Kind() == KindSignal {
				return e.To, true
			}
			queue = append(queue, e.To)
		}
	}
	return 0, false
}
