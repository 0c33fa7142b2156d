// Package train implements the per-train controller (C5): route planning,
// speed ramping, sensor-triggered progression, lookahead block reservation,
// and the station timetable evaluator.
package train

import (
	"container/heap"
	"errors"

	"github.com/ts2/railctl/internal/geometry"
	"github.com/ts2/railctl/internal/resources"
	"github.com/ts2/railctl/internal/signaling"
	"github.com/ts2/railctl/internal/topology"
)

// ErrNoRoute is returned when no path connects start to destination.
var ErrNoRoute = errors.New("train: no route")

// occupancyView is the minimal query surface the planner needs over a
// sensor's live state; satisfied by *resources.Sensor, substitutable by a
// fake in tests.
type occupancyView interface {
	Status() resources.Status
	CurrentTrain() (topology.TrainAddress, bool)
}

// SpeedLookup resolves whether the train currently holding a sensor is
// stopped or moving (§4.5's node-cost table distinguishes the two). The
// Controller registry implements this.
type SpeedLookup interface {
	SpeedOf(train topology.TrainAddress) (topology.Speed, bool)
}

// Planner runs A* over a topology snapshot, with per-node cost driven by
// live occupancy rather than the graph's static edge weight alone (§4.5).
// No pack library's shortest-path routine exposes a per-call dynamic
// node-cost hook — lvlath's Dijkstra operates only over the frozen graph's
// static int64 edge weights — so this is implemented directly against
// container/heap, the standard idiomatic Go priority-queue pattern.
type Planner struct {
	topo    *topology.Topology
	sensors func(index int) (occupancyView, bool)
	speeds  SpeedLookup
}

// NewPlanner builds a Planner. sensorAt resolves a node index to its
// occupancy view (nil for non-sensor nodes); speeds resolves a train's
// current speed to distinguish a stopped sensor occupant from a moving one.
func NewPlanner(topo *topology.Topology, sensorAt func(index int) (occupancyView, bool), speeds SpeedLookup) *Planner {
	return &Planner{topo: topo, sensors: sensorAt, speeds: speeds}
}

// NewPlannerFromNetwork is the usual constructor: sensors come straight from
// a signaling.Network.
func NewPlannerFromNetwork(net *signaling.Network, speeds SpeedLookup) *Planner {
	return NewPlanner(net.Topology(), func(index int) (occupancyView, bool) {
		return net.Sensor(index)
	}, speeds)
}

// nodeCost implements §4.5's table.
func (p *Planner) nodeCost(index int) int {
	node, ok := p.topo.Node(index)
	if !ok {
		return 2
	}
	if node.Kind() == topology.KindStation {
		return 500
	}
	if !node.IsSensorLike() {
		return 2
	}
	sen, ok := p.sensors(index)
	if !ok {
		return 2
	}
	train, held := sen.CurrentTrain()
	if !held {
		return 2
	}
	if p.speeds != nil {
		if speed, ok := p.speeds.SpeedOf(train); ok {
			if speed.Tier == topology.DriveTier && speed.Level > 0 {
				return 27
			}
		}
	}
	return 100
}

func (p *Planner) heuristic(index, destination int) int {
	a, aok := p.positionOf(index)
	b, bok := p.positionOf(destination)
	if !aok || !bok {
		return 0
	}
	return geometry.ManhattanDistance(a, b)
}

func (p *Planner) positionOf(index int) (geometry.Position, bool) {
	node, ok := p.topo.Node(index)
	if !ok {
		return geometry.Position{}, false
	}
	return node.Position()
}

type pqItem struct {
	node  int
	f     int
	index int
}

type priorityQueue []*pqItem

func (q priorityQueue) Len() int            { return len(q) }
func (q priorityQueue) Less(i, j int) bool  { return q[i].f < q[j].f }
func (q priorityQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i]; q[i].index, q[j].index = i, j }
func (q *priorityQueue) Push(x interface{}) { item := x.(*pqItem); item.index = len(*q); *q = append(*q, item) }
func (q *priorityQueue) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return item
}

// Plan finds the lowest-cost route from start to destination (§4.5) and
// truncates it to its last driveable (sensor/station) node (invariant 6,
// §8).
func (p *Planner) Plan(start, destination int) (*Route, error) {
	if start == destination {
		if node, ok := p.topo.Node(start); ok && node.IsSensorLike() {
			return NewRoute([]int{start}).WithTopology(p.topo), nil
		}
		return NewRoute(nil).WithTopology(p.topo), nil
	}

	gScore := map[int]int{start: 0}
	cameFrom := map[int]int{}

	pq := &priorityQueue{{node: start, f: p.heuristic(start, destination)}}
	heap.Init(pq)
	visited := map[int]bool{}

	for pq.Len() > 0 {
		cur := heap.Pop(pq).(*pqItem)
		if visited[cur.node] {
			continue
		}
		if cur.node == destination {
			route := NewRoute(truncateToLastDriveable(p.topo, reconstruct(cameFrom, start, destination)))
			return route.WithTopology(p.topo), nil
		}
		visited[cur.node] = true

		for _, e := range p.topo.OutEdges(cur.node) {
			if visited[e.To] {
				continue
			}
			cost := e.ManhattanCost() + p.nodeCost(e.To)
			tentative := gScore[cur.node] + cost
			if g, ok := gScore[e.To]; ok && tentative >= g {
				continue
			}
			gScore[e.To] = tentative
			cameFrom[e.To] = cur.node
			heap.Push(pq, &pqItem{node: e.To, f: tentative + p.heuristic(e.To, destination)})
		}
	}

	return nil, ErrNoRoute
}

func reconstruct(cameFrom map[int]int, start, destination int) []int {
	path := []int{destination}
	cur := destination
	for cur != start {
		prev, ok := cameFrom[cur]
		if !ok {
			break
		}
		path = append(path, prev)
		cur = prev
	}
	// reverse
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// truncateToLastDriveable drops every trailing node that is not a sensor or
// station: a train can only stop on a driveable node (§4.5/invariant 6).
func truncateToLastDriveable(topo *topology.Topology, path []int) []int {
	for len(path) > 0 {
		node, ok := topo.Node(path[len(path)-1])
		if ok && node.IsSensorLike() {
			break
		}
		path = path[:len(path)-1]
	}
	return path
}
