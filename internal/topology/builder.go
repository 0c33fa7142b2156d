package topology

import (
	"sync"

	"github.com/katalvlaran/lvlath/core"
	"github.com/ts2/railctl/internal/geometry"
)

type builderEdge struct {
	from, to int
	rails    []geometry.Rail
}

// Builder accepts node-and-edge mutations and refuses structurally invalid
// joins; Build freezes it into a runtime Topology. A Builder must not be
// reused after Build (§4.1).
type Builder struct {
	mu sync.Mutex

	built bool
	nodes []Node
	edges []builderEdge

	outCount []int
	inCount  []int

	addrToIndices map[addrKey][]int
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{addrToIndices: make(map[addrKey][]int)}
}

func (b *Builder) addNode(v Variant) int {
	idx := len(b.nodes)
	b.nodes = append(b.nodes, Node{Index: idx, Variant: v})
	b.outCount = append(b.outCount, 0)
	b.inCount = append(b.inCount, 0)
	return idx
}

func (b *Builder) registerAddress(kind NodeKind, addr uint16, index int) error {
	key := addrKey{kind, addr}
	if existing, ok := b.addrToIndices[key]; ok && len(existing) >= 2 {
		return ErrDuplicateAddress
	}
	b.addrToIndices[key] = append(b.addrToIndices[key], index)
	return nil
}

// AddSignal adds a single-handle Signal node.
func (b *Builder) AddSignal(addr SignalAddress, pos geometry.Position) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.built {
		return 0, ErrAlreadyBuilt
	}
	if _, ok := b.addrToIndices[addrKey{KindSignal, uint16(addr)}]; ok {
		return 0, ErrDuplicateAddress
	}
	idx := b.addNode(SignalVariant{Address: addr, Position: pos})
	_ = b.registerAddress(KindSignal, uint16(addr), idx)
	return idx, nil
}

// AddSensor adds a single-handle Sensor node.
func (b *Builder) AddSensor(addr SensorAddress, pos geometry.Position) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.built {
		return 0, ErrAlreadyBuilt
	}
	if _, ok := b.addrToIndices[addrKey{KindSensor, uint16(addr)}]; ok {
		return 0, ErrDuplicateAddress
	}
	idx := b.addNode(SensorVariant{Address: addr, Position: pos})
	_ = b.registerAddress(KindSensor, uint16(addr), idx)
	return idx, nil
}

// AddStation adds a single-handle Station node (a Sensor marked as a
// stopping point).
func (b *Builder) AddStation(addr SensorAddress, pos geometry.Position) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.built {
		return 0, ErrAlreadyBuilt
	}
	if _, ok := b.addrToIndices[addrKey{KindStation, uint16(addr)}]; ok {
		return 0, ErrDuplicateAddress
	}
	idx := b.addNode(StationVariant{Address: addr, Position: pos})
	_ = b.registerAddress(KindStation, uint16(addr), idx)
	return idx, nil
}

// AddSwitch adds a single-handle Switch node of the given type. The default
// branch may be set later with SetSwitchDefaultDir, or left for Build to
// infer.
func (b *Builder) AddSwitch(addr SwitchAddress, pos geometry.Position, kind SwitchType) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.built {
		return 0, ErrAlreadyBuilt
	}
	if _, ok := b.addrToIndices[addrKey{KindSwitch, uint16(addr)}]; ok {
		return 0, ErrDuplicateAddress
	}
	idx := b.addNode(SwitchVariant{Address: addr, Position: pos, Type: kind, DefaultBranchNeighbor: -1})
	_ = b.registerAddress(KindSwitch, uint16(addr), idx)
	return idx, nil
}

// AddCrossing adds a crossing: two node handles representing its two
// independent tracks, tied together by address.
func (b *Builder) AddCrossing(addr CrossingAddress) (a, c int, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.built {
		return 0, 0, ErrAlreadyBuilt
	}
	if _, ok := b.addrToIndices[addrKey{KindCross, uint16(addr)}]; ok {
		return 0, 0, ErrDuplicateAddress
	}
	idxA := b.addNode(CrossVariant{Address: addr, Peer: -1})
	idxC := b.addNode(CrossVariant{Address: addr, Peer: idxA})
	b.nodes[idxA].Variant = CrossVariant{Address: addr, Peer: idxC}
	_ = b.registerAddress(KindCross, uint16(addr), idxA)
	_ = b.registerAddress(KindCross, uint16(addr), idxC)
	return idxA, idxC, nil
}

// AddBuffer adds a terminator node: no outgoing edges are ever legal.
func (b *Builder) AddBuffer(pos geometry.Position) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.built {
		return 0, ErrAlreadyBuilt
	}
	idx := b.addNode(BufferVariant{Position: pos})
	return idx, nil
}

// Bidirectional variants allocate two node handles sharing one address, one
// per direction of travel, per §3/§9 ("two node handles per bidirectional
// element").

func (b *Builder) AddSignalBidirectional(addr SignalAddress, posA, posB geometry.Position) (a, bIdx int, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.built {
		return 0, 0, ErrAlreadyBuilt
	}
	if _, ok := b.addrToIndices[addrKey{KindSignal, uint16(addr)}]; ok {
		return 0, 0, ErrDuplicateAddress
	}
	a = b.addNode(SignalVariant{Address: addr, Position: posA})
	bIdx = b.addNode(SignalVariant{Address: addr, Position: posB})
	_ = b.registerAddress(KindSignal, uint16(addr), a)
	_ = b.registerAddress(KindSignal, uint16(addr), bIdx)
	return a, bIdx, nil
}

func (b *Builder) AddSensorBidirectional(addr SensorAddress, posA, posB geometry.Position) (a, bIdx int, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.built {
		return 0, 0, ErrAlreadyBuilt
	}
	if _, ok := b.addrToIndices[addrKey{KindSensor, uint16(addr)}]; ok {
		return 0, 0, ErrDuplicateAddress
	}
	a = b.addNode(SensorVariant{Address: addr, Position: posA})
	bIdx = b.addNode(SensorVariant{Address: addr, Position: posB})
	_ = b.registerAddress(KindSensor, uint16(addr), a)
	_ = b.registerAddress(KindSensor, uint16(addr), bIdx)
	return a, bIdx, nil
}

func (b *Builder) AddSwitchBidirectional(addr SwitchAddress, posA, posB geometry.Position, kind SwitchType) (a, bIdx int, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.built {
		return 0, 0, ErrAlreadyBuilt
	}
	if _, ok := b.addrToIndices[addrKey{KindSwitch, uint16(addr)}]; ok {
		return 0, 0, ErrDuplicateAddress
	}
	a = b.addNode(SwitchVariant{Address: addr, Position: posA, Type: kind, DefaultBranchNeighbor: -1})
	bIdx = b.addNode(SwitchVariant{Address: addr, Position: posB, Type: kind, DefaultBranchNeighbor: -1})
	_ = b.registerAddress(KindSwitch, uint16(addr), a)
	_ = b.registerAddress(KindSwitch, uint16(addr), bIdx)
	return a, bIdx, nil
}

// maxOut/maxIn implement the per-kind neighbor-slot limits of §3.
func (b *Builder) maxOut(n Node) int {
	switch n.Kind() {
	case KindBuffer:
		return 0
	case KindSwitch:
		sw := n.Variant.(SwitchVariant)
		if sw.Type == OneInTwoOut {
			return 2
		}
		return 1
	default:
		return 1
	}
}

func (b *Builder) maxIn(n Node) int {
	switch n.Kind() {
	case KindSwitch:
		sw := n.Variant.(SwitchVariant)
		if sw.Type == TwoInOneOut {
			return 2
		}
		return 1
	default:
		return 1
	}
}

func (b *Builder) hasFreeOut(index int) bool {
	return b.outCount[index] < b.maxOut(b.nodes[index])
}

func (b *Builder) hasFreeIn(index int) bool {
	return b.inCount[index] < b.maxIn(b.nodes[index])
}

func (b *Builder) validIndex(index int) bool {
	return index >= 0 && index < len(b.nodes)
}

// Connect joins from->to with the given rail sequence. It fails (refusing
// with no mutation) if from has no free outgoing slot or to has no free
// incoming slot.
func (b *Builder) Connect(from, to int, rails []geometry.Rail) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connectLocked(from, to, rails)
}

func (b *Builder) connectLocked(from, to int, rails []geometry.Rail) error {
	if b.built {
		return ErrAlreadyBuilt
	}
	if !b.validIndex(from) || !b.validIndex(to) {
		return ErrUnknownNeighbor
	}
	if !b.hasFreeOut(from) || !b.hasFreeIn(to) {
		return ErrInvalidNeighborSlot
	}
	b.edges = append(b.edges, builderEdge{from: from, to: to, rails: rails})
	b.outCount[from]++
	b.inCount[to]++
	return nil
}

// ConnectBidirectional performs two directed connects atomically — a.out ->
// b.in, and b.out -> a.in — for a pair of bidirectional elements. If either
// leg would violate a slot invariant, neither is made.
func (b *Builder) ConnectBidirectional(aOut, aIn, bIn, bOut int, rails []geometry.Rail) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.built {
		return ErrAlreadyBuilt
	}
	if !b.validIndex(aOut) || !b.validIndex(aIn) || !b.validIndex(bIn) || !b.validIndex(bOut) {
		return ErrUnknownNeighbor
	}
	if !b.hasFreeOut(aOut) || !b.hasFreeIn(bIn) || !b.hasFreeOut(bOut) || !b.hasFreeIn(aIn) {
		return ErrInvalidNeighborSlot
	}
	if err := b.connectLocked(aOut, bIn, rails); err != nil {
		return err
	}
	// Reverse rails are walked in the opposite facing for the return leg.
	reversed := make([]geometry.Rail, len(rails))
	for i, r := range rails {
		reversed[len(rails)-1-i] = geometry.Rail{
			Length:            r.Length,
			StartPosition:     r.StartPosition,
			IncomingDirection: r.IncomingDirection.Opposite(),
		}
	}
	if err := b.connectLocked(bOut, aIn, reversed); err != nil {
		// Undo the first leg: pop it back off.
		b.edges = b.edges[:len(b.edges)-1]
		b.outCount[aOut]--
		b.inCount[bIn]--
		return err
	}
	return nil
}

// SetSwitchDefaultDir records which neighbor of a switch node is the
// "straight" branch.
func (b *Builder) SetSwitchDefaultDir(switchNode, neighbor int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.built {
		return ErrAlreadyBuilt
	}
	if !b.validIndex(switchNode) {
		return ErrUnknownNeighbor
	}
	sw, ok := b.nodes[switchNode].Variant.(SwitchVariant)
	if !ok {
		return ErrNotSwitch
	}
	sw.DefaultBranchNeighbor = neighbor
	b.nodes[switchNode].Variant = sw
	return nil
}

// SetSwitchDefaultDirBidirectional sets the default branch for both handles
// of a bidirectional switch in one call.
func (b *Builder) SetSwitchDefaultDirBidirectional(switchA, neighborA, switchB, neighborB int) error {
	if err := b.SetSwitchDefaultDir(switchA, neighborA); err != nil {
		return err
	}
	return b.SetSwitchDefaultDir(switchB, neighborB)
}

// RemoveEdge removes the first connected edge running from -> to
// (construction-time undo; there is no persistent edge identity before
// Build).
func (b *Builder) RemoveEdge(from, to int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.built {
		return ErrAlreadyBuilt
	}
	for i, e := range b.edges {
		if e.from == from && e.to == to {
			b.edges = append(b.edges[:i], b.edges[i+1:]...)
			b.outCount[from]--
			b.inCount[to]--
			return nil
		}
	}
	return ErrUnknownNeighbor
}

// RemoveNode clears a node that has no incident edges by replacing it with
// an unconnected Buffer placeholder at the same index, so other indices stay
// valid (construction-time undo only; Topology nodes never change after
// Build). The node's address is not unregistered.
func (b *Builder) RemoveNode(index int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.built {
		return ErrAlreadyBuilt
	}
	if !b.validIndex(index) {
		return ErrUnknownNeighbor
	}
	if b.outCount[index] != 0 || b.inCount[index] != 0 {
		return ErrInvalidNeighborSlot
	}
	b.nodes[index] = Node{Index: index, Variant: BufferVariant{}}
	return nil
}

// inferDefaultBranch fills in an unset default branch with the first
// neighbor on the switch's 2-side (incoming for 2-in/1-out, outgoing for
// 1-in/2-out), per §4.1.
func inferDefaultBranch(sw SwitchVariant, incoming, outgoing []int) SwitchVariant {
	if sw.DefaultBranchNeighbor >= 0 {
		return sw
	}
	if sw.Type == TwoInOneOut {
		if len(incoming) > 0 {
			sw.DefaultBranchNeighbor = incoming[0]
		}
	} else {
		if len(outgoing) > 0 {
			sw.DefaultBranchNeighbor = outgoing[0]
		}
	}
	return sw
}

// Build freezes the builder into a runtime Topology. The Builder must not
// be used again afterwards.
func (b *Builder) Build() (*Topology, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.built {
		return nil, ErrAlreadyBuilt
	}
	b.built = true

	g := core.NewGraph(core.WithDirected(true), core.WithMultiEdges(), core.WithWeighted())
	for i := range b.nodes {
		if err := g.AddVertex(vertexID(i)); err != nil {
			return nil, err
		}
	}

	outEdges := make(map[int][]Edge, len(b.nodes))
	inEdges := make(map[int][]Edge, len(b.nodes))
	edgesByID := make(map[string]Edge, len(b.edges))

	for _, be := range b.edges {
		weight := int64(geometry.RailsManhattanDistance(be.rails))
		id, err := g.AddEdge(vertexID(be.from), vertexID(be.to), weight)
		if err != nil {
			return nil, err
		}
		e := Edge{ID: id, From: be.from, To: be.to, Rails: be.rails}
		edgesByID[id] = e
		outEdges[be.from] = append(outEdges[be.from], e)
		inEdges[be.to] = append(inEdges[be.to], e)
	}

	// Infer unset switch default branches from the 2-side neighbors.
	for i, n := range b.nodes {
		sw, ok := n.Variant.(SwitchVariant)
		if !ok {
			continue
		}
		var inNeighbors, outNeighbors []int
		for _, e := range inEdges[i] {
			inNeighbors = append(inNeighbors, e.From)
		}
		for _, e := range outEdges[i] {
			outNeighbors = append(outNeighbors, e.To)
		}
		b.nodes[i].Variant = inferDefaultBranch(sw, inNeighbors, outNeighbors)
	}

	addrCopy := make(map[addrKey][]int, len(b.addrToIndices))
	for k, v := range b.addrToIndices {
		addrCopy[k] = append([]int(nil), v...)
	}

	return &Topology{
		graph:         g,
		nodes:         append([]Node(nil), b.nodes...),
		edges:         edgesByID,
		outEdges:      outEdges,
		inEdges:       inEdges,
		addrToIndices: addrCopy,
	}, nil
}
