package signaling

import (
	"sync"

	"github.com/ts2/railctl/internal/bus"
	"github.com/ts2/railctl/internal/resources"
	"github.com/ts2/railctl/internal/topology"
)

// Signal is one signal's request/grant state machine (§3 Signal state,
// §4.7). All fields are guarded by mu except net and the immutable
// addr/node/kind/peerInputSignals/blockSensors/group set once at
// initialize() time.
type Signal struct {
	mu sync.Mutex

	addr topology.SignalAddress
	node int
	kind Kind
	net  *Network

	blockSensors     []int
	blockSwitches    []int
	peerInputSignals []int
	group            *FairnessGroup

	status            resources.Status
	grantedTrains     []topology.TrainAddress
	pendingRequesters []topology.TrainAddress
}

// Address returns the signal's address.
func (s *Signal) Address() topology.SignalAddress { return s.addr }

// NodeIndex returns the signal's node index in the frozen topology, used to
// correlate a TrainGranted bus event back to a Route entry.
func (s *Signal) NodeIndex() int { return s.node }

// Kind returns the signal's evaluation mode.
func (s *Signal) Kind() Kind { return s.kind }

// BlockSensors returns the sensor/station node indices of this signal's
// block (§4.4).
func (s *Signal) BlockSensors() []int {
	out := make([]int, len(s.blockSensors))
	copy(out, s.blockSensors)
	return out
}

// PeerInputSignals returns the other signals entering the same block.
func (s *Signal) PeerInputSignals() []int {
	out := make([]int, len(s.peerInputSignals))
	copy(out, s.peerInputSignals)
	return out
}

// Status returns the signal's own aggregate status, maintained by
// TriggerUpdate (observability/aspect projection only — grant logic
// consults sensor status directly, not this field; see SPEC_FULL.md's
// recorded open-question resolution).
func (s *Signal) Status() resources.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// TriggerUpdate folds an incoming Reserved/Occupied cascade into the
// signal's own status via the monotone lattice join (§4.7).
func (s *Signal) TriggerUpdate(trigger resources.Status) {
	s.mu.Lock()
	s.status = resources.Join(s.status, trigger)
	s.mu.Unlock()
}

// GrantedTrains returns the trains currently holding a grant from this
// signal (normally at most one; see invariant 1 of §8).
func (s *Signal) GrantedTrains() []topology.TrainAddress {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]topology.TrainAddress, len(s.grantedTrains))
	copy(out, s.grantedTrains)
	return out
}

// PendingRequesters returns the train addresses queued on this signal, in
// FIFO order (head first).
func (s *Signal) PendingRequesters() []topology.TrainAddress {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]topology.TrainAddress, len(s.pendingRequesters))
	copy(out, s.pendingRequesters)
	return out
}

// RequestBlock appends train to pending_requesters and attempts a grant
// (§4.7). Idempotent on (S,t): already-queued or already-granted trains are
// not re-enqueued.
func (s *Signal) RequestBlock(train topology.TrainAddress) {
	s.mu.Lock()
	for _, t := range s.pendingRequesters {
		if t == train {
			s.mu.Unlock()
			return
		}
	}
	for _, t := range s.grantedTrains {
		if t == train {
			s.mu.Unlock()
			return
		}
	}
	s.pendingRequesters = append(s.pendingRequesters, train)
	s.mu.Unlock()

	s.TryGrant()
}

// Update is called once granted_trains becomes empty (the train has left
// the block) to serve the next requester (§4.7).
func (s *Signal) Update() {
	s.TryGrant()
}

// TryGrant evaluates the head of pending_requesters against free_road and,
// on success, commits the grant (§4.7). It serializes with every peer in
// the same fairness group.
func (s *Signal) TryGrant() {
	s.group.Lock()
	defer s.group.Unlock()

	s.mu.Lock()
	if len(s.pendingRequesters) == 0 {
		s.mu.Unlock()
		return
	}
	candidate := s.pendingRequesters[0]
	s.mu.Unlock()

	freeRoad, ok := s.computeFreeRoad(candidate)
	if !ok {
		return
	}

	s.mu.Lock()
	// Re-check head in case of a race between the unlock above and here;
	// pending_requesters is only mutated under s.mu so this is safe.
	if len(s.pendingRequesters) == 0 || s.pendingRequesters[0] != candidate {
		s.mu.Unlock()
		return
	}
	s.pendingRequesters = s.pendingRequesters[1:]
	s.status = resources.Reserved
	s.grantedTrains = append(s.grantedTrains, candidate)
	s.mu.Unlock()

	for _, idx := range freeRoad {
		if sen, ok := s.net.Sensor(idx); ok {
			sen.Block(candidate)
		}
	}
	s.commandSwitches(s.switchPathFor(candidate, freeRoad))

	s.net.bus.Publish(bus.Event{Kind: bus.TrainGranted, Signal: s.addr, Train: candidate})
}

// computeFreeRoad implements the per-kind free_road test of §4.7 step 2.
func (s *Signal) computeFreeRoad(train topology.TrainAddress) ([]int, bool) {
	if ok := s.blockFree(); !ok {
		return nil, false
	}

	switch s.kind {
	case Block:
		return s.blockSensors, true
	case Path:
		return s.pathFreeRoad(train)
	case IntelligentPath:
		if road, ok := s.pathFreeRoad(train); ok {
			return road, true
		}
		return s.blockSensors, true
	default:
		return s.blockSensors, true
	}
}

// switchPathFor widens freeRoad with the granted train's actual route
// segment, when one is registered, so commandSwitches can tell which branch
// of a fanning switch the train will really take (§4.9 needs "the path", not
// just the set of sensors it must keep clear, which is all computeFreeRoad
// produces for a Block-kind grant). Without a registered route this falls
// back to freeRoad alone — switches not distinguishable from that default
// to the safer non-default (Curved) branch; see DESIGN.md.
func (s *Signal) switchPathFor(train topology.TrainAddress, freeRoad []int) []int {
	path := append([]int(nil), freeRoad...)
	if s.net.routeLookup == nil {
		return path
	}
	view, ok := s.net.routeLookup.RouteFor(train)
	if !ok {
		return path
	}
	segment, ok := view.NextSegment(s.node)
	if !ok {
		return path
	}
	return append(path, segment...)
}

// blockFree reports whether every sensor in block_sensors is Free or
// PathFree — the Block-kind condition, also required as a baseline by Path
// and IntelligentPath.
func (s *Signal) blockFree() bool {
	for _, idx := range s.blockSensors {
		sen, ok := s.net.Sensor(idx)
		if !ok {
			continue // missing lookup: transparent (§7)
		}
		st := sen.Status()
		if st != resources.Free && st != resources.PathFree {
			return false
		}
	}
	return true
}

// pathFreeRoad implements Path-mode's additional requirement: the train's
// next segment (§4.8) must also be free.
func (s *Signal) pathFreeRoad(train topology.TrainAddress) ([]int, bool) {
	if s.net.routeLookup == nil {
		return nil, false
	}
	view, ok := s.net.routeLookup.RouteFor(train)
	if !ok {
		return nil, false
	}
	segment, ok := view.NextSegment(s.node)
	if !ok {
		return nil, false
	}
	if !s.pathFree(segment, false) {
		return nil, false
	}

	road := append([]int(nil), s.blockSensors...)
	for _, idx := range segment {
		if node, ok := s.net.topo.Node(idx); ok && node.IsSensorLike() {
			road = append(road, idx)
		}
	}
	return road, true
}

// pathFree walks a route segment (§4.8): a Signal node must be Free or
// ignoreSignal; a Sensor/Station node must be Free; anything else
// (switches, crossings) is transparent, and a missing resource lookup is
// treated as transparent (§7).
func (s *Signal) pathFree(segment []int, ignoreSignal bool) bool {
	for _, idx := range segment {
		node, ok := s.net.topo.Node(idx)
		if !ok {
			continue
		}
		switch {
		case node.Kind() == topology.KindSignal:
			peer, ok := s.net.SignalAt(idx)
			if !ok {
				continue
			}
			if peer.Status() != resources.Free && !ignoreSignal {
				return false
			}
		case node.IsSensorLike():
			sen, ok := s.net.Sensor(idx)
			if !ok {
				continue
			}
			if sen.Status() != resources.Free {
				return false
			}
		}
	}
	return true
}

// commandSwitches derives and issues the branch command for every switch in
// this signal's block (§4.9): straight if the free road enters/leaves the
// switch via its default_branch neighbor, curved otherwise.
func (s *Signal) commandSwitches(freeRoad []int) {
	roadSet := make(map[int]bool, len(freeRoad))
	for _, idx := range freeRoad {
		roadSet[idx] = true
	}

	for _, idx := range s.blockSwitches {
		node, ok := s.net.topo.Node(idx)
		if !ok {
			continue
		}
		sw, ok := s.net.Switch(idx)
		if !ok {
			continue
		}
		sv := node.Variant.(topology.SwitchVariant)

		branch := topology.Curved
		if roadSet[sv.DefaultBranchNeighbor] {
			branch = topology.Straight
		}
		sw.Command(branch)
	}
}
