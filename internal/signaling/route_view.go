package signaling

import "github.com/ts2/railctl/internal/topology"

// RouteView is the narrow, consumer-defined view a Path-mode signal needs
// into a requesting train's planned route (§4.8): just enough to find S's
// position in the route and walk the segment up to the next signal. Defined
// here rather than importing internal/train's concrete Route type, so that
// package dependency stays one-directional (train depends on signaling,
// not the reverse).
type RouteView interface {
	// NextSegment returns the ordered node indices from signalIndex
	// (exclusive) to the next Signal node (inclusive) or the route's end,
	// and whether signalIndex appears in the route at all. A false second
	// return means the route does not pass through this signal, and the
	// caller should fail Path-mode evaluation (triggering IntelligentPath's
	// fallback to Block).
	NextSegment(signalIndex int) (segment []int, ok bool)
}

// RouteLookup resolves the RouteView a Path-mode try_grant needs for
// whichever train is at the head of pending_requesters — which may not be
// the train that most recently called request_block, since try_grant is
// re-run by update() once the block frees up. The train controller
// registers itself as the RouteLookup for a Network (§4.10 owns routes, not
// signaling).
type RouteLookup interface {
	RouteFor(train topology.TrainAddress) (RouteView, bool)
}
