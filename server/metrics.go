package server

import (
	"sync"
	"time"

	"github.com/ts2/railctl/internal/advisory"
	"github.com/ts2/railctl/internal/bus"
	"github.com/ts2/railctl/internal/resources"
	"github.com/ts2/railctl/internal/signaling"
)

// Defaults/tuning for the realtime KPIs. Grounded on the teacher's
// metrics.go rolling-window constants, with the on-time-performance windows
// replaced by interlocking-relevant ones: block utilization and grant
// throughput rather than timetable adherence, since railctl has no
// scheduled service times (§9 Non-goals).
const (
	defaultThroughputWindow = 60 * time.Minute
	snapshotInterval        = 60 * time.Second
	maxSnapshots            = 1440
)

type kpiSnapshot struct {
	ts time.Time

	blockUtilization float64 // % of sensor/station nodes Occupied
	openRequests     int     // sum of pending_requesters across every signal
	grantsPerMinute  float64 // grant throughput over the last window
	advisoryOpen     int     // live advisory.Engine suggestion count
}

type grantEvent struct{ ts time.Time }

type metricsState struct {
	mu sync.RWMutex

	grants    []grantEvent
	snapshots []kpiSnapshot
}

var metrics = &metricsState{}

// updateMetrics folds a bus event into the rolling counters. Only
// TrainGranted contributes directly; utilization and open-request counts
// are sampled from the network on each snapshot tick instead, since they
// are level-valued (not edge-triggered) quantities.
func updateMetrics(e bus.Event) {
	if e.Kind != bus.TrainGranted {
		return
	}
	metrics.mu.Lock()
	metrics.grants = append(metrics.grants, grantEvent{ts: time.Now().UTC()})
	trimGrantsLocked()
	metrics.mu.Unlock()
}

func trimGrantsLocked() {
	cutoff := time.Now().UTC().Add(-defaultThroughputWindow)
	i := 0
	for ; i < len(metrics.grants); i++ {
		if metrics.grants[i].ts.After(cutoff) {
			break
		}
	}
	if i > 0 {
		metrics.grants = append([]grantEvent{}, metrics.grants[i:]...)
	}
}

// takeSnapshot samples the current network state and records a kpiSnapshot.
func takeSnapshot(net *signaling.Network, advisoryOpen int) {
	occupied, total := 0, 0
	topo := net.Topology()
	for i := 0; i < topo.NodeCount(); i++ {
		node, ok := topo.Node(i)
		if !ok || !node.IsSensorLike() {
			continue
		}
		sen, ok := net.Sensor(i)
		if !ok {
			continue
		}
		total++
		if sen.Status() == resources.Occupied {
			occupied++
		}
	}
	util := 0.0
	if total > 0 {
		util = float64(occupied) * 100.0 / float64(total)
	}

	openRequests := 0
	for _, sig := range net.Signals() {
		openRequests += len(sig.PendingRequesters())
	}

	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	trimGrantsLocked()
	gpm := float64(len(metrics.grants)) / defaultThroughputWindow.Minutes()

	snap := kpiSnapshot{
		ts:               time.Now().UTC(),
		blockUtilization: util,
		openRequests:     openRequests,
		grantsPerMinute:  gpm,
		advisoryOpen:     advisoryOpen,
	}
	metrics.snapshots = append(metrics.snapshots, snap)
	if len(metrics.snapshots) > maxSnapshots {
		metrics.snapshots = metrics.snapshots[len(metrics.snapshots)-maxSnapshots:]
	}
}

func startMetricsTicker(net *signaling.Network, adv *advisory.Engine) {
	go func() {
		ticker := time.NewTicker(snapshotInterval)
		defer ticker.Stop()
		for range ticker.C {
			open := 0
			if adv != nil {
				open = len(adv.Current().Items)
			}
			takeSnapshot(net, open)
		}
	}()
}

// aggregateKPIs averages every snapshot within rangeDur, and reports a
// trend as the delta between the most-recent decile and the decile before
// it (same shape as the teacher's metrics.go aggregateKPIs).
func aggregateKPIs(rangeDur time.Duration) (kpiSnapshot, kpiSnapshot) {
	metrics.mu.RLock()
	defer metrics.mu.RUnlock()
	if len(metrics.snapshots) == 0 {
		return kpiSnapshot{ts: time.Now().UTC()}, kpiSnapshot{}
	}
	cutoff := time.Now().UTC().Add(-rangeDur)
	var agg kpiSnapshot
	count := 0
	for _, s := range metrics.snapshots {
		if s.ts.Before(cutoff) {
			continue
		}
		agg.blockUtilization += s.blockUtilization
		agg.openRequests += s.openRequests
		agg.grantsPerMinute += s.grantsPerMinute
		agg.advisoryOpen += s.advisoryOpen
		count++
	}
	if count > 0 {
		agg.blockUtilization /= float64(count)
		agg.grantsPerMinute /= float64(count)
		agg.openRequests /= count
		agg.advisoryOpen /= count
	}
	if len(metrics.snapshots) < 10 {
		return agg, kpiSnapshot{}
	}
	n := len(metrics.snapshots)
	w := n / 10
	if w < 1 {
		w = 1
	}
	cur := averageSlice(metrics.snapshots[n-w:])
	prevStart := n - 2*w
	if prevStart < 0 {
		prevStart = 0
	}
	prev := averageSlice(metrics.snapshots[prevStart : n-w])
	trend := kpiSnapshot{
		blockUtilization: cur.blockUtilization - prev.blockUtilization,
		openRequests:     cur.openRequests - prev.openRequests,
		grantsPerMinute:  cur.grantsPerMinute - prev.grantsPerMinute,
		advisoryOpen:     cur.advisoryOpen - prev.advisoryOpen,
	}
	return agg, trend
}

func averageSlice(ss []kpiSnapshot) kpiSnapshot {
	var a kpiSnapshot
	if len(ss) == 0 {
		return a
	}
	for _, s := range ss {
		a.blockUtilization += s.blockUtilization
		a.openRequests += s.openRequests
		a.grantsPerMinute += s.grantsPerMinute
		a.advisoryOpen += s.advisoryOpen
	}
	a.blockUtilization /= float64(len(ss))
	a.grantsPerMinute /= float64(len(ss))
	a.openRequests /= len(ss)
	a.advisoryOpen /= len(ss)
	return a
}
