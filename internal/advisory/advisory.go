// Package advisory implements the non-binding suggestion engine the
// SPEC_FULL.md "Advisory/suggestion engine" supplemental feature calls for:
// it watches interlocking state for stale pending requesters and blocks
// that are free with a nonempty queue, and emits Suggestion values a
// dashboard can surface. It is adapted from the teacher's
// simulation/suggestions.go (SuggestionEngine, RecomputeIfDue, reject-until
// semantics) to railctl's signal/sensor/train domain. It never calls
// RequestBlock/TryGrant itself — no Non-goal from spec.md §1 ("no attempt
// at optimal global scheduling") is touched by surfacing queue health.
package advisory

import (
	"fmt"
	"sort"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/ts2/railctl/internal/resources"
	"github.com/ts2/railctl/internal/topology"
)

// Kind categorizes a Suggestion, matching the teacher's SuggestionKind
// string-enum convention.
type Kind string

const (
	KindStaleRequester  Kind = "STALE_PENDING_REQUESTER"
	KindFreeBlockQueued Kind = "FREE_BLOCK_WITH_QUEUE"
)

// Suggestion expresses a recommendation with an explanation, mirroring the
// teacher's Suggestion{ID,Kind,Title,Reason,Score} shape without the
// actionable Actions field: railctl's interlocking has no client-triggerable
// "activate route" analogue, since blocks are already served by the FIFO
// scheduler the moment they free up.
type Suggestion struct {
	ID     string  `json:"id"`
	Kind   Kind    `json:"kind"`
	Title  string  `json:"title"`
	Reason string  `json:"reason"`
	Score  float64 `json:"score"`
}

// Snapshot is a timestamped batch of suggestions, the railctl analogue of
// the teacher's Suggestions wrapper.
type Snapshot struct {
	Items       []Suggestion `json:"items"`
	GeneratedAt time.Time    `json:"generatedAt"`
}

// SignalView is the narrow query surface the engine needs from a
// signaling.Signal, so it can be exercised against fakes in tests without
// standing up a full Network.
type SignalView interface {
	Address() topology.SignalAddress
	BlockSensors() []int
	GrantedTrains() []topology.TrainAddress
	PendingRequesters() []topology.TrainAddress
}

// Source enumerates the signals the engine should inspect, and resolves a
// sensor node's live status. *signaling.Network satisfies this via the
// adapter in network_adapter.go.
type Source interface {
	Signals() []SignalView
	SensorStatus(node int) (resources.Status, bool)
}

// Engine periodically recomputes Suggestion snapshots over a Source,
// filtering out anything the operator has rejected-until a later time
// (teacher's rejectedUntil map).
type Engine struct {
	src   Source
	clock clock.Clock

	staleAfter time.Duration
	maxItems   int

	lastComputedAt time.Time
	interval       time.Duration

	rejectedUntil map[string]time.Time
	waitingSince  map[waitingKey]time.Time

	current Snapshot
}

type waitingKey struct {
	signal topology.SignalAddress
	train  topology.TrainAddress
}

// NewEngine constructs an Engine over src. staleAfter is how long a train
// may sit at the head of pending_requesters before KindStaleRequester fires;
// interval is the minimum gap between RecomputeIfDue recomputations.
func NewEngine(src Source, clk clock.Clock, staleAfter, interval time.Duration) *Engine {
	return &Engine{
		src:           src,
		clock:         clk,
		staleAfter:    staleAfter,
		maxItems:      50,
		interval:      interval,
		rejectedUntil: make(map[string]time.Time),
		waitingSince:  make(map[waitingKey]time.Time),
	}
}

// Current returns the most recently computed snapshot.
func (e *Engine) Current() Snapshot { return e.current }

// RecomputeIfDue recomputes the snapshot if the interval has elapsed since
// the last computation, returning whether it did.
func (e *Engine) RecomputeIfDue() bool {
	now := e.clock.Now()
	if !e.lastComputedAt.IsZero() && now.Sub(e.lastComputedAt) < e.interval {
		return false
	}
	e.Recompute()
	return true
}

// Recompute computes a fresh snapshot unconditionally.
func (e *Engine) Recompute() {
	now := e.clock.Now()
	e.lastComputedAt = now

	candidates := e.computeCandidates(now)
	filtered := candidates[:0:0]
	for _, s := range candidates {
		if until, ok := e.rejectedUntil[s.ID]; ok && now.Before(until) {
			continue
		}
		filtered = append(filtered, s)
	}
	sort.Slice(filtered, func(i, j int) bool { return filtered[i].Score > filtered[j].Score })
	if len(filtered) > e.maxItems {
		filtered = filtered[:e.maxItems]
	}
	e.current = Snapshot{Items: filtered, GeneratedAt: now}
}

func (e *Engine) computeCandidates(now time.Time) []Suggestion {
	var out []Suggestion
	seen := make(map[waitingKey]bool)

	for _, sig := range e.src.Signals() {
		pending := sig.PendingRequesters()
		granted := sig.GrantedTrains()

		if len(pending) > 0 {
			head := pending[0]
			key := waitingKey{signal: sig.Address(), train: head}
			seen[key] = true
			since, ok := e.waitingSince[key]
			if !ok {
				since = now
				e.waitingSince[key] = since
			}
			waited := now.Sub(since)
			if waited >= e.staleAfter {
				id := fmt.Sprintf("%s:%d:%d", KindStaleRequester, sig.Address(), head)
				out = append(out, Suggestion{
					ID:     id,
					Kind:   KindStaleRequester,
					Title:  fmt.Sprintf("Train %d has waited %s for signal %d", head, waited.Round(time.Second), sig.Address()),
					Reason: "Head of the FIFO queue has not been granted within the stale threshold.",
					Score:  waited.Seconds(),
				})
			}
		}

		if len(granted) == 0 && len(pending) > 0 && e.blockFree(sig) {
			id := fmt.Sprintf("%s:%d", KindFreeBlockQueued, sig.Address())
			out = append(out, Suggestion{
				ID:     id,
				Kind:   KindFreeBlockQueued,
				Title:  fmt.Sprintf("Signal %d's block is free with %d requester(s) queued", sig.Address(), len(pending)),
				Reason: "Every sensor in the block reports Free/PathFree but no grant has been issued yet; the fairness group may be contended.",
				Score:  float64(len(pending)) * 10,
			})
		}
	}

	for key := range e.waitingSince {
		if !seen[key] {
			delete(e.waitingSince, key)
		}
	}

	return out
}

func (e *Engine) blockFree(sig SignalView) bool {
	for _, node := range sig.BlockSensors() {
		st, ok := e.src.SensorStatus(node)
		if !ok {
			continue
		}
		if st != resources.Free && st != resources.PathFree {
			return false
		}
	}
	return true
}

// Reject suppresses a suggestion ID for the given duration (teacher's
// RejectUntil/Reject pair collapsed into one call since railctl has no
// separate "minutes" HTTP param convention to preserve).
func (e *Engine) Reject(id string, after time.Duration) {
	if after <= 0 {
		after = 5 * time.Minute
	}
	e.rejectedUntil[id] = e.clock.Now().Add(after)
}
