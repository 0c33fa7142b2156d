// Package signaling implements the interlocking (C4): block discovery,
// fairness groups, and the per-signal request/grant FIFO protocol (§4.2,
// §4.4, §4.7-4.9).
package signaling

import (
	"time"

	"github.com/benbjohnson/clock"
	"github.com/ts2/railctl/internal/bus"
	"github.com/ts2/railctl/internal/resources"
	"github.com/ts2/railctl/internal/topology"
)

// Network is the initialized interlocking: one Signal per signal node,
// block/peer discovery already run, fairness groups formed, and the
// Sensor/Switch resources the signals and train controller share.
//
// Signal kind (Block/Path/IntelligentPath) is not part of the frozen
// topology — it is an operational choice supplied at initialization, mapped
// from SignalAddress, defaulting to Block when absent.
type Network struct {
	topo *topology.Topology
	bus  *bus.Bus

	sensors  map[int]*resources.Sensor
	switches map[int]*resources.Switch

	signalsByIndex map[int]*Signal
	signalsByAddr  map[topology.SignalAddress]*Signal

	routeLookup RouteLookup
}

// SetRouteLookup registers the train controller's route registry, consulted
// by Path/IntelligentPath signals' try_grant (§4.7/§4.8).
func (n *Network) SetRouteLookup(rl RouteLookup) { n.routeLookup = rl }

// NewNetwork discovers blocks and fairness groups for every signal in topo
// and constructs the shared Sensor/Switch resources (§4.1's build() calling
// initialize() on every signal).
func NewNetwork(topo *topology.Topology, b *bus.Bus, clk clock.Clock, kinds map[topology.SignalAddress]Kind, sensorGrace time.Duration) *Network {
	n := &Network{
		topo:           topo,
		bus:            b,
		sensors:        make(map[int]*resources.Sensor),
		switches:       make(map[int]*resources.Switch),
		signalsByIndex: make(map[int]*Signal),
		signalsByAddr:  make(map[topology.SignalAddress]*Signal),
	}

	for i := 0; i < topo.NodeCount(); i++ {
		node, _ := topo.Node(i)
		switch node.Kind() {
		case topology.KindSignal:
			sv := node.Variant.(topology.SignalVariant)
			kind := Block
			if k, ok := kinds[sv.Address]; ok {
				kind = k
			}
			s := &Signal{addr: sv.Address, node: i, kind: kind, net: n}
			n.signalsByIndex[i] = s
			n.signalsByAddr[sv.Address] = s
		case topology.KindSwitch:
			sv := node.Variant.(topology.SwitchVariant)
			sw, ok := n.switchByAddr(sv.Address)
			if !ok {
				sw = resources.NewSwitch(sv.Address, b)
			}
			n.switches[i] = sw
		}
		if node.IsSensorLike() {
			addr, _ := node.SensorAddress()
			sen, ok := n.sensorByAddr(addr)
			if !ok {
				sen = resources.NewSensor(addr, b, clk, sensorGrace)
			}
			n.sensors[i] = sen
		}
	}

	uf := newUnionFind()
	for i, s := range n.signalsByIndex {
		sensors, peers, switches := topo.DiscoverBlock(i)
		s.blockSensors = sensors
		s.peerInputSignals = peers
		s.blockSwitches = switches
		for _, p := range peers {
			uf.union(i, p)
		}
	}

	groups := make(map[int]*FairnessGroup)
	for i, s := range n.signalsByIndex {
		root := uf.find(i)
		g, ok := groups[root]
		if !ok {
			g = &FairnessGroup{leader: -1}
			groups[root] = g
		}
		s.group = g
	}
	// Elect each group's leader as the lowest signal address among members.
	for i, s := range n.signalsByIndex {
		root := uf.find(i)
		g := groups[root]
		if g.leader == -1 {
			g.leader = i
			continue
		}
		if leaderSig := n.signalsByIndex[g.leader]; leaderSig != nil && s.addr < leaderSig.addr {
			g.leader = i
		}
	}

	return n
}

func (n *Network) sensorByAddr(addr topology.SensorAddress) (*resources.Sensor, bool) {
	for _, idx := range n.topo.IndicesForSensor(addr) {
		if s, ok := n.sensors[idx]; ok {
			return s, true
		}
	}
	return nil, false
}

func (n *Network) switchByAddr(addr topology.SwitchAddress) (*resources.Switch, bool) {
	for _, idx := range n.topo.IndicesForSwitch(addr) {
		if s, ok := n.switches[idx]; ok {
			return s, true
		}
	}
	return nil, false
}

// Signal returns the Signal registered at addr.
func (n *Network) Signal(addr topology.SignalAddress) (*Signal, bool) {
	s, ok := n.signalsByAddr[addr]
	return s, ok
}

// SignalAt returns the Signal at a node index.
func (n *Network) SignalAt(index int) (*Signal, bool) {
	s, ok := n.signalsByIndex[index]
	return s, ok
}

// Sensor returns the Sensor resource at a node index.
func (n *Network) Sensor(index int) (*resources.Sensor, bool) {
	s, ok := n.sensors[index]
	return s, ok
}

// SensorByAddr returns the Sensor resource for a sensor/station address.
func (n *Network) SensorByAddr(addr topology.SensorAddress) (*resources.Sensor, bool) {
	return n.sensorByAddr(addr)
}

// Switch returns the Switch resource at a node index.
func (n *Network) Switch(index int) (*resources.Switch, bool) {
	s, ok := n.switches[index]
	return s, ok
}

// Topology returns the underlying frozen topology.
func (n *Network) Topology() *topology.Topology { return n.topo }

// Signals returns every signal in the network, in no particular order. Used
// by internal/advisory to scan for stale requesters and free-but-queued
// blocks.
func (n *Network) Signals() []*Signal {
	out := make([]*Signal, 0, len(n.signalsByIndex))
	for _, s := range n.signalsByIndex {
		out = append(out, s)
	}
	return out
}
