// Command railctl runs the interlocking/train-control core as a standalone
// server: build (or load) a topology, initialize the signaling Network and
// advisory Engine, start a train Controller per running train, and serve
// the HTTP/websocket control surface. Shaped after the teacher's own
// cmd-wraps-Run convention (server.Run(sim, addr) called from main after
// the simulation is loaded).
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	log "gopkg.in/inconshreveable/log15.v2"

	"github.com/ts2/railctl/internal/advisory"
	"github.com/ts2/railctl/internal/bus"
	"github.com/ts2/railctl/internal/config"
	"github.com/ts2/railctl/internal/geometry"
	"github.com/ts2/railctl/internal/signaling"
	"github.com/ts2/railctl/internal/topology"
	"github.com/ts2/railctl/internal/train"
	"github.com/ts2/railctl/internal/transport"
	"github.com/ts2/railctl/server"
)

func main() {
	configPath := flag.String("config", "", "path to a railctl YAML config file; defaults built in if absent")
	flag.Parse()

	root := log.New()
	root.SetHandler(log.StreamHandler(os.Stdout, log.LogfmtFormat()))

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			root.Crit("failed to load config", "path", *configPath, "error", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	server.InitializeLogger(root)
	transport.InitializeLogger(root)

	topo, kinds, err := buildDemoTopology()
	if err != nil {
		root.Crit("failed to build topology", "error", err)
		os.Exit(1)
	}

	clk := clock.New()
	evtBus := bus.New()
	net := signaling.NewNetwork(topo, evtBus, clk, kinds, cfg.SensorGrace)

	registry := train.NewRegistry()
	net.SetRouteLookup(registry)

	planner := train.NewPlannerFromNetwork(net, registry)
	controller := train.NewController(1, net, planner, evtBus, clk).
		WithAcceleration(cfg.DefaultAcceleration).
		WithLookahead(cfg.Lookahead)
	registry.Add(controller)

	loop := transport.NewLoopbackTransport(64)
	connector := transport.NewConnector(net, evtBus, loop, loop)

	advEngine := advisory.NewEngine(advisory.NetworkSource{Net: net}, clk, cfg.AdvisoryStaleAfter, cfg.AdvisoryInterval)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go net.Run(ctx)
	go controller.Run(ctx)
	go connector.RunInbound(ctx)
	go connector.RunOutbound(ctx)
	go advisoryTicker(ctx, advEngine, cfg.AdvisoryInterval)

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		root.Info("shutting down")
		cancel()
		loop.Close()
	}()

	server.Run(net, registry, advEngine, evtBus, cfg.ListenAddr)
}

// advisoryTicker periodically recomputes the non-binding advisory Engine,
// the cmd-level equivalent of the teacher's metrics ticker goroutine
// (server/metrics.go's startMetricsTicker) but for suggestions instead of
// KPIs.
func advisoryTicker(ctx context.Context, adv *advisory.Engine, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			adv.RecomputeIfDue()
		}
	}
}

// buildDemoTopology assembles a small linear line: entry signal, approach
// sensor, middle signal, station, exit signal and a terminating buffer (no
// switch), enough to exercise
// the full request/grant/drive cycle without requiring a topology file
// format and loader, which SPEC_FULL.md leaves unspecified. Positions
// advance eastward so the A* planner's Manhattan heuristic is meaningful.
func buildDemoTopology() (*topology.Topology, map[topology.SignalAddress]signaling.Kind, error) {
	b := topology.NewBuilder()

	entrySignal, err := b.AddSignal(1, geometry.NewPosition(0, 0, 0, geometry.East))
	if err != nil {
		return nil, nil, err
	}
	approachSensor, err := b.AddSensor(1, geometry.NewPosition(10, 0, 0, geometry.East))
	if err != nil {
		return nil, nil, err
	}
	midSignal, err := b.AddSignal(2, geometry.NewPosition(20, 0, 0, geometry.East))
	if err != nil {
		return nil, nil, err
	}
	platformSensor, err := b.AddStation(2, geometry.NewPosition(30, 0, 0, geometry.East))
	if err != nil {
		return nil, nil, err
	}
	exitSignal, err := b.AddSignal(3, geometry.NewPosition(40, 0, 0, geometry.East))
	if err != nil {
		return nil, nil, err
	}
	buffer, err := b.AddBuffer(geometry.NewPosition(50, 0, 0, geometry.East))
	if err != nil {
		return nil, nil, err
	}

	rail := func(length int, from geometry.Position) []geometry.Rail {
		return []geometry.Rail{{Length: length, StartPosition: from, IncomingDirection: geometry.East}}
	}

	if err := b.Connect(entrySignal, approachSensor, rail(10, geometry.NewPosition(0, 0, 0, geometry.East))); err != nil {
		return nil, nil, err
	}
	if err := b.Connect(approachSensor, midSignal, rail(10, geometry.NewPosition(10, 0, 0, geometry.East))); err != nil {
		return nil, nil, err
	}
	if err := b.Connect(midSignal, platformSensor, rail(10, geometry.NewPosition(20, 0, 0, geometry.East))); err != nil {
		return nil, nil, err
	}
	if err := b.Connect(platformSensor, exitSignal, rail(10, geometry.NewPosition(30, 0, 0, geometry.East))); err != nil {
		return nil, nil, err
	}
	if err := b.Connect(exitSignal, buffer, rail(10, geometry.NewPosition(40, 0, 0, geometry.East))); err != nil {
		return nil, nil, err
	}

	kinds := map[topology.SignalAddress]signaling.Kind{
		1: signaling.Block,
		2: signaling.Path,
		3: signaling.Block,
	}

	topo, err := b.Build()
	if err != nil {
		return nil, nil, err
	}
	return topo, kinds, nil
}
