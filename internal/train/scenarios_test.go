package train

import (
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/ts2/railctl/internal/bus"
	"github.com/ts2/railctl/internal/resources"
	"github.com/ts2/railctl/internal/topology"
)

// TestScenarios covers §8's remaining numbered scenarios, narrated with
// Convey/So the same way internal/signaling's TestScenarios covers the
// first four.
func TestScenarios(t *testing.T) {
	Convey("Scenario 5: EmergencyStop preempts an in-flight ramp", t, func() {
		c, _, mock := newRampController(t, 1) // slow ramp so it's still in flight

		c.SetSpeed(topology.Drive(100))
		mock.Add(rampTickInterval)

		Convey("the ramp is underway before the stop is issued", func() {
			var level uint8
			for i := 0; i < 50 && level == 0; i++ {
				level = c.LiveSpeed().Level
				if level == 0 {
					time.Sleep(time.Millisecond)
				}
			}
			So(level, ShouldBeGreaterThan, 0)
		})

		Convey("EmergencyStop applies immediately, with no further ramping", func() {
			c.SetSpeed(topology.Speed{Tier: topology.EmergencyStop})
			So(c.LiveSpeed(), ShouldResemble, topology.Speed{Tier: topology.EmergencyStop})
		})
	})

	Convey("Scenario 6: the route planner prefers a block a train is already moving through", t, func() {
		net, idx, _, _ := newLinearNetwork(t)

		sen1, _ := net.Sensor(idx["sen1"])
		sen1.Block(42)
		sen1.SetLevel(bus.LevelOccupied)

		Convey("a moving occupant costs less than a stopped one", func() {
			speeds := fakeSpeeds{42: topology.Drive(10)}
			planner := NewPlannerFromNetwork(net, speeds)
			movingCost := planner.nodeCost(idx["sen1"])
			So(movingCost, ShouldEqual, 27)

			speeds[42] = topology.Speed{Tier: topology.Stop}
			stoppedCost := planner.nodeCost(idx["sen1"])
			So(stoppedCost, ShouldEqual, 100)
			So(movingCost, ShouldBeLessThan, stoppedCost)
		})
	})

	Convey("Scenario 7: a sensor's grace timer is cancelled by re-occupation", t, func() {
		net, idx, _, mock := newLinearNetwork(t)
		sen1, _ := net.Sensor(idx["sen1"])

		So(sen1.Block(2), ShouldBeTrue)
		sen1.SetLevel(bus.LevelOccupied)
		sen1.SetLevel(bus.LevelFree)

		Convey("the sensor holds Reserved during the grace window, not Free", func() {
			So(sen1.Status(), ShouldEqual, resources.Reserved)
		})

		Convey("re-occupying before the grace window elapses keeps it held", func() {
			sen1.SetLevel(bus.LevelOccupied)
			mock.Add(time.Second)
			So(sen1.Wait(), ShouldBeNil)
			So(sen1.Status(), ShouldEqual, resources.Occupied)
		})
	})
}
