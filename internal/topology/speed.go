package topology

// SpeedTier orders the speed lattice: EmergencyStop < Stop < Drive(0) <
// Drive(1) < ... (§3).
type SpeedTier int

const (
	EmergencyStop SpeedTier = iota
	Stop
	DriveTier
)

// Speed is a value of the train speed lattice. Level is only meaningful
// when Tier == DriveTier, and is the step within the Drive tier (a stand-in
// for a throttle notch/velocity unit — §6 defaults address/speed widths to
// 8 bits).
type Speed struct {
	Tier  SpeedTier
	Level uint8
}

// Drive constructs a Drive(level) speed.
func Drive(level uint8) Speed { return Speed{Tier: DriveTier, Level: level} }

// Less reports whether s sits strictly below o in the lattice.
func (s Speed) Less(o Speed) bool {
	if s.Tier != o.Tier {
		return s.Tier < o.Tier
	}
	return s.Level < o.Level
}

// Equal reports lattice equality.
func (s Speed) Equal(o Speed) bool { return s.Tier == o.Tier && s.Level == o.Level }

// LessOrEqual reports s <= o.
func (s Speed) LessOrEqual(o Speed) bool { return s.Equal(o) || s.Less(o) }

// SaturatingAdd steps s towards Drive(max) by delta, never exceeding it.
// Stepping up from Stop/EmergencyStop lands on Drive(0) first.
func (s Speed) SaturatingAdd(delta uint8, max uint8) Speed {
	if s.Tier != DriveTier {
		s = Drive(0)
	}
	next := int(s.Level) + int(delta)
	if next > int(max) {
		next = int(max)
	}
	return Drive(uint8(next))
}

// ClampedSub steps s down by delta; underflowing below Drive(0) degrades to
// Stop rather than wrapping (§3).
func (s Speed) ClampedSub(delta uint8) Speed {
	if s.Tier != DriveTier {
		return Stop.speed()
	}
	if int(s.Level)-int(delta) < 0 {
		return Stop.speed()
	}
	return Drive(s.Level - delta)
}

func (t SpeedTier) speed() Speed { return Speed{Tier: t} }

func (s Speed) String() string {
	switch s.Tier {
	case EmergencyStop:
		return "EmergencyStop"
	case Stop:
		return "Stop"
	default:
		return "Drive"
	}
}
