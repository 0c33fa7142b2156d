package signaling

// Kind distinguishes how a signal evaluates free_road in try_grant (§4.7).
type Kind int

const (
	// Block signals require only their own block_sensors to be free.
	Block Kind = iota
	// Path signals additionally require the requesting train's next
	// segment (§4.8) to be free.
	Path
	// IntelligentPath tries Path and falls back to Block on failure.
	IntelligentPath
)

func (k Kind) String() string {
	switch k {
	case Block:
		return "Block"
	case Path:
		return "Path"
	case IntelligentPath:
		return "IntelligentPath"
	default:
		return "Unknown"
	}
}
