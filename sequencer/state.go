package sequencer

import "strings"

// State is the lifecycle state of a performance
type State int

const (
	Stopped State = iota
	Paused
	Running
)

func (s State) String() string {
	switch s {
	case Paused:
		return "paused"
	case Running:
		return "running"
	default:
		return "stopped"
	}
}

// ParseState maps a state name to a State
func ParseState(name string) (State, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "stopped":
		return Stopped, true
	case "paused":
		return Paused, true
	case "running":
		return Running, true
	}
	return Stopped, false
}

// NoKey marks that the performer holds no key
const NoKey = -1

// Cursor tracks the performer through the segment list
type Cursor struct {
	Current int // segment sounding, -1 before the first note-on
	Next    int // segment the next note-on starts
	HeldKey int // performer key held down, NoKey if none
}

func newCursor() Cursor {
	return Cursor{Current: -1, Next: 0, HeldKey: NoKey}
}
