package hopper

import "fmt"

// Location is a block position in a named world.
type Location struct {
	World string
	X     int
	Y     int
	Z     int
}

func (l Location) String() string {
	return fmt.Sprintf("%s(%d,%d,%d)", l.World, l.X, l.Y, l.Z)
}

// Zero reports whether the location is unset.
func (l Location) Zero() bool { return l.World == "" }

// GameMode mirrors the host's player game modes. Anything that is not
// creative follows the survival lifecycle rules.
type GameMode int

const (
	ModeSurvival GameMode = iota
	ModeCreative
	ModeAdventure
	ModeSpectator
)

func (m GameMode) String() string {
	switch m {
	case ModeSurvival:
		return "survival"
	case ModeCreative:
		return "creative"
	case ModeAdventure:
		return "adventure"
	case ModeSpectator:
		return "spectator"
	default:
		return "unknown"
	}
}

// Creative reports whether the mode discards hopper history on break.
func (m GameMode) Creative() bool { return m == ModeCreative }

// Record is one filtered hopper: globally unique id, immutable owner,
// current placement and cached filter. The Loc field is meaningful only while
// Placed is true.
type Record struct {
	ID     string
	Owner  string
	Loc    Location
	Placed bool
	Filter []ItemStack
}

// Item returns the record's carryable form.
func (r *Record) Item(kind string) TaggedItem {
	return TaggedItem{Kind: kind, ID: r.ID, Owner: r.Owner}
}
