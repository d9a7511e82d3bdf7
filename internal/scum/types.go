// Package scum is the backup versioning engine. It tracks the games in a
// saved-games directory, decides when a write is a new save, and drives the
// backup store to produce contiguous, monotonically numbered snapshots.
//
// Two front ends feed the same engine: a filesystem watcher and a poller.
// Both reduce what they see to Change values; the versioning logic lives
// only in Registry.
package scum

import (
	"time"

	"github.com/XenonAtom/Dom6SaveScummer/internal/savefile"
)

// GameState is the lifecycle state of a game in the registry.
type GameState int

// Legal transitions: Absent → Bootstrapped → Tracking → Absent.
const (
	StateAbsent GameState = iota
	StateBootstrapped
	StateTracking
)

func (s GameState) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StateBootstrapped:
		return "bootstrapped"
	case StateTracking:
		return "tracking"
	default:
		return "unknown"
	}
}

// TrackedGame is a point-in-time copy of a tracked game's state.
type TrackedGame struct {
	Name string
	// Turn is the turn file the game currently produces.
	Turn savefile.TurnFile
	// LastWriteTime is the source modification time of the newest snapshot.
	LastWriteTime time.Time
	// HighestBackup is the highest snapshot number created so far.
	HighestBackup int
	State         GameState
}

// SaveEvent is a candidate save: a turn file of a game observed with a
// given modification time. Both observers produce it.
type SaveEvent struct {
	Game    string
	Turn    savefile.TurnFile
	Path    string
	ModTime time.Time
}

// ChangeKind discriminates Change values.
type ChangeKind int

const (
	// ChangeSave carries a SaveEvent.
	ChangeSave ChangeKind = iota
	// ChangeGameRemoved reports a game directory that disappeared.
	ChangeGameRemoved
	// ChangeListing carries a listing of the live game directories.
	ChangeListing
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeSave:
		return "save"
	case ChangeGameRemoved:
		return "game_removed"
	case ChangeListing:
		return "listing"
	default:
		return "unknown"
	}
}

// Change is what observers send to the engine.
type Change struct {
	Kind ChangeKind
	Save SaveEvent // ChangeSave
	Game string    // ChangeGameRemoved
	// Games is the live game set of a ChangeListing.
	Games []string
	// Bootstrap makes a listing add untracked games. Without it the listing
	// only prunes vanished games and checks tracked ones.
	Bootstrap bool
}
