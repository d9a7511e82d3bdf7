package scum

import (
	"sync"
	"time"
)

// DefaultTolerance absorbs timestamp resolution noise between the original
// write and the copy of it.
const DefaultTolerance = time.Second

type ledgerKey struct {
	game string
	turn string
}

// saveLedger remembers, per (game, turn file), the source modification time
// of the last accepted save. A new observation counts as a new save only if
// it is later than that time plus the tolerance.
type saveLedger struct {
	mu        sync.Mutex
	accepted  map[ledgerKey]time.Time
	tolerance time.Duration
}

func newSaveLedger(tolerance time.Duration) *saveLedger {
	if tolerance < 0 {
		tolerance = 0
	}

	return &saveLedger{
		accepted:  make(map[ledgerKey]time.Time),
		tolerance: tolerance,
	}
}

// lookup returns the last accepted time for a turn file of a game.
func (l *saveLedger) lookup(game, turn string) (time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	t, ok := l.accepted[ledgerKey{game, turn}]

	return t, ok
}

// isNewer reports whether modTime is a new save relative to last.
func (l *saveLedger) isNewer(last, modTime time.Time) bool {
	return modTime.After(last.Add(l.tolerance))
}

func (l *saveLedger) record(game, turn string, modTime time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.accepted[ledgerKey{game, turn}] = modTime
}

// forget drops every entry of a game.
func (l *saveLedger) forget(game string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for k := range l.accepted {
		if k.game == game {
			delete(l.accepted, k)
		}
	}
}
