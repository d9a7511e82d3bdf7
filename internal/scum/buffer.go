package scum

import (
	"context"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"
)

// DefaultWatchDebounce is how long a turn file must go without a write
// notification before it is handed to the registry.
const DefaultWatchDebounce = 2 * time.Second

// pendingSave is a turn file that has been written recently.
type pendingSave struct {
	ev       SaveEvent
	lastSeen time.Time
}

// saveBuffer holds turn file notifications until each file has been quiet
// for the debounce window. The game writes a turn file in several chunks
// and each chunk raises its own notification; only the state after the last
// one is worth a snapshot. Safe for concurrent use.
type saveBuffer struct {
	debounce time.Duration
	logger   *slog.Logger
	nowFunc  func() time.Time // injectable for tests

	mu      sync.Mutex
	pending map[string]*pendingSave // keyed by turn file path
	notify  chan struct{}
}

func newSaveBuffer(debounce time.Duration, logger *slog.Logger) *saveBuffer {
	return &saveBuffer{
		debounce: debounce,
		logger:   logger,
		nowFunc:  time.Now,
		pending:  make(map[string]*pendingSave),
		notify:   make(chan struct{}, 1),
	}
}

// Add records a write to a turn file and restarts that file's quiet window.
func (b *saveBuffer) Add(ev SaveEvent) {
	b.mu.Lock()

	p, ok := b.pending[ev.Path]
	if !ok {
		p = &pendingSave{}
		b.pending[ev.Path] = p
	}

	p.ev = ev
	p.lastSeen = b.nowFunc()

	b.mu.Unlock()

	select {
	case b.notify <- struct{}{}:
	default:
	}
}

// DropGame discards every pending save of a game, for when its directory
// disappears. Returns how many were dropped.
func (b *saveBuffer) DropGame(game string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0

	for key, p := range b.pending {
		if p.ev.Game == game {
			delete(b.pending, key)
			n++
		}
	}

	return n
}

// Len returns the number of turn files waiting to settle.
func (b *saveBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.pending)
}

// takeSettled removes the saves that have been quiet for the debounce window
// at now, oldest write first. wait is how long until the next pending save
// settles, or zero when nothing else is pending.
func (b *saveBuffer) takeSettled(now time.Time) (settled []SaveEvent, wait time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var ready []*pendingSave

	for key, p := range b.pending {
		due := p.lastSeen.Add(b.debounce)
		if !due.After(now) {
			ready = append(ready, p)
			delete(b.pending, key)

			continue
		}

		if d := due.Sub(now); wait == 0 || d < wait {
			wait = d
		}
	}

	sort.Slice(ready, func(i, j int) bool { return ready[i].lastSeen.Before(ready[j].lastSeen) })

	for _, p := range ready {
		settled = append(settled, p.ev)
	}

	return settled, wait
}

// restat refreshes a settled save's mtime, since the notification that
// queued it may predate the last chunk. ok is false when the file is gone or
// is no longer a regular file.
func (b *saveBuffer) restat(ev SaveEvent) (SaveEvent, bool) {
	info, err := os.Stat(ev.Path)
	if err != nil {
		b.logger.Debug("turn file gone before it settled",
			slog.String("game", ev.Game), slog.String("path", ev.Path))

		return ev, false
	}

	if !info.Mode().IsRegular() {
		return ev, false
	}

	ev.ModTime = info.ModTime()

	return ev, true
}

// FlushDebounced returns a channel that emits batches of settled saves, each
// with a freshly read mtime. The channel is closed when ctx is canceled;
// saves still settling then are dropped, and the next startup scan finds
// them again.
func (b *saveBuffer) FlushDebounced(ctx context.Context) <-chan []SaveEvent {
	out := make(chan []SaveEvent, 1)

	go b.debounceLoop(ctx, out)

	return out
}

func (b *saveBuffer) debounceLoop(ctx context.Context, out chan<- []SaveEvent) {
	defer close(out)

	timer := time.NewTimer(b.debounce)
	timer.Stop() // idle until the first save
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			if n := b.Len(); n > 0 {
				b.logger.Debug("dropping unsettled saves on shutdown", slog.Int("saves", n))
			}

			return

		case <-b.notify:
			// The earliest deadline may have moved; recompute below.

		case <-timer.C:
		}

		settled, wait := b.takeSettled(b.nowFunc())

		if wait > 0 {
			timer.Reset(wait)
		}

		var batch []SaveEvent

		for _, ev := range settled {
			if fresh, ok := b.restat(ev); ok {
				batch = append(batch, fresh)
			}
		}

		if len(batch) == 0 {
			continue
		}

		select {
		case out <- batch:
		case <-ctx.Done():
			return
		}
	}
}
