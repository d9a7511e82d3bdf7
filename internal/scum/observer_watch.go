package scum

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/XenonAtom/Dom6SaveScummer/internal/savefile"
)

// Watch loop tuning.
const (
	DefaultSafetyScanInterval = 5 * time.Minute
	watchErrInitBackoff       = time.Second
	watchErrMaxBackoff        = time.Minute
	watchErrBackoffMult       = 2
)

// FsWatcher is the subset of fsnotify.Watcher the watch observer uses.
type FsWatcher interface {
	Add(name string) error
	Remove(name string) error
	Close() error
	Events() <-chan fsnotify.Event
	Errors() <-chan error
}

// fsnotifyWatcher adapts *fsnotify.Watcher, whose channels are struct
// fields, to FsWatcher.
type fsnotifyWatcher struct {
	w *fsnotify.Watcher
}

func newFsnotifyWatcher() (FsWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &fsnotifyWatcher{w: w}, nil
}

func (f *fsnotifyWatcher) Add(name string) error         { return f.w.Add(name) }
func (f *fsnotifyWatcher) Remove(name string) error      { return f.w.Remove(name) }
func (f *fsnotifyWatcher) Close() error                  { return f.w.Close() }
func (f *fsnotifyWatcher) Events() <-chan fsnotify.Event { return f.w.Events }
func (f *fsnotifyWatcher) Errors() <-chan error          { return f.w.Errors }

// WatchOpts tunes a WatchObserver.
type WatchOpts struct {
	SafetyScanInterval time.Duration // non-positive disables the safety scan
	Debounce           time.Duration // non-positive forwards every write at once
}

// WatchObserver reports saves as the filesystem notifies about them. It
// watches the saved-games root (for games appearing and disappearing) and
// every game directory in it (for turn file writes). Turn file writes are
// held until the file has been quiet for the debounce window. A periodic
// safety scan catches anything the notifications missed.
type WatchObserver struct {
	root               string
	safetyScanInterval time.Duration
	debounce           time.Duration
	logger             *slog.Logger

	// buffer is set for the duration of Watch when debouncing is on.
	buffer *saveBuffer

	watcherFactory func() (FsWatcher, error)                        // injectable for tests
	sleepFunc      func(ctx context.Context, d time.Duration) error // injectable for tests
}

// NewWatchObserver creates a watch observer for the saved-games root.
func NewWatchObserver(root string, opts WatchOpts, logger *slog.Logger) *WatchObserver {
	return &WatchObserver{
		root:               root,
		safetyScanInterval: opts.SafetyScanInterval,
		debounce:           opts.Debounce,
		logger:             logger,
		watcherFactory:     newFsnotifyWatcher,
		sleepFunc:          timeSleep,
	}
}

// Watch registers the watches, sends an initial listing, then forwards
// changes until ctx is canceled. Returns nil on cancellation. A
// WatchObserver runs one Watch at a time.
func (o *WatchObserver) Watch(ctx context.Context, changes chan<- Change) error {
	watcher, err := o.watcherFactory()
	if err != nil {
		return fmt.Errorf("scum: creating filesystem watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(o.root); err != nil {
		return fmt.Errorf("scum: watching %s: %w", o.root, err)
	}

	o.logger.Info("watching saved games",
		slog.String("saves_dir", o.root),
		slog.Duration("safety_scan_interval", o.safetyScanInterval),
		slog.Duration("debounce", o.debounce),
	)

	var settled <-chan []SaveEvent

	if o.debounce > 0 {
		o.buffer = newSaveBuffer(o.debounce, o.logger)
		defer func() { o.buffer = nil }()

		settled = o.buffer.FlushDebounced(ctx)
	}

	// Watches go in before the listing so nothing written in between is lost.
	o.runSafetyScan(ctx, watcher, changes)

	return o.watchLoop(ctx, watcher, settled, changes)
}

// watchLoop is the select loop of Watch. It processes fsnotify events,
// settled saves, watcher errors, safety scan ticks, and context
// cancellation.
func (o *WatchObserver) watchLoop(
	ctx context.Context, watcher FsWatcher, settled <-chan []SaveEvent, changes chan<- Change,
) error {
	var safetyC <-chan time.Time

	if o.safetyScanInterval > 0 {
		safetyTicker := time.NewTicker(o.safetyScanInterval)
		defer safetyTicker.Stop()

		safetyC = safetyTicker.C
	}

	errBackoff := watchErrInitBackoff

	for {
		select {
		case <-ctx.Done():
			return nil

		case fsEvent, ok := <-watcher.Events():
			if !ok {
				return nil
			}

			o.handleFsEvent(ctx, fsEvent, watcher, changes)

			errBackoff = watchErrInitBackoff

		case batch, ok := <-settled:
			if !ok {
				settled = nil
				continue
			}

			for _, ev := range batch {
				o.send(ctx, changes, Change{Kind: ChangeSave, Save: ev})
			}

		case watchErr, ok := <-watcher.Errors():
			if !ok {
				return nil
			}

			o.logger.Warn("filesystem watcher error",
				slog.String("error", watchErr.Error()),
				slog.Duration("backoff", errBackoff),
			)

			if sleepErr := o.sleepFunc(ctx, errBackoff); sleepErr != nil {
				return nil
			}

			errBackoff *= watchErrBackoffMult
			if errBackoff > watchErrMaxBackoff {
				errBackoff = watchErrMaxBackoff
			}

		case <-safetyC:
			o.runSafetyScan(ctx, watcher, changes)
			errBackoff = watchErrInitBackoff
		}
	}
}

// handleFsEvent turns one fsnotify event into at most a few Changes.
func (o *WatchObserver) handleFsEvent(
	ctx context.Context, fsEvent fsnotify.Event, watcher FsWatcher, changes chan<- Change,
) {
	// Mode changes never mean a new save.
	if fsEvent.Has(fsnotify.Chmod) && !fsEvent.Has(fsnotify.Create) && !fsEvent.Has(fsnotify.Write) {
		return
	}

	if game, ok := savefile.GameDir(o.root, fsEvent.Name); ok {
		o.handleGameDirEvent(ctx, fsEvent, game, watcher, changes)
		return
	}

	id, ok := savefile.Classify(o.root, fsEvent.Name)
	if !ok {
		return
	}

	if !fsEvent.Has(fsnotify.Create) && !fsEvent.Has(fsnotify.Write) {
		return
	}

	info, err := os.Stat(fsEvent.Name)
	if err != nil {
		o.logger.Debug("stat failed for turn file",
			slog.String("path", fsEvent.Name), slog.String("error", err.Error()))

		return
	}

	if !info.Mode().IsRegular() {
		return
	}

	o.emitSave(ctx, changes, SaveEvent{Game: id.Game, Turn: id.Turn, Path: fsEvent.Name, ModTime: info.ModTime()})
}

// handleGameDirEvent handles events on direct children of the root.
func (o *WatchObserver) handleGameDirEvent(
	ctx context.Context, fsEvent fsnotify.Event, game string, watcher FsWatcher, changes chan<- Change,
) {
	switch {
	case fsEvent.Has(fsnotify.Create):
		info, err := os.Stat(fsEvent.Name)
		if err != nil || !info.IsDir() {
			return
		}

		if err := watcher.Add(fsEvent.Name); err != nil {
			o.logger.Warn("failed to add watch on new game directory",
				slog.String("game", game), slog.String("error", err.Error()))
		}

		o.logger.Debug("new game directory", slog.String("game", game))

		// Turn files written before the watch was registered.
		o.scanGameDir(ctx, game, fsEvent.Name, changes)

	case fsEvent.Has(fsnotify.Remove) || fsEvent.Has(fsnotify.Rename):
		// fsnotify drops watches on removed paths itself; this is best effort.
		_ = watcher.Remove(fsEvent.Name)

		if o.buffer != nil {
			if n := o.buffer.DropGame(game); n > 0 {
				o.logger.Debug("discarded unsettled saves of removed game",
					slog.String("game", game), slog.Int("saves", n))
			}
		}

		o.send(ctx, changes, Change{Kind: ChangeGameRemoved, Game: game})
	}
}

// scanGameDir emits a ChangeSave for every turn file in a game directory.
// The registry discards the ones already backed up.
func (o *WatchObserver) scanGameDir(ctx context.Context, game, dir string, changes chan<- Change) {
	found, err := savefile.FindTurnFiles(dir)
	if err != nil {
		o.logger.Debug("scan of game directory failed",
			slog.String("game", game), slog.String("error", err.Error()))

		return
	}

	// Oldest first so the newest write is applied last.
	for i := len(found) - 1; i >= 0; i-- {
		if ctx.Err() != nil {
			return
		}

		o.emitSave(ctx, changes,
			SaveEvent{Game: game, Turn: found[i].Turn, Path: found[i].Path, ModTime: found[i].ModTime})
	}
}

// runSafetyScan re-lists the root, refreshes the per-game watches, sends a
// pruning listing, and replays every turn file currently present.
func (o *WatchObserver) runSafetyScan(ctx context.Context, watcher FsWatcher, changes chan<- Change) {
	o.logger.Debug("running safety scan")

	live, err := savefile.LiveGames(o.root)
	if err != nil {
		o.logger.Warn("safety scan failed", slog.String("error", err.Error()))
		return
	}

	for _, game := range live {
		if err := watcher.Add(filepath.Join(o.root, game)); err != nil {
			o.logger.Warn("failed to add watch on game directory",
				slog.String("game", game), slog.String("error", err.Error()))
		}
	}

	o.send(ctx, changes, Change{Kind: ChangeListing, Games: live})

	for _, game := range live {
		o.scanGameDir(ctx, game, filepath.Join(o.root, game), changes)
	}

	o.logger.Debug("safety scan complete", slog.Int("games", len(live)))
}

// emitSave queues a save behind the debounce window, or forwards it at once
// when debouncing is off.
func (o *WatchObserver) emitSave(ctx context.Context, changes chan<- Change, ev SaveEvent) {
	if o.buffer != nil {
		o.buffer.Add(ev)
		return
	}

	o.send(ctx, changes, Change{Kind: ChangeSave, Save: ev})
}

// send blocks until the change is accepted or ctx is done. Changes are
// never dropped.
func (o *WatchObserver) send(ctx context.Context, changes chan<- Change, ch Change) {
	select {
	case changes <- ch:
	case <-ctx.Done():
	}
}

// timeSleep waits for d or until ctx is canceled.
func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
