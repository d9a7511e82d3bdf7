package scum

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/XenonAtom/Dom6SaveScummer/internal/backup"
	"github.com/XenonAtom/Dom6SaveScummer/internal/savefile"
)

// ErrNotTracked is returned for operations on a game the registry does not
// track.
var ErrNotTracked = errors.New("scum: game not tracked")

// EventKind classifies journal entries about a game's lifecycle.
type EventKind string

// Game lifecycle events.
const (
	EventAdded    EventKind = "added"
	EventResumed  EventKind = "resumed"
	EventRemoved  EventKind = "removed"
	EventNotReady EventKind = "not_ready"
)

// Recorder receives an audit trail of registry activity. The backup tree
// stays authoritative; recorder errors are logged and otherwise ignored.
type Recorder interface {
	RecordSnapshot(ctx context.Context, snap *backup.Snapshot) error
	RecordGameEvent(ctx context.Context, game string, kind EventKind, detail string) error
	ForgetGame(ctx context.Context, game string) error
}

// RegistryConfig holds the options for NewRegistry.
type RegistryConfig struct {
	Store      *backup.Store
	SourceRoot string // saved-games directory
	CopyStatic bool   // copy static game files into snapshot 0
	Tolerance  time.Duration
	Recorder   Recorder // optional
	Logger     *slog.Logger

	// A game operation failing FailureThreshold times in a row is paused
	// for FailureCooldown. Zero values take the defaults.
	FailureThreshold int
	FailureCooldown  time.Duration
}

// Registry is the set of tracked games. Every mutating operation on a game
// runs under that game's lock, which covers the whole
// read-highest/create-snapshot sequence; different games proceed in
// parallel.
type Registry struct {
	store      *backup.Store
	sourceRoot string
	copyStatic bool
	ledger     *saveLedger
	failures   *failureTracker
	recorder   Recorder
	logger     *slog.Logger

	mu      sync.Mutex
	games   map[string]TrackedGame
	locks   map[string]*sync.Mutex
	pending map[string]bool // games seen without a turn file
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg *RegistryConfig) *Registry {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Registry{
		store:      cfg.Store,
		sourceRoot: cfg.SourceRoot,
		copyStatic: cfg.CopyStatic,
		ledger:     newSaveLedger(cfg.Tolerance),
		failures:   newFailureTracker(cfg.FailureThreshold, cfg.FailureCooldown, logger),
		recorder:   cfg.Recorder,
		logger:     logger,
		games:      make(map[string]TrackedGame),
		locks:      make(map[string]*sync.Mutex),
		pending:    make(map[string]bool),
	}
}

// lockGame acquires the per-game lock and returns its release function.
func (r *Registry) lockGame(game string) func() {
	r.mu.Lock()

	l, ok := r.locks[game]
	if !ok {
		l = &sync.Mutex{}
		r.locks[game] = l
	}

	r.mu.Unlock()

	l.Lock()

	return l.Unlock
}

// Lookup returns the state of a tracked game.
func (r *Registry) Lookup(game string) (TrackedGame, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tg, ok := r.games[game]

	return tg, ok
}

// State returns the lifecycle state of a game; untracked games are Absent.
func (r *Registry) State(game string) GameState {
	if tg, ok := r.Lookup(game); ok {
		return tg.State
	}

	return StateAbsent
}

// Tracked returns every tracked game sorted by name.
func (r *Registry) Tracked() []TrackedGame {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]TrackedGame, 0, len(r.games))
	for _, tg := range r.games {
		out = append(out, tg)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	return out
}

func (r *Registry) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.games))
	for name := range r.games {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

func (r *Registry) put(tg TrackedGame) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.games[tg.Name] = tg
	delete(r.pending, tg.Name)
}

func (r *Registry) drop(game string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.games, game)
	delete(r.pending, game)
}

// markPending records a not-ready game and reports whether it is new to the
// pending set, so the first sighting logs at Info and later ones at Debug.
func (r *Registry) markPending(game string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pending[game] {
		return false
	}

	r.pending[game] = true

	return true
}

// Bootstrap starts tracking a game. If backup history exists the state is
// reconstructed from the highest valid snapshot; otherwise snapshot 0 is
// created from the source directory. A game without a turn file yields
// backup.ErrNotReady and stays untracked.
func (r *Registry) Bootstrap(ctx context.Context, game string) (TrackedGame, error) {
	unlock := r.lockGame(game)
	defer unlock()

	tg, _, err := r.bootstrapLocked(ctx, game)

	return tg, err
}

// bootstrapLocked returns snapshot 0 when it created one, nil when the game
// was already tracked or resumed from history.
func (r *Registry) bootstrapLocked(ctx context.Context, game string) (TrackedGame, *backup.Snapshot, error) {
	if tg, ok := r.Lookup(game); ok {
		return tg, nil, nil
	}

	tg, resumed, err := r.resumeLocked(ctx, game)
	if err != nil || resumed {
		return tg, nil, err
	}

	snap, err := r.store.CreateInitialSnapshot(game, filepath.Join(r.sourceRoot, game), r.copyStatic)
	if err != nil {
		if errors.Is(err, backup.ErrNotReady) && r.markPending(game) {
			r.logger.Info("game has no turn file yet, will retry", slog.String("game", game))
			r.record(func() error { return r.recorder.RecordGameEvent(ctx, game, EventNotReady, "") })
		}

		return TrackedGame{}, nil, fmt.Errorf("scum: bootstrapping %s: %w", game, err)
	}

	tg = TrackedGame{
		Name:          game,
		Turn:          snap.Turn,
		LastWriteTime: snap.TurnModTime,
		HighestBackup: 0,
		State:         StateBootstrapped,
	}

	r.ledger.record(game, snap.Turn.Name(), snap.TurnModTime)
	r.put(tg)

	r.logger.Info("new game tracked, initial backup created",
		slog.String("game", game),
		slog.String("turn_file", snap.Turn.Name()),
		slog.Int("files", len(snap.Files)),
	)

	r.record(func() error { return r.recorder.RecordSnapshot(ctx, snap) })
	r.record(func() error { return r.recorder.RecordGameEvent(ctx, game, EventAdded, snap.Turn.Name()) })

	return tg, snap, nil
}

// resumeLocked reconstructs a game from existing history. resumed is false
// when there is no history to resume from. History without a single valid
// snapshot is discarded so the game can start over from snapshot 0.
func (r *Registry) resumeLocked(ctx context.Context, game string) (tg TrackedGame, resumed bool, err error) {
	has, err := r.store.HasHistory(game)
	if err != nil || !has {
		return TrackedGame{}, false, err
	}

	snap, err := r.store.LatestSnapshot(game)
	if err != nil {
		return TrackedGame{}, false, fmt.Errorf("scum: resuming %s: %w", game, err)
	}

	if snap == nil {
		r.logger.Warn("backup history has no usable snapshot, starting over", slog.String("game", game))

		if err := r.store.DeleteAll(game); err != nil {
			return TrackedGame{}, false, fmt.Errorf("scum: resuming %s: %w", game, err)
		}

		return TrackedGame{}, false, nil
	}

	// Numbering continues above every complete directory, including ones
	// that lack a turn file, so the next number is always free.
	highest := snap.Number
	if maxN, ok, err := r.store.MaxSnapshotNumber(game); err == nil && ok && maxN > highest {
		highest = maxN
	}

	state := StateBootstrapped
	if highest > 0 {
		state = StateTracking
	}

	tg = TrackedGame{
		Name:          game,
		Turn:          snap.Turn,
		LastWriteTime: snap.TurnModTime,
		HighestBackup: highest,
		State:         state,
	}

	r.ledger.record(game, snap.Turn.Name(), snap.TurnModTime)
	r.put(tg)

	r.logger.Info("game resumed from existing backups",
		slog.String("game", game),
		slog.Int("highest_backup", highest),
		slog.String("turn_file", snap.Turn.Name()),
	)

	r.record(func() error {
		return r.recorder.RecordGameEvent(ctx, game, EventResumed, fmt.Sprintf("highest=%d", highest))
	})

	return tg, true, nil
}

// Reconcile brings the tracked set in line with the live game directories:
// vanished games lose their backups and are forgotten, new games are
// bootstrapped. Games without a turn file are skipped until a later pass.
// Running it again on an unchanged set does nothing.
func (r *Registry) Reconcile(ctx context.Context, live []string) (added, removed []string, err error) {
	removed, pruneErr := r.Prune(ctx, live)

	var errs []error
	if pruneErr != nil {
		errs = append(errs, pruneErr)
	}

	for _, game := range sortedCopy(live) {
		if ctx.Err() != nil {
			break
		}

		if _, ok := r.Lookup(game); ok {
			continue
		}

		if r.failures.shouldSkip(game, opBootstrap) {
			continue
		}

		if _, err := r.Bootstrap(ctx, game); err != nil {
			if errors.Is(err, backup.ErrNotReady) {
				continue
			}

			r.failures.recordFailure(game, opBootstrap, err)
			errs = append(errs, err)

			continue
		}

		r.failures.recordSuccess(game, opBootstrap)
		added = append(added, game)
	}

	return added, removed, errors.Join(errs...)
}

// Prune forgets every tracked game missing from live and deletes its
// backups. It never adds games.
func (r *Registry) Prune(ctx context.Context, live []string) ([]string, error) {
	liveSet := make(map[string]bool, len(live))
	for _, g := range live {
		liveSet[g] = true
	}

	var (
		removed []string
		errs    []error
	)

	for _, game := range r.names() {
		if liveSet[game] {
			continue
		}

		ok, err := r.Remove(ctx, game)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		if ok {
			removed = append(removed, game)
		}
	}

	return removed, errors.Join(errs...)
}

// Resume tracks the live games that already have backup history, without
// creating any snapshot. Games without history wait for their first save.
func (r *Registry) Resume(ctx context.Context, live []string) ([]string, error) {
	var (
		added []string
		errs  []error
	)

	for _, game := range sortedCopy(live) {
		if _, ok := r.Lookup(game); ok {
			continue
		}

		unlock := r.lockGame(game)
		_, resumed, err := r.resumeLocked(ctx, game)
		unlock()

		if err != nil {
			errs = append(errs, err)
			continue
		}

		if resumed {
			added = append(added, game)
		}
	}

	return added, errors.Join(errs...)
}

// Remove deletes a game's entire backup history and forgets it. ok is false
// when there was nothing to remove.
func (r *Registry) Remove(ctx context.Context, game string) (ok bool, err error) {
	unlock := r.lockGame(game)
	defer unlock()

	_, tracked := r.Lookup(game)

	has, err := r.store.HasHistory(game)
	if err != nil {
		return false, err
	}

	if !tracked && !has {
		r.drop(game)
		return false, nil
	}

	if err := r.store.DeleteAll(game); err != nil {
		return false, err
	}

	r.drop(game)
	r.ledger.forget(game)
	r.failures.forgetGame(game)

	r.logger.Info("game no longer in saves directory, backups deleted", slog.String("game", game))

	r.record(func() error { return r.recorder.ForgetGame(ctx, game) })
	r.record(func() error { return r.recorder.RecordGameEvent(ctx, game, EventRemoved, "") })

	return true, nil
}

// CheckForNewerSave looks at the turn files currently in the game's source
// directory and snapshots each one written since its last backup. The
// newest turn file becomes the game's current turn file, so a renamed turn
// file continues the same numbering. Returns the snapshots created, oldest
// first.
func (r *Registry) CheckForNewerSave(ctx context.Context, game string) ([]*backup.Snapshot, error) {
	unlock := r.lockGame(game)
	defer unlock()

	if _, ok := r.Lookup(game); !ok {
		return nil, fmt.Errorf("scum: checking %s: %w", game, ErrNotTracked)
	}

	if r.failures.shouldSkip(game, opSnapshot) {
		r.logger.Debug("snapshots paused for game",
			slog.String("game", game),
			slog.Any("last_error", r.failures.lastError(game, opSnapshot)))

		return nil, nil
	}

	found, err := savefile.FindTurnFiles(filepath.Join(r.sourceRoot, game))
	if err != nil {
		// The directory may be mid-removal; the next listing prunes it.
		r.logger.Debug("cannot list game directory", slog.String("game", game), slog.String("error", err.Error()))
		return nil, nil
	}

	var created []*backup.Snapshot

	// Oldest first so the newest turn file is accepted last.
	for i := len(found) - 1; i >= 0; i-- {
		ev := SaveEvent{Game: game, Turn: found[i].Turn, Path: found[i].Path, ModTime: found[i].ModTime}

		snap, err := r.acceptLocked(ctx, ev)
		if err != nil {
			return created, err
		}

		if snap != nil {
			created = append(created, snap)
		}
	}

	return created, nil
}

// ApplySave handles one candidate save. An untracked game is bootstrapped
// first. Returns the snapshot created: the incremental one when the save is
// newer than snapshot 0, otherwise snapshot 0 itself when this call created
// it. Duplicate notifications for a write already backed up return nil.
func (r *Registry) ApplySave(ctx context.Context, ev SaveEvent) (*backup.Snapshot, error) {
	unlock := r.lockGame(ev.Game)
	defer unlock()

	if r.failures.shouldSkip(ev.Game, opSnapshot) {
		return nil, nil
	}

	var initial *backup.Snapshot

	if _, ok := r.Lookup(ev.Game); !ok {
		if r.failures.shouldSkip(ev.Game, opBootstrap) {
			return nil, nil
		}

		_, snap, err := r.bootstrapLocked(ctx, ev.Game)
		if err != nil {
			if errors.Is(err, backup.ErrNotReady) {
				return nil, nil
			}

			r.failures.recordFailure(ev.Game, opBootstrap, err)

			return nil, err
		}

		r.failures.recordSuccess(ev.Game, opBootstrap)

		initial = snap
	}

	snap, err := r.acceptLocked(ctx, ev)
	if snap == nil && err == nil {
		return initial, nil
	}

	return snap, err
}

// acceptLocked is the versioning rule shared by every driver. The caller
// holds the game lock and the game is tracked.
func (r *Registry) acceptLocked(ctx context.Context, ev SaveEvent) (*backup.Snapshot, error) {
	tg, ok := r.Lookup(ev.Game)
	if !ok {
		return nil, fmt.Errorf("scum: accepting save for %s: %w", ev.Game, ErrNotTracked)
	}

	turnName := ev.Turn.Name()

	last, known, err := r.lastAccepted(ev.Game, turnName)
	if err != nil {
		return nil, err
	}

	if known && !r.ledger.isNewer(last, ev.ModTime) {
		r.logger.Debug("save already backed up",
			slog.String("game", ev.Game),
			slog.String("turn_file", turnName),
			slog.Time("mtime", ev.ModTime),
			slog.Time("last_backup_mtime", last),
		)

		return nil, nil
	}

	next := tg.HighestBackup + 1

	snap, err := r.store.CreateIncrementalSnapshot(ev.Game, next, ev.Path)
	switch {
	case errors.Is(err, backup.ErrSnapshotExists):
		r.resyncHighest(tg)
		r.logger.Warn("snapshot number already taken, treating as duplicate",
			slog.String("game", ev.Game), slog.Int("number", next))

		return nil, nil

	case errors.Is(err, backup.ErrNotReady):
		r.logger.Debug("turn file vanished before backup",
			slog.String("game", ev.Game), slog.String("turn_file", turnName))

		return nil, nil

	case err != nil:
		r.failures.recordFailure(ev.Game, opSnapshot, err)
		return nil, fmt.Errorf("scum: backing up %s: %w", ev.Game, err)
	}

	r.failures.recordSuccess(ev.Game, opSnapshot)

	tg.HighestBackup = next
	tg.LastWriteTime = snap.TurnModTime
	tg.Turn = ev.Turn
	tg.State = StateTracking

	r.put(tg)
	r.ledger.record(ev.Game, turnName, snap.TurnModTime)

	r.logger.Info("new save backed up",
		slog.String("game", ev.Game),
		slog.Int("number", next),
		slog.String("turn_file", turnName),
	)

	r.record(func() error { return r.recorder.RecordSnapshot(ctx, snap) })

	return snap, nil
}

// lastAccepted returns the source mtime of the last backed-up write of a
// turn file. A ledger miss is seeded once from the stored copy in the
// newest snapshot holding that file.
func (r *Registry) lastAccepted(game, turnName string) (time.Time, bool, error) {
	if t, ok := r.ledger.lookup(game, turnName); ok {
		return t, true, nil
	}

	n, ok, err := r.store.HighestBackupNumber(game, turnName)
	if err != nil || !ok {
		return time.Time{}, false, err
	}

	t, err := r.store.TurnModTime(game, n, turnName)
	if err != nil {
		return time.Time{}, false, err
	}

	r.ledger.record(game, turnName, t)

	return t, true, nil
}

// resyncHighest raises the tracked highest number to what is on disk.
func (r *Registry) resyncHighest(tg TrackedGame) {
	maxN, ok, err := r.store.MaxSnapshotNumber(tg.Name)
	if err != nil || !ok || maxN <= tg.HighestBackup {
		return
	}

	tg.HighestBackup = maxN
	r.put(tg)
}

func (r *Registry) record(fn func() error) {
	if r.recorder == nil {
		return
	}

	if err := fn(); err != nil {
		r.logger.Warn("journal write failed", slog.String("error", err.Error()))
	}
}

func sortedCopy(s []string) []string {
	out := append([]string(nil), s...)
	sort.Strings(out)

	return out
}
