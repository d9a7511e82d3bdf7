package scum

import (
	"log/slog"
	"sync"
	"time"
)

// Failure pause defaults.
const (
	DefaultFailureThreshold = 3
	DefaultFailureCooldown  = 10 * time.Minute
)

// gameOp names the registry operation a failure belongs to. Bootstrapping
// and snapshotting fail for different reasons (an unreadable game directory
// versus a full backup volume), so each is paused on its own.
type gameOp string

const (
	opBootstrap gameOp = "bootstrap"
	opSnapshot  gameOp = "snapshot"
)

type failureKey struct {
	game string
	op   gameOp
}

// failureRun is an unbroken run of failures of one operation on one game.
type failureRun struct {
	count   int
	first   time.Time
	last    time.Time
	lastErr error
}

// failureTracker pauses an operation on a game once it has failed threshold
// times in a row. The pause ends cooldown after the latest failure or on the
// next success. Safe for concurrent use.
type failureTracker struct {
	threshold int
	cooldown  time.Duration
	logger    *slog.Logger
	nowFunc   func() time.Time // injectable for tests

	mu   sync.Mutex
	runs map[failureKey]*failureRun
}

// newFailureTracker falls back to the defaults for non-positive values.
func newFailureTracker(threshold int, cooldown time.Duration, logger *slog.Logger) *failureTracker {
	if threshold < 1 {
		threshold = DefaultFailureThreshold
	}

	if cooldown <= 0 {
		cooldown = DefaultFailureCooldown
	}

	return &failureTracker{
		threshold: threshold,
		cooldown:  cooldown,
		logger:    logger,
		nowFunc:   time.Now,
		runs:      make(map[failureKey]*failureRun),
	}
}

// shouldSkip reports whether op on game is paused.
func (ft *failureTracker) shouldSkip(game string, op gameOp) bool {
	ft.mu.Lock()
	defer ft.mu.Unlock()

	key := failureKey{game, op}

	run, ok := ft.runs[key]
	if !ok {
		return false
	}

	if ft.nowFunc().Sub(run.last) > ft.cooldown {
		delete(ft.runs, key)

		if run.count >= ft.threshold {
			ft.logger.Info("retrying paused game operation",
				slog.String("game", game), slog.String("op", string(op)))
		}

		return false
	}

	return run.count >= ft.threshold
}

// recordFailure extends the run of failures for op on game. A failure after
// the cooldown starts a new run.
func (ft *failureTracker) recordFailure(game string, op gameOp, err error) {
	ft.mu.Lock()
	defer ft.mu.Unlock()

	now := ft.nowFunc()
	key := failureKey{game, op}

	run, ok := ft.runs[key]
	if !ok || now.Sub(run.last) > ft.cooldown {
		run = &failureRun{first: now}
		ft.runs[key] = run
	}

	run.count++
	run.last = now
	run.lastErr = err

	if run.count == ft.threshold {
		ft.logger.Warn("pausing game operation after repeated failures",
			slog.String("game", game),
			slog.String("op", string(op)),
			slog.Int("failures", run.count),
			slog.Duration("failing_for", now.Sub(run.first)),
			slog.Duration("pause", ft.cooldown),
			slog.String("last_error", err.Error()),
		)
	}
}

// recordSuccess ends any run of failures for op on game.
func (ft *failureTracker) recordSuccess(game string, op gameOp) {
	ft.mu.Lock()
	defer ft.mu.Unlock()

	delete(ft.runs, failureKey{game, op})
}

// forgetGame drops every run recorded for game.
func (ft *failureTracker) forgetGame(game string) {
	ft.mu.Lock()
	defer ft.mu.Unlock()

	for key := range ft.runs {
		if key.game == game {
			delete(ft.runs, key)
		}
	}
}

// lastError returns the error that ended the current run, if any.
func (ft *failureTracker) lastError(game string, op gameOp) error {
	ft.mu.Lock()
	defer ft.mu.Unlock()

	if run, ok := ft.runs[failureKey{game, op}]; ok {
		return run.lastErr
	}

	return nil
}
