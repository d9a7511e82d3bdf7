package scum

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/XenonAtom/Dom6SaveScummer/internal/savefile"
)

// Engine tuning.
const (
	DefaultCheckWorkers = 4
	changeBufSize       = 64
)

// Observer produces Changes until ctx is canceled. WatchObserver and
// PollObserver implement it.
type Observer interface {
	Watch(ctx context.Context, changes chan<- Change) error
}

// EngineConfig holds the options for NewEngine.
type EngineConfig struct {
	Registry *Registry
	Observer Observer // required by Run only
	SavesDir string
	Workers  int // parallel CheckForNewerSave calls per listing
	Logger   *slog.Logger
}

// PassReport summarizes one listing pass.
type PassReport struct {
	Added     []string `json:"added"`
	Removed   []string `json:"removed"`
	Snapshots int      `json:"snapshots"`
}

// Engine connects an observer to the registry. A single consumer applies
// changes in arrival order; listing passes fan out per game.
type Engine struct {
	registry *Registry
	observer Observer
	savesDir string
	workers  int
	logger   *slog.Logger
}

// NewEngine creates an engine.
func NewEngine(cfg *EngineConfig) *Engine {
	workers := cfg.Workers
	if workers < 1 {
		workers = DefaultCheckWorkers
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		registry: cfg.Registry,
		observer: cfg.Observer,
		savesDir: cfg.SavesDir,
		workers:  workers,
		logger:   logger,
	}
}

// Run resumes games with existing backups, then applies observed changes
// until ctx is canceled. Returns nil on a clean shutdown.
func (e *Engine) Run(ctx context.Context) error {
	if e.observer == nil {
		return errors.New("scum: engine has no observer")
	}

	live, err := savefile.LiveGames(e.savesDir)
	if err != nil {
		return fmt.Errorf("scum: reading saves directory: %w", err)
	}

	resumed, err := e.registry.Resume(ctx, live)
	if err != nil {
		e.logger.Warn("resuming some games failed", slog.String("error", err.Error()))
	}

	e.logger.Info("engine starting",
		slog.Int("live_games", len(live)),
		slog.Int("resumed", len(resumed)),
	)

	changes := make(chan Change, changeBufSize)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(changes)
		return e.observer.Watch(gctx, changes)
	})

	g.Go(func() error {
		for ch := range changes {
			if gctx.Err() != nil {
				continue // drain
			}

			e.handle(gctx, ch)
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	e.logger.Info("engine stopped")

	return nil
}

// RunOnce performs a single bootstrapping pass over the saves directory and
// returns what it did.
func (e *Engine) RunOnce(ctx context.Context) (PassReport, error) {
	live, err := savefile.LiveGames(e.savesDir)
	if err != nil {
		return PassReport{}, fmt.Errorf("scum: reading saves directory: %w", err)
	}

	return e.applyListing(ctx, live, true)
}

// handle applies one change. Errors are logged; the engine keeps running.
func (e *Engine) handle(ctx context.Context, ch Change) {
	switch ch.Kind {
	case ChangeSave:
		if _, err := e.registry.ApplySave(ctx, ch.Save); err != nil {
			e.logger.Error("backing up save failed",
				slog.String("game", ch.Save.Game),
				slog.String("path", ch.Save.Path),
				slog.String("error", err.Error()),
			)
		}

	case ChangeGameRemoved:
		if _, err := e.registry.Remove(ctx, ch.Game); err != nil {
			e.logger.Error("removing game failed",
				slog.String("game", ch.Game), slog.String("error", err.Error()))
		}

	case ChangeListing:
		if _, err := e.applyListing(ctx, ch.Games, ch.Bootstrap); err != nil {
			e.logger.Error("listing pass failed", slog.String("error", err.Error()))
		}
	}
}

// applyListing reconciles the registry with a listing and checks every
// tracked game for a newer save. Without bootstrap only vanished games are
// pruned; untracked games wait for their first save event.
func (e *Engine) applyListing(ctx context.Context, live []string, bootstrap bool) (PassReport, error) {
	var (
		report PassReport
		errs   []error
		err    error
	)

	if bootstrap {
		report.Added, report.Removed, err = e.registry.Reconcile(ctx, live)
	} else {
		report.Removed, err = e.registry.Prune(ctx, live)
	}

	if err != nil {
		errs = append(errs, err)
	}

	tracked := e.registry.Tracked()

	e.logger.Debug("checking for new saves", slog.Int("games", len(tracked)))

	var (
		mu        sync.Mutex
		snapshots atomic.Int64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	for _, tg := range tracked {
		g.Go(func() error {
			snaps, err := e.registry.CheckForNewerSave(gctx, tg.Name)
			snapshots.Add(int64(len(snaps)))

			if err != nil && !errors.Is(err, ErrNotTracked) {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}

			return nil
		})
	}

	_ = g.Wait() // workers never return errors

	report.Snapshots = int(snapshots.Load())

	if len(report.Added) > 0 || len(report.Removed) > 0 || report.Snapshots > 0 {
		e.logger.Info("listing pass complete",
			slog.Int("added", len(report.Added)),
			slog.Int("removed", len(report.Removed)),
			slog.Int("snapshots", report.Snapshots),
		)
	}

	return report, errors.Join(errs...)
}
