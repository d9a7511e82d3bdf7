package scum

import (
	"context"
	"log/slog"
	"time"

	"github.com/XenonAtom/Dom6SaveScummer/internal/savefile"
)

// Poll tuning.
const (
	DefaultPollInterval = 10 * time.Second
	minPollInterval     = time.Second
)

// PollObserver lists the saved-games root on a fixed interval. Each pass is
// a single bootstrapping listing; the engine reconciles against it and then
// checks every tracked game for a newer turn file.
type PollObserver struct {
	root      string
	interval  time.Duration
	logger    *slog.Logger
	sleepFunc func(ctx context.Context, d time.Duration) error // injectable for tests
}

// NewPollObserver creates a poll observer. Intervals below one second are
// clamped.
func NewPollObserver(root string, interval time.Duration, logger *slog.Logger) *PollObserver {
	if interval < minPollInterval {
		logger.Warn("poll interval below minimum, clamping",
			slog.Duration("requested", interval),
			slog.Duration("minimum", minPollInterval),
		)

		interval = minPollInterval
	}

	return &PollObserver{
		root:      root,
		interval:  interval,
		logger:    logger,
		sleepFunc: timeSleep,
	}
}

// Watch sends a listing immediately and then once per interval until ctx is
// canceled. A failed listing is logged and retried on the next tick.
func (o *PollObserver) Watch(ctx context.Context, changes chan<- Change) error {
	o.logger.Info("polling saved games",
		slog.String("saves_dir", o.root),
		slog.Duration("interval", o.interval),
	)

	for {
		live, err := savefile.LiveGames(o.root)
		if err != nil {
			o.logger.Warn("listing saved games failed", slog.String("error", err.Error()))
		} else {
			select {
			case changes <- Change{Kind: ChangeListing, Games: live, Bootstrap: true}:
			case <-ctx.Done():
				return nil
			}
		}

		if sleepErr := o.sleepFunc(ctx, o.interval); sleepErr != nil {
			return nil
		}
	}
}
