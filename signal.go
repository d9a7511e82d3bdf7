package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// forcedExitCode follows the shell convention for a process ended by SIGINT.
const forcedExitCode = 130

// stopSignals end a backup run. SIGTERM is what "savescum stop" sends.
var stopSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}

// signalStopper turns stop signals into context cancellation. On the first
// signal the engine takes no new saves but completes the snapshot it is
// writing, so no numbered directory is left half copied. A second signal
// releases the PID lock and exits without waiting.
type signalStopper struct {
	logger  *slog.Logger
	release func() // may be nil

	exit   func(code int)                       // injectable for tests
	notify func(chan<- os.Signal, ...os.Signal) // injectable for tests
	stop   func(chan<- os.Signal)               // injectable for tests
}

func newSignalStopper(logger *slog.Logger, release func()) *signalStopper {
	return &signalStopper{
		logger:  logger,
		release: release,
		exit:    os.Exit,
		notify:  signal.Notify,
		stop:    signal.Stop,
	}
}

// Context returns a child of parent that is canceled by the first stop
// signal. Signal handling ends when parent is done.
func (s *signalStopper) Context(parent context.Context) context.Context {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, len(stopSignals))
	s.notify(sigCh, stopSignals...)

	go s.wait(parent, sigCh, cancel)

	return ctx
}

func (s *signalStopper) wait(parent context.Context, sigCh chan os.Signal, cancel context.CancelFunc) {
	defer s.stop(sigCh)
	defer cancel()

	select {
	case sig := <-sigCh:
		s.logger.Info("stopping after the snapshot in progress",
			slog.String("signal", sig.String()))
		cancel()
	case <-parent.Done():
		return
	}

	select {
	case sig := <-sigCh:
		s.logger.Warn("stop signal repeated, exiting without waiting",
			slog.String("signal", sig.String()))

		if s.release != nil {
			s.release()
		}

		s.exit(forcedExitCode)
	case <-parent.Done():
	}
}
