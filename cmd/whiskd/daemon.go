package main

import (
	"context"
	"log/slog"
	"time"
)

// ============================================================================
// Central Daemon Loop
// ============================================================================
//
// The reducer computes next state + commands + broadcasts and performs no I/O.
// This loop is the only place that executes side effects; effect observations
// are turned into Events and fed back into the reducer.
//
// Events and commands go through explicit queues, so nothing re-enters the
// reducer while it is running.
//
// ============================================================================

// daemonConfig groups what runDaemon needs besides its channels.
type daemonConfig struct {
	Engine   EngineConfig
	UpdateHz int
	Random   RandomSource
}

// runDaemon receives Events, emits Ticks at UpdateHz, reduces, and executes commands.
//
// It exits when ctx is canceled or the events channel is closed.
func runDaemon(
	ctx context.Context,
	events <-chan Event,
	broadcasts chan<- StateBroadcast,
	deps effectDeps,
	cfg daemonConfig,
	state *SimulationState,
	logger *slog.Logger,
) {
	if state == nil {
		logger.Error("daemon state is nil")
		return
	}
	if cfg.UpdateHz <= 0 {
		cfg.UpdateHz = defaultUpdateHz
	}

	ticker := time.NewTicker(time.Second / time.Duration(cfg.UpdateHz))
	defer ticker.Stop()

	lastTick := time.Now()

	var eventQueue []Event
	var cmdQueue []Command

	enqueueEvent := func(ev Event) {
		eventQueue = append(eventQueue, ev)
	}

	publish := func(bcs []StateBroadcast) {
		if broadcasts == nil {
			return
		}
		for _, b := range bcs {
			select {
			case broadcasts <- b:
			default:
				logger.Warn("broadcast queue full, dropping state broadcast")
			}
		}
	}

	flushEvents := func() {
		for len(eventQueue) > 0 {
			ev := eventQueue[0]
			eventQueue = eventQueue[1:]

			rr := Reduce(state, ev, cfg.Engine, cfg.Random)
			if rr.State != nil {
				state = rr.State
			}
			cmdQueue = append(cmdQueue, rr.Commands...)
			publish(rr.Broadcasts)
		}
	}

	flushCommands := func() {
		for len(cmdQueue) > 0 {
			cmd := cmdQueue[0]
			cmdQueue = cmdQueue[1:]

			runEffect(ctx, deps, cmd, logger, enqueueEvent)

			// Reduce observations promptly so follow-up commands run in order.
			flushEvents()
		}
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info("daemon stopping (context canceled)")
			return

		case ev, ok := <-events:
			if !ok {
				logger.Info("daemon stopping (events channel closed)")
				return
			}
			switch ev.(type) {
			case RequestStateSnapshot:
				enqueueEvent(ev)
			default:
				enqueueEvent(TimedEvent{Event: ev, At: time.Now()})
			}
			flushEvents()
			flushCommands()

		case now := <-ticker.C:
			dt := now.Sub(lastTick).Seconds()
			lastTick = now
			enqueueEvent(Tick{Now: now, Dt: dt})
			flushEvents()
			flushCommands()
		}
	}
}
