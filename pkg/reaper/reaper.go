// Package reaper runs the background Cleanup Reaper: a periodic sweep
// that reconciles synchronous-effect action handles and erases graphs
// that have reached the FINISHED state. Grounded on
// original_source/src/action_executor.cpp's startCleanupLoopThread /
// cleanupLoop, which spins on a fixed sleep; here the cadence is driven
// by github.com/robfig/cron/v3 the same way pkg/triggers/schedule drives
// its own polling loop.
package reaper

import (
	"context"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Executor is the subset of pkg/executor.ActionExecutor the reaper needs.
type Executor interface {
	ReapOnce(ctx context.Context)
}

// Reaper drives periodic cleanup sweeps against an Executor.
type Reaper struct {
	cron     *cron.Cron
	executor Executor
	logger   *logrus.Entry

	mu      sync.Mutex
	entryID cron.EntryID
	running bool
}

// Schedule is the cron spec used for the cleanup cadence, matching the
// original's ~2 second sleep loop.
const Schedule = "@every 2s"

// New builds a Reaper bound to executor. Call Start to begin sweeping.
func New(executor Executor, logger *logrus.Entry) *Reaper {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	return &Reaper{
		cron:     cron.New(),
		executor: executor,
		logger:   logger.WithField("module", "reaper"),
	}
}

// Start begins the periodic sweep. Calling Start twice is a no-op.
func (r *Reaper) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return nil
	}

	id, err := r.cron.AddFunc(Schedule, func() {
		r.executor.ReapOnce(ctx)
	})
	if err != nil {
		return err
	}

	r.entryID = id
	r.cron.Start()
	r.running = true
	r.logger.Info("cleanup reaper started")

	return nil
}

// Stop halts the sweep and waits for any in-flight run to finish,
// mirroring stopAndCleanUp's "stop the cleanup loop" phase.
func (r *Reaper) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return
	}

	r.cron.Remove(r.entryID)
	stopCtx := r.cron.Stop()
	<-stopCtx.Done()
	r.running = false
	r.logger.Info("cleanup reaper stopped")
}
