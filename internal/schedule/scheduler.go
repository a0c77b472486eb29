// Package schedule drives cron-triggered summary runs and housekeeping.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"

	"github.com/kalambet/recap/internal/storage"
	"github.com/kalambet/recap/internal/workflow"
)

// runRetention is how long finished workflow run records are kept.
const runRetention = 7 * 24 * time.Hour

const cleanupCron = "30 3 * * *"

// Runner executes a summary workflow.
type Runner interface {
	Run(ctx context.Context, req workflow.Request) (*storage.Summary, error)
}

// Store provides preference lookup and run cleanup.
type Store interface {
	GetPreferences() (storage.Preferences, error)
	DeleteWorkflowRunsBefore(cutoff time.Time) (int, error)
}

// Job is one cron-triggered summary kind.
type Job struct {
	Kind    string // "EOD" or "EOW"
	Cron    string
	Enabled bool
}

// Scheduler sleeps until each job's next cron tick and fires the workflow.
type Scheduler struct {
	runner Runner
	store  Store
	jobs   []Job
	log    *slog.Logger
}

func New(runner Runner, store Store, jobs []Job, log *slog.Logger) (*Scheduler, error) {
	for _, j := range jobs {
		if j.Enabled && !gronx.IsValid(j.Cron) {
			return nil, fmt.Errorf("invalid cron expression for %s: %q", j.Kind, j.Cron)
		}
	}
	return &Scheduler{runner: runner, store: store, jobs: jobs, log: log}, nil
}

// Start launches one goroutine per enabled job plus the cleanup loop, and
// blocks until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	started := 0
	for _, j := range s.jobs {
		if !j.Enabled {
			s.log.Info("scheduled summary disabled", "kind", j.Kind)
			continue
		}
		s.log.Info("scheduled summary enabled", "kind", j.Kind, "cron", j.Cron)
		go s.loop(ctx, j.Cron, func(ctx context.Context) { s.fire(ctx, j.Kind) })
		started++
	}
	go s.loop(ctx, cleanupCron, s.cleanup)

	<-ctx.Done()
	s.log.Info("scheduler stopping", "jobs", started)
	return ctx.Err()
}

// loop sleeps until the next tick of expr and invokes fn, repeatedly, until
// ctx is cancelled.
func (s *Scheduler) loop(ctx context.Context, expr string, fn func(context.Context)) {
	for {
		now := time.Now()
		next, err := gronx.NextTickAfter(expr, now, false)
		if err != nil {
			s.log.Error("cron tick computation failed", "cron", expr, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		select {
		case <-time.After(time.Until(next)):
			fn(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// fire runs one scheduled summary. Scheduled runs deliver to the configured
// notification channel; without one the summary is generated silently and
// only reachable through the API and reports.
func (s *Scheduler) fire(ctx context.Context, kind string) {
	prefs, err := s.store.GetPreferences()
	if err != nil {
		s.log.Error("scheduled run aborted, preferences unavailable", "kind", kind, "error", err)
		return
	}

	req := workflow.Request{Type: kind, ReplyChannel: prefs.NotificationChannel}
	if prefs.NotificationChannel == "" {
		s.log.Warn("no notification channel configured, summary will not be delivered", "kind", kind)
	}

	summary, err := s.runner.Run(ctx, req)
	switch {
	case err != nil:
		s.log.Error("scheduled summary failed", "kind", kind, "error", err)
	case summary == nil:
		s.log.Info("scheduled summary skipped, empty window", "kind", kind)
	default:
		s.log.Info("scheduled summary completed", "kind", kind, "id", summary.ID)
	}
}

func (s *Scheduler) cleanup(context.Context) {
	n, err := s.store.DeleteWorkflowRunsBefore(time.Now().UTC().Add(-runRetention))
	if err != nil {
		s.log.Error("workflow run cleanup failed", "error", err)
		return
	}
	if n > 0 {
		s.log.Info("workflow runs cleaned up", "deleted", n)
	}
}
