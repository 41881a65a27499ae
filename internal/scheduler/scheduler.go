package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"threatdash/internal/metrics"
)

var (
	ErrRunAlreadyRunning = errors.New("pipeline run already in progress")
	ErrCooldown          = errors.New("pipeline run just completed; wait a few seconds before starting again")
)

const minRunGap = 15 * time.Second

type Runner interface {
	Run(context.Context) error
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(context.Context) error

func (f RunnerFunc) Run(ctx context.Context) error { return f(ctx) }

// Sequence runs each step in order and stops at the first error.
func Sequence(steps ...Runner) Runner {
	return RunnerFunc(func(ctx context.Context) error {
		for _, step := range steps {
			if err := step.Run(ctx); err != nil {
				return err
			}
		}
		return nil
	})
}

type Scheduler struct {
	spec    string
	sched   cron.Schedule
	runner  Runner
	log     *slog.Logger
	runs    metric.Int64Counter
	now     func() time.Time
	cron    *cron.Cron
	mu      sync.Mutex
	running bool
	state   RunState
}

type RunState struct {
	Running         bool      `json:"running"`
	CurrentSource   string    `json:"current_source"`
	StartedAt       time.Time `json:"started_at"`
	LastCompletedAt time.Time `json:"last_completed_at"`
	LastDurationMS  int64     `json:"last_duration_ms"`
	LastError       string    `json:"last_error"`
	LastSource      string    `json:"last_source"`
	NextRun         time.Time `json:"next_run"`
}

// New parses spec as a standard 5-field cron expression. An empty spec
// gives a scheduler that only runs on RunNow.
func New(spec string, runner Runner, log *slog.Logger, m metrics.Instruments) (*Scheduler, error) {
	if log == nil {
		log = slog.Default()
	}
	s := &Scheduler{spec: spec, runner: runner, log: log, runs: m.ScheduledRuns, now: time.Now}
	if spec != "" {
		sched, err := cron.ParseStandard(spec)
		if err != nil {
			return nil, fmt.Errorf("parse cron %q: %w", spec, err)
		}
		s.sched = sched
	}
	return s, nil
}

// Start registers the cron entry and stops it when ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	if s.sched == nil {
		return
	}
	s.cron = cron.New()
	s.cron.Schedule(s.sched, cron.FuncJob(func() {
		if err := s.run(ctx, "scheduled"); err != nil && !errors.Is(err, ErrRunAlreadyRunning) {
			s.log.Error("scheduled run failed", "err", err)
		}
		s.log.Info("next scheduled run", "at", s.sched.Next(s.now()).Format(time.RFC3339))
	}))
	s.cron.Start()
	s.log.Info("scheduler started", "cron", s.spec, "next", s.sched.Next(s.now()).Format(time.RFC3339))
	go func() {
		<-ctx.Done()
		<-s.cron.Stop().Done()
		s.log.Info("scheduler stopped")
	}()
}

func (s *Scheduler) RunNow(ctx context.Context) error {
	return s.run(ctx, "manual")
}

func (s *Scheduler) run(ctx context.Context, source string) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrRunAlreadyRunning
	}
	if !s.state.LastCompletedAt.IsZero() && s.now().Sub(s.state.LastCompletedAt) < minRunGap {
		s.mu.Unlock()
		return ErrCooldown
	}
	s.running = true
	s.state.Running = true
	s.state.CurrentSource = source
	s.state.StartedAt = s.now()
	s.mu.Unlock()

	s.log.Info("pipeline run started", "source", source)
	start := s.now()
	err := s.runner.Run(ctx)
	took := s.now().Sub(start)

	s.mu.Lock()
	s.running = false
	s.state.Running = false
	s.state.CurrentSource = ""
	s.state.LastCompletedAt = s.now()
	s.state.LastDurationMS = took.Milliseconds()
	s.state.LastSource = source
	if err != nil {
		s.state.LastError = err.Error()
	} else {
		s.state.LastError = ""
	}
	s.mu.Unlock()

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	if s.runs != nil {
		s.runs.Add(ctx, 1, metric.WithAttributes(
			attribute.String("source", source),
			attribute.String("outcome", outcome),
		))
	}
	if err != nil {
		s.log.Error("pipeline run finished with error", "source", source, "took", took.Round(time.Millisecond), "err", err)
		return err
	}
	s.log.Info("pipeline run finished", "source", source, "took", took.Round(time.Millisecond))
	return nil
}

func (s *Scheduler) Snapshot() RunState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state
	if s.sched != nil {
		st.NextRun = s.sched.Next(s.now())
	}
	return st
}
