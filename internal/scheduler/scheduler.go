package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/bondify/bondify/internal/domain"
	"github.com/bondify/bondify/internal/store"
)

const (
	defaultConcurrency = 4
	jobTimeout         = 5 * time.Minute
)

// WindowCloser closes bonds whose subscription window has ended.
type WindowCloser interface {
	CloseExpired(ctx context.Context, now time.Time) ([]string, error)
}

// Maturer runs maturity processing for one bond.
type Maturer interface {
	MatureBond(ctx context.Context, bondID string) ([]domain.Event, error)
}

// BondLister finds maturity candidates.
type BondLister interface {
	ListBonds(ctx context.Context, filter store.BondFilter) ([]domain.Bond, error)
}

// Config holds the cron expressions and the maturity fan-out limit.
type Config struct {
	WindowSweepSchedule   string
	MaturitySweepSchedule string
	MaturityConcurrency   int
}

// Jobs holds the sweep implementations. They are exported so tests and
// operators can run a sweep without waiting for the schedule.
type Jobs struct {
	windows     WindowCloser
	maturer     Maturer
	bonds       BondLister
	logger      *slog.Logger
	concurrency int
	now         func() time.Time
}

// NewJobs builds the sweep jobs.
func NewJobs(windows WindowCloser, maturer Maturer, bonds BondLister, logger *slog.Logger, concurrency int) *Jobs {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Jobs{
		windows:     windows,
		maturer:     maturer,
		bonds:       bonds,
		logger:      logger,
		concurrency: concurrency,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// SweepWindows closes expired subscription windows.
func (j *Jobs) SweepWindows(ctx context.Context) error {
	closed, err := j.windows.CloseExpired(ctx, j.now())
	if err != nil {
		return fmt.Errorf("window sweep: %w", err)
	}
	if len(closed) > 0 {
		j.logger.Info("window sweep closed bonds", "count", len(closed), "bond_ids", closed)
	}
	return nil
}

// SweepMaturities matures every bond past its maturity date. A bond matured
// concurrently by another caller is skipped. A failing bond does not stop
// the others; every failure is returned joined.
func (j *Jobs) SweepMaturities(ctx context.Context) (int, error) {
	due, err := j.bonds.ListBonds(ctx, store.BondFilter{MaturedBy: j.now(), Unmatured: true})
	if err != nil {
		return 0, fmt.Errorf("list maturing bonds: %w", err)
	}
	if len(due) == 0 {
		return 0, nil
	}

	results := make([]bool, len(due))
	failures := make([]error, len(due))
	var g errgroup.Group
	g.SetLimit(j.concurrency)
	for i, bond := range due {
		g.Go(func() error {
			events, err := j.maturer.MatureBond(ctx, bond.ID)
			switch {
			case errors.Is(err, domain.ErrAlreadyMatured), errors.Is(err, domain.ErrNotMatured):
				return nil
			case err != nil:
				failures[i] = fmt.Errorf("mature bond %s: %w", bond.ID, err)
				j.logger.Warn("maturity sweep skipped bond", "bond_id", bond.ID, "error", err)
				return nil
			}
			results[i] = true
			j.logger.Info("maturity sweep matured bond", "bond_id", bond.ID, "events", len(events))
			return nil
		})
	}
	_ = g.Wait()

	matured := 0
	for _, ok := range results {
		if ok {
			matured++
		}
	}
	return matured, errors.Join(failures...)
}

// Scheduler runs the sweeps on their cron schedules.
type Scheduler struct {
	cron   *cron.Cron
	jobs   *Jobs
	cfg    Config
	logger *slog.Logger
}

// New creates a scheduler whose jobs recover from panics and log through slog.
func New(jobs *Jobs, cfg Config, logger *slog.Logger) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)))
	return &Scheduler{cron: c, jobs: jobs, cfg: cfg, logger: logger}
}

// Start registers the sweeps and starts the cron loop. An empty schedule
// disables its job.
func (s *Scheduler) Start() error {
	if s.cfg.WindowSweepSchedule != "" {
		if _, err := s.cron.AddFunc(s.cfg.WindowSweepSchedule, s.runWindowSweep); err != nil {
			return fmt.Errorf("schedule window sweep: %w", err)
		}
		s.logger.Info("scheduled window sweep", "schedule", s.cfg.WindowSweepSchedule)
	}
	if s.cfg.MaturitySweepSchedule != "" {
		if _, err := s.cron.AddFunc(s.cfg.MaturitySweepSchedule, s.runMaturitySweep); err != nil {
			return fmt.Errorf("schedule maturity sweep: %w", err)
		}
		s.logger.Info("scheduled maturity sweep", "schedule", s.cfg.MaturitySweepSchedule)
	}
	s.cron.Start()
	return nil
}

// Stop halts scheduling. The returned context is done once running jobs
// have finished.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) runWindowSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	if err := s.jobs.SweepWindows(ctx); err != nil {
		s.logger.Error("window sweep failed", "error", err)
	}
}

func (s *Scheduler) runMaturitySweep() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	matured, err := s.jobs.SweepMaturities(ctx)
	if err != nil {
		s.logger.Error("maturity sweep failed", "error", err, "matured", matured)
		return
	}
	if matured > 0 {
		s.logger.Info("maturity sweep finished", "matured", matured)
	}
}
