// Package sweep runs the validation pipeline across many jurisdictions
// concurrently, with bounded fan-out and rate limiting so upstream boundary
// sources are not hammered.
package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/communisaas/boundary-atlas/pkg/geometry"
	"github.com/communisaas/boundary-atlas/pkg/levels"
	"github.com/communisaas/boundary-atlas/pkg/validators"
)

const (
	// DefaultConcurrency bounds simultaneous validations.
	DefaultConcurrency = 4
	// DefaultTaskTimeout bounds a single jurisdiction's validation.
	DefaultTaskTimeout = 2 * time.Minute
	// DefaultRatePerSecond throttles task starts.
	DefaultRatePerSecond = 10
)

// Task is one jurisdiction-level validation to run.
type Task struct {
	JurisdictionID string
	Level          levels.Code
	Collection     *geometry.FeatureCollection
}

// Outcome pairs a task with its pipeline verdict.
type Outcome struct {
	JurisdictionID string                     `json:"jurisdiction_id"`
	Level          levels.Code                `json:"level"`
	Result         validators.PipelineResult  `json:"result"`
	Elapsed        time.Duration              `json:"elapsed"`
}

// Failure records a task that errored rather than producing a verdict.
type Failure struct {
	JurisdictionID string      `json:"jurisdiction_id"`
	Level          levels.Code `json:"level"`
	Err            error       `json:"-"`
	Reason         string      `json:"reason"`
}

// Report is the result of a sweep. A sweep tolerates partial failure: bad
// tasks land in Failures and the rest complete normally.
type Report struct {
	Outcomes []Outcome     `json:"outcomes"`
	Failures []Failure     `json:"failures"`
	Started  time.Time     `json:"started"`
	Elapsed  time.Duration `json:"elapsed"`
}

// Runner executes sweeps against a shared pipeline.
type Runner struct {
	pipeline    *validators.Pipeline
	concurrency int
	timeout     time.Duration
	limiter     *rate.Limiter
	logger      *slog.Logger
}

// Option customizes a Runner.
type Option func(*Runner)

// WithConcurrency sets the fan-out limit.
func WithConcurrency(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithTaskTimeout sets the per-task deadline.
func WithTaskTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithRateLimit sets task starts per second.
func WithRateLimit(perSecond float64) Option {
	return func(r *Runner) {
		if perSecond > 0 {
			r.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// NewRunner creates a sweep runner over the given pipeline.
func NewRunner(pipeline *validators.Pipeline, logger *slog.Logger, opts ...Option) (*Runner, error) {
	if pipeline == nil {
		return nil, fmt.Errorf("sweep runner requires a pipeline")
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Runner{
		pipeline:    pipeline,
		concurrency: DefaultConcurrency,
		timeout:     DefaultTaskTimeout,
		limiter:     rate.NewLimiter(rate.Limit(DefaultRatePerSecond), 1),
		logger:      logger.With("component", "sweep"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Run validates every task and collects outcomes. It returns an error only
// when the sweep itself cannot proceed (e.g. context cancelled); individual
// task errors are reported in Report.Failures.
func (r *Runner) Run(ctx context.Context, tasks []Task) (*Report, error) {
	started := time.Now()
	report := &Report{Started: started}

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for _, task := range tasks {
		g.Go(func() error {
			if err := r.limiter.Wait(ctx); err != nil {
				return err
			}
			outcome, err := r.runOne(ctx, task)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				r.logger.Warn("sweep task failed",
					"jurisdiction", task.JurisdictionID,
					"level", task.Level,
					"error", err,
				)
				report.Failures = append(report.Failures, Failure{
					JurisdictionID: task.JurisdictionID,
					Level:          task.Level,
					Err:            err,
					Reason:         err.Error(),
				})
				return nil
			}
			report.Outcomes = append(report.Outcomes, *outcome)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("sweep aborted: %w", err)
	}

	sort.Slice(report.Outcomes, func(i, j int) bool {
		if report.Outcomes[i].JurisdictionID != report.Outcomes[j].JurisdictionID {
			return report.Outcomes[i].JurisdictionID < report.Outcomes[j].JurisdictionID
		}
		return report.Outcomes[i].Level < report.Outcomes[j].Level
	})
	sort.Slice(report.Failures, func(i, j int) bool {
		return report.Failures[i].JurisdictionID < report.Failures[j].JurisdictionID
	})

	report.Elapsed = time.Since(started)
	r.logger.Info("sweep complete",
		"tasks", len(tasks),
		"ok", len(report.Outcomes),
		"failed", len(report.Failures),
		"elapsed", report.Elapsed,
	)
	return report, nil
}

func (r *Runner) runOne(ctx context.Context, task Task) (*Outcome, error) {
	if task.JurisdictionID == "" {
		return nil, fmt.Errorf("task requires a jurisdiction id")
	}
	if task.Collection == nil {
		return nil, fmt.Errorf("task for %q has no collection", task.JurisdictionID)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	result, err := r.pipeline.Validate(ctx, task.Collection, task.JurisdictionID, task.Level)
	if err != nil {
		return nil, err
	}
	outcome := &Outcome{
		JurisdictionID: task.JurisdictionID,
		Level:          task.Level,
		Result:         result,
		Elapsed:        time.Since(start),
	}
	return outcome, nil
}
