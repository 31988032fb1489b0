package syncer

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/procsync/internal/catalog"
	"github.com/roach88/procsync/internal/compiler"
	"github.com/roach88/procsync/internal/procedure"
	"github.com/roach88/procsync/internal/remote"
)

// Mode selects how far the pipeline runs.
type Mode string

const (
	// ModeSync runs all four phases.
	ModeSync Mode = "sync"
	// ModePlan stops after classification; no write call is issued.
	ModePlan Mode = "plan"
	// ModeCompile stops after compilation; the remote is not contacted.
	ModeCompile Mode = "compile"
)

// Catalog is the discovery source of a run.
type Catalog interface {
	Discover() ([]catalog.Container, error)
	Layout() catalog.Layout
}

// Ledger records runs and their outcomes.
type Ledger interface {
	BeginRun(ctx context.Context, runID, mode string, startedAt time.Time) error
	RecordOutcome(ctx context.Context, runID string, o procedure.Outcome) error
	FinishRun(ctx context.Context, runID string, finishedAt time.Time) error
}

// Archiver keeps a copy of every deployed body.
type Archiver interface {
	Archive(ctx context.Context, runID, container string, rec procedure.Record) error
}

// Engine runs the pipeline over a catalog.
//
// An Engine holds no per-run state and may run several times, including
// concurrently.
type Engine struct {
	catalog     Catalog
	compiler    compiler.Compiler
	registry    *remote.Registry
	logger      *zap.Logger
	ledger      Ledger
	archiver    Archiver
	runIDs      RunIDGenerator
	parallelism int
	now         func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger for status lines. Default: no-op.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithLedger records every run and outcome.
func WithLedger(l Ledger) Option {
	return func(e *Engine) {
		e.ledger = l
	}
}

// WithArchiver archives every successfully deployed body.
func WithArchiver(a Archiver) Option {
	return func(e *Engine) {
		e.archiver = a
	}
}

// WithRunIDGenerator overrides UUIDv7 run ids.
func WithRunIDGenerator(g RunIDGenerator) Option {
	return func(e *Engine) {
		e.runIDs = g
	}
}

// WithCompileParallelism bounds concurrent compilations per container.
// Zero or negative means unbounded.
func WithCompileParallelism(n int) Option {
	return func(e *Engine) {
		e.parallelism = n
	}
}

// WithNow overrides the wall clock used for run timestamps.
func WithNow(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// New creates an Engine. The registry must hold a directory for every
// container that will be snapshotted; a missing one fails that container's
// snapshot phase only.
func New(cat Catalog, comp compiler.Compiler, reg *remote.Registry, opts ...Option) *Engine {
	e := &Engine{
		catalog:  cat,
		compiler: comp,
		registry: reg,
		logger:   zap.NewNop(),
		runIDs:   UUIDv7Generator{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.registry == nil {
		e.registry = remote.NewRegistry()
	}
	return e
}

// RunOptions selects what a run does.
type RunOptions struct {
	// Mode defaults to ModeSync.
	Mode Mode
	// Containers restricts the run to the named containers. Empty means
	// every discovered container.
	Containers []string
}

// run is the state shared by the containers of one run.
type run struct {
	id     string
	mode   Mode
	clock  *Clock
	layout catalog.Layout
	logger *zap.Logger
}

// Run discovers the catalog and runs the pipeline for every selected
// container. The returned error is non-nil only for discovery failures and
// unknown container names; every other failure is in the Report.
func (e *Engine) Run(ctx context.Context, opts RunOptions) (*Report, error) {
	mode := opts.Mode
	if mode == "" {
		mode = ModeSync
	}
	switch mode {
	case ModeSync, ModePlan, ModeCompile:
	default:
		return nil, fmt.Errorf("unknown run mode %q", mode)
	}

	containers, err := e.catalog.Discover()
	if err != nil {
		return nil, err
	}
	containers, err = filterContainers(containers, opts.Containers)
	if err != nil {
		return nil, err
	}

	r := &run{
		id:     e.runIDs.Generate(),
		mode:   mode,
		clock:  NewClock(),
		layout: e.catalog.Layout(),
	}
	r.logger = e.logger.With(zap.String("run", r.id))

	report := &Report{
		RunID:      r.id,
		Mode:       mode,
		StartedAt:  e.now(),
		Containers: make([]ContainerReport, len(containers)),
	}
	r.logger.Debug("run started",
		zap.String("mode", string(mode)),
		zap.Int("containers", len(containers)))

	if e.ledger != nil {
		if err := e.ledger.BeginRun(ctx, r.id, string(mode), report.StartedAt); err != nil {
			r.logger.Warn("ledger begin failed", zap.Error(err))
		}
	}

	// Tasks never return an error, so no container cancels another.
	var g errgroup.Group
	for i, c := range containers {
		g.Go(func() error {
			report.Containers[i] = e.runContainer(ctx, r, c)
			return nil
		})
	}
	_ = g.Wait()

	report.FinishedAt = e.now()
	if e.ledger != nil {
		if err := e.ledger.FinishRun(ctx, r.id, report.FinishedAt); err != nil {
			r.logger.Warn("ledger finish failed", zap.Error(err))
		}
	}

	s := report.Summary()
	r.logger.Info("run finished",
		zap.String("mode", string(mode)),
		zap.Int("scripts", s.Scripts),
		zap.Int("failed", s.Failed))
	return report, nil
}

// filterContainers keeps the named containers, preserving discovery order.
func filterContainers(all []catalog.Container, names []string) ([]catalog.Container, error) {
	if len(names) == 0 {
		return all, nil
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[procedure.NormalizeID(n)] = true
	}
	var out []catalog.Container
	for _, c := range all {
		if want[c.Name] {
			out = append(out, c)
			delete(want, c.Name)
		}
	}
	if len(want) > 0 {
		unknown := make([]string, 0, len(want))
		for n := range want {
			unknown = append(unknown, n)
		}
		sort.Strings(unknown)
		return nil, &UnknownContainerError{Names: unknown}
	}
	return out, nil
}

// finish stamps, logs and records a script's final outcome.
func (e *Engine) finish(ctx context.Context, r *run, o procedure.Outcome) procedure.Outcome {
	o.Seq = r.clock.Next()

	fields := []zap.Field{
		zap.String("container", o.Container),
		zap.String("script", o.Script),
		zap.String("op", string(o.Stage)),
	}
	if o.Action != "" {
		fields = append(fields, zap.String("action", string(o.Action)))
	}
	if o.Err != nil {
		r.logger.Error(o.Status(), append(fields, zap.Error(o.Err))...)
	} else {
		r.logger.Info(o.Status(), fields...)
	}

	if e.ledger != nil {
		if err := e.ledger.RecordOutcome(ctx, r.id, o); err != nil {
			r.logger.Warn("ledger record failed",
				zap.String("container", o.Container),
				zap.String("script", o.Script),
				zap.Error(err))
		}
	}
	return o
}
