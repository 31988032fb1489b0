package syncer

import (
	"context"
	"errors"
	"os"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/procsync/internal/catalog"
	"github.com/roach88/procsync/internal/compiler"
	"github.com/roach88/procsync/internal/procedure"
	"github.com/roach88/procsync/internal/remote"
)

// runContainer runs the phases of one container. Outcomes are indexed like
// c.Scripts.
func (e *Engine) runContainer(ctx context.Context, r *run, c catalog.Container) ContainerReport {
	rep := ContainerReport{
		Name:     c.Name,
		Outcomes: make([]procedure.Outcome, len(c.Scripts)),
	}
	log := r.logger.With(zap.String("container", c.Name))

	compiled := e.compileAll(ctx, r, c, rep.Outcomes)
	if r.mode == ModeCompile {
		return rep
	}
	if len(compiled) == 0 {
		log.Debug("nothing compiled, skipping snapshot")
		return rep
	}

	snap, err := e.snapshot(ctx, c.Name)
	if err != nil {
		rep.SnapshotErr = err
		log.Error("snapshot failed", zap.String("op", string(procedure.StageSnapshot)), zap.Error(err))
		for _, i := range compiled {
			rep.Outcomes[i] = e.finish(ctx, r, procedure.Outcome{
				Container: c.Name,
				Script:    c.Scripts[i],
				Stage:     procedure.StageSnapshot,
				Err:       err,
			})
		}
		return rep
	}
	rep.Snapshot = snap.IDs()
	log.Debug("snapshot fetched", zap.Int("existing", snap.Len()))

	type planned struct {
		index  int
		action procedure.Action
	}
	var deploys []planned
	for _, i := range compiled {
		script := c.Scripts[i]
		action, err := snap.Classify(script)
		if err != nil || r.mode == ModePlan {
			rep.Outcomes[i] = e.finish(ctx, r, procedure.Outcome{
				Container: c.Name,
				Script:    script,
				Stage:     procedure.StageClassify,
				Action:    action,
				Err:       err,
			})
			continue
		}
		deploys = append(deploys, planned{index: i, action: action})
	}
	if len(deploys) == 0 {
		return rep
	}

	dir, _ := e.registry.Lookup(c.Name)
	var g errgroup.Group
	for _, d := range deploys {
		g.Go(func() error {
			o := e.deploy(ctx, r, dir, c.Name, c.Scripts[d.index], d.action)
			rep.Outcomes[d.index] = e.finish(ctx, r, o)
			return nil
		})
	}
	_ = g.Wait()
	return rep
}

// compileAll compiles every script of c and returns the indexes of the
// scripts that compiled. Failed compiles get their final outcome here.
func (e *Engine) compileAll(ctx context.Context, r *run, c catalog.Container, outcomes []procedure.Outcome) []int {
	ok := make([]bool, len(c.Scripts))

	var g errgroup.Group
	if e.parallelism > 0 {
		g.SetLimit(e.parallelism)
	}
	for i, script := range c.Scripts {
		g.Go(func() error {
			err := e.compiler.Compile(ctx, c.Name, script)
			if err != nil {
				var ce *compiler.CompileError
				if !errors.As(err, &ce) {
					err = &compiler.CompileError{Container: c.Name, Script: script, Cause: err}
				}
				outcomes[i] = e.finish(ctx, r, procedure.Outcome{
					Container: c.Name,
					Script:    script,
					Stage:     procedure.StageCompile,
					Err:       err,
				})
				return nil
			}
			ok[i] = true
			if r.mode == ModeCompile {
				outcomes[i] = e.finish(ctx, r, procedure.Outcome{
					Container: c.Name,
					Script:    script,
					Stage:     procedure.StageCompile,
				})
				return nil
			}
			r.logger.Info("compiled",
				zap.String("container", c.Name),
				zap.String("script", script),
				zap.String("op", string(procedure.StageCompile)))
			return nil
		})
	}
	_ = g.Wait()

	var compiled []int
	for i, done := range ok {
		if done {
			compiled = append(compiled, i)
		}
	}
	return compiled
}

// snapshot lists the container's existing procedures once.
func (e *Engine) snapshot(ctx context.Context, container string) (*procedure.Snapshot, error) {
	dir, ok := e.registry.Lookup(container)
	if !ok {
		return nil, &remote.SnapshotFetchError{Container: container, Err: remote.ErrNoDirectory}
	}
	ids, err := dir.ListExisting(ctx)
	if err != nil {
		return nil, &remote.SnapshotFetchError{Container: container, Err: err}
	}
	return procedure.NewSnapshot(ids), nil
}

// deploy reads one artifact and issues its create or replace call.
func (e *Engine) deploy(ctx context.Context, r *run, dir remote.Directory, container, script string, action procedure.Action) procedure.Outcome {
	o := procedure.Outcome{
		Container: container,
		Script:    script,
		Stage:     procedure.StageRead,
		Action:    action,
	}

	path := r.layout.ArtifactPath(container, script)
	data, err := os.ReadFile(path)
	if err != nil {
		o.Err = &ArtifactError{Container: container, Script: script, Path: path, Err: err}
		return o
	}

	rec := procedure.NewRecord(script, string(data))
	o.Stage = procedure.StageDeploy
	o.Digest = rec.Digest()

	switch action {
	case procedure.ActionReplace:
		if err := dir.Replace(ctx, rec); err != nil {
			o.Err = &remote.RemoteReplaceError{Container: container, Script: script, Err: err}
			return o
		}
	default:
		if err := dir.Create(ctx, rec); err != nil {
			o.Err = &remote.RemoteCreateError{Container: container, Script: script, Err: err}
			return o
		}
	}

	if e.archiver != nil {
		if err := e.archiver.Archive(ctx, r.id, container, rec); err != nil {
			r.logger.Warn("archive failed",
				zap.String("container", container),
				zap.String("script", script),
				zap.Error(err))
		}
	}
	return o
}
