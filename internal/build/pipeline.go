package build

import (
	"context"
	"log/slog"

	"github.com/cruciblehq/cruxgate/internal/manifest"
	"github.com/cruciblehq/cruxgate/internal/report"
)

// Holds the state of a single gated build.
type pipeline struct {
	prov    Provisioner
	opts    Options
	machine *machine
	env     *execEnv
}

func newPipeline(prov Provisioner, opts Options) *pipeline {
	return &pipeline{
		prov:    prov,
		opts:    opts,
		machine: newMachine(opts.OnTransition),
		env:     newExecEnv(opts.Recipe),
	}
}

// Runs the stages in order and moves the state machine along with them.
//
// Every error ends the build in ABORTED.
func (p *pipeline) run(ctx context.Context) (res *Result, err error) {
	r := p.opts.Recipe
	res = &Result{BuildID: p.opts.BuildID}

	defer func() {
		if err != nil {
			p.machine.abort()
			slog.Debug("build aborted", "build", p.opts.BuildID, "error", err)
		}
		res.State = p.machine.state
	}()

	m, err := manifest.Load(r.ManifestPath())
	if err != nil {
		return res, err
	}

	ws, err := p.prov.Provision(ctx, r.BaseRef(), workspaceID(r.Name, p.opts.BuildID), r.Platform)
	if err != nil {
		return res, err
	}
	defer ws.Destroy(context.WithoutCancel(ctx))

	// Stages are not interrupted once started.
	sctx := context.WithoutCancel(ctx)

	slog.Info("installing dependencies", "count", m.Len(), "manifest", m.Path)
	if err := install(sctx, ws, m, r.Install.Command, p.env, p.opts.Progress); err != nil {
		return res, err
	}
	if err := p.advance(ctx, StateDependenciesInstalled); err != nil {
		return res, err
	}

	n, err := stage(sctx, ws, r.SourcePath(), r.Workdir, r.Ignore)
	if err != nil {
		return res, err
	}
	slog.Info("source staged", "entries", n, "workdir", r.Workdir)
	if err := p.advance(ctx, StateSourceStaged); err != nil {
		return res, err
	}

	g := &gate{
		ws:      ws,
		recipe:  r,
		env:     p.env,
		buildID: p.opts.BuildID,
		output:  p.opts.Output,
		summary: p.opts.Summary,
		styled:  p.opts.Styled,
	}
	clr, rep, gateErr := g.run(sctx)
	if rep == nil {
		return res, gateErr
	}
	res.Report = rep
	if err := p.machine.advance(StateVerified); err != nil {
		return res, err
	}

	p.publish(sctx, rep)

	if gateErr != nil {
		return res, gateErr
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}

	img, err := finalize(sctx, ws, clr, r, p.opts.BuildID, p.opts.Output)
	if err != nil {
		return res, err
	}
	res.Image = img

	return res, p.machine.advance(StateFinalized)
}

// Advances the state machine, then honors cancellation.
func (p *pipeline) advance(ctx context.Context, to State) error {
	if err := p.machine.advance(to); err != nil {
		return err
	}
	return ctx.Err()
}

// Uploads the report when a publisher is configured. Upload failures do not
// change the build outcome.
func (p *pipeline) publish(ctx context.Context, rep *report.Report) {
	if p.opts.Publisher == nil {
		return
	}
	if err := p.opts.Publisher.Publish(ctx, rep); err != nil {
		slog.Warn("failed to publish report", "error", err)
	}
}
