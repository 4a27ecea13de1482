package build

import (
	"context"
	"io"

	"github.com/cruciblehq/cruxgate/internal/runtime"
)

// Isolated filesystem a single build installs into, stages into, verifies,
// and finally exports.
//
// [runtime.Container] is the production implementation.
type Workspace interface {
	Exec(ctx context.Context, shell, command string, env []string, workdir string) (*runtime.ExecResult, error)
	ExecArgs(ctx context.Context, args []string, env []string, workdir string) (*runtime.ExecResult, error)
	MkdirAll(ctx context.Context, path string) error
	Remove(ctx context.Context, path string) error
	CopyTo(ctx context.Context, r io.Reader, destDir string) error
	CopyFrom(ctx context.Context, w io.Writer, path string) error
	Stop(ctx context.Context) error
	Export(ctx context.Context, path string, cfg runtime.ImageConfig) error
	Destroy(ctx context.Context)
}

// Creates workspaces from base images.
type Provisioner interface {
	Provision(ctx context.Context, base, id, platform string) (Workspace, error)
}

// Provisions containerd-backed workspaces.
type runtimeProvisioner struct {
	rt *runtime.Runtime
}

// Returns a [Provisioner] that starts build containers on rt.
func NewProvisioner(rt *runtime.Runtime) Provisioner {
	return &runtimeProvisioner{rt: rt}
}

func (p *runtimeProvisioner) Provision(ctx context.Context, base, id, platform string) (Workspace, error) {
	ctr, err := p.rt.StartContainer(ctx, base, id, platform)
	if err != nil {
		return nil, err
	}
	return ctr, nil
}
