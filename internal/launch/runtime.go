package launch

import (
	"context"
	"io"
	"syscall"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/cruciblehq/cruxgate/internal/runtime"
)

// Container operations the launcher needs.
type Runtime interface {
	ImportImage(ctx context.Context, path, tag string) error
	ImageConfig(ctx context.Context, tag string) (ocispec.ImageConfig, error)
	Launch(ctx context.Context, tag, id string, stdout, stderr io.Writer) (Process, error)
	DestroyImage(ctx context.Context, tag string) error
}

// A started service process.
type Process interface {
	Done() <-chan struct{}
	ExitCode() (int, error)
	Signal(ctx context.Context, sig syscall.Signal) error
	Delete(ctx context.Context) error
}

type containerdRuntime struct {
	*runtime.Runtime
}

// Adapts the containerd-backed runtime.
func NewRuntime(rt *runtime.Runtime) Runtime {
	return &containerdRuntime{Runtime: rt}
}

func (r *containerdRuntime) Launch(ctx context.Context, tag, id string, stdout, stderr io.Writer) (Process, error) {
	p, err := r.Runtime.Launch(ctx, tag, id, stdout, stderr)
	if err != nil {
		return nil, err
	}
	return p, nil
}
