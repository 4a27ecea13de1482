// Package runtime manages containers backed by containerd.
//
// A [Runtime] connects to a containerd daemon and provides the image and
// container operations the gated build needs. Base images are either pulled
// from a registry or imported from an OCI archive, unpacked for the target
// platform, and used to create build containers with fuse-overlayfs
// snapshots.
//
// Each [Container] wraps a running containerd task. Commands can be
// executed inside the container, files can be copied in and out as tar
// streams, and the final filesystem state can be committed and exported
// as a new OCI archive carrying an [ImageConfig]. When the container is no
// longer needed it should be destroyed to release its snapshot and task
// resources.
//
// A finalized archive is served by [Runtime.Launch], which starts the
// image's own entrypoint as a [Process] in the host network namespace.
//
// Example usage:
//
//	rt, err := runtime.New("/run/containerd/containerd.sock", "cruxgate")
//	if err != nil {
//	    return err
//	}
//	defer rt.Close()
//
//	ctr, err := rt.StartContainer(ctx, "python:3.11-slim", "app-1a2b3c4d", "linux/amd64")
//	if err != nil {
//	    return err
//	}
//	defer ctr.Destroy(ctx)
//
//	result, err := ctr.Exec(ctx, "/bin/sh", "python -m pytest", nil, "/app")
//	if err != nil {
//	    return err
//	}
//
//	if err := ctr.Export(ctx, "dist/image.tar", runtime.ImageConfig{Ports: []int{5000}}); err != nil {
//	    return err
//	}
package runtime
