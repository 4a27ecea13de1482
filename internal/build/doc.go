// Package build runs gated builds against container workspaces.
//
// A gated build is a fixed sequence of stages over a single workspace
// created from the recipe's base image: every manifest entry is installed,
// the source tree is staged into the workdir, and the verification gate runs
// the recipe's verification command and produces exactly one report. Only a
// PASSED report yields the clearance the finalizer requires, so a workspace
// whose verification failed can never become an image. Progress is tracked
// by a [State] machine that ends in FINALIZED or ABORTED.
//
// Workspaces are provided by a [Provisioner]; [NewProvisioner] adapts the
// containerd-backed runtime package.
//
// Example usage:
//
//	r, err := recipe.Load("cruxgate.yaml")
//	if err != nil {
//	    return err
//	}
//
//	result, err := build.Run(ctx, build.NewProvisioner(rt), build.Options{
//	    Recipe: r,
//	    Output: "dist",
//	})
//	if err != nil {
//	    return err
//	}
package build
