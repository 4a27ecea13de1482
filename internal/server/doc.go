// Package server implements the cruxgate build daemon.
//
// The daemon listens on a Unix domain socket for JSON-encoded commands from
// the cruxgate CLI. Each connection carries a single request-response
// exchange: the client sends a newline-delimited JSON envelope, the server
// dispatches the command, and writes the result back before closing the
// connection.
//
// Builds are serialized. A build request that arrives while another build is
// running is answered with [ErrBusy] instead of being queued, so two builds
// never share a workspace. Status requests report the state of the build in
// progress.
//
// Example usage:
//
//	srv, err := server.New(server.Config{
//	    ContainerdAddress:   "/run/containerd/containerd.sock",
//	    ContainerdNamespace: "cruxgate",
//	})
//	if err != nil {
//	    return err
//	}
//
//	if err := srv.Start(); err != nil {
//	    return err
//	}
//	defer srv.Stop()
//
//	srv.Wait()
package server
