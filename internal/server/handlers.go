package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/cruciblehq/cruxgate/internal"
	"github.com/cruciblehq/cruxgate/internal/build"
	"github.com/cruciblehq/cruxgate/internal/paths"
	"github.com/cruciblehq/cruxgate/internal/protocol"
	"github.com/cruciblehq/cruxgate/internal/publish"
	"github.com/cruciblehq/cruxgate/internal/recipe"
	"github.com/cruciblehq/cruxgate/internal/report"
)

// Handles a build command.
//
// Only one build runs at a time; a second request is rejected with
// [ErrBusy]. A build that reaches a decision is answered with "ok" whether
// it finalized or aborted, so the client can tell the failing stage apart
// from a daemon error.
func (s *Server) handleBuild(ctx context.Context, conn net.Conn, payload json.RawMessage) {
	req, err := protocol.DecodePayload[protocol.BuildRequest](payload)
	if err != nil {
		s.respond(conn, protocol.CmdError, &protocol.ErrorResult{Message: err.Error()})
		return
	}

	id := req.BuildID
	if id == "" {
		id = uuid.NewString()
	}

	if !s.begin(id) {
		s.respond(conn, protocol.CmdError, &protocol.ErrorResult{Message: ErrBusy.Error()})
		return
	}
	defer s.finish()

	r, err := recipe.Resolve(req.Recipe)
	if err != nil {
		s.respond(conn, protocol.CmdError, &protocol.ErrorResult{Message: err.Error()})
		return
	}

	output := outputDir(req.Output, r.Name)

	res, err := build.Run(ctx, s.prov, build.Options{
		Recipe:       r,
		Output:       output,
		BuildID:      id,
		Publisher:    publish.ForRecipe(r),
		OnTransition: s.observe,
	})
	if res == nil {
		s.respond(conn, protocol.CmdError, &protocol.ErrorResult{Message: err.Error()})
		return
	}

	s.respond(conn, protocol.CmdOK, buildResult(res, output, err))
}

// Handles a status command.
func (s *Server) handleStatus(conn net.Conn) {
	s.mu.Lock()
	builds := s.builds
	current := s.current
	state := s.state
	s.mu.Unlock()

	uptime := time.Since(s.startedAt).Truncate(time.Second)

	s.respond(conn, protocol.CmdOK, &protocol.StatusResult{
		Running: true,
		Version: internal.VersionString(),
		Pid:     os.Getpid(),
		Uptime:  uptime.String(),
		Builds:  builds,
		Current: current,
		State:   string(state),
	})
}

// Handles a shutdown command.
func (s *Server) handleShutdown(conn net.Conn) {
	s.respond(conn, protocol.CmdOK, nil)
	slog.Info("shutdown requested")

	go func() {
		s.Stop()
	}()
}

// Claims the build slot. Returns false if a build is already running.
func (s *Server) begin(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != "" {
		return false
	}
	s.current = id
	s.state = build.StateInit
	s.builds++
	return true
}

// Releases the build slot.
func (s *Server) finish() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current = ""
	s.state = ""
}

// Records the state of the build in progress.
func (s *Server) observe(state build.State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()

	slog.Debug("build state", "state", state)
}

// Returns the requested output directory, or the per-recipe builds
// directory under the XDG data home when none was requested.
func outputDir(requested, recipeName string) string {
	if requested != "" {
		return requested
	}
	return paths.Builds(recipeName)
}

func buildResult(res *build.Result, output string, err error) *protocol.BuildResult {
	out := &protocol.BuildResult{
		BuildID: res.BuildID,
		State:   string(res.State),
	}
	if res.Report != nil {
		out.Status = string(res.Report.Status)
		out.Report = filepath.Join(output, report.JSONFile)
	}
	if res.Image != nil {
		out.Image = res.Image.Path
		out.Digest = res.Image.Digest.String()
	}
	if err != nil {
		out.Kind = build.FailureKind(err)
		out.Error = err.Error()
	}
	return out
}
