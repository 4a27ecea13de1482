package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"

	"github.com/cruciblehq/cruxgate/internal/paths"
	"github.com/cruciblehq/cruxgate/internal/protocol"
)

var ErrDaemon = errors.New("daemon request failed")

// Returned by a daemon build that aborted.
type remoteBuildError struct {
	kind    string
	message string
}

func (e *remoteBuildError) Error() string {
	return e.message
}

// Sends one command to the daemon and waits for its reply.
//
// Cancelling ctx closes the connection, which the daemon treats as a
// cancellation of the request.
func call(ctx context.Context, socket string, cmd protocol.Command, payload any) (json.RawMessage, error) {
	if socket == "" {
		socket = paths.Socket()
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", socket)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDaemon, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	data, err := protocol.Encode(cmd, payload)
	if err != nil {
		return nil, err
	}
	if _, err := conn.Write(append(data, '\n')); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDaemon, err)
	}

	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", ErrDaemon, err)
	}

	env, raw, err := protocol.Decode(line)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDaemon, err)
	}

	switch env.Command {
	case protocol.CmdOK:
		return raw, nil
	case protocol.CmdError:
		res, err := protocol.DecodePayload[protocol.ErrorResult](raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrDaemon, err)
		}
		return nil, fmt.Errorf("%w: %s", ErrDaemon, res.Message)
	default:
		return nil, fmt.Errorf("%w: unexpected reply %q", ErrDaemon, env.Command)
	}
}
