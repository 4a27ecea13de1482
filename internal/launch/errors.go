package launch

import "errors"

var (
	ErrLaunch      = errors.New("launch failed")
	ErrNotGated    = errors.New("image was not produced by a passing build")
	ErrNoPort      = errors.New("image declares no tcp port")
	ErrNotReady    = errors.New("process is not accepting connections")
	ErrExitedEarly = errors.New("process exited")
)
