package server

import "errors"

var (
	ErrServer = errors.New("server error")
	ErrBusy   = errors.New("a build is already running")
)
