package report

import "errors"

var (
	ErrMalformedJUnit    = errors.New("malformed junit report")
	ErrMalformedCoverage = errors.New("malformed coverage report")
	ErrPersist           = errors.New("failed to persist report")
)
