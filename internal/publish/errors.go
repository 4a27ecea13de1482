package publish

import "errors"

var (
	ErrPublish     = errors.New("report upload failed")
	ErrCredentials = errors.New("object storage credentials missing")
)
