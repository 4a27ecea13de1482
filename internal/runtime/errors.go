package runtime

import "errors"

var (
	ErrRuntime        = errors.New("runtime error")
	ErrEmptyIndex     = errors.New("empty image index")
	ErrEmptyArchive   = errors.New("archive contains no images")
	ErrMultipleImages = errors.New("archive contains more than one image")
)
