package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrRemovalFailed = errors.New("removal failed")
)
