package domain

import "errors"

var (
	ErrNotFound          = errors.New("job not found")
	ErrInvalidTransition = errors.New("invalid job state transition")
	ErrNotComplete       = errors.New("job is not complete")
	ErrStorage           = errors.New("storage failure")
)
