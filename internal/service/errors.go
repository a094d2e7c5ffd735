package service

import (
	"errors"

	"beytv/internal/repository"
)

var (
	// ErrNotFound mirrors the repository sentinel for unknown ids.
	ErrNotFound = repository.ErrNotFound

	// ErrInvalidRequest flags malformed input (empty title/locator,
	// unknown status value). The download is never created or mutated.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrInvalidTransition flags a state-machine violation, e.g. a
	// move back to queued after the download left it.
	ErrInvalidTransition = errors.New("invalid status transition")
)
