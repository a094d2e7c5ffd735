package repository

import "errors"

// ErrNotFound is returned when a download or client id does not exist.
// Callers translate it to a not-found response instead of crashing.
var ErrNotFound = errors.New("not found")
