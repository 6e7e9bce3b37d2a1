package gmp

import "errors"

var (
	ErrInvalidTask      = errors.New("invalid task")
	ErrInvalidEvent     = errors.New("invalid event")
	ErrInvalidQueueItem = errors.New("invalid queue item")
)
