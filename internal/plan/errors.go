package plan

import "errors"

var (
	// ErrInvalidArgument is returned for a missing channel id or a time
	// outside the daily cycle. The operation is not applied.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotFound is returned when an operation addresses a channel id the
	// plan does not contain.
	ErrNotFound = errors.New("channel not found")
)
