package store

import "errors"

var (
	// ErrNotFound is returned when the target entity does not exist or is soft-deleted.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when an insert would violate a uniqueness constraint.
	ErrConflict = errors.New("already exists")

	// ErrInvalidInput is returned for syntactically or semantically invalid arguments,
	// such as a bad cron expression or an unknown enum string.
	ErrInvalidInput = errors.New("invalid input")

	// ErrValidation is returned when a state-machine precondition is violated,
	// e.g. cancelling a run that is no longer queued.
	ErrValidation = errors.New("validation failed")

	// ErrDatabase is returned for transport or integrity failures in the store.
	ErrDatabase = errors.New("database error")

	// ErrExecution is returned when launching or waiting on a runner fails.
	ErrExecution = errors.New("execution error")
)
