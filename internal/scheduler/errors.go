package scheduler

import "errors"

var (
	// ErrGroupNotFound is returned for unknown thread group ids.
	ErrGroupNotFound = errors.New("scheduler: thread group not found")
	// ErrGroupExists is returned when a group id is already taken.
	ErrGroupExists = errors.New("scheduler: thread group already exists")
	// ErrReservedGroup is returned for operations on reserved group ids.
	ErrReservedGroup = errors.New("scheduler: reserved thread group id")
	// ErrPoolExhausted is returned when no goroutine is left for a new group.
	ErrPoolExhausted = errors.New("scheduler: worker pool exhausted")
	// ErrNotScheduled is returned for generators that belong to no group.
	ErrNotScheduled = errors.New("scheduler: generator not scheduled")
	// ErrStopped is returned after Stop.
	ErrStopped = errors.New("scheduler: thread pool stopped")
)
