package engine

import "errors"

var (
	// ErrNotFound is returned on any entity lookup miss. Callers surface it
	// without retrying.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyEnrolled is returned when the (contact, sequence) pair
	// already has an active enrollment.
	ErrAlreadyEnrolled = errors.New("contact already has an active enrollment in this sequence")

	// ErrNoFirstStep is returned when the target sequence has no step at
	// order 1.
	ErrNoFirstStep = errors.New("sequence has no first step")

	// ErrNotActive is returned when executing a step on an enrollment that
	// is not in the active state.
	ErrNotActive = errors.New("enrollment is not active")

	// ErrConcurrentUpdate is returned when an optimistic guard detects that
	// another request mutated the enrollment first.
	ErrConcurrentUpdate = errors.New("enrollment was modified concurrently")
)
