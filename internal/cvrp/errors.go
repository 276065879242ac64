package cvrp

import "errors"

var (
	// ErrFormat reports a persisted problem that is missing fields or has values of the wrong type.
	ErrFormat = errors.New("malformed problem")
	// ErrIO reports a problem file that cannot be read or written.
	ErrIO = errors.New("problem io")
	// ErrConfig reports an out-of-range solver parameter.
	ErrConfig = errors.New("invalid solver config")
	// ErrInfeasibleInput marks a customer whose demand alone exceeds capacity.
	// Solvers do not return it; such customers get a singleton route.
	ErrInfeasibleInput = errors.New("customer demand exceeds capacity")
	// ErrNotReady is returned when a problem cannot be solved yet.
	ErrNotReady = errors.New("problem not ready")
)
