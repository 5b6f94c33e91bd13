package worker

import "errors"

var (
	ErrPoolNotStarted     = errors.New("worker: pool not started")
	ErrPoolStopped        = errors.New("worker: pool stopped")
	ErrPoolAlreadyStarted = errors.New("worker: pool already started")
	ErrNilProcessor       = errors.New("worker: nil process function")
	// ErrStopTimeout means queued work may still be running after Stop returned.
	ErrStopTimeout = errors.New("worker: stop timed out")
)
