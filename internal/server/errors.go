package server

import "errors"

var (
	// ErrInvalidPort is returned for a port outside 1-65535.
	ErrInvalidPort = errors.New("invalid port")
	// ErrPoolClosed is returned by Submit after Shutdown.
	ErrPoolClosed = errors.New("worker pool closed")
	// ErrQueueFull is returned by Submit when every queue slot is taken.
	ErrQueueFull = errors.New("worker queue full")
	// ErrForcedShutdown is returned by Shutdown when tasks had to be cancelled.
	ErrForcedShutdown = errors.New("worker pool forced to shut down")
)
