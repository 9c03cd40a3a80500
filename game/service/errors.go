package service

import "errors"

var (
	ErrRunNotFound     = errors.New("run not found")
	ErrRunNotFinished  = errors.New("run has no result yet")
	ErrRunNotRunning   = errors.New("run is not running")
	ErrConfigNotFound  = errors.New("configuration not found")
	ErrServiceShutdown = errors.New("service is shutting down")
)
