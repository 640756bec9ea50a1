package app

import "errors"

// ErrAuthRequired and related errors describe coordination failures.
var (
	ErrAuthRequired = errors.New("authentication required")
	ErrLeadNotFound = errors.New("lead not found")
)
