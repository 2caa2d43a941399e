// Package common contains shared constants and sentinel errors used across
// fieldsync components. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Local-store errors. A failed write is retried on the next persist;
	// the in-memory state is never dropped because of one.
	ErrPersistence = errors.New("persistence error")

	// Backend transport errors (unreachable, circuit open, or rejected).
	ErrTransport = errors.New("transport error")

	// Connectivity gate errors.
	ErrOffline = errors.New("device is offline")
	ErrBlocked = errors.New("offline work limit reached")

	// Time-entry lifecycle errors.
	ErrAlreadyCompleted = errors.New("service type already completed")
	ErrNoActiveEntry    = errors.New("no active time entry")
)
