// Package storage declares the errors shared by every persistence backend
// (MySQL in package repository, in-process maps in repository/memory) so
// that callers can tell failure scenarios apart without importing a driver.
package storage

import "errors"

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a write violates a uniqueness
	// constraint (confirmed booking per user and event, event code).
	ErrDuplicate = errors.New("duplicate")
	// ErrEmailExists is returned when registering an email twice.
	ErrEmailExists = errors.New("email already exists")
)
