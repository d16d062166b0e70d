// Package sentinel holds the storage facts that stores report and services
// translate into domain errors.
package sentinel

import "errors"

var (
	// ErrNotFound means the row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict means a unique or foreign key constraint rejected the write.
	ErrConflict = errors.New("conflict")
)
