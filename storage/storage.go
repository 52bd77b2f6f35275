// Package storage provides the class-partitioned in-memory document store.
package storage

import "errors"

// ErrNotFound is returned when no object exists with a requested id.
var ErrNotFound = errors.New("object not found")
