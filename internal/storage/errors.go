package storage

import (
	"errors"
	"fmt"

	"github.com/DukeRupert/fixmatch/internal/domain"
)

var (
	ErrNotFound     = errors.New("object not found")
	ErrKeyExists    = errors.New("object already exists")
	ErrInvalidKey   = errors.New("invalid storage key") // empty, absolute or escaping the root
	ErrTooLarge     = errors.New("object exceeds maximum size")
	ErrAccessDenied = errors.New("access denied")
)

// StorageError records which backend call failed and for which key.
// Match the cause with errors.Is against the sentinels.
type StorageError struct {
	Op  string // Put, Get, Delete, URL or Exists
	Key string
	Err error
}

func (e *StorageError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// ToDomain maps a backend failure onto an application error so handlers
// answer with the right status. Causes without a client-facing meaning
// become internal errors carrying message.
func ToDomain(err error, op, message string) *domain.Error {
	switch {
	case errors.Is(err, ErrTooLarge):
		return domain.Wrap(err, domain.ETOOLARGE, op, "object exceeds the upload limit")
	case errors.Is(err, ErrNotFound):
		return domain.Wrap(err, domain.ENOTFOUND, op, "stored object not found")
	case errors.Is(err, ErrKeyExists):
		return domain.Wrap(err, domain.ECONFLICT, op, "object already stored")
	default:
		return domain.Internal(err, op, message)
	}
}
