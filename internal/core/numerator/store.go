package numerator

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when no sequence row exists for the tenant and type.
	ErrNotFound = errors.New("sequence not found")

	// ErrNotLocked is returned when the sequence exists but no starting number was confirmed.
	ErrNotLocked = errors.New("sequence not locked")

	// ErrAlreadyLocked is returned when initialization hits an already locked sequence.
	ErrAlreadyLocked = errors.New("sequence already locked")
)

// Store persists sequences. Implementations must make Lock and Allocate
// atomic with respect to each other across processes.
type Store interface {
	// Get returns the sequence or ErrNotFound.
	Get(ctx context.Context, tenantID string, docType DocumentType) (*Sequence, error)

	// List returns all sequences of a tenant.
	List(ctx context.Context, tenantID string) ([]*Sequence, error)

	// Lock creates or updates an unlocked sequence with the given start and prefix
	// and locks it. Returns ErrAlreadyLocked if the sequence is already locked.
	Lock(ctx context.Context, tenantID string, docType DocumentType, startingNumber int64, prefix string) (*Sequence, error)

	// Allocate increments the locked sequence and returns the new number.
	// Returns ErrNotFound or ErrNotLocked without side effects.
	Allocate(ctx context.Context, tenantID string, docType DocumentType) (Allocation, error)
}
