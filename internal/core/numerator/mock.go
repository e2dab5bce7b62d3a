package numerator

import "context"

// MockStore is a test implementation of Store.
// Use in unit tests to script sequence behaviour.
type MockStore struct {
	GetFunc      func(ctx context.Context, tenantID string, docType DocumentType) (*Sequence, error)
	ListFunc     func(ctx context.Context, tenantID string) ([]*Sequence, error)
	LockFunc     func(ctx context.Context, tenantID string, docType DocumentType, startingNumber int64, prefix string) (*Sequence, error)
	AllocateFunc func(ctx context.Context, tenantID string, docType DocumentType) (Allocation, error)
}

// Get implements Store.
func (m *MockStore) Get(ctx context.Context, tenantID string, docType DocumentType) (*Sequence, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, tenantID, docType)
	}
	return nil, ErrNotFound
}

// List implements Store.
func (m *MockStore) List(ctx context.Context, tenantID string) ([]*Sequence, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, tenantID)
	}
	return nil, nil
}

// Lock implements Store.
func (m *MockStore) Lock(ctx context.Context, tenantID string, docType DocumentType, startingNumber int64, prefix string) (*Sequence, error) {
	if m.LockFunc != nil {
		return m.LockFunc(ctx, tenantID, docType, startingNumber, prefix)
	}
	return nil, ErrAlreadyLocked
}

// Allocate implements Store.
func (m *MockStore) Allocate(ctx context.Context, tenantID string, docType DocumentType) (Allocation, error) {
	if m.AllocateFunc != nil {
		return m.AllocateFunc(ctx, tenantID, docType)
	}
	// Default: predictable first number
	return Allocation{Number: 1, Formatted: Format("", 1)}, nil
}

// Ensure compile-time interface compliance.
var _ Store = (*MockStore)(nil)
