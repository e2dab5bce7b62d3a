package memstore

import (
	"context"
	"sync"

	"kabala/internal/domain/audit"
)

// AuditLog implements audit.Recorder and keeps entries for assertions.
type AuditLog struct {
	mu      sync.Mutex
	entries []audit.Entry
}

var _ audit.Recorder = (*AuditLog)(nil)

func (l *AuditLog) Record(_ context.Context, e audit.Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
	return nil
}

// Entries returns a copy of recorded entries.
func (l *AuditLog) Entries() []audit.Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]audit.Entry(nil), l.entries...)
}

// Actions lists recorded actions in order.
func (l *AuditLog) Actions() []audit.Action {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]audit.Action, len(l.entries))
	for i, e := range l.entries {
		out[i] = e.Action
	}
	return out
}
