// Package audit defines the audit trail contract used by domain services.
package audit

import (
	"context"
	"reflect"
)

// Action represents the type of audited operation.
type Action string

const (
	ActionCreate     Action = "create"
	ActionUpdate     Action = "update"
	ActionDelete     Action = "delete"
	ActionFinalize   Action = "finalize"
	ActionInitialize Action = "initialize_sequence"
	ActionResolveGap Action = "resolve_gap"
	ActionRecordGap  Action = "record_gap"
)

// Entity types.
const (
	EntityDocument = "document"
	EntitySequence = "sequence"
	EntityGap      = "sequence_gap"
)

// Entry is one audit record. UserID and TenantID are filled from context when empty.
type Entry struct {
	TenantID   string
	EntityType string
	EntityID   string
	Action     Action
	UserID     string
	Changes    map[string]any
}

// Recorder persists audit entries. When ctx carries a transaction the entry
// joins it.
type Recorder interface {
	Record(ctx context.Context, entry Entry) error
}

// Nop discards entries.
type Nop struct{}

func (Nop) Record(context.Context, Entry) error { return nil }

// Diff calculates the difference between old and new entity states.
func Diff(oldState, newState map[string]any) map[string]any {
	changes := make(map[string]any)

	for key, newVal := range newState {
		oldVal, exists := oldState[key]
		if !exists {
			changes[key] = map[string]any{"old": nil, "new": newVal}
		} else if !reflect.DeepEqual(oldVal, newVal) {
			changes[key] = map[string]any{"old": oldVal, "new": newVal}
		}
	}

	for key, oldVal := range oldState {
		if _, exists := newState[key]; !exists {
			changes[key] = map[string]any{"old": oldVal, "new": nil}
		}
	}

	return changes
}
