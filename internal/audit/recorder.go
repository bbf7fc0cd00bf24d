// Package audit writes and serves the immutable event log. One event is
// recorded per mutated resource, inside the same transaction as the
// mutation, so the log is the authoritative history once a live row has
// been hard-deleted.
package audit

import (
	"context"
	"fmt"

	"ipatlas/internal/domain"
	"ipatlas/internal/identity"

	"gorm.io/gorm"
)

type Recorder struct {
	resolver identity.NameResolver
}

func NewRecorder(resolver identity.NameResolver) *Recorder {
	return &Recorder{resolver: resolver}
}

// Entry describes one state-changing action to be recorded.
type Entry struct {
	Action       string
	ResourceType string
	ResourceID   string
	UserID       string
	Reason       string
	Snapshot     map[string]any
	Changes      []domain.FieldChange
}

// Record appends one event inside tx.
func (r *Recorder) Record(ctx context.Context, tx *gorm.DB, entry Entry) error {
	event := domain.AuditEvent{
		ActionType:   entry.Action,
		ResourceType: entry.ResourceType,
		ResourceID:   entry.ResourceID,
		UserID:       entry.UserID,
		ActorName:    identity.Display(ctx, r.resolver, entry.UserID),
		Reason:       entry.Reason,
		Snapshot:     entry.Snapshot,
		Changes:      entry.Changes,
	}

	if err := tx.Create(&event).Error; err != nil {
		return fmt.Errorf("audit: record %s %s/%s: %w", entry.Action, entry.ResourceType, entry.ResourceID, err)
	}
	return nil
}
