package audit

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"ipatlas/internal/domain"
)

var csvHeader = []string{
	"id", "timestamp", "action_type", "resource_type", "resource_id",
	"user_id", "actor_name", "reason", "changes", "snapshot",
}

// WriteCSV streams events as CSV for out-of-scope export consumers.
func WriteCSV(w io.Writer, events []domain.AuditEvent) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(csvHeader); err != nil {
		return fmt.Errorf("audit: write csv header: %w", err)
	}

	for _, event := range events {
		changes, err := json.Marshal(event.Changes)
		if err != nil {
			return fmt.Errorf("audit: marshal changes for %s: %w", event.ID, err)
		}
		snapshot, err := json.Marshal(event.Snapshot)
		if err != nil {
			return fmt.Errorf("audit: marshal snapshot for %s: %w", event.ID, err)
		}

		record := []string{
			event.ID,
			event.CreatedAt.UTC().Format(time.RFC3339),
			event.ActionType,
			event.ResourceType,
			event.ResourceID,
			event.UserID,
			event.ActorName,
			event.Reason,
			string(changes),
			string(snapshot),
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("audit: write csv record %s: %w", event.ID, err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// WriteJSON streams events as a JSON array.
func WriteJSON(w io.Writer, events []domain.AuditEvent) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(events); err != nil {
		return fmt.Errorf("audit: encode events: %w", err)
	}
	return nil
}
