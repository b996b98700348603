// Package events defines the change-feed payloads published for watched record sets.
package events

import (
	"fmt"
	"time"
)

// Change-feed event types.
const (
	RowInserted = "row.inserted"
	RowUpdated  = "row.updated"
)

// RowChanged is emitted for every insert or update on a watched table.
type RowChanged struct {
	Table      string         `json:"table"`
	Operation  string         `json:"operation"`
	RowID      string         `json:"row_id"`
	Record     map[string]any `json:"record"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// TopicFor names the Kafka topic carrying changes for table.
func TopicFor(table string) string {
	return fmt.Sprintf("%s_changes", table)
}
