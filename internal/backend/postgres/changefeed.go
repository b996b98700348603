package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Bforsyth1234/customer-loyalty-rewards/internal/backend"
	"github.com/Bforsyth1234/customer-loyalty-rewards/internal/events"
)

const (
	changeInserted = events.RowInserted
	changeUpdated  = events.RowUpdated
)

// recordChanges appends one outbox row per changed record inside the caller's transaction, so
// the change feed commits or rolls back with the write itself.
func recordChanges(ctx context.Context, tx pgx.Tx, table, operation string, rows []backend.Row, now time.Time) error {
	const stmt = `INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7)`

	for _, row := range rows {
		rowID := fmt.Sprint(row["id"])
		body, err := json.Marshal(events.RowChanged{
			Table:      table,
			Operation:  operation,
			RowID:      rowID,
			Record:     row,
			OccurredAt: now.UTC(),
		})
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, stmt,
			table,
			rowID,
			operation,
			events.TopicFor(table),
			partitionKey(table, row),
			body,
			fmt.Sprintf("%s:%s:%s:%s", table, rowID, operation, uuid.NewString()),
		); err != nil {
			return err
		}
	}
	return nil
}

// partitionKey keeps every change for one customer on one partition.
func partitionKey(table string, row backend.Row) string {
	if phone, ok := row["phone"].(string); ok && phone != "" {
		return phone
	}
	return fmt.Sprintf("%s:%v", table, row["id"])
}
