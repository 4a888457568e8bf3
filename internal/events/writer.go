package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// EventPayload is the free-form detail blob stored with each event row.
type EventPayload map[string]any

// Writer appends audit events inside the caller's transaction, so an event
// row only exists when the mutation that produced it committed.
type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

const insertEvent = `INSERT INTO events(ts,type,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?)`

func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, entityKind, entityID, actorID string, payload EventPayload) error {
	data := []byte("{}")
	if len(payload) > 0 {
		var err error
		if data, err = json.Marshal(payload); err != nil {
			return fmt.Errorf("encode event payload: %w", err)
		}
	}
	var entity any
	if entityID != "" {
		entity = entityID
	}
	_, err := tx.ExecContext(ctx, insertEvent,
		w.timestamp(), evtType, entityKind, entity, actorID, string(data))
	return err
}

func (w Writer) timestamp() string {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	return now().UTC().Format(time.RFC3339)
}
