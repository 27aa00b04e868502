package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"tasksms/internal/db"
	"tasksms/internal/domain"
)

type Writer struct {
	Dialect string
	Now     func() time.Time
}

type Entry struct {
	EntityType domain.EntityType
	EntityID   int64
	EntityGUID string
	EventType  domain.HistoryType
	ActorID    string
	Detail     map[string]any
}

// Append inserts one audit row inside tx and returns its id.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, e Entry) (int64, error) {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339Nano)
	var detail any
	if e.Detail != nil {
		data, err := json.Marshal(e.Detail)
		if err != nil {
			return 0, fmt.Errorf("marshal history detail: %w", err)
		}
		detail = string(data)
	}
	var id int64
	err := tx.QueryRowContext(ctx, db.Rebind(w.Dialect, `INSERT INTO t_history(entity_type,entity_id,entity_guid,event_type,detail_json,created_by,created_on)
VALUES (?,?,?,?,?,?,?) RETURNING hi_id`),
		string(e.EntityType), e.EntityID, nullable(e.EntityGUID), string(e.EventType), detail, e.ActorID, ts).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("append %s history: %w", e.EventType, err)
	}
	return id, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
