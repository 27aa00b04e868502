package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"tasksms/internal/domain"
)

const historyColumns = `hi_id,entity_type,entity_id,entity_guid,event_type,detail_json,created_by,created_on`

func scanHistory(row rowScanner) (domain.History, error) {
	var h domain.History
	var et, evt string
	var guid, detail sql.NullString
	if err := row.Scan(&h.ID, &et, &h.EntityID, &guid, &evt, &detail, &h.CreatedBy, &h.CreatedOn); err != nil {
		return h, err
	}
	h.EntityType = domain.EntityType(et)
	h.EventType = domain.HistoryType(evt)
	if guid.Valid {
		h.EntityGUID = guid.String
	}
	if detail.Valid && detail.String != "" {
		if err := json.Unmarshal([]byte(detail.String), &h.Detail); err != nil {
			return h, fmt.Errorf("decode history %d detail: %w", h.ID, err)
		}
	}
	return h, nil
}

func (r Repo) queryHistory(ctx context.Context, query string, args ...any) ([]domain.History, error) {
	rows, err := r.DB.QueryContext(ctx, r.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.History
	for rows.Next() {
		h, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, h)
	}
	return res, rows.Err()
}

// ListHistory returns the audit trail of an entity, oldest first.
func (r Repo) ListHistory(ctx context.Context, entityType domain.EntityType, entityID int64) ([]domain.History, error) {
	return r.queryHistory(ctx, `SELECT `+historyColumns+` FROM t_history WHERE entity_type=? AND entity_id=? ORDER BY hi_id ASC`,
		string(entityType), entityID)
}

// ListHistoryByGUID works after the entity row is gone.
func (r Repo) ListHistoryByGUID(ctx context.Context, entityType domain.EntityType, guid string) ([]domain.History, error) {
	return r.queryHistory(ctx, `SELECT `+historyColumns+` FROM t_history WHERE entity_type=? AND entity_guid=? ORDER BY hi_id ASC`,
		string(entityType), guid)
}

// HistoryAfter returns rows with ids greater than the cursor in ascending order.
func (r Repo) HistoryAfter(ctx context.Context, cursor int64, limit int, eventTypes ...domain.HistoryType) ([]domain.History, error) {
	if limit <= 0 {
		limit = 100
	}
	clauses := []string{"hi_id>?"}
	args := []any{cursor}
	if len(eventTypes) > 0 {
		marks := make([]string, 0, len(eventTypes))
		for _, et := range eventTypes {
			marks = append(marks, "?")
			args = append(args, string(et))
		}
		clauses = append(clauses, "event_type IN ("+strings.Join(marks, ",")+")")
	}
	args = append(args, limit)
	return r.queryHistory(ctx, `SELECT `+historyColumns+` FROM t_history WHERE `+strings.Join(clauses, " AND ")+` ORDER BY hi_id ASC LIMIT ?`, args...)
}

// LatestHistoryID returns the highest history id, or 0 on an empty table.
func (r Repo) LatestHistoryID(ctx context.Context) (int64, error) {
	var id int64
	err := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(hi_id),0) FROM t_history`).Scan(&id)
	return id, err
}
