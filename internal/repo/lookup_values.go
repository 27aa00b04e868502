package repo

import (
	"context"
	"database/sql"
	"fmt"

	"tasksms/internal/domain"
)

func (r Repo) InsertLookupValue(ctx context.Context, tx *sql.Tx, lv domain.LookupValue) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx, r.q(`INSERT INTO t_lookup_value(entity_type,entity_id,value_type,value) VALUES (?,?,?,?) RETURNING lv_id`),
		string(lv.EntityType), lv.EntityID, string(lv.ValueType), lv.Value).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert lookup value: %w", err)
	}
	return id, nil
}

// DeleteLookupValues removes the values owned by an entity. An empty
// valueType removes every type.
func (r Repo) DeleteLookupValues(ctx context.Context, tx *sql.Tx, entityType domain.EntityType, entityID int64, valueType domain.LookupValueType) (int64, error) {
	query := `DELETE FROM t_lookup_value WHERE entity_type=? AND entity_id=?`
	args := []any{string(entityType), entityID}
	if valueType != "" {
		query += ` AND value_type=?`
		args = append(args, string(valueType))
	}
	res, err := tx.ExecContext(ctx, r.q(query), args...)
	if err != nil {
		return 0, fmt.Errorf("delete lookup values: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (r Repo) ListLookupValues(ctx context.Context, entityType domain.EntityType, entityID int64) ([]domain.LookupValue, error) {
	return r.listLookupValues(ctx, r.DB, entityType, entityID)
}

func (r Repo) ListLookupValuesTx(ctx context.Context, tx *sql.Tx, entityType domain.EntityType, entityID int64) ([]domain.LookupValue, error) {
	return r.listLookupValues(ctx, tx, entityType, entityID)
}

func (r Repo) listLookupValues(ctx context.Context, q queryer, entityType domain.EntityType, entityID int64) ([]domain.LookupValue, error) {
	rows, err := q.QueryContext(ctx, r.q(`SELECT lv_id,entity_type,entity_id,value_type,value FROM t_lookup_value WHERE entity_type=? AND entity_id=? ORDER BY lv_id ASC`),
		string(entityType), entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.LookupValue
	for rows.Next() {
		var lv domain.LookupValue
		var et, vt string
		if err := rows.Scan(&lv.ID, &et, &lv.EntityID, &vt, &lv.Value); err != nil {
			return nil, err
		}
		lv.EntityType = domain.EntityType(et)
		lv.ValueType = domain.LookupValueType(vt)
		res = append(res, lv)
	}
	return res, rows.Err()
}

func (r Repo) CountLookupValues(ctx context.Context, entityType domain.EntityType, entityID int64) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, r.q(`SELECT COUNT(*) FROM t_lookup_value WHERE entity_type=? AND entity_id=?`),
		string(entityType), entityID).Scan(&n)
	return n, err
}
