package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"tasksms/internal/db"
	"tasksms/internal/domain"
)

type Repo struct {
	DB *sql.DB
	// Dialect is the database driver name; queries are rebound for it.
	Dialect string
}

var ErrNotFound = errors.New("not found")

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r Repo) q(query string) string {
	return db.Rebind(r.Dialect, query)
}

// IsUniqueViolation reports whether err came from a unique constraint.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

const taskColumns = `ta_id,guid,name,description,created_by,created_on,modified_by,modified_on`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (domain.Task, error) {
	var t domain.Task
	var desc sql.NullString
	err := row.Scan(&t.ID, &t.GUID, &t.Name, &desc, &t.CreatedBy, &t.CreatedOn, &t.ModifiedBy, &t.ModifiedOn)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	if desc.Valid {
		t.Description = desc.String
	}
	return t, nil
}

// InsertTask writes the task row and returns its surrogate id.
func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx, r.q(`INSERT INTO t_task(guid,name,description,created_by,created_on,modified_by,modified_on)
VALUES (?,?,?,?,?,?,?) RETURNING ta_id`),
		t.GUID, t.Name, nullable(t.Description), t.CreatedBy, t.CreatedOn, t.ModifiedBy, t.ModifiedOn).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert task: %w", err)
	}
	return id, nil
}

// UpdateTask writes the mutable columns. guid and the created_* audit pair never change.
func (r Repo) UpdateTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	res, err := tx.ExecContext(ctx, r.q(`UPDATE t_task SET name=?, description=?, modified_by=?, modified_on=? WHERE ta_id=?`),
		t.Name, nullable(t.Description), t.ModifiedBy, t.ModifiedOn, t.ID)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteTask(ctx context.Context, tx *sql.Tx, id int64) error {
	res, err := tx.ExecContext(ctx, r.q(`DELETE FROM t_task WHERE ta_id=?`), id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetTaskByGUID(ctx context.Context, guid string) (domain.Task, error) {
	return r.getTaskByGUID(ctx, r.DB, guid)
}

func (r Repo) GetTaskByGUIDTx(ctx context.Context, tx *sql.Tx, guid string) (domain.Task, error) {
	return r.getTaskByGUID(ctx, tx, guid)
}

func (r Repo) getTaskByGUID(ctx context.Context, q queryer, guid string) (domain.Task, error) {
	return scanTask(q.QueryRowContext(ctx, r.q(`SELECT `+taskColumns+` FROM t_task WHERE guid=?`), guid))
}

func (r Repo) ListTasks(ctx context.Context) ([]domain.Task, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+taskColumns+` FROM t_task ORDER BY ta_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) CountTasks(ctx context.Context) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM t_task`).Scan(&n)
	return n, err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
