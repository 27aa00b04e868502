package repo_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tasksms/internal/db"
	"tasksms/internal/domain"
	"tasksms/internal/history"
	"tasksms/internal/migrate"
	"tasksms/internal/repo"
)

func newRepo(t *testing.T) repo.Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Driver: db.DriverSQLite, Path: filepath.Join(t.TempDir(), "tasks.db")})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	_, err = migrate.Migrate(conn, db.DriverSQLite)
	require.NoError(t, err)
	return repo.Repo{DB: conn, Dialect: db.DriverSQLite}
}

func inTx(t *testing.T, r repo.Repo, fn func(tx *sql.Tx)) {
	t.Helper()
	tx, err := r.DB.BeginTx(context.Background(), nil)
	require.NoError(t, err)
	fn(tx)
	require.NoError(t, tx.Commit())
}

func sampleTask(guid, name string) domain.Task {
	return domain.Task{
		GUID:       guid,
		Name:       name,
		CreatedBy:  "alice",
		CreatedOn:  "2024-01-01T00:00:00Z",
		ModifiedBy: "alice",
		ModifiedOn: "2024-01-01T00:00:00Z",
	}
}

func TestTaskCRUD(t *testing.T) {
	ctx := context.Background()
	r := newRepo(t)

	var id int64
	inTx(t, r, func(tx *sql.Tx) {
		var err error
		id, err = r.InsertTask(ctx, tx, sampleTask("g-1", "first"))
		require.NoError(t, err)
	})
	got, err := r.GetTaskByGUID(ctx, "g-1")
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, "first", got.Name)
	assert.Empty(t, got.Description)

	got.Name = "renamed"
	got.Description = "now described"
	got.ModifiedBy = "bob"
	inTx(t, r, func(tx *sql.Tx) {
		require.NoError(t, r.UpdateTask(ctx, tx, got))
	})
	again, err := r.GetTaskByGUID(ctx, "g-1")
	require.NoError(t, err)
	assert.Equal(t, "renamed", again.Name)
	assert.Equal(t, "now described", again.Description)
	assert.Equal(t, "alice", again.CreatedBy)
	assert.Equal(t, "bob", again.ModifiedBy)

	inTx(t, r, func(tx *sql.Tx) {
		require.NoError(t, r.DeleteTask(ctx, tx, id))
		assert.ErrorIs(t, r.DeleteTask(ctx, tx, id), repo.ErrNotFound)
	})
	_, err = r.GetTaskByGUID(ctx, "g-1")
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestDuplicateGUIDIsUniqueViolation(t *testing.T) {
	ctx := context.Background()
	r := newRepo(t)
	inTx(t, r, func(tx *sql.Tx) {
		_, err := r.InsertTask(ctx, tx, sampleTask("dup", "a"))
		require.NoError(t, err)
		_, err = r.InsertTask(ctx, tx, sampleTask("dup", "b"))
		require.Error(t, err)
		assert.True(t, repo.IsUniqueViolation(err), "got %v", err)
	})
}

func TestIsUniqueViolation(t *testing.T) {
	assert.False(t, repo.IsUniqueViolation(nil))
	assert.False(t, repo.IsUniqueViolation(errors.New("boom")))
	assert.True(t, repo.IsUniqueViolation(&pq.Error{Code: "23505"}))
	assert.False(t, repo.IsUniqueViolation(&pq.Error{Code: "23503"}))
}

func TestListTasksOrderedByID(t *testing.T) {
	ctx := context.Background()
	r := newRepo(t)
	inTx(t, r, func(tx *sql.Tx) {
		for _, name := range []string{"one", "two", "three"} {
			_, err := r.InsertTask(ctx, tx, sampleTask("g-"+name, name))
			require.NoError(t, err)
		}
	})
	tasks, err := r.ListTasks(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	assert.Equal(t, []string{"one", "two", "three"}, []string{tasks[0].Name, tasks[1].Name, tasks[2].Name})
	n, err := r.CountTasks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestLookupValues(t *testing.T) {
	ctx := context.Background()
	r := newRepo(t)
	inTx(t, r, func(tx *sql.Tx) {
		for _, lv := range []domain.LookupValue{
			{EntityType: domain.EntityTypeTask, EntityID: 1, ValueType: domain.LookupValueTag, Value: "A"},
			{EntityType: domain.EntityTypeTask, EntityID: 1, ValueType: domain.LookupValueGroup, Value: "1"},
			{EntityType: domain.EntityTypeTask, EntityID: 1, ValueType: domain.LookupValueTag, Value: "B"},
			{EntityType: domain.EntityTypeTask, EntityID: 2, ValueType: domain.LookupValueTag, Value: "other"},
		} {
			_, err := r.InsertLookupValue(ctx, tx, lv)
			require.NoError(t, err)
		}
	})
	values, err := r.ListLookupValues(ctx, domain.EntityTypeTask, 1)
	require.NoError(t, err)
	require.Len(t, values, 3)
	assert.Equal(t, "A", values[0].Value)
	assert.Equal(t, domain.LookupValueGroup, values[1].ValueType)

	inTx(t, r, func(tx *sql.Tx) {
		n, err := r.DeleteLookupValues(ctx, tx, domain.EntityTypeTask, 1, domain.LookupValueTag)
		require.NoError(t, err)
		assert.EqualValues(t, 2, n)
	})
	n, err := r.CountLookupValues(ctx, domain.EntityTypeTask, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	inTx(t, r, func(tx *sql.Tx) {
		_, err := r.DeleteLookupValues(ctx, tx, domain.EntityTypeTask, 1, "")
		require.NoError(t, err)
	})
	n, err = r.CountLookupValues(ctx, domain.EntityTypeTask, 1)
	require.NoError(t, err)
	assert.Zero(t, n)
	n, err = r.CountLookupValues(ctx, domain.EntityTypeTask, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestHistoryQueries(t *testing.T) {
	ctx := context.Background()
	r := newRepo(t)
	w := history.Writer{Dialect: db.DriverSQLite}
	var ids []int64
	inTx(t, r, func(tx *sql.Tx) {
		for _, evt := range []domain.HistoryType{domain.HistoryCreated, domain.HistoryUpdated, domain.HistoryDeleted} {
			id, err := w.Append(ctx, tx, history.Entry{
				EntityType: domain.EntityTypeTask, EntityID: 9, EntityGUID: "g-9", EventType: evt, ActorID: "alice",
			})
			require.NoError(t, err)
			ids = append(ids, id)
		}
	})

	rows, err := r.ListHistory(ctx, domain.EntityTypeTask, 9)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, domain.HistoryCreated, rows[0].EventType)
	assert.Nil(t, rows[0].Detail)

	byGUID, err := r.ListHistoryByGUID(ctx, domain.EntityTypeTask, "g-9")
	require.NoError(t, err)
	assert.Equal(t, rows, byGUID)

	after, err := r.HistoryAfter(ctx, ids[0], 10)
	require.NoError(t, err)
	require.Len(t, after, 2)
	assert.Equal(t, ids[1], after[0].ID)

	deletes, err := r.HistoryAfter(ctx, 0, 10, domain.HistoryDeleted)
	require.NoError(t, err)
	require.Len(t, deletes, 1)
	assert.Equal(t, domain.HistoryDeleted, deletes[0].EventType)

	limited, err := r.HistoryAfter(ctx, 0, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	latest, err := r.LatestHistoryID(ctx)
	require.NoError(t, err)
	assert.Equal(t, ids[2], latest)
}
