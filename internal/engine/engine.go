package engine

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"tasksms/internal/domain"
	"tasksms/internal/history"
	"tasksms/internal/repo"
)

// DefaultActor is recorded when a caller does not identify itself.
const DefaultActor = "anonymous"

type Engine struct {
	DB      *sql.DB
	Repo    repo.Repo
	History history.Writer
	Logger  *slog.Logger
	Now     func() time.Time
	NewGUID func() string
}

func New(conn *sql.DB, dialect string) Engine {
	return Engine{
		DB:      conn,
		Repo:    repo.Repo{DB: conn, Dialect: dialect},
		History: history.Writer{Dialect: dialect},
		Logger:  slog.Default(),
		Now:     time.Now,
		NewGUID: func() string { return uuid.New().String() },
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) timestamp() string {
	return e.now().UTC().Format(time.RFC3339Nano)
}

func (e Engine) log() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

func (e Engine) newGUID() string {
	if e.NewGUID != nil {
		return e.NewGUID()
	}
	return uuid.New().String()
}

func (e Engine) appendHistory(ctx context.Context, tx *sql.Tx, entry history.Entry) error {
	w := e.History
	w.Now = e.now
	_, err := w.Append(ctx, tx, entry)
	return err
}

func actorOrDefault(actor string) string {
	if a := strings.TrimSpace(actor); a != "" {
		return a
	}
	return DefaultActor
}

// NormalizeGUID parses raw as a UUID and returns its canonical form.
func NormalizeGUID(raw string) (string, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", &ValidationError{Field: "guid", Message: fmt.Sprintf("invalid guid %q", raw), Err: err}
	}
	return id.String(), nil
}

// normalizeValues trims, drops blanks and duplicates, and keeps first-seen order.
func normalizeValues(in []string) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// TaskCreateOptions are parameters for creating a task.
type TaskCreateOptions struct {
	Name        string
	Description string
	Tags        []string
	Groups      []string
	ActorID     string
}

func (e Engine) CreateTask(ctx context.Context, opts TaskCreateOptions) (domain.TaskResource, error) {
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		return domain.TaskResource{}, invalid("name", "name is required")
	}
	actor := actorOrDefault(opts.ActorID)
	now := e.timestamp()
	t := domain.Task{
		GUID:        e.newGUID(),
		Name:        name,
		Description: opts.Description,
		CreatedBy:   actor,
		CreatedOn:   now,
		ModifiedBy:  actor,
		ModifiedOn:  now,
	}
	groups := normalizeValues(opts.Groups)
	tags := normalizeValues(opts.Tags)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.TaskResource{}, err
	}
	defer tx.Rollback()

	t.ID, err = e.Repo.InsertTask(ctx, tx, t)
	if err != nil {
		return domain.TaskResource{}, err
	}
	if err := e.insertLookupValues(ctx, tx, t.ID, domain.LookupValueGroup, groups); err != nil {
		return domain.TaskResource{}, err
	}
	if err := e.insertLookupValues(ctx, tx, t.ID, domain.LookupValueTag, tags); err != nil {
		return domain.TaskResource{}, err
	}
	if err := e.appendHistory(ctx, tx, history.Entry{
		EntityType: domain.EntityTypeTask,
		EntityID:   t.ID,
		EntityGUID: t.GUID,
		EventType:  domain.HistoryCreated,
		ActorID:    actor,
		Detail: map[string]any{"task": map[string]any{
			"guid":        t.GUID,
			"name":        t.Name,
			"description": t.Description,
			"groups":      nonNil(groups),
			"tags":        nonNil(tags),
		}},
	}); err != nil {
		return domain.TaskResource{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.TaskResource{}, err
	}
	e.log().Debug("task created", slog.String("guid", t.GUID), slog.String("actor", actor),
		slog.Int("groups", len(groups)), slog.Int("tags", len(tags)))
	return e.GetTask(ctx, t.GUID, domain.ProjectionDeep)
}

func (e Engine) insertLookupValues(ctx context.Context, tx *sql.Tx, taskID int64, valueType domain.LookupValueType, values []string) error {
	for _, v := range values {
		if _, err := e.Repo.InsertLookupValue(ctx, tx, domain.LookupValue{
			EntityType: domain.EntityTypeTask,
			EntityID:   taskID,
			ValueType:  valueType,
			Value:      v,
		}); err != nil {
			return err
		}
	}
	return nil
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}

// GetTask assembles the task graph the projection asks for. For DEEP the
// lookup-value and history queries run concurrently and both must finish.
func (e Engine) GetTask(ctx context.Context, guid string, projection domain.Projection) (domain.TaskResource, error) {
	guid, err := NormalizeGUID(guid)
	if err != nil {
		return domain.TaskResource{}, err
	}
	if projection == "" {
		projection = domain.ProjectionDetails
	}
	t, err := e.Repo.GetTaskByGUID(ctx, guid)
	if err != nil {
		return domain.TaskResource{}, err
	}
	res := domain.ResourceFromTask(t)
	if !projection.Includes(domain.ProjectionDeep) {
		return res.Project(projection), nil
	}

	var values []domain.LookupValue
	var trail []domain.History
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		values, err = e.Repo.ListLookupValues(gctx, domain.EntityTypeTask, t.ID)
		if err != nil {
			return fmt.Errorf("list lookup values: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		trail, err = e.Repo.ListHistory(gctx, domain.EntityTypeTask, t.ID)
		if err != nil {
			return fmt.Errorf("list history: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return domain.TaskResource{}, err
	}
	res = res.WithLookupValues(values)
	res.History = trail
	return res.Project(projection), nil
}

// ListTasks always returns the SUMMARY shape.
func (e Engine) ListTasks(ctx context.Context) ([]domain.TaskResource, error) {
	tasks, err := e.Repo.ListTasks(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.TaskResource, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, domain.ResourceFromTask(t).Project(domain.ProjectionSummary))
	}
	return out, nil
}

// TaskUpdateOptions carry an RFC 6902 patch for one task.
type TaskUpdateOptions struct {
	GUID    string
	Patch   []byte
	ActorID string
}

func (e Engine) UpdateTask(ctx context.Context, opts TaskUpdateOptions) (domain.TaskResource, error) {
	guid, err := NormalizeGUID(opts.GUID)
	if err != nil {
		return domain.TaskResource{}, err
	}
	actor := actorOrDefault(opts.ActorID)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.TaskResource{}, err
	}
	defer tx.Rollback()

	t, err := e.Repo.GetTaskByGUIDTx(ctx, tx, guid)
	if err != nil {
		return domain.TaskResource{}, err
	}
	values, err := e.Repo.ListLookupValuesTx(ctx, tx, domain.EntityTypeTask, t.ID)
	if err != nil {
		return domain.TaskResource{}, err
	}
	current := newPatchDocument(domain.ResourceFromTask(t).WithLookupValues(values))
	patched, ops, err := applyPatch(current, opts.Patch)
	if err != nil {
		return domain.TaskResource{}, err
	}
	if patched.GUID != current.GUID {
		return domain.TaskResource{}, invalid("guid", "guid is immutable")
	}
	name := strings.TrimSpace(patched.Name)
	if name == "" {
		return domain.TaskResource{}, invalid("name", "name is required")
	}

	t.Name = name
	t.Description = patched.Description
	t.ModifiedBy = actor
	t.ModifiedOn = e.timestamp()
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return domain.TaskResource{}, err
	}
	if err := e.replaceLookupValues(ctx, tx, t.ID, domain.LookupValueGroup, current.Groups, patched.Groups); err != nil {
		return domain.TaskResource{}, err
	}
	if err := e.replaceLookupValues(ctx, tx, t.ID, domain.LookupValueTag, current.Tags, patched.Tags); err != nil {
		return domain.TaskResource{}, err
	}
	if err := e.appendHistory(ctx, tx, history.Entry{
		EntityType: domain.EntityTypeTask,
		EntityID:   t.ID,
		EntityGUID: t.GUID,
		EventType:  domain.HistoryUpdated,
		ActorID:    actor,
		Detail:     map[string]any{"patch": ops},
	}); err != nil {
		return domain.TaskResource{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.TaskResource{}, err
	}
	e.log().Debug("task updated", slog.String("guid", t.GUID), slog.String("actor", actor), slog.Int("ops", len(ops)))
	return e.GetTask(ctx, t.GUID, domain.ProjectionDetails)
}

// replaceLookupValues rewrites one value type only when the list changed.
func (e Engine) replaceLookupValues(ctx context.Context, tx *sql.Tx, taskID int64, valueType domain.LookupValueType, before, after []string) error {
	after = normalizeValues(after)
	if slices.Equal(normalizeValues(before), after) {
		return nil
	}
	if _, err := e.Repo.DeleteLookupValues(ctx, tx, domain.EntityTypeTask, taskID, valueType); err != nil {
		return err
	}
	return e.insertLookupValues(ctx, tx, taskID, valueType, after)
}

// DeleteTask removes the task and its lookup values. History is kept and a
// DELETED row is appended.
func (e Engine) DeleteTask(ctx context.Context, guid, actorID string) error {
	guid, err := NormalizeGUID(guid)
	if err != nil {
		return err
	}
	actor := actorOrDefault(actorID)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	t, err := e.Repo.GetTaskByGUIDTx(ctx, tx, guid)
	if err != nil {
		return err
	}
	removed, err := e.Repo.DeleteLookupValues(ctx, tx, domain.EntityTypeTask, t.ID, "")
	if err != nil {
		return err
	}
	if err := e.Repo.DeleteTask(ctx, tx, t.ID); err != nil {
		return err
	}
	if err := e.appendHistory(ctx, tx, history.Entry{
		EntityType: domain.EntityTypeTask,
		EntityID:   t.ID,
		EntityGUID: t.GUID,
		EventType:  domain.HistoryDeleted,
		ActorID:    actor,
		Detail:     map[string]any{"task": map[string]any{"guid": t.GUID, "name": t.Name}},
	}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	e.log().Debug("task deleted", slog.String("guid", t.GUID), slog.String("actor", actor), slog.Int64("lookup_values", removed))
	return nil
}

// ListHistory returns the audit trail of a task guid, also after deletion.
func (e Engine) ListHistory(ctx context.Context, guid string) ([]domain.History, error) {
	guid, err := NormalizeGUID(guid)
	if err != nil {
		return nil, err
	}
	rows, err := e.Repo.ListHistoryByGUID(ctx, domain.EntityTypeTask, guid)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, repo.ErrNotFound
	}
	return rows, nil
}
