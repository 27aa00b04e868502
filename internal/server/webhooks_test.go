package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tasksms/internal/config"
	"tasksms/internal/db"
	"tasksms/internal/engine"
	"tasksms/internal/migrate"
)

type capturedHook struct {
	mu        sync.Mutex
	events    []webhookEvent
	signature []string
	fail      bool
}

func (c *capturedHook) handler(w http.ResponseWriter, r *http.Request) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		http.Error(w, "down", http.StatusServiceUnavailable)
		return
	}
	data, _ := io.ReadAll(r.Body)
	var evt webhookEvent
	_ = json.Unmarshal(data, &evt)
	c.events = append(c.events, evt)
	c.signature = append(c.signature, r.Header.Get("X-Tasksms-Signature"))
	if want := "sha256=" + Sign("hook-secret", data); r.Header.Get("X-Tasksms-Signature") != "" && r.Header.Get("X-Tasksms-Signature") != want {
		http.Error(w, "bad signature", http.StatusUnauthorized)
	}
}

func newWebhookEngine(t *testing.T) engine.Engine {
	t.Helper()
	conn, err := db.Open(db.Config{Driver: db.DriverSQLite, Path: filepath.Join(t.TempDir(), "tasks.db")})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	_, err = migrate.Migrate(conn, db.DriverSQLite)
	require.NoError(t, err)
	e := engine.New(conn, db.DriverSQLite)
	e.Logger = discardLogger()
	return e
}

func TestWebhookDispatcherDeliversNewHistory(t *testing.T) {
	ctx := context.Background()
	e := newWebhookEngine(t)
	before, err := e.CreateTask(ctx, engine.TaskCreateOptions{Name: "before startup"})
	require.NoError(t, err)

	hook := &capturedHook{}
	target := httptest.NewServer(http.HandlerFunc(hook.handler))
	defer target.Close()

	d := NewWebhookDispatcher(e.Repo, []config.Webhook{{URL: target.URL, Secret: "hook-secret", Events: []string{"created", "deleted"}}}, discardLogger())
	d.DispatchAll(ctx) // pins the cursor past existing rows

	created, err := e.CreateTask(ctx, engine.TaskCreateOptions{Name: "after", ActorID: "alice"})
	require.NoError(t, err)
	_, err = e.UpdateTask(ctx, engine.TaskUpdateOptions{GUID: created.GUID, Patch: []byte(`[{"op":"replace","path":"/name","value":"renamed"}]`)})
	require.NoError(t, err)
	require.NoError(t, e.DeleteTask(ctx, created.GUID, "bob"))
	d.DispatchAll(ctx)

	hook.mu.Lock()
	defer hook.mu.Unlock()
	require.Len(t, hook.events, 2)
	assert.Equal(t, "CREATED", hook.events[0].Type)
	assert.Equal(t, created.GUID, hook.events[0].EntityGUID)
	assert.Equal(t, "alice", hook.events[0].ActorID)
	assert.Equal(t, "DELETED", hook.events[1].Type)
	assert.NotEqual(t, before.GUID, hook.events[0].EntityGUID)
	for _, sig := range hook.signature {
		assert.NotEmpty(t, sig)
	}
}

func TestWebhookDispatcherRetriesAfterFailure(t *testing.T) {
	ctx := context.Background()
	e := newWebhookEngine(t)
	hook := &capturedHook{fail: true}
	target := httptest.NewServer(http.HandlerFunc(hook.handler))
	defer target.Close()

	d := NewWebhookDispatcher(e.Repo, []config.Webhook{{URL: target.URL}}, discardLogger())
	d.DispatchAll(ctx)

	_, err := e.CreateTask(ctx, engine.TaskCreateOptions{Name: "retry me"})
	require.NoError(t, err)
	d.DispatchAll(ctx)

	hook.mu.Lock()
	assert.Empty(t, hook.events)
	hook.fail = false
	hook.mu.Unlock()

	d.DispatchAll(ctx)
	hook.mu.Lock()
	defer hook.mu.Unlock()
	require.Len(t, hook.events, 1)
	assert.Equal(t, "CREATED", hook.events[0].Type)
	assert.Empty(t, hook.signature[0])
}

func TestWebhookDisabledHookIsSkipped(t *testing.T) {
	ctx := context.Background()
	e := newWebhookEngine(t)
	hook := &capturedHook{}
	target := httptest.NewServer(http.HandlerFunc(hook.handler))
	defer target.Close()

	off := false
	d := NewWebhookDispatcher(e.Repo, []config.Webhook{{URL: target.URL, Enabled: &off}}, discardLogger())
	d.DispatchAll(ctx)
	_, err := e.CreateTask(ctx, engine.TaskCreateOptions{Name: "quiet"})
	require.NoError(t, err)
	d.DispatchAll(ctx)

	hook.mu.Lock()
	defer hook.mu.Unlock()
	assert.Empty(t, hook.events)
}

func TestWebhookCursorInitDoesNotHoldLock(t *testing.T) {
	ctx := context.Background()
	e := newWebhookEngine(t)
	_, err := e.CreateTask(ctx, engine.TaskCreateOptions{Name: "existing"})
	require.NoError(t, err)
	latest, err := e.Repo.LatestHistoryID(ctx)
	require.NoError(t, err)

	d := NewWebhookDispatcher(e.Repo, []config.Webhook{{URL: "http://127.0.0.1:1"}}, discardLogger())
	// The open tx owns the only connection, so the cursor query waits.
	tx, err := e.DB.BeginTx(ctx, nil)
	require.NoError(t, err)
	initialised := make(chan int64, 1)
	go func() { initialised <- d.cursorFor(ctx, 0) }()
	time.Sleep(50 * time.Millisecond)

	read := make(chan bool, 1)
	go func() {
		_, ok := d.cursor(0)
		read <- ok
	}()
	select {
	case ok := <-read:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("cursor lock held while querying the database")
	}

	require.NoError(t, tx.Commit())
	select {
	case cur := <-initialised:
		assert.Equal(t, latest, cur)
	case <-time.After(5 * time.Second):
		t.Fatal("cursor init did not finish")
	}
	cur, ok := d.cursor(0)
	assert.True(t, ok)
	assert.Equal(t, latest, cur)
}

func TestEventFilter(t *testing.T) {
	assert.True(t, newEventFilter(nil).match("UPDATED"))
	f := newEventFilter([]string{" created ", ""})
	assert.True(t, f.match("CREATED"))
	assert.False(t, f.match("UPDATED"))
}
