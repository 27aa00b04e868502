package server

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"tasksms/internal/config"
	"tasksms/internal/domain"
	"tasksms/internal/repo"
)

const (
	defaultWebhookInterval = 2 * time.Second
	defaultWebhookTimeout  = 5 * time.Second
	defaultWebhookBatch    = 100
)

// WebhookDispatcher polls the history table and delivers new rows to the
// configured webhooks. Each hook keeps its own cursor; a failed delivery
// stops that hook's batch and is retried on the next tick.
type WebhookDispatcher struct {
	Repo     repo.Repo
	Webhooks []config.Webhook
	Interval time.Duration
	Logger   *slog.Logger

	client  *http.Client
	mu      sync.Mutex
	cursors map[int]int64
}

func NewWebhookDispatcher(r repo.Repo, hooks []config.Webhook, logger *slog.Logger) *WebhookDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookDispatcher{
		Repo:     r,
		Webhooks: hooks,
		Interval: defaultWebhookInterval,
		Logger:   logger,
		client:   &http.Client{Timeout: defaultWebhookTimeout},
		cursors:  make(map[int]int64),
	}
}

// Run delivers until ctx is done.
func (d *WebhookDispatcher) Run(ctx context.Context) {
	if len(d.Webhooks) == 0 {
		return
	}
	interval := d.Interval
	if interval <= 0 {
		interval = defaultWebhookInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		d.DispatchAll(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (d *WebhookDispatcher) DispatchAll(ctx context.Context) {
	for i, hook := range d.Webhooks {
		if !hook.IsEnabled() {
			continue
		}
		if strings.TrimSpace(hook.URL) == "" {
			continue
		}
		d.dispatchWebhook(ctx, i, hook)
	}
}

func (d *WebhookDispatcher) dispatchWebhook(ctx context.Context, idx int, hook config.Webhook) {
	cursor := d.cursorFor(ctx, idx)
	rows, err := d.Repo.HistoryAfter(ctx, cursor, defaultWebhookBatch)
	if err != nil {
		d.Logger.Warn("webhook: fetch history failed", slog.String("error", err.Error()))
		return
	}
	filter := newEventFilter(hook.Events)
	for _, h := range rows {
		if !filter.match(string(h.EventType)) {
			d.setCursor(idx, h.ID)
			continue
		}
		if err := d.postEvent(ctx, hook, h); err != nil {
			d.Logger.Warn("webhook: delivery failed",
				slog.String("url", hook.URL),
				slog.Int64("history_id", h.ID),
				slog.String("error", err.Error()))
			return
		}
		d.setCursor(idx, h.ID)
	}
}

// cursorFor starts a hook at the newest row so that only events written
// after startup are delivered.
func (d *WebhookDispatcher) cursorFor(ctx context.Context, idx int) int64 {
	d.mu.Lock()
	cur, ok := d.cursors[idx]
	d.mu.Unlock()
	if ok {
		return cur
	}
	latest, err := d.Repo.LatestHistoryID(ctx)
	if err != nil {
		d.Logger.Warn("webhook: init cursor failed", slog.String("error", err.Error()))
		latest = 0
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cursors == nil {
		d.cursors = make(map[int]int64)
	}
	// another dispatch may have initialised the cursor meanwhile
	if cur, ok := d.cursors[idx]; ok {
		return cur
	}
	d.cursors[idx] = latest
	return latest
}

// cursor reports the last delivered history id of hook idx.
func (d *WebhookDispatcher) cursor(idx int) (int64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cur, ok := d.cursors[idx]
	return cur, ok
}

func (d *WebhookDispatcher) setCursor(idx int, value int64) {
	d.mu.Lock()
	if d.cursors == nil {
		d.cursors = make(map[int]int64)
	}
	d.cursors[idx] = value
	d.mu.Unlock()
}

type webhookEvent struct {
	ID         int64          `json:"id"`
	Type       string         `json:"type"`
	EntityType string         `json:"entity_type"`
	EntityGUID string         `json:"entity_guid,omitempty"`
	ActorID    string         `json:"actor_id"`
	TS         string         `json:"ts"`
	Detail     map[string]any `json:"detail,omitempty"`
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (d *WebhookDispatcher) postEvent(ctx context.Context, hook config.Webhook, h domain.History) error {
	data, err := json.Marshal(webhookEvent{
		ID:         h.ID,
		Type:       string(h.EventType),
		EntityType: string(h.EntityType),
		EntityGUID: h.EntityGUID,
		ActorID:    h.CreatedBy,
		TS:         h.CreatedOn,
		Detail:     h.Detail,
	})
	if err != nil {
		return err
	}
	timeout := defaultWebhookTimeout
	if hook.TimeoutSeconds > 0 {
		timeout = time.Duration(hook.TimeoutSeconds) * time.Second
	}
	client := d.client
	if client == nil || timeout != client.Timeout {
		client = &http.Client{Timeout: timeout}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tasksms-Event", string(h.EventType))
	req.Header.Set("X-Tasksms-Delivery", fmt.Sprintf("%d", h.ID))
	if strings.TrimSpace(hook.Secret) != "" {
		req.Header.Set("X-Tasksms-Signature", "sha256="+Sign(hook.Secret, data))
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(bodyBytes)))
	}
	return nil
}

type eventFilter struct {
	all bool
	set map[string]struct{}
}

func newEventFilter(events []string) eventFilter {
	if len(events) == 0 {
		return eventFilter{all: true}
	}
	set := make(map[string]struct{}, len(events))
	for _, evt := range events {
		key := strings.ToUpper(strings.TrimSpace(evt))
		if key == "" {
			continue
		}
		set[key] = struct{}{}
	}
	if len(set) == 0 {
		return eventFilter{all: true}
	}
	return eventFilter{set: set}
}

func (f eventFilter) match(evt string) bool {
	if f.all {
		return true
	}
	_, ok := f.set[evt]
	return ok
}
