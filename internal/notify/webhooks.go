// Package notify delivers applied phase transitions to configured webhooks.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-hclog"

	"phaseline/internal/config"
	"phaseline/internal/domain"
)

const (
	defaultInterval = 2 * time.Second
	defaultTimeout  = 5 * time.Second
	defaultBatch    = 100
	maxAttempts     = 3
)

// Source reads applied transitions in audit order.
type Source interface {
	AppliedAfter(ctx context.Context, cursor int64, limit int) ([]domain.TransitionRecord, error)
	LatestSeq(ctx context.Context) (int64, error)
}

// Dispatcher polls the audit log and posts each applied transition once per
// webhook. Cursors live in memory and start at the latest record, so a
// restart does not replay history.
type Dispatcher struct {
	source   Source
	webhooks []config.WebhookConfig
	client   *http.Client
	logger   hclog.Logger
	interval time.Duration

	mu      sync.Mutex
	cursors map[int]int64
}

func NewDispatcher(source Source, hooks []config.WebhookConfig, logger hclog.Logger) *Dispatcher {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Dispatcher{
		source:   source,
		webhooks: hooks,
		client:   &http.Client{Timeout: defaultTimeout},
		logger:   logger,
		interval: defaultInterval,
		cursors:  make(map[int]int64),
	}
}

// Run dispatches until ctx is done. It returns immediately when no webhook
// is configured.
func (d *Dispatcher) Run(ctx context.Context) {
	if len(d.webhooks) == 0 {
		return
	}
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		d.DispatchOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// DispatchOnce delivers every pending transition to every enabled webhook.
func (d *Dispatcher) DispatchOnce(ctx context.Context) {
	for i, hook := range d.webhooks {
		if hook.Enabled != nil && !*hook.Enabled {
			continue
		}
		if strings.TrimSpace(hook.URL) == "" {
			continue
		}
		d.dispatchWebhook(ctx, i, hook)
	}
}

func (d *Dispatcher) dispatchWebhook(ctx context.Context, idx int, hook config.WebhookConfig) {
	cursor := d.cursorFor(ctx, idx)
	records, err := d.source.AppliedAfter(ctx, cursor, defaultBatch)
	if err != nil {
		d.logger.Warn("webhook: fetch transitions failed", "error", err)
		return
	}
	filter := newEventFilter(hook.Events)
	for _, rec := range records {
		evt := eventType(rec)
		if !filter.match(evt) {
			d.setCursor(idx, rec.Seq)
			continue
		}
		if err := d.deliver(ctx, hook, evt, rec); err != nil {
			d.logger.Error("webhook: delivery failed", "url", hook.URL, "seq", rec.Seq, "error", err)
			return
		}
		d.setCursor(idx, rec.Seq)
	}
}

func (d *Dispatcher) cursorFor(ctx context.Context, idx int) int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cur, ok := d.cursors[idx]; ok {
		return cur
	}
	cur, err := d.source.LatestSeq(ctx)
	if err != nil {
		d.logger.Warn("webhook: init cursor failed", "error", err)
		cur = 0
	}
	d.cursors[idx] = cur
	return cur
}

func (d *Dispatcher) setCursor(idx int, value int64) {
	d.mu.Lock()
	d.cursors[idx] = value
	d.mu.Unlock()
}

// eventType is phase.<to_phase>, e.g. phase.active.
func eventType(rec domain.TransitionRecord) string {
	if rec.ToPhase == nil {
		return "phase.unknown"
	}
	return "phase." + string(*rec.ToPhase)
}

type transitionEvent struct {
	Seq         int64          `json:"seq"`
	Type        string         `json:"type"`
	ID          string         `json:"id"`
	ProjectID   string         `json:"project_id"`
	FromPhase   domain.Phase   `json:"from_phase"`
	ToPhase     *domain.Phase  `json:"to_phase"`
	TriggeredBy domain.Trigger `json:"triggered_by"`
	ActorID     string         `json:"actor_id,omitempty"`
	TS          string         `json:"ts"`
}

func (d *Dispatcher) deliver(ctx context.Context, hook config.WebhookConfig, evt string, rec domain.TransitionRecord) error {
	data, err := json.Marshal(transitionEvent{
		Seq:         rec.Seq,
		Type:        evt,
		ID:          rec.ID,
		ProjectID:   rec.ProjectID,
		FromPhase:   rec.FromPhase,
		ToPhase:     rec.ToPhase,
		TriggeredBy: rec.TriggeredBy,
		ActorID:     rec.ActorID,
		TS:          rec.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return err
	}
	timeout := defaultTimeout
	if hook.TimeoutSeconds > 0 {
		timeout = time.Duration(hook.TimeoutSeconds) * time.Second
	}
	client := d.client
	if timeout != d.client.Timeout {
		client = &http.Client{Timeout: timeout}
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxAttempts-1), ctx)
	return backoff.Retry(func() error {
		err := d.post(ctx, client, hook, evt, rec, data)
		if err != nil {
			d.logger.Debug("webhook: attempt failed", "url", hook.URL, "seq", rec.Seq, "error", err)
		}
		return err
	}, bo)
}

func (d *Dispatcher) post(ctx context.Context, client *http.Client, hook config.WebhookConfig, evt string, rec domain.TransitionRecord, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(data))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Phaseline-Event", evt)
	req.Header.Set("X-Phaseline-Delivery", fmt.Sprintf("%d", rec.Seq))
	req.Header.Set("X-Phaseline-Project", rec.ProjectID)
	if strings.TrimSpace(hook.Secret) != "" {
		req.Header.Set("X-Phaseline-Secret", hook.Secret)
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		err := fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
		if res.StatusCode >= 400 && res.StatusCode < 500 && res.StatusCode != http.StatusTooManyRequests {
			return backoff.Permanent(err)
		}
		return err
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
		key := strings.TrimSpace(evt)
		switch {
		case key == "":
			continue
		case key == "*":
			return eventFilter{all: true}
		case !strings.HasPrefix(key, "phase."):
			// bare phase names are accepted: "active" matches phase.active
			key = "phase." + key
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
