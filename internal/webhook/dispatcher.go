package webhook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"taskline/internal/domain"
)

// SignatureHeader carries the hex HMAC-SHA256 of the request body.
const SignatureHeader = "X-Webhook-Signature"

// Store is the slice of the repository the dispatcher needs.
type Store interface {
	ActiveWebhooksForEvent(ctx context.Context, kind string) ([]domain.Webhook, error)
	RecordWebhookSuccess(ctx context.Context, id, at string) error
	RecordWebhookFailure(ctx context.Context, id, at string) error
}

// Dispatcher fans an event out to every subscribed active webhook. Targets
// are posted to concurrently; one endpoint's failure never affects another's
// delivery.
type Dispatcher struct {
	Store  Store
	Client *http.Client
	Logger *log.Logger
	Now    func() time.Time
}

func NewDispatcher(store Store, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{
		Store:  store,
		Client: &http.Client{Timeout: timeout},
		Now:    time.Now,
	}
}

func (d *Dispatcher) logf(format string, args ...any) {
	if d.Logger != nil {
		d.Logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}

func (d *Dispatcher) now() string {
	return d.Now().UTC().Format(time.RFC3339)
}

// Dispatch signs and posts the event payload to every active webhook
// subscribed to kind, then waits for all deliveries to settle. Lookup errors
// are returned; delivery failures are logged and counted per webhook.
func (d *Dispatcher) Dispatch(ctx context.Context, kind string, payload any) error {
	hooks, err := d.Store.ActiveWebhooksForEvent(ctx, kind)
	if err != nil {
		return fmt.Errorf("webhooks for %s: %w", kind, err)
	}
	if len(hooks) == 0 {
		return nil
	}
	body, err := Canonical(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", kind, err)
	}
	done := make(chan struct{}, len(hooks))
	for _, h := range hooks {
		go func(h domain.Webhook) {
			defer func() { done <- struct{}{} }()
			d.deliver(ctx, h, kind, body)
		}(h)
	}
	for range hooks {
		<-done
	}
	return nil
}

func (d *Dispatcher) deliver(ctx context.Context, h domain.Webhook, kind string, body []byte) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.URL, bytes.NewReader(body))
	if err != nil {
		d.fail(ctx, h, kind, err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, Sign(h.Secret, body))
	for k, v := range h.Headers {
		req.Header.Set(k, v)
	}
	resp, err := d.Client.Do(req)
	if err != nil {
		d.fail(ctx, h, kind, err)
		return
	}
	// Drain so the connection can go back to the pool.
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		d.fail(ctx, h, kind, fmt.Errorf("status %d", resp.StatusCode))
		return
	}
	if err := d.Store.RecordWebhookSuccess(ctx, h.ID, d.now()); err != nil {
		d.logf("webhook %s: record success: %v", h.ID, err)
	}
}

func (d *Dispatcher) fail(ctx context.Context, h domain.Webhook, kind string, cause error) {
	d.logf("webhook %s (%s): deliver %s: %v", h.ID, h.URL, kind, cause)
	if err := d.Store.RecordWebhookFailure(ctx, h.ID, d.now()); err != nil {
		d.logf("webhook %s: record failure: %v", h.ID, err)
	}
}
