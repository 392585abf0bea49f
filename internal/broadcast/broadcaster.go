// Package broadcast fans committed events out to the three notification
// paths: automation rules, webhook deliveries, and realtime rooms.
package broadcast

import (
	"context"
	"log"
	"sync"
	"time"

	"taskline/internal/automation"
	"taskline/internal/realtime"
	"taskline/internal/rules"
	"taskline/internal/webhook"
)

// Notice is one committed event ready for fan-out. TaskID routes the realtime
// emission; for task events it equals ResourceID, for comment events it is the
// parent task.
type Notice struct {
	Kind       string
	ResourceID string
	TaskID     string
	ActorID    string
	Payload    map[string]any
}

// Broadcaster runs the three fan-out paths concurrently and waits for all of
// them. The paths are isolated: a failure in one is logged and never reaches
// the others, and never reaches the caller.
type Broadcaster struct {
	Rules    *automation.Service
	Webhooks *webhook.Dispatcher
	Realtime *realtime.Gateway
	Logger   *log.Logger
	Now      func() time.Time
}

func New(rules *automation.Service, hooks *webhook.Dispatcher, gw *realtime.Gateway) *Broadcaster {
	return &Broadcaster{Rules: rules, Webhooks: hooks, Realtime: gw, Now: time.Now}
}

func (b *Broadcaster) logf(format string, args ...any) {
	if b.Logger != nil {
		b.Logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}

// Publish delivers the notice to every configured path and returns once all
// of them have settled.
func (b *Broadcaster) Publish(ctx context.Context, n Notice) {
	ts := b.Now().UTC().Format(time.RFC3339)
	var wg sync.WaitGroup

	if b.Rules != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			evCtx := rules.Context(n.Payload)
			if err := b.Rules.ProcessTrigger(ctx, n.Kind, evCtx); err != nil {
				b.logf("broadcast %s: rules: %v", n.Kind, err)
			}
		}()
	}

	if b.Webhooks != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			body := map[string]any{
				"event":     n.Kind,
				"timestamp": ts,
				"data":      n.Payload,
			}
			if err := b.Webhooks.Dispatch(ctx, n.Kind, body); err != nil {
				b.logf("broadcast %s: webhooks: %v", n.Kind, err)
			}
		}()
	}

	if b.Realtime != nil && n.TaskID != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Realtime.EmitToRoom(n.TaskID, n.Kind, map[string]any{
				"kind":       n.Kind,
				"resourceId": n.ResourceID,
				"payload":    n.Payload,
				"timestamp":  ts,
			})
		}()
	}

	wg.Wait()
}
