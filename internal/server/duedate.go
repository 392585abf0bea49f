package server

import (
	"context"
	"log"
	"time"

	"taskline/internal/engine"
)

const (
	defaultDueSoonWindow   = 24 * time.Hour
	defaultDueSoonInterval = 60 * time.Second
)

// dueSweeper periodically scans for open tasks whose due date falls inside
// the approaching window and fires a due_date.approaching event for each,
// once per due date.
type dueSweeper struct {
	engine   *engine.Engine
	window   time.Duration
	interval time.Duration
	logger   *log.Logger
}

// StartDueSweeper launches the background sweep. It stops when ctx is
// cancelled.
func StartDueSweeper(ctx context.Context, e *engine.Engine, logger *log.Logger) {
	window := defaultDueSoonWindow
	interval := defaultDueSoonInterval
	if e.Config != nil {
		if e.Config.DueSoon.WindowHours > 0 {
			window = time.Duration(e.Config.DueSoon.WindowHours) * time.Hour
		}
		if e.Config.DueSoon.IntervalSeconds > 0 {
			interval = time.Duration(e.Config.DueSoon.IntervalSeconds) * time.Second
		}
	}
	s := &dueSweeper{engine: e, window: window, interval: interval, logger: logger}
	go s.run(ctx)
}

func (s *dueSweeper) logf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}

func (s *dueSweeper) run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		s.sweep(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// sweep runs one pass. Each notified task is marked so a later pass never
// fires twice for the same due date.
func (s *dueSweeper) sweep(ctx context.Context) {
	cutoff := s.engine.Now().UTC().Add(s.window).Format(time.RFC3339)
	tasks, err := s.engine.Repo.TasksDueBefore(ctx, cutoff)
	if err != nil {
		s.logf("due sweep: list tasks: %v", err)
		return
	}
	for _, t := range tasks {
		if err := s.engine.NotifyDueSoon(ctx, t); err != nil {
			s.logf("due sweep: task %s: %v", t.ID, err)
		}
	}
}
