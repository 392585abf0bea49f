// Package engine is the transactional core: every write goes through one
// transaction that mutates state and appends to the event log together, and
// committed events fan out to the notification paths afterwards.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"taskline/internal/broadcast"
	"taskline/internal/config"
	"taskline/internal/domain"
	"taskline/internal/events"
	"taskline/internal/repo"
)

type Engine struct {
	DB          *sql.DB
	Repo        repo.Repo
	Events      events.Writer
	Config      *config.Config
	Broadcaster *broadcast.Broadcaster
	Now         func() time.Time
}

func New(db *sql.DB, cfg *config.Config) *Engine {
	return &Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Engine) nowStamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

// publish fans one committed event out. Fan-out never fails a caller; it only
// runs after the transaction that recorded the event has committed.
func (e *Engine) publish(ctx context.Context, kind, resourceID, taskID, actorID string, payload map[string]any) {
	if e.Broadcaster == nil {
		return
	}
	e.Broadcaster.Publish(ctx, broadcast.Notice{
		Kind:       kind,
		ResourceID: resourceID,
		TaskID:     taskID,
		ActorID:    actorID,
		Payload:    payload,
	})
}

func validStatus(s string) bool {
	switch s {
	case domain.TaskStatusTodo, domain.TaskStatusInProgress, domain.TaskStatusCompleted, domain.TaskStatusArchived:
		return true
	}
	return false
}

func validPriority(p string) bool {
	switch p {
	case domain.PriorityLow, domain.PriorityMedium, domain.PriorityHigh, domain.PriorityUrgent:
		return true
	}
	return false
}

// taskContext is the event payload shape shared by every task event: rules
// resolve dotted paths into it and webhook receivers see it under data.
func taskContext(t domain.Task, actorID string) map[string]any {
	task := map[string]any{
		"id":          t.ID,
		"title":       t.Title,
		"description": t.Description,
		"status":      t.Status,
		"priority":    t.Priority,
		"owner_id":    t.OwnerID,
	}
	if len(t.Tags) > 0 {
		task["tags"] = t.Tags
	}
	if t.Due != nil {
		task["due"] = *t.Due
	}
	if t.AssigneeID != nil {
		task["assignee_id"] = *t.AssigneeID
	}
	return map[string]any{"task": task, "actor_id": actorID}
}

// TaskCreateOptions are parameters for creating a task.
type TaskCreateOptions struct {
	ID          string
	Title       string
	Description string
	Status      string
	Priority    string
	Tags        []string
	Due         string
	AssigneeID  string
	ActorID     string
}

func (e *Engine) CreateTask(ctx context.Context, opts TaskCreateOptions) (domain.Task, error) {
	if opts.Title == "" {
		return domain.Task{}, errors.New("title is required")
	}
	if opts.Status == "" {
		opts.Status = domain.TaskStatusTodo
	}
	if !validStatus(opts.Status) {
		return domain.Task{}, fmt.Errorf("invalid status %q", opts.Status)
	}
	if opts.Priority == "" {
		opts.Priority = domain.PriorityMedium
	}
	if !validPriority(opts.Priority) {
		return domain.Task{}, fmt.Errorf("invalid priority %q", opts.Priority)
	}
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	now := e.nowStamp()
	t := domain.Task{
		ID:          id,
		Title:       opts.Title,
		Description: opts.Description,
		Status:      opts.Status,
		Priority:    opts.Priority,
		Tags:        opts.Tags,
		Due:         optionalString(opts.Due),
		OwnerID:     opts.ActorID,
		AssigneeID:  optionalString(opts.AssigneeID),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if t.Status == domain.TaskStatusCompleted {
		t.CompletedAt = &now
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
		return domain.Task{}, fmt.Errorf("insert task: %w", err)
	}
	if err := e.Events.Append(ctx, tx, domain.EventTaskCreated, t.ID, opts.ActorID, events.EventPayload{"title": t.Title, "status": t.Status, "priority": t.Priority}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	e.publish(ctx, domain.EventTaskCreated, t.ID, t.ID, opts.ActorID, taskContext(t, opts.ActorID))
	return t, nil
}

func (e *Engine) GetTask(ctx context.Context, id string) (domain.Task, error) {
	return e.Repo.GetTask(ctx, id)
}

func (e *Engine) ListTasks(ctx context.Context, f repo.TaskFilters) ([]domain.Task, error) {
	return e.Repo.ListTasks(ctx, f)
}

// TaskUpdateOptions encapsulates allowed updates. Nil pointers leave fields
// alone; an empty-string Due or AssigneeID clears the field.
type TaskUpdateOptions struct {
	ID          string
	Title       *string
	Description *string
	Status      *string
	Priority    *string
	Tags        []string
	Due         *string
	AssigneeID  *string
	ActorID     string
}

func (e *Engine) UpdateTask(ctx context.Context, opts TaskUpdateOptions) (domain.Task, error) {
	t, err := e.Repo.GetTask(ctx, opts.ID)
	if err != nil {
		return t, err
	}
	original := t
	changes := map[string]any{}
	if opts.Title != nil && *opts.Title != t.Title {
		t.Title = *opts.Title
		changes["title"] = t.Title
	}
	if opts.Description != nil && *opts.Description != t.Description {
		t.Description = *opts.Description
		changes["description"] = t.Description
	}
	if opts.Status != nil && *opts.Status != t.Status {
		if !validStatus(*opts.Status) {
			return t, fmt.Errorf("invalid status %q", *opts.Status)
		}
		t.Status = *opts.Status
		changes["status"] = t.Status
	}
	if opts.Priority != nil && *opts.Priority != t.Priority {
		if !validPriority(*opts.Priority) {
			return t, fmt.Errorf("invalid priority %q", *opts.Priority)
		}
		t.Priority = *opts.Priority
		changes["priority"] = t.Priority
	}
	if opts.Tags != nil {
		t.Tags = opts.Tags
		changes["tags"] = t.Tags
	}
	if opts.Due != nil {
		if *opts.Due == "" {
			t.Due = nil
			changes["due"] = nil
		} else {
			t.Due = opts.Due
			t.DueNotified = false
			changes["due"] = *opts.Due
		}
	}
	if opts.AssigneeID != nil {
		if *opts.AssigneeID == "" {
			t.AssigneeID = nil
			changes["assignee_id"] = nil
		} else {
			t.AssigneeID = opts.AssigneeID
			changes["assignee_id"] = *opts.AssigneeID
		}
	}
	if len(changes) == 0 {
		return t, nil
	}
	now := e.nowStamp()
	t.UpdatedAt = now
	completed := t.Status == domain.TaskStatusCompleted && original.Status != domain.TaskStatusCompleted
	if completed {
		t.CompletedAt = &now
	}
	assigned := t.AssigneeID != nil && (original.AssigneeID == nil || *original.AssigneeID != *t.AssigneeID)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return t, err
	}
	defer tx.Rollback()

	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return t, err
	}
	if err := e.Events.Append(ctx, tx, domain.EventTaskUpdated, t.ID, opts.ActorID, events.EventPayload{"changes": changes}); err != nil {
		return t, err
	}
	if completed {
		if err := e.Events.Append(ctx, tx, domain.EventTaskCompleted, t.ID, opts.ActorID, events.EventPayload{"title": t.Title}); err != nil {
			return t, err
		}
	}
	if assigned {
		if err := e.Events.Append(ctx, tx, domain.EventTaskAssigned, t.ID, opts.ActorID, events.EventPayload{"assignee_id": *t.AssigneeID}); err != nil {
			return t, err
		}
	}
	if err := tx.Commit(); err != nil {
		return t, err
	}

	evCtx := taskContext(t, opts.ActorID)
	evCtx["changes"] = changes
	e.publish(ctx, domain.EventTaskUpdated, t.ID, t.ID, opts.ActorID, evCtx)
	if completed {
		e.publish(ctx, domain.EventTaskCompleted, t.ID, t.ID, opts.ActorID, taskContext(t, opts.ActorID))
	}
	if assigned {
		assignedCtx := taskContext(t, opts.ActorID)
		assignedCtx["assignee_id"] = *t.AssigneeID
		e.publish(ctx, domain.EventTaskAssigned, t.ID, t.ID, opts.ActorID, assignedCtx)
	}
	return t, nil
}

func (e *Engine) DeleteTask(ctx context.Context, id, actorID string) error {
	t, err := e.Repo.GetTask(ctx, id)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := e.Repo.DeleteTask(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, domain.EventTaskDeleted, id, actorID, events.EventPayload{"title": t.Title}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	e.publish(ctx, domain.EventTaskDeleted, id, id, actorID, taskContext(t, actorID))
	return nil
}

// NotifyDueSoon records and fans out a due_date.approaching event for the
// task, marking it so the sweep never notifies twice.
func (e *Engine) NotifyDueSoon(ctx context.Context, t domain.Task) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE tasks SET due_notified=1 WHERE id=? AND due_notified=0`, t.ID); err != nil {
		return err
	}
	payload := events.EventPayload{"title": t.Title}
	if t.Due != nil {
		payload["due"] = *t.Due
	}
	if err := e.Events.Append(ctx, tx, domain.EventDueDateApproaching, t.ID, "system", payload); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	evCtx := taskContext(t, "system")
	if t.Due != nil {
		evCtx["due"] = *t.Due
	}
	e.publish(ctx, domain.EventDueDateApproaching, t.ID, t.ID, "system", evCtx)
	return nil
}

func (e *Engine) ListEvents(ctx context.Context, limit int, after int64, kind string) ([]domain.Event, error) {
	return e.Repo.EventsAfter(ctx, limit, after, kind)
}

func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
