// Package automation fires user-defined rules in response to events and runs
// their action lists.
package automation

import (
	"context"
	"fmt"
	"log"

	"taskline/internal/domain"
	"taskline/internal/mail"
	"taskline/internal/rules"
)

// TaskActions is the slice of the task engine the executor mutates through.
// Mutations made here flow through the normal write path, so they produce
// their own events.
type TaskActions interface {
	CreateTask(ctx context.Context, actorID, title, description, priority string) error
	AssignTask(ctx context.Context, actorID, taskID, assigneeID string) error
	SetTaskPriority(ctx context.Context, actorID, taskID, priority string) error
	UpdateTaskFields(ctx context.Context, actorID, taskID string, fields map[string]any) error
}

// Notifier pushes an in-app notification to a user's live connections.
type Notifier interface {
	Notify(userID, message string)
}

// Executor runs a rule's ordered action list. Each action is isolated: a
// failure is logged and the next action still runs.
type Executor struct {
	Tasks  TaskActions
	Mail   mail.Mailer
	Notify Notifier
	Logger *log.Logger
}

func (e *Executor) logf(format string, args ...any) {
	if e.Logger != nil {
		e.Logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}

// Execute runs every action of the rule in order against the event context.
func (e *Executor) Execute(ctx context.Context, rule domain.Rule, evCtx rules.Context) {
	for i, action := range rule.Actions {
		if err := e.runAction(ctx, rule, action, evCtx); err != nil {
			e.logf("rule %s (%s): action %d (%s): %v", rule.ID, rule.Name, i, action.Type, err)
		}
	}
}

func (e *Executor) runAction(ctx context.Context, rule domain.Rule, action domain.Action, evCtx rules.Context) error {
	switch action.Type {
	case "create_task":
		return e.createTask(ctx, rule, action, evCtx)
	case "update_task":
		return e.updateTask(ctx, rule, action, evCtx)
	case "send_email":
		return e.sendEmail(action, evCtx)
	case "send_notification":
		return e.sendNotification(action, evCtx)
	case "assign_task":
		return e.assignTask(ctx, rule, action, evCtx)
	case "set_priority":
		return e.setPriority(ctx, rule, action, evCtx)
	default:
		return fmt.Errorf("unknown action type %q", action.Type)
	}
}

func (e *Executor) createTask(ctx context.Context, rule domain.Rule, action domain.Action, evCtx rules.Context) error {
	title := interpolated(action, "title", evCtx)
	if title == "" {
		return fmt.Errorf("create_task: missing title param")
	}
	description := interpolated(action, "description", evCtx)
	priority := paramString(action, "priority")
	if priority == "" {
		priority = domain.PriorityMedium
	}
	return e.Tasks.CreateTask(ctx, rule.OwnerID, title, description, priority)
}

func (e *Executor) updateTask(ctx context.Context, rule domain.Rule, action domain.Action, evCtx rules.Context) error {
	taskID := targetTask(evCtx)
	if taskID == "" {
		e.logf("rule %s: update_task: no target task in event, skipping", rule.ID)
		return nil
	}
	raw, _ := action.Params["updates"].(map[string]any)
	if len(raw) == 0 {
		return fmt.Errorf("update_task: missing updates param")
	}
	fields := make(map[string]any, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			fields[k] = rules.Interpolate(s, evCtx)
		} else {
			fields[k] = v
		}
	}
	return e.Tasks.UpdateTaskFields(ctx, rule.OwnerID, taskID, fields)
}

func (e *Executor) sendEmail(action domain.Action, evCtx rules.Context) error {
	to := interpolated(action, "to", evCtx)
	if to == "" {
		return fmt.Errorf("send_email: missing to param")
	}
	subject := interpolated(action, "subject", evCtx)
	body := interpolated(action, "body", evCtx)
	if e.Mail == nil {
		return fmt.Errorf("send_email: no mailer configured")
	}
	return e.Mail.Send(to, subject, body)
}

func (e *Executor) sendNotification(action domain.Action, evCtx rules.Context) error {
	userID := interpolated(action, "user_id", evCtx)
	if userID == "" {
		return fmt.Errorf("send_notification: missing user_id param")
	}
	message := interpolated(action, "message", evCtx)
	if e.Notify == nil {
		return fmt.Errorf("send_notification: no notifier configured")
	}
	e.Notify.Notify(userID, message)
	return nil
}

func (e *Executor) assignTask(ctx context.Context, rule domain.Rule, action domain.Action, evCtx rules.Context) error {
	taskID := targetTask(evCtx)
	if taskID == "" {
		e.logf("rule %s: assign_task: no target task in event, skipping", rule.ID)
		return nil
	}
	assigneeID := interpolated(action, "assignee_id", evCtx)
	if assigneeID == "" {
		return fmt.Errorf("assign_task: missing assignee_id param")
	}
	return e.Tasks.AssignTask(ctx, rule.OwnerID, taskID, assigneeID)
}

func (e *Executor) setPriority(ctx context.Context, rule domain.Rule, action domain.Action, evCtx rules.Context) error {
	taskID := targetTask(evCtx)
	if taskID == "" {
		e.logf("rule %s: set_priority: no target task in event, skipping", rule.ID)
		return nil
	}
	priority := paramString(action, "priority")
	if priority == "" {
		return fmt.Errorf("set_priority: missing priority param")
	}
	return e.Tasks.SetTaskPriority(ctx, rule.OwnerID, taskID, priority)
}

// targetTask resolves which task an action mutates: the task carried by the
// event, falling back to a bare taskId key.
func targetTask(evCtx rules.Context) string {
	if v := rules.Resolve(evCtx, "task.id"); v != rules.Undefined {
		if s, ok := v.(string); ok {
			return s
		}
	}
	if v := rules.Resolve(evCtx, "taskId"); v != rules.Undefined {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func paramString(action domain.Action, key string) string {
	s, _ := action.Params[key].(string)
	return s
}

func interpolated(action domain.Action, key string, evCtx rules.Context) string {
	return rules.Interpolate(paramString(action, key), evCtx)
}
