package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"taskline/internal/domain"
	"taskline/internal/repo"
	"taskline/internal/webhook"
)

func validOperator(op string) bool {
	switch op {
	case "equals", "contains", "greater_than", "less_than", "in", "not_in":
		return true
	}
	return false
}

func validActionType(t string) bool {
	switch t {
	case "create_task", "update_task", "send_email", "send_notification", "assign_task", "set_priority":
		return true
	}
	return false
}

func validateRule(trigger string, conditions []domain.Condition, actions []domain.Action) error {
	if !domain.KnownEventKind(trigger) {
		return fmt.Errorf("unknown trigger %q", trigger)
	}
	for _, c := range conditions {
		if c.Field == "" {
			return errors.New("condition field is required")
		}
		if !validOperator(c.Operator) {
			return fmt.Errorf("unknown operator %q", c.Operator)
		}
	}
	if len(actions) == 0 {
		return errors.New("at least one action is required")
	}
	for _, a := range actions {
		if !validActionType(a.Type) {
			return fmt.Errorf("unknown action type %q", a.Type)
		}
	}
	return nil
}

// RuleCreateOptions are parameters for registering an automation rule.
type RuleCreateOptions struct {
	ID         string
	Name       string
	Trigger    string
	Conditions []domain.Condition
	Actions    []domain.Action
	IsActive   *bool
	ActorID    string
}

func (e *Engine) CreateRule(ctx context.Context, opts RuleCreateOptions) (domain.Rule, error) {
	if opts.Name == "" {
		return domain.Rule{}, errors.New("name is required")
	}
	if err := validateRule(opts.Trigger, opts.Conditions, opts.Actions); err != nil {
		return domain.Rule{}, err
	}
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	active := true
	if opts.IsActive != nil {
		active = *opts.IsActive
	}
	now := e.nowStamp()
	rl := domain.Rule{
		ID:         id,
		OwnerID:    opts.ActorID,
		Name:       opts.Name,
		Trigger:    opts.Trigger,
		Conditions: opts.Conditions,
		Actions:    opts.Actions,
		IsActive:   active,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if rl.Conditions == nil {
		rl.Conditions = []domain.Condition{}
	}
	if err := e.Repo.InsertRule(ctx, rl); err != nil {
		return domain.Rule{}, fmt.Errorf("insert rule: %w", err)
	}
	return rl, nil
}

func (e *Engine) GetRule(ctx context.Context, id, actorID string) (domain.Rule, error) {
	return e.Repo.GetRule(ctx, id, actorID)
}

func (e *Engine) ListRules(ctx context.Context, actorID string) ([]domain.Rule, error) {
	return e.Repo.ListRules(ctx, actorID)
}

func (e *Engine) UpdateRule(ctx context.Context, id, actorID string, u repo.RuleUpdate) (domain.Rule, error) {
	if u.Trigger != nil && !domain.KnownEventKind(*u.Trigger) {
		return domain.Rule{}, fmt.Errorf("unknown trigger %q", *u.Trigger)
	}
	for _, c := range u.Conditions {
		if !validOperator(c.Operator) {
			return domain.Rule{}, fmt.Errorf("unknown operator %q", c.Operator)
		}
	}
	for _, a := range u.Actions {
		if !validActionType(a.Type) {
			return domain.Rule{}, fmt.Errorf("unknown action type %q", a.Type)
		}
	}
	return e.Repo.UpdateRule(ctx, id, actorID, e.nowStamp(), u)
}

func (e *Engine) DeleteRule(ctx context.Context, id, actorID string) error {
	return e.Repo.DeleteRule(ctx, id, actorID)
}

// WebhookCreateOptions are parameters for registering a webhook endpoint.
type WebhookCreateOptions struct {
	ID      string
	Name    string
	URL     string
	Events  []string
	Headers map[string]string
	ActorID string
}

func validateWebhookEvents(kinds []string) error {
	if len(kinds) == 0 {
		return errors.New("at least one event is required")
	}
	for _, k := range kinds {
		if !domain.KnownEventKind(k) {
			return fmt.Errorf("unknown event %q", k)
		}
	}
	return nil
}

// CreateWebhook registers an endpoint and generates its signing secret. The
// returned webhook is the only response that ever carries the secret.
func (e *Engine) CreateWebhook(ctx context.Context, opts WebhookCreateOptions) (domain.Webhook, error) {
	if opts.Name == "" {
		return domain.Webhook{}, errors.New("name is required")
	}
	if !strings.HasPrefix(opts.URL, "http://") && !strings.HasPrefix(opts.URL, "https://") {
		return domain.Webhook{}, fmt.Errorf("invalid url %q", opts.URL)
	}
	if err := validateWebhookEvents(opts.Events); err != nil {
		return domain.Webhook{}, err
	}
	secret, err := webhook.NewSecret()
	if err != nil {
		return domain.Webhook{}, fmt.Errorf("generate secret: %w", err)
	}
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	w := domain.Webhook{
		ID:        id,
		OwnerID:   opts.ActorID,
		Name:      opts.Name,
		URL:       opts.URL,
		Secret:    secret,
		Events:    opts.Events,
		Headers:   opts.Headers,
		IsActive:  true,
		CreatedAt: e.nowStamp(),
	}
	if err := e.Repo.InsertWebhook(ctx, w); err != nil {
		return domain.Webhook{}, fmt.Errorf("insert webhook: %w", err)
	}
	return w, nil
}

// GetWebhook returns the webhook with its secret redacted.
func (e *Engine) GetWebhook(ctx context.Context, id, actorID string) (domain.Webhook, error) {
	w, err := e.Repo.GetWebhook(ctx, id, actorID)
	if err != nil {
		return domain.Webhook{}, err
	}
	w.Secret = ""
	return w, nil
}

func (e *Engine) ListWebhooks(ctx context.Context, actorID string) ([]domain.Webhook, error) {
	hooks, err := e.Repo.ListWebhooks(ctx, actorID)
	if err != nil {
		return nil, err
	}
	for i := range hooks {
		hooks[i].Secret = ""
	}
	return hooks, nil
}

func (e *Engine) UpdateWebhook(ctx context.Context, id, actorID string, u repo.WebhookUpdate) (domain.Webhook, error) {
	if u.URL != nil && !strings.HasPrefix(*u.URL, "http://") && !strings.HasPrefix(*u.URL, "https://") {
		return domain.Webhook{}, fmt.Errorf("invalid url %q", *u.URL)
	}
	if u.Events != nil {
		if err := validateWebhookEvents(u.Events); err != nil {
			return domain.Webhook{}, err
		}
	}
	w, err := e.Repo.UpdateWebhook(ctx, id, actorID, u)
	if err != nil {
		return domain.Webhook{}, err
	}
	w.Secret = ""
	return w, nil
}

func (e *Engine) DeleteWebhook(ctx context.Context, id, actorID string) error {
	return e.Repo.DeleteWebhook(ctx, id, actorID)
}

// RuleActions adapts the engine's write path to the narrow surface the rule
// executor mutates through; rule-driven mutations emit events like any other
// write.
type RuleActions struct {
	Engine *Engine
}

func (a RuleActions) CreateTask(ctx context.Context, actorID, title, description, priority string) error {
	_, err := a.Engine.CreateTask(ctx, TaskCreateOptions{
		Title:       title,
		Description: description,
		Priority:    priority,
		ActorID:     actorID,
	})
	return err
}

func (a RuleActions) AssignTask(ctx context.Context, actorID, taskID, assigneeID string) error {
	_, err := a.Engine.UpdateTask(ctx, TaskUpdateOptions{ID: taskID, AssigneeID: &assigneeID, ActorID: actorID})
	return err
}

func (a RuleActions) SetTaskPriority(ctx context.Context, actorID, taskID, priority string) error {
	_, err := a.Engine.UpdateTask(ctx, TaskUpdateOptions{ID: taskID, Priority: &priority, ActorID: actorID})
	return err
}

// UpdateTaskFields applies a loosely-typed field map from a rule action to a
// task. Unknown fields are rejected rather than ignored.
func (a RuleActions) UpdateTaskFields(ctx context.Context, actorID, taskID string, fields map[string]any) error {
	opts := TaskUpdateOptions{ID: taskID, ActorID: actorID}
	for k, v := range fields {
		s, _ := v.(string)
		switch k {
		case "title":
			opts.Title = &s
		case "description":
			opts.Description = &s
		case "status":
			opts.Status = &s
		case "priority":
			opts.Priority = &s
		case "due":
			opts.Due = &s
		case "assignee_id":
			opts.AssigneeID = &s
		default:
			return fmt.Errorf("update_task: unknown field %q", k)
		}
	}
	_, err := a.Engine.UpdateTask(ctx, opts)
	return err
}
