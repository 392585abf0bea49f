package server

import (
	"taskline/internal/domain"
)

type CreateTaskRequest struct {
	ID          *string  `json:"id,omitempty"`
	Title       string   `json:"title"`
	Description *string  `json:"description,omitempty"`
	Status      *string  `json:"status,omitempty" enum:"TODO,IN_PROGRESS,COMPLETED,ARCHIVED"`
	Priority    *string  `json:"priority,omitempty" enum:"LOW,MEDIUM,HIGH,URGENT"`
	Tags        []string `json:"tags,omitempty"`
	Due         *string  `json:"due,omitempty" format:"date-time"`
	AssigneeID  *string  `json:"assignee_id,omitempty"`
}

type UpdateTaskRequest struct {
	Title       *string  `json:"title,omitempty"`
	Description *string  `json:"description,omitempty"`
	Status      *string  `json:"status,omitempty" enum:"TODO,IN_PROGRESS,COMPLETED,ARCHIVED"`
	Priority    *string  `json:"priority,omitempty" enum:"LOW,MEDIUM,HIGH,URGENT"`
	Tags        []string `json:"tags,omitempty"`
	Due         *string  `json:"due,omitempty"`
	AssigneeID  *string  `json:"assignee_id,omitempty"`
}

type CreateCommentRequest struct {
	Content  string  `json:"content"`
	ParentID *string `json:"parent_id,omitempty"`
}

type UpdateCommentRequest struct {
	Content string `json:"content"`
}

type CreateRuleRequest struct {
	Name       string             `json:"name"`
	Trigger    string             `json:"trigger"`
	Conditions []domain.Condition `json:"conditions,omitempty"`
	Actions    []domain.Action    `json:"actions"`
	IsActive   *bool              `json:"is_active,omitempty"`
}

type UpdateRuleRequest struct {
	Name       *string            `json:"name,omitempty"`
	Trigger    *string            `json:"trigger,omitempty"`
	Conditions []domain.Condition `json:"conditions,omitempty"`
	Actions    []domain.Action    `json:"actions,omitempty"`
	IsActive   *bool              `json:"is_active,omitempty"`
}

type CreateWebhookRequest struct {
	Name    string            `json:"name"`
	URL     string            `json:"url" format:"uri"`
	Events  []string          `json:"events"`
	Headers map[string]string `json:"headers,omitempty"`
}

type UpdateWebhookRequest struct {
	Name     *string           `json:"name,omitempty"`
	URL      *string           `json:"url,omitempty" format:"uri"`
	Events   []string          `json:"events,omitempty"`
	Headers  map[string]string `json:"headers,omitempty"`
	IsActive *bool             `json:"is_active,omitempty"`
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
