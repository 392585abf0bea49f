package domain

// Task statuses.
const (
	TaskStatusTodo       = "TODO"
	TaskStatusInProgress = "IN_PROGRESS"
	TaskStatusCompleted  = "COMPLETED"
	TaskStatusArchived   = "ARCHIVED"
)

// Task priorities.
const (
	PriorityLow    = "LOW"
	PriorityMedium = "MEDIUM"
	PriorityHigh   = "HIGH"
	PriorityUrgent = "URGENT"
)

// Event kinds. The same strings serve as automation triggers and webhook
// subscriptions.
const (
	EventTaskCreated        = "task.created"
	EventTaskUpdated        = "task.updated"
	EventTaskCompleted      = "task.completed"
	EventTaskAssigned       = "task.assigned"
	EventTaskDeleted        = "task.deleted"
	EventCommentAdded       = "comment.added"
	EventCommentUpdated     = "comment.updated"
	EventCommentDeleted     = "comment.deleted"
	EventDueDateApproaching = "due_date.approaching"
)

// EventKinds lists every kind a rule or webhook may subscribe to.
var EventKinds = []string{
	EventTaskCreated,
	EventTaskUpdated,
	EventTaskCompleted,
	EventTaskAssigned,
	EventTaskDeleted,
	EventCommentAdded,
	EventCommentUpdated,
	EventCommentDeleted,
	EventDueDateApproaching,
}

// KnownEventKind reports whether kind is one of EventKinds.
func KnownEventKind(kind string) bool {
	for _, k := range EventKinds {
		if k == kind {
			return true
		}
	}
	return false
}

type Task struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Status      string   `json:"status" enum:"TODO,IN_PROGRESS,COMPLETED,ARCHIVED"`
	Priority    string   `json:"priority" enum:"LOW,MEDIUM,HIGH,URGENT"`
	Tags        []string `json:"tags,omitempty"`
	Due         *string  `json:"due,omitempty" format:"date-time"`
	DueNotified bool     `json:"-"`
	OwnerID     string   `json:"owner_id"`
	AssigneeID  *string  `json:"assignee_id,omitempty"`
	CreatedAt   string   `json:"created_at" format:"date-time"`
	UpdatedAt   string   `json:"updated_at" format:"date-time"`
	CompletedAt *string  `json:"completed_at,omitempty" format:"date-time"`
}

type Comment struct {
	ID        string   `json:"id"`
	TaskID    string   `json:"task_id"`
	AuthorID  string   `json:"author_id"`
	Content   string   `json:"content"`
	ParentID  *string  `json:"parent_id,omitempty"`
	Mentions  []string `json:"mentions,omitempty"`
	CreatedAt string   `json:"created_at" format:"date-time"`
	UpdatedAt string   `json:"updated_at" format:"date-time"`
}

// Condition is a single predicate over a dotted-path field of an event context.
type Condition struct {
	Field    string `json:"field"`
	Operator string `json:"operator" enum:"equals,contains,greater_than,less_than,in,not_in"`
	Value    any    `json:"value"`
}

// Action is one side-effecting step in a rule's ordered execution list.
type Action struct {
	Type   string         `json:"type" enum:"create_task,update_task,send_email,send_notification,assign_task,set_priority"`
	Params map[string]any `json:"params"`
}

// Rule is a user-defined automation: when trigger fires and every condition
// holds, the actions run in order.
type Rule struct {
	ID             string      `json:"id"`
	OwnerID        string      `json:"owner_id"`
	Name           string      `json:"name"`
	Trigger        string      `json:"trigger"`
	Conditions     []Condition `json:"conditions"`
	Actions        []Action    `json:"actions"`
	IsActive       bool        `json:"is_active"`
	ExecutionCount int64       `json:"execution_count"`
	LastExecution  *string     `json:"last_execution,omitempty" format:"date-time"`
	CreatedAt      string      `json:"created_at" format:"date-time"`
	UpdatedAt      string      `json:"updated_at" format:"date-time"`
}

// Webhook is a registered external endpoint. Secret is generated once at
// creation and never updated; delivery counters are owned by the dispatcher.
type Webhook struct {
	ID           string            `json:"id"`
	OwnerID      string            `json:"owner_id"`
	Name         string            `json:"name"`
	URL          string            `json:"url"`
	Secret       string            `json:"secret,omitempty"`
	Events       []string          `json:"events"`
	Headers      map[string]string `json:"headers,omitempty"`
	IsActive     bool              `json:"is_active"`
	SuccessCount int64             `json:"success_count"`
	FailureCount int64             `json:"failure_count"`
	LastSuccess  *string           `json:"last_success,omitempty" format:"date-time"`
	LastFailure  *string           `json:"last_failure,omitempty" format:"date-time"`
	CreatedAt    string            `json:"created_at" format:"date-time"`
}

// Event is one row of the persisted event log.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Kind       string `json:"kind"`
	ResourceID string `json:"resource_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
