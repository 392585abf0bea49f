package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"taskline/internal/broadcast"
	"taskline/internal/config"
	"taskline/internal/db"
	"taskline/internal/domain"
	"taskline/internal/engine"
	"taskline/internal/migrate"
	"taskline/internal/presence"
	"taskline/internal/realtime"
	"taskline/internal/repo"
)

type testEnv struct {
	Engine *engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default())
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	return testEnv{Engine: eng, Ctx: context.Background()}
}

func kinds(t *testing.T, env testEnv) []string {
	t.Helper()
	events, err := env.Engine.Repo.EventsAfter(env.Ctx, 100, 0, "")
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	var out []string
	for _, e := range events {
		out = append(out, e.Kind)
	}
	return out
}

func TestCreateTaskDefaults(t *testing.T) {
	env := newTestEnv(t)
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Title: "Ship it", ActorID: "alice"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if task.Status != domain.TaskStatusTodo {
		t.Fatalf("status = %q", task.Status)
	}
	if task.Priority != domain.PriorityMedium {
		t.Fatalf("priority = %q", task.Priority)
	}
	if task.OwnerID != "alice" {
		t.Fatalf("owner = %q", task.OwnerID)
	}
	if task.CreatedAt != "2024-01-01T00:00:00Z" {
		t.Fatalf("created_at = %q", task.CreatedAt)
	}
	got, err := env.Engine.GetTask(env.Ctx, task.ID)
	if err != nil || got.Title != "Ship it" {
		t.Fatalf("get: %v %v", got, err)
	}
	if ks := kinds(t, env); len(ks) != 1 || ks[0] != domain.EventTaskCreated {
		t.Fatalf("event log = %v", ks)
	}
}

func TestCreateTaskValidation(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{ActorID: "alice"}); err == nil {
		t.Fatal("missing title must error")
	}
	if _, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Title: "x", Status: "BOGUS", ActorID: "alice"}); err == nil {
		t.Fatal("bogus status must error")
	}
	if _, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Title: "x", Priority: "BOGUS", ActorID: "alice"}); err == nil {
		t.Fatal("bogus priority must error")
	}
}

func TestUpdateTaskCompletionAndAssignment(t *testing.T) {
	env := newTestEnv(t)
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Title: "Ship it", ActorID: "alice"})
	if err != nil {
		t.Fatal(err)
	}
	status := domain.TaskStatusCompleted
	assignee := "bob"
	task, err = env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{
		ID:         task.ID,
		Status:     &status,
		AssigneeID: &assignee,
		ActorID:    "alice",
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if task.Status != domain.TaskStatusCompleted {
		t.Fatalf("status = %q", task.Status)
	}
	if task.CompletedAt == nil {
		t.Fatal("completed_at not set")
	}
	if task.AssigneeID == nil || *task.AssigneeID != "bob" {
		t.Fatalf("assignee = %v", task.AssigneeID)
	}
	want := []string{domain.EventTaskCreated, domain.EventTaskUpdated, domain.EventTaskCompleted, domain.EventTaskAssigned}
	got := kinds(t, env)
	if len(got) != len(want) {
		t.Fatalf("event log = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestUpdateTaskNoChanges(t *testing.T) {
	env := newTestEnv(t)
	task, _ := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Title: "Ship it", ActorID: "alice"})
	got, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: task.ID, ActorID: "alice"})
	if err != nil {
		t.Fatalf("noop update: %v", err)
	}
	if got.UpdatedAt != task.UpdatedAt {
		t.Fatal("noop update must not touch updated_at")
	}
	if ks := kinds(t, env); len(ks) != 1 {
		t.Fatalf("noop update must not log events: %v", ks)
	}
}

func TestDeleteTask(t *testing.T) {
	env := newTestEnv(t)
	task, _ := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Title: "Ship it", ActorID: "alice"})
	if err := env.Engine.DeleteTask(env.Ctx, task.ID, "alice"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := env.Engine.GetTask(env.Ctx, task.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("get deleted: %v", err)
	}
	if err := env.Engine.DeleteTask(env.Ctx, task.ID, "alice"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("double delete: %v", err)
	}
}

func TestCommentsExtractMentions(t *testing.T) {
	env := newTestEnv(t)
	task, _ := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Title: "Ship it", ActorID: "alice"})
	c, err := env.Engine.AddComment(env.Ctx, engine.CommentCreateOptions{
		TaskID:  task.ID,
		Content: "ping @bob and @carol, also @bob again",
		ActorID: "alice",
	})
	if err != nil {
		t.Fatalf("add comment: %v", err)
	}
	if len(c.Mentions) != 2 || c.Mentions[0] != "bob" || c.Mentions[1] != "carol" {
		t.Fatalf("mentions = %v", c.Mentions)
	}
	// Only the author may edit or delete.
	if _, err := env.Engine.UpdateComment(env.Ctx, c.ID, "mallory", "hijack"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("foreign update: %v", err)
	}
	if err := env.Engine.DeleteComment(env.Ctx, c.ID, "mallory"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("foreign delete: %v", err)
	}
	updated, err := env.Engine.UpdateComment(env.Ctx, c.ID, "alice", "now just @dave")
	if err != nil {
		t.Fatalf("update comment: %v", err)
	}
	if len(updated.Mentions) != 1 || updated.Mentions[0] != "dave" {
		t.Fatalf("updated mentions = %v", updated.Mentions)
	}
}

func TestCommentThreading(t *testing.T) {
	env := newTestEnv(t)
	task, _ := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Title: "Ship it", ActorID: "alice"})
	other, _ := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Title: "Other", ActorID: "alice"})
	root, err := env.Engine.AddComment(env.Ctx, engine.CommentCreateOptions{TaskID: task.ID, Content: "root", ActorID: "alice"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.AddComment(env.Ctx, engine.CommentCreateOptions{
		TaskID: other.ID, Content: "reply", ParentID: root.ID, ActorID: "bob",
	}); err == nil {
		t.Fatal("cross-task reply must error")
	}
	reply, err := env.Engine.AddComment(env.Ctx, engine.CommentCreateOptions{
		TaskID: task.ID, Content: "reply", ParentID: root.ID, ActorID: "bob",
	})
	if err != nil {
		t.Fatalf("reply: %v", err)
	}
	if reply.ParentID == nil || *reply.ParentID != root.ID {
		t.Fatalf("parent = %v", reply.ParentID)
	}
	list, err := env.Engine.ListComments(env.Ctx, task.ID)
	if err != nil || len(list) != 2 {
		t.Fatalf("list = %v %v", list, err)
	}
}

func TestRuleValidation(t *testing.T) {
	env := newTestEnv(t)
	base := engine.RuleCreateOptions{
		Name:    "r",
		Trigger: domain.EventTaskCreated,
		Actions: []domain.Action{{Type: "send_notification", Params: map[string]any{"user_id": "a", "message": "m"}}},
		ActorID: "alice",
	}
	if _, err := env.Engine.CreateRule(env.Ctx, base); err != nil {
		t.Fatalf("valid rule: %v", err)
	}
	bad := base
	bad.Trigger = "task.exploded"
	if _, err := env.Engine.CreateRule(env.Ctx, bad); err == nil {
		t.Fatal("unknown trigger must error")
	}
	bad = base
	bad.Actions = []domain.Action{{Type: "launch_rocket"}}
	if _, err := env.Engine.CreateRule(env.Ctx, bad); err == nil {
		t.Fatal("unknown action must error")
	}
	bad = base
	bad.Actions = nil
	if _, err := env.Engine.CreateRule(env.Ctx, bad); err == nil {
		t.Fatal("empty actions must error")
	}
	bad = base
	bad.Conditions = []domain.Condition{{Field: "task.priority", Operator: "roughly", Value: "HIGH"}}
	if _, err := env.Engine.CreateRule(env.Ctx, bad); err == nil {
		t.Fatal("unknown operator must error")
	}
}

func TestRuleOwnerScoping(t *testing.T) {
	env := newTestEnv(t)
	rl, err := env.Engine.CreateRule(env.Ctx, engine.RuleCreateOptions{
		Name:    "mine",
		Trigger: domain.EventTaskCreated,
		Actions: []domain.Action{{Type: "send_notification", Params: map[string]any{"user_id": "a", "message": "m"}}},
		ActorID: "alice",
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.GetRule(env.Ctx, rl.ID, "bob"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("foreign get: %v", err)
	}
	if err := env.Engine.DeleteRule(env.Ctx, rl.ID, "bob"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("foreign delete: %v", err)
	}
	list, err := env.Engine.ListRules(env.Ctx, "alice")
	if err != nil || len(list) != 1 {
		t.Fatalf("list = %v %v", list, err)
	}
}

func TestWebhookSecretLifecycle(t *testing.T) {
	env := newTestEnv(t)
	w, err := env.Engine.CreateWebhook(env.Ctx, engine.WebhookCreateOptions{
		Name:    "ci",
		URL:     "https://ci.example.com/hook",
		Events:  []string{domain.EventTaskCompleted},
		ActorID: "alice",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(w.Secret) != 64 {
		t.Fatalf("secret length = %d", len(w.Secret))
	}
	got, err := env.Engine.GetWebhook(env.Ctx, w.ID, "alice")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Secret != "" {
		t.Fatal("get must redact the secret")
	}
	list, _ := env.Engine.ListWebhooks(env.Ctx, "alice")
	if len(list) != 1 || list[0].Secret != "" {
		t.Fatalf("list must redact secrets: %v", list)
	}
	// The stored secret survives updates untouched.
	name := "ci2"
	if _, err := env.Engine.UpdateWebhook(env.Ctx, w.ID, "alice", repo.WebhookUpdate{Name: &name}); err != nil {
		t.Fatalf("update: %v", err)
	}
	stored, err := env.Engine.Repo.GetWebhook(env.Ctx, w.ID, "alice")
	if err != nil || stored.Secret != w.Secret {
		t.Fatalf("stored secret changed: %v %v", stored.Secret, err)
	}
}

func TestWebhookValidation(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.CreateWebhook(env.Ctx, engine.WebhookCreateOptions{
		Name: "x", URL: "ftp://nope", Events: []string{domain.EventTaskCreated}, ActorID: "alice",
	}); err == nil {
		t.Fatal("non-http url must error")
	}
	if _, err := env.Engine.CreateWebhook(env.Ctx, engine.WebhookCreateOptions{
		Name: "x", URL: "https://ok.example.com", Events: []string{"task.exploded"}, ActorID: "alice",
	}); err == nil {
		t.Fatal("unknown event must error")
	}
	if _, err := env.Engine.CreateWebhook(env.Ctx, engine.WebhookCreateOptions{
		Name: "x", URL: "https://ok.example.com", ActorID: "alice",
	}); err == nil {
		t.Fatal("empty events must error")
	}
}

func TestNotifyDueSoonIsOneShot(t *testing.T) {
	env := newTestEnv(t)
	due := "2024-01-01T06:00:00Z"
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Title: "Ship it", Due: due, ActorID: "alice"})
	if err != nil {
		t.Fatal(err)
	}
	cutoff := "2024-01-02T00:00:00Z"
	pending, err := env.Engine.Repo.TasksDueBefore(env.Ctx, cutoff)
	if err != nil || len(pending) != 1 {
		t.Fatalf("due before: %v %v", pending, err)
	}
	if err := env.Engine.NotifyDueSoon(env.Ctx, pending[0]); err != nil {
		t.Fatalf("notify: %v", err)
	}
	pending, err = env.Engine.Repo.TasksDueBefore(env.Ctx, cutoff)
	if err != nil || len(pending) != 0 {
		t.Fatalf("second pass must be empty: %v %v", pending, err)
	}
	found := false
	for _, k := range kinds(t, env) {
		if k == domain.EventDueDateApproaching {
			found = true
		}
	}
	if !found {
		t.Fatal("due_date.approaching not logged")
	}
	// Changing the due date re-arms the notification.
	newDue := "2024-01-01T08:00:00Z"
	if _, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: task.ID, Due: &newDue, ActorID: "alice"}); err != nil {
		t.Fatal(err)
	}
	pending, err = env.Engine.Repo.TasksDueBefore(env.Ctx, cutoff)
	if err != nil || len(pending) != 1 {
		t.Fatalf("rearm: %v %v", pending, err)
	}
}

func TestEngineBroadcastsToRoom(t *testing.T) {
	env := newTestEnv(t)
	gw := realtime.NewGateway(presence.NewRegistry(), realtime.NewHub())
	env.Engine.Broadcaster = broadcast.New(nil, nil, gw)

	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Title: "Ship it", ActorID: "alice"})
	if err != nil {
		t.Fatal(err)
	}
	ch := gw.Hub.Attach("c-1", 8)
	gw.Connect("bob", "c-1")
	gw.JoinTask(task.ID, "bob", "c-1")
	<-ch // join echo

	status := domain.TaskStatusCompleted
	if _, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: task.ID, Status: &status, ActorID: "alice"}); err != nil {
		t.Fatal(err)
	}
	var got []string
	for len(ch) > 0 {
		msg := <-ch
		got = append(got, msg.Event)
	}
	if len(got) != 2 || got[0] != domain.EventTaskUpdated || got[1] != domain.EventTaskCompleted {
		t.Fatalf("room events = %v", got)
	}
}
