package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"taskline/internal/config"
	"taskline/internal/db"
	"taskline/internal/domain"
	"taskline/internal/engine"
	"taskline/internal/migrate"
	"taskline/internal/presence"
	"taskline/internal/realtime"
)

const testJWTSecret = "server-test-secret"

type testServer struct {
	URL     string
	Engine  *engine.Engine
	Gateway *realtime.Gateway
	client  *http.Client
	close   func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default())
	gw := realtime.NewGateway(presence.NewRegistry(), realtime.NewHub())
	handler, err := New(Config{
		Engine:   e,
		Gateway:  gw,
		BasePath: "/v0",
		Auth: AuthConfig{
			JWTSecret:              testJWTSecret,
			AllowLegacyActorHeader: true,
		},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:     "http://" + ln.Addr().String(),
		Engine:  e,
		Gateway: gw,
		client:  &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if headers == nil {
		req.Header.Set("X-Actor-Id", "tester")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func asActor(actorID string) map[string]string {
	return map[string]string{"X-Actor-Id": actorID}
}

func TestHealthNeedsNoAuth(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, err := srv.Client().Get(srv.URL + "/v0/health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d", res.StatusCode)
	}
}

func TestUnauthenticatedRequestsRejected(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, err := srv.Client().Get(srv.URL + "/v0/tasks")
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status %d, want 401", res.StatusCode)
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(res.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if envelope.Error.Code != "unauthorized" {
		t.Fatalf("code = %q", envelope.Error.Code)
	}
}

func TestJWTAuthentication(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "jwt-user",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks", map[string]any{
		"title": "From JWT",
	}, map[string]string{"Authorization": "Bearer " + token})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create status %d: %s", res.StatusCode, string(data))
	}
	var created domain.Task
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal task: %v", err)
	}
	if created.OwnerID != "jwt-user" {
		t.Fatalf("owner = %q", created.OwnerID)
	}

	bad, body := doJSON(t, client, http.MethodGet, srv.URL+"/v0/tasks", nil, map[string]string{
		"Authorization": "Bearer not.a.token",
	})
	if bad.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad token status %d: %s", bad.StatusCode, string(body))
	}
}

func TestTaskLifecycle(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks", map[string]any{
		"title":    "Ship feature",
		"priority": "HIGH",
		"tags":     []string{"backend"},
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create status %d: %s", res.StatusCode, string(data))
	}
	var created domain.Task
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal task: %v", err)
	}
	if created.Status != domain.TaskStatusTodo {
		t.Fatalf("status = %q", created.Status)
	}
	if created.OwnerID != "tester" {
		t.Fatalf("owner = %q", created.OwnerID)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/tasks?priority=HIGH", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list status %d: %s", res.StatusCode, string(data))
	}
	var list struct {
		Tasks []domain.Task `json:"tasks"`
	}
	if err := json.Unmarshal(data, &list); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if len(list.Tasks) != 1 || list.Tasks[0].ID != created.ID {
		t.Fatalf("list = %v", list.Tasks)
	}

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/tasks/"+created.ID, map[string]any{
		"status":      "COMPLETED",
		"assignee_id": "bob",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("update status %d: %s", res.StatusCode, string(data))
	}
	var updated domain.Task
	if err := json.Unmarshal(data, &updated); err != nil {
		t.Fatalf("unmarshal updated: %v", err)
	}
	if updated.Status != domain.TaskStatusCompleted {
		t.Fatalf("status = %q", updated.Status)
	}
	if updated.CompletedAt == nil {
		t.Fatal("completed_at not set")
	}
	if updated.AssigneeID == nil || *updated.AssigneeID != "bob" {
		t.Fatalf("assignee = %v", updated.AssigneeID)
	}

	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/v0/tasks/"+created.ID, nil, nil)
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status %d: %s", res.StatusCode, string(data))
	}
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/tasks/"+created.ID, nil, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("get deleted status %d", res.StatusCode)
	}
}

func TestInvalidStatusRejected(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/tasks", map[string]any{
		"title":  "Bad",
		"status": "EXPLODED",
	}, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d: %s", res.StatusCode, string(data))
	}
}

func TestCommentFlow(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	_, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks", map[string]any{"title": "Discuss"}, nil)
	var task domain.Task
	_ = json.Unmarshal(data, &task)

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks/"+task.ID+"/comments", map[string]any{
		"content": "cc @bob and @carol",
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("add comment status %d: %s", res.StatusCode, string(data))
	}
	var comment domain.Comment
	if err := json.Unmarshal(data, &comment); err != nil {
		t.Fatalf("unmarshal comment: %v", err)
	}
	if len(comment.Mentions) != 2 {
		t.Fatalf("mentions = %v", comment.Mentions)
	}

	// Someone else cannot edit it.
	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/comments/"+comment.ID, map[string]any{
		"content": "hijacked",
	}, asActor("mallory"))
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("foreign edit status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/comments/"+comment.ID, map[string]any{
		"content": "just @dave now",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("edit status %d: %s", res.StatusCode, string(data))
	}
	var edited domain.Comment
	_ = json.Unmarshal(data, &edited)
	if len(edited.Mentions) != 1 || edited.Mentions[0] != "dave" {
		t.Fatalf("mentions after edit = %v", edited.Mentions)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/tasks/"+task.ID+"/comments", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list status %d: %s", res.StatusCode, string(data))
	}
	var list struct {
		Comments []domain.Comment `json:"comments"`
	}
	_ = json.Unmarshal(data, &list)
	if len(list.Comments) != 1 {
		t.Fatalf("comments = %v", list.Comments)
	}

	res, _ = doJSON(t, client, http.MethodDelete, srv.URL+"/v0/comments/"+comment.ID, nil, nil)
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status %d", res.StatusCode)
	}
}

func TestRuleEndpoints(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/rules", map[string]any{
		"name":    "urgent triage",
		"trigger": "task.created",
		"conditions": []map[string]any{
			{"field": "task.priority", "operator": "equals", "value": "URGENT"},
		},
		"actions": []map[string]any{
			{"type": "send_notification", "params": map[string]any{"user_id": "oncall", "message": "urgent: {{task.title}}"}},
		},
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create rule status %d: %s", res.StatusCode, string(data))
	}
	var rule domain.Rule
	if err := json.Unmarshal(data, &rule); err != nil {
		t.Fatalf("unmarshal rule: %v", err)
	}
	if !rule.IsActive {
		t.Fatal("rule must default to active")
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/rules", map[string]any{
		"name":    "bad",
		"trigger": "task.exploded",
		"actions": []map[string]any{{"type": "send_notification", "params": map[string]any{"user_id": "x", "message": "y"}}},
	}, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad trigger status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/rules/"+rule.ID, map[string]any{
		"is_active": false,
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("disable status %d: %s", res.StatusCode, string(data))
	}
	var disabled domain.Rule
	_ = json.Unmarshal(data, &disabled)
	if disabled.IsActive {
		t.Fatal("rule still active after disable")
	}

	// Rules are scoped to their owner.
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/rules/"+rule.ID, nil, asActor("someone-else"))
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("foreign get status %d", res.StatusCode)
	}

	res, _ = doJSON(t, client, http.MethodDelete, srv.URL+"/v0/rules/"+rule.ID, nil, nil)
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status %d", res.StatusCode)
	}
}

func TestWebhookSecretOnlyInCreateResponse(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/webhooks", map[string]any{
		"name":   "ci",
		"url":    "https://ci.example.com/hook",
		"events": []string{"task.completed"},
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create status %d: %s", res.StatusCode, string(data))
	}
	var created domain.Webhook
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal webhook: %v", err)
	}
	if len(created.Secret) != 64 {
		t.Fatalf("secret length = %d", len(created.Secret))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/webhooks/"+created.ID, nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get status %d: %s", res.StatusCode, string(data))
	}
	var fetched domain.Webhook
	_ = json.Unmarshal(data, &fetched)
	if fetched.Secret != "" {
		t.Fatal("secret leaked on get")
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/webhooks", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list status %d: %s", res.StatusCode, string(data))
	}
	if bytes.Contains(data, []byte(created.Secret)) {
		t.Fatal("secret leaked on list")
	}
}

func TestPresenceEndpoints(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	_, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks", map[string]any{"title": "Shared"}, nil)
	var task domain.Task
	_ = json.Unmarshal(data, &task)

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks/"+task.ID+"/presence/join", map[string]any{
		"conn_id": "c-1",
	}, asActor("alice"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("join status %d: %s", res.StatusCode, string(data))
	}
	var joined presenceBody
	_ = json.Unmarshal(data, &joined)
	if len(joined.ActiveUsers) != 1 || joined.ActiveUsers[0] != "alice" {
		t.Fatalf("active users = %v", joined.ActiveUsers)
	}

	res, _ = doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks/unknown/presence/join", map[string]any{
		"conn_id": "c-1",
	}, asActor("alice"))
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("join unknown task status %d", res.StatusCode)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/tasks/"+task.ID+"/presence", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get presence status %d: %s", res.StatusCode, string(data))
	}
	var room presenceBody
	_ = json.Unmarshal(data, &room)
	if len(room.ActiveUsers) != 1 {
		t.Fatalf("room = %v", room.ActiveUsers)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks/"+task.ID+"/presence/leave", map[string]any{
		"conn_id": "c-1",
	}, asActor("alice"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("leave status %d: %s", res.StatusCode, string(data))
	}
	var left presenceBody
	_ = json.Unmarshal(data, &left)
	if len(left.ActiveUsers) != 0 {
		t.Fatalf("room after leave = %v", left.ActiveUsers)
	}
}

func TestEventsEndpoint(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	_, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks", map[string]any{"title": "Audited"}, nil)
	var task domain.Task
	_ = json.Unmarshal(data, &task)
	doJSON(t, client, http.MethodPatch, srv.URL+"/v0/tasks/"+task.ID, map[string]any{"status": "IN_PROGRESS"}, nil)

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/events", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events status %d: %s", res.StatusCode, string(data))
	}
	var list struct {
		Events []domain.Event `json:"events"`
	}
	if err := json.Unmarshal(data, &list); err != nil {
		t.Fatalf("unmarshal events: %v", err)
	}
	if len(list.Events) != 2 {
		t.Fatalf("events = %v", list.Events)
	}
	if list.Events[0].Kind != domain.EventTaskCreated || list.Events[1].Kind != domain.EventTaskUpdated {
		t.Fatalf("kinds = %s %s", list.Events[0].Kind, list.Events[1].Kind)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/events?kind=task.updated", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("filtered events status %d: %s", res.StatusCode, string(data))
	}
	list.Events = nil
	_ = json.Unmarshal(data, &list)
	if len(list.Events) != 1 || list.Events[0].Kind != domain.EventTaskUpdated {
		t.Fatalf("filtered = %v", list.Events)
	}
}

func TestStreamHandsOutConnID(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v0/stream", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("X-Actor-Id", "alice")
	res, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("stream status %d", res.StatusCode)
	}
	if ct := res.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	reader := bufio.NewReader(res.Body)
	eventLine, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("read event line: %v", err)
	}
	if strings.TrimSpace(eventLine) != "event: connected" {
		t.Fatalf("first event = %q", eventLine)
	}
	dataLine, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("read data line: %v", err)
	}
	var payload struct {
		ConnID string `json:"conn_id"`
	}
	if err := json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(dataLine), "data: ")), &payload); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if payload.ConnID == "" {
		t.Fatal("conn_id missing")
	}
	if !srv.Gateway.Presence.Online("alice") {
		t.Fatal("alice should be online while streaming")
	}
}
