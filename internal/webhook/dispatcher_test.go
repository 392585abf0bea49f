package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"taskline/internal/domain"
)

type fakeStore struct {
	mu        sync.Mutex
	hooks     []domain.Webhook
	successes map[string]int
	failures  map[string]int
	lastFail  map[string]string
	lastOK    map[string]string
}

func newFakeStore(hooks ...domain.Webhook) *fakeStore {
	return &fakeStore{
		hooks:     hooks,
		successes: map[string]int{},
		failures:  map[string]int{},
		lastFail:  map[string]string{},
		lastOK:    map[string]string{},
	}
}

func (s *fakeStore) ActiveWebhooksForEvent(_ context.Context, kind string) ([]domain.Webhook, error) {
	var out []domain.Webhook
	for _, h := range s.hooks {
		for _, e := range h.Events {
			if e == kind {
				out = append(out, h)
				break
			}
		}
	}
	return out, nil
}

func (s *fakeStore) RecordWebhookSuccess(_ context.Context, id, at string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.successes[id]++
	s.lastOK[id] = at
	return nil
}

func (s *fakeStore) RecordWebhookFailure(_ context.Context, id, at string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[id]++
	s.lastFail[id] = at
	return nil
}

func TestDispatchSignsAndDelivers(t *testing.T) {
	var gotSig, gotHeader string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get(SignatureHeader)
		gotHeader = r.Header.Get("X-Custom")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	hook := domain.Webhook{
		ID:      "w-1",
		URL:     srv.URL,
		Secret:  "topsecret",
		Events:  []string{"task.created"},
		Headers: map[string]string{"X-Custom": "yes"},
	}
	store := newFakeStore(hook)
	d := NewDispatcher(store, 2*time.Second)
	d.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }

	payload := map[string]any{"event": "task.created", "data": map[string]any{"id": "t-1"}}
	if err := d.Dispatch(context.Background(), "task.created", payload); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if gotHeader != "yes" {
		t.Fatalf("custom header = %q", gotHeader)
	}
	if want := Sign("topsecret", gotBody); gotSig != want {
		t.Fatalf("signature mismatch: got %s want %s", gotSig, want)
	}
	var decoded map[string]any
	if err := json.Unmarshal(gotBody, &decoded); err != nil {
		t.Fatalf("body not JSON: %v", err)
	}
	if decoded["event"] != "task.created" {
		t.Fatalf("body event = %v", decoded["event"])
	}
	if store.successes["w-1"] != 1 || store.failures["w-1"] != 0 {
		t.Fatalf("counters: ok=%d fail=%d", store.successes["w-1"], store.failures["w-1"])
	}
	if store.lastOK["w-1"] != "2024-01-01T00:00:00Z" {
		t.Fatalf("last success = %q", store.lastOK["w-1"])
	}
}

func TestDispatchRecordsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	store := newFakeStore(domain.Webhook{
		ID:     "w-1",
		URL:    srv.URL,
		Secret: "s",
		Events: []string{"task.created"},
	})
	d := NewDispatcher(store, 2*time.Second)
	if err := d.Dispatch(context.Background(), "task.created", map[string]any{"event": "task.created"}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if store.failures["w-1"] != 1 {
		t.Fatalf("failure count = %d", store.failures["w-1"])
	}
	if store.successes["w-1"] != 0 {
		t.Fatalf("success count = %d, want 0", store.successes["w-1"])
	}
	if store.lastFail["w-1"] == "" {
		t.Fatal("last failure not stamped")
	}
	if store.lastOK["w-1"] != "" {
		t.Fatal("last success must not be stamped on failure")
	}
}

// One endpoint failing must not affect delivery to the others.
func TestDispatchIsolatesTargets(t *testing.T) {
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ok.Close()
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer bad.Close()

	store := newFakeStore(
		domain.Webhook{ID: "w-ok", URL: ok.URL, Secret: "a", Events: []string{"task.deleted"}},
		domain.Webhook{ID: "w-bad", URL: bad.URL, Secret: "b", Events: []string{"task.deleted"}},
	)
	d := NewDispatcher(store, 2*time.Second)
	if err := d.Dispatch(context.Background(), "task.deleted", map[string]any{"event": "task.deleted"}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if store.successes["w-ok"] != 1 {
		t.Fatalf("w-ok successes = %d", store.successes["w-ok"])
	}
	if store.failures["w-bad"] != 1 {
		t.Fatalf("w-bad failures = %d", store.failures["w-bad"])
	}
}

// Responses are drained before closing so sequential deliveries to the same
// endpoint reuse one connection.
func TestDispatchReusesConnections(t *testing.T) {
	var mu sync.Mutex
	addrs := map[string]int{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		addrs[r.RemoteAddr]++
		mu.Unlock()
		io.WriteString(w, `{"ok":true}`)
	}))
	defer srv.Close()

	store := newFakeStore(domain.Webhook{ID: "w-1", URL: srv.URL, Secret: "s", Events: []string{"task.created"}})
	d := NewDispatcher(store, 2*time.Second)
	for i := 0; i < 3; i++ {
		if err := d.Dispatch(context.Background(), "task.created", map[string]any{"event": "task.created"}); err != nil {
			t.Fatalf("dispatch %d: %v", i, err)
		}
	}
	if len(addrs) != 1 {
		t.Fatalf("expected one client connection, saw %d: %v", len(addrs), addrs)
	}
	if store.successes["w-1"] != 3 {
		t.Fatalf("successes = %d", store.successes["w-1"])
	}
}

func TestDispatchNoSubscribers(t *testing.T) {
	store := newFakeStore()
	d := NewDispatcher(store, time.Second)
	if err := d.Dispatch(context.Background(), "task.created", map[string]any{}); err != nil {
		t.Fatalf("dispatch with no subscribers: %v", err)
	}
}
