package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"taskline/internal/engine"
	"taskline/internal/realtime"
)

type presenceBody struct {
	TaskID      string   `json:"task_id"`
	ActiveUsers []string `json:"active_users"`
}

func registerPresence(api huma.API, e *engine.Engine, gw *realtime.Gateway) {
	huma.Register(api, huma.Operation{
		OperationID: "join-task-presence",
		Method:      http.MethodPost,
		Path:        "/tasks/{task_id}/presence/join",
		Summary:     "Join task room",
		Errors:      []int{http.StatusNotFound, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		TaskID string `path:"task_id"`
		Body   struct {
			ConnID string `json:"conn_id,omitempty"`
		} `json:"body"`
	}) (*struct {
		Body presenceBody `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if _, err := e.GetTask(ctx, input.TaskID); err != nil {
			return nil, handleError(err)
		}
		members := gw.JoinTask(input.TaskID, actorID, input.Body.ConnID)
		return &struct {
			Body presenceBody `json:"body"`
		}{Body: presenceBody{TaskID: input.TaskID, ActiveUsers: members}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "leave-task-presence",
		Method:      http.MethodPost,
		Path:        "/tasks/{task_id}/presence/leave",
		Summary:     "Leave task room",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		TaskID string `path:"task_id"`
		Body   struct {
			ConnID string `json:"conn_id,omitempty"`
		} `json:"body"`
	}) (*struct {
		Body presenceBody `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		members := gw.LeaveTask(input.TaskID, actorID, input.Body.ConnID)
		if members == nil {
			members = []string{}
		}
		return &struct {
			Body presenceBody `json:"body"`
		}{Body: presenceBody{TaskID: input.TaskID, ActiveUsers: members}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task-presence",
		Method:      http.MethodGet,
		Path:        "/tasks/{task_id}/presence",
		Summary:     "Get task room members",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		TaskID string `path:"task_id"`
	}) (*struct {
		Body presenceBody `json:"body"`
	}, error) {
		return &struct {
			Body presenceBody `json:"body"`
		}{Body: presenceBody{TaskID: input.TaskID, ActiveUsers: gw.Presence.RoomMembers(input.TaskID)}}, nil
	})
}

// registerStream mounts the SSE endpoint outside huma: it holds the
// connection open and forwards hub messages as server-sent events. A dropped
// connection counts as a disconnect, not a leave.
func registerStream(router chi.Router, basePath string, gw *realtime.Gateway) {
	router.Get(path.Join(basePath, "stream"), func(w http.ResponseWriter, r *http.Request) {
		p, ok := principalFromContext(r.Context())
		if !ok || p.ActorID == "" {
			respondStatusError(w, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil))
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			respondStatusError(w, newAPIError(http.StatusInternalServerError, "internal_error", "streaming unsupported", nil))
			return
		}
		connID := uuid.NewString()
		ch := gw.Hub.Attach(connID, 64)
		gw.Connect(p.ActorID, connID)
		defer gw.Disconnect(connID)

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		// The first event hands the client its connection id for join/leave
		// calls.
		fmt.Fprintf(w, "event: connected\ndata: %s\n\n", mustJSON(map[string]any{"conn_id": connID}))
		flusher.Flush()

		for {
			select {
			case <-r.Context().Done():
				return
			case msg, open := <-ch:
				if !open {
					return
				}
				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Event, mustJSON(msg.Data))
				flusher.Flush()
			}
		}
	})
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}
