package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"taskline/internal/domain"
	"taskline/internal/engine"
)

func registerEvents(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List events",
		Description: "Returns event log entries in ascending id order, optionally after a cursor.",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		After int64  `query:"after" required:"false"`
		Kind  string `query:"kind" required:"false"`
		Limit int    `query:"limit" required:"false"`
	}) (*struct {
		Body struct {
			Events []domain.Event `json:"events"`
		}
	}, error) {
		limit := input.Limit
		if limit <= 0 || limit > 500 {
			limit = 100
		}
		list, err := e.ListEvents(ctx, limit, input.After, input.Kind)
		if err != nil {
			return nil, handleError(err)
		}
		if list == nil {
			list = []domain.Event{}
		}
		resp := &struct {
			Body struct {
				Events []domain.Event `json:"events"`
			}
		}{}
		resp.Body.Events = list
		return resp, nil
	})
}
