package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"taskline/internal/domain"
)

const webhookColumns = `id,owner_id,name,url,secret,events_json,headers_json,is_active,success_count,failure_count,last_success,last_failure,created_at`

func scanWebhook(row taskScanner) (domain.Webhook, error) {
	var w domain.Webhook
	var events string
	var headers sql.NullString
	var active int
	var lastSuccess, lastFailure sql.NullString
	err := row.Scan(&w.ID, &w.OwnerID, &w.Name, &w.URL, &w.Secret, &events, &headers, &active, &w.SuccessCount, &w.FailureCount, &lastSuccess, &lastFailure, &w.CreatedAt)
	if err == sql.ErrNoRows {
		return w, ErrNotFound
	}
	if err != nil {
		return w, err
	}
	w.IsActive = active != 0
	if lastSuccess.Valid {
		w.LastSuccess = &lastSuccess.String
	}
	if lastFailure.Valid {
		w.LastFailure = &lastFailure.String
	}
	if err := json.Unmarshal([]byte(events), &w.Events); err != nil {
		return w, fmt.Errorf("webhook %s events: %w", w.ID, err)
	}
	if headers.Valid && headers.String != "" {
		if err := json.Unmarshal([]byte(headers.String), &w.Headers); err != nil {
			return w, fmt.Errorf("webhook %s headers: %w", w.ID, err)
		}
	}
	return w, nil
}

func (r Repo) InsertWebhook(ctx context.Context, w domain.Webhook) error {
	events, err := json.Marshal(w.Events)
	if err != nil {
		return err
	}
	var headers any
	if len(w.Headers) > 0 {
		b, err := json.Marshal(w.Headers)
		if err != nil {
			return err
		}
		headers = string(b)
	}
	_, err = r.DB.ExecContext(ctx, `INSERT INTO webhooks(id,owner_id,name,url,secret,events_json,headers_json,is_active,success_count,failure_count,last_success,last_failure,created_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		w.ID, w.OwnerID, w.Name, w.URL, w.Secret, string(events), headers, boolToInt(w.IsActive), w.SuccessCount, w.FailureCount, ptrOrNil(w.LastSuccess), ptrOrNil(w.LastFailure), w.CreatedAt)
	return err
}

func (r Repo) GetWebhook(ctx context.Context, id, ownerID string) (domain.Webhook, error) {
	return scanWebhook(r.DB.QueryRowContext(ctx, `SELECT `+webhookColumns+` FROM webhooks WHERE id=? AND owner_id=?`, id, ownerID))
}

func (r Repo) ListWebhooks(ctx context.Context, ownerID string) ([]domain.Webhook, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+webhookColumns+` FROM webhooks WHERE owner_id=? ORDER BY created_at DESC, id DESC`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Webhook
	for rows.Next() {
		w, err := scanWebhook(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, w)
	}
	return res, rows.Err()
}

// ActiveWebhooksForEvent returns active webhooks subscribed to the event kind,
// regardless of owner. Subscription sets live in a JSON column, so the kind
// filter happens here rather than in SQL.
func (r Repo) ActiveWebhooksForEvent(ctx context.Context, kind string) ([]domain.Webhook, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+webhookColumns+` FROM webhooks WHERE is_active=1`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Webhook
	for rows.Next() {
		w, err := scanWebhook(rows)
		if err != nil {
			return nil, err
		}
		for _, e := range w.Events {
			if e == kind {
				res = append(res, w)
				break
			}
		}
	}
	return res, rows.Err()
}

// WebhookUpdate carries owner-editable fields. Secret is deliberately absent:
// it is generated once at creation and never changes.
type WebhookUpdate struct {
	Name     *string
	URL      *string
	Events   []string
	Headers  map[string]string
	IsActive *bool
}

func (r Repo) UpdateWebhook(ctx context.Context, id, ownerID string, u WebhookUpdate) (domain.Webhook, error) {
	var fields []string
	var args []any
	if u.Name != nil {
		fields = append(fields, "name=?")
		args = append(args, *u.Name)
	}
	if u.URL != nil {
		fields = append(fields, "url=?")
		args = append(args, *u.URL)
	}
	if u.Events != nil {
		b, err := json.Marshal(u.Events)
		if err != nil {
			return domain.Webhook{}, err
		}
		fields = append(fields, "events_json=?")
		args = append(args, string(b))
	}
	if u.Headers != nil {
		b, err := json.Marshal(u.Headers)
		if err != nil {
			return domain.Webhook{}, err
		}
		fields = append(fields, "headers_json=?")
		args = append(args, string(b))
	}
	if u.IsActive != nil {
		fields = append(fields, "is_active=?")
		args = append(args, boolToInt(*u.IsActive))
	}
	if len(fields) == 0 {
		return r.GetWebhook(ctx, id, ownerID)
	}
	args = append(args, id, ownerID)
	res, err := r.DB.ExecContext(ctx, fmt.Sprintf(`UPDATE webhooks SET %s WHERE id=? AND owner_id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return domain.Webhook{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.Webhook{}, ErrNotFound
	}
	return r.GetWebhook(ctx, id, ownerID)
}

func (r Repo) DeleteWebhook(ctx context.Context, id, ownerID string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM webhooks WHERE id=? AND owner_id=?`, id, ownerID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordWebhookSuccess and RecordWebhookFailure are the only writers of the
// delivery counters; increments are atomic at the storage layer.
func (r Repo) RecordWebhookSuccess(ctx context.Context, id, at string) error {
	_, err := r.DB.ExecContext(ctx, `UPDATE webhooks SET success_count=success_count+1, last_success=? WHERE id=?`, at, id)
	return err
}

func (r Repo) RecordWebhookFailure(ctx context.Context, id, at string) error {
	_, err := r.DB.ExecContext(ctx, `UPDATE webhooks SET failure_count=failure_count+1, last_failure=? WHERE id=?`, at, id)
	return err
}
