package engine

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/google/uuid"

	"taskline/internal/domain"
	"taskline/internal/events"
)

var mentionRe = regexp.MustCompile(`@([A-Za-z0-9_.-]+)`)

// extractMentions pulls @handles out of comment content, deduplicated in
// order of first appearance.
func extractMentions(content string) []string {
	var out []string
	seen := map[string]bool{}
	for _, m := range mentionRe.FindAllStringSubmatch(content, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			out = append(out, m[1])
		}
	}
	return out
}

func commentContext(c domain.Comment, actorID string) map[string]any {
	comment := map[string]any{
		"id":        c.ID,
		"task_id":   c.TaskID,
		"author_id": c.AuthorID,
		"content":   c.Content,
	}
	if len(c.Mentions) > 0 {
		comment["mentions"] = c.Mentions
	}
	return map[string]any{
		"comment":  comment,
		"task":     map[string]any{"id": c.TaskID},
		"actor_id": actorID,
	}
}

// CommentCreateOptions are parameters for adding a comment to a task.
type CommentCreateOptions struct {
	ID       string
	TaskID   string
	Content  string
	ParentID string
	ActorID  string
}

func (e *Engine) AddComment(ctx context.Context, opts CommentCreateOptions) (domain.Comment, error) {
	if opts.Content == "" {
		return domain.Comment{}, errors.New("content is required")
	}
	if _, err := e.Repo.GetTask(ctx, opts.TaskID); err != nil {
		return domain.Comment{}, err
	}
	if opts.ParentID != "" {
		parent, err := e.Repo.GetComment(ctx, opts.ParentID)
		if err != nil {
			return domain.Comment{}, err
		}
		if parent.TaskID != opts.TaskID {
			return domain.Comment{}, fmt.Errorf("parent comment %s not on task %s", opts.ParentID, opts.TaskID)
		}
	}
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	now := e.nowStamp()
	c := domain.Comment{
		ID:        id,
		TaskID:    opts.TaskID,
		AuthorID:  opts.ActorID,
		Content:   opts.Content,
		ParentID:  optionalString(opts.ParentID),
		Mentions:  extractMentions(opts.Content),
		CreatedAt: now,
		UpdatedAt: now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Comment{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertComment(ctx, tx, c); err != nil {
		return domain.Comment{}, fmt.Errorf("insert comment: %w", err)
	}
	if err := e.Events.Append(ctx, tx, domain.EventCommentAdded, c.ID, opts.ActorID, events.EventPayload{"task_id": c.TaskID, "mentions": c.Mentions}); err != nil {
		return domain.Comment{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Comment{}, err
	}
	e.publish(ctx, domain.EventCommentAdded, c.ID, c.TaskID, opts.ActorID, commentContext(c, opts.ActorID))
	return c, nil
}

func (e *Engine) ListComments(ctx context.Context, taskID string) ([]domain.Comment, error) {
	if _, err := e.Repo.GetTask(ctx, taskID); err != nil {
		return nil, err
	}
	return e.Repo.ListComments(ctx, taskID)
}

// UpdateComment rewrites a comment's content. Only the author may edit.
func (e *Engine) UpdateComment(ctx context.Context, id, actorID, content string) (domain.Comment, error) {
	if content == "" {
		return domain.Comment{}, errors.New("content is required")
	}
	c, err := e.Repo.GetComment(ctx, id)
	if err != nil {
		return domain.Comment{}, err
	}
	c.Content = content
	c.Mentions = extractMentions(content)
	c.UpdatedAt = e.nowStamp()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Comment{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.UpdateComment(ctx, tx, id, actorID, content, c.Mentions, c.UpdatedAt); err != nil {
		return domain.Comment{}, err
	}
	if err := e.Events.Append(ctx, tx, domain.EventCommentUpdated, c.ID, actorID, events.EventPayload{"task_id": c.TaskID}); err != nil {
		return domain.Comment{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Comment{}, err
	}
	e.publish(ctx, domain.EventCommentUpdated, c.ID, c.TaskID, actorID, commentContext(c, actorID))
	return c, nil
}

// DeleteComment removes a comment. Only the author may delete.
func (e *Engine) DeleteComment(ctx context.Context, id, actorID string) error {
	c, err := e.Repo.GetComment(ctx, id)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := e.Repo.DeleteComment(ctx, tx, id, actorID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, domain.EventCommentDeleted, c.ID, actorID, events.EventPayload{"task_id": c.TaskID}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	e.publish(ctx, domain.EventCommentDeleted, c.ID, c.TaskID, actorID, commentContext(c, actorID))
	return nil
}
