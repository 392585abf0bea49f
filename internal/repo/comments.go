package repo

import (
	"context"
	"database/sql"
	"encoding/json"

	"taskline/internal/domain"
)

const commentColumns = `id,task_id,author_id,content,parent_id,mentions_json,created_at,updated_at`

func scanComment(row taskScanner) (domain.Comment, error) {
	var c domain.Comment
	var parent, mentions sql.NullString
	err := row.Scan(&c.ID, &c.TaskID, &c.AuthorID, &c.Content, &parent, &mentions, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	if err != nil {
		return c, err
	}
	if parent.Valid {
		c.ParentID = &parent.String
	}
	if mentions.Valid && mentions.String != "" {
		_ = json.Unmarshal([]byte(mentions.String), &c.Mentions)
	}
	return c, nil
}

func (r Repo) InsertComment(ctx context.Context, tx *sql.Tx, c domain.Comment) error {
	mentions, err := marshalStringSlice(c.Mentions)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO comments(id,task_id,author_id,content,parent_id,mentions_json,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?)`,
		c.ID, c.TaskID, c.AuthorID, c.Content, ptrOrNil(c.ParentID), mentions, c.CreatedAt, c.UpdatedAt)
	return err
}

func (r Repo) GetComment(ctx context.Context, id string) (domain.Comment, error) {
	return scanComment(r.DB.QueryRowContext(ctx, `SELECT `+commentColumns+` FROM comments WHERE id=?`, id))
}

func (r Repo) ListComments(ctx context.Context, taskID string) ([]domain.Comment, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+commentColumns+` FROM comments WHERE task_id=? ORDER BY created_at ASC, id ASC`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Comment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// UpdateComment rewrites content and mentions for a comment owned by authorID.
func (r Repo) UpdateComment(ctx context.Context, tx *sql.Tx, id, authorID, content string, mentions []string, updatedAt string) error {
	mentionsJSON, err := marshalStringSlice(mentions)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE comments SET content=?, mentions_json=?, updated_at=? WHERE id=? AND author_id=?`, content, mentionsJSON, updatedAt, id, authorID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteComment(ctx context.Context, tx *sql.Tx, id, authorID string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM comments WHERE id=? AND author_id=?`, id, authorID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
