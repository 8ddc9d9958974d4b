package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"verity/internal/domain"
)

// Append inserts the comment with the next per-pattern sequence number. The
// counter lives on the pattern row so the total order never depends on wall
// clocks; the bump and the insert share one transaction.
func (db *DB) Append(ctx context.Context, c *domain.Comment) error {
	tx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	var seq int64
	err = tx.QueryRow(ctx, `
		UPDATE patterns SET comment_seq = comment_seq + 1
		WHERE id = $1
		RETURNING comment_seq
	`, c.PatternID).Scan(&seq)
	if errors.Is(err, pgx.ErrNoRows) {
		_ = tx.Rollback(ctx)
		return &domain.NotFoundError{Kind: "pattern", ID: c.PatternID}
	}
	if err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO comments (id, pattern_id, website_id, expert_id, content, seq, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, c.ID, c.PatternID, c.WebsiteID, c.ExpertID, c.Content, seq, c.CreatedAt); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	c.Seq = seq
	return nil
}

func (db *DB) AppendReply(ctx context.Context, commentID string, r domain.Reply) error {
	tag, err := db.Pool.Exec(ctx, `
		INSERT INTO replies (comment_id, expert_id, content, created_at)
		SELECT id, $2, $3, $4 FROM comments WHERE id = $1
	`, commentID, r.ExpertID, r.Content, r.CreatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &domain.NotFoundError{Kind: "comment", ID: commentID}
	}
	return nil
}

func (db *DB) ListByPattern(ctx context.Context, patternID string) ([]*domain.Comment, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, pattern_id, website_id, expert_id, content, seq, created_at
		FROM comments WHERE pattern_id = $1 ORDER BY seq
	`, patternID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Comment
	byID := make(map[string]*domain.Comment)
	for rows.Next() {
		var c domain.Comment
		if err := rows.Scan(&c.ID, &c.PatternID, &c.WebsiteID, &c.ExpertID, &c.Content, &c.Seq, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &c)
		byID[c.ID] = &c
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return out, nil
	}

	replyRows, err := db.Pool.Query(ctx, `
		SELECT r.comment_id, r.expert_id, r.content, r.created_at
		FROM replies r
		JOIN comments c ON c.id = r.comment_id
		WHERE c.pattern_id = $1
		ORDER BY r.id
	`, patternID)
	if err != nil {
		return nil, err
	}
	defer replyRows.Close()
	for replyRows.Next() {
		var commentID string
		var r domain.Reply
		if err := replyRows.Scan(&commentID, &r.ExpertID, &r.Content, &r.CreatedAt); err != nil {
			return nil, err
		}
		if c, ok := byID[commentID]; ok {
			c.Replies = append(c.Replies, r)
		}
	}
	return out, replyRows.Err()
}

func (db *DB) GetComment(ctx context.Context, commentID string) (*domain.Comment, error) {
	var c domain.Comment
	err := db.Pool.QueryRow(ctx, `
		SELECT id, pattern_id, website_id, expert_id, content, seq, created_at
		FROM comments WHERE id = $1
	`, commentID).Scan(&c.ID, &c.PatternID, &c.WebsiteID, &c.ExpertID, &c.Content, &c.Seq, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &domain.NotFoundError{Kind: "comment", ID: commentID}
	}
	if err != nil {
		return nil, err
	}

	rows, err := db.Pool.Query(ctx, `
		SELECT expert_id, content, created_at FROM replies
		WHERE comment_id = $1 ORDER BY id
	`, commentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var r domain.Reply
		if err := rows.Scan(&r.ExpertID, &r.Content, &r.CreatedAt); err != nil {
			return nil, err
		}
		c.Replies = append(c.Replies, r)
	}
	return &c, rows.Err()
}
