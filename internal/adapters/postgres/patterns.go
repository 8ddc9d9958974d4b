package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"verity/internal/domain"
)

const patternColumns = `
	id, website_id, pattern_type, detected_url, description,
	created_by_expert_id, auto_generated, phase, version, created_at`

func scanPattern(row pgx.Row) (*domain.Pattern, error) {
	var p domain.Pattern
	err := row.Scan(
		&p.ID, &p.WebsiteID, &p.PatternType, &p.DetectedURL, &p.Description,
		&p.CreatedByExpertID, &p.AutoGenerated, &p.Phase, &p.Version, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// InsertBatch writes the whole ingestion batch in one transaction; a failure
// mid-batch rolls everything back. A Proposed candidate whose (website,
// description) already landed from a concurrent job is skipped, not an error.
func (db *DB) InsertBatch(ctx context.Context, patterns []*domain.Pattern) error {
	tx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	for _, p := range patterns {
		if _, err := tx.Exec(ctx, `
			INSERT INTO patterns (
				id, website_id, pattern_type, detected_url, description,
				created_by_expert_id, auto_generated, phase, version, created_at
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 1, $9)
			ON CONFLICT (website_id, description) WHERE phase = 'Proposed' DO NOTHING
		`, p.ID, p.WebsiteID, p.PatternType, p.DetectedURL, p.Description,
			p.CreatedByExpertID, p.AutoGenerated, p.Phase, p.CreatedAt); err != nil {
			_ = tx.Rollback(ctx)
			return err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	for _, p := range patterns {
		p.Version = 1
	}
	return nil
}

func (db *DB) Insert(ctx context.Context, p *domain.Pattern) error {
	return db.InsertBatch(ctx, []*domain.Pattern{p})
}

func (db *DB) GetPattern(ctx context.Context, patternID string) (*domain.Pattern, error) {
	p, err := scanPattern(db.Pool.QueryRow(ctx,
		`SELECT `+patternColumns+` FROM patterns WHERE id = $1`, patternID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &domain.NotFoundError{Kind: "pattern", ID: patternID}
	}
	return p, err
}

func (db *DB) ListByWebsite(ctx context.Context, websiteID string) ([]*domain.Pattern, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT `+patternColumns+` FROM patterns WHERE website_id = $1 ORDER BY created_at, id`,
		websiteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Pattern
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (db *DB) CountBlocking(ctx context.Context, websiteID string) (int, error) {
	var n int
	err := db.Pool.QueryRow(ctx, `
		SELECT count(*) FROM patterns
		WHERE website_id = $1 AND phase IN ($2, $3)
	`, websiteID, domain.PatternProposed, domain.PatternUnderDiscussion).Scan(&n)
	return n, err
}

func (db *DB) UpdatePhase(ctx context.Context, patternID string, expectedVersion int64, phase domain.PatternPhase) error {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE patterns SET phase = $3, version = version + 1
		WHERE id = $1 AND version = $2
	`, patternID, expectedVersion, phase)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var current int64
		err := db.Pool.QueryRow(ctx, `SELECT version FROM patterns WHERE id = $1`, patternID).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			return &domain.NotFoundError{Kind: "pattern", ID: patternID}
		}
		if err != nil {
			return err
		}
		return &domain.StaleStateError{
			Entity: "pattern", ID: patternID,
			Detail: fmt.Sprintf("expected version %d, found %d", expectedVersion, current),
		}
	}
	return nil
}

// SubmitVerification upserts the expert's verdict under the row-version
// guard. expectedVersion 0 asserts the row does not exist yet.
func (db *DB) SubmitVerification(ctx context.Context, v *domain.Verification, expectedVersion int64) error {
	var tagRows int64
	if expectedVersion == 0 {
		tag, err := db.Pool.Exec(ctx, `
			INSERT INTO verifications (pattern_id, expert_id, verdict, version, submitted_at)
			VALUES ($1, $2, $3, 1, $4)
			ON CONFLICT (pattern_id, expert_id) DO NOTHING
		`, v.PatternID, v.ExpertID, v.Verdict, v.SubmittedAt)
		if err != nil {
			return err
		}
		tagRows = tag.RowsAffected()
	} else {
		tag, err := db.Pool.Exec(ctx, `
			UPDATE verifications
			SET verdict = $3, version = version + 1, submitted_at = $4
			WHERE pattern_id = $1 AND expert_id = $2 AND version = $5
		`, v.PatternID, v.ExpertID, v.Verdict, v.SubmittedAt, expectedVersion)
		if err != nil {
			return err
		}
		tagRows = tag.RowsAffected()
	}
	if tagRows == 0 {
		return &domain.StaleStateError{
			Entity: "verification", ID: v.PatternID + "/" + v.ExpertID,
			Detail: fmt.Sprintf("expected version %d", expectedVersion),
		}
	}
	v.Version = expectedVersion + 1
	return nil
}

func (db *DB) GetVerification(ctx context.Context, patternID, expertID string) (*domain.Verification, error) {
	var v domain.Verification
	err := db.Pool.QueryRow(ctx, `
		SELECT pattern_id, expert_id, verdict, version, submitted_at
		FROM verifications WHERE pattern_id = $1 AND expert_id = $2
	`, patternID, expertID).Scan(&v.PatternID, &v.ExpertID, &v.Verdict, &v.Version, &v.SubmittedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &domain.NotFoundError{Kind: "verification", ID: patternID + "/" + expertID}
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (db *DB) ListVerifications(ctx context.Context, patternID string) ([]domain.Verification, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT pattern_id, expert_id, verdict, version, submitted_at
		FROM verifications WHERE pattern_id = $1 ORDER BY expert_id
	`, patternID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Verification
	for rows.Next() {
		var v domain.Verification
		if err := rows.Scan(&v.PatternID, &v.ExpertID, &v.Verdict, &v.Version, &v.SubmittedAt); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
