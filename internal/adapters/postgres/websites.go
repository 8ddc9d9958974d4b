package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"verity/internal/domain"
)

const websiteColumns = `
	id, base_url, registrable_domain, additional_urls, name, description,
	owner_id, phase, expert_ids, primary_expert_id, completed,
	dark_pattern_free, expert_feedback, archived, version, created_at`

func scanWebsite(row pgx.Row) (*domain.Website, error) {
	var w domain.Website
	err := row.Scan(
		&w.ID, &w.BaseURL, &w.RegistrableDomain, &w.AdditionalURLs, &w.Name, &w.Description,
		&w.OwnerID, &w.Phase, &w.ExpertIDs, &w.PrimaryExpertID, &w.Completed,
		&w.DarkPatternFree, &w.ExpertFeedback, &w.Archived, &w.Version, &w.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (db *DB) Create(ctx context.Context, w *domain.Website) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO websites (
			id, base_url, registrable_domain, additional_urls, name, description,
			owner_id, phase, expert_ids, primary_expert_id, version, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 1, $11)
	`, w.ID, w.BaseURL, w.RegistrableDomain, w.AdditionalURLs, w.Name, w.Description,
		w.OwnerID, w.Phase, w.ExpertIDs, w.PrimaryExpertID, w.CreatedAt)
	if err != nil {
		return err
	}
	w.Version = 1
	return nil
}

func (db *DB) Get(ctx context.Context, websiteID string) (*domain.Website, error) {
	w, err := scanWebsite(db.Pool.QueryRow(ctx,
		`SELECT `+websiteColumns+` FROM websites WHERE id = $1`, websiteID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &domain.NotFoundError{Kind: "website", ID: websiteID}
	}
	return w, err
}

func (db *DB) listWebsites(ctx context.Context, where string, args ...any) ([]*domain.Website, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT `+websiteColumns+` FROM websites WHERE NOT archived AND `+where+` ORDER BY created_at`,
		args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Website
	for rows.Next() {
		w, err := scanWebsite(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (db *DB) ListByOwner(ctx context.Context, ownerID string) ([]*domain.Website, error) {
	return db.listWebsites(ctx, `owner_id = $1`, ownerID)
}

func (db *DB) ListByExpert(ctx context.Context, expertID string) ([]*domain.Website, error) {
	return db.listWebsites(ctx, `$1 = ANY(expert_ids)`, expertID)
}

func (db *DB) ListByPhase(ctx context.Context, phase *domain.WebsitePhase) ([]*domain.Website, error) {
	if phase == nil {
		return db.listWebsites(ctx, `TRUE`)
	}
	return db.listWebsites(ctx, `phase = $1`, *phase)
}

func (db *DB) CountOpenByExpert(ctx context.Context, expertID string) (int, error) {
	var n int
	err := db.Pool.QueryRow(ctx, `
		SELECT count(*) FROM websites
		WHERE $1 = ANY(expert_ids) AND phase <> $2 AND NOT archived
	`, expertID, domain.PhaseFinished).Scan(&n)
	return n, err
}

// AdvancePhase is the compare-and-swap edge write: the UPDATE only matches
// while the stored phase equals expected, so the first committer wins.
func (db *DB) AdvancePhase(ctx context.Context, websiteID string, expected, next domain.WebsitePhase) error {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE websites SET phase = $3, version = version + 1
		WHERE id = $1 AND phase = $2
	`, websiteID, expected, next)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return db.staleOrMissing(ctx, websiteID, expected)
	}
	return nil
}

func (db *DB) ReplacePanel(ctx context.Context, websiteID string, expected domain.WebsitePhase, expertIDs []string, primaryExpertID string) error {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE websites SET expert_ids = $3, primary_expert_id = $4, version = version + 1
		WHERE id = $1 AND phase = $2
	`, websiteID, expected, expertIDs, primaryExpertID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return db.staleOrMissing(ctx, websiteID, expected)
	}
	return nil
}

func (db *DB) Finish(ctx context.Context, websiteID string, feedback string, darkPatternFree bool) error {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE websites
		SET phase = $2, completed = TRUE, expert_feedback = $3,
		    dark_pattern_free = $4, version = version + 1
		WHERE id = $1 AND phase = $5
	`, websiteID, domain.PhaseFinished, feedback, darkPatternFree, domain.PhaseFeedback)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return db.staleOrMissing(ctx, websiteID, domain.PhaseFeedback)
	}
	return nil
}

func (db *DB) Archive(ctx context.Context, websiteID string) error {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE websites SET archived = TRUE, version = version + 1 WHERE id = $1
	`, websiteID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &domain.NotFoundError{Kind: "website", ID: websiteID}
	}
	return nil
}

// staleOrMissing distinguishes a lost CAS from a missing row so callers get
// the right error from the taxonomy.
func (db *DB) staleOrMissing(ctx context.Context, websiteID string, expected domain.WebsitePhase) error {
	var current domain.WebsitePhase
	err := db.Pool.QueryRow(ctx, `SELECT phase FROM websites WHERE id = $1`, websiteID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return &domain.NotFoundError{Kind: "website", ID: websiteID}
	}
	if err != nil {
		return err
	}
	return &domain.StaleStateError{
		Entity: "website", ID: websiteID,
		Detail: fmt.Sprintf("expected phase %s, found %s", expected, current),
	}
}
