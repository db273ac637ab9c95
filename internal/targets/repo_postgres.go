package targets

import (
	"context"
	"database/sql"
	"errors"
)

// PostgresRepo reads campaign/target configuration written by the CRUD layer.
//
// NOTE: This repository assumes the following tables exist:
// - campaigns (id, account_id, ...)
// - bid_targets
// - campaign_targets (assignment rows, created_at used for stable ordering)
// - tracking_numbers (number -> campaign)
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

const targetColumns = `
t.id, t.account_id, t.name, t.endpoint_url, COALESCE(t.method, ''), COALESCE(t.request_template, ''),
COALESCE(t.auth_method, ''), COALESCE(t.auth_token, ''), COALESCE(t.auth_header, ''),
COALESCE(t.timeout_ms, 0), COALESCE(t.min_bid, 0), COALESCE(t.max_bid, 0), COALESCE(t.currency, ''), t.is_active`

func (r *PostgresRepo) ListCampaignTargets(ctx context.Context, accountID, campaignID string) ([]Assignment, error) {
	if accountID == "" || campaignID == "" {
		return nil, ErrInvalidArgument
	}
	q := `
SELECT a.campaign_id, a.weight, a.priority, a.is_active,` + targetColumns + `
FROM campaign_targets a
JOIN campaigns c ON c.id = a.campaign_id
JOIN bid_targets t ON t.id = a.target_id AND t.account_id = c.account_id
WHERE c.account_id = $1 AND a.campaign_id = $2
ORDER BY a.priority ASC, a.created_at ASC, a.id ASC
`
	rows, err := r.db.QueryContext(ctx, q, accountID, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Assignment, 0)
	for rows.Next() {
		var a Assignment
		dest := append([]any{&a.CampaignID, &a.Weight, &a.Priority, &a.Active}, targetDest(&a.Target)...)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *PostgresRepo) GetTarget(ctx context.Context, accountID, targetID string) (BidTarget, error) {
	if accountID == "" || targetID == "" {
		return BidTarget{}, ErrInvalidArgument
	}
	q := `SELECT` + targetColumns + `
FROM bid_targets t
WHERE t.account_id = $1 AND t.id = $2
`
	var t BidTarget
	if err := r.db.QueryRowContext(ctx, q, accountID, targetID).Scan(targetDest(&t)...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return BidTarget{}, ErrNotFound
		}
		return BidTarget{}, err
	}
	return t, nil
}

func (r *PostgresRepo) CampaignForNumber(ctx context.Context, number string) (CampaignRef, error) {
	if number == "" {
		return CampaignRef{}, ErrInvalidArgument
	}
	const q = `
SELECT c.account_id, c.id
FROM tracking_numbers n
JOIN campaigns c ON c.id = n.campaign_id
WHERE n.number = $1 AND n.is_active
`
	var ref CampaignRef
	if err := r.db.QueryRowContext(ctx, q, number).Scan(&ref.AccountID, &ref.CampaignID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CampaignRef{}, ErrNotFound
		}
		return CampaignRef{}, err
	}
	return ref, nil
}

func targetDest(t *BidTarget) []any {
	return []any{
		&t.ID,
		&t.AccountID,
		&t.Name,
		&t.EndpointURL,
		&t.Method,
		&t.RequestTemplate,
		&t.AuthMethod,
		&t.AuthToken,
		&t.AuthHeader,
		&t.TimeoutMs,
		&t.MinBid,
		&t.MaxBid,
		&t.Currency,
		&t.Active,
	}
}
