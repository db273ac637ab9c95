package auctionlog

import (
	"context"
	"database/sql"
	"time"

	"callcenter-pro/internal/rtb"
	"callcenter-pro/pkg/utils"
)

// PostgresRepo stores records in auction_records and their per-target lines in auction_bids.
//
// NOTE: This repository assumes the following tables exist:
// - auction_records (INSERT-only)
// - auction_bids (auction_record_id, position, ...)
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Append(ctx context.Context, rec Record) error {
	return utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		const qRec = `
INSERT INTO auction_records (
  id, account_id, auction_id, campaign_id, call_id, outcome, winner_target_id, winning_bid,
  total_targets, successful_responses, eligible_bidders, duration_ms, created_at
) VALUES ($1,$2,$3,$4,NULLIF($5,''),$6,NULLIF($7,''),$8,$9,$10,$11,$12,$13)
`
		if _, err := tx.ExecContext(ctx, qRec,
			rec.ID, rec.AccountID, rec.AuctionID, rec.CampaignID, rec.CallID, string(rec.Outcome),
			rec.WinnerTargetID, rec.WinningBid, rec.TotalTargets, rec.Successful, rec.EligibleBidders,
			rec.DurationMs, rec.CreatedAt,
		); err != nil {
			return err
		}

		const qBid = `
INSERT INTO auction_bids (
  auction_record_id, position, target_id, target_name, status_code, response_time_ms, bid_amount,
  success, is_valid, timed_out, rejection_reason, won
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,NULLIF($11,''),$12)
`
		for i, b := range rec.Bids {
			if _, err := tx.ExecContext(ctx, qBid,
				rec.ID, i, b.TargetID, b.TargetName, b.StatusCode, b.ResponseTimeMs, b.BidAmount,
				b.Success, b.IsValid, b.TimedOut, b.RejectionReason, b.Won,
			); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *PostgresRepo) ListRecords(ctx context.Context, accountID, campaignID string, from, to time.Time) ([]Record, error) {
	const q = `
SELECT a.id, a.account_id, a.auction_id, a.campaign_id, COALESCE(a.call_id, ''), a.outcome,
       COALESCE(a.winner_target_id, ''), a.winning_bid, a.total_targets, a.successful_responses,
       a.eligible_bidders, a.duration_ms, a.created_at,
       b.target_id, COALESCE(b.target_name, ''), b.status_code, b.response_time_ms, b.bid_amount,
       b.success, b.is_valid, b.timed_out, COALESCE(b.rejection_reason, ''), b.won
FROM auction_records a
LEFT JOIN auction_bids b ON b.auction_record_id = a.id
WHERE a.account_id = $1 AND a.campaign_id = $2 AND a.created_at >= $3 AND a.created_at < $4
ORDER BY a.created_at ASC, a.id ASC, b.position ASC
`
	rows, err := r.db.QueryContext(ctx, q, accountID, campaignID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Record, 0)
	for rows.Next() {
		var (
			rec     Record
			outcome string
			winBid  sql.NullFloat64

			targetID sql.NullString
			b        BidLine
			status   sql.NullInt64
			respMs   sql.NullInt64
			bidAmt   sql.NullFloat64
			success  sql.NullBool
			valid    sql.NullBool
			timedOut sql.NullBool
			won      sql.NullBool
		)
		if err := rows.Scan(
			&rec.ID, &rec.AccountID, &rec.AuctionID, &rec.CampaignID, &rec.CallID, &outcome,
			&rec.WinnerTargetID, &winBid, &rec.TotalTargets, &rec.Successful,
			&rec.EligibleBidders, &rec.DurationMs, &rec.CreatedAt,
			&targetID, &b.TargetName, &status, &respMs, &bidAmt,
			&success, &valid, &timedOut, &b.RejectionReason, &won,
		); err != nil {
			return nil, err
		}

		if n := len(out); n == 0 || out[n-1].ID != rec.ID {
			rec.Outcome = rtb.Outcome(outcome)
			if winBid.Valid {
				v := winBid.Float64
				rec.WinningBid = &v
			}
			rec.Bids = []BidLine{}
			out = append(out, rec)
		}
		if !targetID.Valid {
			continue
		}
		b.TargetID = targetID.String
		b.StatusCode = int(status.Int64)
		b.ResponseTimeMs = respMs.Int64
		if bidAmt.Valid {
			v := bidAmt.Float64
			b.BidAmount = &v
		}
		b.Success = success.Bool
		b.IsValid = valid.Bool
		b.TimedOut = timedOut.Bool
		b.Won = won.Bool

		last := &out[len(out)-1]
		last.Bids = append(last.Bids, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
