package auctionlog

import (
	"time"

	"callcenter-pro/internal/rtb"
)

// Record is an immutable, append-only summary of one resolved auction.
//
// Invariants:
// - Records are never updated or deleted.
// - account_id is required for tenancy isolation.
// - Writing a record is best-effort for the live call path; an auction never fails because
//   its log entry could not be stored.
type Record struct {
	ID         string `json:"id" db:"id"`
	AccountID  string `json:"account_id" db:"account_id"`
	AuctionID  string `json:"auction_id" db:"auction_id"`
	CampaignID string `json:"campaign_id" db:"campaign_id"`

	// CallID is the inbound call the auction sold, empty for API-triggered auctions.
	CallID string `json:"call_id,omitempty" db:"call_id"`

	Outcome        rtb.Outcome `json:"outcome" db:"outcome"`
	WinnerTargetID string      `json:"winner_target_id,omitempty" db:"winner_target_id"`
	WinningBid     *float64    `json:"winning_bid,omitempty" db:"winning_bid"`

	TotalTargets    int   `json:"total_targets" db:"total_targets"`
	Successful      int   `json:"successful_responses" db:"successful_responses"`
	EligibleBidders int   `json:"eligible_bidders" db:"eligible_bidders"`
	DurationMs      int64 `json:"duration_ms" db:"duration_ms"`

	Bids []BidLine `json:"bids"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// BidLine is the per-target slice of a Record. Bodies and headers are not kept.
type BidLine struct {
	TargetID        string   `json:"target_id" db:"target_id"`
	TargetName      string   `json:"target_name,omitempty" db:"target_name"`
	StatusCode      int      `json:"status_code" db:"status_code"`
	ResponseTimeMs  int64    `json:"response_time_ms" db:"response_time_ms"`
	BidAmount       *float64 `json:"bid_amount,omitempty" db:"bid_amount"`
	Success         bool     `json:"success" db:"success"`
	IsValid         bool     `json:"is_valid" db:"is_valid"`
	TimedOut        bool     `json:"timed_out" db:"timed_out"`
	RejectionReason string   `json:"rejection_reason,omitempty" db:"rejection_reason"`
	Won             bool     `json:"won" db:"won"`
}

// FromResult flattens an auction result into a Record.
func FromResult(res rtb.AuctionResult, callID string) Record {
	rec := Record{
		AccountID:       res.AccountID,
		AuctionID:       res.AuctionID,
		CampaignID:      res.CampaignID,
		CallID:          callID,
		Outcome:         res.Outcome,
		TotalTargets:    res.TotalTargetsPinged,
		Successful:      res.SuccessfulResponses,
		EligibleBidders: res.EligibleBidders,
		DurationMs:      res.DurationMs,
		Bids:            make([]BidLine, 0, len(res.Responses)),
	}
	winnerIdx := -1
	if res.Winner != nil {
		rec.WinnerTargetID = res.Winner.TargetID
		rec.WinningBid = res.Winner.BidAmount
		for i, r := range res.Responses {
			if r.TargetID == res.Winner.TargetID {
				winnerIdx = i
				break
			}
		}
	}
	for i, r := range res.Responses {
		line := BidLine{
			TargetID:       r.TargetID,
			TargetName:     r.TargetName,
			StatusCode:     r.StatusCode,
			ResponseTimeMs: r.ResponseTimeMs,
			BidAmount:      r.BidAmount,
			Success:        r.Success,
			IsValid:        r.IsValid,
			TimedOut:       r.TimedOut,
			Won:            i == winnerIdx,
		}
		if r.RejectionReason != nil {
			line.RejectionReason = *r.RejectionReason
		}
		rec.Bids = append(rec.Bids, line)
	}
	return rec
}

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// HealthRequest asks for per-target health over a campaign's auctions.
// AccountID is required.
type HealthRequest struct {
	AccountID  string    `json:"account_id"`
	CampaignID string    `json:"campaign_id"`
	Range      TimeRange `json:"range"`
}

type TargetHealth struct {
	TargetID   string `json:"target_id"`
	TargetName string `json:"target_name,omitempty"`

	Requests   int `json:"requests"`
	Successful int `json:"successful"`
	Timeouts   int `json:"timeouts"`
	ValidBids  int `json:"valid_bids"`
	Wins       int `json:"wins"`

	AverageResponseMs int64 `json:"average_response_ms"`

	ResponseRate float64 `json:"response_rate"`
	TimeoutRate  float64 `json:"timeout_rate"`
	ValidBidRate float64 `json:"valid_bid_rate"`
	WinRate      float64 `json:"win_rate"`
}

type HealthReport struct {
	AccountID  string         `json:"account_id"`
	CampaignID string         `json:"campaign_id"`
	Range      TimeRange      `json:"range"`
	Auctions   int            `json:"auctions"`
	Targets    []TargetHealth `json:"targets"`
}
