// Package rtb runs real-time bid auctions for inbound calls.
//
// An auction sends one request per eligible bid target concurrently, waits for every target
// (each bounded by its own timeout), evaluates the responses and picks the highest valid bid.
package rtb

import (
	"net/http"
	"time"
)

// State is an auction's lifecycle stage.
type State string

const (
	StatePending     State = "pending"
	StateDispatching State = "dispatching"
	StateCollecting  State = "collecting"
	StateResolved    State = "resolved"
)

// Outcome classifies a resolved auction.
type Outcome string

const (
	OutcomeWinner          Outcome = "winner_selected"
	OutcomeNoValidBids     Outcome = "no_valid_bids"
	OutcomeNoActiveTargets Outcome = "no_active_targets"
)

// BidResponse is the full diagnostic record of one request to one target.
// It is built once and never mutated.
type BidResponse struct {
	TargetID   string `json:"target_id"`
	TargetName string `json:"target_name"`

	URL              string `json:"url"`
	Method           string `json:"method"`
	RequestID        string `json:"request_id"`
	RequestBody      string `json:"request_body,omitempty"`
	RequestBodyError string `json:"request_body_error,omitempty"`

	StatusCode     int         `json:"status_code"`
	StatusText     string      `json:"status_text,omitempty"`
	Headers        http.Header `json:"headers,omitempty"`
	Body           string      `json:"body,omitempty"`
	ResponseTimeMs int64       `json:"response_time_ms"`

	BidAmount         *float64 `json:"bid_amount"`
	DestinationNumber *string  `json:"destination_number"`
	Accepted          bool     `json:"accepted"`
	Success           bool     `json:"success"`
	IsValid           bool     `json:"is_valid"`
	RejectionReason   *string  `json:"rejection_reason"`
	Error             *string  `json:"error"`
	TimedOut          bool     `json:"timed_out"`
}

// Bid returns the bid amount or zero.
func (r BidResponse) Bid() float64 {
	if r.BidAmount == nil {
		return 0
	}
	return *r.BidAmount
}

// AuctionResult is returned by Coordinator.Run. Responses are in dispatch order.
type AuctionResult struct {
	AuctionID  string  `json:"auction_id"`
	AccountID  string  `json:"account_id"`
	CampaignID string  `json:"campaign_id"`
	State      State   `json:"state"`
	Outcome    Outcome `json:"outcome"`

	Responses []BidResponse `json:"responses"`
	Winner    *BidResponse  `json:"winner"`

	TotalTargetsPinged  int `json:"total_targets_pinged"`
	SuccessfulResponses int `json:"successful_responses"`
	EligibleBidders     int `json:"eligible_bidders"`

	StartedAt  time.Time `json:"started_at"`
	DurationMs int64     `json:"duration_ms"`
}
