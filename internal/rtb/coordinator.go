package rtb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"callcenter-pro/internal/calls"
	"callcenter-pro/internal/targets"

	"github.com/google/uuid"
)

var ErrInvalidRequest = errors.New("rtb: invalid auction request")

// AuctionRequest identifies the campaign to auction and the call being sold.
type AuctionRequest struct {
	AccountID  string
	CampaignID string
	Call       calls.Context
}

// Coordinator runs live auctions. It has no side effects beyond outbound HTTP;
// persisting results is up to the caller.
type Coordinator struct {
	Source  targets.Source
	Bidder  *Bidder
	Metrics *Metrics
	Log     *slog.Logger

	Now   func() time.Time
	NewID func() string
}

func NewCoordinator(src targets.Source, bidder *Bidder, m *Metrics, log *slog.Logger) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{Source: src, Bidder: bidder, Metrics: m, Log: log}
}

// Run executes one auction.
//
// A campaign without eligible targets is not an error: the result carries
// OutcomeNoActiveTargets and nothing is sent. Errors are only returned for bad input
// and target store failures.
func (c *Coordinator) Run(ctx context.Context, req AuctionRequest) (AuctionResult, error) {
	if strings.TrimSpace(req.AccountID) == "" || strings.TrimSpace(req.CampaignID) == "" {
		return AuctionResult{}, ErrInvalidRequest
	}

	res := AuctionResult{
		AuctionID:  c.newID(),
		AccountID:  req.AccountID,
		CampaignID: req.CampaignID,
		State:      StatePending,
		StartedAt:  c.now(),
		Responses:  []BidResponse{},
	}
	log := c.logger().With("auction_id", res.AuctionID, "account_id", req.AccountID, "campaign_id", req.CampaignID)
	log.Debug("auction state", "state", res.State)

	assignments, err := c.Source.ListCampaignTargets(ctx, req.AccountID, req.CampaignID)
	if err != nil {
		return AuctionResult{}, fmt.Errorf("rtb: list campaign targets: %w", err)
	}
	eligible := targets.EligibleTargets(assignments)

	cc := req.Call
	if cc.CampaignID == "" {
		cc.CampaignID = req.CampaignID
	}

	if len(eligible) > 0 {
		res.State = StateDispatching
		log.Debug("auction state", "state", res.State, "targets", len(eligible))

		res.Responses = c.Dispatch(ctx, eligible, func(ctx context.Context, b *Bidder, t targets.BidTarget) BidResponse {
			return b.Bid(ctx, t, cc)
		})

		res.State = StateCollecting
		log.Debug("auction state", "state", res.State, "responses", len(res.Responses))
	}

	c.resolve(&res)
	log.Info("auction resolved",
		"outcome", res.Outcome,
		"targets", res.TotalTargetsPinged,
		"successful", res.SuccessfulResponses,
		"eligible_bidders", res.EligibleBidders,
		"duration_ms", res.DurationMs,
	)
	return res, nil
}

// Dispatch sends one request per target concurrently and returns the responses in target order.
// The Bidder applies each target's own timeout; ctx cancellation reaches every request.
func (c *Coordinator) Dispatch(ctx context.Context, ts []targets.BidTarget, send func(context.Context, *Bidder, targets.BidTarget) BidResponse) []BidResponse {
	rs := FanOut(ctx, ts,
		func(ctx context.Context, _ int, t targets.BidTarget) BidResponse {
			return send(ctx, c.Bidder, t)
		},
		func(_ int, t targets.BidTarget, r any) BidResponse {
			c.logger().Error("bidder panic recovered", "target_id", t.ID, "panic", r)
			c.Metrics.RecordPanic()
			msg := panicMessage(r)
			reason := ReasonPanic
			return BidResponse{
				TargetID:        t.ID,
				TargetName:      t.Name,
				URL:             t.EndpointURL,
				Method:          t.HTTPMethod(),
				Error:           &msg,
				RejectionReason: &reason,
			}
		},
	)
	for _, r := range rs {
		c.Metrics.RecordBid(r)
	}
	return rs
}

func (c *Coordinator) resolve(res *AuctionResult) {
	res.TotalTargetsPinged = len(res.Responses)

	sum := Summarize(res.Responses)
	res.Winner = sum.Winner
	res.SuccessfulResponses = sum.SuccessfulResponses
	res.EligibleBidders = sum.EligibleBidders

	switch {
	case res.TotalTargetsPinged == 0:
		res.Outcome = OutcomeNoActiveTargets
	case res.Winner == nil:
		res.Outcome = OutcomeNoValidBids
	default:
		res.Outcome = OutcomeWinner
	}
	res.State = StateResolved
	res.DurationMs = c.now().Sub(res.StartedAt).Milliseconds()
	c.Metrics.RecordAuction(*res)
}

func (c *Coordinator) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *Coordinator) newID() string {
	if c.NewID != nil {
		return c.NewID()
	}
	return "auc_" + uuid.NewString()
}

func (c *Coordinator) logger() *slog.Logger {
	if c.Log != nil {
		return c.Log
	}
	return slog.Default()
}
