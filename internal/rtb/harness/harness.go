// Package harness lets operators exercise bid targets without a live call.
//
// Unlike a live auction, a campaign with no active targets is reported as an error here:
// an operator testing a campaign wants to know it is misconfigured.
package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"callcenter-pro/internal/calls"
	"callcenter-pro/internal/rtb"
	"callcenter-pro/internal/targets"
)

var (
	ErrTargetNotFound  = errors.New("harness: target not found")
	ErrNoActiveTargets = errors.New("harness: no active targets assigned to campaign")
)

// TargetTest holds the ping and post results for one target side by side.
type TargetTest struct {
	TargetID   string          `json:"target_id"`
	TargetName string          `json:"target_name"`
	Ping       rtb.BidResponse `json:"ping"`
	Post       rtb.BidResponse `json:"post"`
}

// CampaignTest is a simulated auction over every eligible target.
type CampaignTest struct {
	CampaignID          string           `json:"campaign_id"`
	Targets             []TargetTest     `json:"targets"`
	Winner              *rtb.BidResponse `json:"winner"`
	TotalTargetsPinged  int              `json:"total_targets_pinged"`
	SuccessfulResponses int              `json:"successful_responses"`
	EligibleBidders     int              `json:"eligible_bidders"`
	DurationMs          int64            `json:"duration_ms"`
}

type Harness struct {
	source targets.Source
	bidder *rtb.Bidder
	log    *slog.Logger
}

// New builds a harness around the live bidder so tests see the same timeouts,
// headers and evaluation as real auctions.
func New(src targets.Source, bidder *rtb.Bidder, log *slog.Logger) *Harness {
	if log == nil {
		log = slog.Default()
	}
	return &Harness{source: src, bidder: bidder, log: log}
}

// TestTarget pings and posts to one target concurrently. Inactive targets are still tested.
func (h *Harness) TestTarget(ctx context.Context, accountID, targetID string, overrides calls.Context) (TargetTest, error) {
	t, err := h.source.GetTarget(ctx, accountID, targetID)
	if err != nil {
		if errors.Is(err, targets.ErrNotFound) {
			return TargetTest{}, ErrTargetNotFound
		}
		return TargetTest{}, fmt.Errorf("harness: get target: %w", err)
	}

	res := h.pingAndPost(ctx, []targets.BidTarget{t}, overrides)[0]
	h.log.Info("target test", "account_id", accountID, "target_id", targetID,
		"ping_status", res.Ping.StatusCode, "post_status", res.Post.StatusCode, "post_valid", res.Post.IsValid)
	return res, nil
}

// TestCampaign runs ping and post against every eligible target and ranks the post results
// the same way a live auction does.
func (h *Harness) TestCampaign(ctx context.Context, accountID, campaignID string, overrides calls.Context) (CampaignTest, error) {
	start := time.Now()
	as, err := h.source.ListCampaignTargets(ctx, accountID, campaignID)
	if err != nil {
		return CampaignTest{}, fmt.Errorf("harness: list campaign targets: %w", err)
	}
	eligible := targets.EligibleTargets(as)
	if len(eligible) == 0 {
		return CampaignTest{}, ErrNoActiveTargets
	}
	if overrides.CampaignID == "" {
		overrides.CampaignID = campaignID
	}

	tests := h.pingAndPost(ctx, eligible, overrides)
	posts := make([]rtb.BidResponse, len(tests))
	for i := range tests {
		posts[i] = tests[i].Post
	}
	sum := rtb.Summarize(posts)

	out := CampaignTest{
		CampaignID:          campaignID,
		Targets:             tests,
		Winner:              sum.Winner,
		TotalTargetsPinged:  len(eligible),
		SuccessfulResponses: sum.SuccessfulResponses,
		EligibleBidders:     sum.EligibleBidders,
		DurationMs:          time.Since(start).Milliseconds(),
	}
	h.log.Info("campaign test", "account_id", accountID, "campaign_id", campaignID,
		"targets", out.TotalTargetsPinged, "eligible_bidders", out.EligibleBidders, "duration_ms", out.DurationMs)
	return out, nil
}

type probe struct {
	target targets.BidTarget
	ping   bool
}

// pingAndPost issues 2*len(ts) requests at once and pairs them back up by target.
func (h *Harness) pingAndPost(ctx context.Context, ts []targets.BidTarget, cc calls.Context) []TargetTest {
	probes := make([]probe, 0, 2*len(ts))
	for _, t := range ts {
		probes = append(probes, probe{target: t, ping: true}, probe{target: t})
	}

	b := h.bidder
	rs := rtb.FanOut(ctx, probes,
		func(ctx context.Context, _ int, p probe) rtb.BidResponse {
			if p.ping {
				return b.Ping(ctx, p.target, cc)
			}
			return b.Post(ctx, p.target, cc)
		},
		func(_ int, p probe, r any) rtb.BidResponse {
			h.log.Error("harness probe panic recovered", "target_id", p.target.ID, "panic", r)
			msg := fmt.Sprintf("harness: probe panicked: %v", r)
			reason := rtb.ReasonPanic
			return rtb.BidResponse{TargetID: p.target.ID, TargetName: p.target.Name, URL: p.target.EndpointURL, Error: &msg, RejectionReason: &reason}
		},
	)

	out := make([]TargetTest, len(ts))
	for i, t := range ts {
		out[i] = TargetTest{
			TargetID:   t.ID,
			TargetName: t.Name,
			Ping:       rs[2*i],
			Post:       rs[2*i+1],
		}
	}
	return out
}
