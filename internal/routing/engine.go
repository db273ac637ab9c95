package routing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"callcenter-pro/internal/auctionlog"
	"callcenter-pro/internal/calls"
	"callcenter-pro/internal/rtb"
	"callcenter-pro/internal/telephony"
)

// Auctioneer runs a live auction; *rtb.Coordinator implements it.
type Auctioneer interface {
	Run(ctx context.Context, req rtb.AuctionRequest) (rtb.AuctionResult, error)
}

// Recorder persists auction outcomes; *auctionlog.Service implements it.
type Recorder interface {
	Append(ctx context.Context, r auctionlog.Record) (auctionlog.Record, error)
}

// AuctionRouter sells each inbound call to the highest valid bidder.
//
// Flow:
//  1. Build the call context from the carrier data.
//  2. Run the auction.
//  3. Record the outcome (best effort).
//  4. Connect to the winner's destination, or reject.
type AuctionRouter struct {
	Auctions Auctioneer
	Records  Recorder
	Log      *slog.Logger

	// RingTimeout is passed through to the provider's dial.
	RingTimeout time.Duration
}

func NewAuctionRouter(auctions Auctioneer, records Recorder, log *slog.Logger) *AuctionRouter {
	if log == nil {
		log = slog.Default()
	}
	return &AuctionRouter{Auctions: auctions, Records: records, Log: log, RingTimeout: 30 * time.Second}
}

// CallContext derives the auction's call context from an inbound call.
func CallContext(req telephony.InboundCallRequest) calls.Context {
	return calls.Context{
		InboundCallID:  req.ProviderCallID,
		CallerID:       req.From,
		CallerState:    req.CallerState,
		CallerZip:      req.CallerZip,
		CallerAreaCode: calls.AreaCodeFromNumber(req.From),
		CampaignID:     req.CampaignID,
		InboundNumber:  req.To,
	}
}

// Decide runs the auction and returns the routing decision. No provider calls.
func (r *AuctionRouter) Decide(ctx context.Context, req telephony.InboundCallRequest) (Decision, error) {
	if req.AccountID == "" {
		return Decision{}, errors.New("routing: account_id required")
	}
	if req.CampaignID == "" {
		return Decision{AccountID: req.AccountID, Action: ActionReject, Reason: ReasonCampaignMissing}, nil
	}
	if r.Auctions == nil {
		return Decision{}, errors.New("routing: auctioneer not configured")
	}

	res, err := r.Auctions.Run(ctx, rtb.AuctionRequest{
		AccountID:  req.AccountID,
		CampaignID: req.CampaignID,
		Call:       CallContext(req),
	})
	if err != nil {
		return Decision{}, fmt.Errorf("routing: auction: %w", err)
	}
	r.record(ctx, res, req.ProviderCallID)

	d := Decision{AccountID: req.AccountID, CampaignID: req.CampaignID, AuctionID: res.AuctionID, Action: ActionReject}
	switch res.Outcome {
	case rtb.OutcomeNoActiveTargets:
		d.Reason = ReasonNoActiveTargets
	case rtb.OutcomeNoValidBids:
		d.Reason = ReasonNoValidBids
	case rtb.OutcomeWinner:
		if res.Winner.DestinationNumber == nil {
			d.Reason = ReasonNoDestination
			break
		}
		d.Action = ActionConnect
		d.ConnectTo = *res.Winner.DestinationNumber
		d.WinningBid = res.Winner.Bid()
		d.Reason = ReasonWinner
	}
	return d, nil
}

func (r *AuctionRouter) RouteInboundCall(ctx context.Context, req telephony.InboundCallRequest) (telephony.InboundCallResult, error) {
	d, err := r.Decide(ctx, req)
	if err != nil {
		return telephony.InboundCallResult{}, err
	}
	r.logger().Info("inbound call routed",
		"account_id", d.AccountID, "campaign_id", d.CampaignID, "auction_id", d.AuctionID,
		"action", d.Action, "reason", d.Reason)

	res := telephony.InboundCallResult{AccountID: d.AccountID, AuctionID: d.AuctionID}
	switch d.Action {
	case ActionReject:
		res.Action = telephony.InboundCallActionReject
	case ActionHangup:
		res.Action = telephony.InboundCallActionHangup
	case ActionConnect:
		res.Action = telephony.InboundCallActionConnect
		res.ConnectTo = d.ConnectTo
		res.CallerID = req.From
		res.RingTimeout = r.RingTimeout
	default:
		return telephony.InboundCallResult{}, errors.New("routing: unknown decision action")
	}
	return res, nil
}

func (r *AuctionRouter) record(ctx context.Context, res rtb.AuctionResult, callID string) {
	if r.Records == nil {
		return
	}
	if _, err := r.Records.Append(ctx, auctionlog.FromResult(res, callID)); err != nil {
		r.logger().Warn("auction record append failed", "auction_id", res.AuctionID, "err", err)
	}
}

func (r *AuctionRouter) logger() *slog.Logger {
	if r.Log != nil {
		return r.Log
	}
	return slog.Default()
}
