package routing

import (
	"context"
	"errors"
	"testing"

	"callcenter-pro/internal/auctionlog"
	"callcenter-pro/internal/rtb"
	"callcenter-pro/internal/telephony"
)

type stubAuctions struct {
	got rtb.AuctionRequest
	res rtb.AuctionResult
	err error
}

func (s *stubAuctions) Run(ctx context.Context, req rtb.AuctionRequest) (rtb.AuctionResult, error) {
	s.got = req
	return s.res, s.err
}

type stubRecorder struct {
	recs []auctionlog.Record
	err  error
}

func (s *stubRecorder) Append(ctx context.Context, r auctionlog.Record) (auctionlog.Record, error) {
	s.recs = append(s.recs, r)
	return r, s.err
}

func inbound() telephony.InboundCallRequest {
	return telephony.InboundCallRequest{
		AccountID:      "acct_1",
		CampaignID:     "camp_1",
		ProviderCallID: "CA1",
		From:           "+13105551234",
		To:             "+18005550100",
		CallerState:    "CA",
	}
}

func winner(dest *string) rtb.AuctionResult {
	bid := 42.5
	w := rtb.BidResponse{TargetID: "A", BidAmount: &bid, IsValid: true, Success: true, DestinationNumber: dest}
	return rtb.AuctionResult{
		AuctionID:  "auc_1",
		AccountID:  "acct_1",
		CampaignID: "camp_1",
		State:      rtb.StateResolved,
		Outcome:    rtb.OutcomeWinner,
		Responses:  []rtb.BidResponse{w},
		Winner:     &w,
	}
}

func TestAuctionRouter_ConnectsWinner(t *testing.T) {
	dest := "+15550001111"
	a := &stubAuctions{res: winner(&dest)}
	rec := &stubRecorder{}
	r := NewAuctionRouter(a, rec, nil)

	res, err := r.RouteInboundCall(context.Background(), inbound())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if res.Action != telephony.InboundCallActionConnect || res.ConnectTo != dest {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.CallerID != "+13105551234" || res.AuctionID != "auc_1" {
		t.Fatalf("expected caller id and auction id passed through: %+v", res)
	}

	cc := a.got.Call
	if cc.CallerID != "+13105551234" || cc.CallerAreaCode != "310" || cc.InboundNumber != "+18005550100" || cc.InboundCallID != "CA1" || cc.CallerState != "CA" {
		t.Fatalf("unexpected call context: %+v", cc)
	}
	if len(rec.recs) != 1 || rec.recs[0].CallID != "CA1" || rec.recs[0].WinnerTargetID != "A" {
		t.Fatalf("expected auction recorded, got %+v", rec.recs)
	}
}

func TestAuctionRouter_RejectsWithoutWinner(t *testing.T) {
	cases := []struct {
		res    rtb.AuctionResult
		reason string
	}{
		{rtb.AuctionResult{AuctionID: "a", AccountID: "acct_1", CampaignID: "camp_1", Outcome: rtb.OutcomeNoValidBids}, ReasonNoValidBids},
		{rtb.AuctionResult{AuctionID: "a", AccountID: "acct_1", CampaignID: "camp_1", Outcome: rtb.OutcomeNoActiveTargets}, ReasonNoActiveTargets},
		{winner(nil), ReasonNoDestination},
	}
	for _, c := range cases {
		r := NewAuctionRouter(&stubAuctions{res: c.res}, nil, nil)
		d, err := r.Decide(context.Background(), inbound())
		if err != nil {
			t.Fatalf("unexpected err: %v", err)
		}
		if d.Action != ActionReject || d.Reason != c.reason {
			t.Fatalf("expected reject/%s, got %+v", c.reason, d)
		}
	}
}

func TestAuctionRouter_RecorderFailureDoesNotBlockCall(t *testing.T) {
	dest := "+15550001111"
	r := NewAuctionRouter(&stubAuctions{res: winner(&dest)}, &stubRecorder{err: errors.New("db down")}, nil)
	d, err := r.Decide(context.Background(), inbound())
	if err != nil || d.Action != ActionConnect {
		t.Fatalf("expected connect despite record failure, got %+v %v", d, err)
	}
	if d.WinningBid != 42.5 {
		t.Fatalf("expected winning bid, got %v", d.WinningBid)
	}
}

func TestAuctionRouter_InputErrors(t *testing.T) {
	r := NewAuctionRouter(&stubAuctions{err: errors.New("store down")}, nil, nil)

	if _, err := r.Decide(context.Background(), telephony.InboundCallRequest{}); err == nil {
		t.Fatalf("expected error without account")
	}

	in := inbound()
	in.CampaignID = ""
	d, err := r.Decide(context.Background(), in)
	if err != nil || d.Reason != ReasonCampaignMissing {
		t.Fatalf("expected campaign_id_required reject, got %+v %v", d, err)
	}

	if _, err := r.Decide(context.Background(), inbound()); err == nil {
		t.Fatalf("expected auction error to propagate")
	}
}
