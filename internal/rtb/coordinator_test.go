package rtb

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"callcenter-pro/internal/calls"
	"callcenter-pro/internal/targets"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jsonTarget(t *testing.T, status int, body string, delay time.Duration) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

type campaign struct {
	repo *targets.MemoryRepo
}

func newCampaign(t *testing.T) campaign {
	t.Helper()
	repo := targets.NewMemoryRepo()
	repo.PutCampaign("acct_1", "camp_1")
	return campaign{repo: repo}
}

func (c campaign) add(t *testing.T, id, url string, timeoutMs int, active bool) {
	t.Helper()
	require.NoError(t, c.repo.PutTarget(targets.BidTarget{
		ID:          id,
		AccountID:   "acct_1",
		Name:        "Buyer " + id,
		EndpointURL: url,
		TimeoutMs:   timeoutMs,
		Active:      active,
	}))
	require.NoError(t, c.repo.Assign("camp_1", id, 1, 0, true))
}

func newTestCoordinator(src targets.Source, m *Metrics) *Coordinator {
	return NewCoordinator(src, NewBidder(nil, "", 0), m, nil)
}

func TestRun_PartialFailureSelectsHighestValidBid(t *testing.T) {
	a := jsonTarget(t, 200, `{"bid": 42.5, "accepted": true, "phoneNumber":"+15550001111"}`, 0)
	b := jsonTarget(t, 200, `{"bid": 99, "accepted": true}`, 2*time.Second)
	c := jsonTarget(t, 200, `{"bid": 30, "accepted": true}`, 0)

	camp := newCampaign(t)
	camp.add(t, "A", a.URL, 0, true)
	camp.add(t, "B", b.URL, 100, true)
	camp.add(t, "C", c.URL, 0, true)

	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	res, err := newTestCoordinator(camp.repo, m).Run(context.Background(), AuctionRequest{
		AccountID:  "acct_1",
		CampaignID: "camp_1",
		Call:       calls.Context{CallerID: "+15555551234"},
	})
	require.NoError(t, err)

	assert.Equal(t, StateResolved, res.State)
	assert.Equal(t, OutcomeWinner, res.Outcome)
	assert.Equal(t, 3, res.TotalTargetsPinged)
	assert.Equal(t, 2, res.SuccessfulResponses)
	assert.Equal(t, 2, res.EligibleBidders)
	require.NotNil(t, res.Winner)
	assert.Equal(t, "A", res.Winner.TargetID)
	assert.Equal(t, 42.5, *res.Winner.BidAmount)
	assert.Equal(t, "+15550001111", *res.Winner.DestinationNumber)

	require.Len(t, res.Responses, 3)
	assert.Equal(t, []string{"A", "B", "C"}, []string{res.Responses[0].TargetID, res.Responses[1].TargetID, res.Responses[2].TargetID})
	assert.True(t, res.Responses[1].TimedOut)
	assert.False(t, res.Responses[1].Success)
	assert.Nil(t, res.Responses[1].BidAmount)
	require.NotNil(t, res.Responses[1].RejectionReason)
	assert.Equal(t, "timeout", *res.Responses[1].RejectionReason)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.auctions.WithLabelValues(string(OutcomeWinner))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.bidRequests.WithLabelValues("timeout")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.bidRequests.WithLabelValues("valid")))
}

func TestRun_NoActiveTargetsIsStructuredResult(t *testing.T) {
	camp := newCampaign(t)
	camp.add(t, "off", "https://buyer.example.com/bid", 0, false)

	res, err := newTestCoordinator(camp.repo, nil).Run(context.Background(), AuctionRequest{AccountID: "acct_1", CampaignID: "camp_1"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoActiveTargets, res.Outcome)
	assert.Equal(t, StateResolved, res.State)
	assert.Nil(t, res.Winner)
	assert.Equal(t, 0, res.TotalTargetsPinged)
	assert.Equal(t, 0, res.SuccessfulResponses)
	assert.Empty(t, res.Responses)
}

func TestRun_MalformedResponseIsInvalidButSuccessful(t *testing.T) {
	bad := jsonTarget(t, 200, `not valid json`, 0)
	camp := newCampaign(t)
	camp.add(t, "bad", bad.URL, 0, true)

	res, err := newTestCoordinator(camp.repo, nil).Run(context.Background(), AuctionRequest{AccountID: "acct_1", CampaignID: "camp_1"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoValidBids, res.Outcome)
	assert.Nil(t, res.Winner)
	assert.Equal(t, 1, res.SuccessfulResponses)

	r := res.Responses[0]
	assert.True(t, r.Success)
	assert.False(t, r.IsValid)
	assert.Nil(t, r.BidAmount)
	require.NotNil(t, r.RejectionReason)
	assert.Equal(t, "malformed response", *r.RejectionReason)
	assert.Equal(t, "not valid json", r.Body)
}

func TestRun_TiesGoToFirstDispatched(t *testing.T) {
	x := jsonTarget(t, 200, `{"bid": 25.00, "accepted": true}`, 50*time.Millisecond)
	y := jsonTarget(t, 200, `{"bid": 25.00, "accepted": true}`, 0)

	camp := newCampaign(t)
	camp.add(t, "X", x.URL, 0, true)
	camp.add(t, "Y", y.URL, 0, true)

	res, err := newTestCoordinator(camp.repo, nil).Run(context.Background(), AuctionRequest{AccountID: "acct_1", CampaignID: "camp_1"})
	require.NoError(t, err)
	require.NotNil(t, res.Winner)
	assert.Equal(t, "X", res.Winner.TargetID)
}

func TestRun_RepeatedAssignmentContactsTargetOnce(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"bid": 12, "accepted": true}`)
	}))
	t.Cleanup(srv.Close)

	camp := newCampaign(t)
	camp.add(t, "A", srv.URL, 0, true)
	require.NoError(t, camp.repo.Assign("camp_1", "A", 1, 1, true))

	res, err := newTestCoordinator(camp.repo, nil).Run(context.Background(), AuctionRequest{AccountID: "acct_1", CampaignID: "camp_1"})
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, 1, res.TotalTargetsPinged)
	require.Len(t, res.Responses, 1)
	require.NotNil(t, res.Winner)
	assert.Equal(t, "A", res.Winner.TargetID)
}

func TestRun_WallClockIsMaxNotSumOfTimeouts(t *testing.T) {
	camp := newCampaign(t)
	for _, id := range []string{"s1", "s2", "s3", "s4"} {
		slow := jsonTarget(t, 200, `{"bid": 1}`, 5*time.Second)
		camp.add(t, id, slow.URL, 300, true)
	}

	start := time.Now()
	res, err := newTestCoordinator(camp.repo, nil).Run(context.Background(), AuctionRequest{AccountID: "acct_1", CampaignID: "camp_1"})
	elapsed := time.Since(start)
	require.NoError(t, err)

	assert.Equal(t, OutcomeNoValidBids, res.Outcome)
	for _, r := range res.Responses {
		assert.True(t, r.TimedOut, "target %s", r.TargetID)
	}
	assert.Less(t, elapsed, 1100*time.Millisecond, "four 300ms timeouts must overlap")
}

func TestRun_StoreErrorsPropagate(t *testing.T) {
	_, err := newTestCoordinator(targets.NewMemoryRepo(), nil).Run(context.Background(), AuctionRequest{AccountID: "acct_1", CampaignID: "missing"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, targets.ErrNotFound))

	_, err = newTestCoordinator(targets.NewMemoryRepo(), nil).Run(context.Background(), AuctionRequest{})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestDispatch_RecoversPanicPerTarget(t *testing.T) {
	ok := jsonTarget(t, 200, `{"bid": 5}`, 0)
	ts := []targets.BidTarget{
		{ID: "boom", AccountID: "acct_1", EndpointURL: "https://buyer.example.com"},
		{ID: "fine", AccountID: "acct_1", EndpointURL: ok.URL},
	}
	reg := prometheus.NewRegistry()
	c := newTestCoordinator(targets.NewMemoryRepo(), NewMetrics(reg))

	rs := c.Dispatch(context.Background(), ts, func(ctx context.Context, b *Bidder, tg targets.BidTarget) BidResponse {
		if tg.ID == "boom" {
			panic("kaboom")
		}
		return b.Bid(ctx, tg, calls.Context{})
	})
	require.Len(t, rs, 2)
	require.NotNil(t, rs[0].Error)
	assert.Contains(t, *rs[0].Error, "kaboom")
	assert.False(t, rs[0].Success)
	assert.True(t, rs[1].IsValid)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Metrics.bidderPanics))
}

func TestRun_CallerCancellationReachesAllTargets(t *testing.T) {
	camp := newCampaign(t)
	slow := jsonTarget(t, 200, `{"bid": 1}`, 5*time.Second)
	camp.add(t, "s", slow.URL, 4000, true)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	res, err := newTestCoordinator(camp.repo, nil).Run(ctx, AuctionRequest{AccountID: "acct_1", CampaignID: "camp_1"})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.False(t, res.Responses[0].Success)
}
