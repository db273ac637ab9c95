package harness

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"callcenter-pro/internal/calls"
	"callcenter-pro/internal/rtb"
	"callcenter-pro/internal/targets"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buyer(t *testing.T, post string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			_, _ = io.WriteString(w, `{"status":"ok","caller":"`+r.URL.Query().Get("callerId")+`"}`)
			return
		}
		_, _ = io.WriteString(w, post)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func setup(t *testing.T) (*targets.MemoryRepo, *Harness) {
	t.Helper()
	repo := targets.NewMemoryRepo()
	repo.PutCampaign("acct_1", "camp_1")
	return repo, New(repo, rtb.NewBidder(nil, "", 0), nil)
}

func put(t *testing.T, repo *targets.MemoryRepo, id, url string, active bool) {
	t.Helper()
	require.NoError(t, repo.PutTarget(targets.BidTarget{ID: id, AccountID: "acct_1", Name: id, EndpointURL: url, Active: active}))
	require.NoError(t, repo.Assign("camp_1", id, 1, 0, true))
}

func TestTestTarget_PingAndPostSideBySide(t *testing.T) {
	repo, h := setup(t)
	srv := buyer(t, `{"bid": 18, "accepted": true, "phone": "+15550002222"}`)
	put(t, repo, "t1", srv.URL, false)

	res, err := h.TestTarget(context.Background(), "acct_1", "t1", calls.Context{CallerID: "+13105550000"})
	require.NoError(t, err)

	assert.Equal(t, "t1", res.TargetID)
	assert.Equal(t, http.MethodGet, res.Ping.Method)
	assert.Equal(t, `{"status":"ok","caller":"+13105550000"}`, res.Ping.Body)
	assert.True(t, res.Ping.Success)

	assert.Equal(t, http.MethodPost, res.Post.Method)
	assert.True(t, res.Post.IsValid)
	assert.Equal(t, 18.0, *res.Post.BidAmount)
	assert.Contains(t, res.Post.RequestBody, "+13105550000")
}

func TestTestTarget_UnknownTarget(t *testing.T) {
	_, h := setup(t)
	_, err := h.TestTarget(context.Background(), "acct_1", "nope", calls.Context{})
	assert.ErrorIs(t, err, ErrTargetNotFound)

	// other tenants' targets are invisible
	repo, h2 := setup(t)
	require.NoError(t, repo.PutTarget(targets.BidTarget{ID: "x", AccountID: "acct_2", EndpointURL: "https://b.example.com"}))
	_, err = h2.TestTarget(context.Background(), "acct_1", "x", calls.Context{})
	assert.ErrorIs(t, err, ErrTargetNotFound)
}

func TestTestCampaign_RanksPostResults(t *testing.T) {
	repo, h := setup(t)
	low := buyer(t, `{"bid": 10, "accepted": true}`)
	high := buyer(t, `{"bidAmount": 20, "accept": true}`)
	junk := buyer(t, `nope`)
	put(t, repo, "low", low.URL, true)
	put(t, repo, "high", high.URL, true)
	put(t, repo, "junk", junk.URL, true)
	put(t, repo, "off", junk.URL, false)

	res, err := h.TestCampaign(context.Background(), "acct_1", "camp_1", calls.Context{})
	require.NoError(t, err)

	assert.Equal(t, 3, res.TotalTargetsPinged)
	require.Len(t, res.Targets, 3)
	assert.Equal(t, []string{"low", "high", "junk"}, []string{res.Targets[0].TargetID, res.Targets[1].TargetID, res.Targets[2].TargetID})
	assert.Equal(t, 3, res.SuccessfulResponses)
	assert.Equal(t, 2, res.EligibleBidders)
	require.NotNil(t, res.Winner)
	assert.Equal(t, "high", res.Winner.TargetID)
	for _, tt := range res.Targets {
		assert.Contains(t, tt.Post.RequestBody, `"callerId":"+15551234567"`)
	}
}

func TestTestCampaign_NoActiveTargetsIsAnError(t *testing.T) {
	repo, h := setup(t)
	put(t, repo, "off", "https://b.example.com", false)

	_, err := h.TestCampaign(context.Background(), "acct_1", "camp_1", calls.Context{})
	assert.ErrorIs(t, err, ErrNoActiveTargets)
}

func TestTestCampaign_UnknownCampaign(t *testing.T) {
	_, h := setup(t)
	_, err := h.TestCampaign(context.Background(), "acct_1", "missing", calls.Context{})
	require.Error(t, err)
	assert.ErrorIs(t, err, targets.ErrNotFound)
}
