package rtb

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"callcenter-pro/internal/calls"
	"callcenter-pro/internal/targets"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captured struct {
	method string
	query  map[string][]string
	header http.Header
	body   string
}

func capturingTarget(t *testing.T, reply string) (*httptest.Server, *captured) {
	t.Helper()
	got := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		got.method = r.Method
		got.query = r.URL.Query()
		got.header = r.Header.Clone()
		got.body = string(b)
		w.Header().Set("X-Buyer", "yes")
		_, _ = io.WriteString(w, reply)
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

func TestBidder_PostRendersTemplateWithHeaders(t *testing.T) {
	srv, got := capturingTarget(t, `{"bid": 12, "accepted": true}`)
	tg := targets.BidTarget{
		ID:              "t1",
		AccountID:       "acct_1",
		Name:            "Buyer",
		EndpointURL:     srv.URL + "/bid",
		RequestTemplate: `{"id":"{requestId}","caller":"{callerId}"}`,
		AuthMethod:      targets.AuthBearer,
		AuthToken:       "sekret",
	}

	r := NewBidder(nil, "", 0).Bid(context.Background(), tg, calls.Context{CallerID: "+15555551234"})

	assert.Equal(t, http.MethodPost, got.method)
	assert.Equal(t, "application/json", got.header.Get("Content-Type"))
	assert.Equal(t, "Bearer sekret", got.header.Get("Authorization"))
	assert.Equal(t, DefaultUserAgent, got.header.Get("User-Agent"))

	var sent map[string]string
	require.NoError(t, json.Unmarshal([]byte(got.body), &sent))
	assert.Equal(t, "+15555551234", sent["caller"])
	assert.Equal(t, r.RequestID, sent["id"])
	assert.True(t, strings.HasPrefix(sent["id"], "req_"))

	assert.True(t, r.IsValid)
	assert.Equal(t, 200, r.StatusCode)
	assert.Equal(t, "yes", r.Headers.Get("X-Buyer"))
	assert.Equal(t, got.body, r.RequestBody)
	assert.Empty(t, r.RequestBodyError)
}

func TestBidder_GetSendsScalarsAsQuery(t *testing.T) {
	srv, got := capturingTarget(t, `{"price": 3}`)
	tg := targets.BidTarget{
		ID:              "t1",
		AccountID:       "acct_1",
		EndpointURL:     srv.URL + "/bid?src=cc",
		Method:          "get",
		RequestTemplate: `{"caller":"{callerId}","min":{minBid},"nested":{"a":1}}`,
		AuthMethod:      targets.AuthHeader,
		AuthHeader:      "X-Api-Key",
		AuthToken:       "k1",
	}

	r := NewBidder(nil, "Custom/2", 0).Bid(context.Background(), tg, calls.Context{CallerID: "+13105550000"})

	assert.Equal(t, http.MethodGet, got.method)
	assert.Empty(t, got.body)
	assert.Equal(t, "+13105550000", got.query["caller"][0])
	assert.Equal(t, "10", got.query["min"][0])
	assert.Equal(t, "cc", got.query["src"][0])
	assert.NotContains(t, got.query, "nested")
	assert.Equal(t, "k1", got.header.Get("X-Api-Key"))
	assert.Equal(t, "Custom/2", got.header.Get("User-Agent"))
	assert.True(t, r.IsValid)
}

func TestBidder_PingCarriesContext(t *testing.T) {
	srv, got := capturingTarget(t, `{}`)
	tg := targets.BidTarget{ID: "t1", AccountID: "acct_1", EndpointURL: srv.URL}

	r := NewBidder(nil, "", 0).Ping(context.Background(), tg, calls.Context{CallerState: "TX"})

	assert.Equal(t, http.MethodGet, got.method)
	assert.Equal(t, "TX", got.query["callerState"][0])
	assert.Equal(t, r.RequestID, got.query["requestId"][0])
	assert.True(t, r.Success)
	assert.False(t, r.IsValid)
}

func TestBidder_ResponseBodyIsCapped(t *testing.T) {
	srv, _ := capturingTarget(t, `{"bid": 5, "pad": "`+strings.Repeat("x", 4096)+`"}`)
	tg := targets.BidTarget{ID: "t1", AccountID: "acct_1", EndpointURL: srv.URL}

	r := NewBidder(nil, "", 64).Bid(context.Background(), tg, calls.Context{})
	assert.Len(t, r.Body, 64)
	require.NotNil(t, r.RejectionReason)
	assert.Equal(t, "malformed response", *r.RejectionReason)
}

func TestBidder_InvalidTargetIsNotContacted(t *testing.T) {
	r := NewBidder(nil, "", 0).Bid(context.Background(), targets.BidTarget{ID: "t1", AccountID: "acct_1", EndpointURL: "nope"}, calls.Context{})
	require.NotNil(t, r.RejectionReason)
	assert.Equal(t, ReasonInvalidTarget, *r.RejectionReason)
	assert.False(t, r.Success)
}

func TestBidder_RenderedBodyParseErrorIsReported(t *testing.T) {
	srv, got := capturingTarget(t, `{"bid": 5}`)
	tg := targets.BidTarget{ID: "t1", AccountID: "acct_1", EndpointURL: srv.URL, RequestTemplate: `{"caller": {callerId}}`}

	r := NewBidder(nil, "", 0).Bid(context.Background(), tg, calls.Context{})
	assert.NotEmpty(t, r.RequestBodyError)
	assert.Equal(t, `{"caller": +15551234567}`, got.body)
}

func TestBidder_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	r := NewBidder(nil, "", 0).Bid(context.Background(), targets.BidTarget{ID: "t1", AccountID: "acct_1", EndpointURL: url}, calls.Context{})
	assert.False(t, r.Success)
	assert.False(t, r.TimedOut)
	require.NotNil(t, r.RejectionReason)
	assert.Equal(t, "network error", *r.RejectionReason)
	require.NotNil(t, r.Error)
}

func TestBidder_DefaultTimeoutAppliesToUnsetTargets(t *testing.T) {
	b := NewBidder(nil, "", 0)
	b.DefaultTimeout = 50 * time.Millisecond

	assert.Equal(t, 50*time.Millisecond, b.timeout(targets.BidTarget{}))
	assert.Equal(t, 200*time.Millisecond, b.timeout(targets.BidTarget{TimeoutMs: 200}))
	assert.Equal(t, targets.DefaultTimeout, NewBidder(nil, "", 0).timeout(targets.BidTarget{}))
}
