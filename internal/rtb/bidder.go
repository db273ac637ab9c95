package rtb

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"callcenter-pro/internal/calls"
	"callcenter-pro/internal/rtb/evaluator"
	"callcenter-pro/internal/rtb/macros"
	"callcenter-pro/internal/targets"

	"github.com/tidwall/gjson"
)

const (
	DefaultUserAgent        = "CallCenterPro-RTB/1.0"
	DefaultMaxResponseBytes = 1 << 20
)

// Rejection reasons added on top of the evaluator's.
const (
	// ReasonInvalidTarget marks targets whose configuration failed validation; nothing is sent.
	ReasonInvalidTarget = "invalid target"
	ReasonPanic         = "bidder error"
)

// Bidder sends a single bid request to a single target and evaluates the answer.
// It holds no per-request state and is safe for concurrent use.
type Bidder struct {
	Client           *http.Client
	Macros           macros.Engine
	UserAgent        string
	MaxResponseBytes int64

	// DefaultTimeout overrides targets.DefaultTimeout for targets without their own.
	DefaultTimeout time.Duration
}

func NewBidder(client *http.Client, userAgent string, maxResponseBytes int64) *Bidder {
	if client == nil {
		client = &http.Client{}
	}
	if strings.TrimSpace(userAgent) == "" {
		userAgent = DefaultUserAgent
	}
	if maxResponseBytes <= 0 {
		maxResponseBytes = DefaultMaxResponseBytes
	}
	return &Bidder{Client: client, UserAgent: userAgent, MaxResponseBytes: maxResponseBytes}
}

// Bid renders the target's template and sends it with the target's method.
// GET targets receive the rendered object's top-level scalars as query parameters.
func (b *Bidder) Bid(ctx context.Context, t targets.BidTarget, cc calls.Context) BidResponse {
	return b.send(ctx, t, cc, t.HTTPMethod())
}

// Post sends the rendered template as a JSON body regardless of the target's method.
func (b *Bidder) Post(ctx context.Context, t targets.BidTarget, cc calls.Context) BidResponse {
	return b.send(ctx, t, cc, http.MethodPost)
}

func (b *Bidder) send(ctx context.Context, t targets.BidTarget, cc calls.Context, method string) BidResponse {
	p := b.Macros.Build(t.RequestTemplate, cc)
	out := BidResponse{
		TargetID:         t.ID,
		TargetName:       t.Name,
		URL:              t.EndpointURL,
		Method:           method,
		RequestID:        p.RequestID,
		RequestBody:      p.Body,
		RequestBodyError: p.ParseError,
	}
	if method == http.MethodGet {
		out.URL = withQuery(t.EndpointURL, bodyToQuery(p.Body))
		return b.exchange(ctx, t, out, nil)
	}
	return b.exchange(ctx, t, out, []byte(p.Body))
}

// Ping sends a GET carrying the defaulted call context as query parameters.
func (b *Bidder) Ping(ctx context.Context, t targets.BidTarget, cc calls.Context) BidResponse {
	q, rid := b.Macros.QueryParams(cc)
	out := BidResponse{
		TargetID:   t.ID,
		TargetName: t.Name,
		URL:        withQuery(t.EndpointURL, q),
		Method:     http.MethodGet,
		RequestID:  rid,
	}
	return b.exchange(ctx, t, out, nil)
}

func (b *Bidder) timeout(t targets.BidTarget) time.Duration {
	if t.TimeoutMs <= 0 && b.DefaultTimeout > 0 {
		return b.DefaultTimeout
	}
	return t.Timeout()
}

func (b *Bidder) exchange(ctx context.Context, t targets.BidTarget, out BidResponse, body []byte) BidResponse {
	if err := t.Validate(); err != nil {
		return finish(out, evaluator.Verdict{RejectionReason: ReasonInvalidTarget, Error: err.Error()})
	}

	tctx, cancel := context.WithTimeout(ctx, b.timeout(t))
	defer cancel()

	start := time.Now()
	raw := b.do(tctx, t, out.Method, out.URL, body)
	raw.Elapsed = time.Since(start)

	out.ResponseTimeMs = raw.Elapsed.Milliseconds()
	if raw.Err == nil {
		out.StatusCode = raw.StatusCode
		out.StatusText = raw.Status
		out.Headers = raw.Headers
		out.Body = string(raw.Body)
	}
	v := evaluator.Evaluate(raw, evaluator.Bounds{Min: t.MinBid, Max: t.MaxBid})
	return finish(out, v)
}

func (b *Bidder) do(ctx context.Context, t targets.BidTarget, method, endpoint string, body []byte) evaluator.Raw {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, rdr)
	if err != nil {
		return evaluator.Raw{Err: fmt.Errorf("rtb: build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", b.userAgent())
	switch targets.AuthMethod(strings.ToLower(string(t.AuthMethod))) {
	case targets.AuthBearer:
		if t.AuthToken != "" {
			req.Header.Set("Authorization", "Bearer "+t.AuthToken)
		}
	case targets.AuthHeader:
		if t.AuthHeader != "" && t.AuthToken != "" {
			req.Header.Set(t.AuthHeader, t.AuthToken)
		}
	}

	resp, err := b.client().Do(req)
	if err != nil {
		return transportFailure(ctx, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, b.maxBytes()))
	if err != nil {
		return transportFailure(ctx, err)
	}
	// drain a little so the connection can be reused
	_, _ = io.CopyN(io.Discard, resp.Body, 4<<10)

	return evaluator.Raw{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Headers:    resp.Header.Clone(),
		Body:       respBody,
	}
}

// transportFailure classifies err. Only this target's deadline counts as a timeout;
// a cancelled parent context is reported as a network error.
func transportFailure(ctx context.Context, err error) evaluator.Raw {
	timedOut := errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded)
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		timedOut = true
	}
	return evaluator.Raw{Err: err, TimedOut: timedOut}
}

func finish(out BidResponse, v evaluator.Verdict) BidResponse {
	out.Success = v.Success
	out.BidAmount = v.BidAmount
	out.DestinationNumber = v.DestinationNumber
	out.Accepted = v.Accepted
	out.IsValid = v.IsValid
	out.TimedOut = v.RejectionReason == evaluator.ReasonTimeout
	if v.RejectionReason != "" {
		r := v.RejectionReason
		out.RejectionReason = &r
	}
	if v.Error != "" {
		e := v.Error
		out.Error = &e
	}
	return out
}

func (b *Bidder) client() *http.Client {
	if b.Client != nil {
		return b.Client
	}
	return http.DefaultClient
}

func (b *Bidder) userAgent() string {
	if b.UserAgent != "" {
		return b.UserAgent
	}
	return DefaultUserAgent
}

func (b *Bidder) maxBytes() int64 {
	if b.MaxResponseBytes > 0 {
		return b.MaxResponseBytes
	}
	return DefaultMaxResponseBytes
}

// bodyToQuery flattens a rendered JSON object's top-level scalar fields.
func bodyToQuery(body string) url.Values {
	q := url.Values{}
	doc := gjson.Parse(body)
	if !gjson.Valid(body) || !doc.IsObject() {
		return q
	}
	doc.ForEach(func(k, v gjson.Result) bool {
		switch v.Type {
		case gjson.String, gjson.Number, gjson.True, gjson.False:
			q.Set(k.String(), v.String())
		}
		return true
	})
	return q
}

func withQuery(endpoint string, q url.Values) string {
	if len(q) == 0 {
		return endpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return endpoint
	}
	existing := u.Query()
	for k, vs := range q {
		for _, v := range vs {
			existing.Add(k, v)
		}
	}
	u.RawQuery = existing.Encode()
	return u.String()
}
