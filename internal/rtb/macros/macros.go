// Package macros renders bid-target request templates from a call context.
//
// Two placeholder families are recognised in the same template:
//
//	{callerId}            brace macros
//	[Call:CallerId]       bracket (family:field) macros
//
// Replacement is literal and single pass; anything not in the token table is left as-is.
package macros

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"callcenter-pro/internal/calls"

	"github.com/google/uuid"
)

// DefaultTemplate is used when a target has no template configured.
const DefaultTemplate = `{"requestId":"{requestId}","callerId":"{callerId}","timestamp":"{timestamp}"}`

// Fallback values for context fields the caller did not provide.
const (
	DefaultCallerID       = "+15551234567"
	DefaultCallerState    = "CA"
	DefaultCallerZip      = "90210"
	DefaultCallerAreaCode = "555"
	DefaultPublisherID    = "test_publisher"
	DefaultPublisherSubID = "sub_001"
	DefaultMinBid         = 10.0
	DefaultMaxBid         = 50.0
	DefaultCurrency       = "USD"
	DefaultInboundNumber  = "+18005550100"
)

const customPrefix = "[Custom:"

// Engine renders templates. The zero value is ready to use.
type Engine struct {
	// Now and NewRequestID are injectable for deterministic tests.
	Now          func() time.Time
	NewRequestID func(now time.Time) string
}

// Payload is a rendered request body plus its JSON diagnostics.
type Payload struct {
	RequestID string `json:"request_id"`
	Body      string `json:"body"`
	// ParseError is set when Body is not valid JSON; the body is still sent as-is.
	ParseError string `json:"parse_error,omitempty"`
}

// NewRequestID returns "req_<unix millis>_<random suffix>".
func NewRequestID(now time.Time) string {
	return fmt.Sprintf("req_%d_%s", now.UnixMilli(), strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
}

// Render replaces every recognised macro in tmpl. It never fails.
func (e Engine) Render(tmpl string, cc calls.Context) string {
	return e.Build(tmpl, cc).Body
}

// Build renders tmpl and reports whether the result parses as JSON.
func (e Engine) Build(tmpl string, cc calls.Context) Payload {
	if strings.TrimSpace(tmpl) == "" {
		tmpl = DefaultTemplate
	}
	now := e.now()
	rid := e.requestID(now)

	body := strings.NewReplacer(tokenTable(rid, now, cc)...).Replace(tmpl)

	p := Payload{RequestID: rid, Body: body}
	var probe any
	if err := json.Unmarshal([]byte(body), &probe); err != nil {
		p.ParseError = err.Error()
	}
	return p
}

// QueryParams serialises the defaulted context as URL query parameters (used for GET pings).
func (e Engine) QueryParams(cc calls.Context) (url.Values, string) {
	now := e.now()
	rid := e.requestID(now)
	v := resolve(cc)

	q := url.Values{}
	q.Set("requestId", rid)
	q.Set("callerId", v.callerID)
	q.Set("timestamp", formatTimestamp(now))
	q.Set("callerState", v.callerState)
	q.Set("callerZip", v.callerZip)
	q.Set("callerAreaCode", v.callerAreaCode)
	q.Set("publisherId", v.publisherID)
	q.Set("publisherSubId", v.publisherSubID)
	q.Set("minBid", v.minBid)
	q.Set("maxBid", v.maxBid)
	q.Set("currency", v.currency)
	q.Set("inboundNumber", v.inboundNumber)
	if cc.CampaignID != "" {
		q.Set("campaignId", cc.CampaignID)
	}
	return q, rid
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) requestID(now time.Time) string {
	if e.NewRequestID != nil {
		return e.NewRequestID(now)
	}
	return NewRequestID(now)
}

type values struct {
	callerID       string
	callerState    string
	callerZip      string
	callerAreaCode string
	publisherID    string
	publisherSubID string
	minBid         string
	maxBid         string
	currency       string
	inboundNumber  string
}

func resolve(cc calls.Context) values {
	return values{
		callerID:       orDefault(cc.CallerID, DefaultCallerID),
		callerState:    orDefault(cc.CallerState, DefaultCallerState),
		callerZip:      orDefault(cc.CallerZip, DefaultCallerZip),
		callerAreaCode: orDefault(cc.CallerAreaCode, DefaultCallerAreaCode),
		publisherID:    orDefault(cc.PublisherID, DefaultPublisherID),
		publisherSubID: orDefault(cc.PublisherSubID, DefaultPublisherSubID),
		minBid:         formatAmount(cc.MinBid, DefaultMinBid),
		maxBid:         formatAmount(cc.MaxBid, DefaultMaxBid),
		currency:       orDefault(cc.Currency, DefaultCurrency),
		inboundNumber:  orDefault(cc.InboundNumber, DefaultInboundNumber),
	}
}

// tokenTable maps every literal macro token to its value. Both families share one table;
// tokens are disjoint literal strings so the order of families does not matter.
func tokenTable(requestID string, now time.Time, cc calls.Context) []string {
	v := resolve(cc)
	ts := formatTimestamp(now)
	callID := orDefault(cc.InboundCallID, requestID)

	pairs := []string{
		"{requestId}", requestID,
		"{callerId}", v.callerID,
		"{timestamp}", ts,
		"{callerState}", v.callerState,
		"{callerZip}", v.callerZip,
		"{callerAreaCode}", v.callerAreaCode,
		"{publisherId}", v.publisherID,
		"{publisherSubId}", v.publisherSubID,
		"{minBid}", v.minBid,
		"{maxBid}", v.maxBid,
		"{currency}", v.currency,
		"{inboundNumber}", v.inboundNumber,

		"[Call:CallerId]", v.callerID,
		"[Call:CallerIdNoPlus]", NoPlus(v.callerID),
		"[Call:InboundCallId]", callID,
		"[tag:InboundNumber:Number]", v.inboundNumber,
		"[tag:InboundNumber:Number-NoPlus]", NoPlus(v.inboundNumber),
		"[Publisher:Id]", v.publisherID,
		"[Publisher:SubId]", v.publisherSubID,
		"[Geo:State]", v.callerState,
		"[Geo:Zipcode]", v.callerZip,
		"[Zip Code:Zip Code]", v.callerZip,
	}
	// Sorted so overlapping tag names resolve the same way on every call.
	keys := make([]string, 0, len(cc.Tags))
	for k := range cc.Tags {
		if k != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		pairs = append(pairs, customPrefix+k+"]", cc.Tags[k])
	}
	return pairs
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func formatAmount(v *float64, def float64) string {
	if v == nil {
		return strconv.FormatFloat(def, 'f', -1, 64)
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}
