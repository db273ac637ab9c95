// Package evaluator turns a raw bid-target HTTP exchange into a structured verdict.
//
// Buyers do not agree on field names, so each semantic value is looked up through an
// ordered list of candidate keys; the first key present with a non-null value wins.
package evaluator

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Rejection reasons.
const (
	ReasonHTTPError    = "http error"
	ReasonMalformed    = "malformed response"
	ReasonNoBid        = "no bid amount"
	ReasonNotAccepted  = "not accepted"
	ReasonNetworkError = "network error"
	ReasonTimeout      = "timeout"
	ReasonBelowMinimum = "bid below minimum"
	ReasonAboveMaximum = "bid above maximum"
)

var (
	BidFields         = []string{"bid", "bidAmount", "price", "amount"}
	DestinationFields = []string{"phoneNumber", "phone", "number", "destinationNumber"}
	AcceptFields      = []string{"accepted", "accept", "success"}
)

// Raw is what the transport observed for one request.
type Raw struct {
	StatusCode int
	Status     string
	Headers    http.Header
	Body       []byte
	Elapsed    time.Duration

	// Err is a transport failure; StatusCode and Body are meaningless when set.
	Err      error
	TimedOut bool
}

// Bounds is a target's acceptable bid range. Zero disables a side.
type Bounds struct {
	Min float64
	Max float64
}

// Verdict is the evaluated outcome of one response.
type Verdict struct {
	Success           bool
	BidAmount         *float64
	DestinationNumber *string
	Accepted          bool
	IsValid           bool
	RejectionReason   string
	Error             string
}

// Evaluate never panics and never returns an error; every failure becomes a Verdict.
func Evaluate(r Raw, b Bounds) Verdict {
	if r.Err != nil || r.TimedOut {
		v := Verdict{RejectionReason: ReasonNetworkError}
		if r.TimedOut {
			v.RejectionReason = ReasonTimeout
		}
		if r.Err != nil {
			v.Error = r.Err.Error()
		} else {
			v.Error = "request timed out"
		}
		return v
	}

	v := Verdict{Success: r.StatusCode >= 200 && r.StatusCode < 300}

	doc, parsed := parseObject(r.Body)
	if parsed {
		v.BidAmount = bidAmount(doc)
		v.DestinationNumber = destination(doc)
		v.Accepted = accepted(doc, v.BidAmount)
	}

	switch {
	case !v.Success:
		v.RejectionReason = ReasonHTTPError
		v.Error = httpError(r)
	case !parsed:
		v.RejectionReason = ReasonMalformed
	case v.BidAmount == nil:
		v.RejectionReason = ReasonNoBid
	case !v.Accepted:
		v.RejectionReason = ReasonNotAccepted
	case b.Min > 0 && *v.BidAmount < b.Min:
		v.RejectionReason = ReasonBelowMinimum
	case b.Max > 0 && *v.BidAmount > b.Max:
		v.RejectionReason = ReasonAboveMaximum
	default:
		v.IsValid = true
	}
	return v
}

func parseObject(body []byte) (gjson.Result, bool) {
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, false
	}
	doc := gjson.ParseBytes(body)
	return doc, doc.IsObject()
}

// lookup returns the first candidate key present with a non-null value.
func lookup(doc gjson.Result, keys []string) (gjson.Result, bool) {
	for _, k := range keys {
		r := doc.Get(gjson.Escape(k))
		if r.Exists() && r.Type != gjson.Null {
			return r, true
		}
	}
	return gjson.Result{}, false
}

// bidAmount accepts JSON numbers and numeric strings; anything not > 0 is unusable.
func bidAmount(doc gjson.Result) *float64 {
	r, ok := lookup(doc, BidFields)
	if !ok {
		return nil
	}
	var f float64
	switch r.Type {
	case gjson.Number:
		f = r.Float()
	case gjson.String:
		p, err := strconv.ParseFloat(strings.TrimSpace(r.Str), 64)
		if err != nil {
			return nil
		}
		f = p
	default:
		return nil
	}
	if !(f > 0) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

func destination(doc gjson.Result) *string {
	r, ok := lookup(doc, DestinationFields)
	if !ok {
		return nil
	}
	s := strings.TrimSpace(r.String())
	if s == "" {
		return nil
	}
	return &s
}

// accepted uses the first explicit flag; without one, any usable bid counts as acceptance.
func accepted(doc gjson.Result, bid *float64) bool {
	if r, ok := lookup(doc, AcceptFields); ok {
		return r.Bool()
	}
	return bid != nil
}

func httpError(r Raw) string {
	if s := strings.TrimSpace(r.Status); s != "" {
		return "HTTP " + s
	}
	return "HTTP " + strconv.Itoa(r.StatusCode)
}
