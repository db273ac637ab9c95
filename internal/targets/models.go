package targets

import (
	"strings"
	"time"

	"github.com/samber/lo"
)

// DefaultTimeout applies when a target has no positive timeout configured.
const DefaultTimeout = 3000 * time.Millisecond

// AuthMethod selects how a target authenticates our bid requests.
type AuthMethod string

const (
	AuthNone   AuthMethod = "none"
	AuthBearer AuthMethod = "bearer"
	// AuthHeader sends the token verbatim in AuthHeader (e.g. X-Api-Key).
	AuthHeader AuthMethod = "header"
)

// BidTarget is an external buyer endpoint that receives bid requests.
//
// Targets are owned by the campaign configuration layer; the auction engine only reads them.
type BidTarget struct {
	ID        string `json:"id" db:"id" validate:"required"`
	AccountID string `json:"account_id" db:"account_id" validate:"required"`
	Name      string `json:"name" db:"name"`

	EndpointURL string `json:"endpoint_url" db:"endpoint_url" validate:"required,url"`
	Method      string `json:"method,omitempty" db:"method" validate:"omitempty,oneof=GET POST PUT PATCH get post put patch"`

	// RequestTemplate is a JSON body with {macro} / [Family:Field] placeholders.
	RequestTemplate string `json:"request_template,omitempty" db:"request_template"`

	AuthMethod AuthMethod `json:"auth_method,omitempty" db:"auth_method" validate:"omitempty,oneof=none bearer header"`
	AuthToken  string     `json:"auth_token,omitempty" db:"auth_token"`
	AuthHeader string     `json:"auth_header,omitempty" db:"auth_header" validate:"required_if=AuthMethod header"`

	TimeoutMs int `json:"timeout_ms" db:"timeout_ms" validate:"gte=0"`

	// MinBid / MaxBid bound acceptable bids; zero disables the bound.
	MinBid   float64 `json:"min_bid" db:"min_bid" validate:"gte=0"`
	MaxBid   float64 `json:"max_bid" db:"max_bid" validate:"gte=0"`
	Currency string  `json:"currency,omitempty" db:"currency"`

	Active bool `json:"is_active" db:"is_active"`
}

// Timeout returns the per-request timeout, never zero.
func (t BidTarget) Timeout() time.Duration {
	if t.TimeoutMs <= 0 {
		return DefaultTimeout
	}
	return time.Duration(t.TimeoutMs) * time.Millisecond
}

// HTTPMethod returns the upper-cased configured method, POST when unset.
func (t BidTarget) HTTPMethod() string {
	m := strings.ToUpper(strings.TrimSpace(t.Method))
	if m == "" {
		return "POST"
	}
	return m
}

// Assignment links a campaign to a target.
type Assignment struct {
	CampaignID string    `json:"campaign_id" db:"campaign_id"`
	Target     BidTarget `json:"target"`

	Weight   int  `json:"weight" db:"weight"`
	Priority int  `json:"priority" db:"priority"`
	Active   bool `json:"is_active" db:"is_active"`
}

// Eligible reports whether both the assignment and its target are active.
func (a Assignment) Eligible() bool {
	return a.Active && a.Target.Active
}

// EligibleTargets keeps eligible assignments and returns their targets in input order.
// A target assigned more than once appears only at its first position.
func EligibleTargets(as []Assignment) []BidTarget {
	eligible := lo.FilterMap(as, func(a Assignment, _ int) (BidTarget, bool) {
		return a.Target, a.Eligible()
	})
	return lo.UniqBy(eligible, func(t BidTarget) string { return t.ID })
}

// CampaignRef identifies the campaign that owns a dialed tracking number.
type CampaignRef struct {
	AccountID  string `json:"account_id"`
	CampaignID string `json:"campaign_id"`
}
