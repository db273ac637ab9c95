package telephony

import (
	"context"
	"time"
)

// Provider is the provider-agnostic surface the HTTP layer talks to.
//
// Rules:
// - No provider SDK calls outside telephony adapters.
// - All requests must be account-scoped (account_id required).
type Provider interface {
	Name() string
	HealthCheck(ctx context.Context) error
	HandleInboundCall(ctx context.Context, req InboundCallRequest) (InboundCallResult, error)
}

// Router decides what happens to an inbound call. internal/routing implements it by
// running an RTB auction; telephony never imports routing.
type Router interface {
	RouteInboundCall(ctx context.Context, req InboundCallRequest) (InboundCallResult, error)
}

// InboundCallRequest represents an inbound call event received from a provider.
type InboundCallRequest struct {
	AccountID  string `json:"account_id"`
	CampaignID string `json:"campaign_id"`

	// ProviderCallID is the provider's unique identifier for this call.
	ProviderCallID string `json:"provider_call_id"`

	// From and To are E.164 where possible.
	From string `json:"from"`
	To   string `json:"to"`

	// Caller geography as reported by the carrier; may be empty.
	CallerCity  string `json:"caller_city,omitempty"`
	CallerState string `json:"caller_state,omitempty"`
	CallerZip   string `json:"caller_zip,omitempty"`

	OccurredAt time.Time `json:"occurred_at"`

	// RawPayload is optional for debugging; stored as a JSON string.
	RawPayload string `json:"raw_payload,omitempty"`
}

// InboundCallResult tells the provider adapter what to do next.
type InboundCallResult struct {
	AccountID string `json:"account_id"`
	AuctionID string `json:"auction_id,omitempty"`

	Action InboundCallAction `json:"action"`

	// ConnectTo is used when Action == "connect".
	ConnectTo string `json:"connect_to,omitempty"`
	// CallerID is presented to the buyer; defaults to the original caller.
	CallerID string `json:"caller_id,omitempty"`
	// RingTimeout bounds how long the buyer's line may ring; zero uses the provider default.
	RingTimeout time.Duration `json:"ring_timeout,omitempty"`
}

type InboundCallAction string

const (
	InboundCallActionReject  InboundCallAction = "reject"
	InboundCallActionConnect InboundCallAction = "connect"
	InboundCallActionHangup  InboundCallAction = "hangup"
)
