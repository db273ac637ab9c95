package routing

// Decision is the provider-agnostic output of auction routing.
//
// It carries only what the provider adapter boundary (e.g. the TwiML builder) needs to
// execute the decision, plus the auction id for correlation.
type Decision struct {
	AccountID  string `json:"account_id"`
	CampaignID string `json:"campaign_id,omitempty"`
	AuctionID  string `json:"auction_id,omitempty"`

	Action    Action `json:"action"`
	ConnectTo string `json:"connect_to,omitempty"`

	// WinningBid is the accepted price when Action is connect.
	WinningBid float64 `json:"winning_bid,omitempty"`

	// Reason is intended for internal logs/metrics.
	Reason string `json:"reason,omitempty"`
}

type Action string

const (
	ActionReject  Action = "reject"
	ActionConnect Action = "connect"
	ActionHangup  Action = "hangup"
)

// Reasons.
const (
	ReasonWinner          = "winner_selected"
	ReasonNoValidBids     = "no_valid_bids"
	ReasonNoActiveTargets = "no_active_targets"
	ReasonNoDestination   = "winner_without_destination"
	ReasonCampaignMissing = "campaign_id_required"
)
