package calls

// Context holds the attributes of an inbound call that are available at auction time.
//
// It is a value type: callers build it once per auction and stages receive copies.
// Zero values mean "not provided"; the template engine substitutes defaults.
type Context struct {
	// InboundCallID is the provider/internal call identifier, if one exists yet.
	InboundCallID string `json:"inbound_call_id,omitempty"`

	CallerID       string `json:"caller_id,omitempty"`
	CallerState    string `json:"caller_state,omitempty"`
	CallerZip      string `json:"caller_zip,omitempty"`
	CallerAreaCode string `json:"caller_area_code,omitempty"`

	PublisherID    string `json:"publisher_id,omitempty"`
	PublisherSubID string `json:"publisher_sub_id,omitempty"`

	CampaignID string `json:"campaign_id,omitempty"`

	// InboundNumber is the tracking number the caller dialed (E.164 where possible).
	InboundNumber string `json:"inbound_number,omitempty"`

	// MinBid and MaxBid are the requested bid bounds forwarded to buyers. Nil means unset.
	MinBid   *float64 `json:"min_bid,omitempty" binding:"omitempty,gt=0"`
	MaxBid   *float64 `json:"max_bid,omitempty" binding:"omitempty,gt=0"`
	Currency string   `json:"currency,omitempty" binding:"omitempty,len=3,alpha"`

	// Tags are arbitrary key/value pairs attached by the publisher or IVR.
	Tags map[string]string `json:"tags,omitempty"`
}

// Merge returns c with every empty field filled from fallback.
// Tags are merged key by key, c winning on conflicts.
func (c Context) Merge(fallback Context) Context {
	out := c
	if out.InboundCallID == "" {
		out.InboundCallID = fallback.InboundCallID
	}
	if out.CallerID == "" {
		out.CallerID = fallback.CallerID
	}
	if out.CallerState == "" {
		out.CallerState = fallback.CallerState
	}
	if out.CallerZip == "" {
		out.CallerZip = fallback.CallerZip
	}
	if out.CallerAreaCode == "" {
		out.CallerAreaCode = fallback.CallerAreaCode
	}
	if out.PublisherID == "" {
		out.PublisherID = fallback.PublisherID
	}
	if out.PublisherSubID == "" {
		out.PublisherSubID = fallback.PublisherSubID
	}
	if out.CampaignID == "" {
		out.CampaignID = fallback.CampaignID
	}
	if out.InboundNumber == "" {
		out.InboundNumber = fallback.InboundNumber
	}
	if out.MinBid == nil {
		out.MinBid = fallback.MinBid
	}
	if out.MaxBid == nil {
		out.MaxBid = fallback.MaxBid
	}
	if out.Currency == "" {
		out.Currency = fallback.Currency
	}
	if len(fallback.Tags) > 0 {
		tags := make(map[string]string, len(c.Tags)+len(fallback.Tags))
		for k, v := range fallback.Tags {
			tags[k] = v
		}
		for k, v := range c.Tags {
			tags[k] = v
		}
		out.Tags = tags
	}
	return out
}

// AreaCodeFromNumber derives a North American area code from an E.164 or 10/11 digit number.
// Returns "" when the number does not look like a NANP number.
func AreaCodeFromNumber(number string) string {
	digits := make([]byte, 0, len(number))
	for i := 0; i < len(number); i++ {
		if number[i] >= '0' && number[i] <= '9' {
			digits = append(digits, number[i])
		}
	}
	switch {
	case len(digits) == 11 && digits[0] == '1':
		return string(digits[1:4])
	case len(digits) == 10:
		return string(digits[0:3])
	default:
		return ""
	}
}
