package telephony

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

// TwilioInboundForm captures the voice webhook fields the auction uses.
// Twilio sends application/x-www-form-urlencoded by default.
// Ref: https://www.twilio.com/docs/usage/webhooks/voice-webhooks
type TwilioInboundForm struct {
	CallSid     string
	AccountSid  string
	From        string
	To          string
	Direction   string
	CallStatus  string
	CallerName  string
	FromCity    string
	FromState   string
	FromZip     string
	FromCountry string
	// ForwardedFrom is set when a carrier forwarded the call to our tracking number.
	ForwardedFrom string
}

func ParseTwilioInboundCall(r *http.Request) (TwilioInboundForm, error) {
	if err := r.ParseForm(); err != nil {
		return TwilioInboundForm{}, err
	}
	return TwilioInboundForm{
		CallSid:       r.PostFormValue("CallSid"),
		AccountSid:    r.PostFormValue("AccountSid"),
		From:          normalizePhone(r.PostFormValue("From")),
		To:            normalizePhone(r.PostFormValue("To")),
		Direction:     r.PostFormValue("Direction"),
		CallStatus:    r.PostFormValue("CallStatus"),
		CallerName:    r.PostFormValue("CallerName"),
		FromCity:      strings.TrimSpace(r.PostFormValue("FromCity")),
		FromState:     strings.ToUpper(strings.TrimSpace(r.PostFormValue("FromState"))),
		FromZip:       strings.TrimSpace(r.PostFormValue("FromZip")),
		FromCountry:   r.PostFormValue("FromCountry"),
		ForwardedFrom: normalizePhone(r.PostFormValue("ForwardedFrom")),
	}, nil
}

// normalizePhone trims the value. Anonymous callers arrive as "anonymous" or
// "+266696687"; both are passed through and handled by macro defaults.
func normalizePhone(s string) string {
	return strings.TrimSpace(s)
}

func (f TwilioInboundForm) ToInboundCallRequest(accountID, campaignID string, occurredAt time.Time) InboundCallRequest {
	raw, _ := json.Marshal(f)
	return InboundCallRequest{
		AccountID:      accountID,
		CampaignID:     campaignID,
		ProviderCallID: f.CallSid,
		From:           f.From,
		To:             f.To,
		CallerCity:     f.FromCity,
		CallerState:    f.FromState,
		CallerZip:      f.FromZip,
		OccurredAt:     occurredAt,
		RawPayload:     string(raw),
	}
}
