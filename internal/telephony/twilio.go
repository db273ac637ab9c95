package telephony

import (
	"context"
	"errors"
)

// TwilioProvider hands Twilio voice webhooks to the router. Twilio REST calls
// (numbers, recordings) belong to the CRUD side of the platform, not here.
type TwilioProvider struct {
	router Router
}

func NewTwilioProvider(router Router) *TwilioProvider {
	return &TwilioProvider{router: router}
}

func (p *TwilioProvider) Name() string { return "twilio" }

func (p *TwilioProvider) HealthCheck(ctx context.Context) error {
	if p.router == nil {
		return errors.New("telephony: twilio router is nil")
	}
	return nil
}

func (p *TwilioProvider) HandleInboundCall(ctx context.Context, req InboundCallRequest) (InboundCallResult, error) {
	if p.router == nil {
		return InboundCallResult{}, errors.New("telephony: twilio router is nil")
	}
	if req.AccountID == "" {
		return InboundCallResult{}, errors.New("telephony: account_id required")
	}
	return p.router.RouteInboundCall(ctx, req)
}
