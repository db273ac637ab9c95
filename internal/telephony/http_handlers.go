package telephony

import (
	"errors"
	"net/http"
	"time"

	"callcenter-pro/internal/targets"
	"callcenter-pro/pkg/logger"

	"github.com/gin-gonic/gin"
)

// TwilioWebhookHandler converts the Twilio webhook to internal types,
// delegates the decision to the provider and writes TwiML.
//
// Tenant scoping: the dialed number decides the account and campaign; nothing in the
// webhook body is trusted for that.
type TwilioWebhookHandler struct {
	Provider Provider
	Numbers  targets.NumberResolver

	Now func() time.Time
}

func (h TwilioWebhookHandler) HandleInboundCall(c *gin.Context) {
	log := logger.FromGin(c)

	if h.Now == nil {
		h.Now = time.Now
	}
	if h.Provider == nil || h.Numbers == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "telephony not configured"})
		return
	}

	form, err := ParseTwilioInboundCall(c.Request)
	if err != nil {
		log.Warn("twilio webhook parse failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
		return
	}

	ref, err := h.Numbers.CampaignForNumber(c.Request.Context(), form.To)
	if err != nil {
		if errors.Is(err, targets.ErrNotFound) || errors.Is(err, targets.ErrInvalidArgument) {
			log.Warn("unknown dialed number", "to", form.To)
			writeTwiML(c, InboundCallResult{Action: InboundCallActionReject})
			return
		}
		log.Error("number lookup failed", "to", form.To, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}

	in := form.ToInboundCallRequest(ref.AccountID, ref.CampaignID, h.Now())
	res, err := h.Provider.HandleInboundCall(c.Request.Context(), in)
	if err != nil {
		// The caller is on the line; reject cleanly rather than let Twilio play an error.
		log.Error("inbound call routing failed", "call_sid", form.CallSid, "err", err)
		res = InboundCallResult{AccountID: ref.AccountID, Action: InboundCallActionReject}
	}
	writeTwiML(c, res)
}

func writeTwiML(c *gin.Context, res InboundCallResult) {
	twiml, err := RenderTwiML(res)
	if err != nil {
		logger.FromGin(c).Error("twiml render failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "twiml failed"})
		return
	}
	c.Header("Content-Type", "application/xml")
	c.String(http.StatusOK, twiml)
}
