package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"callcenter-pro/internal/auctionlog"
	"callcenter-pro/internal/auth"
	"callcenter-pro/internal/calls"
	"callcenter-pro/internal/rtb"
	"callcenter-pro/internal/rtb/harness"
	"callcenter-pro/internal/targets"
	"callcenter-pro/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Auctioneer runs live auctions; *rtb.Coordinator implements it.
type Auctioneer interface {
	Run(ctx context.Context, req rtb.AuctionRequest) (rtb.AuctionResult, error)
}

// Tester fires test traffic at targets; *harness.Harness implements it.
type Tester interface {
	TestTarget(ctx context.Context, accountID, targetID string, overrides calls.Context) (harness.TargetTest, error)
	TestCampaign(ctx context.Context, accountID, campaignID string, overrides calls.Context) (harness.CampaignTest, error)
}

// RecordStore is the slice of *auctionlog.Service the API needs.
type RecordStore interface {
	Append(ctx context.Context, r auctionlog.Record) (auctionlog.Record, error)
	TargetHealth(ctx context.Context, req auctionlog.HealthRequest) (auctionlog.HealthReport, error)
}

// CacheInvalidator drops cached campaign target lists; *targets.CachedSource implements it.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, accountID, campaignID string) error
}

// DefaultHealthWindow is used when a target health request omits "from".
const DefaultHealthWindow = 24 * time.Hour

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse input, call internal services, return JSON.
type Handlers struct {
	Auctions Auctioneer
	Tests    Tester
	Records  RecordStore
	Cache    CacheInvalidator

	Now func() time.Time
}

// --- Auctions ---

// RunAuction runs a live auction for the campaign. The body is an optional call context.
func (h Handlers) RunAuction(c *gin.Context) {
	accountID, ok := account(c)
	if !ok {
		return
	}
	if h.Auctions == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auctions not configured"})
		return
	}
	campaignID := c.Param("campaign_id")

	var cc calls.Context
	if err := bindOptional(c, &cc); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	cc = cc.Merge(calls.Context{CampaignID: campaignID, CallerAreaCode: calls.AreaCodeFromNumber(cc.CallerID)})

	res, err := h.Auctions.Run(c.Request.Context(), rtb.AuctionRequest{AccountID: accountID, CampaignID: campaignID, Call: cc})
	if err != nil {
		abortWithError(c, err)
		return
	}
	if h.Records != nil {
		if _, err := h.Records.Append(c.Request.Context(), auctionlog.FromResult(res, cc.InboundCallID)); err != nil {
			logger.FromGin(c).Warn("auction record append failed", "auction_id", res.AuctionID, "err", err)
		}
	}
	c.JSON(http.StatusOK, res)
}

// --- Test harness ---

func (h Handlers) TestTarget(c *gin.Context) {
	accountID, ok := account(c)
	if !ok {
		return
	}
	if h.Tests == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "harness not configured"})
		return
	}
	var cc calls.Context
	if err := bindOptional(c, &cc); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	res, err := h.Tests.TestTarget(c.Request.Context(), accountID, c.Param("target_id"), cc)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h Handlers) TestCampaign(c *gin.Context) {
	accountID, ok := account(c)
	if !ok {
		return
	}
	if h.Tests == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "harness not configured"})
		return
	}
	var cc calls.Context
	if err := bindOptional(c, &cc); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	res, err := h.Tests.TestCampaign(c.Request.Context(), accountID, c.Param("campaign_id"), cc)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// --- Reporting ---

// TargetHealth reports per-target outcomes. Query: from, to (RFC3339). Defaults to the last 24h.
func (h Handlers) TargetHealth(c *gin.Context) {
	accountID, ok := account(c)
	if !ok {
		return
	}
	if h.Records == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "records not configured"})
		return
	}

	now := time.Now
	if h.Now != nil {
		now = h.Now
	}
	to, err := parseTime(c.Query("to"), now())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "to must be RFC3339"})
		return
	}
	from, err := parseTime(c.Query("from"), to.Add(-DefaultHealthWindow))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "from must be RFC3339"})
		return
	}

	rep, err := h.Records.TargetHealth(c.Request.Context(), auctionlog.HealthRequest{
		AccountID:  accountID,
		CampaignID: c.Param("campaign_id"),
		Range:      auctionlog.TimeRange{From: from, To: to},
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

// InvalidateTargetCache forces the next auction to reload the campaign's targets.
func (h Handlers) InvalidateTargetCache(c *gin.Context) {
	accountID, ok := account(c)
	if !ok {
		return
	}
	if h.Cache != nil {
		if err := h.Cache.Invalidate(c.Request.Context(), accountID, c.Param("campaign_id")); err != nil {
			abortWithError(c, err)
			return
		}
	}
	c.Status(http.StatusNoContent)
}

func account(c *gin.Context) (string, bool) {
	id, err := auth.AccountID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "account_id required"})
		return "", false
	}
	return id, true
}

// bindOptional decodes a JSON body when one is present.
func bindOptional(c *gin.Context, v any) error {
	if err := c.ShouldBindJSON(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func parseTime(v string, fallback time.Time) (time.Time, error) {
	if v == "" {
		return fallback, nil
	}
	return time.Parse(time.RFC3339, v)
}

func abortWithError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.FromGin(c).Error("request failed", "err", err)
		c.AbortWithStatusJSON(status, gin.H{"error": "internal error"})
		return
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, targets.ErrNotFound), errors.Is(err, harness.ErrTargetNotFound):
		return http.StatusNotFound
	case errors.Is(err, harness.ErrNoActiveTargets):
		return http.StatusUnprocessableEntity
	case errors.Is(err, rtb.ErrInvalidRequest),
		errors.Is(err, auctionlog.ErrInvalidRequest),
		errors.Is(err, targets.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
