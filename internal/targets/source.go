package targets

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var (
	ErrNotFound        = errors.New("targets: not found")
	ErrInvalidArgument = errors.New("targets: invalid argument")
)

// Source is the read side of campaign/target configuration.
//
// Implementations must scope every lookup by account_id.
// ListCampaignTargets returns assignments in a stable order (priority, then assignment order);
// that order is the auction's dispatch order.
type Source interface {
	ListCampaignTargets(ctx context.Context, accountID, campaignID string) ([]Assignment, error)
	GetTarget(ctx context.Context, accountID, targetID string) (BidTarget, error)
}

// NumberResolver maps a dialed tracking number to its campaign.
type NumberResolver interface {
	CampaignForNumber(ctx context.Context, number string) (CampaignRef, error)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks a target's configuration before any request is sent to it.
func (t BidTarget) Validate() error {
	if err := validate.Struct(t); err != nil {
		return fmt.Errorf("targets: invalid target %q: %w", t.ID, err)
	}
	if t.MaxBid > 0 && t.MinBid > t.MaxBid {
		return fmt.Errorf("targets: invalid target %q: min_bid %.2f exceeds max_bid %.2f", t.ID, t.MinBid, t.MaxBid)
	}
	return nil
}
