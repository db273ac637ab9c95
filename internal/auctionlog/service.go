package auctionlog

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidRecord  = errors.New("auctionlog: invalid record")
	ErrInvalidRequest = errors.New("auctionlog: invalid request")
)

// Repository is the persistence contract for auction records.
//
// It MUST be append-only. Reads must filter by account_id.
type Repository interface {
	Append(ctx context.Context, r Record) error
	ListRecords(ctx context.Context, accountID, campaignID string, from, to time.Time) ([]Record, error)
}

// Publisher forwards stored records to downstream consumers (billing, analytics).
type Publisher interface {
	Publish(ctx context.Context, r Record) error
}

type Service struct {
	repo      Repository
	publisher Publisher
	clock     func() time.Time
	log       *slog.Logger
}

// NewService wires the log. publisher may be nil.
func NewService(repo Repository, publisher Publisher, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{repo: repo, publisher: publisher, clock: time.Now, log: log}
}

// Append stores r and then publishes it. A publish failure is logged, not returned:
// the record is already durable.
func (s *Service) Append(ctx context.Context, r Record) (Record, error) {
	if s.repo == nil {
		return Record{}, errors.New("auctionlog: repository not configured")
	}
	if r.AccountID == "" || r.AuctionID == "" || r.CampaignID == "" || r.Outcome == "" {
		return Record{}, ErrInvalidRecord
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.clock().UTC()
	}
	if err := s.repo.Append(ctx, r); err != nil {
		return Record{}, err
	}
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, r); err != nil {
			s.log.Warn("auction record publish failed", "auction_id", r.AuctionID, "err", err)
		}
	}
	return r, nil
}

// TargetHealth aggregates per-target outcomes over the requested range.
// Targets are ordered by request count, then id.
func (s *Service) TargetHealth(ctx context.Context, req HealthRequest) (HealthReport, error) {
	if req.AccountID == "" || req.CampaignID == "" {
		return HealthReport{}, ErrInvalidRequest
	}
	if req.Range.From.IsZero() || req.Range.To.IsZero() || !req.Range.To.After(req.Range.From) {
		return HealthReport{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return HealthReport{}, errors.New("auctionlog: repository not configured")
	}

	recs, err := s.repo.ListRecords(ctx, req.AccountID, req.CampaignID, req.Range.From, req.Range.To)
	if err != nil {
		return HealthReport{}, err
	}

	byTarget := map[string]*TargetHealth{}
	totalMs := map[string]int64{}
	for _, rec := range recs {
		for _, b := range rec.Bids {
			h, ok := byTarget[b.TargetID]
			if !ok {
				h = &TargetHealth{TargetID: b.TargetID}
				byTarget[b.TargetID] = h
			}
			if b.TargetName != "" {
				h.TargetName = b.TargetName
			}
			h.Requests++
			totalMs[b.TargetID] += b.ResponseTimeMs
			if b.Success {
				h.Successful++
			}
			if b.TimedOut {
				h.Timeouts++
			}
			if b.IsValid {
				h.ValidBids++
			}
			if b.Won {
				h.Wins++
			}
		}
	}

	out := HealthReport{AccountID: req.AccountID, CampaignID: req.CampaignID, Range: req.Range, Auctions: len(recs)}
	for id, h := range byTarget {
		n := float64(h.Requests)
		h.AverageResponseMs = totalMs[id] / int64(h.Requests)
		h.ResponseRate = float64(h.Successful) / n
		h.TimeoutRate = float64(h.Timeouts) / n
		h.ValidBidRate = float64(h.ValidBids) / n
		h.WinRate = float64(h.Wins) / n
		out.Targets = append(out.Targets, *h)
	}
	sort.Slice(out.Targets, func(i, j int) bool {
		if out.Targets[i].Requests != out.Targets[j].Requests {
			return out.Targets[i].Requests > out.Targets[j].Requests
		}
		return out.Targets[i].TargetID < out.Targets[j].TargetID
	})
	return out, nil
}
