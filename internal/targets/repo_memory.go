package targets

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepo is an in-memory configuration store for tests and local development.
// It enforces account isolation on reads.
type MemoryRepo struct {
	mu sync.RWMutex

	targets     map[string]BidTarget
	campaigns   map[string]string // campaign_id -> account_id
	assignments []memAssignment
	numbers     map[string]CampaignRef
}

type memAssignment struct {
	campaignID string
	targetID   string
	weight     int
	priority   int
	active     bool
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		targets:   map[string]BidTarget{},
		campaigns: map[string]string{},
		numbers:   map[string]CampaignRef{},
	}
}

// PutTarget stores (or replaces) a target after validating it.
func (r *MemoryRepo) PutTarget(t BidTarget) error {
	if err := t.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.targets[t.ID] = t
	return nil
}

// PutCampaign registers a campaign under an account.
func (r *MemoryRepo) PutCampaign(accountID, campaignID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.campaigns[campaignID] = accountID
}

// Assign links a target to a campaign. Assignments keep insertion order within a priority.
func (r *MemoryRepo) Assign(campaignID, targetID string, weight, priority int, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.targets[targetID]; !ok {
		return ErrNotFound
	}
	if _, ok := r.campaigns[campaignID]; !ok {
		return ErrNotFound
	}
	r.assignments = append(r.assignments, memAssignment{
		campaignID: campaignID,
		targetID:   targetID,
		weight:     weight,
		priority:   priority,
		active:     active,
	})
	return nil
}

// MapNumber routes a tracking number to a campaign.
func (r *MemoryRepo) MapNumber(number string, ref CampaignRef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.numbers[number] = ref
}

func (r *MemoryRepo) ListCampaignTargets(ctx context.Context, accountID, campaignID string) ([]Assignment, error) {
	if accountID == "" || campaignID == "" {
		return nil, ErrInvalidArgument
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	owner, ok := r.campaigns[campaignID]
	if !ok || owner != accountID {
		return nil, ErrNotFound
	}

	out := make([]Assignment, 0)
	for _, a := range r.assignments {
		if a.campaignID != campaignID {
			continue
		}
		t, ok := r.targets[a.targetID]
		if !ok || t.AccountID != accountID {
			continue
		}
		out = append(out, Assignment{
			CampaignID: a.campaignID,
			Target:     t,
			Weight:     a.weight,
			Priority:   a.priority,
			Active:     a.active,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out, nil
}

func (r *MemoryRepo) GetTarget(ctx context.Context, accountID, targetID string) (BidTarget, error) {
	if accountID == "" || targetID == "" {
		return BidTarget{}, ErrInvalidArgument
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.targets[targetID]
	if !ok || t.AccountID != accountID {
		return BidTarget{}, ErrNotFound
	}
	return t, nil
}

func (r *MemoryRepo) CampaignForNumber(ctx context.Context, number string) (CampaignRef, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ref, ok := r.numbers[number]
	if !ok {
		return CampaignRef{}, ErrNotFound
	}
	return ref, nil
}
