package targets

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheKeyPrefix = "rtb:campaign_targets:"

// CachedSource caches campaign assignment lists in Redis for a short TTL.
//
// Configuration is read-only to the auction engine, so a stale entry only delays
// visibility of a CRUD change by at most TTL. Cache failures fall through to the
// underlying source and are never surfaced to callers.
//
// Auth tokens never leave the process: entries are written to Redis without them and
// refilled from tokens this instance has read from the underlying source. An entry naming
// a target whose token is not held locally is treated as a miss.
type CachedSource struct {
	next Source
	rdb  *redis.Client
	ttl  time.Duration
	log  *slog.Logger

	mu     sync.RWMutex
	tokens map[string]string
}

func NewCachedSource(next Source, rdb *redis.Client, ttl time.Duration, log *slog.Logger) *CachedSource {
	if log == nil {
		log = slog.Default()
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &CachedSource{next: next, rdb: rdb, ttl: ttl, log: log, tokens: map[string]string{}}
}

func cacheKey(accountID, campaignID string) string {
	return cacheKeyPrefix + accountID + ":" + campaignID
}

func (s *CachedSource) ListCampaignTargets(ctx context.Context, accountID, campaignID string) ([]Assignment, error) {
	if s.rdb == nil {
		return s.next.ListCampaignTargets(ctx, accountID, campaignID)
	}
	key := cacheKey(accountID, campaignID)

	raw, err := s.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var out []Assignment
		if err := json.Unmarshal(raw, &out); err != nil {
			s.log.Warn("target cache entry corrupt", "key", key)
		} else if s.restoreTokens(out) {
			return out, nil
		}
	case !errors.Is(err, redis.Nil):
		s.log.Warn("target cache read failed", "key", key, "err", err)
	}

	out, err := s.next.ListCampaignTargets(ctx, accountID, campaignID)
	if err != nil {
		return nil, err
	}
	s.rememberTokens(out)
	if b, err := json.Marshal(redactTokens(out)); err == nil {
		if err := s.rdb.Set(ctx, key, b, s.ttl).Err(); err != nil {
			s.log.Warn("target cache write failed", "key", key, "err", err)
		}
	}
	return out, nil
}

func needsToken(t BidTarget) bool {
	return t.AuthMethod == AuthBearer || t.AuthMethod == AuthHeader
}

// redactTokens returns a copy of as with every auth token cleared.
func redactTokens(as []Assignment) []Assignment {
	out := make([]Assignment, len(as))
	for i, a := range as {
		a.Target.AuthToken = ""
		out[i] = a
	}
	return out
}

func (s *CachedSource) rememberTokens(as []Assignment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range as {
		if needsToken(a.Target) {
			s.tokens[a.Target.ID] = a.Target.AuthToken
		}
	}
}

// restoreTokens fills tokens in place and reports whether every authenticated target had one.
func (s *CachedSource) restoreTokens(as []Assignment) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range as {
		if !needsToken(as[i].Target) {
			continue
		}
		tok, ok := s.tokens[as[i].Target.ID]
		if !ok {
			return false
		}
		as[i].Target.AuthToken = tok
	}
	return true
}

// GetTarget is not cached; it backs operator tooling where freshness matters more than latency.
func (s *CachedSource) GetTarget(ctx context.Context, accountID, targetID string) (BidTarget, error) {
	return s.next.GetTarget(ctx, accountID, targetID)
}

// Invalidate drops the cached assignment list for a campaign.
func (s *CachedSource) Invalidate(ctx context.Context, accountID, campaignID string) error {
	if s.rdb == nil {
		return nil
	}
	return s.rdb.Del(ctx, cacheKey(accountID, campaignID)).Err()
}
