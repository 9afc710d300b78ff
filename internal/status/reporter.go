// Package status aggregates recent content version writes for a content
// group so a client can show a transient "updating" indicator.
package status

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"funnelforge/internal/cache"
	"funnelforge/internal/domain"
)

const (
	// UpdateWindow bounds how far back a version write still counts as a
	// recent update.
	UpdateWindow = 2 * time.Minute
	cacheTTL     = 5 * time.Second
	cachePrefix  = "update-status:"
)

// Update is one recent version write.
type Update struct {
	ContentType string    `json:"content_type"`
	Version     int       `json:"version"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Summary is the polling payload for one content group.
type Summary struct {
	HasRecentUpdates bool     `json:"has_recent_updates"`
	Updates          []Update `json:"updates"`
}

// Reporter is a pure read/aggregate over the version store. Concurrent polls
// for the same group are collapsed through singleflight and a short TTL
// cache.
type Reporter struct {
	versions domain.VersionRepository
	cache    cache.Cache
	group    singleflight.Group
	logger   zerolog.Logger
	now      func() time.Time
}

func NewReporter(versions domain.VersionRepository, c cache.Cache, logger zerolog.Logger) *Reporter {
	return &Reporter{versions: versions, cache: c, logger: logger, now: time.Now}
}

// NewReporterWithClock is for tests that need deterministic windows.
func NewReporterWithClock(versions domain.VersionRepository, c cache.Cache, logger zerolog.Logger, now func() time.Time) *Reporter {
	return &Reporter{versions: versions, cache: c, logger: logger, now: now}
}

// UpdateStatus reports the group's version writes within the recency window.
func (r *Reporter) UpdateStatus(ctx context.Context, groupID string) (Summary, error) {
	key := cachePrefix + groupID
	if r.cache != nil {
		if raw, ok := r.cache.Get(ctx, key); ok {
			var s Summary
			if err := json.Unmarshal(raw, &s); err == nil {
				return s, nil
			}
		}
	}
	val, err, _ := r.group.Do(key, func() (any, error) {
		s, err := r.compute(ctx, groupID)
		if err != nil {
			return nil, err
		}
		if r.cache != nil {
			if raw, err := json.Marshal(s); err == nil {
				r.cache.Set(ctx, key, raw, cacheTTL)
			}
		}
		return s, nil
	})
	if err != nil {
		return Summary{}, err
	}
	return val.(Summary), nil
}

func (r *Reporter) compute(ctx context.Context, groupID string) (Summary, error) {
	since := r.now().Add(-UpdateWindow)
	versions, err := r.versions.RecentUpdates(ctx, groupID, since)
	if err != nil {
		return Summary{}, err
	}
	s := Summary{Updates: make([]Update, 0, len(versions))}
	for _, v := range versions {
		s.Updates = append(s.Updates, Update{
			ContentType: string(v.ContentType),
			Version:     v.Version,
			UpdatedAt:   v.UpdatedAt,
		})
	}
	s.HasRecentUpdates = len(s.Updates) > 0
	return s, nil
}
