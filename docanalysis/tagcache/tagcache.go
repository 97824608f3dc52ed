// Package tagcache caches tag lookups in front of a docanalysis.TagService.
package tagcache

import (
	"context"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/ledgerdocs/procflow/docanalysis"
	"github.com/ledgerdocs/procflow/internal/metrickeys"
	"github.com/ledgerdocs/procflow/metrics"
)

type Service struct {
	next docanalysis.TagService
	mc   metrics.Client
	c    *ttlcache.Cache[string, docanalysis.Tag]
}

var _ docanalysis.TagService = (*Service)(nil)

// New wraps next. Tags are cached per tenant and case-insensitive name for ttl, at most capacity of them.
func New(next docanalysis.TagService, mc metrics.Client, ttl time.Duration, capacity int) *Service {
	c := ttlcache.New(
		ttlcache.WithCapacity[string, docanalysis.Tag](uint64(capacity)),
		ttlcache.WithTTL[string, docanalysis.Tag](ttl),
	)

	c.OnEviction(func(ctx context.Context, er ttlcache.EvictionReason, i *ttlcache.Item[string, docanalysis.Tag]) {
		reason := ""
		switch er {
		case ttlcache.EvictionReasonExpired:
			reason = "expired"
		case ttlcache.EvictionReasonCapacityReached:
			reason = "capacity"
		}

		mc.Counter(metrickeys.TagCacheEviction, metrics.Tags{metrickeys.EvictionReason: reason}, 1)
	})

	return &Service{
		next: next,
		mc:   mc,
		c:    c,
	}
}

func key(tenantID, name string) string {
	return tenantID + "/" + strings.ToLower(strings.TrimSpace(name))
}

// FindOrCreate returns the tags for names in order, asking the wrapped service only for names not cached.
func (s *Service) FindOrCreate(ctx context.Context, tenantID string, names []string) ([]docanalysis.Tag, error) {
	var missing []string
	for _, n := range names {
		if s.c.Get(key(tenantID, n)) == nil {
			missing = append(missing, n)
		}
	}

	s.mc.Counter(metrickeys.TagCacheHit, metrics.Tags{}, int64(len(names)-len(missing)))
	s.mc.Counter(metrickeys.TagCacheMiss, metrics.Tags{}, int64(len(missing)))

	if len(missing) > 0 {
		tags, err := s.next.FindOrCreate(ctx, tenantID, missing)
		if err != nil {
			return nil, err
		}

		for _, t := range tags {
			s.c.Set(key(tenantID, t.Name), t, ttlcache.DefaultTTL)
		}

		s.mc.Gauge(metrickeys.TagCacheSize, metrics.Tags{}, int64(s.c.Len()))
	}

	r := make([]docanalysis.Tag, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		k := key(tenantID, n)
		if seen[k] {
			continue
		}
		seen[k] = true

		item := s.c.Get(k)
		if item == nil {
			// Evicted in the meantime, or the wrapped service returned it under a different name
			tags, err := s.next.FindOrCreate(ctx, tenantID, []string{n})
			if err != nil {
				return nil, err
			}

			r = append(r, tags...)
			continue
		}

		r = append(r, item.Value())
	}

	return r, nil
}

// Invalidate drops a cached tag, e.g. after it was renamed.
func (s *Service) Invalidate(tenantID, name string) {
	s.c.Delete(key(tenantID, name))
}

func (s *Service) Len() int {
	return s.c.Len()
}

// StartEviction removes expired entries in the background until ctx is done.
func (s *Service) StartEviction(ctx context.Context) {
	go s.c.Start()

	<-ctx.Done()

	s.c.Stop()
}
