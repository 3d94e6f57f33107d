package geo

import (
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Sampler produces the spatial keys whose buckets must be scanned to find
// candidate records around a query center.
type Sampler interface {
	CandidateKeys(center Point, radiusMeters float64) ([]string, error)
}

// cardinalBearings are the 8 compass bearings probed at the query radius.
var cardinalBearings = [...]float64{0, 45, 90, 135, 180, 225, 270, 315}

// CardinalSampler approximates the query disc with the center cell plus the
// cells of 8 points placed on the radius at the cardinal and diagonal
// bearings. Records whose cell is none of those (at most 9) keys are not
// found even when they lie inside the radius.
type CardinalSampler struct {
	Precision int
}

// NewCardinalSampler returns a CardinalSampler using the given key precision.
func NewCardinalSampler(precision int) *CardinalSampler {
	return &CardinalSampler{Precision: precision}
}

var _ Sampler = (*CardinalSampler)(nil)

// CandidateKeys returns the de-duplicated keys in probe order, center first.
func (s *CardinalSampler) CandidateKeys(center Point, radiusMeters float64) ([]string, error) {
	centerKey, err := SpatialKey(center.Latitude, center.Longitude, s.Precision)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(cardinalBearings)+1)
	seen := make(map[string]struct{}, len(cardinalBearings)+1)
	keys = append(keys, centerKey)
	seen[centerKey] = struct{}{}

	if radiusMeters <= 0 {
		return keys, nil
	}

	for _, bearing := range cardinalBearings {
		p := Destination(center, radiusMeters, bearing)
		key, err := SpatialKey(p.Latitude, p.Longitude, s.Precision)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	return keys, nil
}

// CachedSampler memoizes another sampler's key sets. The key set is a pure
// function of (center, radius), so entries never go stale; the TTL only
// bounds memory held for one-off queries.
type CachedSampler struct {
	next  Sampler
	cache *expirable.LRU[string, []string]
}

// NewCachedSampler wraps next with an LRU of maxSize entries kept for ttl.
func NewCachedSampler(next Sampler, maxSize int, ttl time.Duration) *CachedSampler {
	return &CachedSampler{
		next:  next,
		cache: expirable.NewLRU[string, []string](maxSize, nil, ttl),
	}
}

var _ Sampler = (*CachedSampler)(nil)

func (c *CachedSampler) CandidateKeys(center Point, radiusMeters float64) ([]string, error) {
	k := fmt.Sprintf("%v|%v|%v", center.Latitude, center.Longitude, radiusMeters)
	if keys, ok := c.cache.Get(k); ok {
		return append([]string(nil), keys...), nil
	}

	keys, err := c.next.CandidateKeys(center, radiusMeters)
	if err != nil {
		return nil, err
	}
	c.cache.Add(k, keys)
	return append([]string(nil), keys...), nil
}

// Len returns the number of memoized key sets.
func (c *CachedSampler) Len() int {
	return c.cache.Len()
}
