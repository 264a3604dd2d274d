package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/satriahrh/panoguide/domain/entities"
	"github.com/satriahrh/panoguide/domain/repositories"
	"github.com/satriahrh/panoguide/internal/metrics"
)

const (
	keyPrefix   = "panoguide:geocode:"
	negativeTTL = 10 * time.Minute
)

type cachedLocation struct {
	Found bool    `json:"found"`
	Lat   float64 `json:"lat,omitempty"`
	Lng   float64 `json:"lng,omitempty"`
}

// CachedGeocoder stores geocoding results in Redis. Unknown places are cached
// for a shorter time. Redis failures fall through to the wrapped geocoder.
type CachedGeocoder struct {
	next    repositories.Geocoder
	client  redis.UniversalClient
	ttl     time.Duration
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewCachedGeocoder wraps next with a Redis cache.
func NewCachedGeocoder(next repositories.Geocoder, client redis.UniversalClient, ttl time.Duration, m *metrics.Metrics, logger *zap.Logger) *CachedGeocoder {
	return &CachedGeocoder{
		next:    next,
		client:  client,
		ttl:     ttl,
		metrics: m,
		logger:  logger,
	}
}

// cacheKey normalizes case and whitespace so equivalent queries share a key.
func cacheKey(query string) string {
	return keyPrefix + strings.Join(strings.Fields(strings.ToLower(query)), " ")
}

// Geocode serves from the cache when possible.
func (c *CachedGeocoder) Geocode(ctx context.Context, query string) (entities.LatLng, error) {
	key := cacheKey(query)

	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cached cachedLocation
		if jerr := json.Unmarshal(data, &cached); jerr == nil {
			c.metrics.RecordGeocodeCache("hit")
			if !cached.Found {
				return entities.LatLng{}, repositories.ErrNotFound
			}
			return entities.LatLng{Lat: cached.Lat, Lng: cached.Lng}, nil
		}
		c.logger.Warn("Discarding corrupt geocode cache entry", zap.String("key", key))
		c.metrics.RecordGeocodeCache("error")
	case errors.Is(err, redis.Nil):
		c.metrics.RecordGeocodeCache("miss")
	default:
		c.logger.Warn("Geocode cache unavailable", zap.Error(err))
		c.metrics.RecordGeocodeCache("error")
	}

	position, err := c.next.Geocode(ctx, query)
	switch {
	case err == nil:
		c.store(ctx, key, cachedLocation{Found: true, Lat: position.Lat, Lng: position.Lng}, c.ttl)
	case errors.Is(err, repositories.ErrNotFound):
		c.store(ctx, key, cachedLocation{Found: false}, min(c.ttl, negativeTTL))
	}
	return position, err
}

func (c *CachedGeocoder) store(ctx context.Context, key string, value cachedLocation, ttl time.Duration) {
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		c.logger.Warn("Failed to cache geocode result", zap.String("key", key), zap.Error(err))
	}
}
