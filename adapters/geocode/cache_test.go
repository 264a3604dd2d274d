package geocode

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/panoguide/domain/entities"
	"github.com/satriahrh/panoguide/domain/repositories"
	"github.com/satriahrh/panoguide/internal/metrics"
)

type countingGeocoder struct {
	places map[string]entities.LatLng
	calls  int
	err    error
}

func (c *countingGeocoder) Geocode(ctx context.Context, query string) (entities.LatLng, error) {
	c.calls++
	if c.err != nil {
		return entities.LatLng{}, c.err
	}
	p, ok := c.places[query]
	if !ok {
		return entities.LatLng{}, repositories.ErrNotFound
	}
	return p, nil
}

func setupCache(t *testing.T, next repositories.Geocoder, ttl time.Duration) (*CachedGeocoder, *miniredis.Miniredis, *metrics.Metrics) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	m := metrics.New()
	return NewCachedGeocoder(next, client, ttl, m, zaptest.NewLogger(t)), mr, m
}

func TestCachedGeocoderHit(t *testing.T) {
	next := &countingGeocoder{places: map[string]entities.LatLng{
		"Colosseum": {Lat: 41.8902, Lng: 12.4922},
	}}
	cache, _, m := setupCache(t, next, time.Hour)
	ctx := context.Background()

	first, err := cache.Geocode(ctx, "Colosseum")
	if err != nil {
		t.Fatal(err)
	}
	second, err := cache.Geocode(ctx, "  colosseum ")
	if err != nil {
		t.Fatal(err)
	}

	if first != second {
		t.Errorf("cached result %+v differs from %+v", second, first)
	}
	if next.calls != 1 {
		t.Errorf("underlying calls = %d, want 1", next.calls)
	}
	if got := testutil.ToFloat64(m.GeocodeCacheTotal.WithLabelValues("hit")); got != 1 {
		t.Errorf("hits = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.GeocodeCacheTotal.WithLabelValues("miss")); got != 1 {
		t.Errorf("misses = %v, want 1", got)
	}
}

func TestCachedGeocoderExpires(t *testing.T) {
	next := &countingGeocoder{places: map[string]entities.LatLng{"Louvre": {Lat: 48.8606, Lng: 2.3376}}}
	cache, mr, _ := setupCache(t, next, time.Minute)
	ctx := context.Background()

	if _, err := cache.Geocode(ctx, "Louvre"); err != nil {
		t.Fatal(err)
	}
	if ttl := mr.TTL(cacheKey("Louvre")); ttl != time.Minute {
		t.Errorf("TTL = %v, want 1m", ttl)
	}

	mr.FastForward(2 * time.Minute)
	if _, err := cache.Geocode(ctx, "Louvre"); err != nil {
		t.Fatal(err)
	}
	if next.calls != 2 {
		t.Errorf("underlying calls = %d, want 2 after expiry", next.calls)
	}
}

func TestCachedGeocoderCachesUnknownPlaces(t *testing.T) {
	next := &countingGeocoder{}
	cache, mr, _ := setupCache(t, next, 24*time.Hour)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := cache.Geocode(ctx, "Atlantis"); !errors.Is(err, repositories.ErrNotFound) {
			t.Fatalf("Geocode() error = %v, want ErrNotFound", err)
		}
	}
	if next.calls != 1 {
		t.Errorf("underlying calls = %d, want 1", next.calls)
	}
	if ttl := mr.TTL(cacheKey("Atlantis")); ttl != negativeTTL {
		t.Errorf("negative TTL = %v, want %v", ttl, negativeTTL)
	}
}

func TestCachedGeocoderDoesNotCacheFailures(t *testing.T) {
	next := &countingGeocoder{err: errors.New("quota exceeded")}
	cache, mr, _ := setupCache(t, next, time.Hour)

	if _, err := cache.Geocode(context.Background(), "Rome"); err == nil {
		t.Fatal("expected error")
	}
	if mr.Exists(cacheKey("Rome")) {
		t.Error("transient failures must not be cached")
	}
}

func TestCachedGeocoderRedisDown(t *testing.T) {
	next := &countingGeocoder{places: map[string]entities.LatLng{"Rome": {Lat: 41.9, Lng: 12.5}}}
	cache, mr, m := setupCache(t, next, time.Hour)
	mr.Close()

	got, err := cache.Geocode(context.Background(), "Rome")
	if err != nil {
		t.Fatalf("Geocode() should fall through to the geocoder: %v", err)
	}
	if got.Lat != 41.9 {
		t.Errorf("Geocode() = %+v", got)
	}
	if v := testutil.ToFloat64(m.GeocodeCacheTotal.WithLabelValues("error")); v != 1 {
		t.Errorf("errors = %v, want 1", v)
	}
}

func TestCacheKey(t *testing.T) {
	if cacheKey("  Eiffel   TOWER ") != cacheKey("eiffel tower") {
		t.Error("equivalent queries should share a key")
	}
}
