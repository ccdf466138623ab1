package care

import (
	"context"
	"errors"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"github.com/xrayaid/xrayaid/internal/geo"
)

// ErrProvidersExhausted is returned when every provider in the chain failed.
// A chain where at least one provider answered — even with zero candidates —
// does not produce this error.
var ErrProvidersExhausted = errors.New("all care providers failed")

const (
	defaultCacheTTL = 5 * time.Minute

	// cacheCellDegrees rounds the origin so nearby requests share a cache
	// entry. Only raw provider output is cached; distances are recomputed per
	// request.
	cacheCellDegrees = 0.01
)

// Chain tries providers sequentially in priority order. Providers are never
// queried concurrently: first success with usable candidates wins, which
// keeps billing pressure off paid tiers and preserves quality ordering.
type Chain struct {
	providers []Provider
	cache     *gocache.Cache
	log       zerolog.Logger
}

func NewChain(providers []Provider, cacheTTL time.Duration, log zerolog.Logger) *Chain {
	if cacheTTL <= 0 {
		cacheTTL = defaultCacheTTL
	}
	return &Chain{
		providers: providers,
		cache:     gocache.New(cacheTTL, 2*cacheTTL),
		log:       log,
	}
}

// Search walks the fallback chain and returns the first non-empty candidate
// list along with the name of the provider that produced it. Individual
// provider failures are swallowed here and logged with the provider identity;
// only full exhaustion surfaces as an error.
func (c *Chain) Search(ctx context.Context, origin geo.Coordinate, radiusKm float64, hint string) ([]RawFacility, string, error) {
	if len(c.providers) == 0 {
		return nil, "", ErrProvidersExhausted
	}

	anyAnswered := false
	var attemptErrs []error

	for _, provider := range c.providers {
		key := cacheKey(provider.Name(), origin, radiusKm, hint)
		if cached, ok := c.cache.Get(key); ok {
			facilities := cached.([]RawFacility)
			if len(facilities) > 0 {
				return facilities, provider.Name(), nil
			}
			anyAnswered = true
			continue
		}

		facilities, err := provider.Search(ctx, origin, radiusKm, hint)
		if err != nil {
			c.log.Warn().
				Str("provider", provider.Name()).
				Err(err).
				Msg("care provider failed, falling through")
			attemptErrs = append(attemptErrs, err)
			continue
		}

		anyAnswered = true
		c.cache.Set(key, facilities, gocache.DefaultExpiration)

		if len(facilities) == 0 {
			c.log.Warn().
				Str("provider", provider.Name()).
				Msg("care provider returned no candidates, falling through")
			continue
		}

		return facilities, provider.Name(), nil
	}

	if !anyAnswered {
		return nil, "", fmt.Errorf("%w: %w", ErrProvidersExhausted, errors.Join(attemptErrs...))
	}

	// Every provider answered, none had candidates.
	return nil, "", nil
}

func cacheKey(provider string, origin geo.Coordinate, radiusKm float64, hint string) string {
	lat := snap(origin.Lat)
	lng := snap(origin.Lng)
	return fmt.Sprintf("%s|%.2f,%.2f|%.0f|%s", provider, lat, lng, radiusKm, hint)
}

func snap(v float64) float64 {
	return float64(int64(v/cacheCellDegrees)) * cacheCellDegrees
}
