package care

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xrayaid/xrayaid/internal/geo"
)

func newTestRecommender(providers ...Provider) *Recommender {
	chain := NewChain(providers, time.Minute, zerolog.Nop())
	return NewRecommender(chain, RecommenderConfig{RadiusKm: 50, TopN: 5}, zerolog.Nop())
}

func TestRecommendDenied(t *testing.T) {
	rec := newTestRecommender(&fakeProvider{name: "A", facilities: facilities(3)})

	got, err := rec.Recommend(context.Background(), geo.ConsentLocator{Granted: false})

	require.NoError(t, err)
	assert.Equal(t, StatusDenied, got.Status)
	assert.Empty(t, got.Facilities)
	assert.NotEmpty(t, got.Reason)
}

func TestRecommendUnavailable(t *testing.T) {
	rec := newTestRecommender(&fakeProvider{name: "A", facilities: facilities(3)})

	got, err := rec.Recommend(context.Background(), geo.ConsentLocator{Granted: true})

	require.NoError(t, err)
	assert.Equal(t, StatusUnavailable, got.Status)
	assert.NotEmpty(t, got.Reason)
}

func TestRecommendFallbackChainScenario(t *testing.T) {
	// Provider A throws, B answers with zero results, C has eight candidates:
	// the ranked output comes solely from C, truncated to five.
	a := &fakeProvider{name: "A", err: errors.New("boom")}
	b := &fakeProvider{name: "B"}
	c := &fakeProvider{name: "C", facilities: facilities(8)}

	rec := newTestRecommender(a, b, c)

	got, err := rec.Recommend(context.Background(), geo.StaticLocator{Lat: 0, Lng: 0})

	require.NoError(t, err)
	assert.Equal(t, StatusRanked, got.Status)
	assert.Equal(t, "C", got.Provider)
	require.Len(t, got.Facilities, 5)
	for i := 1; i < len(got.Facilities); i++ {
		assert.LessOrEqual(t, got.Facilities[i-1].DistanceKm, got.Facilities[i].DistanceKm)
	}
}

func TestRecommendAllProvidersFail(t *testing.T) {
	a := &fakeProvider{name: "A", err: errors.New("down")}
	b := &fakeProvider{name: "B", err: errors.New("down too")}

	rec := newTestRecommender(a, b)

	got, err := rec.Recommend(context.Background(), geo.StaticLocator{Lat: 0, Lng: 0})

	require.NoError(t, err)
	assert.Equal(t, StatusUnavailable, got.Status)
}

func TestRecommendNoResults(t *testing.T) {
	rec := newTestRecommender(&fakeProvider{name: "A"}, &fakeProvider{name: "B"})

	got, err := rec.Recommend(context.Background(), geo.StaticLocator{Lat: 0, Lng: 0})

	require.NoError(t, err)
	assert.Equal(t, StatusNoResults, got.Status)
	assert.Empty(t, got.Facilities)
}

func TestRecommendRetryAfterDenied(t *testing.T) {
	provider := &fakeProvider{name: "A", facilities: facilities(2)}
	rec := newTestRecommender(provider)

	denied, err := rec.Recommend(context.Background(), geo.ConsentLocator{Granted: false})
	require.NoError(t, err)
	assert.Equal(t, StatusDenied, denied.Status)

	pos := geo.Coordinate{Lat: 0, Lng: 0}
	granted, err := rec.Recommend(context.Background(), geo.ConsentLocator{Granted: true, Position: &pos})
	require.NoError(t, err)
	assert.Equal(t, StatusRanked, granted.Status)
}
