package care

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/xrayaid/xrayaid/internal/geo"
)

// Status is the recommender's user-facing outcome state.
type Status string

const (
	StatusAwaitingConsent Status = "awaiting_consent"
	StatusLocating        Status = "locating"
	StatusSearching       Status = "searching"
	StatusRanked          Status = "ranked"
	StatusDenied          Status = "denied"
	StatusUnavailable     Status = "unavailable"
	StatusNoResults       Status = "no_results"
)

// Recommendation is the result of one recommendation request. Denied,
// Unavailable and NoResults are ordinary outcomes with a retry affordance,
// not Go errors.
type Recommendation struct {
	Status     Status          `json:"status"`
	Origin     *geo.Coordinate `json:"origin,omitempty"`
	Facilities []CareFacility  `json:"facilities"`
	Provider   string          `json:"provider,omitempty"`
	Reason     string          `json:"reason,omitempty"`
	// RadiusKm is the search radius the results were gathered within. Some
	// providers only honor it approximately, so the UI labels results as
	// "within search radius" rather than promising a hard cutoff.
	RadiusKm float64 `json:"radiusKm"`
}

type RecommenderConfig struct {
	RadiusKm float64
	TopN     int
	Hint     string
}

// Recommender drives consent → location → provider fallback → ranking. It is
// stateless between calls; a retry is simply a new Recommend call with a
// fresh consent grant.
type Recommender struct {
	chain *Chain
	cfg   RecommenderConfig
	log   zerolog.Logger
}

func NewRecommender(chain *Chain, cfg RecommenderConfig, log zerolog.Logger) *Recommender {
	if cfg.RadiusKm <= 0 {
		cfg.RadiusKm = 50
	}
	if cfg.TopN <= 0 {
		cfg.TopN = 5
	}
	return &Recommender{chain: chain, cfg: cfg, log: log}
}

// Recommend resolves the caller's position through loc and returns ranked
// nearby facilities. The locator already carries the user's consent decision;
// Recommend never prompts on its own.
func (r *Recommender) Recommend(ctx context.Context, loc geo.Locator) (*Recommendation, error) {
	origin, err := loc.Locate(ctx)
	if err != nil {
		switch {
		case errors.Is(err, geo.ErrPermissionDenied):
			return &Recommendation{
				Status:   StatusDenied,
				Reason:   "Location access was denied. Allow access and try again to find nearby care.",
				RadiusKm: r.cfg.RadiusKm,
			}, nil
		case errors.Is(err, geo.ErrUnavailable):
			return &Recommendation{
				Status:   StatusUnavailable,
				Reason:   "Your location could not be determined. Nearby care search needs a usable position.",
				RadiusKm: r.cfg.RadiusKm,
			}, nil
		default:
			return nil, err
		}
	}

	candidates, provider, err := r.chain.Search(ctx, origin, r.cfg.RadiusKm, r.cfg.Hint)
	if err != nil {
		if errors.Is(err, ErrProvidersExhausted) {
			r.log.Error().Err(err).Msg("care search exhausted every provider")
			return &Recommendation{
				Status:   StatusUnavailable,
				Origin:   &origin,
				Reason:   "Care facility search is temporarily unavailable. Please try again later.",
				RadiusKm: r.cfg.RadiusKm,
			}, nil
		}
		return nil, err
	}

	ranked := Rank(origin, candidates, r.cfg.TopN)
	if len(ranked) == 0 {
		return &Recommendation{
			Status:   StatusNoResults,
			Origin:   &origin,
			Reason:   "No care facilities were found within the search radius.",
			RadiusKm: r.cfg.RadiusKm,
		}, nil
	}

	r.log.Info().
		Str("provider", provider).
		Int("count", len(ranked)).
		Float64("nearest_km", ranked[0].DistanceKm).
		Msg("ranked nearby care facilities")

	return &Recommendation{
		Status:     StatusRanked,
		Origin:     &origin,
		Facilities: ranked,
		Provider:   provider,
		RadiusKm:   r.cfg.RadiusKm,
	}, nil
}
