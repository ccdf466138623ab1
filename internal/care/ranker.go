package care

import (
	"sort"

	"github.com/xrayaid/xrayaid/internal/geo"
)

// Rank computes great-circle distances from origin, drops candidates without
// a usable coordinate, sorts ascending by distance (stable, so provider order
// breaks ties) and truncates to topN. Pure function; safe to test without any
// provider or location plumbing.
func Rank(origin geo.Coordinate, candidates []RawFacility, topN int) []CareFacility {
	ranked := make([]CareFacility, 0, len(candidates))

	for _, raw := range candidates {
		coord, ok := raw.coordinate()
		if !ok {
			continue
		}

		ratingCount := 0
		if raw.RatingCount != nil {
			ratingCount = *raw.RatingCount
		}

		ranked = append(ranked, CareFacility{
			ID:          raw.ID,
			Name:        raw.Name,
			Address:     raw.Address,
			Coordinate:  coord,
			Rating:      raw.Rating,
			RatingCount: ratingCount,
			OpenNow:     raw.OpenNow,
			DistanceKm:  geo.HaversineKm(origin, coord),
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].DistanceKm < ranked[j].DistanceKm
	})

	if topN > 0 && len(ranked) > topN {
		ranked = ranked[:topN]
	}

	for i := range ranked {
		ranked[i].Distance = ranked[i].DistanceLabel()
	}

	return ranked
}
