package care

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/xrayaid/xrayaid/internal/geo"
)

// StaticProvider serves a fixed, operator-curated facility list. Last tier of
// the fallback chain: always available, lowest result quality.
type StaticProvider struct {
	facilities []RawFacility
}

func NewStaticProvider(facilities []RawFacility) *StaticProvider {
	return &StaticProvider{facilities: facilities}
}

// LoadStaticFacilities parses the operator file format consumed by
// NewStaticProvider.
func LoadStaticFacilities(r io.Reader) ([]RawFacility, error) {
	var entries []struct {
		ID      string  `json:"id"`
		Name    string  `json:"name"`
		Address string  `json:"address"`
		Lat     float64 `json:"lat"`
		Lng     float64 `json:"lng"`
	}
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return nil, fmt.Errorf("parsing static facilities: %w", err)
	}

	facilities := make([]RawFacility, 0, len(entries))
	for _, e := range entries {
		lat, lng := e.Lat, e.Lng
		facilities = append(facilities, RawFacility{
			ID:      e.ID,
			Name:    e.Name,
			Address: e.Address,
			Lat:     &lat,
			Lng:     &lng,
		})
	}
	return facilities, nil
}

func (p *StaticProvider) Name() string { return "static" }

func (p *StaticProvider) Search(ctx context.Context, origin geo.Coordinate, radiusKm float64, hint string) ([]RawFacility, error) {
	// Filter to the requested radius so a sparse curated list doesn't surface
	// facilities on another continent.
	matches := make([]RawFacility, 0, len(p.facilities))
	for _, f := range p.facilities {
		coord, ok := f.coordinate()
		if !ok {
			continue
		}
		if geo.HaversineKm(origin, coord) <= radiusKm {
			matches = append(matches, f)
		}
	}
	return matches, nil
}
