package care

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/xrayaid/xrayaid/internal/geo"
)

const (
	overpassEndpoint = "https://overpass-api.de/api/interpreter"
	overpassTimeout  = 25 * time.Second

	// Overpass has no result-quality ranking of its own, so we over-fetch and
	// let the distance ranker truncate.
	overpassLimit = 30
)

// OverpassProvider queries the OpenStreetMap Overpass API for hospitals
// around the origin. Community geodata carries no rating or open-now signal;
// those fields stay unset.
type OverpassProvider struct {
	endpoint   string
	httpClient *http.Client
}

func NewOverpassProvider(endpoint string) *OverpassProvider {
	if endpoint == "" {
		endpoint = overpassEndpoint
	}
	return &OverpassProvider{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: overpassTimeout,
		},
	}
}

func (p *OverpassProvider) Name() string { return "overpass" }

type overpassResponse struct {
	Elements []struct {
		Type   string   `json:"type"`
		ID     int64    `json:"id"`
		Lat    *float64 `json:"lat"`
		Lon    *float64 `json:"lon"`
		Center *struct {
			Lat float64 `json:"lat"`
			Lon float64 `json:"lon"`
		} `json:"center"`
		Tags map[string]string `json:"tags"`
	} `json:"elements"`
}

func (p *OverpassProvider) Search(ctx context.Context, origin geo.Coordinate, radiusKm float64, hint string) ([]RawFacility, error) {
	query := fmt.Sprintf(
		`[out:json][timeout:25];nwr["amenity"="hospital"](around:%.0f,%g,%g);out center %d;`,
		radiusKm*1000, origin.Lat, origin.Lng, overpassLimit,
	)

	form := url.Values{}
	form.Set("data", query)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &ProviderError{Provider: p.Name(), Err: fmt.Errorf("creating request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, &ProviderError{Provider: p.Name(), Err: fmt.Errorf("executing request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &ProviderError{Provider: p.Name(), Err: fmt.Errorf("returned status %d", resp.StatusCode)}
	}

	var decoded overpassResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, &ProviderError{Provider: p.Name(), Err: fmt.Errorf("decoding response: %w", err)}
	}

	facilities := make([]RawFacility, 0, len(decoded.Elements))
	for _, el := range decoded.Elements {
		name := el.Tags["name"]
		if name == "" {
			continue
		}

		lat, lng := el.Lat, el.Lon
		if (lat == nil || lng == nil) && el.Center != nil {
			lat, lng = &el.Center.Lat, &el.Center.Lon
		}

		facilities = append(facilities, RawFacility{
			ID:      fmt.Sprintf("osm-%s-%d", el.Type, el.ID),
			Name:    name,
			Address: overpassAddress(el.Tags),
			Lat:     lat,
			Lng:     lng,
		})
	}

	return facilities, nil
}

func overpassAddress(tags map[string]string) string {
	parts := []string{}
	if street := tags["addr:street"]; street != "" {
		if num := tags["addr:housenumber"]; num != "" {
			parts = append(parts, street+" "+num)
		} else {
			parts = append(parts, street)
		}
	}
	if city := tags["addr:city"]; city != "" {
		parts = append(parts, city)
	}
	if len(parts) == 0 {
		return "Address not available"
	}
	return strings.Join(parts, ", ")
}
