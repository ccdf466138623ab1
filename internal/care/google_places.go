package care

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/xrayaid/xrayaid/internal/geo"
)

const (
	googlePlacesEndpoint = "https://maps.googleapis.com/maps/api/place/nearbysearch/json"
	googlePlacesTimeout  = 25 * time.Second
)

// GooglePlacesProvider queries the Places Nearby Search endpoint for
// hospitals around the origin. Radius is expressed in meters upstream.
type GooglePlacesProvider struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
}

func NewGooglePlacesProvider(apiKey string) *GooglePlacesProvider {
	return &GooglePlacesProvider{
		apiKey:   apiKey,
		endpoint: googlePlacesEndpoint,
		httpClient: &http.Client{
			Timeout: googlePlacesTimeout,
		},
	}
}

func (p *GooglePlacesProvider) Name() string { return "google_places" }

type placesResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Results      []struct {
		PlaceID  string `json:"place_id"`
		Name     string `json:"name"`
		Vicinity string `json:"vicinity"`
		Geometry struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
		Rating           *float64 `json:"rating"`
		UserRatingsTotal *int     `json:"user_ratings_total"`
		OpeningHours     *struct {
			OpenNow *bool `json:"open_now"`
		} `json:"opening_hours"`
	} `json:"results"`
}

func (p *GooglePlacesProvider) Search(ctx context.Context, origin geo.Coordinate, radiusKm float64, hint string) ([]RawFacility, error) {
	if p.apiKey == "" {
		return nil, &ProviderError{Provider: p.Name(), Err: fmt.Errorf("API key not configured")}
	}

	params := url.Values{}
	params.Set("location", fmt.Sprintf("%g,%g", origin.Lat, origin.Lng))
	params.Set("radius", fmt.Sprintf("%.0f", radiusKm*1000))
	params.Set("type", "hospital")
	if hint != "" {
		params.Set("keyword", hint)
	}
	params.Set("key", p.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, &ProviderError{Provider: p.Name(), Err: fmt.Errorf("creating request: %w", err)}
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, &ProviderError{Provider: p.Name(), Err: fmt.Errorf("executing request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &ProviderError{Provider: p.Name(), Err: fmt.Errorf("returned status %d", resp.StatusCode)}
	}

	var decoded placesResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, &ProviderError{Provider: p.Name(), Err: fmt.Errorf("decoding response: %w", err)}
	}

	if decoded.Status != "OK" && decoded.Status != "ZERO_RESULTS" {
		return nil, &ProviderError{Provider: p.Name(),
			Err: fmt.Errorf("API status %s: %s", decoded.Status, decoded.ErrorMessage)}
	}

	facilities := make([]RawFacility, 0, len(decoded.Results))
	for _, place := range decoded.Results {
		lat := place.Geometry.Location.Lat
		lng := place.Geometry.Location.Lng

		address := place.Vicinity
		if address == "" {
			address = "Address not available"
		}

		facility := RawFacility{
			ID:          place.PlaceID,
			Name:        place.Name,
			Address:     address,
			Lat:         &lat,
			Lng:         &lng,
			Rating:      place.Rating,
			RatingCount: place.UserRatingsTotal,
		}
		if place.OpeningHours != nil {
			facility.OpenNow = place.OpeningHours.OpenNow
		}

		facilities = append(facilities, facility)
	}

	return facilities, nil
}
