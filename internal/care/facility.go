package care

import (
	"fmt"
	"net/url"

	"github.com/xrayaid/xrayaid/internal/geo"
)

// RawFacility is a provider result before distance ranking. Coordinates are
// pointers because upstream records may lack a resolvable position; such
// candidates are dropped before ranking.
type RawFacility struct {
	ID          string
	Name        string
	Address     string
	Lat         *float64
	Lng         *float64
	Rating      *float64
	RatingCount *int
	OpenNow     *bool
}

func (f RawFacility) coordinate() (geo.Coordinate, bool) {
	if f.Lat == nil || f.Lng == nil {
		return geo.Coordinate{}, false
	}
	c := geo.Coordinate{Lat: *f.Lat, Lng: *f.Lng}
	if !c.Valid() {
		return geo.Coordinate{}, false
	}
	return c, true
}

// CareFacility is a ranked result. DistanceKm is always relative to the
// origin of the request that produced it and is never reused across requests.
type CareFacility struct {
	ID          string         `json:"placeId"`
	Name        string         `json:"name"`
	Address     string         `json:"address"`
	Coordinate  geo.Coordinate `json:"coordinate"`
	Rating      *float64       `json:"rating"`
	RatingCount int            `json:"userRatingsTotal"`
	OpenNow     *bool          `json:"openNow,omitempty"`
	DistanceKm  float64        `json:"distanceValue"`
	Distance    string         `json:"distance"`
}

// DistanceLabel is the display form, rounded to one decimal place. Sorting
// always uses the full-precision DistanceKm.
func (f CareFacility) DistanceLabel() string {
	return fmt.Sprintf("%.1f km", f.DistanceKm)
}

// DirectionsURL builds a Google Maps directions link from the given origin.
func (f CareFacility) DirectionsURL(origin geo.Coordinate) string {
	return fmt.Sprintf("https://www.google.com/maps/dir/?api=1&origin=%g,%g&destination=%g,%g",
		origin.Lat, origin.Lng, f.Coordinate.Lat, f.Coordinate.Lng)
}

// MapSearchURL builds a Google Maps search link when no origin is known.
func (f CareFacility) MapSearchURL() string {
	return "https://www.google.com/maps/search/?api=1&query=" + url.QueryEscape(f.Name+" "+f.Address)
}
