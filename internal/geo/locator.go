package geo

import (
	"context"
	"errors"
)

var (
	// ErrPermissionDenied means the user declined to share their position.
	// Retry requires a fresh, explicit consent action.
	ErrPermissionDenied = errors.New("location permission denied")

	// ErrUnavailable means the environment has no usable location source.
	ErrUnavailable = errors.New("location unavailable")
)

// Locator resolves the caller's current position. Implementations must never
// solicit the user on their own: consent is collected upstream and carried
// into the locator.
type Locator interface {
	Locate(ctx context.Context) (Coordinate, error)
}

// ConsentLocator holds a position the client shared after an explicit
// permission grant. A missing grant resolves to ErrPermissionDenied, a
// granted request without a usable position to ErrUnavailable.
type ConsentLocator struct {
	Granted  bool
	Position *Coordinate
}

func (l ConsentLocator) Locate(ctx context.Context) (Coordinate, error) {
	if !l.Granted {
		return Coordinate{}, ErrPermissionDenied
	}
	if l.Position == nil || !l.Position.Valid() {
		return Coordinate{}, ErrUnavailable
	}
	return *l.Position, nil
}

// StaticLocator always reports the same position.
type StaticLocator Coordinate

func (l StaticLocator) Locate(ctx context.Context) (Coordinate, error) {
	c := Coordinate(l)
	if !c.Valid() {
		return Coordinate{}, ErrUnavailable
	}
	return c, nil
}
