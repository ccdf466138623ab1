package care

import (
	"context"
	"fmt"

	"github.com/xrayaid/xrayaid/internal/geo"
)

// Provider is one facility-search backend. Implementations return their raw
// candidate list; distance ranking happens in the caller.
type Provider interface {
	Name() string
	Search(ctx context.Context, origin geo.Coordinate, radiusKm float64, hint string) ([]RawFacility, error)
}

// ProviderError wraps a backend failure with the provider's identity, so the
// fallback chain can log which tier failed instead of collapsing everything
// into one opaque error.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }
