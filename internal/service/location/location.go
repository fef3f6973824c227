package location

import (
	"context"
	"errors"
	"fmt"

	"infrastreet/marketplace/internal/model"
)

var ErrUnavailable = errors.New("location unavailable")

// DefaultFallback is used by surfaces that keep working without a fix (New York City).
var DefaultFallback = model.Location{Lat: 40.7128, Lng: -74.006}

type Provider interface {
	Current(ctx context.Context) (model.Location, error)
}

// Static resolves to a fixed coordinate, or ErrUnavailable when none was configured.
type Static struct {
	loc *model.Location
}

func NewStatic(loc *model.Location) *Static {
	return &Static{loc: loc}
}

func (s *Static) Current(ctx context.Context) (model.Location, error) {
	if err := ctx.Err(); err != nil {
		return model.Location{}, err
	}
	if s.loc == nil {
		return model.Location{}, ErrUnavailable
	}
	if err := Validate(*s.loc); err != nil {
		return model.Location{}, err
	}
	return *s.loc, nil
}

func Validate(loc model.Location) error {
	if loc.Lat < -90 || loc.Lat > 90 {
		return fmt.Errorf("latitude must be between -90 and 90, got %v", loc.Lat)
	}
	if loc.Lng < -180 || loc.Lng > 180 {
		return fmt.Errorf("longitude must be between -180 and 180, got %v", loc.Lng)
	}
	return nil
}
