package repositories

import (
	"context"

	"github.com/satriahrh/panoguide/domain/entities"
)

// Viewer controls the panoramic street-level viewer shown to the user.
type Viewer interface {
	// Snapshot reads the current position, orientation and address.
	Snapshot(ctx context.Context) (entities.Viewport, error)
	SetPOV(ctx context.Context, pov entities.POV) error
	// Links lists the panoramas reachable in one step from the current one.
	Links(ctx context.Context) ([]entities.PanoLink, error)
	// MoveTo switches to a linked panorama and returns once the position changed.
	MoveTo(ctx context.Context, panoID string) error
	// FindPanorama returns the nearest outdoor panorama within radius meters,
	// or ErrNotFound.
	FindPanorama(ctx context.Context, at entities.LatLng, radiusMeters float64) (*entities.Panorama, error)
	SetPanorama(ctx context.Context, panoID string) error
	// RequestSelfie starts the selfie flow without waiting for the image.
	RequestSelfie(ctx context.Context, style string) error
}

// Geocoder resolves free-form place names to coordinates.
type Geocoder interface {
	// Geocode returns ErrNotFound when the place cannot be resolved.
	Geocode(ctx context.Context, query string) (entities.LatLng, error)
}
