package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/satriahrh/panoguide/domain/entities"
	"github.com/satriahrh/panoguide/domain/repositories"
)

type fakeViewer struct {
	mu       sync.Mutex
	vp       entities.Viewport
	links    map[string][]entities.PanoLink
	povs     []entities.POV
	moves    []string
	panos    []string
	radii    []float64
	selfies  []string
	find     func(at entities.LatLng, radius float64) (*entities.Panorama, error)
	moveHang bool
	err      error
}

func newFakeViewer() *fakeViewer {
	return &fakeViewer{
		vp: entities.Viewport{
			Position: entities.LatLng{Lat: 51.5007, Lng: -0.1246},
			POV:      entities.POV{Heading: 0, Pitch: 0},
			Address:  "Westminster, London",
			PanoID:   "start",
		},
		links: make(map[string][]entities.PanoLink),
	}
}

func (v *fakeViewer) Snapshot(ctx context.Context) (entities.Viewport, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.vp, v.err
}

func (v *fakeViewer) SetPOV(ctx context.Context, pov entities.POV) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.err != nil {
		return v.err
	}
	v.povs = append(v.povs, pov)
	v.vp.POV = pov
	return nil
}

func (v *fakeViewer) Links(ctx context.Context) ([]entities.PanoLink, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.links[v.vp.PanoID], v.err
}

func (v *fakeViewer) MoveTo(ctx context.Context, panoID string) error {
	v.mu.Lock()
	v.moves = append(v.moves, panoID)
	v.vp.PanoID = panoID
	hang := v.moveHang
	v.mu.Unlock()
	if hang {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

func (v *fakeViewer) FindPanorama(ctx context.Context, at entities.LatLng, radius float64) (*entities.Panorama, error) {
	v.mu.Lock()
	v.radii = append(v.radii, radius)
	find := v.find
	v.mu.Unlock()
	if find == nil {
		return nil, repositories.ErrNotFound
	}
	return find(at, radius)
}

func (v *fakeViewer) SetPanorama(ctx context.Context, panoID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.panos = append(v.panos, panoID)
	v.vp.PanoID = panoID
	return nil
}

func (v *fakeViewer) RequestSelfie(ctx context.Context, style string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.selfies = append(v.selfies, style)
	return nil
}

func (v *fakeViewer) setHeading(h float64) {
	v.mu.Lock()
	v.vp.POV.Heading = h
	v.mu.Unlock()
}

func (v *fakeViewer) recordedPOVs() []entities.POV {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]entities.POV(nil), v.povs...)
}

// chain links panoramas start -> p1 -> ... -> pN all heading the same way.
func (v *fakeViewer) chain(n int, heading float64) {
	prev := "start"
	for i := 1; i <= n; i++ {
		id := "p" + string(rune('0'+i))
		v.links[prev] = []entities.PanoLink{{PanoID: id, Heading: heading}}
		prev = id
	}
}

type fakeGeocoder struct {
	places map[string]entities.LatLng
	err    error
}

func (g *fakeGeocoder) Geocode(ctx context.Context, query string) (entities.LatLng, error) {
	if g.err != nil {
		return entities.LatLng{}, g.err
	}
	p, ok := g.places[query]
	if !ok {
		return entities.LatLng{}, repositories.ErrNotFound
	}
	return p, nil
}

func fastNavigation() NavigationConfig {
	return NavigationConfig{
		RotateDuration: 40 * time.Millisecond,
		FrameInterval:  4 * time.Millisecond,
		StepTolerance:  60,
		MoveTimeout:    20 * time.Millisecond,
		SearchRadius:   50,
	}
}
