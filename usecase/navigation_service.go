package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/satriahrh/panoguide/domain/entities"
	"github.com/satriahrh/panoguide/domain/repositories"
	"github.com/satriahrh/panoguide/internal/geo"
	"github.com/satriahrh/panoguide/internal/tools"
)

// ToolResult is the payload returned to the agent for every tool call.
type ToolResult struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Error   string         `json:"error,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}

func failure(message string, err error) ToolResult {
	return ToolResult{Success: false, Message: message, Error: err.Error()}
}

// NavigationConfig tunes how the viewer is driven.
type NavigationConfig struct {
	RotateDuration time.Duration
	FrameInterval  time.Duration
	// StepTolerance is the widest angle in degrees between the camera and a
	// link for step_forward to follow it.
	StepTolerance float64
	MoveTimeout   time.Duration
	SearchRadius  float64
}

// DefaultNavigationConfig returns the tuning used in production.
func DefaultNavigationConfig() NavigationConfig {
	return NavigationConfig{
		RotateDuration: 800 * time.Millisecond,
		FrameInterval:  time.Second / 30,
		StepTolerance:  60,
		MoveTimeout:    2 * time.Second,
		SearchRadius:   50,
	}
}

// NavigationService executes the agent's tools against the viewer.
type NavigationService struct {
	viewer   repositories.Viewer
	geocoder repositories.Geocoder
	cfg      NavigationConfig
	logger   *zap.Logger
}

// NewNavigationService creates a new navigation service
func NewNavigationService(viewer repositories.Viewer, geocoder repositories.Geocoder, cfg NavigationConfig, logger *zap.Logger) *NavigationService {
	defaults := DefaultNavigationConfig()
	if cfg.RotateDuration <= 0 {
		cfg.RotateDuration = defaults.RotateDuration
	}
	if cfg.FrameInterval <= 0 {
		cfg.FrameInterval = defaults.FrameInterval
	}
	if cfg.StepTolerance <= 0 {
		cfg.StepTolerance = defaults.StepTolerance
	}
	if cfg.MoveTimeout <= 0 {
		cfg.MoveTimeout = defaults.MoveTimeout
	}
	if cfg.SearchRadius <= 0 {
		cfg.SearchRadius = defaults.SearchRadius
	}
	return &NavigationService{
		viewer:   viewer,
		geocoder: geocoder,
		cfg:      cfg,
		logger:   logger,
	}
}

// HandleToolCall dispatches a validated tool call. Viewer failures are
// reported in the result rather than as an error.
func (s *NavigationService) HandleToolCall(ctx context.Context, name string, args map[string]any) (any, error) {
	switch name {
	case tools.RotateView:
		return s.RotateView(ctx, number(args, "heading"), number(args, "pitch")), nil
	case tools.StepForward:
		return s.StepForward(ctx, int(math.Round(number(args, "steps")))), nil
	case tools.JumpToLocation:
		return s.JumpToLocation(ctx, text(args, "location")), nil
	case tools.FocusOnObject:
		return s.FocusOnObject(ctx, text(args, "description")), nil
	case tools.FetchLocationFacts:
		return s.FetchLocationFacts(ctx), nil
	case tools.RequestSelfie:
		return s.RequestSelfie(ctx, text(args, "style")), nil
	}
	return nil, fmt.Errorf("%w: %s", tools.ErrUnknownTool, name)
}

func number(args map[string]any, key string) float64 {
	v, _ := args[key].(float64)
	return v
}

func text(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return strings.TrimSpace(v)
}

// RotateView turns the camera along the shortest path to heading and pitch.
// It reports the requested orientation even when the viewer drops frames.
func (s *NavigationService) RotateView(ctx context.Context, heading, pitch float64) ToolResult {
	target := entities.POV{Heading: geo.NormalizeHeading(heading), Pitch: geo.ClampPitch(pitch)}
	if err := s.animateTo(ctx, target); err != nil {
		s.logger.Warn("Rotation incomplete", zap.Error(err),
			zap.Float64("heading", target.Heading), zap.Float64("pitch", target.Pitch))
	}
	return ToolResult{
		Success: true,
		Message: fmt.Sprintf("Now facing %.0f° (%s), pitch %.0f°", target.Heading, geo.Cardinal(target.Heading), target.Pitch),
		Data: map[string]any{
			"heading": target.Heading,
			"pitch":   target.Pitch,
		},
	}
}

// animateTo eases the camera from its current orientation to target.
func (s *NavigationService) animateTo(ctx context.Context, target entities.POV) error {
	start, err := s.viewer.Snapshot(ctx)
	if err != nil {
		return err
	}

	frames := int(s.cfg.RotateDuration / s.cfg.FrameInterval)
	if geo.AngularDistance(start.POV.Heading, target.Heading) < 1 && math.Abs(start.POV.Pitch-target.Pitch) < 1 {
		frames = 1
	}

	ticker := time.NewTicker(s.cfg.FrameInterval)
	defer ticker.Stop()

	for i := 1; i < frames; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		progress := float64(i) / float64(frames)
		pov := entities.POV{
			Heading: geo.InterpolateHeading(start.POV.Heading, target.Heading, progress),
			Pitch:   geo.InterpolatePitch(start.POV.Pitch, target.Pitch, progress),
		}
		if err := s.viewer.SetPOV(ctx, pov); err != nil {
			return err
		}
	}
	return s.viewer.SetPOV(ctx, target)
}

// StepForward walks up to steps panoramas in the direction the camera faces.
func (s *NavigationService) StepForward(ctx context.Context, steps int) ToolResult {
	if steps < 1 {
		steps = 1
	}
	if steps > 5 {
		steps = 5
	}

	completed := 0
	blocked := false
	for completed < steps {
		vp, err := s.viewer.Snapshot(ctx)
		if err != nil {
			return failure("Could not read the viewer position", err)
		}
		links, err := s.viewer.Links(ctx)
		if err != nil {
			return failure("Could not read the paths ahead", err)
		}

		link, ok := bestLink(links, vp.POV.Heading, s.cfg.StepTolerance)
		if !ok {
			blocked = true
			break
		}

		moveCtx, cancel := context.WithTimeout(ctx, s.cfg.MoveTimeout)
		err = s.viewer.MoveTo(moveCtx, link.PanoID)
		cancel()
		switch {
		case err == nil:
		case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
			s.logger.Warn("Viewer did not confirm move in time",
				zap.String("panoID", link.PanoID),
				zap.Duration("timeout", s.cfg.MoveTimeout))
		default:
			return failure("Could not move forward", err)
		}
		completed++
	}

	data := map[string]any{
		"stepsCompleted": completed,
		"stepsRequested": steps,
		"blocked":        blocked,
	}
	switch {
	case completed == 0:
		return ToolResult{
			Success: false,
			Message: "There is no path ahead in this direction. Try turning first.",
			Error:   "blocked",
			Data:    data,
		}
	case completed < steps:
		return ToolResult{
			Success: true,
			Message: fmt.Sprintf("Moved %d of %d steps before the path ended", completed, steps),
			Data:    data,
		}
	}
	return ToolResult{
		Success: true,
		Message: fmt.Sprintf("Moved forward %d step(s)", completed),
		Data:    data,
	}
}

// bestLink picks the link most aligned with heading within tolerance degrees.
func bestLink(links []entities.PanoLink, heading, tolerance float64) (entities.PanoLink, bool) {
	var best entities.PanoLink
	bestDiff := math.Inf(1)
	for _, l := range links {
		if l.Validate() != nil {
			continue
		}
		diff := geo.AngularDistance(heading, l.Heading)
		if diff <= tolerance && diff < bestDiff {
			best, bestDiff = l, diff
		}
	}
	return best, !math.IsInf(bestDiff, 1)
}

// JumpToLocation geocodes a place and moves the viewer to the nearest panorama.
func (s *NavigationService) JumpToLocation(ctx context.Context, location string) ToolResult {
	position, err := s.geocoder.Geocode(ctx, location)
	if errors.Is(err, repositories.ErrNotFound) {
		return ToolResult{Success: false, Message: fmt.Sprintf("Could not find %q", location), Error: "location not found"}
	}
	if err != nil {
		return failure("Could not look up the location", err)
	}

	pano, err := s.findPanorama(ctx, position)
	if errors.Is(err, repositories.ErrNotFound) {
		return ToolResult{
			Success: false,
			Message: fmt.Sprintf("There is no street view imagery near %s", location),
			Error:   "no panorama nearby",
			Data:    map[string]any{"lat": position.Lat, "lng": position.Lng},
		}
	}
	if err != nil {
		return failure("Could not search for street view imagery", err)
	}

	if err := s.viewer.SetPanorama(ctx, pano.PanoID); err != nil {
		return failure("Could not move the viewer", err)
	}

	s.logger.Info("Jumped to location",
		zap.String("location", location),
		zap.String("panoID", pano.PanoID))
	return ToolResult{
		Success: true,
		Message: fmt.Sprintf("Arrived at %s", location),
		Data: map[string]any{
			"lat":    pano.Position.Lat,
			"lng":    pano.Position.Lng,
			"panoId": pano.PanoID,
		},
	}
}

// findPanorama searches the configured radius, then once more at four times it.
func (s *NavigationService) findPanorama(ctx context.Context, at entities.LatLng) (*entities.Panorama, error) {
	pano, err := s.viewer.FindPanorama(ctx, at, s.cfg.SearchRadius)
	if !errors.Is(err, repositories.ErrNotFound) {
		return pano, err
	}
	return s.viewer.FindPanorama(ctx, at, s.cfg.SearchRadius*4)
}

var (
	upWords   = []string{"sky", "above", "top", "up", "roof", "ceiling", "tower", "tall", "overhead"}
	downWords = []string{"ground", "below", "down", "floor", "street", "road", "feet", "pavement"}
)

// focusTarget estimates where an object is from words in its description.
func focusTarget(current entities.POV, description string) entities.POV {
	words := strings.FieldsFunc(strings.ToLower(description), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	seen := make(map[string]bool, len(words))
	for _, w := range words {
		seen[w] = true
	}

	delta := 0.0
	switch {
	case seen["behind"]:
		delta = 180
	case followedBy(words, "far", "left"):
		delta = -90
	case followedBy(words, "far", "right"):
		delta = 90
	case seen["left"]:
		delta = -45
	case seen["right"]:
		delta = 45
	}

	pitch := current.Pitch
	if anySeen(seen, upWords) {
		pitch += 25
	} else if anySeen(seen, downWords) {
		pitch -= 20
	}

	return entities.POV{
		Heading: geo.NormalizeHeading(current.Heading + delta),
		Pitch:   geo.Clamp(pitch, -30, 60),
	}
}

func followedBy(words []string, first, second string) bool {
	for i := 1; i < len(words); i++ {
		if words[i-1] == first && words[i] == second {
			return true
		}
	}
	return false
}

func anySeen(seen map[string]bool, words []string) bool {
	for _, w := range words {
		if seen[w] {
			return true
		}
	}
	return false
}

// FocusOnObject turns towards a described object. It always succeeds so the
// agent can describe what is now in view.
func (s *NavigationService) FocusOnObject(ctx context.Context, description string) ToolResult {
	current := entities.POV{}
	if vp, err := s.viewer.Snapshot(ctx); err == nil {
		current = vp.POV
	} else {
		s.logger.Warn("Focus without viewer snapshot", zap.Error(err))
	}

	target := focusTarget(current, description)
	if err := s.animateTo(ctx, target); err != nil {
		s.logger.Warn("Focus rotation incomplete", zap.Error(err))
	}
	return ToolResult{
		Success: true,
		Message: fmt.Sprintf("Looking towards %s", description),
		Data: map[string]any{
			"heading": target.Heading,
			"pitch":   target.Pitch,
		},
	}
}

// FetchLocationFacts returns the viewer snapshot for the agent to describe.
func (s *NavigationService) FetchLocationFacts(ctx context.Context) ToolResult {
	vp, err := s.viewer.Snapshot(ctx)
	if err != nil {
		return failure("Could not read the current location", err)
	}
	address := vp.Address
	if address == "" {
		address = "Unknown"
	}
	return ToolResult{
		Success: true,
		Message: fmt.Sprintf("Currently at %s", address),
		Data: map[string]any{
			"lat":      vp.Position.Lat,
			"lng":      vp.Position.Lng,
			"heading":  vp.POV.Heading,
			"pitch":    vp.POV.Pitch,
			"cardinal": geo.Cardinal(vp.POV.Heading),
			"address":  address,
			"panoId":   vp.PanoID,
		},
	}
}

// RequestSelfie starts the selfie flow in the browser and returns immediately.
func (s *NavigationService) RequestSelfie(ctx context.Context, style string) ToolResult {
	if err := s.viewer.RequestSelfie(ctx, style); err != nil {
		return failure("Could not start the selfie", err)
	}
	return ToolResult{
		Success: true,
		Message: "Selfie requested. The picture will appear shortly.",
	}
}
