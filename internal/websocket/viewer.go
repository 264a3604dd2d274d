package websocket

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/satriahrh/panoguide/domain/entities"
	"github.com/satriahrh/panoguide/domain/repositories"
	"github.com/satriahrh/panoguide/internal/geo"
)

const defaultViewerTimeout = 2 * time.Second

// ErrNoTelemetry is returned before the browser has reported a viewport.
var ErrNoTelemetry = errors.New("viewer has not reported its position yet")

// RemoteViewer drives the panorama viewer running in the browser. Reads are
// served from the last telemetry the browser pushed. Commands that need an
// answer are correlated by request id.
type RemoteViewer struct {
	send    func(msg *ViewerCommandMessage) error
	timeout time.Duration
	logger  *zap.Logger

	mu       sync.Mutex
	viewport *entities.Viewport
	links    []entities.PanoLink
	pending  map[string]chan *ViewerResultMessage
}

// NewRemoteViewer creates a viewer that delivers commands through send.
func NewRemoteViewer(send func(msg *ViewerCommandMessage) error, timeout time.Duration, logger *zap.Logger) *RemoteViewer {
	if timeout <= 0 {
		timeout = defaultViewerTimeout
	}
	return &RemoteViewer{
		send:    send,
		timeout: timeout,
		logger:  logger,
		pending: make(map[string]chan *ViewerResultMessage),
	}
}

var _ repositories.Viewer = (*RemoteViewer)(nil)

// UpdateViewport stores telemetry reported by the browser.
func (v *RemoteViewer) UpdateViewport(vp entities.Viewport, links []entities.PanoLink) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.viewport = &vp
	v.links = append([]entities.PanoLink(nil), links...)
}

// Resolve delivers a viewer_result to the command waiting for it.
func (v *RemoteViewer) Resolve(result *ViewerResultMessage) {
	if result.Viewport != nil {
		v.UpdateViewport(*result.Viewport, result.Links)
	}

	v.mu.Lock()
	ch, ok := v.pending[result.RequestID]
	delete(v.pending, result.RequestID)
	v.mu.Unlock()

	if !ok {
		v.logger.Debug("Dropping late viewer result", zap.String("requestID", result.RequestID))
		return
	}
	ch <- result
}

// Snapshot returns the last reported viewport.
func (v *RemoteViewer) Snapshot(ctx context.Context) (entities.Viewport, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.viewport == nil {
		return entities.Viewport{}, ErrNoTelemetry
	}
	return *v.viewport, nil
}

// SetPOV turns the camera without waiting for the browser.
func (v *RemoteViewer) SetPOV(ctx context.Context, pov entities.POV) error {
	pov = entities.POV{Heading: geo.NormalizeHeading(pov.Heading), Pitch: geo.ClampPitch(pov.Pitch)}
	if err := v.send(&ViewerCommandMessage{
		BaseMessage: newBase(MessageTypeViewerCommand),
		Command:     CommandSetPOV,
		POV:         &pov,
	}); err != nil {
		return err
	}

	v.mu.Lock()
	if v.viewport != nil {
		v.viewport.POV = pov
	}
	v.mu.Unlock()
	return nil
}

// Links returns the links reported with the last viewport.
func (v *RemoteViewer) Links(ctx context.Context) ([]entities.PanoLink, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.viewport == nil {
		return nil, ErrNoTelemetry
	}
	return append([]entities.PanoLink(nil), v.links...), nil
}

// MoveTo follows a link and waits for the browser to confirm.
func (v *RemoteViewer) MoveTo(ctx context.Context, panoID string) error {
	_, err := v.call(ctx, &ViewerCommandMessage{Command: CommandMoveTo, PanoID: panoID})
	return err
}

// SetPanorama loads an arbitrary panorama and waits for the browser to confirm.
func (v *RemoteViewer) SetPanorama(ctx context.Context, panoID string) error {
	_, err := v.call(ctx, &ViewerCommandMessage{Command: CommandSetPanorama, PanoID: panoID})
	return err
}

// FindPanorama asks the browser's street view service for the nearest
// outdoor panorama.
func (v *RemoteViewer) FindPanorama(ctx context.Context, at entities.LatLng, radiusMeters float64) (*entities.Panorama, error) {
	result, err := v.call(ctx, &ViewerCommandMessage{
		Command:  CommandFindPanorama,
		Position: &at,
		Radius:   radiusMeters,
	})
	if err != nil {
		return nil, err
	}
	if result.Panorama == nil || result.Panorama.PanoID == "" {
		return nil, repositories.ErrNotFound
	}
	return result.Panorama, nil
}

// RequestSelfie starts the selfie flow in the browser.
func (v *RemoteViewer) RequestSelfie(ctx context.Context, style string) error {
	return v.send(&ViewerCommandMessage{
		BaseMessage: newBase(MessageTypeViewerCommand),
		Command:     CommandRequestSelfie,
		Style:       style,
	})
}

// call sends cmd and waits for its viewer_result.
func (v *RemoteViewer) call(ctx context.Context, cmd *ViewerCommandMessage) (*ViewerResultMessage, error) {
	cmd.BaseMessage = newBase(MessageTypeViewerCommand)
	cmd.RequestID = uuid.NewString()

	ch := make(chan *ViewerResultMessage, 1)
	v.mu.Lock()
	v.pending[cmd.RequestID] = ch
	v.mu.Unlock()
	defer func() {
		v.mu.Lock()
		delete(v.pending, cmd.RequestID)
		v.mu.Unlock()
	}()

	if err := v.send(cmd); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("viewer %s: %w", cmd.Command, ctx.Err())
	case result := <-ch:
		switch result.Status {
		case ViewerStatusOK:
			return result, nil
		case ViewerStatusNotFound:
			return nil, repositories.ErrNotFound
		default:
			return nil, fmt.Errorf("viewer %s failed: %s", cmd.Command, result.Error)
		}
	}
}
