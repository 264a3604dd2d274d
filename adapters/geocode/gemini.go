// Package geocode resolves place names to coordinates for jump_to_location.
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/satriahrh/panoguide/domain/entities"
	"github.com/satriahrh/panoguide/domain/repositories"
)

const (
	defaultModel = "gemini-2.0-flash"
	maxAttempts  = 3
)

var locationSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"found": {Type: genai.TypeBoolean, Description: "Whether the place could be identified"},
		"lat":   {Type: genai.TypeNumber, Description: "Latitude in decimal degrees"},
		"lng":   {Type: genai.TypeNumber, Description: "Longitude in decimal degrees"},
		"name":  {Type: genai.TypeString, Description: "Canonical name of the place"},
	},
	Required: []string{"found"},
}

// generator is the part of genai.Models the geocoder uses.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type location struct {
	Found bool    `json:"found"`
	Lat   float64 `json:"lat"`
	Lng   float64 `json:"lng"`
	Name  string  `json:"name"`
}

// GeminiGeocoder asks a Gemini text model for the coordinates of a place.
type GeminiGeocoder struct {
	models     generator
	model      string
	retryDelay time.Duration
	logger     *zap.Logger
}

// NewGeminiGeocoder creates a geocoder backed by the Gemini API.
func NewGeminiGeocoder(ctx context.Context, apiKey, model string, logger *zap.Logger) (*GeminiGeocoder, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return newGeminiGeocoder(client.Models, model, logger), nil
}

func newGeminiGeocoder(models generator, model string, logger *zap.Logger) *GeminiGeocoder {
	if model == "" {
		model = defaultModel
		logger.Info("Using default geocoding model", zap.String("model", model))
	}
	return &GeminiGeocoder{
		models:     models,
		model:      model,
		retryDelay: time.Second,
		logger:     logger,
	}
}

// Geocode returns repositories.ErrNotFound when the model cannot place query.
func (g *GeminiGeocoder) Geocode(ctx context.Context, query string) (entities.LatLng, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return entities.LatLng{}, repositories.ErrNotFound
	}

	prompt := fmt.Sprintf("Give the latitude and longitude of this place, as precisely as you can: %q. "+
		"Prefer the main public entrance or the best street-level viewpoint. "+
		"If the place does not exist or is ambiguous beyond repair, set found to false.", query)
	config := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(float32(0)),
		ResponseMIMEType: "application/json",
		ResponseSchema:   locationSchema,
	}

	var response *genai.GenerateContentResponse
	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		response, err = g.models.GenerateContent(ctx, g.model, genai.Text(prompt), config)
		if err == nil {
			break
		}

		g.logger.Warn("Failed to geocode, retrying",
			zap.String("query", query),
			zap.Int("attempt", attempt+1),
			zap.Error(err))

		if attempt < maxAttempts-1 {
			select {
			case <-ctx.Done():
				return entities.LatLng{}, ctx.Err()
			case <-time.After(time.Duration(attempt+1) * g.retryDelay):
			}
		}
	}
	if err != nil {
		return entities.LatLng{}, fmt.Errorf("geocode %q: %w", query, err)
	}

	if response == nil || len(response.Candidates) == 0 {
		return entities.LatLng{}, fmt.Errorf("geocode %q: empty response", query)
	}

	var loc location
	if err := json.Unmarshal([]byte(response.Text()), &loc); err != nil {
		return entities.LatLng{}, fmt.Errorf("geocode %q: decode response: %w", query, err)
	}
	if !loc.Found {
		return entities.LatLng{}, repositories.ErrNotFound
	}

	position := entities.LatLng{Lat: loc.Lat, Lng: loc.Lng}
	if err := position.Validate(); err != nil {
		return entities.LatLng{}, fmt.Errorf("geocode %q: %w", query, err)
	}

	g.logger.Info("Geocoded location",
		zap.String("query", query),
		zap.String("name", loc.Name),
		zap.Float64("lat", position.Lat),
		zap.Float64("lng", position.Lng))
	return position, nil
}
