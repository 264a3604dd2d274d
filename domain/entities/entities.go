package entities

import (
	"errors"
	"fmt"
)

// LatLng is a geographic coordinate in degrees
type LatLng struct {
	Lat float64 `json:"lat" bson:"lat"`
	Lng float64 `json:"lng" bson:"lng"`
}

// POV is the camera orientation of the panoramic viewer
type POV struct {
	Heading float64 `json:"heading"`
	Pitch   float64 `json:"pitch"`
}

// Viewport is a snapshot of where the viewer is and what it is looking at
type Viewport struct {
	Position LatLng `json:"position"`
	POV      POV    `json:"pov"`
	Address  string `json:"address,omitempty"`
	PanoID   string `json:"pano_id,omitempty"`
}

// PanoLink is a navigable neighbour of the current panorama
type PanoLink struct {
	PanoID  string  `json:"pano_id"`
	Heading float64 `json:"heading"`
}

// Panorama identifies a panorama found near a coordinate
type Panorama struct {
	PanoID   string `json:"pano_id"`
	Position LatLng `json:"position"`
}

// Validate checks the coordinate is on the globe.
func (l LatLng) Validate() error {
	if l.Lat < -90 || l.Lat > 90 {
		return fmt.Errorf("lat %v out of range", l.Lat)
	}
	if l.Lng < -180 || l.Lng > 180 {
		return fmt.Errorf("lng %v out of range", l.Lng)
	}
	return nil
}

// Validate checks coordinate and orientation ranges.
func (v Viewport) Validate() error {
	if err := v.Position.Validate(); err != nil {
		return err
	}
	if v.POV.Pitch < -90 || v.POV.Pitch > 90 {
		return fmt.Errorf("pitch %v out of range", v.POV.Pitch)
	}
	return nil
}

// Validate checks a link has somewhere to go.
func (l PanoLink) Validate() error {
	if l.PanoID == "" {
		return errors.New("pano_id is required")
	}
	return nil
}
