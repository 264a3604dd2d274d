package live

import (
	"fmt"

	"github.com/satriahrh/panoguide/domain/entities"
	"github.com/satriahrh/panoguide/internal/geo"
)

// FormatViewportContext renders the silent system update describing where
// the viewer is.
func FormatViewportContext(vp entities.Viewport) string {
	address := vp.Address
	if address == "" {
		address = "Unknown"
	}
	return fmt.Sprintf("[SYSTEM_UPDATE] Current viewport:\n"+
		"- Position: %.6f°, %.6f°\n"+
		"- Heading: %.1f° (%s)\n"+
		"- Pitch: %.1f°\n"+
		"- Address: %s",
		vp.Position.Lat, vp.Position.Lng,
		vp.POV.Heading, geo.Cardinal(vp.POV.Heading),
		vp.POV.Pitch,
		address)
}
