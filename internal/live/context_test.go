package live

import (
	"testing"

	"github.com/satriahrh/panoguide/domain/entities"
)

func TestFormatViewportContext(t *testing.T) {
	tests := []struct {
		name string
		vp   entities.Viewport
		want string
	}{
		{
			name: "with address",
			vp: entities.Viewport{
				Position: entities.LatLng{Lat: 40.6892494, Lng: -74.0445004},
				POV:      entities.POV{Heading: 271.26, Pitch: 12.04},
				Address:  "Liberty Island, New York",
			},
			want: "[SYSTEM_UPDATE] Current viewport:\n" +
				"- Position: 40.689249°, -74.044500°\n" +
				"- Heading: 271.3° (W)\n" +
				"- Pitch: 12.0°\n" +
				"- Address: Liberty Island, New York",
		},
		{
			name: "unknown address",
			vp: entities.Viewport{
				Position: entities.LatLng{Lat: -33.8568, Lng: 151.2153},
				POV:      entities.POV{Heading: 350, Pitch: -5},
			},
			want: "[SYSTEM_UPDATE] Current viewport:\n" +
				"- Position: -33.856800°, 151.215300°\n" +
				"- Heading: 350.0° (N)\n" +
				"- Pitch: -5.0°\n" +
				"- Address: Unknown",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatViewportContext(tt.vp); got != tt.want {
				t.Errorf("FormatViewportContext() =\n%s\nwant\n%s", got, tt.want)
			}
		})
	}
}
