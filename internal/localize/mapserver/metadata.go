package mapserver

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/banshee-data/localize/internal/localize/geom"
)

// Interpretation modes for pixel values.
const (
	ModeTrinary = "trinary"
	ModeScale   = "scale"
	ModeRaw     = "raw"
)

// Metadata is the YAML map description.
//
//	image: office.png
//	resolution: 0.05
//	origin: [-10.0, -10.0, 0.0]
//	negate: 0
//	occupied_thresh: 0.65
//	free_thresh: 0.196
type Metadata struct {
	Image          string    `yaml:"image"`
	Resolution     float64   `yaml:"resolution"`
	Origin         []float64 `yaml:"origin"`
	Negate         int       `yaml:"negate"`
	OccupiedThresh float64   `yaml:"occupied_thresh"`
	FreeThresh     float64   `yaml:"free_thresh"`
	Mode           string    `yaml:"mode,omitempty"`
}

// ParseMetadata decodes and validates a map description.
func ParseMetadata(r io.Reader) (Metadata, error) {
	var m Metadata
	if err := yaml.NewDecoder(r).Decode(&m); err != nil {
		return m, fmt.Errorf("decode map yaml: %w", err)
	}
	if m.Mode == "" {
		m.Mode = ModeTrinary
	}
	return m, m.Validate()
}

// Validate checks the fields needed to build a map.
func (m Metadata) Validate() error {
	switch {
	case m.Image == "":
		return fmt.Errorf("map yaml: image is required")
	case m.Resolution <= 0:
		return fmt.Errorf("map yaml: resolution must be positive, got %v", m.Resolution)
	case len(m.Origin) != 3:
		return fmt.Errorf("map yaml: origin must be [x, y, yaw], got %v", m.Origin)
	case m.FreeThresh < 0 || m.OccupiedThresh > 1 || m.FreeThresh >= m.OccupiedThresh:
		return fmt.Errorf("map yaml: need 0 <= free_thresh < occupied_thresh <= 1, got %v and %v", m.FreeThresh, m.OccupiedThresh)
	}
	switch m.Mode {
	case ModeTrinary, ModeScale, ModeRaw:
		return nil
	}
	return fmt.Errorf("map yaml: unknown mode %q", m.Mode)
}

// OriginPose returns the origin as a pose.
func (m Metadata) OriginPose() geom.Pose2D {
	return geom.Pose2D{X: m.Origin[0], Y: m.Origin[1], Heading: m.Origin[2]}
}
