// Package laser holds range-scan samples and the per-sensor calibration
// registry.
package laser

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Profile is the geometric calibration of one range sensor, keyed by the
// frame id its scans are stamped with. Profiles are values and never change
// once registered.
type Profile struct {
	FrameID           string
	MinRange          float64
	MaxRange          float64
	MinAngle          float64
	MaxAngle          float64
	AngularResolution float64
}

// NumReadings is the number of beams implied by the angular span.
func (p Profile) NumReadings() int {
	if p.AngularResolution <= 0 {
		return 0
	}
	return int((p.MaxAngle-p.MinAngle)/p.AngularResolution+0.5) + 1
}

// Scan is one range-sensor sweep. Ranges are passed through unfiltered,
// including out-of-range sentinels such as +Inf, NaN or 0.
type Scan struct {
	FrameID        string    `json:"frame_id"`
	Stamp          time.Time `json:"stamp"`
	RangeMin       float64   `json:"range_min"`
	RangeMax       float64   `json:"range_max"`
	AngleMin       float64   `json:"angle_min"`
	AngleMax       float64   `json:"angle_max"`
	AngleIncrement float64   `json:"angle_increment"`
	Ranges         Ranges    `json:"ranges"`
}

// Ranges are the readings of one sweep. In JSON, finite readings are
// numbers and non-finite ones are the strings "inf", "-inf" and "nan".
// Decoding also accepts any spelling strconv.ParseFloat does ("Infinity",
// "+Inf", "NaN"), and null, which reads as NaN.
type Ranges []float64

// MarshalJSON implements json.Marshaler.
func (r Ranges) MarshalJSON() ([]byte, error) {
	if r == nil {
		return []byte("null"), nil
	}
	out := make([]byte, 0, 2+8*len(r))
	out = append(out, '[')
	for i, v := range r {
		if i > 0 {
			out = append(out, ',')
		}
		switch {
		case math.IsNaN(v):
			out = append(out, `"nan"`...)
		case math.IsInf(v, 1):
			out = append(out, `"inf"`...)
		case math.IsInf(v, -1):
			out = append(out, `"-inf"`...)
		default:
			out = strconv.AppendFloat(out, v, 'g', -1, 64)
		}
	}
	return append(out, ']'), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Ranges) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*r = nil
		return nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Ranges, len(raw))
	for i, item := range raw {
		v, err := parseReading(item)
		if err != nil {
			return fmt.Errorf("ranges[%d]: %w", i, err)
		}
		out[i] = v
	}
	*r = out
	return nil
}

func parseReading(item json.RawMessage) (float64, error) {
	item = bytes.TrimSpace(item)
	switch {
	case bytes.Equal(item, []byte("null")):
		return math.NaN(), nil
	case len(item) > 0 && item[0] == '"':
		var s string
		if err := json.Unmarshal(item, &s); err != nil {
			return 0, err
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("bad reading %q", s)
		}
		return v, nil
	}
	return strconv.ParseFloat(string(item), 64)
}
