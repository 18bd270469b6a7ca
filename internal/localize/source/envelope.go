package source

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/banshee-data/localize/internal/localize/grid"
	"github.com/banshee-data/localize/internal/localize/laser"
	"github.com/banshee-data/localize/internal/localize/pipeline"
)

var (
	ErrUnknownType    = errors.New("unknown envelope type")
	ErrMissingPayload = errors.New("envelope payload missing")
)

// Envelope is the wire form of one event.
type Envelope struct {
	Type string                     `json:"type"`
	Scan *laser.Scan                `json:"scan,omitempty"`
	Map  *grid.OccupancyMap         `json:"map,omitempty"`
	TF   *pipeline.TransformStamped `json:"tf,omitempty"`
}

// Decode parses one envelope into an Event.
func Decode(data []byte) (pipeline.Event, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return pipeline.Event{}, fmt.Errorf("decode envelope: %w", err)
	}
	return env.Event()
}

// Event converts the envelope, checking that the payload matches Type.
func (e Envelope) Event() (pipeline.Event, error) {
	switch e.Type {
	case pipeline.EventScan.String():
		if e.Scan == nil {
			return pipeline.Event{}, fmt.Errorf("%w: scan", ErrMissingPayload)
		}
		return pipeline.Event{Kind: pipeline.EventScan, Scan: e.Scan}, nil
	case pipeline.EventMap.String():
		if e.Map == nil {
			return pipeline.Event{}, fmt.Errorf("%w: map", ErrMissingPayload)
		}
		return pipeline.Event{Kind: pipeline.EventMap, Map: e.Map}, nil
	case pipeline.EventTransform.String():
		if e.TF == nil {
			return pipeline.Event{}, fmt.Errorf("%w: tf", ErrMissingPayload)
		}
		return pipeline.Event{Kind: pipeline.EventTransform, Transform: e.TF}, nil
	}
	return pipeline.Event{}, fmt.Errorf("%w %q", ErrUnknownType, e.Type)
}

// Encode is the inverse of Decode. Bridges and tests use it to produce
// envelope lines.
func Encode(ev pipeline.Event) ([]byte, error) {
	env := Envelope{Type: ev.Kind.String(), Scan: ev.Scan, Map: ev.Map, TF: ev.Transform}
	if _, err := env.Event(); err != nil {
		return nil, err
	}
	return json.Marshal(env)
}
