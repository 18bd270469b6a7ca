// Package matcher aligns range scans against a correlation grid.
//
// ScanMatcher is the contract the pipeline drives; Correlative is the
// implementation shipped with the node. It scores candidate poses against a
// Gaussian-smeared lookup of the occupied cells, first coarsely over a
// translation and heading window, then optionally refined.
package matcher

import (
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/localize/internal/config"
	"github.com/banshee-data/localize/internal/localize/geom"
	"github.com/banshee-data/localize/internal/localize/grid"
	"github.com/banshee-data/localize/internal/localize/laser"
)

// RangeScan is a scan bound to its sensor profile together with the poses
// the matcher starts from.
type RangeScan struct {
	Profile       laser.Profile
	Readings      []float64
	OdometricPose geom.Pose2D
	CorrectedPose geom.Pose2D
}

// NewRangeScan binds s to p with both poses set to initial.
func NewRangeScan(p laser.Profile, s laser.Scan, initial geom.Pose2D) *RangeScan {
	return &RangeScan{
		Profile:       p,
		Readings:      s.Ranges,
		OdometricPose: initial,
		CorrectedPose: initial,
	}
}

// Result is the outcome of one MatchScan call. Score is the best normalised
// response in [0, 1].
type Result struct {
	Pose       geom.Pose2D
	Covariance *mat.SymDense
	Score      float64
}

// ScanMatcher matches scans against the grid it was created for.
type ScanMatcher interface {
	MatchScan(scan *RangeScan, initial geom.Pose2D, usePenalty, useMatchScore bool) Result
	// Close releases the lookup tables. MatchScan must not be called after.
	Close() error
}

// Factory creates a ScanMatcher bound to g.
type Factory func(p Params, g *grid.CorrelationGrid) (ScanMatcher, error)

// Params holds the correlative search settings.
type Params struct {
	SearchSpaceDimension    float64 // metres, full width of the translation window
	SearchSpaceResolution   float64
	SmearDeviation          float64
	DistanceVariancePenalty float64
	AngleVariancePenalty    float64
	FineSearchAngleOffset   float64
	CoarseSearchAngleOffset float64
	CoarseAngleResolution   float64
	MinimumAnglePenalty     float64
	MinimumDistancePenalty  float64
	UseResponseExpansion    bool
	RangeThreshold          float64
}

// ParamsFromConfig reads the matcher settings out of cfg, applying defaults.
func ParamsFromConfig(cfg *config.LocalizeConfig) Params {
	return Params{
		SearchSpaceDimension:    cfg.GetSearchSpaceDimension(),
		SearchSpaceResolution:   cfg.GetSearchSpaceResolution(),
		SmearDeviation:          cfg.GetSearchSpaceSmearDeviation(),
		DistanceVariancePenalty: cfg.GetDistanceVariancePenalty(),
		AngleVariancePenalty:    cfg.GetAngleVariancePenalty(),
		FineSearchAngleOffset:   cfg.GetFineSearchAngleOffset(),
		CoarseSearchAngleOffset: cfg.GetCoarseSearchAngleOffset(),
		CoarseAngleResolution:   cfg.GetCoarseAngleResolution(),
		MinimumAnglePenalty:     cfg.GetMinimumAnglePenalty(),
		MinimumDistancePenalty:  cfg.GetMinimumDistancePenalty(),
		UseResponseExpansion:    cfg.GetUseResponseExpansion(),
		RangeThreshold:          cfg.GetRangeThreshold(),
	}
}
