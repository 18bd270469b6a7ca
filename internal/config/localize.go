package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical localization defaults file.
const DefaultConfigPath = "config/localize.defaults.json"

// StaticTransform is a fixed parent->child 2D transform, typically the
// mounting offset of a range sensor on the robot base.
type StaticTransform struct {
	Parent string  `json:"parent"`
	Child  string  `json:"child"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Yaw    float64 `json:"yaw"`
}

// LocalizeConfig is the static configuration read once at startup.
// Fields omitted from the JSON fall back to the defaults returned by the
// Get* accessors.
type LocalizeConfig struct {
	// Frame names
	OdomFrame *string `json:"odom_frame,omitempty"`
	MapFrame  *string `json:"map_frame,omitempty"`
	BaseFrame *string `json:"base_frame,omitempty"`

	// Orchestration
	ThrottleScans *int `json:"throttle_scans,omitempty"`

	// Correlation search space
	SearchSpaceDimension      *float64 `json:"correlation_search_space_dimension,omitempty"`
	SearchSpaceResolution     *float64 `json:"correlation_search_space_resolution,omitempty"`
	SearchSpaceSmearDeviation *float64 `json:"correlation_search_space_smear_deviation,omitempty"`

	// Scan matcher
	DistanceVariancePenalty *float64 `json:"distance_variance_penalty,omitempty"`
	AngleVariancePenalty    *float64 `json:"angle_variance_penalty,omitempty"`
	FineSearchAngleOffset   *float64 `json:"fine_search_angle_offset,omitempty"`
	CoarseSearchAngleOffset *float64 `json:"coarse_search_angle_offset,omitempty"`
	CoarseAngleResolution   *float64 `json:"coarse_angle_resolution,omitempty"`
	MinimumAnglePenalty     *float64 `json:"minimum_angle_penalty,omitempty"`
	MinimumDistancePenalty  *float64 `json:"minimum_distance_penalty,omitempty"`
	UseResponseExpansion    *bool    `json:"use_response_expansion,omitempty"`
	RangeThreshold          *float64 `json:"range_threshold,omitempty"`

	// Map acquisition
	FirstMapOnly  *bool   `json:"first_map_only,omitempty"`
	UseMapTopic   *bool   `json:"use_map_topic,omitempty"`
	MapRetryDelay *string `json:"map_retry_delay,omitempty"` // duration string like "500ms"

	// Frame buffer
	TransformCache     *string           `json:"transform_cache,omitempty"`     // duration string like "10s"
	TransformTolerance *string           `json:"transform_tolerance,omitempty"` // duration string like "100ms"
	StaticTransforms   []StaticTransform `json:"static_transforms,omitempty"`
}

// EmptyConfig returns a LocalizeConfig with all fields unset.
func EmptyConfig() *LocalizeConfig {
	return &LocalizeConfig{}
}

// LoadConfig loads a LocalizeConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadConfig(path string) (*LocalizeConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath,
// searching the current directory and its parents. Panics if the file cannot
// be loaded; intended for test setup.
func MustLoadDefaultConfig() *LocalizeConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from internal/localize/pipeline/
		"../../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *LocalizeConfig) Validate() error {
	if c.ThrottleScans != nil && *c.ThrottleScans < 1 {
		return fmt.Errorf("throttle_scans must be at least 1, got %d", *c.ThrottleScans)
	}

	positive := []struct {
		name string
		v    *float64
	}{
		{"correlation_search_space_dimension", c.SearchSpaceDimension},
		{"correlation_search_space_resolution", c.SearchSpaceResolution},
		{"correlation_search_space_smear_deviation", c.SearchSpaceSmearDeviation},
		{"coarse_angle_resolution", c.CoarseAngleResolution},
		{"range_threshold", c.RangeThreshold},
	}
	for _, p := range positive {
		if p.v != nil && *p.v <= 0 {
			return fmt.Errorf("%s must be positive, got %f", p.name, *p.v)
		}
	}

	for _, p := range []struct {
		name string
		v    *float64
	}{
		{"minimum_angle_penalty", c.MinimumAnglePenalty},
		{"minimum_distance_penalty", c.MinimumDistancePenalty},
	} {
		if p.v != nil && (*p.v < 0 || *p.v > 1) {
			return fmt.Errorf("%s must be between 0 and 1, got %f", p.name, *p.v)
		}
	}

	for _, d := range []struct {
		name string
		v    *string
	}{
		{"map_retry_delay", c.MapRetryDelay},
		{"transform_cache", c.TransformCache},
		{"transform_tolerance", c.TransformTolerance},
	} {
		if d.v != nil && *d.v != "" {
			if _, err := time.ParseDuration(*d.v); err != nil {
				return fmt.Errorf("invalid %s '%s': %w", d.name, *d.v, err)
			}
		}
	}

	for i, st := range c.StaticTransforms {
		if st.Parent == "" || st.Child == "" {
			return fmt.Errorf("static_transforms[%d] requires parent and child", i)
		}
	}

	return nil
}

func stringOr(p *string, def string) string {
	if p == nil || *p == "" {
		return def
	}
	return *p
}

func floatOr(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

func durationOr(p *string, def time.Duration) time.Duration {
	if p == nil || *p == "" {
		return def
	}
	d, err := time.ParseDuration(*p)
	if err != nil {
		return def
	}
	return d
}

// GetOdomFrame returns the odometry frame name.
func (c *LocalizeConfig) GetOdomFrame() string { return stringOr(c.OdomFrame, "odom") }

// GetMapFrame returns the map frame name.
func (c *LocalizeConfig) GetMapFrame() string { return stringOr(c.MapFrame, "map") }

// GetBaseFrame returns the robot base frame name.
func (c *LocalizeConfig) GetBaseFrame() string { return stringOr(c.BaseFrame, "base_link") }

// GetThrottleScans returns the throttle divisor.
func (c *LocalizeConfig) GetThrottleScans() int {
	if c.ThrottleScans == nil {
		return 20
	}
	return *c.ThrottleScans
}

func (c *LocalizeConfig) GetSearchSpaceDimension() float64 {
	return floatOr(c.SearchSpaceDimension, 0.5)
}

func (c *LocalizeConfig) GetSearchSpaceResolution() float64 {
	return floatOr(c.SearchSpaceResolution, 0.01)
}

func (c *LocalizeConfig) GetSearchSpaceSmearDeviation() float64 {
	return floatOr(c.SearchSpaceSmearDeviation, 0.1)
}

func (c *LocalizeConfig) GetDistanceVariancePenalty() float64 {
	return floatOr(c.DistanceVariancePenalty, 0.3)
}

func (c *LocalizeConfig) GetAngleVariancePenalty() float64 {
	return floatOr(c.AngleVariancePenalty, 0.349)
}

func (c *LocalizeConfig) GetFineSearchAngleOffset() float64 {
	return floatOr(c.FineSearchAngleOffset, 0.00349)
}

func (c *LocalizeConfig) GetCoarseSearchAngleOffset() float64 {
	return floatOr(c.CoarseSearchAngleOffset, 0.349)
}

func (c *LocalizeConfig) GetCoarseAngleResolution() float64 {
	return floatOr(c.CoarseAngleResolution, 0.0349)
}

func (c *LocalizeConfig) GetMinimumAnglePenalty() float64 {
	return floatOr(c.MinimumAnglePenalty, 0.9)
}

func (c *LocalizeConfig) GetMinimumDistancePenalty() float64 {
	return floatOr(c.MinimumDistancePenalty, 0.5)
}

func (c *LocalizeConfig) GetUseResponseExpansion() bool {
	return boolOr(c.UseResponseExpansion, true)
}

func (c *LocalizeConfig) GetRangeThreshold() float64 {
	return floatOr(c.RangeThreshold, 15.0)
}

// GetFirstMapOnly reports whether maps after the first are ignored.
func (c *LocalizeConfig) GetFirstMapOnly() bool { return boolOr(c.FirstMapOnly, true) }

// GetUseMapTopic reports whether maps are pushed (true) or pulled over RPC.
func (c *LocalizeConfig) GetUseMapTopic() bool { return boolOr(c.UseMapTopic, true) }

// GetMapRetryDelay returns the fixed delay between map request attempts.
func (c *LocalizeConfig) GetMapRetryDelay() time.Duration {
	return durationOr(c.MapRetryDelay, 500*time.Millisecond)
}

// GetTransformCache returns how long transform samples are retained.
func (c *LocalizeConfig) GetTransformCache() time.Duration {
	return durationOr(c.TransformCache, 10*time.Second)
}

// GetTransformTolerance returns how far a lookup may extrapolate past the
// newest or before the oldest sample.
func (c *LocalizeConfig) GetTransformTolerance() time.Duration {
	return durationOr(c.TransformTolerance, 100*time.Millisecond)
}
