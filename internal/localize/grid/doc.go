// Package grid converts occupancy maps into correlation grids.
//
// Responsibilities: the OccupancyMap input type, the CorrelationGrid derived
// from it, and the coordinate converter that maps world coordinates onto
// grid cells. Both share one affine transform (origin offset + resolution)
// and one row-major index convention, index = y*Width + x.
//
// Dependency rule: grid depends only on geom. It knows nothing about scans,
// matching or transport.
package grid
