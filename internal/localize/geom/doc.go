// Package geom holds the planar pose and rigid-transform types shared by the
// localization pipeline.
//
// A Pose2D doubles as a rigid 2D transform: the pose of frame B expressed in
// frame A is the transform that maps points from B into A.
package geom
