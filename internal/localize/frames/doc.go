// Package frames resolves poses between named coordinate frames.
//
// Service is the query surface the pipeline needs from a frame-lookup
// collaborator. Buffer is an in-process implementation: a tree of parent to
// child transforms, either static or timestamped, queried with
// interpolation. PoseResolver turns a sensor frame id and a timestamp into
// the sensor's pose in the map frame.
package frames
