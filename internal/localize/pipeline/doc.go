// Package pipeline wires map ingestion and scan matching into a single
// event-driven node.
//
// Maps arrive either pushed as events or pulled once at startup through a
// MapFetcher. Each accepted map is converted into a correlation grid and a
// scan matcher, held together in a GridHandle. Scans then flow through the
// Orchestrator: readiness gate, sensor calibration, pose resolution,
// throttle, match, publish. Node.Run serialises every event on one
// goroutine, so the orchestrator and the sensor registry never see
// concurrent calls.
package pipeline
