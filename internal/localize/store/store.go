// Package store keeps a sqlite history of loaded maps and match scores.
package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/localize/internal/localize/grid"
	"github.com/banshee-data/localize/internal/localize/pipeline"
	"github.com/banshee-data/localize/internal/monitoring"
	"github.com/banshee-data/localize/internal/version"
)

// Store is the match history database. One process run is one session.
type Store struct {
	*sql.DB
	path    string
	session string
}

// Open opens (creating if needed) the database at path, migrates it and
// starts a new session.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// In-memory databases are per connection.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	s := &Store{DB: db, path: path, session: uuid.NewString()}
	if err := s.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(`INSERT INTO sessions (session_id, version) VALUES (?, ?)`, s.session, version.Version); err != nil {
		db.Close()
		return nil, fmt.Errorf("start session: %w", err)
	}
	monitoring.Logf("[store] opened %s, session %s", path, s.session)
	return s, nil
}

// Session returns this run's session id.
func (s *Store) Session() string { return s.session }

// RecordMap stores summary information about an installed map.
func (s *Store) RecordMap(m grid.OccupancyMap, g *grid.CorrelationGrid) error {
	free, occ, unknown := g.Counts()
	_, err := s.Exec(`
		INSERT INTO maps (
			session_id, width, height, resolution,
			origin_x, origin_y, origin_heading,
			free_cells, occupied_cells, unknown_cells
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.session, m.Width, m.Height, m.Resolution,
		m.Origin.X, m.Origin.Y, m.Origin.Heading,
		free, occ, unknown,
	)
	if err != nil {
		return fmt.Errorf("record map: %w", err)
	}
	return nil
}

// Publish implements pipeline.Publisher by storing the score.
func (s *Store) Publish(ctx context.Context, sc pipeline.Score) error {
	var covXX, covYY, covHH sql.NullFloat64
	if sc.Covariance != nil {
		covXX = sql.NullFloat64{Float64: sc.Covariance.At(0, 0), Valid: true}
		covYY = sql.NullFloat64{Float64: sc.Covariance.At(1, 1), Valid: true}
		covHH = sql.NullFloat64{Float64: sc.Covariance.At(2, 2), Valid: true}
	}
	_, err := s.ExecContext(ctx, `
		INSERT INTO matches (
			session_id, sequence, frame_id, stamp_unix_nanos, score,
			initial_x, initial_y, initial_heading,
			pose_x, pose_y, pose_heading,
			cov_xx, cov_yy, cov_hh, elapsed_us
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.session, int64(sc.Sequence), sc.FrameID, sc.Stamp.UnixNano(), sc.Value,
		sc.Initial.X, sc.Initial.Y, sc.Initial.Heading,
		sc.Pose.X, sc.Pose.Y, sc.Pose.Heading,
		covXX, covYY, covHH, sc.Elapsed.Microseconds(),
	)
	if err != nil {
		return fmt.Errorf("record match: %w", err)
	}
	return nil
}
