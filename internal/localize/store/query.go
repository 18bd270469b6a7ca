package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/banshee-data/localize/internal/localize/geom"
)

// MatchRecord is one stored match.
type MatchRecord struct {
	ID       int64         `json:"id"`
	Session  string        `json:"session"`
	Sequence uint64        `json:"sequence"`
	FrameID  string        `json:"frame_id"`
	Stamp    time.Time     `json:"stamp"`
	Score    float64       `json:"score"`
	Initial  geom.Pose2D   `json:"initial"`
	Pose     geom.Pose2D   `json:"pose"`
	Elapsed  time.Duration `json:"elapsed_ns"`
}

// MatchSummary aggregates the scores of one session.
type MatchSummary struct {
	Session string  `json:"session"`
	Count   int     `json:"count"`
	Mean    float64 `json:"mean"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
}

// RecentMatches returns up to limit matches from the current session,
// newest first.
func (s *Store) RecentMatches(limit int) ([]MatchRecord, error) {
	rows, err := s.Query(`
		SELECT match_id, session_id, sequence, frame_id, stamp_unix_nanos, score,
		       initial_x, initial_y, initial_heading,
		       pose_x, pose_y, pose_heading, COALESCE(elapsed_us, 0)
		FROM matches
		WHERE session_id = ?
		ORDER BY match_id DESC
		LIMIT ?`, s.session, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MatchRecord
	for rows.Next() {
		var r MatchRecord
		var seq, stamp, elapsedUS int64
		if err := rows.Scan(&r.ID, &r.Session, &seq, &r.FrameID, &stamp, &r.Score,
			&r.Initial.X, &r.Initial.Y, &r.Initial.Heading,
			&r.Pose.X, &r.Pose.Y, &r.Pose.Heading, &elapsedUS); err != nil {
			return nil, err
		}
		r.Sequence = uint64(seq)
		r.Stamp = time.Unix(0, stamp).UTC()
		r.Elapsed = time.Duration(elapsedUS) * time.Microsecond
		out = append(out, r)
	}
	return out, rows.Err()
}

// Summary aggregates the current session's scores.
func (s *Store) Summary() (MatchSummary, error) {
	sum := MatchSummary{Session: s.session}
	var mean, lo, hi sql.NullFloat64
	err := s.QueryRow(`
		SELECT COUNT(*), AVG(score), MIN(score), MAX(score)
		FROM matches WHERE session_id = ?`, s.session).Scan(&sum.Count, &mean, &lo, &hi)
	if err != nil {
		return sum, fmt.Errorf("match summary: %w", err)
	}
	sum.Mean, sum.Min, sum.Max = mean.Float64, lo.Float64, hi.Float64
	return sum, nil
}

// MapCount returns how many maps the current session has recorded.
func (s *Store) MapCount() (int, error) {
	var n int
	err := s.QueryRow(`SELECT COUNT(*) FROM maps WHERE session_id = ?`, s.session).Scan(&n)
	return n, err
}
