package db

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/bodyviewer/internal/kinect"
)

// Session is one run of the viewer.
type Session struct {
	ID        string
	Source    string
	DepthMode string
	Started   time.Time
	// Ended is zero while the session is open or if it was not closed.
	Ended  time.Time
	Frames int
}

// TrajectoryPoint is a joint position at one frame.
type TrajectoryPoint struct {
	Timestamp  time.Duration
	Position   kinect.Float3
	Confidence kinect.ConfidenceLevel
}

// SkeletonLog records the bodies of every result into one session.
type SkeletonLog struct {
	db        *DB
	sessionID string

	mu     sync.Mutex
	frames uint64
	ended  bool
}

// StartSession opens a new session for the given source description.
func (db *DB) StartSession(ctx context.Context, source string, mode kinect.DepthMode) (*SkeletonLog, error) {
	id := uuid.NewString()
	_, err := db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, source, depth_mode, started_ns) VALUES (?, ?, ?, ?)`,
		id, source, mode.String(), time.Now().UnixNano())
	if err != nil {
		return nil, fmt.Errorf("failed to start session: %w", err)
	}
	return &SkeletonLog{db: db, sessionID: id}, nil
}

// SessionID returns the UUID of the session.
func (s *SkeletonLog) SessionID() string {
	return s.sessionID
}

// Frames returns the number of frames recorded.
func (s *SkeletonLog) Frames() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// RecordFrame stores the frame and every joint of every body in one
// transaction.
func (s *SkeletonLog) RecordFrame(ctx context.Context, frame *kinect.BodyFrame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return fmt.Errorf("session %s has ended", s.sessionID)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO skeleton_frames (session_id, timestamp_ns, body_count) VALUES (?, ?, ?)`,
		s.sessionID, frame.Timestamp.Nanoseconds(), frame.NumBodies())
	if err != nil {
		return fmt.Errorf("failed to insert frame: %w", err)
	}
	frameID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get frame id: %w", err)
	}

	if frame.NumBodies() > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO skeleton_joints (frame_id, body_id, joint, x, y, z, qw, qx, qy, qz, confidence)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare joint insert: %w", err)
		}
		defer stmt.Close()

		for _, b := range frame.Bodies {
			for j, joint := range b.Skeleton.Joints {
				p, q := joint.Position, joint.Orientation
				if _, err := stmt.ExecContext(ctx, frameID, b.ID, kinect.JointNames[j],
					p.X, p.Y, p.Z, q.W, q.X, q.Y, q.Z, int(joint.Confidence)); err != nil {
					return fmt.Errorf("failed to insert joint %s of body %d: %w", kinect.JointNames[j], b.ID, err)
				}
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit frame: %w", err)
	}
	s.frames++
	return nil
}

// End marks the session as finished. Further frames are rejected.
func (s *SkeletonLog) End(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return nil
	}
	s.ended = true
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET ended_ns = ? WHERE session_id = ?`, time.Now().UnixNano(), s.sessionID)
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	return nil
}

// Sessions lists every session, newest first.
func (db *DB) Sessions(ctx context.Context) ([]Session, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT s.session_id, s.source, s.depth_mode, s.started_ns, s.ended_ns,
		       (SELECT COUNT(*) FROM skeleton_frames f WHERE f.session_id = s.session_id)
		FROM sessions s
		ORDER BY s.started_ns DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var (
			s       Session
			started int64
			ended   sql.NullInt64
		)
		if err := rows.Scan(&s.ID, &s.Source, &s.DepthMode, &started, &ended, &s.Frames); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		s.Started = time.Unix(0, started)
		if ended.Valid {
			s.Ended = time.Unix(0, ended.Int64)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// JointTrajectory returns the positions of one joint of one body over a
// session, in timestamp order. Points below minConfidence are skipped.
func (db *DB) JointTrajectory(ctx context.Context, sessionID string, bodyID uint32, joint kinect.JointID, minConfidence kinect.ConfidenceLevel) ([]TrajectoryPoint, error) {
	if joint < 0 || joint >= kinect.JointCount {
		return nil, fmt.Errorf("invalid joint %d", joint)
	}
	rows, err := db.QueryContext(ctx, `
		SELECT f.timestamp_ns, j.x, j.y, j.z, j.confidence
		FROM skeleton_joints j
		JOIN skeleton_frames f ON f.frame_id = j.frame_id
		WHERE f.session_id = ? AND j.body_id = ? AND j.joint = ? AND j.confidence >= ?
		ORDER BY f.timestamp_ns, f.frame_id`,
		sessionID, bodyID, kinect.JointNames[joint], int(minConfidence))
	if err != nil {
		return nil, fmt.Errorf("failed to query trajectory: %w", err)
	}
	defer rows.Close()

	var points []TrajectoryPoint
	for rows.Next() {
		var (
			ts   int64
			conf int
			p    TrajectoryPoint
		)
		if err := rows.Scan(&ts, &p.Position.X, &p.Position.Y, &p.Position.Z, &conf); err != nil {
			return nil, fmt.Errorf("failed to scan trajectory point: %w", err)
		}
		p.Timestamp = time.Duration(ts)
		p.Confidence = kinect.ConfidenceLevel(conf)
		points = append(points, p)
	}
	return points, rows.Err()
}

// BodyIDs returns the distinct body IDs seen in a session.
func (db *DB) BodyIDs(ctx context.Context, sessionID string) ([]uint32, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT body_id FROM body_summary WHERE session_id = ? ORDER BY body_id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query bodies: %w", err)
	}
	defer rows.Close()

	var ids []uint32
	for rows.Next() {
		var id uint32
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan body id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
