package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/noot-app/petfood-nutrition-server/internal/nutrition"
)

// SaveSession inserts or updates a scan session.
func (s *SQLiteStore) SaveSession(ctx context.Context, sess *ScanSession) error {
	now := s.now().UTC().Truncate(time.Second)
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = now
	}
	sess.UpdatedAt = now
	if sess.FoodType == "" {
		sess.FoodType = nutrition.FoodTypeUnknown
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scan_sessions (id, barcode, status, food_type, frames, result, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			barcode = excluded.barcode,
			status = excluded.status,
			food_type = excluded.food_type,
			frames = excluded.frames,
			result = excluded.result,
			updated_at = excluded.updated_at`,
		sess.ID, sess.Barcode, string(sess.Status), string(sess.FoodType), sess.Frames,
		nullBytes(sess.Result), sess.CreatedAt.Unix(), sess.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save session %s: %w", sess.ID, err)
	}
	return nil
}

func nullBytes(b []byte) sql.NullString {
	return sql.NullString{String: string(b), Valid: len(b) > 0}
}

// GetSession loads a scan session.
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*ScanSession, error) {
	var (
		sess                 ScanSession
		result               sql.NullString
		createdAt, updatedAt int64
	)

	err := s.db.QueryRowContext(ctx, `
		SELECT id, barcode, status, food_type, frames, result, created_at, updated_at
		FROM scan_sessions WHERE id = ?`, id).Scan(
		&sess.ID, &sess.Barcode, &sess.Status, &sess.FoodType, &sess.Frames,
		&result, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", id, err)
	}

	if result.Valid {
		sess.Result = []byte(result.String)
	}
	sess.CreatedAt = time.Unix(createdAt, 0).UTC()
	sess.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &sess, nil
}

// AddReadings stores the readings of one frame.
func (s *SQLiteStore) AddReadings(ctx context.Context, sessionID string, frame int, readings []nutrition.Reading) error {
	if len(readings) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO scan_readings (session_id, frame, nutrient, value, created_at)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare reading insert: %w", err)
	}
	defer stmt.Close()

	now := s.now().UTC().Unix()
	for _, r := range readings {
		if _, err := stmt.ExecContext(ctx, sessionID, frame, r.Nutrient.String(), r.Value, now); err != nil {
			return fmt.Errorf("failed to store reading for session %s: %w", sessionID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit readings: %w", err)
	}
	return nil
}

// SessionReadings returns every reading of a session in insertion order.
func (s *SQLiteStore) SessionReadings(ctx context.Context, sessionID string) ([]StoredReading, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT frame, nutrient, value, created_at
		FROM scan_readings WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query readings: %w", err)
	}
	defer rows.Close()

	var readings []StoredReading
	for rows.Next() {
		var (
			r         StoredReading
			nutrient  string
			createdAt int64
		)
		if err := rows.Scan(&r.Frame, &nutrient, &r.Value, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}
		if r.Nutrient, err = nutrition.ParseNutrient(nutrient); err != nil {
			return nil, err
		}
		r.CreatedAt = time.Unix(createdAt, 0).UTC()
		readings = append(readings, r)
	}
	return readings, rows.Err()
}

// ExpireSessions marks open sessions not updated since before as expired and
// returns how many were changed.
func (s *SQLiteStore) ExpireSessions(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE scan_sessions SET status = ?, updated_at = ?
		WHERE status = ? AND updated_at < ?`,
		string(SessionExpired), s.now().UTC().Unix(), string(SessionOpen), before.UTC().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to expire sessions: %w", err)
	}
	return res.RowsAffected()
}
