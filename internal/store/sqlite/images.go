package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ozRnDs/sort-and-choose-images/internal/store"
)

// EnsureImages inserts a pending record for every unknown image ID. Insert
// order follows the given slice, so discovery order becomes claim order.
func (s *Store) EnsureImages(ctx context.Context, imageIDs []string) (int, error) {
	if len(imageIDs) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, "INSERT OR IGNORE INTO images (image_id) VALUES (?)")
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	created := 0
	for _, id := range imageIDs {
		res, err := stmt.ExecContext(ctx, id)
		if err != nil {
			return 0, fmt.Errorf("failed to insert image %s: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to read rows affected: %w", err)
		}
		created += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit: %w", err)
	}

	return created, nil
}

// ClaimNextPending flips the oldest pending record to in_progress and returns
// it in a single statement, so concurrent workers can never claim the same
// image.
func (s *Store) ClaimNextPending(ctx context.Context) (*store.ImageRecord, error) {
	query := `
		UPDATE images SET status = ?
		WHERE image_id = (
			SELECT image_id FROM images WHERE status = ? ORDER BY seq LIMIT 1
		)
		RETURNING image_id, status, retry_count, last_error, error_kind, discovered_at`

	row := s.db.QueryRowContext(ctx, query, store.StatusInProgress, store.StatusPending)

	rec, err := scanImage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim pending image: %w", err)
	}

	return rec, nil
}

// MarkDone replaces the image's faces and flips its status to done in one
// transaction. Replacing instead of appending keeps reprocessing idempotent.
func (s *Store) MarkDone(ctx context.Context, imageID string, faces []store.FaceRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM faces WHERE image_id = ?", imageID); err != nil {
		return fmt.Errorf("failed to clear previous faces: %w", err)
	}

	for _, f := range faces {
		bbox, err := json.Marshal(f.BBox)
		if err != nil {
			return fmt.Errorf("failed to encode bbox: %w", err)
		}
		embedding, err := json.Marshal(f.Embedding)
		if err != nil {
			return fmt.Errorf("failed to encode embedding: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO faces (face_id, image_id, bbox, embedding, ron_in_face, hide_face)
			VALUES (?, ?, ?, ?, ?, ?)`,
			f.FaceID, imageID, string(bbox), string(embedding), f.RonInFace, f.HideFace,
		); err != nil {
			return fmt.Errorf("failed to insert face %s: %w", f.FaceID, err)
		}
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE images SET status = ?, last_error = '', error_kind = ''
		WHERE image_id = ?`,
		store.StatusDone, imageID,
	)
	if err != nil {
		return fmt.Errorf("failed to update image status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}

	return nil
}

// MarkFailed records the failure cause and classification and bumps the retry
// counter.
func (s *Store) MarkFailed(ctx context.Context, imageID string, kind store.ErrorKind, cause string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE images
		SET status = ?, retry_count = retry_count + 1, last_error = ?, error_kind = ?
		WHERE image_id = ?`,
		store.StatusFailed, cause, kind, imageID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark image failed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}

	return nil
}

// ResetInProgress requeues images abandoned mid-processing by a crash.
func (s *Store) ResetInProgress(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE images SET status = ? WHERE status = ?",
		store.StatusPending, store.StatusInProgress,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to reset in-progress images: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}

	return int(n), nil
}

// ResetFailed requeues failed images for another attempt. Transient failures
// are always included; permanent ones only when includePermanent is set.
func (s *Store) ResetFailed(ctx context.Context, includePermanent bool) (int, error) {
	query := "UPDATE images SET status = ?, last_error = '', error_kind = '' WHERE status = ?"
	args := []any{store.StatusPending, store.StatusFailed}
	if !includePermanent {
		query += " AND error_kind = ?"
		args = append(args, store.ErrorKindTransient)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to reset failed images: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}

	return int(n), nil
}

// ResetFailedImage requeues a single failed image regardless of its error
// classification.
func (s *Store) ResetFailedImage(ctx context.Context, imageID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE images SET status = ?, last_error = '', error_kind = ''
		WHERE image_id = ? AND status = ?`,
		store.StatusPending, imageID, store.StatusFailed,
	)
	if err != nil {
		return fmt.Errorf("failed to reset image %s: %w", imageID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}

	return nil
}

// GetImage returns a single image record.
func (s *Store) GetImage(ctx context.Context, imageID string) (*store.ImageRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT image_id, status, retry_count, last_error, error_kind, discovered_at
		FROM images WHERE image_id = ?`,
		imageID,
	)

	rec, err := scanImage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get image: %w", err)
	}

	return rec, nil
}

// StatusCounts returns the per-status breakdown of all images.
func (s *Store) StatusCounts(ctx context.Context) (store.StatusCounts, error) {
	var counts store.StatusCounts

	rows, err := s.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM images GROUP BY status")
	if err != nil {
		return counts, fmt.Errorf("failed to count images: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status store.Status
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return counts, fmt.Errorf("failed to scan status count: %w", err)
		}
		switch status {
		case store.StatusPending:
			counts.Pending = n
		case store.StatusInProgress:
			counts.InProgress = n
		case store.StatusDone:
			counts.Done = n
		case store.StatusFailed:
			counts.Failed = n
		}
	}
	if err := rows.Err(); err != nil {
		return counts, fmt.Errorf("failed to iterate status counts: %w", err)
	}

	return counts, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanImage(row rowScanner) (*store.ImageRecord, error) {
	var rec store.ImageRecord
	if err := row.Scan(
		&rec.ImageID, &rec.Status, &rec.RetryCount,
		&rec.LastError, &rec.ErrorKind, &rec.DiscoveredAt,
	); err != nil {
		return nil, err
	}
	return &rec, nil
}
