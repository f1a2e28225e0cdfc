package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ozRnDs/sort-and-choose-images/internal/store"
)

const faceColumns = "face_id, image_id, bbox, embedding, ron_in_face, hide_face, created_at"

// GetFace returns a single face with its embedding.
func (s *Store) GetFace(ctx context.Context, faceID string) (*store.FaceRecord, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+faceColumns+" FROM faces WHERE face_id = ?", faceID)

	rec, err := scanFace(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get face: %w", err)
	}

	return rec, nil
}

// GetFacesByImage returns all faces detected in an image, hidden included.
func (s *Store) GetFacesByImage(ctx context.Context, imageID string) ([]store.FaceRecord, error) {
	return s.queryFaces(ctx,
		"SELECT "+faceColumns+" FROM faces WHERE image_id = ? ORDER BY face_id", imageID)
}

// MarkedFaces returns the reference faces flagged ron_in_face.
func (s *Store) MarkedFaces(ctx context.Context) ([]store.FaceRecord, error) {
	return s.queryFaces(ctx,
		"SELECT "+faceColumns+" FROM faces WHERE ron_in_face = 1 ORDER BY face_id")
}

// FacesForImages returns faces belonging to any of the given images.
func (s *Store) FacesForImages(ctx context.Context, imageIDs []string, includeHidden bool) ([]store.FaceRecord, error) {
	if len(imageIDs) == 0 {
		return nil, nil
	}

	var sb strings.Builder
	sb.WriteString("SELECT " + faceColumns + " FROM faces WHERE image_id IN (")
	sb.WriteString(placeholders(len(imageIDs)))
	sb.WriteString(")")
	if !includeHidden {
		sb.WriteString(" AND hide_face = 0")
	}
	sb.WriteString(" ORDER BY face_id")

	args := make([]any, len(imageIDs))
	for i, id := range imageIDs {
		args[i] = id
	}

	return s.queryFaces(ctx, sb.String(), args...)
}

// HiddenFaceIDs returns the IDs of all faces hidden by the user.
func (s *Store) HiddenFaceIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT face_id FROM faces WHERE hide_face = 1")
	if err != nil {
		return nil, fmt.Errorf("failed to query hidden faces: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan face id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate hidden faces: %w", err)
	}

	return ids, nil
}

// AllFaces returns every stored face. Used to rebuild the vector index.
func (s *Store) AllFaces(ctx context.Context) ([]store.FaceRecord, error) {
	return s.queryFaces(ctx, "SELECT "+faceColumns+" FROM faces ORDER BY face_id")
}

// UpdateFaceFlags applies a partial update of the curated flags.
func (s *Store) UpdateFaceFlags(ctx context.Context, faceID string, flags store.FaceFlags) error {
	var sets []string
	var args []any
	if flags.RonInFace != nil {
		sets = append(sets, "ron_in_face = ?")
		args = append(args, *flags.RonInFace)
	}
	if flags.HideFace != nil {
		sets = append(sets, "hide_face = ?")
		args = append(args, *flags.HideFace)
	}
	if len(sets) == 0 {
		// Nothing to change, but the face must still exist.
		_, err := s.GetFace(ctx, faceID)
		return err
	}

	args = append(args, faceID)
	res, err := s.db.ExecContext(ctx,
		"UPDATE faces SET "+strings.Join(sets, ", ")+" WHERE face_id = ?", args...)
	if err != nil {
		return fmt.Errorf("failed to update face flags: %w", err)
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

// CountFaces returns the total number of stored faces.
func (s *Store) CountFaces(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM faces").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count faces: %w", err)
	}
	return n, nil
}

func (s *Store) queryFaces(ctx context.Context, query string, args ...any) ([]store.FaceRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query faces: %w", err)
	}
	defer rows.Close()

	var faces []store.FaceRecord
	for rows.Next() {
		rec, err := scanFace(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan face: %w", err)
		}
		faces = append(faces, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate faces: %w", err)
	}

	return faces, nil
}

func scanFace(row rowScanner) (*store.FaceRecord, error) {
	var rec store.FaceRecord
	var bbox, embedding string
	if err := row.Scan(
		&rec.FaceID, &rec.ImageID, &bbox, &embedding,
		&rec.RonInFace, &rec.HideFace, &rec.CreatedAt,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(bbox), &rec.BBox); err != nil {
		return nil, fmt.Errorf("invalid bbox for face %s: %w", rec.FaceID, err)
	}
	if err := json.Unmarshal([]byte(embedding), &rec.Embedding); err != nil {
		return nil, fmt.Errorf("invalid embedding for face %s: %w", rec.FaceID, err)
	}

	return &rec, nil
}
