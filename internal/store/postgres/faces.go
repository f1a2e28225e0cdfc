package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/ozRnDs/sort-and-choose-images/internal/store"
)

const faceColumns = "face_id, image_id, bbox, embedding, ron_in_face, hide_face, created_at"

// GetFace returns a single face with its embedding.
func (s *Store) GetFace(ctx context.Context, faceID string) (*store.FaceRecord, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+faceColumns+" FROM faces WHERE face_id = $1", faceID)

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
		"SELECT "+faceColumns+" FROM faces WHERE image_id = $1 ORDER BY face_id", imageID)
}

// MarkedFaces returns the reference faces flagged ron_in_face.
func (s *Store) MarkedFaces(ctx context.Context) ([]store.FaceRecord, error) {
	return s.queryFaces(ctx,
		"SELECT "+faceColumns+" FROM faces WHERE ron_in_face ORDER BY face_id")
}

// FacesForImages returns faces belonging to any of the given images.
func (s *Store) FacesForImages(ctx context.Context, imageIDs []string, includeHidden bool) ([]store.FaceRecord, error) {
	if len(imageIDs) == 0 {
		return nil, nil
	}

	var sb strings.Builder
	sb.WriteString("SELECT " + faceColumns + " FROM faces WHERE image_id = ANY($1)")
	if !includeHidden {
		sb.WriteString(" AND NOT hide_face")
	}
	sb.WriteString(" ORDER BY face_id")

	return s.queryFaces(ctx, sb.String(), pq.Array(imageIDs))
}

// HiddenFaceIDs returns the IDs of all faces hidden by the user.
func (s *Store) HiddenFaceIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT face_id FROM faces WHERE hide_face")
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
		args = append(args, *flags.RonInFace)
		sets = append(sets, fmt.Sprintf("ron_in_face = $%d", len(args)))
	}
	if flags.HideFace != nil {
		args = append(args, *flags.HideFace)
		sets = append(sets, fmt.Sprintf("hide_face = $%d", len(args)))
	}
	if len(sets) == 0 {
		// Nothing to change, but the face must still exist.
		_, err := s.GetFace(ctx, faceID)
		return err
	}

	args = append(args, faceID)
	query := fmt.Sprintf("UPDATE faces SET %s WHERE face_id = $%d",
		strings.Join(sets, ", "), len(args))

	res, err := s.db.ExecContext(ctx, query, args...)
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
	var bbox pq.Float64Array
	var vec pgvector.Vector
	if err := row.Scan(
		&rec.FaceID, &rec.ImageID, &bbox, &vec,
		&rec.RonInFace, &rec.HideFace, &rec.CreatedAt,
	); err != nil {
		return nil, err
	}

	rec.BBox = []float64(bbox)
	rec.Embedding = vec.Slice()
	return &rec, nil
}
