package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/Sane-Sunil/Human-detection/internal/domain/entity"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DetectionRepository persists detections, one committed row per call.
type DetectionRepository struct {
	pool *pgxpool.Pool
}

func NewDetectionRepository(pool *pgxpool.Pool) *DetectionRepository {
	return &DetectionRepository{pool: pool}
}

func (r *DetectionRepository) Record(
	ctx context.Context,
	videoID int64,
	frameNumber int,
	box entity.Box,
	confidence float64,
	class string,
) (*entity.Detection, error) {
	query := `
		INSERT INTO detections (
			video_id, frame_number, x, y, width, height, confidence, class
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING id, created_at`

	d := &entity.Detection{
		VideoID:     videoID,
		FrameNumber: frameNumber,
		Box:         box,
		Confidence:  confidence,
		Class:       class,
	}
	err := r.pool.QueryRow(ctx, query,
		videoID, frameNumber, box.X, box.Y, box.Width, box.Height, confidence, class,
	).Scan(&d.ID, &d.CreatedAt)
	if err != nil {
		return nil, entity.NewProcessingError(entity.KindStore, "insert detection", err)
	}
	return d, nil
}

func (r *DetectionRepository) ListByVideo(ctx context.Context, videoID int64) ([]entity.Detection, error) {
	query := `
		SELECT id, video_id, frame_number, x, y, width, height, confidence, class, created_at
		FROM detections WHERE video_id=$1
		ORDER BY frame_number, id`

	rows, err := r.pool.Query(ctx, query, videoID)
	if err != nil {
		return nil, fmt.Errorf("list detections: %w", err)
	}
	defer rows.Close()

	var out []entity.Detection
	for rows.Next() {
		var d entity.Detection
		if err := rows.Scan(
			&d.ID, &d.VideoID, &d.FrameNumber,
			&d.Box.X, &d.Box.Y, &d.Box.Width, &d.Box.Height,
			&d.Confidence, &d.Class, &d.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan detection: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *DetectionRepository) HasDetections(ctx context.Context, videoID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM detections WHERE video_id=$1)`, videoID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check detections: %w", err)
	}
	return exists, nil
}

func (r *DetectionRepository) DeleteByVideo(ctx context.Context, videoID int64) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM detections WHERE video_id=$1`, videoID)
	if err != nil {
		return 0, entity.NewProcessingError(entity.KindStore, "delete detections", err)
	}
	return tag.RowsAffected(), nil
}

type VideoRepository struct {
	pool *pgxpool.Pool
}

func NewVideoRepository(pool *pgxpool.Pool) *VideoRepository {
	return &VideoRepository{pool: pool}
}

func (r *VideoRepository) Create(ctx context.Context, v *entity.Video) error {
	query := `
		INSERT INTO videos (filename, source_path)
		VALUES ($1,$2)
		RETURNING id, created_at`

	if err := r.pool.QueryRow(ctx, query, v.Filename, v.SourcePath).Scan(&v.ID, &v.CreatedAt); err != nil {
		return fmt.Errorf("insert video: %w", err)
	}
	return nil
}

func (r *VideoRepository) FindByID(ctx context.Context, id int64) (*entity.Video, error) {
	query := `
		SELECT id, filename, source_path, COALESCE(output_path, ''), created_at
		FROM videos WHERE id=$1`

	v := &entity.Video{}
	err := r.pool.QueryRow(ctx, query, id).Scan(&v.ID, &v.Filename, &v.SourcePath, &v.OutputPath, &v.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, entity.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find video by id: %w", err)
	}
	return v, nil
}

func (r *VideoRepository) SetOutputPath(ctx context.Context, id int64, outputPath string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE videos SET output_path=$2 WHERE id=$1`, id, outputPath)
	if err != nil {
		return entity.NewProcessingError(entity.KindStore, "set output path", err)
	}
	if tag.RowsAffected() == 0 {
		return entity.NewProcessingError(entity.KindStore, "set output path", entity.ErrNotFound)
	}
	return nil
}

// Delete removes the video; its detections go with it (ON DELETE CASCADE).
func (r *VideoRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM videos WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete video: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return entity.ErrNotFound
	}
	return nil
}
