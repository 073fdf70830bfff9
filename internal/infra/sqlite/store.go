package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Sane-Sunil/Human-detection/internal/domain/entity"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS videos (
  id          INTEGER PRIMARY KEY AUTOINCREMENT,
  filename    TEXT NOT NULL,
  source_path TEXT NOT NULL,
  output_path TEXT,
  created_at  INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS detections (
  id           INTEGER PRIMARY KEY AUTOINCREMENT,
  video_id     INTEGER NOT NULL REFERENCES videos(id) ON DELETE CASCADE,
  frame_number INTEGER NOT NULL,
  x            REAL NOT NULL,
  y            REAL NOT NULL,
  width        REAL NOT NULL,
  height       REAL NOT NULL,
  confidence   REAL NOT NULL,
  class        TEXT NOT NULL,
  created_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_detections_video_frame ON detections (video_id, frame_number);
`

// Store is the single-file backend for local runs: videos and detections in
// one SQLite database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

func Open(path string) (*Store, error) {
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// concurrent runs write through one connection; sqlite has a single writer anyway
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Record(
	ctx context.Context,
	videoID int64,
	frameNumber int,
	box entity.Box,
	confidence float64,
	class string,
) (*entity.Detection, error) {
	created := s.now()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO detections (video_id, frame_number, x, y, width, height, confidence, class, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		videoID, frameNumber, box.X, box.Y, box.Width, box.Height, confidence, class, created.UnixMilli(),
	)
	if err != nil {
		return nil, entity.NewProcessingError(entity.KindStore, "insert detection", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, entity.NewProcessingError(entity.KindStore, "insert detection", err)
	}
	return &entity.Detection{
		ID:          id,
		VideoID:     videoID,
		FrameNumber: frameNumber,
		Box:         box,
		Confidence:  confidence,
		Class:       class,
		CreatedAt:   time.UnixMilli(created.UnixMilli()).UTC(),
	}, nil
}

func (s *Store) ListByVideo(ctx context.Context, videoID int64) ([]entity.Detection, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, video_id, frame_number, x, y, width, height, confidence, class, created_at
       FROM detections WHERE video_id = ? ORDER BY frame_number, id`, videoID,
	)
	if err != nil {
		return nil, fmt.Errorf("list detections: %w", err)
	}
	defer rows.Close()

	var out []entity.Detection
	for rows.Next() {
		var (
			d         entity.Detection
			createdMs int64
		)
		if err := rows.Scan(
			&d.ID, &d.VideoID, &d.FrameNumber,
			&d.Box.X, &d.Box.Y, &d.Box.Width, &d.Box.Height,
			&d.Confidence, &d.Class, &createdMs,
		); err != nil {
			return nil, fmt.Errorf("scan detection: %w", err)
		}
		d.CreatedAt = time.UnixMilli(createdMs).UTC()
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) HasDetections(ctx context.Context, videoID int64) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM detections WHERE video_id = ?)`, videoID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check detections: %w", err)
	}
	return exists == 1, nil
}

func (s *Store) DeleteByVideo(ctx context.Context, videoID int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM detections WHERE video_id = ?`, videoID)
	if err != nil {
		return 0, entity.NewProcessingError(entity.KindStore, "delete detections", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (s *Store) Create(ctx context.Context, v *entity.Video) error {
	v.CreatedAt = time.UnixMilli(s.now().UnixMilli()).UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO videos (filename, source_path, created_at) VALUES (?, ?, ?)`,
		v.Filename, v.SourcePath, v.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert video: %w", err)
	}
	v.ID, err = res.LastInsertId()
	return err
}

func (s *Store) FindByID(ctx context.Context, id int64) (*entity.Video, error) {
	var (
		v         entity.Video
		output    sql.NullString
		createdMs int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, filename, source_path, output_path, created_at FROM videos WHERE id = ?`, id,
	).Scan(&v.ID, &v.Filename, &v.SourcePath, &output, &createdMs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find video by id: %w", err)
	}
	if output.Valid {
		v.OutputPath = output.String
	}
	v.CreatedAt = time.UnixMilli(createdMs).UTC()
	return &v, nil
}

func (s *Store) SetOutputPath(ctx context.Context, id int64, outputPath string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE videos SET output_path = ? WHERE id = ?`, outputPath, id)
	if err != nil {
		return entity.NewProcessingError(entity.KindStore, "set output path", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return entity.NewProcessingError(entity.KindStore, "set output path", entity.ErrNotFound)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM videos WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete video: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return entity.ErrNotFound
	}
	return nil
}
