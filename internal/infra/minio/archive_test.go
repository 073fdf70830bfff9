package minio

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcminio "github.com/testcontainers/testcontainers-go/modules/minio"
)

func TestArchiveOutput(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, err := tcminio.Run(ctx,
		"minio/minio:latest",
		tcminio.WithUsername("minioadmin"),
		tcminio.WithPassword("minioadmin"),
	)
	require.NoError(t, err)
	defer container.Terminate(ctx)

	endpoint, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	archive, err := NewArchive(ArchiveConfig{
		Endpoint:  endpoint,
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
		Bucket:    "processed-videos",
	})
	require.NoError(t, err)
	require.NoError(t, archive.EnsureBucket(ctx))
	require.NoError(t, archive.EnsureBucket(ctx), "idempotent")

	local := filepath.Join(t.TempDir(), "video_3.mp4")
	payload := []byte("not really an mp4 but bytes are bytes")
	require.NoError(t, os.WriteFile(local, payload, 0o644))

	require.NoError(t, archive.ArchiveOutput(ctx, "video_3.mp4", local))

	size, err := archive.Stat(ctx, "video_3.mp4")
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), size)

	assert.Error(t, archive.ArchiveOutput(ctx, "missing.mp4", filepath.Join(t.TempDir(), "nope.mp4")))
}
