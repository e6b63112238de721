package s3

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-motion/recording"
)

func TestObjectKey(t *testing.T) {
	assert.Equal(t, "run-1/lobby.mp4", ObjectKey("run-1", "/processed/lobby.mp4"))
	assert.Equal(t, "run-1/lobby_log.json", ObjectKey("run-1", "lobby_log.json"))
}

func TestContentType(t *testing.T) {
	tests := map[string]string{
		"a_log.json":    "application/json",
		"a_event_1.jpg": "image/jpeg",
		"A.MP4":         "video/mp4",
		"a.avi":         "video/x-msvideo",
		"a.bin":         "application/octet-stream",
	}
	for file, want := range tests {
		assert.Equal(t, want, ContentType(file), file)
	}
}

func writeFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o600))
}

func TestUploads(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "lobby.mp4")
	logPath := filepath.Join(dir, "lobby_log.json")
	snap := filepath.Join(dir, "lobby_event_1.jpg")
	writeFile(t, output)
	writeFile(t, logPath)
	writeFile(t, snap)

	summary := &recording.Summary{
		Output:        output,
		LogPath:       logPath,
		Snapshots:     []string{snap, filepath.Join(dir, "missing.jpg")},
		FramesWritten: 31,
	}
	assert.Equal(t, []string{output, logPath, snap}, Uploads(summary))

	summary.FramesWritten = 0
	assert.Equal(t, []string{logPath, snap}, Uploads(summary))
}

// TestPublish runs against a live server when MOTION_TEST_MINIO_ENDPOINT is
// set, with credentials from MOTION_TEST_MINIO_ACCESS_KEY and
// MOTION_TEST_MINIO_SECRET_KEY.
func TestPublish(t *testing.T) {
	endpoint := os.Getenv("MOTION_TEST_MINIO_ENDPOINT")
	if endpoint == "" {
		t.Skip("MOTION_TEST_MINIO_ENDPOINT not set")
	}

	client, err := NewMinioClient(endpoint,
		os.Getenv("MOTION_TEST_MINIO_ACCESS_KEY"),
		os.Getenv("MOTION_TEST_MINIO_SECRET_KEY"),
		"motion-test", false)
	require.NoError(t, err)

	dir := t.TempDir()
	logPath := filepath.Join(dir, "lobby_log.json")
	require.NoError(t, os.WriteFile(logPath, []byte("[]\n"), 0o600))

	summary := &recording.Summary{RunID: uuid.NewString(), Recording: "lobby.mp4", LogPath: logPath}
	ctx := context.Background()
	require.NoError(t, client.Publish(ctx, summary))

	data, err := client.Download(ctx, ObjectKey(summary.RunID, logPath))
	require.NoError(t, err)
	assert.Equal(t, "[]\n", string(data))

	_, err = client.Download(ctx, ObjectKey(summary.RunID, "summary.json"))
	require.NoError(t, err)
}
