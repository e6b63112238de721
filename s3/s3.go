// Package s3 uploads recording outputs to S3 compatible object storage.
package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/nvr-ai/go-motion/recording"
)

// Client uploads the trimmed video, the event log, the snapshots and the
// summary of every recording under <run_id>/ in one bucket.
type Client struct {
	client *minio.Client
	bucket string

	mu          sync.Mutex
	bucketReady bool
}

// NewMinioClient creates a client for endpoint. No request is made until the
// first upload.
func NewMinioClient(endpoint, accessKey, secretKey, bucket string, secure bool) (*Client, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create MinIO client")
	}
	return &Client{client: client, bucket: bucket}, nil
}

// Name implements recording.Publisher.
func (c *Client) Name() string { return "s3" }

// ObjectKey returns the key of a file produced by run runID.
func ObjectKey(runID, file string) string {
	return path.Join(runID, filepath.Base(file))
}

// ContentType returns the MIME type stored with file.
func ContentType(file string) string {
	switch strings.ToLower(filepath.Ext(file)) {
	case ".json":
		return "application/json"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".mp4":
		return "video/mp4"
	case ".avi":
		return "video/x-msvideo"
	default:
		return "application/octet-stream"
	}
}

// Uploads returns the local files uploaded for summary. The trimmed video is
// skipped when it holds no frames, and missing files are skipped.
func Uploads(summary *recording.Summary) []string {
	var files []string
	if summary.FramesWritten > 0 {
		files = append(files, summary.Output)
	}
	files = append(files, summary.LogPath)
	files = append(files, summary.Snapshots...)
	return lo.Filter(files, func(file string, _ int) bool {
		return file != "" && exists(file)
	})
}

// Publish uploads the outputs of summary followed by summary.json.
func (c *Client) Publish(ctx context.Context, summary *recording.Summary) error {
	if err := c.ensureBucket(ctx); err != nil {
		return err
	}

	for _, file := range Uploads(summary) {
		key := ObjectKey(summary.RunID, file)
		_, err := c.client.FPutObject(ctx, c.bucket, key, file, minio.PutObjectOptions{
			ContentType: ContentType(file),
		})
		if err != nil {
			return errors.Wrapf(err, "failed to upload %s", key)
		}
	}

	payload, err := json.Marshal(summary)
	if err != nil {
		return errors.Wrap(err, "failed to encode summary")
	}
	key := ObjectKey(summary.RunID, "summary.json")
	_, err = c.client.PutObject(ctx, c.bucket, key, bytes.NewReader(payload), int64(len(payload)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return errors.Wrapf(err, "failed to upload %s", key)
	}
	return nil
}

// ensureBucket creates the bucket on first use.
func (c *Client) ensureBucket(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bucketReady {
		return nil
	}

	exists, err := c.client.BucketExists(ctx, c.bucket)
	if err != nil {
		return errors.Wrapf(err, "failed to check bucket %s", c.bucket)
	}
	if !exists {
		if err := c.client.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{}); err != nil {
			return errors.Wrapf(err, "failed to create bucket %s", c.bucket)
		}
	}
	c.bucketReady = true
	return nil
}

// Download fetches an uploaded object into memory.
func (c *Client) Download(ctx context.Context, key string) ([]byte, error) {
	obj, err := c.client.GetObject(ctx, c.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get %s", key)
	}
	defer obj.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(obj); err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", key)
	}
	return buf.Bytes(), nil
}

func exists(file string) bool {
	_, err := os.Stat(file)
	return err == nil
}
