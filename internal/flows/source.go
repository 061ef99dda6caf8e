package flows

import (
	"context"
	"fmt"
	"os"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"

	"flowkit/internal/config"
	"flowkit/pkg/models"

	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"
)

// FileSource reads the document from the local filesystem.
type FileSource struct {
	Path string
}

// Name returns the file path.
func (s *FileSource) Name() string {
	return s.Path
}

// Load reads and parses the file.
func (s *FileSource) Load(_ context.Context) (*models.FlowDocument, error) {
	data, err := os.ReadFile(s.Path) //#nosec G304 -- path comes from configuration
	if err != nil {
		return nil, fmt.Errorf("failed to read flow document: %w", err)
	}
	return Parse(data, s.Path)
}

// BucketSource reads the document from a gocloud blob bucket, which covers
// s3://, gs://, file:// and mem:// URLs.
type BucketSource struct {
	URL string
	Key string
}

// Name returns the bucket URL and key.
func (s *BucketSource) Name() string {
	return s.URL + " " + s.Key
}

// Load opens the bucket, reads the key and parses it.
func (s *BucketSource) Load(ctx context.Context) (*models.FlowDocument, error) {
	bucket, err := blob.OpenBucket(ctx, s.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open flow bucket: %w", err)
	}
	defer bucket.Close()

	data, err := bucket.ReadAll(ctx, s.Key)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, fmt.Errorf("flow document %q not found in bucket: %w", s.Key, err)
		}
		return nil, fmt.Errorf("failed to read flow document: %w", err)
	}
	return Parse(data, s.Name())
}

// NewSource picks the bucket source when a bucket is configured and the
// file source otherwise.
func NewSource(cfg config.FlowsConfig) Source {
	if cfg.Bucket != "" {
		return &BucketSource{URL: cfg.Bucket, Key: cfg.Key}
	}
	return &FileSource{Path: cfg.File}
}
