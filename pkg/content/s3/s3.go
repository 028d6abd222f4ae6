// Package s3 implements content storage on Amazon S3 or any S3-compatible
// service.
package s3

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/marmos91/godfs/internal/logger"
	"github.com/marmos91/godfs/pkg/content"
	"github.com/marmos91/godfs/pkg/metadata"
)

// API is the subset of *s3.Client the store uses.
type API interface {
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3ContentStore implements content.Store with one object per ContentID.
//
// S3 Characteristics:
//   - Object storage (no true random access like filesystem)
//   - Supports range reads (for partial reads)
//   - Objects are replaced whole by PutObject
//
// Implementation Details:
//   - Sequential WriteAt calls starting at offset 0 are buffered in memory and
//     uploaded in a single PutObject by FlushWrites
//   - Any other write falls back to read-modify-write of the whole object
//   - No local read caching (every read hits S3)
//
// Thread Safety:
// Safe for concurrent use. Concurrent writes to the same ContentID are
// last-write-wins.
type S3ContentStore struct {
	client    API
	bucket    string
	keyPrefix string
	metrics   Metrics

	// writeBuffers holds pending sequential writes keyed by ContentID
	writeBuffers   map[metadata.ContentID]*writeBuffer
	writeBuffersMu sync.Mutex
}

// writeBuffer accumulates a sequential write stream for one object.
type writeBuffer struct {
	mu           sync.Mutex
	data         []byte
	expectedSize int64
	lastWrite    time.Time
}

// S3ContentStoreConfig contains configuration for S3 content store.
type S3ContentStoreConfig struct {
	// Client is the configured S3 client
	Client API

	// Bucket is the S3 bucket name
	Bucket string

	// KeyPrefix is an optional prefix for all object keys
	// Example: "godfs/content/" results in keys like "godfs/content/abc123"
	KeyPrefix string

	// Metrics receives per-operation observations. nil disables collection.
	Metrics Metrics
}

// NewS3ContentStore creates a new S3-based content store.
//
// The bucket must already exist; this function only verifies access to it.
//
// Parameters:
//   - ctx: Context for cancellation and timeouts
//   - cfg: S3 configuration
//
// Returns:
//   - *S3ContentStore: Initialized S3 content store
//   - error: Returns error if bucket access fails or context is cancelled
func NewS3ContentStore(ctx context.Context, cfg S3ContentStoreConfig) (*S3ContentStore, error) {
	// ========================================================================
	// Step 1: Check context before S3 operations
	// ========================================================================

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// ========================================================================
	// Step 2: Validate configuration
	// ========================================================================

	if cfg.Client == nil {
		return nil, fmt.Errorf("S3 client is required")
	}

	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}

	m := cfg.Metrics
	if m == nil {
		m = noopMetrics{}
	}

	// ========================================================================
	// Step 3: Verify bucket access
	// ========================================================================

	_, err := cfg.Client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(cfg.Bucket),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to access bucket %q: %w: %v", cfg.Bucket, content.ErrUnavailable, err)
	}

	logger.Debug("S3 content store ready: bucket=%s prefix=%q", cfg.Bucket, cfg.KeyPrefix)

	return &S3ContentStore{
		client:       cfg.Client,
		bucket:       cfg.Bucket,
		keyPrefix:    cfg.KeyPrefix,
		metrics:      m,
		writeBuffers: make(map[metadata.ContentID]*writeBuffer),
	}, nil
}

// getObjectKey returns the full S3 object key for a given content ID.
func (s *S3ContentStore) getObjectKey(id metadata.ContentID) string {
	return s.keyPrefix + string(id)
}

// isNotFound matches both error shapes S3 uses for missing objects:
// NoSuchKey from GetObject and a bare 404 NotFound from HeadObject.
func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}

// isInvalidRange reports an out-of-bounds range request.
func isInvalidRange(err error) bool {
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "InvalidRange"
}

// Stats lists every object under the key prefix and sums their sizes.
//
// This is expensive for large buckets: it pages through ListObjectsV2.
func (s *S3ContentStore) Stats(ctx context.Context) (stats *content.Stats, err error) {
	start := time.Now()
	defer func() {
		s.metrics.ObserveOperation("Stats", time.Since(start), err)
	}()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var totalSize, objectCount int64

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.keyPrefix),
	})

	for paginator.HasMorePages() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}

		for _, obj := range page.Contents {
			if obj.Size != nil {
				totalSize += *obj.Size
			}
			objectCount++
		}
	}

	// S3 has effectively unlimited storage
	return content.NewStats(content.Unbounded, totalSize, objectCount), nil
}

// ListContent pages through every object under the key prefix.
func (s *S3ContentStore) ListContent(ctx context.Context) (ids []metadata.ContentID, err error) {
	start := time.Now()
	defer func() {
		s.metrics.ObserveOperation("ListContent", time.Since(start), err)
	}()

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.keyPrefix),
	})

	for paginator.HasMorePages() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}

		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if id, ok := strings.CutPrefix(key, s.keyPrefix); ok && id != "" {
				ids = append(ids, metadata.ContentID(id))
			}
		}
	}
	return ids, nil
}

// Close uploads every pending write buffer.
func (s *S3ContentStore) Close() error {
	s.writeBuffersMu.Lock()
	ids := make([]metadata.ContentID, 0, len(s.writeBuffers))
	for id := range s.writeBuffers {
		ids = append(ids, id)
	}
	s.writeBuffersMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var firstErr error
	for _, id := range ids {
		if err := s.FlushWrites(ctx, id); err != nil {
			logger.Error("S3 content store: flush on close failed for %s: %v", id, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
