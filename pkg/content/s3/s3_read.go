package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/marmos91/godfs/pkg/content"
	"github.com/marmos91/godfs/pkg/metadata"
)

// ReadAt reads data from the specified offset without downloading the entire object.
//
// This uses S3 byte-range requests. Pending buffered writes to id are
// uploaded first so reads always observe earlier writes.
//
// Returns io.EOF if offset is at or beyond end of content.
func (s *S3ContentStore) ReadAt(ctx context.Context, id metadata.ContentID, p []byte, offset int64) (n int, err error) {
	start := time.Now()
	defer func() {
		s.metrics.ObserveOperation("ReadAt", time.Since(start), ignoreEOF(err))
		if n > 0 {
			s.metrics.RecordBytes("read", int64(n))
		}
	}()

	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if offset < 0 {
		return 0, fmt.Errorf("read %s at %d: %w", id, offset, content.ErrInvalidOffset)
	}
	if err := s.FlushWrites(ctx, id); err != nil {
		return 0, err
	}

	if len(p) == 0 {
		if _, err := s.Size(ctx, id); err != nil {
			return 0, err
		}
		return 0, nil
	}

	// S3 range is inclusive, so end = offset + len(p) - 1
	end := offset + int64(len(p)) - 1
	rangeStr := fmt.Sprintf("bytes=%d-%d", offset, end)

	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.getObjectKey(id)),
		Range:  aws.String(rangeStr),
	})
	if err != nil {
		if isNotFound(err) {
			return 0, fmt.Errorf("content %s: %w", id, content.ErrContentNotFound)
		}

		// S3 rejects ranges that start past the end of the object
		if isInvalidRange(err) {
			return 0, io.EOF
		}

		return 0, fmt.Errorf("failed to read from S3: %w", err)
	}
	defer func() { _ = result.Body.Close() }()

	n, err = io.ReadFull(result.Body, p)
	if errors.Is(err, io.ErrUnexpectedEOF) || (errors.Is(err, io.EOF) && n == 0) {
		// The object is shorter than the requested range
		return n, io.EOF
	}
	if err != nil {
		return n, fmt.Errorf("failed to read from S3: %w", err)
	}
	return n, nil
}

// readObject downloads the whole object.
func (s *S3ContentStore) readObject(ctx context.Context, id metadata.ContentID) ([]byte, error) {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.getObjectKey(id)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("content %s: %w", id, content.ErrContentNotFound)
		}
		return nil, fmt.Errorf("failed to get object from S3: %w", err)
	}
	defer func() { _ = result.Body.Close() }()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read existing content: %w", err)
	}
	s.metrics.RecordBytes("read", int64(len(data)))
	return data, nil
}

// Size returns the size of the content in bytes.
//
// Buffered content reports the size it will have once flushed; otherwise a
// HEAD request is issued.
func (s *S3ContentStore) Size(ctx context.Context, id metadata.ContentID) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	if size, ok := s.bufferedSize(id); ok {
		return size, nil
	}

	result, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.getObjectKey(id)),
	})
	if err != nil {
		if isNotFound(err) {
			return 0, fmt.Errorf("content %s: %w", id, content.ErrContentNotFound)
		}
		return 0, fmt.Errorf("failed to head object: %w", err)
	}

	if result.ContentLength == nil {
		return 0, fmt.Errorf("content length not available for %s", id)
	}

	return *result.ContentLength, nil
}

// Exists checks if content with the given ID exists in S3 or is buffered.
//
// Returns an error only for S3 failures or context cancellation, never for
// missing objects.
func (s *S3ContentStore) Exists(ctx context.Context, id metadata.ContentID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	if _, ok := s.bufferedSize(id); ok {
		return true, nil
	}

	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.getObjectKey(id)),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check object existence: %w", err)
	}

	return true, nil
}

func ignoreEOF(err error) error {
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
