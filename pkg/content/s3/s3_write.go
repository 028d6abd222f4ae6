package s3

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/marmos91/godfs/internal/logger"
	"github.com/marmos91/godfs/pkg/content"
	"github.com/marmos91/godfs/pkg/metadata"
)

// WriteAt writes data at the specified offset.
//
// Write Patterns:
//  1. First write at offset 0 to content that does not exist yet: start an
//     in-memory buffer
//  2. Sequential writes (offset = buffered size): append to the buffer
//  3. Anything else: flush the buffer, then read-modify-write the object
//
// Because PutObject replaces the entire object, buffered data is uploaded
// once by FlushWrites rather than in parts.
func (s *S3ContentStore) WriteAt(ctx context.Context, id metadata.ContentID, data []byte, offset int64) (err error) {
	start := time.Now()
	defer func() {
		s.metrics.ObserveOperation("WriteAt", time.Since(start), err)
	}()

	if err := ctx.Err(); err != nil {
		return err
	}
	if offset < 0 {
		return fmt.Errorf("write %s at %d: %w", id, offset, content.ErrInvalidOffset)
	}

	// ========================================================================
	// Fast path: append to an existing sequential buffer
	// ========================================================================

	if s.appendBuffered(id, data, offset) {
		return nil
	}

	// ========================================================================
	// Start buffering a brand new object
	// ========================================================================

	if offset == 0 {
		exists, err := s.objectExists(ctx, id)
		if err != nil {
			return err
		}
		if !exists && s.startBuffer(id, data) {
			return nil
		}
	}

	// ========================================================================
	// FALLBACK: Non-sequential write (random access or overwrites)
	// ========================================================================

	if err := s.FlushWrites(ctx, id); err != nil {
		return err
	}

	existing, err := s.readObject(ctx, id)
	if err != nil && !isContentNotFound(err) {
		return err
	}

	end := offset + int64(len(data))
	if end > int64(len(existing)) {
		grown := make([]byte, end)
		copy(grown, existing)
		existing = grown
	}
	copy(existing[offset:], data)

	return s.putObject(ctx, id, existing)
}

// appendBuffered appends data when it continues id's buffered stream.
func (s *S3ContentStore) appendBuffered(id metadata.ContentID, data []byte, offset int64) bool {
	s.writeBuffersMu.Lock()
	buffer, ok := s.writeBuffers[id]
	if !ok {
		s.writeBuffersMu.Unlock()
		return false
	}

	// Lock the buffer before releasing the map lock so FlushWrites cannot
	// remove it in between.
	buffer.mu.Lock()
	s.writeBuffersMu.Unlock()
	defer buffer.mu.Unlock()

	if offset != buffer.expectedSize {
		logger.Debug("S3 non-sequential write: content_id=%s buffered=%d offset=%d",
			id, len(buffer.data), offset)
		return false
	}

	buffer.data = append(buffer.data, data...)
	buffer.expectedSize = offset + int64(len(data))
	buffer.lastWrite = time.Now()
	return true
}

// startBuffer creates a buffer for id unless another writer raced us to it.
func (s *S3ContentStore) startBuffer(id metadata.ContentID, data []byte) bool {
	s.writeBuffersMu.Lock()
	defer s.writeBuffersMu.Unlock()

	if _, ok := s.writeBuffers[id]; ok {
		return false
	}
	s.writeBuffers[id] = &writeBuffer{
		data:         append([]byte(nil), data...),
		expectedSize: int64(len(data)),
		lastWrite:    time.Now(),
	}
	return true
}

// bufferedSize returns the size of id's pending buffer, if any.
func (s *S3ContentStore) bufferedSize(id metadata.ContentID) (int64, bool) {
	s.writeBuffersMu.Lock()
	buffer, ok := s.writeBuffers[id]
	s.writeBuffersMu.Unlock()
	if !ok {
		return 0, false
	}

	buffer.mu.Lock()
	defer buffer.mu.Unlock()
	return buffer.expectedSize, true
}

// FlushWrites uploads the buffered data for id, if any.
func (s *S3ContentStore) FlushWrites(ctx context.Context, id metadata.ContentID) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.writeBuffersMu.Lock()
	buffer, hasBuffer := s.writeBuffers[id]
	if !hasBuffer {
		s.writeBuffersMu.Unlock()
		return nil
	}

	// Lock the buffer before removing it from the map so a concurrent WriteAt
	// cannot append to a buffer that is already being uploaded.
	buffer.mu.Lock()
	delete(s.writeBuffers, id)
	s.writeBuffersMu.Unlock()
	defer buffer.mu.Unlock()

	start := time.Now()
	defer func() {
		s.metrics.RecordFlushOperation("flush", int64(len(buffer.data)), time.Since(start), err)
	}()

	if err := s.putObject(ctx, id, buffer.data); err != nil {
		return fmt.Errorf("failed to flush write buffer to S3: %w", err)
	}
	return nil
}

// Truncate changes the size of the content.
//
// For S3, this requires downloading the object, truncating/extending it, and
// re-uploading. Shrinking only downloads the retained prefix.
func (s *S3ContentStore) Truncate(ctx context.Context, id metadata.ContentID, size int64) (err error) {
	start := time.Now()
	defer func() {
		s.metrics.ObserveOperation("Truncate", time.Since(start), err)
	}()

	if err := ctx.Err(); err != nil {
		return err
	}
	if size < 0 {
		return fmt.Errorf("truncate %s to %d: %w", id, size, content.ErrInvalidOffset)
	}
	if err := s.FlushWrites(ctx, id); err != nil {
		return err
	}

	currentSize, err := s.Size(ctx, id)
	if err != nil {
		return fmt.Errorf("truncate failed for %s: %w", id, err)
	}

	// No-op if size is already correct
	if currentSize == size {
		return nil
	}

	if size == 0 {
		return s.putObject(ctx, id, []byte{})
	}

	var data []byte
	if size < currentSize {
		buf := make([]byte, size)
		n, err := s.ReadAt(ctx, id, buf, 0)
		if err != nil && !isEOF(err) {
			return fmt.Errorf("failed to get object for truncate: %w", err)
		}
		data = buf[:n]
	} else {
		existing, err := s.readObject(ctx, id)
		if err != nil {
			return err
		}
		data = make([]byte, size)
		copy(data, existing)
	}

	return s.putObject(ctx, id, data)
}

// Delete drops any pending buffer and removes the object.
//
// This operation is idempotent: S3 DeleteObject succeeds for missing keys.
func (s *S3ContentStore) Delete(ctx context.Context, id metadata.ContentID) (err error) {
	start := time.Now()
	defer func() {
		s.metrics.ObserveOperation("Delete", time.Since(start), err)
	}()

	if err := ctx.Err(); err != nil {
		return err
	}

	s.writeBuffersMu.Lock()
	delete(s.writeBuffers, id)
	s.writeBuffersMu.Unlock()

	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.getObjectKey(id)),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("failed to delete object from S3: %w", err)
	}
	return nil
}

func (s *S3ContentStore) putObject(ctx context.Context, id metadata.ContentID, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.getObjectKey(id)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return fmt.Errorf("failed to write object to S3: %w", err)
	}
	s.metrics.RecordBytes("write", int64(len(data)))
	return nil
}

// objectExists issues a HEAD without consulting write buffers.
func (s *S3ContentStore) objectExists(ctx context.Context, id metadata.ContentID) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.getObjectKey(id)),
	})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("failed to check object existence: %w", err)
}
