package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/marmos91/godfs/pkg/content"
	contenttesting "github.com/marmos91/godfs/pkg/content/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 is an in-memory stand-in for the handful of S3 calls the store
// makes, with S3's error shapes for missing keys and bad ranges.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	puts    int
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte)}
}

func (f *fakeS3) HeadBucket(ctx context.Context, in *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	return &s3.HeadBucketOutput{}, nil
}

func (f *fakeS3) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(data)))}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}

	if in.Range != nil {
		var start, end int64
		if _, err := fmt.Sscanf(aws.ToString(in.Range), "bytes=%d-%d", &start, &end); err != nil {
			return nil, err
		}
		if start >= int64(len(data)) {
			return nil, &smithy.GenericAPIError{Code: "InvalidRange", Message: "range not satisfiable"}
		}
		if end >= int64(len(data)) {
			end = int64(len(data)) - 1
		}
		data = data[start : end+1]
	}

	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(append([]byte(nil), data...))),
		ContentLength: aws.Int64(int64(len(data))),
	}, nil
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Key)] = data
	f.puts++
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	for _, k := range keys {
		out.Contents = append(out.Contents, types.Object{
			Key:  aws.String(k),
			Size: aws.Int64(int64(len(f.objects[k]))),
		})
	}
	return out, nil
}

func (f *fakeS3) putCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.puts
}

func newTestStore(t *testing.T, client API) *S3ContentStore {
	t.Helper()
	store, err := NewS3ContentStore(context.Background(), S3ContentStoreConfig{
		Client:    client,
		Bucket:    "bucket",
		KeyPrefix: "test/",
	})
	require.NoError(t, err)
	return store
}

// TestS3ContentStore runs the complete content.Store suite against the
// in-memory S3 fake.
func TestS3ContentStore(t *testing.T) {
	suite := &contenttesting.StoreTestSuite{
		NewStore: func() content.Store {
			return newTestStore(t, newFakeS3())
		},
	}
	suite.Run(t)
}

func TestS3ContentStore_SequentialWritesUploadOnce(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	store := newTestStore(t, fake)

	for i := 0; i < 10; i++ {
		require.NoError(t, store.WriteAt(ctx, "seq", []byte("0123456789"), int64(i*10)))
	}
	assert.Equal(t, 0, fake.putCount(), "sequential writes must stay buffered")

	size, err := store.Size(ctx, "seq")
	require.NoError(t, err)
	assert.Equal(t, int64(100), size)

	require.NoError(t, store.FlushWrites(ctx, "seq"))
	assert.Equal(t, 1, fake.putCount())
	assert.Len(t, fake.objects["test/seq"], 100)
}

func TestS3ContentStore_CloseFlushesBuffers(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	store := newTestStore(t, fake)

	require.NoError(t, store.WriteAt(ctx, "a", []byte("pending"), 0))
	require.NoError(t, store.Close())

	assert.Equal(t, []byte("pending"), fake.objects["test/a"])
}

func TestS3ContentStore_DeleteDropsBuffer(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	store := newTestStore(t, fake)

	require.NoError(t, store.WriteAt(ctx, "gone", []byte("x"), 0))
	require.NoError(t, store.Delete(ctx, "gone"))
	require.NoError(t, store.Close())

	_, ok := fake.objects["test/gone"]
	assert.False(t, ok)
}

func TestS3ContentStore_Validation(t *testing.T) {
	ctx := context.Background()

	_, err := NewS3ContentStore(ctx, S3ContentStoreConfig{Bucket: "b"})
	assert.Error(t, err)

	_, err = NewS3ContentStore(ctx, S3ContentStoreConfig{Client: newFakeS3()})
	assert.Error(t, err)
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, isNotFound(&types.NoSuchKey{}))
	assert.True(t, isNotFound(fmt.Errorf("wrapped: %w", &types.NotFound{})))
	assert.True(t, isNotFound(&smithy.GenericAPIError{Code: "NotFound"}))
	assert.False(t, isNotFound(&smithy.GenericAPIError{Code: "AccessDenied"}))
	assert.True(t, isInvalidRange(&smithy.GenericAPIError{Code: "InvalidRange"}))
}
