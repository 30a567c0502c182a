package blob

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NeilR2s/cold-start-marketplace/internal/shared"
)

type stubObjectClient struct {
	mu        sync.Mutex
	headErr   error
	createErr error
	putErr    error
	puts      []s3.PutObjectInput
	created   []string
}

func (c *stubObjectClient) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.putErr != nil {
		return nil, c.putErr
	}
	c.puts = append(c.puts, *in)
	return &s3.PutObjectOutput{}, nil
}

func (c *stubObjectClient) HeadBucket(ctx context.Context, in *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	if c.headErr != nil {
		return nil, c.headErr
	}
	return &s3.HeadBucketOutput{}, nil
}

func (c *stubObjectClient) CreateBucket(ctx context.Context, in *s3.CreateBucketInput, _ ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.createErr != nil {
		return nil, c.createErr
	}
	c.created = append(c.created, *in.Bucket)
	return &s3.CreateBucketOutput{}, nil
}

func (c *stubObjectClient) putCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.puts)
}

func withStubClient(t *testing.T, stub *stubObjectClient) {
	t.Helper()
	orig := newObjectClient
	newObjectClient = func(ctx context.Context, cfg Config) (objectClient, error) {
		return stub, nil
	}
	t.Cleanup(func() { newObjectClient = orig })
}

func testConfig() Config {
	return Config{
		Endpoint:  "http://127.0.0.1:9000",
		Region:    "us-east-1",
		AccessKey: "access",
		SecretKey: "secret",
		Bucket:    "image-blobs",
	}
}

func TestObjectURL(t *testing.T) {
	g := New(testConfig())
	assert.Equal(t, "http://127.0.0.1:9000/image-blobs/u1-abc.png", g.ObjectURL("u1-abc.png"))

	cfg := testConfig()
	cfg.PublicEndpoint = "https://cdn.example.com/"
	g = New(cfg)
	assert.Equal(t, "https://cdn.example.com/image-blobs/u1-abc.png", g.ObjectURL("u1-abc.png"))
}

func TestInitializeFailsOnMissingConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Endpoint = " "
	err := New(cfg).Initialize(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection string")

	cfg = testConfig()
	cfg.SecretKey = ""
	err = New(cfg).Initialize(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "credentials")
}

func TestInitializeCreatesMissingBucket(t *testing.T) {
	stub := &stubObjectClient{headErr: errors.New("not found")}
	withStubClient(t, stub)

	g := New(testConfig())
	require.NoError(t, g.Initialize(context.Background()))
	assert.True(t, g.Ready())
	assert.Equal(t, []string{"image-blobs"}, stub.created)
}

func TestInitializeToleratesOwnedBucket(t *testing.T) {
	stub := &stubObjectClient{
		headErr:   errors.New("not found"),
		createErr: &types.BucketAlreadyOwnedByYou{},
	}
	withStubClient(t, stub)

	g := New(testConfig())
	require.NoError(t, g.Initialize(context.Background()))
	assert.True(t, g.Ready())
}

func TestUploadRequiresInitialization(t *testing.T) {
	g := New(testConfig())
	_, err := g.Upload(context.Background(), "u1-abc.png", "image/png", []byte("x"))
	kind, ok := shared.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, shared.KindUnavailable, kind)
}

func TestUploadSync(t *testing.T) {
	stub := &stubObjectClient{}
	withStubClient(t, stub)

	g := New(testConfig())
	require.NoError(t, g.Initialize(context.Background()))

	url, err := g.Upload(context.Background(), "u1-abc.png", "image/png", []byte("payload"))
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:9000/image-blobs/u1-abc.png", url)

	require.Len(t, stub.puts, 1)
	put := stub.puts[0]
	assert.Equal(t, "image-blobs", *put.Bucket)
	assert.Equal(t, "u1-abc.png", *put.Key)
	assert.Equal(t, "image/png", *put.ContentType)
}

func TestUploadSyncReportsTransientFault(t *testing.T) {
	stub := &stubObjectClient{putErr: errors.New("connection reset")}
	withStubClient(t, stub)

	g := New(testConfig())
	require.NoError(t, g.Initialize(context.Background()))

	_, err := g.Upload(context.Background(), "u1-abc.png", "image/png", []byte("payload"))
	kind, ok := shared.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, shared.KindTransient, kind)
}

func TestUploadQueuedReturnsImmediatelyAndDrains(t *testing.T) {
	stub := &stubObjectClient{}
	withStubClient(t, stub)

	cfg := testConfig()
	cfg.Policy = PolicyQueued
	g := New(cfg)
	require.NoError(t, g.Initialize(context.Background()))
	defer g.Close(context.Background())

	url, err := g.Upload(context.Background(), "u1-abc.png", "image/png", []byte("payload"))
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:9000/image-blobs/u1-abc.png", url)

	require.Eventually(t, func() bool {
		return stub.putCount() == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, g.DeadLetters())
}

func TestUploadQueuedDeadLettersAfterRetries(t *testing.T) {
	stub := &stubObjectClient{putErr: errors.New("bucket gone")}
	withStubClient(t, stub)

	cfg := testConfig()
	cfg.Policy = PolicyQueued
	cfg.Queue = QueueConfig{MaxAttempts: 2, RetryDelay: time.Millisecond}
	g := New(cfg)
	require.NoError(t, g.Initialize(context.Background()))
	defer g.Close(context.Background())

	_, err := g.Upload(context.Background(), "u1-abc.png", "image/png", []byte("payload"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(g.DeadLetters()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	dead := g.DeadLetters()[0]
	assert.Equal(t, "u1-abc.png", dead.Name)
	assert.Equal(t, 2, dead.Attempts)
	assert.Contains(t, dead.LastErr, "bucket gone")
}

func TestCloseIsRepeatable(t *testing.T) {
	stub := &stubObjectClient{}
	withStubClient(t, stub)

	g := New(testConfig())
	require.NoError(t, g.Initialize(context.Background()))
	require.NoError(t, g.Close(context.Background()))
	require.NoError(t, g.Close(context.Background()))
	assert.False(t, g.Ready())
}
