// Package blob implements the blob storage gateway: a typed facade over an
// S3-compatible object store account. Two independently configured instances
// exist in the running service, one for images and one for generic files.
package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/NeilR2s/cold-start-marketplace/internal/shared"
)

// Policy selects the upload behaviour of a gateway instance. Exactly one
// policy is active per instance; there is no silent mixing.
type Policy string

const (
	// PolicySync awaits full completion before returning the URL.
	PolicySync Policy = "sync"
	// PolicyQueued returns the destination URL immediately and hands the
	// transfer to the write-behind queue.
	PolicyQueued Policy = "queued"
)

type Config struct {
	// Endpoint is the storage connection string (endpoint URL).
	Endpoint string
	// PublicEndpoint, when set, is used to build returned object URLs.
	PublicEndpoint string
	Region         string
	AccessKey      string
	SecretKey      string
	Bucket         string
	Policy         Policy
	RequestTimeout time.Duration
	Queue          QueueConfig
	Logger         *slog.Logger
}

// objectClient is the slice of the s3 client the gateway uses.
type objectClient interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, in *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
}

var newObjectClient = func(ctx context.Context, cfg Config) (objectClient, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)))
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.Endpoint)
		o.UsePathStyle = true
	})
	return client, nil
}

type state int

const (
	stateUninitialized state = iota
	stateReady
	stateClosed
)

// Gateway owns a connection to the storage account and one named bucket.
type Gateway struct {
	cfg    Config
	logger *slog.Logger

	mu     sync.RWMutex
	state  state
	client objectClient
	queue  *Queue
}

func New(cfg Config) *Gateway {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.Policy == "" {
		cfg.Policy = PolicySync
	}
	return &Gateway{cfg: cfg, logger: logger}
}

// Initialize builds the client and verifies the bucket exists, creating it
// when missing. Idempotent once ready; any failure is fatal to startup.
func (g *Gateway) Initialize(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == stateReady {
		return nil
	}

	if strings.TrimSpace(g.cfg.Endpoint) == "" {
		return fmt.Errorf("blob gateway failed to initialize: storage connection string is missing")
	}
	if strings.TrimSpace(g.cfg.Bucket) == "" {
		return fmt.Errorf("blob gateway failed to initialize: bucket name is missing")
	}
	if g.cfg.AccessKey == "" || g.cfg.SecretKey == "" {
		return fmt.Errorf("blob gateway failed to initialize: storage account credentials are missing")
	}

	client, err := newObjectClient(ctx, g.cfg)
	if err != nil {
		return fmt.Errorf("build object storage client: %w", err)
	}
	if err := ensureBucket(ctx, client, g.cfg.Bucket); err != nil {
		return err
	}

	g.client = client
	if g.cfg.Policy == PolicyQueued {
		queueCfg := g.cfg.Queue
		queueCfg.Logger = g.logger
		queueCfg.Put = func(ctx context.Context, job Job) error {
			return g.put(ctx, client, job.Name, job.ContentType, job.Payload)
		}
		if queueCfg.PutTimeout <= 0 {
			queueCfg.PutTimeout = g.cfg.RequestTimeout
		}
		g.queue = NewQueue(queueCfg)
		g.queue.Start()
	}
	g.state = stateReady
	g.logger.Info("blob gateway initialized", "bucket", g.cfg.Bucket, "policy", string(g.cfg.Policy))
	return nil
}

func ensureBucket(ctx context.Context, client objectClient, bucket string) error {
	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)}); err == nil {
		return nil
	}
	_, err := client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(bucket)})
	if err != nil {
		var owned *types.BucketAlreadyOwnedByYou
		var exists *types.BucketAlreadyExists
		if errors.As(err, &owned) || errors.As(err, &exists) {
			return nil
		}
		return fmt.Errorf("create bucket %s: %w", bucket, err)
	}
	return nil
}

// Close stops the write-behind queue and releases the connection. Safe to
// call multiple times.
func (g *Gateway) Close(ctx context.Context) error {
	g.mu.Lock()
	queue := g.queue
	g.queue = nil
	g.client = nil
	g.state = stateClosed
	g.mu.Unlock()

	if queue != nil {
		if err := queue.Shutdown(ctx); err != nil {
			return fmt.Errorf("stop write-behind queue: %w", err)
		}
	}
	return nil
}

func (g *Gateway) Ready() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state == stateReady
}

// DeadLetters exposes queued uploads that exhausted their retries. Empty for
// the sync policy.
func (g *Gateway) DeadLetters() []DeadLetter {
	g.mu.RLock()
	queue := g.queue
	g.mu.RUnlock()
	if queue == nil {
		return nil
	}
	return queue.DeadLetters()
}

// Upload writes the payload to the named object, overwriting any existing
// object under that name and tagging it with the supplied content type. The
// caller is expected to have validated content type and size already.
//
// Under PolicySync the returned URL is confirmed written. Under PolicyQueued
// the URL is computed up front and the transfer proceeds through the
// write-behind queue; a full queue is reported as a transient fault instead
// of being dropped.
func (g *Gateway) Upload(ctx context.Context, name, contentType string, payload []byte) (string, error) {
	const op = "blob.upload"
	g.mu.RLock()
	st := g.state
	client := g.client
	queue := g.queue
	g.mu.RUnlock()

	if st != stateReady || client == nil {
		return "", shared.Unavailable(op, shared.ErrNotInitialized)
	}

	url := g.ObjectURL(name)
	if queue != nil {
		if !queue.Enqueue(Job{Name: name, ContentType: contentType, Payload: payload}) {
			return "", shared.Transient(op, fmt.Errorf("write-behind queue is full"))
		}
		return url, nil
	}

	ctx, cancel := context.WithTimeout(ctx, g.cfg.RequestTimeout)
	defer cancel()
	if err := g.put(ctx, client, name, contentType, payload); err != nil {
		g.logger.Error("failed to upload blob", "bucket", g.cfg.Bucket, "name", name, "error", err)
		return "", shared.Transient(op, err)
	}
	return url, nil
}

func (g *Gateway) put(ctx context.Context, client objectClient, name, contentType string, payload []byte) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(g.cfg.Bucket),
		Key:    aws.String(name),
		Body:   bytes.NewReader(payload),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	_, err := client.PutObject(ctx, input)
	return err
}

// ObjectURL computes the public URL for an object name without performing
// any remote call.
func (g *Gateway) ObjectURL(name string) string {
	base := strings.TrimSpace(g.cfg.PublicEndpoint)
	if base == "" {
		base = strings.TrimSpace(g.cfg.Endpoint)
	}
	base = strings.TrimSuffix(base, "/")
	return fmt.Sprintf("%s/%s/%s", base, g.cfg.Bucket, name)
}
