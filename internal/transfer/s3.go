package transfer

import (
	"context"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"dstash/internal/config"
	"dstash/internal/stash"
)

// S3Transfer stores chunk objects in an S3 bucket. Locators are the full
// object keys: minted UUIDs under the configured prefix.
type S3Transfer struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	prefix   string
}

// NewS3Transfer builds the backend from configuration. With static keys
// configured those are used, otherwise credentials come from the default
// AWS chain (environment, shared config, instance role). A custom
// endpoint supports S3-compatible services.
func NewS3Transfer(ctx context.Context, cfg config.TransferConfig) (*S3Transfer, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.S3Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.S3Region))
	}
	if cfg.S3AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		}
	})
	return &S3Transfer{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   cfg.S3Bucket,
		prefix:   cfg.S3Prefix,
	}, nil
}

// Put uploads size bytes and returns the minted object key. The owning
// credential is recorded as object metadata for offline attribution.
func (t *S3Transfer) Put(ctx context.Context, credOwner string, r io.Reader, size int64) (string, error) {
	key := path.Join(t.prefix, uuid.New().String())

	counted := &countingReader{r: io.LimitReader(r, size)}
	_, err := t.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:   aws.String(t.bucket),
		Key:      aws.String(key),
		Body:     counted,
		Metadata: map[string]string{"owner": credOwner},
	})
	if err != nil {
		return "", fmt.Errorf("uploading to s3://%s/%s: %w", t.bucket, key, err)
	}
	if counted.n != size {
		return "", fmt.Errorf("size mismatch: expected %d bytes, got %d", size, counted.n)
	}
	return key, nil
}

// Get downloads the object at locator and writes it to w.
func (t *S3Transfer) Get(ctx context.Context, locator string, w io.Writer) error {
	out, err := t.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(t.bucket),
		Key:    aws.String(locator),
	})
	if err != nil {
		return fmt.Errorf("fetching s3://%s/%s: %w", t.bucket, locator, err)
	}
	defer out.Body.Close()

	if _, err := io.Copy(w, out.Body); err != nil {
		return fmt.Errorf("reading s3://%s/%s: %w", t.bucket, locator, err)
	}
	return nil
}

// Delete removes the object at locator.
func (t *S3Transfer) Delete(ctx context.Context, locator string) error {
	_, err := t.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(t.bucket),
		Key:    aws.String(locator),
	})
	if err != nil {
		return fmt.Errorf("deleting s3://%s/%s: %w", t.bucket, locator, err)
	}
	return nil
}

// Validate checks that the bucket exists and is reachable.
func (t *S3Transfer) Validate(ctx context.Context) error {
	_, err := t.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(t.bucket),
	})
	if err != nil {
		return fmt.Errorf("bucket %s not accessible: %w", t.bucket, err)
	}
	return nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

var _ stash.Transfer = (*S3Transfer)(nil)
