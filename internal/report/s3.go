package report

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/oszuidwest/zwfm-silencewatch/internal/types"
	"github.com/oszuidwest/zwfm-silencewatch/internal/util"
)

const (
	s3Timeout     = 30000 * time.Millisecond
	defaultRegion = "auto"
)

// objectStore is the subset of the S3 API the uploader needs.
type objectStore interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Uploader archives reports in an S3-compatible bucket.
type Uploader struct {
	client objectStore
	bucket string
	prefix string
}

// newS3Client creates an S3 client with static credentials. Custom endpoints
// use path-style addressing.
func newS3Client(cfg *types.S3Config) *s3.Client {
	creds := credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")

	options := []func(*s3.Options){
		func(o *s3.Options) {
			o.Credentials = creds
			o.Region = cmp.Or(cfg.Region, defaultRegion)
		},
	}

	if cfg.Endpoint != "" {
		options = append(options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	return s3.New(s3.Options{}, options...)
}

// NewUploader returns an uploader for cfg.
func NewUploader(cfg *types.S3Config) (*Uploader, error) {
	if !util.IsConfigured(cfg.Bucket, cfg.AccessKeyID, cfg.SecretAccessKey) {
		return nil, fmt.Errorf("S3 bucket and credentials are required")
	}
	return &Uploader{client: newS3Client(cfg), bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

// Upload stores r as JSON and returns its object key.
func (u *Uploader) Upload(ctx context.Context, r *Report) (string, error) {
	data, err := r.JSON()
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, s3Timeout)
	defer cancel()

	key := r.Key(u.prefix)
	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String("application/json"),
	})
	if err != nil {
		return "", util.WrapError("upload report", err)
	}
	return key, nil
}

// TestConnection uploads and deletes a small test object.
func (u *Uploader) TestConnection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s3Timeout)
	defer cancel()

	testKey := fmt.Sprintf("test-connection-%d.txt", time.Now().UnixNano())
	testContent := []byte("ZuidWest FM silence monitor connection test")

	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(testKey),
		Body:          bytes.NewReader(testContent),
		ContentLength: aws.Int64(int64(len(testContent))),
	})
	if err != nil {
		return fmt.Errorf("upload test file: %w", err)
	}

	_, err = u.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(testKey),
	})
	if err != nil {
		slog.Warn("failed to delete test file", "key", testKey, "error", err)
	}

	return nil
}
