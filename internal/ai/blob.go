package ai

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/tbourn/go-socialcart-backend/internal/config"
)

// ImageStore persists generated images and returns a URL clients can load.
type ImageStore interface {
	Put(ctx context.Context, key string, data []byte, mime string) (string, error)
}

// InlineStore stores nothing and returns the image as a data URI.
type InlineStore struct{}

// Put implements ImageStore.
func (InlineStore) Put(_ context.Context, _ string, data []byte, mime string) (string, error) {
	return DataURI(mime, data), nil
}

// S3API is the subset of the S3 client used here.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store uploads images to a bucket.
type S3Store struct {
	Client S3API
	Bucket string
	Prefix string
	Region string
}

// NewImageStore returns an S3Store when cfg names a bucket, else InlineStore.
func NewImageStore(ctx context.Context, cfg config.BlobConfig) (ImageStore, error) {
	if cfg.Bucket == "" {
		return InlineStore{}, nil
	}
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("aws config: %w", err)
	}
	return &S3Store{
		Client: s3.NewFromConfig(awsCfg),
		Bucket: cfg.Bucket,
		Prefix: cfg.Prefix,
		Region: awsCfg.Region,
	}, nil
}

// ObjectKey builds the object key for an image of key.
func (s *S3Store) ObjectKey(key, mime string) string {
	ext := ".bin"
	if mt := mimetype.Lookup(mime); mt != nil {
		ext = mt.Extension()
	}
	name := strings.Trim(key, "/") + "-" + uuid.NewString() + ext
	if s.Prefix == "" {
		return name
	}
	return path.Join(s.Prefix, name)
}

// Put implements ImageStore.
func (s *S3Store) Put(ctx context.Context, key string, data []byte, mime string) (string, error) {
	objectKey := s.ObjectKey(key, mime)
	_, err := s.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.Bucket),
		Key:         aws.String(objectKey),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(mime),
	})
	if err != nil {
		return "", err
	}
	if s.Region == "" {
		return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", s.Bucket, objectKey), nil
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.Bucket, s.Region, objectKey), nil
}
