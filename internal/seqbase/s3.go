package seqbase

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3API is the subset of the S3 client used to fetch sequence files.
type S3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Config holds connection parameters for an S3-compatible store.
type S3Config struct {
	Region          string
	Endpoint        string // optional, e.g. MinIO
	AccessKeyID     string // optional, falls back to the default credentials chain
	SecretAccessKey string
	PathStyle       bool
}

// NewS3Client creates an S3 client from cfg.
func NewS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}), nil
}

// S3Source serves s3://bucket/key#record addresses.
type S3Source struct {
	Client S3API
}

// NewS3Resolver creates a resolver for s3:// addresses.
func NewS3Resolver(client S3API, cacheDir string) *RemoteResolver {
	return NewRemoteResolver(&S3Source{Client: client}, cacheDir)
}

func (s *S3Source) Scheme() string { return "s3" }

func splitBucketKey(addr Address) (bucket, key string) {
	bucket, key, _ = strings.Cut(addr.Opaque(), "/")
	return bucket, key
}

func (s *S3Source) CanResolve(addr Address) bool {
	if addr.Scheme() != "s3" {
		return false
	}
	bucket, key := splitBucketKey(addr)
	return bucket != "" && key != ""
}

func (s *S3Source) CacheFileName(addr Address) string {
	bucket, key := splitBucketKey(addr)
	return "s3_" + bucket + "_" + strings.ReplaceAll(key, "/", "_")
}

func (s *S3Source) RecordID(addr Address) string {
	return addr.Fragment()
}

func (s *S3Source) Open(ctx context.Context, addr Address) (io.ReadCloser, error) {
	bucket, key := splitBucketKey(addr)
	out, err := s.Client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		return nil, fmt.Errorf("get s3 object %s/%s: %w", bucket, key, err)
	}
	return out.Body, nil
}
