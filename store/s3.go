package store

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/icelens/icelens/lenserr"
)

// S3Config holds S3 configuration.
type S3Config struct {
	Region          string
	Endpoint        string // for MinIO or other S3-compatible services
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	ForcePathStyle  bool // required for MinIO
}

// S3Store serves s3:// and s3a:// URIs.
type S3Store struct {
	client *s3.Client
}

// NewS3Store creates an S3-backed store.
func NewS3Store(ctx context.Context, cfg *S3Config) (*S3Store, error) {
	var opts []func(*config.LoadOptions) error

	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		creds := credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			cfg.SessionToken,
		)
		opts = append(opts, config.WithCredentialsProvider(creds))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}
	if cfg.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return &S3Store{client: s3.NewFromConfig(awsCfg, s3Opts...)}, nil
}

// Scheme implements ObjectStore.
func (s *S3Store) Scheme() string { return "s3" }

// Read implements ObjectStore.
func (s *S3Store) Read(ctx context.Context, path string) ([]byte, error) {
	bucket, key, err := splitURI(path)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, classifyS3Error("read", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyS3Error("read", path, err)
	}
	return data, nil
}

// List implements ObjectStore.
func (s *S3Store) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	bucket, key, err := splitURI(prefix)
	if err != nil {
		return nil, err
	}

	var objects []ObjectInfo
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(key),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, classifyS3Error("list", prefix, err)
		}
		for _, obj := range page.Contents {
			info := ObjectInfo{Path: fmt.Sprintf("s3://%s/%s", bucket, *obj.Key)}
			if obj.Size != nil {
				info.Size = *obj.Size
			}
			if obj.LastModified != nil {
				info.Updated = *obj.LastModified
			}
			objects = append(objects, info)
		}
	}
	return objects, nil
}

// ListPrefixes implements ObjectStore.
func (s *S3Store) ListPrefixes(ctx context.Context, prefix string) ([]string, error) {
	bucket, key, err := splitURI(prefix)
	if err != nil {
		return nil, err
	}
	if key != "" && !strings.HasSuffix(key, "/") {
		key += "/"
	}

	var prefixes []string
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(bucket),
		Prefix:    aws.String(key),
		Delimiter: aws.String("/"),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, classifyS3Error("list", prefix, err)
		}
		for _, cp := range page.CommonPrefixes {
			if cp.Prefix != nil {
				prefixes = append(prefixes, fmt.Sprintf("s3://%s/%s", bucket, *cp.Prefix))
			}
		}
	}
	return prefixes, nil
}

// Stat implements ObjectStore.
func (s *S3Store) Stat(ctx context.Context, path string) (ObjectInfo, error) {
	bucket, key, err := splitURI(path)
	if err != nil {
		return ObjectInfo{}, err
	}

	resp, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return ObjectInfo{}, classifyS3Error("stat", path, err)
	}

	info := ObjectInfo{Path: path}
	if resp.ContentLength != nil {
		info.Size = *resp.ContentLength
	}
	if resp.LastModified != nil {
		info.Updated = *resp.LastModified
	}
	return info, nil
}

// classifyS3Error maps SDK errors into the shared taxonomy. The SDK
// wraps service errors several layers deep, so matching on message
// text is the reliable option.
func classifyS3Error(op, path string, err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "NotFound"),
		strings.Contains(msg, "NoSuchKey"),
		strings.Contains(msg, "NoSuchBucket"),
		strings.Contains(msg, "404"):
		return &lenserr.NotFoundError{Kind: "object", Name: path}
	case strings.Contains(msg, "AccessDenied"),
		strings.Contains(msg, "403"):
		return &lenserr.PermissionError{Path: path, Err: err}
	default:
		return lenserr.FromRead(op, path, err)
	}
}
