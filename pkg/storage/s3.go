package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Storage stores files as objects below prefix in bucket.
type S3Storage struct {
	client *s3.Client
	bucket string
	prefix string
}

func NewS3Storage(ctx context.Context, bucket, prefix, region string) (*S3Storage, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return &S3Storage{
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
		prefix: prefix,
	}, nil
}

func (s *S3Storage) key(p string) string {
	return s.prefix + clean(p)
}

func (s *S3Storage) uri(p string) string {
	return fmt.Sprintf("s3://%s/%s", s.bucket, s.key(p))
}

func (s *S3Storage) Read(ctx context.Context, p string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(p)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%s: %w", p, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read %s: %w", s.uri(p), err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read body of %s: %w", s.uri(p), err)
	}
	return data, nil
}

func (s *S3Storage) Write(ctx context.Context, p string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(p)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/yaml"),
	})
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", s.uri(p), err)
	}
	return nil
}

// Delete reports ErrNotFound like the other backends; S3 itself treats a
// missing key as a successful delete.
func (s *S3Storage) Delete(ctx context.Context, p string) error {
	ok, err := s.Exists(ctx, p)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s: %w", p, ErrNotFound)
	}
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(p)),
	}); err != nil {
		return fmt.Errorf("failed to delete %s: %w", s.uri(p), err)
	}
	return nil
}

func (s *S3Storage) List(ctx context.Context, prefix string) ([]string, error) {
	dir := s.key(prefix)
	if !strings.HasSuffix(dir, "/") {
		dir += "/"
	}
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Prefix:    aws.String(dir),
		Delimiter: aws.String("/"),
	})
	var paths []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list s3://%s/%s: %w", s.bucket, dir, err)
		}
		for _, obj := range page.Contents {
			paths = append(paths, strings.TrimPrefix(aws.ToString(obj.Key), s.prefix))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

func (s *S3Storage) Exists(ctx context.Context, p string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(p)),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check existence of %s: %w", s.uri(p), err)
	}
	return true, nil
}

// isNotFound matches GetObject's NoSuchKey and HeadObject's bodiless NotFound.
func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *types.NotFound
	return errors.As(err, &nf)
}
