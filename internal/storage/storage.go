// Package storage wraps an S3 bucket for the CSV source and the report sink.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Object describes one stored key.
type Object struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// S3Store performs list/get/put/move against one bucket.
type S3Store struct {
	client S3API
	bucket string
}

// Bucket returns the bound bucket name.
func (s *S3Store) Bucket() string { return s.bucket }

// List returns every non-empty object under prefix.
func (s *S3Store) List(ctx context.Context, prefix string) ([]Object, error) {
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: s.bucketName(),
		Prefix: aws.String(prefix),
	})

	var out []Object
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing s3://%s/%s: %w", s.bucket, prefix, err)
		}
		for _, obj := range page.Contents {
			if obj.Size == nil || *obj.Size == 0 {
				continue
			}
			out = append(out, Object{
				Key:          aws.ToString(obj.Key),
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified),
			})
		}
	}
	return out, nil
}

// Get reads a whole object.
func (s *S3Store) Get(ctx context.Context, key string) ([]byte, error) {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: s.bucketName(),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("getting object %s: %w", key, err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("reading object %s: %w", key, err)
	}
	return data, nil
}

// Put writes an object.
func (s *S3Store) Put(ctx context.Context, key string, body []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      s.bucketName(),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("putting object %s: %w", key, err)
	}
	return nil
}

// Move copies src to dst and deletes src only after the copy succeeded.
func (s *S3Store) Move(ctx context.Context, src, dst string) error {
	if _, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     s.bucketName(),
		CopySource: aws.String(s.bucket + "/" + strings.TrimPrefix(src, "/")),
		Key:        aws.String(dst),
	}); err != nil {
		return fmt.Errorf("copy %s to %s: %w", src, dst, err)
	}
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: s.bucketName(),
		Key:    aws.String(src),
	}); err != nil {
		return fmt.Errorf("delete original %s: %w", src, err)
	}
	return nil
}

// Ping checks that the bucket is reachable with the configured credentials.
func (s *S3Store) Ping(ctx context.Context) error {
	if _, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: s.bucketName()}); err != nil {
		return fmt.Errorf("HeadBucket %s: %w", s.bucket, err)
	}
	return nil
}
