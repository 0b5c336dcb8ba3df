// Package storagetest provides an in-memory S3 client for tests.
package storagetest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type object struct {
	body     []byte
	modified time.Time
}

// FakeS3 implements storage.S3API over a map. The bucket name is ignored.
type FakeS3 struct {
	mu      sync.Mutex
	objects map[string]object
	// HeadErr is returned by HeadBucket when set.
	HeadErr error
}

// NewFakeS3 returns an empty fake.
func NewFakeS3() *FakeS3 {
	return &FakeS3{objects: make(map[string]object)}
}

// Seed stores an object with a fixed modification time.
func (f *FakeS3) Seed(key, body string, modified time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = object{body: []byte(body), modified: modified}
}

// Keys lists stored keys in order.
func (f *FakeS3) Keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0, len(f.objects))
	for k := range f.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Body returns an object's content, or "" if absent.
func (f *FakeS3) Body(key string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return string(f.objects[key].body)
}

func (f *FakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	prefix := aws.ToString(in.Prefix)
	var contents []types.Object
	for _, k := range f.Keys() {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		f.mu.Lock()
		o := f.objects[k]
		f.mu.Unlock()
		contents = append(contents, types.Object{
			Key:          aws.String(k),
			Size:         aws.Int64(int64(len(o.body))),
			LastModified: aws.Time(o.modified),
		})
	}
	return &s3.ListObjectsV2Output{Contents: contents, IsTruncated: aws.Bool(false)}, nil
}

func (f *FakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("no such key")}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(o.body))}, nil
}

func (f *FakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Key)] = object{body: data, modified: time.Now().UTC()}
	return &s3.PutObjectOutput{}, nil
}

func (f *FakeS3) CopyObject(_ context.Context, in *s3.CopyObjectInput, _ ...func(*s3.Options)) (*s3.CopyObjectOutput, error) {
	_, srcKey, ok := strings.Cut(aws.ToString(in.CopySource), "/")
	if !ok {
		return nil, fmt.Errorf("bad copy source %q", aws.ToString(in.CopySource))
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	o, exists := f.objects[srcKey]
	if !exists {
		return nil, &types.NoSuchKey{Message: aws.String(srcKey)}
	}
	f.objects[aws.ToString(in.Key)] = o
	return &s3.CopyObjectOutput{}, nil
}

func (f *FakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *FakeS3) HeadBucket(context.Context, *s3.HeadBucketInput, ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	if f.HeadErr != nil {
		return nil, f.HeadErr
	}
	return &s3.HeadBucketOutput{}, nil
}
