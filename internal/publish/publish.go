// Package publish delivers the combined retro document to its destinations.
package publish

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ignite/audio-retro/internal/pkg/logger"
)

// ErrSkipped is returned by sinks that deliberately did not publish, for
// example because the destination already holds the document.
var ErrSkipped = errors.New("publish skipped")

// Document is one rendered run output.
type Document struct {
	Title   string
	Body    string
	Created time.Time
}

// Sink receives a document and returns where it landed.
type Sink interface {
	Name() string
	Publish(ctx context.Context, doc Document) (string, error)
}

var unsafeChars = strings.NewReplacer("/", "_", `\`, "_", ":", "-", "*", "_", "?", "_", `"`, "_", "<", "_", ">", "_", "|", "_")

// FileName turns a title into a filesystem- and key-safe name.
func FileName(title string) string {
	name := strings.TrimSpace(unsafeChars.Replace(title))
	if name == "" {
		name = "document"
	}
	return name + ".txt"
}

// FileSink writes documents into a local directory.
type FileSink struct {
	Dir string
}

func (f FileSink) Name() string { return "file" }

// Publish writes <Dir>/<title>.txt, replacing any previous file of that name.
func (f FileSink) Publish(_ context.Context, doc Document) (string, error) {
	if err := os.MkdirAll(f.Dir, 0o755); err != nil {
		return "", fmt.Errorf("creating %s: %w", f.Dir, err)
	}
	path := filepath.Join(f.Dir, FileName(doc.Title))
	if err := os.WriteFile(path, []byte(doc.Body), 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	logger.Info("publish: document written", "stage", "publish", "sink", f.Name(), "path", path)
	return path, nil
}

// ObjectPutter is the part of storage.S3Store the S3 sink needs.
type ObjectPutter interface {
	Bucket() string
	Put(ctx context.Context, key string, body []byte, contentType string) error
}

// S3Sink uploads documents under a key prefix.
type S3Sink struct {
	store  ObjectPutter
	prefix string
}

// NewS3Sink binds a store and key prefix.
func NewS3Sink(store ObjectPutter, prefix string) *S3Sink {
	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return &S3Sink{store: store, prefix: prefix}
}

func (s *S3Sink) Name() string { return "s3" }

func (s *S3Sink) Publish(ctx context.Context, doc Document) (string, error) {
	key := s.prefix + FileName(doc.Title)
	if err := s.store.Put(ctx, key, []byte(doc.Body), "text/plain; charset=utf-8"); err != nil {
		return "", err
	}
	loc := fmt.Sprintf("s3://%s/%s", s.store.Bucket(), key)
	logger.Info("publish: document uploaded", "stage", "publish", "sink", s.Name(), "location", loc)
	return loc, nil
}
