package drive

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/ignite/audio-retro/internal/pkg/logger"
	"github.com/ignite/audio-retro/internal/storage"
)

const s3TrashPrefix = "trash/"

// ObjectStore is the part of storage.S3Store the S3 source needs.
type ObjectStore interface {
	List(ctx context.Context, prefix string) ([]storage.Object, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Move(ctx context.Context, src, dst string) error
}

// S3 serves folders from key prefixes. Folder IDs end in "/".
type S3 struct {
	store  ObjectStore
	prefix string
}

// NewS3 binds a store and a default parent prefix.
func NewS3(store ObjectStore, prefix string) *S3 {
	return &S3{store: store, prefix: normalizePrefix(prefix)}
}

func normalizePrefix(p string) string {
	p = strings.TrimLeft(p, "/")
	if p != "" && !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p
}

// ListFolders groups keys one level below parentID. A folder's Created time
// is the oldest LastModified among its objects.
func (s *S3) ListFolders(ctx context.Context, parentID string) ([]Folder, error) {
	parent := s.prefix
	if parentID != "" {
		parent = normalizePrefix(parentID)
	}
	objs, err := s.store.List(ctx, parent)
	if err != nil {
		return nil, err
	}

	byName := make(map[string]*Folder)
	var order []string
	for _, o := range objs {
		rest := strings.TrimPrefix(o.Key, parent)
		name, _, nested := strings.Cut(rest, "/")
		if !nested || name == "" || parent+name+"/" == s3TrashPrefix {
			continue
		}
		f, ok := byName[name]
		if !ok {
			f = &Folder{ID: parent + name + "/", Name: name, Created: o.LastModified}
			byName[name] = f
			order = append(order, name)
		}
		if o.LastModified.Before(f.Created) {
			f.Created = o.LastModified
		}
	}

	folders := make([]Folder, 0, len(order))
	for _, name := range order {
		folders = append(folders, *byName[name])
	}
	return folders, nil
}

// ListCSVFiles reads the CSV objects directly under folderID.
func (s *S3) ListCSVFiles(ctx context.Context, folderID string) ([]File, error) {
	folder := normalizePrefix(folderID)
	objs, err := s.store.List(ctx, folder)
	if err != nil {
		return nil, err
	}

	var files []File
	for _, o := range objs {
		name := strings.TrimPrefix(o.Key, folder)
		if strings.Contains(name, "/") || !IsCSV(name, "") {
			continue
		}
		data, err := s.store.Get(ctx, o.Key)
		if err != nil {
			return nil, err
		}
		files = append(files, File{
			ID:       o.Key,
			Name:     path.Base(o.Key),
			MimeType: CSVMimeType,
			Created:  o.LastModified,
			Content:  string(data),
		})
	}
	return files, nil
}

// Trash moves a key, or every key under a folder ID, into trash/.
func (s *S3) Trash(ctx context.Context, id string) error {
	if !strings.HasSuffix(id, "/") {
		return s.moveToTrash(ctx, id)
	}
	objs, err := s.store.List(ctx, id)
	if err != nil {
		return err
	}
	for _, o := range objs {
		if err := s.moveToTrash(ctx, o.Key); err != nil {
			return err
		}
	}
	return nil
}

func (s *S3) moveToTrash(ctx context.Context, key string) error {
	dst := s3TrashPrefix + time.Now().UTC().Format("2006-01-02") + "/" + key
	if err := s.store.Move(ctx, key, dst); err != nil {
		return fmt.Errorf("trash %s: %w", key, err)
	}
	logger.Debug("drive: trashed", "stage", "cleanup", "key", key, "dest", dst)
	return nil
}
