package drive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ignite/audio-retro/internal/pkg/logger"
)

const localTrashDir = ".trash"

// Local serves folders from a directory tree. IDs are paths relative to Root.
type Local struct {
	Root string
}

// NewLocal binds a directory.
func NewLocal(root string) *Local {
	return &Local{Root: root}
}

func (l *Local) abs(id string) string {
	return filepath.Join(l.Root, filepath.FromSlash(id))
}

// ListFolders returns the sub-directories of parentID ("" is the root).
func (l *Local) ListFolders(_ context.Context, parentID string) ([]Folder, error) {
	entries, err := os.ReadDir(l.abs(parentID))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", l.abs(parentID), err)
	}

	var folders []Folder
	for _, e := range entries {
		if !e.IsDir() || e.Name() == localTrashDir {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, err
		}
		folders = append(folders, Folder{
			ID:      filepath.ToSlash(filepath.Join(parentID, e.Name())),
			Name:    e.Name(),
			Created: info.ModTime(),
		})
	}
	return folders, nil
}

// ListCSVFiles reads every CSV directly inside folderID.
func (l *Local) ListCSVFiles(_ context.Context, folderID string) ([]File, error) {
	dir := l.abs(folderID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}

	var files []File
	for _, e := range entries {
		if e.IsDir() || !IsCSV(e.Name(), "") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		info, err := e.Info()
		if err != nil {
			return nil, err
		}
		files = append(files, File{
			ID:       filepath.ToSlash(filepath.Join(folderID, e.Name())),
			Name:     e.Name(),
			MimeType: CSVMimeType,
			Created:  info.ModTime(),
			Content:  string(data),
		})
	}
	return files, nil
}

// Trash moves id under Root/.trash, keeping its relative path.
func (l *Local) Trash(_ context.Context, id string) error {
	src := l.abs(id)
	if _, err := os.Stat(src); err != nil {
		return err
	}
	dst := filepath.Join(l.Root, localTrashDir, filepath.FromSlash(id))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	if _, err := os.Stat(dst); err == nil {
		dst += "." + time.Now().UTC().Format("20060102T150405.000000000")
	}
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("trash %s: %w", id, err)
	}
	logger.Debug("drive: trashed", "stage", "cleanup", "path", id)
	return nil
}
