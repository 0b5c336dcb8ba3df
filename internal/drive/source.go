// Package drive lists and trashes the dashboard CSV exports. Backends are
// Google Drive, a local directory tree and an S3 prefix.
package drive

import (
	"context"
	"errors"
	"path"
	"sort"
	"strings"
	"time"
)

// CSVMimeType is the MIME type Drive assigns to uploaded CSV exports.
const CSVMimeType = "text/csv"

// ErrNoFolder means no folder with the configured name exists under the parent.
var ErrNoFolder = errors.New("no dashboard folder found")

// File is one exported CSV with its content loaded.
type File struct {
	ID       string
	Name     string
	MimeType string
	Created  time.Time
	Content  string
}

// Folder is a candidate dashboard export folder.
type Folder struct {
	ID      string
	Name    string
	Created time.Time
}

// Source is a file store holding dashboard folders.
type Source interface {
	ListFolders(ctx context.Context, parentID string) ([]Folder, error)
	ListCSVFiles(ctx context.Context, folderID string) ([]File, error)
	Trash(ctx context.Context, id string) error
}

// IsCSV matches by MIME type or by a .csv extension.
func IsCSV(name, mimeType string) bool {
	if mimeType == CSVMimeType {
		return true
	}
	return strings.EqualFold(path.Ext(name), ".csv")
}

// LatestFolder picks the newest folder named exactly name.
func LatestFolder(folders []Folder, name string) (Folder, error) {
	var matches []Folder
	for _, f := range folders {
		if f.Name == name {
			matches = append(matches, f)
		}
	}
	if len(matches) == 0 {
		return Folder{}, ErrNoFolder
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Created.After(matches[j].Created)
	})
	return matches[0], nil
}
