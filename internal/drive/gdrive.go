package drive

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	drivev3 "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/ignite/audio-retro/internal/pkg/logger"
)

const (
	folderMimeType = "application/vnd.google-apps.folder"
	// DocMimeType is the Drive MIME type of a Google Doc.
	DocMimeType = "application/vnd.google-apps.document"

	listFields = "nextPageToken, files(id, name, mimeType, createdTime)"
)

// GoogleDrive reads folders and files through the Drive v3 API.
type GoogleDrive struct {
	files *drivev3.FilesService
}

// NewGoogleDrive expects client to carry Google credentials. An empty
// endpoint keeps the SDK default.
func NewGoogleDrive(ctx context.Context, client *http.Client, endpoint string) (*GoogleDrive, error) {
	opts := []option.ClientOption{option.WithHTTPClient(client)}
	if endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}
	svc, err := drivev3.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("drive service: %w", err)
	}
	return &GoogleDrive{files: svc.Files}, nil
}

func created(f *drivev3.File) time.Time {
	t, err := time.Parse(time.RFC3339, f.CreatedTime)
	if err != nil {
		return time.Time{}
	}
	return t
}

// ListFolders returns the child folders of parentID.
func (g *GoogleDrive) ListFolders(ctx context.Context, parentID string) ([]Folder, error) {
	q := fmt.Sprintf("'%s' in parents and trashed = false and mimeType = '%s'", escapeQuery(parentID), folderMimeType)
	files, err := g.list(ctx, q)
	if err != nil {
		return nil, err
	}
	folders := make([]Folder, 0, len(files))
	for _, f := range files {
		folders = append(folders, Folder{ID: f.Id, Name: f.Name, Created: created(f)})
	}
	return folders, nil
}

// ListCSVFiles returns the CSV children of folderID with content loaded.
func (g *GoogleDrive) ListCSVFiles(ctx context.Context, folderID string) ([]File, error) {
	q := fmt.Sprintf("'%s' in parents and trashed = false", escapeQuery(folderID))
	entries, err := g.list(ctx, q)
	if err != nil {
		return nil, err
	}

	var out []File
	for _, e := range entries {
		if e.MimeType == folderMimeType || !IsCSV(e.Name, e.MimeType) {
			continue
		}
		content, err := g.download(ctx, e.Id)
		if err != nil {
			return nil, fmt.Errorf("download %s: %w", e.Name, err)
		}
		out = append(out, File{ID: e.Id, Name: e.Name, MimeType: e.MimeType, Created: created(e), Content: content})
	}
	return out, nil
}

// SearchDocs lists Google Docs whose name contains nameContains and that
// were created after since. Content is not loaded.
func (g *GoogleDrive) SearchDocs(ctx context.Context, nameContains string, since time.Time) ([]File, error) {
	q := fmt.Sprintf("name contains '%s' and mimeType = '%s' and trashed = false and createdTime > '%s'",
		escapeQuery(nameContains), DocMimeType, since.UTC().Format(time.RFC3339))
	entries, err := g.list(ctx, q)
	if err != nil {
		return nil, err
	}
	out := make([]File, 0, len(entries))
	for _, e := range entries {
		out = append(out, File{ID: e.Id, Name: e.Name, MimeType: e.MimeType, Created: created(e)})
	}
	return out, nil
}

// Trash moves a file or folder to the Drive trash.
func (g *GoogleDrive) Trash(ctx context.Context, id string) error {
	if _, err := g.files.Update(id, &drivev3.File{Trashed: true}).Context(ctx).Do(); err != nil {
		return fmt.Errorf("trash %s: %w", id, err)
	}
	logger.Debug("drive: trashed", "stage", "cleanup", "id", id)
	return nil
}

func (g *GoogleDrive) list(ctx context.Context, q string) ([]*drivev3.File, error) {
	var all []*drivev3.File
	err := g.files.List().Q(q).Fields(listFields).PageSize(100).Pages(ctx, func(page *drivev3.FileList) error {
		all = append(all, page.Files...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("drive list: %w", err)
	}
	return all, nil
}

func (g *GoogleDrive) download(ctx context.Context, id string) (string, error) {
	resp, err := g.files.Get(id).Context(ctx).Download()
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read drive response: %w", err)
	}
	return string(body), nil
}

// escapeQuery escapes a value embedded in a single-quoted Drive query literal.
func escapeQuery(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}
