package drive

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	docs "google.golang.org/api/docs/v1"
	"google.golang.org/api/option"
)

// GoogleDocs reads and edits Google Doc bodies through the Docs v1 API.
type GoogleDocs struct {
	documents *docs.DocumentsService
}

// NewGoogleDocs expects client to carry Google credentials. An empty
// endpoint keeps the SDK default.
func NewGoogleDocs(ctx context.Context, client *http.Client, endpoint string) (*GoogleDocs, error) {
	opts := []option.ClientOption{option.WithHTTPClient(client)}
	if endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}
	svc, err := docs.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("docs service: %w", err)
	}
	return &GoogleDocs{documents: svc.Documents}, nil
}

// ReadText returns the plain text of every body paragraph.
func (g *GoogleDocs) ReadText(ctx context.Context, id string) (string, error) {
	doc, err := g.documents.Get(id).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("read doc %s: %w", id, err)
	}
	var b strings.Builder
	if doc.Body != nil {
		writeElements(&b, doc.Body.Content)
	}
	return b.String(), nil
}

func writeElements(b *strings.Builder, elems []*docs.StructuralElement) {
	for _, el := range elems {
		switch {
		case el.Paragraph != nil:
			for _, pe := range el.Paragraph.Elements {
				if pe.TextRun != nil {
					b.WriteString(pe.TextRun.Content)
				}
			}
		case el.Table != nil:
			for _, row := range el.Table.TableRows {
				for _, cell := range row.TableCells {
					writeElements(b, cell.Content)
				}
			}
		}
	}
}

// RemoveText deletes every case-insensitive occurrence of word from the doc.
func (g *GoogleDocs) RemoveText(ctx context.Context, id, word string) error {
	req := &docs.BatchUpdateDocumentRequest{
		Requests: []*docs.Request{{
			ReplaceAllText: &docs.ReplaceAllTextRequest{
				ContainsText:    &docs.SubstringMatchCriteria{Text: word, MatchCase: false},
				ReplaceText:     "",
				ForceSendFields: []string{"ReplaceText"},
			},
		}},
	}
	if _, err := g.documents.BatchUpdate(id, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("edit doc %s: %w", id, err)
	}
	return nil
}

// Workspace pairs Drive search and trash with Docs editing.
type Workspace struct {
	*GoogleDrive
	*GoogleDocs
}
