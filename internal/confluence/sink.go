package confluence

import (
	"context"
	"fmt"

	"github.com/osteele/liquid"

	"github.com/ignite/audio-retro/internal/pkg/logger"
	"github.com/ignite/audio-retro/internal/publish"
)

// ErrPageExists means a page with the same title is already live.
var ErrPageExists = fmt.Errorf("confluence page already exists: %w", publish.ErrSkipped)

// DefaultPageTemplate wraps the plain-text report for the storage format.
const DefaultPageTemplate = `<p>Generated {{ created }}</p>
<pre>{{ body | escape }}</pre>`

// PageCreator is implemented by Client.
type PageCreator interface {
	PageExists(ctx context.Context, title string) (bool, error)
	CreatePage(ctx context.Context, title, storageBody string) (string, error)
}

// Sink publishes documents as Confluence pages titled "<prefix> - <timestamp>".
type Sink struct {
	client      PageCreator
	titlePrefix string
	tpl         *liquid.Template
}

// NewSink compiles pageTemplate ("" selects DefaultPageTemplate).
func NewSink(client PageCreator, titlePrefix, pageTemplate string) (*Sink, error) {
	if pageTemplate == "" {
		pageTemplate = DefaultPageTemplate
	}
	tpl, err := liquid.NewEngine().ParseString(pageTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse page template: %w", err)
	}
	return &Sink{client: client, titlePrefix: titlePrefix, tpl: tpl}, nil
}

func (s *Sink) Name() string { return "confluence" }

// PageTitle derives the wiki title for a document.
func (s *Sink) PageTitle(doc publish.Document) string {
	return fmt.Sprintf("%s - %s", s.titlePrefix, doc.Created.Format("2006-01-02 15:04:05"))
}

// Publish creates the page unless one with the same title exists.
func (s *Sink) Publish(ctx context.Context, doc publish.Document) (string, error) {
	title := s.PageTitle(doc)

	exists, err := s.client.PageExists(ctx, title)
	if err != nil {
		return "", fmt.Errorf("checking page %q: %w", title, err)
	}
	if exists {
		logger.Info("confluence: page already exists, skipping", "stage", "publish", "title", title)
		return "", ErrPageExists
	}

	body, err := s.tpl.RenderString(liquid.Bindings{
		"title":   title,
		"body":    doc.Body,
		"created": doc.Created.Format("2006-01-02 15:04:05 MST"),
		"name":    doc.Title,
	})
	if err != nil {
		return "", fmt.Errorf("render page body: %w", err)
	}
	return s.client.CreatePage(ctx, title, body)
}
