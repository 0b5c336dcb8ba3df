package retros

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ignite/audio-retro/internal/confluence"
	"github.com/ignite/audio-retro/internal/drive"
	"github.com/ignite/audio-retro/internal/pkg/distlock"
	"github.com/ignite/audio-retro/internal/pkg/logger"
)

// ErrRunInProgress is returned when another job holds the lock.
var ErrRunInProgress = errors.New("a retro publish is already in progress")

// Store finds retro documents and edits them in place.
type Store interface {
	SearchDocs(ctx context.Context, nameContains string, since time.Time) ([]drive.File, error)
	ReadText(ctx context.Context, id string) (string, error)
	RemoveText(ctx context.Context, id, word string) error
	Trash(ctx context.Context, id string) error
}

// Outcome of one document.
type Outcome string

const (
	Created Outcome = "created"
	Existed Outcome = "exists"
	Failed  Outcome = "failed"
)

// DocResult records what happened to one document.
type DocResult struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Title   string  `json:"title"`
	Outcome Outcome `json:"outcome"`
	URL     string  `json:"url,omitempty"`
	Forced  bool    `json:"forced,omitempty"`
	Error   string  `json:"error,omitempty"`
}

// Summary counts the outcomes of one job run.
type Summary struct {
	Created int         `json:"created"`
	Existed int         `json:"existed"`
	Failed  int         `json:"failed"`
	Docs    []DocResult `json:"docs"`
}

type Deps struct {
	Store    Store
	Pages    confluence.PageCreator
	Renderer *Renderer
	// NewLock returns a fresh lock per run.
	NewLock func() distlock.DistLock
	Now     func() time.Time
}

type Options struct {
	// NamePrefix precedes the YYYY/MM/DD date in document names.
	NamePrefix      string
	Lookback        time.Duration
	OverrideKeyword string
	TitlePrefix     string
	// Location formats the (HH:mm) title stamp.
	Location *time.Location
}

// Job publishes every recent retro document once, then trashes it.
type Job struct {
	deps    Deps
	opts    Options
	pattern *regexp.Regexp
	keyword *regexp.Regexp
}

// NewJob fills in defaults for missing settings.
func NewJob(deps Deps, opts Options) *Job {
	if deps.NewLock == nil {
		deps.NewLock = func() distlock.DistLock { return distlock.NewLocalLock("audio-retro-docs") }
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if opts.NamePrefix == "" {
		opts.NamePrefix = "Audio Monthly Retro JSON - "
	}
	if opts.Lookback == 0 {
		opts.Lookback = 7 * 24 * time.Hour
	}
	if opts.OverrideKeyword == "" {
		opts.OverrideKeyword = "override"
	}
	if opts.TitlePrefix == "" {
		opts.TitlePrefix = "Audio Monthly Retro"
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Job{
		deps:    deps,
		opts:    opts,
		pattern: regexp.MustCompile(regexp.QuoteMeta(opts.NamePrefix) + `(\d{4})/(\d{2})/(\d{2})$`),
		keyword: regexp.MustCompile(`(?i)` + regexp.QuoteMeta(opts.OverrideKeyword)),
	}
}

// Find returns the recent documents whose name ends in the dated pattern.
func (j *Job) Find(ctx context.Context) ([]drive.File, error) {
	since := j.deps.Now().Add(-j.opts.Lookback)
	files, err := j.deps.Store.SearchDocs(ctx, strings.TrimSpace(j.opts.NamePrefix), since)
	if err != nil {
		return nil, fmt.Errorf("search retro docs: %w", err)
	}
	var out []drive.File
	for _, f := range files {
		if !f.Created.IsZero() && !f.Created.After(since) {
			logger.Debug("retros: document too old", "stage", "discover", "name", f.Name, "created", f.Created)
			continue
		}
		if !j.pattern.MatchString(f.Name) {
			logger.Debug("retros: name does not match", "stage", "discover", "name", f.Name)
			continue
		}
		out = append(out, f)
	}
	logger.Info("retros: search complete", "stage", "discover", "found", len(files), "matched", len(out))
	return out, nil
}

// Run processes every matching document. A failed document is counted and
// logged; only search and lock failures abort the run.
func (j *Job) Run(ctx context.Context) (*Summary, error) {
	lock := j.deps.NewLock()
	ok, err := lock.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("lock: %w", err)
	}
	if !ok {
		return nil, ErrRunInProgress
	}
	defer func() {
		if err := lock.Release(context.Background()); err != nil {
			logger.Warn("retros: lock release failed", "stage", "lock", "error", err)
		}
	}()

	docs, err := j.Find(ctx)
	if err != nil {
		return nil, err
	}

	sum := &Summary{Docs: []DocResult{}}
	for _, f := range docs {
		res := j.process(ctx, f)
		switch res.Outcome {
		case Created:
			sum.Created++
		case Existed:
			sum.Existed++
		default:
			sum.Failed++
			logger.Error("retros: document failed", "stage", "publish", "name", f.Name, "error", res.Error)
		}
		sum.Docs = append(sum.Docs, res)
	}
	logger.Info("retros: run finished", "stage", "done",
		"created", sum.Created, "existed", sum.Existed, "failed", sum.Failed)
	return sum, nil
}

func (j *Job) process(ctx context.Context, f drive.File) DocResult {
	res := DocResult{ID: f.ID, Name: f.Name, Title: j.Title(f.Name)}
	fail := func(err error) DocResult {
		res.Outcome = Failed
		res.Error = err.Error()
		return res
	}

	text, err := j.deps.Store.ReadText(ctx, f.ID)
	if err != nil {
		return fail(err)
	}

	// The keyword is removed from the source document before publishing
	// so the next run does not force again.
	if j.keyword.MatchString(text) {
		res.Forced = true
		if err := j.deps.Store.RemoveText(ctx, f.ID, j.opts.OverrideKeyword); err != nil {
			return fail(err)
		}
		text = j.keyword.ReplaceAllString(text, "")
		logger.Info("retros: override keyword removed", "stage", "publish", "name", f.Name)
	}

	doc, err := Parse(text)
	if err != nil {
		return fail(err)
	}
	body, err := j.deps.Renderer.Render(doc)
	if err != nil {
		return fail(err)
	}

	res.Outcome = Created
	if !res.Forced {
		exists, err := j.deps.Pages.PageExists(ctx, res.Title)
		if err != nil {
			return fail(fmt.Errorf("checking page %q: %w", res.Title, err))
		}
		if exists {
			res.Outcome = Existed
		}
	}
	if res.Outcome == Created {
		url, err := j.deps.Pages.CreatePage(ctx, res.Title, body)
		switch {
		case errors.Is(err, confluence.ErrPageExists):
			res.Outcome = Existed
		case err != nil:
			return fail(err)
		default:
			res.URL = url
		}
	}
	if res.Outcome == Existed {
		logger.Info("retros: page already exists", "stage", "publish", "title", res.Title)
	}

	if err := j.deps.Store.Trash(ctx, f.ID); err != nil {
		return fail(fmt.Errorf("trash %s: %w", f.Name, err))
	}
	return res
}

// Title names the page for a document: "<prefix> - January 2025 (14:05)"
// when the name carries a date, otherwise "<name> - Processed (14:05)".
func (j *Job) Title(name string) string {
	stamp := j.deps.Now().In(j.opts.Location).Format("(15:04)")
	if m := j.pattern.FindStringSubmatch(name); m != nil && strings.HasPrefix(name, j.opts.NamePrefix) {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		day, _ := strconv.Atoi(m[3])
		d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
		return fmt.Sprintf("%s - %s %d %s", j.opts.TitlePrefix, d.Month(), d.Year(), stamp)
	}
	return fmt.Sprintf("%s - Processed %s", name, stamp)
}
