// Package pipeline runs one retro: it picks the newest dashboard export,
// aggregates the vendor CSV, publishes the combined document and cleans up.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/audio-retro/internal/drive"
	"github.com/ignite/audio-retro/internal/exchange"
	"github.com/ignite/audio-retro/internal/pkg/distlock"
	"github.com/ignite/audio-retro/internal/pkg/logger"
	"github.com/ignite/audio-retro/internal/podscribe"
	"github.com/ignite/audio-retro/internal/publish"
	"github.com/ignite/audio-retro/internal/regions"
	"github.com/ignite/audio-retro/internal/runlog"
)

// Deps are the collaborators of a run.
type Deps struct {
	Source  drive.Source
	Regions regions.TableReader
	// Rates may be nil, in which case every run uses the fallback rate.
	Rates  exchange.RateSource
	Sinks  []publish.Sink
	Ledger runlog.Ledger
	// NewLock returns a fresh lock per run.
	NewLock func() distlock.DistLock
	Now     func() time.Time
}

// Options are the per-deployment settings of a run.
type Options struct {
	ParentID       string
	FolderName     string
	RegionsSheetID string
	RegionsTab     string
	SourceCurrency string
	TargetCurrency string
	FallbackRate   float64
	Render         podscribe.RenderOptions
	Fallbacks      *podscribe.Fallbacks
	Cleanup        bool
	RawCSVLimit    int
	DocumentPrefix string
}

// Result summarises a successful run.
type Result struct {
	RunID        string            `json:"run_id"`
	Folder       string            `json:"folder"`
	EngineFile   string            `json:"engine_file"`
	Rows         int               `json:"rows"`
	Skipped      int               `json:"skipped"`
	Rate         float64           `json:"rate"`
	FallbackRate bool              `json:"fallback_rate"`
	Locations    map[string]string `json:"locations"`
	Report       string            `json:"report"`
}

// Runner executes runs. It is safe to call Run concurrently; the lock
// rejects overlapping runs.
type Runner struct {
	deps Deps
	opts Options
}

// New fills in defaults for missing collaborators.
func New(deps Deps, opts Options) *Runner {
	if deps.Ledger == nil {
		deps.Ledger = runlog.Nop{}
	}
	if deps.NewLock == nil {
		deps.NewLock = func() distlock.DistLock { return distlock.NewLocalLock("audio-retro-run") }
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if opts.DocumentPrefix == "" {
		opts.DocumentPrefix = "combined_csv_data"
	}
	return &Runner{deps: deps, opts: opts}
}

func (r *Runner) newConverter() *exchange.Converter {
	return exchange.NewConverter(r.deps.Rates, r.opts.SourceCurrency, r.opts.TargetCurrency, r.opts.FallbackRate)
}

// Rate looks up the current rate with a fresh converter.
func (r *Runner) Rate(ctx context.Context) (rate float64, fallback bool) {
	conv := r.newConverter()
	return conv.Rate(ctx), conv.UsedFallback()
}

// Run performs one complete run.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	lock := r.deps.NewLock()
	ok, err := lock.Acquire(ctx)
	if err != nil {
		return nil, stageErr("lock", "", err)
	}
	if !ok {
		return nil, ErrRunInProgress
	}
	defer func() {
		// release even if ctx was cancelled mid-run
		if err := lock.Release(context.Background()); err != nil {
			logger.Warn("pipeline: lock release failed", "stage", "lock", "error", err)
		}
	}()

	run := runlog.Run{ID: uuid.NewString(), StartedAt: r.deps.Now().UTC(), Status: runlog.StatusRunning}
	if err := r.deps.Ledger.Start(ctx, run); err != nil {
		logger.Warn("pipeline: ledger start failed", "stage", "ledger", "run_id", run.ID, "error", err)
	}
	logger.Info("pipeline: run started", "stage", "start", "run_id", run.ID)

	res := &Result{RunID: run.ID, Locations: map[string]string{}}
	runErr := r.execute(ctx, res)

	finished := r.deps.Now().UTC()
	run.FinishedAt = &finished
	run.Folder = res.Folder
	run.EngineFile = res.EngineFile
	run.RowsIngested = res.Rows
	run.RowsSkipped = res.Skipped
	run.Rate = res.Rate
	run.Status = runlog.StatusSucceeded
	if runErr != nil {
		run.Status = runlog.StatusFailed
		run.Error = runErr.Error()
	}
	if err := r.deps.Ledger.Finish(context.Background(), run); err != nil {
		logger.Warn("pipeline: ledger finish failed", "stage", "ledger", "run_id", run.ID, "error", err)
	}

	if runErr != nil {
		var se *StageError
		if errors.As(runErr, &se) {
			logger.Error("pipeline: run failed", "run_id", run.ID, "stage", se.Stage, "file", se.File, "error", se.Err)
		} else {
			logger.Error("pipeline: run failed", "run_id", run.ID, "error", runErr)
		}
		return nil, runErr
	}
	logger.Info("pipeline: run finished", "stage", "done", "run_id", run.ID,
		"rows", res.Rows, "skipped", res.Skipped, "locations", len(res.Locations))
	return res, nil
}

func (r *Runner) execute(ctx context.Context, res *Result) error {
	folders, err := r.deps.Source.ListFolders(ctx, r.opts.ParentID)
	if err != nil {
		return stageErr("source", "", err)
	}
	folder, err := drive.LatestFolder(folders, r.opts.FolderName)
	if err != nil {
		return stageErr("source", r.opts.FolderName, err)
	}
	res.Folder = folder.Name
	logger.Info("pipeline: using folder", "stage", "source", "folder", folder.Name, "id", folder.ID, "created", folder.Created)

	files, err := r.deps.Source.ListCSVFiles(ctx, folder.ID)
	if err != nil {
		return stageErr("source", folder.Name, err)
	}
	cls := drive.ClassifyFiles(files)
	if cls.Engine == nil {
		return stageErr("classify", folder.Name, ErrNoPrimaryFile)
	}
	engine := *cls.Engine
	res.EngineFile = engine.Name
	logger.Info("pipeline: files classified", "stage", "classify", "file", engine.Name,
		"vendor", cls.Vendor, "others", len(cls.Others))

	regionMap, err := regions.Load(ctx, r.deps.Regions, r.opts.RegionsSheetID, r.opts.RegionsTab)
	if err != nil {
		return stageErr("regions", r.opts.RegionsTab, err)
	}

	conv := r.newConverter()
	snap, report, err := Analyze(ctx, engine.Content, regionMap, conv, r.opts.Fallbacks, r.opts.Render)
	if err != nil {
		return stageErr("parse", engine.Name, err)
	}
	res.Rows, res.Skipped = snap.Ingested, snap.Skipped
	res.Rate, res.FallbackRate = conv.Rate(ctx), conv.UsedFallback()
	res.Report = report

	heading := "Podscribe Data Analysis"
	if !cls.Vendor {
		heading = strings.TrimSuffix(engine.Name, ".csv") + " Analysis"
	}
	now := r.deps.Now()
	doc := publish.Document{
		Title:   fmt.Sprintf("%s_%s", r.opts.DocumentPrefix, now.Format("2006-01-02_15-04-05")),
		Body:    BuildDocument(heading, report, cls.Others, r.opts.RawCSVLimit),
		Created: now,
	}

	for _, sink := range r.deps.Sinks {
		loc, err := sink.Publish(ctx, doc)
		if errors.Is(err, publish.ErrSkipped) {
			logger.Info("pipeline: sink skipped", "stage", "publish", "sink", sink.Name(), "reason", err)
			continue
		}
		if err != nil {
			return stageErr("publish", sink.Name(), err)
		}
		res.Locations[sink.Name()] = loc
	}

	if r.opts.Cleanup {
		r.cleanup(ctx, folder, files)
	}
	return nil
}

// cleanup trashes every CSV it was handed, then the folder. Failures are
// logged and do not fail the run.
func (r *Runner) cleanup(ctx context.Context, folder drive.Folder, processed []drive.File) {
	for _, f := range processed {
		if err := r.deps.Source.Trash(ctx, f.ID); err != nil {
			logger.Warn("pipeline: could not trash file", "stage", "cleanup", "file", f.Name, "error", err)
			continue
		}
		logger.Info("pipeline: trashed file", "stage", "cleanup", "file", f.Name)
	}

	remaining, err := r.deps.Source.ListCSVFiles(ctx, folder.ID)
	if err != nil {
		logger.Warn("pipeline: could not re-list folder, keeping it", "stage", "cleanup", "folder", folder.Name, "error", err)
		return
	}
	if len(remaining) > 0 {
		logger.Info("pipeline: keeping folder with unprocessed files", "stage", "cleanup",
			"folder", folder.Name, "remaining", len(remaining))
		return
	}
	if err := r.deps.Source.Trash(ctx, folder.ID); err != nil {
		logger.Warn("pipeline: could not trash folder", "stage", "cleanup", "folder", folder.Name, "error", err)
		return
	}
	logger.Info("pipeline: trashed folder", "stage", "cleanup", "folder", folder.Name)
}

// Analyze parses one CSV document and renders its report with a fresh aggregator.
func Analyze(ctx context.Context, content string, regionMap podscribe.RegionLookup, conv podscribe.Converter,
	fb *podscribe.Fallbacks, ro podscribe.RenderOptions) (podscribe.Aggregates, string, error) {
	table, err := podscribe.ReadTable(strings.NewReader(content))
	if err != nil {
		return podscribe.Aggregates{}, "", err
	}
	agg := podscribe.NewAggregator(regionMap, conv)
	snap, err := podscribe.Process(ctx, table, agg, podscribe.Options{Fallbacks: fb})
	if err != nil {
		return podscribe.Aggregates{}, "", err
	}
	return snap, podscribe.RenderReport(snap, ro), nil
}
