package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/audio-retro/internal/confluence"
	"github.com/ignite/audio-retro/internal/config"
	"github.com/ignite/audio-retro/internal/drive"
	"github.com/ignite/audio-retro/internal/exchange"
	"github.com/ignite/audio-retro/internal/pipeline"
	"github.com/ignite/audio-retro/internal/pkg/distlock"
	"github.com/ignite/audio-retro/internal/pkg/googleauth"
	"github.com/ignite/audio-retro/internal/pkg/logger"
	"github.com/ignite/audio-retro/internal/podscribe"
	"github.com/ignite/audio-retro/internal/publish"
	"github.com/ignite/audio-retro/internal/regions"
	"github.com/ignite/audio-retro/internal/retros"
	"github.com/ignite/audio-retro/internal/runlog"
	"github.com/ignite/audio-retro/internal/storage"
)

// app holds every collaborator built from the configuration.
type app struct {
	cfg    *config.Config
	db     *sql.DB
	redis  *redis.Client
	store  *storage.S3Store
	ledger runlog.Ledger
	runner *pipeline.Runner
}

// loadConfig reads the YAML file plus env overrides. A missing file is
// allowed when allowMissing is set; defaults and env then apply alone.
func loadConfig(path string, allowMissing bool) (*config.Config, error) {
	cfg, err := config.LoadFromEnv(path)
	if err != nil && allowMissing && errors.Is(err, fs.ErrNotExist) {
		cfg, err = config.FromEnv(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	logger.SetLevel(logger.ParseLevel(cfg.Log.Level))
	logger.SetRedact(cfg.Log.Redact)
	return cfg, nil
}

func renderOptions(cfg *config.Config) podscribe.RenderOptions {
	return podscribe.RenderOptions{
		SourceCode:   cfg.Exchange.SourceCurrency,
		TargetCode:   cfg.Exchange.TargetCurrency,
		SourceSymbol: cfg.Exchange.SourceSymbol,
		TargetSymbol: cfg.Exchange.TargetSymbol,
	}
}

func fallbacks(cfg *config.Config) *podscribe.Fallbacks {
	return &podscribe.Fallbacks{
		ShowColumn:     cfg.Schema.ShowFallback(),
		CampaignColumn: cfg.Schema.CampaignFallback(),
	}
}

// rateSource is nil when no Wise token is configured.
func rateSource(cfg *config.Config, rdb *redis.Client) exchange.RateSource {
	if cfg.Exchange.Token == "" {
		logger.Warn("exchange: no API token configured, fallback rate will be used", "fallback", cfg.Exchange.FallbackRate)
		return nil
	}
	var src exchange.RateSource = exchange.NewWiseClient(exchange.Config{
		BaseURL:    cfg.Exchange.BaseURL,
		Token:      cfg.Exchange.Token,
		AuthScheme: cfg.Exchange.AuthScheme,
		Timeout:    cfg.Exchange.Timeout(),
	})
	if rdb != nil && cfg.Exchange.SharedCacheTTL() > 0 {
		src = exchange.NewSharedCache(src, rdb, cfg.Exchange.SharedCacheTTL())
	}
	return src
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, ledger: runlog.Nop{}}
	ok := false
	defer func() {
		if !ok {
			a.close()
		}
	}()

	if cfg.Redis.URL != "" {
		opt, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("%w: redis url: %v", config.ErrInvalid, err)
		}
		a.redis = redis.NewClient(opt)
	}

	if cfg.Database.URL != "" {
		db, err := runlog.Open(ctx, cfg.Database.URL)
		if err != nil {
			return nil, err
		}
		a.db = db
		ledger := runlog.NewPostgresLedger(db)
		if err := ledger.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		a.ledger = ledger
	}

	if cfg.Source.Type == "s3" || cfg.HasSink("s3") {
		store, err := storage.NewS3Store(ctx, cfg.Storage)
		if err != nil {
			return nil, err
		}
		a.store = store
	}

	var google *http.Client
	if cfg.Source.Type == "gdrive" || cfg.Regions.Type == "sheets" {
		client, err := googleauth.NewHTTPClient(ctx, cfg.Google.CredentialsFile, cfg.Google.Scopes)
		if err != nil {
			return nil, err
		}
		google = client
	}

	var source drive.Source
	switch cfg.Source.Type {
	case "gdrive":
		g, err := drive.NewGoogleDrive(ctx, google, cfg.Google.DriveEndpoint)
		if err != nil {
			return nil, err
		}
		source = g
	case "s3":
		source = drive.NewS3(a.store, cfg.Source.S3Prefix)
	default:
		source = drive.NewLocal(cfg.Source.LocalPath)
	}

	var table regions.TableReader
	switch cfg.Regions.Type {
	case "sheets":
		r, err := regions.NewSheetsReader(ctx, google, cfg.Google.SheetsEndpoint)
		if err != nil {
			return nil, err
		}
		table = r
	case "xlsx":
		table = regions.XLSXReader{Path: cfg.Regions.Path}
	default:
		table = regions.CSVReader{Path: cfg.Regions.Path}
	}

	sinks, err := a.sinks()
	if err != nil {
		return nil, err
	}

	a.runner = pipeline.New(pipeline.Deps{
		Source:  source,
		Regions: table,
		Rates:   rateSource(cfg, a.redis),
		Sinks:   sinks,
		Ledger:  a.ledger,
		NewLock: func() distlock.DistLock {
			return distlock.NewLock(a.redis, a.db, cfg.Run.LockKey, cfg.Run.LockTTL())
		},
	}, pipeline.Options{
		ParentID:       cfg.Source.ParentID,
		FolderName:     cfg.Source.FolderName,
		RegionsSheetID: cfg.Regions.SpreadsheetID,
		RegionsTab:     cfg.Regions.Tab,
		SourceCurrency: cfg.Exchange.SourceCurrency,
		TargetCurrency: cfg.Exchange.TargetCurrency,
		FallbackRate:   cfg.Exchange.FallbackRate,
		Render:         renderOptions(cfg),
		Fallbacks:      fallbacks(cfg),
		Cleanup:        cfg.Run.Cleanup,
		RawCSVLimit:    cfg.Run.RawCSVLimit,
		DocumentPrefix: cfg.Run.DocumentPrefix,
	})
	ok = true
	return a, nil
}

func (a *app) sinks() ([]publish.Sink, error) {
	var sinks []publish.Sink
	for _, name := range a.cfg.Publish.Sinks {
		switch strings.ToLower(name) {
		case "file":
			sinks = append(sinks, publish.FileSink{Dir: a.cfg.Publish.LocalPath})
		case "s3":
			sinks = append(sinks, publish.NewS3Sink(a.store, a.cfg.Publish.S3Prefix))
		case "confluence":
			c := a.cfg.Confluence
			sink, err := confluence.NewSink(confluenceClient(a.cfg), c.TitlePrefix, c.PageTemplate)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", config.ErrInvalid, err)
			}
			sinks = append(sinks, sink)
		}
	}
	return sinks, nil
}

func confluenceClient(cfg *config.Config) *confluence.Client {
	c := cfg.Confluence
	return confluence.NewClient(confluence.Config{
		Domain:           c.Domain,
		Email:            c.Email,
		APIToken:         c.APIToken,
		SpaceKey:         c.SpaceKey,
		ParentPageID:     c.ParentPageID,
		SearchAncestorID: c.SearchAncestor(),
		Timeout:          c.Timeout(),
	})
}

// newRetroJob builds the JSON retro publisher. It needs Google and
// Confluence credentials but none of the CSV pipeline's backends.
func newRetroJob(ctx context.Context, cfg *config.Config) (*retros.Job, *app, error) {
	if err := cfg.ValidateRetros(); err != nil {
		return nil, nil, err
	}
	a := &app{cfg: cfg, ledger: runlog.Nop{}}
	ok := false
	defer func() {
		if !ok {
			a.close()
		}
	}()

	if cfg.Redis.URL != "" {
		opt, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: redis url: %v", config.ErrInvalid, err)
		}
		a.redis = redis.NewClient(opt)
	}

	google, err := googleauth.NewHTTPClient(ctx, cfg.Google.CredentialsFile, cfg.Google.Scopes)
	if err != nil {
		return nil, nil, err
	}
	files, err := drive.NewGoogleDrive(ctx, google, cfg.Google.DriveEndpoint)
	if err != nil {
		return nil, nil, err
	}
	docs, err := drive.NewGoogleDocs(ctx, google, cfg.Google.DocsEndpoint)
	if err != nil {
		return nil, nil, err
	}
	renderer, err := retros.NewRenderer(cfg.Exchange.TargetSymbol)
	if err != nil {
		return nil, nil, err
	}

	r := cfg.Retros
	job := retros.NewJob(retros.Deps{
		Store:    drive.Workspace{GoogleDrive: files, GoogleDocs: docs},
		Pages:    confluenceClient(cfg),
		Renderer: renderer,
		NewLock: func() distlock.DistLock {
			return distlock.NewLock(a.redis, nil, cfg.Run.LockKey+"-docs", cfg.Run.LockTTL())
		},
	}, retros.Options{
		NamePrefix:      r.NamePrefix,
		Lookback:        r.Lookback(),
		OverrideKeyword: r.OverrideKeyword,
		TitlePrefix:     r.TitlePrefix,
		Location:        r.Location(),
	})
	ok = true
	return job, a, nil
}

func (a *app) close() {
	if a.db != nil {
		a.db.Close()
	}
	if a.redis != nil {
		a.redis.Close()
	}
}
