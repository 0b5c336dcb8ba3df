package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/audio-retro/internal/drive"
	"github.com/ignite/audio-retro/internal/pkg/distlock"
	"github.com/ignite/audio-retro/internal/podscribe"
	"github.com/ignite/audio-retro/internal/publish"
	"github.com/ignite/audio-retro/internal/regions"
	"github.com/ignite/audio-retro/internal/runlog"
)

const (
	dashboard = "dashboard-audio_retro_dashboard"

	vendorCSV = "Day,Publisher,Impressions,Unique Visitors,Spend,Geo,Show\n" +
		"2025-01-05,Acme,1000,50,100,gb,Morning Show\n" +
		"2025-01-06,Acme,2000,100,50,us,Morning Show\n" +
		"total,,,,,,\n"

	regionCSV = "2-ISO,Region\nGB,United Kingdom\nUS,North America\n"
)

var fixedNow = time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)

type staticRate float64

func (s staticRate) GetRate(context.Context, string, string) (float64, error) {
	return float64(s), nil
}

type recordingLedger struct {
	mu       sync.Mutex
	started  []runlog.Run
	finished []runlog.Run
}

func (l *recordingLedger) Start(_ context.Context, r runlog.Run) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.started = append(l.started, r)
	return nil
}

func (l *recordingLedger) Finish(_ context.Context, r runlog.Run) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.finished = append(l.finished, r)
	return nil
}

func (l *recordingLedger) Get(context.Context, string) (*runlog.Run, error) {
	return nil, runlog.ErrNotFound
}

func (l *recordingLedger) Recent(context.Context, int) ([]runlog.Run, error) { return nil, nil }

type stubSink struct {
	name string
	err  error
	docs []publish.Document
}

func (s *stubSink) Name() string { return s.name }

func (s *stubSink) Publish(_ context.Context, doc publish.Document) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.docs = append(s.docs, doc)
	return "stub://" + doc.Title, nil
}

type fixture struct {
	root    string
	folder  string
	regions string
	out     string
	ledger  *recordingLedger
}

func newFixture(t *testing.T, files map[string]string) *fixture {
	t.Helper()
	root := t.TempDir()
	f := &fixture{
		root:    filepath.Join(root, "drive"),
		folder:  filepath.Join(root, "drive", dashboard),
		regions: filepath.Join(root, "regions.csv"),
		out:     filepath.Join(root, "out"),
		ledger:  &recordingLedger{},
	}
	require.NoError(t, os.MkdirAll(f.folder, 0o755))
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(f.folder, name), []byte(content), 0o644))
	}
	require.NoError(t, os.WriteFile(f.regions, []byte(regionCSV), 0o644))
	return f
}

func (f *fixture) runner(sinks []publish.Sink, cleanup bool) *Runner {
	return New(Deps{
		Source:  drive.NewLocal(f.root),
		Regions: regions.CSVReader{Path: f.regions},
		Rates:   staticRate(0.8),
		Sinks:   sinks,
		Ledger:  f.ledger,
		NewLock: func() distlock.DistLock { return distlock.NewLocalLock("pipeline-test-" + f.root) },
		Now:     func() time.Time { return fixedNow },
	}, Options{
		FolderName:     dashboard,
		SourceCurrency: "USD",
		TargetCurrency: "GBP",
		FallbackRate:   0.74,
		Cleanup:        cleanup,
		RawCSVLimit:    100000,
	})
}

func TestRunPublishesAndCleansUp(t *testing.T) {
	f := newFixture(t, map[string]string{
		"podscribe_january.csv": vendorCSV,
		"spend.csv":             "a,b\n1,2\n",
	})
	res, err := f.runner([]publish.Sink{publish.FileSink{Dir: f.out}}, true).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, dashboard, res.Folder)
	assert.Equal(t, "podscribe_january.csv", res.EngineFile)
	assert.Equal(t, 2, res.Rows)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 0.8, res.Rate)
	assert.False(t, res.FallbackRate)
	assert.Contains(t, res.Report, "Acme,Morning Show")

	loc := res.Locations["file"]
	assert.Equal(t, filepath.Join(f.out, "combined_csv_data_2025-02-01_10-00-00.txt"), loc)
	data, err := os.ReadFile(loc)
	require.NoError(t, err)
	doc := string(data)
	assert.True(t, strings.HasPrefix(doc, "# Podscribe Data Analysis\n\n"+res.Report))
	assert.Contains(t, doc, "# Other CSV Files\n\n## spend.csv\n")
	assert.Contains(t, doc, "a,b\n1,2\n")

	assert.NoDirExists(t, f.folder)
	assert.FileExists(t, filepath.Join(f.root, ".trash", dashboard, "spend.csv"))

	require.Len(t, f.ledger.finished, 1)
	assert.Equal(t, runlog.StatusSucceeded, f.ledger.finished[0].Status)
	assert.Equal(t, res.RunID, f.ledger.finished[0].ID)
	assert.Equal(t, 2, f.ledger.finished[0].RowsIngested)
}

func TestRunFallsBackToPrimaryMetricsFile(t *testing.T) {
	f := newFixture(t, map[string]string{
		"metrics.csv": "Day,Publisher,Geo,Spend\n2025-01-05,Acme,gb,10\n",
	})
	sink := &stubSink{name: "stub"}
	res, err := f.runner([]publish.Sink{sink}, false).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "metrics.csv", res.EngineFile)
	require.Len(t, sink.docs, 1)
	assert.True(t, strings.HasPrefix(sink.docs[0].Body, "# metrics Analysis\n\n"))
	assert.NotContains(t, sink.docs[0].Body, "Other CSV Files")
	assert.Equal(t, fixedNow, sink.docs[0].Created)
	assert.DirExists(t, f.folder, "cleanup disabled")
}

func TestRunConfigurationErrors(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
		setup func(f *fixture)
		want  error
		stage string
	}{
		{
			name:  "no folder",
			setup: func(f *fixture) { require.NoError(t, os.RemoveAll(f.folder)) },
			want:  ErrNoFolder,
			stage: "source",
		},
		{
			name:  "no primary file",
			files: map[string]string{"notes.csv": "a,b\n"},
			want:  ErrNoPrimaryFile,
			stage: "classify",
		},
		{
			name:  "header only",
			files: map[string]string{"podscribe.csv": "Day,Impressions,Visitors\n"},
			want:  podscribe.ErrNoDataRows,
			stage: "parse",
		},
		{
			name:  "bad region table",
			files: map[string]string{"podscribe.csv": vendorCSV},
			setup: func(f *fixture) {
				require.NoError(t, os.WriteFile(f.regions, []byte("code,name\nGB,UK\n"), 0o644))
			},
			want:  regions.ErrMissingColumns,
			stage: "regions",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.files)
			if tt.setup != nil {
				tt.setup(f)
			}
			sink := &stubSink{name: "stub"}
			_, err := f.runner([]publish.Sink{sink}, true).Run(context.Background())
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, IsConfigError(err))

			var se *StageError
			require.True(t, errors.As(err, &se))
			assert.Equal(t, tt.stage, se.Stage)

			assert.Empty(t, sink.docs, "nothing is published")
			require.Len(t, f.ledger.finished, 1)
			assert.Equal(t, runlog.StatusFailed, f.ledger.finished[0].Status)
		})
	}
}

func TestRunSinkFailureAborts(t *testing.T) {
	f := newFixture(t, map[string]string{"podscribe.csv": vendorCSV})
	failing := &stubSink{name: "wiki", err: errors.New("503 from wiki")}

	_, err := f.runner([]publish.Sink{failing}, true).Run(context.Background())
	require.Error(t, err)
	assert.False(t, IsConfigError(err))

	var se *StageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "publish", se.Stage)
	assert.Equal(t, "wiki", se.File)
	assert.FileExists(t, filepath.Join(f.folder, "podscribe.csv"), "no cleanup after a failed publish")
}

func TestRunSkippedSinkIsNotAFailure(t *testing.T) {
	f := newFixture(t, map[string]string{"podscribe.csv": vendorCSV})
	skipping := &stubSink{name: "confluence", err: publish.ErrSkipped}
	file := &stubSink{name: "stub"}

	res, err := f.runner([]publish.Sink{skipping, file}, false).Run(context.Background())
	require.NoError(t, err)
	assert.NotContains(t, res.Locations, "confluence")
	assert.Contains(t, res.Locations, "stub")
}

func TestRunRejectsOverlap(t *testing.T) {
	f := newFixture(t, map[string]string{"podscribe.csv": vendorCSV})
	r := f.runner(nil, false)

	held := distlock.NewLocalLock("pipeline-test-" + f.root)
	ok, err := held.Acquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	defer held.Release(context.Background())

	_, err = r.Run(context.Background())
	assert.ErrorIs(t, err, ErrRunInProgress)
	assert.Empty(t, f.ledger.started)
}

func TestRateUsesFallbackWithoutSource(t *testing.T) {
	r := New(Deps{}, Options{SourceCurrency: "USD", TargetCurrency: "GBP", FallbackRate: 0.74})
	rate, fallback := r.Rate(context.Background())
	assert.Equal(t, 0.74, rate)
	assert.True(t, fallback)
}

func TestBuildDocument(t *testing.T) {
	others := []drive.File{
		{Name: "a.csv", Content: "x,y\n"},
		{Name: "big.csv", Content: "£££££"},
	}
	doc := BuildDocument("Podscribe Data Analysis", "REPORT", others, 3)

	want := "# Podscribe Data Analysis\n\nREPORT\n\n" + separator + "\n\n" +
		"# Other CSV Files\n\n" +
		"## a.csv\n" + separator + "\nx,y\n" +
		"\n\n" +
		"## big.csv\n" + separator + "\nContent is large (5 characters), showing first portion:\n£££" +
		"\n"
	assert.Equal(t, want, doc)
}

func TestStageErrorMessage(t *testing.T) {
	err := stageErr("parse", "podscribe.csv", podscribe.ErrNoDataRows)
	assert.Equal(t, "parse (podscribe.csv): podscribe: file has no data rows", err.Error())
	assert.Equal(t, "lock: boom", stageErr("lock", "", errors.New("boom")).Error())
}
