package podscribe

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ignite/audio-retro/internal/pkg/logger"
)

// ErrNoDataRows is returned for a file with a header but no data.
var ErrNoDataRows = errors.New("podscribe: file has no data rows")

// ReadTable parses delimited text. Quotes are handled leniently and rows may
// have differing field counts. A UTF-8 BOM is stripped.
func ReadTable(r io.Reader) ([][]string, error) {
	br := bufio.NewReader(r)
	if bom, err := br.Peek(3); err == nil && string(bom) == "\ufeff" {
		if _, err := br.Discard(3); err != nil {
			return nil, fmt.Errorf("skip byte order mark: %w", err)
		}
	}
	cr := csv.NewReader(br)
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var rows [][]string
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv line %d: %w", len(rows)+1, err)
		}
		rows = append(rows, rec)
	}
	return rows, nil
}

// Options configures a Process call.
type Options struct {
	// Fallbacks defaults to DefaultFallbacks when nil.
	Fallbacks *Fallbacks
}

// Process resolves the header once and ingests every data row into agg.
// The first row of table is the header.
func Process(ctx context.Context, table [][]string, agg *Aggregator, opts Options) (Aggregates, error) {
	if len(table) < 2 {
		return Aggregates{}, ErrNoDataRows
	}

	cols := ResolveColumns(table[0])
	if missing := cols.MissingRoles(); len(missing) > 0 {
		logger.Info("podscribe: header roles not found", "stage", "schema", "roles", missing)
	}
	fb := DefaultFallbacks
	if opts.Fallbacks != nil {
		fb = *opts.Fallbacks
	}
	ext := NewExtractor(cols, fb)

	for i, rec := range table[1:] {
		if err := ctx.Err(); err != nil {
			return Aggregates{}, err
		}
		if blank(rec) {
			continue
		}
		if !agg.Ingest(ctx, ext.Extract(rec)) {
			logger.Debug("podscribe: row skipped", "stage", "aggregate", "line", i+2)
		}
	}

	snap := agg.Snapshot()
	logger.Info("podscribe: aggregation complete", "stage", "aggregate",
		"ingested", snap.Ingested, "skipped", snap.Skipped,
		"publishers", len(snap.Publishers), "regions", len(snap.Regions))
	return snap, nil
}

func blank(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// HeaderOf returns the lower-cased first line of a CSV document.
func HeaderOf(content string) string {
	line, _, _ := strings.Cut(strings.TrimPrefix(content, "\ufeff"), "\n")
	return strings.ToLower(strings.TrimRight(line, "\r"))
}
