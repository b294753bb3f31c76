package ingestion

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"TickBook/internal/observability"
	"TickBook/internal/tick"
)

// LoadStats summarizes one archive load for the run report.
type LoadStats struct {
	Files        int
	FilesSkipped int
	Rows         int
	RowsRejected int
}

// LoadArchive walks dir recursively and parses every *.csv file into
// events, in lexical path order. A missing directory or a tree without a
// single CSV file is fatal. Unreadable and empty files are skipped with
// a warning; schema violations (missing columns, invalid enum values)
// abort the load; any other bad row is counted and skipped.
func LoadArchive(ctx context.Context, dir string, logger zerolog.Logger, metrics *observability.Metrics) ([]tick.Event, LoadStats, error) {
	var stats LoadStats
	var events []tick.Event

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".csv") {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		fileEvents, ferr := loadFile(path, &stats, logger, metrics)
		if ferr != nil {
			return ferr
		}
		events = append(events, fileEvents...)
		return nil
	})
	if err != nil {
		return nil, stats, fmt.Errorf("walk archive %s: %w", dir, err)
	}
	if stats.Files+stats.FilesSkipped == 0 {
		return nil, stats, fmt.Errorf("no csv files under %s", dir)
	}

	logger.Info().
		Int("files", stats.Files).
		Int("files_skipped", stats.FilesSkipped).
		Int("rows", stats.Rows).
		Int("rows_rejected", stats.RowsRejected).
		Msg("archive loaded")
	return events, stats, nil
}

func loadFile(path string, stats *LoadStats, logger zerolog.Logger, metrics *observability.Metrics) ([]tick.Event, error) {
	f, err := os.Open(path)
	if err != nil {
		logger.Warn().Err(err).Str("file", path).Msg("skipping unreadable file")
		stats.FilesSkipped++
		if metrics != nil {
			metrics.FilesSkipped.WithLabelValues("unreadable").Inc()
		}
		return nil, nil
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1

	headerRec, err := cr.Read()
	if err != nil {
		// io.EOF here means the file has no rows at all.
		if errors.Is(err, io.EOF) {
			logger.Warn().Str("file", path).Msg("skipping empty file")
			stats.FilesSkipped++
			if metrics != nil {
				metrics.FilesSkipped.WithLabelValues("empty").Inc()
			}
			return nil, nil
		}
		return nil, fmt.Errorf("read header of %s: %w", path, err)
	}
	header, err := ParseHeader(headerRec)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	var events []tick.Event
	row := 0
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		row++
		stats.Rows++
		if metrics != nil {
			metrics.RowsParsed.Inc()
		}

		evt, err := ParseRow(header, record)
		if err != nil {
			var schemaErr *tick.SchemaError
			if errors.As(err, &schemaErr) {
				return nil, fmt.Errorf("%s row %d: %w", path, row, err)
			}
			stats.RowsRejected++
			if metrics != nil {
				metrics.RowsRejected.WithLabelValues(rejectReason(err)).Inc()
			}
			logger.Warn().Err(err).Str("file", path).Msg("rejecting row")
			continue
		}
		events = append(events, evt)
	}

	stats.Files++
	if metrics != nil {
		metrics.FilesLoaded.Inc()
	}
	return events, nil
}

// rejectReason folds a row error into a low-cardinality metric label.
func rejectReason(err error) string {
	msg := err.Error()
	for _, col := range requiredColumns {
		if strings.HasPrefix(msg, col) {
			return col
		}
	}
	return "malformed"
}
