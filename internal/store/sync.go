package store

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/ibeckermayer/trendteller/internal/dataset"
)

// FileResult is the outcome of syncing one flat file
type FileResult struct {
	File    string   `json:"file"`
	Table   string   `json:"table"`
	Written int      `json:"written"`
	Errors  []string `json:"errors,omitempty"`
}

// SyncReport summarizes one synchronization pass
type SyncReport struct {
	RunID      string       `json:"run_id"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Files      []FileResult `json:"files"`
	Written    int          `json:"written"`
	Failed     int          `json:"failed"`
}

// Empty reports whether the pass found no flat files
func (r *SyncReport) Empty() bool {
	return len(r.Files) == 0
}

// Sync upserts every comments file and then every news file under layout.
// Files go in name order and rows in file order, so the latest row for a key
// wins. A bad file or row is recorded in the report and the pass continues.
func Sync(ctx context.Context, st *Store, layout dataset.Layout) (*SyncReport, error) {
	report := &SyncReport{RunID: uuid.NewString(), StartedAt: time.Now()}
	log := slog.With("run", report.RunID)
	log.Info("Starting database sync", "dataset", layout.Dir)

	passes := []struct {
		dir   string
		table string
		load  func(path string) (int, []error, error)
	}{
		{dataset.CommentsDir, TableComments, func(path string) (int, []error, error) {
			rows, rowErrs, err := dataset.ReadComments(path)
			if err != nil {
				return 0, nil, err
			}
			n, errs := st.UpsertComments(ctx, rows)
			return n, append(rowErrs, errs...), nil
		}},
		{dataset.NewsDir, TableNews, func(path string) (int, []error, error) {
			rows, rowErrs, err := dataset.ReadNews(path)
			if err != nil {
				return 0, nil, err
			}
			n, errs := st.UpsertNews(ctx, rows)
			return n, append(rowErrs, errs...), nil
		}},
	}

	for _, p := range passes {
		files, err := layout.ListCSV(p.dir)
		if err != nil {
			return report, err
		}

		for _, path := range files {
			if err := ctx.Err(); err != nil {
				return report, err
			}

			fr := FileResult{File: filepath.Base(path), Table: p.table}
			written, rowErrs, err := p.load(path)
			if err != nil {
				rowErrs = append(rowErrs, err)
			}
			fr.Written = written
			for _, e := range rowErrs {
				fr.Errors = append(fr.Errors, e.Error())
			}

			report.Files = append(report.Files, fr)
			report.Written += written
			report.Failed += len(rowErrs)

			if len(rowErrs) > 0 {
				log.Warn("File synced with errors", "file", fr.File, "table", p.table, "written", written, "errors", len(rowErrs))
			} else {
				log.Info("File synced", "file", fr.File, "table", p.table, "written", written)
			}
		}
	}

	report.FinishedAt = time.Now()
	if report.Empty() {
		log.Warn("No dataset files found to sync")
	}
	log.Info("Database sync finished", "files", len(report.Files), "written", report.Written, "failed", report.Failed)
	return report, nil
}
