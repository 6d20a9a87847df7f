package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/ibeckermayer/trendteller/internal/types"
)

// Folder names under the dataset root
const (
	NewsDir     = "news"
	CommentsDir = "comments"
	StockDir    = "stock"
)

// Flat-file headers. Column names are part of the on-disk format.
var (
	NewsHeader     = []string{"News Title", "Date", "Source", "URL", "sentiment", "search_query"}
	CommentsHeader = []string{"Username", "Comment", "date", "sentiment", "Ticker"}
	PriceHeader    = []string{"Date", "Open", "High", "Low", "Close", "Adj Close", "Volume"}

	// UploadRequired are the columns an uploaded comments file must carry
	UploadRequired = []string{"Username", "Comment"}
)

// SchemaError reports a CSV file missing expected columns
type SchemaError struct {
	File    string
	Missing []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s: missing column(s) %s", e.File, strings.Join(e.Missing, ", "))
}

// Layout resolves flat-file paths under one dataset root
type Layout struct {
	Dir string
}

// NewsPath returns dataset/news/<date>_<query>_news_data.csv
func (l Layout) NewsPath(date types.Date, query string) string {
	return filepath.Join(l.Dir, NewsDir, fmt.Sprintf("%s_%s_news_data.csv", date, fileSafe(query)))
}

// CommentsPath returns dataset/comments/<date>_stocktwit_comment_<ticker>.csv
func (l Layout) CommentsPath(date types.Date, ticker string) string {
	return filepath.Join(l.Dir, CommentsDir, fmt.Sprintf("%s_stocktwit_comment_%s.csv", date, fileSafe(ticker)))
}

// StockPath returns dataset/stock/<ticker>_stock_price.csv
func (l Layout) StockPath(ticker string) string {
	return filepath.Join(l.Dir, StockDir, fmt.Sprintf("%s_stock_price.csv", fileSafe(ticker)))
}

// fileSafe keeps a query usable as part of a filename
func fileSafe(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', 0:
			return '_'
		}
		return r
	}, strings.TrimSpace(s))
}

// AppendNews appends rows to path, writing the header only if the file is new
func (l Layout) AppendNews(path string, rows []types.NewsRow) error {
	records := make([][]string, 0, len(rows))
	for _, r := range rows {
		records = append(records, []string{
			r.Title, r.Date.String(), r.Source, r.URL, strconv.Itoa(r.Sentiment), r.SearchQuery,
		})
	}
	return appendCSV(path, NewsHeader, records)
}

// AppendComments appends rows to path, writing the header only if the file is new
func (l Layout) AppendComments(path string, rows []types.CommentRow) error {
	records := make([][]string, 0, len(rows))
	for _, r := range rows {
		records = append(records, []string{
			r.Username, r.Comment, r.Date.String(), strconv.Itoa(r.Sentiment), r.Ticker,
		})
	}
	return appendCSV(path, CommentsHeader, records)
}

func appendCSV(path string, header []string, records [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create dataset dir: %w", err)
	}

	info, statErr := os.Stat(path)
	isNew := errors.Is(statErr, os.ErrNotExist) || (statErr == nil && info.Size() == 0)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if isNew {
		if err := w.Write(header); err != nil {
			return err
		}
	}
	if err := w.WriteAll(records); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

// table is a CSV file with its header indexed by column name
type table struct {
	cols map[string]int
	rows [][]string
}

func readTable(r io.Reader) (*table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	all, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	t := &table{cols: map[string]int{}}
	if len(all) == 0 {
		return t, nil
	}
	for i, name := range all[0] {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		if _, dup := t.cols[name]; !dup {
			t.cols[name] = i
		}
	}
	t.rows = all[1:]
	return t, nil
}

func readTableFile(path string) (*table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	t, err := readTable(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return t, nil
}

func (t *table) require(file string, names ...string) error {
	var missing []string
	for _, n := range names {
		if _, ok := t.cols[n]; !ok {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return &SchemaError{File: file, Missing: missing}
	}
	return nil
}

// get returns a cell or "" when the column or cell is absent
func (t *table) get(row []string, name string) string {
	i, ok := t.cols[name]
	if !ok || i >= len(row) {
		return ""
	}
	return row[i]
}

// ReadNews loads a news flat file. Rows whose sentiment or date cannot be
// parsed are reported through the returned error slice and skipped.
func ReadNews(path string) ([]types.NewsRow, []error, error) {
	t, err := readTableFile(path)
	if err != nil {
		return nil, nil, err
	}
	if err := t.require(filepath.Base(path), NewsHeader...); err != nil {
		return nil, nil, err
	}

	var rows []types.NewsRow
	var rowErrs []error
	for i, rec := range t.rows {
		date, err := types.ParseDate(t.get(rec, "Date"))
		if err != nil {
			rowErrs = append(rowErrs, fmt.Errorf("row %d: %w", i+2, err))
			continue
		}
		sentiment, err := strconv.Atoi(strings.TrimSpace(t.get(rec, "sentiment")))
		if err != nil {
			rowErrs = append(rowErrs, fmt.Errorf("row %d: bad sentiment: %w", i+2, err))
			continue
		}
		rows = append(rows, types.NewsRow{
			Title:       t.get(rec, "News Title"),
			Date:        date,
			Source:      t.get(rec, "Source"),
			URL:         t.get(rec, "URL"),
			Sentiment:   sentiment,
			SearchQuery: t.get(rec, "search_query"),
		})
	}
	return rows, rowErrs, nil
}

// ReadComments loads a scored comments flat file
func ReadComments(path string) ([]types.CommentRow, []error, error) {
	t, err := readTableFile(path)
	if err != nil {
		return nil, nil, err
	}
	if err := t.require(filepath.Base(path), CommentsHeader...); err != nil {
		return nil, nil, err
	}

	var rows []types.CommentRow
	var rowErrs []error
	for i, rec := range t.rows {
		date, err := types.ParseDate(t.get(rec, "date"))
		if err != nil {
			rowErrs = append(rowErrs, fmt.Errorf("row %d: %w", i+2, err))
			continue
		}
		sentiment, err := strconv.Atoi(strings.TrimSpace(t.get(rec, "sentiment")))
		if err != nil {
			rowErrs = append(rowErrs, fmt.Errorf("row %d: bad sentiment: %w", i+2, err))
			continue
		}
		rows = append(rows, types.CommentRow{
			Username:  t.get(rec, "Username"),
			Comment:   t.get(rec, "Comment"),
			Date:      date,
			Sentiment: sentiment,
			Ticker:    t.get(rec, "Ticker"),
		})
	}
	return rows, rowErrs, nil
}

// UploadRow is one line of a user-supplied comments file
type UploadRow struct {
	Username string
	Comment  string
}

// ReadUpload parses an uploaded comments CSV. A file without the Username
// and Comment columns fails with *SchemaError before any row is returned.
func ReadUpload(r io.Reader, name string) ([]UploadRow, error) {
	t, err := readTable(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", name, err)
	}
	if err := t.require(name, UploadRequired...); err != nil {
		return nil, err
	}

	rows := make([]UploadRow, 0, len(t.rows))
	for _, rec := range t.rows {
		rows = append(rows, UploadRow{
			Username: t.get(rec, "Username"),
			Comment:  t.get(rec, "Comment"),
		})
	}
	return rows, nil
}

// ReadPrices loads a stock price file. Only Date, Adj Close and Volume are
// required; other OHLC columns are read when present.
func ReadPrices(path string) ([]types.PriceRecord, error) {
	t, err := readTableFile(path)
	if err != nil {
		return nil, err
	}
	if err := t.require(filepath.Base(path), "Date", "Adj Close", "Volume"); err != nil {
		return nil, err
	}

	num := func(rec []string, col string) float64 {
		v, _ := strconv.ParseFloat(strings.TrimSpace(t.get(rec, col)), 64)
		return v
	}

	out := make([]types.PriceRecord, 0, len(t.rows))
	for i, rec := range t.rows {
		date, err := types.ParseDate(t.get(rec, "Date"))
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", filepath.Base(path), i+2, err)
		}
		out = append(out, types.PriceRecord{
			Date:     date,
			Open:     num(rec, "Open"),
			High:     num(rec, "High"),
			Low:      num(rec, "Low"),
			Close:    num(rec, "Close"),
			AdjClose: num(rec, "Adj Close"),
			Volume:   num(rec, "Volume"),
		})
	}
	return out, nil
}

// WritePrices replaces path with the given rows
func WritePrices(path string, rows []types.PriceRecord) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create dataset dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	ff := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

	w := csv.NewWriter(f)
	if err := w.Write(PriceHeader); err != nil {
		return err
	}
	for _, r := range rows {
		if err := w.Write([]string{
			r.Date.String(), ff(r.Open), ff(r.High), ff(r.Low), ff(r.Close), ff(r.AdjClose), ff(r.Volume),
		}); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}

// ListCSV returns the .csv files directly under dir/sub in name order.
// A missing folder yields no files.
func (l Layout) ListCSV(sub string) ([]string, error) {
	dir := filepath.Join(l.Dir, sub)
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".csv") {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}
