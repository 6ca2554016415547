package pipeline

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/aluiziolira/go-scrape-catalog/config"
	"github.com/aluiziolira/go-scrape-catalog/models"
)

// MasterWriter merges records into the master store, either batch-wise or
// one record at a time. Store errors are logged and counted rather than
// returned: the category stores keep the data and the master can be rebuilt
// from them.
type MasterWriter struct {
	store       *CSVStore
	incremental bool

	mu       sync.Mutex
	outcomes map[string]int
	failures int
}

// NewMasterWriter builds a writer for path using the given write mode.
func NewMasterWriter(path, mode string) *MasterWriter {
	return &MasterWriter{
		store:       NewCSVStore(path),
		incremental: mode == config.WriteModeIncremental,
		outcomes:    make(map[string]int),
	}
}

// Store exposes the backing store.
func (mw *MasterWriter) Store() *CSVStore {
	return mw.store
}

// Write merges records into the master store.
func (mw *MasterWriter) Write(records []*models.Record) error {
	mw.mu.Lock()
	defer mw.mu.Unlock()

	if !mw.incremental {
		n, err := mw.store.UpsertBatch(records)
		if err != nil {
			mw.failures++
			slog.Error("master store batch failed", slog.String("path", mw.store.Path()), slog.Any("error", err))
			return nil
		}
		mw.outcomes[Inserted.String()] += n
		return nil
	}

	for _, r := range records {
		outcome, err := mw.store.UpsertOne(r)
		if err != nil {
			mw.failures++
			slog.Error("master store upsert failed",
				slog.String("path", mw.store.Path()),
				slog.String("code", r.Code()),
				slog.Any("error", err),
			)
			continue
		}
		mw.outcomes[outcome.String()]++
	}
	return nil
}

// Failures returns how many store operations failed.
func (mw *MasterWriter) Failures() int {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	return mw.failures
}

// Outcomes returns how many records were inserted, updated, left unchanged.
func (mw *MasterWriter) Outcomes() map[string]int {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	out := make(map[string]int, len(mw.outcomes))
	for k, v := range mw.outcomes {
		out[k] = v
	}
	return out
}

// Close is a no-op; every Write leaves the file complete.
func (mw *MasterWriter) Close() error {
	return nil
}

// Validate ensures the master store holds data.
func (mw *MasterWriter) Validate() error {
	return mw.store.Validate()
}

// CategoryWriter keeps one store per category under baseDir/categories.
// A failing category is logged and does not stop the others.
type CategoryWriter struct {
	baseDir string

	mu       sync.Mutex
	written  map[string]int
	failures int
}

// NewCategoryWriter builds a writer rooted at baseDir.
func NewCategoryWriter(baseDir string) *CategoryWriter {
	return &CategoryWriter{baseDir: baseDir, written: make(map[string]int)}
}

// Write routes records to their category stores. Records without a category
// are logged and left out.
func (cw *CategoryWriter) Write(records []*models.Record) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	var order []string
	seen := make(map[string]struct{})
	for _, r := range records {
		if r == nil {
			continue
		}
		if r.Category == nil {
			slog.Warn("record has no category", slog.String("url", r.DetailURL))
			continue
		}
		if _, ok := seen[*r.Category]; !ok {
			seen[*r.Category] = struct{}{}
			order = append(order, *r.Category)
		}
	}

	for _, category := range order {
		n, err := WriteCategoryStore(category, records, cw.baseDir)
		if err != nil {
			cw.failures++
			slog.Error("category store failed", slog.String("category", category), slog.Any("error", err))
			continue
		}
		cw.written[category] += n
	}
	return nil
}

// Failures returns how many category writes failed.
func (cw *CategoryWriter) Failures() int {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	return cw.failures
}

// Written returns the number of new rows written per category.
func (cw *CategoryWriter) Written() map[string]int {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	out := make(map[string]int, len(cw.written))
	for k, v := range cw.written {
		out[k] = v
	}
	return out
}

// Close is a no-op.
func (cw *CategoryWriter) Close() error {
	return nil
}

// Validate ensures at least one category store exists.
func (cw *CategoryWriter) Validate() error {
	files, err := filepath.Glob(filepath.Join(cw.baseDir, "categories", "*.csv"))
	if err != nil {
		return fmt.Errorf("list category stores: %w", err)
	}
	if len(files) == 0 {
		return fmt.Errorf("no category stores in %s", cw.baseDir)
	}
	return nil
}

// ExportWriter mirrors one run as newline-delimited JSON, one line per
// record with missing fields as null. Unlike the CSV stores it is truncated
// on open and keeps no history.
type ExportWriter struct {
	path    string
	file    *os.File
	writer  *bufio.Writer
	encoder *json.Encoder

	mu       sync.Mutex
	exported map[string]int
}

// NewExportWriter truncates filename and prepares it for writing.
func NewExportWriter(filename string) (*ExportWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create export: %w", err)
	}

	buffer := bufio.NewWriter(f)
	return &ExportWriter{
		path:     filename,
		file:     f,
		writer:   buffer,
		encoder:  json.NewEncoder(buffer),
		exported: make(map[string]int),
	}, nil
}

// Path returns the export file path.
func (ew *ExportWriter) Path() string {
	return ew.path
}

// Write appends one line per record and flushes, so a batch is on disk
// once Write returns.
func (ew *ExportWriter) Write(records []*models.Record) error {
	ew.mu.Lock()
	defer ew.mu.Unlock()

	for _, r := range records {
		if r == nil {
			continue
		}
		if err := ew.encoder.Encode(r); err != nil {
			return fmt.Errorf("encode %s: %w", r.Code(), err)
		}
		ew.exported[models.Value(r.Category)]++
	}

	if err := ew.writer.Flush(); err != nil {
		return fmt.Errorf("flush export: %w", err)
	}
	return nil
}

// Exported returns how many records were exported per category. Records
// without a category count under "".
func (ew *ExportWriter) Exported() map[string]int {
	ew.mu.Lock()
	defer ew.mu.Unlock()
	out := make(map[string]int, len(ew.exported))
	for k, v := range ew.exported {
		out[k] = v
	}
	return out
}

// Total returns the number of exported records.
func (ew *ExportWriter) Total() int {
	ew.mu.Lock()
	defer ew.mu.Unlock()
	total := 0
	for _, n := range ew.exported {
		total += n
	}
	return total
}

// Close flushes buffers and closes the file.
func (ew *ExportWriter) Close() error {
	ew.mu.Lock()
	defer ew.mu.Unlock()

	if err := ew.writer.Flush(); err != nil {
		return fmt.Errorf("flush export: %w", err)
	}
	return ew.file.Close()
}

// Validate fails when the run exported nothing.
func (ew *ExportWriter) Validate() error {
	if ew.Total() == 0 {
		return fmt.Errorf("no records exported to %s", ew.path)
	}
	return nil
}
