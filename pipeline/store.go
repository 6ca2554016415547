package pipeline

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/aluiziolira/go-scrape-catalog/models"
	"github.com/aluiziolira/go-scrape-catalog/parser"
)

const codeColumn = "universal_product_code"

// UpsertOutcome tells what UpsertOne did with a record.
type UpsertOutcome int

const (
	// Skipped means the record could not be merged (nil or missing code).
	Skipped UpsertOutcome = iota
	Inserted
	Updated
	Unchanged
)

func (o UpsertOutcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case Updated:
		return "updated"
	case Unchanged:
		return "unchanged"
	default:
		return "skipped"
	}
}

// CSVStore is a CSV file of records keyed by unique code.
type CSVStore struct {
	path string
}

// NewCSVStore returns a store backed by path. The file is created lazily.
func NewCSVStore(path string) *CSVStore {
	return &CSVStore{path: path}
}

// Path returns the backing file.
func (s *CSVStore) Path() string {
	return s.path
}

// UpsertBatch repairs the store, then appends the records whose code is not
// already stored. Existing rows win over incoming ones; among incoming
// duplicates the last one wins. It returns the number of rows appended.
func (s *CSVStore) UpsertBatch(records []*models.Record) (int, error) {
	if err := s.Repair(); err != nil {
		return 0, err
	}

	existing, err := s.codes()
	if err != nil {
		return 0, err
	}

	fresh := filterNew(records, existing)
	if len(fresh) == 0 {
		slog.Info("no new records to write", slog.String("path", s.path))
		return 0, nil
	}

	if err := appendRecords(s.path, fresh); err != nil {
		return 0, err
	}
	slog.Info("records appended", slog.String("path", s.path), slog.Int("count", len(fresh)))
	return len(fresh), nil
}

// UpsertOne merges a single record. A stored record with the same code is
// replaced when any field differs, and the whole file is rewritten
// atomically; an identical one is left alone; otherwise the record is
// appended.
func (s *CSVStore) UpsertOne(record *models.Record) (UpsertOutcome, error) {
	if record == nil || record.Code() == "" {
		return Skipped, nil
	}
	if parser.IsHeaderRow(record.Row()) {
		return Skipped, nil
	}

	stored, err := s.Records()
	if err != nil {
		return Skipped, err
	}

	for i, existing := range stored {
		if existing.Code() != record.Code() {
			continue
		}
		if existing.Equal(record) {
			return Unchanged, nil
		}
		stored[i] = record
		if err := writeRecords(s.path, stored); err != nil {
			return Skipped, err
		}
		return Updated, nil
	}

	if err := appendRecords(s.path, []*models.Record{record}); err != nil {
		return Skipped, err
	}
	return Inserted, nil
}

// Records reads the store back in row order, skipping header-like rows.
// A missing file yields no records.
func (s *CSVStore) Records() ([]*models.Record, error) {
	t, err := readTable(s.path)
	if err != nil {
		return nil, err
	}
	out := make([]*models.Record, 0, len(t.rows))
	for _, row := range t.rows {
		if parser.IsHeaderLike(row, t.header) {
			continue
		}
		out = append(out, models.RecordFromFields(t.fields(row)))
	}
	return out, nil
}

// Repair drops header-like rows, rows without a code, and duplicate codes
// (first occurrence kept). The file is only rewritten when something was
// removed.
func (s *CSVStore) Repair() error {
	t, err := readTable(s.path)
	if err != nil {
		return err
	}
	if len(t.header) == 0 {
		return nil
	}

	kept, removed := t.dedupe()
	if removed == 0 {
		return nil
	}
	t.rows = kept
	if err := t.write(s.path); err != nil {
		return err
	}
	slog.Info("store repaired", slog.String("path", s.path), slog.Int("removed", removed))
	return nil
}

// Validate reports an error when the store is missing or has no data rows.
func (s *CSVStore) Validate() error {
	info, err := os.Stat(s.path)
	if err != nil {
		return fmt.Errorf("stat store: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("store %s is empty", s.path)
	}
	records, err := s.Records()
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return fmt.Errorf("store %s has no data rows", s.path)
	}
	return nil
}

func (s *CSVStore) codes() (map[string]struct{}, error) {
	t, err := readTable(s.path)
	if err != nil {
		return nil, err
	}
	return t.codes(), nil
}

// WriteCategoryStore appends the records of category to its own store under
// baseDir/categories and returns how many were new.
func WriteCategoryStore(category string, records []*models.Record, baseDir string) (int, error) {
	var inCategory []*models.Record
	for _, r := range records {
		if r != nil && models.Value(r.Category) == category {
			inCategory = append(inCategory, r)
		}
	}
	if len(inCategory) == 0 {
		slog.Debug("no records for category", slog.String("category", category))
		return 0, nil
	}

	dir := filepath.Join(baseDir, "categories")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create categories directory: %w", err)
	}
	path := filepath.Join(dir, parser.CategoryFileName(category))

	existing, err := NewCSVStore(path).codes()
	if err != nil {
		return 0, err
	}
	fresh := filterNew(inCategory, existing)
	if len(fresh) == 0 {
		slog.Debug("category store up to date", slog.String("category", category), slog.String("path", path))
		return 0, nil
	}
	if err := appendRecords(path, fresh); err != nil {
		return 0, err
	}
	slog.Info("category store updated",
		slog.String("category", category),
		slog.String("path", path),
		slog.Int("count", len(fresh)),
	)
	return len(fresh), nil
}

// RebuildMasterFromCategories overwrites masterPath with the rows of every
// category store in categoriesDir. The header comes from the first file that
// has one; other files are remapped onto it by column name.
func RebuildMasterFromCategories(masterPath, categoriesDir string) (int, error) {
	files, err := filepath.Glob(filepath.Join(categoriesDir, "*.csv"))
	if err != nil {
		return 0, fmt.Errorf("list category stores: %w", err)
	}
	if len(files) == 0 {
		return 0, fmt.Errorf("no category stores found in %s", categoriesDir)
	}
	sort.Strings(files)

	merged := &table{}
	for _, file := range files {
		t, err := readTable(file)
		if err != nil {
			return 0, err
		}
		if len(t.header) == 0 {
			continue
		}
		if merged.header == nil {
			merged.header = t.header
			merged.index = t.index
		}
		for _, row := range t.rows {
			if parser.IsHeaderLike(row, t.header) {
				continue
			}
			merged.rows = append(merged.rows, merged.remap(t.fields(row)))
		}
	}
	if len(merged.header) == 0 {
		return 0, fmt.Errorf("could not determine header from %d category stores", len(files))
	}

	merged.rows, _ = merged.dedupe()
	if err := ensureDir(masterPath); err != nil {
		return 0, err
	}
	if err := merged.write(masterPath); err != nil {
		return 0, err
	}
	slog.Info("master store rebuilt from categories",
		slog.String("path", masterPath),
		slog.Int("files", len(files)),
		slog.Int("rows", len(merged.rows)),
	)
	return len(merged.rows), nil
}

// filterNew keeps mergeable records whose code is not in existing. Later
// duplicates inside records replace earlier ones in place.
func filterNew(records []*models.Record, existing map[string]struct{}) []*models.Record {
	out := make([]*models.Record, 0, len(records))
	position := make(map[string]int, len(records))
	for _, r := range records {
		if r == nil {
			continue
		}
		if parser.IsHeaderRow(r.Row()) {
			slog.Warn("dropping header row from batch")
			continue
		}
		code := r.Code()
		if code == "" {
			slog.Warn("dropping record without unique code", slog.String("url", r.DetailURL))
			continue
		}
		if _, ok := existing[code]; ok {
			continue
		}
		if i, ok := position[code]; ok {
			out[i] = r
			continue
		}
		position[code] = len(out)
		out = append(out, r)
	}
	return out
}

type table struct {
	header []string
	index  map[string]int
	rows   [][]string
}

func readTable(path string) (*table, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &table{}, nil
		}
		return nil, fmt.Errorf("open store: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return &table{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read store header %s: %w", path, err)
	}

	t := &table{header: header, index: make(map[string]int, len(header))}
	for i, col := range header {
		t.index[col] = i
	}
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read store %s: %w", path, err)
		}
		t.rows = append(t.rows, row)
	}
	return t, nil
}

func readHeader(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read store header %s: %w", path, err)
	}
	return header, nil
}

func (t *table) fields(row []string) map[string]string {
	out := make(map[string]string, len(t.header))
	for col, i := range t.index {
		if i < len(row) {
			out[col] = row[i]
		}
	}
	return out
}

func (t *table) remap(fields map[string]string) []string {
	row := make([]string, len(t.header))
	for i, col := range t.header {
		row[i] = fields[col]
	}
	return row
}

func (t *table) code(row []string) string {
	i, ok := t.index[codeColumn]
	if !ok || i >= len(row) {
		return ""
	}
	return row[i]
}

func (t *table) codes() map[string]struct{} {
	out := make(map[string]struct{}, len(t.rows))
	for _, row := range t.rows {
		if code := t.code(row); code != "" {
			out[code] = struct{}{}
		}
	}
	return out
}

func (t *table) dedupe() ([][]string, int) {
	seen := make(map[string]struct{}, len(t.rows))
	kept := make([][]string, 0, len(t.rows))
	for _, row := range t.rows {
		if parser.IsHeaderLike(row, t.header) {
			continue
		}
		code := t.code(row)
		if code == "" {
			continue
		}
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		kept = append(kept, row)
	}
	return kept, len(t.rows) - len(kept)
}

func (t *table) write(path string) error {
	return replaceFile(path, func(w *csv.Writer) error {
		if err := w.Write(t.header); err != nil {
			return err
		}
		return w.WriteAll(t.rows)
	})
}

func writeRecords(path string, records []*models.Record) error {
	return replaceFile(path, func(w *csv.Writer) error {
		if err := w.Write(models.Columns); err != nil {
			return err
		}
		for _, r := range records {
			if err := w.Write(r.Row()); err != nil {
				return err
			}
		}
		return nil
	})
}

// replaceFile writes to a temp file next to path and renames it into place
// so a crash never leaves a truncated store.
func replaceFile(path string, fill func(*csv.Writer) error) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp store: %w", err)
	}
	defer os.Remove(tmp.Name())

	writer := csv.NewWriter(tmp)
	if err := fill(writer); err != nil {
		tmp.Close()
		return fmt.Errorf("write store: %w", err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("flush store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp store: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace store: %w", err)
	}
	return nil
}

func appendRecords(path string, records []*models.Record) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open store for append: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat store: %w", err)
	}

	// Rows follow whatever column order the store already has.
	var existing *table
	if info.Size() > 0 {
		header, err := readHeader(path)
		if err != nil {
			return err
		}
		existing = &table{header: header}
	}

	writer := csv.NewWriter(f)
	if existing == nil {
		if err := writer.Write(models.Columns); err != nil {
			return fmt.Errorf("write csv header: %w", err)
		}
	}
	for _, r := range records {
		row := r.Row()
		if existing != nil {
			row = existing.remap(r.Fields())
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush csv records: %w", err)
	}
	return f.Close()
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
