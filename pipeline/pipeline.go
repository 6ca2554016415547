// Package pipeline validates, de-duplicates and persists crawled records.
package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aluiziolira/go-scrape-catalog/config"
	"github.com/aluiziolira/go-scrape-catalog/models"
	"github.com/aluiziolira/go-scrape-catalog/parser"
)

var (
	// ErrPipelineClosed is returned when Process is called after shutdown.
	ErrPipelineClosed = errors.New("pipeline: closed")
)

// OutputWriter defines the interface for record output.
type OutputWriter interface {
	Write(records []*models.Record) error
	Close() error
	Validate() error
}

// Pipeline coordinates validation, de-duplication, batching and output.
// Records are written on the caller's goroutine; in incremental mode every
// record reaches the writer before Process returns.
type Pipeline struct {
	writer    OutputWriter
	batchSize int

	batch []*models.Record
	seen  map[string]struct{}

	metrics metrics

	mu     sync.Mutex // guards batch, seen, closed, err
	closed bool
	err    error

	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// NewPipeline builds a pipeline writing to writer.
func NewPipeline(writer OutputWriter, cfg *config.Config) *Pipeline {
	batchSize := cfg.BatchSize
	if batchSize <= 0 || cfg.WriteMode == config.WriteModeIncremental {
		batchSize = 1
	}
	return &Pipeline{
		writer:    writer,
		batchSize: batchSize,
		batch:     make([]*models.Record, 0, batchSize),
		seen:      make(map[string]struct{}),
		metrics:   newMetrics(),
		shutdown:  make(chan struct{}),
	}
}

// Process validates records and flushes full batches to the writer.
func (p *Pipeline) Process(records ...*models.Record) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.err != nil {
		return p.err
	}
	if p.closed {
		return ErrPipelineClosed
	}

	for _, r := range records {
		if r == nil {
			continue
		}
		prepared := p.prepare(r)
		if prepared == nil {
			continue
		}
		p.batch = append(p.batch, prepared)
		if len(p.batch) >= p.batchSize {
			if err := p.flushLocked(); err != nil {
				return err
			}
		}
	}
	return nil
}

// Flush writes any buffered records without waiting for a full batch.
func (p *Pipeline) Flush() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	return p.flushLocked()
}

// Close flushes pending records, closes the writer and prevents more
// submissions.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	if p.closed {
		err := p.err
		p.mu.Unlock()
		return err
	}
	p.closed = true
	var flushErr error
	if p.err == nil {
		flushErr = p.flushLocked()
	}
	p.mu.Unlock()

	p.shutdownOnce.Do(func() {
		close(p.shutdown)
	})

	closeErr := p.writer.Close()
	if closeErr != nil {
		closeErr = fmt.Errorf("close writer: %w", closeErr)
	}
	return errors.Join(flushErr, closeErr)
}

// Err returns the first error encountered during processing.
func (p *Pipeline) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// GetMetrics returns a snapshot of the internal counters.
func (p *Pipeline) GetMetrics() map[string]interface{} {
	return p.metrics.snapshot()
}

// StartMetricsReporting emits periodic progress logs until Close.
func (p *Pipeline) StartMetricsReporting(interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				metrics := p.GetMetrics()
				slog.Info("pipeline progress",
					slog.Int64("processed", metrics["processed_records"].(int64)),
					slog.Int64("written", metrics["written_records"].(int64)),
					slog.Any("validation_errors", metrics["validation_errors"]),
				)
			case <-p.shutdown:
				return
			}
		}
	}()
}

func (p *Pipeline) flushLocked() error {
	if len(p.batch) == 0 {
		return nil
	}
	if err := p.writer.Write(p.batch); err != nil {
		p.err = fmt.Errorf("write batch: %w", err)
		p.closed = true
		return p.err
	}
	p.metrics.addWritten(len(p.batch))
	p.batch = p.batch[:0]
	return nil
}

func (p *Pipeline) prepare(r *models.Record) *models.Record {
	if err := parser.ValidateRecord(r); err != nil {
		slog.Warn("record rejected", slog.String("url", r.DetailURL), slog.Any("error", err))
		p.metrics.addValidation("invalid_record")
		return nil
	}

	code := r.Code()
	if _, ok := p.seen[code]; ok {
		slog.Debug("duplicate unique code in run", slog.String("code", code), slog.String("url", r.DetailURL))
		p.metrics.addValidation("duplicate_unique_code")
		return nil
	}
	p.seen[code] = struct{}{}

	p.metrics.incrementProcessed()
	return r
}

type metrics struct {
	mu         sync.Mutex
	processed  int64
	written    int64
	validation map[string]int
}

func newMetrics() metrics {
	return metrics{
		validation: make(map[string]int),
	}
}

func (m *metrics) incrementProcessed() {
	m.mu.Lock()
	m.processed++
	m.mu.Unlock()
}

func (m *metrics) addWritten(n int) {
	m.mu.Lock()
	m.written += int64(n)
	m.mu.Unlock()
}

func (m *metrics) addValidation(kind string) {
	m.mu.Lock()
	m.validation[kind]++
	m.mu.Unlock()
}

func (m *metrics) snapshot() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	copyValidation := make(map[string]int, len(m.validation))
	for k, v := range m.validation {
		copyValidation[k] = v
	}

	return map[string]interface{}{
		"processed_records": m.processed,
		"written_records":   m.written,
		"validation_errors": copyValidation,
	}
}
