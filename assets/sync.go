// Package assets downloads the images referenced by a record store.
package assets

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/aluiziolira/go-scrape-catalog/config"
	"github.com/aluiziolira/go-scrape-catalog/models"
	"github.com/aluiziolira/go-scrape-catalog/pipeline"
	"github.com/go-resty/resty/v2"
)

const unknownTitle = "Unknown Title"

// Download outcomes reported to the Recorder.
const (
	OutcomeDownloaded = "downloaded"
	OutcomeExists     = "exists"
	OutcomeFailed     = "failed"
	OutcomeRecovered  = "recovered"
)

// Recorder receives one outcome per image. *scraper.Metrics satisfies it.
type Recorder interface {
	IncDownload(outcome string)
}

// Syncer mirrors store images into a local directory.
type Syncer struct {
	client   *resty.Client
	cfg      *config.Config
	recorder Recorder
}

// NewSyncer builds a syncer. recorder may be nil.
func NewSyncer(cfg *config.Config, recorder Recorder) *Syncer {
	client := resty.New()
	client.SetHeader("User-Agent", cfg.UserAgent)

	return &Syncer{
		client:   client,
		cfg:      cfg,
		recorder: recorder,
	}
}

// Client returns the underlying HTTP client.
func (s *Syncer) Client() *resty.Client {
	return s.client
}

// SyncImages downloads every eligible image of the store at storePath into
// imageDir. Files already on disk are never fetched again. URLs failing the
// first pass are retried once after RetryDelay, each bounded by RetryTimeout.
func (s *Syncer) SyncImages(ctx context.Context, storePath, imageDir string) (*models.ImageReport, error) {
	if err := os.MkdirAll(imageDir, 0o755); err != nil {
		return nil, fmt.Errorf("create image directory: %w", err)
	}

	records, err := pipeline.NewCSVStore(storePath).Records()
	if err != nil {
		return nil, fmt.Errorf("read store %s: %w", storePath, err)
	}

	report := &models.ImageReport{TotalRows: len(records)}
	var eligible []string
	for _, r := range records {
		if reason := s.ineligibility(r.ImageURL); reason != "" {
			title := models.Value(r.Title)
			if title == "" {
				title = unknownTitle
			}
			report.Ineligible = append(report.Ineligible, models.MissingImage{
				Title:  title,
				URL:    models.Value(r.ImageURL),
				Reason: reason,
			})
			slog.Warn("image not eligible", slog.String("title", title), slog.String("reason", reason))
			continue
		}
		eligible = append(eligible, *r.ImageURL)
	}
	report.Eligible = len(eligible)
	slog.Info("syncing images",
		slog.Int("rows", report.TotalRows),
		slog.Int("eligible", report.Eligible),
		slog.String("dir", imageDir),
	)

	var failed []string
	for i, imageURL := range eligible {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		progress := fmt.Sprintf("(%d/%d)", i+1, len(eligible))
		outcome, err := s.download(ctx, imageURL, imageDir, s.cfg.Timeout)
		if err != nil {
			failed = append(failed, imageURL)
			s.record(OutcomeFailed)
			slog.Warn("image download failed", slog.String("progress", progress), slog.String("url", imageURL), slog.Any("error", err))
			continue
		}
		s.record(outcome)
		if outcome == OutcomeExists {
			report.AlreadyPresent++
			slog.Debug("image already present", slog.String("progress", progress), slog.String("url", imageURL))
			continue
		}
		report.Downloaded++
		slog.Info("image downloaded", slog.String("progress", progress), slog.String("url", imageURL))
	}

	if len(failed) == 0 {
		return report, nil
	}

	slog.Info("retrying failed downloads",
		slog.Int("count", len(failed)),
		slog.Duration("delay", s.cfg.RetryDelay),
	)
	select {
	case <-ctx.Done():
		report.Failed = failed
		return report, ctx.Err()
	case <-time.After(s.cfg.RetryDelay):
	}

	for i, imageURL := range failed {
		progress := fmt.Sprintf("(%d/%d)", i+1, len(failed))
		outcome, err := s.download(ctx, imageURL, imageDir, s.cfg.RetryTimeout)
		if err != nil {
			report.Failed = append(report.Failed, imageURL)
			s.record(OutcomeFailed)
			slog.Error("image retry failed", slog.String("progress", progress), slog.String("url", imageURL), slog.Any("error", err))
			continue
		}
		if outcome == OutcomeExists {
			report.AlreadyPresent++
			s.record(OutcomeExists)
			continue
		}
		report.Recovered++
		s.record(OutcomeRecovered)
		slog.Info("image recovered", slog.String("progress", progress), slog.String("url", imageURL))
	}
	return report, nil
}

// ineligibility returns "missing", "unsupported" or "" for a usable URL.
func (s *Syncer) ineligibility(imageURL *string) string {
	raw := strings.TrimSpace(models.Value(imageURL))
	if raw == "" {
		return "missing"
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "unsupported"
	}
	ext := strings.ToLower(path.Ext(u.Path))
	if !slices.ContainsFunc(s.cfg.ImageExtensions, func(allowed string) bool {
		return strings.EqualFold(allowed, ext)
	}) {
		return "unsupported"
	}
	return ""
}

// download stores imageURL under imageDir, named after the URL path's last
// segment. The body goes to a temp file first so a partial transfer never
// shows up as an existing image.
func (s *Syncer) download(ctx context.Context, imageURL, imageDir string, timeout time.Duration) (string, error) {
	u, err := url.Parse(imageURL)
	if err != nil {
		return "", fmt.Errorf("parse image url: %w", err)
	}
	target := filepath.Join(imageDir, path.Base(u.Path))
	if _, err := os.Stat(target); err == nil {
		return OutcomeExists, nil
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := s.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(imageURL)
	if err != nil {
		return "", fmt.Errorf("get image: %w", err)
	}
	body := resp.RawBody()
	defer body.Close()

	if !resp.IsSuccess() {
		return "", fmt.Errorf("get image: unexpected status %d", resp.StatusCode())
	}

	tmp, err := os.CreateTemp(imageDir, ".download-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write image: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("rename image: %w", err)
	}
	return OutcomeDownloaded, nil
}

func (s *Syncer) record(outcome string) {
	if s.recorder != nil {
		s.recorder.IncDownload(outcome)
	}
}
