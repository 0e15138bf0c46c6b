// Package uploader ingests rewritten runs into LangSmith. Runs are handed
// over one at a time, batched into zstd multipart bodies, and posted to the
// bulk ingestion endpoint.
package uploader

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/langchain-ai/langsmith-trace-tools/internal/model"
	"github.com/langchain-ai/langsmith-trace-tools/internal/serializer"
)

type Batch struct {
	Data     []byte
	Boundary string
}

type Config struct {
	BaseURL        string
	APIKey         string
	BatchSize      int
	MaxBufferBytes int
	MaxAttempts    int
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	InFlight       int
}

// Uploader accepts runs via Add in caller order, flushing a compressed batch
// whenever the run count or uncompressed size threshold is hit. Batches are
// sent concurrently up to InFlight; retryable errors back off exponentially
// with jitter up to MaxAttempts.
//
// Add and Flush must be called from one goroutine; the sends themselves are
// gated by the semaphore.
type Uploader struct {
	cfg    Config
	enc    *serializer.Encoder
	sem    *semaphore.Weighted
	client *http.Client
	failed atomic.Int64
	sent   atomic.Int64
}

func New(cfg Config) *Uploader {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.MaxBufferBytes <= 0 {
		cfg.MaxBufferBytes = 10 * 1024 * 1024
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BackoffInitial <= 0 {
		cfg.BackoffInitial = 100 * time.Millisecond
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = 30 * time.Second
	}
	if cfg.InFlight <= 0 {
		cfg.InFlight = 4
	}
	return &Uploader{
		cfg: cfg,
		enc: serializer.NewEncoder(),
		sem: semaphore.NewWeighted(int64(cfg.InFlight)),
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Add queues one run for upload.
func (u *Uploader) Add(ctx context.Context, r *model.Run) error {
	if r == nil || r.ID == nil {
		return errors.New("run without an id")
	}
	if err := u.enc.AddRun(r); err != nil {
		return fmt.Errorf("encode run %s: %w", *r.ID, err)
	}
	if u.enc.RunCount() >= u.cfg.BatchSize || u.enc.Uncompressed() >= u.cfg.MaxBufferBytes {
		return u.dispatch(ctx)
	}
	return nil
}

// Flush sends any buffered runs and waits until every in-flight batch has
// finished. It returns an error if any batch was ultimately dropped.
func (u *Uploader) Flush(ctx context.Context) error {
	if err := u.dispatch(ctx); err != nil {
		return err
	}
	n := int64(u.cfg.InFlight)
	if err := u.sem.Acquire(ctx, n); err != nil {
		return err
	}
	u.sem.Release(n)
	if dropped := u.failed.Load(); dropped > 0 {
		return fmt.Errorf("%d batch(es) failed to upload", dropped)
	}
	return nil
}

// BatchesSent reports how many batches have completed successfully.
func (u *Uploader) BatchesSent() int64 { return u.sent.Load() }

func (u *Uploader) dispatch(ctx context.Context) error {
	if u.enc.RunCount() == 0 {
		return nil
	}
	data, boundary, _, err := u.enc.Close()
	if err != nil {
		return fmt.Errorf("close batch: %w", err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := u.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	go func() {
		defer u.sem.Release(1)
		u.send(ctx, Batch{Data: data, Boundary: boundary})
	}()
	return nil
}

func (u *Uploader) send(ctx context.Context, b Batch) {
	url := u.cfg.BaseURL + "/runs/multipart"
	var attempt int
	for {
		req, _ := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b.Data))
		req.Header.Set("Content-Type", "multipart/form-data; boundary="+b.Boundary)
		req.Header.Set("Content-Encoding", "zstd")
		req.Header.Set("X-API-Key", u.cfg.APIKey)

		resp, err := u.client.Do(req)
		if err == nil && (resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusAccepted) {
			resp.Body.Close()
			u.sent.Add(1)
			slog.Info("batch uploaded")
			return
		}

		shouldRetry := false
		if err != nil {
			shouldRetry = true
		} else {
			switch resp.StatusCode {
			case http.StatusBadGateway, // 502
				http.StatusServiceUnavailable,  // 503
				http.StatusGatewayTimeout,      // 504
				http.StatusRequestTimeout,      // 408
				http.StatusTooEarly,            // 425
				http.StatusTooManyRequests,     // 429
				http.StatusInternalServerError, // 500
				499:                            // client closed request
				shouldRetry = true
			}
		}

		if resp != nil {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			slog.Error("upload failed",
				"attempts", attempt, "err", err,
				"status", resp.StatusCode, "response", string(body),
				"will_retry", shouldRetry)
		}

		if !shouldRetry {
			slog.Error("upload failed; dropping batch (non-retryable error)",
				"attempts", attempt, "err", err)
			u.failed.Add(1)
			return
		}

		attempt++
		if attempt >= u.cfg.MaxAttempts {
			slog.Error("upload failed; dropping batch (max attempts reached)",
				"attempts", attempt, "err", err)
			u.failed.Add(1)
			return
		}
		delay := backoff(u.cfg.BackoffInitial, u.cfg.BackoffMax, attempt)
		slog.Warn("upload retry", "attempt", attempt)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			u.failed.Add(1)
			return
		}
	}
}

func backoff(base, max time.Duration, attempt int) time.Duration {
	exp := float64(base) * math.Pow(2, float64(attempt-1))
	d := time.Duration(exp)
	if d > max {
		d = max
	}
	var b [8]byte
	_, _ = rand.Read(b[:])
	r := binary.BigEndian.Uint64(b[:])
	jitter := time.Duration(r % uint64(d/2))
	return d/2 + jitter
}
