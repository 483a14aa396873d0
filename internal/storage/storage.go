// Package storage publishes assembled videos to durable storage: always a
// deterministic local path derived from the job id, optionally mirrored to
// an HTTP object store when one is configured.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"math"
	"math/rand"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	uploadTimeout = 180 * time.Second

	maxRetries     = 4
	baseRetryDelay = 1 * time.Second
	maxRetryDelay  = 30 * time.Second
)

type Store struct {
	outputDir string

	// Remote object storage; all empty when running local-only.
	url        string
	serviceKey string
	bucket     string
	client     *http.Client
}

// NewLocal creates a store that keeps outputs on the local filesystem only.
func NewLocal(outputDir string) (*Store, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}
	return &Store{outputDir: outputDir}, nil
}

// New creates a store that mirrors outputs to an HTTP object store after
// writing them locally.
func New(outputDir, url, serviceKey, bucket string) (*Store, error) {
	s, err := NewLocal(outputDir)
	if err != nil {
		return nil, err
	}
	s.url = url
	s.serviceKey = serviceKey
	s.bucket = bucket
	s.client = &http.Client{
		Timeout: uploadTimeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 20,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	return s, nil
}

// OutputPath is the deterministic local destination for a job's video.
func (s *Store) OutputPath(jobID uuid.UUID) string {
	return filepath.Join(s.outputDir, jobID.String()+".mp4")
}

// Publish moves the assembled file to its durable location and returns the
// URL to record on the job.
func (s *Store) Publish(ctx context.Context, jobID uuid.UUID, localPath string) (string, error) {
	dest := s.OutputPath(jobID)

	if err := copyFile(localPath, dest); err != nil {
		return "", fmt.Errorf("failed to store output: %w", err)
	}

	if s.url == "" {
		return "file://" + dest, nil
	}

	objectPath := fmt.Sprintf("renders/%s.mp4", jobID)
	if err := s.upload(ctx, objectPath, dest); err != nil {
		return "", err
	}

	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.url, s.bucket, objectPath), nil
}

// upload sends the file to the object store with retries and exponential
// backoff, in the same shape as every other outbound call here: generous
// per-attempt timeout, retry only on transient failures.
func (s *Store) upload(ctx context.Context, objectPath, localPath string) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("failed to read output for upload: %w", err)
	}

	url := fmt.Sprintf("%s/storage/v1/object/%s/%s", s.url, s.bucket, objectPath)

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := retryDelay(attempt)
			log.Printf("[Storage] Upload retry %d/%d for %s (waiting %v)...", attempt, maxRetries, objectPath, delay)

			select {
			case <-ctx.Done():
				return fmt.Errorf("upload cancelled: %w", ctx.Err())
			case <-time.After(delay):
			}
		}

		uploadCtx, cancel := context.WithTimeout(ctx, uploadTimeout)

		req, err := http.NewRequestWithContext(uploadCtx, "PUT", url, bytes.NewReader(data))
		if err != nil {
			cancel()
			return fmt.Errorf("failed to create request: %w", err)
		}

		req.Header.Set("Authorization", "Bearer "+s.serviceKey)
		req.Header.Set("Content-Type", "video/mp4")
		req.Header.Set("x-upsert", "true")

		resp, err := s.client.Do(req)
		if err != nil {
			cancel()
			lastErr = fmt.Errorf("failed to upload: %w", err)
			if isRetryableError(err) {
				continue
			}
			return lastErr
		}

		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		cancel()

		if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated {
			return nil
		}

		lastErr = fmt.Errorf("upload failed with status %d: %s", resp.StatusCode, string(body))
		if isRetryableStatus(resp.StatusCode) {
			continue
		}
		return lastErr
	}

	return fmt.Errorf("upload failed after %d attempts: %w", maxRetries+1, lastErr)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}

	return out.Close()
}

// retryDelay calculates exponential backoff with jitter: base * 2^attempt + random jitter
func retryDelay(attempt int) time.Duration {
	delay := float64(baseRetryDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(maxRetryDelay) {
		delay = float64(maxRetryDelay)
	}
	jitter := delay * 0.25 * rand.Float64()
	return time.Duration(delay + jitter)
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "EOF") ||
		strings.Contains(errStr, "broken pipe")
}

func isRetryableStatus(status int) bool {
	return status == http.StatusTooManyRequests ||
		status == http.StatusRequestTimeout ||
		status == http.StatusBadGateway ||
		status == http.StatusServiceUnavailable ||
		status == http.StatusGatewayTimeout
}
