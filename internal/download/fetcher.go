// Package download fetches single recording files to disk
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// ErrIncomplete means fewer or more bytes reached disk than the server announced
var ErrIncomplete = errors.New("download incomplete")

// Config holds settings for the fetcher
type Config struct {
	OutputDir string // Root every request's folder is resolved against
	ChunkSize int    // Size of each read from the response body
	UserAgent string
}

// Request describes one file to fetch. Folder and Filename are already sanitized.
type Request struct {
	Folder        string
	Filename      string
	URL           string
	ReportedSize  int64 // Size reported by the listing API
	RecordingType string
}

// ProgressUpdate represents download progress information
type ProgressUpdate struct {
	Filename        string
	BytesDownloaded int64
	TotalBytes      int64
	Speed           float64 // bytes/second since the previous update
	State           DownloadState
	Timestamp       time.Time
}

// DownloadState represents the current state of a download
type DownloadState int

const (
	DownloadStateDownloading DownloadState = iota
	DownloadStateCompleted
	DownloadStateFailed
)

func (s DownloadState) String() string {
	switch s {
	case DownloadStateDownloading:
		return "downloading"
	case DownloadStateCompleted:
		return "completed"
	case DownloadStateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ProgressCallback is called when download progress changes
type ProgressCallback func(update ProgressUpdate)

// Result describes a finished fetch
type Result struct {
	Path          string
	BytesWritten  int64
	ContentLength int64 // -1 when the server did not send one
	AlreadyOnDisk bool  // the file existed with the reported size and nothing was fetched
	Warnings      []string
	Duration      time.Duration
}

// StatusError is returned for non-2xx download responses
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP error: %s", e.Status)
}

// Fetcher downloads one file at a time. The body transfer is never retried:
// a failed file is picked up by the size check on the next run.
type Fetcher struct {
	config     Config
	httpClient *http.Client
}

// NewFetcher creates a fetcher. The client carries authentication and timeouts.
func NewFetcher(config Config, httpClient *http.Client) *Fetcher {
	if config.ChunkSize <= 0 {
		config.ChunkSize = 32 * 1024
	}
	if config.UserAgent == "" {
		config.UserAgent = "zoom-recording-downloader/1.0"
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Fetcher{config: config, httpClient: httpClient}
}

// Destination returns where a request is written
func (f *Fetcher) Destination(req Request) string {
	return filepath.Join(f.config.OutputDir, req.Folder, req.Filename)
}

// Fetch downloads req unless a file of the reported size is already in place.
// A returned error means the file must be counted as failed.
func (f *Fetcher) Fetch(ctx context.Context, req Request, progressCallback ProgressCallback) (*Result, error) {
	start := time.Now()
	destination := f.Destination(req)
	result := &Result{Path: destination, ContentLength: -1}

	if err := os.MkdirAll(filepath.Dir(destination), 0755); err != nil {
		return result, fmt.Errorf("failed to create destination directory: %w", err)
	}

	if info, err := os.Stat(destination); err == nil && info.Mode().IsRegular() && info.Size() == req.ReportedSize {
		result.AlreadyOnDisk = true
		result.Duration = time.Since(start)
		return result, nil
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return result, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("User-Agent", f.config.UserAgent)

	resp, err := f.httpClient.Do(httpReq)
	if err != nil {
		return result, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return result, &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	result.ContentLength = resp.ContentLength
	expected := resp.ContentLength
	if expected < 0 {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("no content length sent, expecting reported size (%d)", req.ReportedSize))
		expected = req.ReportedSize
	} else if expected != req.ReportedSize {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("content length of recording file (%d) != reported size (%d)", expected, req.ReportedSize))
	}

	file, err := os.OpenFile(destination, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return result, fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	written, err := f.copy(ctx, file, resp.Body, req.Filename, expected, progressCallback)
	result.BytesWritten = written
	result.Duration = time.Since(start)
	if err != nil {
		notify(progressCallback, ProgressUpdate{Filename: req.Filename, BytesDownloaded: written, TotalBytes: expected, State: DownloadStateFailed, Timestamp: time.Now()})
		return result, err
	}

	if err := file.Sync(); err != nil {
		return result, fmt.Errorf("failed to sync file: %w", err)
	}

	if written != expected {
		notify(progressCallback, ProgressUpdate{Filename: req.Filename, BytesDownloaded: written, TotalBytes: expected, State: DownloadStateFailed, Timestamp: time.Now()})
		return result, fmt.Errorf("%w: wrote %d of %d bytes", ErrIncomplete, written, expected)
	}

	notify(progressCallback, ProgressUpdate{Filename: req.Filename, BytesDownloaded: written, TotalBytes: expected, State: DownloadStateCompleted, Timestamp: time.Now()})
	return result, nil
}

// copy streams body into w in ChunkSize reads, reporting progress at most twice a second
func (f *Fetcher) copy(ctx context.Context, w io.Writer, body io.Reader, filename string, total int64, progressCallback ProgressCallback) (int64, error) {
	buffer := make([]byte, f.config.ChunkSize)
	var written int64

	lastProgressTime := time.Now()
	bytesAtLastProgress := int64(0)
	notify(progressCallback, ProgressUpdate{Filename: filename, TotalBytes: total, State: DownloadStateDownloading, Timestamp: lastProgressTime})

	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		n, readErr := body.Read(buffer)
		if n > 0 {
			if _, err := w.Write(buffer[:n]); err != nil {
				return written, fmt.Errorf("failed to write to file: %w", err)
			}
			written += int64(n)
		}

		now := time.Now()
		if elapsed := now.Sub(lastProgressTime); elapsed >= 500*time.Millisecond {
			notify(progressCallback, ProgressUpdate{
				Filename:        filename,
				BytesDownloaded: written,
				TotalBytes:      total,
				Speed:           float64(written-bytesAtLastProgress) / elapsed.Seconds(),
				State:           DownloadStateDownloading,
				Timestamp:       now,
			})
			lastProgressTime = now
			bytesAtLastProgress = written
		}

		if readErr == io.EOF {
			return written, nil
		}
		if readErr != nil {
			return written, fmt.Errorf("failed to read response body: %w", readErr)
		}
	}
}

func notify(progressCallback ProgressCallback, update ProgressUpdate) {
	if progressCallback != nil {
		progressCallback(update)
	}
}
