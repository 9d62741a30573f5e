// Package progress renders per-file download bars and the end-of-run summary
package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/curtbushko/zoom-recording-downloader/internal/download"
)

// ProgressBarConfig holds configuration for progress bars
type ProgressBarConfig struct {
	Writer          io.Writer     // Where to write output (default: os.Stdout)
	Width           int           // Width of the bar in characters
	RefreshInterval time.Duration // Minimum time between redraws
	Label           string        // Printed before the bar
}

// ProgressBar is a single-line byte counter redrawn in place
type ProgressBar struct {
	config     ProgressBarConfig
	current    int64
	total      int64
	speed      float64
	lastDraw   time.Time
	lastOutput string
	finished   bool
	mutex      sync.Mutex
}

// NewProgressBar creates a new progress bar. A total <= 0 renders a byte count without a bar.
func NewProgressBar(total int64, config ProgressBarConfig) *ProgressBar {
	if config.Writer == nil {
		config.Writer = os.Stdout
	}
	if config.Width <= 0 {
		config.Width = 40
	}
	if config.RefreshInterval <= 0 {
		config.RefreshInterval = 100 * time.Millisecond
	}
	return &ProgressBar{config: config, total: total}
}

// Update sets the current value and speed, redrawing at most once per refresh interval
func (pb *ProgressBar) Update(current int64, speed float64) {
	pb.mutex.Lock()
	defer pb.mutex.Unlock()

	if pb.finished {
		return
	}
	pb.current = current
	if speed > 0 {
		pb.speed = speed
	}

	now := time.Now()
	if now.Sub(pb.lastDraw) >= pb.config.RefreshInterval {
		pb.display()
		pb.lastDraw = now
	}
}

// Finish draws the final state and moves to the next line
func (pb *ProgressBar) Finish() {
	pb.mutex.Lock()
	defer pb.mutex.Unlock()

	if pb.finished {
		return
	}
	pb.finished = true
	pb.display()
	fmt.Fprint(pb.config.Writer, "\n")
}

// IsFinished returns whether the progress bar is finished
func (pb *ProgressBar) IsFinished() bool {
	pb.mutex.Lock()
	defer pb.mutex.Unlock()
	return pb.finished
}

func (pb *ProgressBar) display() {
	var b strings.Builder
	if pb.config.Label != "" {
		b.WriteString(pb.config.Label)
		b.WriteString(": ")
	}

	if pb.total > 0 {
		percent := float64(pb.current) / float64(pb.total) * 100
		if percent > 100 {
			percent = 100
		}
		fmt.Fprintf(&b, "[%s] %.0f%% | %s/%s", createProgressBar(percent, pb.config.Width), percent,
			formatValue(pb.current), formatValue(pb.total))
	} else {
		b.WriteString(formatValue(pb.current))
	}
	if pb.speed > 0 {
		fmt.Fprintf(&b, " | %s/s", formatSpeed(pb.speed))
	}

	output := b.String()
	if output != pb.lastOutput {
		fmt.Fprintf(pb.config.Writer, "\r\033[K%s", output)
		pb.lastOutput = output
	}
}

// DownloadBars returns a callback drawing one bar per file as the fetcher reports progress
func DownloadBars(config ProgressBarConfig) download.ProgressCallback {
	var bar *ProgressBar
	return func(update download.ProgressUpdate) {
		switch update.State {
		case download.DownloadStateDownloading:
			if bar == nil || bar.IsFinished() {
				cfg := config
				cfg.Label = update.Filename
				bar = NewProgressBar(update.TotalBytes, cfg)
			}
			bar.Update(update.BytesDownloaded, update.Speed)
		case download.DownloadStateCompleted, download.DownloadStateFailed:
			if bar != nil {
				bar.Update(update.BytesDownloaded, update.Speed)
				bar.Finish()
			}
		}
	}
}

func createProgressBar(percent float64, width int) string {
	filled := int(percent / 100 * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

// formatValue formats byte counts with decimal units
func formatValue(value int64) string {
	if value < 1000 {
		return fmt.Sprintf("%d", value)
	}
	if value < 1000000 {
		return fmt.Sprintf("%.1fK", float64(value)/1000)
	}
	if value < 1000000000 {
		return fmt.Sprintf("%.1fM", float64(value)/1000000)
	}
	return fmt.Sprintf("%.1fG", float64(value)/1000000000)
}

func formatSpeed(speed float64) string {
	return formatValue(int64(speed)) + "B"
}
