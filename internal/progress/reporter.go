package progress

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/curtbushko/zoom-recording-downloader/internal/download"
	"github.com/curtbushko/zoom-recording-downloader/internal/logging"
)

// SkippedItem represents a user or meeting that was not processed
type SkippedItem struct {
	Item      string                 `json:"item"`
	Reason    string                 `json:"reason"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// ErrorItem represents a file that failed
type ErrorItem struct {
	Item      string                 `json:"item"`
	ErrorMsg  string                 `json:"error"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Summary represents the counters of one run
type Summary struct {
	Users              int           `json:"users"`
	Meetings           int           `json:"meetings"`
	MeetingsCompleted  int           `json:"meetings_completed"`
	MeetingsIncomplete int           `json:"meetings_incomplete"`
	FilesDownloaded    int           `json:"files_downloaded"`
	FilesAlreadyOnDisk int           `json:"files_already_on_disk"`
	FilesFailed        int           `json:"files_failed"`
	Warnings           int           `json:"warnings"`
	BytesDownloaded    int64         `json:"bytes_downloaded"`
	ReportedBytes      int64         `json:"reported_bytes"`
	SkippedItems       []SkippedItem `json:"skipped_items"`
	ErrorItems         []ErrorItem   `json:"error_items"`
	StartTime          time.Time     `json:"start_time"`
	EndTime            time.Time     `json:"end_time"`
	TotalDuration      time.Duration `json:"-"`
}

// SkippedByReason counts skipped items per reason
func (s *Summary) SkippedByReason() map[string]int {
	result := make(map[string]int)
	for _, item := range s.SkippedItems {
		result[item.Reason]++
	}
	return result
}

// ProgressConfig holds configuration for progress reporting
type ProgressConfig struct {
	ShowProgressBar bool      // Draw a bar per downloading file
	Writer          io.Writer // Where progress and the summary go (default: os.Stdout)
	SizeMode        bool      // Summarise reported sizes instead of downloads
}

// Reporter tracks what a run did and prints the summary when it ends
type Reporter struct {
	config ProgressConfig
	logger logging.Logger
	ctx    context.Context

	mutex   sync.Mutex
	summary Summary
}

// NewReporter creates a reporter. The logger may be nil.
func NewReporter(config ProgressConfig, logger logging.Logger) *Reporter {
	if config.Writer == nil {
		config.Writer = os.Stdout
	}
	return &Reporter{config: config, logger: logger, ctx: context.Background()}
}

// Start marks the beginning of the run
func (r *Reporter) Start(ctx context.Context) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.ctx = ctx
	r.summary = Summary{StartTime: time.Now()}
	if r.logger != nil {
		r.logger.InfoWithContext(ctx, "Run started")
	}
}

// DownloadCallback returns the per-file progress callback, or nil when bars are off
func (r *Reporter) DownloadCallback() download.ProgressCallback {
	if !r.config.ShowProgressBar {
		return nil
	}
	return DownloadBars(ProgressBarConfig{Writer: r.config.Writer})
}

// AddUser counts a user whose recordings are listed
func (r *Reporter) AddUser() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.summary.Users++
}

// AddMeeting counts a meeting accepted for processing
func (r *Reporter) AddMeeting() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.summary.Meetings++
}

// AddSkipped records a skipped user or meeting
func (r *Reporter) AddSkipped(reason string, item string, details map[string]interface{}) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.summary.SkippedItems = append(r.summary.SkippedItems, SkippedItem{
		Item:      item,
		Reason:    reason,
		Details:   details,
		Timestamp: time.Now(),
	})
}

// AddDownloaded counts a file that is now complete on disk
func (r *Reporter) AddDownloaded(bytes int64, alreadyOnDisk bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if alreadyOnDisk {
		r.summary.FilesAlreadyOnDisk++
		return
	}
	r.summary.FilesDownloaded++
	r.summary.BytesDownloaded += bytes
}

// AddReportedSize adds a file's reported size in size mode
func (r *Reporter) AddReportedSize(bytes int64) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.summary.ReportedBytes += bytes
}

// AddError records a failed file
func (r *Reporter) AddError(item string, err error, details map[string]interface{}) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.summary.FilesFailed++
	r.summary.ErrorItems = append(r.summary.ErrorItems, ErrorItem{
		Item:      item,
		ErrorMsg:  err.Error(),
		Details:   details,
		Timestamp: time.Now(),
	})
}

// AddWarning counts a warning
func (r *Reporter) AddWarning() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.summary.Warnings++
}

// MeetingFinished records whether every eligible file of a meeting succeeded
func (r *Reporter) MeetingFinished(complete bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if complete {
		r.summary.MeetingsCompleted++
	} else {
		r.summary.MeetingsIncomplete++
	}
}

// GetSummary returns a copy of the current counters
func (r *Reporter) GetSummary() *Summary {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	summary := r.summary
	summary.SkippedItems = append([]SkippedItem(nil), r.summary.SkippedItems...)
	summary.ErrorItems = append([]ErrorItem(nil), r.summary.ErrorItems...)
	summary.EndTime = time.Now()
	summary.TotalDuration = summary.EndTime.Sub(summary.StartTime)
	return &summary
}

// Finish prints the summary and logs the run's performance
func (r *Reporter) Finish() *Summary {
	summary := r.GetSummary()
	r.displaySummary(summary)

	if r.logger != nil {
		r.logger.InfoWithContext(r.ctx, "Run completed: %d users, %d meetings, %d files downloaded, %d failed, %d skipped",
			summary.Users, summary.Meetings, summary.FilesDownloaded, summary.FilesFailed, len(summary.SkippedItems))
		r.logger.LogPerformance(logging.PerformanceMetrics{
			Operation:      "run",
			Duration:       summary.TotalDuration,
			BytesProcessed: summary.BytesDownloaded,
			Success:        summary.FilesFailed == 0,
			Metadata: map[string]interface{}{
				"meetings_completed":    summary.MeetingsCompleted,
				"meetings_incomplete":   summary.MeetingsIncomplete,
				"files_already_on_disk": summary.FilesAlreadyOnDisk,
			},
		})
	}
	return summary
}

func (r *Reporter) displaySummary(summary *Summary) {
	w := r.config.Writer
	fmt.Fprintf(w, "\nSummary:\n")
	fmt.Fprintf(w, "- Users: %d\n", summary.Users)
	fmt.Fprintf(w, "- Meetings: %d (%d complete, %d incomplete)\n",
		summary.Meetings, summary.MeetingsCompleted, summary.MeetingsIncomplete)

	if r.config.SizeMode {
		fmt.Fprintf(w, "- Total size: %d bytes (%.2f MB, %.2f GB)\n", summary.ReportedBytes,
			float64(summary.ReportedBytes)/(1024*1024), float64(summary.ReportedBytes)/(1024*1024*1024))
	} else {
		fmt.Fprintf(w, "- Downloaded: %d (%s)\n", summary.FilesDownloaded, formatBytes(summary.BytesDownloaded))
		if summary.FilesAlreadyOnDisk > 0 {
			fmt.Fprintf(w, "- Already on disk: %d\n", summary.FilesAlreadyOnDisk)
		}
	}
	if summary.FilesFailed > 0 {
		fmt.Fprintf(w, "- Failed: %d\n", summary.FilesFailed)
	}
	if summary.Warnings > 0 {
		fmt.Fprintf(w, "- Warnings: %d\n", summary.Warnings)
	}

	byReason := summary.SkippedByReason()
	reasons := make([]string, 0, len(byReason))
	for reason := range byReason {
		reasons = append(reasons, reason)
	}
	sort.Strings(reasons)
	for _, reason := range reasons {
		fmt.Fprintf(w, "- Skipped (%s): %d\n", reason, byReason[reason])
	}

	fmt.Fprintf(w, "- Time elapsed: %s\n", formatDuration(summary.TotalDuration))
}

// formatBytes formats byte count as human readable string
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}

	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}

	units := []string{"KB", "MB", "GB", "TB"}
	return fmt.Sprintf("%.1f %s", float64(bytes)/float64(div), units[exp])
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		minutes := int(d.Minutes())
		seconds := int(d.Seconds()) - minutes*60
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	hours := int(d.Hours())
	minutes := int(d.Minutes()) - hours*60
	return fmt.Sprintf("%dh %dm", hours, minutes)
}
