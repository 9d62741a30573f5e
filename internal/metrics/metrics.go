// Package metrics exposes the counters of a run in Prometheus text format so a
// node exporter textfile collector can pick them up after each scheduled run.
package metrics

import (
	"fmt"

	"github.com/curtbushko/zoom-recording-downloader/internal/progress"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "zoom_downloader"

// Recorder holds the gauges of the last run in a private registry
type Recorder struct {
	registry *prometheus.Registry

	users          prometheus.Gauge
	meetings       *prometheus.GaugeVec
	files          *prometheus.GaugeVec
	skipped        *prometheus.GaugeVec
	warnings       prometheus.Gauge
	bytes          prometheus.Gauge
	reportedBytes  prometheus.Gauge
	duration       prometheus.Gauge
	lastRun        prometheus.Gauge
	lastRunSuccess prometheus.Gauge
}

// NewRecorder creates a recorder and registers its gauges
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		users: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "users",
			Help:      "Users whose recordings were listed.",
		}),
		meetings: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "meetings",
			Help:      "Meetings processed, by outcome.",
		}, []string{"state"}),
		files: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "files",
			Help:      "Recording files, by outcome.",
		}, []string{"result"}),
		skipped: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "skipped",
			Help:      "Users and meetings skipped, by reason.",
		}, []string{"reason"}),
		warnings: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "warnings",
			Help:      "Warnings raised while downloading.",
		}),
		bytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "downloaded_bytes",
			Help:      "Bytes written to disk.",
		}),
		reportedBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reported_bytes",
			Help:      "Sum of reported file sizes in size mode.",
		}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of the last run.",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run ended.",
		}),
		lastRunSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_success",
			Help:      "1 when the last run ended without a fatal error.",
		}),
	}

	r.registry.MustRegister(
		r.users, r.meetings, r.files, r.skipped, r.warnings,
		r.bytes, r.reportedBytes, r.duration, r.lastRun, r.lastRunSuccess,
	)
	return r
}

// Observe sets every gauge from a run summary. runErr is the run's fatal error, if any.
func (r *Recorder) Observe(summary *progress.Summary, runErr error) {
	if summary == nil {
		summary = &progress.Summary{}
	}

	r.users.Set(float64(summary.Users))
	r.meetings.WithLabelValues("completed").Set(float64(summary.MeetingsCompleted))
	r.meetings.WithLabelValues("incomplete").Set(float64(summary.MeetingsIncomplete))
	r.files.WithLabelValues("downloaded").Set(float64(summary.FilesDownloaded))
	r.files.WithLabelValues("already_on_disk").Set(float64(summary.FilesAlreadyOnDisk))
	r.files.WithLabelValues("failed").Set(float64(summary.FilesFailed))

	r.skipped.Reset()
	for reason, count := range summary.SkippedByReason() {
		r.skipped.WithLabelValues(reason).Set(float64(count))
	}

	r.warnings.Set(float64(summary.Warnings))
	r.bytes.Set(float64(summary.BytesDownloaded))
	r.reportedBytes.Set(float64(summary.ReportedBytes))
	r.duration.Set(summary.TotalDuration.Seconds())
	if !summary.EndTime.IsZero() {
		r.lastRun.Set(float64(summary.EndTime.Unix()))
	}
	if runErr == nil {
		r.lastRunSuccess.Set(1)
	} else {
		r.lastRunSuccess.Set(0)
	}
}

// WriteTextfile writes the gauges to path atomically
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
