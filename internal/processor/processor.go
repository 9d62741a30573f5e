// Package processor walks users, meetings and recording files and retrieves
// each meeting idempotently
package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/curtbushko/zoom-recording-downloader/internal/download"
	"github.com/curtbushko/zoom-recording-downloader/internal/ledger"
	"github.com/curtbushko/zoom-recording-downloader/internal/logging"
	"github.com/curtbushko/zoom-recording-downloader/internal/progress"
	"github.com/curtbushko/zoom-recording-downloader/internal/strategy"
	"github.com/curtbushko/zoom-recording-downloader/internal/zoom"
)

// Skip reasons recorded by the processor itself; strategies supply the rest
const (
	ReasonEmailFiltered  = "email filtered"
	ReasonNoFiles        = "no recording files"
	ReasonListingFailed  = "listing failed"
	ReasonInvalidMeeting = "invalid meeting data"
)

var errIncompleteFile = errors.New("recording file is incomplete")

// Fetcher downloads one file
type Fetcher interface {
	Fetch(ctx context.Context, req download.Request, progressCallback download.ProgressCallback) (*download.Result, error)
}

// Config holds the listing window and behaviour mode
type Config struct {
	Start      time.Time
	End        time.Time
	WindowDays int
	SizeMode   bool // sum reported sizes instead of downloading
}

// Processor is the retrieval controller. It is single goroutine: one user,
// one meeting and one file at a time.
type Processor struct {
	api      zoom.API
	strategy strategy.Strategy
	fetcher  Fetcher
	reporter *progress.Reporter
	config   Config
}

// NewProcessor creates a processor
func NewProcessor(api zoom.API, strat strategy.Strategy, fetcher Fetcher, reporter *progress.Reporter, config Config) *Processor {
	if reporter == nil {
		reporter = progress.NewReporter(progress.ProgressConfig{SizeMode: config.SizeMode}, nil)
	}
	return &Processor{
		api:      api,
		strategy: strat,
		fetcher:  fetcher,
		reporter: reporter,
		config:   config,
	}
}

// IsFatal reports whether err must stop the run rather than be confined to one item
func IsFatal(err error) bool {
	return errors.Is(err, ledger.ErrIntegrity) ||
		errors.Is(err, ledger.ErrInvalidRow) ||
		errors.Is(err, ledger.ErrNoMatch) ||
		errors.Is(err, ledger.ErrUnknownColumn) ||
		errors.Is(err, ledger.ErrModifiedExternally) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// Run processes every user, persists the strategy's state once more at the
// end, and prints the summary. Only fatal errors are returned.
func (p *Processor) Run(ctx context.Context) (*progress.Summary, error) {
	p.reporter.Start(ctx)

	err := p.processUsers(ctx)
	if persistErr := p.strategy.Persist(); persistErr != nil {
		persistErr = fmt.Errorf("failed to persist ledger: %w", persistErr)
		if err == nil {
			err = persistErr
		} else {
			logging.ErrorWithContext(ctx, "%v", persistErr)
		}
	}

	summary := p.reporter.Finish()
	return summary, err
}

func (p *Processor) processUsers(ctx context.Context) error {
	users, err := zoom.AllUsers(ctx, p.api)
	if err != nil {
		return fmt.Errorf("failed to list users: %w", err)
	}
	logging.InfoWithContext(ctx, "Found %d user(s)", len(users))

	for _, user := range users {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.ProcessUser(ctx, user); err != nil {
			return err
		}
	}
	return nil
}

// ProcessUser lists one user's meetings and processes each. A listing failure
// is logged and skips the user.
func (p *Processor) ProcessUser(ctx context.Context, user zoom.User) error {
	ctx = logging.WithFields(ctx, map[string]interface{}{"user": user.Email})

	if p.strategy.ShouldIgnoreUser(user.Email) {
		logging.InfoWithContext(ctx, "User is excluded: %s", user.DisplayName())
		p.reporter.AddSkipped(ReasonEmailFiltered, user.Email, nil)
		return nil
	}
	p.reporter.AddUser()

	logging.InfoWithContext(ctx, "Getting list of meetings for %s", user.DisplayName())
	meetings, err := zoom.UserMeetings(ctx, p.api, user.ID, p.config.Start, p.config.End, p.config.WindowDays)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		logging.ErrorWithContext(ctx, "Failed to list meetings: %v", err)
		p.reporter.AddSkipped(ReasonListingFailed, user.Email, map[string]interface{}{"error": err.Error()})
		return nil
	}
	logging.InfoWithContext(ctx, "Found %d meeting(s)", len(meetings))
	logging.LogUserAction("list_recordings", user.Email, map[string]interface{}{
		"meetings": len(meetings),
		"from":     p.config.Start.Format("2006-01-02"),
		"to":       p.config.End.Format("2006-01-02"),
	})

	for i, meeting := range meetings {
		if err := ctx.Err(); err != nil {
			return err
		}
		logging.DebugWithContext(ctx, "Meeting %d of %d", i+1, len(meetings))
		if err := p.ProcessMeeting(ctx, meeting); err != nil {
			return err
		}
	}
	return nil
}

// ProcessMeeting retrieves every file of one meeting and records completion
// only when all of them succeeded in this pass. The returned error is fatal.
func (p *Processor) ProcessMeeting(ctx context.Context, meeting zoom.Meeting) error {
	label := meetingLabel(meeting)
	ctx = logging.WithFields(ctx, map[string]interface{}{"meeting_id": label, "topic": meeting.Topic})

	ignore, reason, err := p.strategy.ShouldIgnoreMeeting(meeting)
	if err != nil {
		if IsFatal(err) {
			return fmt.Errorf("meeting %s (%s): %w", label, meeting.StartTime, err)
		}
		logging.ErrorWithContext(ctx, "Skipping meeting with invalid data: %v", err)
		p.reporter.AddSkipped(ReasonInvalidMeeting, label, map[string]interface{}{"error": err.Error()})
		return nil
	}
	if ignore {
		logging.InfoWithContext(ctx, "Skipping meeting: %s", reason)
		p.reporter.AddSkipped(reason, label, map[string]interface{}{"start_time": meeting.StartTime})
		return nil
	}

	total := len(meeting.RecordingFiles)
	if total == 0 {
		logging.WarnWithContext(ctx, "Recording files missing for meeting (%s)", meeting.StartTime)
		p.reporter.AddSkipped(ReasonNoFiles, label, map[string]interface{}{"start_time": meeting.StartTime})
		return nil
	}

	p.reporter.AddMeeting()
	logging.InfoWithContext(ctx, "Processing meeting (%s) with %d file(s)", meeting.StartTime, total)

	succeeded := 0
	var folder, filename string
	for i, file := range meeting.RecordingFiles {
		if err := ctx.Err(); err != nil {
			return err
		}
		fileCtx := logging.WithFields(ctx, map[string]interface{}{"file": fmt.Sprintf("%d of %d", i+1, total)})

		ok, fileFolder, fileName, err := p.processFile(fileCtx, meeting, file)
		if err != nil {
			return err
		}
		if ok {
			succeeded++
			if filename == "" {
				folder, filename = fileFolder, fileName
			}
		}
	}

	complete := succeeded == total
	p.reporter.MeetingFinished(complete)
	if !complete {
		logging.WarnWithContext(ctx, "Meeting not complete: %d of %d file(s) succeeded", succeeded, total)
		return nil
	}
	if p.config.SizeMode {
		return nil
	}

	if err := p.strategy.RecordCompletion(meeting, folder, filename); err != nil {
		return fmt.Errorf("meeting %s (%s): failed to record completion: %w", label, meeting.StartTime, err)
	}
	if err := p.strategy.Persist(); err != nil {
		return fmt.Errorf("failed to persist ledger: %w", err)
	}
	logging.InfoWithContext(ctx, "Meeting complete: %s/%s", folder, filename)
	return nil
}

// processFile returns whether the file is now complete (or counted, in size
// mode) together with its rendered names. Errors are fatal.
func (p *Processor) processFile(ctx context.Context, meeting zoom.Meeting, file zoom.RecordingFile) (bool, string, string, error) {
	if file.IsIncomplete() {
		logging.WarnWithContext(ctx, "Recording file is incomplete (%s)", file.ID)
		p.reporter.AddError(file.ID, errIncompleteFile, map[string]interface{}{"meeting_id": meetingLabel(meeting)})
		return false, "", "", nil
	}

	folder, filename, err := p.strategy.Names(meeting, file)
	if err != nil {
		if IsFatal(err) {
			return false, "", "", fmt.Errorf("meeting %s (%s): %w", meetingLabel(meeting), meeting.StartTime, err)
		}
		logging.ErrorWithContext(ctx, "Failed to render names: %v", err)
		p.reporter.AddError(file.ID, err, nil)
		return false, "", "", nil
	}

	recordingType := file.EffectiveRecordingType()
	if p.config.SizeMode {
		logging.InfoWithContext(ctx, "Sizing file as '%s': %s (%d bytes)", recordingType, filename, file.FileSize)
		p.reporter.AddReportedSize(file.FileSize)
		return true, folder, filename, nil
	}

	logging.InfoWithContext(ctx, "Downloading file as '%s': %s/%s (%d bytes)", recordingType, folder, filename, file.FileSize)
	result, err := p.fetcher.Fetch(ctx, download.Request{
		Folder:        folder,
		Filename:      filename,
		URL:           file.DownloadURL,
		ReportedSize:  file.FileSize,
		RecordingType: recordingType,
	}, p.reporter.DownloadCallback())

	if result != nil {
		for _, warning := range result.Warnings {
			logging.WarnWithContext(ctx, "%s", warning)
			p.reporter.AddWarning()
		}
	}
	if err != nil {
		logging.ErrorWithContext(ctx, "Download failed for %s: %v", filename, err)
		p.reporter.AddError(filename, err, map[string]interface{}{"meeting_id": meetingLabel(meeting), "file_id": file.ID})
		return false, "", "", nil
	}

	if result.AlreadyOnDisk {
		logging.InfoWithContext(ctx, "Recording file has already been downloaded: %s", result.Path)
	} else {
		logging.InfoWithContext(ctx, "Downloaded %s (%d bytes)", result.Path, result.BytesWritten)
		logging.LogPerformance(logging.PerformanceMetrics{
			Operation:      "download_file",
			Duration:       result.Duration,
			BytesProcessed: result.BytesWritten,
			Success:        true,
			Metadata: map[string]interface{}{
				"filename":       filename,
				"recording_type": recordingType,
			},
		})
	}
	p.reporter.AddDownloaded(result.BytesWritten, result.AlreadyOnDisk)
	return true, folder, filename, nil
}

// meetingLabel is the normalized ID when the raw ID has a supported length
func meetingLabel(meeting zoom.Meeting) string {
	if id, err := meeting.NormalizedID(); err == nil {
		return id
	}
	return fmt.Sprintf("%d", meeting.ID)
}
