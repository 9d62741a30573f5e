// Package naming renders destination folder and file names for recording files
package naming

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/curtbushko/zoom-recording-downloader/internal/filename"
	"github.com/curtbushko/zoom-recording-downloader/internal/zoom"
	"github.com/lestrrat-go/strftime"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Defaults match the historical layout of downloaded recordings
const (
	DefaultStrftime = "%Y.%m.%d - %I.%M %p UTC"
	DefaultFilename = "{meeting_time} - {topic} - {rec_type} - {recording_id}.{file_extension}"
	DefaultFolder   = "{topic} - {meeting_time}"
)

// ErrUnknownPlaceholder is returned when a template names a value the renderer does not provide
var ErrUnknownPlaceholder = errors.New("unknown placeholder")

var placeholderPattern = regexp.MustCompile(`\{([a-z_]+)\}`)

// recording placeholders are always available
var recordingPlaceholders = []string{
	"topic", "rec_type", "meeting_time", "year", "month", "day",
	"recording_id", "file_extension", "file_type", "meeting_id",
}

// ledger placeholders are available only when the meeting has a ledger row
var ledgerPlaceholders = []string{
	"author", "book_title", "chapters", "language", "group_id", "book_id",
}

// Metadata holds the ledger fields a template may reference
type Metadata struct {
	Author    string
	BookTitle string
	Chapters  string
	Language  string
	GroupID   string
	BookID    string
}

// Options configures a Renderer
type Options struct {
	Location       *time.Location
	Strftime       string
	FilenameFormat string
	FolderFormat   string
	ReplaceOld     string
	ReplaceNew     string
}

// Renderer turns a meeting and one of its files into a folder and a file name
type Renderer struct {
	location   *time.Location
	timeFormat *strftime.Strftime
	filename   string
	folder     string
	replaceOld string
	replaceNew string
	sanitizer  *filename.Sanitizer
	title      cases.Caser
}

// NewRenderer validates the templates and the strftime pattern
func NewRenderer(opts Options) (*Renderer, error) {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Strftime == "" {
		opts.Strftime = DefaultStrftime
	}
	if opts.FilenameFormat == "" {
		opts.FilenameFormat = DefaultFilename
	}
	if opts.FolderFormat == "" {
		opts.FolderFormat = DefaultFolder
	}

	tf, err := strftime.New(opts.Strftime)
	if err != nil {
		return nil, fmt.Errorf("invalid strftime pattern %q: %w", opts.Strftime, err)
	}

	return &Renderer{
		location:   opts.Location,
		timeFormat: tf,
		filename:   opts.FilenameFormat,
		folder:     opts.FolderFormat,
		replaceOld: opts.ReplaceOld,
		replaceNew: opts.ReplaceNew,
		sanitizer:  filename.New(filename.Options{}),
		title:      cases.Title(language.Und),
	}, nil
}

// ValidateTemplate checks that every placeholder in template is known.
// Ledger placeholders are accepted only when withLedger is set.
func ValidateTemplate(template string, withLedger bool) error {
	allowed := make(map[string]bool)
	for _, name := range recordingPlaceholders {
		allowed[name] = true
	}
	if withLedger {
		for _, name := range ledgerPlaceholders {
			allowed[name] = true
		}
	}
	for _, m := range placeholderPattern.FindAllStringSubmatch(template, -1) {
		if !allowed[m[1]] {
			return fmt.Errorf("%w {%s} in %q", ErrUnknownPlaceholder, m[1], template)
		}
	}
	return nil
}

// Render returns the sanitized folder and file name for one recording file.
// meta may be nil when the meeting has no ledger row.
func (r *Renderer) Render(meeting zoom.Meeting, file zoom.RecordingFile, meta *Metadata) (string, string, error) {
	values, err := r.values(meeting, file, meta)
	if err != nil {
		return "", "", err
	}

	folder, err := expand(r.folder, values)
	if err != nil {
		return "", "", fmt.Errorf("folder template: %w", err)
	}
	name, err := expand(r.filename, values)
	if err != nil {
		return "", "", fmt.Errorf("filename template: %w", err)
	}

	if r.replaceOld != "" {
		folder = strings.ReplaceAll(folder, r.replaceOld, r.replaceNew)
		name = strings.ReplaceAll(name, r.replaceOld, r.replaceNew)
	}

	return r.sanitizer.SanitizeFilepath(folder), r.sanitizer.SanitizeFilename(name), nil
}

func (r *Renderer) values(meeting zoom.Meeting, file zoom.RecordingFile, meta *Metadata) (map[string]string, error) {
	start, err := meeting.Start()
	if err != nil {
		return nil, fmt.Errorf("meeting %d: %w", meeting.ID, err)
	}
	local := start.In(r.location)

	ext := file.FileExtension
	if ext == "" {
		ext = filename.ExtensionForType(file.FileType)
	}

	values := map[string]string{
		"topic":          r.sanitizer.StripInvalid(meeting.Topic),
		"rec_type":       r.HumanizeRecordingType(file.EffectiveRecordingType()),
		"meeting_time":   r.timeFormat.FormatString(local),
		"year":           local.Format("2006"),
		"month":          local.Format("01"),
		"day":            local.Format("02"),
		"recording_id":   file.ID,
		"file_extension": strings.ToLower(ext),
		"file_type":      file.FileType,
		"meeting_id":     strconv.FormatInt(meeting.ID, 10),
	}
	if meta != nil {
		values["author"] = r.sanitizer.StripInvalid(meta.Author)
		values["book_title"] = r.sanitizer.StripInvalid(meta.BookTitle)
		values["chapters"] = meta.Chapters
		values["language"] = meta.Language
		values["group_id"] = meta.GroupID
		values["book_id"] = meta.BookID
	}
	return values, nil
}

// HumanizeRecordingType turns shared_screen_with_speaker_view into Shared Screen With Speaker View
func (r *Renderer) HumanizeRecordingType(recordingType string) string {
	return r.title.String(strings.ReplaceAll(recordingType, "_", " "))
}

func expand(template string, values map[string]string) (string, error) {
	var missing []string
	out := placeholderPattern.ReplaceAllStringFunc(template, func(token string) string {
		name := token[1 : len(token)-1]
		v, ok := values[name]
		if !ok {
			missing = append(missing, name)
			return token
		}
		return v
	})
	if len(missing) > 0 {
		sort.Strings(missing)
		return "", fmt.Errorf("%w: %s", ErrUnknownPlaceholder, strings.Join(missing, ", "))
	}
	return out, nil
}
