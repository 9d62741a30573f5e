// Package ledger reconciles Zoom meetings against the CSV metadata ledger.
//
// Every cell is kept as the raw string read from disk. A load followed by a
// persist with no mutations reproduces the file byte for byte; only rows that
// were marked downloaded are re-encoded.
package ledger

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/curtbushko/zoom-recording-downloader/internal/instant"
	"github.com/curtbushko/zoom-recording-downloader/internal/logging"
	"github.com/curtbushko/zoom-recording-downloader/internal/meetingid"
	"github.com/curtbushko/zoom-recording-downloader/internal/zoom"
)

// Column names the ledger reads or writes
const (
	ColumnID         = "ID"
	ColumnStartTime  = "Start_Time"
	ColumnAuthor     = "Author"
	ColumnBookTitle  = "Book_Title"
	ColumnLanguage   = "Language"
	ColumnBookID     = "Book_ID"
	ColumnChapters   = "Chapters"
	ColumnGroupID    = "Group_ID"
	ColumnAction     = "Action"
	ColumnDownloaded = "Downloaded"
	ColumnFolderName = "Folder_Name"
	ColumnFileName   = "File_Name"
)

// Cell values with meaning to the downloader
const (
	ActionDelete = "Delete"
	ActionIgnore = "Ignore"
	StatusYes    = "YES"
)

// RequiredFields must be non-empty on every row that is not marked Delete or Ignore
var RequiredFields = []string{
	ColumnID, ColumnStartTime, ColumnAuthor, ColumnBookTitle,
	ColumnLanguage, ColumnBookID, ColumnChapters, ColumnGroupID,
}

var requiredColumns = append(append([]string{}, RequiredFields...),
	ColumnAction, ColumnDownloaded, ColumnFolderName, ColumnFileName)

// Options configures Load
type Options struct {
	// Timezone is the IANA zone Start_Time values are written in. Empty means UTC.
	Timezone string
	// Watch enables detection of edits made to the file by other programs.
	Watch bool
}

// Row is a read-only copy of one ledger row
type Row struct {
	Line   int
	Fields map[string]string
}

// Get returns a cell by column name
func (r Row) Get(column string) string {
	return r.Fields[column]
}

// Store holds the ledger table in memory
type Store struct {
	path       string
	mode       os.FileMode
	doc        *document
	columns    map[string]int
	reconciler *instant.Reconciler
	watcher    *Watcher
}

// Load reads and validates the ledger at path
func Load(path string, opts Options) (*Store, error) {
	reconciler, err := instant.NewReconciler(opts.Timezone)
	if err != nil {
		return nil, fmt.Errorf("ledger timezone: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	if len(bytes.TrimSpace(bytes.TrimPrefix(data, utf8BOM))) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrLedgerUnavailable, path)
	}

	doc, err := parseDocument(data)
	if err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrLedgerUnavailable, path, err)
	}

	s := &Store{
		path:       path,
		mode:       info.Mode().Perm(),
		doc:        doc,
		columns:    make(map[string]int),
		reconciler: reconciler,
	}
	for i, name := range doc.header.fields {
		name = strings.TrimSpace(name)
		if _, dup := s.columns[name]; !dup {
			s.columns[name] = i
		}
	}

	var missing []string
	for _, col := range requiredColumns {
		if _, ok := s.columns[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumn, strings.Join(missing, ", "))
	}

	if err := s.validate(); err != nil {
		return nil, err
	}

	if opts.Watch {
		w, err := NewWatcher(path, data)
		if err != nil {
			return nil, fmt.Errorf("failed to watch ledger: %w", err)
		}
		s.watcher = w
	}

	logging.Debug("Loaded ledger %s with %d rows", path, len(doc.rows))
	return s, nil
}

func (s *Store) validate() error {
	var problems []string
	for _, rec := range s.doc.rows {
		if isBlank(rec.fields) || isInactive(s.cell(rec, ColumnAction)) {
			continue
		}
		var empty []string
		for _, col := range RequiredFields {
			if strings.TrimSpace(s.cell(rec, col)) == "" {
				empty = append(empty, col)
			}
		}
		if len(empty) > 0 {
			problems = append(problems, fmt.Sprintf("line %d: empty %s", rec.line, strings.Join(empty, ", ")))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidRow, strings.Join(problems, "; "))
	}
	return nil
}

// Path returns the file the ledger was loaded from
func (s *Store) Path() string {
	return s.path
}

// Len returns the number of data rows, blank rows included
func (s *Store) Len() int {
	return len(s.doc.rows)
}

// Location returns the zone Start_Time values are interpreted in
func (s *Store) Location() *time.Location {
	return s.reconciler.Location()
}

func (s *Store) cell(rec *record, column string) string {
	i, ok := s.columns[column]
	if !ok || i >= len(rec.fields) {
		return ""
	}
	return rec.fields[i]
}

func (s *Store) setCell(rec *record, column, value string) {
	i := s.columns[column]
	for len(rec.fields) <= i {
		rec.fields = append(rec.fields, "")
	}
	if rec.fields[i] != value {
		rec.fields[i] = value
		rec.dirty = true
		if rec.changed == nil {
			rec.changed = make(map[int]bool)
		}
		rec.changed[i] = true
	}
}

func (s *Store) rowCopy(rec *record) Row {
	fields := make(map[string]string, len(s.columns))
	for name := range s.columns {
		fields[name] = s.cell(rec, name)
	}
	return Row{Line: rec.line, Fields: fields}
}

// find returns the single record matching the meeting instance, or nil
func (s *Store) find(meeting zoom.Meeting, criteria ...Criterion) (*record, error) {
	for _, c := range criteria {
		if _, ok := s.columns[c.Column]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownColumn, c.Column)
		}
	}

	id, err := meeting.NormalizedID()
	if err != nil {
		return nil, err
	}
	start, err := meeting.Start()
	if err != nil {
		return nil, fmt.Errorf("meeting %s: %w", id, err)
	}

	var matches []*record
	for _, rec := range s.doc.rows {
		if strings.TrimSpace(s.cell(rec, ColumnID)) != id {
			continue
		}
		raw := strings.TrimSpace(s.cell(rec, ColumnStartTime))
		if raw == "" {
			continue
		}
		local, err := s.reconciler.ParseLocal(raw)
		if err != nil {
			// Delete and Ignore rows are exempt from validation
			if isInactive(s.cell(rec, ColumnAction)) {
				continue
			}
			return nil, fmt.Errorf("%w: line %d: %v", ErrInvalidRow, rec.line, err)
		}
		if !local.Equal(start) {
			continue
		}
		if !matchesAll(s, rec, criteria) {
			continue
		}
		matches = append(matches, rec)
	}

	switch len(matches) {
	case 0:
		return nil, nil
	case 1:
		return matches[0], nil
	default:
		lines := make([]string, len(matches))
		for i, m := range matches {
			lines[i] = fmt.Sprint(m.line)
		}
		return nil, fmt.Errorf("%w: %d rows match meeting %s at %s (lines %s)",
			ErrIntegrity, len(matches), id, s.reconciler.FormatLocal(start), strings.Join(lines, ", "))
	}
}

func matchesAll(s *Store, rec *record, criteria []Criterion) bool {
	for _, c := range criteria {
		if !c.matches(s.cell(rec, c.Column)) {
			return false
		}
	}
	return true
}

// FindMatch looks up the row for a meeting instance by normalized ID and start
// instant, narrowed by any extra criteria. More than one match is ErrIntegrity.
func (s *Store) FindMatch(meeting zoom.Meeting, criteria ...Criterion) (Row, bool, error) {
	rec, err := s.find(meeting, criteria...)
	if err != nil || rec == nil {
		return Row{}, false, err
	}
	return s.rowCopy(rec), true, nil
}

// Metadata returns the matched row for naming, or false when the meeting has none
func (s *Store) Metadata(meeting zoom.Meeting) (Row, bool, error) {
	return s.FindMatch(meeting)
}

// IsAlreadyDownloaded reports whether the meeting's row is marked downloaded
func (s *Store) IsAlreadyDownloaded(meeting zoom.Meeting) (bool, error) {
	rec, err := s.find(meeting)
	if err != nil || rec == nil {
		return false, err
	}
	return strings.EqualFold(strings.TrimSpace(s.cell(rec, ColumnDownloaded)), StatusYes), nil
}

// IsMarkedForDeletion reports whether the meeting's row has action Delete
func (s *Store) IsMarkedForDeletion(meeting zoom.Meeting) (bool, error) {
	rec, err := s.find(meeting)
	if err != nil || rec == nil {
		return false, err
	}
	return actionIs(s.cell(rec, ColumnAction), ActionDelete), nil
}

// ShouldIgnore reports whether the meeting must be skipped and why: it has no
// row, its action is Delete or Ignore, or it is already downloaded.
func (s *Store) ShouldIgnore(meeting zoom.Meeting) (bool, string, error) {
	rec, err := s.find(meeting)
	if err != nil {
		return false, "", err
	}
	if rec == nil {
		return true, "no ledger metadata", nil
	}
	action := s.cell(rec, ColumnAction)
	if isInactive(action) {
		return true, fmt.Sprintf("ledger action %s", strings.TrimSpace(action)), nil
	}
	if strings.EqualFold(strings.TrimSpace(s.cell(rec, ColumnDownloaded)), StatusYes) {
		return true, "already downloaded", nil
	}
	return false, "", nil
}

// MarkDownloaded records a completed meeting. The extension is stripped from filename.
func (s *Store) MarkDownloaded(meeting zoom.Meeting, folder, filename string) error {
	rec, err := s.find(meeting)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("%w: %d at %s", ErrNoMatch, meeting.ID, meeting.StartTime)
	}

	base := filepath.Base(filename)
	base = strings.TrimSuffix(base, filepath.Ext(base))

	s.setCell(rec, ColumnDownloaded, StatusYes)
	s.setCell(rec, ColumnFolderName, folder)
	s.setCell(rec, ColumnFileName, base)
	return nil
}

// Dirty reports whether any row changed since load
func (s *Store) Dirty() bool {
	for _, rec := range s.doc.rows {
		if rec.dirty {
			return true
		}
	}
	return false
}

// Persist writes the table back to its file through a temp file and rename
func (s *Store) Persist() error {
	var buf bytes.Buffer
	if err := s.doc.encode(&buf); err != nil {
		return fmt.Errorf("failed to encode ledger: %w", err)
	}

	if s.watcher != nil {
		if err := s.watcher.Check(); err != nil {
			return err
		}
		s.watcher.Expect(buf.Bytes())
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp ledger: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp ledger: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp ledger: %w", err)
	}
	if err := os.Chmod(tmpName, s.mode); err != nil {
		return fmt.Errorf("failed to set ledger mode: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace ledger: %w", err)
	}
	return nil
}

// Check scans the whole ledger for problems FindMatch would otherwise only hit
// when the affected meeting comes up, or never notice at all: unparseable start
// times, IDs not in spaced form, and rows sharing a meeting instance.
func (s *Store) Check() error {
	seen := make(map[string]int)
	var problems []string
	for _, rec := range s.doc.rows {
		id := strings.TrimSpace(s.cell(rec, ColumnID))
		raw := strings.TrimSpace(s.cell(rec, ColumnStartTime))
		if id == "" || raw == "" {
			continue
		}
		inactive := isInactive(s.cell(rec, ColumnAction))
		if !inactive && !meetingid.IsNormalized(id) {
			return fmt.Errorf("%w: line %d: ID %q is not in spaced form and never matches", ErrInvalidRow, rec.line, id)
		}
		local, err := s.reconciler.ParseLocal(raw)
		if err != nil {
			if inactive {
				continue
			}
			return fmt.Errorf("%w: line %d: %v", ErrInvalidRow, rec.line, err)
		}
		key := id + "|" + local.UTC().Format(time.RFC3339)
		if first, dup := seen[key]; dup {
			problems = append(problems, fmt.Sprintf("lines %d and %d both match %s at %s", first, rec.line, id, raw))
			continue
		}
		seen[key] = rec.line
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrIntegrity, strings.Join(problems, "; "))
	}
	return nil
}

// Close stops the watcher, if any
func (s *Store) Close() error {
	if s.watcher == nil {
		return nil
	}
	return s.watcher.Close()
}

// Columns returns the header names in file order
func (s *Store) Columns() []string {
	names := make([]string, 0, len(s.columns))
	for name := range s.columns {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return s.columns[names[i]] < s.columns[names[j]] })
	return names
}

func actionIs(cell, action string) bool {
	return strings.EqualFold(strings.TrimSpace(cell), action)
}

func isInactive(action string) bool {
	return actionIs(action, ActionDelete) || actionIs(action, ActionIgnore)
}
