// Package strategy selects how meetings are filtered, named and recorded.
// The set of strategies is closed: Default and Ledger.
package strategy

import (
	"fmt"

	"github.com/curtbushko/zoom-recording-downloader/internal/filter"
	"github.com/curtbushko/zoom-recording-downloader/internal/ledger"
	"github.com/curtbushko/zoom-recording-downloader/internal/naming"
	"github.com/curtbushko/zoom-recording-downloader/internal/zoom"
)

// Kind names a strategy in configuration
type Kind string

const (
	KindDefault Kind = "default"
	KindLedger  Kind = "ledger"
)

// ParseKind validates a configured strategy name. Empty selects the default.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case "", KindDefault:
		return KindDefault, nil
	case KindLedger:
		return KindLedger, nil
	default:
		return "", fmt.Errorf("unknown naming strategy %q (want %q or %q)", s, KindDefault, KindLedger)
	}
}

// Strategy is what the retrieval controller asks about users and meetings
type Strategy interface {
	Kind() Kind

	// ShouldIgnoreUser applies the email filters
	ShouldIgnoreUser(email string) bool

	// ShouldIgnoreMeeting applies the topic filters and, for the ledger strategy,
	// the ledger's skip rules. Ledger integrity errors are returned, never swallowed.
	ShouldIgnoreMeeting(meeting zoom.Meeting) (bool, string, error)

	// Names renders the destination folder and file name of one file
	Names(meeting zoom.Meeting, file zoom.RecordingFile) (string, string, error)

	// RecordCompletion is called once every eligible file of a meeting is on disk
	RecordCompletion(meeting zoom.Meeting, folder, filename string) error

	// Persist flushes recorded completions
	Persist() error
}

// Default filters by the configured patterns and names files from meeting data only
type Default struct {
	filters  *filter.Set
	renderer *naming.Renderer
}

// NewDefault creates the default strategy
func NewDefault(filters *filter.Set, renderer *naming.Renderer) *Default {
	return &Default{filters: filters, renderer: renderer}
}

func (d *Default) Kind() Kind { return KindDefault }

func (d *Default) ShouldIgnoreUser(email string) bool {
	return d.filters.ShouldIgnoreUser(email)
}

func (d *Default) ShouldIgnoreMeeting(meeting zoom.Meeting) (bool, string, error) {
	if d.filters.ShouldIgnoreTopic(meeting.Topic) {
		return true, "topic filtered", nil
	}
	return false, "", nil
}

func (d *Default) Names(meeting zoom.Meeting, file zoom.RecordingFile) (string, string, error) {
	return d.renderer.Render(meeting, file, nil)
}

func (d *Default) RecordCompletion(zoom.Meeting, string, string) error { return nil }

func (d *Default) Persist() error { return nil }

// Ledger consults the metadata ledger for skip decisions and naming fields and
// records completed meetings in it
type Ledger struct {
	Default
	store   *ledger.Store
	pending bool
}

// NewLedger creates the ledger strategy over a loaded store
func NewLedger(filters *filter.Set, renderer *naming.Renderer, store *ledger.Store) *Ledger {
	return &Ledger{Default: Default{filters: filters, renderer: renderer}, store: store}
}

func (l *Ledger) Kind() Kind { return KindLedger }

func (l *Ledger) ShouldIgnoreMeeting(meeting zoom.Meeting) (bool, string, error) {
	if ignore, reason, _ := l.Default.ShouldIgnoreMeeting(meeting); ignore {
		return true, reason, nil
	}
	return l.store.ShouldIgnore(meeting)
}

func (l *Ledger) Names(meeting zoom.Meeting, file zoom.RecordingFile) (string, string, error) {
	row, ok, err := l.store.Metadata(meeting)
	if err != nil {
		return "", "", err
	}
	var meta *naming.Metadata
	if ok {
		meta = &naming.Metadata{
			Author:    row.Get(ledger.ColumnAuthor),
			BookTitle: row.Get(ledger.ColumnBookTitle),
			Chapters:  row.Get(ledger.ColumnChapters),
			Language:  row.Get(ledger.ColumnLanguage),
			GroupID:   row.Get(ledger.ColumnGroupID),
			BookID:    row.Get(ledger.ColumnBookID),
		}
	}
	return l.renderer.Render(meeting, file, meta)
}

func (l *Ledger) RecordCompletion(meeting zoom.Meeting, folder, filename string) error {
	if err := l.store.MarkDownloaded(meeting, folder, filename); err != nil {
		return err
	}
	l.pending = true
	return nil
}

// Persist writes the ledger when completions were recorded since the last write
func (l *Ledger) Persist() error {
	if !l.pending {
		return nil
	}
	if err := l.store.Persist(); err != nil {
		return err
	}
	l.pending = false
	return nil
}
