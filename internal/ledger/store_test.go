package ledger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/curtbushko/zoom-recording-downloader/internal/zoom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	pacific = "America/Los_Angeles"
	header  = "ID,Start_Time,Author,Book_Title,Language,Book_ID,Chapters,Group_ID,Action,Downloaded,Folder_Name,File_Name,File_Size_MB"
)

func writeLedger(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o640))
	return path
}

func lines(eol string, ls ...string) string {
	return strings.Join(ls, eol) + eol
}

func meeting(id int64, start string) zoom.Meeting {
	return zoom.Meeting{ID: id, StartTime: start, Topic: "Chapter"}
}

func TestLoadPersistRoundTripIsByteIdentical(t *testing.T) {
	tests := map[string]string{
		"lf": lines("\n",
			header,
			`816 7927 0835,06/11/2022 10:52:43,"Smith, Jane",Book One,en,0012,3,G1,,,,,"1.50"`,
			`890 2076 3746,07/11/2022 09:00:00,Lee,"Book ""Two""",fr,0013,4,G2,Delete,,,,2.00`,
		),
		"crlf with bom and blank lines": "\xEF\xBB\xBF" + lines("\r\n",
			header,
			"",
			`816 7927 0835,06/11/2022 10:52:43,"Multi`+"\r\n"+`Line",Book One,en,0012,3,G1,,YES,folder,clip,1.5`,
			"",
			"",
			`111 2222 3333,,,,,,,,Ignore,,,,`,
			"",
		),
		"no trailing newline": header + "\n" + `816 7927 0835,06/11/2022 10:52:43,A,B,en,1,1,G,,,,,0`,
		"short and long rows": lines("\n",
			header,
			`816 7927 0835,06/11/2022 10:52:43,A,B,en,1,1,G`,
			`890 207 6374,06/11/2022 11:00:00,A,B,en,1,1,G,,,,,0,extra,cells`,
		),
	}

	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			path := writeLedger(t, content)
			store, err := Load(path, Options{Timezone: pacific})
			require.NoError(t, err)
			require.NoError(t, store.Persist())

			got, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, content, string(got))
		})
	}
}

func TestPersistKeepsFileMode(t *testing.T) {
	path := writeLedger(t, lines("\n", header, `816 7927 0835,06/11/2022 10:52:43,A,B,en,1,1,G,,,,,0`))
	store, err := Load(path, Options{Timezone: pacific})
	require.NoError(t, err)
	require.NoError(t, store.Persist())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o640), info.Mode().Perm())
}

func TestFindMatchReconcilesInstants(t *testing.T) {
	path := writeLedger(t, lines("\n",
		header,
		`816 7927 0835,06/11/2022 10:52:43,A,B,en,1,1,G1,,,,,0`,
		`816 7927 0835,15/07/2022 09:00:00,A,B,en,1,2,G1,,,,,0`,
		`890 207 6374,06/11/2022 10:52:43,A,B,en,1,3,G1,,,,,0`,
	))
	store, err := Load(path, Options{Timezone: pacific})
	require.NoError(t, err)

	row, ok, err := store.FindMatch(meeting(81679270835, "2022-11-06T18:52:43Z"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1", row.Get(ColumnChapters))
	assert.Equal(t, 2, row.Line)

	row, ok, err = store.FindMatch(meeting(81679270835, "2022-07-15T16:00:00Z"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2", row.Get(ColumnChapters))

	row, ok, err = store.FindMatch(meeting(8902076374, "2022-11-06T18:52:43Z"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "3", row.Get(ColumnChapters))

	_, ok, err = store.FindMatch(meeting(81679270835, "2022-11-06T10:52:43Z"))
	require.NoError(t, err)
	assert.False(t, ok, "formatted strings are equal but instants differ")
}

func TestFindMatchUniquenessViolation(t *testing.T) {
	path := writeLedger(t, lines("\n",
		header,
		`816 7927 0835,06/11/2022 10:52:43,A,B,en,1,1,G1,,,,,0`,
		`816 7927 0835,6/11/2022 10:52:43,A,B,en,1,1,G2,,,,,0`,
	))
	store, err := Load(path, Options{Timezone: pacific})
	require.NoError(t, err)

	m := meeting(81679270835, "2022-11-06T18:52:43Z")
	_, _, err = store.FindMatch(m)
	require.ErrorIs(t, err, ErrIntegrity)
	assert.Contains(t, err.Error(), "lines 2, 3")
	assert.Contains(t, err.Error(), "at 06/11/2022 10:52:43")

	_, err = store.IsAlreadyDownloaded(m)
	assert.ErrorIs(t, err, ErrIntegrity)
	_, _, err = store.ShouldIgnore(m)
	assert.ErrorIs(t, err, ErrIntegrity)
	assert.ErrorIs(t, store.MarkDownloaded(m, "f", "clip.mp4"), ErrIntegrity)
}

func TestFindMatchCriteria(t *testing.T) {
	path := writeLedger(t, lines("\n",
		header,
		`816 7927 0835,06/11/2022 10:52:43,A,B,en,1,1,G1,,,,,0`,
		`816 7927 0835,06/11/2022 10:52:43,A,B,en,1,2,G2,,,,,0`,
	))
	store, err := Load(path, Options{Timezone: pacific})
	require.NoError(t, err)
	m := meeting(81679270835, "2022-11-06T18:52:43Z")

	row, ok, err := store.FindMatch(m, Eq(ColumnGroupID, "G1"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1", row.Get(ColumnChapters))

	row, ok, err = store.FindMatch(m, In(ColumnGroupID, "G2", "G3"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2", row.Get(ColumnChapters))

	_, _, err = store.FindMatch(m, In(ColumnGroupID, "G1", "G2"))
	assert.ErrorIs(t, err, ErrIntegrity)

	_, ok, err = store.FindMatch(m, Eq(ColumnGroupID, "G9"))
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = store.FindMatch(m, Eq("Nope", "x"))
	assert.ErrorIs(t, err, ErrUnknownColumn)
}

func TestMarkThenFind(t *testing.T) {
	content := lines("\r\n",
		header,
		`816 7927 0835,06/11/2022 10:52:43,"Smith, Jane",B,en,1,1,G1,,,,,"1.50"`,
		`890 2076 3746,07/11/2022 09:00:00,Lee,B,fr,2,4,G2,,,,,2.00`,
	)
	path := writeLedger(t, content)
	store, err := Load(path, Options{Timezone: pacific})
	require.NoError(t, err)

	m := meeting(81679270835, "2022-11-06T18:52:43Z")
	done, err := store.IsAlreadyDownloaded(m)
	require.NoError(t, err)
	require.False(t, done)

	require.NoError(t, store.MarkDownloaded(m, "Smith-Book", "clip.mp4"))
	assert.True(t, store.Dirty())

	done, err = store.IsAlreadyDownloaded(m)
	require.NoError(t, err)
	assert.True(t, done)

	row, ok, err := store.FindMatch(m)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "clip", row.Get(ColumnFileName))
	assert.Equal(t, "Smith-Book", row.Get(ColumnFolderName))
	assert.Equal(t, StatusYes, row.Get(ColumnDownloaded))

	require.NoError(t, store.Persist())
	got, err := os.ReadFile(path)
	require.NoError(t, err)

	want := lines("\r\n",
		header,
		`816 7927 0835,06/11/2022 10:52:43,"Smith, Jane",B,en,1,1,G1,,YES,Smith-Book,clip,"1.50"`,
		`890 2076 3746,07/11/2022 09:00:00,Lee,B,fr,2,4,G2,,,,,2.00`,
	)
	assert.Equal(t, want, string(got))

	reloaded, err := Load(path, Options{Timezone: pacific})
	require.NoError(t, err)
	done, err = reloaded.IsAlreadyDownloaded(m)
	require.NoError(t, err)
	assert.True(t, done)
}

func TestMarkDownloadedKeepsUntouchedCellBytes(t *testing.T) {
	tests := map[string]struct {
		content string
		folder  string
		want    string
	}{
		"quoted author": {
			content: lines("\n", header, `816 7927 0835,06/11/2022 10:52:43,"Jane",B,en,1,1,G1,,,,,0`),
			folder:  "Jane/B",
			want:    lines("\n", header, `816 7927 0835,06/11/2022 10:52:43,"Jane",B,en,1,1,G1,,YES,Jane/B,clip,0`),
		},
		"quoted cells around changed ones": {
			content: lines("\r\n", header, `816 7927 0835,06/11/2022 10:52:43,A,"B ""One""",en,1,1,"G1","",,"old","",`+`"2.0"`),
			folder:  "A, B",
			want:    lines("\r\n", header, `816 7927 0835,06/11/2022 10:52:43,A,"B ""One""",en,1,1,"G1","",YES,"A, B",clip,"2.0"`),
		},
		"multi-line cell without trailing newline": {
			content: header + "\r\n" + `816 7927 0835,06/11/2022 10:52:43,"Multi` + "\r\n" + `Line",B,en,1,1,G1,,,,,0`,
			folder:  "f",
			want:    header + "\r\n" + `816 7927 0835,06/11/2022 10:52:43,"Multi` + "\r\n" + `Line",B,en,1,1,G1,,YES,f,clip,0`,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			path := writeLedger(t, tt.content)
			store, err := Load(path, Options{Timezone: pacific})
			require.NoError(t, err)

			require.NoError(t, store.MarkDownloaded(meeting(81679270835, "2022-11-06T18:52:43Z"), tt.folder, "clip.mp4"))
			require.NoError(t, store.Persist())

			got, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestMarkDownloadedWithoutRow(t *testing.T) {
	path := writeLedger(t, lines("\n", header, `816 7927 0835,06/11/2022 10:52:43,A,B,en,1,1,G1,,,,,0`))
	store, err := Load(path, Options{Timezone: pacific})
	require.NoError(t, err)

	err = store.MarkDownloaded(meeting(81679270835, "2023-01-01T00:00:00Z"), "f", "clip.mp4")
	assert.ErrorIs(t, err, ErrNoMatch)
	assert.False(t, store.Dirty())
}

func TestShouldIgnore(t *testing.T) {
	path := writeLedger(t, lines("\n",
		header,
		`816 7927 0835,06/11/2022 10:52:43,A,B,en,1,1,G1,,,,,0`,
		`816 7927 0835,07/11/2022 10:52:43,A,B,en,1,1,G1,delete,,,,0`,
		`816 7927 0835,08/11/2022 10:52:43,A,B,en,1,1,G1,Ignore,,,,0`,
		`816 7927 0835,09/11/2022 10:52:43,A,B,en,1,1,G1,,YES,f,n,0`,
	))
	store, err := Load(path, Options{Timezone: pacific})
	require.NoError(t, err)

	tests := []struct {
		start  string
		ignore bool
		reason string
	}{
		{"2022-11-06T18:52:43Z", false, ""},
		{"2022-11-07T18:52:43Z", true, "ledger action delete"},
		{"2022-11-08T18:52:43Z", true, "ledger action Ignore"},
		{"2022-11-09T18:52:43Z", true, "already downloaded"},
		{"2022-11-10T18:52:43Z", true, "no ledger metadata"},
	}
	for _, tt := range tests {
		t.Run(tt.start, func(t *testing.T) {
			ignore, reason, err := store.ShouldIgnore(meeting(81679270835, tt.start))
			require.NoError(t, err)
			assert.Equal(t, tt.ignore, ignore)
			assert.Equal(t, tt.reason, reason)
		})
	}

	marked, err := store.IsMarkedForDeletion(meeting(81679270835, "2022-11-07T18:52:43Z"))
	require.NoError(t, err)
	assert.True(t, marked)
}

func TestLoadFailures(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.csv"), Options{})
		assert.ErrorIs(t, err, ErrLedgerUnavailable)
	})

	t.Run("empty file", func(t *testing.T) {
		_, err := Load(writeLedger(t, "\n\n"), Options{})
		assert.ErrorIs(t, err, ErrLedgerUnavailable)
	})

	t.Run("malformed quoting", func(t *testing.T) {
		_, err := Load(writeLedger(t, lines("\n", header, `816 7927 0835,"unterminated`)), Options{})
		assert.ErrorIs(t, err, ErrLedgerUnavailable)
	})

	t.Run("missing column", func(t *testing.T) {
		_, err := Load(writeLedger(t, "ID,Start_Time,Author\n"), Options{})
		require.ErrorIs(t, err, ErrMissingColumn)
		assert.Contains(t, err.Error(), "Book_Title")
	})

	t.Run("invalid row", func(t *testing.T) {
		_, err := Load(writeLedger(t, lines("\n",
			header,
			`816 7927 0835,06/11/2022 10:52:43,,B,en,1,1,G1,,,,,0`,
			`111 2222 3333,,,,,,,,Ignore,,,,`,
			`,,,,,,,,,,,,`,
			`890 2076 3746,07/11/2022 09:00:00,A,B,,1,,G2,,,,,0`,
		)), Options{})
		require.ErrorIs(t, err, ErrInvalidRow)
		assert.Contains(t, err.Error(), "line 2: empty Author")
		assert.Contains(t, err.Error(), "line 5: empty Language, Chapters")
		assert.NotContains(t, err.Error(), "line 3")
	})

	t.Run("bad timezone", func(t *testing.T) {
		_, err := Load(writeLedger(t, header+"\n"), Options{Timezone: "Mars/Olympus"})
		assert.Error(t, err)
	})
}

func TestUnparseableStartTimeIsReported(t *testing.T) {
	path := writeLedger(t, lines("\n", header, `816 7927 0835,2022-11-06 10:52,A,B,en,1,1,G1,,,,,0`))
	store, err := Load(path, Options{Timezone: pacific})
	require.NoError(t, err)

	_, _, err = store.FindMatch(meeting(81679270835, "2022-11-06T18:52:43Z"))
	assert.ErrorIs(t, err, ErrInvalidRow)
}

func TestInactiveRowWithUnparseableStartTimeIsSkipped(t *testing.T) {
	path := writeLedger(t, lines("\n",
		header,
		`816 7927 0835,TBD,A,B,en,1,1,G1,Delete,,,,0`,
		`816 7927 0835,06/11/2022 10:52:43,A,B,en,1,1,G1,,,,,0`,
		`890 2076 3746,later,,,,,,,Ignore,,,,`,
	))
	store, err := Load(path, Options{Timezone: pacific})
	require.NoError(t, err)

	row, ok, err := store.FindMatch(meeting(81679270835, "2022-11-06T18:52:43Z"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 3, row.Line)

	ignore, reason, err := store.ShouldIgnore(meeting(89020763746, "2022-11-07T17:00:00Z"))
	require.NoError(t, err)
	assert.True(t, ignore)
	assert.Equal(t, "no ledger metadata", reason)

	assert.NoError(t, store.Check())
}

func TestColumns(t *testing.T) {
	store, err := Load(writeLedger(t, header+"\n"), Options{})
	require.NoError(t, err)
	assert.Equal(t, strings.Split(header, ","), store.Columns())
	assert.Equal(t, 0, store.Len())
}

func TestCheck(t *testing.T) {
	clean := writeLedger(t, lines("\n",
		header,
		`816 7927 0835,06/11/2022 10:52:43,A,B,en,1,1,G1,,,,,0`,
		`816 7927 0835,07/11/2022 10:52:43,A,B,en,1,2,G1,Delete,,,,0`,
		`,,,,,,,,,,,,`,
	))
	store, err := Load(clean, Options{Timezone: pacific})
	require.NoError(t, err)
	assert.NoError(t, store.Check())

	dup := writeLedger(t, lines("\n",
		header,
		`816 7927 0835,06/11/2022 10:52:43,A,B,en,1,1,G1,,,,,0`,
		`816 7927 0835,6/11/2022 10:52:43,A,B,en,1,1,G2,,,,,0`,
	))
	store, err = Load(dup, Options{Timezone: pacific})
	require.NoError(t, err)
	err = store.Check()
	require.ErrorIs(t, err, ErrIntegrity)
	assert.Contains(t, err.Error(), "lines 2 and 3")

	bad := writeLedger(t, lines("\n", header, `816 7927 0835,2022-11-06 10:52,A,B,en,1,1,G1,,,,,0`))
	store, err = Load(bad, Options{Timezone: pacific})
	require.NoError(t, err)
	assert.ErrorIs(t, store.Check(), ErrInvalidRow)

	unspaced := writeLedger(t, lines("\n",
		header,
		`81679270835,06/11/2022 10:52:43,A,B,en,1,1,G1,,,,,0`,
	))
	store, err = Load(unspaced, Options{Timezone: pacific})
	require.NoError(t, err)
	err = store.Check()
	require.ErrorIs(t, err, ErrInvalidRow)
	assert.Contains(t, err.Error(), "line 2")

	ignored := writeLedger(t, lines("\n",
		header,
		`81679270835,06/11/2022 10:52:43,A,B,en,1,1,G1,Ignore,,,,0`,
	))
	store, err = Load(ignored, Options{Timezone: pacific})
	require.NoError(t, err)
	assert.NoError(t, store.Check())
}
