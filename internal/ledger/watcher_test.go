package ledger

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPersistRefusesAfterExternalEdit(t *testing.T) {
	path := writeLedger(t, lines("\n", header, `816 7927 0835,06/11/2022 10:52:43,A,B,en,1,1,G1,,,,,0`))
	store, err := Load(path, Options{Timezone: pacific, Watch: true})
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.MarkDownloaded(meeting(81679270835, "2022-11-06T18:52:43Z"), "f", "clip.mp4"))

	edited := lines("\n", header, `816 7927 0835,06/11/2022 10:52:43,A,B,en,1,9,G1,,,,,0`)
	require.NoError(t, os.WriteFile(path, []byte(edited), 0o640))

	assert.ErrorIs(t, store.Persist(), ErrModifiedExternally)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, edited, string(got), "hand edit must survive")
}

func TestPersistRepeatedlyWithWatcher(t *testing.T) {
	path := writeLedger(t, lines("\n",
		header,
		`816 7927 0835,06/11/2022 10:52:43,A,B,en,1,1,G1,,,,,0`,
		`816 7927 0835,07/11/2022 10:52:43,A,B,en,1,2,G1,,,,,0`,
	))
	store, err := Load(path, Options{Timezone: pacific, Watch: true})
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.MarkDownloaded(meeting(81679270835, "2022-11-06T18:52:43Z"), "f", "one.mp4"))
	require.NoError(t, store.Persist())
	require.NoError(t, store.MarkDownloaded(meeting(81679270835, "2022-11-07T18:52:43Z"), "f", "two.mp4"))
	require.NoError(t, store.Persist())
	require.NoError(t, store.Persist())
}

func TestWatcherCheck(t *testing.T) {
	path := writeLedger(t, "a\n")
	w, err := NewWatcher(path, []byte("a\n"))
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.Check())

	// replace atomically as Persist does so no half-written state is observed
	w.Expect([]byte("b\n"))
	tmp := path + ".tmp"
	require.NoError(t, os.WriteFile(tmp, []byte("b\n"), 0o640))
	require.NoError(t, os.Rename(tmp, path))
	require.NoError(t, w.Check())

	require.NoError(t, os.Remove(path))
	assert.ErrorIs(t, w.Check(), ErrModifiedExternally)
}
