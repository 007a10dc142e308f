package store_test

import (
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cellsentry/cellsentry/internal/diag"
	"github.com/cellsentry/cellsentry/internal/store"
)

func record(t *testing.T, s *store.Store, frames int) string {
	t.Helper()
	entry, err := s.NewEntry()
	require.NoError(t, err)
	for range frames {
		frame := diag.AppendFrame(nil, diag.DataTypeUserSpace, []byte{diag.KindCellInfo, 1})
		require.NoError(t, s.AppendCurrent(frame))
	}
	name, err := s.FinishCurrent()
	require.NoError(t, err)
	require.Equal(t, entry.Name, name)
	return name
}

func TestStoreLifecycle(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s, err := store.Open(dir)
	require.NoError(t, err)
	require.Empty(t, s.EntryNames())

	_, err = s.FinishCurrent()
	require.ErrorIs(t, err, store.ErrNoCurrentEntry)

	first := record(t, s, 2)
	second := record(t, s, 1)
	require.Equal(t, []string{first, second}, s.EntryNames())

	idx, ok := s.EntryForName(second)
	require.True(t, ok)
	require.Equal(t, 1, idx)
	_, ok = s.EntryForName("missing")
	require.False(t, ok)

	// manifest survives a restart
	reopened, err := store.Open(dir)
	require.NoError(t, err)
	require.Equal(t, []string{first, second}, reopened.EntryNames())
	entries := reopened.Entries()
	require.Len(t, entries, 2)
	require.NotZero(t, entries[0].Size)
	require.False(t, entries[0].Started.IsZero())
}

func TestStoreCurrentEntry(t *testing.T) {
	t.Parallel()

	s, err := store.Open(t.TempDir())
	require.NoError(t, err)

	_, ok := s.CurrentEntryName()
	require.False(t, ok)

	entry, err := s.NewEntry()
	require.NoError(t, err)
	current, ok := s.CurrentEntryName()
	require.True(t, ok)
	require.Equal(t, entry.Name, current)

	_, err = s.NewEntry()
	require.ErrorIs(t, err, store.ErrRecording)

	_, err = s.FinishCurrent()
	require.NoError(t, err)
	_, ok = s.CurrentEntryName()
	require.False(t, ok)
}

func TestOpenForAnalysis(t *testing.T) {
	t.Parallel()

	s, err := store.Open(t.TempDir())
	require.NoError(t, err)
	name := record(t, s, 3)

	_, _, _, err = s.OpenForAnalysis("missing")
	require.ErrorIs(t, err, store.ErrEntryNotFound)

	analysisFile, captureFile, size, err := s.OpenForAnalysis(name)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = captureFile.Close()
	})

	raw, err := io.ReadAll(captureFile)
	require.NoError(t, err)
	require.Equal(t, size, int64(len(raw)))
	require.NotZero(t, size)

	_, err = analysisFile.WriteString("stale result\n")
	require.NoError(t, err)
	require.NoError(t, analysisFile.Close())

	// a second acquisition truncates previous output
	analysisFile, captureFile, _, err = s.OpenForAnalysis(name)
	require.NoError(t, err)
	require.NoError(t, analysisFile.Close())
	require.NoError(t, captureFile.Close())
	content, err := os.ReadFile(s.AnalysisPath(name))
	require.NoError(t, err)
	require.Empty(t, content)
}
