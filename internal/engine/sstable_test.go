package engine

import (
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestFlushRoundTrip is property P8: flushing a set of entries and reading
// the resulting SSTable back key-by-key reproduces the input.
func TestFlushRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "1.sstable")

	entries := []entry{
		{key: "a", value: "1"},
		{key: "b", tombstone: true},
		{key: "c", value: "3"},
		{key: "d", value: "4"},
		{key: "e", value: "5"},
	}
	require.NoError(t, writeSSTable(path, entries, 2, 0.01))

	for _, want := range entries {
		value, tombstone, found, err := sstableLookup(path, want.key, nil)
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, want.tombstone, tombstone)
		if !want.tombstone {
			require.Equal(t, want.value, value)
		}
	}

	read, err := readAllSSTable(path)
	require.NoError(t, err)
	require.Equal(t, entries, read)
}

// TestSparseIndexCompleteness is property P5: for every key actually
// present in an SSTable, the reader locates it, regardless of the sparse
// stride chosen.
func TestSparseIndexCompleteness(t *testing.T) {
	dir := t.TempDir()

	var entries []entry
	for i := 0; i < 97; i++ {
		entries = append(entries, entry{key: paddedKey(i), value: "v" + strconv.Itoa(i)})
	}

	for _, stride := range []int{1, 3, 10, 50, 1000} {
		path := filepath.Join(dir, strconv.Itoa(stride)+".sstable")
		require.NoError(t, writeSSTable(path, entries, stride, 0.01))

		for _, e := range entries {
			value, tombstone, found, err := sstableLookup(path, e.key, nil)
			require.NoError(t, err, "stride=%d key=%s", stride, e.key)
			require.True(t, found, "stride=%d key=%s", stride, e.key)
			require.False(t, tombstone)
			require.Equal(t, e.value, value)
		}
	}
}

// TestBloomNegativeSkipsDataBlockScan is spec §8 scenario 6: a Bloom
// negative must short-circuit before any record in the data block is
// examined.
func TestBloomNegativeSkipsDataBlockScan(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "1.sstable")

	var entries []entry
	for c := 'a'; c <= 'j'; c++ {
		entries = append(entries, entry{key: string(c), value: "v"})
	}
	require.NoError(t, writeSSTable(path, entries, 10, 0.001))

	var scanned int
	_, _, found, err := sstableLookup(path, "zzzz-definitely-absent", &scanned)
	require.NoError(t, err)
	require.False(t, found)
	require.Equal(t, 0, scanned, "a bloom negative must not scan any data-block record")
}

// TestScanIsBoundedBySparseStride checks that a present-key lookup never
// examines more than the sparse stride's worth of records.
func TestScanIsBoundedBySparseStride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "1.sstable")

	const stride = 10
	var entries []entry
	for i := 0; i < 250; i++ {
		entries = append(entries, entry{key: paddedKey(i), value: "v"})
	}
	require.NoError(t, writeSSTable(path, entries, stride, 0.01))

	var scanned int
	_, _, found, err := sstableLookup(path, paddedKey(123), &scanned)
	require.NoError(t, err)
	require.True(t, found)
	require.LessOrEqual(t, scanned, stride)
}

func TestExplicitEmptySSTableWriteIsReadable(t *testing.T) {
	// The engine is responsible for skipping the write call entirely when
	// there is nothing to flush (spec §4.2); writeSSTable itself is only
	// ever called with a non-empty entry set in the engine's flush/compact
	// paths. Document that an explicit empty write still produces a valid,
	// if useless, file (an empty Bloom blob plus the footer) rather than
	// corrupting anything.
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.sstable")
	require.NoError(t, writeSSTable(path, nil, 10, 0.01))

	_, _, found, err := sstableLookup(path, "anything", nil)
	require.NoError(t, err)
	require.False(t, found)
}

// TestWriteSSTablePanicsOnOutOfOrderKeys guards I3 as a runtime-checked
// internal invariant (spec §7 "Internal"): the writer never silently
// accepts an unsorted or duplicate-key input, since that would mean a bug
// upstream in sortedEntries/mergeSSTables, not a recoverable per-operation
// error.
func TestWriteSSTablePanicsOnOutOfOrderKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.sstable")

	entries := []entry{
		{key: "b", value: "1"},
		{key: "a", value: "2"},
	}
	require.Panics(t, func() {
		_ = writeSSTable(path, entries, 2, 0.01)
	})
}

func paddedKey(i int) string {
	s := strconv.Itoa(i)
	for len(s) < 5 {
		s = "0" + s
	}
	return "key-" + s
}
