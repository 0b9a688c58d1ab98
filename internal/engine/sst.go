package engine

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
)

// footerSize is the fixed 16-byte trailer: two little-endian u64 offsets
// (spec §4.2).
const footerSize = 8 + 8

// writeSSTable streams entries (already in ascending key order, I3) to a
// new immutable segment file at path. It builds the Bloom filter and
// sparse index in the same pass, per the writer procedure in spec §4.2:
// for each record, add its key to the filter; if its zero-based index is a
// multiple of sparseStride, emit a sparse-index entry at the record's
// current data-block offset; then append the record line. After the last
// record it writes the Bloom blob, then the sparse index, then the footer,
// and flushes before declaring success.
//
// Flushing an empty entry set is a no-op handled by the caller (spec §4.2
// "empty SSTables are not written").
func writeSSTable(path string, entries []entry, sparseStride int, bloomFPRate float64) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return ioErrorf("create sstable %q", path)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = ioErrorf("close sstable %q", path)
		}
	}()

	w := bufio.NewWriter(f)
	filter := NewBloom(len(entries), bloomFPRate)

	type sparseEntry struct {
		key    string
		offset uint64
	}
	var sparse []sparseEntry

	var offset uint64
	for i, e := range entries {
		if i > 0 && e.key <= entries[i-1].key {
			panicInvariant("sstable writer received non-ascending or duplicate keys: %q after %q", e.key, entries[i-1].key)
		}
		filter.Add(e.key)
		if i%sparseStride == 0 {
			sparse = append(sparse, sparseEntry{key: e.key, offset: offset})
		}

		line := dataLine(e)
		n, werr := w.WriteString(line)
		if werr != nil {
			return ioErrorf("write sstable record %q", e.key)
		}
		offset += uint64(n)
	}

	bloomOffset := offset
	blob := filter.Encode()
	n, werr := w.Write(blob)
	if werr != nil {
		return ioErrorf("write bloom blob")
	}
	offset += uint64(n)

	indexOffset := offset
	for _, se := range sparse {
		line := se.key + "," + strconv.FormatUint(se.offset, 10) + "\n"
		n, werr := w.WriteString(line)
		if werr != nil {
			return ioErrorf("write sparse index entry")
		}
		offset += uint64(n)
	}

	var footer [footerSize]byte
	binary.LittleEndian.PutUint64(footer[0:8], bloomOffset)
	binary.LittleEndian.PutUint64(footer[8:16], indexOffset)
	if _, werr := w.Write(footer[:]); werr != nil {
		return ioErrorf("write sstable footer")
	}

	if werr := w.Flush(); werr != nil {
		return ioErrorf("flush sstable %q", path)
	}
	return f.Sync()
}

// dataLine renders one record as its on-disk line: "key,value\n" for a
// live record, "key,TOMBSTONE\n" for a tombstone.
func dataLine(e entry) string {
	if e.tombstone {
		return e.key + "," + tombstoneMarker + "\n"
	}
	return e.key + "," + e.value + "\n"
}

// sstableLookup implements the reader procedure of spec §4.2: read the
// footer, consult the Bloom filter, then the sparse index, then scan at
// most sparseStride records from the located offset. scanned, if non-nil,
// is incremented for every record examined in the bounded scan — an
// instrumentation hook so tests can assert a Bloom negative short-circuits
// before any data-block scan (spec §8 scenario 6).
func sstableLookup(path, key string, scanned *int) (value string, tombstone bool, found bool, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", false, false, ioErrorf("open sstable %q", path)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return "", false, false, ioErrorf("stat sstable %q", path)
	}
	size := stat.Size()
	if size < footerSize {
		return "", false, false, corruptionErrorf("sstable %q shorter than footer", path)
	}

	var footer [footerSize]byte
	if _, err := f.ReadAt(footer[:], size-footerSize); err != nil {
		return "", false, false, corruptionErrorf("sstable %q footer unreadable", path)
	}
	bloomOffset := binary.LittleEndian.Uint64(footer[0:8])
	indexOffset := binary.LittleEndian.Uint64(footer[8:16])
	if bloomOffset > indexOffset || int64(indexOffset) > size-footerSize {
		return "", false, false, corruptionErrorf("sstable %q footer offsets out of range", path)
	}

	bloomBlob := make([]byte, indexOffset-bloomOffset)
	if _, err := f.ReadAt(bloomBlob, int64(bloomOffset)); err != nil {
		return "", false, false, corruptionErrorf("sstable %q bloom blob unreadable", path)
	}
	filter, err := DecodeBloom(bloomBlob)
	if err != nil {
		return "", false, false, err
	}
	if !filter.Contains(key) {
		return "", false, false, nil
	}

	indexBlob := make([]byte, (size-footerSize)-int64(indexOffset))
	if _, err := f.ReadAt(indexBlob, int64(indexOffset)); err != nil {
		return "", false, false, corruptionErrorf("sstable %q sparse index unreadable", path)
	}
	startOffset := findStartOffset(indexBlob, key)

	if _, err := f.Seek(int64(startOffset), io.SeekStart); err != nil {
		return "", false, false, ioErrorf("seek sstable %q", path)
	}
	r := bufio.NewReader(io.LimitReader(f, int64(bloomOffset)-int64(startOffset)))

	for {
		line, rerr := r.ReadString('\n')
		if line == "" && rerr != nil {
			break
		}
		line = strings.TrimSuffix(line, "\n")
		if line == "" {
			if rerr != nil {
				break
			}
			continue
		}
		if scanned != nil {
			*scanned++
		}

		k, v, ok := strings.Cut(line, ",")
		if !ok {
			return "", false, false, corruptionErrorf("sstable %q has a malformed data record", path)
		}
		if k == key {
			if v == tombstoneMarker {
				return "", true, true, nil
			}
			return v, false, true, nil
		}
		if k > key {
			break
		}
		if rerr != nil {
			break
		}
	}

	return "", false, false, nil
}

// findStartOffset returns the greatest sparse-index offset whose key is
// <= target, or 0 if none qualifies (the first record's key is always
// indexed, I5, so 0 is always a valid fallback).
func findStartOffset(indexBlob []byte, target string) uint64 {
	var best uint64
	for _, line := range strings.Split(strings.TrimSuffix(string(indexBlob), "\n"), "\n") {
		if line == "" {
			continue
		}
		k, offStr, ok := strings.Cut(line, ",")
		if !ok {
			continue
		}
		if k > target {
			continue
		}
		off, err := strconv.ParseUint(offStr, 10, 64)
		if err != nil {
			continue
		}
		if off > best {
			best = off
		}
	}
	return best
}

// readAllSSTable reads every live and tombstone record out of an SSTable,
// in ascending key order, for compaction's merge pass.
func readAllSSTable(path string) ([]entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, ioErrorf("open sstable %q", path)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, ioErrorf("stat sstable %q", path)
	}
	size := stat.Size()
	if size < footerSize {
		return nil, corruptionErrorf("sstable %q shorter than footer", path)
	}

	var footer [footerSize]byte
	if _, err := f.ReadAt(footer[:], size-footerSize); err != nil {
		return nil, corruptionErrorf("sstable %q footer unreadable", path)
	}
	bloomOffset := binary.LittleEndian.Uint64(footer[0:8])

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, ioErrorf("seek sstable %q", path)
	}
	r := bufio.NewReader(io.LimitReader(f, int64(bloomOffset)))

	var out []entry
	for {
		line, rerr := r.ReadString('\n')
		line = strings.TrimSuffix(line, "\n")
		if line != "" {
			k, v, ok := strings.Cut(line, ",")
			if !ok {
				return nil, corruptionErrorf("sstable %q has a malformed data record", path)
			}
			if v == tombstoneMarker {
				out = append(out, entry{key: k, tombstone: true})
			} else {
				out = append(out, entry{key: k, value: v})
			}
		}
		if rerr != nil {
			break
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].key < out[j].key })
	return out, nil
}
