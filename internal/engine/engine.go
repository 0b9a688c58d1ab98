// Package engine implements ZenithDB's log-structured storage core: a
// write-ahead log, an in-memory MemTable, a sequence of immutable SSTable
// segments with Bloom filters and sparse indices, and the Engine that
// orchestrates them. Everything outside this package — the TCP accept
// loop, line framing, command parsing, and response formatting — is a
// thin adapter that talks to Engine's public methods only.
package engine

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Default tuning constants. The source this package is modeled on used a
// MemTable threshold of 5 entries for demonstration purposes; spec §9
// calls that out as unrealistic and asks for a configurable, more
// production-shaped default.
const (
	DefaultMemTableThreshold      = 10000
	DefaultSparseStride           = 10
	DefaultBloomFalsePositiveRate = 0.01
)

// Config controls engine tuning. Zero-value fields are replaced with
// defaults by Open.
type Config struct {
	// DataDir holds the WAL and all SSTable segments.
	DataDir string

	// MemTableThreshold is the entry count (spec's "T") at which a write
	// that would push the MemTable to or past this size triggers a flush.
	MemTableThreshold int

	// SparseStride is the sparse-index stride (spec's "S"): one index
	// entry is emitted every SparseStride records.
	SparseStride int

	// BloomFalsePositiveRate is the target false-positive rate "p" used
	// to size each SSTable's Bloom filter (spec §4.3).
	BloomFalsePositiveRate float64

	// Logger receives structured events for recovery, flush, and
	// compaction. A nil Logger is replaced with zap.NewNop().
	Logger *zap.Logger
}

func (c Config) withDefaults() Config {
	if c.MemTableThreshold <= 0 {
		c.MemTableThreshold = DefaultMemTableThreshold
	}
	if c.SparseStride <= 0 {
		c.SparseStride = DefaultSparseStride
	}
	if c.BloomFalsePositiveRate <= 0 {
		c.BloomFalsePositiveRate = DefaultBloomFalsePositiveRate
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

// Engine is the log-structured storage engine described in spec §4.1. Its
// only externally observable state is "open"; all sub-states (flush and
// compaction in progress) are internal and atomic with respect to other
// engine operations (spec §4.1's state machine note).
//
// Locking discipline (spec §5):
//   - memMu guards the MemTable: Get takes a read lock, Set/Delete/flush
//     take a write lock.
//   - registry guards its own file list with an independent reader/writer
//     lock (see registry.go); Get takes a read snapshot, flush and
//     compaction take the write lock only for the pointer swap.
//   - wal guards its own writer with an exclusive lock (see wal.go) that
//     is always acquired — and released — before memMu, never while only
//     a read lock is held.
type Engine struct {
	memMu    sync.RWMutex
	memtable *memTable

	registry *registry
	wal      *wal

	cfg Config
	log *zap.Logger
}

// Open creates or reopens an engine rooted at cfg.DataDir: it opens (or
// creates) the WAL, loads the existing SSTable registry, and replays the
// WAL into a fresh MemTable (crash recovery). A failure here is fatal to
// the caller (spec §7): the engine never opens in a partially-recovered
// state.
func Open(cfg Config) (*Engine, error) {
	cfg = cfg.withDefaults()
	if cfg.DataDir == "" {
		return nil, invalidInputf("DataDir must not be empty")
	}

	w, err := openWAL(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	reg, err := openRegistry(cfg.DataDir)
	if err != nil {
		_ = w.close()
		return nil, err
	}

	e := &Engine{
		memtable: newMemTable(),
		registry: reg,
		wal:      w,
		cfg:      cfg,
		log:      cfg.Logger,
	}

	if err := e.recover(); err != nil {
		_ = w.close()
		return nil, fmt.Errorf("recovery failed: %w", err)
	}

	e.log.Info("engine opened",
		zap.String("data_dir", cfg.DataDir),
		zap.Int("memtable_entries_recovered", e.memtable.len()),
		zap.Int("sstables", len(reg.snapshot())),
	)
	return e, nil
}

// recover replays the WAL into the (empty) MemTable, rebuilding in-memory
// state after a crash (I1, P7). It runs before the engine is handed to any
// caller, so it needs no locking.
func (e *Engine) recover() error {
	entries, err := e.wal.replay()
	if err != nil {
		return err
	}
	for _, en := range entries {
		if en.tombstone {
			e.memtable.delete(en.key)
		} else {
			e.memtable.put(en.key, en.value)
		}
	}
	return nil
}

// Set durably records value for key and makes it visible to subsequent
// reads (I1). It appends to the WAL, then inserts into the MemTable; if
// that insertion pushes the table to the configured threshold, it flushes
// while still holding the MemTable's write lock (spec §4.1's flush
// trigger).
func (e *Engine) Set(key, value string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if err := ValidateValue(value); err != nil {
		return err
	}

	if err := e.wal.appendSet(key, value); err != nil {
		return err
	}

	e.memMu.Lock()
	defer e.memMu.Unlock()

	e.memtable.put(key, value)
	if e.memtable.len() >= e.cfg.MemTableThreshold {
		return e.flushLocked()
	}
	return nil
}

// Delete records a tombstone for key. It always "succeeds" logically,
// whether or not key ever existed (spec §4.1): no existence probe is
// performed before writing the tombstone.
func (e *Engine) Delete(key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	if err := e.wal.appendDelete(key); err != nil {
		return err
	}

	e.memMu.Lock()
	defer e.memMu.Unlock()

	e.memtable.delete(key)
	if e.memtable.len() >= e.cfg.MemTableThreshold {
		return e.flushLocked()
	}
	return nil
}

// Get returns the value of the freshest live record for key, or found=false
// if the freshest record is a tombstone or key was never written. It
// probes the MemTable first and returns directly on any hit — even a
// tombstone — without falling through to disk (spec §4.1's freshness
// algorithm). Otherwise it walks the registered SSTables newest to oldest,
// consulting each one's Bloom filter before scanning its data block.
func (e *Engine) Get(key string) (value string, found bool, err error) {
	if err := ValidateKey(key); err != nil {
		return "", false, err
	}

	e.memMu.RLock()
	if en, ok := e.memtable.get(key); ok {
		e.memMu.RUnlock()
		if en.tombstone {
			return "", false, nil
		}
		return en.value, true, nil
	}
	e.memMu.RUnlock()

	segments := e.registry.snapshot()
	for i := len(segments) - 1; i >= 0; i-- {
		path := segments[i]
		v, tombstone, ok, lookupErr := sstableLookup(path, key, nil)
		if lookupErr != nil {
			// Corruption in one segment is fatal for that segment only
			// (spec §7): log it and keep walking older segments.
			e.log.Error("sstable lookup failed, skipping segment",
				zap.String("path", path), zap.Error(lookupErr))
			continue
		}
		if ok {
			if tombstone {
				return "", false, nil
			}
			return v, true, nil
		}
	}

	return "", false, nil
}

// Compact merges every currently registered SSTable into one, retaining
// only the freshest record per key and dropping tombstones (spec §4.1). It
// is a no-op if fewer than two SSTables are registered. The MemTable and
// WAL are untouched.
func (e *Engine) Compact() error {
	inputs := e.registry.snapshot()
	if len(inputs) < 2 {
		return nil
	}

	merged, err := mergeSSTables(inputs)
	if err != nil {
		e.log.Error("compaction aborted: merge failed", zap.Error(err))
		return err
	}

	var output string
	if len(merged) > 0 {
		id := e.registry.nextID()
		output = e.registry.compactedPath(id)
		if err := writeSSTable(output, merged, e.cfg.SparseStride, e.cfg.BloomFalsePositiveRate); err != nil {
			e.log.Error("compaction aborted: write failed", zap.Error(err))
			return err
		}
	}

	// I8: the output is registered (and visible to get) before any input
	// is unlinked.
	e.registry.replace(inputs, output)

	if err := removeSSTables(inputs); err != nil {
		e.log.Warn("compaction: failed to remove one or more input segments", zap.Error(err))
		return err
	}

	e.log.Info("compaction complete",
		zap.Int("inputs", len(inputs)),
		zap.Int("output_entries", len(merged)),
	)
	return nil
}

// flushLocked writes the current MemTable to a new SSTable, registers it,
// truncates the WAL, and clears the MemTable. The caller must hold memMu
// for writing. The SSTable is fully written and visible (registered)
// before the WAL is truncated; if truncation fails, the worst outcome is a
// duplicate replay of already-persisted records on the next recovery,
// which I2/I4 make idempotent (spec §4.1).
func (e *Engine) flushLocked() error {
	entries := e.memtable.sortedEntries()
	if len(entries) == 0 {
		return nil
	}

	id := e.registry.nextID()
	path := e.registry.flushPath(id)
	if err := writeSSTable(path, entries, e.cfg.SparseStride, e.cfg.BloomFalsePositiveRate); err != nil {
		e.log.Error("flush failed", zap.String("path", path), zap.Error(err))
		return err
	}
	e.registry.publish(path)

	if err := e.wal.truncate(); err != nil {
		e.log.Warn("wal truncate failed after flush; next recovery will replay a superset",
			zap.Error(err))
	}
	e.memtable.reset()

	e.log.Info("flush complete", zap.String("path", path), zap.Int("entries", len(entries)))
	return nil
}

// Close flushes no pending state beyond what's already durable (the WAL
// already holds anything not yet flushed, and recovery will replay it) and
// closes the WAL file handle.
func (e *Engine) Close() error {
	return e.wal.close()
}
