// Command zenithdb runs the ZenithDB server: it opens the storage engine
// rooted at -data-dir and serves the SET/GET/DELETE/COMPACT text protocol
// on -addr until interrupted.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"zenithdb/internal/engine"
	"zenithdb/internal/server"
)

var (
	addr                   = flag.String("addr", "127.0.0.1:8080", "TCP address to listen on")
	dataDir                = flag.String("data-dir", "./data", "directory for the WAL and SSTables")
	memtableThreshold      = flag.Int("memtable-threshold", engine.DefaultMemTableThreshold, "entry count that triggers a memtable flush")
	sparseStride           = flag.Int("sparse-stride", engine.DefaultSparseStride, "sparse index stride (one entry every N records)")
	bloomFalsePositiveRate = flag.Float64("bloom-fp-rate", engine.DefaultBloomFalsePositiveRate, "target Bloom filter false-positive rate")
	dev                    = flag.Bool("dev", false, "use a human-readable development logger instead of JSON")
)

func main() {
	flag.Parse()

	log, err := newLogger(*dev)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync() //nolint:errcheck

	cfg := engine.Config{
		DataDir:                *dataDir,
		MemTableThreshold:      *memtableThreshold,
		SparseStride:           *sparseStride,
		BloomFalsePositiveRate: *bloomFalsePositiveRate,
		Logger:                 log.Named("engine"),
	}

	eng, err := engine.Open(cfg)
	if err != nil {
		log.Fatal("failed to open engine", zap.Error(err))
	}

	srv := server.New(*addr, eng, log.Named("server"))
	if err := srv.Start(); err != nil {
		log.Fatal("failed to start server", zap.Error(err))
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down")
	if err := srv.Stop(); err != nil {
		log.Warn("server stop error", zap.Error(err))
	}
	if err := eng.Close(); err != nil {
		log.Warn("engine close error", zap.Error(err))
	}
	log.Info("shutdown complete")
}

func newLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
