// Command zenithdb-bench drives concurrent SET/GET load against a running
// ZenithDB server, adapted from the teacher's bench tool but retargeted at
// the SET/GET/DELETE protocol.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"math/rand"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

var (
	addr        = flag.String("addr", "127.0.0.1:8080", "ZenithDB server address")
	duration    = flag.Duration("duration", 10*time.Second, "benchmark duration")
	concurrency = flag.Int("concurrency", 10, "number of concurrent clients")
	readRatio   = flag.Float64("read-ratio", 0.8, "fraction of operations that are GETs (0.0-1.0)")
	keySpace    = flag.Int("keys", 10_000, "number of distinct keys to read and write")
)

func main() {
	flag.Parse()

	var ops, errCount int64
	deadline := time.Now().Add(*duration)

	var wg sync.WaitGroup
	for i := 0; i < *concurrency; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			runWorker(worker, deadline, &ops, &errCount)
		}(i)
	}
	wg.Wait()

	elapsed := *duration
	fmt.Printf("ops=%d errors=%d throughput=%.1f ops/sec\n",
		ops, errCount, float64(ops)/elapsed.Seconds())
}

func runWorker(worker int, deadline time.Time, ops, errCount *int64) {
	conn, err := net.Dial("tcp", *addr)
	if err != nil {
		fmt.Printf("worker %d: dial error: %v\n", worker, err)
		atomic.AddInt64(errCount, 1)
		return
	}
	defer conn.Close()

	reader := bufio.NewReader(conn)
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)))

	for time.Now().Before(deadline) {
		key := "bench-" + strconv.Itoa(rng.Intn(*keySpace))

		var req string
		if rng.Float64() < *readRatio {
			req = "GET " + key
		} else {
			req = "SET " + key + " value-" + strconv.Itoa(rng.Int())
		}

		if _, err := fmt.Fprintf(conn, "%s\n", req); err != nil {
			atomic.AddInt64(errCount, 1)
			return
		}
		line, err := reader.ReadString('\n')
		if err != nil {
			atomic.AddInt64(errCount, 1)
			return
		}
		if strings.HasPrefix(line, "ERROR:") {
			atomic.AddInt64(errCount, 1)
		}
		atomic.AddInt64(ops, 1)
	}
}
