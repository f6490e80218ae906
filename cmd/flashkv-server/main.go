// Command flashkv-server brings up a fixed-size set of Server Cores
// over in-memory NIC queues and serves KV requests until signalled to
// stop. It has no real NIC binding: driver.Queue is satisfied here by
// driver.MemQueue, a stand-in for whatever poll-mode driver (DPDK,
// AF_XDP) a production deployment would bind in its place.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"runtime"
	"runtime/pprof"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/behrlich/flashkv"
	"github.com/behrlich/flashkv/internal/driver"
	"github.com/behrlich/flashkv/internal/logging"
)

func main() {
	var (
		numCores  = flag.Int("cores", runtime.NumCPU(), "Number of Server Cores to bring up")
		batchSize = flag.Int("batch", 32, "NIC receive/transmit burst size per core")
		quotaStr  = flag.String("quota", "10K", "Per-request allocation quota (e.g., 10K, 64K)")
		affinity  = flag.String("cpus", "", "Comma-separated CPU affinity list, e.g. 0,1,2,3 (empty disables pinning)")
		ownIPStr  = flag.String("ip", "", "Server's own IPv4 address; frames not addressed here are dropped at L3 (empty keeps the package default)")
		verbose   = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	quota, err := parseSize(*quotaStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid quota %q: %v\n", *quotaStr, err)
		os.Exit(1)
	}

	var ownIP net.IP
	if *ownIPStr != "" {
		ownIP = net.ParseIP(*ownIPStr).To4()
		if ownIP == nil {
			fmt.Fprintf(os.Stderr, "invalid IPv4 address %q\n", *ownIPStr)
			os.Exit(1)
		}
	}

	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	if *numCores < 1 {
		logger.Error("cores must be at least 1")
		os.Exit(1)
	}

	queues := make([]driver.Queue, *numCores)
	for i := range queues {
		queues[i] = driver.NewMemQueue()
	}

	params := flashkv.DefaultParams()
	params.Queues = queues
	params.BatchSize = *batchSize
	params.ContextQuota = int(quota)
	params.Logger = logger
	if ownIP != nil {
		params.OwnIP = ownIP
	}
	if cpus := parseCPUList(*affinity); len(cpus) > 0 {
		params.CPUAffinity = cpus
	}

	srv, err := flashkv.NewServer(params)
	if err != nil {
		logger.Error("failed to build server", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv.Start(ctx)
	logger.Info("server started", "cores", *numCores, "batch_size", *batchSize, "quota_bytes", quota)
	fmt.Printf("flashkv: serving on %d core(s)\n", *numCores)
	fmt.Printf("Press Ctrl+C to stop...\n")
	fmt.Printf("Send SIGUSR1 (kill -USR1 %d) to dump goroutine stacks\n", os.Getpid())

	stackDumpCh := make(chan os.Signal, 1)
	signal.Notify(stackDumpCh, syscall.SIGUSR1)
	go func() {
		for range stackDumpCh {
			buf := make([]byte, 1<<20)
			n := runtime.Stack(buf, true)
			fmt.Fprintf(os.Stderr, "\n=== GOROUTINE STACK DUMP ===\n%s\n=== END ===\n\n", buf[:n])

			filename := fmt.Sprintf("flashkv-stacks-%d.txt", time.Now().Unix())
			if f, err := os.Create(filename); err == nil {
				fmt.Fprintf(f, "Process ID: %d\n\n", os.Getpid())
				f.Write(buf[:n])
				pprof.Lookup("goroutine").WriteTo(f, 2)
				f.Close()
				logger.Info("stack trace written to file", "file", filename)
			}
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("received shutdown signal")
	cancel()

	stopped := make(chan struct{})
	go func() {
		srv.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		snap := srv.MetricsSnapshot()
		logger.Info("server stopped", "requests_ok", snap.RequestsOK, "requests_failed", snap.RequestsFailed, "drops", snap.DropsTotal)
	case <-time.After(time.Second):
		logger.Info("shutdown timeout, forcing exit")
	}
}

// parseSize parses a size string like "10K", "64K", "1M".
func parseSize(s string) (int64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))

	var multiplier int64 = 1
	var numStr string

	switch {
	case strings.HasSuffix(s, "K"):
		multiplier = 1024
		numStr = strings.TrimSuffix(s, "K")
	case strings.HasSuffix(s, "M"):
		multiplier = 1024 * 1024
		numStr = strings.TrimSuffix(s, "M")
	case strings.HasSuffix(s, "G"):
		multiplier = 1024 * 1024 * 1024
		numStr = strings.TrimSuffix(s, "G")
	default:
		numStr = s
	}

	num, err := strconv.ParseInt(numStr, 10, 64)
	if err != nil {
		return 0, err
	}
	return num * multiplier, nil
}

func parseCPUList(s string) []int {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			continue
		}
		out = append(out, n)
	}
	return out
}
