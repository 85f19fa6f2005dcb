// bench-replay measures backfill replay throughput over a synthetic metrics
// archive: a cold pass that folds every (category, day) unit, then a resumed
// pass over the same range that should skip every unit via the checkpoint.
//
// Usage:
//
//	go run ./scripts/bench-replay --days 365 --categories 8 \
//	  --profile-dir docs/profiles/replay --cpu-profile
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"time"

	"github.com/Sumatoshi-tech/rollgate/internal/backfill"
	"github.com/Sumatoshi-tech/rollgate/internal/category"
	"github.com/Sumatoshi-tech/rollgate/internal/config"
	"github.com/Sumatoshi-tech/rollgate/internal/metrics"
	"github.com/Sumatoshi-tech/rollgate/internal/state"
	"github.com/Sumatoshi-tech/rollgate/pkg/dates"
)

func main() {
	days := flag.Int("days", 365, "Number of calendar days to replay")
	categoryCount := flag.Int("categories", 8, "Number of synthetic categories")
	workDir := flag.String("work-dir", "", "Working directory (default: temp dir, removed on exit)")
	profileDir := flag.String("profile-dir", "", "Directory to write heap profiles")
	cpuProfile := flag.Bool("cpu-profile", false, "Write CPU profile to profile-dir/cpu.prof")
	keep := flag.Bool("keep", false, "Keep the working directory after the run")

	flag.Parse()

	if *days < 1 {
		log.Fatal("--days must be at least 1")
	}

	if *categoryCount < 1 {
		log.Fatal("--categories must be at least 1")
	}

	if *cpuProfile && *profileDir == "" {
		log.Fatal("--cpu-profile requires --profile-dir")
	}

	dir := *workDir
	if dir == "" {
		tmp, tmpErr := os.MkdirTemp("", "bench-replay-*")
		if tmpErr != nil {
			log.Fatalf("mkdir work-dir: %v", tmpErr)
		}

		dir = tmp

		if !*keep {
			defer os.RemoveAll(dir)
		}
	} else if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Fatalf("mkdir work-dir: %v", err)
	}

	if *profileDir != "" {
		if err := os.MkdirAll(*profileDir, 0o755); err != nil {
			log.Fatalf("mkdir profile-dir: %v", err)
		}
	}

	if *cpuProfile {
		cpuPath := filepath.Join(*profileDir, "cpu.prof")

		cpuFile, cpuErr := os.Create(cpuPath)
		if cpuErr != nil {
			log.Fatalf("create cpu profile: %v", cpuErr)
		}
		defer cpuFile.Close()

		if startErr := pprof.StartCPUProfile(cpuFile); startErr != nil {
			log.Fatalf("start cpu profile: %v", startErr)
		}

		defer pprof.StopCPUProfile()

		log.Printf("CPU profiling enabled -> %s", cpuPath)
	}

	registry := benchRegistry(*categoryCount)

	from, parseErr := dates.Parse("2024-01-01")
	if parseErr != nil {
		log.Fatalf("parse anchor date: %v", parseErr)
	}

	to := dates.FromTime(from.Time().AddDate(0, 0, *days-1))

	dayList, rangeErr := dates.Range(from, to)
	if rangeErr != nil {
		log.Fatalf("build day range: %v", rangeErr)
	}

	archivePath := filepath.Join(dir, "archive.jsonl")

	seedStart := time.Now()

	rows, seedErr := seedArchive(archivePath, registry, dayList)
	if seedErr != nil {
		log.Fatalf("seed archive: %v", seedErr)
	}

	log.Printf("seeded %d archive rows (%d categories x %d days) in %s",
		rows, *categoryCount, len(dayList), time.Since(seedStart).Round(time.Millisecond))

	type heapSnapshot struct {
		label     string
		heapInUse uint64
		heapSys   uint64
		heapIdle  uint64
	}

	var snapshots []heapSnapshot

	takeSnapshot := func(label string) {
		runtime.GC()
		runtime.GC()

		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		snapshots = append(snapshots, heapSnapshot{
			label:     label,
			heapInUse: m.HeapInuse,
			heapSys:   m.HeapSys,
			heapIdle:  m.HeapIdle,
		})
		log.Printf("  [heap] %-30s inuse=%6.1f MB  sys=%6.1f MB  idle=%6.1f MB",
			label, float64(m.HeapInuse)/1e6, float64(m.HeapSys)/1e6, float64(m.HeapIdle)/1e6)
	}

	writeHeapProfile := func(name string) {
		if *profileDir == "" {
			return
		}

		runtime.GC()
		runtime.GC()

		path := filepath.Join(*profileDir, name)

		f, ferr := os.Create(path)
		if ferr != nil {
			log.Printf("warning: create heap profile %s: %v", path, ferr)

			return
		}
		defer f.Close()

		if perr := pprof.WriteHeapProfile(f); perr != nil {
			log.Printf("warning: write heap profile %s: %v", path, perr)
		}
	}

	archive, openErr := backfill.OpenArchive(archivePath)
	if openErr != nil {
		log.Fatalf("open archive: %v", openErr)
	}

	log.Printf("archive holds %d records (%d corrupt lines)", archive.Len(), archive.CorruptLines())

	takeSnapshot("after_archive_load")
	writeHeapProfile("heap_after_archive_load.prof")

	cfg := config.Default()
	quiet := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	type phaseResult struct {
		label    string
		duration time.Duration
		summary  *backfill.Summary
	}

	var results []phaseResult

	// Each phase builds fresh stores so resumed replays pay the same load
	// costs a restarted process would.
	runPhase := func(label string) {
		metricsStore, metricsErr := metrics.Open(filepath.Join(dir, "daily_metrics.jsonl"))
		if metricsErr != nil {
			log.Fatalf("open metrics log: %v", metricsErr)
		}

		runner := backfill.NewRunner(backfill.Config{
			Registry:      registry,
			States:        state.NewStore(filepath.Join(dir, "rollout_state.json")),
			Metrics:       metricsStore,
			Checkpoint:    backfill.NewManager(filepath.Join(dir, "backfill_checkpoint.json"), quiet),
			Archive:       archive,
			Thresholds:    cfg.Thresholds,
			Ladder:        cfg.RolloutLadder(),
			BudgetCeiling: cfg.Budget.CeilingMinorUnits,
			Logger:        quiet,
		})

		start := time.Now()

		summary, runErr := runner.Run(context.Background(), backfill.Request{
			Scope: category.ScopeAll,
			From:  from,
			To:    to,
			Now:   time.Now().UTC(),
		})
		if runErr != nil {
			log.Fatalf("%s replay: %v", label, runErr)
		}

		elapsed := time.Since(start)
		results = append(results, phaseResult{label: label, duration: elapsed, summary: summary})

		log.Printf("%s replay: %d units in %s (replayed %d, skipped %d, missing %d, promotions %d, disables %d)",
			label, summary.Units, elapsed.Round(time.Millisecond), summary.Replayed,
			summary.SkippedDone, summary.Missing, summary.Promotions, summary.Disables)
	}

	takeSnapshot("before_cold_replay")
	runPhase("cold")
	takeSnapshot("after_cold_replay")
	writeHeapProfile("heap_after_cold_replay.prof")

	// Same range again: every unit should hit the checkpoint fast path.
	runPhase("resumed")
	takeSnapshot("after_resumed_replay")
	writeHeapProfile("heap_after_resumed_replay.prof")

	fmt.Println()
	fmt.Println("=== Replay Throughput ===")
	fmt.Printf("%-10s %10s %10s %10s %12s %12s\n", "Phase", "Units", "Replayed", "Skipped", "Duration", "Units/sec")
	fmt.Println("----------+----------+----------+----------+------------+------------")

	for _, r := range results {
		perSec := 0.0
		if secs := r.duration.Seconds(); secs > 0 {
			perSec = float64(r.summary.Units) / secs
		}

		fmt.Printf("%-10s %10d %10d %10d %12s %12.0f\n",
			r.label, r.summary.Units, r.summary.Replayed, r.summary.SkippedDone,
			r.duration.Round(time.Millisecond), perSec)
	}

	fmt.Println()
	fmt.Println("=== Heap Memory Timeline ===")
	fmt.Printf("%-30s %10s %10s %10s\n", "Phase", "InUse(MB)", "Sys(MB)", "Idle(MB)")
	fmt.Println("------------------------------+----------+----------+----------")

	for _, s := range snapshots {
		fmt.Printf("%-30s %10.1f %10.1f %10.1f\n",
			s.label, float64(s.heapInUse)/1e6, float64(s.heapSys)/1e6, float64(s.heapIdle)/1e6)
	}

	if *keep || *workDir != "" {
		log.Printf("working files kept in %s", dir)
	}
}

func benchRegistry(n int) *category.Registry {
	cats := make([]category.Category, 0, n)
	for i := range n {
		cats = append(cats, category.Category{
			ID:             fmt.Sprintf("stream_%02d", i),
			Label:          fmt.Sprintf("Synthetic Stream %02d", i),
			RPMBase:        4 + float64(i%9),
			FallbackTopics: []string{"retrospective", "weekly digest"},
		})
	}

	registry, newErr := category.NewRegistry(cats)
	if newErr != nil {
		log.Fatalf("build registry: %v", newErr)
	}

	return registry
}

// seedArchive writes one JSONL record per (category, day). Most rows sit
// inside the day gates; every 61st unit spikes the duplicate rate and every
// 97th fails its deploy, so the fold sees streak resets as well as
// promotions.
func seedArchive(path string, registry *category.Registry, days []dates.Date) (int, error) {
	fd, createErr := os.Create(path)
	if createErr != nil {
		return 0, fmt.Errorf("create archive: %w", createErr)
	}
	defer fd.Close()

	writer := bufio.NewWriterSize(fd, 256*1024)
	encoder := json.NewEncoder(writer)
	ids := registry.IDs()
	rows := 0

	for dayIdx, day := range days {
		for catIdx, id := range ids {
			rec := metrics.Record{
				Category:        id,
				Date:            day,
				DuplicateRate:   0.01 + 0.005*float64((dayIdx+catIdx)%5),
				PolicyFlagRate:  0.001 + 0.001*float64((dayIdx*3+catIdx)%4),
				IndexedRate:     0.5 + 0.02*float64((dayIdx+2*catIdx)%12),
				DeploySucceeded: (dayIdx+catIdx*7)%97 != 0,
				PublishCount:    12,
				RPMEstimate:     4 + float64(catIdx%9) + 0.1*float64(dayIdx%10),
				RunID:           fmt.Sprintf("bench-%04d", dayIdx),
				RecordedAt:      day.Time(),
			}

			if (dayIdx*31+catIdx)%61 == 0 {
				rec.DuplicateRate = 0.12
			}

			if encodeErr := encoder.Encode(rec); encodeErr != nil {
				return rows, fmt.Errorf("write archive row: %w", encodeErr)
			}

			rows++
		}
	}

	if flushErr := writer.Flush(); flushErr != nil {
		return rows, fmt.Errorf("flush archive: %w", flushErr)
	}

	return rows, nil
}
