// Copyright © 2018 One Concern

package internal

import (
	"os"
	"runtime"
	"runtime/pprof"
	"time"

	"go.uber.org/zap"
)

const (
	mib = 1024 * 1024

	defaultPoll = 50 * time.Millisecond
)

// StartCPUProfile writes a CPU profile to path, until the returned function is called
func StartCPUProfile(path string) (func(), error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	if err = pprof.StartCPUProfile(f); err != nil {
		_ = f.Close()
		return nil, err
	}
	return func() {
		pprof.StopCPUProfile()
		_ = f.Close()
	}, nil
}

// WriteHeapProfile writes the current heap profile to path, unless it already exists
func WriteHeapProfile(path string) error {
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		_ = f.Close()
	}()
	runtime.GC()
	return pprof.Lookup("heap").WriteTo(f, 0)
}

// MemPollParams configures the memory poller
type MemPollParams struct {
	Poll    time.Duration
	LogEach time.Duration
	Logger  *zap.Logger
}

// MemPoll logs the growth of the heap while a publish is running, until stop is closed
func MemPoll(params MemPollParams, stop <-chan struct{}) {
	if params.Poll == 0 {
		params.Poll = defaultPoll
	}
	if params.Logger == nil {
		params.Logger = zap.NewNop()
	}

	go func() {
		var (
			mstats  runtime.MemStats
			maxHeap uint64
			lastLog time.Time
		)
		ticker := time.NewTicker(params.Poll)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
			}

			runtime.ReadMemStats(&mstats)
			if params.LogEach > 0 && time.Since(lastLog) >= params.LogEach {
				params.Logger.Info("mempoll",
					zap.Uint64("MiB for heap (un-GC)", mstats.Alloc/mib),
					zap.Uint64("MiB for heap (max ever)", mstats.HeapSys/mib),
					zap.Int("num go routines", runtime.NumGoroutine()),
				)
				lastLog = time.Now()
			}
			if mstats.HeapSys > maxHeap {
				maxHeap = mstats.HeapSys
				params.Logger.Debug("grew heap",
					zap.Uint64("MiB for heap (un-GC)", mstats.Alloc/mib),
					zap.Uint64("MiB for heap (max ever)", mstats.HeapSys/mib),
				)
			}
		}
	}()
}
