// Package perflog appends per-frame processing diagnostics to a CSV file.
// It is independent of lap state.
package perflog

import (
	"fmt"
	"log"
	"runtime"
	"time"

	"github.com/kdimtricp/laptimer/internal/storage"
)

const Header = "elapse_time,memory_used,frames_dropped"

type Recorder struct {
	store  storage.Storage
	name   string
	memory func() uint64
}

func NewRecorder(store storage.Storage, name string) *Recorder {
	return &Recorder{
		store:  store,
		name:   name,
		memory: processMemory,
	}
}

// Record appends one line: processing latency in seconds, bytes of memory
// obtained from the OS, and frames dropped since the previous record.
// Write failures are logged and otherwise ignored.
func (r *Recorder) Record(elapsed time.Duration, framesDropped int) {
	line := fmt.Sprintf("%.3f,%d,%d", elapsed.Seconds(), r.memory(), framesDropped)
	if err := r.store.AppendLine(r.name, Header, line); err != nil {
		log.Printf("[PERF] failed to write %s: %v", r.name, err)
	}
}

func processMemory() uint64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.Sys
}
