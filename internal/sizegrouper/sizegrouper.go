// Package sizegrouper drains the file queue into size buckets.
//
// Grouping by exact byte length is the cheap first cut: files of different
// lengths cannot be duplicates, and no file content is touched. The grouper
// runs concurrently with the walker, so buckets grow incrementally and the
// hash grouper downstream re-examines them as they fill.
package sizegrouper

import (
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/ivoronin/dupehound/internal/queue"
	"github.com/ivoronin/dupehound/internal/store"
)

// Grouper buckets queued files by byte length into the shared size map.
//
// The grouper is designed for single-use: create with New(), call Run() once.
type Grouper struct {
	fileQueue  *queue.Queue
	sizes      *store.SizeMap
	walkerDone *atomic.Bool // set by the walker on exit
	done       *atomic.Bool // size-group-done flag, owned by the coordinator

	stats *stats
}

// New creates a Grouper draining fileQueue into sizes. The done flag is set
// exactly once, after walkerDone is observed and the queue is drained.
func New(fileQueue *queue.Queue, sizes *store.SizeMap, walkerDone, done *atomic.Bool) *Grouper {
	return &Grouper{
		fileQueue:  fileQueue,
		sizes:      sizes,
		walkerDone: walkerDone,
		done:       done,
	}
}

// stats tracks grouping progress. Single-writer; no atomics needed.
type stats struct {
	groupedFiles int
	startTime    time.Time
}

func (s *stats) String() string {
	return fmt.Sprintf("Grouped %d files by size in %.1fs",
		s.groupedFiles, time.Since(s.startTime).Seconds())
}

// Run drains the queue until the walker is done and the queue is empty, then
// sets the done flag and exits. Always returns nil: there is no I/O here.
//
// Pops are non-blocking while the walker is still producing, so lock
// contention never stalls the walker's pushes; on an empty (or contended)
// queue the grouper yields to the scheduler rather than spinning hot.
func (g *Grouper) Run() error {
	defer g.done.Store(true)

	g.stats = &stats{startTime: time.Now()}

	for {
		if f, ok := g.fileQueue.TryPop(); ok {
			g.sizes.Append(f.Size, f)
			g.stats.groupedFiles++
			continue
		}
		if !g.walkerDone.Load() {
			runtime.Gosched()
			continue
		}
		// The walker has stopped pushing. TryPop may have reported empty due
		// to contention, so drain definitively before exiting.
		for {
			f, ok := g.fileQueue.Pop()
			if !ok {
				return nil
			}
			g.sizes.Append(f.Size, f)
			g.stats.groupedFiles++
		}
	}
}
