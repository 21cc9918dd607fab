// Package hashgrouper resolves candidate size buckets into duplicate sets by
// content digest.
//
// # Architecture Overview
//
// The hash grouper is the last and most expensive pipeline stage. It runs
// concurrently with the size grouper: candidate buckets (two or more files of
// the same byte length) may still be growing while the grouper hashes their
// current members, so work proceeds in repeated passes over the size map
// until the upstream done flag says no more members can arrive.
//
// # Digest Modes
//
//   - Fast (default): keyed 128-bit hash of the file's first 16 KiB. Same-size
//     files agreeing on the prefix are reported as duplicates without reading
//     the rest - an explicit speed/accuracy trade-off.
//   - Strict: keyed 128-bit XOR-fold over every 4 KiB chunk of the
//     memory-mapped file (each chunk hash bound to its offset), combined
//     with the byte length. Groups are
//     byte-identical up to the collision resistance of the underlying hash.
//
// # Concurrency Model
//
//	┌─────────────────┬────────────────────────────────────────────────┐
//	│ Primitive       │ Purpose                                        │
//	├─────────────────┼────────────────────────────────────────────────┤
//	│ hashSem         │ Limits concurrent file reads (backpressure)    │
//	│ memberWg        │ Joins the per-bucket hashing goroutines        │
//	│ FileInfo CAS    │ Claims a member exactly once across passes     │
//	│ maxPathLen CAS  │ Monotonic max for downstream formatting        │
//	└─────────────────┴────────────────────────────────────────────────┘
//
// Every member is claimed by a single compare-and-set on its processed flag
// before hashing, so re-scanning a bucket never hashes a file twice and a
// file appears in at most one digest bucket.
package hashgrouper

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/ivoronin/dupehound/internal/progress"
	"github.com/ivoronin/dupehound/internal/store"
	"github.com/ivoronin/dupehound/internal/types"
)

// Grouper digests candidate size buckets into the shared digest map.
//
// The grouper is designed for single-use: create with New(), call Run() once.
type Grouper struct {
	// Config (immutable, set by New)
	sizes         *store.SizeMap
	digests       *store.DigestMap
	sizeGroupDone *atomic.Bool  // set by the size grouper on exit
	maxPathLen    *atomic.Int64 // longest path digested, for the renderer
	strict        bool
	seed          uint64
	workers       int // max concurrent file reads
	showProgress  bool
	errCh         chan error

	// Runtime (initialized in Run)
	hashSem types.Semaphore
	stats   *stats
	bar     *progress.Bar
}

// New creates a Grouper reading candidates from sizes and writing duplicate
// groups into digests.
func New(sizes *store.SizeMap, digests *store.DigestMap, sizeGroupDone *atomic.Bool,
	maxPathLen *atomic.Int64, strict bool, seed uint64, workers int,
	showProgress bool, errCh chan error,
) *Grouper {
	return &Grouper{
		sizes:         sizes,
		digests:       digests,
		sizeGroupDone: sizeGroupDone,
		maxPathLen:    maxPathLen,
		strict:        strict,
		seed:          seed,
		workers:       workers,
		showProgress:  showProgress,
		errCh:         errCh,
	}
}

// stats tracks hashing progress using atomic counters for lock-free updates.
type stats struct {
	hashedFiles  atomic.Int64
	hashedBytes  atomic.Int64
	droppedFiles atomic.Int64 // open/map failures, skipped silently
	startTime    time.Time
}

func (s *stats) String() string {
	return fmt.Sprintf("Hashed %d candidates (%s) in %.1fs",
		s.hashedFiles.Load(), humanize.IBytes(uint64(s.hashedBytes.Load())),
		time.Since(s.startTime).Seconds())
}

// Run repeatedly scans the size map for work until the size grouper is done
// and a full pass finds no unprocessed candidate. Always returns nil:
// per-file I/O failures drop the file, never the pass.
//
// The done flag is sampled BEFORE each pass. If it was already set and the
// pass still found nothing, no new member can have arrived and the grouper
// exits; any member added mid-pass is caught by the next scan.
func (g *Grouper) Run() error {
	g.hashSem = types.NewSemaphore(g.workers)
	g.stats = &stats{startTime: time.Now()}
	g.bar = progress.New(g.showProgress, -1)
	g.bar.Describe(g.stats)

	for {
		done := g.sizeGroupDone.Load()
		if !g.pass() {
			if done {
				break
			}
			runtime.Gosched()
		}
	}

	g.bar.Finish(g.stats)
	return nil
}

// pass scans the size map once, hashing every claimable member of every
// candidate bucket. Reports whether any work was found.
func (g *Grouper) pass() bool {
	worked := false
	g.sizes.Range(func(_ int64, b *store.Bucket) bool {
		if b.Len() < 2 {
			return true // not a candidate (yet)
		}

		var memberWg sync.WaitGroup
		for _, f := range b.Files() {
			if !f.MarkProcessed() {
				continue // claimed in an earlier pass
			}
			worked = true
			memberWg.Add(1)
			go func(f *types.FileInfo) {
				defer memberWg.Done()
				g.hashSem.Acquire()
				defer g.hashSem.Release()
				g.hashMember(f)
			}(f)
		}
		memberWg.Wait()
		return true
	})
	return worked
}

// hashMember digests one claimed file and records it in the digest map.
// Open or map failures drop the file from hashing; the claim is not undone,
// matching the contract that a dropped file appears in no digest bucket.
func (g *Grouper) hashMember(f *types.FileInfo) {
	digest, err := g.digest(f.Path)
	if err != nil {
		g.stats.droppedFiles.Add(1)
		g.sendError(fmt.Errorf("%s: %w", f.Path, err))
		return
	}

	g.digests.Append(digest, f)
	g.bumpMaxPathLen(int64(len(f.Path)))

	g.stats.hashedFiles.Add(1)
	g.stats.hashedBytes.Add(f.Size)
	g.bar.Describe(g.stats)
}

func (g *Grouper) digest(path string) (types.Digest, error) {
	if g.strict {
		return strictDigest(path, g.seed)
	}
	return fastDigest(path, g.seed)
}

// bumpMaxPathLen raises the shared maximum with >-semantics CAS.
func (g *Grouper) bumpMaxPathLen(n int64) {
	for {
		cur := g.maxPathLen.Load()
		if n <= cur || g.maxPathLen.CompareAndSwap(cur, n) {
			return
		}
	}
}

// sendError sends an error to the errors channel if it's not nil.
func (g *Grouper) sendError(err error) {
	if g.errCh != nil {
		g.errCh <- err
	}
}
