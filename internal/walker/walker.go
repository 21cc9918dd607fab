// Package walker enumerates the directory tree and feeds the file queue.
//
// # Concurrency Model
//
// The walker employs semaphore-bounded fan-out:
//
//  1. WALKER GOROUTINES (fan-out)
//     - One goroutine spawned per directory discovered
//     - Concurrency limited by semaphore (walkerSem)
//     - Each walker: acquires semaphore → lists directory → releases semaphore → spawns child walkers
//
//  2. The file queue is the fan-in point. Unlike a channel, pushes never
//     block: the queue is unbounded and the consumer pops with a try-lock,
//     so a slow size grouper cannot stall directory reads.
//
// # Data Flow
//
//	Run() starts
//	    │
//	    ├──► walkDirectory(root, depth 0)
//	    │        │
//	    │        ├──► acquire semaphore (blocks if at limit)
//	    │        ├──► listDirectory() → files, subdirs
//	    │        ├──► filter files → push matches into the queue
//	    │        └──► for each subdir: walkDirectory(subdir, depth+1)  [recursive fan-out]
//	    │
//	    ├──► walkerWg.Wait() [all directories processed]
//	    └──► set done flag [signal the size grouper]
//
// # Filtering
//
// Each entry is first classified by type (stat'ed; directories, specials and
// unfollowed links are set aside), then checked in order against directory
// depth bounds, extension include/exclude sets (exclude dominates), and
// minimum size. Depth and extension checks therefore do not save the stat
// call. Only entries passing all four become FileInfo. Per-entry I/O failures
// (vanished file, permission denied, broken link) are skipped; the walker
// never aborts the run for a single entry.
package walker

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/ivoronin/dupehound/internal/progress"
	"github.com/ivoronin/dupehound/internal/queue"
	"github.com/ivoronin/dupehound/internal/types"
)

// DepthUnbounded disables a depth bound.
const DepthUnbounded = -1

// Config holds the walker's filter configuration.
//
// Root must already be canonicalized by the coordinator; the walker treats a
// bad root like any other unreadable directory.
type Config struct {
	Root         string
	IncludeTypes []string // extensions to accept; empty = accept all
	ExcludeTypes []string // extensions to reject; exclude dominates include
	MinDepth     int      // inclusive, relative to root; DepthUnbounded = no bound
	MaxDepth     int      // inclusive, relative to root; DepthUnbounded = no bound
	FollowLinks  bool     // traverse symbolic links
	MinSize      int64    // reject files with fewer bytes than this
}

// Walker discovers regular files matching the filter configuration and
// pushes them into the shared file queue.
//
// The walker is designed for single-use: create with New(), call Run() once.
type Walker struct {
	// Config (immutable, set by New)
	cfg          Config
	include      map[string]struct{}
	exclude      map[string]struct{}
	fileQueue    *queue.Queue
	done         *atomic.Bool // walker-done flag, owned by the coordinator
	workers      int          // max concurrent directory reads
	showProgress bool
	errCh        chan error // non-fatal errors (permission denied, etc.)

	// Runtime (initialized in Run)
	walkerWg  sync.WaitGroup  // tracks in-flight walker goroutines
	walkerSem types.Semaphore // limits concurrent directory reads
	stats     *stats
	bar       *progress.Bar
}

// New creates a Walker feeding fileQueue. The done flag is set exactly once,
// after the traversal terminates.
func New(cfg Config, fileQueue *queue.Queue, done *atomic.Bool, workers int, showProgress bool, errCh chan error) *Walker {
	return &Walker{
		cfg:          cfg,
		include:      extSet(cfg.IncludeTypes),
		exclude:      extSet(cfg.ExcludeTypes),
		fileQueue:    fileQueue,
		done:         done,
		workers:      workers,
		showProgress: showProgress,
		errCh:        errCh,
	}
}

// extSet normalizes an extension list into a lookup set.
// Leading dots and case are stripped, so "JPG", ".jpg" and "jpg" all match.
func extSet(exts []string) map[string]struct{} {
	if len(exts) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		set[strings.ToLower(strings.TrimPrefix(e, "."))] = struct{}{}
	}
	return set
}

// stats tracks scanning progress using atomic counters for lock-free updates.
type stats struct {
	scannedFiles atomic.Int64 // total files discovered (all walkers)
	matchedFiles atomic.Int64 // files passing all filters
	scannedBytes atomic.Int64 // total bytes across all scanned files
	matchedBytes atomic.Int64 // bytes of matched files only
	startTime    time.Time
}

func (s *stats) String() string {
	return fmt.Sprintf("Scanned %d (%s), matched %d files (%s) in %.1fs",
		s.scannedFiles.Load(), humanize.IBytes(uint64(s.scannedBytes.Load())),
		s.matchedFiles.Load(), humanize.IBytes(uint64(s.matchedBytes.Load())),
		time.Since(s.startTime).Seconds())
}

// Run executes the traversal, pushing matches into the file queue.
// It sets the done flag exactly once, after every walker goroutine has
// finished, and always returns nil: a directory that cannot be read is
// reported through the error channel, and an entry that cannot be stat'ed is
// skipped without a report.
func (w *Walker) Run() error {
	defer w.done.Store(true)

	w.walkerSem = types.NewSemaphore(w.workers)
	w.stats = &stats{startTime: time.Now()}
	w.bar = progress.New(w.showProgress, -1)
	w.bar.Describe(w.stats)

	w.walkDirectory(w.cfg.Root, 0)
	w.walkerWg.Wait()

	w.bar.Finish(w.stats)
	return nil
}

// walkDirectory spawns a goroutine to process one directory and recursively
// spawn children.
//
// Semaphore pattern:
//   - walkerWg.Add(1) BEFORE goroutine spawn (prevents race with Wait)
//   - acquire semaphore at goroutine start (blocks if at concurrency limit)
//   - release semaphore AFTER listing but BEFORE spawning children
//
// depth is the directory's own depth; its entries live at depth+1.
func (w *Walker) walkDirectory(dir string, depth int) {
	w.walkerWg.Add(1)
	go func() {
		defer w.walkerWg.Done()

		w.walkerSem.Acquire()
		files, subdirs, err := w.listDirectory(dir, depth)
		w.walkerSem.Release()
		if err != nil {
			w.sendError(err)
			return
		}

		for _, f := range files {
			w.stats.scannedFiles.Add(1)
			w.stats.scannedBytes.Add(f.Size)
			if w.accept(f, depth+1) {
				w.fileQueue.Push(f)
				w.stats.matchedFiles.Add(1)
				w.stats.matchedBytes.Add(f.Size)
			}
		}
		w.bar.Describe(w.stats)

		for _, sub := range subdirs {
			w.walkDirectory(sub, depth+1)
		}
	}()
}

// accept applies the filter chain to a regular file at the given depth.
func (w *Walker) accept(f *types.FileInfo, depth int) bool {
	if w.cfg.MinDepth != DepthUnbounded && depth < w.cfg.MinDepth {
		return false
	}
	if w.cfg.MaxDepth != DepthUnbounded && depth > w.cfg.MaxDepth {
		return false
	}
	if !w.matchType(f.Path) {
		return false
	}
	return f.Size >= w.cfg.MinSize
}

// matchType checks the extension against the include/exclude sets.
// Accepted extensions are include \ exclude; an empty include set accepts
// everything not excluded. The walker does not validate that the difference
// is non-empty.
func (w *Walker) matchType(path string) bool {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	if _, rejected := w.exclude[ext]; rejected {
		return false
	}
	if w.include == nil {
		return true
	}
	_, ok := w.include[ext]
	return ok
}

// listDirectory reads a single directory, returning files and subdirectories.
//
// Uses batched ReadDir (1000 entries per batch) to handle large directories
// efficiently. This is the ONLY place where directory I/O occurs - protected
// by walkerSem. Directories deeper than MaxDepth are pruned here so the walk
// never descends past the bound.
func (w *Walker) listDirectory(dirPath string, depth int) (files []*types.FileInfo, subdirs []string, err error) {
	dir, err := os.Open(dirPath)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = dir.Close() }()

	descend := w.cfg.MaxDepth == DepthUnbounded || depth+1 <= w.cfg.MaxDepth

	const batchSize = 1000
	for {
		entries, err := dir.ReadDir(batchSize)
		if len(entries) == 0 {
			if err != nil && err != io.EOF {
				return files, subdirs, err
			}
			break
		}

		for _, entry := range entries {
			f, sub := w.processEntry(dirPath, entry)
			if f != nil {
				files = append(files, f)
			}
			if sub != "" && descend {
				subdirs = append(subdirs, sub)
			}
		}
	}

	return files, subdirs, nil
}

// processEntry classifies a single directory entry.
// Returns (nil, "") for entries that are skipped: specials, unreadable
// entries, and symlinks when FollowLinks is off.
func (w *Walker) processEntry(dirPath string, entry os.DirEntry) (file *types.FileInfo, subdir string) {
	fullPath := filepath.Join(dirPath, entry.Name())

	if entry.IsDir() {
		return nil, fullPath
	}

	if entry.Type()&os.ModeSymlink != 0 {
		if !w.cfg.FollowLinks {
			return nil, ""
		}
		// Stat resolves the link target. Broken links are skipped.
		info, err := os.Stat(fullPath)
		if err != nil {
			return nil, ""
		}
		if info.IsDir() {
			return nil, fullPath
		}
		if !info.Mode().IsRegular() {
			return nil, ""
		}
		return types.NewFileInfo(fullPath, info.Size(), info.ModTime()), ""
	}

	// Skip non-regular files (devices, sockets, fifos)
	if !entry.Type().IsRegular() {
		return nil, ""
	}

	// Info() may trigger an additional stat call (platform-dependent)
	info, err := entry.Info()
	if err != nil {
		return nil, "" // race with deletion, permissions
	}

	return types.NewFileInfo(fullPath, info.Size(), info.ModTime()), ""
}

// sendError sends an error to the errors channel if it's not nil.
func (w *Walker) sendError(err error) {
	if w.errCh != nil {
		w.errCh <- err
	}
}
