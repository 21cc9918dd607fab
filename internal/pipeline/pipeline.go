// Package pipeline wires the walker, size grouper, and hash grouper into the
// three-stage streaming deduplication pipeline and owns everything they
// share.
//
// # Topology
//
//	Walker → file queue (FIFO) → SizeGrouper → size map → HashGrouper → digest map
//
// The three stages run concurrently on a bounded worker pool; stage N begins
// producing as soon as stage N-1 yields its first item. Termination is gated
// by monotonic done flags, not function returns: the walker's flag releases
// the size grouper, whose flag releases the hash grouper.
//
// # Ownership
//
// The coordinator exclusively owns the queue, both maps, and the flags; it
// hands shared references to each worker and disposes of nothing until all
// workers finish. Workers never destroy shared state.
package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/panjf2000/ants/v2"

	"github.com/ivoronin/dupehound/internal/hashgrouper"
	"github.com/ivoronin/dupehound/internal/queue"
	"github.com/ivoronin/dupehound/internal/sizegrouper"
	"github.com/ivoronin/dupehound/internal/store"
	"github.com/ivoronin/dupehound/internal/walker"
)

// poolSize is the coordinator's worker pool. Three stages run at once; the
// spare slot keeps pool exhaustion off the critical path.
const poolSize = 4

// digestSeed draws the digest seed once per process; every run shares it.
var digestSeed = sync.OnceValue(hashgrouper.NewSeed)

// Config is the configuration bag consumed from the CLI layer.
type Config struct {
	Root         string   // directory to scan; empty = current directory
	IncludeTypes []string // extensions to accept; empty = all
	ExcludeTypes []string // extensions to reject; exclude dominates include
	MinDepth     int      // inclusive depth bound; walker.DepthUnbounded = none
	MaxDepth     int      // inclusive depth bound; walker.DepthUnbounded = none
	FollowLinks  bool
	MinSize      int64 // files smaller than this are rejected
	Strict       bool  // whole-file digests instead of 16 KiB prefixes
	Workers      int   // concurrent filesystem reads per stage; 0 = NumCPU
	ShowProgress bool  // progress display only; no effect on semantics
}

// Result is the pipeline's terminal state, exposed to output sinks.
type Result struct {
	Root       string           // canonicalized scan root
	Digests    *store.DigestMap // digest → files; length-1 buckets are debris
	MaxPathLen int64            // longest digested path, for table layout
}

// Pipeline coordinates one deduplication run.
//
// The pipeline is designed for single-use: create with New(), call Run() once.
type Pipeline struct {
	cfg   Config
	errCh chan error // non-fatal per-file errors, drained by the CLI
}

// New creates a Pipeline. errCh may be nil to discard non-fatal errors.
func New(cfg Config, errCh chan error) *Pipeline {
	return &Pipeline{cfg: cfg, errCh: errCh}
}

// Run executes the pipeline and returns once all three workers have
// finished. Configuration errors (bad root, inverted depth bounds) and
// worker-pool initialization failures are fatal and returned; per-file I/O
// errors are absorbed by the stages.
func (p *Pipeline) Run() (*Result, error) {
	root, err := canonicalRoot(p.cfg.Root)
	if err != nil {
		return nil, err
	}
	if err := validateDepths(p.cfg.MinDepth, p.cfg.MaxDepth); err != nil {
		return nil, err
	}
	workers := p.cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	fileQueue := queue.New()
	sizes := store.NewSizeMap()
	digests := store.NewDigestMap()
	var walkerDone, sizeGroupDone atomic.Bool
	var maxPathLen atomic.Int64
	seed := digestSeed()

	walkCfg := walker.Config{
		Root:         root,
		IncludeTypes: p.cfg.IncludeTypes,
		ExcludeTypes: p.cfg.ExcludeTypes,
		MinDepth:     p.cfg.MinDepth,
		MaxDepth:     p.cfg.MaxDepth,
		FollowLinks:  p.cfg.FollowLinks,
		MinSize:      p.cfg.MinSize,
	}
	stages := []interface{ Run() error }{
		walker.New(walkCfg, fileQueue, &walkerDone, workers, p.cfg.ShowProgress, p.errCh),
		sizegrouper.New(fileQueue, sizes, &walkerDone, &sizeGroupDone),
		hashgrouper.New(sizes, digests, &sizeGroupDone, &maxPathLen,
			p.cfg.Strict, seed, workers, p.cfg.ShowProgress, p.errCh),
	}

	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, fmt.Errorf("worker pool: %w", err)
	}
	defer pool.Release()

	// Workers terminate on their own flags; no cancellation is needed. The
	// first worker error wins, the rest complete naturally.
	var wg sync.WaitGroup
	workerErrs := make(chan error, len(stages))
	for _, stage := range stages {
		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			if err := stage.Run(); err != nil {
				workerErrs <- err
			}
		}); err != nil {
			wg.Done()
			return nil, fmt.Errorf("submit worker: %w", err)
		}
	}
	wg.Wait()
	close(workerErrs)

	if err := <-workerErrs; err != nil {
		return nil, err
	}

	return &Result{
		Root:       root,
		Digests:    digests,
		MaxPathLen: maxPathLen.Load(),
	}, nil
}

// canonicalRoot resolves the scan root to an absolute path and verifies it
// is a directory. A failure here is a configuration error, surfaced before
// any worker starts.
func canonicalRoot(root string) (string, error) {
	if root == "" {
		root = "."
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve root %q: %w", root, err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("resolve root %q: %w", root, err)
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return "", fmt.Errorf("resolve root %q: %w", root, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("root %q is not a directory", root)
	}
	return resolved, nil
}

func validateDepths(minDepth, maxDepth int) error {
	if minDepth != walker.DepthUnbounded && minDepth < 0 {
		return fmt.Errorf("min depth %d is negative", minDepth)
	}
	if maxDepth != walker.DepthUnbounded && maxDepth < 0 {
		return fmt.Errorf("max depth %d is negative", maxDepth)
	}
	if minDepth != walker.DepthUnbounded && maxDepth != walker.DepthUnbounded && minDepth > maxDepth {
		return fmt.Errorf("min depth %d exceeds max depth %d", minDepth, maxDepth)
	}
	return nil
}
