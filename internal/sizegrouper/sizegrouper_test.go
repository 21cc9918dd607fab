package sizegrouper

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/ivoronin/dupehound/internal/queue"
	"github.com/ivoronin/dupehound/internal/store"
	"github.com/ivoronin/dupehound/internal/types"
)

func newFile(path string, size int64) *types.FileInfo {
	return types.NewFileInfo(path, size, time.Now())
}

// TestGroupsBySize tests basic bucketing of a pre-filled queue.
func TestGroupsBySize(t *testing.T) {
	q := queue.New()
	q.Push(newFile("/a", 100))
	q.Push(newFile("/b", 100))
	q.Push(newFile("/c", 200))

	sizes := store.NewSizeMap()
	var walkerDone, done atomic.Bool
	walkerDone.Store(true)

	g := New(q, sizes, &walkerDone, &done)
	if err := g.Run(); err != nil {
		t.Fatalf("grouper: %v", err)
	}

	if got := len(sizes.Get(100)); got != 2 {
		t.Errorf("bucket 100 has %d files, want 2", got)
	}
	if got := len(sizes.Get(200)); got != 1 {
		t.Errorf("bucket 200 has %d files, want 1", got)
	}
	if q.Len() != 0 {
		t.Errorf("queue should be drained, %d left", q.Len())
	}
}

// TestSetsDoneFlagOnExit tests the done handshake.
func TestSetsDoneFlagOnExit(t *testing.T) {
	q := queue.New()
	sizes := store.NewSizeMap()
	var walkerDone, done atomic.Bool
	walkerDone.Store(true)

	g := New(q, sizes, &walkerDone, &done)
	if err := g.Run(); err != nil {
		t.Fatalf("grouper: %v", err)
	}
	if !done.Load() {
		t.Error("done flag must be set after Run returns")
	}
}

// TestBucketPreservesArrivalOrder tests that within a bucket, files keep
// queue order.
func TestBucketPreservesArrivalOrder(t *testing.T) {
	q := queue.New()
	for _, p := range []string{"/1", "/2", "/3"} {
		q.Push(newFile(p, 64))
	}

	sizes := store.NewSizeMap()
	var walkerDone, done atomic.Bool
	walkerDone.Store(true)

	g := New(q, sizes, &walkerDone, &done)
	if err := g.Run(); err != nil {
		t.Fatalf("grouper: %v", err)
	}

	files := sizes.Get(64)
	want := []string{"/1", "/2", "/3"}
	for i, p := range want {
		if files[i].Path != p {
			t.Errorf("files[%d].Path = %q, want %q", i, files[i].Path, p)
		}
	}
}

// TestWaitsForWalker tests that the grouper keeps draining items pushed
// after it starts and only exits once the walker signals done.
func TestWaitsForWalker(t *testing.T) {
	q := queue.New()
	sizes := store.NewSizeMap()
	var walkerDone, done atomic.Bool

	finished := make(chan error, 1)
	g := New(q, sizes, &walkerDone, &done)
	go func() { finished <- g.Run() }()

	// Trickle items in while the grouper is already running.
	for i := 0; i < 100; i++ {
		q.Push(newFile("/f", int64(i%5)))
		if i%25 == 0 {
			time.Sleep(time.Millisecond)
		}
	}

	select {
	case <-finished:
		t.Fatal("grouper exited before the walker was done")
	case <-time.After(10 * time.Millisecond):
	}

	walkerDone.Store(true)
	if err := <-finished; err != nil {
		t.Fatalf("grouper: %v", err)
	}

	var total int
	sizes.Range(func(_ int64, b *store.Bucket) bool {
		total += b.Len()
		return true
	})
	if total != 100 {
		t.Errorf("grouped %d files, want 100", total)
	}
	if !done.Load() {
		t.Error("done flag must be set")
	}
}
