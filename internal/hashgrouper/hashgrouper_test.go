package hashgrouper

import (
	"bytes"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ivoronin/dupehound/internal/store"
	"github.com/ivoronin/dupehound/internal/types"
)

// writeFile creates path with the given content and returns its FileInfo.
func writeFile(t *testing.T, path string, content []byte) *types.FileInfo {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}
	return types.NewFileInfo(path, int64(len(content)), time.Now())
}

// runGrouper runs a grouper over a pre-filled size map with the upstream
// already done, returning the digest map and max path length.
func runGrouper(t *testing.T, sizes *store.SizeMap, strict bool, seed uint64) (*store.DigestMap, int64) {
	t.Helper()
	digests := store.NewDigestMap()
	var done atomic.Bool
	done.Store(true)
	var maxPathLen atomic.Int64

	g := New(sizes, digests, &done, &maxPathLen, strict, seed, 4, false, nil)
	if err := g.Run(); err != nil {
		t.Fatalf("grouper: %v", err)
	}
	return digests, maxPathLen.Load()
}

// fill repeats b for n bytes.
func fill(b byte, n int) []byte {
	return bytes.Repeat([]byte{b}, n)
}

// =============================================================================
// Section 1: Digest Functions
// =============================================================================

// TestFastDigestEqualPrefixes tests that same-size files sharing their first
// 16KiB get the same fast digest even when the tail differs.
func TestFastDigestEqualPrefixes(t *testing.T) {
	root := t.TempDir()
	prefix := fill('P', fastPrefixSize)
	a := writeFile(t, filepath.Join(root, "a"), append(fill('P', fastPrefixSize), fill('a', 4096)...))
	b := writeFile(t, filepath.Join(root, "b"), append(prefix, fill('b', 4096)...))

	const seed = 7
	da, err := fastDigest(a.Path, seed)
	if err != nil {
		t.Fatal(err)
	}
	db, err := fastDigest(b.Path, seed)
	if err != nil {
		t.Fatal(err)
	}
	if da != db {
		t.Error("fast digests of shared-prefix files must agree")
	}
}

// TestFastDigestShortFile tests files smaller than the prefix window.
func TestFastDigestShortFile(t *testing.T) {
	root := t.TempDir()
	a := writeFile(t, filepath.Join(root, "a"), []byte("hello"))
	b := writeFile(t, filepath.Join(root, "b"), []byte("hello"))
	c := writeFile(t, filepath.Join(root, "c"), []byte("hellx"))

	const seed = 7
	da, _ := fastDigest(a.Path, seed)
	db, _ := fastDigest(b.Path, seed)
	dc, _ := fastDigest(c.Path, seed)
	if da != db {
		t.Error("identical short files must share a digest")
	}
	if da == dc {
		t.Error("differing short files must not share a digest")
	}
}

// TestStrictDigestWholeFile tests that strict digests see past the fast
// window: identical 16KiB prefixes with different tails must differ.
func TestStrictDigestWholeFile(t *testing.T) {
	root := t.TempDir()
	prefix := fill('P', fastPrefixSize)
	a := writeFile(t, filepath.Join(root, "a"), append(fill('P', fastPrefixSize), fill('a', 8192)...))
	b := writeFile(t, filepath.Join(root, "b"), append(prefix, fill('b', 8192)...))

	const seed = 7
	da, err := strictDigest(a.Path, seed)
	if err != nil {
		t.Fatal(err)
	}
	db, err := strictDigest(b.Path, seed)
	if err != nil {
		t.Fatal(err)
	}
	if da == db {
		t.Error("strict digests must distinguish differing tails")
	}
}

// TestStrictDigestDeterministic tests digest stability for a fixed seed.
func TestStrictDigestDeterministic(t *testing.T) {
	root := t.TempDir()
	f := writeFile(t, filepath.Join(root, "f"), fill('z', 10000))

	const seed = 42
	d1, err := strictDigest(f.Path, seed)
	if err != nil {
		t.Fatal(err)
	}
	d2, err := strictDigest(f.Path, seed)
	if err != nil {
		t.Fatal(err)
	}
	if d1 != d2 {
		t.Error("strict digest must be deterministic for a fixed seed")
	}
}

// TestEmptyFileDigestIsUnique tests that the digest of an empty file differs
// from the digest of a file of zero bytes content - the length term at work.
func TestEmptyFileDigestIsUnique(t *testing.T) {
	root := t.TempDir()
	empty := writeFile(t, filepath.Join(root, "empty"), nil)
	nulls := writeFile(t, filepath.Join(root, "nulls"), make([]byte, 4096))

	const seed = 9
	de, err := strictDigest(empty.Path, seed)
	if err != nil {
		t.Fatal(err)
	}
	dn, err := strictDigest(nulls.Path, seed)
	if err != nil {
		t.Fatal(err)
	}
	if de == dn {
		t.Error("empty file must not collide with a null-byte file")
	}
	if de == (types.Digest{}) {
		t.Error("empty file digest must not be the zero accumulator")
	}
}

// =============================================================================
// Section 2: Grouping
// =============================================================================

// TestGroupsIdenticalContent tests that two identical files share a digest
// bucket and both end up processed.
func TestGroupsIdenticalContent(t *testing.T) {
	root := t.TempDir()
	content := fill('R', 4096)
	a := writeFile(t, filepath.Join(root, "a"), content)
	b := writeFile(t, filepath.Join(root, "b"), content)

	sizes := store.NewSizeMap()
	sizes.Append(a.Size, a)
	sizes.Append(b.Size, b)

	digests, _ := runGrouper(t, sizes, true, 1)

	var buckets, members int
	digests.Range(func(_ types.Digest, bkt *store.Bucket) bool {
		buckets++
		members += bkt.Len()
		return true
	})
	if buckets != 1 || members != 2 {
		t.Errorf("got %d buckets / %d members, want 1 / 2", buckets, members)
	}
	if !a.Processed() || !b.Processed() {
		t.Error("every candidate member must be marked processed")
	}
}

// TestSkipsSingletonBuckets tests that size buckets below two members are
// never hashed.
func TestSkipsSingletonBuckets(t *testing.T) {
	root := t.TempDir()
	a := writeFile(t, filepath.Join(root, "a"), fill('x', 100))

	sizes := store.NewSizeMap()
	sizes.Append(a.Size, a)

	digests, _ := runGrouper(t, sizes, false, 1)
	if digests.Len() != 0 {
		t.Errorf("singleton bucket produced %d digest entries", digests.Len())
	}
	if a.Processed() {
		t.Error("non-candidate must stay unprocessed")
	}
}

// TestMemberHashedOnce tests that re-running passes never hashes a claimed
// member again (the digest map would show duplicates).
func TestMemberHashedOnce(t *testing.T) {
	root := t.TempDir()
	content := fill('d', 512)
	a := writeFile(t, filepath.Join(root, "a"), content)
	b := writeFile(t, filepath.Join(root, "b"), content)

	sizes := store.NewSizeMap()
	sizes.Append(a.Size, a)
	sizes.Append(b.Size, b)

	digests := store.NewDigestMap()
	var done atomic.Bool
	var maxPathLen atomic.Int64

	g := New(sizes, digests, &done, &maxPathLen, false, 1, 4, false, nil)
	finished := make(chan error, 1)
	go func() { finished <- g.Run() }()

	// Let at least one pass land, then add a third identical file and stop.
	time.Sleep(5 * time.Millisecond)
	c := writeFile(t, filepath.Join(root, "c"), content)
	sizes.Append(c.Size, c)
	done.Store(true)
	if err := <-finished; err != nil {
		t.Fatalf("grouper: %v", err)
	}

	var members int
	digests.Range(func(_ types.Digest, bkt *store.Bucket) bool {
		members += bkt.Len()
		return true
	})
	if members != 3 {
		t.Errorf("digest map holds %d members, want exactly 3", members)
	}
}

// TestVanishedFileDropped tests that a file deleted between grouping and
// hashing is dropped silently and the rest of the bucket survives.
func TestVanishedFileDropped(t *testing.T) {
	root := t.TempDir()
	content := fill('v', 2048)
	a := writeFile(t, filepath.Join(root, "a"), content)
	b := writeFile(t, filepath.Join(root, "b"), content)
	ghost := writeFile(t, filepath.Join(root, "ghost"), content)
	if err := os.Remove(ghost.Path); err != nil {
		t.Fatal(err)
	}

	sizes := store.NewSizeMap()
	for _, f := range []*types.FileInfo{a, b, ghost} {
		sizes.Append(f.Size, f)
	}

	digests, _ := runGrouper(t, sizes, true, 1)

	var members int
	digests.Range(func(_ types.Digest, bkt *store.Bucket) bool {
		members += bkt.Len()
		return true
	})
	if members != 2 {
		t.Errorf("digest map holds %d members, want 2 (ghost dropped)", members)
	}
	if !ghost.Processed() {
		t.Error("the vanished file was claimed and stays claimed")
	}
}

// TestMaxPathLenTracksLongestPath tests the monotonic path-length counter.
func TestMaxPathLenTracksLongestPath(t *testing.T) {
	root := t.TempDir()
	content := fill('m', 64)
	a := writeFile(t, filepath.Join(root, "short"), content)
	b := writeFile(t, filepath.Join(root, "a", "much", "deeper", "duplicate"), content)

	sizes := store.NewSizeMap()
	sizes.Append(a.Size, a)
	sizes.Append(b.Size, b)

	_, maxPathLen := runGrouper(t, sizes, false, 1)
	want := int64(len(b.Path))
	if maxPathLen != want {
		t.Errorf("maxPathLen = %d, want %d", maxPathLen, want)
	}
}

// TestFastAndStrictAgreeOnIdenticalFiles tests that both modes group exact
// duplicates together.
func TestFastAndStrictAgreeOnIdenticalFiles(t *testing.T) {
	for _, strict := range []bool{false, true} {
		root := t.TempDir()
		content := fill('e', 3*fastPrefixSize)
		a := writeFile(t, filepath.Join(root, "a"), content)
		b := writeFile(t, filepath.Join(root, "b"), content)

		sizes := store.NewSizeMap()
		sizes.Append(a.Size, a)
		sizes.Append(b.Size, b)

		digests, _ := runGrouper(t, sizes, strict, 3)
		if digests.Len() != 1 {
			t.Errorf("strict=%v: got %d digest buckets, want 1", strict, digests.Len())
		}
	}
}
