// Package store provides the concurrent bucket maps shared by the pipeline
// stages.
//
// Both the size map (byte length → files) and the digest map (content digest
// → files) have the same access pattern: many small appends under different
// keys, rare full iterations. A lock-striped concurrent map with one small
// mutex per bucket matches that pattern; there is no global lock, and
// iteration tolerates keys added concurrently.
package store

import (
	"sync"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/ivoronin/dupehound/internal/types"
)

// Bucket is an ordered list of files sharing one key.
// Append preserves arrival order. Reads take a per-bucket snapshot, so a
// bucket observed mid-growth is consistent at bucket granularity.
type Bucket struct {
	mu    sync.Mutex
	files []*types.FileInfo
}

// Append adds a file at the end of the bucket.
func (b *Bucket) Append(f *types.FileInfo) {
	b.mu.Lock()
	b.files = append(b.files, f)
	b.mu.Unlock()
}

// Files returns a snapshot copy of the bucket's members.
func (b *Bucket) Files() []*types.FileInfo {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*types.FileInfo, len(b.files))
	copy(out, b.files)
	return out
}

// Len returns the bucket's current cardinality.
func (b *Bucket) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.files)
}

// Map is a concurrent mapping from a scalar key to a growable file bucket.
type Map[K comparable] struct {
	m *xsync.MapOf[K, *Bucket]
}

// NewMap creates an empty map.
func NewMap[K comparable]() *Map[K] {
	return &Map[K]{m: xsync.NewMapOf[K, *Bucket]()}
}

// Append adds a file to the bucket for key, creating the bucket if needed.
func (m *Map[K]) Append(key K, f *types.FileInfo) {
	b, _ := m.m.LoadOrCompute(key, func() *Bucket { return &Bucket{} })
	b.Append(f)
}

// Get returns a snapshot of the bucket for key, or nil if absent.
func (m *Map[K]) Get(key K) []*types.FileInfo {
	b, ok := m.m.Load(key)
	if !ok {
		return nil
	}
	return b.Files()
}

// Range iterates buckets until fn returns false. Keys inserted during the
// iteration may or may not be visited; the hash grouper compensates by
// re-scanning until the upstream done flag is set.
func (m *Map[K]) Range(fn func(key K, b *Bucket) bool) {
	m.m.Range(fn)
}

// Len returns the number of keys.
func (m *Map[K]) Len() int {
	return m.m.Size()
}

// SizeMap buckets files by exact byte length.
type SizeMap = Map[int64]

// DigestMap buckets files by content digest.
type DigestMap = Map[types.Digest]

// NewSizeMap creates an empty size map.
func NewSizeMap() *SizeMap { return NewMap[int64]() }

// NewDigestMap creates an empty digest map.
func NewDigestMap() *DigestMap { return NewMap[types.Digest]() }
