// Package types provides shared types used across the dupehound codebase.
package types

import (
	"fmt"
	"sync/atomic"
	"time"
)

// FileInfo holds metadata for a scanned regular file.
//
// All fields except the processed state are set once by the walker and never
// mutated afterwards. The processed state transitions Unprocessed → Processed
// exactly once, claimed by whichever hashing goroutine wins the CAS.
type FileInfo struct {
	Path    string
	Size    int64
	ModTime time.Time

	state atomic.Uint32
}

const (
	unprocessed uint32 = iota
	processed
)

// NewFileInfo creates a FileInfo in the Unprocessed state.
func NewFileInfo(path string, size int64, modTime time.Time) *FileInfo {
	return &FileInfo{Path: path, Size: size, ModTime: modTime}
}

// MarkProcessed attempts the Unprocessed → Processed transition.
// Returns true if this caller won the transition, false if the file was
// already claimed. The transition is monotonic; there is no way back.
func (f *FileInfo) MarkProcessed() bool {
	return f.state.CompareAndSwap(unprocessed, processed)
}

// Processed reports whether the file has been claimed for hashing.
// The flag is set once and never reset, so readers need no lock.
func (f *FileInfo) Processed() bool {
	return f.state.Load() == processed
}

// Digest is a 128-bit content digest used as the duplicate-group key.
type Digest struct {
	Hi, Lo uint64
}

// String formats the digest as 32 hex digits.
func (d Digest) String() string {
	return fmt.Sprintf("%016x%016x", d.Hi, d.Lo)
}

// Semaphore implements a counting semaphore using a buffered channel.
// It limits concurrent access to a resource by blocking when the limit is reached.
type Semaphore chan struct{}

// NewSemaphore creates a semaphore that allows up to n concurrent acquisitions.
func NewSemaphore(n int) Semaphore { return make(chan struct{}, n) }

// Acquire blocks until a slot is available, then claims it.
func (s Semaphore) Acquire() { s <- struct{}{} }

// Release frees a slot, unblocking one waiting Acquire call.
func (s Semaphore) Release() { <-s }
