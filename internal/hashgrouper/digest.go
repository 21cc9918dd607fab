package hashgrouper

import (
	"crypto/rand"
	"encoding/binary"
	"io"
	"os"

	"github.com/edsrzf/mmap-go"
	"github.com/zeebo/xxh3"

	"github.com/ivoronin/dupehound/internal/types"
)

const (
	// fastPrefixSize is how much of the file the fast digest reads.
	fastPrefixSize = 16 * 1024
	// foldChunkSize is the chunk size for the strict XOR-fold digest.
	foldChunkSize = 4 * 1024
)

// NewSeed draws a random digest seed. Drawn once per process and threaded
// into every hash call, so digests are stable within a process but not across
// processes; the grouping partition is what callers may compare.
func NewSeed() uint64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand never fails on supported platforms; a zero seed still
		// yields a correct (just unkeyed) partition.
		return 0
	}
	return binary.LittleEndian.Uint64(buf[:])
}

func toDigest(u xxh3.Uint128) types.Digest {
	return types.Digest{Hi: u.Hi, Lo: u.Lo}
}

// fastDigest hashes the file's first 16 KiB via a regular read.
//
// Candidates reaching this point already share their byte length, so the
// digest deliberately omits a length term: same-size files agreeing on the
// prefix are reported as duplicates without further verification.
func fastDigest(path string, seed uint64) (types.Digest, error) {
	f, err := os.Open(path)
	if err != nil {
		return types.Digest{}, err
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, fastPrefixSize)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return types.Digest{}, err
	}

	return toDigest(xxh3.Hash128Seed(buf[:n], seed)), nil
}

// strictDigest hashes the entire file: an XOR-fold of the keyed 128-bit hash
// of each 4 KiB chunk of the memory-mapped content, combined with the hash
// of the byte length.
//
// Each chunk hash is bound to the chunk's offset (rehashed together with it)
// before folding, so equal chunks at different positions do not cancel out
// and reordered chunks do not collide. The length term is mandatory: without
// it an empty file (accumulator 0) would collide with any file whose chunks
// XOR-fold to zero.
func strictDigest(path string, seed uint64) (types.Digest, error) {
	f, err := os.Open(path)
	if err != nil {
		return types.Digest{}, err
	}
	defer func() { _ = f.Close() }()

	var acc types.Digest
	var length int64

	info, err := f.Stat()
	if err != nil {
		return types.Digest{}, err
	}
	if info.Size() > 0 {
		// Zero-length files cannot be mapped; they take the pure length-term
		// digest below.
		m, err := mmap.Map(f, mmap.RDONLY, 0)
		if err != nil {
			return types.Digest{}, err
		}
		defer func() { _ = m.Unmap() }()

		length = int64(len(m))
		var posBuf [24]byte
		for off := 0; off < len(m); off += foldChunkSize {
			end := min(off+foldChunkSize, len(m))
			h := xxh3.Hash128Seed(m[off:end], seed)
			binary.LittleEndian.PutUint64(posBuf[0:], h.Hi)
			binary.LittleEndian.PutUint64(posBuf[8:], h.Lo)
			binary.LittleEndian.PutUint64(posBuf[16:], uint64(off))
			h = xxh3.Hash128Seed(posBuf[:], seed)
			acc.Hi ^= h.Hi
			acc.Lo ^= h.Lo
		}
	}

	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(length))
	h := xxh3.Hash128Seed(lenBuf[:], seed)
	acc.Hi ^= h.Hi
	acc.Lo ^= h.Lo

	return acc, nil
}
