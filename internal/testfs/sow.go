package testfs

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
)

// SowFileTree creates a filesystem structure from a FileTree specification,
// rooted at root.
func SowFileTree(root string, spec FileTree) error {
	for _, f := range spec.Files {
		path := filepath.Join(root, f.Path)
		if err := writeChunkedFile(path, f.Chunks); err != nil {
			return fmt.Errorf("create %s: %w", path, err)
		}
	}
	for _, sym := range spec.Symlinks {
		linkPath := filepath.Join(root, sym.Path)
		if err := createSymlink(sym.Target, linkPath); err != nil {
			return fmt.Errorf("symlink %s -> %s: %w", linkPath, sym.Target, err)
		}
	}
	return nil
}

// writeChunkedFile streams content directly to disk.
// Efficiently handles both tiny (100B) and huge (1GiB) chunks.
func writeChunkedFile(path string, chunks []Chunk) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	for _, c := range chunks {
		if err := writeChunk(f, c); err != nil {
			return err
		}
	}
	return nil
}

// writeChunk writes a single chunk to the file using streaming.
func writeChunk(f *os.File, c Chunk) error {
	const maxBufSize = 1 << 20 // 1MiB max buffer

	size, err := humanize.ParseBytes(c.Size)
	if err != nil {
		return fmt.Errorf("parse chunk size %q: %w", c.Size, err)
	}

	bufSize := int(size)
	if bufSize > maxBufSize {
		bufSize = maxBufSize
	}
	buf := bytes.Repeat([]byte{byte(c.Pattern)}, bufSize)

	remaining := int64(size)
	for remaining > 0 {
		toWrite := int64(len(buf))
		if remaining < toWrite {
			toWrite = remaining
		}
		if _, err := f.Write(buf[:toWrite]); err != nil {
			return err
		}
		remaining -= toWrite
	}
	return nil
}

// createSymlink creates a symlink, creating parent dirs.
func createSymlink(target, link string) error {
	if err := os.MkdirAll(filepath.Dir(link), 0o755); err != nil {
		return err
	}
	return os.Symlink(target, link)
}
