// Package testfs provides a declarative file-tree harness for pipeline tests.
//
// Tests describe a tree once and sow it into a temp directory:
//
//	given := testfs.FileTree{
//	    Files: []testfs.File{
//	        {Path: "a.bin", Chunks: []testfs.Chunk{{Pattern: 'A', Size: "1MiB"}}},
//	        {Path: "copy/a.bin", Chunks: []testfs.Chunk{{Pattern: 'A', Size: "1MiB"}}},
//	    },
//	}
//	h := testfs.New(t, given)
//	// run the pipeline over h.Root() ...
//
// Subdirectories are created automatically from file paths (mkdir -p
// semantics). Identical chunk sequences produce identical content, which is
// how duplicate fixtures are expressed.
package testfs

import "github.com/dustin/go-humanize"

// FileTree describes a filesystem state to sow.
type FileTree struct {
	Files    []File
	Symlinks []Symlink
}

// File defines a regular file.
//
// Content is specified via Chunks - each chunk fills a region with its
// pattern byte. Same chunks = same content = duplicates detected. A file
// with no chunks is created empty.
type File struct {
	// Path is relative to the harness root.
	Path string

	// Chunks specifies file content as a sequence of filled regions.
	Chunks []Chunk
}

// Chunk defines a region of file content filled with a pattern byte.
type Chunk struct {
	// Pattern is the fill byte for this chunk region.
	Pattern rune

	// Size in IEC units (1024-based): "1KiB", "1MiB", or a bare byte count.
	// Parsed via go-humanize for precise alignment with digest boundaries.
	Size string
}

// TotalSize calculates the sum of all chunk sizes in bytes.
func (f *File) TotalSize() int64 {
	var total int64
	for _, c := range f.Chunks {
		size, _ := humanize.ParseBytes(c.Size)
		total += int64(size)
	}
	return total
}

// Symlink defines a symbolic link at Path pointing to Target.
type Symlink struct {
	// Path is relative to the harness root.
	Path string

	// Target is what the link points to, verbatim.
	Target string
}
