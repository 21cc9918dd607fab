// Package renderer prints the final duplicate groups as tables.
//
// It consumes the pipeline's digest map, filters out length-1 debris, and
// renders one table section per duplicate group: the digest as a header, then
// one row per file with its path relative to the scan root, humanized size,
// and modification time.
package renderer

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/ivoronin/dupehound/internal/store"
	"github.com/ivoronin/dupehound/internal/types"
)

const mtimeLayout = "2006-01-02 15:04:05"

// Renderer formats duplicate groups for terminal output.
type Renderer struct {
	out        io.Writer
	root       string
	maxPathLen int
}

// New creates a Renderer writing to out. Paths are shown relative to root
// and padded to maxPathLen so group tables line up.
func New(out io.Writer, root string, maxPathLen int64) *Renderer {
	return &Renderer{out: out, root: root, maxPathLen: int(maxPathLen)}
}

// group pairs a digest with its files for deterministic output ordering.
type group struct {
	digest types.Digest
	files  []*types.FileInfo
}

// collectGroups extracts buckets of two or more files, ordered by their
// first file's path. Map iteration order and within-bucket arrival order are
// both non-deterministic across runs, so ordering is imposed here, at the
// edge.
func collectGroups(digests *store.DigestMap) []group {
	var groups []group
	digests.Range(func(d types.Digest, b *store.Bucket) bool {
		files := b.Files()
		if len(files) >= 2 {
			sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
			groups = append(groups, group{digest: d, files: files})
		}
		return true
	})
	sort.Slice(groups, func(i, j int) bool {
		return groups[i].files[0].Path < groups[j].files[0].Path
	})
	return groups
}

// DuplicateGroups returns the ordered duplicate sets, debris filtered.
func DuplicateGroups(digests *store.DigestMap) [][]*types.FileInfo {
	groups := collectGroups(digests)
	out := make([][]*types.FileInfo, len(groups))
	for i, g := range groups {
		out[i] = g.files
	}
	return out
}

// Print renders every duplicate group and a closing summary line.
// Returns the number of duplicate groups printed.
func (r *Renderer) Print(digests *store.DigestMap) int {
	groups := collectGroups(digests)

	if len(groups) == 0 {
		fmt.Fprintln(r.out, "No duplicates found matching your search criteria.")
		return 0
	}

	var dupFiles int
	var wastedBytes uint64
	for _, g := range groups {
		fmt.Fprintln(r.out, color.YellowString(g.digest.String()))
		fmt.Fprintln(r.out, r.groupTable(g.files).Render())
		fmt.Fprintln(r.out)
		dupFiles += len(g.files)
		wastedBytes += uint64(g.files[0].Size) * uint64(len(g.files)-1)
	}

	fmt.Fprintf(r.out, "%d duplicate groups, %d files, %s reclaimable\n",
		len(groups), dupFiles, humanize.IBytes(wastedBytes))
	return len(groups)
}

// groupTable builds the per-group file table.
func (r *Renderer) groupTable(files []*types.FileInfo) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.Style().Options.SeparateRows = false
	for _, f := range files {
		t.AppendRow(table.Row{
			fmt.Sprintf("%-*s", r.pathWidth(), r.relPath(f.Path)),
			humanize.IBytes(uint64(f.Size)),
			f.ModTime.Format(mtimeLayout),
		})
	}
	return t
}

// relPath shows the path relative to the scan root when possible.
func (r *Renderer) relPath(path string) string {
	rel, err := filepath.Rel(r.root, path)
	if err != nil {
		return path
	}
	return rel
}

// pathWidth bounds the padding column to the longest path the pipeline saw.
func (r *Renderer) pathWidth() int {
	if r.maxPathLen == 0 {
		return 1
	}
	return r.maxPathLen
}
