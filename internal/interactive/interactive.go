// Package interactive walks the user through duplicate groups one at a time,
// deleting the files they select.
//
// For each group: a numbered table of the group's files, a prompt for
// comma-separated indices to delete (empty input skips the group), a
// confirmation, then unlink calls with a per-file DELETED/FAILED report.
package interactive

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/manifoldco/promptui"

	"github.com/ivoronin/dupehound/internal/renderer"
	"github.com/ivoronin/dupehound/internal/store"
	"github.com/ivoronin/dupehound/internal/types"
)

const mtimeLayout = "2006-01-02 15:04:05"

// Session runs the interactive deletion flow.
type Session struct {
	out    io.Writer
	in     io.ReadCloser // prompt input; nil = stdin
	root   string
	unlink func(string) error
}

// New creates a Session writing prompts and reports to out.
func New(out io.Writer, root string) *Session {
	return &Session{out: out, root: root, unlink: os.Remove}
}

// Run presents every duplicate group in digests and deletes the selections.
// Prompt abort (^C/^D) stops the session without an error.
func (s *Session) Run(digests *store.DigestMap) error {
	groups := renderer.DuplicateGroups(digests)
	if len(groups) == 0 {
		fmt.Fprintln(s.out, "No duplicates found matching your search criteria.")
		return nil
	}

	for i, group := range groups {
		fmt.Fprintf(s.out, "\nDuplicate set %d of %d\n", i+1, len(groups))
		fmt.Fprintln(s.out, s.groupTable(group).Render())

		selected, err := s.selectFiles(group)
		if err != nil {
			if err == promptui.ErrInterrupt || err == promptui.ErrEOF {
				return nil
			}
			return err
		}
		if len(selected) == 0 {
			continue
		}

		if ok, err := s.confirm(selected); err != nil || !ok {
			if err == nil {
				fmt.Fprintln(s.out, "Cancelled.")
				continue
			}
			if err == promptui.ErrInterrupt || err == promptui.ErrEOF {
				return nil
			}
			return err
		}

		s.deleteFiles(selected)
	}

	return nil
}

// groupTable builds the numbered per-group table.
func (s *Session) groupTable(files []*types.FileInfo) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"#", "file", "size", "modified"})
	for i, f := range files {
		rel, err := filepath.Rel(s.root, f.Path)
		if err != nil {
			rel = f.Path
		}
		t.AppendRow(table.Row{
			i,
			rel,
			humanize.IBytes(uint64(f.Size)),
			f.ModTime.Format(mtimeLayout),
		})
	}
	return t
}

// selectFiles prompts for the indices to delete within one group.
// An empty answer skips the group. At least one member must survive.
func (s *Session) selectFiles(group []*types.FileInfo) ([]*types.FileInfo, error) {
	prompt := promptui.Prompt{
		Label: "Indices to delete (e.g. 1,2; empty to skip)",
		Validate: func(input string) error {
			indices, err := ParseIndices(input, len(group))
			if err != nil {
				return err
			}
			if len(indices) == len(group) {
				return fmt.Errorf("cannot delete every file in the group")
			}
			return nil
		},
		Stdin: s.in,
	}

	answer, err := prompt.Run()
	if err != nil {
		return nil, err
	}

	indices, err := ParseIndices(answer, len(group))
	if err != nil {
		return nil, err
	}
	selected := make([]*types.FileInfo, 0, len(indices))
	for _, idx := range indices {
		selected = append(selected, group[idx])
	}
	return selected, nil
}

// confirm lists the selection and asks for a final y/N.
func (s *Session) confirm(selected []*types.FileInfo) (bool, error) {
	fmt.Fprintln(s.out, "\nThe following files will be deleted:")
	for i, f := range selected {
		fmt.Fprintf(s.out, "%d: %s\n", i, f.Path)
	}

	prompt := promptui.Prompt{
		Label:     "Confirm",
		IsConfirm: true,
		Stdin:     s.in,
	}
	if _, err := prompt.Run(); err != nil {
		if err == promptui.ErrAbort {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// deleteFiles unlinks the selection, reporting each outcome.
func (s *Session) deleteFiles(selected []*types.FileInfo) {
	for _, f := range selected {
		if err := s.unlink(f.Path); err != nil {
			fmt.Fprintf(s.out, "%s %s\n", color.RedString("FAILED:"), f.Path)
			continue
		}
		fmt.Fprintf(s.out, "%s %s\n", color.GreenString("DELETED:"), f.Path)
	}
}

// ParseIndices parses a comma-separated index list against a group of n
// files. Duplicate indices collapse; whitespace is tolerated; the empty
// string yields an empty selection.
func ParseIndices(input string, n int) ([]int, error) {
	seen := make(map[int]struct{})
	for _, field := range strings.Split(input, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		idx, err := strconv.Atoi(field)
		if err != nil {
			return nil, fmt.Errorf("%q is not an index", field)
		}
		if idx < 0 || idx >= n {
			return nil, fmt.Errorf("index %d out of range [0, %d]", idx, n-1)
		}
		seen[idx] = struct{}{}
	}

	indices := make([]int, 0, len(seen))
	for idx := range seen {
		indices = append(indices, idx)
	}
	sort.Ints(indices)
	return indices, nil
}
