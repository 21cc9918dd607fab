package testfs

import (
	"os"
	"path/filepath"
	"testing"
)

// Harness sows a FileTree into t.TempDir() and offers path helpers and
// existence assertions for verifying deletion flows.
type Harness struct {
	t    *testing.T
	root string
}

// New creates a Harness with the given FileTree sown under a fresh temp
// directory. Cleanup is automatic via t.TempDir() mechanics.
func New(t *testing.T, given FileTree) *Harness {
	t.Helper()

	root := t.TempDir()
	if err := SowFileTree(root, given); err != nil {
		t.Fatalf("failed to setup files: %v", err)
	}
	return &Harness{t: t, root: root}
}

// Root returns the temporary directory root path.
func (h *Harness) Root() string {
	return h.root
}

// Path resolves a tree-relative path to an absolute one.
func (h *Harness) Path(rel string) string {
	return filepath.Join(h.root, rel)
}

// AssertExists fails the test unless the tree-relative path exists.
func (h *Harness) AssertExists(rel string) {
	h.t.Helper()
	if _, err := os.Stat(h.Path(rel)); err != nil {
		h.t.Errorf("expected %s to exist: %v", rel, err)
	}
}

// AssertGone fails the test unless the tree-relative path is absent.
func (h *Harness) AssertGone(rel string) {
	h.t.Helper()
	if _, err := os.Stat(h.Path(rel)); !os.IsNotExist(err) {
		h.t.Errorf("expected %s to be gone, stat returned %v", rel, err)
	}
}
