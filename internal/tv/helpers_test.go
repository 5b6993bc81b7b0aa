package tv_test

import (
	"os"
	"path/filepath"
	"testing"

	"tv-go/internal/fs"
	"tv-go/internal/repo"
	"tv-go/internal/testutil"
	"tv-go/internal/tv"
)

// harness wires the engine to the real filesystem with a stub clock and ids.
type harness struct {
	fsmgr tv.FilesystemManager
	clock *testutil.StubClock
	ids   *testutil.StubIDGenerator
	sync  *tv.Synchronizer
	vm    *tv.VersionManager
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWith(t, fs.NewOSFilesystemManager())
}

func newHarnessWith(t *testing.T, fsmgr tv.FilesystemManager) *harness {
	t.Helper()
	clock := testutil.FixedClock()
	ids := testutil.NewStubIDGenerator()
	logger := tv.NewNopLogger()
	vm := tv.NewVersionManager(fsmgr, repo.Open, logger, clock, ids)
	vm.SetWorkers(4)
	return &harness{
		fsmgr: fsmgr,
		clock: clock,
		ids:   ids,
		sync:  tv.NewSynchronizer(fsmgr, logger, clock),
		vm:    vm,
	}
}

// newRepo creates a base tree from files and initializes a repository at
// <base>/.tv. It returns the base and repository paths.
func (h *harness) newRepo(t *testing.T, files map[string]string, opts tv.RepositoryOptions) (string, string) {
	t.Helper()
	base := filepath.Join(t.TempDir(), "work")
	testutil.WriteTree(t, base, files)
	r, err := h.vm.InitRepository(base, "", opts)
	if err != nil {
		t.Fatalf("InitRepository() error = %v", err)
	}
	return base, r.RepositoryPath
}

func requireKind(t *testing.T, err error, kind tv.ErrorKind) {
	t.Helper()
	if !tv.IsKind(err, kind) {
		t.Fatalf("error = %v (kind %s), want kind %s", err, tv.KindOf(err), kind)
	}
}

func equalTrees(t *testing.T, got, want map[string]string) {
	t.Helper()
	if len(got) != len(want) {
		t.Errorf("tree has %d files %v, want %d files %v", len(got), keys(got), len(want), keys(want))
	}
	for rel, content := range want {
		g, ok := got[rel]
		if !ok {
			t.Errorf("missing %s", rel)
			continue
		}
		if g != content {
			t.Errorf("%s = %q, want %q", rel, g, content)
		}
	}
}

func keys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	return string(data)
}
