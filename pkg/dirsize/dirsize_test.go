package dirsize

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path string, size int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o644))
}

func compute(t *testing.T, path string) Result {
	t.Helper()
	res, err := New(ModeApparent).Compute(context.Background(), path)
	require.NoError(t, err)
	return res
}

func TestCompute_FlatDirectory(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "one"), 1)
	writeFile(t, filepath.Join(root, "two"), 2)
	writeFile(t, filepath.Join(root, "three"), 3)

	res := compute(t, root)
	require.EqualValues(t, 6, res.TotalBytes)
	require.EqualValues(t, 3, res.Files)
	require.False(t, res.Partial)
	require.False(t, res.Unknown)
}

func TestCompute_EmptyDirectory(t *testing.T) {
	res := compute(t, t.TempDir())
	require.EqualValues(t, 0, res.TotalBytes)
	require.EqualValues(t, 0, res.Files)
	require.False(t, res.Unknown)
}

func TestCompute_EmptyTreeOfDirectories(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "a", "b", "c"), 0o755))

	res := compute(t, root)
	require.EqualValues(t, 0, res.TotalBytes)
	require.EqualValues(t, 3, res.Dirs)
}

func TestCompute_Nested(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), 10)
	writeFile(t, filepath.Join(root, "sub", "b.txt"), 20)

	res := compute(t, root)
	require.EqualValues(t, 30, res.TotalBytes)
	require.EqualValues(t, 2, res.Files)
	require.EqualValues(t, 1, res.Dirs)
}

func TestCompute_DeepNesting(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "d", "x"), 7)
	writeFile(t, filepath.Join(root, "d", "a", "y"), 11)
	writeFile(t, filepath.Join(root, "d", "a", "b", "z"), 13)
	writeFile(t, filepath.Join(root, "e", "w"), 17)

	require.EqualValues(t, 48, compute(t, root).TotalBytes)
	require.EqualValues(t, 24, compute(t, filepath.Join(root, "d", "a")).TotalBytes)
}

func TestCompute_Idempotent(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a"), 123)
	writeFile(t, filepath.Join(root, "s", "b"), 456)

	first := compute(t, root)
	second := compute(t, root)
	require.Equal(t, first.TotalBytes, second.TotalBytes)
	require.Equal(t, first.Files, second.Files)
}

func TestCompute_SeesNewFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a"), 10)

	before := compute(t, root)
	writeFile(t, filepath.Join(root, "new"), 5)
	after := compute(t, root)

	require.EqualValues(t, 10, before.TotalBytes)
	require.EqualValues(t, 15, after.TotalBytes)
}

func TestCompute_RootIsFile(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "only.bin")
	writeFile(t, file, 42)

	res := compute(t, file)
	require.EqualValues(t, 42, res.TotalBytes)
	require.EqualValues(t, 1, res.Files)
}

func TestCompute_MissingRootIsUnknown(t *testing.T) {
	res := compute(t, filepath.Join(t.TempDir(), "gone"))
	require.True(t, res.Unknown)
	require.EqualValues(t, 0, res.TotalBytes)
	require.EqualValues(t, 0, DirectorySize(filepath.Join(t.TempDir(), "gone")))
}

func TestCompute_Symlinks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	root := t.TempDir()
	outside := t.TempDir()
	writeFile(t, filepath.Join(outside, "big"), 1000)
	writeFile(t, filepath.Join(outside, "dir", "inner"), 500)
	writeFile(t, filepath.Join(root, "small"), 1)

	require.NoError(t, os.Symlink(filepath.Join(outside, "big"), filepath.Join(root, "link-to-file")))
	require.NoError(t, os.Symlink(filepath.Join(outside, "dir"), filepath.Join(root, "link-to-dir")))
	require.NoError(t, os.Symlink(filepath.Join(root, "nowhere"), filepath.Join(root, "dangling")))

	res := compute(t, root)
	// The file link counts as its target; the directory link is not descended.
	require.EqualValues(t, 1001, res.TotalBytes)
	require.EqualValues(t, 2, res.Files)
	require.EqualValues(t, 0, res.Dirs)
	require.False(t, res.Partial)
}

func TestCompute_RootSymlinkMeasuresTarget(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	target := t.TempDir()
	writeFile(t, filepath.Join(target, "f"), 64)
	link := filepath.Join(t.TempDir(), "link")
	require.NoError(t, os.Symlink(target, link))

	require.EqualValues(t, 64, compute(t, link).TotalBytes)
}

func TestCompute_UnreadableSubdirIsPartial(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits are not enforced on windows")
	}
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "visible"), 10)
	locked := filepath.Join(root, "locked")
	writeFile(t, filepath.Join(locked, "hidden"), 99)
	require.NoError(t, os.Chmod(locked, 0o000))
	t.Cleanup(func() { os.Chmod(locked, 0o755) })

	res := compute(t, root)
	require.EqualValues(t, 10, res.TotalBytes)
	require.True(t, res.Partial)
	require.False(t, res.Unknown)
	require.EqualValues(t, 1, res.SkippedCount)
	require.Equal(t, []string{locked}, res.Skipped)
	require.EqualValues(t, 0, res.Dirs)
}

func TestCompute_UnreadableRootIsUnknown(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits are not enforced on windows")
	}
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}
	root := filepath.Join(t.TempDir(), "locked")
	writeFile(t, filepath.Join(root, "f"), 10)
	require.NoError(t, os.Chmod(root, 0o000))
	t.Cleanup(func() { os.Chmod(root, 0o755) })

	res := compute(t, root)
	require.True(t, res.Unknown)
	require.EqualValues(t, 0, res.TotalBytes)
}

func TestCompute_CancelledContext(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a"), 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(ModeApparent).Compute(ctx, root)
	require.ErrorIs(t, err, context.Canceled)
}

func TestCompute_AllocatedSparseFile(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("sparse files need explicit flags on windows")
	}
	root := t.TempDir()
	f, err := os.Create(filepath.Join(root, "sparse"))
	require.NoError(t, err)
	require.NoError(t, f.Truncate(8<<20))
	require.NoError(t, f.Close())

	apparent, err := New(ModeApparent).Compute(context.Background(), root)
	require.NoError(t, err)
	allocated, err := New(ModeAllocated).Compute(context.Background(), root)
	require.NoError(t, err)

	require.EqualValues(t, 8<<20, apparent.TotalBytes)
	require.Less(t, allocated.TotalBytes, apparent.TotalBytes)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	require.Equal(t, ModeApparent, m)

	m, err = ParseMode("allocated")
	require.NoError(t, err)
	require.Equal(t, ModeAllocated, m)
	require.Equal(t, "allocated", m.String())
	require.Equal(t, ModeAllocated, New(m).Mode())

	_, err = ParseMode("blocks")
	require.Error(t, err)
}
