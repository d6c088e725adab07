package util

import (
	"path/filepath"
	"testing"

	"github.com/nalgeon/be"
)

func TestLowDiskSpace(t *testing.T) {
	dir := t.TempDir()

	avail, low := LowDiskSpace(dir, 0)
	be.True(t, !low)
	be.True(t, avail >= 0)

	// no filesystem has an exabyte free
	avail, low = LowDiskSpace(dir, 1<<30)
	be.True(t, low)
	be.True(t, avail >= 0)
}

func TestLowDiskSpaceUnknownPath(t *testing.T) {
	avail, low := LowDiskSpace(filepath.Join(t.TempDir(), "missing", "dir"), 10)
	be.True(t, !low)
	be.Equal(t, avail, -1.0)
}
