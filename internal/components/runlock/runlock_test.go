package runlock

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAcquire(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.lock")

	lock, err := Acquire(path)
	require.NoError(t, err)

	_, err = Acquire(path)
	require.ErrorIs(t, err, ErrLocked)

	require.NoError(t, lock.Release())

	lock, err = Acquire(path)
	require.NoError(t, err)
	require.NoError(t, lock.Release())
}

func TestAcquireStale(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.lock")

	// pids are capped well below this on every supported platform
	err := os.WriteFile(path, []byte("2147483646\n"), 0600)
	if err != nil {
		t.Fatal(err)
	}

	lock, err := Acquire(path)
	require.NoError(t, err)
	require.NoError(t, lock.Release())
}

func TestAcquireGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.lock")
	err := os.WriteFile(path, []byte("not a pid"), 0600)
	if err != nil {
		t.Fatal(err)
	}

	lock, err := Acquire(path)
	require.NoError(t, err)
	require.NoError(t, lock.Release())
}
