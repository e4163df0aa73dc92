package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireWritesOwner(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")

	lock, err := AcquireLock(dir)
	require.NoError(t, err)
	defer lock.Release()

	assert.Equal(t, filepath.Join(dir, LockFileName), lock.Path())
	content, err := os.ReadFile(lock.Path())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(content), fmt.Sprintf("pid=%d\nstarted=", os.Getpid())), string(content))
}

func TestSecondAcquireFails(t *testing.T) {
	dir := t.TempDir()

	first, err := AcquireLock(dir)
	require.NoError(t, err)
	defer first.Release()

	second, err := AcquireLock(dir)
	require.Error(t, err)
	assert.Nil(t, second)

	var lockErr *LockError
	require.True(t, errors.As(err, &lockErr))
	assert.Equal(t, filepath.Join(dir, LockFileName), lockErr.LockPath)
	assert.Contains(t, lockErr.Holder, fmt.Sprintf("PID %d (running", os.Getpid()))
	assert.Contains(t, err.Error(), "rm "+lockErr.LockPath)
	assert.NotNil(t, errors.Unwrap(err))

	// The failed attempt must not clobber the holder's details.
	content, err := os.ReadFile(first.Path())
	require.NoError(t, err)
	assert.Contains(t, string(content), fmt.Sprintf("pid=%d", os.Getpid()))
}

func TestReleaseAllowsReacquire(t *testing.T) {
	dir := t.TempDir()

	lock, err := AcquireLock(dir)
	require.NoError(t, err)
	require.NoError(t, lock.Release())
	require.NoError(t, lock.Release())

	_, err = os.Stat(filepath.Join(dir, LockFileName))
	assert.True(t, os.IsNotExist(err))

	again, err := AcquireLock(dir)
	require.NoError(t, err)
	require.NoError(t, again.Release())
}

func TestStaleLockFileIsReused(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, LockFileName)
	require.NoError(t, os.WriteFile(path, []byte("pid=999999\n"), 0644))

	lock, err := AcquireLock(dir)
	require.NoError(t, err)
	defer lock.Release()

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(content), "999999")
}

func TestDescribeHolder(t *testing.T) {
	dir := t.TempDir()
	write := func(content string) string {
		p := filepath.Join(dir, "lock")
		require.NoError(t, os.WriteFile(p, []byte(content), 0644))
		return p
	}

	assert.Equal(t, "unknown", describeHolder(filepath.Join(dir, "missing")))
	assert.Equal(t, "unknown", describeHolder(write("")))
	assert.Equal(t, "unknown", describeHolder(write("pid=abc\n")))
	assert.Equal(t, fmt.Sprintf("PID %d (running)", os.Getpid()), describeHolder(write(fmt.Sprintf("pid=%d\n", os.Getpid()))))
	assert.Equal(t, "PID 999999 (not running, started 2026-01-01T00:00:00Z)",
		describeHolder(write("pid=999999\nstarted=2026-01-01T00:00:00Z\n")))
}

func TestNilLockRelease(t *testing.T) {
	var l *Lock
	assert.NoError(t, l.Release())
}
