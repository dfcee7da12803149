package tests

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWithTmpDir(t *testing.T) {
	dir1, teardown1 := WithTmpDir(t)
	dir2, teardown2 := WithTmpDir(t)

	require.NotEqual(t, dir1, dir2)

	exists := func(path string) bool {
		_, err := os.Stat(path)
		return err == nil
	}
	require.True(t, exists(dir1))
	require.True(t, exists(dir2))

	teardown1()
	require.False(t, exists(dir1))
	require.True(t, exists(dir2))

	teardown2()
	require.False(t, exists(dir1))
	require.False(t, exists(dir2))
}

func TestWithTmpFile(t *testing.T) {
	f1, teardown1 := WithTmpFile(t, "changelog")
	f2, teardown2 := WithTmpFile(t, "changelog")

	require.NotEqual(t, f1.Name(), f2.Name())

	exists := func(file *os.File) bool {
		_, err := os.Stat(file.Name())
		return err == nil
	}
	require.True(t, exists(f1))
	require.True(t, exists(f2))

	teardown1()
	require.False(t, exists(f1))
	require.True(t, exists(f2))

	teardown2()
	require.False(t, exists(f1))
	require.False(t, exists(f2))

	f1.Close()
}
