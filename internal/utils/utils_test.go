package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertBytesToHumanReadable(t *testing.T) {
	tests := []struct {
		input    int64
		expected string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{5 * 1024 * 1024, "5.0 MiB"},
		{3 * 1024 * 1024 * 1024, "3.0 GiB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, ConvertBytesToHumanReadable(tt.input), "input %d", tt.input)
	}
}

func TestSniffFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	png := []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0}
	require.NoError(t, afero.WriteFile(fs, "/out/logo.png", png, 0o644))
	require.NoError(t, afero.WriteFile(fs, "/out/page.bin", []byte("<!DOCTYPE html><html><body>401</body></html>"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/out/empty", nil, 0o644))

	kind, err := SniffFile(fs, "/out/logo.png")
	require.NoError(t, err)
	assert.Equal(t, "image/png", kind.MIME)
	assert.Equal(t, "png", kind.Extension)
	assert.Equal(t, int64(len(png)), kind.Size)

	kind, err = SniffFile(fs, "/out/page.bin")
	require.NoError(t, err)
	assert.True(t, kind.LooksLikeHTML())

	kind, err = SniffFile(fs, "/out/empty")
	require.NoError(t, err)
	assert.Empty(t, kind.MIME)
	assert.Zero(t, kind.Size)

	_, err = SniffFile(fs, "/out/missing")
	assert.Error(t, err)
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "abc", ShortID("abc"))
	assert.Equal(t, "01234567", ShortID("0123456789"))
}

func TestEnsureAbsPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	wd, err := os.Getwd()
	require.NoError(t, err)

	assert.Equal(t, wd, EnsureAbsPath(""))
	assert.Equal(t, filepath.Join(wd, "models"), EnsureAbsPath("models"))
	assert.Equal(t, filepath.Join(home, "models"), EnsureAbsPath("~/models"))
	assert.Equal(t, home, EnsureAbsPath("~"))
}

func TestDebugAndCleanupLogs(t *testing.T) {
	dir := t.TempDir()
	ConfigureDebug(dir)
	SetVerbose(true)
	t.Cleanup(func() {
		SetVerbose(false)
		CloseDebug()
		ConfigureDebug("")
	})

	Debug("session %s: started", "abc")
	CloseDebug()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	assert.Contains(t, string(data), "session abc: started")

	for _, name := range []string{"hfetch-20240101-000000.log", "hfetch-20240102-000000.log", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}
	CleanupLogs(1)

	entries, err = os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Len(t, names, 2)
	assert.Contains(t, names, "notes.txt")
	assert.NotContains(t, names, "hfetch-20240101-000000.log")
}
