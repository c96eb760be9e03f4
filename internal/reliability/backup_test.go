package reliability

import (
	"archive/tar"
	"compress/gzip"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyFilePreservesContent(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "calibration.db")
	dst := filepath.Join(dir, "staged.db")
	require.NoError(t, os.WriteFile(src, []byte("sqlite payload"), 0o644))

	require.NoError(t, copyFile(src, dst))

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, []byte("sqlite payload"), got)
}

func TestFileChecksumIsStable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "forward.db")
	require.NoError(t, os.WriteFile(path, []byte("abc"), 0o644))

	sum1, err := fileChecksum(path)
	require.NoError(t, err)
	sum2, err := fileChecksum(path)
	require.NoError(t, err)

	assert.Equal(t, sum1, sum2)
	assert.Len(t, sum1, 64) // sha256 hex

	require.NoError(t, os.WriteFile(path, []byte("abd"), 0o644))
	sum3, err := fileChecksum(path)
	require.NoError(t, err)
	assert.NotEqual(t, sum1, sum3)
}

func TestWriteManifestRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.json")

	want := Manifest{
		Timestamp: time.Date(2024, 5, 1, 3, 0, 0, 0, time.UTC),
		Files: []ManifestFile{
			{Name: "calibration.db", SizeBytes: 42, Checksum: "deadbeef"},
		},
	}
	require.NoError(t, writeManifest(path, want))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var got Manifest
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.True(t, got.Timestamp.Equal(want.Timestamp))
	assert.Equal(t, want.Files, got.Files)
}

func TestCreateArchiveContainsNamedFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "calibration.db"), []byte("cal"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "manifest.json"), []byte("{}"), 0o644))

	archivePath := filepath.Join(t.TempDir(), "backup.tar.gz")
	require.NoError(t, createArchive(archivePath, dir, []string{"calibration.db", "manifest.json"}))

	f, err := os.Open(archivePath)
	require.NoError(t, err)
	defer f.Close()

	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	defer gz.Close()

	contents := map[string]string{}
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		body, err := io.ReadAll(tr)
		require.NoError(t, err)
		contents[hdr.Name] = string(body)
	}

	assert.Equal(t, map[string]string{
		"calibration.db": "cal",
		"manifest.json":  "{}",
	}, contents)
}