package archive

import (
	"archive/tar"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"compose-backup/internal/config"
)

func TestNewArchiverExtensions(t *testing.T) {
	tests := []struct {
		compression string
		extension   string
	}{
		{config.CompressionGzip, ".tar.gz"},
		{config.CompressionZstd, ".tar.zst"},
		{config.CompressionLZ4, ".tar.lz4"},
		{"", ".tar.gz"},
	}

	for _, tt := range tests {
		archiver, err := NewArchiver(tt.compression)
		require.NoError(t, err)
		assert.Equal(t, tt.extension, archiver.Extension())
	}
}

func TestNewArchiverRejectsUnknownAlgorithm(t *testing.T) {
	_, err := NewArchiver("brotli")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported compression")
}

func TestCreateProducesReadableArchive(t *testing.T) {
	baseDir := t.TempDir()
	folder := filepath.Join(baseDir, "webapp")
	require.NoError(t, os.MkdirAll(filepath.Join(folder, "data"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(folder, "docker-compose.yml"), []byte("services: {}\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(folder, "data", "app.db"), []byte("payload"), 0o644))

	archiver, err := NewArchiver(config.CompressionGzip)
	require.NoError(t, err)

	archivePath := filepath.Join(t.TempDir(), "webapp.tar.gz")
	require.NoError(t, archiver.Create(archivePath, baseDir, "webapp"))

	entries := readTarGz(t, archivePath)
	sort.Strings(entries)
	assert.Equal(t, []string{
		"webapp/",
		"webapp/data/",
		"webapp/data/app.db",
		"webapp/docker-compose.yml",
	}, entries)
}

func TestCreateFolderIsTopLevelEntry(t *testing.T) {
	baseDir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(baseDir, "svc"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(baseDir, "svc", "f.txt"), []byte("x"), 0o644))

	archiver, err := NewArchiver(config.CompressionGzip)
	require.NoError(t, err)

	archivePath := filepath.Join(t.TempDir(), "svc.tar.gz")
	require.NoError(t, archiver.Create(archivePath, baseDir, "svc"))

	for _, name := range readTarGz(t, archivePath) {
		assert.Regexp(t, `^svc(/|$)`, name)
	}
}

func TestCreateMissingSourceFails(t *testing.T) {
	archiver, err := NewArchiver(config.CompressionGzip)
	require.NoError(t, err)

	archivePath := filepath.Join(t.TempDir(), "missing.tar.gz")
	err = archiver.Create(archivePath, t.TempDir(), "missing")
	require.Error(t, err)

	_, statErr := os.Stat(archivePath)
	assert.True(t, os.IsNotExist(statErr), "no archive file should be left behind")
}

func TestCreateZstdAndLZ4Archives(t *testing.T) {
	baseDir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(baseDir, "svc"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(baseDir, "svc", "f.txt"), []byte("x"), 0o644))

	for _, compression := range []string{config.CompressionZstd, config.CompressionLZ4} {
		archiver, err := NewArchiver(compression)
		require.NoError(t, err)

		archivePath := filepath.Join(t.TempDir(), "svc"+archiver.Extension())
		require.NoError(t, archiver.Create(archivePath, baseDir, "svc"))

		info, err := os.Stat(archivePath)
		require.NoError(t, err)
		assert.Greater(t, info.Size(), int64(0))
	}
}

func readTarGz(t *testing.T, archivePath string) []string {
	t.Helper()

	file, err := os.Open(archivePath)
	require.NoError(t, err)
	defer file.Close()

	gz, err := gzip.NewReader(file)
	require.NoError(t, err)
	defer gz.Close()

	var names []string
	tr := tar.NewReader(gz)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		names = append(names, header.Name)
	}
	return names
}
