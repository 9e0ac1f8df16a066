package archive

import (
	"archive/tar"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"compose-backup/internal/config"
	apperrors "compose-backup/internal/errors"
)

// Archiver compresses one directory tree into a single archive file.
// Entries are stored relative to the base directory, so the folder itself
// is the top-level entry of the archive.
type Archiver interface {
	Create(archivePath, baseDir, entryName string) error
	Extension() string
}

// compressorFunc wraps an output file in the algorithm's stream writer
type compressorFunc func(w io.Writer) (io.WriteCloser, error)

// tarArchiver implements Archiver as a tar stream behind a compressor
type tarArchiver struct {
	compress  compressorFunc
	extension string
}

// NewArchiver returns the archiver for the configured compression algorithm
func NewArchiver(compression string) (Archiver, error) {
	switch compression {
	case "", config.CompressionGzip:
		return &tarArchiver{
			compress: func(w io.Writer) (io.WriteCloser, error) {
				return gzip.NewWriterLevel(w, gzip.DefaultCompression)
			},
			extension: ".tar.gz",
		}, nil
	case config.CompressionZstd:
		return &tarArchiver{
			compress: func(w io.Writer) (io.WriteCloser, error) {
				return zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
			},
			extension: ".tar.zst",
		}, nil
	case config.CompressionLZ4:
		return &tarArchiver{
			compress: func(w io.Writer) (io.WriteCloser, error) {
				return lz4.NewWriter(w), nil
			},
			extension: ".tar.lz4",
		}, nil
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %s", compression)
	}
}

// Extension returns the archive file extension including the leading dot
func (a *tarArchiver) Extension() string {
	return a.extension
}

// Create archives baseDir/entryName into archivePath. A partially written
// archive is removed on failure so a failed folder leaves no debris behind.
func (a *tarArchiver) Create(archivePath, baseDir, entryName string) error {
	root := filepath.Join(baseDir, entryName)
	if _, err := os.Stat(root); err != nil {
		return apperrors.NewAppError(apperrors.ErrorTypeArchive,
			fmt.Sprintf("archive source %s is not readable", root), err)
	}

	out, err := os.Create(archivePath)
	if err != nil {
		return apperrors.NewAppError(apperrors.ErrorTypeArchive,
			fmt.Sprintf("failed to create archive file %s", archivePath), err)
	}

	if err := a.writeArchive(out, baseDir, root); err != nil {
		out.Close()
		os.Remove(archivePath)
		return err
	}

	if err := out.Close(); err != nil {
		os.Remove(archivePath)
		return apperrors.NewAppError(apperrors.ErrorTypeArchive,
			fmt.Sprintf("failed to finalize archive file %s", archivePath), err)
	}

	return nil
}

func (a *tarArchiver) writeArchive(out io.Writer, baseDir, root string) error {
	compressor, err := a.compress(out)
	if err != nil {
		return apperrors.NewAppError(apperrors.ErrorTypeArchive, "failed to initialize compressor", err)
	}

	tw := tar.NewWriter(compressor)

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		return a.addEntry(tw, baseDir, path, d)
	})
	if walkErr != nil {
		tw.Close()
		compressor.Close()
		return apperrors.NewAppError(apperrors.ErrorTypeArchive,
			fmt.Sprintf("failed to archive %s", root), walkErr)
	}

	if err := tw.Close(); err != nil {
		compressor.Close()
		return apperrors.NewAppError(apperrors.ErrorTypeArchive, "failed to close tar stream", err)
	}
	if err := compressor.Close(); err != nil {
		return apperrors.NewAppError(apperrors.ErrorTypeArchive, "failed to close compressor", err)
	}

	return nil
}

func (a *tarArchiver) addEntry(tw *tar.Writer, baseDir, path string, d fs.DirEntry) error {
	info, err := d.Info()
	if err != nil {
		return err
	}

	// Sockets, devices and the like are not meaningful in a backup
	if !info.Mode().IsRegular() && !info.IsDir() && info.Mode()&fs.ModeSymlink == 0 {
		return nil
	}

	link := ""
	if info.Mode()&fs.ModeSymlink != 0 {
		if link, err = os.Readlink(path); err != nil {
			return err
		}
	}

	header, err := tar.FileInfoHeader(info, link)
	if err != nil {
		return err
	}

	rel, err := filepath.Rel(baseDir, path)
	if err != nil {
		return err
	}
	header.Name = filepath.ToSlash(rel)
	if info.IsDir() && !strings.HasSuffix(header.Name, "/") {
		header.Name += "/"
	}

	if err := tw.WriteHeader(header); err != nil {
		return err
	}

	if !info.Mode().IsRegular() {
		return nil
	}

	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	_, err = io.Copy(tw, file)
	return err
}
