package gtfs

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/klauspost/compress/zip"
)

// ArchiveEntry is one file of a GTFS bundle, fully buffered.
type ArchiveEntry struct {
	Name string // path inside the archive
	Data []byte
}

// Table returns the destination table name for the entry: the lower-cased base
// name without the .txt extension.
func (e *ArchiveEntry) Table() string {
	return TableName(e.Name)
}

// ArchiveReader walks the entries of a zip bundle once, in archive order.
//
// The zip central directory sits at the end of the file, so the source stream is
// spooled to a temporary file first. Close removes it.
type ArchiveReader struct {
	tmpPath string
	zr      *zip.ReadCloser
	next    int
}

// NewArchiveReader spools r to disk and opens it as a zip archive.
func NewArchiveReader(r io.Reader) (*ArchiveReader, error) {
	tmp, err := os.CreateTemp("", "gtfs-*.zip")
	if err != nil {
		return nil, fmt.Errorf("create spool file: %w", err)
	}
	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return nil, fmt.Errorf("spool archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return nil, err
	}
	zr, err := zip.OpenReader(tmp.Name())
	if err != nil {
		_ = os.Remove(tmp.Name())
		return nil, fmt.Errorf("open archive: %w", err)
	}
	return &ArchiveReader{tmpPath: tmp.Name(), zr: zr}, nil
}

// Len returns the number of entries in the archive, directories included.
func (a *ArchiveReader) Len() int { return len(a.zr.File) }

// Next returns the next entry whose name passes accept, fully read into memory.
// Directories are never returned. A nil accept admits every file. Next returns
// io.EOF after the last entry.
func (a *ArchiveReader) Next(accept func(name string) bool) (*ArchiveEntry, error) {
	for a.next < len(a.zr.File) {
		f := a.zr.File[a.next]
		a.next++
		if f.FileInfo().IsDir() || strings.HasSuffix(f.Name, "/") {
			continue
		}
		if accept != nil && !accept(f.Name) {
			continue
		}
		data, err := readEntry(f)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f.Name, err)
		}
		return &ArchiveEntry{Name: f.Name, Data: data}, nil
	}
	return nil, io.EOF
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	var buf bytes.Buffer
	// size hint only, the header value is not trusted beyond this
	buf.Grow(int(min(f.UncompressedSize64, maxSizeHint)))
	if _, err := io.Copy(&buf, rc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

const maxSizeHint = 64 << 20

// Close releases the archive and deletes the spool file.
func (a *ArchiveReader) Close() error {
	err := a.zr.Close()
	if rmErr := os.Remove(a.tmpPath); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) && err == nil {
		err = rmErr
	}
	return err
}

// TableName maps an entry path such as "feed/Stops.txt" to "stops".
func TableName(name string) string {
	base := strings.ToLower(path.Base(name))
	return strings.TrimSuffix(base, ".txt")
}

// IsTabular reports whether name looks like a GTFS text table.
func IsTabular(name string) bool {
	return !strings.HasSuffix(name, "/") && strings.HasSuffix(strings.ToLower(name), ".txt")
}
