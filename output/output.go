package output

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
)

// ErrNotDirectory reports a destination path that exists but is not a directory.
var ErrNotDirectory = errors.New("destination exists and is not a directory")

// PrepareDir makes sure path is a directory. It is a no-op for an existing
// directory and creates missing ones, parents included.
func PrepareDir(path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("destination directory is empty")
	}

	info, err := os.Stat(path)
	switch {
	case err == nil:
		if !info.IsDir() {
			return fmt.Errorf("%s: %w", path, ErrNotDirectory)
		}
		return nil
	case errors.Is(err, os.ErrNotExist):
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("create dir %s: %w", path, err)
		}
		return nil
	default:
		return fmt.Errorf("stat %s: %w", path, err)
	}
}

// Dirs writes html documents and images into two destination directories.
type Dirs struct {
	HTMLDir       string
	AttachmentDir string
}

// NewDirs prepares both directories and returns a sink writing into them.
func NewDirs(htmlDir, attachmentDir string) (*Dirs, error) {
	if err := PrepareDir(htmlDir); err != nil {
		return nil, fmt.Errorf("cannot create html dir: %w", err)
	}
	if err := PrepareDir(attachmentDir); err != nil {
		return nil, fmt.Errorf("cannot create attachment dir: %w", err)
	}
	return &Dirs{HTMLDir: htmlDir, AttachmentDir: attachmentDir}, nil
}

// CreateHTML creates (or truncates) name inside the html directory.
func (d *Dirs) CreateHTML(name string) (io.WriteCloser, error) {
	path, err := confine(d.HTMLDir, name)
	if err != nil {
		return nil, err
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create html: %w", err)
	}
	return file, nil
}

// WriteImage writes data to name inside the attachment directory, truncating
// any existing file.
func (d *Dirs) WriteImage(name string, data []byte) error {
	path, err := confine(d.AttachmentDir, name)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write image: %w", err)
	}
	return nil
}

// confine joins the last element of name to dir so that archive supplied
// names, which may be URLs or Windows paths, never leave dir.
func confine(dir, name string) (string, error) {
	base := filepath.Base(filepath.FromSlash(strings.ReplaceAll(name, `\`, "/")))
	if base == "" || base == "." || base == ".." || base == string(filepath.Separator) {
		return "", fmt.Errorf("invalid output name %q", name)
	}
	return filepath.Join(dir, base), nil
}

// Discard accepts every part and only counts the bytes it was given.
type Discard struct {
	bytes atomic.Int64
}

func (d *Discard) CreateHTML(string) (io.WriteCloser, error) {
	return &countingWriter{n: &d.bytes}, nil
}

func (d *Discard) WriteImage(_ string, data []byte) error {
	d.bytes.Add(int64(len(data)))
	return nil
}

// Bytes returns the number of bytes discarded so far.
func (d *Discard) Bytes() int64 {
	return d.bytes.Load()
}

type countingWriter struct {
	n *atomic.Int64
}

func (w *countingWriter) Write(p []byte) (int, error) {
	w.n.Add(int64(len(p)))
	return len(p), nil
}

func (w *countingWriter) Close() error {
	return nil
}
