package sink

import (
	"bufio"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/miku/oaipoll"
	"github.com/mitchellh/go-homedir"
)

// CompressThreshold is the size in bytes above which files get gzipped.
const CompressThreshold = 1024

var ErrClosed = errors.New("file sink closed")

// File writes records into a file, that is gzipped, if it grows beyond
// CompressThreshold. Records are spooled to a temporary file, the target
// appears on Close.
type File struct {
	*Writer
	spool *spool
}

// NewFile creates a file sink, a leading ~ in filename is expanded.
func NewFile(filename, rootTag string) (*File, error) {
	expanded, err := homedir.Expand(filename)
	if err != nil {
		return nil, err
	}
	s := &spool{target: expanded}
	w := NewWriter(s)
	w.RootTag = rootTag
	return &File{Writer: w, spool: s}, nil
}

// Name returns the target filename.
func (f *File) Name() string { return f.spool.target }

// Emit writes a single record.
func (f *File) Emit(ctx context.Context, r oaipoll.Record) error {
	return f.Writer.Emit(ctx, r)
}

// Close finishes the document and moves the file into place.
func (f *File) Close() error {
	if err := f.Writer.Close(); err != nil {
		return err
	}
	return f.spool.commit()
}

// spool buffers writes in a temporary file until commit.
type spool struct {
	target string
	tmp    *os.File
	buf    *bufio.Writer
	size   int
	done   bool
}

func (s *spool) Write(p []byte) (int, error) {
	if s.done {
		return 0, ErrClosed
	}
	if s.tmp == nil {
		if err := s.open(); err != nil {
			return 0, err
		}
	}
	n, err := s.buf.Write(p)
	s.size += n
	return n, err
}

func (s *spool) open() error {
	tmp, err := os.CreateTemp("", "oaipoll-spool-")
	if err != nil {
		return err
	}
	s.tmp, s.buf = tmp, bufio.NewWriter(tmp)
	return nil
}

// commit copies the spooled bytes next to the target, compressing them if
// there are enough, and renames the result into place.
func (s *spool) commit() error {
	if s.done {
		return ErrClosed
	}
	s.done = true
	if s.tmp == nil {
		if err := s.open(); err != nil {
			return err
		}
	}
	defer func() {
		s.tmp.Close()
		os.Remove(s.tmp.Name())
	}()
	if err := s.buf.Flush(); err != nil {
		return err
	}
	if _, err := s.tmp.Seek(0, io.SeekStart); err != nil {
		return err
	}
	dir := filepath.Dir(s.target)
	if err := ensureDir(dir); err != nil {
		return err
	}
	out, err := os.CreateTemp(dir, "."+filepath.Base(s.target)+"-")
	if err != nil {
		return err
	}
	if err := s.copyTo(out); err != nil {
		out.Close()
		os.Remove(out.Name())
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(out.Name())
		return err
	}
	if err := os.Chmod(out.Name(), 0644); err != nil {
		return err
	}
	return os.Rename(out.Name(), s.target)
}

func (s *spool) copyTo(w io.Writer) error {
	if s.size < CompressThreshold {
		_, err := io.Copy(w, s.tmp)
		return err
	}
	gz := gzip.NewWriter(w)
	if _, err := io.Copy(gz, s.tmp); err != nil {
		return err
	}
	return gz.Close()
}

func ensureDir(dir string) error {
	fi, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return os.MkdirAll(dir, 0755)
	}
	if err != nil {
		return err
	}
	if !fi.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}
	return nil
}
