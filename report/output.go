package report

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

type output struct {
	file       *os.File
	buf        *bufio.Writer
	compressor io.WriteCloser
	w          io.Writer
}

// CreateOutput creates path for writing. Paths ending in .gz or .zst are
// compressed.
func CreateOutput(path string) (io.WriteCloser, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}
	out := &output{file: file, buf: bufio.NewWriterSize(file, 256*1024)}
	out.w = out.buf

	switch {
	case strings.HasSuffix(path, ".gz"):
		out.compressor = gzip.NewWriter(out.buf)
	case strings.HasSuffix(path, ".zst"):
		out.compressor, err = zstd.NewWriter(out.buf)
		if err != nil {
			_ = file.Close()
			return nil, fmt.Errorf("failed to create zstd writer: %w", err)
		}
	}
	if out.compressor != nil {
		out.w = out.compressor
	}
	return out, nil
}

func (o *output) Write(p []byte) (int, error) {
	return o.w.Write(p)
}

func (o *output) Close() (retErr error) {
	defer func() {
		if err := o.file.Close(); err != nil && retErr == nil {
			retErr = fmt.Errorf("file close failed: %w", err)
		}
	}()
	if o.compressor != nil {
		if err := o.compressor.Close(); err != nil {
			return fmt.Errorf("compressed writer close failed: %w", err)
		}
	}
	if err := o.buf.Flush(); err != nil {
		return fmt.Errorf("buffer flush failed: %w", err)
	}
	return nil
}

type input struct {
	file *os.File
	r    io.Reader
	done func()
}

// OpenInput opens path for reading, decompressing .gz and .zst files.
func OpenInput(path string) (io.ReadCloser, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	in := &input{file: file, r: file, done: func() {}}

	switch {
	case strings.HasSuffix(path, ".gz"):
		gz, err := gzip.NewReader(file)
		if err != nil {
			_ = file.Close()
			return nil, fmt.Errorf("failed to read gzip header of %s: %w", path, err)
		}
		in.r = gz
		in.done = func() { _ = gz.Close() }
	case strings.HasSuffix(path, ".zst"):
		dec, err := zstd.NewReader(file)
		if err != nil {
			_ = file.Close()
			return nil, fmt.Errorf("failed to create zstd reader for %s: %w", path, err)
		}
		in.r = dec
		in.done = dec.Close
	}
	return in, nil
}

func (i *input) Read(p []byte) (int, error) {
	return i.r.Read(p)
}

func (i *input) Close() error {
	i.done()
	return i.file.Close()
}
