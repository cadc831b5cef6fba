package apng

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

// Function variables for testing injection.
var (
	newZlibWriter = func(w io.Writer, level int) (*zlib.Writer, error) { return zlib.NewWriterLevel(w, level) }
	newZlibReader = func(r io.Reader) (io.ReadCloser, error) { return zlib.NewReader(r) }
)

// inflate decompresses a zlib stream that must yield at least size bytes.
// Bytes past size are not read.
func inflate(data []byte, size int) ([]byte, error) {
	zr, err := newZlibReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImageData, err)
	}
	defer zr.Close()
	out := make([]byte, size)
	if _, err := io.ReadFull(zr, out); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("%w: not enough pixel data", ErrInvalidImageData)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidImageData, err)
	}
	return out, nil
}

// deflate compresses raw at the given zlib level. Output is deterministic
// for a given input and level.
func deflate(raw []byte, level int) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := newZlibWriter(&buf, level)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(raw); err != nil {
		_ = zw.Close()
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
