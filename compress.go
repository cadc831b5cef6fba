package apng

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// DumpCompression selects how a frame dump payload is compressed.
type DumpCompression uint16

const (
	DumpNone DumpCompression = iota
	DumpZIP
	DumpZSTD
	DumpLZ4
	DumpBrotli
)

func (c DumpCompression) String() string {
	switch c {
	case DumpNone:
		return "none"
	case DumpZIP:
		return "zip"
	case DumpZSTD:
		return "zstd"
	case DumpLZ4:
		return "lz4"
	case DumpBrotli:
		return "brotli"
	}
	return fmt.Sprintf("DumpCompression(%d)", uint16(c))
}

const (
	dumpCompressionMask = 0x00FF
	dumpFlagHasRawLen   = 0x0100 // payload starts with the 8-byte uncompressed length
	dumpZipEntry        = "frames.gob"
)

// Function variables for testing injection.
var (
	newZstdWriter = func() (*zstd.Encoder, error) { return zstd.NewWriter(nil) }
	newZstdReader = func() (*zstd.Decoder, error) { return zstd.NewReader(nil) }
	zipCreate     = func(zw *zip.Writer, name string) (io.Writer, error) { return zw.Create(name) }
	zipClose      = func(zw *zip.Writer) error { return zw.Close() }
	zipOpen       = func(zf *zip.File) (io.ReadCloser, error) { return zf.Open() }
	readAll       = io.ReadAll
	lz4Close      = func(w *lz4.Writer) error { return w.Close() }
	brotliClose   = func(w *brotli.Writer) error { return w.Close() }
	brotliWrite   = func(w *brotli.Writer, p []byte) (int, error) { return w.Write(p) }
)

// compressDump compresses raw with comp. It returns the header field value
// (algorithm plus flags) and the payload. Compressed payloads carry an 8-byte
// little-endian uncompressed length prefix.
func compressDump(comp DumpCompression, raw []byte) (uint16, []byte, error) {
	var (
		packed []byte
		err    error
	)
	switch comp {
	case DumpNone:
		return uint16(DumpNone), raw, nil
	case DumpZIP:
		packed, err = zipPack(raw)
	case DumpZSTD:
		packed, err = zstdPack(raw)
	case DumpLZ4:
		packed, err = lz4Pack(raw)
	case DumpBrotli:
		packed, err = brotliPack(raw)
	default:
		return 0, nil, fmt.Errorf("%w: unknown compression %d", ErrValidation, comp)
	}
	if err != nil {
		return 0, nil, err
	}
	payload := make([]byte, 8, 8+len(packed))
	binary.LittleEndian.PutUint64(payload, uint64(len(raw)))
	payload = append(payload, packed...)
	return uint16(comp) | dumpFlagHasRawLen, payload, nil
}

// decompressDump reverses compressDump, refusing to expand beyond maxRaw.
func decompressDump(field uint16, payload []byte, maxRaw uint64) ([]byte, error) {
	comp := DumpCompression(field & dumpCompressionMask)
	hasLen := field&dumpFlagHasRawLen != 0
	if field&^(dumpCompressionMask|dumpFlagHasRawLen) != 0 {
		return nil, fmt.Errorf("%w: unknown compression flags %#04x", ErrInvalidDumpPayload, field)
	}
	if comp == DumpNone {
		if hasLen {
			return nil, fmt.Errorf("%w: uncompressed payload with length prefix", ErrInvalidDumpPayload)
		}
		return payload, nil
	}
	if !hasLen {
		return nil, fmt.Errorf("%w: missing uncompressed length", ErrInvalidDumpPayload)
	}
	if len(payload) < 8 {
		return nil, fmt.Errorf("%w: payload too short for uncompressed length", ErrInvalidDumpPayload)
	}
	rawLen := binary.LittleEndian.Uint64(payload[:8])
	if rawLen > maxRaw {
		return nil, fmt.Errorf("%w: uncompressed length %d exceeds limit", ErrLimitExceeded, rawLen)
	}
	packed := payload[8:]

	var (
		out []byte
		err error
	)
	switch comp {
	case DumpZIP:
		out, err = zipUnpack(packed, rawLen)
	case DumpZSTD:
		out, err = zstdUnpack(packed, rawLen)
	case DumpLZ4:
		out, err = lz4Unpack(packed, rawLen)
	case DumpBrotli:
		out, err = brotliUnpack(packed, rawLen)
	default:
		return nil, fmt.Errorf("%w: unknown compression %d", ErrInvalidDumpPayload, comp)
	}
	if err != nil {
		return nil, err
	}
	if uint64(len(out)) != rawLen {
		return nil, fmt.Errorf("%w: %s payload expanded to %d bytes, want %d", ErrInvalidDumpPayload, comp, len(out), rawLen)
	}
	return out, nil
}

// zipPack stores raw as the single entry of a ZIP archive.
func zipPack(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	entry, err := zipCreate(zw, dumpZipEntry)
	if err != nil {
		_ = zipClose(zw)
		return nil, err
	}
	if _, err := entry.Write(raw); err != nil {
		_ = zipClose(zw)
		return nil, err
	}
	if err := zipClose(zw); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// zipUnpack requires an archive holding exactly the frames entry, of the
// expected size.
func zipUnpack(packed []byte, expected uint64) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(packed), int64(len(packed)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDumpPayload, err)
	}
	if len(zr.File) != 1 {
		return nil, fmt.Errorf("%w: zip must contain exactly one entry", ErrInvalidDumpPayload)
	}
	zf := zr.File[0]
	if zf.Name != dumpZipEntry || zf.FileInfo().IsDir() {
		return nil, fmt.Errorf("%w: unexpected zip entry %q", ErrInvalidDumpPayload, zf.Name)
	}
	if zf.UncompressedSize64 != expected {
		return nil, fmt.Errorf("%w: zip entry size %d, want %d", ErrInvalidDumpPayload, zf.UncompressedSize64, expected)
	}
	rc, err := zipOpen(zf)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return readAll(io.LimitReader(rc, int64(expected)))
}

func zstdPack(raw []byte) ([]byte, error) {
	enc, err := newZstdWriter()
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(raw, nil), nil
}

func zstdUnpack(packed []byte, expected uint64) ([]byte, error) {
	dec, err := newZstdReader()
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	out, err := dec.DecodeAll(packed, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDumpPayload, err)
	}
	if uint64(len(out)) > expected {
		return nil, fmt.Errorf("%w: zstd expanded beyond expected size", ErrInvalidDumpPayload)
	}
	return out, nil
}

func lz4Pack(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := lz4.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		_ = lz4Close(zw)
		return nil, err
	}
	if err := lz4Close(zw); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func lz4Unpack(packed []byte, expected uint64) ([]byte, error) {
	r := lz4.NewReader(bytes.NewReader(packed))
	out, err := readAll(io.LimitReader(r, int64(expected)+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDumpPayload, err)
	}
	if uint64(len(out)) > expected {
		return nil, fmt.Errorf("%w: lz4 expanded beyond expected size", ErrInvalidDumpPayload)
	}
	return out, nil
}

func brotliPack(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	bw := brotli.NewWriter(&buf)
	if _, err := brotliWrite(bw, raw); err != nil {
		_ = brotliClose(bw)
		return nil, err
	}
	if err := brotliClose(bw); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func brotliUnpack(packed []byte, expected uint64) ([]byte, error) {
	r := brotli.NewReader(bytes.NewReader(packed))
	out, err := readAll(io.LimitReader(r, int64(expected)+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDumpPayload, err)
	}
	if uint64(len(out)) > expected {
		return nil, fmt.Errorf("%w: brotli expanded beyond expected size", ErrInvalidDumpPayload)
	}
	return out, nil
}
