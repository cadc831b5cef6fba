package apng

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

var allDumpCompressions = []DumpCompression{DumpNone, DumpZIP, DumpZSTD, DumpLZ4, DumpBrotli}

func TestCompressDumpRoundTrip(t *testing.T) {
	raw := bytes.Repeat([]byte("frame data "), 200)
	for _, comp := range allDumpCompressions {
		t.Run(comp.String(), func(t *testing.T) {
			field, payload, err := compressDump(comp, raw)
			if err != nil {
				t.Fatal(err)
			}
			if DumpCompression(field&dumpCompressionMask) != comp {
				t.Fatalf("field %#04x", field)
			}
			if hasLen := field&dumpFlagHasRawLen != 0; hasLen != (comp != DumpNone) {
				t.Fatalf("length flag %v for %s", hasLen, comp)
			}
			out, err := decompressDump(field, payload, uint64(len(raw)))
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(out, raw) {
				t.Fatal("payload mismatch")
			}
		})
	}
}

func TestCompressDumpUnknown(t *testing.T) {
	if _, _, err := compressDump(DumpCompression(99), []byte("x")); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if DumpCompression(99).String() != "DumpCompression(99)" {
		t.Fatal("unexpected String for unknown compression")
	}
}

func TestDecompressDumpEnvelope(t *testing.T) {
	packed, err := zstdPack([]byte("abc"))
	if err != nil {
		t.Fatal(err)
	}
	withLen := func(n uint64, rest []byte) []byte {
		p := make([]byte, 8, 8+len(rest))
		binary.LittleEndian.PutUint64(p, n)
		return append(p, rest...)
	}
	zstdField := uint16(DumpZSTD) | dumpFlagHasRawLen

	cases := []struct {
		name    string
		field   uint16
		payload []byte
		maxRaw  uint64
		want    error
	}{
		{"unknown flag", zstdField | 0x0200, withLen(3, packed), 10, ErrInvalidDumpPayload},
		{"none with length", uint16(DumpNone) | dumpFlagHasRawLen, []byte("x"), 10, ErrInvalidDumpPayload},
		{"missing length", uint16(DumpZSTD), []byte("x"), 10, ErrInvalidDumpPayload},
		{"short length", zstdField, []byte{1, 2, 3}, 10, ErrInvalidDumpPayload},
		{"over limit", zstdField, withLen(11, packed), 10, ErrLimitExceeded},
		{"length mismatch", zstdField, withLen(10, packed), 100, ErrInvalidDumpPayload},
		{"unknown algorithm", 0x0042 | dumpFlagHasRawLen, withLen(3, packed), 10, ErrInvalidDumpPayload},
		{"bad zip", uint16(DumpZIP) | dumpFlagHasRawLen, withLen(3, []byte("notzip")), 100, ErrInvalidDumpPayload},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := decompressDump(tc.field, tc.payload, tc.maxRaw); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func zipWith(t *testing.T, entries map[string][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, data := range entries {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write(data); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestZipUnpackRejectsUnexpectedArchives(t *testing.T) {
	cases := []struct {
		name     string
		archive  []byte
		expected uint64
	}{
		{"two entries", zipWith(t, map[string][]byte{dumpZipEntry: []byte("abc"), "extra": nil}), 3},
		{"wrong name", zipWith(t, map[string][]byte{"other.gob": []byte("abc")}), 3},
		{"directory", zipWith(t, map[string][]byte{dumpZipEntry + "/": nil}), 0},
		{"size mismatch", zipWith(t, map[string][]byte{dumpZipEntry: []byte("abc")}), 4},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := zipUnpack(tc.archive, tc.expected); !errors.Is(err, ErrInvalidDumpPayload) {
				t.Fatalf("expected ErrInvalidDumpPayload, got %v", err)
			}
		})
	}
	out, err := zipUnpack(zipWith(t, map[string][]byte{dumpZipEntry: []byte("abc")}), 3)
	if err != nil || string(out) != "abc" {
		t.Fatalf("got %q %v", out, err)
	}
}

func TestUnpackGuardsExpansion(t *testing.T) {
	in := []byte("abcdefabcdef")
	zs, err := zstdPack(in)
	if err != nil {
		t.Fatal(err)
	}
	lz, err := lz4Pack(in)
	if err != nil {
		t.Fatal(err)
	}
	br, err := brotliPack(in)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := zstdUnpack(zs, 3); !errors.Is(err, ErrInvalidDumpPayload) {
		t.Fatalf("zstd: %v", err)
	}
	if _, err := lz4Unpack(lz, 3); !errors.Is(err, ErrInvalidDumpPayload) {
		t.Fatalf("lz4: %v", err)
	}
	if _, err := brotliUnpack(br, 3); !errors.Is(err, ErrInvalidDumpPayload) {
		t.Fatalf("brotli: %v", err)
	}
}

func TestUnpackCorruptStreams(t *testing.T) {
	if _, err := zstdUnpack([]byte("notzstd"), 100); err == nil {
		t.Fatal("zstd: expected error")
	}
	if _, err := lz4Unpack([]byte("notlz4"), 100); err == nil {
		t.Fatal("lz4: expected error")
	}
	if _, err := brotliUnpack([]byte("notbr"), 100); err == nil {
		t.Fatal("brotli: expected error")
	}
}

func TestCompressionInjectedErrors(t *testing.T) {
	oZipCreate, oZipClose, oZipOpen, oReadAll := zipCreate, zipClose, zipOpen, readAll
	oZstdW, oZstdR := newZstdWriter, newZstdReader
	oLZ4Close, oBrWrite, oBrClose := lz4Close, brotliWrite, brotliClose
	restore := func() {
		zipCreate, zipClose, zipOpen, readAll = oZipCreate, oZipClose, oZipOpen, oReadAll
		newZstdWriter, newZstdReader = oZstdW, oZstdR
		lz4Close, brotliWrite, brotliClose = oLZ4Close, oBrWrite, oBrClose
	}
	t.Cleanup(restore)

	zipped, err := zipPack([]byte("abc"))
	if err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name   string
		inject func()
		run    func() error
		want   error
	}{
		{"zip create", func() {
			zipCreate = func(*zip.Writer, string) (io.Writer, error) { return nil, io.ErrClosedPipe }
		}, func() error { _, err := zipPack([]byte("x")); return err }, io.ErrClosedPipe},
		{"zip close", func() {
			zipClose = func(*zip.Writer) error { return io.ErrClosedPipe }
		}, func() error { _, err := zipPack([]byte("x")); return err }, io.ErrClosedPipe},
		{"zip open", func() {
			zipOpen = func(*zip.File) (io.ReadCloser, error) { return nil, io.ErrClosedPipe }
		}, func() error { _, err := zipUnpack(zipped, 3); return err }, io.ErrClosedPipe},
		{"zip read", func() {
			readAll = func(io.Reader) ([]byte, error) { return nil, io.ErrClosedPipe }
		}, func() error { _, err := zipUnpack(zipped, 3); return err }, io.ErrClosedPipe},
		{"zstd writer", func() {
			newZstdWriter = func() (*zstd.Encoder, error) { return nil, io.ErrClosedPipe }
		}, func() error { _, _, err := compressDump(DumpZSTD, []byte("x")); return err }, io.ErrClosedPipe},
		{"zstd reader", func() {
			newZstdReader = func() (*zstd.Decoder, error) { return nil, io.ErrClosedPipe }
		}, func() error { _, err := zstdUnpack([]byte("x"), 10); return err }, io.ErrClosedPipe},
		{"lz4 close", func() {
			lz4Close = func(*lz4.Writer) error { return io.ErrClosedPipe }
		}, func() error { _, err := lz4Pack([]byte("x")); return err }, io.ErrClosedPipe},
		{"brotli write", func() {
			brotliWrite = func(*brotli.Writer, []byte) (int, error) { return 0, io.ErrClosedPipe }
		}, func() error { _, err := brotliPack([]byte("x")); return err }, io.ErrClosedPipe},
		{"brotli close", func() {
			brotliClose = func(*brotli.Writer) error { return io.ErrClosedPipe }
		}, func() error { _, err := brotliPack([]byte("x")); return err }, io.ErrClosedPipe},
		{"brotli read", func() {
			readAll = func(io.Reader) ([]byte, error) { return nil, io.ErrClosedPipe }
		}, func() error { _, err := brotliUnpack([]byte("anything"), 10); return err }, ErrInvalidDumpPayload},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Cleanup(restore)
			tc.inject()
			if err := tc.run(); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}
