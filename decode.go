package apng

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"io"
)

const readBlockSize = 32 << 10

// CanDecode reports whether data starts like an animated PNG: a PNG signature
// followed by an acTL chunk before the first IDAT. Only chunk headers are
// examined, so a prefix of the stream is enough.
func CanDecode(data []byte) bool {
	if len(data) < len(Signature) || string(data[:len(Signature)]) != Signature {
		return false
	}
	off := len(Signature)
	for off+chunkHeaderSize <= len(data) {
		length := binary.BigEndian.Uint32(data[off : off+4])
		var typ ChunkType
		copy(typ[:], data[off+4:off+8])
		switch typ {
		case TypeACTL:
			return true
		case TypeIDAT, TypeIEND:
			return false
		}
		if length > maxPNGChunkLen || !validChunkType(typ) {
			return false
		}
		off += chunkOverhead + int(length)
	}
	return false
}

// Decode reads a complete APNG (or plain PNG) from r and returns every
// composited frame.
//
// The decoding process:
//  1. Checks the PNG signature
//  2. Reads each chunk, verifying its CRC and the chunk ordering rules
//  3. Reassembles every frame from its IDAT or fdAT chunks
//  4. Inflates, defilters and composites each frame onto the canvas,
//     honoring its dispose and blend operations
//  5. Requires IEND, and by default rejects bytes after it
//
// A plain PNG decodes as a one-frame animation with a zero delay. When the
// default image is not part of the animation it is not rendered; use
// DecodeStatic to get it.
//
// Decode returns ErrInvalidSignature, ErrCorruptChunk, ErrLimitExceeded,
// ErrInvalidImageData, ErrUnsupportedCriticalChunk or a *StructuralError
// (matching ErrStructural) on failure.
func Decode(r io.Reader, opts ...DecodeOption) (*Animation, error) {
	s := newSession(newDecodeConfig(opts))
	frames, err := drain(s, r)
	if err != nil {
		return nil, err
	}
	doc := s.Document()
	return &Animation{
		Header:              doc.Header,
		LoopCount:           doc.LoopCount(),
		DefaultImageIsFrame: doc.DefaultImageIsFrame,
		Frames:              frames,
		Ancillary:           doc.Ancillary,
	}, nil
}

// DecodeBytes is Decode over an in-memory stream.
func DecodeBytes(data []byte, opts ...DecodeOption) (*Animation, error) {
	return Decode(bytes.NewReader(data), opts...)
}

// DecodeStatic decodes only the default image, the picture a viewer without
// APNG support would show. Animation chunks are not interpreted and reading
// stops after the IDAT run.
func DecodeStatic(r io.Reader, opts ...DecodeOption) (*image.NRGBA, error) {
	cfg := newDecodeConfig(opts)
	cfg.staticOnly = true
	s := newSession(cfg)
	if _, err := drain(s, r); err != nil {
		return nil, err
	}
	doc := s.Document()
	return decodeRect(doc, doc.DefaultImage, int(doc.Header.Width), int(doc.Header.Height))
}

// ReadDocument parses the container structure of r without decoding any
// pixels. Frame data is kept compressed in the returned document.
func ReadDocument(r io.Reader, opts ...DecodeOption) (*Document, error) {
	cfg := newDecodeConfig(opts)
	cfg.parseOnly = true
	s := newSession(cfg)
	if _, err := drain(s, r); err != nil {
		return nil, err
	}
	return s.Document(), nil
}

// drain feeds r to s until EOF, or until s completes in static-only mode.
func drain(s *Session, r io.Reader) ([]CompositedFrame, error) {
	var frames []CompositedFrame
	buf := make([]byte, readBlockSize)
	for {
		n, rerr := r.Read(buf)
		if n > 0 {
			fs, state, err := s.Feed(buf[:n])
			frames = append(frames, fs...)
			if err != nil {
				return nil, err
			}
			if state == StateComplete && s.cfg.staticOnly {
				return frames, nil
			}
		}
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			return nil, fmt.Errorf("apng: read: %w", rerr)
		}
	}
	if err := s.Finish(); err != nil {
		return nil, err
	}
	return frames, nil
}
