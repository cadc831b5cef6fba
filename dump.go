package apng

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"image"
	"io"
)

// DumpMagic is the 8-byte signature of a frame dump.
var DumpMagic = [8]byte{'A', 'P', 'N', 'G', 'D', 'M', 'P', 0x1A}

const DumpVersionV1 uint16 = 1

// Function variables for testing injection.
var (
	gobEncodeDump = func(v dumpPayload) ([]byte, error) { return gobEncode(v) }
)

// dumpPayload is the gob-encoded body of a frame dump.
type dumpPayload struct {
	Header              Header
	DefaultImageIsFrame bool
	Frames              []dumpFrame
}

type dumpFrame struct {
	Index    int
	DelayNum uint16
	DelayDen uint16
	Dispose  DisposeOp
	Blend    BlendOp
	Region   image.Rectangle
	Pix      []byte // canvas-sized NRGBA
}

// WriteFrameDump writes the composited frames of a to w in the frame dump
// format: a fixed 40-byte little-endian header followed by a gob payload
// compressed with comp. Dumps are meant for golden-file comparisons and for
// handing decoded frames to tools that do not speak PNG.
func WriteFrameDump(w io.Writer, a *Animation, comp DumpCompression) error {
	if a == nil || len(a.Frames) == 0 {
		return fmt.Errorf("%w: animation has no frames", ErrValidation)
	}
	p := dumpPayload{
		Header:              a.Header,
		DefaultImageIsFrame: a.DefaultImageIsFrame,
		Frames:              make([]dumpFrame, len(a.Frames)),
	}
	canvas := a.Header.Bounds()
	for i, f := range a.Frames {
		if f.Image == nil || f.Image.Rect != canvas || f.Image.Stride != 4*canvas.Dx() {
			return fmt.Errorf("%w: frame %d is not a packed canvas-sized image", ErrValidation, i)
		}
		p.Frames[i] = dumpFrame{
			Index:    f.Index,
			DelayNum: f.Delay.Num,
			DelayDen: f.Delay.Den,
			Dispose:  f.Dispose,
			Blend:    f.Blend,
			Region:   f.Region,
			Pix:      f.Image.Pix,
		}
	}
	raw, err := gobEncodeDump(p)
	if err != nil {
		return err
	}
	field, payload, err := compressDump(comp, raw)
	if err != nil {
		return err
	}
	h := dumpHeaderV1{
		Magic:       DumpMagic,
		Version:     DumpVersionV1,
		Compression: field,
		Width:       a.Header.Width,
		Height:      a.Header.Height,
		FrameCount:  uint32(len(a.Frames)),
		LoopCount:   a.LoopCount,
		PayloadLen:  uint64(len(payload)),
	}
	if err := writeDumpHeader(w, h); err != nil {
		return err
	}
	_, err = w.Write(payload)
	return err
}

// ReadFrameDump reads a frame dump written by WriteFrameDump. Only the
// limits of the decode options apply.
func ReadFrameDump(r io.Reader, opts ...DecodeOption) (*Animation, error) {
	cfg := newDecodeConfig(opts)
	h, err := readDumpHeader(r)
	if err != nil {
		return nil, err
	}
	if h.Magic != DumpMagic {
		return nil, ErrInvalidDumpMagic
	}
	if h.Version != DumpVersionV1 {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedDumpVersion, h.Version)
	}
	if h.Reserved != 0 {
		return nil, fmt.Errorf("%w: reserved must be zero", ErrInvalidDumpPayload)
	}
	if h.Width == 0 || h.Height == 0 || !cfg.limits.checkCanvas(h.Width, h.Height) {
		return nil, fmt.Errorf("%w: canvas %dx%d", ErrLimitExceeded, h.Width, h.Height)
	}
	if h.FrameCount == 0 || h.FrameCount > cfg.limits.MaxFrames {
		return nil, fmt.Errorf("%w: %d frames", ErrLimitExceeded, h.FrameCount)
	}
	if h.PayloadLen > cfg.limits.MaxDumpPayload {
		return nil, fmt.Errorf("%w: payload length %d", ErrLimitExceeded, h.PayloadLen)
	}

	payload := make([]byte, h.PayloadLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	raw, err := decompressDump(h.Compression, payload, cfg.limits.MaxDumpPayload)
	if err != nil {
		return nil, err
	}
	var p dumpPayload
	if err := gobDecode(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDumpPayload, err)
	}
	if p.Header.Width != h.Width || p.Header.Height != h.Height || uint32(len(p.Frames)) != h.FrameCount {
		return nil, fmt.Errorf("%w: payload does not match header", ErrInvalidDumpPayload)
	}

	canvas := p.Header.Bounds()
	a := &Animation{
		Header:              p.Header,
		LoopCount:           h.LoopCount,
		DefaultImageIsFrame: p.DefaultImageIsFrame,
		Frames:              make([]CompositedFrame, len(p.Frames)),
	}
	for i, f := range p.Frames {
		if len(f.Pix) != 4*canvas.Dx()*canvas.Dy() {
			return nil, fmt.Errorf("%w: frame %d has %d pixel bytes", ErrInvalidDumpPayload, i, len(f.Pix))
		}
		a.Frames[i] = CompositedFrame{
			Index:   f.Index,
			Image:   &image.NRGBA{Pix: f.Pix, Stride: 4 * canvas.Dx(), Rect: canvas},
			Delay:   Delay{Num: f.DelayNum, Den: f.DelayDen},
			Region:  f.Region,
			Dispose: f.Dispose,
			Blend:   f.Blend,
		}
	}
	return a, nil
}

func gobEncode[T any](v T) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gobDecode(data []byte, out any) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(out)
}
