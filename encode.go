package apng

import (
	"bytes"
	"encoding/binary"
	"image"
	"io"

	"golang.org/x/image/draw"
)

// Encode writes frames to w as an APNG.
//
// The first frame defines the canvas and must sit at (0,0). Every frame is
// converted to 8-bit RGBA, filtered, deflated and split into chunks of at most
// the configured maximum chunk size.
//
// The output is, in order:
//   - the PNG signature and an IHDR for an RGBA 8-bit canvas
//   - any chunks given with WithAncillaryChunks
//   - acTL with the frame count and loop count
//   - per frame, an fcTL followed by its IDAT (first frame, when it is the
//     default image) or fdAT chunks
//   - IEND
//
// By default the first frame doubles as the default image and the stream
// loops forever. Use EncodeOption functions to change this:
//   - WithLoopCount(n): play n times
//   - WithMaxChunkSize(n): cap IDAT/fdAT payloads
//   - WithDefaultImageAsFirstFrame(false): write a hidden default image
//   - WithCompressionLevel(level): zlib level 0..9
//
// Identical frames and options always produce identical bytes. All frames are
// compressed before anything is written, so a compression failure leaves w
// untouched.
func Encode(w io.Writer, frames []Frame, opts ...EncodeOption) error {
	cfg := encodeConfig{
		limits:         defaultLimits(),
		maxChunkSize:   DefaultMaxChunkSize,
		defaultIsFrame: true,
		level:          DefaultCompressionLevel,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.limits = cfg.limits.withDefaults()
	if err := validateEncodeInput(frames, cfg); err != nil {
		return err
	}

	e := &encoder{w: w, cfg: cfg}
	data := make([][]byte, len(frames))
	for i, f := range frames {
		b, err := e.compressFrame(f.Image)
		if err != nil {
			return err
		}
		data[i] = b
	}

	canvas := frames[0].Bounds()
	if _, err := io.WriteString(w, Signature); err != nil {
		return err
	}
	e.writeChunk(TypeIHDR, marshalIHDR(Header{
		Width:     uint32(canvas.Dx()),
		Height:    uint32(canvas.Dy()),
		BitDepth:  8,
		ColorType: ColorTrueColorAlpha,
	}))
	for _, c := range cfg.ancillary {
		e.writeChunk(c.Type, c.Data)
	}
	e.writeChunk(TypeACTL, marshalACTL(AnimationControl{
		NumFrames: uint32(len(frames)),
		NumPlays:  cfg.loopCount,
	}))
	if !cfg.defaultIsFrame {
		e.writeData(data[0], true)
	}
	for i, f := range frames {
		r := f.Bounds()
		e.writeChunk(TypeFCTL, marshalFCTL(FrameControl{
			SequenceNumber: e.nextSeq(),
			Width:          uint32(r.Dx()),
			Height:         uint32(r.Dy()),
			XOffset:        uint32(r.Min.X),
			YOffset:        uint32(r.Min.Y),
			Delay:          f.Delay,
			Dispose:        f.Dispose,
			Blend:          f.Blend,
		}))
		e.writeData(data[i], i == 0 && cfg.defaultIsFrame)
	}
	e.writeChunk(TypeIEND, nil)
	return e.err
}

// EncodeBytes is Encode into a new byte slice.
func EncodeBytes(frames []Frame, opts ...EncodeOption) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, frames, opts...); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// FramesFromAnimation returns the decoded frames of a as full-canvas encoder
// input. Encoding the result reproduces the same composited pixels.
func FramesFromAnimation(a *Animation) []Frame {
	frames := make([]Frame, len(a.Frames))
	for i, f := range a.Frames {
		frames[i] = Frame{
			Image:   f.Image,
			Delay:   f.Delay,
			Dispose: DisposeNone,
			Blend:   BlendSource,
		}
	}
	return frames
}

// encoder writes chunks and keeps the first write error.
type encoder struct {
	w   io.Writer
	cfg encodeConfig
	seq uint32
	err error
}

func (e *encoder) writeChunk(t ChunkType, data []byte) {
	if e.err != nil {
		return
	}
	e.err = writeChunk(e.w, t, data)
}

func (e *encoder) nextSeq() uint32 {
	s := e.seq
	e.seq++
	return s
}

// writeData splits a compressed frame into IDAT or fdAT chunks.
func (e *encoder) writeData(data []byte, idat bool) {
	limit := e.cfg.maxChunkSize
	if !idat {
		limit -= fdatSeqLen
	}
	for len(data) > 0 {
		n := min(len(data), limit)
		if idat {
			e.writeChunk(TypeIDAT, data[:n])
		} else {
			buf := make([]byte, fdatSeqLen+n)
			binary.BigEndian.PutUint32(buf, e.nextSeq())
			copy(buf[fdatSeqLen:], data[:n])
			e.writeChunk(TypeFDAT, buf)
		}
		data = data[n:]
	}
}

// compressFrame filters img as RGBA 8-bit rows and deflates the result.
// Level 0 stores unfiltered rows.
func (e *encoder) compressFrame(img image.Image) ([]byte, error) {
	m := toNRGBA(img)
	b := m.Bounds()
	w, h := b.Dx(), b.Dy()
	n := 1 + 4*w

	var cr [nFilter][]byte
	for i := range cr {
		cr[i] = make([]byte, n)
		cr[i][0] = byte(i)
	}
	pr := make([]byte, n)
	raw := make([]byte, 0, h*n)
	for y := 0; y < h; y++ {
		o := m.PixOffset(b.Min.X, b.Min.Y+y)
		copy(cr[0][1:], m.Pix[o:o+4*w])
		ft := ftNone
		if e.cfg.level != 0 {
			ft = filterRow(&cr, pr, 4)
		}
		raw = append(raw, cr[ft]...)
		pr, cr[0] = cr[0], pr
	}
	return deflate(raw, e.cfg.level)
}

// toNRGBA returns img as straight-alpha RGBA, converting when needed.
func toNRGBA(img image.Image) *image.NRGBA {
	if m, ok := img.(*image.NRGBA); ok {
		return m
	}
	b := img.Bounds()
	m := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(m, m.Rect, img, b.Min, draw.Src)
	return m
}
