package apng

import (
	"image"
	"image/color"
	"time"
)

// Signature is the 8-byte PNG file signature that starts every APNG stream.
const Signature = "\x89PNG\r\n\x1a\n"

// ChunkType is a four-letter chunk tag such as "IHDR" or "fdAT".
type ChunkType [4]byte

var (
	TypeIHDR = ChunkType{'I', 'H', 'D', 'R'}
	TypePLTE = ChunkType{'P', 'L', 'T', 'E'}
	TypeTRNS = ChunkType{'t', 'R', 'N', 'S'}
	TypeIDAT = ChunkType{'I', 'D', 'A', 'T'}
	TypeIEND = ChunkType{'I', 'E', 'N', 'D'}
	TypeACTL = ChunkType{'a', 'c', 'T', 'L'}
	TypeFCTL = ChunkType{'f', 'c', 'T', 'L'}
	TypeFDAT = ChunkType{'f', 'd', 'A', 'T'}
)

func (t ChunkType) String() string { return string(t[:]) }

// IsCritical reports whether a decoder must understand the chunk to render
// the image (ancillary bit of the first byte clear).
func (t ChunkType) IsCritical() bool { return t[0]&0x20 == 0 }

// IsPublic reports whether the chunk type is registered (private bit clear).
func (t ChunkType) IsPublic() bool { return t[1]&0x20 == 0 }

// IsSafeToCopy reports whether editors may copy the chunk unchanged into a
// modified image.
func (t ChunkType) IsSafeToCopy() bool { return t[3]&0x20 != 0 }

// Chunk is one length-prefixed, checksummed unit of a PNG stream.
type Chunk struct {
	Type ChunkType
	Data []byte
	CRC  uint32
}

// ChunkInfo records where a chunk was found in a parsed stream.
type ChunkInfo struct {
	Type   ChunkType
	Offset int64 // offset of the length field from the start of the stream
	Length uint32
}

// ColorType is the PNG color type of the image data.
type ColorType uint8

const (
	ColorGrayscale      ColorType = 0
	ColorTrueColor      ColorType = 2
	ColorPaletted       ColorType = 3
	ColorGrayscaleAlpha ColorType = 4
	ColorTrueColorAlpha ColorType = 6
)

// channels returns the number of samples per pixel.
func (c ColorType) channels() int {
	switch c {
	case ColorGrayscale, ColorPaletted:
		return 1
	case ColorGrayscaleAlpha:
		return 2
	case ColorTrueColor:
		return 3
	case ColorTrueColorAlpha:
		return 4
	}
	return 0
}

// BitDepth is the number of bits per sample (or per palette index).
type BitDepth uint8

type InterlaceMethod uint8

const (
	InterlaceNone  InterlaceMethod = 0
	InterlaceAdam7 InterlaceMethod = 1
)

// Header is the content of the IHDR chunk.
type Header struct {
	Width             uint32
	Height            uint32
	BitDepth          BitDepth
	ColorType         ColorType
	CompressionMethod uint8
	FilterMethod      uint8
	Interlace         InterlaceMethod
}

// Bounds returns the canvas rectangle.
func (h Header) Bounds() image.Rectangle {
	return image.Rect(0, 0, int(h.Width), int(h.Height))
}

func (h Header) bitsPerPixel() int {
	return h.ColorType.channels() * int(h.BitDepth)
}

// AnimationControl is the content of the acTL chunk.
type AnimationControl struct {
	NumFrames uint32
	NumPlays  uint32 // 0 means loop forever
}

// DisposeOp says how a frame's region is treated after the frame is shown.
type DisposeOp uint8

const (
	DisposeNone       DisposeOp = 0
	DisposeBackground DisposeOp = 1
	DisposePrevious   DisposeOp = 2
)

func (d DisposeOp) String() string {
	switch d {
	case DisposeNone:
		return "none"
	case DisposeBackground:
		return "background"
	case DisposePrevious:
		return "previous"
	}
	return "invalid"
}

func (d DisposeOp) valid() bool { return d <= DisposePrevious }

// BlendOp says how a frame's pixels combine with the canvas.
type BlendOp uint8

const (
	BlendSource BlendOp = 0
	BlendOver   BlendOp = 1
)

func (b BlendOp) String() string {
	switch b {
	case BlendSource:
		return "source"
	case BlendOver:
		return "over"
	}
	return "invalid"
}

func (b BlendOp) valid() bool { return b <= BlendOver }

// Delay is a frame display time expressed as Num/Den seconds.
type Delay struct {
	Num uint16
	Den uint16
}

// normalized returns d with a zero denominator replaced by 100.
func (d Delay) normalized() Delay {
	if d.Den == 0 {
		d.Den = 100
	}
	return d
}

// Duration converts the delay to a time.Duration. A zero denominator is
// read as 100, so Num counts hundredths of a second.
func (d Delay) Duration() time.Duration {
	d = d.normalized()
	return time.Duration(d.Num) * time.Second / time.Duration(d.Den)
}

// DelayFromDuration returns the delay closest to dur, using milliseconds when
// they fit in 16 bits, then centiseconds, then whole seconds (saturating).
func DelayFromDuration(dur time.Duration) Delay {
	if dur <= 0 {
		return Delay{Num: 0, Den: 1000}
	}
	ms := (dur + time.Millisecond/2) / time.Millisecond
	if ms <= 0xFFFF {
		return Delay{Num: uint16(ms), Den: 1000}
	}
	cs := (dur + 5*time.Millisecond) / (10 * time.Millisecond)
	if cs <= 0xFFFF {
		return Delay{Num: uint16(cs), Den: 100}
	}
	s := (dur + time.Second/2) / time.Second
	if s > 0xFFFF {
		s = 0xFFFF
	}
	return Delay{Num: uint16(s), Den: 1}
}

// FrameControl is the content of an fcTL chunk.
type FrameControl struct {
	SequenceNumber uint32
	Width          uint32
	Height         uint32
	XOffset        uint32
	YOffset        uint32
	Delay          Delay
	Dispose        DisposeOp
	Blend          BlendOp
}

// Bounds returns the frame rectangle on the canvas.
func (fc FrameControl) Bounds() image.Rectangle {
	x, y := int(fc.XOffset), int(fc.YOffset)
	return image.Rect(x, y, x+int(fc.Width), y+int(fc.Height))
}

// FrameDescriptor is one animation frame as found in the container: its frame
// control plus the compressed data reassembled from IDAT or fdAT chunks.
type FrameDescriptor struct {
	FrameControl

	// Data is the zlib stream of the frame rectangle. It is released once
	// the frame has been composited.
	Data []byte

	// IsDefaultImage is set when the frame's data came from IDAT chunks.
	IsDefaultImage bool

	chunks int
}

// Document is the structured content of an APNG stream, as accumulated by the
// container parser.
type Document struct {
	Header Header

	// Animation is nil for a plain (non-animated) PNG.
	Animation *AnimationControl

	// DefaultImageIsFrame is set when an fcTL precedes the first IDAT, making
	// the default image the first animation frame.
	DefaultImageIsFrame bool

	// DefaultImage holds the IDAT stream when the default image is not part
	// of the animation. It is nil otherwise.
	DefaultImage []byte

	Palette      []color.NRGBA
	Transparency []byte

	Frames    []FrameDescriptor
	Ancillary []Chunk
	Chunks    []ChunkInfo
}

// LoopCount returns the number of plays, 0 meaning infinite.
func (d *Document) LoopCount() uint32 {
	if d.Animation == nil {
		return 0
	}
	return d.Animation.NumPlays
}

// CompositedFrame is one fully rendered canvas of the animation.
type CompositedFrame struct {
	Index int

	// Image is a canvas-sized, straight-alpha copy owned by this frame.
	Image *image.NRGBA

	Delay   Delay
	Region  image.Rectangle
	Dispose DisposeOp
	Blend   BlendOp
}

// Duration returns how long the frame is displayed.
func (f CompositedFrame) Duration() time.Duration {
	return f.Delay.Duration()
}

// Animation is a fully decoded APNG.
type Animation struct {
	Header              Header
	LoopCount           uint32
	DefaultImageIsFrame bool
	Frames              []CompositedFrame
	Ancillary           []Chunk
}

// TotalDuration returns the sum of all frame durations.
func (a *Animation) TotalDuration() time.Duration {
	var total time.Duration
	for i := range a.Frames {
		total += a.Frames[i].Duration()
	}
	return total
}

// Frame is one encoder input frame. The first frame defines the canvas size
// and must sit at offset (0,0).
type Frame struct {
	Image   image.Image
	XOffset int
	YOffset int
	Delay   Delay
	Dispose DisposeOp
	Blend   BlendOp
}

// Bounds returns the frame rectangle on the canvas.
func (f Frame) Bounds() image.Rectangle {
	if f.Image == nil {
		return image.Rectangle{}
	}
	b := f.Image.Bounds()
	return image.Rect(f.XOffset, f.YOffset, f.XOffset+b.Dx(), f.YOffset+b.Dy())
}
