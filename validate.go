package apng

import (
	"fmt"
	"image"
)

func validateHeader(h Header, limits Limits) error {
	if h.Width == 0 || h.Height == 0 {
		return structuralf(KindInvalidHeader, "zero dimension %dx%d", h.Width, h.Height)
	}
	if h.Width > maxPNGChunkLen || h.Height > maxPNGChunkLen {
		return structuralf(KindInvalidHeader, "dimension %dx%d exceeds 2^31-1", h.Width, h.Height)
	}
	if !validDepth(h.ColorType, h.BitDepth) {
		return structuralf(KindInvalidHeader, "bit depth %d, color type %d", h.BitDepth, h.ColorType)
	}
	if h.CompressionMethod != 0 {
		return structuralf(KindInvalidHeader, "compression method %d", h.CompressionMethod)
	}
	if h.FilterMethod != 0 {
		return structuralf(KindInvalidHeader, "filter method %d", h.FilterMethod)
	}
	if h.Interlace > InterlaceAdam7 {
		return structuralf(KindInvalidHeader, "interlace method %d", h.Interlace)
	}
	if !limits.checkCanvas(h.Width, h.Height) {
		return fmt.Errorf("%w: canvas %dx%d", ErrLimitExceeded, h.Width, h.Height)
	}
	return nil
}

func validDepth(ct ColorType, d BitDepth) bool {
	switch ct {
	case ColorGrayscale:
		return d == 1 || d == 2 || d == 4 || d == 8 || d == 16
	case ColorPaletted:
		return d == 1 || d == 2 || d == 4 || d == 8
	case ColorTrueColor, ColorGrayscaleAlpha, ColorTrueColorAlpha:
		return d == 8 || d == 16
	}
	return false
}

func validateFrameControl(fc FrameControl, h Header) error {
	if fc.Width == 0 || fc.Height == 0 {
		return structuralf(KindFrameOutOfBounds, "frame %d has empty rectangle", fc.SequenceNumber)
	}
	if uint64(fc.XOffset)+uint64(fc.Width) > uint64(h.Width) ||
		uint64(fc.YOffset)+uint64(fc.Height) > uint64(h.Height) {
		return structuralf(KindFrameOutOfBounds, "frame %dx%d at (%d,%d) on %dx%d canvas",
			fc.Width, fc.Height, fc.XOffset, fc.YOffset, h.Width, h.Height)
	}
	if !fc.Dispose.valid() {
		return structuralf(KindInvalidFrameControl, "dispose op %d", fc.Dispose)
	}
	if !fc.Blend.valid() {
		return structuralf(KindInvalidFrameControl, "blend op %d", fc.Blend)
	}
	return nil
}

func validateEncodeInput(frames []Frame, cfg encodeConfig) error {
	if len(frames) == 0 {
		return fmt.Errorf("%w: no frames", ErrValidation)
	}
	if cfg.maxChunkSize <= fdatSeqLen || cfg.maxChunkSize > maxPNGChunkLen {
		return fmt.Errorf("%w: max chunk size %d", ErrValidation, cfg.maxChunkSize)
	}
	if cfg.level < 0 || cfg.level > 9 {
		return fmt.Errorf("%w: compression level %d", ErrValidation, cfg.level)
	}
	if uint64(len(frames)) > uint64(cfg.limits.MaxFrames) {
		return fmt.Errorf("%w: %d frames", ErrLimitExceeded, len(frames))
	}
	var canvas image.Rectangle
	for i, f := range frames {
		if f.Image == nil {
			return fmt.Errorf("%w: frame %d image is nil", ErrValidation, i)
		}
		r := f.Bounds()
		if r.Empty() {
			return fmt.Errorf("%w: frame %d is empty", ErrValidation, i)
		}
		if i == 0 {
			if f.XOffset != 0 || f.YOffset != 0 {
				return fmt.Errorf("%w: first frame must be at (0,0)", ErrValidation)
			}
			if !cfg.limits.checkCanvas(uint32(r.Dx()), uint32(r.Dy())) {
				return fmt.Errorf("%w: canvas %dx%d", ErrLimitExceeded, r.Dx(), r.Dy())
			}
			canvas = r
		}
		if f.XOffset < 0 || f.YOffset < 0 || !r.In(canvas) {
			return fmt.Errorf("%w: frame %d rectangle %v outside canvas %v", ErrValidation, i, r, canvas)
		}
		if !f.Dispose.valid() {
			return fmt.Errorf("%w: frame %d dispose op %d", ErrValidation, i, f.Dispose)
		}
		if !f.Blend.valid() {
			return fmt.Errorf("%w: frame %d blend op %d", ErrValidation, i, f.Blend)
		}
	}
	var ancillaryLen uint64
	for _, c := range cfg.ancillary {
		ancillaryLen += uint64(len(c.Data))
		if ancillaryLen > cfg.limits.MaxAncillaryBytes {
			return fmt.Errorf("%w: ancillary chunks exceed %d bytes", ErrLimitExceeded, cfg.limits.MaxAncillaryBytes)
		}
		if c.Type.IsCritical() || !validChunkType(c.Type) {
			return fmt.Errorf("%w: chunk %q is not ancillary", ErrValidation, c.Type[:])
		}
		switch c.Type {
		case TypeACTL, TypeFCTL, TypeFDAT, TypeTRNS:
			return fmt.Errorf("%w: chunk %s is written by the encoder", ErrValidation, c.Type)
		}
	}
	return nil
}
