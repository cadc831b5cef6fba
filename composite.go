package apng

import (
	"fmt"
	"image"
)

// compositor owns the canvas and renders frames onto it in order.
type compositor struct {
	canvas *image.NRGBA

	prevDispose DisposeOp
	prevRect    image.Rectangle
	saved       *image.NRGBA // prevRect as it was before the previous frame was drawn

	n int
}

// composite renders frame i of doc onto the canvas and returns a copy of the
// result. The frame's compressed data is released afterwards.
func (c *compositor) composite(doc *Document, i int) (CompositedFrame, error) {
	fd := &doc.Frames[i]
	if c.canvas == nil {
		c.canvas = image.NewNRGBA(doc.Header.Bounds())
	}

	switch c.prevDispose {
	case DisposeBackground:
		clearRect(c.canvas, c.prevRect)
	case DisposePrevious:
		if c.saved != nil {
			copyRect(c.canvas, c.saved, c.prevRect)
		} else {
			clearRect(c.canvas, c.prevRect)
		}
	}

	rect := fd.Bounds()
	dispose := fd.Dispose
	if c.n == 0 && dispose == DisposePrevious {
		dispose = DisposeBackground
	}
	c.saved = nil
	if dispose == DisposePrevious {
		c.saved = image.NewNRGBA(rect)
		copyRect(c.saved, c.canvas, rect)
	}

	src, err := decodeRect(doc, fd.Data, rect.Dx(), rect.Dy())
	if err != nil {
		return CompositedFrame{}, fmt.Errorf("frame %d: %w", i, err)
	}
	if fd.Blend == BlendSource {
		drawSource(c.canvas, src, rect)
	} else {
		drawOver(c.canvas, src, rect)
	}

	out := CompositedFrame{
		Index:   i,
		Image:   cloneNRGBA(c.canvas),
		Delay:   fd.Delay.normalized(),
		Region:  rect,
		Dispose: fd.Dispose,
		Blend:   fd.Blend,
	}
	fd.Data = nil
	c.prevDispose, c.prevRect = dispose, rect
	c.n++
	return out, nil
}

// drawSource overwrites r of dst with src, whose origin maps to r.Min.
func drawSource(dst, src *image.NRGBA, r image.Rectangle) {
	if r == dst.Rect && src.Stride == dst.Stride {
		copy(dst.Pix, src.Pix)
		return
	}
	n := 4 * r.Dx()
	for y := 0; y < r.Dy(); y++ {
		d := dst.PixOffset(r.Min.X, r.Min.Y+y)
		copy(dst.Pix[d:d+n], src.Pix[y*src.Stride:y*src.Stride+n])
	}
}

// drawOver composites src over r of dst with the straight-alpha over
// operator, rounding to nearest.
func drawOver(dst, src *image.NRGBA, r image.Rectangle) {
	for y := 0; y < r.Dy(); y++ {
		s := src.Pix[y*src.Stride : y*src.Stride+4*r.Dx()]
		d := dst.Pix[dst.PixOffset(r.Min.X, r.Min.Y+y):]
		for x := 0; x < len(s); x += 4 {
			sa := uint32(s[x+3])
			switch sa {
			case 0:
				continue
			case 0xff:
				copy(d[x:x+4], s[x:x+4])
				continue
			}
			da := uint32(d[x+3])
			// Alpha scaled by 255: sa*255 + da*(255-sa).
			dw := da * (255 - sa)
			outA := sa*255 + dw
			for k := 0; k < 3; k++ {
				v := uint32(s[x+k])*sa*255 + uint32(d[x+k])*dw
				d[x+k] = uint8((v + outA/2) / outA)
			}
			d[x+3] = uint8((outA + 127) / 255)
		}
	}
}

func clearRect(img *image.NRGBA, r image.Rectangle) {
	r = r.Intersect(img.Rect)
	n := 4 * r.Dx()
	for y := r.Min.Y; y < r.Max.Y; y++ {
		o := img.PixOffset(r.Min.X, y)
		clear(img.Pix[o : o+n])
	}
}

// copyRect copies r from src to dst. Both images must contain r.
func copyRect(dst, src *image.NRGBA, r image.Rectangle) {
	n := 4 * r.Dx()
	for y := r.Min.Y; y < r.Max.Y; y++ {
		d, s := dst.PixOffset(r.Min.X, y), src.PixOffset(r.Min.X, y)
		copy(dst.Pix[d:d+n], src.Pix[s:s+n])
	}
}

func cloneNRGBA(img *image.NRGBA) *image.NRGBA {
	out := &image.NRGBA{Pix: make([]byte, len(img.Pix)), Stride: img.Stride, Rect: img.Rect}
	copy(out.Pix, img.Pix)
	return out
}
