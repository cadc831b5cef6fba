package apng

import (
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
)

// adam7 lists the pass origins and strides of the Adam7 interlace.
var adam7 = [7]struct{ xOff, yOff, xStep, yStep int }{
	{0, 0, 8, 8},
	{4, 0, 8, 8},
	{0, 4, 4, 8},
	{2, 0, 4, 4},
	{0, 2, 2, 4},
	{1, 0, 2, 2},
	{0, 1, 1, 2},
}

// decodeRect inflates and defilters the zlib stream of a w x h rectangle and
// converts it to straight-alpha NRGBA using the document's header, palette
// and transparency.
func decodeRect(doc *Document, data []byte, w, h int) (*image.NRGBA, error) {
	pc, err := newPixelConverter(doc)
	if err != nil {
		return nil, err
	}
	bitsPP := doc.Header.bitsPerPixel()
	bpp := (bitsPP + 7) / 8
	img := image.NewNRGBA(image.Rect(0, 0, w, h))

	if doc.Header.Interlace == InterlaceNone {
		rowBytes := (bitsPP*w + 7) / 8
		raw, err := inflate(data, h*(1+rowBytes))
		if err != nil {
			return nil, err
		}
		prev := make([]byte, rowBytes)
		for y := 0; y < h; y++ {
			row := raw[y*(1+rowBytes) : (y+1)*(1+rowBytes)]
			cdat := row[1:]
			if !unfilter(row[0], cdat, prev, bpp) {
				return nil, fmt.Errorf("%w: bad filter type %d", ErrInvalidImageData, row[0])
			}
			if err := pc.convertRow(img, cdat, y, 0, 1, w); err != nil {
				return nil, err
			}
			prev = cdat
		}
		return img, nil
	}

	total := 0
	for _, p := range adam7 {
		pw, ph := passSize(p.xOff, p.xStep, w), passSize(p.yOff, p.yStep, h)
		if pw == 0 || ph == 0 {
			continue
		}
		total += ph * (1 + (bitsPP*pw+7)/8)
	}
	raw, err := inflate(data, total)
	if err != nil {
		return nil, err
	}
	off := 0
	for _, p := range adam7 {
		pw, ph := passSize(p.xOff, p.xStep, w), passSize(p.yOff, p.yStep, h)
		if pw == 0 || ph == 0 {
			continue
		}
		rowBytes := (bitsPP*pw + 7) / 8
		prev := make([]byte, rowBytes)
		for py := 0; py < ph; py++ {
			row := raw[off : off+1+rowBytes]
			off += 1 + rowBytes
			cdat := row[1:]
			if !unfilter(row[0], cdat, prev, bpp) {
				return nil, fmt.Errorf("%w: bad filter type %d", ErrInvalidImageData, row[0])
			}
			if err := pc.convertRow(img, cdat, p.yOff+py*p.yStep, p.xOff, p.xStep, pw); err != nil {
				return nil, err
			}
			prev = cdat
		}
	}
	return img, nil
}

func passSize(off, step, n int) int {
	if n <= off {
		return 0
	}
	return (n - off + step - 1) / step
}

type pixelConverter struct {
	ct      ColorType
	depth   int
	palette []color.NRGBA
	hasKey  bool
	key     [3]uint16
}

func newPixelConverter(doc *Document) (*pixelConverter, error) {
	h := doc.Header
	pc := &pixelConverter{ct: h.ColorType, depth: int(h.BitDepth)}
	trns := doc.Transparency
	switch h.ColorType {
	case ColorPaletted:
		if len(doc.Palette) == 0 {
			return nil, structuralf(KindMissingPalette, "paletted image without PLTE")
		}
		pc.palette = make([]color.NRGBA, len(doc.Palette))
		copy(pc.palette, doc.Palette)
		for i := 0; i < len(trns) && i < len(pc.palette); i++ {
			pc.palette[i].A = trns[i]
		}
	case ColorGrayscale:
		if len(trns) >= 2 {
			pc.hasKey = true
			pc.key[0] = binary.BigEndian.Uint16(trns[0:2])
		}
	case ColorTrueColor:
		if len(trns) >= 6 {
			pc.hasKey = true
			pc.key[0] = binary.BigEndian.Uint16(trns[0:2])
			pc.key[1] = binary.BigEndian.Uint16(trns[2:4])
			pc.key[2] = binary.BigEndian.Uint16(trns[4:6])
		}
	}
	return pc, nil
}

// subByte extracts the i-th sample of a row packed at depth < 8.
func subByte(cdat []byte, i, depth int) uint8 {
	bit := i * depth
	shift := 8 - depth - bit%8
	mask := uint8(1<<depth - 1)
	return (cdat[bit/8] >> shift) & mask
}

// convertRow writes n pixels of cdat to row y of dst, starting at column x0
// and advancing dx columns per pixel.
func (pc *pixelConverter) convertRow(dst *image.NRGBA, cdat []byte, y, x0, dx, n int) error {
	if pc.ct == ColorTrueColorAlpha && pc.depth == 8 && dx == 1 {
		o := dst.PixOffset(x0, y)
		copy(dst.Pix[o:o+4*n], cdat[:4*n])
		return nil
	}
	for i := 0; i < n; i++ {
		var c color.NRGBA
		switch pc.ct {
		case ColorGrayscale:
			var v uint16
			var g uint8
			switch pc.depth {
			case 16:
				v = binary.BigEndian.Uint16(cdat[2*i:])
				g = uint8(v >> 8)
			case 8:
				v = uint16(cdat[i])
				g = cdat[i]
			default:
				s := subByte(cdat, i, pc.depth)
				v = uint16(s)
				g = uint8(int(s) * 255 / (1<<pc.depth - 1))
			}
			c = color.NRGBA{g, g, g, 0xff}
			if pc.hasKey && v == pc.key[0] {
				c.A = 0
			}
		case ColorTrueColor:
			if pc.depth == 16 {
				r := binary.BigEndian.Uint16(cdat[6*i:])
				g := binary.BigEndian.Uint16(cdat[6*i+2:])
				b := binary.BigEndian.Uint16(cdat[6*i+4:])
				c = color.NRGBA{uint8(r >> 8), uint8(g >> 8), uint8(b >> 8), 0xff}
				if pc.hasKey && r == pc.key[0] && g == pc.key[1] && b == pc.key[2] {
					c.A = 0
				}
			} else {
				r, g, b := cdat[3*i], cdat[3*i+1], cdat[3*i+2]
				c = color.NRGBA{r, g, b, 0xff}
				if pc.hasKey && uint16(r) == pc.key[0] && uint16(g) == pc.key[1] && uint16(b) == pc.key[2] {
					c.A = 0
				}
			}
		case ColorPaletted:
			idx := cdat[i]
			if pc.depth < 8 {
				idx = subByte(cdat, i, pc.depth)
			}
			if int(idx) >= len(pc.palette) {
				return fmt.Errorf("%w: palette index %d out of range", ErrInvalidImageData, idx)
			}
			c = pc.palette[idx]
		case ColorGrayscaleAlpha:
			if pc.depth == 16 {
				c = color.NRGBA{cdat[4*i], cdat[4*i], cdat[4*i], cdat[4*i+2]}
			} else {
				c = color.NRGBA{cdat[2*i], cdat[2*i], cdat[2*i], cdat[2*i+1]}
			}
		case ColorTrueColorAlpha:
			if pc.depth == 16 {
				c = color.NRGBA{cdat[8*i], cdat[8*i+2], cdat[8*i+4], cdat[8*i+6]}
			} else {
				c = color.NRGBA{cdat[4*i], cdat[4*i+1], cdat[4*i+2], cdat[4*i+3]}
			}
		}
		dst.SetNRGBA(x0+i*dx, y, c)
	}
	return nil
}
