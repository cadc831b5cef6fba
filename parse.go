package apng

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image/color"
)

// chunkKind is the closed set of chunk types the parser understands.
type chunkKind int

const (
	kindAncillary chunkKind = iota
	kindUnknownCritical
	kindIHDR
	kindPLTE
	kindTRNS
	kindIDAT
	kindACTL
	kindFCTL
	kindFDAT
	kindIEND
)

func classifyChunk(t ChunkType) chunkKind {
	switch t {
	case TypeIHDR:
		return kindIHDR
	case TypePLTE:
		return kindPLTE
	case TypeTRNS:
		return kindTRNS
	case TypeIDAT:
		return kindIDAT
	case TypeACTL:
		return kindACTL
	case TypeFCTL:
		return kindFCTL
	case TypeFDAT:
		return kindFDAT
	case TypeIEND:
		return kindIEND
	}
	if t.IsCritical() {
		return kindUnknownCritical
	}
	return kindAncillary
}

// Decoding stage. IHDR must come first and IDAT chunks must be consecutive.
const (
	stageStart = iota
	stageSeenIHDR
	stageInIDAT
	stageAfterIDAT
	stageSeenIEND
)

// parseOutcome reports what a single chunk completed.
type parseOutcome struct {
	HeaderReady    bool
	AnimationReady bool
	FrameReady     bool
	Frame          int
	EndOfImage     bool
}

// parser accumulates a Document from a sequence of chunks.
type parser struct {
	cfg   *decodeConfig
	doc   *Document
	stage int

	lastSeq  int64
	open     int // index of the frame receiving data, -1 if none
	openData bool
	seenFCTL bool
	seenFDAT bool

	defaultLen   uint64
	ancillaryLen uint64
}

func newParser(cfg *decodeConfig) *parser {
	return &parser{cfg: cfg, doc: &Document{}, lastSeq: -1, open: -1}
}

// feed consumes one chunk. offset is the chunk's position in the stream and
// is recorded in the document's chunk log.
func (p *parser) feed(c Chunk, offset int64) (parseOutcome, error) {
	var out parseOutcome
	if p.stage == stageSeenIEND {
		return out, structuralf(KindTrailingData, "%s after IEND", c.Type)
	}
	if uint64(len(p.doc.Chunks)) >= uint64(p.cfg.limits.MaxChunks) {
		return out, fmt.Errorf("%w: more than %d chunks", ErrLimitExceeded, p.cfg.limits.MaxChunks)
	}
	p.doc.Chunks = append(p.doc.Chunks, ChunkInfo{Type: c.Type, Offset: offset, Length: uint32(len(c.Data))})

	kind := classifyChunk(c.Type)
	if p.cfg.staticOnly && (kind == kindACTL || kind == kindFCTL || kind == kindFDAT) {
		kind = kindAncillary
	}
	if p.stage == stageStart && kind != kindIHDR {
		return out, structuralf(KindMissingHeader, "first chunk is %s", c.Type)
	}
	if p.stage == stageInIDAT && kind != kindIDAT {
		p.stage = stageAfterIDAT
	}

	switch kind {
	case kindIHDR:
		if p.stage != stageStart {
			return out, structuralf(KindDuplicateHeader, "second IHDR")
		}
		h, err := parseIHDR(c.Data)
		if err != nil {
			return out, err
		}
		if err := validateHeader(h, p.cfg.limits); err != nil {
			return out, err
		}
		p.doc.Header = h
		p.stage = stageSeenIHDR
		out.HeaderReady = true

	case kindPLTE:
		if p.stage != stageSeenIHDR {
			return out, structuralf(KindChunkOrder, "PLTE after image data")
		}
		if p.doc.Palette != nil {
			return out, structuralf(KindChunkOrder, "duplicate PLTE")
		}
		n := len(c.Data) / 3
		if len(c.Data)%3 != 0 || n == 0 || n > 256 || (p.doc.Header.ColorType == ColorPaletted && n > 1<<p.doc.Header.BitDepth) {
			return out, structuralf(KindInvalidChunkLength, "PLTE length %d", len(c.Data))
		}
		p.doc.Palette = make([]color.NRGBA, n)
		for i := range p.doc.Palette {
			p.doc.Palette[i] = color.NRGBA{R: c.Data[3*i], G: c.Data[3*i+1], B: c.Data[3*i+2], A: 0xff}
		}

	case kindTRNS:
		if p.stage != stageSeenIHDR {
			return out, structuralf(KindChunkOrder, "tRNS after image data")
		}
		p.doc.Transparency = bytes.Clone(c.Data)

	case kindACTL:
		if p.stage != stageSeenIHDR || p.doc.Animation != nil || p.seenFCTL {
			return out, structuralf(KindAnimationControlOrder, "acTL must appear once, after IHDR and before image data")
		}
		ac, err := parseACTL(c.Data)
		if err != nil {
			return out, err
		}
		if ac.NumFrames == 0 {
			return out, structuralf(KindInvalidFrameControl, "acTL announces zero frames")
		}
		if ac.NumFrames > p.cfg.limits.MaxFrames {
			return out, fmt.Errorf("%w: %d frames", ErrLimitExceeded, ac.NumFrames)
		}
		p.doc.Animation = &ac
		out.AnimationReady = true

	case kindFCTL:
		if p.doc.Animation == nil {
			// fcTL without acTL is an ordinary ancillary chunk of a plain
			// PNG; remember it so a late acTL is rejected.
			p.seenFCTL = true
			return out, p.keepAncillary(c)
		}
		fc, err := parseFCTL(c.Data)
		if err != nil {
			return out, err
		}
		if err := p.checkSequence(fc.SequenceNumber); err != nil {
			return out, err
		}
		if err := validateFrameControl(fc, p.doc.Header); err != nil {
			return out, err
		}
		if ready, err := p.closeFrame(); err != nil {
			return out, err
		} else if ready >= 0 {
			out.FrameReady, out.Frame = true, ready
		}
		if uint32(len(p.doc.Frames)) >= p.doc.Animation.NumFrames {
			return out, structuralf(KindFrameCountMismatch, "more than %d frames", p.doc.Animation.NumFrames)
		}
		fd := FrameDescriptor{FrameControl: fc}
		if p.stage == stageSeenIHDR {
			if fc.XOffset != 0 || fc.YOffset != 0 || fc.Width != p.doc.Header.Width || fc.Height != p.doc.Header.Height {
				return out, structuralf(KindFrameOutOfBounds, "default image frame must cover the canvas")
			}
			fd.IsDefaultImage = true
			p.doc.DefaultImageIsFrame = true
		}
		p.seenFCTL = true
		p.doc.Frames = append(p.doc.Frames, fd)
		p.open, p.openData = len(p.doc.Frames)-1, false

	case kindIDAT:
		switch {
		case p.stage == stageAfterIDAT:
			return out, structuralf(KindChunkOrder, "IDAT chunks are not consecutive")
		case p.seenFDAT:
			return out, structuralf(KindChunkOrder, "IDAT after fdAT")
		}
		p.stage = stageInIDAT
		if p.open >= 0 && p.doc.Frames[p.open].IsDefaultImage {
			if err := p.appendFrameData(c.Data); err != nil {
				return out, err
			}
		} else {
			p.defaultLen += uint64(len(c.Data))
			if p.defaultLen > p.cfg.limits.MaxFrameDataLen {
				return out, fmt.Errorf("%w: default image data %d bytes", ErrLimitExceeded, p.defaultLen)
			}
			p.doc.DefaultImage = append(p.doc.DefaultImage, c.Data...)
		}

	case kindFDAT:
		if p.doc.Animation == nil || p.stage != stageAfterIDAT {
			return out, structuralf(KindChunkOrder, "fdAT before image data")
		}
		if len(c.Data) < fdatSeqLen {
			return out, structuralf(KindInvalidChunkLength, "fdAT length %d", len(c.Data))
		}
		if err := p.checkSequence(binary.BigEndian.Uint32(c.Data[:fdatSeqLen])); err != nil {
			return out, err
		}
		if p.open < 0 || p.doc.Frames[p.open].IsDefaultImage {
			return out, structuralf(KindMissingFrameControl, "fdAT without fcTL")
		}
		p.seenFDAT = true
		if err := p.appendFrameData(c.Data[fdatSeqLen:]); err != nil {
			return out, err
		}

	case kindIEND:
		if p.stage < stageInIDAT {
			return out, structuralf(KindMissingImageData, "IEND before IDAT")
		}
		if ready, err := p.closeFrame(); err != nil {
			return out, err
		} else if ready >= 0 {
			out.FrameReady, out.Frame = true, ready
		}
		if p.doc.Animation == nil && !p.cfg.staticOnly {
			// A plain PNG animates as a single still frame.
			h := p.doc.Header
			p.doc.Frames = append(p.doc.Frames, FrameDescriptor{
				FrameControl:   FrameControl{Width: h.Width, Height: h.Height},
				Data:           p.doc.DefaultImage,
				IsDefaultImage: true,
			})
			p.doc.DefaultImage = nil
			p.doc.DefaultImageIsFrame = true
			out.FrameReady, out.Frame = true, 0
		}
		if a := p.doc.Animation; a != nil && uint32(len(p.doc.Frames)) != a.NumFrames {
			return out, structuralf(KindFrameCountMismatch, "acTL announces %d frames, found %d", a.NumFrames, len(p.doc.Frames))
		}
		p.stage = stageSeenIEND
		out.EndOfImage = true

	case kindUnknownCritical:
		if !p.cfg.lenient {
			return out, fmt.Errorf("%w: %s", ErrUnsupportedCriticalChunk, c.Type)
		}
		p.cfg.log.Warn("skipping unknown critical chunk", "type", c.Type.String(), "length", len(c.Data))

	default:
		if err := p.keepAncillary(c); err != nil {
			return out, err
		}
	}
	return out, nil
}

// staticDone reports whether a static-only parse has everything it needs.
func (p *parser) staticDone() bool {
	return p.cfg.staticOnly && p.stage >= stageAfterIDAT
}

func (p *parser) keepAncillary(c Chunk) error {
	if p.cfg.staticOnly {
		return nil
	}
	p.ancillaryLen += uint64(len(c.Data))
	if p.ancillaryLen > p.cfg.limits.MaxAncillaryBytes {
		return fmt.Errorf("%w: ancillary chunks exceed %d bytes", ErrLimitExceeded, p.cfg.limits.MaxAncillaryBytes)
	}
	p.cfg.log.Debug("ancillary chunk", "type", c.Type.String(), "length", len(c.Data))
	p.doc.Ancillary = append(p.doc.Ancillary, Chunk{Type: c.Type, Data: bytes.Clone(c.Data), CRC: c.CRC})
	return nil
}

func (p *parser) checkSequence(seq uint32) error {
	if int64(seq) <= p.lastSeq {
		return structuralf(KindSequenceOrder, "sequence number %d after %d", seq, p.lastSeq)
	}
	p.lastSeq = int64(seq)
	return nil
}

// closeFrame ends the open frame's data run and returns its index, or -1
// when no frame was open.
func (p *parser) closeFrame() (int, error) {
	if p.open < 0 {
		return -1, nil
	}
	if !p.openData {
		return -1, structuralf(KindMissingFrameData, "frame %d has no data", p.open)
	}
	idx := p.open
	p.open, p.openData = -1, false
	return idx, nil
}

func (p *parser) appendFrameData(data []byte) error {
	fd := &p.doc.Frames[p.open]
	if uint64(len(fd.Data))+uint64(len(data)) > p.cfg.limits.MaxFrameDataLen {
		return fmt.Errorf("%w: frame %d data exceeds %d bytes", ErrLimitExceeded, p.open, p.cfg.limits.MaxFrameDataLen)
	}
	fd.Data = append(fd.Data, data...)
	fd.chunks++
	p.openData = true
	return nil
}
