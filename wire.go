package apng

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
)

const (
	chunkHeaderSize  = 8 // length + type
	chunkOverhead    = 12
	maxPNGChunkLen   = 0x7FFFFFFF
	ihdrLen          = 13
	actlLen          = 8
	fctlLen          = 26
	fdatSeqLen       = 4
	dumpHeaderSizeV1 = 40
)

type chunkStatus int

const (
	chunkOK       chunkStatus = iota
	chunkNeedMore             // buf ends inside the chunk
)

// readChunk reads one chunk from the front of buf. It returns the chunk and
// the number of bytes it occupies, or chunkNeedMore when buf does not yet
// hold the whole chunk. Chunk.Data aliases buf.
func readChunk(buf []byte, maxLen uint32) (Chunk, int, chunkStatus, error) {
	if len(buf) < chunkHeaderSize {
		return Chunk{}, 0, chunkNeedMore, nil
	}
	length := binary.BigEndian.Uint32(buf[0:4])
	var typ ChunkType
	copy(typ[:], buf[4:8])
	if length > maxPNGChunkLen {
		return Chunk{}, 0, chunkOK, fmt.Errorf("%w: %s length %d exceeds 2^31-1", ErrCorruptChunk, typ, length)
	}
	if !validChunkType(typ) {
		return Chunk{}, 0, chunkOK, fmt.Errorf("%w: invalid chunk type %q", ErrCorruptChunk, typ[:])
	}
	if length > maxLen {
		return Chunk{}, 0, chunkOK, fmt.Errorf("%w: %s chunk length %d", ErrLimitExceeded, typ, length)
	}
	total := chunkOverhead + int(length)
	if len(buf) < total {
		return Chunk{}, 0, chunkNeedMore, nil
	}
	end := chunkHeaderSize + int(length)
	want := binary.BigEndian.Uint32(buf[end:total])
	if got := crc32.ChecksumIEEE(buf[4:end]); got != want {
		return Chunk{}, 0, chunkOK, fmt.Errorf("%w: %s CRC mismatch (stored %08x, computed %08x)", ErrCorruptChunk, typ, want, got)
	}
	return Chunk{Type: typ, Data: buf[chunkHeaderSize:end], CRC: want}, total, chunkOK, nil
}

func validChunkType(t ChunkType) bool {
	for _, b := range t {
		if !(b >= 'A' && b <= 'Z' || b >= 'a' && b <= 'z') {
			return false
		}
	}
	return true
}

// chunkCRC computes the CRC stored after a chunk's payload.
func chunkCRC(t ChunkType, data []byte) uint32 {
	crc := crc32.NewIEEE()
	crc.Write(t[:])
	crc.Write(data)
	return crc.Sum32()
}

func writeChunk(w io.Writer, t ChunkType, data []byte) error {
	if uint64(len(data)) > maxPNGChunkLen {
		return fmt.Errorf("%w: %s chunk too large", ErrValidation, t)
	}
	var header [chunkHeaderSize]byte
	binary.BigEndian.PutUint32(header[0:4], uint32(len(data)))
	copy(header[4:8], t[:])
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	var footer [4]byte
	binary.BigEndian.PutUint32(footer[:], chunkCRC(t, data))
	_, err := w.Write(footer[:])
	return err
}

func parseIHDR(data []byte) (Header, error) {
	if len(data) != ihdrLen {
		return Header{}, structuralf(KindInvalidChunkLength, "IHDR length %d", len(data))
	}
	return Header{
		Width:             binary.BigEndian.Uint32(data[0:4]),
		Height:            binary.BigEndian.Uint32(data[4:8]),
		BitDepth:          BitDepth(data[8]),
		ColorType:         ColorType(data[9]),
		CompressionMethod: data[10],
		FilterMethod:      data[11],
		Interlace:         InterlaceMethod(data[12]),
	}, nil
}

func marshalIHDR(h Header) []byte {
	buf := make([]byte, ihdrLen)
	binary.BigEndian.PutUint32(buf[0:4], h.Width)
	binary.BigEndian.PutUint32(buf[4:8], h.Height)
	buf[8] = byte(h.BitDepth)
	buf[9] = byte(h.ColorType)
	buf[10] = h.CompressionMethod
	buf[11] = h.FilterMethod
	buf[12] = byte(h.Interlace)
	return buf
}

func parseACTL(data []byte) (AnimationControl, error) {
	if len(data) != actlLen {
		return AnimationControl{}, structuralf(KindInvalidChunkLength, "acTL length %d", len(data))
	}
	return AnimationControl{
		NumFrames: binary.BigEndian.Uint32(data[0:4]),
		NumPlays:  binary.BigEndian.Uint32(data[4:8]),
	}, nil
}

func marshalACTL(ac AnimationControl) []byte {
	buf := make([]byte, actlLen)
	binary.BigEndian.PutUint32(buf[0:4], ac.NumFrames)
	binary.BigEndian.PutUint32(buf[4:8], ac.NumPlays)
	return buf
}

func parseFCTL(data []byte) (FrameControl, error) {
	if len(data) != fctlLen {
		return FrameControl{}, structuralf(KindInvalidChunkLength, "fcTL length %d", len(data))
	}
	return FrameControl{
		SequenceNumber: binary.BigEndian.Uint32(data[0:4]),
		Width:          binary.BigEndian.Uint32(data[4:8]),
		Height:         binary.BigEndian.Uint32(data[8:12]),
		XOffset:        binary.BigEndian.Uint32(data[12:16]),
		YOffset:        binary.BigEndian.Uint32(data[16:20]),
		Delay: Delay{
			Num: binary.BigEndian.Uint16(data[20:22]),
			Den: binary.BigEndian.Uint16(data[22:24]),
		},
		Dispose: DisposeOp(data[24]),
		Blend:   BlendOp(data[25]),
	}, nil
}

func marshalFCTL(fc FrameControl) []byte {
	buf := make([]byte, fctlLen)
	binary.BigEndian.PutUint32(buf[0:4], fc.SequenceNumber)
	binary.BigEndian.PutUint32(buf[4:8], fc.Width)
	binary.BigEndian.PutUint32(buf[8:12], fc.Height)
	binary.BigEndian.PutUint32(buf[12:16], fc.XOffset)
	binary.BigEndian.PutUint32(buf[16:20], fc.YOffset)
	binary.BigEndian.PutUint16(buf[20:22], fc.Delay.Num)
	binary.BigEndian.PutUint16(buf[22:24], fc.Delay.Den)
	buf[24] = byte(fc.Dispose)
	buf[25] = byte(fc.Blend)
	return buf
}

// dumpHeaderV1 is the fixed little-endian header of a frame dump.
type dumpHeaderV1 struct {
	Magic       [8]byte
	Version     uint16
	Compression uint16
	Width       uint32
	Height      uint32
	FrameCount  uint32
	LoopCount   uint32
	PayloadLen  uint64
	Reserved    uint32
}

func readDumpHeader(r io.Reader) (dumpHeaderV1, error) {
	var buf [dumpHeaderSizeV1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return dumpHeaderV1{}, err
	}
	var h dumpHeaderV1
	copy(h.Magic[:], buf[0:8])
	h.Version = binary.LittleEndian.Uint16(buf[8:10])
	h.Compression = binary.LittleEndian.Uint16(buf[10:12])
	h.Width = binary.LittleEndian.Uint32(buf[12:16])
	h.Height = binary.LittleEndian.Uint32(buf[16:20])
	h.FrameCount = binary.LittleEndian.Uint32(buf[20:24])
	h.LoopCount = binary.LittleEndian.Uint32(buf[24:28])
	h.PayloadLen = binary.LittleEndian.Uint64(buf[28:36])
	h.Reserved = binary.LittleEndian.Uint32(buf[36:40])
	return h, nil
}

func writeDumpHeader(w io.Writer, h dumpHeaderV1) error {
	var buf [dumpHeaderSizeV1]byte
	copy(buf[0:8], h.Magic[:])
	binary.LittleEndian.PutUint16(buf[8:10], h.Version)
	binary.LittleEndian.PutUint16(buf[10:12], h.Compression)
	binary.LittleEndian.PutUint32(buf[12:16], h.Width)
	binary.LittleEndian.PutUint32(buf[16:20], h.Height)
	binary.LittleEndian.PutUint32(buf[20:24], h.FrameCount)
	binary.LittleEndian.PutUint32(buf[24:28], h.LoopCount)
	binary.LittleEndian.PutUint64(buf[28:36], h.PayloadLen)
	binary.LittleEndian.PutUint32(buf[36:40], h.Reserved)
	_, err := w.Write(buf[:])
	return err
}
