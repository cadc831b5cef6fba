package apng

type Limits struct {
	MaxWidth        uint32
	MaxHeight       uint32
	MaxPixels       uint64 // canvas width*height
	MaxChunkLen     uint32 // payload length of a single chunk
	MaxFrames       uint32
	MaxFrameDataLen uint64 // compressed bytes of one frame, summed over its chunks
	MaxDumpPayload  uint64 // stored and uncompressed size of a frame dump payload

	MaxChunks         uint32 // chunks recorded in a document's chunk log
	MaxAncillaryBytes uint64 // payload bytes of retained ancillary chunks, summed
}

// DefaultLimits returns the limits applied to every zero field of a Limits.
func DefaultLimits() Limits { return defaultLimits() }

func defaultLimits() Limits {
	return Limits{
		MaxWidth:        1 << 16,
		MaxHeight:       1 << 16,
		MaxPixels:       1 << 26,   // 64 Mpx, 256 MiB per RGBA canvas
		MaxChunkLen:     256 << 20, // 256 MiB
		MaxFrames:       1 << 16,
		MaxFrameDataLen: 512 << 20, // 512 MiB
		MaxDumpPayload:  2 << 30,   // 2 GiB

		MaxChunks:         1 << 20,
		MaxAncillaryBytes: 64 << 20, // 64 MiB
	}
}

func (l Limits) withDefaults() Limits {
	d := defaultLimits()
	if l.MaxWidth == 0 {
		l.MaxWidth = d.MaxWidth
	}
	if l.MaxHeight == 0 {
		l.MaxHeight = d.MaxHeight
	}
	if l.MaxPixels == 0 {
		l.MaxPixels = d.MaxPixels
	}
	if l.MaxChunkLen == 0 {
		l.MaxChunkLen = d.MaxChunkLen
	}
	if l.MaxFrames == 0 {
		l.MaxFrames = d.MaxFrames
	}
	if l.MaxFrameDataLen == 0 {
		l.MaxFrameDataLen = d.MaxFrameDataLen
	}
	if l.MaxDumpPayload == 0 {
		l.MaxDumpPayload = d.MaxDumpPayload
	}
	if l.MaxChunks == 0 {
		l.MaxChunks = d.MaxChunks
	}
	if l.MaxAncillaryBytes == 0 {
		l.MaxAncillaryBytes = d.MaxAncillaryBytes
	}
	return l
}

// checkCanvas enforces the dimension limits for a width x height canvas.
func (l Limits) checkCanvas(width, height uint32) bool {
	if width > l.MaxWidth || height > l.MaxHeight {
		return false
	}
	return uint64(width)*uint64(height) <= l.MaxPixels
}
