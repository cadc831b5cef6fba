// Package main provides C-compatible exports for the apng library.
// Build with: go build -buildmode=c-shared -o apng.dll
package main

/*
#include <stdlib.h>
#include <stdint.h>

// Result structure for operations that return data
typedef struct {
    char* data;
    int   data_len;
    char* error;
} ApngResult;

// Frame for encoding. pixels holds width*height straight-alpha RGBA bytes.
typedef struct {
    char*    pixels;
    int      width;
    int      height;
    int      x_offset;
    int      y_offset;
    uint16_t delay_num;
    uint16_t delay_den;
    uint8_t  dispose;
    uint8_t  blend;
} CFrame;
*/
import "C"

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"math"
	"unsafe"

	"github.com/logicossoftware/go-apng"
)

func main() {}

// ApngDumpVersion returns the frame dump format version written by this library.
//
//export ApngDumpVersion
func ApngDumpVersion() C.uint16_t {
	return C.uint16_t(apng.DumpVersionV1)
}

// ApngFreeResult frees memory allocated by other Apng functions.
// Must be called to avoid memory leaks.
//
//export ApngFreeResult
func ApngFreeResult(result C.ApngResult) {
	if result.data != nil {
		C.free(unsafe.Pointer(result.data))
	}
	if result.error != nil {
		C.free(unsafe.Pointer(result.error))
	}
}

// ApngFreeString frees a C string allocated by Go.
//
//export ApngFreeString
func ApngFreeString(s *C.char) {
	if s != nil {
		C.free(unsafe.Pointer(s))
	}
}

func makeResult(data []byte) C.ApngResult {
	var result C.ApngResult
	if len(data) > math.MaxInt32 {
		return makeError(fmt.Errorf("%w: result of %d bytes", apng.ErrLimitExceeded, len(data)))
	}
	if len(data) > 0 {
		result.data = (*C.char)(C.CBytes(data))
		result.data_len = C.int(len(data))
	}
	return result
}

func makeError(err error) C.ApngResult {
	var result C.ApngResult
	result.error = C.CString(err.Error())
	return result
}

func decodeBytes(data *C.char, dataLen C.int) (*apng.Animation, error) {
	return apng.DecodeBytes(C.GoBytes(unsafe.Pointer(data), dataLen))
}

// ApngCanDecode reports whether the bytes start like an animated PNG.
// Returns 1 if so, 0 otherwise. A prefix of the file is enough.
//
//export ApngCanDecode
func ApngCanDecode(data *C.char, dataLen C.int) C.int {
	if apng.CanDecode(C.GoBytes(unsafe.Pointer(data), dataLen)) {
		return 1
	}
	return 0
}

// ApngEncodeRGBA encodes frames into an APNG stream.
// Parameters:
//   - frames: array of CFrame structs; the first defines the canvas
//   - frameCount: number of frames
//   - loopCount: number of plays, 0 for infinite
//   - compressionLevel: zlib level 0-9, or -1 for the default
//
// Returns ApngResult with the encoded file or error. Call ApngFreeResult when done.
//
//export ApngEncodeRGBA
func ApngEncodeRGBA(frames *C.CFrame, frameCount C.int, loopCount C.uint32_t, compressionLevel C.int) C.ApngResult {
	if frames == nil || frameCount <= 0 {
		return makeError(fmt.Errorf("%w: no frames", apng.ErrValidation))
	}
	limits := apng.DefaultLimits()
	if uint64(frameCount) > uint64(limits.MaxFrames) {
		return makeError(fmt.Errorf("%w: %d frames", apng.ErrLimitExceeded, int(frameCount)))
	}
	in := unsafe.Slice(frames, int(frameCount))
	out := make([]apng.Frame, len(in))
	for i, f := range in {
		w, h := int(f.width), int(f.height)
		if w <= 0 || h <= 0 || f.pixels == nil {
			return makeError(fmt.Errorf("%w: frame %d has no pixels", apng.ErrValidation, i))
		}
		if err := checkFrameSize(limits, w, h); err != nil {
			return makeError(fmt.Errorf("frame %d: %w", i, err))
		}
		img := image.NewNRGBA(image.Rect(0, 0, w, h))
		copy(img.Pix, C.GoBytes(unsafe.Pointer(f.pixels), C.int(len(img.Pix))))
		out[i] = apng.Frame{
			Image:   img,
			XOffset: int(f.x_offset),
			YOffset: int(f.y_offset),
			Delay:   apng.Delay{Num: uint16(f.delay_num), Den: uint16(f.delay_den)},
			Dispose: apng.DisposeOp(f.dispose),
			Blend:   apng.BlendOp(f.blend),
		}
	}

	opts := []apng.EncodeOption{apng.WithLoopCount(uint32(loopCount))}
	if compressionLevel >= 0 {
		opts = append(opts, apng.WithCompressionLevel(int(compressionLevel)))
	}
	var buf bytes.Buffer
	if err := apng.Encode(&buf, out, opts...); err != nil {
		return makeError(err)
	}
	return makeResult(buf.Bytes())
}

// checkFrameSize rejects frames beyond the decoder's canvas limits before any
// pixel buffer is allocated. Pixel byte counts must also fit a C int.
func checkFrameSize(l apng.Limits, w, h int) error {
	pixels := uint64(w) * uint64(h)
	if uint64(w) > uint64(l.MaxWidth) || uint64(h) > uint64(l.MaxHeight) || pixels > l.MaxPixels || pixels*4 > math.MaxInt32 {
		return fmt.Errorf("%w: %dx%d", apng.ErrLimitExceeded, w, h)
	}
	return nil
}

type frameInfo struct {
	Index      int    `json:"index"`
	DelayNum   uint16 `json:"delayNum"`
	DelayDen   uint16 `json:"delayDen"`
	DurationMs int64  `json:"durationMs"`
	X          int    `json:"x"`
	Y          int    `json:"y"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	Dispose    string `json:"dispose"`
	Blend      string `json:"blend"`
}

// ApngDecodeInfo decodes an APNG and returns a JSON description of it.
// The JSON structure contains: width, height, loopCount, defaultImageIsFrame,
// totalDurationMs and a frames array (index, delay, region, dispose, blend).
//
// Returns ApngResult with the JSON string or error. Call ApngFreeResult when done.
//
//export ApngDecodeInfo
func ApngDecodeInfo(data *C.char, dataLen C.int) C.ApngResult {
	a, err := decodeBytes(data, dataLen)
	if err != nil {
		return makeError(err)
	}

	frames := make([]frameInfo, len(a.Frames))
	for i, f := range a.Frames {
		frames[i] = frameInfo{
			Index:      f.Index,
			DelayNum:   f.Delay.Num,
			DelayDen:   f.Delay.Den,
			DurationMs: f.Duration().Milliseconds(),
			X:          f.Region.Min.X,
			Y:          f.Region.Min.Y,
			Width:      f.Region.Dx(),
			Height:     f.Region.Dy(),
			Dispose:    f.Dispose.String(),
			Blend:      f.Blend.String(),
		}
	}
	result := map[string]any{
		"width":               a.Header.Width,
		"height":              a.Header.Height,
		"loopCount":           a.LoopCount,
		"defaultImageIsFrame": a.DefaultImageIsFrame,
		"totalDurationMs":     a.TotalDuration().Milliseconds(),
		"frames":              frames,
	}

	jsonBytes, err := json.Marshal(result)
	if err != nil {
		return makeError(err)
	}
	return makeResult(jsonBytes)
}

// ApngDecodeFrame decodes an APNG and returns the canvas of one frame as
// width*height straight-alpha RGBA bytes.
// Parameters:
//   - data: pointer to APNG file bytes
//   - dataLen: length of the data
//   - index: zero-based frame index
//
// Returns ApngResult with pixel data or error. Call ApngFreeResult when done.
//
//export ApngDecodeFrame
func ApngDecodeFrame(data *C.char, dataLen C.int, index C.int) C.ApngResult {
	a, err := decodeBytes(data, dataLen)
	if err != nil {
		return makeError(err)
	}
	if index < 0 || int(index) >= len(a.Frames) {
		var result C.ApngResult
		result.error = C.CString(fmt.Sprintf("frame index %d out of range (%d frames)", int(index), len(a.Frames)))
		return result
	}
	return makeResult(a.Frames[index].Image.Pix)
}

// ApngFrameDump decodes an APNG and returns its frames in the frame dump
// format, compressed with compression (0=None, 1=ZIP, 2=ZSTD, 3=LZ4, 4=Brotli).
//
// Returns ApngResult with the dump or error. Call ApngFreeResult when done.
//
//export ApngFrameDump
func ApngFrameDump(data *C.char, dataLen C.int, compression C.uint16_t) C.ApngResult {
	a, err := decodeBytes(data, dataLen)
	if err != nil {
		return makeError(err)
	}
	var buf bytes.Buffer
	if err := apng.WriteFrameDump(&buf, a, apng.DumpCompression(compression)); err != nil {
		return makeError(err)
	}
	return makeResult(buf.Bytes())
}

// ApngValidate fully decodes an APNG, checking every chunk and frame.
// Returns NULL on success, or an error message string on failure.
// Call ApngFreeString on the result if non-NULL.
//
//export ApngValidate
func ApngValidate(data *C.char, dataLen C.int) *C.char {
	if _, err := decodeBytes(data, dataLen); err != nil {
		return C.CString(err.Error())
	}
	return nil
}

// ApngGetFrameCount returns the number of frames in an APNG.
// Returns -1 on error.
//
//export ApngGetFrameCount
func ApngGetFrameCount(data *C.char, dataLen C.int) C.int {
	doc, err := apng.ReadDocument(bytes.NewReader(C.GoBytes(unsafe.Pointer(data), dataLen)))
	if err != nil {
		return -1
	}
	return C.int(len(doc.Frames))
}
