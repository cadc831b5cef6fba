package apng

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidSignature         = errors.New("apng: invalid PNG signature")
	ErrCorruptChunk             = errors.New("apng: corrupt chunk")
	ErrStructural               = errors.New("apng: structural error")
	ErrUnsupportedCriticalChunk = errors.New("apng: unsupported critical chunk")
	ErrInvalidImageData         = errors.New("apng: invalid image data")
	ErrLimitExceeded            = errors.New("apng: limit exceeded")
	ErrValidation               = errors.New("apng: validation failed")
	ErrSessionClosed            = errors.New("apng: session closed")

	// Frame dump errors.
	ErrInvalidDumpMagic       = errors.New("apng: invalid frame dump magic")
	ErrUnsupportedDumpVersion = errors.New("apng: unsupported frame dump version")
	ErrInvalidDumpPayload     = errors.New("apng: invalid frame dump payload")
)

// StructuralKind identifies which structural rule a stream violated.
type StructuralKind uint8

const (
	KindDuplicateHeader StructuralKind = iota + 1
	KindMissingHeader
	KindInvalidHeader
	KindAnimationControlOrder
	KindChunkOrder
	KindInvalidChunkLength
	KindSequenceOrder
	KindFrameOutOfBounds
	KindInvalidFrameControl
	KindMissingFrameControl
	KindMissingFrameData
	KindFrameCountMismatch
	KindMissingImageData
	KindMissingPalette
	KindTrailingData
)

var structuralKindNames = map[StructuralKind]string{
	KindDuplicateHeader:       "duplicate header",
	KindMissingHeader:         "missing header",
	KindInvalidHeader:         "invalid header",
	KindAnimationControlOrder: "animation control out of order",
	KindChunkOrder:            "chunk out of order",
	KindInvalidChunkLength:    "invalid chunk length",
	KindSequenceOrder:         "non-monotonic sequence number",
	KindFrameOutOfBounds:      "frame exceeds canvas",
	KindInvalidFrameControl:   "invalid frame control",
	KindMissingFrameControl:   "frame data without frame control",
	KindMissingFrameData:      "frame control without frame data",
	KindFrameCountMismatch:    "frame count mismatch",
	KindMissingImageData:      "missing image data",
	KindMissingPalette:        "missing palette",
	KindTrailingData:          "data after end of image",
}

func (k StructuralKind) String() string {
	if s, ok := structuralKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("structural kind %d", uint8(k))
}

// StructuralError reports a stream whose chunks are individually intact but
// violate the PNG or APNG ordering and consistency rules. It matches
// ErrStructural under errors.Is; use errors.As to inspect Kind.
type StructuralError struct {
	Kind StructuralKind
	Msg  string
}

func (e *StructuralError) Error() string {
	if e.Msg == "" {
		return "apng: structural error: " + e.Kind.String()
	}
	return "apng: structural error: " + e.Kind.String() + ": " + e.Msg
}

func (e *StructuralError) Is(target error) bool {
	return target == ErrStructural
}

func structuralf(kind StructuralKind, format string, args ...any) error {
	return &StructuralError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}
