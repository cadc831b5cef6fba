// Package apng implements an Animated PNG (APNG) decoder and encoder.
//
// APNG extends PNG with three chunk types: acTL (animation control), fcTL
// (frame control) and fdAT (frame data). A viewer without APNG support shows
// the default image stored in IDAT; an APNG decoder composites every frame onto
// a canvas, honoring each frame's dispose and blend operations.
//
// # Decoding
//
// Decode reads a whole stream and returns every composited frame:
//
//	f, _ := os.Open("anim.png")
//	defer f.Close()
//	anim, err := apng.Decode(f)
//	for _, fr := range anim.Frames {
//		show(fr.Image, fr.Duration())
//	}
//
// A plain PNG decodes as a single frame. DecodeStatic returns only the default
// image, which lets callers fall back when the animation is malformed.
// ReadDocument parses the chunk structure without decoding pixels.
//
// # Progressive Decoding
//
// A Session accepts bytes as they arrive and returns frames as soon as they
// are complete:
//
//	s := apng.NewSession()
//	for chunk := range network {
//		frames, state, err := s.Feed(chunk)
//		...
//	}
//	err := s.Finish()
//
// Feeding a stream in any split yields the same frames as Decode. A Session
// never blocks and holds no resources besides memory; abandoning it is safe.
//
// # Encoding
//
// Encode writes frames as RGBA 8-bit APNG. Output is byte-identical for
// identical input and options:
//
//	err := apng.Encode(w, []apng.Frame{
//		{Image: red, Delay: apng.Delay{Num: 1, Den: 10}},
//		{Image: blue, XOffset: 2, YOffset: 2, Blend: apng.BlendOver},
//	}, apng.WithLoopCount(0))
//
// # Errors
//
// Failures wrap the package sentinels (ErrCorruptChunk, ErrStructural, ...).
// Structural violations are *StructuralError values whose Kind names the
// broken rule. Unknown critical chunks and bytes after IEND are errors unless
// WithLenient is set.
//
// # Security Considerations
//
// Image dimensions, chunk sizes, frame counts and compressed frame sizes are
// bounded by [Limits]. Decoding allocates at most one canvas copy per frame
// plus the current frame rectangle.
//
// # Frame Dumps
//
// WriteFrameDump and ReadFrameDump store decoded frames in a small versioned
// container compressed with ZIP, Zstandard, LZ4 or Brotli, for golden-file
// tests and tooling.
package apng
