package apng

import (
	"bytes"
	"errors"
	"image"
	"log/slog"
	"math/rand/v2"
	"strings"
	"testing"
)

func feedAll(t *testing.T, s *Session, parts [][]byte) []CompositedFrame {
	t.Helper()
	var frames []CompositedFrame
	for i, p := range parts {
		fs, _, err := s.Feed(p)
		if err != nil {
			t.Fatalf("part %d: %v", i, err)
		}
		frames = append(frames, fs...)
	}
	if err := s.Finish(); err != nil {
		t.Fatal(err)
	}
	return frames
}

func splitEvery(b []byte, n int) [][]byte {
	var parts [][]byte
	for len(b) > n {
		parts = append(parts, b[:n])
		b = b[n:]
	}
	return append(parts, b)
}

func TestSessionAnySplitMatchesDecode(t *testing.T) {
	stream := sampleStream(t, WithMaxChunkSize(16))
	want, err := DecodeBytes(stream)
	if err != nil {
		t.Fatal(err)
	}
	for _, n := range []int{1, 2, 3, 7, 12, 13, 64, len(stream)} {
		s := NewSession()
		got := feedAll(t, s, splitEvery(stream, n))
		assertFramesEqual(t, got, want.Frames)
		if s.BytesConsumed() != int64(len(stream)) {
			t.Fatalf("split %d: consumed %d of %d", n, s.BytesConsumed(), len(stream))
		}
	}

	rng := rand.New(rand.NewPCG(1, 2))
	for round := 0; round < 50; round++ {
		var parts [][]byte
		rest := stream
		for len(rest) > 0 {
			n := min(rng.IntN(40), len(rest))
			parts = append(parts, rest[:n])
			rest = rest[n:]
		}
		got := feedAll(t, NewSession(), parts)
		assertFramesEqual(t, got, want.Frames)
	}
}

func TestSessionStates(t *testing.T) {
	stream := sampleStream(t)
	s := NewSession()

	steps := []struct {
		end  int
		want State
	}{
		{4, StateAwaitingHeader},
		{8, StateAwaitingHeader},
		{8 + 20, StateAwaitingHeader},
		{8 + 25, StateAwaitingAnimationControl},
		{8 + 25 + 19, StateAwaitingAnimationControl},
		{8 + 25 + 20, StateStreaming},
		{len(stream), StateComplete},
	}
	prev := 0
	for _, st := range steps {
		_, state, err := s.Feed(stream[prev:st.end])
		if err != nil {
			t.Fatalf("at %d: %v", st.end, err)
		}
		if state != st.want || s.State() != st.want {
			t.Fatalf("at %d: state %v want %v", st.end, state, st.want)
		}
		prev = st.end
	}
	h, ok := s.Header()
	if !ok || h.Width != 8 || h.Height != 6 {
		t.Fatalf("header %+v %v", h, ok)
	}
	if s.FramesEmitted() != 4 {
		t.Fatalf("emitted %d", s.FramesEmitted())
	}
	if err := s.Finish(); err != nil {
		t.Fatal(err)
	}
	if _, _, err := s.Feed(nil); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
}

func TestSessionHeaderBeforeIHDR(t *testing.T) {
	s := NewSession()
	if _, ok := s.Header(); ok {
		t.Fatal("header reported before IHDR")
	}
	if _, _, err := s.Feed([]byte(Signature)); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.Header(); ok {
		t.Fatal("header reported before IHDR")
	}
}

func TestSessionEmitsFrameWhenNextControlArrives(t *testing.T) {
	stream := sampleStream(t)
	doc, err := ReadDocument(bytes.NewReader(stream))
	if err != nil {
		t.Fatal(err)
	}
	var second ChunkInfo
	seen := 0
	for _, c := range doc.Chunks {
		if c.Type == TypeFCTL {
			seen++
			if seen == 2 {
				second = c
				break
			}
		}
	}

	s := NewSession()
	frames, _, err := s.Feed(stream[:second.Offset])
	if err != nil {
		t.Fatal(err)
	}
	if len(frames) != 0 {
		t.Fatalf("got %d frames before the next fcTL", len(frames))
	}
	end := second.Offset + chunkOverhead + int64(second.Length)
	frames, _, err = s.Feed(stream[second.Offset:end])
	if err != nil {
		t.Fatal(err)
	}
	if len(frames) != 1 || frames[0].Index != 0 {
		t.Fatalf("got %d frames", len(frames))
	}
	if s.Document().Frames[0].Data != nil {
		t.Fatal("composited frame data not released")
	}
	if s.BytesConsumed() != end {
		t.Fatalf("consumed %d want %d", s.BytesConsumed(), end)
	}
}

func TestSessionSignature(t *testing.T) {
	s := NewSession()
	_, state, err := s.Feed([]byte{0x89, 'P', 'X'})
	if !errors.Is(err, ErrInvalidSignature) || state != StateErrored {
		t.Fatalf("got %v %v", state, err)
	}
	_, state, err2 := s.Feed([]byte("anything"))
	if err2 != err || state != StateErrored {
		t.Fatalf("errored state not sticky: %v", err2)
	}
	if s.Finish() != err {
		t.Fatal("Finish did not report the sticky error")
	}

	s = NewSession()
	if _, _, err := s.Feed([]byte{0x89, 'P'}); err != nil {
		t.Fatalf("partial signature: %v", err)
	}
}

func TestSessionReturnsFramesBeforeError(t *testing.T) {
	stream := sampleStream(t)
	bad := bytes.Clone(stream)
	bad[len(bad)-1] ^= 0x01 // IEND CRC

	s := NewSession()
	frames, state, err := s.Feed(bad)
	if !errors.Is(err, ErrCorruptChunk) || state != StateErrored {
		t.Fatalf("got %v %v", state, err)
	}
	if len(frames) != 3 {
		t.Fatalf("got %d frames before the error, want 3", len(frames))
	}
	frames, _, _ = s.Feed(nil)
	if frames != nil {
		t.Fatal("errored session returned frames")
	}
}

func TestSessionTrailingData(t *testing.T) {
	stream := sampleStream(t)
	withJunk := append(bytes.Clone(stream), "junk"...)

	t.Run("strict same feed", func(t *testing.T) {
		frames, _, err := NewSession().Feed(withJunk)
		assertKind(t, err, KindTrailingData)
		if len(frames) != 4 {
			t.Fatalf("got %d frames", len(frames))
		}
	})
	t.Run("strict later feed", func(t *testing.T) {
		s := NewSession()
		if _, _, err := s.Feed(stream); err != nil {
			t.Fatal(err)
		}
		_, _, err := s.Feed([]byte("x"))
		assertKind(t, err, KindTrailingData)
	})
	t.Run("strict decode", func(t *testing.T) {
		_, err := DecodeBytes(withJunk)
		assertKind(t, err, KindTrailingData)
	})
	t.Run("lenient", func(t *testing.T) {
		var logs bytes.Buffer
		log := slog.New(slog.NewTextHandler(&logs, nil))
		a, err := DecodeBytes(withJunk, WithLenient(true), WithLogger(log))
		if err != nil {
			t.Fatal(err)
		}
		if len(a.Frames) != 4 {
			t.Fatalf("got %d frames", len(a.Frames))
		}
		if !strings.Contains(logs.String(), "ignoring bytes after IEND") {
			t.Fatalf("no warning logged: %q", logs.String())
		}
	})
}

func TestSessionFinishTruncated(t *testing.T) {
	stream := sampleStream(t)
	for _, cut := range []int{0, 5, 8, 20, len(stream) / 2, len(stream) - 1} {
		s := NewSession()
		if _, _, err := s.Feed(stream[:cut]); err != nil {
			t.Fatalf("cut %d: %v", cut, err)
		}
		if err := s.Finish(); !errors.Is(err, ErrCorruptChunk) {
			t.Fatalf("cut %d: expected ErrCorruptChunk, got %v", cut, err)
		}
		if s.State() != StateErrored {
			t.Fatalf("cut %d: state %v", cut, s.State())
		}
	}
	if _, err := DecodeBytes(stream[:len(stream)-12]); !errors.Is(err, ErrCorruptChunk) {
		t.Fatalf("missing IEND: %v", err)
	}
}

func TestSessionRetainsOnlyPartialChunk(t *testing.T) {
	stream := sampleStream(t)
	s := NewSession()
	for _, p := range splitEvery(stream, 5) {
		if _, _, err := s.Feed(p); err != nil {
			t.Fatal(err)
		}
		if len(s.buf) > int(s.cfg.limits.MaxChunkLen)+chunkOverhead {
			t.Fatal("buffer grew past one chunk")
		}
		if got := s.BytesConsumed() + int64(len(s.buf)); s.sigDone && got > int64(len(stream)) {
			t.Fatalf("consumed+pending %d exceeds stream", got)
		}
	}
	if len(s.buf) != 0 {
		t.Fatalf("%d bytes left pending", len(s.buf))
	}
}

func TestSessionLargeChunkInSmallPieces(t *testing.T) {
	stream, err := EncodeBytes([]Frame{{Image: noise(128, 128, 7)}},
		WithCompressionLevel(0), WithMaxChunkSize(1<<20))
	if err != nil {
		t.Fatal(err)
	}
	doc, err := ReadDocument(bytes.NewReader(stream))
	if err != nil {
		t.Fatal(err)
	}
	if n := len(doc.Frames[0].Data); n < 64<<10 {
		t.Fatalf("frame data %d bytes, want one large IDAT", n)
	}

	s := NewSession()
	var frames []CompositedFrame
	for _, p := range splitEvery(stream, 64) {
		before := s.shifted
		fs, _, err := s.Feed(p)
		if err != nil {
			t.Fatal(err)
		}
		frames = append(frames, fs...)
		if moved := s.shifted - before; moved > int64(len(p)) {
			t.Fatalf("feed of %d bytes shifted %d buffered bytes", len(p), moved)
		}
	}
	if s.shifted > int64(len(stream)) {
		t.Fatalf("shifted %d bytes for a %d byte stream", s.shifted, len(stream))
	}
	if len(frames) != 1 || s.State() != StateComplete {
		t.Fatalf("got %d frames in state %s", len(frames), s.State())
	}
}

func TestSessionDeliversFrameClosedByExtraFrameControl(t *testing.T) {
	full := image.Rect(0, 0, 4, 4)
	px := mustCompress(t, solid(4, 4, red))
	stream := newTestStream().ihdr(4, 4).actl(1, 0).
		fctl(0, full, DisposeNone, BlendSource).idat(px).
		fctl(1, full, DisposeNone, BlendSource).fdat(2, px).iend().Bytes()

	s := NewSession()
	frames, state, err := s.Feed(stream)
	if state != StateErrored {
		t.Fatalf("state %s", state)
	}
	assertKind(t, err, KindFrameCountMismatch)
	if len(frames) != 1 || frames[0].Image.NRGBAAt(0, 0) != red {
		t.Fatalf("got %d frames, want the completed first frame", len(frames))
	}
	if s.FramesEmitted() != 1 {
		t.Fatalf("emitted %d", s.FramesEmitted())
	}
}

func TestIndependentSessions(t *testing.T) {
	a, b := NewSession(), NewSession()
	sa, sb := sampleStream(t), sampleStream(t, WithDefaultImageAsFirstFrame(false))
	var fa, fb []CompositedFrame
	for i := 0; i < max(len(sa), len(sb)); i += 9 {
		if i < len(sa) {
			fs, _, err := a.Feed(sa[i:min(i+9, len(sa))])
			if err != nil {
				t.Fatal(err)
			}
			fa = append(fa, fs...)
		}
		if i < len(sb) {
			fs, _, err := b.Feed(sb[i:min(i+9, len(sb))])
			if err != nil {
				t.Fatal(err)
			}
			fb = append(fb, fs...)
		}
	}
	assertFramesEqual(t, fa, fb)
}

func TestStateString(t *testing.T) {
	if StateStreaming.String() != "streaming" || State(42).String() != "State(42)" {
		t.Fatal("unexpected State strings")
	}
}
