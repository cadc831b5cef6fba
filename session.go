package apng

import "fmt"

// State is the position of a Session in the decode.
type State int

const (
	StateAwaitingHeader State = iota
	StateAwaitingAnimationControl
	StateStreaming
	StateComplete
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateAwaitingHeader:
		return "awaiting header"
	case StateAwaitingAnimationControl:
		return "awaiting animation control"
	case StateStreaming:
		return "streaming"
	case StateComplete:
		return "complete"
	case StateErrored:
		return "errored"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Session decodes an APNG progressively. Bytes are pushed with Feed in
// arbitrary pieces; every frame that becomes complete is composited and
// returned by the Feed call that completed it.
//
// A Session never blocks and starts no goroutines. It is not safe for
// concurrent use.
type Session struct {
	cfg  decodeConfig
	p    *parser
	comp compositor

	buf      []byte // unconsumed bytes, at most one partial chunk
	sigDone  bool
	consumed int64
	emitted  int
	shifted  int64 // bytes moved to the front of buf by compaction

	state  State
	err    error
	closed bool
}

func NewSession(opts ...DecodeOption) *Session {
	return newSession(newDecodeConfig(opts))
}

func newSession(cfg decodeConfig) *Session {
	s := &Session{cfg: cfg}
	s.p = newParser(&s.cfg)
	return s
}

func (s *Session) State() State { return s.state }

// Header returns the image header once IHDR has been read.
func (s *Session) Header() (Header, bool) {
	if s.p.stage == stageStart {
		return Header{}, false
	}
	return s.p.doc.Header, true
}

// LoopCount returns the acTL play count, 0 meaning infinite or not animated.
func (s *Session) LoopCount() uint32 { return s.p.doc.LoopCount() }

func (s *Session) FramesEmitted() int { return s.emitted }

// BytesConsumed returns the number of stream bytes fully processed,
// including the signature. Bytes of a partial chunk are not counted.
func (s *Session) BytesConsumed() int64 { return s.consumed }

// Document returns the document parsed so far. Frame data of composited
// frames has already been released.
func (s *Session) Document() *Document { return s.p.doc }

// Feed appends p to the stream and processes every complete chunk. It
// returns the frames completed by this call, in order. Once an error is
// returned the session stays errored and every later call returns it again,
// along with no frames.
func (s *Session) Feed(p []byte) ([]CompositedFrame, State, error) {
	if s.state == StateErrored {
		return nil, s.state, s.err
	}
	if s.closed {
		return nil, s.state, ErrSessionClosed
	}
	if s.state == StateComplete {
		if len(p) > 0 && !s.ignoreTrailing() {
			return nil, StateErrored, s.fail(structuralf(KindTrailingData, "%d bytes after IEND", len(p)))
		}
		return nil, s.state, nil
	}

	s.buf = append(s.buf, p...)
	off := 0
	if !s.sigDone {
		n := min(len(s.buf), len(Signature))
		if string(s.buf[:n]) != Signature[:n] {
			return nil, StateErrored, s.fail(ErrInvalidSignature)
		}
		if n < len(Signature) {
			return nil, s.state, nil
		}
		s.sigDone = true
		s.consumed = int64(len(Signature))
		off = len(Signature)
	}

	var frames []CompositedFrame
	for s.state != StateComplete {
		c, n, status, err := readChunk(s.buf[off:], s.cfg.limits.MaxChunkLen)
		if err != nil {
			return frames, StateErrored, s.fail(err)
		}
		if status == chunkNeedMore {
			break
		}
		out, perr := s.p.feed(c, s.consumed)
		off += n
		s.consumed += int64(n)
		// A frame closed by the chunk that also failed the stream, such as
		// one fcTL too many, is still delivered.
		if out.FrameReady && !s.cfg.parseOnly {
			f, err := s.comp.composite(s.p.doc, out.Frame)
			if err != nil {
				return frames, StateErrored, s.fail(err)
			}
			s.cfg.log.Debug("frame ready", "index", f.Index, "region", f.Region.String(), "delay", f.Duration())
			frames = append(frames, f)
			s.emitted++
		}
		if perr != nil {
			return frames, StateErrored, s.fail(perr)
		}
		s.advance(out)
		if s.p.staticDone() {
			s.state = StateComplete
		}
	}

	if s.state == StateComplete && off < len(s.buf) {
		if !s.ignoreTrailing() {
			return frames, StateErrored, s.fail(structuralf(KindTrailingData, "%d bytes after IEND", len(s.buf)-off))
		}
		off = len(s.buf)
	}
	s.compact(off)
	return frames, s.state, nil
}

// Finish declares the end of input. It fails when the stream stopped before
// IEND.
func (s *Session) Finish() error {
	if s.state == StateErrored {
		return s.err
	}
	s.closed = true
	if s.state != StateComplete {
		return s.fail(fmt.Errorf("%w: truncated stream (%d bytes pending in state %s)", ErrCorruptChunk, len(s.buf), s.state))
	}
	return nil
}

// compact drops the first off bytes of buf. Nothing moves while the leading
// chunk is incomplete, so each fed byte is shifted at most once.
func (s *Session) compact(off int) {
	if off == 0 {
		return
	}
	rest := len(s.buf) - off
	if rest > 0 {
		copy(s.buf, s.buf[off:])
		s.shifted += int64(rest)
	}
	s.buf = s.buf[:rest]
}

func (s *Session) advance(out parseOutcome) {
	switch {
	case out.EndOfImage:
		s.state = StateComplete
	case out.HeaderReady:
		s.state = StateAwaitingAnimationControl
	case out.AnimationReady, s.state == StateAwaitingAnimationControl && s.p.stage >= stageInIDAT:
		s.state = StateStreaming
	}
}

func (s *Session) ignoreTrailing() bool {
	if s.cfg.staticOnly {
		return true
	}
	if s.cfg.lenient {
		s.cfg.log.Warn("ignoring bytes after IEND")
		return true
	}
	return false
}

func (s *Session) fail(err error) error {
	s.state, s.err = StateErrored, err
	s.buf = nil
	return err
}
