package apng

import "log/slog"

type decodeConfig struct {
	limits  Limits
	lenient bool
	log     *slog.Logger

	// staticOnly stops after the default image; parseOnly skips compositing.
	staticOnly bool
	parseOnly  bool
}

type DecodeOption func(*decodeConfig)

func newDecodeConfig(opts []DecodeOption) decodeConfig {
	cfg := decodeConfig{limits: defaultLimits()}
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.limits = cfg.limits.withDefaults()
	if cfg.log == nil {
		cfg.log = slog.Default()
	}
	cfg.log = cfg.log.With("component", "apng")
	return cfg
}

func WithDecodeLimits(l Limits) DecodeOption {
	return func(c *decodeConfig) { c.limits = l }
}

// WithLenient makes the decoder skip unknown critical chunks and ignore bytes
// after IEND instead of failing. Both are errors by default.
func WithLenient(v bool) DecodeOption {
	return func(c *decodeConfig) { c.lenient = v }
}

// WithLogger sets the logger used for skipped chunks and lenient-mode
// recoveries. A nil logger selects slog.Default().
func WithLogger(l *slog.Logger) DecodeOption {
	return func(c *decodeConfig) { c.log = l }
}

type encodeConfig struct {
	limits         Limits
	loopCount      uint32
	maxChunkSize   int
	defaultIsFrame bool
	level          int
	ancillary      []Chunk
}

type EncodeOption func(*encodeConfig)

const (
	DefaultMaxChunkSize     = 1 << 15
	DefaultCompressionLevel = 6
)

// WithLoopCount sets the number of plays written to acTL. 0 loops forever.
func WithLoopCount(n uint32) EncodeOption {
	return func(c *encodeConfig) { c.loopCount = n }
}

// WithMaxChunkSize caps the payload length of every IDAT and fdAT chunk.
// Larger frames are split across several chunks.
func WithMaxChunkSize(n int) EncodeOption {
	return func(c *encodeConfig) { c.maxChunkSize = n }
}

// WithDefaultImageAsFirstFrame controls whether the first frame is stored as
// the default image (IDAT) and shown as frame 1. When false, the first frame
// is written twice: once as a hidden default image and once as fdAT.
func WithDefaultImageAsFirstFrame(v bool) EncodeOption {
	return func(c *encodeConfig) { c.defaultIsFrame = v }
}

// WithCompressionLevel sets the zlib level, 0 (store) through 9 (best).
func WithCompressionLevel(level int) EncodeOption {
	return func(c *encodeConfig) { c.level = level }
}

func WithEncodeLimits(l Limits) EncodeOption {
	return func(c *encodeConfig) { c.limits = l }
}

// WithAncillaryChunks writes the given ancillary chunks between IHDR and acTL.
func WithAncillaryChunks(chunks ...Chunk) EncodeOption {
	return func(c *encodeConfig) { c.ancillary = append(c.ancillary, chunks...) }
}
