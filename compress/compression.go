package compress

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// CompressionType identifies the codec of a sub-entry batch. It fits in 3 bits.
type CompressionType uint8

// Stream protocol compression types
const (
	NONE   CompressionType = 0
	GZIP   CompressionType = 1
	SNAPPY CompressionType = 2
	LZ4    CompressionType = 3
	ZSTD   CompressionType = 4
)

// MaxCompressionType is the highest id the 3 bits of an entry header can carry
const MaxCompressionType = CompressionType(7)

func (c CompressionType) String() string {
	switch c {
	case NONE:
		return "none"
	case GZIP:
		return "gzip"
	case SNAPPY:
		return "snappy"
	case LZ4:
		return "lz4"
	case ZSTD:
		return "zstd"
	default:
		return fmt.Sprintf("codec(%d)", uint8(c))
	}
}

// ParseCompressionType returns the codec named name, as printed by String
func ParseCompressionType(name string) (CompressionType, error) {
	for c := NONE; c <= ZSTD; c++ {
		if c.String() == strings.ToLower(name) {
			return c, nil
		}
	}
	return NONE, fmt.Errorf("unknown compression %q", name)
}

var (
	// ErrNoCompressor is returned when no compressor is registered for a type
	ErrNoCompressor = errors.New("no compressor registered")
	// ErrDecodeOnly is returned by Compress on a decode only registration
	ErrDecodeOnly = errors.New("compressor only supports decompression")
)

// Compressor represents one of the supported compressors
type Compressor interface {
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
}

// DecoderFunc adapts a decompression function to the Compressor interface
type DecoderFunc func(data []byte) ([]byte, error)

// Compress is not supported by a DecoderFunc
func (f DecoderFunc) Compress(data []byte) ([]byte, error) {
	return nil, ErrDecodeOnly
}

// Decompress calls f
func (f DecoderFunc) Decompress(data []byte) ([]byte, error) {
	return f(data)
}

// Registry maps compression types to compressors. A Registry is built once and
// handed to every connection that decodes deliveries; it is safe for concurrent use.
type Registry struct {
	mu          sync.RWMutex
	compressors map[CompressionType]Compressor
}

// NewRegistry returns a Registry with gzip, snappy, lz4 and zstd registered
func NewRegistry() *Registry {
	return &Registry{compressors: map[CompressionType]Compressor{
		GZIP:   &GzipCompressor{},
		SNAPPY: &SnappyCompressor{},
		LZ4:    &LZ4Compressor{},
		ZSTD:   &ZSTDCompressor{},
	}}
}

// NewEmptyRegistry returns a Registry without any compressor
func NewEmptyRegistry() *Registry {
	return &Registry{compressors: make(map[CompressionType]Compressor)}
}

// Register installs c for the compression type t, replacing any previous one
func (r *Registry) Register(t CompressionType, c Compressor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.compressors[t] = c
}

// RegisterDecoder installs a decode only function for t
func (r *Registry) RegisterDecoder(t CompressionType, fn func(data []byte) ([]byte, error)) {
	r.Register(t, DecoderFunc(fn))
}

// Get returns the compressor registered for t. A nil Registry has none.
func (r *Registry) Get(t CompressionType) (Compressor, error) {
	if r == nil {
		return nil, fmt.Errorf("%w for %v", ErrNoCompressor, t)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.compressors[t]
	if !ok || c == nil {
		return nil, fmt.Errorf("%w for %v", ErrNoCompressor, t)
	}
	return c, nil
}

// Decompress decodes data with the compressor registered for t
func (r *Registry) Decompress(t CompressionType, data []byte) ([]byte, error) {
	c, err := r.Get(t)
	if err != nil {
		return nil, err
	}
	return c.Decompress(data)
}
