package compress

import (
	"fmt"

	snappy "github.com/eapache/go-xerial-snappy"
)

// SnappyCompressor implements Compressor with snappy. Decompress accepts both
// raw snappy blocks and the xerial framing of the JVM clients. Framed makes
// Compress produce the xerial framing too.
type SnappyCompressor struct {
	Framed bool
}

// Compress encodes data as a raw block, or as a xerial stream when Framed
func (c *SnappyCompressor) Compress(data []byte) ([]byte, error) {
	if c.Framed {
		return snappy.EncodeStream(nil, data), nil
	}
	return snappy.Encode(data), nil
}

// Decompress decodes a raw block or a xerial stream
func (c *SnappyCompressor) Decompress(data []byte) ([]byte, error) {
	out, err := snappy.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", SNAPPY, err)
	}
	return out, nil
}
