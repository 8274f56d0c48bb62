package compress

import (
	"fmt"
	"sync"

	log "github.com/CefBoud/monstream/logging"
	"github.com/klauspost/compress/zstd"
)

// ZSTDCompressor implements Compressor with zstd. Level defaults to
// zstd.SpeedDefault. EncodeAll and DecodeAll are safe for concurrent use so a
// single encoder and decoder serve every batch.
type ZSTDCompressor struct {
	Level zstd.EncoderLevel

	once    sync.Once
	encoder *zstd.Encoder
	decoder *zstd.Decoder
	err     error
}

func (c *ZSTDCompressor) init() error {
	c.once.Do(func() {
		level := c.Level
		if level == 0 {
			level = zstd.SpeedDefault
		}
		// WithZeroFrames will encode 0 length input as full frames
		c.encoder, c.err = zstd.NewWriter(nil, zstd.WithEncoderLevel(level), zstd.WithZeroFrames(true))
		if c.err != nil {
			log.Error("failed to create zstd encoder: %v", c.err)
			return
		}
		c.decoder, c.err = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	})
	return c.err
}

// Compress encodes data as one zstd frame
func (c *ZSTDCompressor) Compress(data []byte) ([]byte, error) {
	if err := c.init(); err != nil {
		return nil, fmt.Errorf("%v: %w", ZSTD, err)
	}
	return c.encoder.EncodeAll(data, nil), nil
}

// Decompress decodes every zstd frame of data
func (c *ZSTDCompressor) Decompress(data []byte) ([]byte, error) {
	if err := c.init(); err != nil {
		return nil, fmt.Errorf("%v: %w", ZSTD, err)
	}
	out, err := c.decoder.DecodeAll(data, nil)
	if err != nil {
		log.Debug("failed to decompress zstd data: %v", err)
		return nil, fmt.Errorf("%v: %w", ZSTD, err)
	}
	return out, nil
}
