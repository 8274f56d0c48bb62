package compress

import (
	"bytes"
	"sync"

	"github.com/pierrec/lz4/v4"
)

// LZ4Compressor implements Compressor with the lz4 frame format. Level
// defaults to lz4.Fast.
type LZ4Compressor struct {
	Level lz4.CompressionLevel

	once    sync.Once
	writers sync.Pool
	readers sync.Pool
}

func (c *LZ4Compressor) init() {
	c.once.Do(func() {
		level := c.Level
		c.writers.New = func() any {
			w := lz4.NewWriter(nil)
			// an unknown level keeps the writer on lz4.Fast
			_ = w.Apply(lz4.CompressionLevelOption(level))
			return w
		}
		c.readers.New = func() any {
			return lz4.NewReader(nil)
		}
	})
}

// Compress writes data as a single lz4 frame
func (c *LZ4Compressor) Compress(data []byte) ([]byte, error) {
	c.init()
	return writeAll(&c.writers, LZ4, data)
}

// Decompress reads every lz4 frame of data
func (c *LZ4Compressor) Decompress(data []byte) ([]byte, error) {
	c.init()
	r := c.readers.Get().(*lz4.Reader)
	defer c.readers.Put(r)
	r.Reset(bytes.NewReader(data))
	return readAll(r, LZ4)
}
