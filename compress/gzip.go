package compress

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/klauspost/compress/gzip"
)

// GzipCompressor implements Compressor with gzip. Level defaults to
// gzip.DefaultCompression when zero, an invalid level falls back to it.
type GzipCompressor struct {
	Level int

	once    sync.Once
	writers sync.Pool
	// gzip.NewReader fails on a bad header so readers are only created
	// from the first payload
	readers sync.Pool
}

func (c *GzipCompressor) init() {
	c.once.Do(func() {
		level := c.Level
		if level == 0 || level < gzip.HuffmanOnly || level > gzip.BestCompression {
			level = gzip.DefaultCompression
		}
		c.writers.New = func() any {
			w, _ := gzip.NewWriterLevel(nil, level)
			return w
		}
	})
}

// Compress gzips data
func (c *GzipCompressor) Compress(data []byte) ([]byte, error) {
	c.init()
	return writeAll(&c.writers, GZIP, data)
}

// Decompress gunzips data
func (c *GzipCompressor) Decompress(data []byte) ([]byte, error) {
	var err error
	r, found := c.readers.Get().(*gzip.Reader)
	if found {
		err = r.Reset(bytes.NewReader(data))
	} else {
		r, err = gzip.NewReader(bytes.NewReader(data))
	}
	if err != nil {
		return nil, fmt.Errorf("%v: %w", GZIP, err)
	}
	defer c.readers.Put(r)
	return readAll(r, GZIP)
}
