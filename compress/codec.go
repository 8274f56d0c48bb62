package compress

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	log "github.com/CefBoud/monstream/logging"
)

// resetWriter is a compressing writer that can be pointed at a new destination
type resetWriter interface {
	io.WriteCloser
	Reset(w io.Writer)
}

// writeAll compresses data through a writer taken from writers
func writeAll(writers *sync.Pool, codec CompressionType, data []byte) ([]byte, error) {
	w := writers.Get().(resetWriter)
	defer writers.Put(w)

	var buf bytes.Buffer
	w.Reset(&buf)
	if _, err := w.Write(data); err != nil {
		log.Error("failed to %v data: %v", codec, err)
		return nil, fmt.Errorf("%v: %w", codec, err)
	}
	if err := w.Close(); err != nil {
		log.Error("failed to close %v writer: %v", codec, err)
		return nil, fmt.Errorf("%v: %w", codec, err)
	}
	return buf.Bytes(), nil
}

// readAll drains a decompressing reader
func readAll(r io.Reader, codec CompressionType) ([]byte, error) {
	out, err := io.ReadAll(r)
	if err != nil {
		log.Debug("failed to decompress %v data: %v", codec, err)
		return nil, fmt.Errorf("%v: %w", codec, err)
	}
	return out, nil
}
