package compress

import (
	"bytes"
	"errors"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

func TestCompressorsRoundTrip(t *testing.T) {
	registry := NewRegistry()
	payload := bytes.Repeat([]byte("stream record payload "), 200)

	for _, ct := range []CompressionType{GZIP, SNAPPY, LZ4, ZSTD} {
		t.Run(ct.String(), func(t *testing.T) {
			c, err := registry.Get(ct)
			if err != nil {
				t.Fatalf("Expected %v to be registered: %v", ct, err)
			}
			compressed, err := c.Compress(payload)
			if err != nil {
				t.Fatalf("Compress failed: %v", err)
			}
			if len(compressed) >= len(payload) {
				t.Errorf("Expected %v to shrink a repetitive payload, %d >= %d", ct, len(compressed), len(payload))
			}
			// twice, to go through the pooled readers
			for i := 0; i < 2; i++ {
				decompressed, err := registry.Decompress(ct, compressed)
				if err != nil {
					t.Fatalf("Decompress failed: %v", err)
				}
				if !bytes.Equal(decompressed, payload) {
					t.Errorf("Expected round trip to reproduce the payload")
				}
			}
		})
	}
}

func TestRegistryMissingAndCustom(t *testing.T) {
	registry := NewEmptyRegistry()
	if _, err := registry.Get(GZIP); !errors.Is(err, ErrNoCompressor) {
		t.Errorf("Expected ErrNoCompressor, got %v", err)
	}

	registry.RegisterDecoder(MaxCompressionType, func(data []byte) ([]byte, error) {
		return bytes.ToUpper(data), nil
	})
	out, err := registry.Decompress(MaxCompressionType, []byte("abc"))
	if err != nil || string(out) != "ABC" {
		t.Errorf("Expected custom decoder output ABC, got %q (%v)", out, err)
	}
	c, _ := registry.Get(MaxCompressionType)
	if _, err := c.Compress([]byte("abc")); !errors.Is(err, ErrDecodeOnly) {
		t.Errorf("Expected ErrDecodeOnly, got %v", err)
	}
}

func TestRegistriesAreIndependent(t *testing.T) {
	a, b := NewRegistry(), NewRegistry()
	a.RegisterDecoder(GZIP, func(data []byte) ([]byte, error) { return data, nil })
	if _, ok := mustGet(t, b, GZIP).(*GzipCompressor); !ok {
		t.Errorf("Expected registering on one registry to leave the other untouched")
	}
}

func mustGet(t *testing.T, r *Registry, ct CompressionType) Compressor {
	t.Helper()
	c, err := r.Get(ct)
	if err != nil {
		t.Fatalf("Get(%v) failed: %v", ct, err)
	}
	return c
}

func TestParseCompressionType(t *testing.T) {
	for _, ct := range []CompressionType{NONE, GZIP, SNAPPY, LZ4, ZSTD} {
		got, err := ParseCompressionType(ct.String())
		if err != nil || got != ct {
			t.Errorf("Expected %v, got %v (%v)", ct, got, err)
		}
	}
	if got, err := ParseCompressionType("ZSTD"); err != nil || got != ZSTD {
		t.Errorf("Expected names to be case insensitive, got %v (%v)", got, err)
	}
	if _, err := ParseCompressionType("brotli"); err == nil {
		t.Errorf("Expected an error on an unknown codec")
	}
}

func TestCompressionLevels(t *testing.T) {
	payload := bytes.Repeat([]byte("level payload "), 500)
	compressors := map[string]Compressor{
		"gzip best":     &GzipCompressor{Level: gzip.BestCompression},
		"gzip huffman":  &GzipCompressor{Level: gzip.HuffmanOnly},
		"gzip invalid":  &GzipCompressor{Level: 42},
		"lz4 level 9":   &LZ4Compressor{Level: lz4.Level9},
		"zstd best":     &ZSTDCompressor{Level: zstd.SpeedBestCompression},
		"zstd fastest":  &ZSTDCompressor{Level: zstd.SpeedFastest},
		"snappy framed": &SnappyCompressor{Framed: true},
	}
	for name, c := range compressors {
		t.Run(name, func(t *testing.T) {
			compressed, err := c.Compress(payload)
			if err != nil {
				t.Fatalf("Compress failed: %v", err)
			}
			decompressed, err := c.Decompress(compressed)
			if err != nil {
				t.Fatalf("Decompress failed: %v", err)
			}
			if !bytes.Equal(decompressed, payload) {
				t.Errorf("Expected round trip to reproduce the payload")
			}
		})
	}
}

func TestSnappyDecodesBothFormats(t *testing.T) {
	payload := []byte("snappy snappy snappy snappy")
	framed, _ := (&SnappyCompressor{Framed: true}).Compress(payload)
	raw, _ := (&SnappyCompressor{}).Compress(payload)
	if bytes.Equal(framed, raw) {
		t.Fatalf("Expected the xerial framing to differ from a raw block")
	}
	c := &SnappyCompressor{}
	for _, in := range [][]byte{framed, raw} {
		out, err := c.Decompress(in)
		if err != nil || !bytes.Equal(out, payload) {
			t.Errorf("Expected %x to decode to the payload, got %q (%v)", in, out, err)
		}
	}
}

func TestDecompressGarbage(t *testing.T) {
	registry := NewRegistry()
	for _, ct := range []CompressionType{GZIP, LZ4, ZSTD} {
		if _, err := registry.Decompress(ct, []byte("definitely not compressed")); err == nil {
			t.Errorf("Expected %v to reject garbage", ct)
		}
	}
}
