package utils

import (
	"strings"
	"testing"
)

func TestCompressTextRoundTrip(t *testing.T) {
	original := strings.Repeat("Total revenue for the quarter was $4.2M. ", 40)

	compressed, algorithm, err := CompressText(original)
	if err != nil {
		t.Fatalf("compress: %v", err)
	}
	if algorithm != CompressionGzip {
		t.Errorf("algorithm = %s, want gzip for large text", algorithm)
	}
	if len(compressed) >= len(original) {
		t.Errorf("compressed size %d not smaller than original %d", len(compressed), len(original))
	}

	restored, err := DecompressText(compressed, algorithm)
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if restored != original {
		t.Errorf("round trip altered text")
	}
}

func TestCompressTextSmallSkipsCompression(t *testing.T) {
	original := "short chunk"

	compressed, algorithm, err := CompressText(original)
	if err != nil {
		t.Fatalf("compress: %v", err)
	}
	if algorithm != CompressionNone {
		t.Errorf("algorithm = %s, want none for small text", algorithm)
	}
	if string(compressed) != original {
		t.Errorf("small text should pass through unchanged")
	}
}

func TestDecompressDataUnknownAlgorithm(t *testing.T) {
	if _, err := DecompressData([]byte("x"), CompressionAlgorithm("lz4")); err == nil {
		t.Error("expected error for unsupported algorithm")
	}
}
