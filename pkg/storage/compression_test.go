package storage

import (
	"math"
	"testing"
)

func curveValues(n int) []float64 {
	values := make([]float64, n)
	for i := range values {
		x := -20 + float64(i)*0.1
		values[i] = x*x + math.Sin(x)
	}
	return values
}

func TestCompressValues(t *testing.T) {
	for _, codec := range []string{CodecZstd, CodecLZ4} {
		t.Run(codec, func(t *testing.T) {
			comp, err := NewCompressor(codec, 2)
			if err != nil {
				t.Fatalf("Failed to create compressor: %v", err)
			}
			defer comp.Close()

			values := curveValues(400)

			compressed, err := comp.CompressValues(values)
			if err != nil {
				t.Fatalf("Compression failed: %v", err)
			}

			decompressed, err := comp.DecompressValues(compressed, len(values))
			if err != nil {
				t.Fatalf("Decompression failed: %v", err)
			}

			if len(decompressed) != len(values) {
				t.Fatalf("Length mismatch: expected %d, got %d", len(values), len(decompressed))
			}

			// XOR encoding is lossless
			for i := range values {
				if values[i] != decompressed[i] {
					t.Errorf("Value mismatch at %d: expected %v, got %v", i, values[i], decompressed[i])
				}
			}
		})
	}
}

func TestCompressRepeatedValuesShrink(t *testing.T) {
	comp, err := NewCompressor(CodecZstd, 3)
	if err != nil {
		t.Fatalf("Failed to create compressor: %v", err)
	}
	defer comp.Close()

	// A constant column XORs to zeros after the first sample
	values := make([]float64, 1000)
	for i := range values {
		values[i] = 42.5
	}

	compressed, err := comp.CompressValues(values)
	if err != nil {
		t.Fatalf("Compression failed: %v", err)
	}

	if original := len(values) * 8; len(compressed) >= original/10 {
		t.Errorf("Compression ineffective: original=%d, compressed=%d", original, len(compressed))
	}
}

func TestCompressSpecialValues(t *testing.T) {
	comp, err := NewCompressor(CodecLZ4, 0)
	if err != nil {
		t.Fatalf("Failed to create compressor: %v", err)
	}
	defer comp.Close()

	values := []float64{0, math.Copysign(0, -1), math.Inf(1), math.Inf(-1), math.MaxFloat64, math.SmallestNonzeroFloat64}

	compressed, err := comp.CompressValues(values)
	if err != nil {
		t.Fatalf("Compression failed: %v", err)
	}
	decompressed, err := comp.DecompressValues(compressed, len(values))
	if err != nil {
		t.Fatalf("Decompression failed: %v", err)
	}

	for i := range values {
		if math.Float64bits(values[i]) != math.Float64bits(decompressed[i]) {
			t.Errorf("Bits mismatch at %d: expected %v, got %v", i, values[i], decompressed[i])
		}
	}
}

func TestCompressEmpty(t *testing.T) {
	comp, err := NewCompressor(CodecZstd, 1)
	if err != nil {
		t.Fatalf("Failed to create compressor: %v", err)
	}
	defer comp.Close()

	compressed, err := comp.CompressValues(nil)
	if err != nil || compressed != nil {
		t.Fatalf("Expected nil output for empty input, got %v, %v", compressed, err)
	}

	values, err := comp.DecompressValues(nil, 0)
	if err != nil || values != nil {
		t.Fatalf("Expected nil values for empty input, got %v, %v", values, err)
	}
}

func TestUnknownCodec(t *testing.T) {
	if _, err := NewCompressor("snappy", 1); err == nil {
		t.Error("Expected error for unknown codec")
	}
}

func TestCompressIncompressibleLZ4(t *testing.T) {
	comp, err := NewCompressor(CodecLZ4, 0)
	if err != nil {
		t.Fatalf("Failed to create compressor: %v", err)
	}
	defer comp.Close()

	values := []float64{0.1, 4.2, -8.8, 16.1}

	compressed, err := comp.CompressValues(values)
	if err != nil {
		t.Fatalf("Compression failed: %v", err)
	}
	if compressed[0] != lz4Raw {
		t.Errorf("Expected raw marker for a short column, got %#x", compressed[0])
	}

	decompressed, err := comp.DecompressValues(compressed, len(values))
	if err != nil {
		t.Fatalf("Decompression failed: %v", err)
	}
	for i := range values {
		if values[i] != decompressed[i] {
			t.Errorf("Value mismatch at %d: expected %v, got %v", i, values[i], decompressed[i])
		}
	}
}
