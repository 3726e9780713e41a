package storage

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Supported block codecs
const (
	CodecZstd = "zstd"
	CodecLZ4  = "lz4"
)

// Leading byte of an lz4 payload
const (
	lz4Raw   byte = 0
	lz4Block byte = 1
)

// Compressor packs float64 columns using XOR encoding followed by a block codec
type Compressor struct {
	codec   string
	encoder *zstd.Encoder
	decoder *zstd.Decoder
	lz4     lz4.Compressor
}

// NewCompressor creates a compressor for the given codec. The level (1-4)
// only applies to zstd.
func NewCompressor(codec string, level int) (*Compressor, error) {
	switch codec {
	case "", CodecZstd:
		codec = CodecZstd
	case CodecLZ4:
		return &Compressor{codec: CodecLZ4}, nil
	default:
		return nil, fmt.Errorf("unknown codec %q", codec)
	}

	encLevel := zstd.SpeedDefault
	switch level {
	case 1:
		encLevel = zstd.SpeedFastest
	case 2:
		encLevel = zstd.SpeedDefault
	case 3:
		encLevel = zstd.SpeedBetterCompression
	case 4:
		encLevel = zstd.SpeedBestCompression
	}

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(encLevel))
	if err != nil {
		return nil, fmt.Errorf("failed to create encoder: %w", err)
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		encoder.Close()
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	return &Compressor{
		codec:   codec,
		encoder: encoder,
		decoder: decoder,
	}, nil
}

// Codec returns the block codec name
func (c *Compressor) Codec() string {
	return c.codec
}

// CompressValues compresses float64 values using XOR encoding + the block codec
func (c *Compressor) CompressValues(values []float64) ([]byte, error) {
	if len(values) == 0 {
		return nil, nil
	}

	buf := new(bytes.Buffer)
	buf.Grow(8 * len(values))

	// XOR against the previous value; neighbouring samples of a smooth
	// curve share sign, exponent and high mantissa bits
	var prevBits uint64
	for _, v := range values {
		bits := math.Float64bits(v)
		if err := binary.Write(buf, binary.LittleEndian, bits^prevBits); err != nil {
			return nil, err
		}
		prevBits = bits
	}

	return c.compressBlock(buf.Bytes())
}

// DecompressValues decompresses count float64 values
func (c *Compressor) DecompressValues(data []byte, count int) ([]float64, error) {
	if len(data) == 0 || count == 0 {
		return nil, nil
	}

	raw, err := c.decompressBlock(data, 8*count)
	if err != nil {
		return nil, fmt.Errorf("decompression failed: %w", err)
	}

	buf := bytes.NewReader(raw)
	values := make([]float64, count)

	var prevBits uint64
	for i := range values {
		var xorBits uint64
		if err := binary.Read(buf, binary.LittleEndian, &xorBits); err != nil {
			return nil, err
		}
		prevBits ^= xorBits
		values[i] = math.Float64frombits(prevBits)
	}

	return values, nil
}

func (c *Compressor) compressBlock(raw []byte) ([]byte, error) {
	if c.codec == CodecLZ4 {
		dst := make([]byte, 1+lz4.CompressBlockBound(len(raw)))
		n, err := c.lz4.CompressBlock(raw, dst[1:])
		if err != nil {
			return nil, err
		}
		// n == 0 means incompressible; keep the bytes as they are
		if n == 0 || n >= len(raw) {
			dst[0] = lz4Raw
			return append(dst[:1], raw...), nil
		}
		dst[0] = lz4Block
		return dst[:1+n], nil
	}

	return c.encoder.EncodeAll(raw, make([]byte, 0, len(raw))), nil
}

func (c *Compressor) decompressBlock(data []byte, size int) ([]byte, error) {
	if c.codec == CodecLZ4 {
		switch data[0] {
		case lz4Raw:
			return data[1:], nil
		case lz4Block:
			dst := make([]byte, size)
			n, err := lz4.UncompressBlock(data[1:], dst)
			if err != nil {
				return nil, err
			}
			return dst[:n], nil
		default:
			return nil, fmt.Errorf("unknown lz4 block marker %#x", data[0])
		}
	}

	return c.decoder.DecodeAll(data, make([]byte, 0, size))
}

// Close closes the compressor resources
func (c *Compressor) Close() {
	if c.encoder != nil {
		c.encoder.Close()
	}
	if c.decoder != nil {
		c.decoder.Close()
	}
}
