// Package compress encodes record payloads with a one-byte algorithm tag so
// readers can tell compressed payloads from plain JSON.
package compress

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"
)

// Algorithm is the tag written as the first byte of a compressed payload.
type Algorithm byte

// Tags avoid '{' and '[' so untagged JSON is never mistaken for a tagged payload.
const (
	None Algorithm = 0x00
	Gzip Algorithm = 0x01
	Zstd Algorithm = 0x02
	S2   Algorithm = 0x03
)

var (
	// ErrUnknownAlgorithm indicates an unsupported algorithm name or tag.
	ErrUnknownAlgorithm = errors.New("unknown compression algorithm")
	// ErrCorruptPayload indicates a tagged payload that failed to decode.
	ErrCorruptPayload = errors.New("corrupt compressed payload")
)

// ParseAlgorithm converts a config value into an Algorithm.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return None, nil
	case "gzip":
		return Gzip, nil
	case "zstd":
		return Zstd, nil
	case "s2":
		return S2, nil
	default:
		return None, fmt.Errorf("%w: %s", ErrUnknownAlgorithm, s)
	}
}

func (a Algorithm) String() string {
	switch a {
	case None:
		return "none"
	case Gzip:
		return "gzip"
	case Zstd:
		return "zstd"
	case S2:
		return "s2"
	default:
		return fmt.Sprintf("unknown(%d)", byte(a))
	}
}

// Codec compresses payloads at or above MinSize with one algorithm.
// Smaller payloads are stored untagged. A Codec is safe for concurrent use.
type Codec struct {
	algorithm Algorithm
	minSize   int
	encoder   *zstd.Encoder
	decoder   *zstd.Decoder
}

// NewCodec creates a codec for algorithm.
func NewCodec(algorithm Algorithm, minSize int) (*Codec, error) {
	if algorithm > S2 {
		return nil, fmt.Errorf("%w: %d", ErrUnknownAlgorithm, byte(algorithm))
	}

	// The zstd decoder is always built so any tagged payload can be read
	// even after the configured algorithm changes.
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd reader: %w", err)
	}

	c := &Codec{algorithm: algorithm, minSize: minSize, decoder: decoder}
	if algorithm == Zstd {
		c.encoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			decoder.Close()
			return nil, fmt.Errorf("zstd writer: %w", err)
		}
	}
	return c, nil
}

// Algorithm returns the configured algorithm.
func (c *Codec) Algorithm() Algorithm {
	return c.algorithm
}

// Compress returns data tagged and compressed, or data unchanged when the
// codec is disabled or data is below the size threshold.
func (c *Codec) Compress(data []byte) ([]byte, error) {
	if c.algorithm == None || len(data) < c.minSize {
		return data, nil
	}

	switch c.algorithm {
	case Zstd:
		out := make([]byte, 1, len(data)/2+1)
		out[0] = byte(Zstd)
		return c.encoder.EncodeAll(data, out), nil
	case S2:
		return append([]byte{byte(S2)}, s2.Encode(nil, data)...), nil
	case Gzip:
		var buf bytes.Buffer
		buf.WriteByte(byte(Gzip))
		w := gzip.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("gzip write: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("gzip close: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownAlgorithm, byte(c.algorithm))
	}
}

// Decompress reverses Compress. Payloads without a known tag are returned
// unchanged.
func (c *Codec) Decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}

	body := data[1:]
	switch Algorithm(data[0]) {
	case Zstd:
		out, err := c.decoder.DecodeAll(body, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: zstd: %w", ErrCorruptPayload, err)
		}
		return out, nil
	case S2:
		out, err := s2.Decode(nil, body)
		if err != nil {
			return nil, fmt.Errorf("%w: s2: %w", ErrCorruptPayload, err)
		}
		return out, nil
	case Gzip:
		r, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("%w: gzip: %w", ErrCorruptPayload, err)
		}
		defer r.Close()
		out, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("%w: gzip: %w", ErrCorruptPayload, err)
		}
		return out, nil
	default:
		return data, nil
	}
}

// IsCompressed reports whether data carries a compression tag.
func IsCompressed(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	switch Algorithm(data[0]) {
	case Gzip, Zstd, S2:
		return true
	default:
		return false
	}
}

// Close releases the zstd encoder and decoder.
func (c *Codec) Close() {
	if c.encoder != nil {
		_ = c.encoder.Close()
	}
	c.decoder.Close()
}
