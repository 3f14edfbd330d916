package compress

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodec_RoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte(`{"symbol":"FEE/USD","confidence":0.93}`), 50)

	for _, alg := range []Algorithm{Gzip, Zstd, S2} {
		t.Run(alg.String(), func(t *testing.T) {
			codec, err := NewCodec(alg, 64)
			require.NoError(t, err)
			defer codec.Close()

			packed, err := codec.Compress(payload)
			require.NoError(t, err)
			assert.True(t, IsCompressed(packed))
			assert.Equal(t, byte(alg), packed[0])
			assert.Less(t, len(packed), len(payload))

			unpacked, err := codec.Decompress(packed)
			require.NoError(t, err)
			assert.Equal(t, payload, unpacked)
		})
	}
}

func TestCodec_Passthrough(t *testing.T) {
	codec, err := NewCodec(Zstd, 1024)
	require.NoError(t, err)
	defer codec.Close()

	small := []byte(`{"a":1}`)
	out, err := codec.Compress(small)
	require.NoError(t, err)
	assert.Equal(t, small, out, "below min size stays plain")
	assert.False(t, IsCompressed(out))

	plain, err := codec.Decompress(small)
	require.NoError(t, err)
	assert.Equal(t, small, plain)
}

func TestCodec_ReadsOtherAlgorithms(t *testing.T) {
	writer, err := NewCodec(S2, 0)
	require.NoError(t, err)
	reader, err := NewCodec(None, 0)
	require.NoError(t, err)

	packed, err := writer.Compress([]byte("hello hello hello"))
	require.NoError(t, err)
	out, err := reader.Decompress(packed)
	require.NoError(t, err)
	assert.Equal(t, "hello hello hello", string(out))
}

func TestCodec_Corrupt(t *testing.T) {
	codec, err := NewCodec(Gzip, 0)
	require.NoError(t, err)

	_, err = codec.Decompress([]byte{byte(Gzip), 1, 2, 3})
	assert.ErrorIs(t, err, ErrCorruptPayload)
}

func TestParseAlgorithm(t *testing.T) {
	a, err := ParseAlgorithm("ZSTD")
	require.NoError(t, err)
	assert.Equal(t, Zstd, a)

	a, err = ParseAlgorithm("")
	require.NoError(t, err)
	assert.Equal(t, None, a)

	_, err = ParseAlgorithm("brotli")
	assert.ErrorIs(t, err, ErrUnknownAlgorithm)

	_, err = NewCodec(Algorithm(9), 0)
	assert.ErrorIs(t, err, ErrUnknownAlgorithm)
}
