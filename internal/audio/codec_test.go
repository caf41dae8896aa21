package audio

import (
	"bytes"
	"encoding/binary"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapPCMAsWAV_Empty(t *testing.T) {
	t.Parallel()
	wav := WrapPCMAsWAV(nil, 24000, 1, 16)
	require.Len(t, wav, 44)

	assert.Equal(t, "RIFF", string(wav[0:4]))
	assert.Equal(t, uint32(36), binary.LittleEndian.Uint32(wav[4:8]))
	assert.Equal(t, "WAVE", string(wav[8:12]))
	assert.Equal(t, "data", string(wav[36:40]))
	assert.Equal(t, uint32(0), binary.LittleEndian.Uint32(wav[40:44]))
}

func TestWrapPCMAsWAV_Header(t *testing.T) {
	t.Parallel()
	pcm := []byte{1, 2, 3, 4, 5, 6}
	wav := WrapPCMAsWAV(pcm, 24000, 1, 16)
	require.Len(t, wav, 44+len(pcm))

	le := binary.LittleEndian
	assert.Equal(t, uint32(36+6), le.Uint32(wav[4:8]))
	assert.Equal(t, "fmt ", string(wav[12:16]))
	assert.Equal(t, uint32(16), le.Uint32(wav[16:20]))
	assert.Equal(t, uint16(1), le.Uint16(wav[20:22]))
	assert.Equal(t, uint16(1), le.Uint16(wav[22:24]))
	assert.Equal(t, uint32(24000), le.Uint32(wav[24:28]))
	assert.Equal(t, uint32(48000), le.Uint32(wav[28:32]))
	assert.Equal(t, uint16(2), le.Uint16(wav[32:34]))
	assert.Equal(t, uint16(16), le.Uint16(wav[34:36]))
	assert.Equal(t, uint32(6), le.Uint32(wav[40:44]))
	assert.Equal(t, pcm, wav[44:])
}

func TestWrapPCMAsWAV_Stereo(t *testing.T) {
	t.Parallel()
	wav := WrapPCMAsWAV(make([]byte, 8), 44100, 2, 16)
	le := binary.LittleEndian
	assert.Equal(t, uint32(44100*2*2), le.Uint32(wav[28:32]))
	assert.Equal(t, uint16(4), le.Uint16(wav[32:34]))
}

func TestBase64RoundTrip(t *testing.T) {
	t.Parallel()
	for n := 0; n < 64; n++ {
		b := make([]byte, n)
		for i := range b {
			b[i] = byte(rand.IntN(256))
		}
		got, err := DecodeBase64ToBytes(EncodeBytesToBase64(b))
		require.NoError(t, err)
		assert.True(t, bytes.Equal(b, got), "length %d", n)
	}
}

func TestDecodeBase64ToBytes_Invalid(t *testing.T) {
	t.Parallel()
	_, err := DecodeBase64ToBytes("not*base64!")
	var de *DecodeError
	require.ErrorAs(t, err, &de)
}

func TestSpeechToWAV(t *testing.T) {
	t.Parallel()
	wav, err := SpeechToWAV(EncodeBytesToBase64([]byte{0, 1, 0, 1}))
	require.NoError(t, err)
	assert.Equal(t, uint32(SpeechSampleRate), binary.LittleEndian.Uint32(wav[24:28]))

	_, err = SpeechToWAV("")
	var de *DecodeError
	assert.ErrorAs(t, err, &de)
}
