// Package audio converts between base64 text, raw PCM and WAV containers,
// and plays the result.
package audio

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
)

// SpeechSampleRate is the fixed rate of PCM returned by the speech model.
const SpeechSampleRate = 24000

const wavHeaderSize = 44

// DecodeError reports malformed base64 or audio data.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("audio: decode: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// DecodeBase64ToBytes decodes standard base64.
func DecodeBase64ToBytes(s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	return b, nil
}

// EncodeBytesToBase64 encodes b as standard base64.
func EncodeBytesToBase64(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// WrapPCMAsWAV prefixes pcm with a canonical 44-byte RIFF/WAVE header.
// Chunk IDs are ASCII, every numeric field little-endian.
func WrapPCMAsWAV(pcm []byte, sampleRate, channels, bitsPerSample int) []byte {
	if channels <= 0 {
		channels = 1
	}
	if bitsPerSample <= 0 {
		bitsPerSample = 16
	}
	bytesPerSample := bitsPerSample / 8
	dataSize := uint32(len(pcm))

	var buf bytes.Buffer
	buf.Grow(wavHeaderSize + len(pcm))

	le := binary.LittleEndian
	buf.WriteString("RIFF")
	_ = binary.Write(&buf, le, 36+dataSize)
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	_ = binary.Write(&buf, le, uint32(16)) // fmt chunk size
	_ = binary.Write(&buf, le, uint16(1))  // PCM
	_ = binary.Write(&buf, le, uint16(channels))
	_ = binary.Write(&buf, le, uint32(sampleRate))
	_ = binary.Write(&buf, le, uint32(sampleRate*channels*bytesPerSample))
	_ = binary.Write(&buf, le, uint16(channels*bytesPerSample))
	_ = binary.Write(&buf, le, uint16(bitsPerSample))

	buf.WriteString("data")
	_ = binary.Write(&buf, le, dataSize)
	buf.Write(pcm)

	return buf.Bytes()
}

// SpeechToWAV decodes a base64 PCM payload from the speech model and wraps
// it as mono 16-bit WAV at SpeechSampleRate.
func SpeechToWAV(b64 string) ([]byte, error) {
	pcm, err := DecodeBase64ToBytes(b64)
	if err != nil {
		return nil, err
	}
	if len(pcm) == 0 {
		return nil, &DecodeError{Err: fmt.Errorf("empty audio payload")}
	}
	return WrapPCMAsWAV(pcm, SpeechSampleRate, 1, 16), nil
}
