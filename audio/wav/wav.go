// Package wav frames 16-bit PCM as RIFF/WAVE and back.
//
// Information Hiding:
// - Header layout and chunk walking
package wav

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrNotWAV is returned when data does not start with a RIFF/WAVE header.
var ErrNotWAV = errors.New("not a WAV stream")

// Format describes 16-bit little-endian PCM.
type Format struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
}

const pcmFormatTag = 1

// HasHeader reports whether data starts with a RIFF/WAVE header.
func HasHeader(data []byte) bool {
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE"
}

// Encode wraps 16-bit PCM samples in a canonical 44-byte WAV header.
func Encode(pcm []byte, sampleRate, channels int) []byte {
	const bits = 16
	blockAlign := channels * bits / 8
	byteRate := sampleRate * blockAlign

	var buf bytes.Buffer
	buf.Grow(44 + len(pcm))
	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(pcmFormatTag))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(channels))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(byteRate))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(bits))

	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)
	return buf.Bytes()
}

// Decode returns the PCM format and samples of a WAV stream. A data
// chunk whose declared size runs past the end (as streamed responses often
// declare) is read to the end.
func Decode(data []byte) (Format, []byte, error) {
	if !HasHeader(data) {
		return Format{}, nil, ErrNotWAV
	}

	var format Format
	haveFormat := false
	pos := 12

	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8

		switch id {
		case "fmt ":
			if size < 16 || body+16 > len(data) {
				return Format{}, nil, fmt.Errorf("truncated fmt chunk")
			}
			tag := binary.LittleEndian.Uint16(data[body : body+2])
			if tag != pcmFormatTag {
				return Format{}, nil, fmt.Errorf("unsupported WAV encoding %d, want PCM", tag)
			}
			format = Format{
				Channels:      int(binary.LittleEndian.Uint16(data[body+2 : body+4])),
				SampleRate:    int(binary.LittleEndian.Uint32(data[body+4 : body+8])),
				BitsPerSample: int(binary.LittleEndian.Uint16(data[body+14 : body+16])),
			}
			haveFormat = true
		case "data":
			if !haveFormat {
				return Format{}, nil, fmt.Errorf("data chunk before fmt chunk")
			}
			end := body + size
			if size < 0 || end > len(data) || end < body {
				end = len(data)
			}
			return format, data[body:end], nil
		}

		// Chunks are word aligned.
		pos = body + size + size%2
		if pos < body {
			break
		}
	}

	return Format{}, nil, fmt.Errorf("no data chunk in WAV stream")
}
