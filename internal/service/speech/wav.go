package speech

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	DefaultSampleRate    = 24000
	DefaultBitsPerSample = 16

	wavHeaderSize  = 44
	wavChannels    = 1
	audioFormatPCM = 1
	subchunk1Size  = 16
)

// AudioParams are the PCM properties carried in a mime type such as
// "audio/L16;codec=pcm;rate=24000".
type AudioParams struct {
	SampleRate    int
	BitsPerSample int
}

// ParseAudioMime reads bits per sample from an "audio/L<bits>" segment and the
// sample rate from a "rate=<hz>" segment. Missing or unparsable values fall
// back to 16 bits and 24000 Hz.
func ParseAudioMime(mimeType string) AudioParams {
	params := AudioParams{SampleRate: DefaultSampleRate, BitsPerSample: DefaultBitsPerSample}
	for _, segment := range strings.Split(mimeType, ";") {
		segment = strings.TrimSpace(segment)
		switch {
		case strings.HasPrefix(strings.ToLower(segment), "rate="):
			if rate, ok := positiveInt(segment[len("rate="):]); ok {
				params.SampleRate = rate
			}
		case strings.HasPrefix(segment, "audio/L"):
			if bits, ok := positiveInt(segment[len("audio/L"):]); ok {
				params.BitsPerSample = bits
			}
		}
	}
	return params
}

func positiveInt(s string) (int, bool) {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

// ErrUnsupportedAudioParams is returned when the PCM parameters cannot be
// represented in the fixed width fields of a WAV header.
var ErrUnsupportedAudioParams = errors.New("audio params do not fit a wav header")

// EncodeWAV wraps mono PCM samples in a canonical 44 byte RIFF/WAVE header.
func EncodeWAV(pcm []byte, params AudioParams) ([]byte, error) {
	bytesPerSample := params.BitsPerSample / 8
	blockAlign := wavChannels * bytesPerSample
	byteRate := uint64(params.SampleRate) * uint64(blockAlign)
	dataSize := uint64(len(pcm))
	chunkSize := 36 + dataSize

	switch {
	case params.SampleRate <= 0 || uint64(params.SampleRate) > math.MaxUint32:
		return nil, fmt.Errorf("%w: sample rate %d", ErrUnsupportedAudioParams, params.SampleRate)
	case params.BitsPerSample <= 0 || params.BitsPerSample > math.MaxUint16:
		return nil, fmt.Errorf("%w: bits per sample %d", ErrUnsupportedAudioParams, params.BitsPerSample)
	case blockAlign > math.MaxUint16:
		return nil, fmt.Errorf("%w: block align %d", ErrUnsupportedAudioParams, blockAlign)
	case byteRate > math.MaxUint32:
		return nil, fmt.Errorf("%w: byte rate %d", ErrUnsupportedAudioParams, byteRate)
	case chunkSize > math.MaxUint32:
		return nil, fmt.Errorf("%w: payload of %d bytes", ErrUnsupportedAudioParams, dataSize)
	}

	buf := bytes.NewBuffer(make([]byte, 0, wavHeaderSize+len(pcm)))
	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(chunkSize))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(subchunk1Size))
	binary.Write(buf, binary.LittleEndian, uint16(audioFormatPCM))
	binary.Write(buf, binary.LittleEndian, uint16(wavChannels))
	binary.Write(buf, binary.LittleEndian, uint32(params.SampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(buf, binary.LittleEndian, uint16(params.BitsPerSample))

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(dataSize))
	buf.Write(pcm)
	return buf.Bytes(), nil
}

// WAVHeader is the decoded form of the header written by EncodeWAV.
type WAVHeader struct {
	ChunkSize     uint32
	AudioFormat   uint16
	Channels      uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	DataSize      uint32
}

var ErrInvalidWAV = errors.New("invalid wav header")

// DecodeWAVHeader parses a canonical 44 byte header.
func DecodeWAVHeader(b []byte) (*WAVHeader, error) {
	if len(b) < wavHeaderSize {
		return nil, ErrInvalidWAV
	}
	if string(b[0:4]) != "RIFF" || string(b[8:12]) != "WAVE" || string(b[12:16]) != "fmt " || string(b[36:40]) != "data" {
		return nil, ErrInvalidWAV
	}
	le := binary.LittleEndian
	if le.Uint32(b[16:20]) != subchunk1Size {
		return nil, ErrInvalidWAV
	}
	return &WAVHeader{
		ChunkSize:     le.Uint32(b[4:8]),
		AudioFormat:   le.Uint16(b[20:22]),
		Channels:      le.Uint16(b[22:24]),
		SampleRate:    le.Uint32(b[24:28]),
		ByteRate:      le.Uint32(b[28:32]),
		BlockAlign:    le.Uint16(b[32:34]),
		BitsPerSample: le.Uint16(b[34:36]),
		DataSize:      le.Uint32(b[40:44]),
	}, nil
}
