// Package decode turns audio files into mono float64 sample buffers. WAV is
// parsed natively so header violations surface as typed format errors; MP3
// goes through go-mp3. Stereo sources are downmixed by channel averaging.
package decode

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/cwbudde/algo-beat/beat"
)

const (
	wavFormatPCM   = 1
	wavFormatFloat = 3

	minWAVRate = 8000
	maxWAVRate = 192000
)

type wavFormat struct {
	audioFormat   uint16
	numChannels   uint16
	sampleRate    uint32
	bitsPerSample uint16
}

// ReadWAVMono decodes a RIFF/WAVE stream: 8/16/24/32-bit PCM or 32-bit
// float, mono or stereo, 8-192 kHz. Violations fail with ErrInvalidFormat.
func ReadWAVMono(r io.Reader) ([]float64, int, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return nil, 0, beat.Wrap(beat.ErrInvalidFormat, "decode", err, "short RIFF header")
	}
	if string(riff[0:4]) != "RIFF" {
		return nil, 0, beat.Errorf(beat.ErrInvalidFormat, "decode", "missing RIFF marker")
	}
	if string(riff[8:12]) != "WAVE" {
		return nil, 0, beat.Errorf(beat.ErrInvalidFormat, "decode", "missing WAVE marker")
	}

	var format *wavFormat
	for {
		var chunkHeader [8]byte
		if _, err := io.ReadFull(r, chunkHeader[:]); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return nil, 0, beat.Errorf(beat.ErrInvalidFormat, "decode", "no data chunk")
			}
			return nil, 0, beat.Wrap(beat.ErrInvalidFormat, "decode", err, "truncated chunk header")
		}
		chunkID := string(chunkHeader[0:4])
		chunkSize := binary.LittleEndian.Uint32(chunkHeader[4:8])

		switch chunkID {
		case "fmt ":
			f, err := readFormatChunk(r, chunkSize)
			if err != nil {
				return nil, 0, err
			}
			format = f
		case "data":
			if format == nil {
				return nil, 0, beat.Errorf(beat.ErrInvalidFormat, "decode", "data chunk before fmt chunk")
			}
			return readDataChunk(r, format, chunkSize)
		default:
			// Skip unknown chunks (LIST, fact, cue, ...). Chunks are
			// word-aligned.
			skip := int64(chunkSize)
			if skip%2 == 1 {
				skip++
			}
			if _, err := io.CopyN(io.Discard, r, skip); err != nil {
				return nil, 0, beat.Wrap(beat.ErrInvalidFormat, "decode", err, "truncated %q chunk", chunkID)
			}
		}
	}
}

func readFormatChunk(r io.Reader, size uint32) (*wavFormat, error) {
	if size < 16 {
		return nil, beat.Errorf(beat.ErrInvalidFormat, "decode", "fmt chunk too small: %d bytes", size)
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, beat.Wrap(beat.ErrInvalidFormat, "decode", err, "truncated fmt chunk")
	}
	if size%2 == 1 {
		if _, err := io.CopyN(io.Discard, r, 1); err != nil {
			return nil, beat.Wrap(beat.ErrInvalidFormat, "decode", err, "truncated fmt padding")
		}
	}

	f := &wavFormat{
		audioFormat:   binary.LittleEndian.Uint16(buf[0:2]),
		numChannels:   binary.LittleEndian.Uint16(buf[2:4]),
		sampleRate:    binary.LittleEndian.Uint32(buf[4:8]),
		bitsPerSample: binary.LittleEndian.Uint16(buf[14:16]),
	}

	switch f.audioFormat {
	case wavFormatPCM:
		switch f.bitsPerSample {
		case 8, 16, 24, 32:
		default:
			return nil, beat.Errorf(beat.ErrInvalidFormat, "decode", "unsupported PCM bit depth: %d", f.bitsPerSample)
		}
	case wavFormatFloat:
		if f.bitsPerSample != 32 {
			return nil, beat.Errorf(beat.ErrInvalidFormat, "decode", "unsupported float bit depth: %d", f.bitsPerSample)
		}
	default:
		return nil, beat.Errorf(beat.ErrInvalidFormat, "decode", "unsupported audio format tag: %d", f.audioFormat)
	}
	if f.numChannels < 1 || f.numChannels > 2 {
		return nil, beat.Errorf(beat.ErrInvalidFormat, "decode", "unsupported channel count: %d", f.numChannels)
	}
	if f.sampleRate < minWAVRate || f.sampleRate > maxWAVRate {
		return nil, beat.Errorf(beat.ErrInvalidFormat, "decode", "sample rate out of range: %d", f.sampleRate)
	}
	return f, nil
}

func readDataChunk(r io.Reader, f *wavFormat, size uint32) ([]float64, int, error) {
	bytesPerSample := int(f.bitsPerSample) / 8
	frameBytes := bytesPerSample * int(f.numChannels)
	if frameBytes == 0 || int(size)%frameBytes != 0 {
		return nil, 0, beat.Errorf(beat.ErrInvalidFormat, "decode", "data size %d not a frame multiple", size)
	}

	raw := make([]byte, size)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, 0, beat.Wrap(beat.ErrInvalidFormat, "decode", err, "truncated data chunk")
	}

	frames := int(size) / frameBytes
	out := make([]float64, frames)
	ch := int(f.numChannels)
	for i := 0; i < frames; i++ {
		var sum float64
		for c := 0; c < ch; c++ {
			off := (i*ch + c) * bytesPerSample
			sum += decodeSample(raw[off:off+bytesPerSample], f)
		}
		out[i] = sum / float64(ch)
	}
	return out, int(f.sampleRate), nil
}

func decodeSample(b []byte, f *wavFormat) float64 {
	if f.audioFormat == wavFormatFloat {
		v := math.Float32frombits(binary.LittleEndian.Uint32(b))
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return 0
		}
		return float64(v)
	}
	switch f.bitsPerSample {
	case 8:
		// Unsigned, biased at 128.
		return (float64(b[0]) - 128) / 128
	case 16:
		return float64(int16(binary.LittleEndian.Uint16(b))) / 32768
	case 24:
		v := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
		if v&0x800000 != 0 {
			v |= ^int32(0xFFFFFF)
		}
		return float64(v) / 8388608
	case 32:
		return float64(int32(binary.LittleEndian.Uint32(b))) / 2147483648
	}
	return 0
}
