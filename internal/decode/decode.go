package decode

import (
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	mp3 "github.com/hajimehoshi/go-mp3"

	"github.com/cwbudde/algo-beat/beat"
)

// Extensions the file entry point accepts. FLAC, OGG and M4A require an
// external decoder hook.
var nativeExtensions = map[string]bool{
	".wav": true,
	".mp3": true,
}

// ReadFileMono decodes path into mono samples and a sample rate.
func ReadFileMono(path string) ([]float64, int, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if !nativeExtensions[ext] {
		return nil, 0, beat.Errorf(beat.ErrUnsupportedFormat, "decode", "no native decoder for %q", ext)
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, beat.Wrap(beat.ErrFileNotFound, "decode", err, "%s", path)
		}
		return nil, 0, beat.Wrap(beat.ErrDecoderFailure, "decode", err, "open %s", path)
	}
	defer f.Close()

	switch ext {
	case ".wav":
		return ReadWAVMono(f)
	case ".mp3":
		return ReadMP3Mono(f)
	}
	return nil, 0, beat.Errorf(beat.ErrUnsupportedFormat, "decode", "no native decoder for %q", ext)
}

// ReadMP3Mono decodes an MP3 stream. go-mp3 always emits 16-bit
// little-endian stereo; both channels are averaged.
func ReadMP3Mono(r io.Reader) ([]float64, int, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, 0, beat.Wrap(beat.ErrDecoderFailure, "decode", err, "mp3 header")
	}

	var out []float64
	buf := make([]byte, 16384)
	for {
		n, err := dec.Read(buf)
		for i := 0; i+4 <= n; i += 4 {
			l := float64(int16(binary.LittleEndian.Uint16(buf[i:]))) / 32768
			rr := float64(int16(binary.LittleEndian.Uint16(buf[i+2:]))) / 32768
			out = append(out, (l+rr)/2)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, beat.Wrap(beat.ErrDecoderFailure, "decode", err, "mp3 frame")
		}
	}
	return out, dec.SampleRate(), nil
}
