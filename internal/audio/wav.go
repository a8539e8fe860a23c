package audio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ErrInvalidWAV is returned when a file is not a readable PCM WAV file.
var ErrInvalidWAV = errors.New("invalid WAV file")

// WAVSource reads a WAV file sequentially, one buffer per Pull.
// It is not safe for concurrent use.
type WAVSource struct {
	file    *os.File
	decoder *wav.Decoder
	buf     *goaudio.IntBuffer
	divisor float64
	// offset recenters unsigned 8-bit PCM around zero.
	offset int
}

// OpenWAV opens path for sequential reading.
func OpenWAV(path string) (*WAVSource, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	decoder := wav.NewDecoder(file)
	decoder.ReadInfo()
	if !decoder.IsValidFile() {
		_ = file.Close()
		return nil, fmt.Errorf("%w: %s", ErrInvalidWAV, path)
	}

	var divisor float64
	var offset int
	switch decoder.BitDepth {
	case 8:
		divisor, offset = 128, 128
	case 16:
		divisor = 32768
	case 24:
		divisor = 8388608
	case 32:
		divisor = 2147483648
	default:
		_ = file.Close()
		return nil, fmt.Errorf("%w: unsupported bit depth %d", ErrInvalidWAV, decoder.BitDepth)
	}

	return &WAVSource{
		file:    file,
		decoder: decoder,
		divisor: divisor,
		offset:  offset,
		buf: &goaudio.IntBuffer{
			Format: &goaudio.Format{
				SampleRate:  int(decoder.SampleRate),
				NumChannels: int(decoder.NumChans),
			},
		},
	}, nil
}

// SampleRate returns the file's sample rate in Hz.
func (w *WAVSource) SampleRate() int {
	return int(w.decoder.SampleRate)
}

// Channels returns the number of interleaved channels.
func (w *WAVSource) Channels() int {
	return int(w.decoder.NumChans)
}

// SamplesPer returns how many interleaved samples cover d of audio.
func (w *WAVSource) SamplesPer(d time.Duration) int {
	return int(d.Seconds() * float64(w.SampleRate()*w.Channels()))
}

// Pull implements Source. It returns io.EOF once the file is exhausted.
func (w *WAVSource) Pull(dst []float64) (int, error) {
	if cap(w.buf.Data) < len(dst) {
		w.buf.Data = make([]int, len(dst))
	}
	w.buf.Data = w.buf.Data[:len(dst)]

	n, err := w.decoder.PCMBuffer(w.buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, err
	}
	if n == 0 {
		return 0, io.EOF
	}
	for i := range n {
		dst[i] = float64(w.buf.Data[i]-w.offset) / w.divisor
	}
	return n, nil
}

// Close implements Source.
func (w *WAVSource) Close() error {
	return w.file.Close()
}
