// Package audio provides loudness metering and the audio sources the monitor
// pulls sample buffers from.
package audio

import (
	"encoding/binary"
	"math"
)

const (
	// SilenceFloorDB is reported for buffers that carry no energy at all.
	SilenceFloorDB = -100.0

	// MinRMS bounds the RMS before the logarithm so near-silent buffers
	// stay finite (20·log10(1e-4) = -80 dB).
	MinRMS = 1e-4

	// maxSampleValue is the full-scale magnitude of a signed 16-bit sample.
	maxSampleValue = 32768.0
)

// LevelDB reduces a buffer of normalized samples in [-1, 1] to a single
// loudness value in decibels. An empty or all-zero buffer yields SilenceFloorDB.
func LevelDB(samples []float64) float64 {
	if len(samples) == 0 {
		return SilenceFloorDB
	}

	var sumSquares float64
	for _, s := range samples {
		sumSquares += s * s
	}

	rms := math.Sqrt(sumSquares / float64(len(samples)))
	if rms == 0 {
		return SilenceFloorDB
	}
	return 20 * math.Log10(max(rms, MinRMS))
}

// NormalizeUnsigned8 converts unsigned 8-bit time-domain bytes (128 is the
// zero line) into normalized samples. It returns the number of samples written.
func NormalizeUnsigned8(dst []float64, src []byte) int {
	n := min(len(dst), len(src))
	for i := range n {
		dst[i] = (float64(src[i]) - 128) / 128
	}
	return n
}

// DecodeS16LE converts interleaved signed 16-bit little-endian PCM into
// normalized samples. Trailing odd bytes are ignored.
func DecodeS16LE(dst []float64, src []byte) int {
	n := min(len(dst), len(src)/2)
	for i := range n {
		sample := int16(binary.LittleEndian.Uint16(src[i*2:]))
		dst[i] = float64(sample) / maxSampleValue
	}
	return n
}
