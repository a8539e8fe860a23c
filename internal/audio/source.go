package audio

import (
	"errors"
	"math"
	"sync"
)

// DefaultBufferSize is the number of samples pulled per tick.
const DefaultBufferSize = 1024

// ErrSourceClosed is returned by Pull after a source has been closed.
var ErrSourceClosed = errors.New("audio source closed")

// Source supplies the most recent buffer of normalized samples.
type Source interface {
	// Pull fills dst with the freshest samples and returns how many were written.
	// Zero samples with a nil error means the source currently has nothing new.
	Pull(dst []float64) (int, error)
	Close() error
}

// StaticSource emits a constant-amplitude square signal at a chosen level.
// It is safe for concurrent use.
type StaticSource struct {
	mu        sync.Mutex
	amplitude float64
	closed    bool
}

// NewStaticSource creates a source whose buffers measure levelDB.
// Levels at or below SilenceFloorDB produce all-zero buffers.
func NewStaticSource(levelDB float64) *StaticSource {
	s := &StaticSource{}
	s.SetLevel(levelDB)
	return s
}

// SetLevel changes the level of subsequent buffers.
func (s *StaticSource) SetLevel(levelDB float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if levelDB <= SilenceFloorDB {
		s.amplitude = 0
		return
	}
	s.amplitude = math.Pow(10, levelDB/20)
}

// Pull implements Source.
func (s *StaticSource) Pull(dst []float64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrSourceClosed
	}
	for i := range dst {
		if i%2 == 0 {
			dst[i] = s.amplitude
		} else {
			dst[i] = -s.amplitude
		}
	}
	return len(dst), nil
}

// Close implements Source.
func (s *StaticSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
