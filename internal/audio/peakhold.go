package audio

import (
	"sync"
	"time"
)

// DefaultPeakHoldDuration is how long a loudness peak is held before it decays.
const DefaultPeakHoldDuration = 3000 * time.Millisecond

// PeakHolder tracks the held loudness peak shown on status surfaces.
// It is safe for concurrent use.
type PeakHolder struct {
	mu           sync.Mutex
	held         float64
	heldAt       time.Time
	holdDuration time.Duration
}

// NewPeakHolder creates a peak holder starting at the silence floor.
func NewPeakHolder() *PeakHolder {
	return &PeakHolder{
		held:         SilenceFloorDB,
		holdDuration: DefaultPeakHoldDuration,
	}
}

// Update records a new level and returns the held peak.
func (p *PeakHolder) Update(levelDB float64, now time.Time) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if levelDB >= p.held || now.Sub(p.heldAt) > p.holdDuration {
		p.held = levelDB
		p.heldAt = now
	}
	return p.held
}

// Held returns the currently held peak without updating it.
func (p *PeakHolder) Held() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.held
}

// Reset drops the held peak back to the silence floor.
func (p *PeakHolder) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.held = SilenceFloorDB
	p.heldAt = time.Time{}
}
