package util

import "time"

// Backoff yields exponentially growing retry delays capped at a maximum.
// A Backoff belongs to one retry loop and is not safe for concurrent use.
type Backoff struct {
	initial, maxDelay, next time.Duration
}

// NewBackoff returns a Backoff that starts at initial and doubles up to maxDelay.
func NewBackoff(initial, maxDelay time.Duration) *Backoff {
	return &Backoff{initial: initial, maxDelay: maxDelay, next: initial}
}

// Next returns the delay before the next attempt.
func (b *Backoff) Next() time.Duration {
	d := b.next
	if b.next < b.maxDelay/2 {
		b.next *= 2
	} else {
		b.next = b.maxDelay
	}
	return d
}

// Reset starts over at the initial delay, typically after a success.
func (b *Backoff) Reset() {
	b.next = b.initial
}
