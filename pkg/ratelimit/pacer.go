// Package ratelimit spaces outbound requests with deliberate sleeps.
// Instagram penalizes bursty traffic, so the pacing here is a plain
// fixed or jittered delay rather than an adaptive scheme.
package ratelimit

import (
	"math/rand"
	"time"
)

// Pacer inserts a delay between successive requests.
type Pacer interface {
	// Wait blocks for the configured inter-request delay.
	Wait()
}

// FixedPacer sleeps the same duration every time.
type FixedPacer struct {
	Delay time.Duration
}

// NewFixedPacer creates a pacer with a constant inter-request delay.
func NewFixedPacer(delay time.Duration) *FixedPacer {
	return &FixedPacer{Delay: delay}
}

// Wait sleeps for the fixed delay.
func (p *FixedPacer) Wait() {
	if p.Delay > 0 {
		time.Sleep(p.Delay)
	}
}

// JitteredPacer sleeps a base duration randomized in both directions by a
// jitter fraction, so request timing does not form a detectable pattern.
type JitteredPacer struct {
	Base   time.Duration
	Jitter float64 // 0.0 to 1.0
	sleep  func(time.Duration)
}

// NewJitteredPacer creates a pacer whose delay varies uniformly within
// base ± base*jitter.
func NewJitteredPacer(base time.Duration, jitter float64) *JitteredPacer {
	return &JitteredPacer{Base: base, Jitter: jitter, sleep: time.Sleep}
}

// Wait sleeps for the jittered delay.
func (p *JitteredPacer) Wait() {
	d := p.NextDelay()
	if d > 0 {
		if p.sleep != nil {
			p.sleep(d)
		} else {
			time.Sleep(d)
		}
	}
}

// NextDelay computes the next jittered delay without sleeping.
func (p *JitteredPacer) NextDelay() time.Duration {
	if p.Base <= 0 {
		return 0
	}
	if p.Jitter <= 0 {
		return p.Base
	}

	spread := float64(p.Base) * p.Jitter
	d := float64(p.Base) + (rand.Float64()*2*spread - spread)
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

// Nop is a pacer that never waits, for tests and dry runs.
type Nop struct{}

// Wait returns immediately.
func (Nop) Wait() {}
