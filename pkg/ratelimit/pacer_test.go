package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestJitteredPacerBounds(t *testing.T) {
	p := NewJitteredPacer(100*time.Millisecond, 0.5)

	for i := 0; i < 100; i++ {
		d := p.NextDelay()
		assert.GreaterOrEqual(t, d, 50*time.Millisecond)
		assert.LessOrEqual(t, d, 150*time.Millisecond)
	}
}

func TestJitteredPacerNoJitter(t *testing.T) {
	p := NewJitteredPacer(100*time.Millisecond, 0)
	assert.Equal(t, 100*time.Millisecond, p.NextDelay())
}

func TestJitteredPacerZeroBase(t *testing.T) {
	p := NewJitteredPacer(0, 0.5)
	assert.Equal(t, time.Duration(0), p.NextDelay())
}

func TestJitteredPacerWaitUsesComputedDelay(t *testing.T) {
	var slept time.Duration
	p := &JitteredPacer{Base: 100 * time.Millisecond, Jitter: 0.5, sleep: func(d time.Duration) {
		slept = d
	}}

	p.Wait()
	assert.GreaterOrEqual(t, slept, 50*time.Millisecond)
	assert.LessOrEqual(t, slept, 150*time.Millisecond)
}

func TestFixedPacer(t *testing.T) {
	p := NewFixedPacer(5 * time.Millisecond)

	start := time.Now()
	p.Wait()
	assert.GreaterOrEqual(t, time.Since(start), 5*time.Millisecond)
}

func TestNopPacer(t *testing.T) {
	start := time.Now()
	Nop{}.Wait()
	assert.Less(t, time.Since(start), 10*time.Millisecond)
}
