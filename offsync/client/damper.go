package client

import (
	"math"
	"sync/atomic"
	"time"
)

const (
	resetThresholdUs   = 500_000 // 500ms
	resetAfterPackets  = 15
	highCorrectionUs   = 100_000 // 100ms -> 1s poll
	mediumCorrectionUs = 10_000  // 10ms -> 2s poll

	fastResync   = 1 * time.Second
	mediumResync = 2 * time.Second
	slowResync   = 5 * time.Second

	recentWindow = 10
)

// dampingFactor returns the schedule's scalar for the given 1-based
// packet count: 0.5 for the first 5 packets, 0.3 for the next 5, 0.1
// thereafter.
func dampingFactor(packetCount int) float64 {
	switch {
	case packetCount <= 5:
		return 0.5
	case packetCount <= 10:
		return 0.3
	default:
		return 0.1
	}
}

// Damper owns the client's local clock offset cell. OffsetSeconds is
// read by any number of sender goroutines; Apply is called only by
// the sync daemon's single background goroutine.
type Damper struct {
	offsetUs atomic.Int64

	packetCount int
	recentAbs   []float64
}

// NewDamper returns a Damper with a zeroed offset.
func NewDamper() *Damper {
	return &Damper{}
}

// OffsetSeconds returns the current offset in seconds, safe to call
// from any goroutine.
func (d *Damper) OffsetSeconds() float64 {
	return float64(d.offsetUs.Load()) / 1_000_000
}

// PacketCount reports how many corrections have been applied since
// the last reset.
func (d *Damper) PacketCount() int {
	return d.packetCount
}

// Apply folds one received correction into the offset: it subtracts
// half the measured round-trip time, scales by the damping schedule,
// and accumulates the result. It also adapts the next resync interval
// and applies the 15-packet runaway reset rule.
func (d *Damper) Apply(correctionUs, rttUs int64) time.Duration {
	d.packetCount++
	compensated := correctionUs - rttUs/2
	factor := dampingFactor(d.packetCount)
	delta := int64(float64(compensated) * factor)
	d.offsetUs.Add(delta)

	absCompensated := math.Abs(float64(compensated))
	d.pushRecent(absCompensated)

	if d.packetCount >= resetAfterPackets && absCompensated > resetThresholdUs {
		d.offsetUs.Store(0)
		d.packetCount = 0
		d.recentAbs = nil
	}

	return d.nextResyncInterval()
}

func (d *Damper) pushRecent(v float64) {
	d.recentAbs = append(d.recentAbs, v)
	if len(d.recentAbs) > recentWindow {
		d.recentAbs = d.recentAbs[len(d.recentAbs)-recentWindow:]
	}
}

func (d *Damper) nextResyncInterval() time.Duration {
	if len(d.recentAbs) == 0 {
		return slowResync
	}
	sum := 0.0
	for _, v := range d.recentAbs {
		sum += v
	}
	avg := sum / float64(len(d.recentAbs))
	switch {
	case avg > highCorrectionUs:
		return fastResync
	case avg > mediumCorrectionUs:
		return mediumResync
	default:
		return slowResync
	}
}
