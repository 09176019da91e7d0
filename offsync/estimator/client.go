package estimator

import "math"

const defaultRingCapacity = 500

// Update is the result of folding one sample into a ClientState: the
// raw sample plus each predictor's new output.
type Update struct {
	Sample  float64
	EWMA    float64
	Kalman  float64
	PID     float64
	Anomaly bool
}

// Stats summarizes a client's recent sample history.
type Stats struct {
	Count  int
	Min    float64
	Max    float64
	Avg    float64
	StdDev float64
}

// ClientState holds one client's predictors, sample history ring, and
// packet counter. It is owned exclusively by the receive loop that
// updates it; a background snapshot writer may clone Stats() under
// the registry's lock.
type ClientState struct {
	Ewma   *EWMA
	Kalman *Kalman
	PID    *PID

	ring    []float64
	ringCap int

	PacketCount int
}

// NewClientState returns a fresh per-client state with the standard
// predictor defaults.
func NewClientState() *ClientState {
	return &ClientState{
		Ewma:    NewEWMA(0.2),
		Kalman:  NewKalman(),
		PID:     NewPID(),
		ringCap: defaultRingCapacity,
	}
}

// Observe folds sample into every predictor, pushes it onto the ring
// buffer, increments the packet counter, and runs the anomaly test.
func (c *ClientState) Observe(sample float64) Update {
	c.PacketCount++
	u := Update{
		Sample: sample,
		EWMA:   c.Ewma.Update(sample),
		Kalman: c.Kalman.Update(sample),
		PID:    c.PID.Update(sample),
	}
	u.Anomaly = c.isAnomaly(sample, 2.0)
	c.pushRing(sample)
	return u
}

func (c *ClientState) pushRing(s float64) {
	c.ring = append(c.ring, s)
	if len(c.ring) > c.ringCap {
		c.ring = c.ring[len(c.ring)-c.ringCap:]
	}
}

// isAnomaly flags sample if it falls more than thresholdMultiplier
// standard deviations from the recent mean. Evaluated against the
// ring buffer before sample is pushed onto it, since the buffer holds
// at least 10 prior points is what the standard's detector requires.
func (c *ClientState) isAnomaly(sample, thresholdMultiplier float64) bool {
	if len(c.ring) < 10 {
		return false
	}
	mean, std := meanStdDev(c.ring)
	return math.Abs(sample-mean) > thresholdMultiplier*std
}

// Stats computes summary statistics over the current ring buffer.
func (c *ClientState) Stats() Stats {
	if len(c.ring) == 0 {
		return Stats{}
	}
	min, max := c.ring[0], c.ring[0]
	sum := 0.0
	for _, v := range c.ring {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
		sum += v
	}
	avg := sum / float64(len(c.ring))
	_, std := meanStdDev(c.ring)
	return Stats{Count: c.PacketCount, Min: min, Max: max, Avg: avg, StdDev: std}
}

func meanStdDev(samples []float64) (mean, stddev float64) {
	if len(samples) == 0 {
		return 0, 0
	}
	sum := 0.0
	for _, v := range samples {
		sum += v
	}
	mean = sum / float64(len(samples))
	if len(samples) < 2 {
		return mean, 0
	}
	var variance float64
	for _, v := range samples {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(samples) - 1)
	return mean, math.Sqrt(variance)
}
