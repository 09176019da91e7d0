// Package estimator implements the clock-offset sample law and the
// three per-client predictors (EWMA, a 1-D Kalman filter, and a PID
// loop) the offset service runs over it, grounded on
// original_source/udp_server_class.py's time_diff_calc and
// original_source/udp_server_main.py's TimeSeriesAnalyzer.
package estimator

// ComputeSample turns a received frame's (SOC, fraction-of-second in
// microseconds) and the server's own clock reading of the same shape
// into a single signed offset sample in microseconds, applying the
// borrow/carry normalization described for FRASEC's fractional part.
func ComputeSample(serverSOC uint32, serverFracUs int64, clientSOC uint32, clientFracUs int64) int64 {
	deltaSOC := int64(serverSOC) - int64(clientSOC)
	deltaFrac := serverFracUs - clientFracUs

	if deltaFrac < -1_000_000 {
		deltaFrac += 1_000_000
		deltaSOC--
	} else if deltaFrac > 1_000_000 {
		deltaFrac -= 1_000_000
		deltaSOC++
	}
	return deltaSOC*1_000_000 + deltaFrac
}

// EWMA is an exponentially weighted moving average predictor.
type EWMA struct {
	Alpha float64
	pred  float64
	has   bool
}

// NewEWMA returns an EWMA predictor with the given smoothing factor.
// alpha<=0 falls back to the standard default of 0.2.
func NewEWMA(alpha float64) *EWMA {
	if alpha <= 0 {
		alpha = 0.2
	}
	return &EWMA{Alpha: alpha}
}

// Update folds sample into the running prediction and returns it. The
// first call initializes the prediction to sample.
func (e *EWMA) Update(sample float64) float64 {
	if !e.has {
		e.pred = sample
		e.has = true
		return e.pred
	}
	e.pred = e.Alpha*sample + (1-e.Alpha)*e.pred
	return e.pred
}

// Kalman is a scalar (1-D) Kalman filter over the offset samples.
type Kalman struct {
	P, Q, R float64
	x       float64
	has     bool
}

// NewKalman returns a Kalman filter seeded with the standard defaults:
// P0=10^6, Q=10^4, R=2*10^6 (all in microseconds squared).
func NewKalman() *Kalman {
	return &Kalman{P: 1_000_000, Q: 10_000, R: 2_000_000}
}

// Update folds sample into the filter state and returns the new
// estimate. The first call initializes the estimate to sample.
func (k *Kalman) Update(sample float64) float64 {
	if !k.has {
		k.x = sample
		k.has = true
	}
	pPred := k.P + k.Q
	gain := pPred / (pPred + k.R)
	k.x = k.x + gain*(sample-k.x)
	k.P = (1 - gain) * pPred
	return k.x
}

// PID is a proportional-integral-derivative controller run over the
// raw offset sample stream (not a setpoint error, since the setpoint
// here is always zero offset).
type PID struct {
	Kp, Ki, Kd float64
	integral   float64
	prevErr    float64
	hasPrev    bool
}

// NewPID returns a PID controller seeded with the standard defaults:
// Kp=0.6, Ki=0.05, Kd=0.
func NewPID() *PID {
	return &PID{Kp: 0.6, Ki: 0.05, Kd: 0}
}

// Update folds sample into the controller state and returns the
// control output.
func (p *PID) Update(sample float64) float64 {
	p.integral += sample
	var derivative float64
	if p.hasPrev {
		derivative = sample - p.prevErr
	}
	p.prevErr = sample
	p.hasPrev = true
	return p.Kp*sample + p.Ki*p.integral + p.Kd*derivative
}
