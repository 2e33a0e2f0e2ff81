// Package control implements the discrete-time PI (proportional-integral)
// controller that turns the VM's stack occupancy into a "collect now"
// confidence signal.
//
// The controller is grounded on the teacher's allocation_config.go pattern
// of a small, validated, immutable configuration struct paired with a
// handful of pure functions over it (pointerstore/allocation_config.go
// validates alignment once at construction and is consulted on every
// allocation thereafter) — here the validated configuration is the PI gain
// set, and the "hot path" function is Update, called once per
// VM.Confidence call.
package control

import (
	"errors"
	"fmt"
)

// ErrControllerBadConfig is returned by Update when Ti or Tt is zero, which
// would divide by zero in the integral or back-calculation term. The
// integral is left unchanged.
var ErrControllerBadConfig = errors.New("control: ti and tt must be non-zero")

// Config holds the gains and bounds of a PIController. Period is the
// simulated control-loop period; Min and Max bound the integral term
// (anti-windup clamp).
type Config struct {
	Kp     float64
	Ti     float64
	Tt     float64
	Period float64
	Min    float64
	Max    float64
}

// PIController is a discrete-time PI controller with anti-windup by tracking
// back-calculation. Its only mutable state is the integral term.
type PIController struct {
	cfg      Config
	integral float64
}

// New returns a PIController with zero initial integral.
func New(cfg Config) *PIController {
	return &PIController{cfg: cfg}
}

// Integral returns the controller's current integral term — the "GC
// confidence" when driven by the VM's trigger policy.
func (c *PIController) Integral() float64 {
	return c.integral
}

// Output returns, without mutating state, the clamped and raw proportional
// outputs for the given input and set point:
//
//	raw     = kp * (set_point - input)
//	clamped = clamp(raw + integral, min, max)
//
// The raw value is what a later Update call needs for its back-calculation
// term.
func (c *PIController) Output(input, setPoint float64) (clamped, raw float64) {
	raw = c.cfg.Kp * (setPoint - input)
	clamped = clampTo(raw+c.integral, c.cfg.Min, c.cfg.Max)
	return clamped, raw
}

// Update advances the integral term by one control-loop period:
//
//	diff            = set_point - measurement
//	integral_update = (kp*period/ti)*diff + (period/tt)*(clampedOutput-rawOutput)
//	integral        = clamp(integral + integral_update, min, max)
//
// clampedOutput and rawOutput are ordinarily the pair returned by a
// preceding Output call; passing clampedOutput == rawOutput disables the
// back-calculation term (tracking "disabled").
//
// Update fails with ErrControllerBadConfig, leaving the integral unchanged,
// when Ti or Tt is zero.
func (c *PIController) Update(measurement, setPoint, clampedOutput, rawOutput float64) error {
	if c.cfg.Ti == 0 || c.cfg.Tt == 0 {
		return fmt.Errorf("update(%v,%v): %w", measurement, setPoint, ErrControllerBadConfig)
	}

	diff := setPoint - measurement
	integralUpdate := (c.cfg.Kp*c.cfg.Period/c.cfg.Ti)*diff +
		(c.cfg.Period/c.cfg.Tt)*(clampedOutput-rawOutput)

	c.integral = clampTo(c.integral+integralUpdate, c.cfg.Min, c.cfg.Max)
	return nil
}

// Next is the simpler advance used when no back-calculation term is
// available: it computes the clamped output from the current integral (as
// Output would), advances the integral by raw*period afterward, and returns
// the pre-advance clamped output. Unlike Update it never fails — it has no
// division by Ti or Tt.
func (c *PIController) Next(input, setPoint float64) float64 {
	clamped, raw := c.Output(input, setPoint)
	c.integral = clampTo(c.integral+raw*c.cfg.Period, c.cfg.Min, c.cfg.Max)
	return clamped
}

func clampTo(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
