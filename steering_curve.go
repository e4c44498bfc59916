package rcbled

import (
	"errors"
	"math"
	"time"
)

var ErrInvalidCalibration = errors.New("invalid steering calibration")

// A SteeringCurve maps a steering angle onto a servo pulse width
// by linear interpolation between calibration points.
type SteeringCurve struct {
	points   []CalibrationPoint
	segments []segment
	minPulse time.Duration
	maxPulse time.Duration
}

func NewSteeringCurve(s Steering) (*SteeringCurve, error) {
	if len(s.Calibration) < 2 {
		return nil, ErrInvalidCalibration
	}

	c := &SteeringCurve{
		points: s.Calibration,
	}
	c.minPulse, c.maxPulse = s.PulseRange()

	for i, p := range s.Calibration[1:] { // i is previous index and p current point
		prev := s.Calibration[i]
		if p.Angle <= prev.Angle {
			return nil, ErrInvalidCalibration
		}

		c.segments = append(c.segments, segment{
			angle: prev.Angle,
			eval:  PulseFromAngleSegment(prev.Angle, float64(prev.Pulse), p.Angle, float64(p.Pulse)),
		})
	}

	return c, nil
}

// Pulse returns the pulse width for the given angle.
// Angles outside the calibrated span extend the first and last segments, bounded by the servo range.
func (c *SteeringCurve) Pulse(angle float64) time.Duration {
	if math.IsNaN(angle) {
		angle = 0
	}

	eval := c.segments[0].eval
	for i := len(c.segments) - 1; i >= 0; i-- {
		if angle >= c.segments[i].angle {
			eval = c.segments[i].eval
			break
		}
	}

	p := time.Duration(math.Round(eval(angle))) * time.Microsecond
	return min(max(p, c.minPulse), c.maxPulse)
}

func (c *SteeringCurve) Points() []CalibrationPoint {
	return c.points
}

// PulseFromAngleSegment returns the line going through (angle1, pulse1) and (angle2, pulse2).
func PulseFromAngleSegment(angle1, pulse1, angle2, pulse2 float64) func(angle float64) float64 {
	a := (pulse2 - pulse1) / (angle2 - angle1) // slope
	b := pulse1 - a*angle1                     // y-intercept

	return func(angle float64) float64 {
		return a*angle + b
	}
}
