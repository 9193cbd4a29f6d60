// Package control implements the gap-keeping longitudinal controller
// of spec.md section 4.5: a projected-error PD law converting
// self/front-neighbour telemetry into a new commanded speed.
package control

import "math"

// Inputs collects every value the controller's PD law needs for one
// invocation.
type Inputs struct {
	CurrentSpeed     float64
	FrontX, FrontY   float64
	FrontSpeed       float64
	LeaderBaseSpeed  float64
	SelfX, SelfY     float64
	TargetGap        float64
	DT               float64
	Kp, Kd           float64
	MaxSpeedOverBase float64
}

// Step computes the new commanded speed per spec.md section 4.5:
//
//  1. gap := euclidean_distance(self, front)
//  2. projected_error := (gap - target_gap) - front_speed*dt
//  3. new_speed := leader_base_speed + Kd*(front_speed-current_speed) + Kp*projected_error
//  4. clamp to [0, leader_base_speed + MaxSpeedOverBase]
func Step(in Inputs) float64 {
	dx := in.FrontX - in.SelfX
	dy := in.FrontY - in.SelfY
	gap := math.Hypot(dx, dy)

	projectedError := (gap - in.TargetGap) - in.FrontSpeed*in.DT
	newSpeed := in.LeaderBaseSpeed + in.Kd*(in.FrontSpeed-in.CurrentSpeed) + in.Kp*projectedError

	lower := 0.0
	upper := in.LeaderBaseSpeed + in.MaxSpeedOverBase
	switch {
	case newSpeed < lower:
		return lower
	case newSpeed > upper:
		return upper
	default:
		return newSpeed
	}
}

// TargetGap returns the gap to use given the base gap and the active
// intruder (if any), per spec.md section 4.5: widened by the
// intruder's length when one is active.
func TargetGap(baseGap float64, intruderActive bool, intruderLength int) float64 {
	if intruderActive {
		return baseGap + float64(intruderLength)
	}
	return baseGap
}
