package replan

import "math"

// Cost constants.
const (
	// CostScale converts planner costs to the integer scale of the search.
	CostScale = 1e3
	// MaxFDCost is the largest cost the search accepts.
	MaxFDCost = 1e8
	// MaxCost is the largest cost a stream reports.
	MaxCost = MaxFDCost / CostScale

	BaseConstant = 1.0
	BaseVelocity = 0.25
	// DetectSuccessCost and DetectFailureCost weigh an observation attempt.
	DetectSuccessCost = 1.0
	DetectFailureCost = 1.0
)

// ClipCost bounds cost to [0, maxCost].
func ClipCost(cost, maxCost float64) float64 {
	return math.Max(0, math.Min(cost, maxCost))
}

// BaseCost is the move cost between two base configurations.
func BaseCost(q1, q2 *Conf) float64 {
	return BaseConstant + planarDistance(q1.values, q2.values)/BaseVelocity
}

// TrajectoryCost is the move cost of a base trajectory.
func TrajectoryCost(t Trajectory) float64 {
	return BaseConstant + t.Distance(planarDistance)/BaseVelocity
}

// planarDistance ignores the base yaw.
func planarDistance(a, b []float64) float64 {
	n := min(len(a), len(b), 2)
	return Distance(a[:n], b[:n])
}

// revisit is the expected cost of retrying an action that succeeds with p.
func revisit(success, failure, p float64) float64 {
	if p <= 0 {
		return math.Inf(1)
	}
	return success + failure*(1-p)/p
}

// DetectCost is the clipped expected cost of detecting an object present with p.
func DetectCost(p float64) float64 {
	return ClipCost(revisit(DetectSuccessCost, DetectFailureCost, p), MaxCost)
}

// DetectCostFn evaluates DetectCost at rp's mass under dist.
func DetectCostFn(dist *SurfaceDist, rp *RelPose) float64 {
	return DetectCost(dist.Prob(rp))
}

// SequenceCost is TrajectoryCost over the base moves of seq.
func SequenceCost(w *World, seq *Sequence) float64 {
	base := w.BaseGroup()
	var distance float64
	for _, cmd := range seq.Commands {
		if m, ok := cmd.(*Move); ok && m.Group.Equal(base) {
			distance += m.Distance(planarDistance)
		}
	}
	return BaseConstant + distance/BaseVelocity
}
