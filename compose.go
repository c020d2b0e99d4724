package replan

import (
	"context"
	"math"

	"github.com/zoobzio/capitan"
)

// ExhaustPolicy decides what a composed stream does after a round runs out
// of attempts.
type ExhaustPolicy int

const (
	// ExhaustRetry yields Retry and starts a fresh round on the next pull.
	ExhaustRetry ExhaustPolicy = iota
	// ExhaustTerminate yields Retry once and is Done afterwards.
	ExhaustTerminate
)

// ComposeOptions bounds a composed stream.
type ComposeOptions struct {
	// Name labels events.
	Name string
	// MaxAttempts is the number of outer draws per round.
	MaxAttempts int
	// MaxSuccesses and MaxFailures cap the values and retries yielded. -1 is unbounded.
	MaxSuccesses int
	MaxFailures  int
	Exhaust      ExhaustPolicy
}

// Pair is an outer candidate together with the inner result certified for it.
type Pair[O, I any] struct {
	Outer O
	Inner I
}

// Compose pairs outer candidates with an inner certifier.
//
// A round draws up to MaxAttempts outer candidates and yields the first one
// certify accepts. A round that runs out yields Retry. An outer Done ends the
// composed stream.
func Compose[O, I any](outer Generator[O], certify func(ctx context.Context, o O) (I, bool), opts ComposeOptions) Generator[Pair[O, I]] {
	var successes, failures int
	exhausted := false
	return Stream(func(ctx context.Context) Result[Pair[O, I]] {
		if exhausted || reached(successes, opts.MaxSuccesses) || reached(failures, opts.MaxFailures) {
			return Done[Pair[O, I]]()
		}
		for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
			if err := ctx.Err(); err != nil {
				return Fail[Pair[O, I]](err)
			}
			r := outer.Next(ctx)
			if r.IsDone() {
				return Fail[Pair[O, I]](r.Err())
			}
			o, ok := r.Get()
			if !ok {
				continue
			}
			if inner, ok := certify(ctx, o); ok {
				successes++
				return Value(Pair[O, I]{Outer: o, Inner: inner})
			}
		}
		failures++
		capitan.Emit(ctx, StreamRetry,
			FieldStream.Field(opts.Name),
			FieldMaxAttempts.Field(opts.MaxAttempts),
		)
		if opts.Exhaust == ExhaustTerminate {
			exhausted = true
		}
		return Retry[Pair[O, I]]()
	})
}

func reached(n, limit int) bool {
	return limit >= 0 && n >= limit
}

// exhaustFor picks the policy for a pose: ExhaustRetry for init poses,
// ExhaustTerminate for every other pose.
func exhaustFor(pose *RelPose) ExhaustPolicy {
	if pose.Init {
		return ExhaustRetry
	}
	return ExhaustTerminate
}

// InverseReachability filters base candidates down to those from which every
// special arm configuration is clear of obstacles. Each pull inspects up to
// Attempts.Reachability candidates. When none is safe the stream is Done.
func InverseReachability(w *World, bases Generator[[]float64], obstacles []Obstacle) Generator[*Conf] {
	if !w.cfg.Collisions {
		obstacles = nil
	}
	return Stream(func(ctx context.Context) Result[*Conf] {
		snap := w.SaveBodies(w.robot.Body)
		defer snap.Restore()
		for attempt := 1; attempt <= w.cfg.Attempts.Reachability; attempt++ {
			r := bases.Next(ctx)
			if r.IsDone() {
				return Fail[*Conf](r.Err())
			}
			values, ok := r.Get()
			if !ok || !w.BaseWithinLimits(values) {
				continue
			}
			bq := w.BaseConf(values...)
			if baseIsSafe(w, bq, obstacles) {
				return Value(bq)
			}
			capitan.Emit(ctx, CandidateRejected,
				FieldStream.Field("inverse-reachability"),
				FieldAttempt.Field(attempt),
				FieldReason.Field("special-conf-collision"),
			)
		}
		capitan.Emit(ctx, StreamDone,
			FieldStream.Field("inverse-reachability"),
			FieldMaxAttempts.Field(w.cfg.Attempts.Reachability),
		)
		return Done[*Conf]()
	})
}

func baseIsSafe(w *World, bq *Conf, obstacles []Obstacle) bool {
	w.Assign(bq)
	robot := w.RobotObstacle()
	for _, conf := range w.SpecialConfs() {
		w.Assign(conf)
		for _, o := range obstacles {
			if w.collidesWithin(robot, o, w.cfg.MinDistance) {
				return false
			}
		}
	}
	return true
}

// UniformPoseGenerator draws bases on an annulus around target's xy, yawed
// to face it.
func UniformPoseGenerator(w *World, target Pose) Generator[[]float64] {
	lo, hi := w.cfg.BaseRadiusMin, w.cfg.BaseRadiusMax
	return Repeat(func() []float64 {
		radius := lo + w.rng.Float64()*(hi-lo)
		theta := -math.Pi + 2*math.Pi*w.rng.Float64()
		x := target.Point.X + radius*math.Cos(theta)
		y := target.Point.Y + radius*math.Sin(theta)
		yaw := math.Atan2(target.Point.Y-y, target.Point.X-x)
		return []float64{x, y, yaw}
	})
}

// LearnedBaseGenerator cycles through learned tool_from_base transforms and
// maps each to base values through the gripper pose.
func LearnedBaseGenerator(gripperPose Pose, toolFromBase []Pose) Generator[[]float64] {
	return Map(Cycle(toolFromBase), func(p Pose) []float64 {
		return baseValues(Multiply(gripperPose, p))
	})
}

// baseValues projects a base pose onto (x, y, yaw).
func baseValues(p Pose) []float64 {
	return []float64{p.Point.X, p.Point.Y, p.Quat.Yaw()}
}

// PullBaseGenerator cycles through learned world_from_base transforms.
func PullBaseGenerator(worldFromBase []Pose) Generator[[]float64] {
	return Map(Cycle(worldFromBase), baseValues)
}
