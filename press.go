package replan

import (
	"context"
	"fmt"
	"math"

	"github.com/golang/geo/r3"
)

// PressResult is one certified knob press at a base configuration.
type PressResult = PickResult

// pressTopMargin is the clearance between the closed fingers and the knob top.
const pressTopMargin = 5e-3

// PressGrasps returns top presses on the knob link, one per quarter turn.
// The pregrasp is offset ApproachDistance along the tool axis.
func PressGrasps(w *World, knob string) []*Grasp {
	k, ok := w.scene.Knobs[knob]
	if !ok {
		return nil
	}
	snap := w.SaveBodies(w.scene.Kitchen)
	defer snap.Restore()
	box := w.gw.AABB(Obstacle{Body: w.scene.Kitchen, Links: []string{k.Link}})
	offset := box.Extent().Z/2 + w.cfg.FingerExtent/2 + pressTopMargin

	presses := make([]*Grasp, 0, 4)
	for i := range 4 {
		grasp := NewPose(r3.Vector{Z: offset}, Euler{Roll: math.Pi, Yaw: float64(i) * math.Pi / 2})
		presses = append(presses, &Grasp{
			Object:       knob,
			GraspType:    "top",
			Index:        i,
			GraspPose:    grasp,
			PregraspPose: Multiply(Translate(0, 0, w.cfg.ApproachDistance), grasp),
		})
	}
	return presses
}

type pressAttempt struct {
	verdict
	pose      Pose
	grasp     *Grasp
	base      *Conf
	obstacles []Obstacle
	randomize bool

	robotSaver *Snapshot
	path       [][]float64
	result     *PressResult
}

func newPressCertifier(w *World, stream string) *certifier[*pressAttempt] {
	return newCertifier[*pressAttempt](w, stream,
		step("assign", func(_ context.Context, a *pressAttempt) {
			w.Assign(a.base)
			w.CloseGripper()
			a.robotSaver = w.SaveBodies(w.robot.Body)
		}),
		step("seed", func(_ context.Context, a *pressAttempt) {
			seedArm(w, a.randomize)
		}),
		newStage("press-ik", reasonKinematic, func(_ context.Context, a *pressAttempt) bool {
			_, ok := w.SolveIK(Multiply(a.pose, Invert(a.grasp.GraspPose)), math.Inf(1))
			return ok
		}),
		newStage("press-collision", reasonCollision, func(_ context.Context, a *pressAttempt) bool {
			return !w.cfg.Collisions || !w.CollidesAny(w.ArmObstacle(), a.obstacles)
		}),
		newStage("approach", reasonApproachPath, func(_ context.Context, a *pressAttempt) bool {
			path, reason := PlanApproach(w, Multiply(a.pose, Invert(a.grasp.PregraspPose)), a.obstacles, nil)
			if path == nil {
				a.reject(reason)
				return false
			}
			a.path = path
			return true
		}),
		step("sequence", func(_ context.Context, a *pressAttempt) {
			arm := Trajectory{Group: w.ArmGroup(), Path: a.path}
			fingers := &Move{Trajectory: gripperTrajectory(w, w.OpenGripperConf(), w.ClosedGripperConf())}
			a.result = &PressResult{
				Base:     a.base,
				Approach: approachConf(w, a.path),
				Sequence: NewSequence("press", NewState([]*Snapshot{a.robotSaver}),
					fingers,
					&Approach{Trajectory: arm},
					&Approach{Trajectory: arm.Reverse()},
					fingers.Reverse(),
				),
			}
		}),
	)
}

// PlanPress certifies one press of knob with grasp from base.
func PlanPress(ctx context.Context, w *World, knob string, grasp *Grasp, base *Conf) (*PressResult, bool) {
	a := &pressAttempt{pose: w.knobPose(knob), grasp: grasp, base: base, obstacles: w.StaticObstacles(), randomize: randomizeSeed(w)}
	if !newPressCertifier(w, "plan-press").run(ctx, a) {
		return nil, false
	}
	return a.result, true
}

func (w *World) knobPose(knob string) Pose {
	return w.gw.LinkPose(w.scene.Kitchen, w.scene.Knobs[knob].Link)
}

func validatePress(w *World, knob string) ([]*Grasp, error) {
	if !w.IsKnob(knob) {
		return nil, fmt.Errorf("%w: press needs a knob, got %q", ErrContract, knob)
	}
	return PressGrasps(w, knob), nil
}

// PressGen samples bases from which knob can be pressed, cycling through the
// press grasps. Bases are drawn around the first press.
func PressGen(w *World, knob string) Generator[*PressResult] {
	const stream = "plan-press"
	presses, err := validatePress(w, knob)
	if err != nil {
		return Failed[*PressResult](err)
	}
	pose := w.knobPose(knob)
	obstacles := w.StaticObstacles()
	gripperPose := Multiply(pose, Invert(presses[0].GraspPose))
	grasps := Cycle(presses)
	cert := newPressCertifier(w, stream)
	composed := Compose(InverseReachability(w, UniformPoseGenerator(w, gripperPose), obstacles),
		func(ctx context.Context, bq *Conf) (*pressAttempt, bool) {
			grasp, _, _ := First(ctx, grasps, 1)
			a := &pressAttempt{pose: pose, grasp: grasp, base: bq, obstacles: obstacles, randomize: randomizeSeed(w)}
			return a, cert.run(ctx, a)
		},
		composeOptions(w, stream, w.cfg.Attempts.Press, ExhaustRetry),
	)
	return Stream(func(ctx context.Context) Result[*PressResult] {
		return pressResult(composed.Next(ctx))
	})
}

// FixedPressGen certifies presses of knob from a fixed base.
func FixedPressGen(w *World, knob string, bq *Conf) Generator[*PressResult] {
	const stream = "fixed-plan-press"
	presses, err := validatePress(w, knob)
	if err != nil {
		return Failed[*PressResult](err)
	}
	pose := w.knobPose(knob)
	obstacles := w.StaticObstacles()
	cert := newPressCertifier(w, stream)
	composed := Compose(Cycle(presses),
		func(ctx context.Context, grasp *Grasp) (*pressAttempt, bool) {
			a := &pressAttempt{pose: pose, grasp: grasp, base: bq, obstacles: obstacles, randomize: randomizeSeed(w)}
			return a, cert.run(ctx, a)
		},
		composeOptions(w, stream, w.cfg.Attempts.FixedPress, ExhaustRetry),
	)
	return Stream(func(ctx context.Context) Result[*PressResult] {
		r := composed.Next(ctx)
		switch r.Outcome() {
		case OutcomeValue:
			p, _ := r.Get()
			return Value(p.Inner.result)
		case OutcomeRetry:
			return Retry[*PressResult]()
		}
		return Fail[*PressResult](r.Err())
	})
}

func pressResult(r Result[Pair[*Conf, *pressAttempt]]) Result[*PressResult] {
	switch r.Outcome() {
	case OutcomeValue:
		p, _ := r.Get()
		return Value(p.Inner.result)
	case OutcomeRetry:
		return Retry[*PressResult]()
	}
	return Fail[*PressResult](r.Err())
}
