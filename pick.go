package replan

import (
	"context"
	"fmt"
	"iter"
	"math"
)

// Rejection reasons reported by the pick, pull and press certifiers.
const (
	reasonKinematic         = "kinematic"
	reasonCollision         = "collision"
	reasonProximity         = "proximity"
	reasonPregraspKinematic = "pregrasp-kinematic"
	reasonPregraspCollision = "pregrasp-collision"
	reasonPregraspProximity = "pregrasp-proximity"
	reasonPregraspPath      = "pregrasp-path"
	reasonApproachPath      = "approach-path"
	reasonDoorUnsafe        = "door-unsafe"
)

// PickResult is one certified pick at a base configuration.
type PickResult struct {
	Base     *Conf
	Approach *Conf
	Sequence *Sequence
}

// IsApproachSafe walks the free gripper from pregrasp to grasp with the
// object following it and reports whether the gripper stays clear of obstacles.
func IsApproachSafe(w *World, pose *RelPose, grasp *Grasp, obstacles []Obstacle) bool {
	if !w.cfg.Collisions {
		return true
	}
	snap := w.Save()
	defer snap.Restore()
	pose.Assign(w)
	for range approachToolPoses(w, pose, grasp, true) {
		if w.CollidesAny(w.GripperObstacle(), obstacles) {
			return false
		}
	}
	return true
}

// approachToolPoses moves the free gripper along the approach and yields
// after each waypoint. With follow the object is carried along.
func approachToolPoses(w *World, pose *RelPose, grasp *Grasp, follow bool) iter.Seq[Pose] {
	return func(yield func(Pose) bool) {
		worldFromBody := pose.WorldFromBody(w)
		for _, toolPose := range interpolatePoses(
			Multiply(worldFromBody, Invert(grasp.PregraspPose)),
			Multiply(worldFromBody, Invert(grasp.GraspPose)),
			w.cfg.ArmResolution,
		) {
			w.SetToolPose(toolPose)
			if follow {
				w.gw.SetPose(grasp.Object, Multiply(toolPose, grasp.GraspPose))
			}
			if !yield(toolPose) {
				return
			}
		}
	}
}

// interpolatePoses steps the translation from a to b, keeping b's orientation
// after the first waypoint. Both endpoints are included.
func interpolatePoses(a, b Pose, resolution float64) []Pose {
	d := b.Point.Sub(a.Point)
	steps := int(math.Ceil(d.Norm() / resolution))
	poses := []Pose{a}
	for i := 1; i <= steps; i++ {
		t := float64(i) / float64(steps)
		poses = append(poses, Pose{Point: a.Point.Add(d.Mul(t)), Quat: b.Quat})
	}
	if steps == 0 {
		poses = append(poses, b)
	}
	return poses
}

// PlanApproach plans the arm from an approach pose to the grasp configuration
// it currently holds. It returns the arm path and, on failure, the reason.
func PlanApproach(w *World, approachPose Pose, obstacles []Obstacle, attachments []*Attachment) ([][]float64, string) {
	cfg := w.cfg
	arm := w.ArmGroup()
	graspConf := w.CurrentConf(arm).Values()

	if _, ok := w.SolveIK(approachPose, cfg.NearbyApproach); !ok {
		return nil, reasonPregraspKinematic
	}
	if cfg.Collisions && w.CollidesAny(w.ArmObstacle(), obstacles) {
		return nil, reasonPregraspCollision
	}
	approachConf := w.CurrentConf(arm).Values()
	if cfg.Teleport {
		return [][]float64{w.robot.CarryConf, approachConf, graspConf}, ""
	}
	if Distance(graspConf, approachConf) > cfg.MaxConfDistance {
		return nil, reasonPregraspProximity
	}
	graspPath, ok := w.gw.PlanMotion(MotionRequest{
		Group:          arm,
		Target:         graspConf,
		Obstacles:      motionObstacles(w, obstacles),
		Attachments:    attachments,
		Resolution:     cfg.ArmResolution / 4,
		Direct:         true,
		SelfCollisions: cfg.SelfCollisions,
	})
	if !ok {
		return nil, reasonPregraspPath
	}
	if cfg.MoveArm {
		return graspPath, ""
	}
	w.Assign(w.CarryConf())
	approachPath, ok := w.gw.PlanMotion(MotionRequest{
		Group:          arm,
		Target:         approachConf,
		Obstacles:      motionObstacles(w, obstacles),
		Attachments:    attachments,
		Resolution:     cfg.ArmResolution,
		SelfCollisions: cfg.SelfCollisions,
	})
	if !ok {
		return nil, reasonApproachPath
	}
	return append(approachPath, graspPath...), ""
}

func motionObstacles(w *World, obstacles []Obstacle) []Obstacle {
	if !w.cfg.Collisions {
		return nil
	}
	return obstacles
}

// approachConf is the arm configuration a pick, pull or press starts from.
func approachConf(w *World, path [][]float64) *Conf {
	if w.cfg.MoveArm {
		return NewConf(w.ArmGroup(), path[0])
	}
	return w.CarryConf()
}

// surfaceAttachment binds obj to the link of the surface it rests on.
func surfaceAttachment(w *World, obj, surface string) *Attachment {
	s, _ := w.surface(surface)
	parent := w.gw.LinkPose(w.scene.Kitchen, s.Link)
	return &Attachment{
		Parent:          w.scene.Kitchen,
		ParentLink:      s.Link,
		Child:           obj,
		ParentFromChild: Multiply(Invert(parent), w.gw.Pose(obj)),
	}
}

// gripperTrajectory is the finger path from gq1 to gq2.
func gripperTrajectory(w *World, gq1, gq2 *Conf) Trajectory {
	path := [][]float64{gq1.Values()}
	if w.cfg.Teleport {
		path = append(path, gq2.Values())
	} else {
		path = append(path, w.gw.Interpolate(gq1.group, gq1.values, gq2.values, w.cfg.GripperResolution)...)
	}
	return Trajectory{Group: gq1.group, Path: path}
}

type pickAttempt struct {
	verdict
	obj       string
	pose      *RelPose
	grasp     *Grasp
	base      *Conf
	obstacles []Obstacle
	randomize bool

	worldFromBody Pose
	robotSaver    *Snapshot
	objSaver      *Snapshot
	path          [][]float64
	approach      *Conf
	sequence      *Sequence
}

func newPickCertifier(w *World, stream string) *certifier[*pickAttempt] {
	return newCertifier[*pickAttempt](w, stream,
		step("assign", func(_ context.Context, a *pickAttempt) {
			w.Assign(a.pose, a.base)
			w.OpenGripper()
			a.robotSaver = w.SaveBodies(w.robot.Body)
			a.objSaver = w.SaveBodies(a.obj)
		}),
		step("seed", func(_ context.Context, a *pickAttempt) {
			seedArm(w, a.randomize)
		}),
		newStage("grasp-ik", reasonKinematic, func(_ context.Context, a *pickAttempt) bool {
			a.worldFromBody = a.pose.WorldFromBody(w)
			_, ok := w.SolveIK(Multiply(a.worldFromBody, Invert(a.grasp.GraspPose)), math.Inf(1))
			return ok
		}),
		newStage("grasp-collision", reasonCollision, func(_ context.Context, a *pickAttempt) bool {
			return !w.cfg.Collisions || !w.CollidesAny(w.ArmObstacle(), a.obstacles)
		}),
		newStage("approach", reasonApproachPath, func(_ context.Context, a *pickAttempt) bool {
			path, reason := PlanApproach(w, Multiply(a.worldFromBody, Invert(a.grasp.PregraspPose)), a.obstacles, nil)
			if path == nil {
				a.reject(reason)
				return false
			}
			a.path = path
			return true
		}),
		step("sequence", func(_ context.Context, a *pickAttempt) {
			a.approach = approachConf(w, a.path)
			attachment := surfaceAttachment(w, a.obj, a.pose.Support)
			arm := Trajectory{Group: w.ArmGroup(), Path: a.path}
			fingers := gripperTrajectory(w, w.OpenGripperConf(), a.grasp.GripperConf(w))
			state := NewState([]*Snapshot{a.robotSaver, a.objSaver}, attachment)
			a.sequence = NewSequence("pick", state,
				&Approach{Trajectory: arm},
				&Move{Trajectory: fingers},
				&Detach{Parent: attachment.Parent, ParentLink: attachment.ParentLink, Child: attachment.Child},
				AttachGripper(w, a.grasp),
				&Approach{Trajectory: arm.Reverse()},
			)
		}),
	)
}

func pickObstacles(w *World, pose *RelPose) []Obstacle {
	return union(w.StaticObstacles(), w.SurfaceObstacles(pose.Support))
}

// PlanPick certifies one pick of obj at pose with grasp from base.
func PlanPick(ctx context.Context, w *World, obj string, pose *RelPose, grasp *Grasp, base *Conf) (*PickResult, bool) {
	a := &pickAttempt{obj: obj, pose: pose, grasp: grasp, base: base, obstacles: pickObstacles(w, pose), randomize: randomizeSeed(w)}
	if !newPickCertifier(w, "plan-pick").run(ctx, a) {
		return nil, false
	}
	return &PickResult{Base: base, Approach: a.approach, Sequence: a.sequence}, true
}

func validatePick(w *World, obj string, pose *RelPose, grasp *Grasp) error {
	if !w.IsMovable(obj) {
		return fmt.Errorf("pick %s: %w", obj, ErrUnknownObject)
	}
	if pose == nil || grasp == nil || grasp.Object != obj {
		return fmt.Errorf("%w: pick %s needs a pose and a grasp of the same object", ErrContract, obj)
	}
	if !w.IsSurface(pose.Support) {
		return fmt.Errorf("pick %s: %w: %q", obj, ErrUnknownSurface, pose.Support)
	}
	return nil
}

// PickGen samples bases from which obj can be picked at pose with grasp.
// Bases come from learned place-base transforms or an annulus around the
// gripper. An init pose is retried indefinitely; any other pose ends the
// stream after one exhausted round.
func PickGen(w *World, db Database, obj string, pose *RelPose, grasp *Grasp) Generator[*PickResult] {
	const stream = "inverse-kinematics"
	if err := validatePick(w, obj, pose, grasp); err != nil {
		return Failed[*PickResult](err)
	}
	obstacles := pickObstacles(w, pose)
	cert := newPickCertifier(w, stream)

	var composed Generator[Pair[*Conf, *pickAttempt]]
	return Stream(func(ctx context.Context) Result[*PickResult] {
		if composed == nil {
			if !IsApproachSafe(w, pose, grasp, obstacles) {
				return Done[*PickResult]()
			}
			bases, err := pickBases(ctx, w, db, pose, grasp)
			if err != nil {
				return Fail[*PickResult](err)
			}
			composed = Compose(InverseReachability(w, bases, obstacles),
				func(ctx context.Context, bq *Conf) (*pickAttempt, bool) {
					a := &pickAttempt{obj: obj, pose: pose, grasp: grasp, base: bq, obstacles: obstacles, randomize: randomizeSeed(w)}
					return a, cert.run(ctx, a)
				},
				composeOptions(w, stream, w.cfg.Attempts.Pick, exhaustFor(pose)),
			)
		}
		return pickResult(composed.Next(ctx))
	})
}

func pickBases(ctx context.Context, w *World, db Database, pose *RelPose, grasp *Grasp) (Generator[[]float64], error) {
	snap := w.Save()
	gripperPose := Multiply(pose.WorldFromBody(w), Invert(grasp.GraspPose))
	snap.Restore()
	if !w.cfg.Learned {
		return UniformPoseGenerator(w, gripperPose), nil
	}
	poses, err := db.PlaceBasePoses(ctx, w.robot.Name, pose.Support, grasp.GraspType)
	if err != nil {
		return nil, err
	}
	return LearnedBaseGenerator(gripperPose, poses), nil
}

func pickResult(r Result[Pair[*Conf, *pickAttempt]]) Result[*PickResult] {
	switch r.Outcome() {
	case OutcomeValue:
		p, _ := r.Get()
		return Value(&PickResult{Base: p.Outer, Approach: p.Inner.approach, Sequence: p.Inner.sequence})
	case OutcomeRetry:
		return Retry[*PickResult]()
	}
	return Fail[*PickResult](r.Err())
}

func composeOptions(w *World, name string, attempts int, exhaust ExhaustPolicy) ComposeOptions {
	return ComposeOptions{
		Name:         name,
		MaxAttempts:  attempts,
		MaxSuccesses: w.cfg.MaxSuccesses,
		MaxFailures:  w.cfg.MaxFailures,
		Exhaust:      exhaust,
	}
}

// FixedPickGen certifies picks of obj at pose with grasp from a fixed base.
func FixedPickGen(w *World, obj string, pose *RelPose, grasp *Grasp, bq *Conf) Generator[*PickResult] {
	const stream = "fixed-inverse-kinematics"
	if err := validatePick(w, obj, pose, grasp); err != nil {
		return Failed[*PickResult](err)
	}
	obstacles := pickObstacles(w, pose)
	cert := newPickCertifier(w, stream)

	var composed Generator[Pair[*Conf, *pickAttempt]]
	return Stream(func(ctx context.Context) Result[*PickResult] {
		if composed == nil {
			if !IsApproachSafe(w, pose, grasp, obstacles) {
				return Done[*PickResult]()
			}
			composed = Compose(Repeat(func() *Conf { return bq }),
				func(ctx context.Context, bq *Conf) (*pickAttempt, bool) {
					a := &pickAttempt{obj: obj, pose: pose, grasp: grasp, base: bq, obstacles: obstacles, randomize: randomizeSeed(w)}
					return a, cert.run(ctx, a)
				},
				composeOptions(w, stream, w.cfg.Attempts.FixedPick, exhaustFor(pose)),
			)
		}
		return pickResult(composed.Next(ctx))
	})
}
