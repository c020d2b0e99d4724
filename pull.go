package replan

import (
	"context"
	"fmt"
	"math"
)

// PullResult is one certified door motion at a base configuration.
type PullResult struct {
	Base      *Conf
	Approach1 *Conf
	Approach2 *Conf
	Sequence  *Sequence
}

// IsPullSafe reports whether the robot clears the links moved by joint at
// both ends of the door path.
func IsPullSafe(w *World, joint string, plan DoorPath) bool {
	if !w.cfg.Collisions {
		return true
	}
	snap := w.SaveBodies(w.scene.Kitchen)
	defer snap.Restore()
	group := w.DoorGroup(joint)
	obstacles := w.DescendantObstacles(joint)
	for _, q := range [][]float64{plan.JointPath[0], plan.JointPath[len(plan.JointPath)-1]} {
		w.gw.SetJointPositions(group.Body, group.Joints, q)
		if w.CollidesAny(w.RobotObstacle(), obstacles) {
			return false
		}
	}
	return true
}

type pullAttempt struct {
	verdict
	joint     string
	plan      DoorPath
	base      *Conf
	obstacles []Obstacle
	randomize bool

	robotSaver *Snapshot
	armPath    [][]float64
	approaches [2][][]float64
	result     *PullResult
}

func newPullCertifier(w *World, stream string) *certifier[*pullAttempt] {
	return newCertifier[*pullAttempt](w, stream,
		step("assign", func(_ context.Context, a *pullAttempt) {
			w.Assign(a.base)
			w.OpenGripper()
			w.Assign(w.CarryConf())
			a.robotSaver = w.SaveBodies(w.robot.Body)
		}),
		newStage("pull-safe", reasonDoorUnsafe, func(_ context.Context, a *pullAttempt) bool {
			return IsPullSafe(w, a.joint, a.plan)
		}),
		step("seed", func(_ context.Context, a *pullAttempt) {
			seedArm(w, a.randomize)
		}),
		newStage("door-ik", reasonKinematic, func(_ context.Context, a *pullAttempt) bool {
			return planArmPath(w, a)
		}),
		newStage("approach", reasonApproachPath, func(_ context.Context, a *pullAttempt) bool {
			door := w.DoorGroup(a.joint)
			for i, index := range [2]int{0, len(a.armPath) - 1} {
				w.gw.SetJointPositions(door.Body, door.Joints, a.plan.JointPath[index])
				w.gw.SetJointPositions(w.robot.Body, w.robot.ArmJoints, a.armPath[index])
				toolPose := Multiply(a.plan.HandlePath[index], Invert(a.plan.Handle.Pregrasp))
				path, reason := PlanApproach(w, toolPose, a.obstacles, nil)
				if path == nil {
					a.reject(reason)
					return false
				}
				a.approaches[i] = path
			}
			return true
		}),
		step("sequence", func(_ context.Context, a *pullAttempt) {
			a.result = pullSequence(w, a)
		}),
	)
}

// planArmPath solves the arm along the tool path while the door follows.
// Consecutive solutions must stay within NearbyPull of each other.
func planArmPath(w *World, a *pullAttempt) bool {
	door := w.DoorGroup(a.joint)
	a.armPath = a.armPath[:0]
	for i, toolPose := range a.plan.ToolPath {
		w.gw.SetJointPositions(door.Body, door.Joints, a.plan.JointPath[i])
		tolerance := w.cfg.NearbyPull
		if i == 0 {
			tolerance = math.Inf(1)
		}
		conf, ok := w.SolveIK(toolPose, tolerance)
		if !ok {
			return false
		}
		if w.cfg.Collisions && w.CollidesAny(w.ArmObstacle(), a.obstacles) {
			a.reject(reasonCollision)
			return false
		}
		values := conf.Values()
		if n := len(a.armPath); n > 0 && !w.cfg.Teleport {
			if Distance(a.armPath[n-1], values) > w.cfg.MaxConfDistance {
				a.reject(reasonProximity)
				return false
			}
		}
		a.armPath = append(a.armPath, values)
	}
	return true
}

func pullSequence(w *World, a *pullAttempt) *PullResult {
	door := w.DoorGroup(a.joint)
	aq1 := approachConf(w, a.approaches[0])
	aq2 := approachConf(w, a.approaches[1])

	w.gw.SetJointPositions(door.Body, door.Joints, a.plan.JointPath[0])
	w.gw.SetJointPositions(w.robot.Body, w.robot.ArmJoints, a.armPath[0])
	width := closeUntilCollision(w, w.GripperGroup(),
		Obstacle{Body: w.robot.Body, Links: w.robot.GripperLinks},
		w.robot.OpenGripper, w.robot.ClosedGripper,
		Obstacle{Body: w.scene.Kitchen, Links: []string{a.plan.Handle.Link}},
	)
	closed := make([]float64, len(w.robot.GripperJoints))
	for i := range closed {
		closed[i] = width
	}
	fingers := &Move{Trajectory: gripperTrajectory(w, w.OpenGripperConf(), NewConf(w.GripperGroup(), closed))}

	arm := w.ArmGroup()
	commands := []Command{
		&Approach{Trajectory: Trajectory{Group: arm, Path: a.approaches[0]}},
		&DoorMove{
			Arm:  Trajectory{Group: arm, Path: a.armPath},
			Door: Trajectory{Group: door, Path: a.plan.JointPath},
		},
		&Approach{Trajectory: Trajectory{Group: arm, Path: a.approaches[1]}.Reverse()},
	}
	if a.plan.Pulling() {
		commands = []Command{commands[0], fingers, commands[1], fingers.Reverse(), commands[2]}
	}
	return &PullResult{
		Base:      a.base,
		Approach1: aq1,
		Approach2: aq2,
		Sequence:  NewSequence("pull", NewState([]*Snapshot{a.robotSaver}), commands...),
	}
}

func pullObstacles(w *World, joint string) []Obstacle {
	return union(w.StaticObstacles(), w.DescendantObstacles(joint))
}

// PlanPull certifies one door motion along plan from base.
func PlanPull(ctx context.Context, w *World, joint string, plan DoorPath, base *Conf) (*PullResult, bool) {
	a := &pullAttempt{joint: joint, plan: plan, base: base, obstacles: pullObstacles(w, joint), randomize: randomizeSeed(w)}
	if !newPullCertifier(w, "plan-pull").run(ctx, a) {
		return nil, false
	}
	return a.result, true
}

func validatePull(w *World, joint string, c1, c2 *Conf) error {
	if !w.IsDoor(joint) {
		return fmt.Errorf("pull: %w: %s", ErrUnknownJoint, joint)
	}
	if c1 == nil || c2 == nil || !c1.Group().Equal(w.DoorGroup(joint)) || !c2.Group().Equal(w.DoorGroup(joint)) {
		return fmt.Errorf("%w: pull %s needs two configurations of the joint", ErrContract, joint)
	}
	return nil
}

// PullGen samples bases from which joint can be moved from c1 to c2.
func PullGen(w *World, db Database, joint string, c1, c2 *Conf) Generator[*PullResult] {
	const stream = "plan-pull"
	if err := validatePull(w, joint, c1, c2); err != nil {
		return Failed[*PullResult](err)
	}
	if c1.Equal(c2, 0) {
		return Empty[*PullResult]()
	}
	obstacles := pullObstacles(w, joint)
	cert := newPullCertifier(w, stream)

	var composed Generator[Pair[*Conf, *pullAttempt]]
	return Stream(func(ctx context.Context) Result[*PullResult] {
		if composed == nil {
			plans := ComputeDoorPaths(w, joint, c1, c2, w.StaticObstacles())
			if len(plans) == 0 {
				return Done[*PullResult]()
			}
			var bases Generator[[]float64]
			if w.cfg.Learned {
				poses, err := db.PullBasePoses(ctx, w.robot.Name, joint)
				if err != nil {
					return Fail[*PullResult](err)
				}
				bases = PullBaseGenerator(poses)
			} else {
				toolPath := plans[0].ToolPath
				bases = UniformPoseGenerator(w, toolPath[len(toolPath)/2])
			}
			composed = Compose(InverseReachability(w, bases, w.StaticObstacles()),
				func(ctx context.Context, bq *Conf) (*pullAttempt, bool) {
					plan := plans[w.rng.IntN(len(plans))]
					a := &pullAttempt{joint: joint, plan: plan, base: bq, obstacles: obstacles, randomize: randomizeSeed(w)}
					return a, cert.run(ctx, a)
				},
				composeOptions(w, stream, w.cfg.Attempts.Pull, ExhaustRetry),
			)
		}
		return pullResult(composed.Next(ctx))
	})
}

func pullResult(r Result[Pair[*Conf, *pullAttempt]]) Result[*PullResult] {
	switch r.Outcome() {
	case OutcomeValue:
		p, _ := r.Get()
		return Value(p.Inner.result)
	case OutcomeRetry:
		return Retry[*PullResult]()
	}
	return Fail[*PullResult](r.Err())
}

// FixedPullGen certifies door motions from a fixed base. Only door paths
// that are safe at that base are tried.
func FixedPullGen(w *World, joint string, c1, c2, bq *Conf) Generator[*PullResult] {
	const stream = "fixed-plan-pull"
	if err := validatePull(w, joint, c1, c2); err != nil {
		return Failed[*PullResult](err)
	}
	obstacles := pullObstacles(w, joint)
	cert := newPullCertifier(w, stream)

	var composed Generator[Pair[*Conf, *pullAttempt]]
	return Stream(func(ctx context.Context) Result[*PullResult] {
		if composed == nil {
			plans := safeDoorPaths(w, joint, c1, c2, bq, obstacles)
			if len(plans) == 0 {
				return Done[*PullResult]()
			}
			composed = Compose(Repeat(func() *Conf { return bq }),
				func(ctx context.Context, bq *Conf) (*pullAttempt, bool) {
					plan := plans[w.rng.IntN(len(plans))]
					a := &pullAttempt{joint: joint, plan: plan, base: bq, obstacles: obstacles, randomize: randomizeSeed(w)}
					return a, cert.run(ctx, a)
				},
				composeOptions(w, stream, w.cfg.Attempts.FixedPull, ExhaustRetry),
			)
		}
		return pullResult(composed.Next(ctx))
	})
}

// safeDoorPaths keeps the door paths that are safe with the robot at bq.
func safeDoorPaths(w *World, joint string, c1, c2, bq *Conf, obstacles []Obstacle) []DoorPath {
	snap := w.Save()
	defer snap.Restore()
	w.Assign(bq, w.CarryConf())
	var plans []DoorPath
	for _, plan := range ComputeDoorPaths(w, joint, c1, c2, obstacles) {
		if IsPullSafe(w, joint, plan) {
			plans = append(plans, plan)
		}
	}
	return plans
}
