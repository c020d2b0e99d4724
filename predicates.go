package replan

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/golang/geo/r2"
)

// Door statuses understood by DoorTest.
const (
	DoorOpen   = "open"
	DoorClosed = "closed"
)

// certify runs check against a saved world. It is trivially true when
// collisions are disabled or any pose is a distribution, and false when a
// pose is missing.
func certify(w *World, check func() bool, poses ...PoseValue) bool {
	if slices.ContainsFunc(poses, absent) {
		return false
	}
	if !w.cfg.Collisions {
		return true
	}
	if _, ok := concrete(poses...); !ok {
		return true
	}
	snap := w.Save()
	defer snap.Restore()
	return check()
}

// DoorTest reports whether joint at conf counts as status. The thresholds are
// blended towards the other extreme by DoorErrorPercent.
func DoorTest(w *World, joint string, conf *Conf, status string) (bool, error) {
	if !w.IsDoor(joint) {
		return false, fmt.Errorf("door test: %w: %s", ErrUnknownJoint, joint)
	}
	if err := checkGroup(conf, w.DoorGroup(joint)); err != nil {
		return false, fmt.Errorf("door test: %w", err)
	}
	e := w.cfg.DoorErrorPercent
	sign := w.DoorSign(joint)
	open, closed := w.OpenConf(joint).Value(0), w.ClosedConf(joint).Value(0)
	position := sign * conf.Value(0)
	switch status {
	case DoorOpen:
		return sign*(e*closed+(1-e)*open) <= position, nil
	case DoorClosed:
		return position <= sign*((1-e)*closed+e*open), nil
	}
	return false, fmt.Errorf("%w: unknown door status %q", ErrContract, status)
}

// GripperOpenTest reports whether every finger is at least nearly open.
func GripperOpenTest(w *World, gq *Conf) (bool, error) {
	if err := checkGroup(gq, w.GripperGroup()); err != nil {
		return false, fmt.Errorf("gripper test: %w", err)
	}
	e := w.cfg.GripperErrorPercent
	for i, v := range gq.values {
		if v < e*w.robot.ClosedGripper[i]+(1-e)*w.robot.OpenGripper[i] {
			return false, nil
		}
	}
	return true, nil
}

// CFreePosePose reports whether o1 at rp1 and o2 at rp2 are apart.
func CFreePosePose(w *World, o1 string, rp1 PoseValue, o2 string, rp2 PoseValue) bool {
	if o1 == o2 {
		return true
	}
	return certify(w, func() bool {
		rp1.(*RelPose).Assign(w)
		rp2.(*RelPose).Assign(w)
		return !w.Collides(Obstacle{Body: o1}, Obstacle{Body: o2})
	}, rp1, rp2)
}

// CFreeWorldPose reports whether o1 at wp1 clears the static obstacles. Only
// poses inside drawers are checked.
func CFreeWorldPose(w *World, o1 string, wp1 PoseValue) bool {
	if absent(wp1) {
		return false
	}
	if w.scene.Surfaces[support(wp1)].Drawer == "" {
		return true
	}
	return certify(w, func() bool {
		wp1.(*RelPose).Assign(w)
		return !w.CollidesAny(Obstacle{Body: o1}, w.StaticObstacles())
	}, wp1)
}

// CFreeWorldPoseWorldPose reports whether o1 at wp1 clears the links around
// surface o2. o1 resting on o2 is always free.
func CFreeWorldPoseWorldPose(w *World, o1 string, wp1 PoseValue, o2 string, wp2 PoseValue) bool {
	if o1 == o2 || support(wp1) == o2 {
		return true
	}
	return certify(w, func() bool {
		wp1.(*RelPose).Assign(w)
		wp2.(*RelPose).Assign(w)
		return !w.CollidesAny(Obstacle{Body: o1}, w.SurfaceObstacles(o2))
	}, wp1, wp2)
}

// CFreeBConfPose reports whether the robot at bq, holding carry, clears o2 at wp2.
func CFreeBConfPose(w *World, bq *Conf, o2 string, wp2 PoseValue) bool {
	return certify(w, func() bool {
		w.Assign(bq, w.CarryConf())
		wp2.(*RelPose).Assign(w)
		return !w.CollidesAny(w.RobotObstacle(), w.LinkObstacles(o2))
	}, wp2)
}

// CFreeApproachPose reports whether the free gripper and o1 stay clear of o2
// at wp2 along the approach of grasp g1 at wp1.
func CFreeApproachPose(w *World, o1 string, wp1 PoseValue, g1 *Grasp, o2 string, wp2 PoseValue) bool {
	if o1 == o2 || support(wp1) == o2 {
		return true
	}
	return certify(w, func() bool {
		wp2.(*RelPose).Assign(w)
		obstacles := w.LinkObstacles(o2)
		if len(obstacles) == 0 {
			return true
		}
		for range approachToolPoses(w, wp1.(*RelPose), g1, true) {
			if w.CollidesAny(w.GripperObstacle(), obstacles) || w.CollidesAny(Obstacle{Body: o1}, obstacles) {
				return false
			}
		}
		return true
	}, wp1, wp2)
}

// CFreeAngleAngle reports whether a door path from a1 to a2 exists around o2
// at wp. Objects moved by j1 are ignored.
func CFreeAngleAngle(w *World, j1 string, a1, a2 *Conf, o2 string, wp PoseValue) bool {
	if movedBy(w, o2, j1) {
		return true
	}
	return certify(w, func() bool {
		wp.(*RelPose).Assign(w)
		if w.robot.Gripper != "" {
			w.gw.SetJointPositions(w.robot.Gripper, w.gw.Joints(w.robot.Gripper), w.robot.OpenGripper)
		}
		return len(ComputeDoorPaths(w, j1, a1, a2, w.LinkObstacles(o2))) > 0
	}, wp)
}

// movedBy reports whether name is a link, surface or joint carried by joint.
func movedBy(w *World, name, joint string) bool {
	if name == joint || strings.Contains(joint, name) {
		return true
	}
	if s, ok := w.scene.Surfaces[name]; ok && s.Drawer == joint {
		return true
	}
	d, ok := w.scene.Doors[joint]
	if !ok {
		return false
	}
	if k, ok := w.scene.Knobs[name]; ok {
		return slices.Contains(d.Links, k.Link)
	}
	return false
}

// CFreeTrajPose replays seq from its context and reports whether the robot
// stays clear of o at p. Whole bodies the sequence moves are not obstacles;
// links of a moved body still are.
func CFreeTrajPose(w *World, seq *Sequence, o string, p PoseValue) bool {
	return certify(w, func() bool {
		p.(*RelPose).Assign(w)
		state := seq.Context.Copy()
		state.Assign(w)
		obstacles := withoutBodies(w.LinkObstacles(o), seq.Bodies()...)
		if len(obstacles) == 0 {
			return true
		}
		robot := w.RobotObstacle()
		for _, cmd := range seq.Commands {
			for range cmd.Iterate(w, state) {
				state.Derive(w)
				if w.CollidesAny(robot, obstacles) {
					return false
				}
			}
		}
		return true
	}, p)
}

// NearPoseTest screens base configurations against learned reachability.
//
// For objects, the object point in the base frame must fall inside the grown
// hull of the forward placements. For surfaces, the base point in the surface
// frame must fall inside the grown hull of the inverse placements. Hulls are
// loaded once and cached.
type NearPoseTest struct {
	w    *World
	db   Database
	grow float64

	mu       sync.Mutex
	forward  []r2.Point
	loaded   bool
	surfaces map[string][]r2.Point
}

// NewNearPoseTest creates a test reading hulls from db. The forward hull is
// grown by GrowForwardRadius.
func NewNearPoseTest(w *World, db Database) *NearPoseTest {
	return NewNearPoseTestGrow(w, db, w.cfg.GrowForwardRadius)
}

// NewNearPoseTestGrow is NewNearPoseTest with the forward hull grown by grow.
func NewNearPoseTestGrow(w *World, db Database, grow float64) *NearPoseTest {
	return &NearPoseTest{w: w, db: db, grow: grow, surfaces: make(map[string][]r2.Point)}
}

// Test reports whether bq is near obj at pose.
func (t *NearPoseTest) Test(ctx context.Context, obj string, pose PoseValue, bq *Conf) (bool, error) {
	rp, ok := pose.(*RelPose)
	if !ok {
		return true, nil
	}
	w := t.w
	if w.IsSurface(obj) {
		hull, err := t.surfaceHull(ctx, obj)
		if err != nil || len(hull) == 0 {
			return false, err
		}
		snap := w.Save()
		defer snap.Restore()
		w.Assign(bq, rp)
		surfaceFromBase := Multiply(Invert(w.SurfacePose(obj)), w.BasePose())
		return PointInPolygon(planar(surfaceFromBase.Point), hull), nil
	}
	hull, err := t.forwardHull(ctx)
	if err != nil || len(hull) == 0 {
		return false, err
	}
	snap := w.Save()
	defer snap.Restore()
	w.Assign(bq)
	baseFromObject := Multiply(Invert(w.BasePose()), rp.WorldFromBody(w))
	return PointInPolygon(planar(baseFromObject.Point), hull), nil
}

func (t *NearPoseTest) forwardHull(ctx context.Context) ([]r2.Point, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.loaded {
		return t.forward, nil
	}
	poses, err := t.db.ForwardPlacements(ctx, t.w.robot.Name)
	if err != nil {
		return nil, err
	}
	t.forward, t.loaded = growHull(poses, t.grow), true
	return t.forward, nil
}

func (t *NearPoseTest) surfaceHull(ctx context.Context, surface string) ([]r2.Point, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if hull, ok := t.surfaces[surface]; ok {
		return hull, nil
	}
	poses, err := t.db.InversePlacements(ctx, t.w.robot.Name, surface)
	if err != nil {
		return nil, err
	}
	hull := growHull(poses, t.w.cfg.GrowInverseBase)
	t.surfaces[surface] = hull
	return hull, nil
}

func growHull(poses []Pose, radius float64) []r2.Point {
	if len(poses) == 0 {
		return nil
	}
	points := make([]r2.Point, len(poses))
	for i, p := range poses {
		points[i] = planar(p.Point)
	}
	return GrowPolygon(points, radius)
}

// NearJointTest screens base configurations against the learned pull bases
// of a joint. Knobs always pass.
type NearJointTest struct {
	w  *World
	db Database

	mu     sync.Mutex
	joints map[string][]r2.Point
}

// NewNearJointTest creates a test reading pull bases from db.
func NewNearJointTest(w *World, db Database) *NearJointTest {
	return &NearJointTest{w: w, db: db, joints: make(map[string][]r2.Point)}
}

// Test reports whether bq is near joint.
func (t *NearJointTest) Test(ctx context.Context, joint string, bq *Conf) (bool, error) {
	w := t.w
	if w.IsKnob(joint) {
		return true, nil
	}
	if !w.IsDoor(joint) {
		return false, fmt.Errorf("near joint: %w: %s", ErrUnknownJoint, joint)
	}
	hull, err := t.hull(ctx, joint)
	if err != nil || len(hull) == 0 {
		return false, err
	}
	snap := w.SaveBodies(w.robot.Body)
	defer snap.Restore()
	w.Assign(bq)
	return PointInPolygon(planar(w.BasePose().Point), hull), nil
}

func (t *NearJointTest) hull(ctx context.Context, joint string) ([]r2.Point, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if hull, ok := t.joints[joint]; ok {
		return hull, nil
	}
	poses, err := t.db.PullBasePoses(ctx, t.w.robot.Name, joint)
	if err != nil {
		return nil, err
	}
	hull := growHull(poses, t.w.cfg.GrowInverseBase)
	t.joints[joint] = hull
	return hull, nil
}
