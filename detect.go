package replan

import (
	"context"
	"fmt"
	"math"
	"slices"

	"github.com/golang/geo/r3"
	"github.com/zoobzio/capitan"
)

// ComputeDetect returns a detection of obj at pose from the first camera
// that sees every view point. In ray-traced mode the static obstacles must
// not block the rays once the occluders are moved away.
func ComputeDetect(ctx context.Context, w *World, obj string, pose *RelPose) (*Detect, bool) {
	if pose == nil {
		return nil, false
	}
	return computeDetect(ctx, w, obj, pose, w.cfg.RayTrace)
}

func computeDetect(ctx context.Context, w *World, obj string, pose *RelPose, rayTrace bool) (*Detect, bool) {
	snap := w.Save()
	defer snap.Restore()
	w.OpenSurfaceJoints(pose.Support)
	pose.Assign(w)
	points := viewPoints(w, obj, w.cfg.DetectScale)

	for _, camera := range w.scene.Cameras {
		if !allVisible(camera, points) {
			capitan.Emit(ctx, DetectionRejected,
				FieldObject.Field(obj),
				FieldCamera.Field(camera.Name),
				FieldReason.Field("frustum"),
			)
			continue
		}
		rays := make([]Ray, len(points))
		for i, p := range points {
			rays[i] = Ray{Start: camera.Pose.Point, End: p}
		}
		detect := &Detect{Camera: camera.Name, Object: obj, Pose: pose, Rays: rays}
		if rayTrace {
			MoveOccluding(w)
			w.OpenSurfaceJoints(pose.Support)
			pose.Assign(w)
			if overlapping(w.StaticObstacles(), detect.Occluding(w)) {
				capitan.Emit(ctx, DetectionRejected,
					FieldObject.Field(obj),
					FieldCamera.Field(camera.Name),
					FieldReason.Field("occluded"),
				)
				continue
			}
		}
		return detect, true
	}
	return nil, false
}

// viewPoints are the top face corners of obj's AABB shrunk by scale around
// the center, followed by the object origin.
func viewPoints(w *World, obj string, scale float64) []r3.Vector {
	box := w.gw.AABB(Obstacle{Body: obj})
	center := box.Center()
	half := box.Extent().Mul(scale / 2)
	points := make([]r3.Vector, 0, 5)
	for _, sx := range [...]float64{-1, 1} {
		for _, sy := range [...]float64{-1, 1} {
			points = append(points, r3.Vector{X: center.X + sx*half.X, Y: center.Y + sy*half.Y, Z: box.Upper.Z})
		}
	}
	return append(points, w.gw.Pose(obj).Point)
}

func allVisible(camera CameraSpec, points []r3.Vector) bool {
	cameraFromWorld := Invert(camera.Pose)
	for _, p := range points {
		if !isVisiblePoint(camera, cameraFromWorld.Apply(p)) {
			return false
		}
	}
	return true
}

// isVisiblePoint reports whether a camera-frame point lies in the frustum.
func isVisiblePoint(camera CameraSpec, p r3.Vector) bool {
	if p.Z <= 0 || p.Z > camera.Depth {
		return false
	}
	return math.Abs(math.Atan2(p.X, p.Z)) <= camera.HalfFOV && math.Abs(math.Atan2(p.Y, p.Z)) <= camera.HalfFOV
}

// overlapping reports whether any obstacle in a shares a body and a link with
// one in b. An obstacle without links covers the whole body.
func overlapping(a, b []Obstacle) bool {
	for _, x := range a {
		for _, y := range b {
			if x.Body != y.Body {
				continue
			}
			if len(x.Links) == 0 || len(y.Links) == 0 {
				return true
			}
			for _, link := range x.Links {
				if slices.Contains(y.Links, link) {
					return true
				}
			}
		}
	}
	return false
}

// MoveOccluding clears the scene for a visibility check. The robot is
// parked, drawers are opened, other doors are closed and movables are
// dropped below the floor.
func MoveOccluding(w *World) {
	w.ParkRobot()
	for joint, d := range w.scene.Doors {
		if d.Drawer {
			w.OpenDoor(joint)
		} else {
			w.CloseDoor(joint)
		}
	}
	w.HideMovable()
}

// OFreeRayPoseTest reports whether obj at pose leaves detect's rays clear.
func OFreeRayPoseTest(w *World, detect *Detect, obj string, pose PoseValue) bool {
	if detect.Object == obj {
		return true
	}
	rp, ok := pose.(*RelPose)
	if !ok {
		return true
	}
	snap := w.Save()
	defer snap.Restore()
	MoveOccluding(w)
	detect.Pose.Assign(w)
	rp.Assign(w)
	obstacles := w.LinkObstacles(obj)
	if w.CollidesAny(Obstacle{Body: detect.Object}, obstacles) {
		return false
	}
	return !overlapping(obstacles, detect.Occluding(w))
}

// OFreeRayGraspTest reports whether the robot at bq and aq, holding obj with
// grasp, leaves detect's rays clear. An empty obj checks the robot itself.
func OFreeRayGraspTest(w *World, detect *Detect, bq, aq *Conf, obj string, grasp *Grasp) bool {
	if detect.Object == obj {
		return true
	}
	snap := w.Save()
	defer snap.Restore()
	MoveOccluding(w)
	w.Assign(bq, aq)
	detect.Pose.Assign(w)
	obstacles := []Obstacle{w.RobotObstacle()}
	if obj != "" {
		grasp.Assign(w)
		obstacles = w.LinkObstacles(obj)
	}
	return !overlapping(obstacles, detect.Occluding(w))
}

// SampleBeliefGen proposes observations of obj among the hypotheses of dist
// that are affordable and visible. Depending on the configuration it yields
// only the most likely one, all of them by descending mass, or weighted draws
// without replacement. It is Done once no hypothesis is left.
func SampleBeliefGen(w *World, obj string, dist *SurfaceDist, surface string) Generator[Observation] {
	if dist == nil || dist.Body != obj {
		return Failed[Observation](fmt.Errorf("%w: belief for %s does not match", ErrContract, obj))
	}
	var inner Generator[*RelPose]
	return Stream(func(ctx context.Context) Result[Observation] {
		if inner == nil {
			inner = beliefCandidates(ctx, w, obj, dist)
		}
		r := inner.Next(ctx)
		rp, ok := r.Get()
		if !ok {
			return Fail[Observation](r.Err())
		}
		capitan.Emit(ctx, StreamYielded,
			FieldStream.Field("sample-belief"),
			FieldObject.Field(obj),
			FieldSurface.Field(surface),
			FieldProbability.Field(formatFloat(dist.Prob(rp))),
		)
		return Value(Observation{Object: obj, Pose: rp})
	})
}

func beliefCandidates(ctx context.Context, w *World, obj string, dist *SurfaceDist) Generator[*RelPose] {
	var valid []*RelPose
	var weights []float64
	for _, rp := range dist.Dist.Support() {
		if DetectCostFn(dist, rp) >= MaxCost {
			continue
		}
		if _, ok := computeDetect(ctx, w, obj, rp, false); ok {
			valid = append(valid, rp)
			weights = append(weights, dist.Prob(rp))
		}
	}
	candidates := NewDDist(valid, weights)
	switch {
	case candidates.Len() == 0:
		return Empty[*RelPose]()
	case w.cfg.MLOOnly:
		rp, _ := candidates.MLE()
		return FromSlice([]*RelPose{rp})
	case w.cfg.Ordered:
		return FromSlice(candidates.SortedSupport())
	}
	return candidates.WithoutReplacement(w.rng)
}

// UpdateBelief accepts the observed hypothesis outright: obj's distribution
// in b becomes a delta on obs. It returns the observed pose.
func UpdateBelief(ctx context.Context, b *Belief, obj string, dist *SurfaceDist, surface string, obs Observation) (*RelPose, error) {
	if obs.Object != obj || obs.Pose == nil {
		return nil, fmt.Errorf("%w: observation of %q does not match %s", ErrContract, obs.Object, obj)
	}
	prior := 0.0
	if dist != nil {
		prior = dist.Prob(obs.Pose)
	}
	if b != nil {
		b.Update(obs)
	}
	capitan.Emit(ctx, BeliefUpdated,
		FieldObject.Field(obj),
		FieldSurface.Field(surface),
		FieldProbability.Field(formatFloat(prior)),
		FieldPlaceholder.Field("true"),
	)
	return obs.Pose, nil
}
