package replan

import (
	"context"
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"github.com/zoobzio/capitan"
)

// Placement tolerances for a resting object.
const (
	placedAboveEpsilon = 1e-2
	placedBelowEpsilon = 1e-9
)

// stableZ returns the height that rests obj's current AABB on top of surface.
func stableZ(w *World, obj string, surface AABB) float64 {
	pose := w.gw.Pose(obj)
	box := w.gw.AABB(Obstacle{Body: obj})
	return surface.Upper.Z + (pose.Point.Z - box.Lower.Z)
}

// isPlacedOn reports whether obj rests on surface within the placement tolerances.
func isPlacedOn(w *World, obj string, surface AABB) bool {
	box := w.gw.AABB(Obstacle{Body: obj})
	if !surface.ContainsXY(box) {
		return false
	}
	return surface.Upper.Z-placedBelowEpsilon <= box.Lower.Z && box.Lower.Z <= surface.Upper.Z+placedAboveEpsilon
}

// TestSupported reports whether obj, at its current pose, is on surface and
// clear of the static and surface obstacles.
func TestSupported(w *World, obj, surface string) bool {
	if !isPlacedOn(w, obj, w.SurfaceAABB(surface)) {
		return false
	}
	if !w.cfg.Collisions {
		return true
	}
	obstacles := union(w.StaticObstacles(), w.SurfaceObstacles(surface))
	return !w.CollidesAny(Obstacle{Body: obj}, obstacles)
}

// CreateRelativePose captures obj's current pose relative to surface's link.
func CreateRelativePose(w *World, obj, surface string) *RelPose {
	s, _ := w.surface(surface)
	surfacePose := w.gw.LinkPose(w.scene.Kitchen, s.Link)
	return &RelPose{
		Body:    obj,
		Support: surface,
		Confs: []Assignable{RelTransform{
			Body:       obj,
			Parent:     w.scene.Kitchen,
			ParentLink: s.Link,
			Value:      Multiply(Invert(surfacePose), w.gw.Pose(obj)),
		}},
	}
}

// StableGen samples placements of obj on surface.
//
// Each round draws up to Attempts.Stable candidates and yields the first one
// that is supported, or Retry. With learned placements and an empty database
// the generator is Done.
func StableGen(w *World, db Database, obj, surface string) Generator[*RelPose] {
	if !w.IsMovable(obj) {
		return Failed[*RelPose](fmt.Errorf("stable %s: %w", obj, ErrUnknownObject))
	}
	if !w.IsSurface(surface) {
		return Failed[*RelPose](fmt.Errorf("stable %s: %w", surface, ErrUnknownSurface))
	}
	var learned []Pose
	loaded := false
	return Stream(func(ctx context.Context) Result[*RelPose] {
		if w.cfg.Learned && !loaded {
			poses, err := db.Placements(ctx, w.robot.Name, surface)
			if err != nil {
				return Fail[*RelPose](err)
			}
			learned, loaded = poses, true
		}
		if w.cfg.Learned && !w.scene.Surfaces[surface].Stove && len(learned) == 0 {
			return Done[*RelPose]()
		}

		snap := w.SaveBodies(obj)
		defer snap.Restore()
		surfaceAABB := w.SurfaceAABB(surface)
		for attempt := 1; attempt <= w.cfg.Attempts.Stable; attempt++ {
			pose, ok := sampleStablePose(w, obj, surface, surfaceAABB, learned)
			if !ok {
				continue
			}
			w.gw.SetPose(obj, pose)
			if TestSupported(w, obj, surface) {
				return Value(CreateRelativePose(w, obj, surface))
			}
			capitan.Emit(ctx, CandidateRejected,
				FieldStream.Field("sample-pose"),
				FieldObject.Field(obj),
				FieldSurface.Field(surface),
				FieldAttempt.Field(attempt),
				FieldReason.Field("unsupported"),
			)
		}
		return Retry[*RelPose]()
	})
}

func sampleStablePose(w *World, obj, surface string, surfaceAABB AABB, learned []Pose) (Pose, bool) {
	cfg := w.cfg
	switch {
	case w.scene.Surfaces[surface].Stove:
		surfacePose := w.SurfacePose(surface)
		theta := -math.Pi + 2*math.Pi*w.rng.Float64()
		w.gw.SetPose(obj, Pose{Point: w.gw.Pose(obj).Point, Quat: QuatFromEuler(Euler{Yaw: theta})})
		z := stableZ(w, obj, surfaceAABB) - surfacePose.Point.Z
		return Multiply(surfacePose, NewPose(r3.Vector{Z: z + cfg.ZOffset}, Euler{Yaw: theta})), true
	case cfg.Learned:
		sampled := Multiply(w.SurfacePose(surface), learned[w.rng.IntN(len(learned))])
		dx, dy := w.rng.NormFloat64()*cfg.PosScale, w.rng.NormFloat64()*cfg.PosScale
		theta := WrapAngle(sampled.Quat.Yaw() + w.rng.NormFloat64()*cfg.RotScale)
		quat := QuatFromEuler(Euler{Yaw: theta})
		w.gw.SetPose(obj, Pose{Point: w.gw.Pose(obj).Point, Quat: quat})
		z := stableZ(w, obj, surfaceAABB)
		return Pose{Point: r3.Vector{X: sampled.Point.X + dx, Y: sampled.Point.Y + dy, Z: z + cfg.ZOffset}, Quat: quat}, true
	}
	return samplePlacementOnAABB(w, obj, surfaceAABB)
}

// samplePlacementOnAABB draws a yaw and a footprint position inside surface.
func samplePlacementOnAABB(w *World, obj string, surface AABB) (Pose, bool) {
	theta := -math.Pi + 2*math.Pi*w.rng.Float64()
	quat := QuatFromEuler(Euler{Yaw: theta})
	w.gw.SetPose(obj, Pose{Point: r3.Vector{}, Quat: quat})
	box := w.gw.AABB(Obstacle{Body: obj})
	lower := surface.Lower.Sub(box.Lower)
	upper := surface.Upper.Sub(box.Upper)
	if lower.X > upper.X || lower.Y > upper.Y {
		return Pose{}, false
	}
	x := lower.X + w.rng.Float64()*(upper.X-lower.X)
	y := lower.Y + w.rng.Float64()*(upper.Y-lower.Y)
	z := surface.Upper.Z - box.Lower.Z + w.cfg.ZOffset
	return Pose{Point: r3.Vector{X: x, Y: y, Z: z}, Quat: quat}, true
}

// NearbyPose pairs a world-frame pose with the surface-relative pose it came from.
type NearbyPose struct {
	World    *RelPose
	Relative *RelPose
}

// NearbyStableGen samples placements on surface that are reachable from a
// fixed base. surfacePose locates the surface in the world. The forward hull
// is not grown.
func NearbyStableGen(w *World, db Database, obj, surface string, surfacePose *RelPose, bq *Conf) Generator[NearbyPose] {
	if surfacePose == nil {
		return Failed[NearbyPose](fmt.Errorf("%w: nearby stable %s needs a surface pose", ErrContract, surface))
	}
	stable := StableGen(w, db, obj, surface)
	near := NewNearPoseTestGrow(w, db, 0)
	return Stream(func(ctx context.Context) Result[NearbyPose] {
		for pull := 0; pull < w.cfg.Attempts.NearbyStable; pull++ {
			r := stable.Next(ctx)
			if r.IsDone() {
				return Fail[NearbyPose](r.Err())
			}
			rp, ok := r.Get()
			if !ok {
				continue
			}
			world, ok := ComputePoseKin(obj, rp, surface, surfacePose)
			if !ok {
				continue
			}
			pose, ok := world.(*RelPose)
			if !ok {
				continue
			}
			accepted, err := near.Test(ctx, obj, pose, bq)
			if err != nil {
				return Fail[NearbyPose](err)
			}
			if accepted {
				return Value(NearbyPose{World: pose, Relative: rp})
			}
		}
		return Retry[NearbyPose]()
	})
}

// GraspGen enumerates the precomputed grasps of obj for graspType, then is Done.
func GraspGen(w *World, obj, graspType string) Generator[*Grasp] {
	if !w.IsMovable(obj) {
		return Failed[*Grasp](fmt.Errorf("grasp %s: %w", obj, ErrUnknownObject))
	}
	poses := w.scene.Grasps[obj][graspType]
	grasps := make([]*Grasp, len(poses))
	for i, pose := range poses {
		grasps[i] = &Grasp{
			Object:       obj,
			GraspType:    graspType,
			Index:        i,
			GraspPose:    pose,
			PregraspPose: Multiply(Translate(0, 0, w.cfg.ApproachDistance), pose),
			Width:        graspWidth(w, obj, pose),
		}
	}
	return FromSlice(grasps)
}

// graspWidth closes the free gripper on obj held at grasp and returns the
// first finger value in contact, or the closed value.
func graspWidth(w *World, obj string, grasp Pose) float64 {
	closed := 0.0
	if len(w.robot.ClosedGripper) > 0 {
		closed = w.robot.ClosedGripper[0]
	}
	joints := w.gw.Joints(w.robot.Gripper)
	if w.robot.Gripper == "" || len(joints) == 0 {
		return closed
	}
	snap := w.SaveBodies(w.robot.Gripper, obj)
	defer snap.Restore()
	w.SetToolPose(w.gw.Pose(w.robot.Gripper))
	w.gw.SetPose(obj, Multiply(w.gw.Pose(w.robot.Gripper), grasp))
	group := JointGroup{Body: w.robot.Gripper, Joints: joints}
	return closeUntilCollision(w, group, Obstacle{Body: w.robot.Gripper}, w.robot.OpenGripper, w.robot.ClosedGripper, Obstacle{Body: obj})
}

// closeUntilCollision walks group from open to closed and returns the first
// value at which gripper touches obstacle, or the closed value.
func closeUntilCollision(w *World, group JointGroup, gripper Obstacle, open, closed []float64, obstacle Obstacle) float64 {
	w.gw.SetJointPositions(group.Body, group.Joints, open)
	if w.Collides(gripper, obstacle) {
		return open[0]
	}
	for _, q := range w.gw.Interpolate(group, open, closed, w.cfg.GripperResolution) {
		w.gw.SetJointPositions(group.Body, group.Joints, q)
		if w.Collides(gripper, obstacle) {
			return q[0]
		}
	}
	return closed[0]
}

// ComputePoseKin chains o1's pose rp, relative to o2, onto o2's pose p2.
// It reports false when o1 and o2 are the same object. Distributions map
// every hypothesis.
func ComputePoseKin(o1 string, rp PoseValue, o2 string, p2 *RelPose) (PoseValue, bool) {
	if o1 == o2 {
		return nil, false
	}
	switch rp := rp.(type) {
	case *SurfaceDist:
		return rp.Project(func(h *RelPose) *RelPose { return chainPose(o1, h, p2) }), true
	case *RelPose:
		return chainPose(o1, rp, p2), true
	}
	return nil, false
}

func chainPose(obj string, rp, p2 *RelPose) *RelPose {
	confs := make([]Assignable, 0, len(p2.Confs)+len(rp.Confs))
	confs = append(append(confs, p2.Confs...), rp.Confs...)
	return &RelPose{Body: obj, Support: rp.Support, Confs: confs, Init: rp.Init && p2.Init}
}

// ComputeAngleKin is the kitchen pose induced by door angle a.
func ComputeAngleKin(w *World, obj, joint string, a *Conf) *RelPose {
	return &RelPose{Body: w.scene.Kitchen, Support: obj, Confs: []Assignable{a}, Init: a.Init()}
}
