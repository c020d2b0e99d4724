package replantest

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	replan "github.com/zlatanajanovic/SS-Replan"
)

func TestMockGateway(t *testing.T) {
	t.Run("InverseKinematicsReachesTarget", func(t *testing.T) {
		g := NewKitchenGateway()
		group := replan.JointGroup{Body: Robot, Joints: armJoints}
		target := replan.NewPose(r3.Vector{X: 0.6, Y: 0.3, Z: 0.9}, replan.Euler{Roll: math.Pi, Yaw: 0.4})

		values, ok := g.InverseKinematics(group, target, math.Inf(1))
		if !ok {
			t.Fatal("expected a solution")
		}
		if len(values) != len(armJoints) {
			t.Fatalf("expected %d values, got %d", len(armJoints), len(values))
		}
		tool := g.LinkPose(Robot, "tool_link")
		if d := tool.Point.Sub(target.Point).Norm(); d > 1e-9 {
			t.Errorf("expected tool at target, off by %v", d)
		}
	})

	t.Run("InverseKinematicsRespectsReach", func(t *testing.T) {
		g := NewKitchenGateway()
		group := replan.JointGroup{Body: Robot, Joints: armJoints}
		before := g.JointPositions(Robot, armJoints)

		if _, ok := g.InverseKinematics(group, replan.Translate(2.5, 0, 1), math.Inf(1)); ok {
			t.Error("expected no solution out of reach")
		}
		if _, ok := g.InverseKinematics(group, replan.Translate(0.5, 0, 1), 1e-3); ok {
			t.Error("expected the tolerance to reject a distant solution")
		}
		if d := replan.Distance(before, g.JointPositions(Robot, armJoints)); d != 0 {
			t.Errorf("expected arm untouched after failures, moved by %v", d)
		}
	})

	t.Run("InverseKinematicsOnlyForArm", func(t *testing.T) {
		g := NewKitchenGateway()
		if _, ok := g.InverseKinematics(replan.JointGroup{Body: Robot, Joints: baseJoints}, replan.UnitPose, 1); ok {
			t.Error("expected base group to be unsolvable")
		}
	})

	t.Run("CollisionIsBoxOverlap", func(t *testing.T) {
		g := NewKitchenGateway()
		block := replan.Obstacle{Body: Block}
		counter := replan.Obstacle{Body: Kitchen, Links: []string{Counter}}

		if g.Collision(block, counter, 0) {
			t.Error("expected resting block to clear the counter")
		}
		if !g.Collision(block, counter, 0.01) {
			t.Error("expected margin to report the resting block")
		}
		g.SetPose(Block, at(CounterCenter))
		if !g.Collision(block, counter, 0) {
			t.Error("expected embedded block to collide")
		}
		if g.CollisionChecks() != 3 {
			t.Errorf("expected 3 checks, got %d", g.CollisionChecks())
		}
	})

	t.Run("DrawerLinksSlide", func(t *testing.T) {
		g := NewKitchenGateway()
		closed := g.LinkPose(Kitchen, Handle)
		g.SetJointPositions(Kitchen, []string{DrawerJoint}, []float64{DrawerOpen})
		open := g.LinkPose(Kitchen, Handle)

		if d := closed.Point.X - open.Point.X; math.Abs(d-DrawerOpen) > 1e-12 {
			t.Errorf("expected handle to move %v, got %v", DrawerOpen, d)
		}
	})

	t.Run("RotatedBoxBounds", func(t *testing.T) {
		box := orientedAABB(replan.NewPose(r3.Vector{}, replan.Euler{Yaw: math.Pi / 4}), r3.Vector{X: 1, Y: 1, Z: 1})
		want := math.Sqrt2
		if math.Abs(box.Upper.X-want) > 1e-9 || math.Abs(box.Lower.Y+want) > 1e-9 {
			t.Errorf("expected half extent %v, got %+v", want, box)
		}
	})

	t.Run("InterpolateExcludesStart", func(t *testing.T) {
		g := NewKitchenGateway()
		path := g.Interpolate(replan.JointGroup{}, []float64{0}, []float64{1}, 0.3)
		if len(path) != 4 {
			t.Fatalf("expected 4 waypoints, got %d", len(path))
		}
		if path[len(path)-1][0] != 1 {
			t.Errorf("expected path to end at 1, got %v", path[len(path)-1][0])
		}
		if path[0][0] == 0 {
			t.Error("expected path to exclude the start")
		}
	})

	t.Run("PlanMotionStopsAtObstacles", func(t *testing.T) {
		g := NewKitchenGateway()
		group := replan.JointGroup{Body: Robot, Joints: baseJoints}
		req := replan.MotionRequest{
			Group:      group,
			Target:     []float64{1.0, 0, 0},
			Obstacles:  []replan.Obstacle{{Body: Cup}},
			Resolution: 0.05,
		}
		path, ok := g.PlanMotion(req)
		if !ok {
			t.Fatal("expected a free path")
		}
		if path[0][0] != 0 || path[len(path)-1][0] != 1.0 {
			t.Errorf("expected path from 0 to 1, got %v to %v", path[0][0], path[len(path)-1][0])
		}
		if x := g.JointPositions(Robot, baseJoints)[0]; x != 0 {
			t.Errorf("expected base restored to 0, got %v", x)
		}

		g.SetPose(Cup, replan.Translate(0.5, 0, 0.1))
		if _, ok := g.PlanMotion(req); ok {
			t.Error("expected the cup to block the base")
		}
		if g.MotionPlans() != 2 {
			t.Errorf("expected 2 plans, got %d", g.MotionPlans())
		}
	})

	t.Run("RayTestReportsLinks", func(t *testing.T) {
		g := NewKitchenGateway()
		ray := replan.Ray{Start: r3.Vector{X: 1.5, Y: 0.8, Z: 2}, End: r3.Vector{X: 1.5, Y: 0.8, Z: 0}}
		hits := g.RayTest([]replan.Ray{ray})

		var block, counter bool
		for _, h := range hits {
			switch {
			case h.Body == Block && len(h.Links) == 0:
				block = true
			case h.Body == Kitchen && len(h.Links) == 1 && h.Links[0] == Counter:
				counter = true
			}
		}
		if !block || !counter {
			t.Errorf("expected block and counter hits, got %+v", hits)
		}
	})
}

func TestKitchenFixture(t *testing.T) {
	f := NewKitchen(t, Config())
	w := f.World

	if !w.IsSurface(Drawer) || !w.IsDoor(DrawerJoint) || !w.IsKnob(Knob) {
		t.Fatal("expected drawer surface, drawer joint and knob")
	}
	if w.CollidesAny(w.RobotObstacle(), w.StaticObstacles()) {
		t.Error("expected robot clear of the kitchen at start")
	}
	if !replan.TestSupported(w, Block, Counter) {
		t.Error("expected block supported by the counter")
	}
	if got := w.CurrentConf(w.ArmGroup()).Values(); replan.Distance(got, carryConf) != 0 {
		t.Errorf("expected arm at carry, got %v", got)
	}
}
