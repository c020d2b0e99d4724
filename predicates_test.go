package replan_test

import (
	"context"
	"errors"
	"testing"

	replan "github.com/zlatanajanovic/SS-Replan"
	replantest "github.com/zlatanajanovic/SS-Replan/testing"
)

func TestDoorTest(t *testing.T) {
	f := replantest.NewKitchen(t, replantest.Config())
	w := f.World
	group := w.DoorGroup(replantest.DrawerJoint)

	tests := []struct {
		value  float64
		status string
		want   bool
	}{
		{0, replan.DoorClosed, true},
		{0, replan.DoorOpen, false},
		{0.1, replan.DoorClosed, true},
		{0.2, replan.DoorClosed, false},
		{0.2, replan.DoorOpen, false},
		{0.3, replan.DoorOpen, true},
		{replantest.DrawerOpen, replan.DoorOpen, true},
	}
	for _, tt := range tests {
		got, err := replan.DoorTest(w, replantest.DrawerJoint, replan.NewConf(group, []float64{tt.value}), tt.status)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != tt.want {
			t.Errorf("DoorTest(%v, %s): expected %v, got %v", tt.value, tt.status, tt.want, got)
		}
	}

	if _, err := replan.DoorTest(w, "lid", replan.NewConf(group, []float64{0}), replan.DoorOpen); !errors.Is(err, replan.ErrUnknownJoint) {
		t.Errorf("expected ErrUnknownJoint, got %v", err)
	}
	if _, err := replan.DoorTest(w, replantest.DrawerJoint, replan.NewConf(group, []float64{0}), "ajar"); !errors.Is(err, replan.ErrContract) {
		t.Errorf("expected ErrContract for an unknown status, got %v", err)
	}
	for name, conf := range map[string]*replan.Conf{
		"gripper": w.OpenGripperConf(),
		"base":    w.BaseConf(0, 0, 0),
		"nil":     nil,
	} {
		if _, err := replan.DoorTest(w, replantest.DrawerJoint, conf, replan.DoorOpen); !errors.Is(err, replan.ErrContract) {
			t.Errorf("%s: expected ErrContract, got %v", name, err)
		}
	}
}

func TestGripperOpenTest(t *testing.T) {
	f := replantest.NewKitchen(t, replantest.Config())
	w := f.World
	group := w.GripperGroup()

	tests := []struct {
		name string
		conf *replan.Conf
		want bool
	}{
		{"Open", w.OpenGripperConf(), true},
		{"NearlyOpen", replan.NewConf(group, []float64{0.037}), true},
		{"HalfClosed", replan.NewConf(group, []float64{0.02}), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := replan.GripperOpenTest(w, tt.conf)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}

	t.Run("WrongGroup", func(t *testing.T) {
		for name, conf := range map[string]*replan.Conf{
			"base": w.BaseConf(0, 0, 0),
			"arm":  w.CarryConf(),
			"nil":  nil,
		} {
			if ok, err := replan.GripperOpenTest(w, conf); ok || !errors.Is(err, replan.ErrContract) {
				t.Errorf("%s: expected ErrContract, got ok=%v err=%v", name, ok, err)
			}
		}
	})
}

func TestCollisionFreeTests(t *testing.T) {
	ctx := context.Background()
	f := replantest.NewKitchen(t, replantest.Config())
	w := f.World
	block := f.PoseOn(replantest.Block, replantest.Counter)
	cup := f.PoseOn(replantest.Cup, replantest.Counter)

	t.Run("PosePose", func(t *testing.T) {
		if !replan.CFreePosePose(w, replantest.Block, block, replantest.Cup, cup) {
			t.Error("expected separate blocks to be free")
		}
		f.Gateway.SetPose(replantest.Cup, f.Gateway.Pose(replantest.Block))
		stacked := f.PoseOn(replantest.Cup, replantest.Counter)
		f.Gateway.SetPose(replantest.Cup, replan.Translate(1.7, 1.0, 0.931))
		if replan.CFreePosePose(w, replantest.Block, block, replantest.Cup, stacked) {
			t.Error("expected coincident blocks to collide")
		}
		if f.Gateway.Pose(replantest.Cup).Point.X != 1.7 {
			t.Error("expected the cup restored")
		}
	})

	t.Run("DistributionsAreFree", func(t *testing.T) {
		dist := &replan.SurfaceDist{Body: replantest.Cup, Surface: replantest.Counter, Dist: replan.DeltaDist(block)}
		if !replan.CFreePosePose(w, replantest.Block, block, replantest.Cup, dist) {
			t.Error("expected a distribution to pass")
		}
	})

	t.Run("WorldPoseOnlyChecksDrawers", func(t *testing.T) {
		embedded := &replan.RelPose{Body: replantest.Block, Support: replantest.Counter, Confs: []replan.Assignable{
			replan.RelTransform{Body: replantest.Block, Parent: replantest.Kitchen, ParentLink: replantest.Counter},
		}}
		if !replan.CFreeWorldPose(w, replantest.Block, embedded) {
			t.Error("expected poses outside drawers to pass unchecked")
		}
		inCabinet := &replan.RelPose{Body: replantest.Block, Support: replantest.Drawer, Confs: []replan.Assignable{
			replan.RelTransform{Body: replantest.Block, Parent: replantest.Kitchen, ParentLink: replantest.Cabinet},
		}}
		if replan.CFreeWorldPose(w, replantest.Block, inCabinet) {
			t.Error("expected a drawer pose inside the cabinet to collide")
		}
	})

	t.Run("WorldPoseWorldPose", func(t *testing.T) {
		surface := &replan.RelPose{Body: replantest.Kitchen, Support: replantest.Counter}
		if !replan.CFreeWorldPoseWorldPose(w, replantest.Block, block, replantest.Counter, surface) {
			t.Error("expected an object resting on the surface to be free")
		}
		onKnob := &replan.RelPose{Body: replantest.Block, Support: replantest.Drawer, Confs: []replan.Assignable{
			replan.RelTransform{Body: replantest.Block, Parent: replantest.Kitchen, ParentLink: replantest.Knob},
		}}
		if replan.CFreeWorldPoseWorldPose(w, replantest.Block, onKnob, replantest.Counter, surface) {
			t.Error("expected the block on the knob to hit the counter obstacles")
		}
	})

	t.Run("BConfPose", func(t *testing.T) {
		if !replan.CFreeBConfPose(w, w.BaseConf(0.8, 0.8, 0), replantest.Block, block) {
			t.Error("expected the robot clear of the block")
		}
		low := &replan.RelPose{Body: replantest.Block, Support: replantest.Counter, Confs: []replan.Assignable{
			replan.RelTransform{Body: replantest.Block, Parent: replantest.Kitchen, ParentLink: replantest.Counter, Value: replan.Translate(-0.7, 0, -0.7)},
		}}
		if replan.CFreeBConfPose(w, w.BaseConf(0.8, 0.8, 0), replantest.Block, low) {
			t.Error("expected a block at base height to collide")
		}
	})

	t.Run("ApproachPose", func(t *testing.T) {
		grasp := f.Grasp(t, ctx, replantest.Block, 0)
		if !replan.CFreeApproachPose(w, replantest.Block, block, grasp, replantest.Cup, cup) {
			t.Error("expected the cup out of the approach")
		}
		above := &replan.RelPose{Body: replantest.Cup, Support: replantest.Counter, Confs: []replan.Assignable{
			replan.RelTransform{Body: replantest.Cup, Parent: replantest.Kitchen, ParentLink: replantest.Counter, Value: replan.Translate(0, 0, 0.2)},
		}}
		if replan.CFreeApproachPose(w, replantest.Block, block, grasp, replantest.Cup, above) {
			t.Error("expected a cup above the block to block the approach")
		}
	})

	t.Run("AngleAngle", func(t *testing.T) {
		j := replantest.DrawerJoint
		if !replan.CFreeAngleAngle(w, j, w.ClosedConf(j), w.OpenConf(j), replantest.Drawer, block) {
			t.Error("expected the drawer itself to be ignored")
		}
		if !replan.CFreeAngleAngle(w, j, w.ClosedConf(j), w.OpenConf(j), replantest.Block, block) {
			t.Error("expected a block on the counter clear of the handle")
		}
		blocking := &replan.RelPose{Body: replantest.Block, Support: replantest.Counter, Confs: []replan.Assignable{
			replan.RelTransform{Body: replantest.Block, Parent: replantest.Kitchen, ParentLink: replantest.Handle, Value: replan.Translate(-0.2, 0, 0)},
		}}
		if replan.CFreeAngleAngle(w, j, w.ClosedConf(j), w.OpenConf(j), replantest.Block, blocking) {
			t.Error("expected a block in front of the handle to stop the pull")
		}
	})

	t.Run("TrajPose", func(t *testing.T) {
		bq1, bq2 := w.BaseConf(0, 0, 0), w.BaseConf(1, 0, 0)
		seq, ok, err := replan.BaseMotionFn(w, bq1, bq2, w.CarryConf(), nil)
		if err != nil || !ok {
			t.Fatalf("expected a base motion, got ok=%v err=%v", ok, err)
		}
		if !replan.CFreeTrajPose(w, seq, replantest.Block, block) {
			t.Error("expected the block clear of the base path")
		}
		onFloor := &replan.RelPose{Body: replantest.Block, Support: replantest.Counter, Confs: []replan.Assignable{
			replan.RelTransform{Body: replantest.Block, Parent: replantest.Kitchen, ParentLink: replantest.Counter, Value: replan.Translate(-1, -0.8, -0.7)},
		}}
		if replan.CFreeTrajPose(w, seq, replantest.Block, onFloor) {
			t.Error("expected a block on the path to collide")
		}
	})

	t.Run("TrajPoseKeepsMovedBodyLinks", func(t *testing.T) {
		j := replantest.DrawerJoint
		reach := &replan.Move{Trajectory: replan.Trajectory{Group: w.BaseGroup(), Path: [][]float64{{1.0, 0.8, 0}}}}
		pull := &replan.DoorMove{
			Arm:  replan.Trajectory{Group: w.ArmGroup(), Path: [][]float64{{0.5, 0, 0.7, 0, 0, 0, 1}}},
			Door: replan.Trajectory{Group: w.DoorGroup(j), Path: [][]float64{{0}}},
		}
		seq := replan.NewSequence("pull", nil, reach, pull)
		counter := &replan.RelPose{Body: replantest.Kitchen, Support: replantest.Counter}
		if replan.CFreeTrajPose(w, seq, replantest.Counter, counter) {
			t.Error("expected the counter link to stay an obstacle while the kitchen moves")
		}
	})

	t.Run("MissingPose", func(t *testing.T) {
		for name, pose := range map[string]replan.PoseValue{
			"untyped": nil,
			"typed":   (*replan.RelPose)(nil),
		} {
			if replan.CFreePosePose(w, replantest.Block, pose, replantest.Cup, cup) {
				t.Errorf("%s: expected a missing pose to be rejected", name)
			}
			if replan.CFreeWorldPose(w, replantest.Block, pose) {
				t.Errorf("%s: expected a missing world pose to be rejected", name)
			}
		}
	})

	t.Run("DisabledCollisions", func(t *testing.T) {
		cfg := replantest.Config()
		g := replantest.NewKitchen(t, *cfg.WithCollisions(false))
		same := g.PoseOn(replantest.Block, replantest.Counter)
		if !replan.CFreePosePose(g.World, replantest.Block, same, replantest.Cup, same) {
			t.Error("expected everything free without collisions")
		}
	})
}

func TestNearTests(t *testing.T) {
	ctx := context.Background()

	t.Run("NearPoseObject", func(t *testing.T) {
		f := replantest.NewKitchen(t, replantest.Config())
		w := f.World
		rp := f.PoseOn(replantest.Block, replantest.Counter)
		for _, p := range [][2]float64{{0.5, -0.2}, {0.9, -0.2}, {0.9, 0.2}, {0.5, 0.2}} {
			f.DB.Add(replan.Record{Kind: replan.KindForward, Robot: replantest.RobotName, Transform: replan.Translate(p[0], p[1], 0)})
		}
		near := replan.NewNearPoseTest(w, f.DB)

		ok, err := near.Test(ctx, replantest.Block, rp, w.BaseConf(0.8, 0.8, 0))
		if err != nil || !ok {
			t.Errorf("expected a close base to pass, got ok=%v err=%v", ok, err)
		}
		ok, err = near.Test(ctx, replantest.Block, rp, w.BaseConf(-1, 0.8, 0))
		if err != nil || ok {
			t.Errorf("expected a distant base to fail, got ok=%v err=%v", ok, err)
		}

		edge := w.BaseConf(0.5, 0.8, 0)
		if ok, err := near.Test(ctx, replantest.Block, rp, edge); err != nil || !ok {
			t.Errorf("expected the grown hull to accept the edge base, got ok=%v err=%v", ok, err)
		}
		tight := replan.NewNearPoseTestGrow(w, f.DB, 0)
		if ok, err := tight.Test(ctx, replantest.Block, rp, edge); err != nil || ok {
			t.Errorf("expected the ungrown hull to reject the edge base, got ok=%v err=%v", ok, err)
		}
	})

	t.Run("NearPoseSurface", func(t *testing.T) {
		f := replantest.NewKitchen(t, replantest.Config())
		w := f.World
		for _, p := range [][2]float64{{-0.8, -0.2}, {-0.6, -0.2}, {-0.6, 0.2}, {-0.8, 0.2}} {
			f.DB.Add(replan.Record{Kind: replan.KindInverse, Robot: replantest.RobotName, Target: replantest.Counter, Transform: replan.Translate(p[0], p[1], 0)})
		}
		near := replan.NewNearPoseTest(w, f.DB)
		surface := &replan.RelPose{Body: replantest.Kitchen, Support: replantest.Counter}

		ok, err := near.Test(ctx, replantest.Counter, surface, w.BaseConf(0.8, 0.8, 0))
		if err != nil || !ok {
			t.Errorf("expected a base in front of the counter to pass, got ok=%v err=%v", ok, err)
		}
		ok, _ = near.Test(ctx, replantest.Counter, surface, w.BaseConf(2.5, 0.8, 0))
		if ok {
			t.Error("expected a base behind the counter to fail")
		}
	})

	t.Run("NearJoint", func(t *testing.T) {
		f := replantest.NewKitchen(t, replantest.Config())
		w := f.World
		for _, p := range [][2]float64{{0.4, -0.8}, {0.6, -0.8}, {0.6, -0.4}, {0.4, -0.4}} {
			f.DB.Add(replan.Record{Kind: replan.KindPullBase, Robot: replantest.RobotName, Target: replantest.DrawerJoint, Transform: replan.Translate(p[0], p[1], 0)})
		}
		near := replan.NewNearJointTest(w, f.DB)

		if ok, err := near.Test(ctx, replantest.DrawerJoint, w.BaseConf(0.5, -0.6, 0)); err != nil || !ok {
			t.Errorf("expected a learned pull base to pass, got ok=%v err=%v", ok, err)
		}
		if ok, _ := near.Test(ctx, replantest.DrawerJoint, w.BaseConf(2, 2, 0)); ok {
			t.Error("expected a distant base to fail")
		}
		if ok, _ := near.Test(ctx, replantest.Knob, w.BaseConf(2, 2, 0)); !ok {
			t.Error("expected knobs to always pass")
		}
		if _, err := near.Test(ctx, "lid", w.BaseConf(0, 0, 0)); !errors.Is(err, replan.ErrUnknownJoint) {
			t.Errorf("expected ErrUnknownJoint, got %v", err)
		}
	})
}
