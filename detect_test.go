package replan_test

import (
	"context"
	"errors"
	"testing"

	replan "github.com/zlatanajanovic/SS-Replan"
	replantest "github.com/zlatanajanovic/SS-Replan/testing"
)

// onCounter places obj at an offset from the counter link.
func onCounter(obj string, x, y, z float64) *replan.RelPose {
	return &replan.RelPose{Body: obj, Support: replantest.Counter, Confs: []replan.Assignable{
		replan.RelTransform{Body: obj, Parent: replantest.Kitchen, ParentLink: replantest.Counter, Value: replan.Translate(x, y, z)},
	}}
}

func TestComputeDetect(t *testing.T) {
	ctx := context.Background()

	t.Run("VisibleOnCounter", func(t *testing.T) {
		f := replantest.NewKitchen(t, replantest.Config())
		rp := f.PoseOn(replantest.Block, replantest.Counter)
		before := f.World.CurrentConf(f.World.BaseGroup())

		detect, ok := replan.ComputeDetect(ctx, f.World, replantest.Block, rp)
		if !ok {
			t.Fatal("expected the block to be visible")
		}
		if detect.Camera != replantest.Camera || len(detect.Rays) != 5 {
			t.Errorf("expected 5 rays from %s, got %d from %s", replantest.Camera, len(detect.Rays), detect.Camera)
		}
		if !f.World.CurrentConf(f.World.BaseGroup()).Equal(before, 0) {
			t.Error("expected the robot restored after the visibility check")
		}
	})

	t.Run("VisibleInOpenDrawer", func(t *testing.T) {
		f := replantest.NewKitchen(t, replantest.Config())
		w := f.World
		w.OpenDoor(replantest.DrawerJoint)
		rp := replantest.Draw(t, ctx, replan.StableGen(w, f.DB, replantest.Block, replantest.Drawer), 10)
		w.CloseDoor(replantest.DrawerJoint)

		if _, ok := replan.ComputeDetect(ctx, w, replantest.Block, rp); !ok {
			t.Error("expected the drawer to be opened for the check")
		}
	})

	t.Run("OutsideFrustum", func(t *testing.T) {
		f := replantest.NewKitchen(t, replantest.Config())
		if _, ok := replan.ComputeDetect(ctx, f.World, replantest.Block, onCounter(replantest.Block, -0.5, 2.2, -0.82)); ok {
			t.Error("expected a block behind the camera to be invisible")
		}
	})

	t.Run("OccludedByCounter", func(t *testing.T) {
		under := onCounter(replantest.Block, 0, 0, -0.15)
		f := replantest.NewKitchen(t, replantest.Config())
		if _, ok := replan.ComputeDetect(ctx, f.World, replantest.Block, under); ok {
			t.Error("expected the counter to occlude a block beneath it")
		}

		cfg := replantest.Config()
		cfg.RayTrace = false
		g := replantest.NewKitchen(t, cfg)
		if _, ok := replan.ComputeDetect(ctx, g.World, replantest.Block, under); !ok {
			t.Error("expected a frustum-only check to accept the block")
		}
	})
}

func beliefFixture(t *testing.T, cfg replan.Config) (*replantest.Fixture, *replan.SurfaceDist, []*replan.RelPose) {
	t.Helper()
	f := replantest.NewKitchen(t, cfg)
	poses := []*replan.RelPose{
		onCounter(replantest.Block, 0, 0, 0.081),
		onCounter(replantest.Block, -0.2, -0.2, 0.081),
		onCounter(replantest.Block, -0.5, 2.2, -0.82),
	}
	dist := &replan.SurfaceDist{
		Body:    replantest.Block,
		Surface: replantest.Counter,
		Dist:    replan.NewDDist(poses, []float64{0.6, 0.3, 0.1}),
	}
	return f, dist, poses
}

func TestSampleBeliefGen(t *testing.T) {
	ctx := context.Background()

	t.Run("MostLikelyOnly", func(t *testing.T) {
		cfg := replantest.Config()
		cfg.MLOOnly = true
		f, dist, poses := beliefFixture(t, cfg)
		obs, _, err := replantest.Drain(ctx, replan.SampleBeliefGen(f.World, replantest.Block, dist, replantest.Counter), 5)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(obs) != 1 || obs[0].Pose != poses[0] {
			t.Errorf("expected only the most likely pose, got %v", obs)
		}
	})

	t.Run("OrderedByMass", func(t *testing.T) {
		cfg := replantest.Config()
		cfg.Ordered = true
		f, dist, poses := beliefFixture(t, cfg)
		obs, _, err := replantest.Drain(ctx, replan.SampleBeliefGen(f.World, replantest.Block, dist, replantest.Counter), 5)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(obs) != 2 || obs[0].Pose != poses[0] || obs[1].Pose != poses[1] {
			t.Errorf("expected the two visible poses by mass, got %v", obs)
		}
	})

	t.Run("WeightedWithoutReplacement", func(t *testing.T) {
		f, dist, poses := beliefFixture(t, replantest.Config())
		obs, _, err := replantest.Drain(ctx, replan.SampleBeliefGen(f.World, replantest.Block, dist, replantest.Counter), 5)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(obs) != 2 || obs[0].Pose == obs[1].Pose {
			t.Fatalf("expected two distinct observations, got %v", obs)
		}
		for _, o := range obs {
			if o.Pose == poses[2] {
				t.Error("expected the invisible pose to be skipped")
			}
			if o.Object != replantest.Block {
				t.Errorf("expected observations of the block, got %s", o.Object)
			}
		}
	})

	t.Run("MismatchedBelief", func(t *testing.T) {
		f, dist, _ := beliefFixture(t, replantest.Config())
		_, _, err := replantest.Drain(ctx, replan.SampleBeliefGen(f.World, replantest.Cup, dist, replantest.Counter), 1)
		if !errors.Is(err, replan.ErrContract) {
			t.Errorf("expected ErrContract, got %v", err)
		}
	})
}

func TestOFreeRayTests(t *testing.T) {
	ctx := context.Background()
	f := replantest.NewKitchen(t, replantest.Config())
	w := f.World
	detect, ok := replan.ComputeDetect(ctx, w, replantest.Block, f.PoseOn(replantest.Block, replantest.Counter))
	if !ok {
		t.Fatal("expected the block to be visible")
	}

	t.Run("Pose", func(t *testing.T) {
		if !replan.OFreeRayPoseTest(w, detect, replantest.Block, detect.Pose) {
			t.Error("expected the observed object to be free of its own rays")
		}
		if !replan.OFreeRayPoseTest(w, detect, replantest.Cup, f.PoseOn(replantest.Cup, replantest.Counter)) {
			t.Error("expected the cup clear of the rays")
		}
		if replan.OFreeRayPoseTest(w, detect, replantest.Cup, onCounter(replantest.Cup, -0.25, 0, 0.63)) {
			t.Error("expected a cup between camera and block to occlude")
		}
	})

	t.Run("Grasp", func(t *testing.T) {
		if !replan.OFreeRayGraspTest(w, detect, w.BaseConf(0, 0, 0), w.CarryConf(), "", nil) {
			t.Error("expected the robot at the origin clear of the rays")
		}
		raised := replan.NewConf(w.ArmGroup(), []float64{0.75, 0, 1.33, 0, 0, 0, 1})
		if replan.OFreeRayGraspTest(w, detect, w.BaseConf(0.5, 0.8, 0), raised, "", nil) {
			t.Error("expected a hand in the view to occlude")
		}
	})
}
