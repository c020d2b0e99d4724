package replan_test

import (
	"context"
	"errors"
	"testing"

	replan "github.com/zlatanajanovic/SS-Replan"
	replantest "github.com/zlatanajanovic/SS-Replan/testing"
)

func TestStableGen(t *testing.T) {
	ctx := context.Background()

	t.Run("SamplesSupportedPoses", func(t *testing.T) {
		f := replantest.NewKitchen(t, replantest.Config())
		w := f.World
		before := f.Gateway.Pose(replantest.Block)

		gen := replan.StableGen(w, f.DB, replantest.Block, replantest.Counter)
		for i := range 3 {
			rp := replantest.Draw(t, ctx, gen, 10)
			if rp.Support != replantest.Counter {
				t.Fatalf("sample %d: expected support counter, got %s", i, rp.Support)
			}
			snap := w.Save()
			rp.Assign(w)
			if !replan.TestSupported(w, replantest.Block, replantest.Counter) {
				t.Errorf("sample %d: expected a supported pose", i)
			}
			snap.Restore()
		}
		if after := f.Gateway.Pose(replantest.Block); after != before {
			t.Errorf("expected block left at %v, got %v", before, after)
		}
	})

	t.Run("SamplesInsideOpenDrawer", func(t *testing.T) {
		f := replantest.NewKitchen(t, replantest.Config())
		w := f.World
		w.OpenDoor(replantest.DrawerJoint)

		rp := replantest.Draw(t, ctx, replan.StableGen(w, f.DB, replantest.Cup, replantest.Drawer), 10)
		rp.Assign(w)
		drawer := f.Gateway.AABB(replan.Obstacle{Body: replantest.Kitchen, Links: []string{replantest.Drawer}})
		if !drawer.ContainsXY(f.Gateway.AABB(replan.Obstacle{Body: replantest.Cup})) {
			t.Error("expected the cup footprint inside the drawer")
		}
	})

	t.Run("RejectsUnknownNames", func(t *testing.T) {
		f := replantest.NewKitchen(t, replantest.Config())
		_, _, err := replantest.Drain(ctx, replan.StableGen(f.World, f.DB, "ghost", replantest.Counter), 1)
		if !errors.Is(err, replan.ErrUnknownObject) {
			t.Errorf("expected ErrUnknownObject, got %v", err)
		}
		_, _, err = replantest.Drain(ctx, replan.StableGen(f.World, f.DB, replantest.Block, "floor"), 1)
		if !errors.Is(err, replan.ErrUnknownSurface) {
			t.Errorf("expected ErrUnknownSurface, got %v", err)
		}
	})

	t.Run("LearnedWithEmptyDatabaseIsDone", func(t *testing.T) {
		f := replantest.NewKitchen(t, learnedConfig())
		values, retries, err := replantest.Drain(ctx, replan.StableGen(f.World, f.DB, replantest.Block, replantest.Counter), 5)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(values) != 0 || retries != 0 {
			t.Errorf("expected an immediately finished stream, got %d values and %d retries", len(values), retries)
		}
	})

	t.Run("LearnedPlacementsStayNearRecords", func(t *testing.T) {
		f := replantest.NewKitchen(t, learnedConfig())
		w := f.World
		counter := w.SurfacePose(replantest.Counter)
		f.DB.Add(replan.Record{
			Kind:      replan.KindPlacement,
			Robot:     replantest.RobotName,
			Target:    replantest.Counter,
			Transform: replan.Translate(0.1, -0.1, 0),
		})

		rp := replantest.Draw(t, ctx, replan.StableGen(w, f.DB, replantest.Block, replantest.Counter), 10)
		p := rp.WorldFromBody(w).Point
		if dx, dy := p.X-(counter.Point.X+0.1), p.Y-(counter.Point.Y-0.1); dx*dx+dy*dy > 0.01 {
			t.Errorf("expected a sample near the learned placement, got %v", p)
		}
	})
}

func TestGraspGen(t *testing.T) {
	ctx := context.Background()
	f := replantest.NewKitchen(t, replantest.Config())

	grasps, err := replan.Collect(ctx, replan.GraspGen(f.World, replantest.Block, "top"), 10, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(grasps) != 4 {
		t.Fatalf("expected 4 grasps, got %d", len(grasps))
	}
	for i, g := range grasps {
		if g.Index != i || g.Object != replantest.Block {
			t.Errorf("grasp %d: unexpected identity %v", i, g)
		}
		if g.Width <= 0 || g.Width >= 0.04 {
			t.Errorf("grasp %d: expected a width between closed and open, got %v", i, g.Width)
		}
		standoff := g.PregraspPose.Point.Sub(g.GraspPose.Point).Norm()
		if d := standoff - f.World.Config().ApproachDistance; d > 1e-9 || d < -1e-9 {
			t.Errorf("grasp %d: expected pregrasp standoff %v, got %v", i, f.World.Config().ApproachDistance, standoff)
		}
	}

	if f.Gateway.Pose(replantest.Gripper).Point.Z != -3 {
		t.Error("expected the free gripper restored")
	}

	if _, _, err := replantest.Drain(ctx, replan.GraspGen(f.World, "ghost", "top"), 1); !errors.Is(err, replan.ErrUnknownObject) {
		t.Errorf("expected ErrUnknownObject, got %v", err)
	}
}

func TestNearbyStableGen(t *testing.T) {
	ctx := context.Background()
	f := replantest.NewKitchen(t, replantest.Config())
	w := f.World
	surfacePose := &replan.RelPose{Body: replantest.Kitchen, Support: replantest.Counter, Init: true}
	bq := w.BaseConf(0.9, 0.8, 0)

	t.Run("NoHullRejectsEverything", func(t *testing.T) {
		values, retries, err := replantest.Drain(ctx, replan.NearbyStableGen(w, f.DB, replantest.Block, replantest.Counter, surfacePose, bq), 2)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(values) != 0 || retries != 2 {
			t.Errorf("expected 2 retries, got %d values and %d retries", len(values), retries)
		}
	})

	t.Run("ForwardHullAccepts", func(t *testing.T) {
		db := replan.NewMemoryDatabase()
		for _, p := range [][2]float64{{0, -1}, {1.5, -1}, {1.5, 1}, {0, 1}} {
			db.Add(replan.Record{Kind: replan.KindForward, Robot: replantest.RobotName, Transform: replan.Translate(p[0], p[1], 0)})
		}
		np := replantest.Draw(t, ctx, replan.NearbyStableGen(w, db, replantest.Block, replantest.Counter, surfacePose, bq), 3)
		if np.Relative.Support != replantest.Counter || np.World.Body != replantest.Block {
			t.Errorf("unexpected nearby pose %v / %v", np.World, np.Relative)
		}
		if len(np.World.Confs) != len(surfacePose.Confs)+len(np.Relative.Confs) {
			t.Errorf("expected the world pose to chain the surface pose, got %d placements", len(np.World.Confs))
		}
	})

	t.Run("ForwardHullIsNotGrown", func(t *testing.T) {
		db := replan.NewMemoryDatabase()
		for _, p := range [][2]float64{{0, -1}, {0.3, -1}, {0.3, 1}, {0, 1}} {
			db.Add(replan.Record{Kind: replan.KindForward, Robot: replantest.RobotName, Transform: replan.Translate(p[0], p[1], 0)})
		}
		values, retries, err := replantest.Drain(ctx, replan.NearbyStableGen(w, db, replantest.Block, replantest.Counter, surfacePose, bq), 2)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(values) != 0 || retries != 2 {
			t.Errorf("expected placements beyond the hull rejected, got %d values and %d retries", len(values), retries)
		}
	})

	t.Run("MissingSurfacePose", func(t *testing.T) {
		_, _, err := replantest.Drain(ctx, replan.NearbyStableGen(w, f.DB, replantest.Block, replantest.Counter, nil, bq), 1)
		if !errors.Is(err, replan.ErrContract) {
			t.Errorf("expected ErrContract, got %v", err)
		}
	})
}

func TestComputePoseKin(t *testing.T) {
	f := replantest.NewKitchen(t, replantest.Config())
	rp := f.PoseOn(replantest.Block, replantest.Counter)
	rp.Init = true
	p2 := &replan.RelPose{Body: replantest.Kitchen, Init: true}

	if _, ok := replan.ComputePoseKin(replantest.Block, rp, replantest.Block, p2); ok {
		t.Error("expected no pose of an object relative to itself")
	}
	got, ok := replan.ComputePoseKin(replantest.Block, rp, replantest.Kitchen, p2)
	if !ok {
		t.Fatal("expected a chained pose")
	}
	wp := got.(*replan.RelPose)
	if !wp.Init || wp.Support != replantest.Counter {
		t.Errorf("expected an init pose on the counter, got %v init=%v", wp, wp.Init)
	}

	dist := &replan.SurfaceDist{Body: replantest.Block, Surface: replantest.Counter, Dist: replan.DeltaDist(rp)}
	projected, ok := replan.ComputePoseKin(replantest.Block, dist, replantest.Kitchen, p2)
	if !ok || !projected.IsDistribution() {
		t.Error("expected a distribution to map to a distribution")
	}
}

func learnedConfig() replan.Config {
	cfg := replantest.Config()
	return *cfg.WithLearned(true)
}
