package replan_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/zoobzio/capitan"
	capitantesting "github.com/zoobzio/capitan/testing"

	replan "github.com/zlatanajanovic/SS-Replan"
	replantest "github.com/zlatanajanovic/SS-Replan/testing"
)

func TestCatalog(t *testing.T) {
	seen := make(map[string]bool)
	for _, d := range replan.Catalog() {
		if seen[d.Name] {
			t.Errorf("duplicate stream %s", d.Name)
		}
		seen[d.Name] = true
		switch d.Kind {
		case replan.KindGenerator, replan.KindFunction:
			if len(d.Outputs) == 0 {
				t.Errorf("%s: expected outputs for a %s", d.Name, d.Kind)
			}
		case replan.KindTest:
			if len(d.Outputs) != 0 {
				t.Errorf("%s: expected a test without outputs", d.Name)
			}
		default:
			t.Errorf("%s: unknown kind %q", d.Name, d.Kind)
		}
	}

	catalog := replan.Catalog()
	catalog[0].Name = "mutated"
	if replan.Catalog()[0].Name == "mutated" {
		t.Error("expected Catalog to return a copy")
	}
}

func TestStreamsContract(t *testing.T) {
	ctx := context.Background()
	f := replantest.NewKitchen(t, replantest.Config())
	w := f.World
	s := replan.NewStreams(w, f.DB)
	j := replantest.DrawerJoint

	tests := []struct {
		name string
		call func() error
	}{
		{"UnknownStream", func() error {
			_, err := s.Test(ctx, "test-teleport", j)
			return err
		}},
		{"WrongKind", func() error {
			_, _, err := s.Evaluate(ctx, "sample-grasp", replantest.Block, "top")
			return err
		}},
		{"WrongArity", func() error {
			_, err := s.Test(ctx, "test-door", j)
			return err
		}},
		{"WrongType", func() error {
			_, err := s.Test(ctx, "test-door", j, "closed", replan.DoorClosed)
			return err
		}},
		{"GeneratorWrongType", func() error {
			_, err := s.Generate(ctx, "sample-pose", replantest.Block, 3)
			return err
		}},
		{"DoorWrongGroup", func() error {
			_, err := s.Test(ctx, "test-door", j, w.OpenGripperConf(), replan.DoorOpen)
			return err
		}},
		{"DoorNilConf", func() error {
			_, err := s.Test(ctx, "test-door", j, (*replan.Conf)(nil), replan.DoorOpen)
			return err
		}},
		{"GripperWrongGroup", func() error {
			_, err := s.Test(ctx, "test-gripper", w.BaseConf(0, 0, 0))
			return err
		}},
		{"GripperNilConf", func() error {
			_, err := s.Test(ctx, "test-gripper", (*replan.Conf)(nil))
			return err
		}},
		{"BaseCostWrongGroup", func() error {
			_, _, err := s.Evaluate(ctx, "base-cost", w.CarryConf(), w.BaseConf(0, 0, 0))
			return err
		}},
		{"BaseCostNilConf", func() error {
			_, _, err := s.Evaluate(ctx, "base-cost", (*replan.Conf)(nil), w.BaseConf(0, 0, 0))
			return err
		}},
		{"DetectNilPose", func() error {
			_, _, err := s.Evaluate(ctx, "compute-detect", replantest.Block, (*replan.RelPose)(nil))
			return err
		}},
		{"PoseValueNil", func() error {
			_, err := s.Test(ctx, "test-cfree-pose-pose", replantest.Block, (*replan.RelPose)(nil), replantest.Cup, (*replan.RelPose)(nil))
			return err
		}},
		{"HoldingWithoutGrasp", func() error {
			_, err := s.Test(ctx, "test-ofree-ray-grasp", &replan.Detect{}, w.BaseConf(0, 0, 0), w.CarryConf(), replantest.Block, nil)
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !errors.Is(err, replan.ErrContract) {
				t.Errorf("expected ErrContract, got %v", err)
			}
		})
	}
}

func TestContractViolationEvent(t *testing.T) {
	capture := capitantesting.NewEventCapture()
	listener := capitan.Hook(replan.ContractViolation, capture.Handler())
	defer listener.Close()

	f := replantest.NewKitchen(t, replantest.Config())
	s := replan.NewStreams(f.World, f.DB)
	if _, err := s.Test(context.Background(), "test-levitate"); err == nil {
		t.Fatal("expected an error for an unknown stream")
	}

	if !capture.WaitForCount(1, time.Second) {
		t.Fatal("expected ContractViolation event")
	}
	var found bool
	for _, e := range capture.Events() {
		for _, field := range e.Fields {
			if field.Key().Name() == replan.FieldStream.Name() && field.Value() == "test-levitate" {
				found = true
			}
		}
	}
	if !found {
		t.Error("expected the event to name the stream")
	}
}

func TestStreamsDispatch(t *testing.T) {
	ctx := context.Background()
	f := replantest.NewKitchen(t, replantest.Config())
	w := f.World
	s := replan.NewStreams(w, f.DB)
	j := replantest.DrawerJoint

	t.Run("Test", func(t *testing.T) {
		ok, err := s.Test(ctx, "test-door", j, w.ClosedConf(j), replan.DoorClosed)
		if err != nil || !ok {
			t.Errorf("expected the closed drawer to test closed, got ok=%v err=%v", ok, err)
		}
		ok, err = s.Test(ctx, "test-door", j, w.ClosedConf(j), replan.DoorOpen)
		if err != nil || ok {
			t.Errorf("expected the closed drawer not to test open, got ok=%v err=%v", ok, err)
		}
	})

	t.Run("Function", func(t *testing.T) {
		out, ok, err := s.Evaluate(ctx, "base-cost", w.BaseConf(0, 0, 0), w.BaseConf(1, 0, 0))
		if err != nil || !ok {
			t.Fatalf("expected a cost, got ok=%v err=%v", ok, err)
		}
		if cost := out[0].(float64); cost != 5 {
			t.Errorf("expected cost 5, got %v", cost)
		}
	})

	t.Run("FunctionWithoutFluents", func(t *testing.T) {
		out, ok, err := s.Evaluate(ctx, "plan-base-motion", w.BaseConf(0, 0, 0), w.BaseConf(0.5, 0, 0), w.CarryConf(), nil)
		if err != nil || !ok {
			t.Fatalf("expected a base trajectory, got ok=%v err=%v", ok, err)
		}
		if _, isSeq := out[0].(*replan.Sequence); !isSeq {
			t.Errorf("expected a sequence, got %T", out[0])
		}
	})

	t.Run("Generator", func(t *testing.T) {
		gen, err := s.Generate(ctx, "sample-grasp", replantest.Block, "top")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		out := replantest.Draw(t, ctx, gen, 1)
		if len(out) != 1 {
			t.Fatalf("expected one output, got %d", len(out))
		}
		if g, ok := out[0].(*replan.Grasp); !ok || g.Object != replantest.Block {
			t.Errorf("expected a block grasp, got %v", out[0])
		}
	})

	t.Run("GeneratorError", func(t *testing.T) {
		gen, err := s.Generate(ctx, "sample-pose", "anvil", replantest.Counter)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, _, err := replantest.Drain(ctx, gen, 1); !errors.Is(err, replan.ErrUnknownObject) {
			t.Errorf("expected ErrUnknownObject, got %v", err)
		}
	})
}

func TestStreamsMetrics(t *testing.T) {
	ctx := context.Background()
	m, err := replan.NewMetrics(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("failed to create metrics: %v", err)
	}
	f := replantest.NewKitchen(t, replantest.Config(), replan.WithMetrics(m))
	w := f.World
	s := replan.NewStreams(w, f.DB)

	for range 3 {
		if _, err := s.Test(ctx, "test-gripper", w.OpenGripperConf()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if _, err := s.Test(ctx, "test-gripper", w.ClosedGripperConf()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := testutil.ToFloat64(m.StreamCalls.WithLabelValues("test-gripper")); got != 4 {
		t.Errorf("expected 4 calls, got %v", got)
	}
	if got := testutil.ToFloat64(m.StreamResults.WithLabelValues("test-gripper", "value")); got != 3 {
		t.Errorf("expected 3 passes, got %v", got)
	}
	if got := testutil.ToFloat64(m.StreamResults.WithLabelValues("test-gripper", "done")); got != 1 {
		t.Errorf("expected 1 failure, got %v", got)
	}
}
