package replan

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/zoobzio/capitan"
)

// Kind is a stream calling convention.
type Kind string

const (
	// KindGenerator streams return a lazy Generator of bindings.
	KindGenerator Kind = "generator"
	// KindFunction streams return at most one binding.
	KindFunction Kind = "function"
	// KindTest streams return a boolean.
	KindTest Kind = "test"
)

// Descriptor names a stream and its positional signature.
type Descriptor struct {
	Name    string   `yaml:"name"`
	Kind    Kind     `yaml:"kind"`
	Inputs  []string `yaml:"inputs"`
	Outputs []string `yaml:"outputs,omitempty"`
}

var catalog = []Descriptor{
	{Name: "sample-pose", Kind: KindGenerator, Inputs: []string{"?o", "?r"}, Outputs: []string{"?rp"}},
	{Name: "sample-nearby-pose", Kind: KindGenerator, Inputs: []string{"?o", "?r", "?rp2", "?bq"}, Outputs: []string{"?wp", "?rp"}},
	{Name: "sample-grasp", Kind: KindGenerator, Inputs: []string{"?o", "?gty"}, Outputs: []string{"?g"}},
	{Name: "inverse-kinematics", Kind: KindGenerator, Inputs: []string{"?o", "?wp", "?g"}, Outputs: []string{"?bq", "?aq", "?at"}},
	{Name: "fixed-inverse-kinematics", Kind: KindGenerator, Inputs: []string{"?o", "?wp", "?g", "?bq"}, Outputs: []string{"?aq", "?at"}},
	{Name: "plan-pull", Kind: KindGenerator, Inputs: []string{"?j", "?a1", "?a2"}, Outputs: []string{"?bq", "?aq1", "?aq2", "?at"}},
	{Name: "fixed-plan-pull", Kind: KindGenerator, Inputs: []string{"?j", "?a1", "?a2", "?bq"}, Outputs: []string{"?aq1", "?aq2", "?at"}},
	{Name: "plan-press", Kind: KindGenerator, Inputs: []string{"?k"}, Outputs: []string{"?bq", "?aq", "?at"}},
	{Name: "fixed-plan-press", Kind: KindGenerator, Inputs: []string{"?k", "?bq"}, Outputs: []string{"?aq", "?at"}},
	{Name: "sample-observation", Kind: KindGenerator, Inputs: []string{"?o", "?pd", "?r"}, Outputs: []string{"?obs"}},

	{Name: "compute-pose-kin", Kind: KindFunction, Inputs: []string{"?o1", "?rp", "?o2", "?p2"}, Outputs: []string{"?p1"}},
	{Name: "compute-angle-kin", Kind: KindFunction, Inputs: []string{"?o", "?j", "?a"}, Outputs: []string{"?p"}},
	{Name: "plan-base-motion", Kind: KindFunction, Inputs: []string{"?bq1", "?bq2", "?aq", "fluents"}, Outputs: []string{"?bt"}},
	{Name: "plan-arm-motion", Kind: KindFunction, Inputs: []string{"?bq", "?aq1", "?aq2", "fluents"}, Outputs: []string{"?at"}},
	{Name: "plan-gripper-motion", Kind: KindFunction, Inputs: []string{"?gq1", "?gq2"}, Outputs: []string{"?gt"}},
	{Name: "plan-calibrate-motion", Kind: KindFunction, Inputs: []string{"?bq"}, Outputs: []string{"?at"}},
	{Name: "compute-detect", Kind: KindFunction, Inputs: []string{"?o", "?wp"}, Outputs: []string{"?obs"}},
	{Name: "update-belief", Kind: KindFunction, Inputs: []string{"?o", "?pd", "?r", "?obs"}, Outputs: []string{"?rp"}},
	{Name: "base-cost", Kind: KindFunction, Inputs: []string{"?bq1", "?bq2"}, Outputs: []string{"cost"}},
	{Name: "trajectory-cost", Kind: KindFunction, Inputs: []string{"?bt"}, Outputs: []string{"cost"}},
	{Name: "detect-cost", Kind: KindFunction, Inputs: []string{"?o", "?pd", "?rp"}, Outputs: []string{"cost"}},

	{Name: "test-door", Kind: KindTest, Inputs: []string{"?j", "?a", "?s"}},
	{Name: "test-gripper", Kind: KindTest, Inputs: []string{"?gq"}},
	{Name: "test-cfree-pose-pose", Kind: KindTest, Inputs: []string{"?o1", "?rp1", "?o2", "?rp2"}},
	{Name: "test-cfree-worldpose", Kind: KindTest, Inputs: []string{"?o1", "?wp1"}},
	{Name: "test-cfree-worldpose-worldpose", Kind: KindTest, Inputs: []string{"?o1", "?wp1", "?o2", "?wp2"}},
	{Name: "test-cfree-bconf-pose", Kind: KindTest, Inputs: []string{"?bq", "?o2", "?wp2"}},
	{Name: "test-cfree-approach-pose", Kind: KindTest, Inputs: []string{"?o1", "?wp1", "?g1", "?o2", "?wp2"}},
	{Name: "test-cfree-angle-angle", Kind: KindTest, Inputs: []string{"?j1", "?a1", "?a2", "?o2", "?wp2"}},
	{Name: "test-cfree-traj-pose", Kind: KindTest, Inputs: []string{"?at", "?o2", "?wp2"}},
	{Name: "test-near-pose", Kind: KindTest, Inputs: []string{"?o", "?wp", "?bq"}},
	{Name: "test-near-joint", Kind: KindTest, Inputs: []string{"?j", "?bq"}},
	{Name: "test-reachable", Kind: KindTest, Inputs: []string{"?bq"}},
	{Name: "test-ofree-ray-pose", Kind: KindTest, Inputs: []string{"?obs", "?o", "?wp"}},
	{Name: "test-ofree-ray-grasp", Kind: KindTest, Inputs: []string{"?obs", "?bq", "?aq", "?o", "?g"}},
}

// Catalog lists every stream descriptor.
func Catalog() []Descriptor {
	out := make([]Descriptor, len(catalog))
	copy(out, catalog)
	return out
}

type (
	generatorImpl func(ctx context.Context, b *binder) (Generator[[]any], error)
	functionImpl  func(ctx context.Context, b *binder) ([]any, bool, error)
	testImpl      func(ctx context.Context, b *binder) (bool, error)
)

// Streams binds every catalog entry to a world.
type Streams struct {
	w         *World
	db        Database
	belief    *Belief
	nearPose  *NearPoseTest
	nearJoint *NearJointTest

	descriptors map[string]Descriptor
	generators  map[string]generatorImpl
	functions   map[string]functionImpl
	tests       map[string]testImpl
}

// StreamsOption configures a Streams registry.
type StreamsOption func(*Streams)

// WithBelief sets the belief mutated by update-belief.
func WithBelief(b *Belief) StreamsOption {
	return func(s *Streams) { s.belief = b }
}

// NewStreams creates the registry. A nil db is an empty MemoryDatabase.
func NewStreams(w *World, db Database, opts ...StreamsOption) *Streams {
	if db == nil {
		db = NewMemoryDatabase()
	}
	s := &Streams{
		w:           w,
		db:          db,
		belief:      NewBelief(),
		nearPose:    NewNearPoseTest(w, db),
		nearJoint:   NewNearJointTest(w, db),
		descriptors: make(map[string]Descriptor, len(catalog)),
	}
	for _, opt := range opts {
		opt(s)
	}
	for _, d := range catalog {
		s.descriptors[d.Name] = d
	}
	s.generators = s.generatorImpls()
	s.functions = s.functionImpls()
	s.tests = s.testImpls()
	return s
}

// Belief returns the registry's belief.
func (s *Streams) Belief() *Belief { return s.belief }

// Generate calls a generator stream.
func (s *Streams) Generate(ctx context.Context, name string, args ...any) (Generator[[]any], error) {
	b, err := s.start(ctx, name, KindGenerator, args)
	if err != nil {
		return nil, err
	}
	g, err := s.generators[name](ctx, b)
	if err != nil {
		return nil, s.violation(ctx, name, err)
	}
	return s.observe(name, g), nil
}

// Evaluate calls a function stream. It reports false when the function has
// no output for these arguments.
func (s *Streams) Evaluate(ctx context.Context, name string, args ...any) ([]any, bool, error) {
	b, err := s.start(ctx, name, KindFunction, args)
	if err != nil {
		return nil, false, err
	}
	out, ok, err := s.functions[name](ctx, b)
	if err != nil {
		return nil, false, s.violation(ctx, name, err)
	}
	s.finish(ctx, name, out, ok)
	return out, ok, nil
}

// Test calls a test stream.
func (s *Streams) Test(ctx context.Context, name string, args ...any) (bool, error) {
	b, err := s.start(ctx, name, KindTest, args)
	if err != nil {
		return false, err
	}
	ok, err := s.tests[name](ctx, b)
	if err != nil {
		return false, s.violation(ctx, name, err)
	}
	s.finish(ctx, name, nil, ok)
	return ok, nil
}

func (s *Streams) start(ctx context.Context, name string, kind Kind, args []any) (*binder, error) {
	d, ok := s.descriptors[name]
	if !ok {
		return nil, s.violation(ctx, name, fmt.Errorf("%w: unknown stream %q", ErrContract, name))
	}
	if d.Kind != kind {
		return nil, s.violation(ctx, name, fmt.Errorf("%w: %s is a %s stream, not a %s", ErrContract, name, d.Kind, kind))
	}
	if len(args) != len(d.Inputs) {
		return nil, s.violation(ctx, name, fmt.Errorf("%w: %s takes %d arguments, got %d", ErrContract, name, len(d.Inputs), len(args)))
	}
	s.w.metrics.call(name)
	capitan.Emit(ctx, StreamStarted,
		FieldStream.Field(name),
		FieldKind.Field(string(kind)),
	)
	return &binder{stream: name, inputs: d.Inputs, args: args}, nil
}

func (s *Streams) finish(ctx context.Context, name string, out []any, ok bool) {
	if !ok {
		s.w.metrics.result(name, OutcomeDone)
		capitan.Emit(ctx, StreamDone, FieldStream.Field(name))
		return
	}
	s.w.metrics.result(name, OutcomeValue)
	emitYield(ctx, name, out)
}

func (s *Streams) violation(ctx context.Context, name string, err error) error {
	if !errors.Is(err, ErrContract) {
		return err
	}
	capitan.Error(ctx, ContractViolation,
		FieldStream.Field(name),
		FieldError.Field(err),
	)
	return err
}

// observe instruments every pull of g.
func (s *Streams) observe(name string, g Generator[[]any]) Generator[[]any] {
	return Stream(func(ctx context.Context) Result[[]any] {
		r := g.Next(ctx)
		s.w.metrics.result(name, r.Outcome())
		switch r.Outcome() {
		case OutcomeValue:
			out, _ := r.Get()
			emitYield(ctx, name, out)
		case OutcomeDone:
			if err := r.Err(); err != nil {
				s.violation(ctx, name, err)
				capitan.Error(ctx, StreamDone,
					FieldStream.Field(name),
					FieldError.Field(err),
				)
			} else {
				capitan.Emit(ctx, StreamDone, FieldStream.Field(name))
			}
		}
		return r
	})
}

func emitYield(ctx context.Context, name string, out []any) {
	for _, v := range out {
		if seq, ok := v.(*Sequence); ok {
			capitan.Emit(ctx, StreamYielded,
				FieldStream.Field(name),
				FieldSequenceID.Field(seq.ID.String()),
			)
			return
		}
	}
	capitan.Emit(ctx, StreamYielded, FieldStream.Field(name))
}

// binder converts positional arguments. The first mismatch is kept in err
// and later binds return zero values.
type binder struct {
	stream string
	inputs []string
	args   []any
	err    error
}

func bind[T any](b *binder, i int) T {
	var zero T
	if b.err != nil {
		return zero
	}
	v, ok := b.args[i].(T)
	if !ok {
		b.err = fmt.Errorf("%w: %s argument %s: expected %T, got %T", ErrContract, b.stream, b.inputs[i], zero, b.args[i])
		return zero
	}
	if rv := reflect.ValueOf(b.args[i]); rv.Kind() == reflect.Pointer && rv.IsNil() {
		b.err = fmt.Errorf("%w: %s argument %s: nil %T", ErrContract, b.stream, b.inputs[i], b.args[i])
		return zero
	}
	return v
}

// bindOptional is bind that also accepts an untyped nil.
func bindOptional[T any](b *binder, i int) T {
	if b.args[i] == nil {
		var zero T
		return zero
	}
	return bind[T](b, i)
}

func single[T any](g Generator[T]) Generator[[]any] {
	return Map(g, func(v T) []any { return []any{v} })
}

func (s *Streams) generatorImpls() map[string]generatorImpl {
	w, db := s.w, s.db
	return map[string]generatorImpl{
		"sample-pose": func(_ context.Context, b *binder) (Generator[[]any], error) {
			obj, surface := bind[string](b, 0), bind[string](b, 1)
			if b.err != nil {
				return nil, b.err
			}
			return single(StableGen(w, db, obj, surface)), nil
		},
		"sample-nearby-pose": func(_ context.Context, b *binder) (Generator[[]any], error) {
			obj, surface, sp, bq := bind[string](b, 0), bind[string](b, 1), bind[*RelPose](b, 2), bind[*Conf](b, 3)
			if b.err != nil {
				return nil, b.err
			}
			return Map(NearbyStableGen(w, db, obj, surface, sp, bq), func(p NearbyPose) []any {
				return []any{p.World, p.Relative}
			}), nil
		},
		"sample-grasp": func(_ context.Context, b *binder) (Generator[[]any], error) {
			obj, graspType := bind[string](b, 0), bind[string](b, 1)
			if b.err != nil {
				return nil, b.err
			}
			return single(GraspGen(w, obj, graspType)), nil
		},
		"inverse-kinematics": func(_ context.Context, b *binder) (Generator[[]any], error) {
			obj, pose, grasp := bind[string](b, 0), bind[*RelPose](b, 1), bind[*Grasp](b, 2)
			if b.err != nil {
				return nil, b.err
			}
			return Map(PickGen(w, db, obj, pose, grasp), func(r *PickResult) []any {
				return []any{r.Base, r.Approach, r.Sequence}
			}), nil
		},
		"fixed-inverse-kinematics": func(_ context.Context, b *binder) (Generator[[]any], error) {
			obj, pose, grasp, bq := bind[string](b, 0), bind[*RelPose](b, 1), bind[*Grasp](b, 2), bind[*Conf](b, 3)
			if b.err != nil {
				return nil, b.err
			}
			return Map(FixedPickGen(w, obj, pose, grasp, bq), func(r *PickResult) []any {
				return []any{r.Approach, r.Sequence}
			}), nil
		},
		"plan-pull": func(_ context.Context, b *binder) (Generator[[]any], error) {
			joint, a1, a2 := bind[string](b, 0), bind[*Conf](b, 1), bind[*Conf](b, 2)
			if b.err != nil {
				return nil, b.err
			}
			return Map(PullGen(w, db, joint, a1, a2), func(r *PullResult) []any {
				return []any{r.Base, r.Approach1, r.Approach2, r.Sequence}
			}), nil
		},
		"fixed-plan-pull": func(_ context.Context, b *binder) (Generator[[]any], error) {
			joint, a1, a2, bq := bind[string](b, 0), bind[*Conf](b, 1), bind[*Conf](b, 2), bind[*Conf](b, 3)
			if b.err != nil {
				return nil, b.err
			}
			return Map(FixedPullGen(w, joint, a1, a2, bq), func(r *PullResult) []any {
				return []any{r.Approach1, r.Approach2, r.Sequence}
			}), nil
		},
		"plan-press": func(_ context.Context, b *binder) (Generator[[]any], error) {
			knob := bind[string](b, 0)
			if b.err != nil {
				return nil, b.err
			}
			return Map(PressGen(w, knob), func(r *PressResult) []any {
				return []any{r.Base, r.Approach, r.Sequence}
			}), nil
		},
		"fixed-plan-press": func(_ context.Context, b *binder) (Generator[[]any], error) {
			knob, bq := bind[string](b, 0), bind[*Conf](b, 1)
			if b.err != nil {
				return nil, b.err
			}
			return Map(FixedPressGen(w, knob, bq), func(r *PressResult) []any {
				return []any{r.Approach, r.Sequence}
			}), nil
		},
		"sample-observation": func(_ context.Context, b *binder) (Generator[[]any], error) {
			obj, dist, surface := bind[string](b, 0), bind[*SurfaceDist](b, 1), bind[string](b, 2)
			if b.err != nil {
				return nil, b.err
			}
			return single(SampleBeliefGen(w, obj, dist, surface)), nil
		},
	}
}

func (s *Streams) functionImpls() map[string]functionImpl {
	w := s.w
	sequence := func(seq *Sequence, ok bool, err error) ([]any, bool, error) {
		if err != nil || !ok {
			return nil, false, err
		}
		return []any{seq}, true, nil
	}
	return map[string]functionImpl{
		"compute-pose-kin": func(_ context.Context, b *binder) ([]any, bool, error) {
			o1, rp, o2, p2 := bind[string](b, 0), bind[PoseValue](b, 1), bind[string](b, 2), bind[*RelPose](b, 3)
			if b.err != nil {
				return nil, false, b.err
			}
			p1, ok := ComputePoseKin(o1, rp, o2, p2)
			if !ok {
				return nil, false, nil
			}
			return []any{p1}, true, nil
		},
		"compute-angle-kin": func(_ context.Context, b *binder) ([]any, bool, error) {
			obj, joint, a := bind[string](b, 0), bind[string](b, 1), bind[*Conf](b, 2)
			if b.err != nil {
				return nil, false, b.err
			}
			return []any{ComputeAngleKin(w, obj, joint, a)}, true, nil
		},
		"plan-base-motion": func(_ context.Context, b *binder) ([]any, bool, error) {
			bq1, bq2, aq, fluents := bind[*Conf](b, 0), bind[*Conf](b, 1), bind[*Conf](b, 2), bindOptional[[]Fluent](b, 3)
			if b.err != nil {
				return nil, false, b.err
			}
			return sequence(BaseMotionFn(w, bq1, bq2, aq, fluents))
		},
		"plan-arm-motion": func(_ context.Context, b *binder) ([]any, bool, error) {
			bq, aq1, aq2, fluents := bind[*Conf](b, 0), bind[*Conf](b, 1), bind[*Conf](b, 2), bindOptional[[]Fluent](b, 3)
			if b.err != nil {
				return nil, false, b.err
			}
			return sequence(ArmMotionFn(w, bq, aq1, aq2, fluents))
		},
		"plan-gripper-motion": func(_ context.Context, b *binder) ([]any, bool, error) {
			gq1, gq2 := bind[*Conf](b, 0), bind[*Conf](b, 1)
			if b.err != nil {
				return nil, false, b.err
			}
			seq, err := GripperMotionFn(w, gq1, gq2)
			return sequence(seq, true, err)
		},
		"plan-calibrate-motion": func(_ context.Context, b *binder) ([]any, bool, error) {
			bq := bind[*Conf](b, 0)
			if b.err != nil {
				return nil, false, b.err
			}
			seq, err := CalibrateFn(w, bq)
			return sequence(seq, true, err)
		},
		"compute-detect": func(ctx context.Context, b *binder) ([]any, bool, error) {
			obj, pose := bind[string](b, 0), bind[*RelPose](b, 1)
			if b.err != nil {
				return nil, false, b.err
			}
			detect, ok := ComputeDetect(ctx, w, obj, pose)
			if !ok {
				return nil, false, nil
			}
			return []any{detect}, true, nil
		},
		"update-belief": func(ctx context.Context, b *binder) ([]any, bool, error) {
			obj, dist, surface, obs := bind[string](b, 0), bind[*SurfaceDist](b, 1), bind[string](b, 2), bind[Observation](b, 3)
			if b.err != nil {
				return nil, false, b.err
			}
			rp, err := UpdateBelief(ctx, s.belief, obj, dist, surface, obs)
			if err != nil {
				return nil, false, err
			}
			return []any{rp}, true, nil
		},
		"base-cost": func(_ context.Context, b *binder) ([]any, bool, error) {
			bq1, bq2 := bind[*Conf](b, 0), bind[*Conf](b, 1)
			if b.err != nil {
				return nil, false, b.err
			}
			for _, bq := range []*Conf{bq1, bq2} {
				if err := checkGroup(bq, w.BaseGroup()); err != nil {
					return nil, false, fmt.Errorf("base cost: %w", err)
				}
			}
			return []any{BaseCost(bq1, bq2)}, true, nil
		},
		"trajectory-cost": func(_ context.Context, b *binder) ([]any, bool, error) {
			seq := bind[*Sequence](b, 0)
			if b.err != nil {
				return nil, false, b.err
			}
			return []any{SequenceCost(w, seq)}, true, nil
		},
		"detect-cost": func(_ context.Context, b *binder) ([]any, bool, error) {
			dist, rp := bind[*SurfaceDist](b, 1), bind[*RelPose](b, 2)
			if b.err != nil {
				return nil, false, b.err
			}
			return []any{DetectCostFn(dist, rp)}, true, nil
		},
	}
}

func (s *Streams) testImpls() map[string]testImpl {
	w := s.w
	return map[string]testImpl{
		"test-door": func(_ context.Context, b *binder) (bool, error) {
			joint, conf, status := bind[string](b, 0), bind[*Conf](b, 1), bind[string](b, 2)
			if b.err != nil {
				return false, b.err
			}
			return DoorTest(w, joint, conf, status)
		},
		"test-gripper": func(_ context.Context, b *binder) (bool, error) {
			gq := bind[*Conf](b, 0)
			if b.err != nil {
				return false, b.err
			}
			return GripperOpenTest(w, gq)
		},
		"test-cfree-pose-pose": func(_ context.Context, b *binder) (bool, error) {
			o1, rp1, o2, rp2 := bind[string](b, 0), bind[PoseValue](b, 1), bind[string](b, 2), bind[PoseValue](b, 3)
			if b.err != nil {
				return false, b.err
			}
			return CFreePosePose(w, o1, rp1, o2, rp2), nil
		},
		"test-cfree-worldpose": func(_ context.Context, b *binder) (bool, error) {
			o1, wp1 := bind[string](b, 0), bind[PoseValue](b, 1)
			if b.err != nil {
				return false, b.err
			}
			return CFreeWorldPose(w, o1, wp1), nil
		},
		"test-cfree-worldpose-worldpose": func(_ context.Context, b *binder) (bool, error) {
			o1, wp1, o2, wp2 := bind[string](b, 0), bind[PoseValue](b, 1), bind[string](b, 2), bind[PoseValue](b, 3)
			if b.err != nil {
				return false, b.err
			}
			return CFreeWorldPoseWorldPose(w, o1, wp1, o2, wp2), nil
		},
		"test-cfree-bconf-pose": func(_ context.Context, b *binder) (bool, error) {
			bq, o2, wp2 := bind[*Conf](b, 0), bind[string](b, 1), bind[PoseValue](b, 2)
			if b.err != nil {
				return false, b.err
			}
			return CFreeBConfPose(w, bq, o2, wp2), nil
		},
		"test-cfree-approach-pose": func(_ context.Context, b *binder) (bool, error) {
			o1, wp1, g1 := bind[string](b, 0), bind[PoseValue](b, 1), bind[*Grasp](b, 2)
			o2, wp2 := bind[string](b, 3), bind[PoseValue](b, 4)
			if b.err != nil {
				return false, b.err
			}
			return CFreeApproachPose(w, o1, wp1, g1, o2, wp2), nil
		},
		"test-cfree-angle-angle": func(_ context.Context, b *binder) (bool, error) {
			j1, a1, a2 := bind[string](b, 0), bind[*Conf](b, 1), bind[*Conf](b, 2)
			o2, wp := bind[string](b, 3), bind[PoseValue](b, 4)
			if b.err != nil {
				return false, b.err
			}
			return CFreeAngleAngle(w, j1, a1, a2, o2, wp), nil
		},
		"test-cfree-traj-pose": func(_ context.Context, b *binder) (bool, error) {
			seq, o2, wp2 := bind[*Sequence](b, 0), bind[string](b, 1), bind[PoseValue](b, 2)
			if b.err != nil {
				return false, b.err
			}
			return CFreeTrajPose(w, seq, o2, wp2), nil
		},
		"test-near-pose": func(ctx context.Context, b *binder) (bool, error) {
			obj, pose, bq := bind[string](b, 0), bind[PoseValue](b, 1), bind[*Conf](b, 2)
			if b.err != nil {
				return false, b.err
			}
			return s.nearPose.Test(ctx, obj, pose, bq)
		},
		"test-near-joint": func(ctx context.Context, b *binder) (bool, error) {
			joint, bq := bind[string](b, 0), bind[*Conf](b, 1)
			if b.err != nil {
				return false, b.err
			}
			return s.nearJoint.Test(ctx, joint, bq)
		},
		"test-reachable": func(_ context.Context, b *binder) (bool, error) {
			bq := bind[*Conf](b, 0)
			if b.err != nil {
				return false, b.err
			}
			return ReachabilityTest(w, bq)
		},
		"test-ofree-ray-pose": func(_ context.Context, b *binder) (bool, error) {
			detect, obj, pose := bind[*Detect](b, 0), bind[string](b, 1), bind[PoseValue](b, 2)
			if b.err != nil {
				return false, b.err
			}
			return OFreeRayPoseTest(w, detect, obj, pose), nil
		},
		"test-ofree-ray-grasp": func(_ context.Context, b *binder) (bool, error) {
			detect, bq, aq := bind[*Detect](b, 0), bind[*Conf](b, 1), bind[*Conf](b, 2)
			obj, grasp := bindOptional[string](b, 3), bindOptional[*Grasp](b, 4)
			if b.err != nil {
				return false, b.err
			}
			if obj != "" && grasp == nil {
				return false, fmt.Errorf("%w: holding %s needs a grasp", ErrContract, obj)
			}
			return OFreeRayGraspTest(w, detect, bq, aq, obj, grasp), nil
		},
	}
}
