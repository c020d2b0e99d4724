package replantest

import (
	"context"
	"math"
	"testing"

	"github.com/golang/geo/r3"
	replan "github.com/zlatanajanovic/SS-Replan"
)

// Names used by the kitchen fixture.
const (
	RobotName   = "mock"
	Robot       = "robot"
	Gripper     = "gripper"
	Kitchen     = "kitchen"
	Block       = "block"
	Cup         = "cup"
	Counter     = "counter"
	Drawer      = "drawer"
	DrawerJoint = "drawer_joint"
	Handle      = "drawer_handle"
	Knob        = "knob"
	Cabinet     = "cabinet"
	Camera      = "head"
)

// Fixture geometry.
var (
	CounterCenter = r3.Vector{X: 1.5, Y: 0.8, Z: 0.85}
	CounterHalf   = r3.Vector{X: 0.3, Y: 0.3, Z: 0.05}
	DrawerCenter  = r3.Vector{X: 1.5, Y: -0.6, Z: 0.5}
	DrawerHalf    = r3.Vector{X: 0.2, Y: 0.2, Z: 0.02}
	HandleCenter  = r3.Vector{X: 1.26, Y: -0.6, Z: 0.6}
	HandleHalf    = r3.Vector{X: 0.01, Y: 0.06, Z: 0.01}
	KnobCenter    = r3.Vector{X: 1.25, Y: 0.8, Z: 0.94}
	KnobHalf      = r3.Vector{X: 0.02, Y: 0.02, Z: 0.04}
	CabinetCenter = r3.Vector{X: 1.85, Y: -0.6, Z: 0.525}
	CabinetHalf   = r3.Vector{X: 0.1, Y: 0.3, Z: 0.175}
	ObjectHalf    = r3.Vector{X: 0.03, Y: 0.03, Z: 0.03}
)

// DrawerOpen is the drawer joint value when fully open.
const DrawerOpen = 0.35

const (
	fingerOpen   = 0.04
	fingerOffset = 0.06
	baseHeight   = 0.15
)

var (
	baseJoints = []string{"x", "y", "theta"}
	armJoints  = []string{"arm_x", "arm_y", "arm_z", "arm_qx", "arm_qy", "arm_qz", "arm_qw"}
	carryConf  = []float64{0.2, 0, 1.0, 0, 0, 0, 1}
)

// NewKitchenGateway builds the box world: a kitchen with a counter, a knob, a
// raised cabinet and a drawer, a mobile robot, a free gripper and two blocks
// resting on the counter.
func NewKitchenGateway() *MockGateway {
	g := NewMockGateway()

	g.addBody(Kitchen, replan.UnitPose, []string{DrawerJoint},
		&linkModel{name: Counter, half: CounterHalf, frame: fixed(at(CounterCenter))},
		&linkModel{name: Knob, half: KnobHalf, frame: fixed(at(KnobCenter))},
		&linkModel{name: Cabinet, half: CabinetHalf, frame: fixed(at(CabinetCenter))},
		&linkModel{name: Drawer, half: DrawerHalf, frame: sliding(DrawerCenter)},
		&linkModel{name: Handle, half: HandleHalf, frame: sliding(HandleCenter)},
	)

	joints := append(append(append([]string(nil), baseJoints...), armJoints...), "finger")
	base := func(v map[string]float64) replan.Pose {
		return replan.NewPose(r3.Vector{X: v["x"], Y: v["y"], Z: baseHeight}, replan.Euler{Yaw: v["theta"]})
	}
	tool := func(v map[string]float64) replan.Pose {
		q := replan.Quat{X: v["arm_qx"], Y: v["arm_qy"], Z: v["arm_qz"], W: v["arm_qw"]}.Normalize()
		return replan.Multiply(base(v), replan.Pose{Point: r3.Vector{X: v["arm_x"], Y: v["arm_y"], Z: v["arm_z"]}, Quat: q})
	}
	links := append([]*linkModel{{name: "base_link", half: r3.Vector{X: 0.25, Y: 0.25, Z: baseHeight}, frame: base}},
		hand("tool_link", "finger", tool)...)
	g.addBody(Robot, replan.UnitPose, joints, links...)
	g.bodies[Robot].values["finger"] = fingerOpen
	g.setJointPositions(Robot, armJoints, carryConf)
	g.arm = &armModel{body: Robot, baseLink: "base_link", joints: armJoints, reach: 1.3, minZ: -0.1, maxZ: 1.6}

	g.addBody(Gripper, replan.Translate(0, 0, -3), []string{"finger"},
		hand("palm", "finger", func(map[string]float64) replan.Pose { return replan.UnitPose })...)
	g.bodies[Gripper].values["finger"] = fingerOpen

	top := CounterCenter.Z + CounterHalf.Z + ObjectHalf.Z + replan.DefaultZOffset
	g.AddBox(Block, replan.Translate(1.5, 0.8, top), ObjectHalf)
	g.AddBox(Cup, replan.Translate(1.7, 1.0, top), ObjectHalf)
	return g
}

// hand is a palm box at the tool frame with two fingers sliding along the
// tool x axis, offset along the tool z axis.
func hand(palm, finger string, tool func(map[string]float64) replan.Pose) []*linkModel {
	fingerAt := func(side float64) func(map[string]float64) replan.Pose {
		return func(v map[string]float64) replan.Pose {
			return replan.Multiply(tool(v), replan.Translate(side*(v[finger]+0.005), 0, fingerOffset))
		}
	}
	fingerHalf := r3.Vector{X: 0.005, Y: 0.01, Z: 0.03}
	return []*linkModel{
		{name: palm, half: r3.Vector{X: 0.02, Y: 0.02, Z: 0.02}, frame: tool},
		{name: "finger_left", half: fingerHalf, frame: fingerAt(1)},
		{name: "finger_right", half: fingerHalf, frame: fingerAt(-1)},
	}
}

func at(p r3.Vector) replan.Pose { return replan.Translate(p.X, p.Y, p.Z) }

// sliding links move towards the robot by the drawer joint value.
func sliding(center r3.Vector) func(map[string]float64) replan.Pose {
	return func(v map[string]float64) replan.Pose {
		return replan.Translate(center.X-v[DrawerJoint], center.Y, center.Z)
	}
}

// TopGrasps are the four vertical grasps of a fixture block.
func TopGrasps() []replan.Pose {
	grasps := make([]replan.Pose, 4)
	for i := range grasps {
		grasps[i] = replan.NewPose(r3.Vector{Z: 2 * ObjectHalf.Z}, replan.Euler{Roll: math.Pi, Yaw: float64(i) * math.Pi / 2})
	}
	return grasps
}

// NewScene describes the fixture gateway to the stream layer.
func NewScene() replan.Scene {
	return replan.Scene{
		Kitchen: Kitchen,
		Robot: replan.RobotSpec{
			Name:          RobotName,
			Body:          Robot,
			BaseJoints:    baseJoints,
			ArmJoints:     armJoints,
			GripperJoints: []string{"finger"},
			BaseLink:      "base_link",
			ToolLink:      "tool_link",
			ArmLinks:      []string{"tool_link", "finger_left", "finger_right"},
			GripperLinks:  []string{"finger_left", "finger_right"},
			BaseLower:     []float64{-3, -3, -2 * math.Pi},
			BaseUpper:     []float64{3, 3, 2 * math.Pi},
			ArmLower:      []float64{-1.3, -1.3, -0.1, -1, -1, -1, -1},
			ArmUpper:      []float64{1.3, 1.3, 1.6, 1, 1, 1, 1},
			CarryConf:     carryConf,
			OpenGripper:   []float64{fingerOpen},
			ClosedGripper: []float64{0},
			SpecialConfs:  [][]float64{carryConf},
			Gripper:       Gripper,
		},
		Doors: map[string]replan.DoorSpec{
			DrawerJoint: {
				Sign:        1,
				Open:        DrawerOpen,
				Closed:      0,
				Drawer:      true,
				Links:       []string{Drawer, Handle},
				HandleLinks: []string{Handle},
			},
		},
		Surfaces: map[string]replan.SurfaceSpec{
			Counter: {Link: Counter, Obstacles: []replan.Obstacle{{Body: Kitchen, Links: []string{Knob}}}},
			Drawer:  {Link: Drawer, Drawer: DrawerJoint},
		},
		Knobs:   map[string]replan.KnobSpec{Knob: {Link: Knob}},
		Movable: []string{Block, Cup},
		Static:  []replan.Obstacle{{Body: Kitchen, Links: []string{Counter, Cabinet}}},
		Cameras: []replan.CameraSpec{{
			Name:    Camera,
			Pose:    replan.LookAt(r3.Vector{X: 1.0, Y: 0.8, Z: 2.0}, r3.Vector{X: 1.3, Y: 0.1, Z: 0.7}),
			Depth:   4,
			HalfFOV: 0.9,
		}},
		Grasps: map[string]map[string][]replan.Pose{
			Block: {"top": TopGrasps()},
			Cup:   {"top": TopGrasps()},
		},
	}
}

// Config is the default configuration with uniform samplers and a fixed seed.
func Config() replan.Config {
	cfg := replan.DefaultConfig()
	cfg.Learned = false
	cfg.Seed = 7
	return cfg
}

// Fixture bundles a kitchen world with its gateway and an empty database.
type Fixture struct {
	World   *replan.World
	Gateway *MockGateway
	DB      *replan.MemoryDatabase
}

// NewKitchen builds a fixture world for cfg.
func NewKitchen(t testing.TB, cfg replan.Config, opts ...replan.WorldOption) *Fixture {
	t.Helper()
	gw := NewKitchenGateway()
	w, err := replan.NewWorld(gw, NewScene(), cfg, opts...)
	if err != nil {
		t.Fatalf("failed to create world: %v", err)
	}
	return &Fixture{World: w, Gateway: gw, DB: replan.NewMemoryDatabase()}
}

// PoseOn captures the current pose of obj relative to surface.
func (f *Fixture) PoseOn(obj, surface string) *replan.RelPose {
	return replan.CreateRelativePose(f.World, obj, surface)
}

// Grasp returns the i-th top grasp of obj.
func (f *Fixture) Grasp(t testing.TB, ctx context.Context, obj string, i int) *replan.Grasp {
	t.Helper()
	grasps, err := replan.Collect(ctx, replan.GraspGen(f.World, obj, "top"), 4, 4)
	if err != nil {
		t.Fatalf("grasp generator failed: %v", err)
	}
	if i >= len(grasps) {
		t.Fatalf("expected at least %d grasps, got %d", i+1, len(grasps))
	}
	return grasps[i]
}

// Draw pulls gen until it yields a value, failing t if it is Done or maxPulls
// pulls return only sentinels.
func Draw[T any](t testing.TB, ctx context.Context, gen replan.Generator[T], maxPulls int) T {
	t.Helper()
	v, ok, err := replan.First(ctx, gen, maxPulls)
	if err != nil {
		t.Fatalf("generator failed: %v", err)
	}
	if !ok {
		t.Fatalf("expected a value within %d pulls", maxPulls)
	}
	return v
}

// Drain pulls gen until it is Done or maxPulls pulls have been made and
// returns the values and the number of Retry sentinels seen.
func Drain[T any](ctx context.Context, gen replan.Generator[T], maxPulls int) (values []T, retries int, err error) {
	for range maxPulls {
		r := gen.Next(ctx)
		switch r.Outcome() {
		case replan.OutcomeValue:
			v, _ := r.Get()
			values = append(values, v)
		case replan.OutcomeRetry:
			retries++
		default:
			return values, retries, r.Err()
		}
	}
	return values, retries, nil
}
