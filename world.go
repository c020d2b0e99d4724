package replan

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"

	"github.com/golang/geo/r3"
)

// Obstacle names a body, or a subset of its links. Nil Links means every link.
type Obstacle struct {
	Body  string
	Links []string
}

// Key returns a stable identity for the obstacle.
func (o Obstacle) Key() string {
	if len(o.Links) == 0 {
		return o.Body
	}
	links := append([]string(nil), o.Links...)
	slices.Sort(links)
	return o.Body + "[" + strings.Join(links, ",") + "]"
}

// MotionRequest asks the gateway for a path from the group's current
// configuration to Target.
type MotionRequest struct {
	Group          JointGroup
	Target         []float64
	Obstacles      []Obstacle
	Attachments    []*Attachment
	Resolution     float64
	Direct         bool // straight-line only
	SelfCollisions bool
}

// Gateway is the geometry and kinematics engine. Implementations own the
// mutable world configuration; the stream layer only reads and writes it
// through these calls.
type Gateway interface {
	Pose(body string) Pose
	SetPose(body string, pose Pose)
	LinkPose(body, link string) Pose
	Joints(body string) []string
	JointPositions(body string, joints []string) []float64
	SetJointPositions(body string, joints []string, values []float64)

	AABB(o Obstacle) AABB
	// Collision reports whether a and b are closer than maxDistance.
	Collision(a, b Obstacle, maxDistance float64) bool

	// InverseKinematics solves for target starting from the group's current
	// values. On success the group is left at the solution. Solutions farther
	// than tolerance from the seed are rejected.
	InverseKinematics(group JointGroup, target Pose, tolerance float64) ([]float64, bool)
	PlanMotion(req MotionRequest) ([][]float64, bool)
	// Interpolate excludes from and includes to.
	Interpolate(group JointGroup, from, to []float64, resolution float64) [][]float64

	// RayTest returns every obstacle the rays pass through.
	RayTest(rays []Ray) []Obstacle
}

// RobotSpec describes the mobile manipulator.
type RobotSpec struct {
	Name          string
	Body          string
	BaseJoints    []string
	ArmJoints     []string
	GripperJoints []string
	BaseLink      string
	ToolLink      string
	ArmLinks      []string
	GripperLinks  []string

	BaseLower []float64
	BaseUpper []float64
	ArmLower  []float64
	ArmUpper  []float64

	CarryConf     []float64
	OpenGripper   []float64
	ClosedGripper []float64
	SpecialConfs  [][]float64

	// Gripper is a free-floating copy of the hand used for approach checks.
	Gripper string
}

// DoorSpec describes an articulated kitchen joint.
type DoorSpec struct {
	Sign        float64
	Open        float64
	Closed      float64
	Drawer      bool
	Links       []string
	HandleLinks []string
}

// SurfaceSpec describes a placement surface on the kitchen.
type SurfaceSpec struct {
	Link      string
	Stove     bool
	Drawer    string
	Obstacles []Obstacle
}

// KnobSpec describes a pressable kitchen knob.
type KnobSpec struct {
	Link string
}

// CameraSpec is a pinhole camera with a symmetric field of view.
type CameraSpec struct {
	Name    string
	Pose    Pose
	Depth   float64
	HalfFOV float64
}

// Scene is the static description of the kitchen task.
type Scene struct {
	Kitchen  string
	Robot    RobotSpec
	Doors    map[string]DoorSpec
	Surfaces map[string]SurfaceSpec
	Knobs    map[string]KnobSpec
	Movable  []string
	Static   []Obstacle
	Cameras  []CameraSpec
	// Grasps holds precomputed object-in-tool transforms per object and grasp type.
	Grasps map[string]map[string][]Pose
}

// World is the handle every sampler and predicate works through.
type World struct {
	gw      Gateway
	scene   Scene
	robot   RobotSpec
	cfg     Config
	rng     *rand.Rand
	cache   *CollisionCache
	metrics *Metrics
}

// WorldOption configures a World.
type WorldOption func(*World)

// WithRand injects the pseudorandom source.
func WithRand(rng *rand.Rand) WorldOption {
	return func(w *World) { w.rng = rng }
}

// WithMetrics attaches stream metrics.
func WithMetrics(m *Metrics) WorldOption {
	return func(w *World) { w.metrics = m }
}

// WithCollisionCache replaces the default cache.
func WithCollisionCache(c *CollisionCache) WorldOption {
	return func(w *World) { w.cache = c }
}

// NewWorld validates cfg and scene and binds them to gw.
func NewWorld(gw Gateway, scene Scene, cfg Config, opts ...WorldOption) (*World, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	for name, surface := range scene.Surfaces {
		if surface.Drawer == "" {
			continue
		}
		if _, ok := scene.Doors[surface.Drawer]; !ok {
			return nil, fmt.Errorf("surface %s: %w: %s", name, ErrUnknownJoint, surface.Drawer)
		}
	}
	w := &World{
		gw:    gw,
		scene: scene,
		robot: scene.Robot,
		cfg:   cfg,
		rng:   rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
	}
	if cfg.CollisionCacheSize > 0 {
		cache, err := NewCollisionCache(cfg.CollisionCacheSize)
		if err != nil {
			return nil, err
		}
		w.cache = cache
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.cache != nil {
		w.cache.metrics = w.metrics
	}
	return w, nil
}

// Gateway returns the underlying engine.
func (w *World) Gateway() Gateway { return w.gw }

// Config returns the stream configuration.
func (w *World) Config() Config { return w.cfg }

// Scene returns the task description.
func (w *World) Scene() Scene { return w.scene }

// Robot returns the robot description.
func (w *World) Robot() RobotSpec { return w.robot }

// Rand returns the injected PRNG.
func (w *World) Rand() *rand.Rand { return w.rng }

// Metrics returns the attached metrics, possibly nil.
func (w *World) Metrics() *Metrics { return w.metrics }

// Assign forces the world into the state each item describes, in order.
func (w *World) Assign(items ...Assignable) {
	for _, item := range items {
		item.Assign(w)
	}
}

// Joint groups.

func (w *World) BaseGroup() JointGroup {
	return JointGroup{Body: w.robot.Body, Joints: w.robot.BaseJoints}
}

func (w *World) ArmGroup() JointGroup {
	return JointGroup{Body: w.robot.Body, Joints: w.robot.ArmJoints}
}

func (w *World) GripperGroup() JointGroup {
	return JointGroup{Body: w.robot.Body, Joints: w.robot.GripperJoints}
}

func (w *World) DoorGroup(joint string) JointGroup {
	return JointGroup{Body: w.scene.Kitchen, Joints: []string{joint}}
}

// CurrentConf reads the group's current values.
func (w *World) CurrentConf(group JointGroup) *Conf {
	return NewConf(group, w.gw.JointPositions(group.Body, group.Joints))
}

// BaseConf builds a base configuration.
func (w *World) BaseConf(values ...float64) *Conf {
	return NewConf(w.BaseGroup(), values)
}

// CarryConf is the default arm configuration.
func (w *World) CarryConf() *Conf {
	return NewInitConf(w.ArmGroup(), w.robot.CarryConf)
}

// OpenGripperConf is the fully open finger configuration.
func (w *World) OpenGripperConf() *Conf {
	return NewConf(w.GripperGroup(), w.robot.OpenGripper)
}

// ClosedGripperConf is the fully closed finger configuration.
func (w *World) ClosedGripperConf() *Conf {
	return NewConf(w.GripperGroup(), w.robot.ClosedGripper)
}

// SpecialConfs are the fixed arm configurations every base must support.
func (w *World) SpecialConfs() []*Conf {
	confs := make([]*Conf, len(w.robot.SpecialConfs))
	for i, values := range w.robot.SpecialConfs {
		confs[i] = NewConf(w.ArmGroup(), values)
	}
	return confs
}

func (w *World) OpenGripper()  { w.Assign(w.OpenGripperConf()) }
func (w *World) CloseGripper() { w.Assign(w.ClosedGripperConf()) }

// SetToolPose moves the free-floating gripper to pose with its fingers open.
func (w *World) SetToolPose(pose Pose) {
	joints := w.gw.Joints(w.robot.Gripper)
	if len(joints) == len(w.robot.OpenGripper) {
		w.gw.SetJointPositions(w.robot.Gripper, joints, w.robot.OpenGripper)
	}
	w.gw.SetPose(w.robot.Gripper, pose)
}

// Doors.

func (w *World) door(joint string) (DoorSpec, error) {
	d, ok := w.scene.Doors[joint]
	if !ok {
		return DoorSpec{}, fmt.Errorf("%w: %s", ErrUnknownJoint, joint)
	}
	return d, nil
}

// DoorSign is +1 when opening increases the joint value.
func (w *World) DoorSign(joint string) float64 {
	d, _ := w.door(joint)
	if d.Sign == 0 {
		return 1
	}
	return d.Sign
}

func (w *World) OpenConf(joint string) *Conf {
	d, _ := w.door(joint)
	return NewConf(w.DoorGroup(joint), []float64{d.Open})
}

func (w *World) ClosedConf(joint string) *Conf {
	d, _ := w.door(joint)
	return NewConf(w.DoorGroup(joint), []float64{d.Closed})
}

func (w *World) OpenDoor(joint string)  { w.Assign(w.OpenConf(joint)) }
func (w *World) CloseDoor(joint string) { w.Assign(w.ClosedConf(joint)) }

// OpenSurfaceJoints opens the drawer carrying surface, if any.
func (w *World) OpenSurfaceJoints(surface string) {
	if s, ok := w.scene.Surfaces[surface]; ok && s.Drawer != "" {
		w.OpenDoor(s.Drawer)
	}
}

// Lookups.

func (w *World) IsMovable(name string) bool { return slices.Contains(w.scene.Movable, name) }

func (w *World) IsSurface(name string) bool {
	_, ok := w.scene.Surfaces[name]
	return ok
}

func (w *World) IsDoor(name string) bool {
	_, ok := w.scene.Doors[name]
	return ok
}

func (w *World) IsKnob(name string) bool {
	_, ok := w.scene.Knobs[name]
	return ok
}

func (w *World) surface(name string) (SurfaceSpec, error) {
	s, ok := w.scene.Surfaces[name]
	if !ok {
		return SurfaceSpec{}, fmt.Errorf("%w: %s", ErrUnknownSurface, name)
	}
	return s, nil
}

// SurfaceAABB is the current bounding box of the surface link.
func (w *World) SurfaceAABB(name string) AABB {
	s, _ := w.surface(name)
	return w.gw.AABB(Obstacle{Body: w.scene.Kitchen, Links: []string{s.Link}})
}

// SurfacePose is the current world pose of the surface link.
func (w *World) SurfacePose(name string) Pose {
	s, _ := w.surface(name)
	return w.gw.LinkPose(w.scene.Kitchen, s.Link)
}

func (w *World) linkPose(body, link string) Pose {
	if link == "" {
		return w.gw.Pose(body)
	}
	return w.gw.LinkPose(body, link)
}

// BasePose is the world pose of the robot base link.
func (w *World) BasePose() Pose {
	return w.linkPose(w.robot.Body, w.robot.BaseLink)
}

// ToolPose is the world pose of the robot tool link.
func (w *World) ToolPose() Pose {
	return w.linkPose(w.robot.Body, w.robot.ToolLink)
}

// Obstacles.

func (w *World) StaticObstacles() []Obstacle {
	return append([]Obstacle(nil), w.scene.Static...)
}

// SurfaceObstacles are the links surrounding a surface.
func (w *World) SurfaceObstacles(name string) []Obstacle {
	s, ok := w.scene.Surfaces[name]
	if !ok {
		return nil
	}
	return append([]Obstacle(nil), s.Obstacles...)
}

// DescendantObstacles are the links moved by a door joint.
func (w *World) DescendantObstacles(joint string) []Obstacle {
	d, ok := w.scene.Doors[joint]
	if !ok || len(d.Links) == 0 {
		return nil
	}
	return []Obstacle{{Body: w.scene.Kitchen, Links: d.Links}}
}

// LinkObstacles resolves a movable, surface or joint name to its obstacles.
func (w *World) LinkObstacles(name string) []Obstacle {
	switch {
	case w.IsMovable(name):
		return []Obstacle{{Body: name}}
	case w.IsSurface(name):
		return []Obstacle{{Body: w.scene.Kitchen, Links: []string{w.scene.Surfaces[name].Link}}}
	case w.IsDoor(name):
		return w.DescendantObstacles(name)
	case w.IsKnob(name):
		return []Obstacle{{Body: w.scene.Kitchen, Links: []string{w.scene.Knobs[name].Link}}}
	}
	return nil
}

func (w *World) RobotObstacle() Obstacle { return Obstacle{Body: w.robot.Body} }

// ArmObstacle covers the links moved by the arm joints.
func (w *World) ArmObstacle() Obstacle {
	return Obstacle{Body: w.robot.Body, Links: w.robot.ArmLinks}
}

func (w *World) GripperObstacle() Obstacle { return Obstacle{Body: w.robot.Gripper} }

// Collides consults the collision cache before the gateway.
func (w *World) Collides(a, b Obstacle) bool {
	return w.collidesWithin(a, b, 0)
}

func (w *World) collidesWithin(a, b Obstacle, maxDistance float64) bool {
	if w.cache == nil {
		return w.gw.Collision(a, b, maxDistance)
	}
	return w.cache.Collision(w.gw, a, b, maxDistance)
}

// CollidesAny reports whether a collides with any obstacle.
func (w *World) CollidesAny(a Obstacle, obstacles []Obstacle) bool {
	for _, b := range obstacles {
		if w.Collides(a, b) {
			return true
		}
	}
	return false
}

// SolveIK solves the arm for a tool target and returns the resulting configuration.
func (w *World) SolveIK(target Pose, tolerance float64) (*Conf, bool) {
	values, ok := w.gw.InverseKinematics(w.ArmGroup(), target, tolerance)
	if !ok {
		return nil, false
	}
	return NewConf(w.ArmGroup(), values), true
}

// SampleArmConf draws a configuration uniformly from the arm limits.
func (w *World) SampleArmConf() []float64 {
	values := make([]float64, len(w.robot.ArmJoints))
	for i := range values {
		lo, hi := w.robot.ArmLower[i], w.robot.ArmUpper[i]
		values[i] = lo + w.rng.Float64()*(hi-lo)
	}
	return values
}

// BaseWithinLimits reports whether values lie inside the base joint limits.
func (w *World) BaseWithinLimits(values []float64) bool {
	for i, v := range values {
		if i < len(w.robot.BaseLower) && v < w.robot.BaseLower[i] {
			return false
		}
		if i < len(w.robot.BaseUpper) && v > w.robot.BaseUpper[i] {
			return false
		}
	}
	return true
}

// ParkRobot moves the base out of the workspace.
func (w *World) ParkRobot() {
	values := make([]float64, len(w.robot.BaseJoints))
	values[0] = -5
	w.gw.SetJointPositions(w.robot.Body, w.robot.BaseJoints, values)
}

// HideMovable drops every movable below the floor.
func (w *World) HideMovable() {
	for _, name := range w.scene.Movable {
		w.gw.SetPose(name, Pose{Point: r3.Vector{Z: -5}, Quat: UnitQuat})
	}
}

// without drops obstacles whose body is in bodies.
func without(obstacles []Obstacle, bodies ...string) []Obstacle {
	out := make([]Obstacle, 0, len(obstacles))
	for _, o := range obstacles {
		if !slices.Contains(bodies, o.Body) {
			out = append(out, o)
		}
	}
	return out
}

// withoutBodies drops the whole-body obstacles of bodies. Link obstacles of
// those bodies are kept.
func withoutBodies(obstacles []Obstacle, bodies ...string) []Obstacle {
	out := make([]Obstacle, 0, len(obstacles))
	for _, o := range obstacles {
		if len(o.Links) > 0 || !slices.Contains(bodies, o.Body) {
			out = append(out, o)
		}
	}
	return out
}

// union concatenates obstacle sets, dropping duplicates.
func union(sets ...[]Obstacle) []Obstacle {
	seen := make(map[string]bool)
	var out []Obstacle
	for _, set := range sets {
		for _, o := range set {
			if key := o.Key(); !seen[key] {
				seen[key] = true
				out = append(out, o)
			}
		}
	}
	return out
}

// Snapshot is a captured world configuration.
type Snapshot struct {
	w      *World
	bodies []bodyState
}

type bodyState struct {
	body   string
	pose   Pose
	joints []string
	values []float64
}

// Save captures every body of the scene. Pair it with a deferred Restore:
//
//	snap := w.Save()
//	defer snap.Restore()
func (w *World) Save() *Snapshot {
	return w.SaveBodies(w.trackedBodies()...)
}

// SaveBodies captures only the given bodies.
func (w *World) SaveBodies(bodies ...string) *Snapshot {
	s := &Snapshot{w: w, bodies: make([]bodyState, 0, len(bodies))}
	for _, body := range bodies {
		joints := w.gw.Joints(body)
		s.bodies = append(s.bodies, bodyState{
			body:   body,
			pose:   w.gw.Pose(body),
			joints: joints,
			values: w.gw.JointPositions(body, joints),
		})
	}
	return s
}

// Restore writes the captured configuration back.
func (s *Snapshot) Restore() {
	for _, b := range s.bodies {
		s.w.gw.SetPose(b.body, b.pose)
		if len(b.joints) > 0 {
			s.w.gw.SetJointPositions(b.body, b.joints, b.values)
		}
	}
}

// Assign implements Assignable so snapshots can seed a State.
func (s *Snapshot) Assign(*World) { s.Restore() }

func (w *World) trackedBodies() []string {
	bodies := []string{w.robot.Body, w.scene.Kitchen}
	if w.robot.Gripper != "" {
		bodies = append(bodies, w.robot.Gripper)
	}
	return append(bodies, w.scene.Movable...)
}
