// Package replantest provides a box-world gateway and a kitchen fixture for
// exercising replan streams without a physics engine.
package replantest

import (
	"math"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/golang/geo/r3"
	replan "github.com/zlatanajanovic/SS-Replan"
)

// linkModel is a box rigidly attached to a frame that depends on the body's
// joint values.
type linkModel struct {
	name  string
	half  r3.Vector
	frame func(values map[string]float64) replan.Pose
}

type bodyModel struct {
	pose   replan.Pose
	joints []string
	values map[string]float64
	links  []*linkModel
}

// armModel describes the robot arm: seven joints holding the tool pose in the
// base frame as a position and a quaternion.
type armModel struct {
	body     string
	baseLink string
	joints   []string
	reach    float64
	minZ     float64
	maxZ     float64
}

// MockGateway implements replan.Gateway over oriented boxes. Collisions are
// AABB overlaps, motion planning is straight-line interpolation and inverse
// kinematics is closed form for a robot whose arm joints encode the tool pose.
type MockGateway struct {
	mu     sync.Mutex
	bodies map[string]*bodyModel
	order  []string
	arm    *armModel

	collisionChecks atomic.Int64
	motionPlans     atomic.Int64
}

// NewMockGateway creates an empty box world.
func NewMockGateway() *MockGateway {
	return &MockGateway{bodies: make(map[string]*bodyModel)}
}

// AddBox adds a free rigid body made of one box with a single link named "base".
func (g *MockGateway) AddBox(name string, pose replan.Pose, half r3.Vector) {
	g.addBody(name, pose, nil, &linkModel{name: "base", half: half, frame: fixed(replan.UnitPose)})
}

func (g *MockGateway) addBody(name string, pose replan.Pose, joints []string, links ...*linkModel) {
	g.mu.Lock()
	defer g.mu.Unlock()
	values := make(map[string]float64, len(joints))
	for _, j := range joints {
		values[j] = 0
	}
	g.bodies[name] = &bodyModel{pose: pose, joints: joints, values: values, links: links}
	g.order = append(g.order, name)
}

func fixed(p replan.Pose) func(map[string]float64) replan.Pose {
	return func(map[string]float64) replan.Pose { return p }
}

// CollisionChecks counts Collision calls answered by the gateway.
func (g *MockGateway) CollisionChecks() int64 { return g.collisionChecks.Load() }

// MotionPlans counts PlanMotion calls.
func (g *MockGateway) MotionPlans() int64 { return g.motionPlans.Load() }

func (g *MockGateway) Pose(body string) replan.Pose {
	g.mu.Lock()
	defer g.mu.Unlock()
	if b, ok := g.bodies[body]; ok {
		return b.pose
	}
	return replan.UnitPose
}

func (g *MockGateway) SetPose(body string, pose replan.Pose) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if b, ok := g.bodies[body]; ok {
		b.pose = pose
	}
}

func (g *MockGateway) LinkPose(body, link string) replan.Pose {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.linkPose(body, link)
}

func (g *MockGateway) linkPose(body, link string) replan.Pose {
	b, ok := g.bodies[body]
	if !ok {
		return replan.UnitPose
	}
	for _, l := range b.links {
		if l.name == link {
			return replan.Multiply(b.pose, l.frame(b.values))
		}
	}
	return b.pose
}

func (g *MockGateway) Joints(body string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if b, ok := g.bodies[body]; ok {
		return slices.Clone(b.joints)
	}
	return nil
}

func (g *MockGateway) JointPositions(body string, joints []string) []float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.jointPositions(body, joints)
}

func (g *MockGateway) jointPositions(body string, joints []string) []float64 {
	values := make([]float64, len(joints))
	if b, ok := g.bodies[body]; ok {
		for i, j := range joints {
			values[i] = b.values[j]
		}
	}
	return values
}

func (g *MockGateway) SetJointPositions(body string, joints []string, values []float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.setJointPositions(body, joints, values)
}

func (g *MockGateway) setJointPositions(body string, joints []string, values []float64) {
	b, ok := g.bodies[body]
	if !ok {
		return
	}
	for i, j := range joints {
		if i < len(values) {
			b.values[j] = values[i]
		}
	}
}

func (g *MockGateway) AABB(o replan.Obstacle) replan.AABB {
	g.mu.Lock()
	defer g.mu.Unlock()
	boxes := g.boxes(o)
	if len(boxes) == 0 {
		p := g.bodyPose(o.Body).Point
		return replan.AABB{Lower: p, Upper: p}
	}
	out := boxes[0].box
	for _, b := range boxes[1:] {
		out = out.Union(b.box)
	}
	return out
}

func (g *MockGateway) bodyPose(body string) replan.Pose {
	if b, ok := g.bodies[body]; ok {
		return b.pose
	}
	return replan.UnitPose
}

type linkBox struct {
	link string
	box  replan.AABB
}

// boxes returns the world AABB of every link o covers.
func (g *MockGateway) boxes(o replan.Obstacle) []linkBox {
	b, ok := g.bodies[o.Body]
	if !ok {
		return nil
	}
	out := make([]linkBox, 0, len(b.links))
	for _, l := range b.links {
		if len(o.Links) > 0 && !slices.Contains(o.Links, l.name) {
			continue
		}
		out = append(out, linkBox{link: l.name, box: orientedAABB(replan.Multiply(b.pose, l.frame(b.values)), l.half)})
	}
	return out
}

// orientedAABB bounds a box of half extents half placed at pose.
func orientedAABB(pose replan.Pose, half r3.Vector) replan.AABB {
	var box replan.AABB
	for i := range 8 {
		corner := r3.Vector{X: half.X, Y: half.Y, Z: half.Z}
		if i&1 != 0 {
			corner.X = -corner.X
		}
		if i&2 != 0 {
			corner.Y = -corner.Y
		}
		if i&4 != 0 {
			corner.Z = -corner.Z
		}
		p := pose.Apply(corner)
		if i == 0 {
			box = replan.AABB{Lower: p, Upper: p}
			continue
		}
		box = box.Union(replan.AABB{Lower: p, Upper: p})
	}
	return box
}

func (g *MockGateway) Collision(a, b replan.Obstacle, maxDistance float64) bool {
	g.collisionChecks.Add(1)
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.collision(a, b, maxDistance)
}

func (g *MockGateway) collision(a, b replan.Obstacle, maxDistance float64) bool {
	for _, x := range g.boxes(a) {
		for _, y := range g.boxes(b) {
			if a.Body == b.Body && x.link == y.link {
				continue
			}
			if x.box.Overlaps(y.box, maxDistance) {
				return true
			}
		}
	}
	return false
}

// InverseKinematics solves only the robot arm group.
func (g *MockGateway) InverseKinematics(group replan.JointGroup, target replan.Pose, tolerance float64) ([]float64, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	arm := g.arm
	if arm == nil || group.Body != arm.body || !slices.Equal(group.Joints, arm.joints) {
		return nil, false
	}
	seed := g.jointPositions(arm.body, arm.joints)
	rel := replan.Multiply(replan.Invert(g.linkPose(arm.body, arm.baseLink)), target)
	q := rel.Quat
	if q.X*seed[3]+q.Y*seed[4]+q.Z*seed[5]+q.W*seed[6] < 0 {
		q = replan.Quat{X: -q.X, Y: -q.Y, Z: -q.Z, W: -q.W}
	}
	p := rel.Point
	if math.Hypot(p.X, p.Y) > arm.reach || p.Z < arm.minZ || p.Z > arm.maxZ {
		return nil, false
	}
	values := []float64{p.X, p.Y, p.Z, q.X, q.Y, q.Z, q.W}
	if replan.Distance(seed, values) > tolerance {
		return nil, false
	}
	g.setJointPositions(arm.body, arm.joints, values)
	return values, true
}

// PlanMotion returns the straight-line path from the group's current values
// to the target, including both ends. The group is left where it started.
func (g *MockGateway) PlanMotion(req replan.MotionRequest) ([][]float64, bool) {
	g.motionPlans.Add(1)
	g.mu.Lock()
	defer g.mu.Unlock()
	body, joints := req.Group.Body, req.Group.Joints
	start := g.jointPositions(body, joints)
	children := make([]replan.Pose, len(req.Attachments))
	for i, a := range req.Attachments {
		children[i] = g.bodyPose(a.Child)
	}
	defer func() {
		g.setJointPositions(body, joints, start)
		for i, a := range req.Attachments {
			if b, ok := g.bodies[a.Child]; ok {
				b.pose = children[i]
			}
		}
	}()

	path := append([][]float64{start}, interpolate(start, req.Target, req.Resolution)...)
	moving := []replan.Obstacle{{Body: body}}
	for _, a := range req.Attachments {
		moving = append(moving, replan.Obstacle{Body: a.Child})
	}
	for _, q := range path {
		g.setJointPositions(body, joints, q)
		for _, a := range req.Attachments {
			if b, ok := g.bodies[a.Child]; ok {
				b.pose = replan.Multiply(g.linkPose(a.Parent, a.ParentLink), a.ParentFromChild)
			}
		}
		for _, m := range moving {
			for _, o := range req.Obstacles {
				if o.Body != m.Body && g.collision(m, o, 0) {
					return nil, false
				}
			}
		}
	}
	return path, true
}

func (g *MockGateway) Interpolate(_ replan.JointGroup, from, to []float64, resolution float64) [][]float64 {
	return interpolate(from, to, resolution)
}

func interpolate(from, to []float64, resolution float64) [][]float64 {
	n := 1
	if resolution > 0 {
		n = max(1, int(math.Ceil(replan.Distance(from, to)/resolution)))
	}
	path := make([][]float64, n)
	for i := range n {
		t := float64(i+1) / float64(n)
		q := make([]float64, len(from))
		for j := range q {
			q[j] = from[j] + t*(to[j]-from[j])
		}
		path[i] = q
	}
	return path
}

// RayTest reports multi-link bodies per link and single-link bodies whole.
func (g *MockGateway) RayTest(rays []replan.Ray) []replan.Obstacle {
	g.mu.Lock()
	defer g.mu.Unlock()
	var hits []replan.Obstacle
	for _, name := range g.order {
		b := g.bodies[name]
		for _, lb := range g.boxes(replan.Obstacle{Body: name}) {
			if !slices.ContainsFunc(rays, func(r replan.Ray) bool { return r.Hits(lb.box) }) {
				continue
			}
			if len(b.links) == 1 {
				hits = append(hits, replan.Obstacle{Body: name})
				break
			}
			hits = append(hits, replan.Obstacle{Body: name, Links: []string{lb.link}})
		}
	}
	return hits
}
