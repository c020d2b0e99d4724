package replan

import (
	"fmt"
	"math"
	"strings"
)

// JointGroup names an ordered set of joints on one body.
type JointGroup struct {
	Body   string
	Joints []string
}

// Key returns the group identity.
func (g JointGroup) Key() string {
	return g.Body + "/" + strings.Join(g.Joints, ",")
}

// Equal reports whether both groups name the same joints in the same order.
func (g JointGroup) Equal(o JointGroup) bool {
	return g.Key() == o.Key()
}

// Assignable forces the world into the state an entity describes.
type Assignable interface {
	Assign(w *World)
}

// Conf is an immutable joint configuration.
type Conf struct {
	group  JointGroup
	values []float64
	init   bool
}

// NewConf copies values into a configuration of group.
func NewConf(group JointGroup, values []float64) *Conf {
	return &Conf{
		group:  JointGroup{Body: group.Body, Joints: append([]string(nil), group.Joints...)},
		values: append([]float64(nil), values...),
	}
}

// NewInitConf marks the configuration as true in the initial state.
func NewInitConf(group JointGroup, values []float64) *Conf {
	c := NewConf(group, values)
	c.init = true
	return c
}

// Group returns the joint group.
func (c *Conf) Group() JointGroup { return c.group }

// Values returns a copy of the joint values.
func (c *Conf) Values() []float64 { return append([]float64(nil), c.values...) }

// Value returns the i-th joint value.
func (c *Conf) Value(i int) float64 { return c.values[i] }

// Len returns the number of joints.
func (c *Conf) Len() int { return len(c.values) }

// Init reports whether the configuration held at problem start.
func (c *Conf) Init() bool { return c.init }

// Equal compares group identity and values within tol.
func (c *Conf) Equal(o *Conf, tol float64) bool {
	if c == o {
		return true
	}
	if c == nil || o == nil || !c.group.Equal(o.group) || len(c.values) != len(o.values) {
		return false
	}
	for i := range c.values {
		if math.Abs(c.values[i]-o.values[i]) > tol {
			return false
		}
	}
	return true
}

// Assign sets the joints.
func (c *Conf) Assign(w *World) {
	w.gw.SetJointPositions(c.group.Body, c.group.Joints, c.values)
}

func (c *Conf) String() string {
	return fmt.Sprintf("q(%s%v)", c.group.Body, c.values)
}

// RelTransform places Body relative to a parent link.
type RelTransform struct {
	Body       string
	Parent     string
	ParentLink string
	Value      Pose
}

// Assign moves Body to parent link pose times Value.
func (t RelTransform) Assign(w *World) {
	w.gw.SetPose(t.Body, Multiply(w.linkPose(t.Parent, t.ParentLink), t.Value))
}

// PoseValue is either a concrete *RelPose or an uncertain *SurfaceDist.
type PoseValue interface {
	IsDistribution() bool
	Object() string
	isPoseValue()
}

// RelPose is an object pose built from a chain of placements. Assigning the
// placements in order yields the world transform.
type RelPose struct {
	Body    string
	Support string
	Confs   []Assignable
	Init    bool
}

// IsDistribution implements PoseValue.
func (p *RelPose) IsDistribution() bool { return false }

// Object implements PoseValue.
func (p *RelPose) Object() string { return p.Body }

func (p *RelPose) isPoseValue() {}

// Assign applies every placement.
func (p *RelPose) Assign(w *World) {
	for _, conf := range p.Confs {
		conf.Assign(w)
	}
}

// WorldFromBody assigns the pose and reads the resulting body transform.
func (p *RelPose) WorldFromBody(w *World) Pose {
	p.Assign(w)
	return w.gw.Pose(p.Body)
}

func (p *RelPose) String() string {
	return fmt.Sprintf("rp(%s@%s)", p.Body, p.Support)
}

// SurfaceDist is a distribution over RelPose hypotheses for an object whose
// support is uncertain.
type SurfaceDist struct {
	Body    string
	Surface string
	Dist    *DDist[*RelPose]
}

// IsDistribution implements PoseValue.
func (d *SurfaceDist) IsDistribution() bool { return true }

// Object implements PoseValue.
func (d *SurfaceDist) Object() string { return d.Body }

func (d *SurfaceDist) isPoseValue() {}

// Prob returns the mass on rp.
func (d *SurfaceDist) Prob(rp *RelPose) float64 { return d.Dist.Prob(rp) }

// Project maps every hypothesis through fn, keeping its mass.
func (d *SurfaceDist) Project(fn func(*RelPose) *RelPose) *SurfaceDist {
	return &SurfaceDist{Body: d.Body, Surface: d.Surface, Dist: MapDist(d.Dist, fn)}
}

// concrete returns the poses as RelPoses unless one is a distribution.
func concrete(poses ...PoseValue) ([]*RelPose, bool) {
	out := make([]*RelPose, len(poses))
	for i, p := range poses {
		rp, ok := p.(*RelPose)
		if !ok || rp == nil {
			return nil, false
		}
		out[i] = rp
	}
	return out, true
}

// absent reports a nil pose, typed or untyped.
func absent(p PoseValue) bool {
	switch p := p.(type) {
	case *RelPose:
		return p == nil
	case *SurfaceDist:
		return p == nil
	}
	return true
}

// support returns the support surface of a concrete pose.
func support(p PoseValue) string {
	if absent(p) {
		return ""
	}
	switch p := p.(type) {
	case *RelPose:
		return p.Support
	case *SurfaceDist:
		return p.Surface
	}
	return ""
}

// Attachment rigidly binds Child to a parent link.
type Attachment struct {
	Parent          string
	ParentLink      string
	Child           string
	ParentFromChild Pose
}

// Assign moves the child along with its parent.
func (a *Attachment) Assign(w *World) {
	w.gw.SetPose(a.Child, Multiply(w.linkPose(a.Parent, a.ParentLink), a.ParentFromChild))
}

// Grasp is a tool-relative object transform with its pregrasp standoff.
// GraspPose is the object in the tool frame.
type Grasp struct {
	Object       string
	GraspType    string
	Index        int
	GraspPose    Pose
	PregraspPose Pose
	Width        float64
}

// GripperConf returns the finger configuration that holds the object.
func (g *Grasp) GripperConf(w *World) *Conf {
	values := make([]float64, len(w.robot.GripperJoints))
	for i := range values {
		values[i] = g.Width
	}
	return NewConf(w.GripperGroup(), values)
}

// Attachment binds the object to the tool link.
func (g *Grasp) Attachment(w *World) *Attachment {
	return &Attachment{
		Parent:          w.robot.Body,
		ParentLink:      w.robot.ToolLink,
		Child:           g.Object,
		ParentFromChild: g.GraspPose,
	}
}

// Assign attaches the object to the tool.
func (g *Grasp) Assign(w *World) {
	g.Attachment(w).Assign(w)
}

func (g *Grasp) String() string {
	return fmt.Sprintf("g(%s,%s,%d)", g.Object, g.GraspType, g.Index)
}

// HandleGrasp is a tool orientation on a door handle link.
type HandleGrasp struct {
	Link     string
	Grasp    Pose
	Pregrasp Pose
}

// DoorPath is a joint path together with the induced handle and tool paths.
type DoorPath struct {
	JointPath  [][]float64
	HandlePath []Pose
	Handle     HandleGrasp
	ToolPath   []Pose
}

// Pulling reports whether the joint value increases along the path.
func (p DoorPath) Pulling() bool {
	return p.JointPath[0][0] < p.JointPath[len(p.JointPath)-1][0]
}
