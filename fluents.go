package replan

import "fmt"

// Fluent is a currently-true planner fact consumed by motion streams.
// The set is closed; ParseFluents handles every member.
type Fluent interface {
	Predicate() string
	isFluent()
}

// AtBConf: the base is at Conf.
type AtBConf struct{ Conf *Conf }

// AtAConf: the arm is at Conf.
type AtAConf struct{ Conf *Conf }

// AtGConf: the gripper is at Conf.
type AtGConf struct{ Conf *Conf }

// AtAngle: door Joint is at Conf.
type AtAngle struct {
	Joint string
	Conf  *Conf
}

// AtPose: Object rests at a relative pose.
type AtPose struct {
	Object string
	Pose   PoseValue
}

// AtWorldPose: Object is at a world pose.
type AtWorldPose struct {
	Object string
	Pose   PoseValue
}

// AtGrasp: Object is held with Grasp.
type AtGrasp struct {
	Object string
	Grasp  *Grasp
}

func (AtBConf) Predicate() string     { return "atbconf" }
func (AtAConf) Predicate() string     { return "ataconf" }
func (AtGConf) Predicate() string     { return "atgconf" }
func (AtAngle) Predicate() string     { return "atangle" }
func (AtPose) Predicate() string      { return "atpose" }
func (AtWorldPose) Predicate() string { return "atworldpose" }
func (AtGrasp) Predicate() string     { return "atgrasp" }

func (AtBConf) isFluent()     {}
func (AtAConf) isFluent()     {}
func (AtGConf) isFluent()     {}
func (AtAngle) isFluent()     {}
func (AtPose) isFluent()      {}
func (AtWorldPose) isFluent() {}
func (AtGrasp) isFluent()     {}

// ParseFluents assigns the fluents onto the world and returns the active
// attachments and the obstacles the fluents introduce.
//
// Poses that are distributions are skipped. AtAngle is not supported by the
// motion streams and is reported as a contract violation.
func ParseFluents(w *World, fluents []Fluent) ([]*Attachment, []Obstacle, error) {
	var attachments []*Attachment
	var obstacles []Obstacle
	for _, fluent := range fluents {
		switch f := fluent.(type) {
		case AtBConf:
			w.Assign(f.Conf)
		case AtAConf:
			w.Assign(f.Conf)
		case AtGConf:
			w.Assign(f.Conf)
		case AtAngle:
			return nil, nil, fmt.Errorf("%w: fluent %s(%s) is not supported", ErrContract, f.Predicate(), f.Joint)
		case AtPose:
			obstacles = assignPoseFluent(w, f.Object, f.Pose, obstacles)
		case AtWorldPose:
			obstacles = assignPoseFluent(w, f.Object, f.Pose, obstacles)
		case AtGrasp:
			if f.Object == "" {
				continue
			}
			attachment := f.Grasp.Attachment(w)
			attachment.Assign(w)
			attachments = append(attachments, attachment)
		default:
			return nil, nil, fmt.Errorf("%w: unknown fluent %T", ErrContract, fluent)
		}
	}
	return attachments, obstacles, nil
}

func assignPoseFluent(w *World, object string, pose PoseValue, obstacles []Obstacle) []Obstacle {
	rp, ok := pose.(*RelPose)
	if !ok {
		return obstacles
	}
	rp.Assign(w)
	return union(obstacles, w.LinkObstacles(object))
}
