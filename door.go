package replan

import (
	"math"
	"strings"

	"github.com/golang/geo/r3"
)

// HandleGrasps returns the tool orientations on every handle link moved by joint.
func HandleGrasps(w *World, joint string) []HandleGrasp {
	d, err := w.door(joint)
	if err != nil {
		return nil
	}
	standoff := 1.05 * w.cfg.FingerExtent
	var grasps []HandleGrasp
	for _, link := range handleLinks(d) {
		for _, yaw := range [...]float64{0, math.Pi} {
			grasp := Multiply(Translate(0, 0, standoff), NewPose(r3.Vector{}, Euler{Roll: math.Pi, Pitch: -math.Pi / 2, Yaw: yaw}))
			grasps = append(grasps, HandleGrasp{
				Link:     link,
				Grasp:    grasp,
				Pregrasp: Multiply(Translate(0, 0, w.cfg.ApproachDistance), grasp),
			})
		}
	}
	return grasps
}

func handleLinks(d DoorSpec) []string {
	if len(d.HandleLinks) > 0 {
		return d.HandleLinks
	}
	var links []string
	for _, link := range d.Links {
		if strings.Contains(link, "handle") {
			links = append(links, link)
		}
	}
	return links
}

// DoorJointPath is c1 followed by the interpolation to c2. In teleport mode
// it is just the two endpoints.
func DoorJointPath(w *World, joint string, c1, c2 *Conf) [][]float64 {
	if w.cfg.Teleport {
		return [][]float64{c1.Values(), c2.Values()}
	}
	path := [][]float64{c1.Values()}
	return append(path, w.gw.Interpolate(w.DoorGroup(joint), c1.values, c2.values, w.cfg.DoorResolution)...)
}

// ComputeDoorPaths returns one DoorPath per handle grasp whose free gripper
// stays clear of obstacles along the whole tool path. There are no paths
// when c1 equals c2.
func ComputeDoorPaths(w *World, joint string, c1, c2 *Conf, obstacles []Obstacle) []DoorPath {
	if c1.Equal(c2, 0) {
		return nil
	}
	snap := w.Save()
	defer snap.Restore()

	group := w.DoorGroup(joint)
	jointPath := DoorJointPath(w, joint, c1, c2)
	var paths []DoorPath
	for _, handle := range HandleGrasps(w, joint) {
		handlePath := make([]Pose, len(jointPath))
		for i, q := range jointPath {
			w.gw.SetJointPositions(group.Body, group.Joints, q)
			handlePath[i] = w.gw.LinkPose(w.scene.Kitchen, handle.Link)
		}
		toolPath := make([]Pose, len(handlePath))
		for i, hp := range handlePath {
			toolPath[i] = Multiply(hp, Invert(handle.Grasp))
		}
		if doorPathCollides(w, group, jointPath, toolPath, obstacles) {
			continue
		}
		paths = append(paths, DoorPath{JointPath: jointPath, HandlePath: handlePath, Handle: handle, ToolPath: toolPath})
	}
	return paths
}

func doorPathCollides(w *World, group JointGroup, jointPath [][]float64, toolPath []Pose, obstacles []Obstacle) bool {
	if !w.cfg.Collisions {
		return false
	}
	for i, tool := range toolPath {
		w.gw.SetJointPositions(group.Body, group.Joints, jointPath[i])
		w.SetToolPose(tool)
		if w.CollidesAny(w.GripperObstacle(), obstacles) {
			return true
		}
	}
	return false
}
