package replan

import "fmt"

// motionSetup assigns the start configurations and fluents and returns the
// obstacles and attachments a motion must respect.
func motionSetup(w *World, fluents []Fluent, start ...Assignable) ([]*Attachment, []Obstacle, error) {
	w.Assign(start...)
	attachments, obstacles, err := ParseFluents(w, fluents)
	if err != nil {
		return nil, nil, err
	}
	if !w.cfg.Collisions {
		return attachments, nil, nil
	}
	return attachments, union(obstacles, w.StaticObstacles()), nil
}

// BaseMotionFn plans the base from bq1 to bq2 with the arm at aq. It reports
// false when no path exists.
func BaseMotionFn(w *World, bq1, bq2, aq *Conf, fluents []Fluent) (*Sequence, bool, error) {
	if err := checkGroup(bq1, w.BaseGroup()); err != nil {
		return nil, false, err
	}
	if err := checkGroup(bq2, w.BaseGroup()); err != nil {
		return nil, false, err
	}
	snap := w.Save()
	defer snap.Restore()
	attachments, obstacles, err := motionSetup(w, fluents, bq1, aq)
	if err != nil {
		return nil, false, err
	}
	robotSaver := w.SaveBodies(w.robot.Body)
	var path [][]float64
	if bq1.Equal(bq2, 0) || w.cfg.TeleportBase || w.cfg.Teleport {
		path = [][]float64{bq1.Values(), bq2.Values()}
	} else {
		var ok bool
		path, ok = w.gw.PlanMotion(MotionRequest{
			Group:       w.BaseGroup(),
			Target:      bq2.Values(),
			Obstacles:   obstacles,
			Attachments: attachments,
			Resolution:  w.cfg.ArmResolution,
		})
		if !ok {
			return nil, false, nil
		}
	}
	return NewSequence("base", NewState([]*Snapshot{robotSaver}),
		&Move{Trajectory: Trajectory{Group: w.BaseGroup(), Path: path}},
	), true, nil
}

// ReachabilityTest reports whether the base can drive from the origin to bq.
func ReachabilityTest(w *World, bq *Conf) (bool, error) {
	origin := w.BaseConf(make([]float64, len(w.robot.BaseJoints))...)
	_, ok, err := BaseMotionFn(w, origin, bq, w.CarryConf(), nil)
	return ok, err
}

// ArmMotionFn plans the arm from aq1 to aq2 with the base at bq.
func ArmMotionFn(w *World, bq, aq1, aq2 *Conf, fluents []Fluent) (*Sequence, bool, error) {
	if err := checkGroup(aq1, w.ArmGroup()); err != nil {
		return nil, false, err
	}
	if err := checkGroup(aq2, w.ArmGroup()); err != nil {
		return nil, false, err
	}
	snap := w.Save()
	defer snap.Restore()
	attachments, obstacles, err := motionSetup(w, fluents, bq, aq1)
	if err != nil {
		return nil, false, err
	}
	robotSaver := w.SaveBodies(w.robot.Body)
	path := [][]float64{aq1.Values(), aq2.Values()}
	if !w.cfg.Teleport {
		var ok bool
		path, ok = w.gw.PlanMotion(MotionRequest{
			Group:          w.ArmGroup(),
			Target:         aq2.Values(),
			Obstacles:      obstacles,
			Attachments:    attachments,
			Resolution:     w.cfg.ArmResolution,
			SelfCollisions: w.cfg.SelfCollisions,
		})
		if !ok {
			return nil, false, nil
		}
	}
	return NewSequence("arm", NewState([]*Snapshot{robotSaver}),
		&Move{Trajectory: Trajectory{Group: w.ArmGroup(), Path: path}},
	), true, nil
}

// GripperMotionFn moves the fingers from gq1 to gq2.
func GripperMotionFn(w *World, gq1, gq2 *Conf) (*Sequence, error) {
	if err := checkGroup(gq1, w.GripperGroup()); err != nil {
		return nil, err
	}
	if err := checkGroup(gq2, w.GripperGroup()); err != nil {
		return nil, err
	}
	return NewSequence("gripper", nil, &Move{Trajectory: gripperTrajectory(w, gq1, gq2)}), nil
}

// CalibrateFn is the camera calibration at bq. It moves nothing.
func CalibrateFn(w *World, bq *Conf) (*Sequence, error) {
	if err := checkGroup(bq, w.BaseGroup()); err != nil {
		return nil, err
	}
	snap := w.SaveBodies(w.robot.Body)
	w.Assign(bq)
	robotSaver := w.SaveBodies(w.robot.Body)
	snap.Restore()
	return NewSequence("calibrate", NewState([]*Snapshot{robotSaver})), nil
}

func checkGroup(q *Conf, group JointGroup) error {
	if q == nil || !q.Group().Equal(group) || q.Len() != len(group.Joints) {
		return fmt.Errorf("%w: expected a configuration of %s", ErrContract, group.Key())
	}
	return nil
}
