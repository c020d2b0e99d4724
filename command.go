package replan

import (
	"context"
	"fmt"
	"iter"
	"maps"
	"slices"

	"github.com/google/uuid"
	"github.com/zoobzio/capitan"
)

// Trajectory is an ordered list of waypoints over a joint group.
type Trajectory struct {
	Group JointGroup
	Path  [][]float64
}

// Reverse returns the trajectory walked backwards.
func (t Trajectory) Reverse() Trajectory {
	path := slices.Clone(t.Path)
	slices.Reverse(path)
	return Trajectory{Group: t.Group, Path: path}
}

// Distance sums the segment distances under dist.
func (t Trajectory) Distance(dist func(a, b []float64) float64) float64 {
	var total float64
	for i := 1; i < len(t.Path); i++ {
		total += dist(t.Path[i-1], t.Path[i])
	}
	return total
}

func (t Trajectory) walk(w *World) iter.Seq[int] {
	return func(yield func(int) bool) {
		for i, q := range t.Path {
			w.gw.SetJointPositions(t.Group.Body, t.Group.Joints, q)
			if !yield(i) {
				return
			}
		}
	}
}

// Command is an executable primitive. The set of commands is closed.
type Command interface {
	// Bodies lists the bodies the command moves.
	Bodies() []string
	// Iterate applies the command step by step, yielding after each step.
	Iterate(w *World, s *State) iter.Seq[int]
	Reverse() Command
	isCommand()
}

// Move follows a base, arm or gripper trajectory.
type Move struct {
	Trajectory
}

func (m *Move) Bodies() []string { return []string{m.Group.Body} }

func (m *Move) Iterate(w *World, _ *State) iter.Seq[int] { return m.walk(w) }

func (m *Move) Reverse() Command { return &Move{Trajectory: m.Trajectory.Reverse()} }

func (m *Move) isCommand() {}

func (m *Move) String() string { return fmt.Sprintf("move(%s,%d)", m.Group.Key(), len(m.Path)) }

// Approach moves the arm between carry, pregrasp and grasp.
type Approach struct {
	Trajectory
}

func (a *Approach) Bodies() []string { return []string{a.Group.Body} }

func (a *Approach) Iterate(w *World, _ *State) iter.Seq[int] { return a.walk(w) }

func (a *Approach) Reverse() Command { return &Approach{Trajectory: a.Trajectory.Reverse()} }

func (a *Approach) isCommand() {}

func (a *Approach) String() string { return fmt.Sprintf("approach(%d)", len(a.Path)) }

// Attach binds Child to a parent link. A nil ParentFromChild is measured
// from the current poses when the command runs.
type Attach struct {
	Parent          string
	ParentLink      string
	Child           string
	ParentFromChild *Pose
}

// AttachGripper attaches an object to the tool with its grasp transform.
func AttachGripper(w *World, g *Grasp) *Attach {
	a := g.Attachment(w)
	return &Attach{Parent: a.Parent, ParentLink: a.ParentLink, Child: a.Child, ParentFromChild: &a.ParentFromChild}
}

func (a *Attach) Bodies() []string { return nil }

func (a *Attach) Iterate(w *World, s *State) iter.Seq[int] {
	return func(yield func(int) bool) {
		var rel Pose
		if a.ParentFromChild != nil {
			rel = *a.ParentFromChild
		} else {
			rel = Multiply(Invert(w.linkPose(a.Parent, a.ParentLink)), w.gw.Pose(a.Child))
		}
		s.Attachments[a.Child] = &Attachment{Parent: a.Parent, ParentLink: a.ParentLink, Child: a.Child, ParentFromChild: rel}
		yield(0)
	}
}

func (a *Attach) Reverse() Command {
	return &Detach{Parent: a.Parent, ParentLink: a.ParentLink, Child: a.Child}
}

func (a *Attach) isCommand() {}

func (a *Attach) String() string { return fmt.Sprintf("attach(%s,%s)", a.Parent, a.Child) }

// Detach removes Child's attachment.
type Detach struct {
	Parent     string
	ParentLink string
	Child      string
}

func (d *Detach) Bodies() []string { return nil }

func (d *Detach) Iterate(_ *World, s *State) iter.Seq[int] {
	return func(yield func(int) bool) {
		delete(s.Attachments, d.Child)
		yield(0)
	}
}

func (d *Detach) Reverse() Command {
	return &Attach{Parent: d.Parent, ParentLink: d.ParentLink, Child: d.Child}
}

func (d *Detach) isCommand() {}

func (d *Detach) String() string { return fmt.Sprintf("detach(%s,%s)", d.Parent, d.Child) }

// Detect is a camera observation of an object hypothesis.
type Detect struct {
	Camera string
	Object string
	Pose   *RelPose
	Rays   []Ray
}

func (d *Detect) Bodies() []string { return nil }

func (d *Detect) Iterate(_ *World, _ *State) iter.Seq[int] {
	return func(yield func(int) bool) { yield(0) }
}

func (d *Detect) Reverse() Command { return d }

func (d *Detect) isCommand() {}

// Occluding returns the obstacles the rays pass through, other than the object.
func (d *Detect) Occluding(w *World) []Obstacle {
	return without(w.gw.RayTest(d.Rays), d.Object)
}

func (d *Detect) String() string { return fmt.Sprintf("detect(%s,%s)", d.Camera, d.Object) }

// DoorMove drives the arm and a door joint in lockstep.
type DoorMove struct {
	Arm  Trajectory
	Door Trajectory
}

func (m *DoorMove) Bodies() []string { return []string{m.Arm.Group.Body, m.Door.Group.Body} }

func (m *DoorMove) Iterate(w *World, _ *State) iter.Seq[int] {
	return func(yield func(int) bool) {
		for i := range m.Arm.Path {
			w.gw.SetJointPositions(m.Arm.Group.Body, m.Arm.Group.Joints, m.Arm.Path[i])
			w.gw.SetJointPositions(m.Door.Group.Body, m.Door.Group.Joints, m.Door.Path[i])
			if !yield(i) {
				return
			}
		}
	}
}

func (m *DoorMove) Reverse() Command {
	return &DoorMove{Arm: m.Arm.Reverse(), Door: m.Door.Reverse()}
}

func (m *DoorMove) isCommand() {}

func (m *DoorMove) String() string { return fmt.Sprintf("pull(%s,%d)", m.Door.Group.Key(), len(m.Door.Path)) }

// State is a restorable world configuration plus active attachments.
type State struct {
	Savers      []*Snapshot
	Attachments map[string]*Attachment
}

// NewState builds a state from savers and attachments.
func NewState(savers []*Snapshot, attachments ...*Attachment) *State {
	s := &State{Savers: savers, Attachments: make(map[string]*Attachment, len(attachments))}
	for _, a := range attachments {
		s.Attachments[a.Child] = a
	}
	return s
}

// Copy returns an independent state sharing the savers.
func (s *State) Copy() *State {
	return &State{Savers: slices.Clone(s.Savers), Attachments: maps.Clone(s.Attachments)}
}

// Assign restores the savers and propagates attachments.
func (s *State) Assign(w *World) {
	for _, saver := range s.Savers {
		saver.Restore()
	}
	s.Derive(w)
}

// Derive moves every attached child with its parent.
func (s *State) Derive(w *World) {
	for _, child := range slices.Sorted(maps.Keys(s.Attachments)) {
		s.Attachments[child].Assign(w)
	}
}

// Sequence is an ordered list of commands with the state it was planned from.
type Sequence struct {
	ID       uuid.UUID
	Name     string
	Context  *State
	Commands []Command
}

// NewSequence builds a named sequence.
func NewSequence(name string, context *State, commands ...Command) *Sequence {
	if context == nil {
		context = NewState(nil)
	}
	return &Sequence{ID: uuid.New(), Name: name, Context: context, Commands: commands}
}

// Bodies lists every body the sequence moves.
func (s *Sequence) Bodies() []string {
	var bodies []string
	for _, cmd := range s.Commands {
		for _, b := range cmd.Bodies() {
			if !slices.Contains(bodies, b) {
				bodies = append(bodies, b)
			}
		}
	}
	return bodies
}

// Reverse returns the sequence run backwards, as used for place.
func (s *Sequence) Reverse() *Sequence {
	commands := make([]Command, len(s.Commands))
	for i, cmd := range s.Commands {
		commands[len(commands)-1-i] = cmd.Reverse()
	}
	return &Sequence{ID: uuid.New(), Name: s.Name + "-reversed", Context: s.Context.Copy(), Commands: commands}
}

// Execute applies every command to the world, carrying attachments in state.
func (s *Sequence) Execute(w *World, state *State) {
	for _, cmd := range s.Commands {
		for range cmd.Iterate(w, state) {
			state.Derive(w)
		}
	}
}

func (s *Sequence) String() string {
	return fmt.Sprintf("%s%v", s.Name, s.Commands)
}

// Executor applies sequences to the world in order, carrying attachments
// from one sequence to the next.
type Executor struct {
	w     *World
	state *State
}

// NewExecutor starts from the given attachments.
func NewExecutor(w *World, attachments ...*Attachment) *Executor {
	return &Executor{w: w, state: NewState(nil, attachments...)}
}

// State returns the attachments carried so far.
func (e *Executor) State() *State { return e.state }

// Run executes seqs. It stops between sequences when ctx is done.
func (e *Executor) Run(ctx context.Context, seqs ...*Sequence) error {
	for _, seq := range seqs {
		if err := ctx.Err(); err != nil {
			return err
		}
		seq.Execute(e.w, e.state)
		capitan.Emit(ctx, SequenceExecuted,
			FieldSequenceID.Field(seq.ID.String()),
			FieldStream.Field(seq.Name),
		)
	}
	return nil
}
