package replan

import (
	"context"
	"errors"
	"time"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/pipz"
)

var errRejected = errors.New("attempt rejected")

// verdict records why an attempt was rejected. The first reason wins.
type verdict struct {
	reason string
}

func (v *verdict) reject(reason string) {
	if v.reason == "" {
		v.reason = reason
	}
}

func (v *verdict) rejection() string { return v.reason }

type rejectable interface {
	reject(reason string)
	rejection() string
}

// stage is one certification check over an attempt. A false check rejects
// the attempt with the stage's reason.
type stage[T rejectable] struct {
	identity pipz.Identity
	reason   string
	check    func(ctx context.Context, a T) bool
}

func newStage[T rejectable](name, reason string, check func(ctx context.Context, a T) bool) *stage[T] {
	return &stage[T]{
		identity: pipz.NewIdentity(name, "Certification stage"),
		reason:   reason,
		check:    check,
	}
}

// step is a stage that always passes.
func step[T rejectable](name string, fn func(ctx context.Context, a T)) *stage[T] {
	return newStage(name, "", func(ctx context.Context, a T) bool {
		fn(ctx, a)
		return true
	})
}

// Process implements pipz.Chainable.
func (s *stage[T]) Process(ctx context.Context, a T) (T, error) {
	if s.check(ctx, a) {
		return a, nil
	}
	a.reject(s.reason)
	return a, errRejected
}

// Identity implements pipz.Chainable.
func (s *stage[T]) Identity() pipz.Identity {
	return s.identity
}

// Schema implements pipz.Chainable.
func (s *stage[T]) Schema() pipz.Node {
	return pipz.Node{Identity: s.identity, Type: "stage"}
}

// Close implements pipz.Chainable.
func (s *stage[T]) Close() error {
	return nil
}

// certifier runs a stage chain over one attempt and restores the world
// afterwards. Rejections are reported, never returned.
type certifier[T rejectable] struct {
	w      *World
	stream string
	chain  *pipz.Sequence[T]
}

func newCertifier[T rejectable](w *World, stream string, stages ...pipz.Chainable[T]) *certifier[T] {
	return &certifier[T]{
		w:      w,
		stream: stream,
		chain:  pipz.NewSequence[T](pipz.NewIdentity(stream, "Certifier chain"), stages...),
	}
}

func (c *certifier[T]) run(ctx context.Context, a T) bool {
	snap := c.w.Save()
	defer snap.Restore()

	start := time.Now()
	_, err := c.chain.Process(ctx, a)
	c.w.metrics.certified(c.stream, time.Since(start))
	if err == nil {
		return true
	}
	reason := a.rejection()
	if reason == "" {
		reason = "error"
		capitan.Error(ctx, AttemptFailed,
			FieldStream.Field(c.stream),
			FieldError.Field(err),
		)
	} else {
		capitan.Emit(ctx, AttemptFailed,
			FieldStream.Field(c.stream),
			FieldReason.Field(reason),
		)
	}
	c.w.metrics.failure(c.stream, reason)
	return false
}

// randomizeSeed reports whether the next IK attempt starts from a random arm
// configuration rather than carry.
func randomizeSeed(w *World) bool {
	return w.rng.Float64() < w.cfg.PRandomize
}

// seedArm places the arm at the IK seed.
func seedArm(w *World, randomize bool) {
	if randomize {
		w.gw.SetJointPositions(w.robot.Body, w.robot.ArmJoints, w.SampleArmConf())
		return
	}
	w.Assign(w.CarryConf())
}
