// Package replan provides the generate-and-certify stream layer for
// pick, place, pull and press planning with a mobile manipulator.
//
// A symbolic planner binds discrete arguments and pulls continuous values
// (placements, grasps, base and arm configurations, executable command
// sequences) from named streams. Every stream works through an explicit
// [World] handle over a [Gateway], the external geometry and kinematics
// engine, and restores the world it mutated before returning.
//
// # Results
//
// Generators return a three-state [Result]:
//
//   - Value: a certified binding
//   - Retry: this round exhausted its attempt budget; pulling again may succeed
//   - Done: the stream is exhausted, or it failed with an error wrapping [ErrContract]
//
// # Streams
//
// Primitive samplers:
//   - [StableGen] - placements on a surface, learned or uniform
//   - [GraspGen] - precomputed grasps with pregrasp offsets
//   - [ComputeDoorPaths] - joint, handle and tool paths for a door
//
// Composed samplers pair an outer reachability generator with an inner
// certifier through [Compose]:
//   - [PickGen], [FixedPickGen]
//   - [PullGen], [FixedPullGen]
//   - [PressGen], [FixedPressGen]
//
// Certification predicates, cost functions and the belief layer are
// registered together by [NewStreams] under the names listed by [Catalog].
//
// # Events
//
// Streams emit capitan signals (see signals.go) for every call, yield,
// retry and rejected attempt:
//
//	listener := capitan.Hook(replan.AttemptFailed, func(ctx context.Context, e *capitan.Event) {
//	    reason, _ := replan.FieldReason.From(e)
//	    log.Println(reason)
//	})
//	defer listener.Close()
package replan

import "errors"

var (
	// ErrContract reports a mismatch between the planner vocabulary and the
	// stream layer. It is fatal for the call.
	ErrContract = errors.New("contract violation")

	// ErrUnknownObject is returned for names that are not movable objects.
	ErrUnknownObject = errors.New("unknown object")

	// ErrUnknownSurface is returned for names that are not surfaces.
	ErrUnknownSurface = errors.New("unknown surface")

	// ErrUnknownJoint is returned for names that are not kitchen joints.
	ErrUnknownJoint = errors.New("unknown joint")

	// ErrEmptyDatabase is returned when learned candidates are required but none exist.
	ErrEmptyDatabase = errors.New("empty reachability database")

	// ErrInvalidConfig wraps configuration validation failures.
	ErrInvalidConfig = errors.New("invalid config")
)
