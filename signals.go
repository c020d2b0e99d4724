package replan

import (
	"strconv"

	"github.com/zoobzio/capitan"
)

// Signal definitions for stream engine events.
// Signals follow the pattern: replan.<entity>.<event>.
var (
	// Stream lifecycle signals.
	StreamStarted = capitan.NewSignal(
		"replan.stream.started",
		"Named stream called with bound arguments",
	)
	StreamYielded = capitan.NewSignal(
		"replan.stream.yielded",
		"Stream emitted a certified result",
	)
	StreamRetry = capitan.NewSignal(
		"replan.stream.retry",
		"Stream exhausted its attempt budget for this round",
	)
	StreamDone = capitan.NewSignal(
		"replan.stream.done",
		"Stream terminated",
	)

	// Attempt signals.
	AttemptFailed = capitan.NewSignal(
		"replan.attempt.failed",
		"Inner certifier rejected an outer candidate",
	)
	CandidateRejected = capitan.NewSignal(
		"replan.candidate.rejected",
		"Primitive sampler discarded a proposal",
	)

	// Execution signals.
	SequenceExecuted = capitan.NewSignal(
		"replan.sequence.executed",
		"Command sequence applied to the world",
	)

	// Contract signals.
	ContractViolation = capitan.NewSignal(
		"replan.contract.violation",
		"Planner vocabulary does not match the stream layer",
	)

	// Belief signals.
	BeliefUpdated = capitan.NewSignal(
		"replan.belief.updated",
		"Object pose belief replaced by an observation",
	)
	DetectionRejected = capitan.NewSignal(
		"replan.detection.rejected",
		"Pose hypothesis not visible from any camera",
	)
)

// Field keys for stream event data.
var (
	// Stream metadata.
	FieldStream     = capitan.NewStringKey("stream")
	FieldKind       = capitan.NewStringKey("kind") // generator, function, test
	FieldOutcome    = capitan.NewStringKey("outcome")
	FieldSequenceID = capitan.NewStringKey("sequence_id")

	// Arguments.
	FieldObject    = capitan.NewStringKey("object")
	FieldSurface   = capitan.NewStringKey("surface")
	FieldJoint     = capitan.NewStringKey("joint")
	FieldGraspType = capitan.NewStringKey("grasp_type")
	FieldCamera    = capitan.NewStringKey("camera")

	// Attempt metadata.
	FieldAttempt     = capitan.NewIntKey("attempt")
	FieldMaxAttempts = capitan.NewIntKey("max_attempts")
	FieldReason      = capitan.NewStringKey("reason")
	FieldDistance    = capitan.NewStringKey("distance")

	// Belief metadata.
	FieldProbability = capitan.NewStringKey("probability")
	FieldCost        = capitan.NewStringKey("cost")
	FieldPlaceholder = capitan.NewStringKey("placeholder")

	// Timing.
	FieldDuration = capitan.NewDurationKey("duration")

	// Error information.
	FieldError = capitan.NewErrorKey("error")
)

// formatFloat renders float event values.
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', 6, 64)
}
