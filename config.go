package replan

import (
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Default configuration for the stream layer.
// These can be overridden per world using Config builder methods.
var (
	// DefaultPRandomize is the probability of redrawing the arm seed from the joint
	// limits before an inverse kinematics attempt instead of starting at carry.
	DefaultPRandomize = 0.25

	// DefaultMaxConfDistance bounds the arm configuration jump between a grasp and
	// its approach, and between consecutive waypoints of a pull.
	DefaultMaxConfDistance = 0.75

	// DefaultNearbyPull is the IK tolerance between consecutive pull waypoints.
	DefaultNearbyPull = 0.25

	// Path resolutions.
	DefaultArmResolution     = 0.05
	DefaultGripperResolution = 0.01
	DefaultDoorResolution    = 0.025

	// DefaultApproachDistance is the pregrasp standoff along the tool z axis.
	DefaultApproachDistance = 0.1

	// DefaultFingerExtent is half the finger length. Handle grasps stand 5% further off.
	DefaultFingerExtent = 0.05

	// Error fractions blended into the door and gripper status thresholds.
	DefaultDoorErrorPercent    = 0.35
	DefaultGripperErrorPercent = 0.1

	// DefaultZOffset lifts sampled placements off the support surface.
	DefaultZOffset = 1e-3

	// DefaultCollisionCacheSize is the number of pairwise results kept.
	DefaultCollisionCacheSize = 4096
)

// Attempts holds the per-stream attempt budgets.
type Attempts struct {
	Stable       int `yaml:"stable" validate:"gte=1"`
	NearbyStable int `yaml:"nearby_stable" validate:"gte=1"`
	Reachability int `yaml:"reachability" validate:"gte=1"`
	Pick         int `yaml:"pick" validate:"gte=1"`
	FixedPick    int `yaml:"fixed_pick" validate:"gte=1"`
	Pull         int `yaml:"pull" validate:"gte=1"`
	FixedPull    int `yaml:"fixed_pull" validate:"gte=1"`
	Press        int `yaml:"press" validate:"gte=1"`
	FixedPress   int `yaml:"fixed_press" validate:"gte=1"`
}

// Config holds every knob surfaced to stream callers.
type Config struct {
	Collisions     bool `yaml:"collisions"`
	Teleport       bool `yaml:"teleport"`
	TeleportBase   bool `yaml:"teleport_base"`
	Learned        bool `yaml:"learned"`
	MoveArm        bool `yaml:"move_arm"`
	SelfCollisions bool `yaml:"self_collisions"`
	RayTrace       bool `yaml:"ray_trace"`
	MLOOnly        bool `yaml:"mlo_only"`
	Ordered        bool `yaml:"ordered"`

	Attempts Attempts `yaml:"attempts"`

	// MaxSuccesses and MaxFailures cap one call's yield. -1 is unbounded.
	MaxSuccesses int `yaml:"max_successes" validate:"gte=-1"`
	MaxFailures  int `yaml:"max_failures" validate:"gte=-1"`

	PRandomize  float64 `yaml:"p_randomize" validate:"gte=0,lte=1"`
	PosScale    float64 `yaml:"pos_scale" validate:"gte=0"`
	RotScale    float64 `yaml:"rot_scale" validate:"gte=0"`
	ZOffset     float64 `yaml:"z_offset" validate:"gte=0"`
	MinDistance float64 `yaml:"min_distance" validate:"gte=0"`

	ArmResolution     float64 `yaml:"arm_resolution" validate:"gt=0"`
	GripperResolution float64 `yaml:"gripper_resolution" validate:"gt=0"`
	DoorResolution    float64 `yaml:"door_resolution" validate:"gt=0"`

	MaxConfDistance float64 `yaml:"max_conf_distance" validate:"gt=0"`
	NearbyApproach  float64 `yaml:"nearby_approach" validate:"gt=0"`
	NearbyPull      float64 `yaml:"nearby_pull" validate:"gt=0"`

	ApproachDistance float64 `yaml:"approach_distance" validate:"gte=0"`
	FingerExtent     float64 `yaml:"finger_extent" validate:"gt=0"`

	DoorErrorPercent    float64 `yaml:"door_error_percent" validate:"gte=0,lte=1"`
	GripperErrorPercent float64 `yaml:"gripper_error_percent" validate:"gte=0,lte=1"`
	DetectScale         float64 `yaml:"detect_scale" validate:"gt=0,lte=1"`

	BaseRadiusMin     float64 `yaml:"base_radius_min" validate:"gte=0"`
	BaseRadiusMax     float64 `yaml:"base_radius_max" validate:"gtfield=BaseRadiusMin"`
	GrowForwardRadius float64 `yaml:"grow_forward_radius" validate:"gte=0"`
	GrowInverseBase   float64 `yaml:"grow_inverse_base" validate:"gte=0"`

	CollisionCacheSize int `yaml:"collision_cache_size" validate:"gte=0"`

	// Seed feeds the per-world PRNG.
	Seed uint64 `yaml:"seed"`
}

// DefaultConfig returns the configuration the stream layer was tuned with.
func DefaultConfig() Config {
	return Config{
		Collisions:     true,
		Learned:        true,
		MoveArm:        true,
		SelfCollisions: true,
		RayTrace:       true,
		Attempts: Attempts{
			Stable:       100,
			NearbyStable: 25,
			Reachability: 50,
			Pick:         25,
			FixedPick:    25,
			Pull:         50,
			FixedPull:    25,
			Press:        50,
			FixedPress:   25,
		},
		MaxSuccesses:        -1,
		MaxFailures:         -1,
		PRandomize:          DefaultPRandomize,
		PosScale:            0.01,
		RotScale:            math.Pi / 16,
		ZOffset:             DefaultZOffset,
		MinDistance:         0.01,
		ArmResolution:       DefaultArmResolution,
		GripperResolution:   DefaultGripperResolution,
		DoorResolution:      DefaultDoorResolution,
		MaxConfDistance:     DefaultMaxConfDistance,
		NearbyApproach:      DefaultMaxConfDistance,
		NearbyPull:          DefaultNearbyPull,
		ApproachDistance:    DefaultApproachDistance,
		FingerExtent:        DefaultFingerExtent,
		DoorErrorPercent:    DefaultDoorErrorPercent,
		GripperErrorPercent: DefaultGripperErrorPercent,
		DetectScale:         0.05,
		BaseRadiusMin:       0.5,
		BaseRadiusMax:       1.0,
		GrowForwardRadius:   0.25,
		GrowInverseBase:     0.05,
		CollisionCacheSize:  DefaultCollisionCacheSize,
	}
}

var validate = validator.New()

// Validate checks field bounds.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%w: %s failed %q", ErrInvalidConfig, verrs[0].Namespace(), verrs[0].Tag())
		}
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// LoadConfig reads a YAML file over DefaultConfig and validates the result.
// Keys missing from the file keep their defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// WithCollisions enables or disables collision checking.
func (c *Config) WithCollisions(enabled bool) *Config {
	c.Collisions = enabled
	return c
}

// WithTeleport skips continuous path validation.
func (c *Config) WithTeleport(enabled bool) *Config {
	c.Teleport = enabled
	return c
}

// WithLearned selects database candidates over uniform sampling.
func (c *Config) WithLearned(enabled bool) *Config {
	c.Learned = enabled
	return c
}

// WithSeed sets the PRNG seed.
func (c *Config) WithSeed(seed uint64) *Config {
	c.Seed = seed
	return c
}

// WithBounds sets the global success and failure caps.
func (c *Config) WithBounds(maxSuccesses, maxFailures int) *Config {
	c.MaxSuccesses = maxSuccesses
	c.MaxFailures = maxFailures
	return c
}
