package replan

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sync"
)

// Record kinds stored in the reachability database.
const (
	// KindPlacement: surface_from_object for successful placements.
	KindPlacement = "placement"
	// KindPlaceBase: tool_from_base for successful picks and places.
	KindPlaceBase = "place_base"
	// KindPullBase: world_from_base for successful pulls.
	KindPullBase = "pull_base"
	// KindForward: base_from_object for successful picks and places.
	KindForward = "forward"
	// KindInverse: surface_from_base for successful picks and places.
	KindInverse = "inverse"
)

// Database is the read side of the reachability and placement database.
// Results are in collection order.
type Database interface {
	Placements(ctx context.Context, robot, surface string) ([]Pose, error)
	PlaceBasePoses(ctx context.Context, robot, surface, graspType string) ([]Pose, error)
	PullBasePoses(ctx context.Context, robot, joint string) ([]Pose, error)
	ForwardPlacements(ctx context.Context, robot string) ([]Pose, error)
	InversePlacements(ctx context.Context, robot, surface string) ([]Pose, error)
}

// Record is one collected transform.
type Record struct {
	Kind      string
	Robot     string
	Target    string // surface or joint; empty for forward placements
	GraspType string
	Transform Pose
}

// PoseJSON stores a pose as a jsonb column.
// Implements sql.Scanner and driver.Valuer for database compatibility.
type PoseJSON Pose

// Scan implements sql.Scanner for reading poses from the database.
func (p *PoseJSON) Scan(src any) error {
	var data []byte
	switch val := src.(type) {
	case []byte:
		data = val
	case string:
		data = []byte(val)
	default:
		return fmt.Errorf("cannot scan %T into PoseJSON", src)
	}
	var pose Pose
	if err := json.Unmarshal(data, &pose); err != nil {
		return fmt.Errorf("failed to parse pose: %w", err)
	}
	*p = PoseJSON(pose)
	return nil
}

// Value implements driver.Valuer for writing poses to the database.
func (p PoseJSON) Value() (driver.Value, error) {
	data, err := json.Marshal(Pose(p))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// MemoryDatabase is an in-process Database.
type MemoryDatabase struct {
	mu      sync.RWMutex
	records map[string][]Pose
}

// NewMemoryDatabase creates an empty database.
func NewMemoryDatabase() *MemoryDatabase {
	return &MemoryDatabase{records: make(map[string][]Pose)}
}

// Add stores records.
func (m *MemoryDatabase) Add(records ...Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		key := recordKey(r.Kind, r.Robot, r.Target, r.GraspType)
		m.records[key] = append(m.records[key], r.Transform)
	}
}

// Record implements the write side used by collectors.
func (m *MemoryDatabase) Record(_ context.Context, r Record) error {
	m.Add(r)
	return nil
}

func (m *MemoryDatabase) get(kind, robot, target, graspType string) []Pose {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Pose(nil), m.records[recordKey(kind, robot, target, graspType)]...)
}

func (m *MemoryDatabase) Placements(_ context.Context, robot, surface string) ([]Pose, error) {
	return m.get(KindPlacement, robot, surface, ""), nil
}

func (m *MemoryDatabase) PlaceBasePoses(_ context.Context, robot, surface, graspType string) ([]Pose, error) {
	return m.get(KindPlaceBase, robot, surface, graspType), nil
}

func (m *MemoryDatabase) PullBasePoses(_ context.Context, robot, joint string) ([]Pose, error) {
	return m.get(KindPullBase, robot, joint, ""), nil
}

func (m *MemoryDatabase) ForwardPlacements(_ context.Context, robot string) ([]Pose, error) {
	return m.get(KindForward, robot, "", ""), nil
}

func (m *MemoryDatabase) InversePlacements(_ context.Context, robot, surface string) ([]Pose, error) {
	return m.get(KindInverse, robot, surface, ""), nil
}

func recordKey(kind, robot, target, graspType string) string {
	return kind + "|" + robot + "|" + target + "|" + graspType
}

var _ Database = (*MemoryDatabase)(nil)
