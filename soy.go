package replan

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/zoobzio/astql/postgres"
	"github.com/zoobzio/soy"
)

// ReachabilityRecord is one row of the reachability table.
type ReachabilityRecord struct {
	ID        string    `db:"id" type:"uuid" constraints:"primarykey" default:"gen_random_uuid()"`
	Kind      string    `db:"kind" type:"text" constraints:"notnull"`
	Robot     string    `db:"robot" type:"text" constraints:"notnull"`
	Target    string    `db:"target" type:"text" constraints:"notnull"`
	GraspType string    `db:"grasp_type" type:"text" constraints:"notnull"`
	Transform PoseJSON  `db:"transform" type:"jsonb" constraints:"notnull"`
	Created   time.Time `db:"created" type:"timestamp" constraints:"notnull"`
}

// SoyDatabase implements Database using soy for persistence.
type SoyDatabase struct {
	records *soy.Soy[ReachabilityRecord]
	db      *sqlx.DB
}

// NewSoyDatabase creates a soy-backed Database.
func NewSoyDatabase(db *sqlx.DB) (*SoyDatabase, error) {
	records, err := soy.New[ReachabilityRecord](db, "reachability", postgres.New())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize reachability table: %w", err)
	}
	return &SoyDatabase{records: records, db: db}, nil
}

// Record persists one collected transform.
func (d *SoyDatabase) Record(ctx context.Context, r Record) error {
	_, err := d.records.Insert().Exec(ctx, &ReachabilityRecord{
		Kind:      r.Kind,
		Robot:     r.Robot,
		Target:    r.Target,
		GraspType: r.GraspType,
		Transform: PoseJSON(r.Transform),
		Created:   time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to insert reachability record: %w", err)
	}
	return nil
}

// load queries by target and filters the remaining key columns.
func (d *SoyDatabase) load(ctx context.Context, kind, robot, target, graspType string) ([]Pose, error) {
	rows, err := d.records.Query().
		Where("target", "=", "target").
		OrderBy("created", "asc").
		Exec(ctx, map[string]any{"target": target})
	if err != nil {
		return nil, fmt.Errorf("failed to load %s records: %w", kind, err)
	}
	var poses []Pose
	for _, row := range rows {
		if row.Kind != kind || row.Robot != robot || row.GraspType != graspType {
			continue
		}
		poses = append(poses, Pose(row.Transform))
	}
	return poses, nil
}

func (d *SoyDatabase) Placements(ctx context.Context, robot, surface string) ([]Pose, error) {
	return d.load(ctx, KindPlacement, robot, surface, "")
}

func (d *SoyDatabase) PlaceBasePoses(ctx context.Context, robot, surface, graspType string) ([]Pose, error) {
	return d.load(ctx, KindPlaceBase, robot, surface, graspType)
}

func (d *SoyDatabase) PullBasePoses(ctx context.Context, robot, joint string) ([]Pose, error) {
	return d.load(ctx, KindPullBase, robot, joint, "")
}

func (d *SoyDatabase) ForwardPlacements(ctx context.Context, robot string) ([]Pose, error) {
	return d.load(ctx, KindForward, robot, "", "")
}

func (d *SoyDatabase) InversePlacements(ctx context.Context, robot, surface string) ([]Pose, error) {
	return d.load(ctx, KindInverse, robot, surface, "")
}

// Close closes the underlying database connection.
func (d *SoyDatabase) Close() error {
	return d.db.Close()
}

var _ Database = (*SoyDatabase)(nil)
