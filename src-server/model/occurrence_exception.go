package model

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

// OccurrenceException records where one occurrence of a recurring master
// diverges from the pattern: either a replacement window (modified) or a
// tombstone (deleted). Keyed by (master_item_id, instance_index).
type OccurrenceException struct {
	bun.BaseModel `bun:"table:occurrence_exceptions"`

	MasterItemID  string `bun:"master_item_id,notnull"` // required
	InstanceIndex int    `bun:"instance_index,notnull"` // required

	Deleted bool `bun:"deleted"`

	// pattern-computed window of the occurrence, kept even on tombstones
	// so the master can still display deleted occurrences
	OriginalStart int64 `bun:"original_start,notnull"`
	OriginalEnd   int64 `bun:"original_end,notnull"`

	// replacement fields, meaningful only when Deleted is false
	StartDate int64  `bun:"start_date"`
	EndDate   int64  `bun:"end_date"`
	Subject   string `bun:"subject"`
	Location  string `bun:"location"`

	CreatedAt int64 `bun:"created_at,notnull"`
	UpdatedAt int64 `bun:"updated_at"`

	Master *CalendarItem `bun:"rel:belongs-to,join:master_item_id=item_id"`
}

// Upsert writes or overwrites the exception for its instance index.
func (o *OccurrenceException) Upsert(ctx context.Context, db bun.IDB) error {
	switch {
	case o.MasterItemID == "":
		return fmt.Errorf("OccurrenceException.Upsert: master item id is required")
	case o.InstanceIndex < 1:
		return fmt.Errorf("OccurrenceException.Upsert: instance index must be positive")
	case o.OriginalStart == 0 || o.OriginalEnd == 0:
		return fmt.Errorf("OccurrenceException.Upsert: original window is required")
	case o.CreatedAt == 0:
		return fmt.Errorf("OccurrenceException.Upsert: created at is required")
	case !o.Deleted && o.StartDate == 0:
		return fmt.Errorf("OccurrenceException.Upsert: replacement start date is required")
	case !o.Deleted && o.EndDate <= o.StartDate:
		return fmt.Errorf("OccurrenceException.Upsert: replacement end date must be after start date")
	}

	// check the master exists and is actually a recurring master
	masterModel := new(CalendarItem)
	if err := db.NewSelect().
		Model(masterModel).
		Where("item_id = ?", o.MasterItemID).
		Scan(ctx, masterModel); err != nil {
		return fmt.Errorf("OccurrenceException.Upsert: can't get master: %w", err)
	}
	if masterModel.Kind != KindRecurringMaster {
		return fmt.Errorf("OccurrenceException.Upsert: item is not a recurring master | kind=%s", masterModel.Kind)
	}

	exist, err := db.NewSelect().
		Model((*OccurrenceException)(nil)).
		Where("master_item_id = ?", o.MasterItemID).
		Where("instance_index = ?", o.InstanceIndex).
		Exists(ctx)
	if err != nil {
		return fmt.Errorf("OccurrenceException.Upsert: %w", err)
	}
	if exist {
		if _, err := db.NewUpdate().
			Model(o).
			Column("deleted", "original_start", "original_end", "start_date", "end_date", "subject", "location", "updated_at").
			Where("master_item_id = ?", o.MasterItemID).
			Where("instance_index = ?", o.InstanceIndex).
			Exec(ctx); err != nil {
			return fmt.Errorf("OccurrenceException.Upsert: %w", err)
		}
		return nil
	}
	if _, err := db.NewInsert().
		Model(o).
		Exec(ctx); err != nil {
		return fmt.Errorf("OccurrenceException.Upsert: %w", err)
	}
	return nil
}
