package model

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

// attendee roles
const (
	RoleRequired = "required"
	RoleOptional = "optional"
	RoleResource = "resource"
)

// Attendee is one participant row on a calendar item copy. On the
// organizer's copy the response fields track what each attendee answered;
// on an attendee's own copy the list mirrors what the last delivered
// request carried.
type Attendee struct {
	bun.BaseModel `bun:"table:attendees"`

	ItemID string `bun:"item_id,notnull"` // required
	Email  string `bun:"email,notnull"`   // required
	Role   string `bun:"role,notnull"`    // required

	ResponseType     string `bun:"response_type"`
	LastResponseTime int64  `bun:"last_response_time"`

	// new-time proposal carried on a tentative/decline response; zero
	// means no proposal
	ProposedStart int64 `bun:"proposed_start"`
	ProposedEnd   int64 `bun:"proposed_end"`

	Item *CalendarItem `bun:"rel:belongs-to,join:item_id=item_id"`
}

func (a *Attendee) Upsert(ctx context.Context, db bun.IDB) error {
	switch {
	case a.ItemID == "":
		return fmt.Errorf("Attendee.Upsert: item id is required")
	case a.Email == "":
		return fmt.Errorf("Attendee.Upsert: email is required")
	case a.Role != RoleRequired && a.Role != RoleOptional && a.Role != RoleResource:
		return fmt.Errorf("Attendee.Upsert: unknown role | role=%s", a.Role)
	}

	exist, err := db.NewSelect().
		Model((*Attendee)(nil)).
		Where("item_id = ?", a.ItemID).
		Where("email = ?", a.Email).
		Exists(ctx)
	if err != nil {
		return fmt.Errorf("Attendee.Upsert: %w", err)
	}
	if exist {
		if _, err := db.NewUpdate().
			Model(a).
			Column("role", "response_type", "last_response_time", "proposed_start", "proposed_end").
			Where("item_id = ?", a.ItemID).
			Where("email = ?", a.Email).
			Exec(ctx); err != nil {
			return fmt.Errorf("Attendee.Upsert: %w", err)
		}
		return nil
	}
	if _, err := db.NewInsert().
		Model(a).
		Exec(ctx); err != nil {
		return fmt.Errorf("Attendee.Upsert: %w", err)
	}
	return nil
}
