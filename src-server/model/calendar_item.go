package model

import (
	"context"
	"fmt"
	"time"

	"groupcal/src-server/recurrence"

	"github.com/uptrace/bun"
)

// folder ids of the well-known per-mailbox folders
const (
	FolderCalendar     = "calendar"
	FolderInbox        = "inbox"
	FolderSentItems    = "sentitems"
	FolderDeletedItems = "deleteditems"
)

// calendar item kinds; only Single and RecurringMaster are ever stored,
// Occurrence and Exception copies are synthesized from the master
const (
	KindSingle          = "Single"
	KindRecurringMaster = "RecurringMaster"
	KindOccurrence      = "Occurrence"
	KindException       = "Exception"
)

// MaxDuration is the hard cap on end - start for any calendar item.
const MaxDuration = 5 * 365 * 24 * time.Hour

type CalendarItemIDCtxKeyType string

const CalendarItemIDCtxKey CalendarItemIDCtxKeyType = "calendar-item-id"

// CalendarItem is one mailbox-local copy of an appointment or meeting.
// The organizer's and each attendee's copies are independent rows
// correlated only by UID.
type CalendarItem struct {
	bun.BaseModel `bun:"table:calendar_items"`

	ItemID    string `bun:"item_id,pk,notnull"`
	ChangeKey string `bun:"change_key,notnull"`
	MailboxID string `bun:"mailbox_id,notnull"`
	FolderID  string `bun:"folder_id,notnull"`
	UID       string `bun:"uid,notnull"`
	Kind      string `bun:"kind,notnull"`

	Subject  string `bun:"subject,notnull"`
	Location string `bun:"location"`

	StartDate int64 `bun:"start_date,notnull"`
	EndDate   int64 `bun:"end_date,notnull"`

	Organizer        string `bun:"organizer"`
	AppointmentState int    `bun:"appointment_state"`
	MyResponseType   string `bun:"my_response_type"`

	LegacyFreeBusyStatus   string `bun:"legacy_free_busy_status"`
	IntendedFreeBusyStatus string `bun:"intended_free_busy_status"`

	// present iff Kind == KindRecurringMaster
	RecurrenceJSON string `bun:"recurrence_json"`

	// cached pattern summaries, recomputed whenever the master mutates;
	// zero means unknown (NoEnd series have no last occurrence)
	FirstOccurStart int64 `bun:"first_occur_start"`
	FirstOccurEnd   int64 `bun:"first_occur_end"`
	LastOccurStart  int64 `bun:"last_occur_start"`
	LastOccurEnd    int64 `bun:"last_occur_end"`

	Sequence  int   `bun:"sequence"`
	CreatedAt int64 `bun:"created_at,notnull"`
	UpdatedAt int64 `bun:"updated_at"`

	Attendees []*Attendee `bun:"rel:has-many,join:item_id=item_id"`
}

var _ bun.AfterDeleteHook = (*CalendarItem)(nil)

// Cleanup attendees and occurrence exceptions belonging to the item
func (c *CalendarItem) AfterDelete(ctx context.Context, query *bun.DeleteQuery) error {
	if query.DB() == nil {
		return fmt.Errorf("CalendarItem.AfterDelete: db is nil")
	}

	switch itemID := ctx.Value(CalendarItemIDCtxKey).(type) {
	case string:
		if itemID == "" {
			return fmt.Errorf("CalendarItem.AfterDelete: item id is blank")
		}
		if _, err := query.DB().NewDelete().
			Model((*Attendee)(nil)).
			Where("item_id = ?", itemID).
			Exec(ctx); err != nil {
			return fmt.Errorf("CalendarItem.AfterDelete: can't delete attendees: %w", err)
		}
		if _, err := query.DB().NewDelete().
			Model((*OccurrenceException)(nil)).
			Where("master_item_id = ?", itemID).
			Exec(ctx); err != nil {
			return fmt.Errorf("CalendarItem.AfterDelete: can't delete occurrence exceptions: %w", err)
		}
	case []string:
		if len(itemID) == 0 {
			return fmt.Errorf("CalendarItem.AfterDelete: item ids are empty")
		}
		if _, err := query.DB().NewDelete().
			Model((*Attendee)(nil)).
			Where("item_id IN (?)", bun.In(itemID)).
			Exec(ctx); err != nil {
			return fmt.Errorf("CalendarItem.AfterDelete: can't delete attendees: %w", err)
		}
		if _, err := query.DB().NewDelete().
			Model((*OccurrenceException)(nil)).
			Where("master_item_id IN (?)", bun.In(itemID)).
			Exec(ctx); err != nil {
			return fmt.Errorf("CalendarItem.AfterDelete: can't delete occurrence exceptions: %w", err)
		}
	case nil:
		return fmt.Errorf("CalendarItem.AfterDelete: item id is nil")
	default:
		return fmt.Errorf("CalendarItem.AfterDelete: wrong item id type | type=%T", itemID)
	}

	return nil
}

// Upsert the calendar item to the database
func (c *CalendarItem) Upsert(ctx context.Context, db bun.IDB) error {
	// validate
	switch {
	case c.ItemID == "":
		return fmt.Errorf("CalendarItem.Upsert: item id is required")
	case c.MailboxID == "":
		return fmt.Errorf("CalendarItem.Upsert: mailbox id is required")
	case c.FolderID == "":
		return fmt.Errorf("CalendarItem.Upsert: folder id is required")
	case c.UID == "":
		return fmt.Errorf("CalendarItem.Upsert: uid is required")
	case c.Subject == "":
		return fmt.Errorf("CalendarItem.Upsert: subject is required")
	case c.StartDate == 0:
		return fmt.Errorf("CalendarItem.Upsert: start date is required")
	case c.EndDate == 0:
		return fmt.Errorf("CalendarItem.Upsert: end date is required")
	case c.EndDate <= c.StartDate:
		return fmt.Errorf("CalendarItem.Upsert: end date must be after start date")
	case c.CreatedAt == 0:
		return fmt.Errorf("CalendarItem.Upsert: created at is required")
	case c.Kind != KindSingle && c.Kind != KindRecurringMaster:
		return fmt.Errorf("CalendarItem.Upsert: only single items and recurring masters are stored | kind=%s", c.Kind)
	case c.Kind == KindRecurringMaster && c.RecurrenceJSON == "":
		return fmt.Errorf("CalendarItem.Upsert: recurring master needs a recurrence")
	case c.Kind == KindSingle && c.RecurrenceJSON != "":
		return fmt.Errorf("CalendarItem.Upsert: single item can't carry a recurrence")
	}

	if _, err := db.NewInsert().
		Model(c).
		On("CONFLICT (item_id) DO UPDATE").
		Set("change_key = EXCLUDED.change_key").
		Set("folder_id = EXCLUDED.folder_id").
		Set("kind = EXCLUDED.kind").
		Set("subject = EXCLUDED.subject").
		Set("location = EXCLUDED.location").
		Set("start_date = EXCLUDED.start_date").
		Set("end_date = EXCLUDED.end_date").
		Set("organizer = EXCLUDED.organizer").
		Set("appointment_state = EXCLUDED.appointment_state").
		Set("my_response_type = EXCLUDED.my_response_type").
		Set("legacy_free_busy_status = EXCLUDED.legacy_free_busy_status").
		Set("intended_free_busy_status = EXCLUDED.intended_free_busy_status").
		Set("recurrence_json = EXCLUDED.recurrence_json").
		Set("first_occur_start = EXCLUDED.first_occur_start").
		Set("first_occur_end = EXCLUDED.first_occur_end").
		Set("last_occur_start = EXCLUDED.last_occur_start").
		Set("last_occur_end = EXCLUDED.last_occur_end").
		Set("sequence = EXCLUDED.sequence").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx); err != nil {
		return fmt.Errorf("CalendarItem.Upsert: %w", err)
	}

	return nil
}

// Recurrence decodes the persisted pattern/range pair of a recurring master.
func (c *CalendarItem) Recurrence() (recurrence.Recurrence, error) {
	if c.Kind != KindRecurringMaster || c.RecurrenceJSON == "" {
		return recurrence.Recurrence{}, fmt.Errorf("CalendarItem.Recurrence: item is not a recurring master")
	}
	return recurrence.Unmarshal(c.RecurrenceJSON)
}

// SetRecurrence persists the pattern/range pair and flips the kind.
func (c *CalendarItem) SetRecurrence(rec recurrence.Recurrence) error {
	raw, err := rec.Marshal()
	if err != nil {
		return fmt.Errorf("CalendarItem.SetRecurrence: %w", err)
	}
	c.Kind = KindRecurringMaster
	c.RecurrenceJSON = raw
	return nil
}

// Duration of one window of the item.
func (c *CalendarItem) Duration() time.Duration {
	return time.Duration(c.EndDate-c.StartDate) * time.Second
}
