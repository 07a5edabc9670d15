package occurrence_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"groupcal/src-server/model"
	"groupcal/src-server/occurrence"
	"groupcal/src-server/recurrence"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

var patternStart = time.Date(2024, 5, 6, 9, 0, 0, 0, time.UTC)

func newMaster(t *testing.T) (*bun.DB, *model.CalendarItem) {
	t.Helper()
	db, err := sql.Open(sqliteshim.ShimName, ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	bundb := bun.NewDB(db, sqlitedialect.New())
	if err := model.CreateSchema(bundb); err != nil {
		t.Fatal(err)
	}

	masterModel := &model.CalendarItem{
		ItemID:    uuid.NewString(),
		ChangeKey: uuid.NewString(),
		MailboxID: "alice@example.test",
		FolderID:  model.FolderCalendar,
		UID:       uuid.NewString(),
		Subject:   "daily standup",
		Location:  "room 1",
		StartDate: patternStart.Unix(),
		EndDate:   patternStart.Add(time.Hour).Unix(),
		CreatedAt: time.Now().UTC().Unix(),
	}
	if err := masterModel.SetRecurrence(recurrence.Recurrence{
		Pattern: recurrence.Pattern{Kind: recurrence.PatternDaily, Interval: 1},
		Range:   recurrence.Range{Kind: recurrence.RangeNumbered, Start: patternStart, Count: 10},
	}); err != nil {
		t.Fatal(err)
	}
	if err := masterModel.Upsert(context.Background(), bundb); err != nil {
		t.Fatal(err)
	}
	return bundb, masterModel
}

func TestStoreResolve(t *testing.T) {
	bundb, masterModel := newMaster(t)
	store := occurrence.NewStore(bundb, 100)

	// case: plain pattern occurrence, resolution is idempotent
	for range 2 {
		resolved, err := store.Resolve(context.Background(), masterModel.ItemID, 3)
		if err != nil {
			t.Error(err)
		}
		if !resolved.Start.Equal(patternStart.AddDate(0, 0, 2)) {
			t.Error("wrong pattern-computed start")
		}
		if resolved.Subject != "daily standup" || resolved.Exception != nil {
			t.Error("plain occurrence should inherit the master without an exception")
		}
	}

	// case: index past the bounded range
	if _, err := store.Resolve(context.Background(), masterModel.ItemID, 11); !errors.Is(err, occurrence.ErrIndexOutOfRange) {
		t.Error("expected ErrIndexOutOfRange")
	}

	// case: non-master id
	if _, err := store.Resolve(context.Background(), "no-such-item", 1); !errors.Is(err, occurrence.ErrNotRecurringMaster) {
		t.Error("expected ErrNotRecurringMaster")
	}
}

func TestStoreModifyKeepsOriginalWindow(t *testing.T) {
	bundb, masterModel := newMaster(t)
	store := occurrence.NewStore(bundb, 100)

	newStart := patternStart.AddDate(0, 0, 1).Add(2 * time.Hour)
	if _, err := store.Modify(context.Background(), masterModel.ItemID, 2, occurrence.Modification{
		Start:    newStart,
		End:      newStart.Add(time.Hour),
		Location: "room 2",
	}); err != nil {
		t.Error(err)
	}

	resolved, err := store.Resolve(context.Background(), masterModel.ItemID, 2)
	if err != nil {
		t.Error(err)
	}
	if !resolved.Start.Equal(newStart) {
		t.Error("replacement start not applied")
	}
	if resolved.Location != "room 2" {
		t.Error("replacement location not applied")
	}
	if resolved.Subject != "daily standup" {
		t.Error("blank replacement subject should inherit the master's")
	}
	if !resolved.OriginalStart.Equal(patternStart.AddDate(0, 0, 1)) {
		t.Error("original window lost after modification")
	}

	// modifying again keeps the pattern-computed original window
	if _, err := store.Modify(context.Background(), masterModel.ItemID, 2, occurrence.Modification{
		Start: newStart.Add(time.Hour),
	}); err != nil {
		t.Error(err)
	}
	resolved, err = store.Resolve(context.Background(), masterModel.ItemID, 2)
	if err != nil {
		t.Error(err)
	}
	if !resolved.OriginalStart.Equal(patternStart.AddDate(0, 0, 1)) {
		t.Error("original window lost after second modification")
	}

	modified, err := store.Modified(context.Background(), masterModel.ItemID)
	if err != nil {
		t.Error(err)
	}
	if len(modified) != 1 || modified[0].InstanceIndex != 2 {
		t.Error("expected exactly one modified occurrence at index 2")
	}
}

func TestStoreDelete(t *testing.T) {
	bundb, masterModel := newMaster(t)
	store := occurrence.NewStore(bundb, 100)

	if _, err := store.Delete(context.Background(), masterModel.ItemID, 1); err != nil {
		t.Error(err)
	}

	// case: the tombstone surfaces as ErrOccurrenceDeleted
	if _, err := store.Resolve(context.Background(), masterModel.ItemID, 1); !errors.Is(err, occurrence.ErrOccurrenceDeleted) {
		t.Error("expected ErrOccurrenceDeleted")
	}

	// case: the deleted list keeps the pattern-computed window
	deleted, err := store.Deleted(context.Background(), masterModel.ItemID)
	if err != nil {
		t.Error(err)
	}
	if len(deleted) != 1 {
		t.Fatal("expected one tombstone")
	}
	if deleted[0].OriginalStart != patternStart.Unix() {
		t.Error("tombstone lost the original start")
	}

	// case: siblings keep their indexes
	resolved, err := store.Resolve(context.Background(), masterModel.ItemID, 2)
	if err != nil {
		t.Error(err)
	}
	if !resolved.Start.Equal(patternStart.AddDate(0, 0, 1)) {
		t.Error("deletion shifted sibling occurrence indexes")
	}
}

func TestStoreLast(t *testing.T) {
	bundb, masterModel := newMaster(t)
	store := occurrence.NewStore(bundb, 100)

	resolved, err := store.Last(context.Background(), masterModel.ItemID)
	if err != nil {
		t.Error(err)
	}
	if resolved.InstanceIndex != 10 {
		t.Error("wrong last index")
	}
	if !resolved.Start.Equal(patternStart.AddDate(0, 0, 9)) {
		t.Error("wrong last start")
	}
}
