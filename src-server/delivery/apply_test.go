package delivery_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"groupcal/src-server/delivery"
	"groupcal/src-server/model"
	"groupcal/src-server/scheduling"
	"groupcal/src-server/utils"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()
	db, err := sql.Open(sqliteshim.ShimName, ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	bundb := bun.NewDB(db, sqlitedialect.New())
	if err := model.CreateSchema(bundb); err != nil {
		t.Fatal(err)
	}
	return bundb
}

func newRequest(sequence int) *model.MeetingMessage {
	messageModel := &model.MeetingMessage{
		MessageID:          uuid.NewString(),
		MailboxID:          "bob@example.test",
		FolderID:           model.FolderInbox,
		Kind:               model.MessageMeetingRequest,
		UID:                "meeting-uid",
		MeetingRequestType: string(scheduling.NewMeetingRequest),
		Sender:             "alice@example.test",
		Subject:            "planning",
		StartDate:          1700000000,
		EndDate:            1700003600,
		Sequence:           sequence,
		CreatedAt:          time.Now().UTC().Unix(),
	}
	messageModel.SetAttendees([]model.MessageAttendee{
		{Email: "bob@example.test", Role: model.RoleRequired},
	})
	return messageModel
}

func attendeeCopy(t *testing.T, bundb *bun.DB) *model.CalendarItem {
	t.Helper()
	itemModel := new(model.CalendarItem)
	if err := bundb.NewSelect().
		Model(itemModel).
		Where("mailbox_id = ?", "bob@example.test").
		Where("uid = ?", "meeting-uid").
		Where("folder_id = ?", model.FolderCalendar).
		Scan(context.Background()); err != nil {
		t.Fatal(err)
	}
	return itemModel
}

func TestApplyRequestCreatesAttendeeCopy(t *testing.T) {
	bundb := newTestDB(t)

	if err := delivery.Apply(context.Background(), bundb, 100, newRequest(1)); err != nil {
		t.Error(err)
	}

	itemModel := attendeeCopy(t, bundb)
	if itemModel.AppointmentState != int(scheduling.AttendeeRequestReceived) {
		t.Error("wrong appointment state on attendee copy")
	}
	if itemModel.MyResponseType != string(scheduling.ResponseNoResponseReceived) {
		t.Error("new attendee copy should be unanswered")
	}
	// an unanswered request projects tentative
	if itemModel.LegacyFreeBusyStatus != scheduling.FreeBusyTentative {
		t.Error("unanswered copy should project tentative")
	}
	if itemModel.Organizer != "alice@example.test" {
		t.Error("organizer not mirrored from the request")
	}
}

func TestApplyRequestIgnoresStaleSequence(t *testing.T) {
	bundb := newTestDB(t)

	fresh := newRequest(3)
	fresh.Subject = "planning v3"
	if err := delivery.Apply(context.Background(), bundb, 100, fresh); err != nil {
		t.Error(err)
	}

	stale := newRequest(2)
	stale.Subject = "planning v2"
	if err := delivery.Apply(context.Background(), bundb, 100, stale); err != nil {
		t.Error(err)
	}

	itemModel := attendeeCopy(t, bundb)
	if itemModel.Subject != "planning v3" {
		t.Error("stale request overwrote a newer copy")
	}
}

func TestHubRedeliveryIsIdempotent(t *testing.T) {
	bundb := newTestDB(t)
	hub := delivery.NewHub(bundb, utils.NewKeyedMutex(), nil, 100)
	defer hub.Stop()

	if err := hub.Enqueue(context.Background(), newRequest(1)); err != nil {
		t.Error(err)
	}
	if _, err := hub.DeliverPending(context.Background(), "bob@example.test"); err != nil {
		t.Error(err)
	}
	firstCopy := attendeeCopy(t, bundb)

	// the same logical message arrives again under a new message id
	if err := hub.Enqueue(context.Background(), newRequest(1)); err != nil {
		t.Error(err)
	}
	if _, err := hub.DeliverPending(context.Background(), "bob@example.test"); err != nil {
		t.Error(err)
	}

	secondCopy := attendeeCopy(t, bundb)
	if secondCopy.ItemID != firstCopy.ItemID {
		t.Error("redelivery created a second calendar copy")
	}
	if secondCopy.ChangeKey != firstCopy.ChangeKey {
		t.Error("redelivery mutated the calendar copy")
	}

	count, err := bundb.NewSelect().
		Model((*model.CalendarItem)(nil)).
		Where("mailbox_id = ?", "bob@example.test").
		Count(context.Background())
	if err != nil {
		t.Error(err)
	}
	if count != 1 {
		t.Error("expected exactly one calendar copy")
	}
}

func TestApplyCancellationWholeSeries(t *testing.T) {
	bundb := newTestDB(t)

	if err := delivery.Apply(context.Background(), bundb, 100, newRequest(1)); err != nil {
		t.Error(err)
	}

	cancellation := &model.MeetingMessage{
		MessageID: uuid.NewString(),
		MailboxID: "bob@example.test",
		FolderID:  model.FolderInbox,
		Kind:      model.MessageMeetingCancellation,
		UID:       "meeting-uid",
		Sender:    "alice@example.test",
		Sequence:  2,
		CreatedAt: time.Now().UTC().Unix(),
	}
	if err := delivery.Apply(context.Background(), bundb, 100, cancellation); err != nil {
		t.Error(err)
	}

	itemModel := attendeeCopy(t, bundb)
	if itemModel.AppointmentState != int(scheduling.AttendeeCancelled) {
		t.Error("cancellation did not mark the copy cancelled")
	}
	if itemModel.LegacyFreeBusyStatus != scheduling.FreeBusyFree {
		t.Error("cancelled copy should project free")
	}

	// a later request can't resurrect a terminal copy
	if err := delivery.Apply(context.Background(), bundb, 100, newRequest(3)); err != nil {
		t.Error(err)
	}
	itemModel = attendeeCopy(t, bundb)
	if itemModel.AppointmentState != int(scheduling.AttendeeCancelled) {
		t.Error("request resurrected a cancelled copy")
	}
}

func TestApplyResponseUpdatesOrganizerRecord(t *testing.T) {
	bundb := newTestDB(t)
	now := time.Now().UTC().Unix()

	organizerCopy := &model.CalendarItem{
		ItemID:           uuid.NewString(),
		ChangeKey:        uuid.NewString(),
		MailboxID:        "alice@example.test",
		FolderID:         model.FolderCalendar,
		UID:              "meeting-uid",
		Kind:             model.KindSingle,
		Subject:          "planning",
		StartDate:        1700000000,
		EndDate:          1700003600,
		Organizer:        "alice@example.test",
		AppointmentState: int(scheduling.OrganizerMeetingSent),
		CreatedAt:        now,
	}
	if err := organizerCopy.Upsert(context.Background(), bundb); err != nil {
		t.Error(err)
	}
	attendeeModel := &model.Attendee{
		ItemID:       organizerCopy.ItemID,
		Email:        "bob@example.test",
		Role:         model.RoleRequired,
		ResponseType: string(scheduling.ResponseNoResponseReceived),
	}
	if err := attendeeModel.Upsert(context.Background(), bundb); err != nil {
		t.Error(err)
	}

	response := &model.MeetingMessage{
		MessageID:     uuid.NewString(),
		MailboxID:     "alice@example.test",
		FolderID:      model.FolderInbox,
		Kind:          model.MessageMeetingResponse,
		UID:           "meeting-uid",
		ResponseType:  string(scheduling.ResponseTentative),
		ProposedStart: 1700007200,
		ProposedEnd:   1700010800,
		Sender:        "bob@example.test",
		CreatedAt:     now,
	}
	if err := delivery.Apply(context.Background(), bundb, 100, response); err != nil {
		t.Error(err)
	}

	attendeeTest := new(model.Attendee)
	if err := bundb.NewSelect().
		Model(attendeeTest).
		Where("item_id = ?", organizerCopy.ItemID).
		Where("email = ?", "bob@example.test").
		Scan(context.Background()); err != nil {
		t.Error(err)
	}
	if attendeeTest.ResponseType != string(scheduling.ResponseTentative) {
		t.Error("response type not recorded")
	}
	if attendeeTest.ProposedStart != 1700007200 {
		t.Error("time proposal not recorded")
	}
}

func TestDeliveryContendsWithDirectEdits(t *testing.T) {
	bundb := newTestDB(t)
	locks := utils.NewKeyedMutex()
	hub := delivery.NewHub(bundb, locks, nil, 100)
	defer hub.Stop()

	if err := delivery.Apply(context.Background(), bundb, 100, newRequest(1)); err != nil {
		t.Fatal(err)
	}
	itemModel := attendeeCopy(t, bundb)

	// hold the same per-item lock a direct edit takes
	unlock := locks.Lock(utils.ItemKey("bob@example.test", itemModel.ItemID))

	update := newRequest(2)
	update.Subject = "planning v2"
	if err := hub.Enqueue(context.Background(), update); err != nil {
		t.Fatal(err)
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := hub.DeliverPending(context.Background(), "bob@example.test"); err != nil {
			t.Error(err)
		}
	}()

	select {
	case <-done:
		t.Error("delivery finished while the item lock was held")
	case <-time.After(50 * time.Millisecond):
	}

	unlock()
	<-done
	if attendeeCopy(t, bundb).Subject != "planning v2" {
		t.Error("update not applied after the lock was released")
	}
}
