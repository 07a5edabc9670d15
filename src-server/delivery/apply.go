package delivery

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"groupcal/src-server/model"
	"groupcal/src-server/occurrence"
	"groupcal/src-server/scheduling"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Apply runs one message's calendar side effects on the recipient's
// mailbox. Redelivery of the same logical message (uid + recurrence id +
// kind + sequence) must be a no-op; delivery is at-least-once.
func Apply(ctx context.Context, db *bun.DB, resolveCap int, messageModel *model.MeetingMessage) error {
	already, err := messageModel.AlreadyDelivered(ctx, db)
	if err != nil {
		return fmt.Errorf("delivery.Apply: %w", err)
	}
	if already {
		slog.Debug("delivery.Apply: duplicate message, skipping side effects",
			"message_id", messageModel.MessageID, "uid", messageModel.UID)
		return nil
	}

	switch messageModel.Kind {
	case model.MessageMeetingRequest:
		return applyRequest(ctx, db, messageModel)
	case model.MessageMeetingResponse:
		return applyResponse(ctx, db, messageModel)
	case model.MessageMeetingCancellation:
		return applyCancellation(ctx, db, resolveCap, messageModel)
	default:
		return fmt.Errorf("delivery.Apply: unknown message kind | kind=%s", messageModel.Kind)
	}
}

func loadCopy(ctx context.Context, db bun.IDB, mailboxID, uid string) (*model.CalendarItem, error) {
	itemModel := new(model.CalendarItem)
	err := db.NewSelect().
		Model(itemModel).
		Where("mailbox_id = ?", mailboxID).
		Where("uid = ?", uid).
		Where("folder_id = ?", model.FolderCalendar).
		Scan(ctx, itemModel)
	if err != nil {
		return nil, err
	}
	return itemModel, nil
}

// applyRequest creates or refreshes the attendee's own calendar copy.
func applyRequest(ctx context.Context, db *bun.DB, messageModel *model.MeetingMessage) error {
	now := time.Now().UTC().Unix()
	itemModel, err := loadCopy(ctx, db, messageModel.MailboxID, messageModel.UID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		itemModel = &model.CalendarItem{
			ItemID:         uuid.NewString(),
			MailboxID:      messageModel.MailboxID,
			FolderID:       model.FolderCalendar,
			UID:            messageModel.UID,
			Kind:           model.KindSingle,
			MyResponseType: string(scheduling.ResponseNoResponseReceived),
			// a request that hasn't been answered projects tentative
			LegacyFreeBusyStatus: scheduling.FreeBusyTentative,
			CreatedAt:            now,
		}
	case err != nil:
		return fmt.Errorf("delivery.applyRequest: %w", err)
	default:
		if scheduling.AppointmentState(itemModel.AppointmentState).IsTerminal() {
			return nil
		}
		if itemModel.Sequence >= messageModel.Sequence {
			// stale or already-applied request
			return nil
		}
	}

	itemModel.ChangeKey = uuid.NewString()
	itemModel.Subject = messageModel.Subject
	itemModel.Location = messageModel.Location
	itemModel.StartDate = messageModel.StartDate
	itemModel.EndDate = messageModel.EndDate
	itemModel.Organizer = messageModel.Sender
	itemModel.AppointmentState = int(scheduling.AttendeeRequestReceived)
	itemModel.IntendedFreeBusyStatus = messageModel.IntendedFreeBusyStatus
	if itemModel.MyResponseType == string(scheduling.ResponseAccept) && messageModel.IntendedFreeBusyStatus != "" {
		itemModel.LegacyFreeBusyStatus = messageModel.IntendedFreeBusyStatus
	}
	itemModel.Sequence = messageModel.Sequence
	itemModel.UpdatedAt = now
	if messageModel.RecurrenceJSON != "" {
		itemModel.Kind = model.KindRecurringMaster
		itemModel.RecurrenceJSON = messageModel.RecurrenceJSON
	} else {
		itemModel.Kind = model.KindSingle
		itemModel.RecurrenceJSON = ""
	}
	if err := occurrence.RefreshCaches(itemModel); err != nil {
		return fmt.Errorf("delivery.applyRequest: %w", err)
	}
	if err := itemModel.Upsert(ctx, db); err != nil {
		return fmt.Errorf("delivery.applyRequest: %w", err)
	}

	// mirror the attendee list the request carried
	attendees, err := messageModel.GetAttendees()
	if err != nil {
		return fmt.Errorf("delivery.applyRequest: %w", err)
	}
	if _, err := db.NewDelete().
		Model((*model.Attendee)(nil)).
		Where("item_id = ?", itemModel.ItemID).
		Exec(ctx); err != nil {
		return fmt.Errorf("delivery.applyRequest: %w", err)
	}
	for _, attendee := range attendees {
		attendeeModel := &model.Attendee{
			ItemID:       itemModel.ItemID,
			Email:        attendee.Email,
			Role:         attendee.Role,
			ResponseType: string(scheduling.ResponseUnknown),
		}
		if err := attendeeModel.Upsert(ctx, db); err != nil {
			return fmt.Errorf("delivery.applyRequest: %w", err)
		}
	}
	return nil
}

// applyResponse lands an attendee's answer on the organizer's attendee
// record.
func applyResponse(ctx context.Context, db *bun.DB, messageModel *model.MeetingMessage) error {
	itemModel, err := loadCopy(ctx, db, messageModel.MailboxID, messageModel.UID)
	if errors.Is(err, sql.ErrNoRows) {
		// meeting no longer exists on the organizer's side; the inbox
		// message still lands, there is just nothing to reconcile
		slog.Warn("delivery.applyResponse: no calendar copy for response",
			"mailbox", messageModel.MailboxID, "uid", messageModel.UID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("delivery.applyResponse: %w", err)
	}

	if _, err := db.NewUpdate().
		Model((*model.Attendee)(nil)).
		Set("response_type = ?", messageModel.ResponseType).
		Set("last_response_time = ?", messageModel.CreatedAt).
		Set("proposed_start = ?", messageModel.ProposedStart).
		Set("proposed_end = ?", messageModel.ProposedEnd).
		Where("item_id = ?", itemModel.ItemID).
		Where("email = ?", messageModel.Sender).
		Exec(ctx); err != nil {
		return fmt.Errorf("delivery.applyResponse: %w", err)
	}
	return nil
}

// applyCancellation retires the recipient's copy: the whole series goes
// terminal, a targeted one just grows a deletion tombstone.
func applyCancellation(ctx context.Context, db *bun.DB, resolveCap int, messageModel *model.MeetingMessage) error {
	itemModel, err := loadCopy(ctx, db, messageModel.MailboxID, messageModel.UID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("delivery.applyCancellation: %w", err)
	}

	if messageModel.RecurrenceID != 0 && itemModel.Kind == model.KindRecurringMaster {
		store := occurrence.NewStore(db, resolveCap)
		if _, err := store.Delete(ctx, itemModel.ItemID, messageModel.InstanceIndex); err != nil {
			return fmt.Errorf("delivery.applyCancellation: %w", err)
		}
		return nil
	}

	if scheduling.AppointmentState(itemModel.AppointmentState).IsTerminal() {
		return nil
	}
	itemModel.ChangeKey = uuid.NewString()
	itemModel.AppointmentState = int(scheduling.AttendeeCancelled)
	itemModel.LegacyFreeBusyStatus = scheduling.FreeBusyFree
	itemModel.UpdatedAt = time.Now().UTC().Unix()
	if err := itemModel.Upsert(ctx, db); err != nil {
		return fmt.Errorf("delivery.applyCancellation: %w", err)
	}
	return nil
}
