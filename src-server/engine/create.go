package engine

import (
	"context"
	"log/slog"

	"groupcal/src-server/model"
	"groupcal/src-server/scheduling"

	"github.com/google/uuid"
)

// CreateItem runs a create batch: calendar items plus the meeting
// response objects. One entry's failure never aborts its siblings.
func (e *Engine) CreateItem(ctx context.Context, items []NewItem, mode scheduling.Mode, targetFolder string) []ItemResult {
	results := make([]ItemResult, 0, len(items))
	for _, item := range items {
		switch item.Class {
		case ClassCalendarItem, "":
			results = append(results, e.createCalendarItem(ctx, item, mode, targetFolder))
		case ClassAccept, ClassTentativelyAccept, ClassDecline, ClassCancel, ClassRemove:
			results = append(results, e.respond(ctx, item))
		default:
			results = append(results, errorResult(opError(CodeInternalServerError, "unknown item class %q", item.Class)))
		}
	}
	return results
}

func (e *Engine) createCalendarItem(ctx context.Context, item NewItem, mode scheduling.Mode, targetFolder string) ItemResult {
	if mode == "" {
		mode = scheduling.SendToNone
	}
	decision, err := scheduling.Decide(scheduling.OpCreate, mode)
	if err != nil {
		return errorResult(err)
	}

	// structural validation happens before anything is written
	if err := validateWindow(item.Start, item.End); err != nil {
		return errorResult(err)
	}
	if item.Recurrence != nil {
		if err := item.Recurrence.Validate(); err != nil {
			return errorResult(err)
		}
	}
	if item.MailboxID == "" {
		return errorResult(opError(CodeInternalServerError, "mailbox id is required"))
	}

	hasAttendees := len(item.RequiredAttendees)+len(item.OptionalAttendees)+len(item.Resources) > 0
	now := e.now().Unix()
	if targetFolder == "" {
		targetFolder = model.FolderCalendar
	}

	itemModel := &model.CalendarItem{
		ItemID:                 uuid.NewString(),
		ChangeKey:              uuid.NewString(),
		MailboxID:              item.MailboxID,
		FolderID:               targetFolder,
		UID:                    uuid.NewString(),
		Kind:                   model.KindSingle,
		Subject:                item.Subject,
		Location:               item.Location,
		StartDate:              item.Start.Unix(),
		EndDate:                item.End.Unix(),
		Organizer:              item.MailboxID,
		LegacyFreeBusyStatus:   item.LegacyFreeBusyStatus,
		IntendedFreeBusyStatus: item.IntendedFreeBusyStatus,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	if itemModel.LegacyFreeBusyStatus == "" {
		itemModel.LegacyFreeBusyStatus = scheduling.FreeBusyBusy
	}
	if itemModel.IntendedFreeBusyStatus == "" {
		itemModel.IntendedFreeBusyStatus = scheduling.FreeBusyBusy
	}
	if hasAttendees {
		itemModel.MyResponseType = string(scheduling.ResponseOrganizer)
	}
	itemModel.AppointmentState = int(scheduling.StateOnOrganizerSend(
		scheduling.OrganizerAppointment, hasAttendees, decision.DeliverToAttendees))

	if item.Recurrence != nil {
		if err := itemModel.SetRecurrence(*item.Recurrence); err != nil {
			return errorResult(err)
		}
		if err := e.refreshOccurrenceCaches(itemModel); err != nil {
			return errorResult(err)
		}
	}

	if err := itemModel.Upsert(ctx, e.db); err != nil {
		return errorResult(err)
	}
	if hasAttendees {
		if err := e.replaceAttendees(ctx, itemModel, item.RequiredAttendees, item.OptionalAttendees, item.Resources); err != nil {
			return errorResult(err)
		}
	}

	// distribution happens only after the item is accepted
	if hasAttendees && decision.DeliverToAttendees {
		if err := e.markDelivered(ctx, itemModel); err != nil {
			return errorResult(err)
		}
		for _, attendeeModel := range itemModel.Attendees {
			if err := e.enqueueRequest(ctx, itemModel, attendeeModel.Email, scheduling.NewMeetingRequest, 0, 0); err != nil {
				return errorResult(err)
			}
		}
		if decision.SaveSenderCopy {
			if err := e.saveSentCopy(ctx, itemModel, model.MessageMeetingRequest, scheduling.NewMeetingRequest, 0); err != nil {
				return errorResult(err)
			}
		}
		slog.Debug("meeting requests queued",
			"uid", itemModel.UID, "attendees", len(itemModel.Attendees), "mode", mode)
	}

	view, err := e.buildView(ctx, itemModel, true)
	if err != nil {
		return errorResult(err)
	}
	return successResult(view)
}

// markDelivered flips the organizer's attendee rows from Unknown to
// NoResponseReceived once requests actually go out.
func (e *Engine) markDelivered(ctx context.Context, itemModel *model.CalendarItem) error {
	if _, err := e.db.NewUpdate().
		Model((*model.Attendee)(nil)).
		Set("response_type = ?", string(scheduling.ResponseNoResponseReceived)).
		Where("item_id = ?", itemModel.ItemID).
		Where("response_type = ?", string(scheduling.ResponseUnknown)).
		Exec(ctx); err != nil {
		return err
	}
	for _, attendeeModel := range itemModel.Attendees {
		if attendeeModel.ResponseType == string(scheduling.ResponseUnknown) {
			attendeeModel.ResponseType = string(scheduling.ResponseNoResponseReceived)
		}
	}
	return nil
}
