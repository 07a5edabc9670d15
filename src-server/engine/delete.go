package engine

import (
	"context"
	"fmt"

	"groupcal/src-server/model"
	"groupcal/src-server/scheduling"
	"groupcal/src-server/utils"
)

// DeleteItem removes a batch of items. Every calendar-item delete needs
// a cancellation mode; occurrence references turn into tombstones on the
// master instead of row deletion.
func (e *Engine) DeleteItem(ctx context.Context, refs []ItemRef, mode scheduling.Mode) []ItemResult {
	results := make([]ItemResult, 0, len(refs))
	for _, ref := range refs {
		switch ref.Kind {
		case RefOccurrence:
			results = append(results, e.deleteOccurrence(ctx, ref.RecurringMasterID, ref.InstanceIndex, mode))
		default:
			itemID := ref.ItemID
			if masterItemID, index, ok := parseOccurrenceItemID(itemID); ok {
				results = append(results, e.deleteOccurrence(ctx, masterItemID, index, mode))
				continue
			}
			results = append(results, e.deleteItemCopy(ctx, itemID, mode))
		}
	}
	return results
}

// deleteOccurrence tombstones one instance of a series. The master stays;
// its deletedOccurrences grows and the cancellation only names this
// instance.
func (e *Engine) deleteOccurrence(ctx context.Context, masterItemID string, index int, mode scheduling.Mode) ItemResult {
	masterModel, err := e.loadItem(ctx, masterItemID)
	if err != nil {
		return errorResult(err)
	}
	// the cancellation mode is mandatory on every calendar-item delete,
	// a plain appointment included
	if mode == "" {
		return errorResult(opError(CodeSendMeetingCancellationsRequired,
			"deleting an occurrence requires a cancellation mode"))
	}
	decision, err := scheduling.Decide(scheduling.OpDelete, mode)
	if err != nil {
		return errorResult(err)
	}
	isOrganizerMeeting := masterModel.Organizer == masterModel.MailboxID && len(masterModel.Attendees) > 0

	unlock := e.locks.Lock(utils.ItemKey(masterModel.MailboxID, masterModel.ItemID))
	defer unlock()

	// an already-tombstoned index fails rather than double-deleting
	if _, err := e.store.Resolve(ctx, masterItemID, index); err != nil {
		return errorResult(err)
	}
	exceptionModel, err := e.store.Delete(ctx, masterItemID, index)
	if err != nil {
		return errorResult(err)
	}
	e.touch(masterModel)
	if err := masterModel.Upsert(ctx, e.db); err != nil {
		return errorResult(err)
	}

	if isOrganizerMeeting && decision.DeliverToAttendees {
		for _, attendeeModel := range masterModel.Attendees {
			if err := e.enqueueCancellation(ctx, masterModel, attendeeModel.Email,
				exceptionModel.OriginalStart, index); err != nil {
				return errorResult(err)
			}
		}
		if decision.SaveSenderCopy {
			if err := e.saveSentCopy(ctx, masterModel, model.MessageMeetingCancellation, "", exceptionModel.OriginalStart); err != nil {
				return errorResult(err)
			}
		}
	}

	view, err := e.buildView(ctx, masterModel, false)
	if err != nil {
		return errorResult(err)
	}
	return successResult(view)
}

// deleteItemCopy removes a whole item or series from the caller's
// mailbox, distributing cancellations first when the caller organized it.
func (e *Engine) deleteItemCopy(ctx context.Context, itemID string, mode scheduling.Mode) ItemResult {
	itemModel, err := e.loadItem(ctx, itemID)
	if err != nil {
		return errorResult(err)
	}
	unlock := e.locks.Lock(utils.ItemKey(itemModel.MailboxID, itemModel.ItemID))
	defer unlock()

	// the cancellation mode is mandatory on every calendar-item delete,
	// a plain appointment included
	if mode == "" {
		return errorResult(opError(CodeSendMeetingCancellationsRequired,
			"deleting a calendar item requires a cancellation mode"))
	}
	decision, err := scheduling.Decide(scheduling.OpDelete, mode)
	if err != nil {
		return errorResult(err)
	}

	state := scheduling.AppointmentState(itemModel.AppointmentState)
	isLiveOrganizerMeeting := state.IsOrganizer() && state.MeetingRequestWasSent() &&
		!state.IsTerminal() && len(itemModel.Attendees) > 0

	if isLiveOrganizerMeeting {
		if decision.DeliverToAttendees {
			for _, attendeeModel := range itemModel.Attendees {
				if err := e.enqueueCancellation(ctx, itemModel, attendeeModel.Email, 0, 0); err != nil {
					return errorResult(err)
				}
			}
			if decision.SaveSenderCopy {
				if err := e.saveSentCopy(ctx, itemModel, model.MessageMeetingCancellation, "", 0); err != nil {
					return errorResult(err)
				}
			}
		}
	}

	if err := e.hardDelete(ctx, itemModel); err != nil {
		return errorResult(err)
	}
	return ItemResult{Class: ClassSuccess, Code: CodeNoError}
}

// hardDelete removes the row; the model's delete hook sweeps attendees
// and exceptions through the id planted on the context.
func (e *Engine) hardDelete(ctx context.Context, itemModel *model.CalendarItem) error {
	deleteCtx := context.WithValue(ctx, model.CalendarItemIDCtxKey, itemModel.ItemID)
	if _, err := e.db.NewDelete().
		Model((*model.CalendarItem)(nil)).
		Where("item_id = ?", itemModel.ItemID).
		Exec(deleteCtx); err != nil {
		return fmt.Errorf("Engine.hardDelete: %w", err)
	}
	return nil
}
