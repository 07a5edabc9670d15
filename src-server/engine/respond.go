package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"groupcal/src-server/model"
	"groupcal/src-server/scheduling"
	"groupcal/src-server/utils"
)

// respond executes one meeting response object: accept, tentative,
// decline, organizer-side cancel, or attendee-side remove.
func (e *Engine) respond(ctx context.Context, item NewItem) ItemResult {
	if item.MessageDisposition == "" {
		return errorResult(opError(CodeMessageDispositionRequired,
			"%s requires a message disposition", item.Class))
	}
	if item.MailboxID == "" {
		return errorResult(opError(CodeInternalServerError, "mailbox id is required"))
	}

	itemModel, err := e.resolveReference(ctx, item.MailboxID, item.ReferenceItemID)
	if err != nil {
		return errorResult(err)
	}
	unlock := e.locks.Lock(utils.ItemKey(itemModel.MailboxID, itemModel.ItemID))
	defer unlock()

	switch item.Class {
	case ClassAccept:
		return e.answer(ctx, itemModel, item, scheduling.ResponseAccept)
	case ClassTentativelyAccept:
		return e.answer(ctx, itemModel, item, scheduling.ResponseTentative)
	case ClassDecline:
		return e.answer(ctx, itemModel, item, scheduling.ResponseDecline)
	case ClassCancel:
		return e.cancel(ctx, itemModel, item)
	case ClassRemove:
		return e.remove(ctx, itemModel)
	default:
		return errorResult(opError(CodeInternalServerError, "not a response class: %s", item.Class))
	}
}

// resolveReference accepts either a calendar item id or the id of an
// inbox meeting message, landing on the mailbox's calendar copy either
// way.
func (e *Engine) resolveReference(ctx context.Context, mailboxID, referenceID string) (*model.CalendarItem, error) {
	itemModel, err := e.loadItem(ctx, referenceID)
	if err == nil {
		return itemModel, nil
	}
	var opErr *OperationError
	if !errors.As(err, &opErr) || opErr.Code != CodeItemNotFound {
		return nil, err
	}

	messageModel := new(model.MeetingMessage)
	if err := e.db.NewSelect().
		Model(messageModel).
		Where("message_id = ?", referenceID).
		Where("mailbox_id = ?", mailboxID).
		Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, opError(CodeItemNotFound, "no item or message with id %s", referenceID)
		}
		return nil, fmt.Errorf("Engine.resolveReference: %w", err)
	}
	return e.loadCopyByUID(ctx, mailboxID, messageModel.UID)
}

// answer records the attendee's decision on their own copy and sends the
// response to the organizer per the disposition.
func (e *Engine) answer(ctx context.Context, itemModel *model.CalendarItem, item NewItem, response scheduling.ResponseType) ItemResult {
	itemModel.MyResponseType = string(response)
	switch response {
	case scheduling.ResponseAccept:
		if itemModel.IntendedFreeBusyStatus != "" {
			itemModel.LegacyFreeBusyStatus = itemModel.IntendedFreeBusyStatus
		} else {
			itemModel.LegacyFreeBusyStatus = scheduling.FreeBusyBusy
		}
	case scheduling.ResponseTentative:
		itemModel.LegacyFreeBusyStatus = scheduling.FreeBusyTentative
	case scheduling.ResponseDecline:
		itemModel.LegacyFreeBusyStatus = scheduling.FreeBusyFree
		itemModel.FolderID = model.FolderDeletedItems
	}
	e.touch(itemModel)
	if err := itemModel.Upsert(ctx, e.db); err != nil {
		return errorResult(err)
	}

	messageModel := e.baseMessage(itemModel, itemModel.Organizer, model.MessageMeetingResponse)
	messageModel.ResponseType = string(response)
	messageModel.Subject = responseSubject(response, itemModel.Subject)
	if proposal, ok := item.Proposal.Get(); ok {
		messageModel.ProposedStart = proposal.Start.Unix()
		messageModel.ProposedEnd = proposal.End.Unix()
	}
	if err := e.dispatchResponse(ctx, itemModel, messageModel, item.MessageDisposition); err != nil {
		return errorResult(err)
	}

	view, err := e.buildView(ctx, itemModel, itemModel.FolderID == model.FolderCalendar)
	if err != nil {
		return errorResult(err)
	}
	return successResult(view)
}

func responseSubject(response scheduling.ResponseType, subject string) string {
	switch response {
	case scheduling.ResponseAccept:
		return "Accepted: " + subject
	case scheduling.ResponseTentative:
		return "Tentative: " + subject
	default:
		return "Declined: " + subject
	}
}

// dispatchResponse honors the message disposition: send, send and keep a
// sent-items copy, or just keep the copy.
func (e *Engine) dispatchResponse(ctx context.Context, itemModel *model.CalendarItem, messageModel *model.MeetingMessage, disposition string) error {
	send := disposition == DispositionSendOnly || disposition == DispositionSendAndSaveCopy
	save := disposition == DispositionSendAndSaveCopy || disposition == DispositionSaveOnly
	if send {
		if err := e.hub.Enqueue(ctx, messageModel); err != nil {
			return fmt.Errorf("Engine.dispatchResponse: %w", err)
		}
	}
	if save {
		copyModel := *messageModel
		copyModel.MessageID = copyModel.MessageID + "-sent"
		copyModel.MailboxID = itemModel.MailboxID
		copyModel.FolderID = model.FolderSentItems
		copyModel.Delivered = true
		if err := copyModel.Insert(ctx, e.db); err != nil {
			return fmt.Errorf("Engine.dispatchResponse: %w", err)
		}
	}
	return nil
}

// cancel retires the organizer's own meeting and notifies everyone. The
// copy survives in deleted items with the cancelled state.
func (e *Engine) cancel(ctx context.Context, itemModel *model.CalendarItem, item NewItem) ItemResult {
	state := scheduling.AppointmentState(itemModel.AppointmentState)
	if !state.IsOrganizer() {
		return errorResult(opError(CodeInternalServerError,
			"only the organizer's copy can be cancelled"))
	}
	if state.IsTerminal() {
		// cancelling twice is a no-op, not an error
		view, err := e.buildView(ctx, itemModel, false)
		if err != nil {
			return errorResult(err)
		}
		return successResult(view)
	}

	itemModel.AppointmentState = int(scheduling.OrganizerCancelled)
	itemModel.FolderID = model.FolderDeletedItems
	itemModel.LegacyFreeBusyStatus = scheduling.FreeBusyFree
	e.touch(itemModel)
	if err := itemModel.Upsert(ctx, e.db); err != nil {
		return errorResult(err)
	}

	for _, attendeeModel := range itemModel.Attendees {
		if err := e.enqueueCancellation(ctx, itemModel, attendeeModel.Email, 0, 0); err != nil {
			return errorResult(err)
		}
	}
	if item.MessageDisposition == DispositionSendAndSaveCopy || item.MessageDisposition == DispositionSaveOnly {
		if err := e.saveSentCopy(ctx, itemModel, model.MessageMeetingCancellation, "", 0); err != nil {
			return errorResult(err)
		}
	}

	view, err := e.buildView(ctx, itemModel, false)
	if err != nil {
		return errorResult(err)
	}
	return successResult(view)
}

// remove discards an attendee's copy of a cancelled meeting; it is the
// cleanup counterpart of a received cancellation, so nothing is sent.
func (e *Engine) remove(ctx context.Context, itemModel *model.CalendarItem) ItemResult {
	state := scheduling.AppointmentState(itemModel.AppointmentState)
	if !state.IsCancelled() {
		return errorResult(opError(CodeInternalServerError,
			"remove only applies to a cancelled meeting copy"))
	}
	if err := e.hardDelete(ctx, itemModel); err != nil {
		return errorResult(err)
	}
	return ItemResult{Class: ClassSuccess, Code: CodeNoError}
}
