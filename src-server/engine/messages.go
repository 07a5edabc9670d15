package engine

import (
	"context"
	"fmt"

	"groupcal/src-server/model"
	"groupcal/src-server/scheduling"

	"github.com/google/uuid"
)

// baseMessage stamps the fields every outgoing message shares.
func (e *Engine) baseMessage(itemModel *model.CalendarItem, recipient, kind string) *model.MeetingMessage {
	return &model.MeetingMessage{
		MessageID: uuid.NewString(),
		MailboxID: recipient,
		FolderID:  model.FolderInbox,
		Kind:      kind,
		UID:       itemModel.UID,
		Sender:    itemModel.MailboxID,
		Subject:   itemModel.Subject,
		Location:  itemModel.Location,
		StartDate: itemModel.StartDate,
		EndDate:   itemModel.EndDate,
		Sequence:  itemModel.Sequence,
		CreatedAt: e.now().Unix(),
	}
}

// enqueueRequest sends one meeting request (or update) and, when the
// recipient is a principal with copy-receiving delegates, the delegate
// copies marked PrincipalWantsCopy.
func (e *Engine) enqueueRequest(ctx context.Context, itemModel *model.CalendarItem, recipient string, requestType scheduling.MeetingRequestType, recurrenceID int64, instanceIndex int) error {
	build := func(mailboxID string, reqType scheduling.MeetingRequestType) (*model.MeetingMessage, error) {
		messageModel := e.baseMessage(itemModel, mailboxID, model.MessageMeetingRequest)
		messageModel.MeetingRequestType = string(reqType)
		messageModel.RecurrenceID = recurrenceID
		messageModel.InstanceIndex = instanceIndex
		messageModel.IntendedFreeBusyStatus = itemModel.IntendedFreeBusyStatus
		messageModel.RecurrenceJSON = itemModel.RecurrenceJSON
		if err := messageModel.SetAttendees(messageAttendees(itemModel.Attendees)); err != nil {
			return nil, err
		}
		return messageModel, nil
	}

	messageModel, err := build(recipient, scheduling.RequestTypeForDelivery(requestType, false))
	if err != nil {
		return fmt.Errorf("Engine.enqueueRequest: %w", err)
	}
	if err := e.hub.Enqueue(ctx, messageModel); err != nil {
		return fmt.Errorf("Engine.enqueueRequest: %w", err)
	}

	delegateIDs, err := e.copyDelegates(ctx, recipient)
	if err != nil {
		return err
	}
	for _, delegateID := range delegateIDs {
		delegateMessage, err := build(delegateID, scheduling.RequestTypeForDelivery(requestType, true))
		if err != nil {
			return fmt.Errorf("Engine.enqueueRequest: %w", err)
		}
		if err := e.hub.Enqueue(ctx, delegateMessage); err != nil {
			return fmt.Errorf("Engine.enqueueRequest: delegate copy: %w", err)
		}
	}
	return nil
}

// copyDelegates lists the delegates of a principal that asked for copies.
func (e *Engine) copyDelegates(ctx context.Context, principalID string) ([]string, error) {
	delegateIDs := make([]string, 0)
	if err := e.db.NewSelect().
		Model((*model.Delegate)(nil)).
		Column("delegate_id").
		Where("principal_id = ?", principalID).
		Where("receives_copy = ?", true).
		Scan(ctx, &delegateIDs); err != nil {
		return nil, fmt.Errorf("Engine.copyDelegates: %w", err)
	}
	return delegateIDs, nil
}

// enqueueCancellation sends one cancellation; recurrenceID scopes it to a
// single occurrence when non-zero.
func (e *Engine) enqueueCancellation(ctx context.Context, itemModel *model.CalendarItem, recipient string, recurrenceID int64, instanceIndex int) error {
	messageModel := e.baseMessage(itemModel, recipient, model.MessageMeetingCancellation)
	messageModel.RecurrenceID = recurrenceID
	messageModel.InstanceIndex = instanceIndex
	if err := e.hub.Enqueue(ctx, messageModel); err != nil {
		return fmt.Errorf("Engine.enqueueCancellation: %w", err)
	}
	return nil
}

// saveSentCopy drops a pre-delivered copy of the message into the
// sender's sent-items folder; it carries no calendar side effects.
func (e *Engine) saveSentCopy(ctx context.Context, itemModel *model.CalendarItem, kind string, requestType scheduling.MeetingRequestType, recurrenceID int64) error {
	messageModel := e.baseMessage(itemModel, itemModel.MailboxID, kind)
	messageModel.FolderID = model.FolderSentItems
	messageModel.MeetingRequestType = string(requestType)
	messageModel.RecurrenceID = recurrenceID
	messageModel.Delivered = true
	if err := messageModel.Insert(ctx, e.db); err != nil {
		return fmt.Errorf("Engine.saveSentCopy: %w", err)
	}
	return nil
}
