package engine

import (
	"context"
	"fmt"
	"time"

	"groupcal/src-server/model"
	"groupcal/src-server/occurrence"
	"groupcal/src-server/scheduling"
	"groupcal/src-server/utils"
)

// readOnlyFields are derived or identity properties a change set may
// never address.
var readOnlyFields = map[string]struct{}{
	"itemId":                  {},
	"changeKey":               {},
	"uid":                     {},
	"organizer":               {},
	"isCancelled":             {},
	"isMeeting":               {},
	"isRecurring":             {},
	"isOnlineMeeting":         {},
	"sharingEffectiveRights":  {},
	"meetingRequestWasSent":   {},
	"appointmentState":        {},
	"firstOccurrence":         {},
	"lastOccurrence":          {},
	"modifiedOccurrences":     {},
	"deletedOccurrences":      {},
	"conflictingMeetingCount": {},
	"adjacentMeetingCount":    {},
}

// UpdateItem applies a batch of change sets. Each change set is checked
// in full before any of it is applied; a rejected set leaves the item
// untouched and sends nothing.
func (e *Engine) UpdateItem(ctx context.Context, changes []Change, mode scheduling.Mode) []ItemResult {
	results := make([]ItemResult, 0, len(changes))
	for _, change := range changes {
		results = append(results, e.updateOne(ctx, change, mode))
	}
	return results
}

func (e *Engine) updateOne(ctx context.Context, change Change, mode scheduling.Mode) ItemResult {
	if mode == "" {
		mode = scheduling.SendToNone
	}
	decision, err := scheduling.Decide(scheduling.OpUpdate, mode)
	if err != nil {
		return errorResult(err)
	}
	for field := range change.Fields {
		if _, ok := readOnlyFields[field]; ok {
			return errorResult(opError(CodeInvalidPropertySet, "field %s is read-only", field))
		}
	}

	target := change.Target
	itemID := change.ItemID
	index := change.InstanceIndex
	if masterItemID, parsedIndex, ok := parseOccurrenceItemID(itemID); ok {
		target = TargetOccurrence
		itemID = masterItemID
		index = parsedIndex
	}

	if target == TargetOccurrence {
		return e.updateOccurrence(ctx, itemID, index, change.Fields, decision)
	}
	return e.updateItemCopy(ctx, itemID, change.Fields, decision)
}

// updateOccurrence rewrites one occurrence as a stored exception and
// notifies attendees about that occurrence only.
func (e *Engine) updateOccurrence(ctx context.Context, masterItemID string, index int, fields map[string]any, decision scheduling.Decision) ItemResult {
	masterModel, err := e.loadItem(ctx, masterItemID)
	if err != nil {
		return errorResult(err)
	}
	unlock := e.locks.Lock(utils.ItemKey(masterModel.MailboxID, masterModel.ItemID))
	defer unlock()

	// reject tombstoned occurrences before writing anything
	resolved, err := e.store.Resolve(ctx, masterItemID, index)
	if err != nil {
		return errorResult(err)
	}

	mod := occurrence.Modification{
		Start:    resolved.Start,
		End:      resolved.End,
		Subject:  resolved.Subject,
		Location: resolved.Location,
	}
	for field, value := range fields {
		switch field {
		case "subject":
			mod.Subject, err = parseStringField(field, value)
		case "location":
			mod.Location, err = parseStringField(field, value)
		case "start":
			mod.Start, err = parseTimeField(field, value)
		case "end":
			mod.End, err = parseTimeField(field, value)
		default:
			err = opError(CodeInvalidPropertySet, "field %s cannot be set on an occurrence", field)
		}
		if err != nil {
			return errorResult(err)
		}
	}
	if err := validateWindow(mod.Start, mod.End); err != nil {
		return errorResult(err)
	}

	exceptionModel, err := e.store.Modify(ctx, masterItemID, index, occurrence.Modification{
		Start:    mod.Start,
		End:      mod.End,
		Subject:  mod.Subject,
		Location: mod.Location,
	})
	if err != nil {
		return errorResult(err)
	}

	e.touch(masterModel)
	if err := masterModel.Upsert(ctx, e.db); err != nil {
		return errorResult(err)
	}

	// an occurrence field change adds or removes nobody, so a
	// changed-attendees-only mode has an empty recipient set
	if decision.DeliverToAttendees && !decision.OnlyChanged && len(masterModel.Attendees) > 0 {
		for _, attendeeModel := range masterModel.Attendees {
			requestType := scheduling.ClassifyUpdate(scheduling.ResponseType(attendeeModel.ResponseType))
			if err := e.enqueueOccurrenceUpdate(ctx, masterModel, exceptionModel, attendeeModel.Email, requestType); err != nil {
				return errorResult(err)
			}
		}
		if decision.SaveSenderCopy {
			if err := e.saveSentCopy(ctx, masterModel, model.MessageMeetingRequest, scheduling.FullUpdate, exceptionModel.OriginalStart); err != nil {
				return errorResult(err)
			}
		}
	}

	refreshed, err := e.store.Resolve(ctx, masterItemID, index)
	if err != nil {
		return errorResult(err)
	}
	view, err := e.buildOccurrenceView(ctx, masterModel, refreshed)
	if err != nil {
		return errorResult(err)
	}
	return successResult(view)
}

// enqueueOccurrenceUpdate sends an update scoped to one occurrence; the
// recurrence id carries the original pattern-computed start so the
// recipient can match its own copy of the instance.
func (e *Engine) enqueueOccurrenceUpdate(ctx context.Context, masterModel *model.CalendarItem, exceptionModel *model.OccurrenceException, recipient string, requestType scheduling.MeetingRequestType) error {
	messageModel := e.baseMessage(masterModel, recipient, model.MessageMeetingRequest)
	messageModel.MeetingRequestType = string(scheduling.RequestTypeForDelivery(requestType, false))
	messageModel.RecurrenceID = exceptionModel.OriginalStart
	messageModel.InstanceIndex = exceptionModel.InstanceIndex
	messageModel.StartDate = exceptionModel.StartDate
	messageModel.EndDate = exceptionModel.EndDate
	if exceptionModel.Subject != "" {
		messageModel.Subject = exceptionModel.Subject
	}
	if exceptionModel.Location != "" {
		messageModel.Location = exceptionModel.Location
	}
	if err := messageModel.SetAttendees(messageAttendees(masterModel.Attendees)); err != nil {
		return fmt.Errorf("Engine.enqueueOccurrenceUpdate: %w", err)
	}
	if err := e.hub.Enqueue(ctx, messageModel); err != nil {
		return fmt.Errorf("Engine.enqueueOccurrenceUpdate: %w", err)
	}
	return nil
}

// updateItemCopy applies a change set to a single item or a whole series
// master, then distributes updates per the decision.
func (e *Engine) updateItemCopy(ctx context.Context, itemID string, fields map[string]any, decision scheduling.Decision) ItemResult {
	itemModel, err := e.loadItem(ctx, itemID)
	if err != nil {
		return errorResult(err)
	}
	unlock := e.locks.Lock(utils.ItemKey(itemModel.MailboxID, itemModel.ItemID))
	defer unlock()

	beforeEmails := attendeeEmails(itemModel.Attendees)
	var (
		required, optional, resources []string
		requiredSet, optionalSet      bool
		resourcesSet                  bool
	)

	for field, value := range fields {
		switch field {
		case "subject":
			itemModel.Subject, err = parseStringField(field, value)
		case "location":
			itemModel.Location, err = parseStringField(field, value)
		case "start":
			var t time.Time
			if t, err = parseTimeField(field, value); err == nil {
				itemModel.StartDate = t.Unix()
			}
		case "end":
			var t time.Time
			if t, err = parseTimeField(field, value); err == nil {
				itemModel.EndDate = t.Unix()
			}
		case "legacyFreeBusyStatus":
			itemModel.LegacyFreeBusyStatus, err = parseStringField(field, value)
		case "intendedFreeBusyStatus":
			itemModel.IntendedFreeBusyStatus, err = parseStringField(field, value)
		case "requiredAttendees":
			required, err = parseStringListField(field, value)
			requiredSet = true
		case "optionalAttendees":
			optional, err = parseStringListField(field, value)
			optionalSet = true
		case "resources":
			resources, err = parseStringListField(field, value)
			resourcesSet = true
		default:
			err = opError(CodeInvalidPropertySet, "unknown field %s", field)
		}
		if err != nil {
			return errorResult(err)
		}
	}

	if err := validateWindow(
		time.Unix(itemModel.StartDate, 0).UTC(),
		time.Unix(itemModel.EndDate, 0).UTC()); err != nil {
		return errorResult(err)
	}
	if itemModel.Kind == model.KindRecurringMaster {
		if err := e.refreshOccurrenceCaches(itemModel); err != nil {
			return errorResult(err)
		}
	}

	e.touch(itemModel)
	if err := itemModel.Upsert(ctx, e.db); err != nil {
		return errorResult(err)
	}

	if requiredSet || optionalSet || resourcesSet {
		// roles the change set didn't mention keep their current list
		if !requiredSet {
			required = emailsByRole(itemModel.Attendees, model.RoleRequired)
		}
		if !optionalSet {
			optional = emailsByRole(itemModel.Attendees, model.RoleOptional)
		}
		if !resourcesSet {
			resources = emailsByRole(itemModel.Attendees, model.RoleResource)
		}
		if err := e.replaceAttendees(ctx, itemModel, required, optional, resources); err != nil {
			return errorResult(err)
		}
	}
	added, removed := scheduling.DiffAttendees(beforeEmails, attendeeEmails(itemModel.Attendees))

	isOrganizerMeeting := itemModel.Organizer == itemModel.MailboxID && len(itemModel.Attendees)+len(removed) > 0
	if decision.DeliverToAttendees && isOrganizerMeeting {
		if decision.OnlyChanged {
			for _, email := range added {
				if err := e.enqueueRequest(ctx, itemModel, email, scheduling.NewMeetingRequest, 0, 0); err != nil {
					return errorResult(err)
				}
			}
		} else {
			for _, attendeeModel := range itemModel.Attendees {
				requestType := scheduling.ClassifyUpdate(scheduling.ResponseType(attendeeModel.ResponseType))
				if contains(added, attendeeModel.Email) {
					requestType = scheduling.NewMeetingRequest
				}
				if err := e.enqueueRequest(ctx, itemModel, attendeeModel.Email, requestType, 0, 0); err != nil {
					return errorResult(err)
				}
			}
		}
		// dropped attendees always hear about it, changed-only or not
		for _, email := range removed {
			if err := e.enqueueCancellation(ctx, itemModel, email, 0, 0); err != nil {
				return errorResult(err)
			}
		}
		if decision.SaveSenderCopy {
			if err := e.saveSentCopy(ctx, itemModel, model.MessageMeetingRequest, scheduling.FullUpdate, 0); err != nil {
				return errorResult(err)
			}
		}
	}

	view, err := e.buildView(ctx, itemModel, itemModel.FolderID == model.FolderCalendar)
	if err != nil {
		return errorResult(err)
	}
	return successResult(view)
}

func emailsByRole(attendeeModels []*model.Attendee, role string) []string {
	emails := make([]string, 0)
	for _, attendeeModel := range attendeeModels {
		if attendeeModel.Role == role {
			emails = append(emails, attendeeModel.Email)
		}
	}
	return emails
}

func contains(list []string, value string) bool {
	for _, entry := range list {
		if entry == value {
			return true
		}
	}
	return false
}

func parseStringField(field string, value any) (string, error) {
	s, ok := value.(string)
	if !ok {
		return "", opError(CodeInvalidPropertySet, "field %s wants a string, got %T", field, value)
	}
	return s, nil
}

func parseStringListField(field string, value any) ([]string, error) {
	switch v := value.(type) {
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, entry := range v {
			s, ok := entry.(string)
			if !ok {
				return nil, opError(CodeInvalidPropertySet, "field %s wants strings, got %T", field, entry)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, opError(CodeInvalidPropertySet, "field %s wants a string list, got %T", field, value)
	}
}

func parseTimeField(field string, value any) (time.Time, error) {
	switch v := value.(type) {
	case time.Time:
		return v.UTC(), nil
	case int64:
		return time.Unix(v, 0).UTC(), nil
	case int:
		return time.Unix(int64(v), 0).UTC(), nil
	case float64:
		return time.Unix(int64(v), 0).UTC(), nil
	case string:
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, opError(CodeInvalidPropertySet, "field %s: %s is not RFC3339", field, v)
		}
		return t.UTC(), nil
	default:
		return time.Time{}, opError(CodeInvalidPropertySet, "field %s wants a time, got %T", field, value)
	}
}
