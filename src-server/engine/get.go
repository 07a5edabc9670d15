package engine

import (
	"context"

	"groupcal/src-server/model"
	"groupcal/src-server/occurrence"
	"groupcal/src-server/scheduling"
)

// GetItem resolves a batch of item references. Occurrence references are
// synthesized from the master on every read; nothing per-occurrence is
// ever stored except exceptions.
func (e *Engine) GetItem(ctx context.Context, refs []ItemRef) []ItemResult {
	results := make([]ItemResult, 0, len(refs))
	for _, ref := range refs {
		switch ref.Kind {
		case RefOccurrence:
			results = append(results, e.getOccurrence(ctx, ref.RecurringMasterID, ref.InstanceIndex))
		case RefRecurringMaster:
			results = append(results, e.getMaster(ctx, ref.ItemID))
		default:
			results = append(results, e.getPlain(ctx, ref.ItemID))
		}
	}
	return results
}

func (e *Engine) getPlain(ctx context.Context, itemID string) ItemResult {
	// a plain id may address a synthesized occurrence
	if masterItemID, index, ok := parseOccurrenceItemID(itemID); ok {
		return e.getOccurrence(ctx, masterItemID, index)
	}
	itemModel, err := e.loadItem(ctx, itemID)
	if err != nil {
		return errorResult(err)
	}
	view, err := e.buildView(ctx, itemModel, itemModel.FolderID == model.FolderCalendar)
	if err != nil {
		return errorResult(err)
	}
	return successResult(view)
}

// getMaster walks any occurrence-shaped id back to its series master.
func (e *Engine) getMaster(ctx context.Context, itemID string) ItemResult {
	if masterItemID, _, ok := parseOccurrenceItemID(itemID); ok {
		itemID = masterItemID
	}
	itemModel, err := e.loadItem(ctx, itemID)
	if err != nil {
		return errorResult(err)
	}
	if itemModel.Kind != model.KindRecurringMaster {
		return errorResult(opError(CodeCalendarCannotUseIdForRecurringMaster,
			"item %s is not a recurring master", itemID))
	}
	view, err := e.buildView(ctx, itemModel, true)
	if err != nil {
		return errorResult(err)
	}
	return successResult(view)
}

func (e *Engine) getOccurrence(ctx context.Context, masterItemID string, index int) ItemResult {
	resolved, err := e.store.Resolve(ctx, masterItemID, index)
	if err != nil {
		return errorResult(err)
	}
	masterModel, err := e.loadItem(ctx, masterItemID)
	if err != nil {
		return errorResult(err)
	}
	view, err := e.buildOccurrenceView(ctx, masterModel, resolved)
	if err != nil {
		return errorResult(err)
	}
	return successResult(view)
}

// buildOccurrenceView derives the read model of one occurrence from the
// master copy plus the resolved window. Meeting state, attendees and free
// busy come from the master; the window and id are occurrence-specific.
func (e *Engine) buildOccurrenceView(ctx context.Context, masterModel *model.CalendarItem, resolved *occurrence.Resolved) (*ItemView, error) {
	view, err := e.buildView(ctx, masterModel, false)
	if err != nil {
		return nil, err
	}
	view.ItemID = occurrenceItemID(resolved.MasterItemID, resolved.InstanceIndex)
	view.Kind = model.KindOccurrence
	if resolved.Exception != nil {
		view.Kind = model.KindException
	}
	view.Subject = resolved.Subject
	view.Location = resolved.Location
	view.StartUnixUTC = resolved.Start.Unix()
	view.EndUnixUTC = resolved.End.Unix()
	view.InstanceIndex = resolved.InstanceIndex
	view.OriginalStartUnixUTC = resolved.OriginalStart.Unix()
	view.OriginalEndUnixUTC = resolved.OriginalEnd.Unix()
	view.IsRecurring = true

	// occurrences carry no series-level summaries of their own
	view.Recurrence = nil
	view.FirstOccurrence = nil
	view.LastOccurrence = nil
	view.ModifiedOccurrences = nil
	view.DeletedOccurrences = nil

	analysis, err := e.analyze(ctx, masterModel.MailboxID, masterModel.ItemID, scheduling.Window{
		Start: resolved.Start,
		End:   resolved.End,
	})
	if err != nil {
		return nil, err
	}
	for _, candidate := range analysis.Conflicting {
		view.ConflictingMeetings = append(view.ConflictingMeetings, conflictView(candidate))
	}
	for _, candidate := range analysis.Adjacent {
		view.AdjacentMeetings = append(view.AdjacentMeetings, conflictView(candidate))
	}
	view.ConflictingMeetingCount = analysis.ConflictingCount()
	view.AdjacentMeetingCount = analysis.AdjacentCount()
	return view, nil
}
