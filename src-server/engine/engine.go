package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"groupcal/src-server/delivery"
	"groupcal/src-server/model"
	"groupcal/src-server/occurrence"
	"groupcal/src-server/recurrence"
	"groupcal/src-server/scheduling"
	"groupcal/src-server/utils"

	"github.com/google/uuid"
	"github.com/samber/mo"
	"github.com/uptrace/bun"
)

// Engine owns the per-mailbox calendar item repository and runs the four
// operation contracts on top of it. Cross-mailbox effects only ever leave
// through the delivery hub; there is no transaction spanning two
// mailboxes.
type Engine struct {
	db    *bun.DB
	store *occurrence.Store
	hub   *delivery.Hub
	locks *utils.KeyedMutex

	expansionLimit int
	now            func() time.Time
}

func New(db *bun.DB, hub *delivery.Hub, locks *utils.KeyedMutex, expansionLimit int) *Engine {
	if expansionLimit < 1 {
		expansionLimit = occurrence.DefaultResolveCap
	}
	return &Engine{
		db:             db,
		store:          occurrence.NewStore(db, expansionLimit),
		hub:            hub,
		locks:          locks,
		expansionLimit: expansionLimit,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// loadItem fetches one calendar item row with its attendees.
func (e *Engine) loadItem(ctx context.Context, itemID string) (*model.CalendarItem, error) {
	itemModel := new(model.CalendarItem)
	if err := e.db.NewSelect().
		Model(itemModel).
		Relation("Attendees").
		Where("item_id = ?", itemID).
		Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, opError(CodeItemNotFound, "no item with id %s", itemID)
		}
		return nil, fmt.Errorf("Engine.loadItem: %w", err)
	}
	return itemModel, nil
}

// loadCopyByUID fetches a mailbox's calendar-folder copy of a uid.
func (e *Engine) loadCopyByUID(ctx context.Context, mailboxID, uid string) (*model.CalendarItem, error) {
	itemModel := new(model.CalendarItem)
	if err := e.db.NewSelect().
		Model(itemModel).
		Relation("Attendees").
		Where("mailbox_id = ?", mailboxID).
		Where("uid = ?", uid).
		Where("folder_id = ?", model.FolderCalendar).
		Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, opError(CodeItemNotFound, "no calendar copy of %s in %s", uid, mailboxID)
		}
		return nil, fmt.Errorf("Engine.loadCopyByUID: %w", err)
	}
	return itemModel, nil
}

// validateWindow enforces the two structural invariants every calendar
// item window must satisfy, before any mutation.
func validateWindow(start, end time.Time) error {
	if !end.After(start) {
		return opError(CodeCalendarEndDateIsEarlierThanStartDate,
			"end %s is not after start %s", end.Format(time.RFC3339), start.Format(time.RFC3339))
	}
	if end.Sub(start) > model.MaxDuration {
		return opError(CodeCalendarDurationIsTooLong,
			"duration exceeds %s", model.MaxDuration)
	}
	return nil
}

// occurrenceItemID synthesizes the id occurrence views carry; occurrence
// copies are never stored, only derived.
func occurrenceItemID(masterItemID string, index int) string {
	return masterItemID + ":" + strconv.Itoa(index)
}

// parseOccurrenceItemID is the inverse; ok is false for plain ids.
func parseOccurrenceItemID(id string) (masterItemID string, index int, ok bool) {
	i := strings.LastIndexByte(id, ':')
	if i < 1 {
		return "", 0, false
	}
	index, err := strconv.Atoi(id[i+1:])
	if err != nil || index < 1 {
		return "", 0, false
	}
	return id[:i], index, true
}

// refreshOccurrenceCaches recomputes the first/last occurrence summaries
// stored on a recurring master. Must run on every master mutation.
func (e *Engine) refreshOccurrenceCaches(itemModel *model.CalendarItem) error {
	return occurrence.RefreshCaches(itemModel)
}

// touch rotates the change key and bumps the version counters; every
// mutation goes through here so itemId+changeKey changes on each one.
func (e *Engine) touch(itemModel *model.CalendarItem) {
	itemModel.ChangeKey = uuid.NewString()
	itemModel.Sequence++
	itemModel.UpdatedAt = e.now().Unix()
}

// replaceAttendees rewrites an item's attendee rows from address lists,
// preserving the stored response state of attendees that stay.
func (e *Engine) replaceAttendees(ctx context.Context, itemModel *model.CalendarItem, required, optional, resources []string) error {
	existing := make(map[string]*model.Attendee, len(itemModel.Attendees))
	for _, attendeeModel := range itemModel.Attendees {
		existing[attendeeModel.Email] = attendeeModel
	}

	if _, err := e.db.NewDelete().
		Model((*model.Attendee)(nil)).
		Where("item_id = ?", itemModel.ItemID).
		Exec(ctx); err != nil {
		return fmt.Errorf("Engine.replaceAttendees: %w", err)
	}

	insert := func(emails []string, role string) error {
		for _, email := range emails {
			attendeeModel := &model.Attendee{
				ItemID:       itemModel.ItemID,
				Email:        email,
				Role:         role,
				ResponseType: string(scheduling.ResponseUnknown),
			}
			if prev, ok := existing[email]; ok {
				attendeeModel.ResponseType = prev.ResponseType
				attendeeModel.LastResponseTime = prev.LastResponseTime
				attendeeModel.ProposedStart = prev.ProposedStart
				attendeeModel.ProposedEnd = prev.ProposedEnd
			}
			if err := attendeeModel.Upsert(ctx, e.db); err != nil {
				return err
			}
		}
		return nil
	}
	if err := insert(required, model.RoleRequired); err != nil {
		return err
	}
	if err := insert(optional, model.RoleOptional); err != nil {
		return err
	}
	if err := insert(resources, model.RoleResource); err != nil {
		return err
	}

	// refresh the relation for view building
	attendeeModels := make([]*model.Attendee, 0)
	if err := e.db.NewSelect().
		Model(&attendeeModels).
		Where("item_id = ?", itemModel.ItemID).
		Scan(ctx); err != nil {
		return fmt.Errorf("Engine.replaceAttendees: %w", err)
	}
	itemModel.Attendees = attendeeModels
	return nil
}

// analyze fetches the mailbox's calendar rows touching the window and
// classifies them. Recomputed per response, never persisted.
func (e *Engine) analyze(ctx context.Context, mailboxID, excludeItemID string, window scheduling.Window) (scheduling.Analysis, error) {
	itemModels := make([]model.CalendarItem, 0)
	if err := e.db.NewSelect().
		Model(&itemModels).
		Where("mailbox_id = ?", mailboxID).
		Where("folder_id = ?", model.FolderCalendar).
		Where("item_id != ?", excludeItemID).
		Where("start_date <= ?", window.End.Unix()).
		Where("end_date >= ?", window.Start.Unix()).
		Scan(ctx); err != nil {
		return scheduling.Analysis{}, fmt.Errorf("Engine.analyze: %w", err)
	}
	candidates := make([]scheduling.Candidate, 0, len(itemModels))
	for _, itemModel := range itemModels {
		candidates = append(candidates, scheduling.Candidate{
			ItemID:  itemModel.ItemID,
			Subject: itemModel.Subject,
			Window: scheduling.Window{
				Start: time.Unix(itemModel.StartDate, 0).UTC(),
				End:   time.Unix(itemModel.EndDate, 0).UTC(),
			},
		})
	}
	return scheduling.Analyze(window, candidates), nil
}

// buildView assembles the read model, including the derived recurring
// master summaries and, when asked, the conflict/adjacency annotation.
func (e *Engine) buildView(ctx context.Context, itemModel *model.CalendarItem, annotate bool) (*ItemView, error) {
	state := scheduling.AppointmentState(itemModel.AppointmentState)
	view := &ItemView{
		ItemID:                 itemModel.ItemID,
		ChangeKey:              itemModel.ChangeKey,
		MailboxID:              itemModel.MailboxID,
		FolderID:               itemModel.FolderID,
		UID:                    itemModel.UID,
		Kind:                   itemModel.Kind,
		Subject:                itemModel.Subject,
		Location:               itemModel.Location,
		StartUnixUTC:           itemModel.StartDate,
		EndUnixUTC:             itemModel.EndDate,
		Organizer:              itemModel.Organizer,
		AppointmentState:       itemModel.AppointmentState,
		MyResponseType:         itemModel.MyResponseType,
		IsCancelled:            state.IsCancelled(),
		IsMeeting:              len(itemModel.Attendees) > 0,
		IsRecurring:            itemModel.Kind == model.KindRecurringMaster,
		MeetingRequestWasSent:  state.MeetingRequestWasSent(),
		LegacyFreeBusyStatus:   itemModel.LegacyFreeBusyStatus,
		IntendedFreeBusyStatus: itemModel.IntendedFreeBusyStatus,
	}

	for _, attendeeModel := range itemModel.Attendees {
		attendeeView := AttendeeView{
			Email:            attendeeModel.Email,
			Role:             attendeeModel.Role,
			ResponseType:     attendeeModel.ResponseType,
			LastResponseTime: attendeeModel.LastResponseTime,
			ProposedNewTime:  mo.None[WindowView](),
		}
		if attendeeModel.ProposedStart != 0 {
			attendeeView.ProposedNewTime = mo.Some(WindowView{
				StartUnixUTC: attendeeModel.ProposedStart,
				EndUnixUTC:   attendeeModel.ProposedEnd,
			})
		}
		switch attendeeModel.Role {
		case model.RoleOptional:
			view.OptionalAttendees = append(view.OptionalAttendees, attendeeView)
		case model.RoleResource:
			view.Resources = append(view.Resources, attendeeView)
		default:
			view.RequiredAttendees = append(view.RequiredAttendees, attendeeView)
		}
	}

	if itemModel.Kind == model.KindRecurringMaster {
		rec, err := itemModel.Recurrence()
		if err != nil {
			return nil, err
		}
		view.Recurrence = &rec
		if itemModel.FirstOccurStart != 0 {
			view.FirstOccurrence = &OccurrenceSummary{
				InstanceIndex: 1,
				StartUnixUTC:  itemModel.FirstOccurStart,
				EndUnixUTC:    itemModel.FirstOccurEnd,
			}
		}
		if itemModel.LastOccurStart != 0 {
			// the index comes from walking the pattern; Range.Count only
			// covers numbered ranges
			last, ok, err := recurrence.Last(rec.Pattern, rec.Range, itemModel.Duration())
			if err != nil {
				return nil, err
			}
			if ok {
				view.LastOccurrence = &OccurrenceSummary{
					InstanceIndex: last.Index,
					StartUnixUTC:  itemModel.LastOccurStart,
					EndUnixUTC:    itemModel.LastOccurEnd,
				}
			}
		}

		modified, err := e.store.Modified(ctx, itemModel.ItemID)
		if err != nil {
			return nil, err
		}
		for _, exceptionModel := range modified {
			view.ModifiedOccurrences = append(view.ModifiedOccurrences, OccurrenceSummary{
				InstanceIndex:        exceptionModel.InstanceIndex,
				StartUnixUTC:         exceptionModel.StartDate,
				EndUnixUTC:           exceptionModel.EndDate,
				OriginalStartUnixUTC: exceptionModel.OriginalStart,
				OriginalEndUnixUTC:   exceptionModel.OriginalEnd,
			})
		}
		deleted, err := e.store.Deleted(ctx, itemModel.ItemID)
		if err != nil {
			return nil, err
		}
		for _, exceptionModel := range deleted {
			view.DeletedOccurrences = append(view.DeletedOccurrences, OccurrenceSummary{
				InstanceIndex:        exceptionModel.InstanceIndex,
				StartUnixUTC:         exceptionModel.OriginalStart,
				EndUnixUTC:           exceptionModel.OriginalEnd,
				OriginalStartUnixUTC: exceptionModel.OriginalStart,
				OriginalEndUnixUTC:   exceptionModel.OriginalEnd,
			})
		}
	}

	if annotate {
		analysis, err := e.analyze(ctx, itemModel.MailboxID, itemModel.ItemID, scheduling.Window{
			Start: time.Unix(itemModel.StartDate, 0).UTC(),
			End:   time.Unix(itemModel.EndDate, 0).UTC(),
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
	}

	return view, nil
}

func conflictView(candidate scheduling.Candidate) ConflictView {
	return ConflictView{
		ItemID:       candidate.ItemID,
		Subject:      candidate.Subject,
		StartUnixUTC: candidate.Window.Start.Unix(),
		EndUnixUTC:   candidate.Window.End.Unix(),
	}
}

// attendeeEmails flattens an item's attendee rows to addresses.
func attendeeEmails(attendeeModels []*model.Attendee) []string {
	emails := make([]string, 0, len(attendeeModels))
	for _, attendeeModel := range attendeeModels {
		emails = append(emails, attendeeModel.Email)
	}
	return emails
}

// messageAttendees converts attendee rows into the wire shape a request
// message carries.
func messageAttendees(attendeeModels []*model.Attendee) []model.MessageAttendee {
	out := make([]model.MessageAttendee, 0, len(attendeeModels))
	for _, attendeeModel := range attendeeModels {
		out = append(out, model.MessageAttendee{Email: attendeeModel.Email, Role: attendeeModel.Role})
	}
	return out
}
