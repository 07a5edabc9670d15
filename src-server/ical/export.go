package ical

import (
	"fmt"
	"io"
	"strings"
	"time"

	"groupcal/src-server/model"
	"groupcal/src-server/recurrence"

	goical "github.com/emersion/go-ical"
)

// Entry is one calendar item plus its exception rows, ready for export.
type Entry struct {
	Item       *model.CalendarItem
	Exceptions []model.OccurrenceException
}

// Encode writes the entries as an iCalendar stream. Recurring masters
// become one VEVENT with an RRULE; tombstoned occurrences turn into
// EXDATEs and replaced ones into RECURRENCE-ID override events.
func Encode(w io.Writer, prodID string, entries []Entry) error {
	calendar := goical.NewCalendar()
	calendar.Props.SetText(goical.PropVersion, "2.0")
	calendar.Props.SetText(goical.PropProductID, prodID)

	for _, entry := range entries {
		eventComponent, err := eventFor(entry)
		if err != nil {
			return fmt.Errorf("ical.Encode: %w", err)
		}
		calendar.Children = append(calendar.Children, eventComponent)
		for _, exceptionModel := range entry.Exceptions {
			if exceptionModel.Deleted {
				continue
			}
			calendar.Children = append(calendar.Children, overrideFor(entry.Item, exceptionModel))
		}
	}

	if err := goical.NewEncoder(w).Encode(calendar); err != nil {
		return fmt.Errorf("ical.Encode: %w", err)
	}
	return nil
}

func eventFor(entry Entry) (*goical.Component, error) {
	itemModel := entry.Item
	event := goical.NewEvent()
	event.Props.SetText(goical.PropUID, itemModel.UID)
	event.Props.SetText(goical.PropSummary, itemModel.Subject)
	if itemModel.Location != "" {
		event.Props.SetText(goical.PropLocation, itemModel.Location)
	}
	if itemModel.Organizer != "" {
		organizerProp := goical.NewProp(goical.PropOrganizer)
		organizerProp.Value = "mailto:" + itemModel.Organizer
		event.Props.Set(organizerProp)
	}
	event.Props.SetDateTime(goical.PropDateTimeStamp, time.Unix(itemModel.UpdatedAt, 0).UTC())
	event.Props.SetDateTime(goical.PropDateTimeStart, time.Unix(itemModel.StartDate, 0).UTC())
	event.Props.SetDateTime(goical.PropDateTimeEnd, time.Unix(itemModel.EndDate, 0).UTC())
	event.Props.SetText(goical.PropSequence, fmt.Sprintf("%d", itemModel.Sequence))

	for _, attendeeModel := range itemModel.Attendees {
		attendeeProp := goical.NewProp(goical.PropAttendee)
		attendeeProp.Value = "mailto:" + attendeeModel.Email
		attendeeProp.Params.Set(goical.ParamRole, roleParam(attendeeModel.Role))
		attendeeProp.Params.Set(goical.ParamParticipationStatus, partStatParam(attendeeModel.ResponseType))
		event.Props.Add(attendeeProp)
	}

	if itemModel.Kind == model.KindRecurringMaster {
		rec, err := itemModel.Recurrence()
		if err != nil {
			return nil, err
		}
		// set raw; SetText would escape the semicolons
		rruleProp := goical.NewProp(goical.PropRecurrenceRule)
		rruleProp.Value = RRuleValue(rec)
		event.Props.Set(rruleProp)
		for _, exceptionModel := range entry.Exceptions {
			if !exceptionModel.Deleted {
				continue
			}
			// one EXDATE prop per tombstone; Add keeps earlier ones
			exdateProp := goical.NewProp(goical.PropExceptionDates)
			exdateProp.SetDateTime(time.Unix(exceptionModel.OriginalStart, 0).UTC())
			event.Props.Add(exdateProp)
		}
	}

	return event.Component, nil
}

// overrideFor renders a replaced occurrence as an override VEVENT keyed
// by the pattern-computed start.
func overrideFor(itemModel *model.CalendarItem, exceptionModel model.OccurrenceException) *goical.Component {
	event := goical.NewEvent()
	event.Props.SetText(goical.PropUID, itemModel.UID)
	event.Props.SetDateTime(goical.PropRecurrenceID, time.Unix(exceptionModel.OriginalStart, 0).UTC())
	subject := exceptionModel.Subject
	if subject == "" {
		subject = itemModel.Subject
	}
	event.Props.SetText(goical.PropSummary, subject)
	location := exceptionModel.Location
	if location == "" {
		location = itemModel.Location
	}
	if location != "" {
		event.Props.SetText(goical.PropLocation, location)
	}
	event.Props.SetDateTime(goical.PropDateTimeStamp, time.Unix(exceptionModel.UpdatedAt, 0).UTC())
	event.Props.SetDateTime(goical.PropDateTimeStart, time.Unix(exceptionModel.StartDate, 0).UTC())
	event.Props.SetDateTime(goical.PropDateTimeEnd, time.Unix(exceptionModel.EndDate, 0).UTC())
	return event.Component
}

func roleParam(role string) string {
	switch role {
	case model.RoleOptional:
		return "OPT-PARTICIPANT"
	case model.RoleResource:
		return "NON-PARTICIPANT"
	default:
		return "REQ-PARTICIPANT"
	}
}

func partStatParam(responseType string) string {
	switch responseType {
	case "Accept":
		return "ACCEPTED"
	case "Tentative":
		return "TENTATIVE"
	case "Decline":
		return "DECLINED"
	default:
		return "NEEDS-ACTION"
	}
}

var freqNames = map[recurrence.PatternKind]string{
	recurrence.PatternDaily:           "DAILY",
	recurrence.PatternWeekly:          "WEEKLY",
	recurrence.PatternAbsoluteMonthly: "MONTHLY",
	recurrence.PatternRelativeMonthly: "MONTHLY",
	recurrence.PatternAbsoluteYearly:  "YEARLY",
	recurrence.PatternRelativeYearly:  "YEARLY",
}

var byDayNames = map[time.Weekday]string{
	time.Sunday:    "SU",
	time.Monday:    "MO",
	time.Tuesday:   "TU",
	time.Wednesday: "WE",
	time.Thursday:  "TH",
	time.Friday:    "FR",
	time.Saturday:  "SA",
}

// RRuleValue renders a recurrence as an RFC 5545 RRULE property value.
func RRuleValue(rec recurrence.Recurrence) string {
	parts := []string{"FREQ=" + freqNames[rec.Pattern.Kind]}
	if rec.Pattern.Interval > 1 {
		parts = append(parts, fmt.Sprintf("INTERVAL=%d", rec.Pattern.Interval))
	}

	switch rec.Pattern.Kind {
	case recurrence.PatternWeekly:
		days := make([]string, 0, len(rec.Pattern.DaysOfWeek))
		for _, day := range rec.Pattern.DaysOfWeek {
			days = append(days, byDayNames[day])
		}
		parts = append(parts, "BYDAY="+strings.Join(days, ","))
	case recurrence.PatternAbsoluteMonthly:
		parts = append(parts, fmt.Sprintf("BYMONTHDAY=%d", rec.Pattern.DayOfMonth))
	case recurrence.PatternRelativeMonthly:
		parts = append(parts, fmt.Sprintf("BYDAY=%d%s", rec.Pattern.WeekIndex, byDayNames[rec.Pattern.DayOfWeek]))
	case recurrence.PatternAbsoluteYearly:
		parts = append(parts,
			fmt.Sprintf("BYMONTH=%d", rec.Pattern.Month),
			fmt.Sprintf("BYMONTHDAY=%d", rec.Pattern.DayOfMonth))
	case recurrence.PatternRelativeYearly:
		parts = append(parts,
			fmt.Sprintf("BYMONTH=%d", rec.Pattern.Month),
			fmt.Sprintf("BYDAY=%d%s", rec.Pattern.WeekIndex, byDayNames[rec.Pattern.DayOfWeek]))
	}

	switch rec.Range.Kind {
	case recurrence.RangeNumbered:
		parts = append(parts, fmt.Sprintf("COUNT=%d", rec.Range.Count))
	case recurrence.RangeEndDate:
		parts = append(parts, "UNTIL="+rec.Range.End.UTC().Format("20060102T150405Z"))
	}
	return strings.Join(parts, ";")
}
