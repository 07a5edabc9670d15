package ical_test

import (
	"strings"
	"testing"
	"time"

	"groupcal/src-server/ical"
	"groupcal/src-server/model"
	"groupcal/src-server/recurrence"
)

var seriesStart = time.Date(2024, 5, 6, 9, 0, 0, 0, time.UTC)

func TestRRuleValue(t *testing.T) {
	for _, testCase := range []struct {
		name string
		rec  recurrence.Recurrence
		want string
	}{
		{
			name: "daily numbered",
			rec: recurrence.Recurrence{
				Pattern: recurrence.Pattern{Kind: recurrence.PatternDaily, Interval: 1},
				Range:   recurrence.Range{Kind: recurrence.RangeNumbered, Start: seriesStart, Count: 5},
			},
			want: "FREQ=DAILY;COUNT=5",
		},
		{
			name: "biweekly until",
			rec: recurrence.Recurrence{
				Pattern: recurrence.Pattern{
					Kind:       recurrence.PatternWeekly,
					Interval:   2,
					DaysOfWeek: []time.Weekday{time.Monday, time.Wednesday},
				},
				Range: recurrence.Range{
					Kind:  recurrence.RangeEndDate,
					Start: seriesStart,
					End:   time.Date(2024, 8, 30, 0, 0, 0, 0, time.UTC),
				},
			},
			want: "FREQ=WEEKLY;INTERVAL=2;BYDAY=MO,WE;UNTIL=20240830T000000Z",
		},
		{
			name: "absolute monthly no end",
			rec: recurrence.Recurrence{
				Pattern: recurrence.Pattern{
					Kind:       recurrence.PatternAbsoluteMonthly,
					Interval:   1,
					DayOfMonth: 15,
				},
				Range: recurrence.Range{Kind: recurrence.RangeNoEnd, Start: seriesStart},
			},
			want: "FREQ=MONTHLY;BYMONTHDAY=15",
		},
		{
			name: "last friday of the month",
			rec: recurrence.Recurrence{
				Pattern: recurrence.Pattern{
					Kind:      recurrence.PatternRelativeMonthly,
					Interval:  1,
					WeekIndex: recurrence.WeekIndexLast,
					DayOfWeek: time.Friday,
				},
				Range: recurrence.Range{Kind: recurrence.RangeNumbered, Start: seriesStart, Count: 6},
			},
			want: "FREQ=MONTHLY;BYDAY=-1FR;COUNT=6",
		},
		{
			name: "second tuesday of november",
			rec: recurrence.Recurrence{
				Pattern: recurrence.Pattern{
					Kind:      recurrence.PatternRelativeYearly,
					Interval:  1,
					WeekIndex: 2,
					DayOfWeek: time.Tuesday,
					Month:     time.November,
				},
				Range: recurrence.Range{Kind: recurrence.RangeNoEnd, Start: seriesStart},
			},
			want: "FREQ=YEARLY;BYMONTH=11;BYDAY=2TU",
		},
	} {
		t.Run(testCase.name, func(t *testing.T) {
			if got := ical.RRuleValue(testCase.rec); got != testCase.want {
				t.Errorf("got %q, want %q", got, testCase.want)
			}
		})
	}
}

func TestEncodeRecurringMaster(t *testing.T) {
	now := time.Now().UTC().Unix()
	masterModel := &model.CalendarItem{
		ItemID:    "master-1",
		ChangeKey: "ck-1",
		MailboxID: "alice@example.test",
		FolderID:  model.FolderCalendar,
		UID:       "uid-1",
		Subject:   "standup",
		Location:  "room 1",
		StartDate: seriesStart.Unix(),
		EndDate:   seriesStart.Add(30 * time.Minute).Unix(),
		Organizer: "alice@example.test",
		Sequence:  2,
		CreatedAt: now,
		UpdatedAt: now,
		Attendees: []*model.Attendee{
			{ItemID: "master-1", Email: "bob@example.test", Role: model.RoleRequired, ResponseType: "Accept"},
		},
	}
	if err := masterModel.SetRecurrence(recurrence.Recurrence{
		Pattern: recurrence.Pattern{Kind: recurrence.PatternDaily, Interval: 1},
		Range:   recurrence.Range{Kind: recurrence.RangeNumbered, Start: seriesStart, Count: 5},
	}); err != nil {
		t.Fatal(err)
	}

	exceptions := []model.OccurrenceException{
		{
			MasterItemID:  "master-1",
			InstanceIndex: 2,
			OriginalStart: seriesStart.AddDate(0, 0, 1).Unix(),
			OriginalEnd:   seriesStart.AddDate(0, 0, 1).Add(30 * time.Minute).Unix(),
			StartDate:     seriesStart.AddDate(0, 0, 1).Add(2 * time.Hour).Unix(),
			EndDate:       seriesStart.AddDate(0, 0, 1).Add(150 * time.Minute).Unix(),
			Location:      "room 2",
			UpdatedAt:     now,
		},
		{
			MasterItemID:  "master-1",
			InstanceIndex: 4,
			OriginalStart: seriesStart.AddDate(0, 0, 3).Unix(),
			OriginalEnd:   seriesStart.AddDate(0, 0, 3).Add(30 * time.Minute).Unix(),
			Deleted:       true,
			UpdatedAt:     now,
		},
	}

	var buf strings.Builder
	if err := ical.Encode(&buf, "-//groupcal//calendar//EN", []ical.Entry{
		{Item: masterModel, Exceptions: exceptions},
	}); err != nil {
		t.Fatal(err)
	}
	out := buf.String()

	for _, want := range []string{
		"BEGIN:VCALENDAR",
		"PRODID:-//groupcal//calendar//EN",
		"RRULE:FREQ=DAILY;COUNT=5",
		"EXDATE:20240509T090000Z",
		"RECURRENCE-ID:20240507T090000Z",
		"LOCATION:room 2",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}

	// the master plus one override, the tombstone stays an EXDATE
	if got := strings.Count(out, "BEGIN:VEVENT"); got != 2 {
		t.Errorf("got %d events, want 2", got)
	}
	// the override inherits the master's subject
	if got := strings.Count(out, "SUMMARY:standup"); got != 2 {
		t.Errorf("got %d summaries, want 2", got)
	}
}
