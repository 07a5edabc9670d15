package scheduling_test

import (
	"testing"
	"time"

	"groupcal/src-server/scheduling"

	"github.com/stretchr/testify/assert"
)

func window(startHour, endHour int) scheduling.Window {
	day := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	return scheduling.Window{
		Start: day.Add(time.Duration(startHour) * time.Hour),
		End:   day.Add(time.Duration(endHour) * time.Hour),
	}
}

func TestAnalyze(t *testing.T) {
	analysis := scheduling.Analyze(window(10, 12), []scheduling.Candidate{
		{ItemID: "overlapping", Window: window(11, 13)},
		{ItemID: "contained", Window: window(10, 11)},
		{ItemID: "before-adjacent", Window: window(8, 10)},
		{ItemID: "after-adjacent", Window: window(12, 14)},
		{ItemID: "unrelated", Window: window(15, 16)},
	})

	assert.Equal(t, 2, analysis.ConflictingCount())
	assert.Equal(t, 2, analysis.AdjacentCount())
	assert.Equal(t, "overlapping", analysis.Conflicting[0].ItemID)
	assert.Equal(t, "contained", analysis.Conflicting[1].ItemID)
	assert.Equal(t, "before-adjacent", analysis.Adjacent[0].ItemID)
	assert.Equal(t, "after-adjacent", analysis.Adjacent[1].ItemID)
}

func TestWindowTouchingIsNotOverlap(t *testing.T) {
	assert.False(t, window(10, 12).Overlaps(window(12, 13)))
	assert.True(t, window(10, 12).Adjacent(window(12, 13)))
	// sharing a whole hour is overlap, not adjacency
	assert.True(t, window(10, 12).Overlaps(window(11, 13)))
	assert.False(t, window(10, 12).Adjacent(window(11, 13)))
}

func TestClassifyUpdate(t *testing.T) {
	assert.Equal(t, scheduling.InformationalUpdate, scheduling.ClassifyUpdate(scheduling.ResponseAccept))
	assert.Equal(t, scheduling.InformationalUpdate, scheduling.ClassifyUpdate(scheduling.ResponseTentative))
	assert.Equal(t, scheduling.FullUpdate, scheduling.ClassifyUpdate(scheduling.ResponseDecline))
	assert.Equal(t, scheduling.FullUpdate, scheduling.ClassifyUpdate(scheduling.ResponseNoResponseReceived))
}

func TestRequestTypeForDelivery(t *testing.T) {
	assert.Equal(t, scheduling.FullUpdate, scheduling.RequestTypeForDelivery(scheduling.FullUpdate, false))
	assert.Equal(t, scheduling.PrincipalWantsCopy, scheduling.RequestTypeForDelivery(scheduling.FullUpdate, true))
}

func TestDiffAttendees(t *testing.T) {
	added, removed := scheduling.DiffAttendees(
		[]string{"a@x.test", "b@x.test", "c@x.test"},
		[]string{"b@x.test", "c@x.test", "d@x.test"})
	assert.Equal(t, []string{"d@x.test"}, added)
	assert.Equal(t, []string{"a@x.test"}, removed)

	added, removed = scheduling.DiffAttendees(nil, nil)
	assert.Empty(t, added)
	assert.Empty(t, removed)
}

func TestStateTransitions(t *testing.T) {
	assert.Equal(t, scheduling.OrganizerMeetingSent,
		scheduling.StateOnOrganizerSend(scheduling.OrganizerAppointment, true, true))
	assert.Equal(t, scheduling.OrganizerAppointment,
		scheduling.StateOnOrganizerSend(scheduling.OrganizerAppointment, true, false))
	assert.Equal(t, scheduling.OrganizerAppointment,
		scheduling.StateOnOrganizerSend(scheduling.OrganizerAppointment, false, true))
	// terminal states never promote
	assert.Equal(t, scheduling.OrganizerCancelled,
		scheduling.StateOnOrganizerSend(scheduling.OrganizerCancelled, true, true))

	assert.True(t, scheduling.AttendeeCancelled.IsCancelled())
	assert.True(t, scheduling.OrganizerCancelled.IsOrganizer())
	assert.True(t, scheduling.OrganizerMeetingSent.MeetingRequestWasSent())
	assert.False(t, scheduling.AttendeeRequestReceived.IsOrganizer())
}
