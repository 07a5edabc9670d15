package scheduling

// AppointmentState is the mailbox-local lifecycle position of a calendar
// item copy. The organizer's and each attendee's copies of one meeting
// carry different values; they are never shared.
type AppointmentState int

const (
	// appointment sitting on the organizer's calendar, no requests sent
	OrganizerAppointment AppointmentState = 0
	// organizer sent meeting requests
	OrganizerMeetingSent AppointmentState = 1
	// attendee copy created by a delivered meeting request
	AttendeeRequestReceived AppointmentState = 3
	// organizer cancelled the meeting; terminal
	OrganizerCancelled AppointmentState = 5
	// attendee copy cancelled by a delivered cancellation; terminal
	AttendeeCancelled AppointmentState = 7
)

// IsCancelled is derived from the state, never settable on its own.
func (s AppointmentState) IsCancelled() bool {
	return s == OrganizerCancelled || s == AttendeeCancelled
}

// IsOrganizer reports whether the copy belongs to the meeting's organizer.
func (s AppointmentState) IsOrganizer() bool {
	return s == OrganizerAppointment || s == OrganizerMeetingSent || s == OrganizerCancelled
}

// MeetingRequestWasSent reports whether the organizer already distributed
// requests for this copy.
func (s AppointmentState) MeetingRequestWasSent() bool {
	return s == OrganizerMeetingSent || s == OrganizerCancelled
}

// terminal states accept no further transitions
func (s AppointmentState) IsTerminal() bool {
	return s.IsCancelled()
}

// StateOnOrganizerSend computes the organizer copy's state after a create
// or update: sending requests to a non-empty attendee list promotes the
// plain appointment to a sent meeting.
func StateOnOrganizerSend(current AppointmentState, hasAttendees, delivering bool) AppointmentState {
	if current.IsTerminal() {
		return current
	}
	if hasAttendees && delivering {
		return OrganizerMeetingSent
	}
	return current
}
