package scheduling

// ResponseType is an attendee's answer to a meeting request.
type ResponseType string

const (
	ResponseUnknown            ResponseType = "Unknown"
	ResponseOrganizer          ResponseType = "Organizer"
	ResponseTentative          ResponseType = "Tentative"
	ResponseAccept             ResponseType = "Accept"
	ResponseDecline            ResponseType = "Decline"
	ResponseNoResponseReceived ResponseType = "NoResponseReceived"
)

// HasResponded reports whether the attendee produced any actual answer.
func (r ResponseType) HasResponded() bool {
	switch r {
	case ResponseTentative, ResponseAccept, ResponseDecline:
		return true
	}
	return false
}

// free/busy statuses an item projects onto its owner's grid
const (
	FreeBusyFree             = "Free"
	FreeBusyTentative        = "Tentative"
	FreeBusyBusy             = "Busy"
	FreeBusyOOF              = "OOF"
	FreeBusyNoData           = "NoData"
	FreeBusyWorkingElsewhere = "WorkingElsewhere"
)
