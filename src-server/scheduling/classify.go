package scheduling

// MeetingRequestType records why a meeting request message was generated.
type MeetingRequestType string

const (
	NewMeetingRequest   MeetingRequestType = "NewMeetingRequest"
	FullUpdate          MeetingRequestType = "FullUpdate"
	InformationalUpdate MeetingRequestType = "InformationalUpdate"
	PrincipalWantsCopy  MeetingRequestType = "PrincipalWantsCopy"
)

// ClassifyUpdate picks the request type for an update message targeting
// one attendee: attendees who never answered get a FullUpdate, attendees
// who accepted or tentatively accepted get an InformationalUpdate.
// Declined attendees keep getting FullUpdates, same as silent ones.
func ClassifyUpdate(stored ResponseType) MeetingRequestType {
	switch stored {
	case ResponseAccept, ResponseTentative:
		return InformationalUpdate
	default:
		return FullUpdate
	}
}

// RequestTypeForDelivery resolves the delegate concern before the
// full/informational classification applies: a delegate copy of a
// principal's request is marked PrincipalWantsCopy instead.
func RequestTypeForDelivery(base MeetingRequestType, isDelegateCopy bool) MeetingRequestType {
	if isDelegateCopy {
		return PrincipalWantsCopy
	}
	return base
}

// DiffAttendees splits an attendee-list change into added and removed
// addresses. Attendees present on both sides are untouched, even when
// their role moved between required and optional.
func DiffAttendees(before, after []string) (added, removed []string) {
	beforeSet := make(map[string]struct{}, len(before))
	for _, email := range before {
		beforeSet[email] = struct{}{}
	}
	afterSet := make(map[string]struct{}, len(after))
	for _, email := range after {
		afterSet[email] = struct{}{}
	}
	for _, email := range after {
		if _, ok := beforeSet[email]; !ok {
			added = append(added, email)
		}
	}
	for _, email := range before {
		if _, ok := afterSet[email]; !ok {
			removed = append(removed, email)
		}
	}
	return added, removed
}
