package engine

import (
	"time"

	"groupcal/src-server/recurrence"
	"groupcal/src-server/scheduling"

	"github.com/samber/mo"
)

// ItemClass discriminates what a CreateItem entry is: a calendar item or
// one of the meeting response objects.
type ItemClass string

const (
	ClassCalendarItem      ItemClass = "CalendarItem"
	ClassAccept            ItemClass = "AcceptItem"
	ClassTentativelyAccept ItemClass = "TentativelyAcceptItem"
	ClassDecline           ItemClass = "DeclineItem"
	ClassCancel            ItemClass = "CancelCalendarItem"
	ClassRemove            ItemClass = "RemoveItem"
)

// message dispositions for response objects
const (
	DispositionSendOnly        = "SendOnly"
	DispositionSendAndSaveCopy = "SendAndSaveCopy"
	DispositionSaveOnly        = "SaveOnly"
)

// NewItem is one entry of a CreateItem batch.
type NewItem struct {
	Class     ItemClass
	MailboxID string

	// calendar items
	Subject                string
	Location               string
	Start                  time.Time
	End                    time.Time
	RequiredAttendees      []string
	OptionalAttendees      []string
	Resources              []string
	Recurrence             *recurrence.Recurrence
	LegacyFreeBusyStatus   string
	IntendedFreeBusyStatus string

	// response objects
	ReferenceItemID    string
	MessageDisposition string
	Proposal           mo.Option[scheduling.Window]
}

// RefKind discriminates the three item reference shapes GetItem and
// DeleteItem accept.
type RefKind string

const (
	RefPlain           RefKind = "ItemId"
	RefOccurrence      RefKind = "OccurrenceItemId"
	RefRecurringMaster RefKind = "RecurringMasterItemId"
)

type ItemRef struct {
	Kind RefKind

	// plain and recurring-master refs
	ItemID string

	// occurrence refs
	RecurringMasterID string
	InstanceIndex     int
}

// TargetKind says what part of an item an UpdateItem change addresses.
type TargetKind string

const (
	TargetItem       TargetKind = "item"
	TargetMaster     TargetKind = "master"
	TargetOccurrence TargetKind = "occurrence"
)

// Change is one entry of an UpdateItem batch. Fields maps lower-camel
// field names to new values; read-only fields are rejected with
// InvalidPropertySet before anything is applied.
type Change struct {
	ItemID        string
	Target        TargetKind
	InstanceIndex int
	Fields        map[string]any
}

// ItemResult is the per-item outcome of a batch operation; one item's
// error never aborts its siblings.
type ItemResult struct {
	Class       ResponseClass `json:"responseClass"`
	Code        ResponseCode  `json:"responseCode"`
	MessageText string        `json:"messageText,omitempty"`
	Item        *ItemView     `json:"item,omitempty"`
}

// WindowView is a start/end pair in unix UTC seconds.
type WindowView struct {
	StartUnixUTC int64 `json:"startUnixUTC"`
	EndUnixUTC   int64 `json:"endUnixUTC"`
}

// AttendeeView is one attendee record on an item view.
type AttendeeView struct {
	Email            string                `json:"email"`
	Role             string                `json:"role"`
	ResponseType     string                `json:"responseType"`
	LastResponseTime int64                 `json:"lastResponseTime,omitempty"`
	ProposedNewTime  mo.Option[WindowView] `json:"proposedNewTime"`
}

// OccurrenceSummary is one entry of firstOccurrence/lastOccurrence/
// modifiedOccurrences/deletedOccurrences on a recurring master view.
type OccurrenceSummary struct {
	InstanceIndex        int   `json:"instanceIndex"`
	StartUnixUTC         int64 `json:"startUnixUTC"`
	EndUnixUTC           int64 `json:"endUnixUTC"`
	OriginalStartUnixUTC int64 `json:"originalStartUnixUTC,omitempty"`
	OriginalEndUnixUTC   int64 `json:"originalEndUnixUTC,omitempty"`
}

// ConflictView is one overlapping or adjacent calendar item.
type ConflictView struct {
	ItemID       string `json:"itemId"`
	Subject      string `json:"subject"`
	StartUnixUTC int64  `json:"startUnixUTC"`
	EndUnixUTC   int64  `json:"endUnixUTC"`
}

// ItemView is the engine's read model of one calendar item copy.
type ItemView struct {
	ItemID    string `json:"itemId"`
	ChangeKey string `json:"changeKey"`
	MailboxID string `json:"mailboxId"`
	FolderID  string `json:"folderId"`
	UID       string `json:"uid"`
	Kind      string `json:"kind"`

	Subject      string `json:"subject"`
	Location     string `json:"location,omitempty"`
	StartUnixUTC int64  `json:"startUnixUTC"`
	EndUnixUTC   int64  `json:"endUnixUTC"`

	// occurrence/exception views only: the pattern-computed window
	InstanceIndex        int   `json:"instanceIndex,omitempty"`
	OriginalStartUnixUTC int64 `json:"originalStartUnixUTC,omitempty"`
	OriginalEndUnixUTC   int64 `json:"originalEndUnixUTC,omitempty"`

	Organizer        string `json:"organizer,omitempty"`
	AppointmentState int    `json:"appointmentState"`
	MyResponseType   string `json:"myResponseType,omitempty"`

	IsCancelled           bool `json:"isCancelled"`
	IsMeeting             bool `json:"isMeeting"`
	IsRecurring           bool `json:"isRecurring"`
	MeetingRequestWasSent bool `json:"meetingRequestWasSent"`

	LegacyFreeBusyStatus   string `json:"legacyFreeBusyStatus,omitempty"`
	IntendedFreeBusyStatus string `json:"intendedFreeBusyStatus,omitempty"`

	Recurrence *recurrence.Recurrence `json:"recurrence,omitempty"`

	FirstOccurrence     *OccurrenceSummary  `json:"firstOccurrence,omitempty"`
	LastOccurrence      *OccurrenceSummary  `json:"lastOccurrence,omitempty"`
	ModifiedOccurrences []OccurrenceSummary `json:"modifiedOccurrences,omitempty"`
	DeletedOccurrences  []OccurrenceSummary `json:"deletedOccurrences,omitempty"`

	RequiredAttendees []AttendeeView `json:"requiredAttendees,omitempty"`
	OptionalAttendees []AttendeeView `json:"optionalAttendees,omitempty"`
	Resources         []AttendeeView `json:"resources,omitempty"`

	ConflictingMeetingCount int            `json:"conflictingMeetingCount"`
	ConflictingMeetings     []ConflictView `json:"conflictingMeetings,omitempty"`
	AdjacentMeetingCount    int            `json:"adjacentMeetingCount"`
	AdjacentMeetings        []ConflictView `json:"adjacentMeetings,omitempty"`
}
