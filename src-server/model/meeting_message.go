package model

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/uptrace/bun"
)

// meeting message kinds
const (
	MessageMeetingRequest      = "MeetingRequest"
	MessageMeetingResponse     = "MeetingResponse"
	MessageMeetingCancellation = "MeetingCancellation"
)

// MeetingMessage is one message row in a recipient's mailbox. The row
// doubles as the inbox (or sent-items) copy; Delivered flips once its
// calendar side effects have been applied.
type MeetingMessage struct {
	bun.BaseModel `bun:"table:meeting_messages"`

	MessageID string `bun:"message_id,pk,notnull"`
	MailboxID string `bun:"mailbox_id,notnull"` // recipient
	FolderID  string `bun:"folder_id,notnull"`
	Kind      string `bun:"kind,notnull"`
	UID       string `bun:"uid,notnull"`

	// zero means the whole series; otherwise the pattern-computed start
	// of the targeted occurrence
	RecurrenceID  int64 `bun:"recurrence_id"`
	InstanceIndex int   `bun:"instance_index"`

	// why a request was generated: NewMeetingRequest, FullUpdate,
	// InformationalUpdate, PrincipalWantsCopy
	MeetingRequestType string `bun:"meeting_request_type"`

	// responses only
	ResponseType  string `bun:"response_type"`
	ProposedStart int64  `bun:"proposed_start"`
	ProposedEnd   int64  `bun:"proposed_end"`

	Sender   string `bun:"sender,notnull"`
	Subject  string `bun:"subject"`
	Location string `bun:"location"`

	StartDate int64 `bun:"start_date"`
	EndDate   int64 `bun:"end_date"`

	IntendedFreeBusyStatus string `bun:"intended_free_busy_status"`

	// requests carry the full attendee list as json so the attendee copy
	// can mirror it
	AttendeesJSON  string `bun:"attendees_json"`
	RecurrenceJSON string `bun:"recurrence_json"`

	Sequence  int   `bun:"sequence"`
	Delivered bool  `bun:"delivered"`
	CreatedAt int64 `bun:"created_at,notnull"`
}

func (m *MeetingMessage) Insert(ctx context.Context, db bun.IDB) error {
	switch {
	case m.MessageID == "":
		return fmt.Errorf("MeetingMessage.Insert: message id is required")
	case m.MailboxID == "":
		return fmt.Errorf("MeetingMessage.Insert: mailbox id is required")
	case m.FolderID == "":
		return fmt.Errorf("MeetingMessage.Insert: folder id is required")
	case m.UID == "":
		return fmt.Errorf("MeetingMessage.Insert: uid is required")
	case m.Sender == "":
		return fmt.Errorf("MeetingMessage.Insert: sender is required")
	case m.CreatedAt == 0:
		return fmt.Errorf("MeetingMessage.Insert: created at is required")
	}
	switch m.Kind {
	case MessageMeetingRequest, MessageMeetingResponse, MessageMeetingCancellation:
	default:
		return fmt.Errorf("MeetingMessage.Insert: unknown kind | kind=%s", m.Kind)
	}

	if _, err := db.NewInsert().
		Model(m).
		Exec(ctx); err != nil {
		return fmt.Errorf("MeetingMessage.Insert: %w", err)
	}
	return nil
}

// AlreadyDelivered reports whether a delivered message with the same
// logical identity (mailbox, uid, recurrence id, kind, sequence) already
// exists under a different message id. Redelivery checks this before
// applying calendar side effects.
func (m *MeetingMessage) AlreadyDelivered(ctx context.Context, db bun.IDB) (bool, error) {
	exist, err := db.NewSelect().
		Model((*MeetingMessage)(nil)).
		Where("mailbox_id = ?", m.MailboxID).
		Where("uid = ?", m.UID).
		Where("recurrence_id = ?", m.RecurrenceID).
		Where("kind = ?", m.Kind).
		Where("sequence = ?", m.Sequence).
		Where("delivered = ?", true).
		Where("message_id != ?", m.MessageID).
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("MeetingMessage.AlreadyDelivered: %w", err)
	}
	return exist, nil
}

// MessageAttendee is the wire shape of one attendee inside AttendeesJSON.
type MessageAttendee struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

func (m *MeetingMessage) SetAttendees(attendees []MessageAttendee) error {
	raw, err := json.Marshal(attendees)
	if err != nil {
		return fmt.Errorf("MeetingMessage.SetAttendees: %w", err)
	}
	m.AttendeesJSON = string(raw)
	return nil
}

func (m *MeetingMessage) GetAttendees() ([]MessageAttendee, error) {
	if m.AttendeesJSON == "" {
		return nil, nil
	}
	var attendees []MessageAttendee
	if err := json.Unmarshal([]byte(m.AttendeesJSON), &attendees); err != nil {
		return nil, fmt.Errorf("MeetingMessage.GetAttendees: %w", err)
	}
	return attendees, nil
}
