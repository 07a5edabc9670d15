package scheduling

import "fmt"

// OperationKind is the mutation class a distribution decision is made for.
type OperationKind string

const (
	OpCreate OperationKind = "Create"
	OpUpdate OperationKind = "Update"
	OpDelete OperationKind = "Delete"
)

// Mode is the client-chosen distribution policy value.
type Mode string

const (
	SendToNone            Mode = "SendToNone"
	SendOnlyToAll         Mode = "SendOnlyToAll"
	SendToAllAndSaveCopy  Mode = "SendToAllAndSaveCopy"
	SendOnlyToChanged     Mode = "SendOnlyToChanged"
	SendToChangedAndSave  Mode = "SendToChangedAndSaveCopy"
)

// Decision is what a (operation, mode) pair resolves to. OnlyChanged
// scopes delivery to attendees whose list membership changed; it is never
// true for create or delete.
type Decision struct {
	DeliverToAttendees        bool
	CreateInAttendeeCalendars bool
	SaveSenderCopy            bool
	OnlyChanged               bool
}

// Decide resolves the distribution truth table. The organizer's own
// calendar copy is always written regardless of the decision; this only
// governs attendee delivery and sender-side message retention.
func Decide(op OperationKind, mode Mode) (Decision, error) {
	switch op {
	case OpCreate, OpDelete:
		switch mode {
		case SendToNone:
			return Decision{}, nil
		case SendOnlyToAll:
			return Decision{
				DeliverToAttendees:        true,
				CreateInAttendeeCalendars: op == OpCreate,
			}, nil
		case SendToAllAndSaveCopy:
			return Decision{
				DeliverToAttendees:        true,
				CreateInAttendeeCalendars: op == OpCreate,
				SaveSenderCopy:            true,
			}, nil
		}
	case OpUpdate:
		switch mode {
		case SendToNone:
			return Decision{}, nil
		case SendOnlyToAll:
			return Decision{DeliverToAttendees: true}, nil
		case SendOnlyToChanged:
			return Decision{DeliverToAttendees: true, OnlyChanged: true}, nil
		case SendToAllAndSaveCopy:
			return Decision{DeliverToAttendees: true, SaveSenderCopy: true}, nil
		case SendToChangedAndSave:
			return Decision{DeliverToAttendees: true, OnlyChanged: true, SaveSenderCopy: true}, nil
		}
	}
	return Decision{}, fmt.Errorf("scheduling.Decide: invalid mode for operation | op=%s mode=%s", op, mode)
}
