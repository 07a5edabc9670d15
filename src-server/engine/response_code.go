package engine

import (
	"database/sql"
	"errors"
	"fmt"

	"groupcal/src-server/occurrence"
	"groupcal/src-server/recurrence"
)

// ResponseClass grades one per-item result of a batch operation.
type ResponseClass string

const (
	ClassSuccess ResponseClass = "Success"
	ClassWarning ResponseClass = "Warning"
	ClassError   ResponseClass = "Error"
)

// ResponseCode identifies why an item failed. Structural codes are checked
// before any mutation; a failing item is never partially applied and never
// distributes messages.
type ResponseCode string

const (
	CodeNoError ResponseCode = "NoError"

	CodeCalendarDurationIsTooLong             ResponseCode = "CalendarDurationIsTooLong"
	CodeCalendarEndDateIsEarlierThanStartDate ResponseCode = "CalendarEndDateIsEarlierThanStartDate"
	CodeCalendarInvalidDayForWeeklyRecurrence ResponseCode = "CalendarInvalidDayForWeeklyRecurrence"
	CodeCalendarCannotUseIdForRecurringMaster ResponseCode = "CalendarCannotUseIdForRecurringMasterId"
	CodeSendMeetingCancellationsRequired      ResponseCode = "SendMeetingCancellationsRequired"
	CodeMessageDispositionRequired            ResponseCode = "MessageDispositionRequired"
	CodeInvalidPropertySet                    ResponseCode = "InvalidPropertySet"
	CodeOccurrenceDeleted                     ResponseCode = "OccurrenceDeleted"

	CodeItemNotFound        ResponseCode = "ItemNotFound"
	CodeInternalServerError ResponseCode = "InternalServerError"
)

// OperationError carries a response code through the engine's internals.
type OperationError struct {
	Code    ResponseCode
	Message string
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func opError(code ResponseCode, format string, args ...any) *OperationError {
	return &OperationError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// codeForError maps leaf-package sentinels onto the response taxonomy.
func codeForError(err error) ResponseCode {
	var opErr *OperationError
	switch {
	case errors.As(err, &opErr):
		return opErr.Code
	case errors.Is(err, occurrence.ErrOccurrenceDeleted):
		return CodeOccurrenceDeleted
	case errors.Is(err, occurrence.ErrNotRecurringMaster):
		return CodeCalendarCannotUseIdForRecurringMaster
	case errors.Is(err, occurrence.ErrIndexOutOfRange):
		return CodeItemNotFound
	case errors.Is(err, recurrence.ErrInvalidWeeklyDay):
		return CodeCalendarInvalidDayForWeeklyRecurrence
	case errors.Is(err, sql.ErrNoRows):
		return CodeItemNotFound
	default:
		return CodeInternalServerError
	}
}

func errorResult(err error) ItemResult {
	return ItemResult{
		Class:       ClassError,
		Code:        codeForError(err),
		MessageText: err.Error(),
	}
}

func successResult(item *ItemView) ItemResult {
	return ItemResult{Class: ClassSuccess, Code: CodeNoError, Item: item}
}
