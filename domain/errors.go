package domain

import (
	"errors"
	"fmt"
)

// ErrorCode represents a semantic classification shared across transport layers.
type ErrorCode string

const (
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"
	ErrCodeInvalid      ErrorCode = "INVALID"
	ErrCodeConflict     ErrorCode = "CONFLICT"
	ErrCodeGone         ErrorCode = "GONE"
	ErrCodeForbidden    ErrorCode = "FORBIDDEN"
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeInternal     ErrorCode = "INTERNAL"
)

// Reasons refine a code. They are stable strings clients may branch on.
const (
	ReasonUnavailable    = "unavailable"
	ReasonOccupied       = "occupied"
	ReasonFields         = "fields"
	ReasonStatusOccupied = "status_occupied"
	ReasonDeleted        = "deleted"
)

// Error represents a domain-level error.
type Error struct {
	Code    ErrorCode
	Reason  string
	Message string
	Details interface{}
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches errors by code and reason so sentinel comparisons survive
// details being attached to a copy.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code && e.Reason == t.Reason && e.Message == t.Message
}

// WithDetails returns a copy of the error carrying the provided details.
func (e *Error) WithDetails(details interface{}) *Error {
	if e == nil {
		return nil
	}
	cp := *e
	cp.Details = details
	return &cp
}

// NewError builds a domain error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// NewReasonError builds a domain error with a sub-classification.
func NewReasonError(code ErrorCode, reason, message string) *Error {
	return &Error{Code: code, Reason: reason, Message: message}
}

// WrapError wraps an existing error with a domain classification.
func WrapError(code ErrorCode, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain errors.
var (
	ErrUserNotFound    = NewError(ErrCodeNotFound, "user not found")
	ErrFloorNotFound   = NewError(ErrCodeNotFound, "floor not found")
	ErrRoomNotFound    = NewError(ErrCodeNotFound, "room not found")
	ErrNoActiveBooking = NewError(ErrCodeNotFound, "no active booking found for this room")
	ErrHistoryNotFound = NewError(ErrCodeNotFound, "history snapshot not found")
	ErrCacheMiss       = NewError(ErrCodeNotFound, "cache miss")
	ErrUnauthorized    = NewError(ErrCodeUnauthorized, "unauthorized")
	ErrInvalidPayload  = NewError(ErrCodeInvalid, "invalid payload")

	ErrRoomUnavailable     = NewReasonError(ErrCodeConflict, ReasonUnavailable, "room is no longer available, please refresh")
	ErrRoomOccupied        = NewReasonError(ErrCodeConflict, ReasonOccupied, "room is occupied, force update?")
	ErrFieldConflict       = NewReasonError(ErrCodeConflict, ReasonFields, "conflict detected")
	ErrOccupiedStatus      = NewReasonError(ErrCodeInvalid, ReasonStatusOccupied, "cannot change status of an occupied room")
	ErrBookedStatusWrite   = NewError(ErrCodeInvalid, "cannot set room status to BOOKED, rooms are booked through the booking system only")
	ErrRoomGone            = NewReasonError(ErrCodeGone, ReasonDeleted, "room has already been deleted in the latest version")
	ErrNotBookingOwner     = NewError(ErrCodeForbidden, "you can only free rooms you booked")
	ErrPrivilegedOnly      = NewError(ErrCodeForbidden, "operation requires unrestricted authority")
	ErrRestrictedField     = NewError(ErrCodeForbidden, "field requires unrestricted authority")
	ErrRestrictedOccupied  = NewReasonError(ErrCodeForbidden, ReasonOccupied, "room is occupied, you cannot edit it")
	ErrNoWriteAuthority    = NewError(ErrCodeForbidden, "only admins can update rooms")
	ErrLastSeenRequired    = NewError(ErrCodeInvalid, "last seen version is required for restricted updates")
	ErrInvalidCapacity     = NewError(ErrCodeInvalid, "capacity must be a positive number")
	ErrInvalidParticipants = NewError(ErrCodeInvalid, "participants must be a positive number")
	ErrEmptyUpdate         = NewError(ErrCodeInvalid, "please provide updates")
)

// IsDomainError helps checking error codes.
func IsDomainError(err error, code ErrorCode) bool {
	var dErr *Error
	if errors.As(err, &dErr) {
		return dErr.Code == code
	}
	return false
}

// AsError extracts the domain error from a chain, if any.
func AsError(err error) (*Error, bool) {
	var dErr *Error
	if errors.As(err, &dErr) {
		return dErr, true
	}
	return nil, false
}
