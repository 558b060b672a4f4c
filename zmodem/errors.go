package zmodem

import (
	"errors"
	"fmt"
)

// Error is a ZMODEM protocol failure.
type Error struct {
	Type      ErrorType
	Message   string
	FrameType int // -1 when no frame is involved
}

// ErrorType categorizes ZMODEM errors
type ErrorType int

const (
	ErrProtocol ErrorType = iota
	ErrCRC
	ErrTimeout
	ErrIO
	ErrCancelled
	ErrInvalidFrame
	ErrFileSkipped
)

func (e *Error) Error() string {
	if e.FrameType >= 0 {
		return fmt.Sprintf("zmodem %s: %s (frame: %s)", e.Type, e.Message, FrameTypeName(e.FrameType))
	}
	return fmt.Sprintf("zmodem %s: %s", e.Type, e.Message)
}

func (t ErrorType) String() string {
	switch t {
	case ErrProtocol:
		return "protocol error"
	case ErrCRC:
		return "CRC error"
	case ErrTimeout:
		return "timeout"
	case ErrIO:
		return "I/O error"
	case ErrCancelled:
		return "cancelled"
	case ErrInvalidFrame:
		return "invalid frame"
	case ErrFileSkipped:
		return "file skipped"
	default:
		return "unknown error"
	}
}

// NewError creates an error not tied to a frame.
func NewError(errType ErrorType, message string) *Error {
	return &Error{
		Type:      errType,
		Message:   message,
		FrameType: -1,
	}
}

// NewFrameError creates an error carrying the frame type that caused it.
func NewFrameError(errType ErrorType, message string, frameType int) *Error {
	return &Error{
		Type:      errType,
		Message:   message,
		FrameType: frameType,
	}
}

func hasType(err error, t ErrorType) bool {
	var e *Error
	return errors.As(err, &e) && e.Type == t
}

// IsTimeout reports whether err is a ZMODEM timeout.
func IsTimeout(err error) bool { return hasType(err, ErrTimeout) }

// IsCRC reports whether err is a CRC mismatch.
func IsCRC(err error) bool { return hasType(err, ErrCRC) }

// IsCancelled reports whether the transfer was cancelled by either side.
func IsCancelled(err error) bool { return hasType(err, ErrCancelled) }
