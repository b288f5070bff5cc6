package domain

import (
	"errors"
	"fmt"
	"strings"
)

type ErrorKind int

const (
	KindUnexpected ErrorKind = iota
	KindNotFound
	KindInvalidState
	KindConflict
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindInvalidState:
		return "invalid_state"
	case KindConflict:
		return "conflict"
	default:
		return "unexpected"
	}
}

// Error is the classified failure every layer below delivery returns.
// Message is safe to show to the caller unless Kind is KindUnexpected.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NotFound(format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func InvalidState(format string, args ...interface{}) *Error {
	return &Error{Kind: KindInvalidState, Message: fmt.Sprintf(format, args...)}
}

func Conflict(err error, format string, args ...interface{}) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...), Err: err}
}

func Unexpected(err error, format string, args ...interface{}) *Error {
	return &Error{Kind: KindUnexpected, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf reports the kind of the first *Error in err's chain.
// Unclassified errors are KindUnexpected.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	var se *InsufficientStockError
	if errors.As(err, &se) {
		return KindInvalidState
	}
	return KindUnexpected
}

func IsNotFound(err error) bool     { return KindOf(err) == KindNotFound }
func IsInvalidState(err error) bool { return KindOf(err) == KindInvalidState }
func IsConflict(err error) bool     { return KindOf(err) == KindConflict }

var (
	ErrEmptyCart = InvalidState("cannot place an order from an empty cart")
)

// Shortage describes one line that could not be reserved.
type Shortage struct {
	ProductID   int64  `json:"productId"`
	ProductName string `json:"productName"`
	Requested   int    `json:"requested"`
	Available   int    `json:"available"`
}

// InsufficientStockError lists every line of a reservation that exceeds available stock.
type InsufficientStockError struct {
	Shortages []Shortage
}

func (e *InsufficientStockError) Error() string {
	parts := make([]string, 0, len(e.Shortages))
	for _, s := range e.Shortages {
		name := s.ProductName
		if name == "" {
			name = fmt.Sprintf("product %d", s.ProductID)
		}
		parts = append(parts, fmt.Sprintf("%s (id %d): requested %d, available %d", name, s.ProductID, s.Requested, s.Available))
	}
	return "insufficient stock for " + strings.Join(parts, "; ")
}
