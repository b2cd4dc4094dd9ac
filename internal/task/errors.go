package task

import (
	"errors"
	"fmt"
)

// Error kinds. Use errors.Is against these to classify a failure.
var (
	ErrValidation       = errors.New("validation error")
	ErrCapacityExceeded = errors.New("capacity exceeded")
	ErrPriorityOrder    = errors.New("unable to apply priority order")
	ErrNotFound         = errors.New("not found")
	ErrInvalidArgument  = errors.New("invalid argument")
)

// Error carries a kind plus the message shown to clients.
// Max is the capacity in effect for capacity related kinds.
type Error struct {
	Kind error
	Msg  string
	Max  int
}

func (e *Error) Error() string { return e.Msg }

func (e *Error) Unwrap() error { return e.Kind }

func Validation(field, value string) error {
	return &Error{Kind: ErrValidation, Msg: fmt.Sprintf("%s: This value is not supported (%q)", field, value)}
}

func CapacityExceeded(max int) error {
	return &Error{
		Kind: ErrCapacityExceeded,
		Msg:  fmt.Sprintf("The task manager has already accepted the maximum number of tasks: %d", max),
		Max:  max,
	}
}

func PriorityOrder(max int) error {
	return &Error{
		Kind: ErrPriorityOrder,
		Msg: fmt.Sprintf("The task manager has already accepted the maximum number of tasks (%d) "+
			"and none of them has a lower priority than the current one.", max),
		Max: max,
	}
}

func NotFound(pid int64) error {
	return &Error{Kind: ErrNotFound, Msg: fmt.Sprintf("Process with id %d wasn't found", pid)}
}

func CapacityDecrease(next, current int) error {
	return &Error{
		Kind: ErrInvalidArgument,
		Msg:  fmt.Sprintf("The new capacity (%d) cannot be less than the current one (%d)", next, current),
		Max:  current,
	}
}

func NegativeCapacity(n int) error {
	return &Error{Kind: ErrInvalidArgument, Msg: fmt.Sprintf("The capacity cannot be negative (%d)", n)}
}
