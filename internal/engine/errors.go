package engine

import (
	"errors"
	"fmt"
)

// ErrGeneratorConsumed is yielded when a Generator is ranged over a second
// time. The update sequence is not restartable.
var ErrGeneratorConsumed = errors.New("generator already consumed")

// OrderErrorCode categorizes events the generator refuses to translate.
type OrderErrorCode string

const (
	// ErrCodeOutOfOrder indicates an event for a task other than the active one.
	ErrCodeOutOfOrder OrderErrorCode = "OUT_OF_ORDER"

	// ErrCodeUnknownStage indicates an event stage the generator does not know.
	ErrCodeUnknownStage OrderErrorCode = "UNKNOWN_STAGE"

	// ErrCodeIncomplete indicates the event source ended with unfinished tasks.
	ErrCodeIncomplete OrderErrorCode = "INCOMPLETE"
)

// OrderError reports an agent event stream that does not follow the
// sequential task protocol: events for task i must end in a terminal stage
// before any event for task i+1 arrives.
type OrderError struct {
	Code      OrderErrorCode
	TaskIndex int // Index carried by the offending event, -1 if none
	Expected  int // Index the generator was waiting for
	Message   string
}

func (e *OrderError) Error() string {
	if e.TaskIndex < 0 {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s (task=%d, expected=%d)", e.Code, e.Message, e.TaskIndex, e.Expected)
}

// IsOrderError returns true if err is or wraps an *OrderError.
func IsOrderError(err error) bool {
	var oe *OrderError
	return errors.As(err, &oe)
}
