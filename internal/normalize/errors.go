package normalize

import (
	"fmt"
	"strings"
)

// Drop errors. Each one maps to a single validation stage; all are handled
// inside the ingestion pipeline and never reach its caller.

type MissingFieldError struct {
	Fields []string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing required fields: %s", strings.Join(e.Fields, ", "))
}

type InvalidCustomerIDError struct {
	Value string
}

func (e *InvalidCustomerIDError) Error() string {
	return fmt.Sprintf("invalid customer_id %q: expected format C###", e.Value)
}

type DuplicateEventError struct {
	EventID string
}

func (e *DuplicateEventError) Error() string {
	return fmt.Sprintf("duplicate event: %s", e.EventID)
}

type InvalidTimestampError struct {
	Value string
}

func (e *InvalidTimestampError) Error() string {
	return fmt.Sprintf("invalid event_time %q", e.Value)
}

type InvalidAmountError struct {
	Value    string
	Negative bool
}

func (e *InvalidAmountError) Error() string {
	if e.Negative {
		return fmt.Sprintf("negative amount: %s", e.Value)
	}
	return fmt.Sprintf("invalid amount %q", e.Value)
}

// DropReason labels a drop error for metrics and the drops store.
func DropReason(err error) string {
	switch err.(type) {
	case *MissingFieldError:
		return "missing_fields"
	case *InvalidCustomerIDError:
		return "invalid_customer_id"
	case *DuplicateEventError:
		return "duplicate"
	case *InvalidTimestampError:
		return "invalid_timestamp"
	case *InvalidAmountError:
		return "invalid_amount"
	default:
		return "unknown"
	}
}
