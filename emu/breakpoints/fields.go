package breakpoints

import (
	"errors"
	"fmt"
)

// ErrUnknownField is returned when a field name doesn't name an editable
// field of the record kind.
var ErrUnknownField = errors.New("unknown field")

// Field names accepted by ParseBreakpointEdit and ParseMemCheckEdit.
const (
	FieldEnabled    = "enabled"
	FieldBreak      = "break"
	FieldLog        = "log"
	FieldRead       = "read"
	FieldWrite      = "write"
	FieldAddress    = "address"
	FieldEndAddress = "end"
	FieldCondition  = "condition"
)

// ParseBreakpointEdit returns the breakpoint edit for the named field. value
// is only used by address and condition edits.
func ParseBreakpointEdit(field, value string) (BreakpointEdit, error) {
	switch field {
	case FieldEnabled:
		return ToggleEnabled{}, nil
	case FieldBreak:
		return ToggleBreakOnHit{}, nil
	case FieldLog:
		return ToggleLogOnHit{}, nil
	case FieldAddress:
		return SetAddress{Text: value}, nil
	case FieldCondition:
		return SetCondition{Text: value}, nil
	}
	return nil, fmt.Errorf("%w: breakpoints have no %q field", ErrUnknownField, field)
}

// ParseMemCheckEdit returns the memcheck edit for the named field.
func ParseMemCheckEdit(field, value string) (MemCheckEdit, error) {
	switch field {
	case FieldEnabled:
		return ToggleEnabled{}, nil
	case FieldBreak:
		return ToggleBreakOnHit{}, nil
	case FieldLog:
		return ToggleLogOnHit{}, nil
	case FieldRead:
		return ToggleOnRead{}, nil
	case FieldWrite:
		return ToggleOnWrite{}, nil
	case FieldAddress:
		return SetAddress{Text: value}, nil
	case FieldEndAddress:
		return SetEndAddress{Text: value}, nil
	case FieldCondition:
		return SetCondition{Text: value}, nil
	}
	return nil, fmt.Errorf("%w: memchecks have no %q field", ErrUnknownField, field)
}
