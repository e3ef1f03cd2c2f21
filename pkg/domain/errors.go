package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrStorageCorrupt is returned when a persisted table exists but cannot be
	// parsed under the expected schema.
	ErrStorageCorrupt = errors.New("record table is corrupt")
	// ErrNoChanges is returned when an update carries no field changes.
	ErrNoChanges = errors.New("no field changes supplied")
)

// ErrNotFound is returned when an update or delete targets an id that does
// not exist in the table.
type ErrNotFound struct {
	ID int64
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("record %d not found", e.ID)
}

// ErrUnknownField is returned when a change names a column outside the schema.
type ErrUnknownField struct {
	Field string
}

func (e ErrUnknownField) Error() string {
	return fmt.Sprintf("unknown field %q", e.Field)
}

// ErrImmutableField is returned when a change targets a column that can not be
// modified after creation.
type ErrImmutableField struct {
	Field string
}

func (e ErrImmutableField) Error() string {
	return fmt.Sprintf("field %q cannot be changed", e.Field)
}

// IsNotFound reports whether err is, or wraps, an ErrNotFound.
func IsNotFound(err error) bool {
	var nf ErrNotFound
	return errors.As(err, &nf)
}
