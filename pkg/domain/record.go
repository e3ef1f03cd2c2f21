// Package domain defines the chemical inventory record, the value types used
// to create and mutate it, and the domain errors surfaced by the record service.
package domain

import (
	"fmt"
	"sort"
)

// Column names of the fixed record schema, in schema order.
const (
	ColumnID            = "id"
	ColumnChemicalName  = "chemical_name"
	ColumnConcentration = "concentration"
	ColumnLocation      = "location"
	ColumnDate          = "date"
)

// Columns lists the record schema in its canonical order.
var Columns = []string{ColumnID, ColumnChemicalName, ColumnConcentration, ColumnLocation, ColumnDate}

// Record is a single row of the chemical inventory table.
// Date is caller supplied text and is never parsed as a calendar date.
type Record struct {
	ID            int64  `json:"id"`
	ChemicalName  string `json:"chemical_name"`
	Concentration string `json:"concentration"`
	Location      string `json:"location"`
	Date          string `json:"date"`
}

// Fields holds the caller supplied attributes of a record about to be created.
type Fields struct {
	ChemicalName  string `json:"chemical_name" yaml:"chemical_name"`
	Concentration string `json:"concentration" yaml:"concentration"`
	Location      string `json:"location" yaml:"location"`
	Date          string `json:"date" yaml:"date"`
}

// NewRecord builds a record carrying id and the supplied fields.
func NewRecord(id int64, f Fields) Record {
	return Record{
		ID:            id,
		ChemicalName:  f.ChemicalName,
		Concentration: f.Concentration,
		Location:      f.Location,
		Date:          f.Date,
	}
}

// Fields returns the mutable attributes of the record.
func (r Record) Fields() Fields {
	return Fields{
		ChemicalName:  r.ChemicalName,
		Concentration: r.Concentration,
		Location:      r.Location,
		Date:          r.Date,
	}
}

// Value returns the textual value of the named column.
func (r Record) Value(column string) (string, error) {
	switch column {
	case ColumnID:
		return fmt.Sprintf("%d", r.ID), nil
	case ColumnChemicalName:
		return r.ChemicalName, nil
	case ColumnConcentration:
		return r.Concentration, nil
	case ColumnLocation:
		return r.Location, nil
	case ColumnDate:
		return r.Date, nil
	default:
		return "", ErrUnknownField{Field: column}
	}
}

// Changes maps column names to replacement values for an update.
type Changes map[string]string

// Validate reports the first change that cannot be applied. Fields are
// checked in sorted order so the reported error is stable.
func (c Changes) Validate() error {
	if len(c) == 0 {
		return ErrNoChanges
	}
	for _, field := range c.fields() {
		switch field {
		case ColumnID:
			return ErrImmutableField{Field: field}
		case ColumnChemicalName, ColumnConcentration, ColumnLocation, ColumnDate:
		default:
			return ErrUnknownField{Field: field}
		}
	}
	return nil
}

// Apply returns a copy of r with every change applied. Nothing is applied
// when any change is invalid.
func (c Changes) Apply(r Record) (Record, error) {
	if err := c.Validate(); err != nil {
		return r, err
	}
	for field, value := range c {
		switch field {
		case ColumnChemicalName:
			r.ChemicalName = value
		case ColumnConcentration:
			r.Concentration = value
		case ColumnLocation:
			r.Location = value
		case ColumnDate:
			r.Date = value
		}
	}
	return r, nil
}

func (c Changes) fields() []string {
	out := make([]string, 0, len(c))
	for field := range c {
		out = append(out, field)
	}
	sort.Strings(out)
	return out
}
