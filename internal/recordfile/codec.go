// Package recordfile persists the record table as a single self-describing
// columnar document. The whole table is read and rewritten on every change.
package recordfile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"chemledger/pkg/domain"
)

// Format tags every table document written by this package.
const Format = "chemledger.table/v1"

// ContentType is used when the encoded table is replicated.
const ContentType = "application/json"

// Column describes one column of the persisted schema.
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Schema is the fixed table schema, in column order.
var Schema = []Column{
	{Name: domain.ColumnID, Type: "int64"},
	{Name: domain.ColumnChemicalName, Type: "string"},
	{Name: domain.ColumnConcentration, Type: "string"},
	{Name: domain.ColumnLocation, Type: "string"},
	{Name: domain.ColumnDate, Type: "string"},
}

// Snapshot is the full in-memory image of the table. Records keep insertion
// order. LastID is the highest id ever assigned, deleted rows included.
type Snapshot struct {
	Records []domain.Record
	LastID  int64
}

// NextID returns the id the next created record receives. Ids are never
// handed out twice, even after the current maximum is deleted.
func (s Snapshot) NextID() int64 {
	next := s.LastID
	for _, r := range s.Records {
		if r.ID > next {
			next = r.ID
		}
	}
	return next + 1
}

// Index returns the position of the record with id, or -1.
func (s Snapshot) Index(id int64) int {
	for i, r := range s.Records {
		if r.ID == id {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy of s.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{LastID: s.LastID}
	if s.Records != nil {
		out.Records = append([]domain.Record(nil), s.Records...)
	}
	return out
}

// columns fields are declared in schema order so the encoded document lists
// them the same way.
type columns struct {
	ID            []int64  `json:"id"`
	ChemicalName  []string `json:"chemical_name"`
	Concentration []string `json:"concentration"`
	Location      []string `json:"location"`
	Date          []string `json:"date"`
}

type document struct {
	Format  string   `json:"format"`
	Schema  []Column `json:"schema"`
	LastID  *int64   `json:"last_id,omitempty"`
	Rows    int      `json:"rows"`
	Columns columns  `json:"columns"`
}

// Encode renders s as an indented document terminated by a newline. The
// output is deterministic for a given snapshot.
func Encode(s Snapshot) ([]byte, error) {
	n := len(s.Records)
	cols := columns{
		ID:            make([]int64, 0, n),
		ChemicalName:  make([]string, 0, n),
		Concentration: make([]string, 0, n),
		Location:      make([]string, 0, n),
		Date:          make([]string, 0, n),
	}
	for _, r := range s.Records {
		cols.ID = append(cols.ID, r.ID)
		cols.ChemicalName = append(cols.ChemicalName, r.ChemicalName)
		cols.Concentration = append(cols.Concentration, r.Concentration)
		cols.Location = append(cols.Location, r.Location)
		cols.Date = append(cols.Date, r.Date)
	}
	lastID := s.NextID() - 1
	doc := document{Format: Format, Schema: Schema, LastID: &lastID, Rows: n, Columns: cols}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encode table: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode parses a document produced by Encode. Any structural problem is
// reported as domain.ErrStorageCorrupt. Documents without last_id derive it
// from the largest id present.
func Decode(b []byte) (Snapshot, error) {
	var doc document
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return Snapshot{}, corrupt("parse: %v", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Snapshot{}, corrupt("trailing data after table document")
	}
	if doc.Format != Format {
		return Snapshot{}, corrupt("format %q, want %q", doc.Format, Format)
	}
	if len(doc.Schema) != len(Schema) {
		return Snapshot{}, corrupt("schema has %d columns, want %d", len(doc.Schema), len(Schema))
	}
	for i, c := range doc.Schema {
		if c != Schema[i] {
			return Snapshot{}, corrupt("schema column %d is %s:%s, want %s:%s", i, c.Name, c.Type, Schema[i].Name, Schema[i].Type)
		}
	}
	if doc.Rows < 0 {
		return Snapshot{}, corrupt("negative row count %d", doc.Rows)
	}
	c := doc.Columns
	lengths := map[string]int{
		domain.ColumnID:            len(c.ID),
		domain.ColumnChemicalName:  len(c.ChemicalName),
		domain.ColumnConcentration: len(c.Concentration),
		domain.ColumnLocation:      len(c.Location),
		domain.ColumnDate:          len(c.Date),
	}
	for _, col := range domain.Columns {
		if lengths[col] != doc.Rows {
			return Snapshot{}, corrupt("column %s has %d values, want %d", col, lengths[col], doc.Rows)
		}
	}
	snap := Snapshot{Records: make([]domain.Record, 0, doc.Rows)}
	seen := make(map[int64]struct{}, doc.Rows)
	for i := 0; i < doc.Rows; i++ {
		id := c.ID[i]
		if id <= 0 {
			return Snapshot{}, corrupt("row %d has non-positive id %d", i, id)
		}
		if _, dup := seen[id]; dup {
			return Snapshot{}, corrupt("duplicate id %d", id)
		}
		seen[id] = struct{}{}
		snap.Records = append(snap.Records, domain.Record{
			ID:            id,
			ChemicalName:  c.ChemicalName[i],
			Concentration: c.Concentration[i],
			Location:      c.Location[i],
			Date:          c.Date[i],
		})
	}
	if doc.LastID != nil {
		if *doc.LastID < 0 {
			return Snapshot{}, corrupt("negative last_id %d", *doc.LastID)
		}
		snap.LastID = *doc.LastID
	}
	snap.LastID = snap.NextID() - 1
	return snap, nil
}

func corrupt(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrStorageCorrupt, fmt.Sprintf(format, args...))
}
