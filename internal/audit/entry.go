package audit

import (
	"time"

	"github.com/google/uuid"

	"chemledger/pkg/domain"
)

// ActionCreate is the only action currently journaled.
const ActionCreate = "create"

// Entry is one line of the audit log. The record id is assigned before the
// entry is built, so it is always present.
type Entry struct {
	EventID       string    `json:"event_id"`
	Action        string    `json:"action"`
	RecordedAt    time.Time `json:"recorded_at"`
	ID            int64     `json:"id"`
	ChemicalName  string    `json:"chemical_name"`
	Concentration string    `json:"concentration"`
	Location      string    `json:"location"`
	Date          string    `json:"date"`
}

// NewEntry describes the creation of r at now().
func NewEntry(r domain.Record, now func() time.Time) Entry {
	if now == nil {
		now = time.Now
	}
	return Entry{
		EventID:       uuid.NewString(),
		Action:        ActionCreate,
		RecordedAt:    now().UTC(),
		ID:            r.ID,
		ChemicalName:  r.ChemicalName,
		Concentration: r.Concentration,
		Location:      r.Location,
		Date:          r.Date,
	}
}

// Record returns the record state captured by the entry.
func (e Entry) Record() domain.Record {
	return domain.Record{
		ID:            e.ID,
		ChemicalName:  e.ChemicalName,
		Concentration: e.Concentration,
		Location:      e.Location,
		Date:          e.Date,
	}
}
