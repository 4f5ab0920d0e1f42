package analytics

import (
	"encoding/json"
	"fmt"
	"time"
)

// Record is the engagement summary of the page currently open in a session.
// DwellTime and DwellMinusHidden stay zero until the record is finalized.
type Record struct {
	PageID            string    `json:"page_id"`
	HiddenTime        float64   `json:"hiddenTime"`
	VisibilityChanges int       `json:"visibilityChanges"`
	DwellTime         float64   `json:"dwellTime"`
	DwellMinusHidden  float64   `json:"dwellMinusHidden"`
	StartTimestamp    time.Time `json:"startTimestamp"`
}

// NewRecord returns a zeroed record for pageID starting at start.
func NewRecord(pageID string, start time.Time) Record {
	return Record{
		PageID:         pageID,
		StartTimestamp: start,
	}
}

// Finalize derives the dwell fields as of now.
func (r Record) Finalize(now time.Time) Record {
	r.DwellTime = now.Sub(r.StartTimestamp).Seconds()
	r.DwellMinusHidden = r.DwellTime - r.HiddenTime
	return r
}

func decodeRecord(data []byte) (Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return Record{}, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	if r.StartTimestamp.IsZero() {
		return Record{}, fmt.Errorf("record has no start timestamp")
	}
	return r, nil
}
