// Package store provides SQLite-based sample and cluster storage for trustd.
package store

import (
	"time"

	"trustd/internal/detect"
	"trustd/internal/features"
)

// SampleRecord is one captured text sample as persisted.
type SampleRecord struct {
	ID              string
	Domain          string
	DeviceID        string
	Text            string
	CalibratedScore *float64
	Counts          features.Counts
	Signature       *detect.Signature
	CreatedAt       time.Time
}

// ToSample converts a stored record into the detector's input shape.
func (r *SampleRecord) ToSample() *detect.Sample {
	counts := r.Counts
	return &detect.Sample{
		ID:              r.ID,
		Domain:          r.Domain,
		DeviceID:        r.DeviceID,
		Text:            r.Text,
		CalibratedScore: r.CalibratedScore,
		Counts:          &counts,
	}
}
