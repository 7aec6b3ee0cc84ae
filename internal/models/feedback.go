package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// SourceKind identifies the feedback channel an item came from.
type SourceKind string

const (
	SourceSurvey  SourceKind = "survey"
	SourceReview  SourceKind = "review"
	SourceSupport SourceKind = "support"
)

// AllSources returns the full enumerated source set in canonical order.
func AllSources() []SourceKind {
	return []SourceKind{SourceSurvey, SourceReview, SourceSupport}
}

func (s SourceKind) Valid() bool {
	switch s {
	case SourceSurvey, SourceReview, SourceSupport:
		return true
	}
	return false
}

// SourceMetadata is the per-channel metadata variant. Each source kind has
// exactly one concrete type carrying exactly its required fields, so invalid
// field combinations cannot be constructed.
type SourceMetadata interface {
	Kind() SourceKind
}

type SurveyMetadata struct {
	Rating  int    `json:"rating"`
	Segment string `json:"segment"`
}

func (SurveyMetadata) Kind() SourceKind { return SourceSurvey }

type ReviewMetadata struct {
	Rating     int    `json:"rating"`
	AppVersion string `json:"app_version"`
	Store      string `json:"store"`
}

func (ReviewMetadata) Kind() SourceKind { return SourceReview }

type SupportMetadata struct {
	TicketID  string `json:"ticket_id"`
	Channel   string `json:"channel"`
	Escalated bool   `json:"escalated"`
}

func (SupportMetadata) Kind() SourceKind { return SourceSupport }

// FeedbackItem is a single free-text feedback record. Immutable once stored.
type FeedbackItem struct {
	ID        string         `json:"id"`
	Source    SourceKind     `json:"source"`
	Text      string         `json:"text"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  SourceMetadata `json:"metadata,omitempty"`
}

// Validate checks structural invariants: known source kind, non-empty id and
// text, and a metadata variant that matches the source tag when present.
func (f FeedbackItem) Validate() error {
	if f.ID == "" {
		return fmt.Errorf("feedback item: missing id")
	}
	if !f.Source.Valid() {
		return fmt.Errorf("feedback item %s: unknown source %q", f.ID, f.Source)
	}
	if f.Text == "" {
		return fmt.Errorf("feedback item %s: empty text", f.ID)
	}
	if f.Metadata != nil && f.Metadata.Kind() != f.Source {
		return fmt.Errorf("feedback item %s: %s metadata on %s item", f.ID, f.Metadata.Kind(), f.Source)
	}
	return nil
}

// UnmarshalJSON decodes the metadata variant keyed by the source tag.
func (f *FeedbackItem) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID        string          `json:"id"`
		Source    SourceKind      `json:"source"`
		Text      string          `json:"text"`
		Timestamp time.Time       `json:"timestamp"`
		Metadata  json.RawMessage `json:"metadata"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	f.ID = raw.ID
	f.Source = raw.Source
	f.Text = raw.Text
	f.Timestamp = raw.Timestamp
	f.Metadata = nil

	if len(raw.Metadata) == 0 || string(raw.Metadata) == "null" {
		return nil
	}

	switch raw.Source {
	case SourceSurvey:
		var m SurveyMetadata
		if err := json.Unmarshal(raw.Metadata, &m); err != nil {
			return fmt.Errorf("feedback item %s: survey metadata: %w", raw.ID, err)
		}
		f.Metadata = m
	case SourceReview:
		var m ReviewMetadata
		if err := json.Unmarshal(raw.Metadata, &m); err != nil {
			return fmt.Errorf("feedback item %s: review metadata: %w", raw.ID, err)
		}
		f.Metadata = m
	case SourceSupport:
		var m SupportMetadata
		if err := json.Unmarshal(raw.Metadata, &m); err != nil {
			return fmt.Errorf("feedback item %s: support metadata: %w", raw.ID, err)
		}
		f.Metadata = m
	default:
		return fmt.Errorf("feedback item %s: unknown source %q", raw.ID, raw.Source)
	}
	return nil
}

// TimeWindow is the bounded date range feedback is selected over.
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (w TimeWindow) Validate() error {
	if w.Start.IsZero() || w.End.IsZero() {
		return fmt.Errorf("time window: zero bound")
	}
	if !w.End.After(w.Start) {
		return fmt.Errorf("time window: end %s not after start %s", w.End.Format(time.RFC3339), w.Start.Format(time.RFC3339))
	}
	return nil
}

func (w TimeWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}
