package review

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// SchemaVersion is the current serialized queue layout.
const SchemaVersion = 1

type envelope struct {
	SchemaVersion int    `json:"schema_version"`
	Items         []Item `json:"items"`
}

// legacyItem is the unversioned per-item layout: a bare list with naive
// ISO timestamps, interpreted as UTC.
type legacyItem struct {
	ConceptID      string   `json:"concept_id"`
	EasinessFactor *float64 `json:"easiness_factor"`
	Repetitions    int      `json:"repetition_count"`
	IntervalDays   *float64 `json:"interval_days"`
	NextReview     string   `json:"next_review"`
	LastScore      float64  `json:"last_score"`
	Misconceptions int      `json:"misconception_count"`
}

// Marshal encodes q as a versioned blob. Items are ordered by concept id.
func Marshal(q *Queue) ([]byte, error) {
	return json.Marshal(envelope{SchemaVersion: SchemaVersion, Items: q.Items()})
}

// Unmarshal decodes a blob written by Marshal, or a legacy bare item list.
// Empty input yields an empty queue.
func Unmarshal(data []byte) (*Queue, error) {
	data = bytes.TrimSpace(data)
	q := NewQueue()
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return q, nil
	}
	if data[0] == '[' {
		return unmarshalLegacy(data)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptQueue, err)
	}
	if env.SchemaVersion != SchemaVersion {
		return nil, fmt.Errorf("%w: schema version %d", ErrCorruptQueue, env.SchemaVersion)
	}
	for _, it := range env.Items {
		if it.ConceptID == "" {
			return nil, fmt.Errorf("%w: item without concept id", ErrCorruptQueue)
		}
		cp := it
		cp.NextReview = cp.NextReview.UTC()
		q.items[it.ConceptID] = &cp
	}
	return q, nil
}

// unmarshalLegacy skips items it cannot parse, keeping the rest.
func unmarshalLegacy(data []byte) (*Queue, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptQueue, err)
	}
	q := NewQueue()
	for _, r := range raw {
		var li legacyItem
		if err := json.Unmarshal(r, &li); err != nil || li.ConceptID == "" {
			continue
		}
		next, err := parseNaive(li.NextReview)
		if err != nil {
			continue
		}
		it := &Item{
			ConceptID:      li.ConceptID,
			EasinessFactor: 2.5,
			Repetitions:    li.Repetitions,
			IntervalDays:   1.0,
			NextReview:     next,
			LastScore:      li.LastScore,
			Misconceptions: li.Misconceptions,
		}
		if li.EasinessFactor != nil {
			it.EasinessFactor = *li.EasinessFactor
		}
		if li.IntervalDays != nil {
			it.IntervalDays = *li.IntervalDays
		}
		q.items[it.ConceptID] = it
	}
	return q, nil
}

func parseNaive(s string) (time.Time, error) {
	s = strings.TrimSuffix(s, "Z")
	for _, layout := range []string{"2006-01-02T15:04:05.999999999", "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}
