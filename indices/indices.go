// Package indices models the economic index values collected by the first
// pipeline stage. Snapshots form an append-only series and are read-only
// input to the erp correction stage.
package indices

import (
	"encoding/json"
	"fmt"
	"time"
)

// Snapshot is one collected index value. Never mutated after creation.
type Snapshot struct {
	Type        string    `json:"type"`
	Value       float64   `json:"value"`
	Source      string    `json:"source"`
	CollectedAt time.Time `json:"collected_at"`
}

// FromStageData extracts snapshots from the indices stage output. The
// collaborator contract requires an "indices" list where every entry carries
// a type tag, a numeric value and a source label.
func FromStageData(data map[string]any, collectedAt time.Time) ([]Snapshot, error) {
	raw, ok := data["indices"]
	if !ok {
		return nil, fmt.Errorf("stage output carries no indices list")
	}

	entries, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("stage output indices field is %T, expected a list", raw)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("stage output indices list is empty")
	}

	snaps := make([]Snapshot, 0, len(entries))
	for i, entry := range entries {
		fields, ok := entry.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("index entry %d is %T, expected an object", i, entry)
		}

		typeTag, _ := fields["type"].(string)
		if typeTag == "" {
			return nil, fmt.Errorf("index entry %d is missing a type tag", i)
		}

		value, err := numericValue(fields["value"])
		if err != nil {
			return nil, fmt.Errorf("index entry %d (%s): %w", i, typeTag, err)
		}

		source, _ := fields["source"].(string)

		snaps = append(snaps, Snapshot{
			Type:        typeTag,
			Value:       value,
			Source:      source,
			CollectedAt: collectedAt,
		})
	}

	return snaps, nil
}

// numericValue normalizes the value field across the representations a JSON
// decoder or an in-process collaborator may hand over.
func numericValue(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	case nil:
		return 0, fmt.Errorf("missing numeric value")
	default:
		return 0, fmt.Errorf("value is %T, expected a number", v)
	}
}
