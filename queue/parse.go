package queue

import (
	"fmt"
	"time"
)

// wire formats accepted for lastAdjustmentDate
var adjustmentDateFormats = []string{time.RFC3339, "2006-01-02"}

// FromStageData extracts analysis records from the analysis stage output.
// The collaborator contract requires a "contracts" list; an empty list is a
// valid answer meaning no contract needs reprocessing.
func FromStageData(data map[string]any) ([]AnalysisRecord, error) {
	raw, ok := data["contracts"]
	if !ok {
		return nil, fmt.Errorf("stage output carries no contracts list")
	}

	entries, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("stage output contracts field is %T, expected a list", raw)
	}

	records := make([]AnalysisRecord, 0, len(entries))
	for i, entry := range entries {
		fields, ok := entry.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("contract entry %d is %T, expected an object", i, entry)
		}

		contractID, _ := fields["contractId"].(string)
		if contractID == "" {
			return nil, fmt.Errorf("contract entry %d is missing contractId", i)
		}

		rec := AnalysisRecord{ContractID: contractID}

		if rawDate, ok := fields["lastAdjustmentDate"].(string); ok && rawDate != "" {
			parsed, err := parseAdjustmentDate(rawDate)
			if err != nil {
				return nil, fmt.Errorf("contract entry %d (%s): %w", i, contractID, err)
			}
			rec.LastAdjustment = parsed
		}

		if rawFlags, ok := fields["pendingFlags"].([]any); ok {
			for _, rawFlag := range rawFlags {
				flag, ok := rawFlag.(string)
				if !ok {
					return nil, fmt.Errorf("contract entry %d (%s): pending flag is %T, expected a string", i, contractID, rawFlag)
				}
				rec.PendingIssues = append(rec.PendingIssues, flag)
			}
		}

		if descriptive, ok := fields["descriptive"].(map[string]any); ok {
			rec.Descriptive = descriptive
		}

		records = append(records, rec)
	}

	return records, nil
}

func parseAdjustmentDate(raw string) (time.Time, error) {
	for _, format := range adjustmentDateFormats {
		if parsed, err := time.Parse(format, raw); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable lastAdjustmentDate %q", raw)
}
