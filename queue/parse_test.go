package queue

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromStageData_ParsesContracts(t *testing.T) {
	data := map[string]any{
		"contracts": []any{
			map[string]any{
				"contractId":         "CT-100",
				"lastAdjustmentDate": "2024-01-15T00:00:00Z",
				"pendingFlags":       []any{IssueTaxClearance, IssueRegistryHold},
				"descriptive": map[string]any{
					"holder": "ACME SA",
					"value":  1500.0,
				},
			},
			map[string]any{
				"contractId":         "CT-200",
				"lastAdjustmentDate": "2023-11-30",
			},
		},
	}

	records, err := FromStageData(data)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "CT-100", records[0].ContractID)
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), records[0].LastAdjustment)
	assert.Equal(t, []string{IssueTaxClearance, IssueRegistryHold}, records[0].PendingIssues)
	assert.Equal(t, "ACME SA", records[0].Descriptive["holder"])

	assert.Equal(t, "CT-200", records[1].ContractID)
	assert.Equal(t, time.Date(2023, 11, 30, 0, 0, 0, 0, time.UTC), records[1].LastAdjustment)
	assert.Empty(t, records[1].PendingIssues)
}

func TestFromStageData_AcceptsJSONDecodedPayload(t *testing.T) {
	payload := `{"contracts": [{"contractId": "CT-77", "pendingFlags": ["delinquency"]}]}`

	var data map[string]any
	require.NoError(t, json.Unmarshal([]byte(payload), &data))

	records, err := FromStageData(data)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "CT-77", records[0].ContractID)
	assert.True(t, records[0].HasIssue(IssueDelinquency))
	assert.True(t, records[0].LastAdjustment.IsZero())
}

func TestFromStageData_EmptyListIsValid(t *testing.T) {
	records, err := FromStageData(map[string]any{"contracts": []any{}})
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestFromStageData_Errors(t *testing.T) {
	cases := []struct {
		name string
		data map[string]any
	}{
		{"missing contracts key", map[string]any{"indices": []any{}}},
		{"contracts not a list", map[string]any{"contracts": "CT-1"}},
		{"entry not an object", map[string]any{"contracts": []any{"CT-1"}}},
		{"missing contract id", map[string]any{"contracts": []any{map[string]any{"lastAdjustmentDate": "2024-01-01"}}}},
		{"unparseable date", map[string]any{"contracts": []any{map[string]any{"contractId": "CT-1", "lastAdjustmentDate": "last tuesday"}}}},
		{"flag not a string", map[string]any{"contracts": []any{map[string]any{"contractId": "CT-1", "pendingFlags": []any{42}}}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := FromStageData(tc.data)
			assert.Error(t, err)
		})
	}
}
