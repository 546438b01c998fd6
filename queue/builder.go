package queue

import (
	"fmt"
	"sort"
	"time"
)

const (
	// maxAgePoints caps the contribution of contract age to the priority
	// score: one point per 30 days overdue, at most twelve.
	maxAgePoints = 12

	daysPerPoint = 30

	taxClearanceBonus = 5
	cleanFlagBonus    = 3
)

// Builder produces queue items from analysis records with a deterministic
// priority score.
type Builder struct {
	now func() time.Time
}

// BuilderOption is a function that configures a Builder.
type BuilderOption func(*Builder)

// WithClock overrides the time source used for age computation and item ids.
func WithClock(now func() time.Time) BuilderOption {
	return func(b *Builder) {
		b.now = now
	}
}

// NewBuilder creates a queue builder.
func NewBuilder(opts ...BuilderOption) *Builder {
	b := &Builder{now: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build converts analysis records into a new queue generation: scored,
// deduplicated by contract id (first occurrence wins), sorted by descending
// priority with ties broken by ascending contract id. All items share one
// generation timestamp so ids are stable for the batch. Records without a
// contract id are skipped.
func (b *Builder) Build(records []AnalysisRecord) []Item {
	generatedAt := b.now()

	seen := make(map[string]bool, len(records))
	items := make([]Item, 0, len(records))

	for _, rec := range records {
		if rec.ContractID == "" || seen[rec.ContractID] {
			continue
		}
		seen[rec.ContractID] = true

		items = append(items, Item{
			ID:          fmt.Sprintf("%s-%d", rec.ContractID, generatedAt.Unix()),
			ContractID:  rec.ContractID,
			Priority:    b.score(rec, generatedAt),
			Status:      StatusPending,
			GeneratedAt: generatedAt,
			Source:      rec,
		})
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].Priority != items[j].Priority {
			return items[i].Priority > items[j].Priority
		}
		return items[i].ContractID < items[j].ContractID
	})

	return items
}

// score computes the priority for one contract. Age contributes one point
// per 30 days since the last adjustment, capped at 12; a missing last
// adjustment date counts as zero days. Contracts with no outstanding
// tax-clearance issue earn 5 points, and each of the two remaining clean
// flags earns 3.
func (b *Builder) score(rec AnalysisRecord, asOf time.Time) int {
	days := 0
	if !rec.LastAdjustment.IsZero() {
		days = int(asOf.Sub(rec.LastAdjustment).Hours() / 24)
		if days < 0 {
			days = 0
		}
	}

	score := min(days/daysPerPoint, maxAgePoints)

	if !rec.HasIssue(IssueTaxClearance) {
		score += taxClearanceBonus
	}
	if !rec.HasIssue(IssueRegistryHold) {
		score += cleanFlagBonus
	}
	if !rec.HasIssue(IssueDelinquency) {
		score += cleanFlagBonus
	}

	return score
}
