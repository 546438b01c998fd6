package store

import (
	"time"

	"github.com/mcouto/reparcel/execution"
	"github.com/mcouto/reparcel/queue"
)

// Stats aggregates pipeline history for the dashboard and daily report.
type Stats struct {
	TotalExecutions int `json:"total_executions"`
	StartedToday    int `json:"started_today"`

	// SuccessRate is the percentage of fully completed executions among the
	// most recent RecentWindow records. Zero when no records exist.
	SuccessRate  float64 `json:"success_rate"`
	RecentWindow int     `json:"recent_window"`

	// ItemsThisMonth counts queue items finished successfully in the
	// current calendar month.
	ItemsThisMonth int `json:"items_this_month"`
}

// statsFrom computes stats from loaded data so the result is identical no
// matter which backend answered. Records must be sorted newest first. Day
// and month boundaries use the local calendar.
func statsFrom(records []execution.Record, items []queue.Item, now time.Time, recentWindow int) Stats {
	s := Stats{
		TotalExecutions: len(records),
		RecentWindow:    recentWindow,
	}

	year, month, day := now.Date()
	for _, rec := range records {
		ry, rm, rd := rec.StartedAt.In(now.Location()).Date()
		if ry == year && rm == month && rd == day {
			s.StartedToday++
		}
	}

	recent := records
	if recentWindow > 0 && len(recent) > recentWindow {
		recent = recent[:recentWindow]
	}
	if len(recent) > 0 {
		succeeded := 0
		for _, rec := range recent {
			if rec.State == execution.StateCompleted {
				succeeded++
			}
		}
		s.SuccessRate = 100 * float64(succeeded) / float64(len(recent))
	}

	for _, item := range items {
		if item.Status != queue.StatusDone || item.FinishedAt == nil {
			continue
		}
		fy, fm, _ := item.FinishedAt.In(now.Location()).Date()
		if fy == year && fm == month {
			s.ItemsThisMonth++
		}
	}

	return s
}
