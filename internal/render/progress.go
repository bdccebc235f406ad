package render

import (
	"fmt"
	"math"
	"time"
)

// Progress is a snapshot of one render session.
type Progress struct {
	SessionID      string     `json:"session_id"`
	TotalPages     int        `json:"total_pages"`
	CompletedPages []int      `json:"completed_pages"`
	CompletedCount int        `json:"completed_count"`
	Ratio          float64    `json:"ratio"`
	Percent        int        `json:"percent"`
	Status         string     `json:"status"`
	StartedAt      time.Time  `json:"started_at"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
	TimedOut       bool       `json:"timed_out"`
}

// Outcome is delivered once per session when it resolves.
type Outcome struct {
	SessionID      string        `json:"session_id"`
	Degraded       bool          `json:"degraded"`
	CompletedCount int           `json:"completed_count"`
	TotalPages     int           `json:"total_pages"`
	Elapsed        time.Duration `json:"elapsed"`
}

func ratio(completed, total int) float64 {
	if total <= 0 {
		return 1
	}
	return float64(completed) / float64(total)
}

// StatusText derives the human-readable loading message from the counts.
func StatusText(completed, total int, timedOut bool) string {
	switch {
	case completed >= total:
		return fmt.Sprintf("All %d pages ready", total)
	case timedOut:
		return fmt.Sprintf("Loaded %d/%d pages. Others will load as needed.", completed, total)
	case completed == 0:
		return fmt.Sprintf("Rendering %d pages...", total)
	default:
		percent := int(math.Round(ratio(completed, total) * 100))
		return fmt.Sprintf("Rendering pages... %d/%d (%d%%)", completed, total, percent)
	}
}
