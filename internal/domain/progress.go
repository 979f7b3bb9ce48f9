package domain

import "math"

// Progress describes how far a session has come.
type Progress struct {
	Current    int `json:"current"`
	Total      int `json:"total"`
	Percentage int `json:"percentage"`
}

// CalculateProgress returns the progress for answered out of total questions.
// An empty question set counts as fully done.
func CalculateProgress(total, answered int) Progress {
	if answered < 0 {
		answered = 0
	}
	if total <= 0 {
		return Progress{Current: answered, Total: 0, Percentage: 100}
	}
	pct := int(math.Round(100 * float64(answered) / float64(total)))
	if pct > 100 {
		pct = 100
	}
	return Progress{Current: answered, Total: total, Percentage: pct}
}
