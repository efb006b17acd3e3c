package pricing

import "time"

// Window is a closed time range; a zero bound is open-ended.
type Window struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// LastDays returns the window covering the days before now
func LastDays(days int, now time.Time) Window {
	if days < 1 {
		days = 1
	}
	return Window{From: now.AddDate(0, 0, -days), To: now}
}

// Contains reports whether t falls inside the window
func (w Window) Contains(t time.Time) bool {
	if !w.From.IsZero() && t.Before(w.From) {
		return false
	}
	if !w.To.IsZero() && t.After(w.To) {
		return false
	}
	return true
}
