package stores

import (
	"time"

	"github.com/flagit/flagit-backend/pkg/db/models"
)

// Window is an open success window. A closed window is represented by a nil *Window.
type Window struct {
	StartedAt time.Time
	Duration  time.Duration
}

// WindowOf returns the store's open window, or nil when it is closed.
func WindowOf(store *models.Store) *Window {
	if store == nil || store.SuccessWindowStartedAt == nil {
		return nil
	}
	return &Window{
		StartedAt: *store.SuccessWindowStartedAt,
		Duration:  time.Duration(store.SuccessWindowSeconds) * time.Second,
	}
}

// Deadline is the instant the window stops accepting latecomers.
func (w Window) Deadline() time.Time {
	return w.StartedAt.Add(w.Duration)
}

// Expired reports whether now is strictly past the deadline.
func (w Window) Expired(now time.Time) bool {
	return now.After(w.Deadline())
}

// Remaining is the time left before the deadline, floored at zero.
func (w Window) Remaining(now time.Time) time.Duration {
	left := w.Deadline().Sub(now)
	if left < 0 {
		return 0
	}
	return left
}

// View renders the window for API responses.
func (w *Window) View(now time.Time) WindowView {
	if w == nil {
		return WindowView{Open: false}
	}
	endsAt := w.Deadline().UTC()
	remaining := w.Remaining(now).Seconds()
	return WindowView{
		Open:             true,
		EndsAt:           &endsAt,
		RemainingSeconds: &remaining,
	}
}

// WindowView is the JSON shape of a store's success window.
type WindowView struct {
	Open             bool       `json:"open"`
	EndsAt           *time.Time `json:"ends_at,omitempty"`
	RemainingSeconds *float64   `json:"remaining_seconds,omitempty"`
}
