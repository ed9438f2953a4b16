package certifications

import (
	"time"

	"github.com/flagit/flagit-backend/internal/stores"
	"github.com/flagit/flagit-backend/pkg/config"
)

// Action is what the state machine does with a store after evaluating it.
type Action string

const (
	ActionReport     Action = "report"
	ActionOpenWindow Action = "open_window"
	ActionComplete   Action = "complete"
)

// Snapshot is the store state read under its row lock.
type Snapshot struct {
	RequiredCount int
	WindowSeconds int
	Window        *stores.Window
	Now           time.Time
	NearbyCount   int
}

func (s Snapshot) thresholdMet() bool {
	required := s.RequiredCount
	if required < 1 {
		required = 1
	}
	return s.NearbyCount >= required
}

// Decision is the outcome of a strategy. Window is the store's window after the action applies.
type Decision struct {
	Action Action
	Window *stores.Window
}

// Strategy decides how nearby pending certifications become completed.
type Strategy interface {
	Name() string
	Decide(Snapshot) Decision
}

// WindowedGrace opens a grace window when the threshold is met and batch-completes once it has expired.
type WindowedGrace struct{}

func (WindowedGrace) Name() string { return config.StrategyWindowed }

func (WindowedGrace) Decide(s Snapshot) Decision {
	if s.Window != nil {
		if s.Window.Expired(s.Now) {
			return Decision{Action: ActionComplete}
		}
		return Decision{Action: ActionReport, Window: s.Window}
	}
	if s.thresholdMet() {
		return Decision{
			Action: ActionOpenWindow,
			Window: &stores.Window{
				StartedAt: s.Now,
				Duration:  time.Duration(s.WindowSeconds) * time.Second,
			},
		}
	}
	return Decision{Action: ActionReport}
}

// ImmediateThreshold completes as soon as the threshold is met, closing any open window.
type ImmediateThreshold struct{}

func (ImmediateThreshold) Name() string { return config.StrategyImmediate }

func (ImmediateThreshold) Decide(s Snapshot) Decision {
	if s.thresholdMet() {
		return Decision{Action: ActionComplete}
	}
	return Decision{Action: ActionReport, Window: s.Window}
}

// StrategyByName maps a configured strategy name to its implementation.
func StrategyByName(name string) Strategy {
	if name == config.StrategyImmediate {
		return ImmediateThreshold{}
	}
	return WindowedGrace{}
}
