package domain

import (
	"time"

	"github.com/google/uuid"
)

// LiveState is the live-subscription state of a tracked symbol.
type LiveState int

const (
	LiveUnsubscribed   LiveState = iota // Tracked, history not yet requested
	LiveHistoryPending                  // History requested, waiting for the batch
	LiveActive                          // Subscribed to live ticks
	LiveDegraded                        // History received but no instrument to subscribe; terminal
)

// String returns the string representation of the LiveState.
func (s LiveState) String() string {
	switch s {
	case LiveUnsubscribed:
		return "UNSUBSCRIBED"
	case LiveHistoryPending:
		return "HISTORY_PENDING"
	case LiveActive:
		return "LIVE"
	case LiveDegraded:
		return "DEGRADED"
	default:
		return "UNKNOWN"
	}
}

// HistoryRequest asks a history transport for bars of one symbol.
type HistoryRequest struct {
	Symbol   string    // Symbol key
	Session  uuid.UUID // Tracking session that issued the request
	Interval time.Duration
	Start    time.Time
	End      time.Time
}
