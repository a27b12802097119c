package monitor

import "time"

// Status is the last observed state of the service dependencies. A dependency
// that is not configured is reported as nil.
type Status struct {
	PostgreSQL *bool        `json:"postgresql,omitempty"`
	Redis      *bool        `json:"redis,omitempty"`
	Bolt       *bool        `json:"bolt,omitempty"`
	Outbox     OutboxStatus `json:"outbox"`
	LastCheck  time.Time    `json:"last_check"`
}

// OutboxStatus summarizes the dispatch backlog.
type OutboxStatus struct {
	Available        bool    `json:"available"`
	Pending          int     `json:"pending"`
	Failed           int     `json:"failed"`
	Processed        int     `json:"processed"`
	OldestPendingAge float64 `json:"oldest_pending_age_seconds"`
}

func (s Status) healthy() bool {
	for _, dep := range []*bool{s.PostgreSQL, s.Redis, s.Bolt} {
		if dep != nil && !*dep {
			return false
		}
	}
	return true
}
