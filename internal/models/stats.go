package models

import "time"

// Stats is the global counters aggregate.
type Stats struct {
	TotalChecks     int64      `json:"totalChecks"`
	TotalBans       int64      `json:"totalBans"`
	TotalRecoveries int64      `json:"totalRecoveries"`
	LastHealthCheck *time.Time `json:"lastHealthCheck"`
}

// StatsDelta is applied once at the end of a health check run.
type StatsDelta struct {
	Bans       int
	Recoveries int
	FinishedAt time.Time
}
