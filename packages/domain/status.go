package domain

import "time"

// DetermineStatus classifies an event relative to now. Total over all inputs:
// COMPLETED when the end has passed, ONGOING when now falls inside
// [start, end], UPCOMING otherwise. Used at crawl time and by the periodic
// status-repair pass over persisted events.
func DetermineStatus(startAt, endAt, now time.Time) EventStatus {
	if endAt.Before(now) {
		return StatusCompleted
	}
	if !startAt.After(now) && !endAt.Before(now) {
		return StatusOngoing
	}
	return StatusUpcoming
}
