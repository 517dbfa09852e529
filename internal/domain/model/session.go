// Package model contains domain models passed between layers.
package model

// Status is a session's lifecycle state as reported by the remote service.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// Candidate is the short identity shown for a session.
type Candidate struct {
	Name     string `json:"name"`
	Position string `json:"position"`
	Email    string `json:"email,omitempty"`
}

// Progress is the current task index out of the total number of tasks.
type Progress struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// RosterEntry is one row of the active or completed session lists.
type RosterEntry struct {
	ID           string    `json:"id"`
	Status       Status    `json:"status"`
	Candidate    Candidate `json:"candidate"`
	Progress     Progress  `json:"progress"`
	TimeElapsed  float64   `json:"time_elapsed,omitempty"`
	OverallScore float64   `json:"overall_score,omitempty"`
	Grade        string    `json:"grade,omitempty"`
}

// FindEntry returns the roster entry with the given id from either list.
func FindEntry(id string, lists ...[]RosterEntry) (RosterEntry, bool) {
	for _, list := range lists {
		for _, e := range list {
			if e.ID == id {
				return e, true
			}
		}
	}
	return RosterEntry{}, false
}
