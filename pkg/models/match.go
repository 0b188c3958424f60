package models

import "time"

// Match is a stored candidate for a user. At most one row exists per
// (UserID, MatchID) pair.
type Match struct {
	UserID    string    `json:"user_id" db:"user_id"`
	MatchID   string    `json:"match_id" db:"match_id"`
	Score     float64   `json:"score" db:"score"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
