package domain

import "time"

// ScoreEntry is a player's best score on a board together with its rank.
type ScoreEntry struct {
	ID          int64
	Board       string
	UserID      string
	Score       float64
	Rank        int64
	SubmittedAt time.Time
}

// BoardSummary describes one leaderboard for the admin console.
type BoardSummary struct {
	Board    string
	Entries  int64
	TopScore float64
	MinScore float64
}

// Stats aggregates counts shown on the admin dashboard.
type Stats struct {
	Users             int64
	Guests            int64
	Registered        int64
	Banned            int64
	KVEntries         int64
	Leaderboards      int64
	LeaderboardScores int64
}
