package domain

import (
	"encoding/json"
	"time"
)

// KVEntry is a versioned value in a player's key-value store.
type KVEntry struct {
	UserID    string
	Key       string
	Value     json.RawMessage
	Version   int64
	UpdatedAt time.Time
}
