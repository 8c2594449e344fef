package domain

// CaptureEvent is one observed HTTP request in the live console. It is never
// mutated after capture.
type CaptureEvent struct {
	ID         int64   `json:"id"`
	Timestamp  int64   `json:"timestamp"`
	Method     string  `json:"method"`
	Path       string  `json:"path"`
	Status     int     `json:"status"`
	DurationMS int64   `json:"duration"`
	IP         string  `json:"ip"`
	UserAgent  string  `json:"userAgent"`
	UserID     *string `json:"userId"`
}

// RPSHistoryEntry counts captured requests within one second. Second is
// milliseconds since epoch aligned to a whole second.
type RPSHistoryEntry struct {
	Second int64
	Count  int64
}

// RPSPoint is one chart bucket; RPS is the average rate inside the bucket.
type RPSPoint struct {
	Timestamp int64   `json:"timestamp"`
	RPS       float64 `json:"rps"`
}

// RPSStats summarises a lookback window.
type RPSStats struct {
	Current float64 `json:"current"`
	Average float64 `json:"average"`
	Peak    float64 `json:"peak"`
	Total   int64   `json:"total"`
}

// RPSSnapshot is the chart payload for a single lookback window.
type RPSSnapshot struct {
	Data          []RPSPoint `json:"data"`
	Stats         RPSStats   `json:"stats"`
	BucketSeconds int        `json:"bucketSeconds"`
	WindowMinutes int        `json:"windowMinutes"`
}
