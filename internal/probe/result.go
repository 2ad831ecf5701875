package probe

import "time"

// Result is a single factual measurement. Exactly one family of fields is
// meaningful depending on the check kind; Err is set when the measurement
// could not be taken at all.
type Result struct {
	Pipeline   string
	Kind       string
	Count      int64
	Yesterday  int64
	Last7Days  int64
	Age        time.Duration
	LastRecord time.Time
	Exists     bool
	Err        string
	MeasuredAt time.Time
}
