package database

import "time"

// BriefRecord is a stored brief without its full payload, for listings.
type BriefRecord struct {
	BriefID          string
	UserID           string
	Topic            string
	Depth            int
	ExecutiveSummary string
	SourceCount      int
	Partial          bool
	ExecutionTime    float64
	TotalTokens      int
	GeneratedAt      time.Time
}

// Stats contains aggregate database statistics.
type Stats struct {
	Briefs        int
	PartialBriefs int
	Users         int
	TotalTokens   int
}

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
