// Package brief holds the data model of a research brief run.
package brief

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Request asks for a brief on a topic. It is not modified after creation.
type Request struct {
	Topic    string `json:"topic"`
	Depth    int    `json:"depth"`
	FollowUp bool   `json:"follow_up"`
	UserID   string `json:"user_id,omitempty"`
}

// Limits bounds the accepted request values.
type Limits struct {
	MinDepth    int
	MaxDepth    int
	MaxTopicLen int
}

// DefaultLimits matches the shipped configuration.
var DefaultLimits = Limits{MinDepth: 1, MaxDepth: 5, MaxTopicLen: 500}

// Validate checks the request invariants and returns every problem found.
func (r Request) Validate(l Limits) error {
	var errs []error
	topic := strings.TrimSpace(r.Topic)
	if topic == "" {
		errs = append(errs, errors.New("topic must not be empty"))
	} else if l.MaxTopicLen > 0 && utf8.RuneCountInString(topic) > l.MaxTopicLen {
		errs = append(errs, fmt.Errorf("topic exceeds %d characters", l.MaxTopicLen))
	}
	if r.Depth < l.MinDepth || r.Depth > l.MaxDepth {
		errs = append(errs, fmt.Errorf("depth %d outside [%d, %d]", r.Depth, l.MinDepth, l.MaxDepth))
	}
	if r.FollowUp && strings.TrimSpace(r.UserID) == "" {
		errs = append(errs, errors.New("user_id is required for follow-up requests"))
	}
	return errors.Join(errs...)
}

// UserContext is a user's rolling interaction history.
type UserContext struct {
	UserID          string    `json:"user_id"`
	Summary         string    `json:"summary"`
	BriefIDs        []string  `json:"brief_ids"`
	PreviousTopics  []string  `json:"previous_topics"`
	KeyThemes       []string  `json:"key_themes"`
	PreferredDepth  int       `json:"preferred_depth"`
	LastInteraction time.Time `json:"last_interaction"`
}

// IsEmpty reports whether the context carries anything worth prompting with.
func (c *UserContext) IsEmpty() bool {
	return c == nil || (c.Summary == "" && len(c.PreviousTopics) == 0 && len(c.KeyThemes) == 0)
}

// PlanStep is one research sub-query.
type PlanStep struct {
	SubQuery  string   `json:"sub_query"`
	Rationale string   `json:"rationale"`
	Keywords  []string `json:"keywords,omitempty"`
	Priority  int      `json:"priority,omitempty"`
}

// ResearchPlan is produced once per run.
type ResearchPlan struct {
	Steps      []PlanStep `json:"steps"`
	FocusAreas []string   `json:"focus_areas,omitempty"`
}

// SourceCandidate is a search hit.
type SourceCandidate struct {
	URL           string `json:"url"`
	Title         string `json:"title"`
	Snippet       string `json:"snippet,omitempty"`
	DiscoveryRank int    `json:"discovery_rank"`
}

// FetchStatus is the outcome of retrieving a candidate.
type FetchStatus string

const (
	FetchOK        FetchStatus = "ok"
	FetchFailed    FetchStatus = "failed"
	FetchTruncated FetchStatus = "truncated"
)

// FetchedDocument is a candidate plus its extracted text.
type FetchedDocument struct {
	SourceCandidate
	Text   string      `json:"text"`
	Status FetchStatus `json:"fetch_status"`
}

// SourceSummary is the per-source output of a successful fetch and summarize.
type SourceSummary struct {
	URL              string   `json:"url"`
	Title            string   `json:"title"`
	Domain           string   `json:"domain,omitempty"`
	Summary          string   `json:"summary"`
	RelevanceScore   float64  `json:"relevance_score"`
	CredibilityScore float64  `json:"credibility_score,omitempty"`
	KeyPoints        []string `json:"key_points"`
	DiscoveryRank    int      `json:"discovery_rank"`
}

// SkippedSource records a candidate that produced no summary.
type SkippedSource struct {
	URL    string `json:"url"`
	Reason string `json:"reason"`
}

// FinalBrief is the immutable result of a successful run.
type FinalBrief struct {
	BriefID          string          `json:"brief_id"`
	UserID           string          `json:"user_id,omitempty"`
	Topic            string          `json:"topic"`
	Depth            int             `json:"depth"`
	ExecutiveSummary string          `json:"executive_summary"`
	KeyFindings      []string        `json:"key_findings"`
	Methodology      string          `json:"methodology,omitempty"`
	Recommendations  []string        `json:"recommendations,omitempty"`
	Limitations      []string        `json:"limitations,omitempty"`
	Sources          []SourceSummary `json:"sources"`
	SkippedSources   []SkippedSource `json:"skipped_sources,omitempty"`
	Warnings         []string        `json:"warnings,omitempty"`
	TokenUsage       map[string]int  `json:"token_usage,omitempty"`
	GeneratedAt      time.Time       `json:"generated_at"`
	ExecutionTime    float64         `json:"execution_time"`
	Partial          bool            `json:"partial"`
}

// TotalTokens sums token usage across model keys.
func (b *FinalBrief) TotalTokens() int {
	var n int
	for _, v := range b.TokenUsage {
		n += v
	}
	return n
}
