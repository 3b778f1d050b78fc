package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/tavleenbajwa8/research-brief-generator/internal/brief"
)

const (
	maxPreviousTopics = 10
	maxBriefIDs       = 20
	maxKeyThemes      = 10
	maxSummaryLines   = 5
)

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// GetContext returns the user's rolling context, or nil if the user is unknown.
func (db *DB) GetContext(ctx context.Context, userID string) (*brief.UserContext, error) {
	return getContext(ctx, db.conn, userID)
}

func getContext(ctx context.Context, q querier, userID string) (*brief.UserContext, error) {
	var uc brief.UserContext
	var briefIDs, topics, themes, lastAt string
	err := q.QueryRowContext(ctx,
		`SELECT user_id, summary, brief_ids, previous_topics, key_themes, preferred_depth, last_interaction
		FROM user_contexts WHERE user_id = ?`, userID,
	).Scan(&uc.UserID, &uc.Summary, &briefIDs, &topics, &themes, &uc.PreferredDepth, &lastAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading user context: %w", err)
	}

	for _, f := range []struct {
		raw  string
		dest *[]string
	}{
		{briefIDs, &uc.BriefIDs},
		{topics, &uc.PreviousTopics},
		{themes, &uc.KeyThemes},
	} {
		if err := json.Unmarshal([]byte(f.raw), f.dest); err != nil {
			return nil, fmt.Errorf("decoding user context %s: %w", userID, err)
		}
	}
	uc.LastInteraction = parseTime(lastAt)
	return &uc, nil
}

func putContext(ctx context.Context, q querier, uc *brief.UserContext) error {
	briefIDs, _ := json.Marshal(nonNil(uc.BriefIDs))
	topics, _ := json.Marshal(nonNil(uc.PreviousTopics))
	themes, _ := json.Marshal(nonNil(uc.KeyThemes))

	_, err := q.ExecContext(ctx,
		`INSERT INTO user_contexts
		(user_id, summary, brief_ids, previous_topics, key_themes, preferred_depth, last_interaction)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			summary = excluded.summary,
			brief_ids = excluded.brief_ids,
			previous_topics = excluded.previous_topics,
			key_themes = excluded.key_themes,
			preferred_depth = excluded.preferred_depth,
			last_interaction = excluded.last_interaction`,
		uc.UserID, uc.Summary, string(briefIDs), string(topics), string(themes),
		uc.PreferredDepth, formatTime(uc.LastInteraction),
	)
	if err != nil {
		return fmt.Errorf("writing user context: %w", err)
	}
	return nil
}

// FoldBrief updates a user context with a newly completed brief: the topic is
// remembered (last 10 distinct), the brief id is appended, the preferred depth
// follows the latest request, and the summary keeps one line per recent brief.
func FoldBrief(uc *brief.UserContext, b *brief.FinalBrief, now time.Time) {
	uc.PreviousTopics = appendDistinct(uc.PreviousTopics, b.Topic, maxPreviousTopics)
	uc.BriefIDs = appendDistinct(uc.BriefIDs, b.BriefID, maxBriefIDs)
	if b.Depth > 0 {
		uc.PreferredDepth = b.Depth
	}
	uc.LastInteraction = now

	line := b.Topic + ": " + firstSentence(b.ExecutiveSummary)
	var lines []string
	if uc.Summary != "" {
		lines = strings.Split(uc.Summary, "\n")
	}
	lines = append(lines, line)
	if len(lines) > maxSummaryLines {
		lines = lines[len(lines)-maxSummaryLines:]
	}
	uc.Summary = strings.Join(lines, "\n")

	uc.KeyThemes = themesOf(uc.PreviousTopics)
}

func appendDistinct(list []string, v string, max int) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	list = append(list, v)
	if len(list) > max {
		list = list[len(list)-max:]
	}
	return list
}

func firstSentence(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, ".!?"); i >= 0 {
		s = s[:i+1]
	}
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

var stopWords = map[string]struct{}{
	"about": {}, "after": {}, "their": {}, "there": {}, "these": {}, "those": {},
	"which": {}, "while": {}, "where": {}, "would": {}, "should": {}, "could": {},
}

// themesOf ranks words of five or more letters by how many topics use them.
func themesOf(topics []string) []string {
	counts := make(map[string]int)
	firstSeen := make(map[string]int)
	for i := len(topics) - 1; i >= 0; i-- {
		seen := make(map[string]bool)
		for _, w := range strings.Fields(strings.ToLower(topics[i])) {
			w = strings.Trim(w, ".,;:!?\"'()[]")
			if len(w) < 5 || seen[w] {
				continue
			}
			if _, stop := stopWords[w]; stop {
				continue
			}
			seen[w] = true
			counts[w]++
			if _, ok := firstSeen[w]; !ok {
				firstSeen[w] = len(firstSeen)
			}
		}
	}

	themes := make([]string, 0, len(counts))
	for w := range counts {
		themes = append(themes, w)
	}
	sort.Slice(themes, func(i, j int) bool {
		if counts[themes[i]] != counts[themes[j]] {
			return counts[themes[i]] > counts[themes[j]]
		}
		return firstSeen[themes[i]] < firstSeen[themes[j]]
	})
	if len(themes) > maxKeyThemes {
		themes = themes[:maxKeyThemes]
	}
	return themes
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
