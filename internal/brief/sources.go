package brief

import (
	"net/url"
	"sort"
	"strings"
)

// NormalizeURL reduces a URL to the form used for deduplication: lowercase
// scheme and host, no "www." prefix, default port, fragment, tracking
// parameters or trailing slash, and sorted query parameters.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return strings.ToLower(raw)
	}

	scheme := strings.ToLower(u.Scheme)
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if port := u.Port(); port != "" && !(scheme == "http" && port == "80") && !(scheme == "https" && port == "443") {
		host += ":" + port
	}
	if scheme == "http" {
		scheme = "https"
	}

	q := u.Query()
	for k := range q {
		lk := strings.ToLower(k)
		if strings.HasPrefix(lk, "utm_") || lk == "fbclid" || lk == "gclid" || lk == "ref" {
			q.Del(k)
		}
	}

	path := strings.TrimRight(u.EscapedPath(), "/")
	out := scheme + "://" + host + path
	if enc := q.Encode(); enc != "" {
		out += "?" + enc
	}
	return out
}

// DomainOf returns the host of a URL without a "www." prefix.
func DomainOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// MergeCandidates interleaves per-query result lists round-robin (the first
// hit of every list, then the second, and so on), drops duplicate URLs, and
// assigns each survivor a zero-based discovery rank equal to its first-seen
// position. At most limit candidates are kept when limit > 0, so every list
// gets a share of the slots before any list gets a second one.
func MergeCandidates(lists [][]SourceCandidate, limit int) []SourceCandidate {
	seen := make(map[string]struct{})
	var merged []SourceCandidate
	for i := 0; ; i++ {
		progressed := false
		for _, list := range lists {
			if i >= len(list) {
				continue
			}
			progressed = true
			c := list[i]
			if strings.TrimSpace(c.URL) == "" {
				continue
			}
			key := NormalizeURL(c.URL)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			c.DiscoveryRank = len(merged)
			merged = append(merged, c)
			if limit > 0 && len(merged) >= limit {
				return merged
			}
		}
		if !progressed {
			return merged
		}
	}
}

// ClampScore bounds a score to [0, 1].
func ClampScore(v float64) float64 {
	switch {
	case v != v:
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// SortSources orders summaries by relevance descending, then discovery rank
// ascending. The result does not depend on the input order.
func SortSources(sources []SourceSummary) {
	sort.SliceStable(sources, func(i, j int) bool {
		if sources[i].RelevanceScore != sources[j].RelevanceScore {
			return sources[i].RelevanceScore > sources[j].RelevanceScore
		}
		return sources[i].DiscoveryRank < sources[j].DiscoveryRank
	})
}
