// Package compose renders finished briefs as Markdown documents.
package compose

import (
	"fmt"
	"strings"
	"time"

	"github.com/tavleenbajwa8/research-brief-generator/internal/brief"
)

// Markdown renders the full brief: summary, findings, recommendations,
// sources and the run notes.
func Markdown(b *brief.FinalBrief) string {
	var sections []string

	header := fmt.Sprintf("# %s\n\n*Generated %s · depth %d · %d sources*",
		b.Topic, b.GeneratedAt.Format("2006-01-02 15:04 MST"), b.Depth, len(b.Sources))
	if b.Partial {
		header += "\n\n> **Partial brief:** some sources could not be processed before the deadline."
	}
	sections = append(sections, header)

	sections = append(sections, "## Executive Summary\n\n"+b.ExecutiveSummary)
	sections = append(sections, "## Key Findings\n\n"+bullets(b.KeyFindings))

	if len(b.Recommendations) > 0 {
		sections = append(sections, "## Recommendations\n\n"+bullets(b.Recommendations))
	}
	if b.Methodology != "" {
		sections = append(sections, "## Methodology\n\n"+b.Methodology)
	}
	if len(b.Limitations) > 0 {
		sections = append(sections, "## Limitations\n\n"+bullets(b.Limitations))
	}

	sections = append(sections, assembleSources(b.Sources))

	if notes := assembleNotes(b); notes != "" {
		sections = append(sections, notes)
	}

	return strings.Join(sections, "\n\n---\n\n") + "\n"
}

// Summary is a short plain-text line for listings.
func Summary(b *brief.FinalBrief) string {
	text := strings.Join(strings.Fields(b.ExecutiveSummary), " ")
	if r := []rune(text); len(r) > 160 {
		text = strings.TrimSpace(string(r[:157])) + "..."
	}
	return text
}

func assembleSources(sources []brief.SourceSummary) string {
	if len(sources) == 0 {
		return "## Sources\n\nNo sources."
	}

	var refs []string
	for i, s := range sources {
		title := s.Title
		if title == "" {
			title = s.URL
		}
		line := fmt.Sprintf("%d. [%s](%s)", i+1, escapeLinkText(title), s.URL)
		if s.Domain != "" {
			line += " · " + s.Domain
		}
		line += fmt.Sprintf(" · relevance %.2f", s.RelevanceScore)
		if s.Summary != "" {
			line += "\n   " + s.Summary
		}
		refs = append(refs, line)
	}
	return "## Sources\n\n" + strings.Join(refs, "\n")
}

func assembleNotes(b *brief.FinalBrief) string {
	var lines []string
	for _, w := range b.Warnings {
		lines = append(lines, "- "+w)
	}
	for _, s := range b.SkippedSources {
		lines = append(lines, fmt.Sprintf("- Skipped %s: %s", s.URL, s.Reason))
	}
	if total := b.TotalTokens(); total > 0 {
		lines = append(lines, fmt.Sprintf("- %d tokens used in %s", total, formatDuration(b.ExecutionTime)))
	}
	if len(lines) == 0 {
		return ""
	}
	return "## Run Notes\n\n" + strings.Join(lines, "\n")
}

func bullets(items []string) string {
	lines := make([]string, len(items))
	for i, item := range items {
		lines[i] = "- " + item
	}
	return strings.Join(lines, "\n")
}

func escapeLinkText(s string) string {
	return strings.NewReplacer("[", `\[`, "]", `\]`).Replace(s)
}

func formatDuration(seconds float64) string {
	return (time.Duration(seconds * float64(time.Second))).Round(100 * time.Millisecond).String()
}
