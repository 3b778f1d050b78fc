package compose

import (
	"strings"
	"testing"
	"time"

	"github.com/tavleenbajwa8/research-brief-generator/internal/brief"
)

func testBrief() *brief.FinalBrief {
	return &brief.FinalBrief{
		BriefID:          "b1",
		Topic:            "Grid Storage",
		Depth:            2,
		ExecutiveSummary: "Batteries are winning.",
		KeyFindings:      []string{"Costs fell 20%", "Deployments doubled"},
		Recommendations:  []string{"Watch sodium-ion"},
		Methodology:      "Two queries, four sources.",
		Sources: []brief.SourceSummary{
			{URL: "https://a.com/x", Title: "Report [2026]", Domain: "a.com", Summary: "Annual report.", RelevanceScore: 0.9},
			{URL: "https://b.com/y", RelevanceScore: 0.4},
		},
		SkippedSources: []brief.SkippedSource{{URL: "https://c.com", Reason: "fetch failed"}},
		TokenUsage:     map[string]int{"reasoning": 1200, "extraction": 300},
		GeneratedAt:    time.Date(2026, 2, 6, 9, 30, 0, 0, time.UTC),
		ExecutionTime:  12.34,
	}
}

func TestMarkdown(t *testing.T) {
	md := Markdown(testBrief())

	for _, want := range []string{
		"# Grid Storage",
		"*Generated 2026-02-06 09:30 UTC · depth 2 · 2 sources*",
		"## Executive Summary\n\nBatteries are winning.",
		"- Costs fell 20%\n- Deployments doubled",
		"## Recommendations\n\n- Watch sodium-ion",
		"## Methodology",
		`1. [Report \[2026\]](https://a.com/x) · a.com · relevance 0.90`,
		"   Annual report.",
		"2. [https://b.com/y](https://b.com/y) · relevance 0.40",
		"- Skipped https://c.com: fetch failed",
		"- 1500 tokens used in 12.3s",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("expected %q in markdown:\n%s", want, md)
		}
	}

	if strings.Contains(md, "## Limitations") {
		t.Error("empty limitations should be omitted")
	}
	if strings.Contains(md, "Partial brief") {
		t.Error("complete brief should not carry the partial banner")
	}
}

func TestMarkdownPartial(t *testing.T) {
	b := testBrief()
	b.Partial = true
	b.Warnings = []string{"source processing stopped at the deadline"}

	md := Markdown(b)
	if !strings.Contains(md, "**Partial brief:**") {
		t.Error("expected partial banner")
	}
	if !strings.Contains(md, "- source processing stopped at the deadline") {
		t.Error("expected warning in run notes")
	}
}

func TestMarkdownNoNotes(t *testing.T) {
	b := testBrief()
	b.SkippedSources = nil
	b.TokenUsage = nil

	if strings.Contains(Markdown(b), "## Run Notes") {
		t.Error("run notes should be omitted when empty")
	}
}

func TestSummaryTruncates(t *testing.T) {
	b := testBrief()
	b.ExecutiveSummary = strings.Repeat("word ", 60)

	got := Summary(b)
	if len([]rune(got)) > 160 {
		t.Errorf("summary too long: %d", len([]rune(got)))
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("expected ellipsis, got %q", got)
	}

	b.ExecutiveSummary = "Short\n  and   clean."
	if got := Summary(b); got != "Short and clean." {
		t.Errorf("unexpected summary %q", got)
	}
}
