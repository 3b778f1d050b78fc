package engine

import (
	"fmt"
	"strings"

	"github.com/tavleenbajwa8/research-brief-generator/internal/brief"
	"github.com/tavleenbajwa8/research-brief-generator/internal/schema"
)

const planningPrompt = `You are planning a research brief for a professional reader.

Topic: %s
Depth: %d (1 = quick overview, 5 = exhaustive)
%s
Break the topic into between 1 and %d focused web search queries. Each query should cover a distinct angle. Prefer recent, authoritative material.

Respond with ONLY this JSON:
%s`

const summaryPrompt = `You are reading one source for a research brief on: %s

Source Title: %s
URL: %s
Content:
%s

Summarize what this source contributes to the topic. Stay strictly within the content above. Rate relevance_score from 0.0 (unrelated) to 1.0 (directly answers the topic) and credibility_score from 0.0 (anonymous or promotional) to 1.0 (primary or peer-reviewed).

Respond with ONLY this JSON:
%s`

const synthesisPrompt = `You are writing a research brief for a professional reader.

Topic: %s
%s
Sources:
%s
Write an executive summary and specific key findings that answer the research plan, using only the sources above. Do not introduce facts or links that are not in the sources. List in cited_sources the exact URLs of the sources you relied on.

Respond with ONLY this JSON:
%s`

func stringArray(name, desc string, required bool, minItems, maxItems int) schema.Field {
	return schema.Field{
		Name:        name,
		Type:        schema.Array,
		Elem:        schema.String,
		Required:    required,
		MinItems:    minItems,
		MaxItems:    maxItems,
		Description: desc,
	}
}

var stepShape = schema.Shape{
	Name: "step",
	Fields: []schema.Field{
		{Name: "sub_query", Type: schema.String, Required: true, NonEmpty: true, Description: "web search query"},
		{Name: "rationale", Type: schema.String, Required: true, Description: "what this query covers"},
		stringArray("keywords", "", false, 0, 8),
		{Name: "priority", Type: schema.Integer, Min: schema.Float(1), Max: schema.Float(5), Description: "1 = most important"},
	},
}

// planShape caps the number of steps at depth.
func planShape(depth int) schema.Shape {
	return schema.Shape{
		Name: "plan",
		Fields: []schema.Field{
			{Name: "steps", Type: schema.Array, Required: true, MinItems: 1, MaxItems: depth, Shape: &stepShape},
			stringArray("focus_areas", "themes the brief should address", false, 0, 5),
		},
	}
}

var summaryShape = schema.Shape{
	Name: "source_summary",
	Fields: []schema.Field{
		{Name: "summary", Type: schema.String, Required: true, NonEmpty: true, Description: "2-4 sentences"},
		{Name: "relevance_score", Type: schema.Number, Required: true},
		{Name: "credibility_score", Type: schema.Number},
		stringArray("key_points", "specific facts from the source", true, 0, 0),
	},
}

var synthesisShape = schema.Shape{
	Name: "synthesis",
	Fields: []schema.Field{
		{Name: "executive_summary", Type: schema.String, Required: true, NonEmpty: true, Description: "one or two paragraphs"},
		stringArray("key_findings", "one finding per entry", true, 1, 0),
		{Name: "methodology", Type: schema.String, Description: "how the sources were gathered and weighed"},
		stringArray("recommendations", "", false, 0, 0),
		stringArray("limitations", "gaps or caveats in the evidence", false, 0, 0),
		stringArray("cited_sources", "URLs from the source list", false, 0, 0),
	},
}

func buildPlanningPrompt(req brief.Request, uc *brief.UserContext) string {
	shape := planShape(req.Depth)
	return fmt.Sprintf(planningPrompt, req.Topic, req.Depth, contextBlock(uc), req.Depth, shape.Describe())
}

func buildSummaryPrompt(topic string, doc brief.FetchedDocument) string {
	return fmt.Sprintf(summaryPrompt, topic, doc.Title, doc.URL, doc.Text, summaryShape.Describe())
}

func buildSynthesisPrompt(topic string, uc *brief.UserContext, plan *brief.ResearchPlan, sources []brief.SourceSummary) string {
	var b strings.Builder
	for i, s := range sources {
		fmt.Fprintf(&b, "[%d] %s\nURL: %s\nSummary: %s\n", i+1, s.Title, s.URL, s.Summary)
		for _, p := range s.KeyPoints {
			fmt.Fprintf(&b, "  - %s\n", p)
		}
		b.WriteString("\n")
	}

	return fmt.Sprintf(synthesisPrompt, topic, contextBlock(uc)+planBlock(plan), b.String(), synthesisShape.Describe())
}

// planBlock lists the research plan the sources were gathered under.
func planBlock(plan *brief.ResearchPlan) string {
	if plan == nil {
		return ""
	}
	var b strings.Builder
	if len(plan.Steps) > 0 {
		b.WriteString("\nResearch plan:\n")
		for _, s := range plan.Steps {
			if s.Rationale != "" {
				fmt.Fprintf(&b, "- %s: %s\n", s.SubQuery, s.Rationale)
			} else {
				fmt.Fprintf(&b, "- %s\n", s.SubQuery)
			}
		}
	}
	if len(plan.FocusAreas) > 0 {
		fmt.Fprintf(&b, "Focus areas: %s\n", strings.Join(plan.FocusAreas, "; "))
	}
	return b.String()
}

// contextBlock renders prior history for follow-up prompts. It is empty when
// there is nothing to add.
func contextBlock(uc *brief.UserContext) string {
	if uc.IsEmpty() {
		return ""
	}
	var b strings.Builder
	b.WriteString("\nThis is a follow-up. The reader has already seen briefs on related topics; build on them instead of repeating them.\n")
	if uc.Summary != "" {
		fmt.Fprintf(&b, "Reader history:\n%s\n", uc.Summary)
	}
	if len(uc.PreviousTopics) > 0 {
		fmt.Fprintf(&b, "Previous topics: %s\n", strings.Join(uc.PreviousTopics, "; "))
	}
	if len(uc.KeyThemes) > 0 {
		fmt.Fprintf(&b, "Recurring themes: %s\n", strings.Join(uc.KeyThemes, ", "))
	}
	return b.String()
}
