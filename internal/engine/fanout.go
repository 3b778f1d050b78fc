package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tavleenbajwa8/research-brief-generator/internal/brief"
	"github.com/tavleenbajwa8/research-brief-generator/internal/fetch"
	"github.com/tavleenbajwa8/research-brief-generator/internal/llm"
	"github.com/tavleenbajwa8/research-brief-generator/internal/metrics"
	"github.com/tavleenbajwa8/research-brief-generator/internal/retry"
	"github.com/tavleenbajwa8/research-brief-generator/internal/schema"
)

const maxKeyPoints = 5

// outcome is the single record a source task leaves behind: a summary or a
// skip, never both.
type outcome struct {
	rank    int
	summary *brief.SourceSummary
	skip    *brief.SkippedSource
	tokens  int
}

// collector is append-only. Tasks write to it exactly once and never read it.
type collector struct {
	mu       sync.Mutex
	outcomes []outcome
}

func (c *collector) add(o outcome) {
	c.mu.Lock()
	c.outcomes = append(c.outcomes, o)
	c.mu.Unlock()
}

// results returns the outcomes in discovery order.
func (c *collector) results() []outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]outcome, len(c.outcomes))
	copy(out, c.outcomes)
	sort.Slice(out, func(i, j int) bool { return out[i].rank < out[j].rank })
	return out
}

// fanOut fetches and summarizes every candidate on a bounded pool of
// workers. When the fan-out deadline passes, queued candidates are dropped,
// in-flight tasks are abandoned, and the run is marked partial.
func (e *Engine) fanOut(r *run) {
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if r.fanOutBy.IsZero() {
		ctx, cancel = context.WithCancel(r.ctx)
	} else {
		ctx, cancel = context.WithDeadline(r.ctx, r.fanOutBy)
	}
	defer cancel()

	intake := make(chan brief.SourceCandidate)
	col := &collector{}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(intake)
		for _, c := range r.candidates {
			select {
			case intake <- c:
			case <-gctx.Done():
				return nil
			}
		}
		return nil
	})

	workers := min(e.opts.Workers, len(r.candidates))
	for range workers {
		g.Go(func() error {
			for c := range intake {
				if o, ok := e.processSource(gctx, r.topic, c); ok {
					col.add(o)
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	outcomes := col.results()
	for _, o := range outcomes {
		r.addTokens(e.opts.SummaryModel, o.tokens)
		if o.summary != nil {
			r.summaries = append(r.summaries, *o.summary)
			metrics.SourcesSummarized.Inc()
			continue
		}
		r.skipped = append(r.skipped, *o.skip)
	}
	r.partial = len(outcomes) < len(r.candidates)

	r.log.Info("sources processed",
		zap.Int("summarized", len(r.summaries)),
		zap.Int("skipped", len(r.skipped)),
		zap.Int("abandoned", len(r.candidates)-len(outcomes)),
	)
}

// processSource fetches and summarizes one candidate. It reports false when
// the task was abandoned because ctx ended, in which case nothing is recorded.
func (e *Engine) processSource(ctx context.Context, topic string, c brief.SourceCandidate) (outcome, bool) {
	page, err := retry.Value(ctx, e.opts.Retry, "fetch", func(ctx context.Context) (*fetch.Result, error) {
		return e.fetcher.Fetch(ctx, c.URL)
	})
	if err != nil {
		if ctx.Err() != nil {
			return outcome{}, false
		}
		return skipped(c, "fetch", fmt.Sprintf("fetch failed: %v", err)), true
	}
	if page.Status == brief.FetchFailed {
		return skipped(c, "fetch", "fetch failed"), true
	}

	text := strings.TrimSpace(page.Text)
	if utf8.RuneCountInString(text) < e.opts.MinContentChars {
		return skipped(c, "content", fmt.Sprintf("insufficient content: %d characters", utf8.RuneCountInString(text))), true
	}

	doc := brief.FetchedDocument{SourceCandidate: c, Text: text, Status: page.Status}
	if doc.Title == "" {
		doc.Title = page.Title
	}

	key := e.opts.SummaryModel
	res, err := retry.Repair(ctx, e.opts.Retry, "summarize", buildSummaryPrompt(topic, doc),
		func(ctx context.Context, prompt string) (*llm.Result, error) {
			return e.model.Invoke(ctx, key, prompt, summaryShape)
		})
	if err != nil {
		if ctx.Err() != nil {
			return outcome{}, false
		}
		return skipped(c, "summarize", fmt.Sprintf("summarization failed: %v", err)), true
	}

	var out struct {
		Summary     string   `json:"summary"`
		Relevance   float64  `json:"relevance_score"`
		Credibility float64  `json:"credibility_score"`
		KeyPoints   []string `json:"key_points"`
	}
	if err := schema.Decode(res.Data, &out); err != nil {
		return skipped(c, "summarize", fmt.Sprintf("summarization failed: %v", err)), true
	}

	points := cleanStrings(out.KeyPoints)
	if len(points) > maxKeyPoints {
		points = points[:maxKeyPoints]
	}

	// URL and title come from the candidate, never from the model.
	return outcome{
		rank: c.DiscoveryRank,
		summary: &brief.SourceSummary{
			URL:              c.URL,
			Title:            doc.Title,
			Domain:           brief.DomainOf(c.URL),
			Summary:          strings.TrimSpace(out.Summary),
			RelevanceScore:   brief.ClampScore(out.Relevance),
			CredibilityScore: brief.ClampScore(out.Credibility),
			KeyPoints:        points,
			DiscoveryRank:    c.DiscoveryRank,
		},
		tokens: res.Tokens,
	}, true
}

func skipped(c brief.SourceCandidate, category, reason string) outcome {
	metrics.SourcesSkipped.WithLabelValues(category).Inc()
	return outcome{rank: c.DiscoveryRank, skip: &brief.SkippedSource{URL: c.URL, Reason: reason}}
}
