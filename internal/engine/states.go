package engine

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tavleenbajwa8/research-brief-generator/internal/brief"
	"github.com/tavleenbajwa8/research-brief-generator/internal/failure"
	"github.com/tavleenbajwa8/research-brief-generator/internal/llm"
	"github.com/tavleenbajwa8/research-brief-generator/internal/metrics"
	"github.com/tavleenbajwa8/research-brief-generator/internal/retry"
	"github.com/tavleenbajwa8/research-brief-generator/internal/schema"
)

// State is a step of a brief run.
type State string

const (
	StateInit           State = "INIT"
	StateContext        State = "CONTEXT"
	StatePlan           State = "PLAN"
	StateSearch         State = "SEARCH"
	StateFetchSummarize State = "FETCH_SUMMARIZE"
	StateSynthesize     State = "SYNTHESIZE"
	StateValidate       State = "VALIDATE"
	StateDone           State = "DONE"
	StateFailed         State = "FAILED"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

const persistTimeout = 10 * time.Second

// synthesis is the decoded output of the synthesis model.
type synthesis struct {
	ExecutiveSummary string   `json:"executive_summary"`
	KeyFindings      []string `json:"key_findings"`
	Methodology      string   `json:"methodology"`
	Recommendations  []string `json:"recommendations"`
	Limitations      []string `json:"limitations"`
	CitedSources     []string `json:"cited_sources"`
}

// run is the state owned by a single RunBrief call. Only the engine
// goroutine driving the run writes to it.
type run struct {
	parent context.Context
	ctx    context.Context
	cancel context.CancelFunc

	req     brief.Request
	topic   string
	id      string
	started time.Time
	// fanOutBy is when source processing must stop so that synthesis still
	// has time before the run deadline.
	fanOutBy time.Time
	log      *zap.Logger

	uc         *brief.UserContext
	plan       *brief.ResearchPlan
	candidates []brief.SourceCandidate
	summaries  []brief.SourceSummary
	skipped    []brief.SkippedSource
	synth      *synthesis
	partial    bool
	warnings   []string
	tokens     map[string]int

	result *brief.FinalBrief
	err    *failure.RunError
}

func (e *Engine) newRun(ctx context.Context, req brief.Request, deadline time.Duration) *run {
	runCtx, cancel := context.WithTimeout(ctx, deadline)
	id := e.opts.NewID()
	return &run{
		parent:   ctx,
		ctx:      runCtx,
		cancel:   cancel,
		req:      req,
		topic:    strings.TrimSpace(req.Topic),
		id:       id,
		started:  e.opts.Now(),
		fanOutBy: fanOutCutoff(runCtx, e.opts.SynthesisReserve),
		log:      e.logger.With(zap.String("brief_id", id)),
		tokens:   make(map[string]int),
	}
}

// fanOutCutoff holds back reserve of the time left before ctx's deadline,
// which may be earlier than the requested one when the parent has its own.
func fanOutCutoff(ctx context.Context, reserve float64) time.Time {
	dl, ok := ctx.Deadline()
	if !ok {
		return time.Time{}
	}
	left := time.Until(dl)
	return dl.Add(-time.Duration(float64(left) * reserve))
}

func (r *run) fail(code failure.Code, stage State, err error) State {
	r.err = failure.NewRunError(code, string(stage), err)
	return StateFailed
}

// interrupted reports whether the run context has ended, and fails the run
// with Timeout when the deadline passed or Canceled when the caller gave up.
func (r *run) interrupted(stage State, cause error) (State, bool) {
	switch err := r.ctx.Err(); {
	case err == nil:
		return "", false
	case errors.Is(err, context.DeadlineExceeded):
		return r.fail(failure.Timeout, stage, cause), true
	default:
		return r.fail(failure.Canceled, stage, cause), true
	}
}

func (r *run) addTokens(key string, n int) {
	if n > 0 {
		r.tokens[key] += n
		metrics.TokensUsed.WithLabelValues(key).Add(float64(n))
	}
}

func (r *run) warn(format string, args ...any) {
	r.warnings = append(r.warnings, fmt.Sprintf(format, args...))
}

type stepFunc func(r *run) State

func (e *Engine) steps() map[State]stepFunc {
	return map[State]stepFunc{
		StateInit:           e.stepInit,
		StateContext:        e.stepContext,
		StatePlan:           e.stepPlan,
		StateSearch:         e.stepSearch,
		StateFetchSummarize: e.stepFetchSummarize,
		StateSynthesize:     e.stepSynthesize,
		StateValidate:       e.stepValidate,
	}
}

// drive advances r until it reaches DONE or FAILED.
func (e *Engine) drive(r *run) {
	steps := e.steps()
	state := StateInit
	for !state.Terminal() {
		start := time.Now()
		next := steps[state](r)
		metrics.StageDuration.WithLabelValues(string(state)).Observe(time.Since(start).Seconds())

		r.log.Debug("state transition", zap.String("from", string(state)), zap.String("to", string(next)))
		if e.opts.OnTransition != nil {
			e.opts.OnTransition(state, next)
		}
		state = next
	}

	if state == StateDone {
		e.persist(r)
	}
}

func (e *Engine) stepInit(r *run) State {
	if err := r.req.Validate(e.opts.Limits); err != nil {
		return r.fail(failure.BadRequest, StateInit, err)
	}
	r.log.Info("brief run started",
		zap.String("topic", r.topic),
		zap.Int("depth", r.req.Depth),
		zap.Bool("follow_up", r.req.FollowUp),
	)
	if r.req.FollowUp {
		return StateContext
	}
	return StatePlan
}

// stepContext loads prior history. A missing or unreadable context is not
// fatal; the run continues as if it were a first request.
func (e *Engine) stepContext(r *run) State {
	if e.store == nil {
		r.warn("no context store configured; follow-up ran without history")
		return StatePlan
	}

	uc, err := e.store.GetContext(r.ctx, r.req.UserID)
	if err != nil {
		r.log.Warn("loading user context failed", zap.String("user_id", r.req.UserID), zap.Error(err))
		r.warn("user history could not be loaded")
		return StatePlan
	}
	if uc.IsEmpty() {
		r.log.Info("no prior context for user", zap.String("user_id", r.req.UserID))
		return StatePlan
	}
	r.uc = uc
	return StatePlan
}

func (e *Engine) stepPlan(r *run) State {
	key := e.opts.PlanningModel
	shape := planShape(r.req.Depth)
	res, err := retry.Repair(r.ctx, e.opts.Retry, "plan", buildPlanningPrompt(r.request(), r.uc),
		func(ctx context.Context, prompt string) (*llm.Result, error) {
			return e.model.Invoke(ctx, key, prompt, shape)
		})
	if err != nil {
		if next, ok := r.interrupted(StatePlan, err); ok {
			return next
		}
		return r.fail(failure.PlanningFailed, StatePlan, err)
	}
	r.addTokens(key, res.Tokens)

	var plan brief.ResearchPlan
	if err := schema.Decode(res.Data, &plan); err != nil {
		return r.fail(failure.PlanningFailed, StatePlan, err)
	}

	seen := make(map[string]bool)
	steps := plan.Steps[:0]
	for _, s := range plan.Steps {
		s.SubQuery = strings.TrimSpace(s.SubQuery)
		k := strings.ToLower(s.SubQuery)
		if s.SubQuery == "" || seen[k] {
			continue
		}
		seen[k] = true
		steps = append(steps, s)
	}
	if len(steps) == 0 {
		return r.fail(failure.PlanningFailed, StatePlan, errors.New("plan has no usable steps"))
	}
	plan.Steps = steps
	r.plan = &plan

	r.log.Info("research plan ready", zap.Int("steps", len(steps)))
	return StateSearch
}

func (e *Engine) stepSearch(r *run) State {
	var (
		lists [][]brief.SourceCandidate
		errs  []error
	)
	for _, step := range r.plan.Steps {
		if next, ok := r.interrupted(StateSearch, r.ctx.Err()); ok {
			return next
		}

		query := step.SubQuery
		hits, err := retry.Value(r.ctx, e.opts.Retry, "search", func(ctx context.Context) ([]brief.SourceCandidate, error) {
			return e.searcher.Search(ctx, query, e.opts.MaxResultsPerQuery)
		})
		if err != nil {
			if next, ok := r.interrupted(StateSearch, err); ok {
				return next
			}
			r.log.Warn("search failed", zap.String("query", query), zap.Error(err))
			r.warn("search failed for %q", query)
			errs = append(errs, err)
			continue
		}
		lists = append(lists, hits)
	}

	r.candidates = brief.MergeCandidates(lists, e.candidateLimit(r.req.Depth))
	if len(r.candidates) == 0 {
		err := errors.Join(errs...)
		if err == nil {
			err = errors.New("search returned no results")
		}
		return r.fail(failure.NoSourcesFound, StateSearch, err)
	}

	r.log.Info("candidates discovered", zap.Int("candidates", len(r.candidates)))
	return StateFetchSummarize
}

// candidateLimit scales the number of processed sources with depth.
func (e *Engine) candidateLimit(depth int) int {
	limit := e.opts.MaxCandidates
	if e.opts.SourcesPerDepth > 0 {
		byDepth := depth * e.opts.SourcesPerDepth
		if limit <= 0 || byDepth < limit {
			limit = byDepth
		}
	}
	return limit
}

func (e *Engine) stepFetchSummarize(r *run) State {
	e.fanOut(r)
	if r.partial {
		r.warn("source processing stopped at the deadline; %d of %d candidates were processed",
			len(r.summaries)+len(r.skipped), len(r.candidates))
	}
	return StateSynthesize
}

func (e *Engine) stepSynthesize(r *run) State {
	if next, ok := r.interrupted(StateSynthesize, r.ctx.Err()); ok {
		return next
	}
	if len(r.summaries) < e.opts.MinSources {
		return r.fail(failure.InsufficientSources, StateSynthesize,
			fmt.Errorf("%d sources summarized, %d required", len(r.summaries), e.opts.MinSources))
	}
	brief.SortSources(r.summaries)

	key := e.opts.SynthesisModel
	prompt := buildSynthesisPrompt(r.topic, r.uc, r.plan, r.summaries)
	res, err := retry.Repair(r.ctx, e.opts.Retry, "synthesize", prompt,
		func(ctx context.Context, prompt string) (*llm.Result, error) {
			return e.model.Invoke(ctx, key, prompt, synthesisShape)
		})
	if err != nil {
		if next, ok := r.interrupted(StateSynthesize, err); ok {
			return next
		}
		switch {
		case failure.KindOf(err) == failure.ValidationFailed:
			return r.fail(failure.SynthesisContractViolation, StateSynthesize, err)
		default:
			return r.fail(failure.SynthesisFailed, StateSynthesize, err)
		}
	}
	r.addTokens(key, res.Tokens)

	var out synthesis
	if err := schema.Decode(res.Data, &out); err != nil {
		return r.fail(failure.SynthesisContractViolation, StateSynthesize, err)
	}
	r.synth = &out
	return StateValidate
}

var urlPattern = regexp.MustCompile(`https?://[^\s<>"'\])]+`)

// stepValidate checks the synthesis against the sources it was given and
// assembles the brief.
func (e *Engine) stepValidate(r *run) State {
	supplied := make(map[string]bool, len(r.summaries))
	for _, s := range r.summaries {
		key := brief.NormalizeURL(s.URL)
		if supplied[key] {
			return r.fail(failure.SynthesisContractViolation, StateValidate, fmt.Errorf("duplicate source %s", s.URL))
		}
		supplied[key] = true
	}

	var problems []error
	summary := strings.TrimSpace(r.synth.ExecutiveSummary)
	if summary == "" {
		problems = append(problems, errors.New("executive summary is empty"))
	}
	findings := cleanStrings(r.synth.KeyFindings)
	if len(findings) == 0 {
		problems = append(problems, errors.New("no key findings"))
	}
	for _, u := range r.synth.CitedSources {
		if !supplied[brief.NormalizeURL(u)] {
			problems = append(problems, fmt.Errorf("cited source %s was not supplied", u))
		}
	}
	recommendations := cleanStrings(r.synth.Recommendations)
	texts := append([]string{summary}, findings...)
	texts = append(texts, recommendations...)
	for _, t := range texts {
		for _, u := range urlPattern.FindAllString(t, -1) {
			u = strings.TrimRight(u, ".,;:!?")
			if !supplied[brief.NormalizeURL(u)] {
				problems = append(problems, fmt.Errorf("text references unknown source %s", u))
			}
		}
	}
	if len(problems) > 0 {
		return r.fail(failure.SynthesisContractViolation, StateValidate, errors.Join(problems...))
	}

	methodology := strings.TrimSpace(r.synth.Methodology)
	if methodology == "" {
		methodology = fmt.Sprintf("Planned %d search queries, reviewed %d candidate sources and summarized %d of them.",
			len(r.plan.Steps), len(r.candidates), len(r.summaries))
	}

	now := e.opts.Now()
	r.result = &brief.FinalBrief{
		BriefID:          r.id,
		UserID:           r.req.UserID,
		Topic:            r.topic,
		Depth:            r.req.Depth,
		ExecutiveSummary: summary,
		KeyFindings:      findings,
		Methodology:      methodology,
		Recommendations:  recommendations,
		Limitations:      cleanStrings(r.synth.Limitations),
		Sources:          r.summaries,
		SkippedSources:   r.skipped,
		Warnings:         r.warnings,
		TokenUsage:       r.tokens,
		GeneratedAt:      now.UTC(),
		ExecutionTime:    now.Sub(r.started).Seconds(),
		Partial:          r.partial,
	}
	return StateDone
}

// persist hands every finished brief to the store, with or without a user.
// Failure leaves the brief intact and adds a warning.
func (e *Engine) persist(r *run) {
	if e.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.parent), persistTimeout)
	defer cancel()

	if err := e.store.SaveBrief(ctx, r.req.UserID, r.result); err != nil {
		r.log.Warn("saving brief failed", zap.String("user_id", r.req.UserID), zap.Error(err))
		r.result.Warnings = append(r.result.Warnings, "brief was not saved to history")
	}
}

func (r *run) request() brief.Request {
	req := r.req
	req.Topic = r.topic
	return req
}

func cleanStrings(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
