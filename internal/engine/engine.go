// Package engine runs the research brief pipeline as an explicit state machine.
package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tavleenbajwa8/research-brief-generator/internal/brief"
	"github.com/tavleenbajwa8/research-brief-generator/internal/config"
	"github.com/tavleenbajwa8/research-brief-generator/internal/failure"
	"github.com/tavleenbajwa8/research-brief-generator/internal/fetch"
	"github.com/tavleenbajwa8/research-brief-generator/internal/llm"
	"github.com/tavleenbajwa8/research-brief-generator/internal/metrics"
	"github.com/tavleenbajwa8/research-brief-generator/internal/retry"
	"github.com/tavleenbajwa8/research-brief-generator/internal/schema"
)

// ModelClient invokes a model by key and returns schema-valid output.
type ModelClient interface {
	Invoke(ctx context.Context, key, prompt string, shape schema.Shape) (*llm.Result, error)
}

// Searcher returns ranked candidates for a query.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]brief.SourceCandidate, error)
}

// Fetcher retrieves the readable text of a page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*fetch.Result, error)
}

// ContextStore reads user history and persists finished briefs.
type ContextStore interface {
	GetContext(ctx context.Context, userID string) (*brief.UserContext, error)
	SaveBrief(ctx context.Context, userID string, b *brief.FinalBrief) error
}

// Options tune an Engine. Zero fields take the defaults from DefaultOptions.
type Options struct {
	PlanningModel  string
	SummaryModel   string
	SynthesisModel string

	Limits             brief.Limits
	Workers            int
	MinSources         int
	MaxResultsPerQuery int
	MaxCandidates      int
	SourcesPerDepth    int
	MinContentChars    int

	// Deadline applies when RunBrief is called without one.
	Deadline time.Duration
	// SynthesisReserve is the fraction of the deadline kept free for
	// synthesis; source processing stops when the rest is used up.
	SynthesisReserve float64

	Retry retry.Policy

	Logger *zap.Logger
	Now    func() time.Time
	NewID  func() string

	// OnTransition is called on every state change.
	OnTransition func(from, to State)
}

// DefaultOptions returns the shipped engine settings.
func DefaultOptions() Options {
	return Options{
		PlanningModel:      "reasoning",
		SummaryModel:       "extraction",
		SynthesisModel:     "reasoning",
		Limits:             brief.DefaultLimits,
		Workers:            5,
		MinSources:         2,
		MaxResultsPerQuery: 10,
		MaxCandidates:      10,
		SourcesPerDepth:    2,
		MinContentChars:    200,
		Deadline:           3 * time.Minute,
		SynthesisReserve:   0.25,
		Retry:              retry.DefaultPolicy(),
	}
}

// OptionsFromConfig maps configuration onto engine options.
func OptionsFromConfig(cfg *config.Config) Options {
	o := DefaultOptions()
	o.PlanningModel = cfg.Routing.Planning
	o.SummaryModel = cfg.Routing.Summarization
	o.SynthesisModel = cfg.Routing.Synthesis
	o.Limits = brief.Limits{
		MinDepth:    cfg.Engine.MinDepth,
		MaxDepth:    cfg.Engine.MaxDepth,
		MaxTopicLen: cfg.Engine.MaxTopicLen,
	}
	o.Workers = cfg.Engine.Workers
	o.MinSources = cfg.Engine.MinSources
	o.MaxResultsPerQuery = cfg.Search.MaxResultsPerQuery
	o.MaxCandidates = cfg.Engine.MaxCandidates
	o.SourcesPerDepth = cfg.Engine.SourcesPerDepth
	o.SynthesisReserve = cfg.Engine.SynthesisReserve
	o.MinContentChars = cfg.Fetch.MinContentChars
	o.Deadline = cfg.Engine.Deadline
	o.Retry = retry.Policy{
		Transient: cfg.Retry.Transient,
		RateLimit: cfg.Retry.RateLimit,
		Repair:    cfg.Retry.Repair,
		BaseDelay: cfg.Retry.BaseDelay,
		MaxDelay:  cfg.Retry.MaxDelay,
		Cooldown:  cfg.Retry.Cooldown,
	}
	return o
}

// Engine generates briefs. It is safe for concurrent use; each RunBrief call
// owns its own run state.
type Engine struct {
	model    ModelClient
	searcher Searcher
	fetcher  Fetcher
	store    ContextStore
	opts     Options
	logger   *zap.Logger
}

// New creates an engine. store may be nil, in which case follow-up requests
// run without context and briefs are not persisted.
func New(model ModelClient, searcher Searcher, fetcher Fetcher, store ContextStore, opts Options) *Engine {
	def := DefaultOptions()
	if opts.PlanningModel == "" {
		opts.PlanningModel = def.PlanningModel
	}
	if opts.SummaryModel == "" {
		opts.SummaryModel = def.SummaryModel
	}
	if opts.SynthesisModel == "" {
		opts.SynthesisModel = def.SynthesisModel
	}
	if opts.Limits == (brief.Limits{}) {
		opts.Limits = def.Limits
	}
	if opts.Workers <= 0 {
		opts.Workers = def.Workers
	}
	if opts.MinSources <= 0 {
		opts.MinSources = def.MinSources
	}
	if opts.MaxResultsPerQuery <= 0 {
		opts.MaxResultsPerQuery = def.MaxResultsPerQuery
	}
	if opts.Deadline <= 0 {
		opts.Deadline = def.Deadline
	}
	if opts.SynthesisReserve <= 0 || opts.SynthesisReserve >= 1 {
		opts.SynthesisReserve = def.SynthesisReserve
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	opts.Retry.Logger = opts.Logger
	if opts.Retry.OnRetry == nil {
		opts.Retry.OnRetry = func(op string, kind failure.Kind, _ int, _ time.Duration) {
			metrics.CallRetries.WithLabelValues(op, string(kind)).Inc()
		}
	}

	return &Engine{
		model:    model,
		searcher: searcher,
		fetcher:  fetcher,
		store:    store,
		opts:     opts,
		logger:   opts.Logger,
	}
}

// RunBrief executes one request to completion. It returns either a brief or
// a *failure.RunError. A zero deadline uses the configured default.
func (e *Engine) RunBrief(ctx context.Context, req brief.Request, deadline time.Duration) (*brief.FinalBrief, error) {
	if deadline <= 0 {
		deadline = e.opts.Deadline
	}

	r := e.newRun(ctx, req, deadline)
	defer r.cancel()

	metrics.RunsStarted.Inc()
	e.drive(r)

	metrics.RunDuration.Observe(e.opts.Now().Sub(r.started).Seconds())
	if r.err != nil {
		metrics.RunsCompleted.WithLabelValues(string(r.err.Code), "false").Inc()
		r.log.Warn("brief run failed",
			zap.String("code", string(r.err.Code)),
			zap.String("stage", r.err.Stage),
			zap.Error(r.err.Err),
		)
		return nil, r.err
	}

	metrics.RunsCompleted.WithLabelValues("ok", boolLabel(r.result.Partial)).Inc()
	r.log.Info("brief run completed",
		zap.Int("sources", len(r.result.Sources)),
		zap.Int("skipped", len(r.result.SkippedSources)),
		zap.Bool("partial", r.result.Partial),
		zap.Float64("execution_time", r.result.ExecutionTime),
	)
	return r.result, nil
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
