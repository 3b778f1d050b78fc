package llm

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/tavleenbajwa8/research-brief-generator/internal/config"
	"github.com/tavleenbajwa8/research-brief-generator/internal/failure"
	"github.com/tavleenbajwa8/research-brief-generator/internal/schema"
)

// Result is a schema-valid model output.
type Result struct {
	Data   map[string]any
	Tokens int
}

type route struct {
	provider    Provider
	maxTokens   int
	temperature float64
}

// Router resolves model keys to providers and validates their output.
type Router struct {
	routes map[string]route
	logger *zap.Logger
}

// NewRouter creates an empty router.
func NewRouter(logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{routes: make(map[string]route), logger: logger}
}

// NewRouterFromConfig builds one provider per configured model key.
func NewRouterFromConfig(models map[string]config.Model, logger *zap.Logger) (*Router, error) {
	r := NewRouter(logger)
	for key, m := range models {
		p, err := NewProvider(m.Provider, m.Model, m.BaseURL, m.APIKeyEnv)
		if err != nil {
			return nil, fmt.Errorf("model %q: %w", key, err)
		}
		r.Register(key, p, m.MaxTokens, m.Temperature)
	}
	return r, nil
}

// Register binds key to a provider.
func (r *Router) Register(key string, p Provider, maxTokens int, temperature float64) {
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	r.routes[key] = route{provider: p, maxTokens: maxTokens, temperature: temperature}
}

// Keys lists the registered model keys.
func (r *Router) Keys() []string {
	keys := make([]string, 0, len(r.routes))
	for k := range r.routes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Provider returns the provider registered for key.
func (r *Router) Provider(key string) (Provider, bool) {
	rt, ok := r.routes[key]
	return rt.provider, ok
}

// Invoke makes one call to the model behind key and validates the reply
// against shape. Malformed or non-conforming output is a ValidationFailed
// error carrying the violations.
func (r *Router) Invoke(ctx context.Context, key, prompt string, shape schema.Shape) (*Result, error) {
	op := "model:" + key
	rt, ok := r.routes[key]
	if !ok {
		return nil, failure.NewCallError(failure.Fatal, op, fmt.Errorf("unknown model key %q", key))
	}

	completion, err := rt.provider.Generate(ctx, Request{
		Prompt:      prompt,
		MaxTokens:   rt.maxTokens,
		Temperature: rt.temperature,
	})
	if err != nil {
		return nil, err
	}

	data, err := ParseJSONResponse(completion.Text)
	if err != nil {
		r.logger.Debug("model returned unparseable output", zap.String("model_key", key), zap.Error(err))
		return nil, &failure.CallError{
			Kind:       failure.ValidationFailed,
			Op:         op,
			Violations: []string{"response: " + err.Error()},
			Err:        err,
		}
	}

	if vs := shape.Validate(data); len(vs) > 0 {
		r.logger.Debug("model output failed validation",
			zap.String("model_key", key),
			zap.String("shape", shape.Name),
			zap.Int("violations", len(vs)),
		)
		return nil, &failure.CallError{
			Kind:       failure.ValidationFailed,
			Op:         op,
			Violations: schema.Strings(vs),
		}
	}

	return &Result{Data: data, Tokens: completion.Tokens}, nil
}
