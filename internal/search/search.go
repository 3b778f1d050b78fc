// Package search discovers candidate sources for a query.
package search

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/tavleenbajwa8/research-brief-generator/internal/brief"
	"github.com/tavleenbajwa8/research-brief-generator/internal/config"
)

// Searcher returns candidates in rank order. DiscoveryRank is the zero-based
// position in the returned slice.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]brief.SourceCandidate, error)
}

// Named is implemented by backends that report a display name.
type Named interface {
	Name() string
}

// Multi queries several backends in order and merges their results.
type Multi struct {
	backends []Searcher
	logger   *zap.Logger
}

// NewMulti combines backends. Earlier backends win URL collisions.
func NewMulti(logger *zap.Logger, backends ...Searcher) *Multi {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Multi{backends: backends, logger: logger}
}

// Search interleaves backend results so that each backend contributes to the
// first maxResults candidates. A failing backend is logged and skipped
// unless every backend fails, in which case the first error is returned.
func (m *Multi) Search(ctx context.Context, query string, maxResults int) ([]brief.SourceCandidate, error) {
	var lists [][]brief.SourceCandidate
	var errs []error
	for _, b := range m.backends {
		results, err := b.Search(ctx, query, maxResults)
		if err != nil {
			m.logger.Warn("search backend failed", zap.String("backend", nameOf(b)), zap.String("query", query), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		lists = append(lists, results)
	}
	if len(lists) == 0 && len(errs) > 0 {
		return nil, errs[0]
	}
	return brief.MergeCandidates(lists, maxResults), nil
}

// FromConfig builds the configured backends, skipping those that are not usable.
func FromConfig(cfg config.Search, logger *zap.Logger) (*Multi, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var backends []Searcher
	for _, name := range cfg.Backends {
		switch strings.ToLower(name) {
		case "duckduckgo", "ddg":
			backends = append(backends, NewDuckDuckGo(cfg.Timeout, cfg.QPS))
		case "newsapi":
			c := NewNewsAPIClient(cfg.NewsAPI.APIKeyEnv, cfg.NewsAPI.DaysBack, cfg.Timeout)
			if !c.IsConfigured() {
				logger.Warn("NewsAPI key not set, backend disabled", zap.String("env", cfg.NewsAPI.APIKeyEnv))
				continue
			}
			backends = append(backends, c)
		case "feed", "rss":
			if cfg.Feed.URLTemplate == "" {
				return nil, errors.New("search.feed.url_template is required for the feed backend")
			}
			backends = append(backends, NewFeedSearch(cfg.Feed.URLTemplate, cfg.Timeout))
		default:
			return nil, fmt.Errorf("unknown search backend %q", name)
		}
	}
	if len(backends) == 0 {
		return nil, errors.New("no search backends available")
	}
	return NewMulti(logger, backends...), nil
}

func nameOf(s Searcher) string {
	if n, ok := s.(Named); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", s)
}

func rank(cands []brief.SourceCandidate) []brief.SourceCandidate {
	for i := range cands {
		cands[i].DiscoveryRank = i
	}
	return cands
}
