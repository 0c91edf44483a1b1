package mailbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/teemow/mailmcp/internal/instrumentation"
	"github.com/teemow/mailmcp/internal/logging"
)

const (
	// capabilityPartial is the RFC 9394 extension adding RETURN (PARTIAL).
	// ESEARCH alone does not imply it.
	capabilityPartial = "PARTIAL"

	StrategyExtended = "extended"
	StrategyFallback = "fallback"
)

// errNotApplicable signals that a strategy declined to run. It never
// reaches callers.
var errNotApplicable = errors.New("strategy not applicable")

// strategy resolves the requested window of ids for a compiled query
// against a selected folder.
type strategy func(ctx context.Context, s *boundSession, query string, c SearchCriteria) ([]string, error)

// StrategyObserver is told which strategy produced a page.
type StrategyObserver interface {
	RecordSearchStrategy(ctx context.Context, strategy, outcome string)
}

// paginator picks the page of ids a search should return.
type paginator struct {
	logger   *slog.Logger
	observer StrategyObserver
}

func (p *paginator) paginate(ctx context.Context, s *boundSession, query string, c SearchCriteria) ([]string, error) {
	return firstOf(p.extended, p.fallback, p.onFallback)(ctx, s, query, c)
}

// firstOf tries primary once and answers with fallback when primary declines
// or fails. Only primary errors are swallowed; fallback errors surface.
func firstOf(primary, fallback strategy, onFallback func(context.Context, error)) strategy {
	return func(ctx context.Context, s *boundSession, query string, c SearchCriteria) ([]string, error) {
		ids, err := primary(ctx, s, query, c)
		if err == nil {
			return ids, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		onFallback(ctx, err)
		return fallback(ctx, s, query, c)
	}
}

func (p *paginator) onFallback(ctx context.Context, err error) {
	if errors.Is(err, errNotApplicable) {
		return
	}
	p.logger.Warn("extended search failed, using client-side paging", logging.Err(err))
	if p.observer != nil {
		p.observer.RecordSearchStrategy(ctx, StrategyExtended, instrumentation.OutcomeFailed)
	}
}

// extended asks the server for the window directly. It only applies to
// later pages on servers advertising PARTIAL.
func (p *paginator) extended(ctx context.Context, s *boundSession, query string, c SearchCriteria) ([]string, error) {
	if c.startFrom == 0 {
		return nil, errNotApplicable
	}
	caps, err := s.capability(ctx)
	if err != nil {
		return nil, fmt.Errorf("capability: %w", err)
	}
	if !hasCapability(caps, capabilityPartial) {
		return nil, errNotApplicable
	}

	window := partialWindow(c)
	ids, err := s.searchPartial(ctx, window, query)
	if err != nil {
		return nil, fmt.Errorf("partial search %s: %w", window, err)
	}
	if c.direction == DirectionNewest {
		reverse(ids)
	}
	if len(ids) > c.maxResults {
		ids = ids[:c.maxResults]
	}

	p.logger.Debug("page served", slog.String(logging.KeyStrategy, StrategyExtended), slog.String("window", window), logging.Count(len(ids)))
	instrumentation.AnnotatePage(ctx, StrategyExtended, len(ids))
	if p.observer != nil {
		p.observer.RecordSearchStrategy(ctx, StrategyExtended, instrumentation.OutcomeServed)
	}
	return ids, nil
}

// fallback searches the whole match set and cuts the window locally.
func (p *paginator) fallback(ctx context.Context, s *boundSession, query string, c SearchCriteria) ([]string, error) {
	ids, err := s.search(ctx, query)
	if err != nil {
		return nil, err
	}
	if p.observer != nil {
		p.observer.RecordSearchStrategy(ctx, StrategyFallback, instrumentation.OutcomeServed)
	}
	page := window(ids, c)
	p.logger.Debug("page served", slog.String(logging.KeyStrategy, StrategyFallback), logging.Count(len(page)))
	instrumentation.AnnotatePage(ctx, StrategyFallback, len(page))
	return page, nil
}

// window orders ids (ascending on input) per direction and slices the page.
func window(ids []string, c SearchCriteria) []string {
	ordered := make([]string, len(ids))
	copy(ordered, ids)
	if c.direction == DirectionNewest {
		reverse(ordered)
	}
	if c.startFrom >= len(ordered) {
		return []string{}
	}
	end := c.startFrom + c.maxResults
	if end > len(ordered) {
		end = len(ordered)
	}
	return ordered[c.startFrom:end]
}

// partialWindow renders the 1-based PARTIAL range for the page. Newest
// pages count from the end of the match set (RFC 9394 negative ranges).
func partialWindow(c SearchCriteria) string {
	first := c.startFrom + 1
	last := c.startFrom + c.maxResults
	if c.direction == DirectionNewest {
		return fmt.Sprintf("-%d:-%d", first, last)
	}
	return fmt.Sprintf("%d:%d", first, last)
}

func hasCapability(caps []string, name string) bool {
	for _, c := range caps {
		if strings.EqualFold(c, name) {
			return true
		}
	}
	return false
}

func reverse(ids []string) {
	for i, j := 0, len(ids)-1; i < j; i, j = i+1, j-1 {
		ids[i], ids[j] = ids[j], ids[i]
	}
}
