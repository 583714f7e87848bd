package index

import (
	"fmt"
	"time"

	"FlowRadar/internal/config"
	"FlowRadar/internal/model"
)

// Index selection strategies.
const (
	StrategyWindow   = "window"
	StrategyToday    = "today"
	StrategyWildcard = "wildcard"
)

// Resolver maps a report window onto the day-partitioned index names to query.
type Resolver struct {
	prefix   string
	layout   string
	strategy string
	maxDays  int
	loc      *time.Location
	now      func() time.Time
}

// NewResolver creates a resolver from the index configuration.
func NewResolver(cfg config.IndexConfig) (*Resolver, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid index timezone: %w", err)
	}
	switch cfg.Strategy {
	case StrategyWindow, StrategyToday, StrategyWildcard:
	default:
		return nil, fmt.Errorf("unknown index strategy: '%s'", cfg.Strategy)
	}
	return &Resolver{
		prefix:   cfg.Prefix,
		layout:   cfg.DateLayout,
		strategy: cfg.Strategy,
		maxDays:  cfg.MaxDays,
		loc:      loc,
		now:      time.Now,
	}, nil
}

// Name returns the index holding records of the given day.
func (r *Resolver) Name(day time.Time) string {
	return fmt.Sprintf("%s-%s", r.prefix, day.In(r.loc).Format(r.layout))
}

// Resolve returns the indices to search for the window.
//
// The window strategy yields one index per calendar day touched by the window, so a
// window crossing midnight reads both days. Past maxDays days it reads the wildcard
// pattern so the search URL stays short.
func (r *Resolver) Resolve(w model.TimeWindow) []string {
	switch r.strategy {
	case StrategyToday:
		return []string{r.Name(r.now())}
	case StrategyWildcard:
		return []string{r.prefix + "-*"}
	}

	start := w.StartTime().In(r.loc)
	end := w.EndTime().In(r.loc)
	day := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, r.loc)
	last := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, r.loc)

	var names []string
	for !day.After(last) {
		if r.maxDays > 0 && len(names) == r.maxDays {
			return []string{r.prefix + "-*"}
		}
		names = append(names, r.Name(day))
		day = day.AddDate(0, 0, 1)
	}
	return names
}
