package ics

import (
	"context"
	"errors"
	"sync"
	"time"

	appLog "hackonomics/internal/log"
	"hackonomics/internal/model"
)

// Overlay keeps the last parsed state of every configured feed and expands
// it on demand.
type Overlay struct {
	fetcher *Fetcher
	sources []Source

	mu      sync.RWMutex
	parsed  []ParsedEvent
	updated time.Time
}

// NewOverlay returns an empty overlay; call Refresh to populate it.
func NewOverlay(f *Fetcher, sources []Source) *Overlay {
	return &Overlay{fetcher: f, sources: sources}
}

// Sources returns the configured feeds.
func (o *Overlay) Sources() []Source { return o.sources }

// Refresh fetches and parses every feed. A feed that fails keeps nothing
// from this round; the others are still replaced. The returned error joins
// the per-feed failures.
func (o *Overlay) Refresh(ctx context.Context) error {
	if len(o.sources) == 0 {
		return nil
	}

	results, errs := o.fetcher.FetchAll(ctx, o.sources)
	parsed := make([]ParsedEvent, 0)
	for _, res := range results {
		evs, err := ParseICS(res.Source, res.Body)
		if err != nil {
			appLog.Error("ics parse failed", err, "id", res.Source.ID)
			errs = append(errs, err)
			continue
		}
		parsed = append(parsed, evs...)
	}

	o.mu.Lock()
	o.parsed = parsed
	o.updated = time.Now().UTC()
	o.mu.Unlock()

	appLog.Info("ics overlay refreshed", "sources", len(o.sources), "events", len(parsed), "errors", len(errs))
	return errors.Join(errs...)
}

// Updated is when Refresh last completed; zero if never.
func (o *Overlay) Updated() time.Time {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.updated
}

// Events expands the overlay within [start, end].
func (o *Overlay) Events(start, end time.Time) []model.Event {
	o.mu.RLock()
	parsed := o.parsed
	o.mu.RUnlock()

	res, err := ExpandEvents(parsed, ExpandConfig{RangeStart: start, RangeEnd: end})
	if err != nil {
		appLog.Warn("ics expand failed", "reason", err.Error())
		return nil
	}
	return res.Events
}
