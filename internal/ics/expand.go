package ics

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	appLog "hackonomics/internal/log"
	"hackonomics/internal/model"
)

const defaultMaxOccurrencesPerEvent = 1000

// ExpandConfig bounds an expansion.
type ExpandConfig struct {
	// RangeStart / RangeEnd is the window of interest, both inclusive.
	RangeStart time.Time
	RangeEnd   time.Time

	// MaxOccurrencesPerEvent caps one RRULE. Zero means the default.
	MaxOccurrencesPerEvent int
}

// ExpandResult is the expanded overlay.
type ExpandResult struct {
	Events []model.Event
	// TruncatedEvents lists UIDs that hit MaxOccurrencesPerEvent.
	TruncatedEvents []string
}

// ExpandEvents turns parsed VEVENTs into concrete UTC events within the
// range, applying RRULE, EXDATE and RECURRENCE-ID overrides. All-day events
// end on the last second of their final day so the span is inclusive.
// The result is ordered by start, then id.
func ExpandEvents(events []ParsedEvent, cfg ExpandConfig) (ExpandResult, error) {
	var result ExpandResult

	if cfg.RangeEnd.Before(cfg.RangeStart) {
		return result, errors.New("expand: RangeEnd is before RangeStart")
	}
	if cfg.MaxOccurrencesPerEvent <= 0 {
		cfg.MaxOccurrencesPerEvent = defaultMaxOccurrencesPerEvent
	}

	type key struct{ source, uid string }
	bases := make(map[key][]ParsedEvent)
	overrides := make(map[key][]ParsedEvent)
	for _, ev := range events {
		k := key{ev.Source.ID, ev.UID}
		if ev.IsOverride() {
			overrides[k] = append(overrides[k], ev)
		} else {
			bases[k] = append(bases[k], ev)
		}
	}

	out := make([]model.Event, 0)
	for k, evs := range bases {
		for _, ev := range evs {
			occ, hitCap := expandEvent(ev, overrides[k], cfg)
			out = append(out, occ...)
			if hitCap {
				result.TruncatedEvents = append(result.TruncatedEvents, ev.UID)
				appLog.Warn("ics expansion truncated", "id", ev.Source.ID, "uid", ev.UID, "cap", cfg.MaxOccurrencesPerEvent)
			}
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartAt.Equal(out[j].StartAt) {
			return out[i].StartAt.Before(out[j].StartAt)
		}
		return out[i].ID < out[j].ID
	})
	sort.Strings(result.TruncatedEvents)

	result.Events = out
	return result, nil
}

func expandEvent(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) ([]model.Event, bool) {
	if ev.RawRRule == "" {
		if !overlaps(ev.Start, ev.End, cfg.RangeStart, cfg.RangeEnd) {
			return nil, false
		}
		return []model.Event{toEvent(ev, ev.Start, ev.End)}, false
	}
	return expandRecurring(ev, overrides, cfg)
}

func expandRecurring(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) ([]model.Event, bool) {
	r, err := rrule.StrToRRule(ev.RawRRule)
	if err != nil {
		appLog.Error("ics rrule parse failed", err, "id", ev.Source.ID, "uid", ev.UID, "rrule", ev.RawRRule)
		return nil, false
	}
	r.DTStart(ev.Start)

	set := &rrule.Set{}
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	// Widen the window by the event length so occurrences that started
	// before RangeStart but are still running are included.
	dur := ev.End.Sub(ev.Start)
	loc := ev.Start.Location()
	starts := set.Between(cfg.RangeStart.Add(-dur).In(loc), cfg.RangeEnd.In(loc), true)

	hitCap := false
	if len(starts) > cfg.MaxOccurrencesPerEvent {
		starts = starts[:cfg.MaxOccurrencesPerEvent]
		hitCap = true
	}

	out := make([]model.Event, 0, len(starts))
	for _, s := range starts {
		if o, ok := findOverride(overrides, s); ok {
			if overlaps(o.Start, o.End, cfg.RangeStart, cfg.RangeEnd) {
				out = append(out, toEventWithID(o, s, o.Start, o.End))
			}
			continue
		}
		out = append(out, toEvent(ev, s, s.Add(dur)))
	}
	return out, hitCap
}

// findOverride finds the override whose RECURRENCE-ID is the instance start.
func findOverride(overrides []ParsedEvent, start time.Time) (ParsedEvent, bool) {
	for _, o := range overrides {
		if o.Recurrence != nil && o.Recurrence.Equal(start) {
			return o, true
		}
	}
	return ParsedEvent{}, false
}

func toEvent(ev ParsedEvent, start, end time.Time) model.Event {
	return toEventWithID(ev, start, start, end)
}

// toEventWithID builds the event for the instance identified by instant.
// An override keeps the id of the instance it replaces.
func toEventWithID(ev ParsedEvent, instant, start, end time.Time) model.Event {
	start, end = start.UTC(), end.UTC()
	if ev.AllDay && end.After(start) {
		end = end.Add(-time.Second)
	}
	return model.Event{
		ID:      fmt.Sprintf("%s:%s@%s", ev.Source.ID, ev.UID, instant.UTC().Format(time.RFC3339)),
		Title:   ev.Summary,
		StartAt: start,
		EndAt:   end,
		Color:   ev.Source.Color,
		Source:  ev.Source.ID,
	}
}

func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return !aEnd.Before(bStart) && !bEnd.Before(aStart)
}
