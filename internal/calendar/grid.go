// Package calendar computes the fixed 6x7 month grid shown by the calendar
// view and places events onto its day cells.
//
// All arithmetic is done in UTC. Inputs in other locations are converted
// first, so the same instants always land on the same cells regardless of
// the machine's local zone.
package calendar

import (
	"fmt"
	"time"

	"hackonomics/internal/model"
)

// GridCells is the number of cells in a month grid (6 weeks x 7 days).
const GridCells = 42

// Segment is the part of an event's bar that falls on one day cell.
type Segment struct {
	Event       model.Event `json:"event"`
	IsStart     bool        `json:"is_start"`
	IsEnd       bool        `json:"is_end"`
	IsSingleDay bool        `json:"is_single_day"`
}

// DayCell is one square of the grid.
type DayCell struct {
	Date           time.Time `json:"date"`
	Day            int       `json:"day"`
	InCurrentMonth bool      `json:"in_current_month"`
	IsToday        bool      `json:"is_today"`
	Segments       []Segment `json:"segments"`
}

// Grid is a computed month layout.
type Grid struct {
	Month     time.Time          `json:"month"`
	WeekStart time.Weekday       `json:"week_start"`
	Cells     [GridCells]DayCell `json:"cells"`
}

// Options tweaks the layout. The zero value lays weeks out Sunday first.
type Options struct {
	WeekStart time.Weekday
}

// BuildMonthGrid lays out the month containing ref, using the current time
// for the today marker.
func BuildMonthGrid(ref time.Time, events []model.Event) Grid {
	return BuildMonthGridAt(ref, events, time.Now(), Options{})
}

// BuildMonthGridAt is BuildMonthGrid with an explicit clock and options.
// It has no side effects: identical arguments produce identical grids.
func BuildMonthGridAt(ref time.Time, events []model.Event, now time.Time, opts Options) Grid {
	month := StartOfMonth(ref)
	year, mon := month.Year(), month.Month()

	daysInMonth := DaysIn(year, mon)
	// Day 0 of a month normalizes to the last day of the previous one.
	daysInPrevMonth := time.Date(year, mon, 0, 0, 0, 0, 0, time.UTC).Day()
	leading := (int(month.Weekday()) - int(opts.WeekStart) + 7) % 7

	today := floorUTC(now)

	g := Grid{Month: month, WeekStart: opts.WeekStart}
	i := 0

	for n := daysInPrevMonth - leading + 1; n <= daysInPrevMonth; n++ {
		g.Cells[i] = DayCell{
			Date:     time.Date(year, mon-1, n, 0, 0, 0, 0, time.UTC),
			Day:      n,
			Segments: []Segment{},
		}
		i++
	}

	for day := 1; day <= daysInMonth; day++ {
		cellDate := time.Date(year, mon, day, 0, 0, 0, 0, time.UTC)
		g.Cells[i] = DayCell{
			Date:           cellDate,
			Day:            day,
			InCurrentMonth: true,
			IsToday:        cellDate.Equal(today),
			Segments:       segmentsFor(cellDate, events),
		}
		i++
	}

	for n := 1; i < GridCells; n++ {
		g.Cells[i] = DayCell{
			Date:     time.Date(year, mon+1, n, 0, 0, 0, 0, time.UTC),
			Day:      n,
			Segments: []Segment{},
		}
		i++
	}

	return g
}

// segmentsFor returns the segments of every event hosted by cellDate, in
// input order. Events whose end precedes their start never match. The
// result is never nil.
func segmentsFor(cellDate time.Time, events []model.Event) []Segment {
	out := []Segment{}
	for _, ev := range events {
		start := floorUTC(ev.StartAt)
		end := floorUTC(ev.EndAt)
		if cellDate.Before(start) || cellDate.After(end) {
			continue
		}
		out = append(out, Segment{
			Event:       ev,
			IsStart:     start.Equal(cellDate),
			IsEnd:       end.Equal(cellDate),
			IsSingleDay: start.Equal(end),
		})
	}
	return out
}

// Weeks returns the grid as six rows of seven cells.
func (g Grid) Weeks() [][]DayCell {
	rows := make([][]DayCell, 0, GridCells/7)
	for r := 0; r < GridCells; r += 7 {
		rows = append(rows, g.Cells[r:r+7])
	}
	return rows
}

// Weekdays returns the short header labels in grid column order.
func (g Grid) Weekdays() []string {
	out := make([]string, 7)
	for i := range out {
		out[i] = time.Weekday((int(g.WeekStart) + i) % 7).String()[:3]
	}
	return out
}

// Today returns the cell marked as today, if the month contains it.
func (g Grid) Today() (DayCell, bool) {
	for _, c := range g.Cells {
		if c.IsToday {
			return c, true
		}
	}
	return DayCell{}, false
}

// StartOfMonth truncates t to the first instant of its UTC month.
func StartOfMonth(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// PrevMonth returns the first instant of the UTC month before t's.
func PrevMonth(t time.Time) time.Time {
	return StartOfMonth(t).AddDate(0, -1, 0)
}

// NextMonth returns the first instant of the UTC month after t's.
func NextMonth(t time.Time) time.Time {
	return StartOfMonth(t).AddDate(0, 1, 0)
}

// MonthTitle formats the month as "March 2024".
func MonthTitle(t time.Time) string {
	return StartOfMonth(t).Format("January 2006")
}

// ParseMonth parses "2006-01" into the first instant of that UTC month.
func ParseMonth(s string) (time.Time, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("calendar: invalid month %q: %w", s, err)
	}
	return t, nil
}

// DaysIn reports the number of days of the given month (28-31).
func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// floorUTC drops the time of day, keeping the UTC calendar date.
func floorUTC(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// MonthRange returns the half-open UTC instant range covered by the grid,
// from the first leading cell to the end of the last trailing cell.
func (g Grid) MonthRange() (time.Time, time.Time) {
	return g.Cells[0].Date, g.Cells[GridCells-1].Date.AddDate(0, 0, 1)
}
