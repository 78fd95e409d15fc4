package api

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"hackonomics/internal/apperr"
	"hackonomics/internal/model"
)

const (
	pathCalendarInit  = "/calendar/init/"
	pathCalendarMe    = "/calendar/me/"
	pathEvents        = "/calendar/events/"
	pathEventsCreate  = "/calendar/events/create/"
	pathCategories    = "/calendar/categories/"
	pathCalendarOAuth = "/calendar/oauth/login/"
)

// InitCalendar asks the backend to provision the user's calendar. Callers
// usually ignore the error: the calendar may already exist.
func (c *Client) InitCalendar(ctx context.Context) error {
	return c.post(ctx, pathCalendarInit, struct{}{}, nil)
}

// CalendarConnected reports whether the user has linked an external
// calendar. A 404 means "not connected" and is not an error.
func (c *Client) CalendarConnected(ctx context.Context) (bool, error) {
	err := c.get(ctx, pathCalendarMe, nil)
	if err == nil {
		return true, nil
	}
	if ae, ok := apperr.As(err); ok && ae.Status == http.StatusNotFound {
		return false, nil
	}
	return false, err
}

// CalendarOAuthURL is where the browser goes to link a Google calendar.
func (c *Client) CalendarOAuthURL() string {
	return c.baseURL + pathCalendarOAuth
}

// Events lists the user's calendar events.
func (c *Client) Events(ctx context.Context) ([]model.Event, error) {
	var out []model.Event
	if err := c.get(ctx, pathEvents, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []model.Event{}
	}
	return out, nil
}

// ValidateEvent checks an event before it is sent.
func ValidateEvent(in model.EventInput) error {
	if strings.TrimSpace(in.Title) == "" {
		return apperr.Validation("Please enter a title")
	}
	if in.StartAt.IsZero() || in.EndAt.IsZero() {
		return apperr.Validation("Please enter a start and end time")
	}
	if in.EndAt.Before(in.StartAt) {
		return apperr.Validation("The event cannot end before it starts")
	}
	if in.EstimatedCost != nil && *in.EstimatedCost < 0 {
		return apperr.Validation("Estimated cost cannot be negative")
	}
	return nil
}

func normalizeEvent(in model.EventInput) model.EventInput {
	in.Title = strings.TrimSpace(in.Title)
	in.StartAt = in.StartAt.UTC()
	in.EndAt = in.EndAt.UTC()
	return in
}

// CreateEvent creates an event. The returned event is nil when the backend
// answers without a body.
func (c *Client) CreateEvent(ctx context.Context, in model.EventInput) (*model.Event, error) {
	if err := ValidateEvent(in); err != nil {
		return nil, err
	}
	var out *model.Event
	if err := c.post(ctx, pathEventsCreate, normalizeEvent(in), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateEvent replaces an event.
func (c *Client) UpdateEvent(ctx context.Context, id string, in model.EventInput) (*model.Event, error) {
	if id == "" {
		return nil, apperr.Validation("Missing event id")
	}
	if err := ValidateEvent(in); err != nil {
		return nil, err
	}
	var out *model.Event
	if err := c.put(ctx, pathEvents+url.PathEscape(id)+"/", normalizeEvent(in), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteEvent removes an event.
func (c *Client) DeleteEvent(ctx context.Context, id string) error {
	if id == "" {
		return apperr.Validation("Missing event id")
	}
	return c.delete(ctx, pathEvents+url.PathEscape(id)+"/")
}

// Categories lists event categories.
func (c *Client) Categories(ctx context.Context) ([]model.Category, error) {
	var out []model.Category
	if err := c.get(ctx, pathCategories, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []model.Category{}
	}
	return out, nil
}

type categoryBody struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

// CreateCategory creates a category. An empty color gets the default.
func (c *Client) CreateCategory(ctx context.Context, name, color string) (*model.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Validation("Please enter a category name")
	}
	if color == "" {
		color = model.DefaultColor
	}
	var out *model.Category
	if err := c.post(ctx, pathCategories, categoryBody{Name: name, Color: color}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteCategory removes a category.
func (c *Client) DeleteCategory(ctx context.Context, id string) error {
	if id == "" {
		return apperr.Validation("Missing category id")
	}
	return c.delete(ctx, pathCategories+url.PathEscape(id)+"/")
}
