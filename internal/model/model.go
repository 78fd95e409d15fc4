package model

import "time"

// DefaultColor is used for events and categories that carry no color.
const DefaultColor = "#3b82f6"

// Event is a calendar event as exchanged with the backend and fed to the
// month grid. StartAt/EndAt are absolute instants; the span is inclusive.
type Event struct {
	ID    string `json:"id"`
	Title string `json:"title"`

	StartAt time.Time `json:"start_at"`
	EndAt   time.Time `json:"end_at"`

	EstimatedCost *float64 `json:"estimated_cost,omitempty"`
	Color         string   `json:"color,omitempty"`
	CategoryIDs   []string `json:"category_ids,omitempty"`

	// Source is empty for backend events and the ICS source ID for
	// events coming from a subscribed feed.
	Source string `json:"source,omitempty"`
}

// DisplayColor returns Color, or DefaultColor when none is set.
func (e Event) DisplayColor() string {
	if e.Color == "" {
		return DefaultColor
	}
	return e.Color
}

// EventInput is the create/update payload for /calendar/events/.
type EventInput struct {
	Title         string    `json:"title"`
	StartAt       time.Time `json:"start_at"`
	EndAt         time.Time `json:"end_at"`
	EstimatedCost *float64  `json:"estimated_cost,omitempty"`
	Color         string    `json:"color,omitempty"`
	CategoryIDs   []string  `json:"category_ids,omitempty"`
}

// Category groups events under a name and color.
type Category struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// UserInfo is returned by /auth/me/.
type UserInfo struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
}

// Account is the mapped form of /accounts/me/. The backend sends the
// amounts as decimal strings.
type Account struct {
	CountryCode             string  `json:"country_code"`
	Currency                string  `json:"currency"`
	AnnualIncome            float64 `json:"annual_income"`
	MonthlyInvestableAmount float64 `json:"monthly_investable_amount"`
}

// ExchangeRate is a base/target pair with an optional last update stamp.
type ExchangeRate struct {
	Base        string  `json:"base"`
	Target      string  `json:"target"`
	Rate        float64 `json:"rate"`
	LastUpdated string  `json:"last_updated,omitempty"`
}

// Country is an entry of /meta/countries/.
type Country struct {
	Code            string   `json:"code"`
	Name            string   `json:"name"`
	Currencies      []string `json:"currencies"`
	DefaultCurrency string   `json:"default_currency"`
	Flag            string   `json:"flag,omitempty"`
}

// NewsItem is one business news headline.
type NewsItem struct {
	Title       string `json:"title"`
	Link        string `json:"link"`
	Source      string `json:"source,omitempty"`
	PublishedAt string `json:"published_at,omitempty"`
	Summary     string `json:"summary,omitempty"`
}
