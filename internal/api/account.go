package api

import (
	"context"
	"strconv"
	"strings"

	"hackonomics/internal/model"
)

const (
	pathAccountMe    = "/accounts/me/"
	pathExchangeRate = "/accounts/me/exchange-rate/"
	pathCountries    = "/meta/countries/"
	pathBusinessNews = "/news/business-news/"
)

// accountResponse is /accounts/me/ as sent: amounts are decimal strings.
type accountResponse struct {
	CountryCode             string `json:"country_code"`
	Currency                string `json:"currency"`
	AnnualIncome            string `json:"annual_income"`
	MonthlyInvestableAmount string `json:"monthly_investable_amount"`
}

func mapAccount(r accountResponse) model.Account {
	return model.Account{
		CountryCode:             r.CountryCode,
		Currency:                r.Currency,
		AnnualIncome:            parseAmount(r.AnnualIncome),
		MonthlyInvestableAmount: parseAmount(r.MonthlyInvestableAmount),
	}
}

// parseAmount reads a decimal string; anything unparsable counts as zero.
func parseAmount(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}

// Account returns the user's financial profile.
func (c *Client) Account(ctx context.Context) (*model.Account, error) {
	var r accountResponse
	if err := c.get(ctx, pathAccountMe, &r); err != nil {
		return nil, err
	}
	a := mapAccount(r)
	return &a, nil
}

// MyExchangeRate returns the rate between the user's currency and USD.
func (c *Client) MyExchangeRate(ctx context.Context) (*model.ExchangeRate, error) {
	var r model.ExchangeRate
	if err := c.get(ctx, pathExchangeRate, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Countries lists the supported countries and their currencies.
func (c *Client) Countries(ctx context.Context) ([]model.Country, error) {
	var out []model.Country
	if err := c.get(ctx, pathCountries, &out); err != nil {
		return nil, err
	}
	return out, nil
}

type newsResponse struct {
	News []model.NewsItem `json:"news"`
}

// BusinessNews returns the latest business headlines.
func (c *Client) BusinessNews(ctx context.Context) ([]model.NewsItem, error) {
	var r newsResponse
	if err := c.get(ctx, pathBusinessNews, &r); err != nil {
		return nil, err
	}
	if r.News == nil {
		r.News = []model.NewsItem{}
	}
	return r.News, nil
}
