package handlers

import (
	"net/http"

	"golang.org/x/text/cases"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"genesis/internal/domain"
	"genesis/internal/middleware"
)

type planJSON struct {
	Plan       domain.PlanType    `json:"plan"`
	Title      string             `json:"title"`
	Currency   string             `json:"currency"`
	PriceMinor int64              `json:"priceMinor"`
	Display    string             `json:"display"`
	Features   []domain.MediaKind `json:"features"`
}

// Plans handles GET /v1/plans. Callers resolved to India are quoted in INR,
// everyone else in USD.
func (a *App) Plans(w http.ResponseWriter, r *http.Request) {
	country := middleware.CountryFromContext(r.Context())
	unit := currency.USD
	if country == "IN" {
		unit = currency.INR
	}
	tag := language.Make(middleware.LocaleFromContext(r.Context()))
	printer := message.NewPrinter(tag)
	title := cases.Title(tag)

	features := domain.DefaultPlanFeatures()
	if a.Subscriptions != nil {
		features = a.Subscriptions.Features()
	}

	plans := make([]planJSON, 0, len(domain.PlanPrices))
	for _, p := range domain.PlanPrices {
		minor := p.USDMinor
		if unit == currency.INR {
			minor = p.INRMinor
		}
		kinds := features.Kinds(p.Plan)
		if kinds == nil {
			kinds = []domain.MediaKind{}
		}
		plans = append(plans, planJSON{
			Plan:       p.Plan,
			Title:      title.String(string(p.Plan)),
			Currency:   unit.String(),
			PriceMinor: minor,
			Display:    printer.Sprint(currency.Symbol(unit.Amount(float64(minor) / 100))),
			Features:   kinds,
		})
	}
	a.json(w, http.StatusOK, map[string]any{"country": country, "currency": unit.String(), "plans": plans})
}
