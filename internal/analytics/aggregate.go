// Package analytics derives dashboard aggregates, KPIs, anomaly flags, a
// linear revenue forecast and rule-based recommendations from the current
// record set. Everything here is a pure function of its inputs.
package analytics

import (
	"sort"

	"github.com/bishleshok-ai/bishleshok/internal/model"
)

const unknownItem = "Unknown Item"

// DailyPoint is one day of the revenue series.
type DailyPoint struct {
	Date     string  `json:"date"`
	Revenue  float64 `json:"revenue"`
	Quantity float64 `json:"quantity"`
}

// Dashboard holds per-item and per-day totals.
type Dashboard struct {
	ItemQuantity map[string]float64 `json:"itemQuantity"`
	ItemValue    map[string]float64 `json:"itemValue"`
	Daily        []DailyPoint       `json:"daily"`
}

// Aggregate sums quantity and value per item and revenue and quantity per
// day. Missing quantities count as 1. Records without a date contribute to
// the item totals only.
func Aggregate(recs []model.Record) Dashboard {
	d := Dashboard{
		ItemQuantity: make(map[string]float64),
		ItemValue:    make(map[string]float64),
	}
	revenue := make(map[string]float64)
	quantity := make(map[string]float64)

	for _, rec := range recs {
		switch r := rec.(type) {
		case *model.Receipt:
			var dayQty float64
			for _, li := range r.LineItems {
				name := nameOr(li.Description)
				qty := li.Quantity
				if qty == 0 {
					qty = 1
				}
				d.ItemQuantity[name] += qty
				d.ItemValue[name] += li.LineTotal
				dayQty += qty
			}
			if r.Date != "" {
				revenue[r.Date] += r.TotalAmount
				quantity[r.Date] += dayQty
			}
		case *model.Voice:
			name := nameOr(r.ProductName)
			qty := float64(r.AmountPurchased)
			if qty == 0 {
				qty = 1
			}
			value := r.ProductPrice * qty
			d.ItemQuantity[name] += qty
			d.ItemValue[name] += value
			if r.BuyingDate != "" {
				revenue[r.BuyingDate] += value
				quantity[r.BuyingDate] += qty
			}
		}
	}

	dates := make([]string, 0, len(revenue))
	for date := range revenue {
		dates = append(dates, date)
	}
	sort.Strings(dates)
	d.Daily = make([]DailyPoint, len(dates))
	for i, date := range dates {
		d.Daily[i] = DailyPoint{Date: date, Revenue: revenue[date], Quantity: quantity[date]}
	}
	return d
}

func nameOr(s string) string {
	if s == "" {
		return unknownItem
	}
	return s
}

// KPIs are the headline numbers.
type KPIs struct {
	TotalRevenue        float64 `json:"totalRevenue"`
	TotalItems          float64 `json:"totalItems"`
	TotalTransactions   int     `json:"totalTransactions"`
	AvgTransactionValue float64 `json:"avgTransactionValue"`
	UniqueProducts      int     `json:"uniqueProducts"`
}

// ComputeKPIs totals revenue and items across both record variants.
// Receipt revenue is total_amount; voice revenue is price times quantity.
func ComputeKPIs(recs []model.Record) KPIs {
	k := KPIs{TotalTransactions: len(recs)}
	products := make(map[string]struct{})

	for _, rec := range recs {
		switch r := rec.(type) {
		case *model.Receipt:
			k.TotalRevenue += r.TotalAmount
			for _, li := range r.LineItems {
				k.TotalItems += li.Quantity
				if li.Description != "" {
					products[li.Description] = struct{}{}
				}
			}
		case *model.Voice:
			qty := float64(r.AmountPurchased)
			k.TotalRevenue += r.ProductPrice * qty
			k.TotalItems += qty
			if r.ProductName != "" {
				products[r.ProductName] = struct{}{}
			}
		}
	}

	if k.TotalTransactions > 0 {
		k.AvgTransactionValue = k.TotalRevenue / float64(k.TotalTransactions)
	}
	k.UniqueProducts = len(products)
	return k
}
