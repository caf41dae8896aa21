package model

import (
	"strings"
	"unicode"
)

// Normalize trims text fields and clamps negative amounts to zero.
func (r *Receipt) Normalize() {
	r.Date = strings.TrimSpace(r.Date)
	r.MerchantName = strings.TrimSpace(r.MerchantName)
	r.Currency = strings.TrimSpace(r.Currency)
	r.TotalAmount = nonNegative(r.TotalAmount)
	for i := range r.LineItems {
		li := &r.LineItems[i]
		li.Description = strings.TrimSpace(li.Description)
		li.Quantity = nonNegative(li.Quantity)
		li.LineTotal = nonNegative(li.LineTotal)
	}
}

// Normalize trims text fields, keeps only digits in the phone number and
// clamps negative amounts to zero. DateDifferenceDays is left as extracted.
func (v *Voice) Normalize() {
	v.UserName = strings.TrimSpace(v.UserName)
	v.ProductName = strings.TrimSpace(v.ProductName)
	v.BuyingDate = strings.TrimSpace(v.BuyingDate)
	v.SellingDate = strings.TrimSpace(v.SellingDate)
	v.PhoneNumber = digitsOnly(v.PhoneNumber)
	v.ProductPrice = nonNegative(v.ProductPrice)
	if v.AmountPurchased < 0 {
		v.AmountPurchased = 0
	}
}

func nonNegative(f float64) float64 {
	if f < 0 {
		return 0
	}
	return f
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
