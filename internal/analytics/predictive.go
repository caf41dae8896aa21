package analytics

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"time"

	"github.com/bishleshok-ai/bishleshok/internal/model"
)

const (
	historyDays   = 30
	forecastDays  = 14
	trendWindow   = 7
	fallbackAvg   = 1000.0
	zThreshold    = 2.0
	zHighSeverity = 3.0
	dateLayout    = "2006-01-02"
)

var isoDate = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// History is the trailing daily series the predictive views work on.
type History struct {
	Dates        []string           `json:"dates"`
	Revenues     []float64          `json:"revenues"`
	Items        []float64          `json:"items"`
	ProductSales map[string]float64 `json:"productSales"`
}

// BuildHistory returns the last 30 dated days of revenue and item counts,
// plus quantity sold per product across all dated records.
func BuildHistory(recs []model.Record) History {
	revenue := make(map[string]float64)
	items := make(map[string]float64)
	h := History{ProductSales: make(map[string]float64)}

	for _, rec := range recs {
		date := rec.EventDate()
		if date == "" {
			continue
		}
		switch r := rec.(type) {
		case *model.Receipt:
			revenue[date] += r.TotalAmount
			for _, li := range r.LineItems {
				items[date] += li.Quantity
				h.ProductSales[nameOrUnknown(li.Description)] += li.Quantity
			}
		case *model.Voice:
			qty := float64(r.AmountPurchased)
			revenue[date] += r.ProductPrice * qty
			items[date] += qty
			h.ProductSales[nameOrUnknown(r.ProductName)] += qty
		}
	}

	dates := make([]string, 0, len(revenue))
	for d := range revenue {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	if len(dates) > historyDays {
		dates = dates[len(dates)-historyDays:]
	}

	h.Dates = dates
	h.Revenues = make([]float64, len(dates))
	h.Items = make([]float64, len(dates))
	for i, d := range dates {
		h.Revenues[i] = revenue[d]
		h.Items[i] = items[d]
	}
	return h
}

func nameOrUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}

// Anomaly flags an unusual day of revenue.
type Anomaly struct {
	Date     string  `json:"date"`
	Value    float64 `json:"value"`
	Type     string  `json:"type"`     // spike | drop
	Severity string  `json:"severity"` // medium | high
}

// DetectAnomalies flags days whose revenue z-score exceeds 2 using the
// population standard deviation. Days with zero revenue are never flagged,
// and a flat series yields nothing.
func DetectAnomalies(dates []string, revenues []float64) []Anomaly {
	if len(revenues) == 0 {
		return nil
	}
	var sum float64
	for _, v := range revenues {
		sum += v
	}
	mean := sum / float64(len(revenues))

	var variance float64
	for _, v := range revenues {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(revenues))
	std := math.Sqrt(variance)
	if std == 0 {
		return nil
	}

	var out []Anomaly
	for i, v := range revenues {
		z := math.Abs((v - mean) / std)
		if z <= zThreshold || v <= 0 {
			continue
		}
		a := Anomaly{Date: dates[i], Value: v, Type: "drop", Severity: "medium"}
		if v > mean {
			a.Type = "spike"
		}
		if z > zHighSeverity {
			a.Severity = "high"
		}
		out = append(out, a)
	}
	return out
}

// Forecast is a 14-day projection with a ±20% band.
type Forecast struct {
	Dates           []string  `json:"dates"`
	Values          []float64 `json:"values"`
	ConfidenceUpper []float64 `json:"confidenceUpper"`
	ConfidenceLower []float64 `json:"confidenceLower"`
}

// Total sums the projected values.
func (f *Forecast) Total() float64 {
	if f == nil {
		return 0
	}
	var t float64
	for _, v := range f.Values {
		t += v
	}
	return t
}

// BuildForecast projects revenue linearly from the trailing window of up to
// seven days. It returns nil when there is no history. now supplies the
// base date when the last historical date is malformed.
func BuildForecast(h History, now time.Time) *Forecast {
	if len(h.Dates) == 0 {
		return nil
	}

	n := max(1, min(len(h.Revenues), trendWindow))
	window := h.Revenues[len(h.Revenues)-n:]

	var total float64
	for _, v := range window {
		total += v
	}
	avg := fallbackAvg
	if total > 0 {
		avg = total / float64(n)
	}

	var slope float64
	if n >= 2 {
		first, last := window[0], window[len(window)-1]
		if first == 0 {
			first = avg
		}
		if last == 0 {
			last = avg
		}
		slope = (last - first) / float64(n-1)
	}

	base := baseDate(h.Dates[len(h.Dates)-1], now)
	f := &Forecast{
		Dates:           make([]string, forecastDays),
		Values:          make([]float64, forecastDays),
		ConfidenceUpper: make([]float64, forecastDays),
		ConfidenceLower: make([]float64, forecastDays),
	}
	for i := 1; i <= forecastDays; i++ {
		p := math.Max(0, avg+slope*float64(i))
		f.Dates[i-1] = base.AddDate(0, 0, i).Format(dateLayout)
		f.Values[i-1] = p
		f.ConfidenceUpper[i-1] = p * 1.2
		f.ConfidenceLower[i-1] = math.Max(0, p*0.8)
	}
	return f
}

func baseDate(last string, now time.Time) time.Time {
	if isoDate.MatchString(last) {
		if t, err := time.Parse(dateLayout, last); err == nil {
			return t
		}
	}
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Recommendation is a rule-based suggestion.
type Recommendation struct {
	Type     string `json:"type"`
	Priority string `json:"priority"`
	Message  string `json:"message"`
	Action   string `json:"action"`
}

// Recommend emits an inventory suggestion for the best-selling product, a
// cash-flow summary of the forecast and an alert when anomalies exist.
func Recommend(h History, f *Forecast, anomalies []Anomaly) []Recommendation {
	var out []Recommendation

	if top, ok := topProduct(h.ProductSales); ok {
		out = append(out, Recommendation{
			Type:     "inventory",
			Priority: "high",
			Message:  fmt.Sprintf("Consider increasing stock for %s as it's showing strong sales trends.", top),
			Action:   fmt.Sprintf("Order 20%% more %s before next week.", top),
		})
	}

	if f != nil {
		out = append(out, Recommendation{
			Type:     "cashflow",
			Priority: "medium",
			Message:  fmt.Sprintf("Based on forecast, expected revenue for next 14 days: ৳%.2f", f.Total()),
			Action:   "Plan inventory purchases accordingly to maintain cash flow.",
		})
	}

	if n := len(anomalies); n > 0 {
		plural := ""
		if n > 1 {
			plural = "s"
		}
		out = append(out, Recommendation{
			Type:     "alert",
			Priority: "high",
			Message:  fmt.Sprintf("Detected %d unusual pattern%s in recent sales.", n, plural),
			Action:   "Review transaction data for these dates to understand causes.",
		})
	}
	return out
}

// topProduct returns the product with the highest positive quantity; ties
// go to the alphabetically first name.
func topProduct(sales map[string]float64) (string, bool) {
	var best string
	var bestQty float64
	for name, qty := range sales {
		if qty <= 0 {
			continue
		}
		if qty > bestQty || (qty == bestQty && name < best) {
			best, bestQty = name, qty
		}
	}
	return best, bestQty > 0
}
