package model

// DateRange filters records by EventDate. It only applies when both ends
// are set; dates compare lexically as ISO strings, so a reversed range
// matches nothing.
type DateRange struct {
	Start string `json:"startDate"`
	End   string `json:"endDate"`
}

// Active reports whether both ends are set.
func (d DateRange) Active() bool {
	return d.Start != "" && d.End != ""
}

// Contains reports whether date falls inside the range. An empty date is
// never contained.
func (d DateRange) Contains(date string) bool {
	if date == "" {
		return false
	}
	return date >= d.Start && date <= d.End
}

// Apply returns the records inside the range, or recs unchanged when the
// range is inactive.
func (d DateRange) Apply(recs []Record) []Record {
	if !d.Active() {
		return recs
	}
	out := make([]Record, 0, len(recs))
	for _, r := range recs {
		if d.Contains(r.EventDate()) {
			out = append(out, r)
		}
	}
	return out
}
