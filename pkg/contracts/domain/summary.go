package domain

// Dimension is the single grouping field of a Summary.
type Dimension string

const (
	DimensionEvent    Dimension = "event"
	DimensionProperty Dimension = "property"
)

// Display unit divisors.
const (
	Million = 1_000_000
	Crore   = 10_000_000
)

// Display column labels used by summary exports.
const (
	ImpressionsMillionsLabel = "total_imps (Millions)"
	RateCroresLabel          = "total_rate (Crores)"
)

// SummaryRow is one group of a Summary. The raw sums are kept alongside the
// unit-converted display values.
type SummaryRow struct {
	Key                 string  `json:"key"`
	TotalImpressions    Amount  `json:"total_impressions"`
	TotalRate           Amount  `json:"total_rate"`
	ImpressionsMillions float64 `json:"total_imps_millions"`
	RateCrores          float64 `json:"total_rate_crores"`
}

// Summary maps each value of a Dimension to its summed measures.
type Summary struct {
	Dimension Dimension    `json:"dimension"`
	Rows      []SummaryRow `json:"rows"`
}

// Len returns the number of groups.
func (s Summary) Len() int {
	return len(s.Rows)
}

// TotalImpressionsMillions sums the converted impressions column.
func (s Summary) TotalImpressionsMillions() float64 {
	total := ZeroAmount()
	for _, row := range s.Rows {
		total = total.Add(row.TotalImpressions)
	}
	return total.DivInt(Million).Float64()
}

// TotalRateCrores sums the converted rate column.
func (s Summary) TotalRateCrores() float64 {
	total := ZeroAmount()
	for _, row := range s.Rows {
		total = total.Add(row.TotalRate)
	}
	return total.DivInt(Crore).Float64()
}
