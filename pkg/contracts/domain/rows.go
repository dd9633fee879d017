package domain

// Column names every qualifying sheet table must expose.
const (
	ColumnEvent            = "event"
	ColumnProperty         = "property"
	ColumnPage             = "page"
	ColumnPriceType        = "price_type"
	ColumnTotalImpressions = "total_impressions"
	ColumnTotalRate        = "total_rate"
)

// ProjectionColumns is the six-column projection read from every table, in
// select order.
var ProjectionColumns = []string{
	ColumnEvent,
	ColumnProperty,
	ColumnPage,
	ColumnPriceType,
	ColumnTotalImpressions,
	ColumnTotalRate,
}

// Key is the composite grouping key of a Record.
type Key struct {
	Event     string
	Property  string
	Page      string
	PriceType string
}

// Less orders keys lexicographically field by field.
func (k Key) Less(other Key) bool {
	if k.Event != other.Event {
		return k.Event < other.Event
	}
	if k.Property != other.Property {
		return k.Property < other.Property
	}
	if k.Page != other.Page {
		return k.Page < other.Page
	}
	return k.PriceType < other.PriceType
}

// Record is one row of the combined row set.
type Record struct {
	Event            string `json:"event"`
	Property         string `json:"property"`
	Page             string `json:"page"`
	PriceType        string `json:"price_type"`
	TotalImpressions Amount `json:"total_impressions"`
	TotalRate        Amount `json:"total_rate"`
}

// Key returns the grouping key of the record.
func (r Record) Key() Key {
	return Key{
		Event:     r.Event,
		Property:  r.Property,
		Page:      r.Page,
		PriceType: r.PriceType,
	}
}

// CombinedRowSet holds one record per unique Key with measures summed.
type CombinedRowSet struct {
	Records []Record `json:"records"`
}

// IsEmpty reports whether no qualifying rows were found. Callers must check it
// before building any view.
func (s *CombinedRowSet) IsEmpty() bool {
	return s == nil || len(s.Records) == 0
}

// Len returns the number of records.
func (s *CombinedRowSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Records)
}

// SkippedTable describes a table that contributed nothing to aggregation.
type SkippedTable struct {
	Store  string `json:"store"`
	Table  string `json:"table"`
	Reason string `json:"reason"`
}
