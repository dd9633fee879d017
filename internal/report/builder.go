// Package report derives the event and property views of a combined row set
// and exports them as spreadsheets.
package report

import (
	"errors"
	"sort"

	"adrollup/pkg/contracts/domain"
)

// SelectAll is the filter selection meaning "no filter".
const SelectAll = "All"

// ErrEmptyRowSet is returned when a view is requested over an empty set.
var ErrEmptyRowSet = errors.New("no qualifying rows were found")

// FilterByEvent returns the records whose event equals selection. "All" or an
// empty selection returns every record.
func FilterByEvent(set *domain.CombinedRowSet, selection string) ([]domain.Record, error) {
	return filter(set, selection, func(r domain.Record) string { return r.Event })
}

// FilterByProperty returns the records whose property equals selection.
func FilterByProperty(set *domain.CombinedRowSet, selection string) ([]domain.Record, error) {
	return filter(set, selection, func(r domain.Record) string { return r.Property })
}

func filter(set *domain.CombinedRowSet, selection string, field func(domain.Record) string) ([]domain.Record, error) {
	if set.IsEmpty() {
		return nil, ErrEmptyRowSet
	}
	if selection == "" || selection == SelectAll {
		out := make([]domain.Record, len(set.Records))
		copy(out, set.Records)
		return out, nil
	}
	out := []domain.Record{}
	for _, r := range set.Records {
		if field(r) == selection {
			out = append(out, r)
		}
	}
	return out, nil
}

// EventOptions lists "All" followed by the distinct events in first-appearance
// order.
func EventOptions(set *domain.CombinedRowSet) []string {
	return options(set, func(r domain.Record) string { return r.Event })
}

// PropertyOptions lists "All" followed by the distinct properties.
func PropertyOptions(set *domain.CombinedRowSet) []string {
	return options(set, func(r domain.Record) string { return r.Property })
}

func options(set *domain.CombinedRowSet, field func(domain.Record) string) []string {
	out := []string{SelectAll}
	if set.IsEmpty() {
		return out
	}
	seen := make(map[string]struct{})
	for _, r := range set.Records {
		v := field(r)
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// Summarize groups the set by dimension, sorted by group key, and converts the
// sums to display units.
func Summarize(set *domain.CombinedRowSet, dimension domain.Dimension) (domain.Summary, error) {
	if set.IsEmpty() {
		return domain.Summary{}, ErrEmptyRowSet
	}

	var field func(domain.Record) string
	switch dimension {
	case domain.DimensionEvent:
		field = func(r domain.Record) string { return r.Event }
	case domain.DimensionProperty:
		field = func(r domain.Record) string { return r.Property }
	default:
		return domain.Summary{}, errors.New("unknown summary dimension: " + string(dimension))
	}

	index := make(map[string]int)
	summary := domain.Summary{Dimension: dimension}
	for _, r := range set.Records {
		key := field(r)
		i, ok := index[key]
		if !ok {
			i = len(summary.Rows)
			index[key] = i
			summary.Rows = append(summary.Rows, domain.SummaryRow{
				Key:              key,
				TotalImpressions: domain.ZeroAmount(),
				TotalRate:        domain.ZeroAmount(),
			})
		}
		row := &summary.Rows[i]
		row.TotalImpressions = row.TotalImpressions.Add(r.TotalImpressions)
		row.TotalRate = row.TotalRate.Add(r.TotalRate)
	}

	sort.Slice(summary.Rows, func(i, j int) bool { return summary.Rows[i].Key < summary.Rows[j].Key })
	for i := range summary.Rows {
		row := &summary.Rows[i]
		row.ImpressionsMillions = row.TotalImpressions.DivInt(domain.Million).Float64()
		row.RateCrores = row.TotalRate.DivInt(domain.Crore).Float64()
	}
	return summary, nil
}

// Views bundles everything shown for one run.
type Views struct {
	EventOptions    []string       `json:"event_options"`
	PropertyOptions []string       `json:"property_options"`
	EventSummary    domain.Summary `json:"event_summary"`
	PropertySummary domain.Summary `json:"property_summary"`
}

// Build computes the options and both summaries.
func Build(set *domain.CombinedRowSet) (*Views, error) {
	if set.IsEmpty() {
		return nil, ErrEmptyRowSet
	}
	events, err := Summarize(set, domain.DimensionEvent)
	if err != nil {
		return nil, err
	}
	properties, err := Summarize(set, domain.DimensionProperty)
	if err != nil {
		return nil, err
	}
	return &Views{
		EventOptions:    EventOptions(set),
		PropertyOptions: PropertyOptions(set),
		EventSummary:    events,
		PropertySummary: properties,
	}, nil
}
