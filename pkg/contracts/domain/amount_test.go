package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustAmount(t *testing.T, s string) Amount {
	t.Helper()
	a, err := ParseAmount(s)
	require.NoError(t, err)
	return a
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "integer", input: "1500000", want: "1500000"},
		{name: "decimal", input: "12.25", want: "12.25"},
		{name: "exponent", input: "2.5E+3", want: "2500"},
		{name: "negative", input: "-4", want: "-4"},
		{name: "text", input: "abc", wantErr: true},
		{name: "nan", input: "NaN", wantErr: true},
		{name: "infinity", input: "Infinity", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAmount(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestAmountAddIsOrderIndependent(t *testing.T) {
	values := []string{"0.1", "0.2", "0.3", "1e16", "-1e16", "7.77"}

	forward := ZeroAmount()
	for _, v := range values {
		forward = forward.Add(mustAmount(t, v))
	}

	backward := ZeroAmount()
	for i := len(values) - 1; i >= 0; i-- {
		backward = backward.Add(mustAmount(t, values[i]))
	}

	assert.Equal(t, 0, forward.Cmp(backward))
	assert.Equal(t, 0, forward.Cmp(mustAmount(t, "8.37")))
}

func TestAmountDivInt(t *testing.T) {
	impressions := AmountFromInt64(1_500_000)
	assert.Equal(t, 1.5, impressions.DivInt(Million).Float64())

	rate := AmountFromInt64(15_000_000)
	assert.Equal(t, 1.5, rate.DivInt(Crore).Float64())

	// converting back recovers the original sum
	millions := AmountFromInt64(123_456_789).DivInt(Million)
	assert.InDelta(t, 123_456_789.0, millions.Float64()*Million, 1e-6)
}

func TestAmountFromFloat64(t *testing.T) {
	a, err := AmountFromFloat64(0.1)
	require.NoError(t, err)
	assert.Equal(t, "0.1", a.String())
}

func TestAmountJSON(t *testing.T) {
	data, err := json.Marshal(struct {
		Total Amount `json:"total"`
	}{Total: AmountFromInt64(42)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"total":42}`, string(data))

	var decoded struct {
		Total Amount `json:"total"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"total":"3.5"}`), &decoded))
	assert.Equal(t, "3.5", decoded.Total.String())
}

func TestSummaryTotals(t *testing.T) {
	summary := Summary{
		Dimension: DimensionEvent,
		Rows: []SummaryRow{
			{Key: "E1", TotalImpressions: AmountFromInt64(1_000_000), TotalRate: AmountFromInt64(10_000_000)},
			{Key: "E2", TotalImpressions: AmountFromInt64(500_000), TotalRate: AmountFromInt64(5_000_000)},
		},
	}

	assert.Equal(t, 2, summary.Len())
	assert.Equal(t, 1.5, summary.TotalImpressionsMillions())
	assert.Equal(t, 1.5, summary.TotalRateCrores())
}

func TestKeyLess(t *testing.T) {
	a := Key{Event: "E1", Property: "P1", Page: "pg1", PriceType: "CPM"}
	b := Key{Event: "E1", Property: "P1", Page: "pg2", PriceType: "CPC"}
	assert.True(t, a.Less(b))
	assert.False(t, b.Less(a))
	assert.False(t, a.Less(a))
}

func TestCombinedRowSetIsEmpty(t *testing.T) {
	var nilSet *CombinedRowSet
	assert.True(t, nilSet.IsEmpty())
	assert.Equal(t, 0, nilSet.Len())
	assert.True(t, (&CombinedRowSet{}).IsEmpty())
	assert.False(t, (&CombinedRowSet{Records: []Record{{Event: "E1"}}}).IsEmpty())
}
