package vars

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestMerge_Precedence(t *testing.T) {
	declared := map[string]any{"a": 1, "b": 2}
	overrides := map[string]any{"b": 3, "c": 4}
	tr := &TimeRange{
		From: Period{Year: 2024, Month: 1},
		To:   Period{Year: 2024, Month: 1},
	}

	got := Merge(declared, overrides, tr)
	want := map[string]any{
		"a":         1,
		"b":         3,
		"c":         4,
		"startDate": "2024-01-01",
		"endDate":   "2024-01-31",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("merged variables mismatch (-want +got):\n%s", diff)
	}
}

func TestMerge_TimeRangeWinsOverOverrides(t *testing.T) {
	overrides := map[string]any{"startDate": "1999-01-01"}
	tr := &TimeRange{From: Period{2024, 2}, To: Period{2024, 2}}

	got := Merge(nil, overrides, tr)
	require.Equal(t, "2024-02-01", got["startDate"])
	require.Equal(t, "2024-02-29", got["endDate"]) // leap year
}

func TestMerge_NoDeepMerge(t *testing.T) {
	declared := map[string]any{"filter": map[string]any{"a": 1, "b": 2}}
	overrides := map[string]any{"filter": map[string]any{"a": 9}}

	got := Merge(declared, overrides, nil)
	require.Equal(t, map[string]any{"a": 9}, got["filter"])
}

func TestTimeRange_EndDateSpansMonths(t *testing.T) {
	tr := TimeRange{From: Period{2024, 1}, To: Period{2024, 3}}
	require.Equal(t, "2024-01-01", tr.StartDate())
	require.Equal(t, "2024-03-31", tr.EndDate())
}

func TestParseDeclared(t *testing.T) {
	t.Run("empty text", func(t *testing.T) {
		got, err := ParseDeclared("")
		require.NoError(t, err)
		require.Empty(t, got)
	})

	t.Run("valid object", func(t *testing.T) {
		got, err := ParseDeclared(`{"limit": 10}`)
		require.NoError(t, err)
		require.Equal(t, map[string]any{"limit": float64(10)}, got)
	})

	t.Run("garbage degrades to empty", func(t *testing.T) {
		got, err := ParseDeclared(`{not json`)
		require.Error(t, err)
		require.NotNil(t, got)
		require.Empty(t, got)
	})
}

func TestParsePeriod(t *testing.T) {
	p, err := ParsePeriod("2024-07")
	require.NoError(t, err)
	require.Equal(t, Period{Year: 2024, Month: 7}, p)

	_, err = ParsePeriod("July 2024")
	require.Error(t, err)
}
