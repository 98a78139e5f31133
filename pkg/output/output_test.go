package output

import (
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"abtest-cohorts/pkg/models"
	"abtest-cohorts/pkg/reporter"
	"abtest-cohorts/pkg/simulator"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return records
}

func series() []models.DailyMetrics {
	return []models.DailyMetrics{
		{Day: 0, Installs: 100, DAU: 100, DAUOriginal: 100, Revenue: 10.5, CumulativeRevenue: 10.5},
		{Day: 1, Installs: 100, DAU: 150, DAUOriginal: 150, Revenue: 12, CumulativeRevenue: 22.5},
	}
}

func TestWriter_Series(t *testing.T) {
	w, err := NewWriter(filepath.Join(t.TempDir(), "nested"), zap.NewNop())
	require.NoError(t, err)

	path, err := w.Series("A", "baseline", series())
	require.NoError(t, err)
	assert.Equal(t, "simulation_A_baseline.csv", filepath.Base(path))

	records := readCSV(t, path)
	require.Len(t, records, 3)
	assert.Equal(t, "day", records[0][0])
	assert.Equal(t, []string{"1", "100", "100"}, records[1][:3])
	assert.Equal(t, "22.5", records[2][9])
}

func TestWriter_Groups(t *testing.T) {
	w, err := NewWriter(t.TempDir(), nil)
	require.NoError(t, err)

	path, err := w.Groups("platform", []models.GroupSummary{
		{Key: "ios", Users: 2, Revenue: 10, ARPU: 5, MeanWinRate: sql.NullFloat64{Float64: 0.5, Valid: true}},
		{Key: "android", Users: 1},
	})
	require.NoError(t, err)
	records := readCSV(t, path)
	require.Len(t, records, 3)
	assert.Equal(t, "0.5", records[1][11])
	assert.Equal(t, "", records[2][11], "undefined win rate is left empty")
}

func TestWriter_Retention(t *testing.T) {
	w, err := NewWriter(t.TempDir(), nil)
	require.NoError(t, err)

	curve := []models.RetentionPoint{{Day: 1, Users: 4, Retained: 2, Rate: 0.5}, {Day: 2, Users: 4, Retained: 1, Rate: 0.25}}
	avg := []models.RetentionPoint{{Day: 1, Users: 4, Rate: 0.4}, {Day: 2, Users: 4, Rate: 0.2}}
	cohorts := []models.CohortRetention{{InstallDate: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), Size: 4, Rates: []float64{0.5, 0}}}

	path, err := w.Retention(curve, avg, cohorts)
	require.NoError(t, err)
	records := readCSV(t, path)
	assert.Equal(t, [][]string{
		{"cohort", "size", "d1", "d2"},
		{"all", "4", "0.5", "0.25"},
		{"cohort_average", "4", "0.4", "0.2"},
		{"2025-03-01", "4", "0.5", "0"},
	}, records)
}

func TestWriter_JSON(t *testing.T) {
	w, err := NewWriter(t.TempDir(), nil)
	require.NoError(t, err)
	w.now = func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) }

	path, err := w.JSON("study", map[string]int{"days": 30})
	require.NoError(t, err)

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	var env struct {
		RunID       string         `json:"run_id"`
		GeneratedAt time.Time      `json:"generated_at"`
		Kind        string         `json:"kind"`
		Data        map[string]int `json:"data"`
	}
	require.NoError(t, json.Unmarshal(b, &env))
	_, err = uuid.Parse(env.RunID)
	assert.NoError(t, err)
	assert.Equal(t, w.RunID, env.RunID)
	assert.Equal(t, "study", env.Kind)
	assert.Equal(t, 30, env.Data["days"])
	assert.Equal(t, 2025, env.GeneratedAt.Year())
}

func TestWriter_DistinctRunIDs(t *testing.T) {
	a, err := NewWriter(t.TempDir(), nil)
	require.NoError(t, err)
	b, err := NewWriter(t.TempDir(), nil)
	require.NoError(t, err)
	assert.NotEqual(t, a.RunID, b.RunID)
}

func TestNullableRate(t *testing.T) {
	assert.Nil(t, NullableRate(sql.NullFloat64{}))
	v := NullableRate(sql.NullFloat64{Float64: 0.25, Valid: true})
	require.NotNil(t, v)
	assert.Equal(t, 0.25, *v)
}

func TestTables(t *testing.T) {
	out := Series("A", "sale", series())
	assert.Contains(t, out, "Variant A, sale")
	assert.Contains(t, out, "22.50")

	out = Comparisons([]simulator.Comparison{{
		Label:  "Revenue through day 30",
		Values: []simulator.VariantValue{{Variant: "A", Value: 1}, {Variant: "B", Value: 1}},
	}})
	assert.Contains(t, out, "Revenue through day 30")
	assert.Contains(t, out, "tie")
	assert.Empty(t, Comparisons(nil))

	out = Lifts([]simulator.Lift{{Variant: "B", Scenario: "sale", Baseline: 10, Revenue: 12, Delta: 2}})
	assert.Contains(t, out, "+2.00")

	out = Groups("By platform", []models.GroupSummary{{Key: "ios", Users: 3}})
	assert.Contains(t, out, "By platform")
	assert.Contains(t, out, "n/a")

	out = Retention([]models.RetentionPoint{{Day: 1, Users: 2, Retained: 1, Rate: 0.5}}, nil)
	assert.Contains(t, out, "D1")
	assert.Contains(t, out, "50.0%")
	assert.NotContains(t, out, "Cohort avg")

	assert.Empty(t, Cohorts(nil))

	out = Overview(reporter.OverviewStats{Users: 0}, reporter.WinRateStats{})
	assert.Contains(t, out, "Dataset")
	assert.Contains(t, out, "n/a")
}
