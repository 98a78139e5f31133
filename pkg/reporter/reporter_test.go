package reporter

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"abtest-cohorts/pkg/models"
)

var install = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

func ev(user string, age int, mutate ...func(*models.Event)) models.Event {
	e := models.Event{
		UserID:          user,
		InstallDate:     install,
		EventDate:       install.AddDate(0, 0, age),
		Platform:        "ios",
		Country:         "FR",
		Sessions:        1,
		SessionDuration: 60,
	}
	for _, m := range mutate {
		m(&e)
	}
	return e
}

func TestAggregate_Empty(t *testing.T) {
	rows, stats := New(zap.NewNop()).Aggregate(nil)
	assert.Empty(t, rows)
	assert.Equal(t, models.AggregateStats{}, stats)

	assert.Nil(t, Summarize(rows, ByPlatform()))
	assert.Nil(t, RetentionCurve(rows, 7))
	assert.Nil(t, CohortRetention(rows, 7))
}

func TestAggregate_PerUserTotals(t *testing.T) {
	events := []models.Event{
		// out of order on purpose
		ev("u1", 3, func(e *models.Event) { e.Victories, e.Defeats, e.IAPRevenue = 1, 3, 2.5 }),
		ev("u1", 0, func(e *models.Event) { e.Victories, e.ConnectionErrors, e.AdRevenue = 1, 2, 0.5 }),
		ev("u1", 1, func(e *models.Event) { e.Sessions = 4 }),
		ev("u2", 0, func(e *models.Event) { e.Platform, e.Country = "android", "DE" }),
	}
	rows, stats := New(nil).Aggregate(events)
	require.Len(t, rows, 2)
	assert.Equal(t, models.AggregateStats{EventsRead: 4, EventsUsed: 4, Users: 2}, stats)

	u1 := rows[0]
	assert.Equal(t, "u1", u1.UserID)
	assert.Equal(t, install, u1.InstallDate)
	assert.Equal(t, install, u1.FirstSeen)
	assert.Equal(t, install.AddDate(0, 0, 3), u1.LastSeen)
	assert.Equal(t, []int{0, 1, 3}, u1.ActiveAges)
	assert.Equal(t, 3, u1.DaysSinceInstall)
	assert.Equal(t, 6, u1.Sessions)
	assert.Equal(t, 180.0, u1.SessionDuration)
	assert.Equal(t, 3.0, u1.Revenue)
	assert.True(t, u1.Payer)
	assert.Equal(t, 5, u1.Matches)
	require.True(t, u1.WinRate.Valid)
	assert.InDelta(t, 0.4, u1.WinRate.Float64, 1e-12)
	assert.Equal(t, 2, u1.ConnectionErrors)
	assert.Equal(t, 1, u1.ErrorDays)
	assert.InDelta(t, 1.0/3, u1.ErrorRate, 1e-12)

	u2 := rows[1]
	assert.Equal(t, "android", u2.Platform)
	assert.False(t, u2.Payer)
}

func TestAggregate_ZeroMatchesIsUndefined(t *testing.T) {
	rows, _ := New(nil).Aggregate([]models.Event{ev("u1", 0), ev("u1", 1)})
	require.Len(t, rows, 1)
	assert.Equal(t, 0, rows[0].Matches)
	assert.False(t, rows[0].WinRate.Valid)
	assert.Equal(t, "n/a", FormatRate(rows[0].WinRate))
}

func TestAggregate_FirstInstallDate(t *testing.T) {
	rows, _ := New(nil).Aggregate([]models.Event{
		ev("u1", 5),
		ev("u1", 5, func(e *models.Event) { e.InstallDate = install.AddDate(0, 0, -2) }),
	})
	require.Len(t, rows, 1)
	assert.Equal(t, install.AddDate(0, 0, -2), rows[0].InstallDate)
	assert.Equal(t, 7, rows[0].DaysSinceInstall)
	assert.Equal(t, 2, rows[0].Events)
	assert.Equal(t, 1, rows[0].ActiveDays)
}

func TestAggregate_SkipsMalformed(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	r := New(zap.New(core))

	events := []models.Event{
		ev("ok", 0),
		ev("", 0),
		ev("u", 0, func(e *models.Event) { e.EventDate = time.Time{} }),
		ev("u", 0, func(e *models.Event) { e.EventDate = install.AddDate(0, 0, -1) }),
		ev("u", 0, func(e *models.Event) { e.IAPRevenue = math.NaN() }),
		ev("u", 0, func(e *models.Event) { e.Sessions = -1 }),
	}
	rows, stats := r.Aggregate(events)
	require.Len(t, rows, 1)
	assert.Equal(t, "ok", rows[0].UserID)
	assert.Equal(t, 6, stats.EventsRead)
	assert.Equal(t, 1, stats.EventsUsed)
	assert.Equal(t, 5, stats.EventsSkipped)
	assert.Equal(t, 5, logs.FilterMessage("skipping malformed event").Len())
}

func sampleRows(t *testing.T) []models.UserSummary {
	t.Helper()
	events := []models.Event{
		ev("a", 0, func(e *models.Event) { e.IAPRevenue, e.Victories = 10, 1 }),
		ev("a", 2, func(e *models.Event) { e.ConnectionErrors = 1 }),
		ev("b", 0, func(e *models.Event) { e.Defeats = 2 }),
		ev("b", 7),
		ev("c", 0, func(e *models.Event) { e.Platform, e.Country, e.AdRevenue, e.Sessions = "android", "US", 1, 40 }),
		ev("d", 0, func(e *models.Event) {
			e.Platform, e.Country, e.Sessions = "android", "US", 0
			e.InstallDate = install.AddDate(0, 0, 1)
			e.EventDate = e.InstallDate
		}),
		ev("d", 1, func(e *models.Event) {
			e.Platform, e.Country, e.Sessions = "android", "US", 0
			e.InstallDate = install.AddDate(0, 0, 1)
			e.EventDate = e.InstallDate.AddDate(0, 0, 1)
		}),
	}
	rows, _ := New(nil).Aggregate(events)
	require.Len(t, rows, 4)
	return rows
}

func TestSummarize_ByPlatform(t *testing.T) {
	groups := Summarize(sampleRows(t), ByPlatform())
	require.Len(t, groups, 2)

	ios := groups[0]
	assert.Equal(t, "ios", ios.Key)
	assert.Equal(t, 2, ios.Users)
	assert.Equal(t, 10.0, ios.Revenue)
	assert.Equal(t, 5.0, ios.ARPU)
	assert.Equal(t, 1, ios.Payers)
	assert.Equal(t, 0.5, ios.PayerShare)
	assert.Equal(t, 4, ios.UserDays)
	assert.Equal(t, 1, ios.ErrorDays)
	assert.Equal(t, 0.25, ios.ErrorRate)
	assert.Equal(t, 0.25, ios.MeanErrorRate)
	// a: 1/1, b: 0/2
	require.True(t, ios.MeanWinRate.Valid)
	assert.Equal(t, 0.5, ios.MeanWinRate.Float64)

	android := groups[1]
	assert.Equal(t, "android", android.Key)
	assert.Equal(t, 1.0, android.Revenue)
	assert.False(t, android.MeanWinRate.Valid, "no matches in the group")
}

func TestSummarize_SortLimitAndFilter(t *testing.T) {
	rows := sampleRows(t)

	top := Summarize(rows, ByCountry(1))
	require.Len(t, top, 1)
	assert.Equal(t, "FR", top[0].Key)

	// ios has 4 user-days, android 3
	errs := Summarize(rows, ByErrorRate(ByPlatform(), 3))
	require.Len(t, errs, 1)
	assert.Equal(t, "ios", errs[0].Key)

	errs = Summarize(rows, ByErrorRate(ByPlatform(), 4))
	assert.Empty(t, errs, "the user-days threshold is exclusive")

	errs = Summarize(rows, ByErrorRate(ByPlatform(), 0))
	require.Len(t, errs, 2)
	assert.Equal(t, "ios", errs[0].Key)
	assert.Equal(t, 0.0, errs[1].ErrorRate)
}

func TestSummarize_BySessionBucket(t *testing.T) {
	groups := Summarize(sampleRows(t), BySessionBucket())
	keys := make([]string, 0, len(groups))
	for _, g := range groups {
		keys = append(keys, g.Key)
	}
	// d has no sessions and falls in no bucket
	assert.Equal(t, []string{"2-3", "31-100"}, keys)
	assert.Equal(t, 5.0, groups[0].ARPU)
}

func TestSessionBucket(t *testing.T) {
	cases := map[int]string{1: "1", 2: "2-3", 3: "2-3", 4: "4-10", 10: "4-10", 11: "11-30", 31: "31-100", 100: "31-100", 101: "100+"}
	for n, want := range cases {
		got, ok := SessionBucket(n)
		assert.True(t, ok)
		assert.Equal(t, want, got, "sessions=%d", n)
	}
	_, ok := SessionBucket(0)
	assert.False(t, ok)
}

func TestRetentionCurve(t *testing.T) {
	curve := RetentionCurve(sampleRows(t), 7)
	require.Len(t, curve, 7)
	// last observed: a=2, b=7, c=0, d=1
	want := []int{3, 2, 1, 1, 1, 1, 1}
	for i, p := range curve {
		assert.Equal(t, i+1, p.Day)
		assert.Equal(t, 4, p.Users)
		assert.Equal(t, want[i], p.Retained, "D%d", p.Day)
		assert.Equal(t, float64(want[i])/4, p.Rate)
	}
	for i := 1; i < len(curve); i++ {
		assert.LessOrEqual(t, curve[i].Rate, curve[i-1].Rate)
	}
}

func TestCohortRetention(t *testing.T) {
	cohorts := CohortRetention(sampleRows(t), 3)
	require.Len(t, cohorts, 2)

	first := cohorts[0]
	assert.Equal(t, install, first.InstallDate)
	assert.Equal(t, 3, first.Size)
	// a active on D2 only, b on D7
	assert.Equal(t, []float64{0, 1.0 / 3, 0}, first.Rates)

	second := cohorts[1]
	assert.Equal(t, 1, second.Size)
	assert.Equal(t, []float64{1, 0, 0}, second.Rates)

	avg := AverageCohortRetention(cohorts)
	require.Len(t, avg, 3)
	assert.Equal(t, 0.5, avg[0].Rate)
	assert.Equal(t, 4, avg[0].Users)
	assert.Equal(t, 1, avg[0].Retained)
}

func TestOverview(t *testing.T) {
	rows := sampleRows(t)
	o := Overview(rows, models.AggregateStats{EventsUsed: 7, EventsSkipped: 1}, 1)
	assert.Equal(t, 7, o.Rows)
	assert.Equal(t, 1, o.Skipped)
	assert.Equal(t, 4, o.Users)
	assert.Equal(t, install, o.FirstEvent)
	assert.Equal(t, install.AddDate(0, 0, 7), o.LastEvent)
	assert.Equal(t, []string{"android", "ios"}, o.Platforms)
	assert.Equal(t, []CountryCount{{Country: "FR", UserDays: 4}}, o.TopCountries)
	assert.Equal(t, 0, o.MinDaysSinceInstall)
	assert.Equal(t, 7, o.MaxDaysSinceInstall)
}

func TestWinRates(t *testing.T) {
	s := WinRates(sampleRows(t), 10)
	assert.Equal(t, 2, s.Defined)
	assert.Equal(t, 2, s.Undefined)
	require.True(t, s.Mean.Valid)
	assert.Equal(t, 0.5, s.Mean.Float64)
	assert.Equal(t, 1, s.Histogram[0])
	assert.Equal(t, 1, s.Histogram[9])

	empty := WinRates(nil, 0)
	assert.False(t, empty.Mean.Valid)
	assert.Len(t, empty.Histogram, 30)
}
