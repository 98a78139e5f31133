package reporter

import (
	"database/sql"
	"sort"
	"time"

	"abtest-cohorts/pkg/models"
)

// CountryCount : nombre de user-days observés pour un pays.
type CountryCount struct {
	Country  string `json:"country"`
	UserDays int    `json:"user_days"`
}

// OverviewStats décrit le jeu de données chargé.
type OverviewStats struct {
	Rows                   int            `json:"rows"`
	Skipped                int            `json:"skipped"`
	Users                  int            `json:"users"`
	FirstEvent             time.Time      `json:"first_event"`
	LastEvent              time.Time      `json:"last_event"`
	Platforms              []string       `json:"platforms"`
	TopCountries           []CountryCount `json:"top_countries"`
	MinDaysSinceInstall    int            `json:"min_days_since_install"`
	MedianDaysSinceInstall int            `json:"median_days_since_install"`
	MaxDaysSinceInstall    int            `json:"max_days_since_install"`
}

// Overview résume rows ; topCountries limite la liste des pays.
func Overview(rows []models.UserSummary, stats models.AggregateStats, topCountries int) OverviewStats {
	o := OverviewStats{Rows: stats.EventsUsed, Skipped: stats.EventsSkipped, Users: len(rows)}
	if len(rows) == 0 {
		return o
	}

	platforms := map[string]bool{}
	countries := map[string]int{}
	var ages []int
	for i, u := range rows {
		if i == 0 || u.FirstSeen.Before(o.FirstEvent) {
			o.FirstEvent = u.FirstSeen
		}
		if u.LastSeen.After(o.LastEvent) {
			o.LastEvent = u.LastSeen
		}
		if !platforms[u.Platform] {
			platforms[u.Platform] = true
			o.Platforms = append(o.Platforms, u.Platform)
		}
		countries[u.Country] += u.Events
		ages = append(ages, u.ActiveAges...)
	}
	sort.Strings(o.Platforms)

	for c, n := range countries {
		o.TopCountries = append(o.TopCountries, CountryCount{Country: c, UserDays: n})
	}
	sort.Slice(o.TopCountries, func(i, j int) bool {
		if o.TopCountries[i].UserDays != o.TopCountries[j].UserDays {
			return o.TopCountries[i].UserDays > o.TopCountries[j].UserDays
		}
		return o.TopCountries[i].Country < o.TopCountries[j].Country
	})
	if topCountries > 0 && len(o.TopCountries) > topCountries {
		o.TopCountries = o.TopCountries[:topCountries]
	}

	sort.Ints(ages)
	o.MinDaysSinceInstall = ages[0]
	o.MaxDaysSinceInstall = ages[len(ages)-1]
	o.MedianDaysSinceInstall = ages[len(ages)/2]
	return o
}

type WinRateStats struct {
	Mean      sql.NullFloat64 `json:"-"`
	Defined   int             `json:"defined"`
	Undefined int             `json:"undefined"`
	Histogram []int           `json:"histogram"` // classes de largeur égale sur [0, 1]
}

// WinRates : moyenne et histogramme des taux de victoire définis.
// Les utilisateurs sans match sont comptés comme indéfinis.
func WinRates(rows []models.UserSummary, bins int) WinRateStats {
	if bins <= 0 {
		bins = 30
	}
	s := WinRateStats{Histogram: make([]int, bins)}
	var sum float64
	for _, u := range rows {
		if !u.WinRate.Valid {
			s.Undefined++
			continue
		}
		s.Defined++
		sum += u.WinRate.Float64
		b := int(u.WinRate.Float64 * float64(bins))
		if b >= bins {
			b = bins - 1
		}
		s.Histogram[b]++
	}
	s.Mean = ratio(sum, float64(s.Defined))
	return s
}

func unixDay(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}
