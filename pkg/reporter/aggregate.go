// Package reporter : événements quotidiens bruts → agrégats par utilisateur,
// par groupe, et courbes de rétention observées.
package reporter

import (
	"database/sql"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"abtest-cohorts/pkg/models"
)

var (
	errMissingUser   = errors.New("missing user id")
	errMissingDate   = errors.New("missing event or install date")
	errBeforeInstall = errors.New("event date before install date")
	errNegative      = errors.New("negative count or revenue")
	errNotFinite     = errors.New("non-finite numeric field")
)

// Reporter agrège les événements ; les lignes invalides sont loguées puis ignorées.
type Reporter struct {
	log *zap.Logger
}

func New(log *zap.Logger) *Reporter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reporter{log: log}
}

func validateEvent(ev models.Event) error {
	if ev.UserID == "" {
		return errMissingUser
	}
	if ev.EventDate.IsZero() || ev.InstallDate.IsZero() {
		return errMissingDate
	}
	if day(ev.EventDate).Before(day(ev.InstallDate)) {
		return errBeforeInstall
	}
	for _, f := range []float64{ev.SessionDuration, ev.IAPRevenue, ev.AdRevenue} {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return errNotFinite
		}
		if f < 0 {
			return errNegative
		}
	}
	for _, n := range []int{ev.Sessions, ev.MatchStarts, ev.MatchEnds, ev.Victories, ev.Defeats, ev.ConnectionErrors} {
		if n < 0 {
			return errNegative
		}
	}
	return nil
}

func day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func daysBetween(from, to time.Time) int {
	return int(day(to).Sub(day(from)).Hours() / 24)
}

// Aggregate produit un UserSummary par utilisateur, trié par user_id.
// Entrée vide → résultat vide.
func (r *Reporter) Aggregate(events []models.Event) ([]models.UserSummary, models.AggregateStats) {
	stats := models.AggregateStats{EventsRead: len(events)}
	byUser := make(map[string][]models.Event)

	for i, ev := range events {
		if err := validateEvent(ev); err != nil {
			stats.EventsSkipped++
			r.log.Warn("skipping malformed event",
				zap.Int("index", i),
				zap.String("user_id", ev.UserID),
				zap.Error(err),
			)
			continue
		}
		byUser[ev.UserID] = append(byUser[ev.UserID], ev)
		stats.EventsUsed++
	}

	ids := make([]string, 0, len(byUser))
	for id := range byUser {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]models.UserSummary, 0, len(ids))
	for _, id := range ids {
		out = append(out, summarizeUser(id, byUser[id]))
	}
	stats.Users = len(out)

	r.log.Debug("aggregated events",
		zap.Int("events_read", stats.EventsRead),
		zap.Int("events_used", stats.EventsUsed),
		zap.Int("events_skipped", stats.EventsSkipped),
		zap.Int("users", stats.Users),
	)
	return out, stats
}

func summarizeUser(id string, evs []models.Event) models.UserSummary {
	// ordre chronologique propre à l'utilisateur
	sort.SliceStable(evs, func(i, j int) bool { return evs[i].EventDate.Before(evs[j].EventDate) })

	install := day(evs[0].InstallDate)
	for _, ev := range evs[1:] {
		if d := day(ev.InstallDate); d.Before(install) {
			install = d
		}
	}

	u := models.UserSummary{
		UserID:      id,
		Platform:    evs[0].Platform,
		Country:     evs[0].Country,
		InstallDate: install,
		FirstSeen:   evs[0].EventDate,
		LastSeen:    evs[len(evs)-1].EventDate,
		Events:      len(evs),
	}

	seen := make(map[int]bool)
	for _, ev := range evs {
		age := daysBetween(install, ev.EventDate)
		if !seen[age] {
			seen[age] = true
			u.ActiveAges = append(u.ActiveAges, age)
		}
		if age > u.DaysSinceInstall {
			u.DaysSinceInstall = age
		}

		u.Sessions += ev.Sessions
		u.SessionDuration += ev.SessionDuration
		u.IAPRevenue += ev.IAPRevenue
		u.AdRevenue += ev.AdRevenue
		u.Victories += ev.Victories
		u.Defeats += ev.Defeats
		u.ConnectionErrors += ev.ConnectionErrors
		if ev.ConnectionErrors > 0 {
			u.ErrorDays++
		}
	}
	u.ActiveDays = len(u.ActiveAges)
	u.Revenue = u.IAPRevenue + u.AdRevenue
	u.Payer = u.Revenue > 0
	u.Matches = u.Victories + u.Defeats
	u.WinRate = ratio(float64(u.Victories), float64(u.Matches))
	u.ErrorRate = float64(u.ErrorDays) / float64(u.Events)
	return u
}

// ratio = num/den, indéfini si den == 0
func ratio(num, den float64) sql.NullFloat64 {
	if den == 0 {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: num / den, Valid: true}
}

// FormatRate affiche un taux en %, "n/a" s'il est indéfini.
func FormatRate(v sql.NullFloat64) string {
	if !v.Valid {
		return "n/a"
	}
	return fmt.Sprintf("%.1f%%", v.Float64*100)
}
