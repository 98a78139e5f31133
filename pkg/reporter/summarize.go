package reporter

import (
	"database/sql"
	"sort"

	"abtest-cohorts/pkg/models"
)

// GroupBy : regroupement des utilisateurs et classement des groupes.
type GroupBy struct {
	Name string
	// Key retourne le groupe d'un utilisateur ; ok=false l'exclut.
	Key func(u models.UserSummary) (key string, ok bool)
	// Metric : métrique principale, tri décroissant.
	Metric func(g models.GroupSummary) float64
	// Limit : garde les Limit premiers groupes après tri (0 = tous).
	Limit int
	// MinUserDays : garde les groupes ayant strictement plus de user-days (0 = tous).
	MinUserDays int
}

func byRevenue(g models.GroupSummary) float64   { return g.Revenue }
func byARPU(g models.GroupSummary) float64      { return g.ARPU }
func byErrorRate(g models.GroupSummary) float64 { return g.ErrorRate }

// ByPlatform classe les plateformes par revenu total.
func ByPlatform() GroupBy {
	return GroupBy{
		Name:   "platform",
		Key:    func(u models.UserSummary) (string, bool) { return u.Platform, true },
		Metric: byRevenue,
	}
}

// ByCountry classe les pays par revenu total (top limit).
func ByCountry(limit int) GroupBy {
	return GroupBy{
		Name:   "country",
		Key:    func(u models.UserSummary) (string, bool) { return u.Country, true },
		Metric: byRevenue,
		Limit:  limit,
	}
}

// SessionBuckets : tranches d'engagement, bornes hautes incluses.
var SessionBuckets = []struct {
	Max   int
	Label string
}{
	{1, "1"},
	{3, "2-3"},
	{10, "4-10"},
	{30, "11-30"},
	{100, "31-100"},
}

const lastBucket = "100+"

// SessionBucket retourne la tranche d'un nombre de sessions.
// 0 session → aucune tranche.
func SessionBucket(sessions int) (string, bool) {
	if sessions <= 0 {
		return "", false
	}
	for _, b := range SessionBuckets {
		if sessions <= b.Max {
			return b.Label, true
		}
	}
	return lastBucket, true
}

// BySessionBucket classe les tranches par ARPU.
func BySessionBucket() GroupBy {
	return GroupBy{
		Name:   "sessions",
		Key:    func(u models.UserSummary) (string, bool) { return SessionBucket(u.Sessions) },
		Metric: byARPU,
	}
}

// ByErrorRate reclasse g par taux d'erreur sur les user-days, en gardant
// les groupes de plus de minUserDays user-days.
func ByErrorRate(g GroupBy, minUserDays int) GroupBy {
	g.Name += "_errors"
	g.Metric = byErrorRate
	g.MinUserDays = minUserDays
	return g
}

type accumulator struct {
	sum      models.GroupSummary
	errSum   float64
	winSum   float64
	winCount int
	sessions int
}

// Summarize calcule les agrégats par groupe. Les taux de victoire
// indéfinis sont exclus de la moyenne.
func Summarize(rows []models.UserSummary, by GroupBy) []models.GroupSummary {
	if len(rows) == 0 {
		return nil
	}
	metric := by.Metric
	if metric == nil {
		metric = byRevenue
	}

	groups := make(map[string]*accumulator)
	var order []string
	for _, u := range rows {
		key, ok := by.Key(u)
		if !ok {
			continue
		}
		acc, exists := groups[key]
		if !exists {
			acc = &accumulator{sum: models.GroupSummary{Key: key}}
			groups[key] = acc
			order = append(order, key)
		}
		acc.sum.Users++
		acc.sum.Revenue += u.Revenue
		if u.Payer {
			acc.sum.Payers++
		}
		acc.sum.UserDays += u.Events
		acc.sum.ErrorDays += u.ErrorDays
		acc.sessions += u.Sessions
		acc.errSum += u.ErrorRate
		if u.WinRate.Valid {
			acc.winSum += u.WinRate.Float64
			acc.winCount++
		}
	}

	out := make([]models.GroupSummary, 0, len(order))
	for _, key := range order {
		acc := groups[key]
		g := acc.sum
		if by.MinUserDays > 0 && g.UserDays <= by.MinUserDays {
			continue
		}
		n := float64(g.Users)
		g.ARPU = g.Revenue / n
		g.PayerShare = float64(g.Payers) / n
		g.MeanSessions = float64(acc.sessions) / n
		g.MeanErrorRate = acc.errSum / n
		if g.UserDays > 0 {
			g.ErrorRate = float64(g.ErrorDays) / float64(g.UserDays)
		}
		if acc.winCount > 0 {
			g.MeanWinRate = sql.NullFloat64{Float64: acc.winSum / float64(acc.winCount), Valid: true}
		}
		out = append(out, g)
	}

	sort.SliceStable(out, func(i, j int) bool {
		mi, mj := metric(out[i]), metric(out[j])
		if mi != mj {
			return mi > mj
		}
		return out[i].Key < out[j].Key
	})
	if by.Limit > 0 && len(out) > by.Limit {
		out = out[:by.Limit]
	}
	return out
}

// RetentionCurve : pour k = 1..maxAge, part des utilisateurs dont le dernier
// jour observé depuis l'installation est ≥ k.
func RetentionCurve(rows []models.UserSummary, maxAge int) []models.RetentionPoint {
	if len(rows) == 0 || maxAge <= 0 {
		return nil
	}
	out := make([]models.RetentionPoint, 0, maxAge)
	for k := 1; k <= maxAge; k++ {
		p := models.RetentionPoint{Day: k, Users: len(rows)}
		for _, u := range rows {
			if u.DaysSinceInstall >= k {
				p.Retained++
			}
		}
		p.Rate = float64(p.Retained) / float64(p.Users)
		out = append(out, p)
	}
	return out
}

// CohortRetention : par date d'installation, part de la cohorte active
// exactement k jours après (k = 1..maxAge), cohortes triées par date.
func CohortRetention(rows []models.UserSummary, maxAge int) []models.CohortRetention {
	if len(rows) == 0 || maxAge <= 0 {
		return nil
	}
	type cohort struct {
		size   int
		active []int
	}
	cohorts := make(map[int64]*cohort)
	for _, u := range rows {
		key := u.InstallDate.Unix()
		c, ok := cohorts[key]
		if !ok {
			c = &cohort{active: make([]int, maxAge)}
			cohorts[key] = c
		}
		c.size++
		for _, age := range u.ActiveAges {
			if age >= 1 && age <= maxAge {
				c.active[age-1]++
			}
		}
	}

	keys := make([]int64, 0, len(cohorts))
	for k := range cohorts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	out := make([]models.CohortRetention, 0, len(keys))
	for _, k := range keys {
		c := cohorts[k]
		row := models.CohortRetention{
			InstallDate: unixDay(k),
			Size:        c.size,
			Rates:       make([]float64, maxAge),
		}
		for i, n := range c.active {
			row.Rates[i] = float64(n) / float64(c.size)
		}
		out = append(out, row)
	}
	return out
}

// AverageCohortRetention moyenne les taux sur l'ensemble des cohortes.
func AverageCohortRetention(cohorts []models.CohortRetention) []models.RetentionPoint {
	if len(cohorts) == 0 {
		return nil
	}
	maxAge := len(cohorts[0].Rates)
	out := make([]models.RetentionPoint, maxAge)
	for i := range out {
		out[i].Day = i + 1
	}
	for _, c := range cohorts {
		for i, rate := range c.Rates {
			out[i].Users += c.Size
			out[i].Retained += int(rate*float64(c.Size) + 0.5)
			out[i].Rate += rate
		}
	}
	for i := range out {
		out[i].Rate /= float64(len(cohorts))
	}
	return out
}
