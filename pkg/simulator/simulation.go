package simulator

import (
	"fmt"
	"math"

	"abtest-cohorts/pkg/models"
	"abtest-cohorts/pkg/retention"
)

const (
	DefaultDays      = 30
	DefaultSaleBoost = 0.01

	originalName = string(models.SourceOriginal)
)

type source struct {
	kind       models.Source
	name       string
	installs   int
	curve      retention.Curve
	money      models.Monetization
	activation int
	displace   bool
}

type sale struct {
	start, end int // [start, end)
	boost      float64
}

// Simulation : variante + scénarios validés, prête à être avancée jour par jour.
type Simulation struct {
	variant   string
	days      int
	base      *source
	secondary []*source
	sales     []sale
	byName    map[string]*source
}

// State est l'accumulateur avancé une fois par jour simulé.
type State struct {
	Day               int
	Cohorts           []models.Cohort
	CumulativeRevenue float64
}

// Run simule cfg sur days jours avec les scénarios donnés.
func Run(cfg models.VariantConfig, days int, scenarios []models.Scenario) ([]models.DailyMetrics, error) {
	sim, err := New(cfg, days, scenarios)
	if err != nil {
		return nil, err
	}
	return sim.Run(), nil
}

// New valide toute la configuration. Toute erreur est une
// *ConfigurationError, aucun jour n'est simulé.
func New(cfg models.VariantConfig, days int, scenarios []models.Scenario) (*Simulation, error) {
	if days <= 0 {
		return nil, configErr("days", "must be > 0, got %d", days)
	}
	if cfg.DailyInstalls < 0 {
		return nil, configErr("daily_installs", "must be >= 0, got %d", cfg.DailyInstalls)
	}
	if err := validateMonetization("", cfg.Monetization); err != nil {
		return nil, err
	}
	curve, err := retention.FromSpec(cfg.RetentionCurve)
	if err != nil {
		return nil, wrapConfigErr("retention_curve", err)
	}

	sim := &Simulation{
		variant: cfg.Name,
		days:    days,
		base: &source{
			kind:     models.SourceOriginal,
			name:     originalName,
			installs: cfg.DailyInstalls,
			curve:    curve,
			money:    cfg.Monetization,
		},
		byName: make(map[string]*source),
	}
	sim.byName[originalName] = sim.base

	for i, sc := range scenarios {
		field := fmt.Sprintf("scenarios[%d]", i)
		if sc.ActivationDay < 0 {
			return nil, configErr(field+".activation_day", "must be >= 0, got %d", sc.ActivationDay)
		}
		switch sc.Kind {
		case models.ScenarioSale:
			if sc.Duration <= 0 {
				return nil, configErr(field+".duration", "must be > 0, got %d", sc.Duration)
			}
			boost := sc.Boost
			if boost == 0 {
				boost = DefaultSaleBoost
			}
			if !finite(boost) || boost < 0 || boost > 1 {
				return nil, configErr(field+".boost", "must be within (0, 1], got %v", boost)
			}
			sim.sales = append(sim.sales, sale{
				start: sc.ActivationDay,
				end:   sc.ActivationDay + sc.Duration,
				boost: boost,
			})

		case models.ScenarioNewSource:
			src, err := newSecondary(field, sc, cfg.Monetization, i)
			if err != nil {
				return nil, err
			}
			if _, dup := sim.byName[src.name]; dup {
				return nil, configErr(field+".name", "duplicate source name %q", src.name)
			}
			sim.byName[src.name] = src
			sim.secondary = append(sim.secondary, src)

		default:
			return nil, configErr(field+".kind", "unknown scenario kind %q", sc.Kind)
		}
	}
	return sim, nil
}

func newSecondary(field string, sc models.Scenario, inherited models.Monetization, i int) (*source, error) {
	if sc.DailyInstalls < 0 {
		return nil, configErr(field+".daily_installs", "must be >= 0, got %d", sc.DailyInstalls)
	}
	curve, err := retention.FromSpec(sc.RetentionCurve)
	if err != nil {
		return nil, wrapConfigErr(field+".retention_curve", err)
	}
	money := inherited
	if sc.Monetization != nil {
		money = *sc.Monetization
		if err := validateMonetization(field+".monetization.", money); err != nil {
			return nil, err
		}
	}
	name := sc.Name
	if name == "" {
		name = fmt.Sprintf("%s_%d", models.ScenarioNewSource, i)
	}
	return &source{
		kind:       models.SourceSecondary,
		name:       name,
		installs:   sc.DailyInstalls,
		curve:      curve,
		money:      money,
		activation: sc.ActivationDay,
		displace:   sc.DisplaceOriginal,
	}, nil
}

// finite : ni NaN ni ±Inf
func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func validateMonetization(prefix string, m models.Monetization) error {
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"purchase_probability", m.PurchaseProbability},
		{"arppu", m.ARPPU},
		{"ad_impressions_per_user", m.AdImpressionsPerUser},
		{"ecpm", m.ECPM},
	} {
		if !finite(f.v) {
			return configErr(prefix+f.name, "must be a finite number, got %v", f.v)
		}
	}
	if m.PurchaseProbability < 0 || m.PurchaseProbability > 1 {
		return configErr(prefix+"purchase_probability", "must be within [0, 1], got %v", m.PurchaseProbability)
	}
	if m.ARPPU < 0 {
		return configErr(prefix+"arppu", "must be >= 0, got %v", m.ARPPU)
	}
	if m.AdImpressionsPerUser < 0 {
		return configErr(prefix+"ad_impressions_per_user", "must be >= 0, got %v", m.AdImpressionsPerUser)
	}
	if m.ECPM < 0 {
		return configErr(prefix+"ecpm", "must be >= 0, got %v", m.ECPM)
	}
	switch m.PurchaseBasis {
	case "", models.PurchaseBasisDAU, models.PurchaseBasisInstalls:
	default:
		return configErr(prefix+"purchase_basis", "unknown basis %q", m.PurchaseBasis)
	}
	return nil
}

// Days retourne l'horizon de simulation.
func (s *Simulation) Days() int { return s.days }

// Run avance un State neuf sur tout l'horizon.
func (s *Simulation) Run() []models.DailyMetrics {
	st := &State{}
	out := make([]models.DailyMetrics, 0, s.days)
	for st.Day < s.days {
		out = append(out, s.Step(st))
	}
	return out
}

// SaleBoost : bonus additif de probabilité d'achat actif ce jour-là.
func (s *Simulation) SaleBoost(day int) float64 {
	var boost float64
	for _, sl := range s.sales {
		if day >= sl.start && day < sl.end {
			boost += sl.boost
		}
	}
	return boost
}

// Step simule st.Day, ajoute les cohortes du jour à st puis l'avance.
// Les métriques d'un jour ne dépendent que des cohortes installées jusqu'à ce jour.
func (s *Simulation) Step(st *State) models.DailyMetrics {
	d := st.Day

	// Cohortes du jour (la nouvelle source déplace une partie de l'originale)
	newInstalls := make(map[string]int, 1+len(s.secondary))
	displaced := 0
	for _, src := range s.secondary {
		if d < src.activation {
			continue
		}
		newInstalls[src.name] = src.installs
		if src.displace {
			displaced += src.installs
		}
	}
	newInstalls[originalName] = max(0, s.base.installs-displaced)

	st.Cohorts = append(st.Cohorts, models.Cohort{
		InstallDay: d,
		Size:       newInstalls[originalName],
		Source:     models.SourceOriginal,
		SourceName: originalName,
	})
	for _, src := range s.secondary {
		if d < src.activation {
			continue
		}
		st.Cohorts = append(st.Cohorts, models.Cohort{
			InstallDay: d,
			Size:       src.installs,
			Source:     models.SourceSecondary,
			SourceName: src.name,
		})
	}

	// Utilisateurs actifs par source
	active := make(map[string]float64, len(s.byName))
	for _, c := range st.Cohorts {
		src := s.byName[c.SourceName]
		active[c.SourceName] += float64(c.Size) * src.curve.Fraction(c.Age(d))
	}

	// Revenus IAP + pub, par source
	boost := s.SaleBoost(d)
	m := models.DailyMetrics{
		Day:                 d,
		PurchaseProbability: s.base.money.PurchaseProbability + boost,
	}
	for _, src := range s.sources() {
		dau := active[src.name]
		installs := newInstalls[src.name]
		m.Installs += installs
		m.DAU += dau
		if src.kind == models.SourceOriginal {
			m.DAUOriginal += dau
		} else {
			m.DAUSecondary += dau
		}

		payingBase := dau
		if src.money.PurchaseBasis == models.PurchaseBasisInstalls {
			payingBase = float64(installs)
		}
		m.IAPRevenue += payingBase * (src.money.PurchaseProbability + boost) * src.money.ARPPU
		m.AdRevenue += dau * src.money.AdImpressionsPerUser * (src.money.ECPM / 1000)
	}
	m.Revenue = m.IAPRevenue + m.AdRevenue

	// Cumul
	st.CumulativeRevenue += m.Revenue
	m.CumulativeRevenue = st.CumulativeRevenue

	st.Day++
	return m
}

func (s *Simulation) sources() []*source {
	out := make([]*source, 0, 1+len(s.secondary))
	out = append(out, s.base)
	return append(out, s.secondary...)
}
