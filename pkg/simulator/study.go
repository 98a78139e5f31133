package simulator

import (
	"context"
	"fmt"
	"io"

	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"

	"abtest-cohorts/pkg/models"
)

// Baseline : nom du run sans scénario.
const Baseline = "baseline"

// RunResult : une variante simulée sous un scénario.
type RunResult struct {
	Variant  string                `json:"variant"`
	Scenario string                `json:"scenario"`
	Series   []models.DailyMetrics `json:"series"`
}

// StudyResult contient tous les runs, dans l'ordre de la configuration.
type StudyResult struct {
	Days        int         `json:"days"`
	Checkpoints []int       `json:"checkpoints"`
	Variants    []string    `json:"variants"`
	Scenarios   []string    `json:"scenarios"`
	Runs        []RunResult `json:"runs"`
}

// RunStudy simule chaque variante sans scénario puis avec chacun de ses
// scénarios pris seul. Tout est validé avant le premier run.
func RunStudy(ctx context.Context, cfg models.Config, log *zap.Logger) (*StudyResult, error) {
	if len(cfg.Variants) == 0 {
		return nil, configErr("variants", "at least one variant is required")
	}
	days := cfg.Days
	if days == 0 {
		days = DefaultDays
	}

	type job struct {
		variant  string
		scenario string
		sim      *Simulation
	}
	var jobs []job
	res := &StudyResult{Days: days}
	seenScenario := map[string]bool{}

	seenVariant := map[string]bool{}
	for _, v := range cfg.Variants {
		if seenVariant[v.Name] {
			return nil, configErr("variants", "duplicate variant name %q", v.Name)
		}
		seenVariant[v.Name] = true

		sim, err := New(v, days, nil)
		if err != nil {
			return nil, fmt.Errorf("variant %s: %w", v.Name, err)
		}
		jobs = append(jobs, job{variant: v.Name, scenario: Baseline, sim: sim})
		res.Variants = append(res.Variants, v.Name)

		for i, sc := range v.Scenarios {
			name := sc.Name
			if name == "" {
				name = fmt.Sprintf("%s_%d", sc.Kind, i)
			}
			sim, err := New(v, days, []models.Scenario{sc})
			if err != nil {
				return nil, fmt.Errorf("variant %s scenario %s: %w", v.Name, name, err)
			}
			jobs = append(jobs, job{variant: v.Name, scenario: name, sim: sim})
			if !seenScenario[name] {
				seenScenario[name] = true
				res.Scenarios = append(res.Scenarios, name)
			}
		}
	}

	for _, cp := range cfg.Checkpoints {
		if cp > 0 && cp <= days {
			res.Checkpoints = append(res.Checkpoints, cp)
		}
	}
	if len(res.Checkpoints) == 0 {
		res.Checkpoints = []int{days}
	}

	bar := newBar(len(jobs), cfg.Quiet)
	for _, j := range jobs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		series := j.sim.Run()
		res.Runs = append(res.Runs, RunResult{Variant: j.variant, Scenario: j.scenario, Series: series})

		_ = bar.Add(1)
		last := series[len(series)-1]
		log.Debug("simulated run",
			zap.String("variant", j.variant),
			zap.String("scenario", j.scenario),
			zap.Float64("final_dau", last.DAU),
			zap.Float64("cumulative_revenue", last.CumulativeRevenue),
		)
	}
	log.Info("study complete", zap.Int("runs", len(res.Runs)), zap.Int("days", days))
	return res, nil
}

func newBar(n int, quiet bool) *progressbar.ProgressBar {
	if quiet {
		return progressbar.NewOptions(n, progressbar.OptionSetWriter(io.Discard))
	}
	return progressbar.Default(int64(n), "simulating")
}

// Series retourne le run (variante, scénario).
func (r *StudyResult) Series(variant, scenario string) ([]models.DailyMetrics, bool) {
	for _, run := range r.Runs {
		if run.Variant == variant && run.Scenario == scenario {
			return run.Series, true
		}
	}
	return nil, false
}

// RevenueThrough : revenu cumulé après les n premiers jours (n compté à partir de 1).
func RevenueThrough(series []models.DailyMetrics, n int) float64 {
	if n <= 0 || len(series) == 0 {
		return 0
	}
	if n > len(series) {
		n = len(series)
	}
	return series[n-1].CumulativeRevenue
}

// DAUOn : DAU du n-ième jour simulé (n compté à partir de 1).
func DAUOn(series []models.DailyMetrics, n int) float64 {
	if n <= 0 || n > len(series) {
		return 0
	}
	return series[n-1].DAU
}

// VariantValue : valeur d'une variante pour une question.
type VariantValue struct {
	Variant string  `json:"variant"`
	Value   float64 `json:"value"`
}

// Comparison met les variantes côte à côte pour une question.
type Comparison struct {
	Label  string         `json:"label"`
	Values []VariantValue `json:"values"`
	Winner string         `json:"winner"` // vide en cas d'égalité
}

// Winner retourne la variante de valeur maximale, "" en cas d'égalité.
func Winner(values []VariantValue) string {
	best, winner, tie := 0.0, "", false
	for i, v := range values {
		switch {
		case i == 0 || v.Value > best:
			best, winner, tie = v.Value, v.Variant, false
		case v.Value == best:
			tie = true
		}
	}
	if tie {
		return ""
	}
	return winner
}

// Comparisons : DAU au premier checkpoint, revenu baseline à chaque
// checkpoint, puis revenu à l'horizon pour chaque scénario.
func (r *StudyResult) Comparisons() []Comparison {
	var out []Comparison
	add := func(label, scenario string, metric func([]models.DailyMetrics) float64) {
		c := Comparison{Label: label}
		for _, v := range r.Variants {
			series, ok := r.Series(v, scenario)
			if !ok {
				continue
			}
			c.Values = append(c.Values, VariantValue{Variant: v, Value: metric(series)})
		}
		c.Winner = Winner(c.Values)
		out = append(out, c)
	}

	first := r.Checkpoints[0]
	add(fmt.Sprintf("DAU on day %d", first), Baseline, func(s []models.DailyMetrics) float64 {
		return DAUOn(s, first)
	})
	for _, cp := range r.Checkpoints {
		add(fmt.Sprintf("Revenue through day %d", cp), Baseline, func(s []models.DailyMetrics) float64 {
			return RevenueThrough(s, cp)
		})
	}
	for _, sc := range r.Scenarios {
		add(fmt.Sprintf("Revenue through day %d with %s", r.Days, sc), sc, func(s []models.DailyMetrics) float64 {
			return RevenueThrough(s, r.Days)
		})
	}
	return out
}

// Lift : revenu incrémental d'un scénario par rapport à la baseline, à l'horizon.
type Lift struct {
	Variant  string  `json:"variant"`
	Scenario string  `json:"scenario"`
	Baseline float64 `json:"baseline"`
	Revenue  float64 `json:"revenue"`
	Delta    float64 `json:"delta"`
}

// Lifts retourne un Lift par variante et scénario.
func (r *StudyResult) Lifts() []Lift {
	var out []Lift
	for _, v := range r.Variants {
		base, ok := r.Series(v, Baseline)
		if !ok {
			continue
		}
		b := RevenueThrough(base, r.Days)
		for _, sc := range r.Scenarios {
			series, ok := r.Series(v, sc)
			if !ok {
				continue
			}
			rev := RevenueThrough(series, r.Days)
			out = append(out, Lift{Variant: v, Scenario: sc, Baseline: b, Revenue: rev, Delta: rev - b})
		}
	}
	return out
}

// BestScenario : scénario au plus grand lift cumulé sur les variantes,
// "" s'il n'y en a aucun.
func (r *StudyResult) BestScenario() string {
	totals := map[string]float64{}
	for _, l := range r.Lifts() {
		totals[l.Scenario] += l.Delta
	}
	best, name := 0.0, ""
	for _, sc := range r.Scenarios {
		if t, ok := totals[sc]; ok && (name == "" || t > best) {
			best, name = t, sc
		}
	}
	return name
}
