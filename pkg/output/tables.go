// Package output : tableaux terminal (lipgloss) et artefacts CSV / JSON.
package output

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"abtest-cohorts/pkg/models"
	"abtest-cohorts/pkg/reporter"
	"abtest-cohorts/pkg/simulator"
)

var (
	accent = lipgloss.Color("#8BC34A")
	border = lipgloss.Color("#2a3850")

	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(accent).MarginTop(1)
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	numberStyle = cellStyle.Align(lipgloss.Right)
)

func newTable(title string, headers []string, rows [][]string) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(border)).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col == 0:
				return cellStyle
			default:
				return numberStyle
			}
		}).
		Headers(headers...).
		Rows(rows...)
	return titleStyle.Render(title) + "\n" + t.String()
}

func num(v float64, prec int) string {
	return strconv.FormatFloat(v, 'f', prec, 64)
}

func pct(v float64) string {
	return fmt.Sprintf("%.1f%%", v*100)
}

// Series affiche un run jour par jour.
func Series(variant, scenario string, series []models.DailyMetrics) string {
	rows := make([][]string, 0, len(series))
	for _, m := range series {
		rows = append(rows, []string{
			strconv.Itoa(m.Day + 1),
			strconv.Itoa(m.Installs),
			num(m.DAU, 0),
			num(m.DAUSecondary, 0),
			pct(m.PurchaseProbability),
			num(m.IAPRevenue, 2),
			num(m.AdRevenue, 2),
			num(m.Revenue, 2),
			num(m.CumulativeRevenue, 2),
		})
	}
	return newTable(
		fmt.Sprintf("Variant %s, %s", variant, scenario),
		[]string{"Day", "Installs", "DAU", "DAU new source", "Purchase p", "IAP", "Ads", "Revenue", "Cumulative"},
		rows,
	)
}

// Comparisons affiche chaque question et sa variante gagnante.
func Comparisons(cmp []simulator.Comparison) string {
	if len(cmp) == 0 {
		return ""
	}
	headers := []string{"Question"}
	for _, v := range cmp[0].Values {
		headers = append(headers, v.Variant)
	}
	headers = append(headers, "Winner")

	rows := make([][]string, 0, len(cmp))
	for _, c := range cmp {
		row := []string{c.Label}
		for _, v := range c.Values {
			row = append(row, num(v.Value, 2))
		}
		winner := c.Winner
		if winner == "" {
			winner = "tie"
		}
		rows = append(rows, append(row, winner))
	}
	return newTable("Comparison", headers, rows)
}

func Lifts(lifts []simulator.Lift) string {
	rows := make([][]string, 0, len(lifts))
	for _, l := range lifts {
		rows = append(rows, []string{
			l.Variant,
			l.Scenario,
			num(l.Baseline, 2),
			num(l.Revenue, 2),
			fmt.Sprintf("%+.2f", l.Delta),
		})
	}
	return newTable("Scenario lift", []string{"Variant", "Scenario", "Baseline", "Revenue", "Delta"}, rows)
}

func Groups(title string, groups []models.GroupSummary) string {
	rows := make([][]string, 0, len(groups))
	for _, g := range groups {
		rows = append(rows, []string{
			g.Key,
			strconv.Itoa(g.Users),
			num(g.Revenue, 2),
			num(g.ARPU, 4),
			pct(g.PayerShare),
			num(g.MeanSessions, 1),
			strconv.Itoa(g.UserDays),
			pct(g.ErrorRate),
			reporter.FormatRate(g.MeanWinRate),
		})
	}
	return newTable(title,
		[]string{"Group", "Users", "Revenue", "ARPU", "Payers", "Sessions", "User-days", "Error rate", "Win rate"},
		rows,
	)
}

// Retention affiche D1..Dn, avec la moyenne des cohortes si avg est non vide.
func Retention(curve, avg []models.RetentionPoint) string {
	headers := []string{"Day", "Retained", "Users", "Rate"}
	if len(avg) > 0 {
		headers = append(headers, "Cohort avg")
	}
	rows := make([][]string, 0, len(curve))
	for i, p := range curve {
		row := []string{"D" + strconv.Itoa(p.Day), strconv.Itoa(p.Retained), strconv.Itoa(p.Users), pct(p.Rate)}
		if len(avg) > 0 {
			cell := ""
			if i < len(avg) {
				cell = pct(avg[i].Rate)
			}
			row = append(row, cell)
		}
		rows = append(rows, row)
	}
	return newTable("Retention", headers, rows)
}

// Cohorts : rétention par date d'installation.
func Cohorts(cohorts []models.CohortRetention) string {
	if len(cohorts) == 0 {
		return ""
	}
	headers := []string{"Install date", "Size"}
	for k := range cohorts[0].Rates {
		headers = append(headers, "D"+strconv.Itoa(k+1))
	}
	rows := make([][]string, 0, len(cohorts))
	for _, c := range cohorts {
		row := []string{c.InstallDate.Format("2006-01-02"), strconv.Itoa(c.Size)}
		for _, r := range c.Rates {
			row = append(row, pct(r))
		}
		rows = append(rows, row)
	}
	return newTable("Cohort retention", headers, rows)
}

// Overview : description du jeu de données et taux de victoire.
func Overview(o reporter.OverviewStats, w reporter.WinRateStats) string {
	countries := make([]string, 0, len(o.TopCountries))
	for _, c := range o.TopCountries {
		countries = append(countries, fmt.Sprintf("%s (%d)", c.Country, c.UserDays))
	}
	rows := [][]string{
		{"Rows", strconv.Itoa(o.Rows)},
		{"Skipped", strconv.Itoa(o.Skipped)},
		{"Users", strconv.Itoa(o.Users)},
		{"Event dates", dateRange(o)},
		{"Platforms", strings.Join(o.Platforms, ", ")},
		{"Top countries", strings.Join(countries, ", ")},
		{"Days since install", fmt.Sprintf("min %d / median %d / max %d",
			o.MinDaysSinceInstall, o.MedianDaysSinceInstall, o.MaxDaysSinceInstall)},
		{"Mean win rate", reporter.FormatRate(w.Mean)},
		{"Users without matches", strconv.Itoa(w.Undefined)},
	}
	return newTable("Dataset", []string{"Metric", "Value"}, rows)
}

func dateRange(o reporter.OverviewStats) string {
	if o.Users == 0 {
		return "n/a"
	}
	return o.FirstEvent.Format("2006-01-02") + " .. " + o.LastEvent.Format("2006-01-02")
}
