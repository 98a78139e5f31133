package output

import (
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"abtest-cohorts/pkg/models"
)

// Writer écrit les artefacts d'une exécution sous Dir.
type Writer struct {
	Dir   string
	RunID string
	log   *zap.Logger
	now   func() time.Time
}

// NewWriter crée dir si besoin et génère un run_id.
func NewWriter(dir string, log *zap.Logger) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Writer{Dir: dir, RunID: uuid.NewString(), log: log, now: time.Now}, nil
}

// Envelope enveloppe chaque artefact JSON.
type Envelope struct {
	RunID       string    `json:"run_id"`
	GeneratedAt time.Time `json:"generated_at"`
	Kind        string    `json:"kind"`
	Data        any       `json:"data"`
}

// JSON écrit payload dans <name>.json.
func (w *Writer) JSON(name string, payload any) (string, error) {
	path := filepath.Join(w.Dir, name+".json")
	b, err := json.MarshalIndent(Envelope{
		RunID:       w.RunID,
		GeneratedAt: w.now().UTC(),
		Kind:        name,
		Data:        payload,
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", name, err)
	}
	if err := os.WriteFile(path, append(b, '\n'), 0o644); err != nil {
		return "", err
	}
	w.log.Debug("wrote artifact", zap.String("path", path), zap.String("run_id", w.RunID))
	return path, nil
}

func (w *Writer) csv(name string, header []string, rows [][]string) (string, error) {
	path := filepath.Join(w.Dir, name+".csv")
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if err := cw.Write(header); err != nil {
		return "", err
	}
	if err := cw.WriteAll(rows); err != nil {
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	w.log.Debug("wrote artifact", zap.String("path", path), zap.Int("rows", len(rows)))
	return path, nil
}

func fmtFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func fmtNull(v sql.NullFloat64) string {
	if !v.Valid {
		return ""
	}
	return fmtFloat(v.Float64)
}

// Series écrit simulation_<variant>_<scenario>.csv (jours numérotés à partir de 1).
func (w *Writer) Series(variant, scenario string, series []models.DailyMetrics) (string, error) {
	rows := make([][]string, 0, len(series))
	for _, m := range series {
		rows = append(rows, []string{
			strconv.Itoa(m.Day + 1),
			strconv.Itoa(m.Installs),
			fmtFloat(m.DAU),
			fmtFloat(m.DAUOriginal),
			fmtFloat(m.DAUSecondary),
			fmtFloat(m.PurchaseProbability),
			fmtFloat(m.IAPRevenue),
			fmtFloat(m.AdRevenue),
			fmtFloat(m.Revenue),
			fmtFloat(m.CumulativeRevenue),
		})
	}
	return w.csv("simulation_"+variant+"_"+scenario,
		[]string{"day", "installs", "dau", "dau_original", "dau_secondary", "purchase_probability",
			"iap_revenue", "ad_revenue", "revenue", "cumulative_revenue"},
		rows,
	)
}

// Groups écrit report_<view>.csv.
func (w *Writer) Groups(view string, groups []models.GroupSummary) (string, error) {
	rows := make([][]string, 0, len(groups))
	for _, g := range groups {
		rows = append(rows, []string{
			g.Key,
			strconv.Itoa(g.Users),
			fmtFloat(g.Revenue),
			fmtFloat(g.ARPU),
			strconv.Itoa(g.Payers),
			fmtFloat(g.PayerShare),
			fmtFloat(g.MeanSessions),
			strconv.Itoa(g.UserDays),
			strconv.Itoa(g.ErrorDays),
			fmtFloat(g.ErrorRate),
			fmtFloat(g.MeanErrorRate),
			fmtNull(g.MeanWinRate),
		})
	}
	return w.csv("report_"+view,
		[]string{"key", "users", "revenue", "arpu", "payers", "payer_share", "mean_sessions",
			"user_days", "error_days", "error_rate", "mean_error_rate", "mean_win_rate"},
		rows,
	)
}

// Retention écrit retention.csv : courbe globale, moyenne des cohortes,
// puis une ligne par date d'installation.
func (w *Writer) Retention(curve, avg []models.RetentionPoint, cohorts []models.CohortRetention) (string, error) {
	maxAge := len(curve)
	header := []string{"cohort", "size"}
	for k := 1; k <= maxAge; k++ {
		header = append(header, "d"+strconv.Itoa(k))
	}

	pointsRow := func(label string, pts []models.RetentionPoint) []string {
		size := 0
		if len(pts) > 0 {
			size = pts[0].Users
		}
		row := []string{label, strconv.Itoa(size)}
		for k := 0; k < maxAge; k++ {
			cell := ""
			if k < len(pts) {
				cell = fmtFloat(pts[k].Rate)
			}
			row = append(row, cell)
		}
		return row
	}

	rows := [][]string{pointsRow("all", curve)}
	if len(avg) > 0 {
		rows = append(rows, pointsRow("cohort_average", avg))
	}
	for _, c := range cohorts {
		row := []string{c.InstallDate.Format("2006-01-02"), strconv.Itoa(c.Size)}
		for k := 0; k < maxAge; k++ {
			cell := ""
			if k < len(c.Rates) {
				cell = fmtFloat(c.Rates[k])
			}
			row = append(row, cell)
		}
		rows = append(rows, row)
	}
	return w.csv("retention", header, rows)
}

// NullableRate : taux optionnel → *float64 (null en JSON si indéfini).
func NullableRate(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
