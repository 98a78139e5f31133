// Package dataset charge les exports quotidiens compressés (.csv.gz).
package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"abtest-cohorts/pkg/models"
)

const DefaultPattern = "*.csv.gz"

var (
	ErrNoFiles       = errors.New("no event files found")
	ErrMissingColumn = errors.New("missing required column")
)

// Colonnes de l'export quotidien par utilisateur
const (
	colUserID          = "user_id"
	colEventDate       = "event_date"
	colInstallDate     = "install_date"
	colPlatform        = "platform"
	colCountry         = "country"
	colSessions        = "total_session_count"
	colSessionDuration = "total_session_duration"
	colMatchStarts     = "match_start_count"
	colMatchEnds       = "match_end_count"
	colVictories       = "victory_count"
	colDefeats         = "defeat_count"
	colErrors          = "server_connection_error"
	colIAPRevenue      = "iap_revenue"
	colAdRevenue       = "ad_revenue"
)

var requiredColumns = []string{colUserID, colEventDate, colInstallDate, colPlatform, colCountry}

var dateLayouts = []string{"2006-01-02", "2006-01-02 15:04:05", time.RFC3339}

// Options : fichiers lus et échantillonnage des lignes.
type Options struct {
	Pattern    string  // glob dans le répertoire, DefaultPattern si vide
	SampleFrac float64 // probabilité de garder une ligne ; 0 ou 1 = tout
	Seed       uint64
	Quiet      bool // pas de barre de progression
}

// Stats : compteurs de lecture.
type Stats struct {
	Files   int `json:"files"`
	Rows    int `json:"rows"`
	Kept    int `json:"kept"`
	Skipped int `json:"skipped"`
}

// LoadDir lit tous les fichiers de dir en parallèle ; les événements
// sont rendus dans l'ordre des noms de fichiers.
func LoadDir(ctx context.Context, dir string, opts Options, log *zap.Logger) ([]models.Event, Stats, error) {
	pattern := opts.Pattern
	if pattern == "" {
		pattern = DefaultPattern
	}
	files, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, Stats{}, fmt.Errorf("glob %s: %w", pattern, err)
	}
	if len(files) == 0 {
		return nil, Stats{}, fmt.Errorf("%s/%s: %w", dir, pattern, ErrNoFiles)
	}
	sort.Strings(files)

	var bar *progressbar.ProgressBar
	if opts.Quiet {
		bar = progressbar.NewOptions(len(files), progressbar.OptionSetWriter(io.Discard))
	} else {
		bar = progressbar.Default(int64(len(files)), "loading")
	}

	parts := make([][]models.Event, len(files))
	partStats := make([]Stats, len(files))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(runtime.NumCPU())
	for i, path := range files {
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			var sampler func() bool
			if opts.SampleFrac > 0 && opts.SampleFrac < 1 {
				rng := rand.New(rand.NewPCG(opts.Seed, uint64(i)))
				sampler = func() bool { return rng.Float64() < opts.SampleFrac }
			}
			evs, st, err := ReadFile(path, sampler, log)
			if err != nil {
				return err
			}
			parts[i], partStats[i] = evs, st
			_ = bar.Add(1)
			log.Info("loaded file",
				zap.String("file", filepath.Base(path)),
				zap.Int("rows", st.Rows),
				zap.Int("kept", st.Kept),
				zap.Int("skipped", st.Skipped),
			)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, Stats{}, err
	}

	var total Stats
	n := 0
	for _, st := range partStats {
		n += st.Kept
	}
	events := make([]models.Event, 0, n)
	for i, evs := range parts {
		events = append(events, evs...)
		total.Files++
		total.Rows += partStats[i].Rows
		total.Kept += partStats[i].Kept
		total.Skipped += partStats[i].Skipped
	}
	log.Info("loaded dataset",
		zap.Int("files", total.Files),
		zap.Int("rows", total.Rows),
		zap.Int("kept", total.Kept),
		zap.Int("skipped", total.Skipped),
	)
	return events, total, nil
}

// ReadFile décode un fichier CSV gzip. keep (si non nil) est consulté
// pour chaque ligne valide.
func ReadFile(path string, keep func() bool, log *zap.Logger) ([]models.Event, Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Stats{}, err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, Stats{}, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	defer gz.Close()

	evs, st, err := Decode(gz, keep, log.With(zap.String("file", filepath.Base(path))))
	if err != nil {
		return nil, Stats{}, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	st.Files = 1
	return evs, st, nil
}

// Decode lit un CSV avec en-tête. Les lignes incomplètes ou mal formées
// sont ignorées et comptées ; en-tête invalide ou flux illisible → erreur.
func Decode(r io.Reader, keep func() bool, log *zap.Logger) ([]models.Event, Stats, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err != nil {
		return nil, Stats{}, fmt.Errorf("read header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, c := range requiredColumns {
		if _, ok := idx[c]; !ok {
			return nil, Stats{}, fmt.Errorf("%q: %w", c, ErrMissingColumn)
		}
	}

	var (
		events []models.Event
		st     Stats
		line   = 1
	)
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			var pe *csv.ParseError
			if !errors.As(err, &pe) {
				return nil, Stats{}, fmt.Errorf("line %d: %w", line, err)
			}
			st.Rows++
			st.Skipped++
			log.Warn("skipping unreadable row", zap.Int("line", line), zap.Error(err))
			continue
		}
		st.Rows++

		ev, err := parseRow(row, idx)
		if err != nil {
			st.Skipped++
			log.Warn("skipping malformed row", zap.Int("line", line), zap.Error(err))
			continue
		}
		if keep != nil && !keep() {
			continue
		}
		events = append(events, ev)
		st.Kept++
	}
	return events, st, nil
}

type rowParser struct {
	row []string
	idx map[string]int
	err error
}

func (p *rowParser) field(col string) (string, bool) {
	i, ok := p.idx[col]
	if !ok || i >= len(p.row) {
		return "", false
	}
	return strings.TrimSpace(p.row[i]), true
}

func (p *rowParser) str(col string) string {
	v, ok := p.field(col)
	if p.err == nil && (!ok || v == "") {
		p.err = fmt.Errorf("%s: empty", col)
	}
	return v
}

func (p *rowParser) date(col string) time.Time {
	v := p.str(col)
	if p.err != nil {
		return time.Time{}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC()
		}
	}
	p.err = fmt.Errorf("%s: bad date %q", col, v)
	return time.Time{}
}

// Colonne numérique absente de l'en-tête → 0 ; cellule vide ou
// illisible → ligne invalide.
func (p *rowParser) number(col string) float64 {
	v, ok := p.field(col)
	if !ok || p.err != nil {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.err = fmt.Errorf("%s: %w", col, err)
	}
	return f
}

func (p *rowParser) integer(col string) int {
	f := p.number(col)
	if p.err == nil && f != float64(int(f)) {
		p.err = fmt.Errorf("%s: not an integer: %v", col, f)
	}
	return int(f)
}

func parseRow(row []string, idx map[string]int) (models.Event, error) {
	p := &rowParser{row: row, idx: idx}
	ev := models.Event{
		UserID:           p.str(colUserID),
		EventDate:        p.date(colEventDate),
		InstallDate:      p.date(colInstallDate),
		Platform:         p.str(colPlatform),
		Country:          p.str(colCountry),
		Sessions:         p.integer(colSessions),
		SessionDuration:  p.number(colSessionDuration),
		MatchStarts:      p.integer(colMatchStarts),
		MatchEnds:        p.integer(colMatchEnds),
		Victories:        p.integer(colVictories),
		Defeats:          p.integer(colDefeats),
		ConnectionErrors: p.integer(colErrors),
		IAPRevenue:       p.number(colIAPRevenue),
		AdRevenue:        p.number(colAdRevenue),
	}
	return ev, p.err
}
