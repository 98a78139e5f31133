// Package config lit le fichier d'étude puis applique .env et variables d'environnement.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"abtest-cohorts/pkg/models"
)

//go:embed default_study.yaml
var defaultStudy []byte

// Variables d'environnement prioritaires sur le fichier d'étude
const (
	EnvDSN        = "ABTEST_DSN"
	EnvDataDir    = "ABTEST_DATA_DIR"
	EnvOutputDir  = "ABTEST_OUTPUT_DIR"
	EnvDays       = "ABTEST_DAYS"
	EnvTable      = "ABTEST_TABLE"
	EnvSampleFrac = "ABTEST_SAMPLE_FRAC"
)

const (
	DefaultDays         = 30
	DefaultOutputDir    = "out"
	DefaultPattern      = "*.csv.gz"
	DefaultTable        = "DailyUserMetrics"
	DefaultMaxAge       = 7
	DefaultTopCountries = 10
	DefaultMinUserDays  = 5000
)

// DefaultStudy retourne une copie de l'étude embarquée.
func DefaultStudy() []byte {
	return bytes.Clone(defaultStudy)
}

// LoadEnvFile charge name dans l'environnement. Fichier absent → pas d'erreur ;
// les variables déjà définies sont conservées.
func LoadEnvFile(name string) error {
	if err := godotenv.Load(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", name, err)
	}
	return nil
}

// Load lit path (ou l'étude embarquée si vide), puis applique
// l'environnement et les valeurs par défaut.
func Load(path string) (models.Config, error) {
	data := defaultStudy
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return models.Config{}, fmt.Errorf("read config: %w", err)
		}
		data = b
	}
	cfg, err := Parse(bytes.NewReader(data))
	if err != nil {
		if path == "" {
			path = "default study"
		}
		return models.Config{}, fmt.Errorf("%s: %w", path, err)
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	return cfg, nil
}

// Parse décode un document d'étude ; clés inconnues refusées.
func Parse(r io.Reader) (models.Config, error) {
	var cfg models.Config
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return models.Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *models.Config) {
	cfg.Report.DSN = getEnv(EnvDSN, cfg.Report.DSN)
	cfg.Report.DataDir = getEnv(EnvDataDir, cfg.Report.DataDir)
	cfg.Report.Table = getEnv(EnvTable, cfg.Report.Table)
	cfg.Report.SampleFrac = getEnvAsFloat(EnvSampleFrac, cfg.Report.SampleFrac)
	cfg.OutputDir = getEnv(EnvOutputDir, cfg.OutputDir)
	cfg.Days = getEnvAsInt(EnvDays, cfg.Days)
}

func applyDefaults(cfg *models.Config) {
	if cfg.Days == 0 {
		cfg.Days = DefaultDays
	}
	if len(cfg.Checkpoints) == 0 {
		cfg.Checkpoints = []int{cfg.Days / 2, cfg.Days}
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = DefaultOutputDir
	}
	r := &cfg.Report
	if r.Pattern == "" {
		r.Pattern = DefaultPattern
	}
	if r.Table == "" {
		r.Table = DefaultTable
	}
	if r.MaxAge == 0 {
		r.MaxAge = DefaultMaxAge
	}
	if r.TopCountries == 0 {
		r.TopCountries = DefaultTopCountries
	}
	if r.MinUserDays == 0 {
		r.MinUserDays = DefaultMinUserDays
	}
}

// Lecture typée des variables d'environnement
func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultVal
}

func getEnvAsFloat(key string, defaultVal float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultVal
}
