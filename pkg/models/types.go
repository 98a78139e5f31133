package models

import (
	"database/sql"
	"time"

	"gopkg.in/yaml.v3"
)

/*
LOAD → types simples pour les événements bruts (une ligne = un utilisateur × un jour).
*/

// Event représente une ligne brute du jeu de données quotidien par utilisateur,
// telle qu'elle est lue depuis un fichier .csv.gz ou depuis la base de données.
type Event struct {
	UserID           string
	EventDate        time.Time
	InstallDate      time.Time
	Platform         string
	Country          string
	Sessions         int     // total_session_count
	SessionDuration  float64 // total_session_duration
	MatchStarts      int     // match_start_count
	MatchEnds        int     // match_end_count
	Victories        int     // victory_count
	Defeats          int     // defeat_count
	ConnectionErrors int     // server_connection_error
	IAPRevenue       float64
	AdRevenue        float64
}

/*
SIMULATE → cohortes, variantes et scénarios
*/

// Source identifie la source d'acquisition d'une cohorte.
type Source string

const (
	SourceOriginal  Source = "original"
	SourceSecondary Source = "secondary"
)

// Cohort regroupe toutes les installations d'un même jour pour une source.
// Size ne change jamais après la création.
type Cohort struct {
	InstallDay int
	Size       int
	Source     Source
	SourceName string // "original" ou nom du scénario new_source
}

// Age retourne le nombre de jours écoulés depuis l'installation.
func (c Cohort) Age(day int) int {
	return day - c.InstallDay
}

// CurveSpec décrit une courbe de rétention dans la configuration.
//
// Deux formes YAML sont acceptées : la forme courte `{1: 0.4, 3: 0.25}`
// et la forme complète `{kind: exponential, initial: 0.58, decay: 0.12}`.
type CurveSpec struct {
	Kind          string          `yaml:"kind" json:"kind,omitempty"`                   // "benchmarks" (défaut) ou "exponential"
	Interpolation string          `yaml:"interpolation" json:"interpolation,omitempty"` // "step" (défaut) ou "linear"
	Points        map[int]float64 `yaml:"points" json:"points,omitempty"`
	Initial       float64         `yaml:"initial" json:"initial,omitempty"`
	Decay         float64         `yaml:"decay" json:"decay,omitempty"`
}

// UnmarshalYAML accepte la forme courte (map âge → fraction).
func (c *CurveSpec) UnmarshalYAML(node *yaml.Node) error {
	var points map[int]float64
	if err := node.Decode(&points); err == nil {
		*c = CurveSpec{Points: points}
		return nil
	}
	type plain CurveSpec
	return node.Decode((*plain)(c))
}

// Monetization contient les constantes de monétisation par utilisateur actif.
type Monetization struct {
	PurchaseProbability  float64 `yaml:"purchase_probability" json:"purchase_probability"`
	ARPPU                float64 `yaml:"arppu" json:"arppu"`
	AdImpressionsPerUser float64 `yaml:"ad_impressions_per_user" json:"ad_impressions_per_user"`
	ECPM                 float64 `yaml:"ecpm" json:"ecpm"`
	// PurchaseBasis : "dau" (défaut) ou "installs" (achats calculés sur les nouvelles installations).
	PurchaseBasis string `yaml:"purchase_basis" json:"purchase_basis,omitempty"`
}

const (
	PurchaseBasisDAU      = "dau"
	PurchaseBasisInstalls = "installs"
)

// VariantConfig est la configuration complète d'une variante du test A/B.
type VariantConfig struct {
	Name           string    `yaml:"name" json:"name"`
	DailyInstalls  int       `yaml:"daily_installs" json:"daily_installs"`
	RetentionCurve CurveSpec `yaml:"retention_curve" json:"retention_curve"`
	Monetization   `yaml:",inline"`
	Scenarios      []Scenario `yaml:"scenarios" json:"scenarios,omitempty"`
}

// ScenarioKind est le type d'un scénario superposé à la référence.
type ScenarioKind string

const (
	ScenarioSale      ScenarioKind = "sale"
	ScenarioNewSource ScenarioKind = "new_source"
)

// Scenario est une modification bornée dans le temps des paramètres de référence.
type Scenario struct {
	Name          string       `yaml:"name" json:"name"`
	Kind          ScenarioKind `yaml:"kind" json:"kind"`
	ActivationDay int          `yaml:"activation_day" json:"activation_day"`

	// sale
	Duration int     `yaml:"duration" json:"duration,omitempty"`
	Boost    float64 `yaml:"boost" json:"boost,omitempty"`

	// new_source
	DailyInstalls    int           `yaml:"daily_installs" json:"daily_installs,omitempty"`
	RetentionCurve   CurveSpec     `yaml:"retention_curve" json:"retention_curve,omitempty"`
	Monetization     *Monetization `yaml:"monetization" json:"monetization,omitempty"`
	DisplaceOriginal bool          `yaml:"displace_original" json:"displace_original,omitempty"`
}

// DailyMetrics contient les métriques simulées pour un jour donné.
type DailyMetrics struct {
	Day                 int     `json:"day"`
	Installs            int     `json:"installs"`
	DAU                 float64 `json:"dau"`
	DAUOriginal         float64 `json:"dau_original"`
	DAUSecondary        float64 `json:"dau_secondary"`
	PurchaseProbability float64 `json:"purchase_probability"`
	IAPRevenue          float64 `json:"iap_revenue"`
	AdRevenue           float64 `json:"ad_revenue"`
	Revenue             float64 `json:"revenue"`
	CumulativeRevenue   float64 `json:"cumulative_revenue"`
}

/*
REPORT → agrégats par utilisateur et par groupe
*/

// UserSummary est la ligne agrégée d'un utilisateur. Immuable une fois calculée.
type UserSummary struct {
	UserID      string
	Platform    string
	Country     string
	InstallDate time.Time
	FirstSeen   time.Time
	LastSeen    time.Time

	Events           int   // lignes retenues (user-days)
	ActiveDays       int   // jours distincts observés
	ActiveAges       []int // jours depuis l'installation observés, triés
	DaysSinceInstall int   // dernier jour observé depuis l'installation

	Sessions         int
	SessionDuration  float64
	IAPRevenue       float64
	AdRevenue        float64
	Revenue          float64
	Victories        int
	Defeats          int
	Matches          int
	ConnectionErrors int
	ErrorDays        int

	WinRate   sql.NullFloat64 // indéfini quand Matches == 0
	ErrorRate float64         // ErrorDays / Events
	Payer     bool
}

// AggregateStats compte les lignes lues et retenues pendant l'agrégation.
type AggregateStats struct {
	EventsRead    int `json:"events_read"`
	EventsUsed    int `json:"events_used"`
	EventsSkipped int `json:"events_skipped"`
	Users         int `json:"users"`
}

// GroupSummary contient les agrégats d'un groupe d'utilisateurs.
type GroupSummary struct {
	Key           string          `json:"key"`
	Users         int             `json:"users"`
	Revenue       float64         `json:"revenue"`
	ARPU          float64         `json:"arpu"`
	Payers        int             `json:"payers"`
	PayerShare    float64         `json:"payer_share"`
	MeanSessions  float64         `json:"mean_sessions"`
	UserDays      int             `json:"user_days"`
	ErrorDays     int             `json:"error_days"`
	ErrorRate     float64         `json:"error_rate"`
	MeanErrorRate float64         `json:"mean_error_rate"`
	MeanWinRate   sql.NullFloat64 `json:"-"`
}

// RetentionPoint est un point d'une courbe de rétention observée (D1..D7).
type RetentionPoint struct {
	Day      int     `json:"day"`
	Retained int     `json:"retained"`
	Users    int     `json:"users"`
	Rate     float64 `json:"rate"`
}

// CohortRetention contient la rétention d'une cohorte d'installation journalière.
type CohortRetention struct {
	InstallDate time.Time `json:"install_date"`
	Size        int       `json:"size"`
	Rates       []float64 `json:"rates"` // index k-1 → Dk
}

/*
CONFIG → paramètres globaux
*/

// Config contient les paramètres de l'étude (simulation + rapport).
type Config struct {
	Days        int             `yaml:"days" json:"days"`
	Checkpoints []int           `yaml:"checkpoints" json:"checkpoints"` // jours de comparaison (ex: 15, 30)
	Variants    []VariantConfig `yaml:"variants" json:"variants"`
	Report      ReportConfig    `yaml:"report" json:"report"`
	OutputDir   string          `yaml:"output_dir" json:"output_dir"`
	Verbose     bool            `yaml:"-" json:"-"` // Flag pour activer les logs détaillés.
	Quiet       bool            `yaml:"-" json:"-"` // Désactive la barre de progression.
}

// ReportConfig contient les paramètres du rapport descriptif.
type ReportConfig struct {
	DataDir      string  `yaml:"data_dir" json:"data_dir"`
	Pattern      string  `yaml:"pattern" json:"pattern"`
	SampleFrac   float64 `yaml:"sample_frac" json:"sample_frac"`
	Seed         uint64  `yaml:"seed" json:"seed"`
	DSN          string  `yaml:"dsn" json:"-"`
	Table        string  `yaml:"table" json:"table"`
	MaxAge       int     `yaml:"max_age" json:"max_age"`
	TopCountries int     `yaml:"top_countries" json:"top_countries"`
	MinUserDays  int     `yaml:"min_user_days" json:"min_user_days"`
}
