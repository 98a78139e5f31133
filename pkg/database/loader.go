package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"abtest-cohorts/pkg/models"

	_ "github.com/go-sql-driver/mysql"
)

// DefaultTable est la table des métriques quotidiennes par utilisateur.
const DefaultTable = "DailyUserMetrics"

var tableNameRe = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// Open DSN mariadb:// ou mysql:// → format MySQL driver
func Open(dsn string) (*sql.DB, string, error) {
	mysqlDSN, err := toMySQLDSN(dsn)
	if err != nil {
		return nil, "", err
	}
	db, err := sql.Open("mysql", mysqlDSN)
	if err != nil {
		return nil, "", err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, mysqlDSN, nil
}

func toMySQLDSN(dsn string) (string, error) {
	if strings.HasPrefix(dsn, "mariadb://") || strings.HasPrefix(dsn, "mysql://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", fmt.Errorf("parse dsn: %w", err)
		}
		user := ""
		pass := ""
		if u.User != nil {
			user = u.User.Username()
			pw, _ := u.User.Password()
			pass = pw
		}
		host := u.Host
		db := strings.TrimPrefix(u.Path, "/")
		if user == "" || host == "" || db == "" {
			return "", fmt.Errorf("dsn incomplet (user/host/db)")
		}
		return fmt.Sprintf("%s:%s@tcp(%s)/%s?parseTime=true&loc=UTC&interpolateParams=true",
			user, pass, host, db), nil
	}
	return dsn, nil
}

// Redact masque le mot de passe d'un DSN MySQL pour les logs.
func Redact(mysqlDSN string) string {
	at := strings.LastIndex(mysqlDSN, "@")
	colon := strings.Index(mysqlDSN, ":")
	if at < 0 || colon < 0 || colon > at {
		return mysqlDSN
	}
	return mysqlDSN[:colon+1] + "***" + mysqlDSN[at:]
}

// eventsQuery : une ligne par utilisateur × jour dans [from, to)
func eventsQuery(tableName string) (string, error) {
	if !tableNameRe.MatchString(tableName) {
		return "", fmt.Errorf("table invalide: %q", tableName)
	}
	return fmt.Sprintf(`
		SELECT
			m.user_id,
			m.event_date,
			m.install_date,
			m.platform,
			m.country,
			m.total_session_count,
			m.total_session_duration,
			m.match_start_count,
			m.match_end_count,
			m.victory_count,
			m.defeat_count,
			m.server_connection_error,
			m.iap_revenue,
			m.ad_revenue
		FROM %s m
		WHERE m.event_date >= ? AND m.event_date < ?
		ORDER BY m.user_id, m.event_date
	`, tableName), nil
}

// nullableRow reçoit une ligne brute ; toute colonne NULL rend la ligne invalide.
type nullableRow struct {
	UserID           sql.NullString
	EventDate        sql.NullTime
	InstallDate      sql.NullTime
	Platform         sql.NullString
	Country          sql.NullString
	Sessions         sql.NullInt64
	SessionDuration  sql.NullFloat64
	MatchStarts      sql.NullInt64
	MatchEnds        sql.NullInt64
	Victories        sql.NullInt64
	Defeats          sql.NullInt64
	ConnectionErrors sql.NullInt64
	IAPRevenue       sql.NullFloat64
	AdRevenue        sql.NullFloat64
}

func (r *nullableRow) dest() []any {
	return []any{
		&r.UserID, &r.EventDate, &r.InstallDate, &r.Platform, &r.Country,
		&r.Sessions, &r.SessionDuration, &r.MatchStarts, &r.MatchEnds,
		&r.Victories, &r.Defeats, &r.ConnectionErrors, &r.IAPRevenue, &r.AdRevenue,
	}
}

func (r *nullableRow) event() (models.Event, error) {
	switch {
	case !r.UserID.Valid || r.UserID.String == "":
		return models.Event{}, fmt.Errorf("user_id NULL")
	case !r.EventDate.Valid:
		return models.Event{}, fmt.Errorf("event_date NULL")
	case !r.InstallDate.Valid:
		return models.Event{}, fmt.Errorf("install_date NULL")
	case !r.Platform.Valid || !r.Country.Valid:
		return models.Event{}, fmt.Errorf("platform/country NULL")
	}
	ints := []sql.NullInt64{r.Sessions, r.MatchStarts, r.MatchEnds, r.Victories, r.Defeats, r.ConnectionErrors}
	for _, n := range ints {
		if !n.Valid {
			return models.Event{}, fmt.Errorf("compteur NULL")
		}
	}
	if !r.SessionDuration.Valid || !r.IAPRevenue.Valid || !r.AdRevenue.Valid {
		return models.Event{}, fmt.Errorf("montant NULL")
	}
	return models.Event{
		UserID:           r.UserID.String,
		EventDate:        r.EventDate.Time.UTC(),
		InstallDate:      r.InstallDate.Time.UTC(),
		Platform:         r.Platform.String,
		Country:          r.Country.String,
		Sessions:         int(r.Sessions.Int64),
		SessionDuration:  r.SessionDuration.Float64,
		MatchStarts:      int(r.MatchStarts.Int64),
		MatchEnds:        int(r.MatchEnds.Int64),
		Victories:        int(r.Victories.Int64),
		Defeats:          int(r.Defeats.Int64),
		ConnectionErrors: int(r.ConnectionErrors.Int64),
		IAPRevenue:       r.IAPRevenue.Float64,
		AdRevenue:        r.AdRevenue.Float64,
	}, nil
}

// LoadEvents lit les événements de la période [from, to) (DATETIME-safe).
// Les lignes incomplètes sont ignorées et comptées dans skipped.
func LoadEvents(ctx context.Context, db *sql.DB, tableName string, from, to time.Time, log *zap.Logger) ([]models.Event, int, error) {
	q, err := eventsQuery(tableName)
	if err != nil {
		return nil, 0, err
	}

	// Always work in UTC and format as MySQL DATETIME strings
	const layout = "2006-01-02 15:04:05"
	pFrom := from.UTC().Format(layout)
	pTo := to.UTC().Format(layout)
	log.Debug("period boundaries", zap.String("table", tableName), zap.String("from", pFrom), zap.String("to", pTo))

	rows, err := db.QueryContext(ctx, q, pFrom, pTo)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var (
		events  []models.Event
		read    int
		skipped int
	)
	for rows.Next() {
		read++
		var raw nullableRow
		if err := rows.Scan(raw.dest()...); err != nil {
			return nil, 0, err
		}
		ev, err := raw.event()
		if err != nil {
			skipped++
			log.Warn("skipping incomplete row", zap.Int("row", read), zap.Error(err))
			continue
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	log.Info("loaded events from database",
		zap.Int("rows", read),
		zap.Int("kept", len(events)),
		zap.Int("skipped", skipped),
	)
	return events, skipped, nil
}
