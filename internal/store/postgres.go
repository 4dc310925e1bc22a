// Package store persists publishers, missions, organizations, events and
// import records in Postgres.
package store

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/mission-sync/internal/db"
	"github.com/sells-group/mission-sync/internal/model"
)

// Postgres implements the importer, writer and cleanup stores on pgx.
type Postgres struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a Postgres store with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*Postgres, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "store: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "store: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "store: ping")
	}
	return &Postgres{pool: pool, closeFn: pool.Close}, nil
}

// NewWithPool wraps an existing pool. The caller owns its lifecycle.
func NewWithPool(pool db.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Pool returns the underlying database pool.
func (s *Postgres) Pool() db.Pool {
	return s.pool
}

// Ping checks connectivity.
func (s *Postgres) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "store: ping")
}

// Migrate applies the embedded schema migrations.
func (s *Postgres) Migrate(ctx context.Context) error {
	return Migrate(ctx, s.pool)
}

// Close releases the pool when the store owns it.
func (s *Postgres) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

const publisherColumns = `id, name, feed_url, feed_username, feed_password, default_logo, is_active, created_at`

// ListPublishers returns the active publishers, or only publisherID when it
// is set (active or not, so a single publisher can be re-run by hand).
func (s *Postgres) ListPublishers(ctx context.Context, publisherID string) ([]model.Publisher, error) {
	query := `SELECT ` + publisherColumns + ` FROM publisher WHERE is_active ORDER BY name`
	var args []any
	if publisherID != "" {
		query = `SELECT ` + publisherColumns + ` FROM publisher WHERE id = $1`
		args = append(args, publisherID)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "store: list publishers")
	}
	defer rows.Close()

	var out []model.Publisher
	for rows.Next() {
		var p model.Publisher
		if err := rows.Scan(&p.ID, &p.Name, &p.FeedURL, &p.FeedUsername, &p.FeedPassword, &p.DefaultLogo, &p.IsActive, &p.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "store: scan publisher")
		}
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "store: list publishers")
}

// missionColumns is the column order shared by selects, COPY and UPDATE.
var missionColumns = []string{
	"id", "publisher_id", "client_id",
	"title", "description", "description_html", "application_url",
	"domain", "domain_original", "domain_id", "activities",
	"tags", "audience", "soft_skills", "requirements", "rome_skills",
	"schedule", "remote", "open_to_minors", "reduced_mobility_accessible", "close_to_transport",
	"start_at", "end_at", "posted_at", "duration", "places",
	"priority", "metadata", "compensation_amount", "compensation_unit", "compensation_type",
	"snu", "snu_places", "status_code", "status_comment",
	"organization_id", "organization_client_id", "organization_name", "organization_logo",
	"last_sync_at", "deleted_at", "created_at", "updated_at",
}

var addressColumns = []string{
	"mission_id", "position", "street", "city", "postal_code",
	"department_code", "department_name", "region", "country",
	"lat", "lon", "geo_point", "geoloc_status",
}

// FindMissions loads the persisted missions of a publisher for the given
// clientIds, soft-deleted ones included, keyed by clientId.
func (s *Postgres) FindMissions(ctx context.Context, publisherID string, clientIDs []string) (map[string]*model.Mission, error) {
	out := make(map[string]*model.Mission, len(clientIDs))
	if len(clientIDs) == 0 {
		return out, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+strings.Join(missionColumns, ", ")+` FROM mission WHERE publisher_id = $1 AND client_id = ANY($2)`,
		publisherID, clientIDs)
	if err != nil {
		return nil, eris.Wrap(err, "store: find missions")
	}
	defer rows.Close()

	byID := make(map[string]*model.Mission, len(clientIDs))
	for rows.Next() {
		m, err := scanMission(rows)
		if err != nil {
			return nil, err
		}
		out[m.ClientID] = m
		byID[m.ID] = m
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "store: find missions")
	}
	rows.Close()

	if len(byID) == 0 {
		return out, nil
	}
	if err := s.loadAddresses(ctx, byID); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Postgres) loadAddresses(ctx context.Context, byID map[string]*model.Mission) error {
	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+strings.Join(addressColumns, ", ")+` FROM mission_address WHERE mission_id = ANY($1) ORDER BY mission_id, position`,
		ids)
	if err != nil {
		return eris.Wrap(err, "store: load addresses")
	}
	defer rows.Close()

	for rows.Next() {
		var (
			missionID string
			position  int
			a         model.Address
			lat, lon  *float64
			geoPoint  []byte
			status    string
		)
		if err := rows.Scan(&missionID, &position, &a.Street, &a.City, &a.PostalCode,
			&a.DepartmentCode, &a.DepartmentName, &a.Region, &a.Country,
			&lat, &lon, &geoPoint, &status); err != nil {
			return eris.Wrap(err, "store: scan address")
		}
		if lat != nil && lon != nil {
			a.Location = &model.Location{Lat: *lat, Lon: *lon}
		}
		if len(geoPoint) > 0 {
			a.GeoPoint = json.RawMessage(geoPoint)
		}
		a.GeolocStatus = model.GeolocStatus(status)
		if m, ok := byID[missionID]; ok {
			m.Addresses = append(m.Addresses, a)
		}
	}
	return eris.Wrap(rows.Err(), "store: load addresses")
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMission(row scanner) (*model.Mission, error) {
	var (
		m              model.Mission
		domainID       *string
		remote, status string
	)
	err := row.Scan(
		&m.ID, &m.PublisherID, &m.ClientID,
		&m.Title, &m.Description, &m.DescriptionHTML, &m.ApplicationURL,
		&m.Domain, &m.DomainOriginal, &domainID, &m.Activities,
		&m.Tags, &m.Audience, &m.SoftSkills, &m.Requirements, &m.RomeSkills,
		&m.Schedule, &remote, &m.OpenToMinors, &m.ReducedMobilityAccessible, &m.CloseToTransport,
		&m.StartAt, &m.EndAt, &m.PostedAt, &m.Duration, &m.Places,
		&m.Priority, &m.Metadata, &m.Compensation.Amount, &m.Compensation.Unit, &m.Compensation.Type,
		&m.Snu, &m.SnuPlaces, &status, &m.StatusComment,
		&m.OrganizationID, &m.OrganizationClientID, &m.OrganizationName, &m.OrganizationLogo,
		&m.LastSyncAt, &m.DeletedAt, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "store: scan mission")
	}
	if domainID != nil {
		m.DomainID = *domainID
	}
	m.Remote = model.RemotePolicy(remote)
	m.StatusCode = model.ModerationStatus(status)
	return &m, nil
}

// missionRow flattens a mission in missionColumns order.
func missionRow(m *model.Mission) []any {
	return []any{
		m.ID, m.PublisherID, m.ClientID,
		m.Title, m.Description, m.DescriptionHTML, m.ApplicationURL,
		m.Domain, m.DomainOriginal, nullString(m.DomainID), m.Activities,
		m.Tags, m.Audience, m.SoftSkills, m.Requirements, m.RomeSkills,
		m.Schedule, string(m.Remote), m.OpenToMinors, m.ReducedMobilityAccessible, m.CloseToTransport,
		m.StartAt, m.EndAt, m.PostedAt, m.Duration, m.Places,
		m.Priority, m.Metadata, m.Compensation.Amount, m.Compensation.Unit, m.Compensation.Type,
		m.Snu, m.SnuPlaces, string(m.StatusCode), m.StatusComment,
		nullStringPtr(m.OrganizationID), m.OrganizationClientID, m.OrganizationName, m.OrganizationLogo,
		m.LastSyncAt, m.DeletedAt, m.CreatedAt, m.UpdatedAt,
	}
}

func addressRows(m *model.Mission) [][]any {
	rows := make([][]any, 0, len(m.Addresses))
	for i, a := range m.Addresses {
		var lat, lon *float64
		if a.Location != nil {
			lat, lon = &a.Location.Lat, &a.Location.Lon
		}
		rows = append(rows, []any{
			m.ID, i, a.Street, a.City, a.PostalCode,
			a.DepartmentCode, a.DepartmentName, a.Region, a.Country,
			lat, lon, nullJSON(a.GeoPoint), string(a.GeolocStatus),
		})
	}
	return rows
}

func activityRows(m *model.Mission) [][]any {
	rows := make([][]any, 0, len(m.ActivityIDs))
	seen := make(map[string]bool, len(m.ActivityIDs))
	for _, id := range m.ActivityIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		rows = append(rows, []any{m.ID, id})
	}
	return rows
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullStringPtr(s *string) any {
	if s == nil || *s == "" {
		return nil
	}
	return *s
}

// nullJSON passes jsonb values as strings so pgx does not re-encode them.
func nullJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
