package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/mission-sync/internal/db"
	"github.com/sells-group/mission-sync/internal/model"
)

var organizationUpsert = db.UpsertConfig{
	Table: "organization",
	Columns: []string{
		"id", "publisher_id", "client_id", "name", "rna", "siren", "siret",
		"legal_status", "type", "description", "url", "logo", "email", "phone",
		"full_address", "city", "postal_code", "beneficiaries", "networks",
		"verification_status", "verified_name", "created_at", "updated_at",
	},
	ConflictKeys: []string{"publisher_id", "client_id"},
	UpdateCols: []string{
		"name", "rna", "siren", "siret", "legal_status", "type", "description",
		"url", "logo", "email", "phone", "full_address", "city", "postal_code",
		"beneficiaries", "networks", "verification_status", "verified_name", "updated_at",
	},
}

// UpsertOrganizations inserts or refreshes organizations on (publisher,
// clientId) and returns their ids keyed by clientId. orgs must not repeat a
// clientId.
func (s *Postgres) UpsertOrganizations(ctx context.Context, publisherID string, orgs []*model.Organization, at time.Time) (map[string]string, error) {
	ids := make(map[string]string, len(orgs))
	if len(orgs) == 0 {
		return ids, nil
	}

	rows := make([][]any, 0, len(orgs))
	clientIDs := make([]string, 0, len(orgs))
	for _, o := range orgs {
		id := o.ID
		if id == "" {
			id = uuid.NewString()
		}
		rows = append(rows, []any{
			id, publisherID, o.ClientID, o.Name, o.RNA, o.Siren, o.Siret,
			o.LegalStatus, o.Type, o.Description, o.URL, o.Logo, o.Email, o.Phone,
			o.FullAddress, o.City, o.PostalCode, o.Beneficiaries, o.Networks,
			string(o.VerificationStatus), o.VerifiedName, at, at,
		})
		clientIDs = append(clientIDs, o.ClientID)
	}

	if _, err := db.BulkUpsert(ctx, s.pool, organizationUpsert, rows); err != nil {
		return nil, eris.Wrap(err, "store: upsert organizations")
	}

	res, err := s.pool.Query(ctx,
		`SELECT client_id, id FROM organization WHERE publisher_id = $1 AND client_id = ANY($2)`,
		publisherID, clientIDs)
	if err != nil {
		return nil, eris.Wrap(err, "store: map organization ids")
	}
	defer res.Close()

	for res.Next() {
		var clientID, id string
		if err := res.Scan(&clientID, &id); err != nil {
			return nil, eris.Wrap(err, "store: scan organization id")
		}
		ids[clientID] = id
	}
	return ids, eris.Wrap(res.Err(), "store: map organization ids")
}

// ResolveDomain returns the id of the domain reference row, creating it.
func (s *Postgres) ResolveDomain(ctx context.Context, name string) (string, error) {
	return s.getOrCreate(ctx, "domain", name)
}

// ResolveActivity returns the id of the activity reference row, creating it.
func (s *Postgres) ResolveActivity(ctx context.Context, name string) (string, error) {
	return s.getOrCreate(ctx, "activity", name)
}

// getOrCreate looks a name up in a reference table and inserts it when
// missing. A concurrent insert surfaces as a unique violation and is resolved
// by selecting again.
func (s *Postgres) getOrCreate(ctx context.Context, table, name string) (string, error) {
	ident := pgx.Identifier{table}.Sanitize()

	id, err := s.lookupName(ctx, ident, name)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", eris.Wrapf(err, "store: find %s %q", table, name)
	}

	err = s.pool.QueryRow(ctx,
		`INSERT INTO `+ident+` (id, name) VALUES ($1, $2) RETURNING id`,
		uuid.NewString(), name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !db.IsUniqueViolation(err) {
		return "", eris.Wrapf(err, "store: create %s %q", table, name)
	}

	id, err = s.lookupName(ctx, ident, name)
	if err != nil {
		return "", eris.Wrapf(err, "store: find %s %q after conflict", table, name)
	}
	return id, nil
}

func (s *Postgres) lookupName(ctx context.Context, ident, name string) (string, error) {
	var id string
	err := s.pool.QueryRow(ctx, `SELECT id FROM `+ident+` WHERE name = $1`, name).Scan(&id)
	return id, err
}
