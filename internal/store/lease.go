package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// AcquireLease takes the per-publisher run lease for holder. It succeeds when
// no lease exists, the existing one has expired, or holder already owns it.
func (s *Postgres) AcquireLease(ctx context.Context, publisherID, holder string, ttl time.Duration) (bool, error) {
	var got string
	err := s.pool.QueryRow(ctx,
		`INSERT INTO import_lease (publisher_id, holder, acquired_at, expires_at)
		 VALUES ($1, $2, now(), now() + $3 * interval '1 second')
		 ON CONFLICT (publisher_id) DO UPDATE
		   SET holder = EXCLUDED.holder, acquired_at = EXCLUDED.acquired_at, expires_at = EXCLUDED.expires_at
		   WHERE import_lease.expires_at < now() OR import_lease.holder = EXCLUDED.holder
		 RETURNING holder`,
		publisherID, holder, int64(ttl.Seconds())).Scan(&got)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrapf(err, "store: acquire lease for %s", publisherID)
	}
	return got == holder, nil
}

// ReleaseLease drops the lease if holder still owns it.
func (s *Postgres) ReleaseLease(ctx context.Context, publisherID, holder string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM import_lease WHERE publisher_id = $1 AND holder = $2`,
		publisherID, holder)
	return eris.Wrapf(err, "store: release lease for %s", publisherID)
}
