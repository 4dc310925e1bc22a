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

// ImportLog records one row per publisher run in the import table.
type ImportLog struct {
	pool db.Pool
}

// NewImportLog creates an ImportLog.
func NewImportLog(pool db.Pool) *ImportLog {
	return &ImportLog{pool: pool}
}

const importColumns = `id, publisher_id, status, started_at, finished_at, mission_count, created_count,
	updated_count, deleted_count, refused_count, failed_count, error`

// Start inserts a RUNNING import record and returns it.
func (l *ImportLog) Start(ctx context.Context, publisherID string, at time.Time) (*model.Import, error) {
	imp := &model.Import{
		ID:          uuid.NewString(),
		PublisherID: publisherID,
		Status:      model.ImportRunning,
		StartedAt:   at,
	}
	_, err := l.pool.Exec(ctx,
		`INSERT INTO import (id, publisher_id, status, started_at) VALUES ($1, $2, $3, $4)`,
		imp.ID, imp.PublisherID, string(imp.Status), imp.StartedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "store: start import for %s", publisherID)
	}
	return imp, nil
}

// Finish persists the final status, counts and error of an import.
func (l *ImportLog) Finish(ctx context.Context, imp *model.Import) error {
	var errMsg *string
	if imp.Error != "" {
		errMsg = &imp.Error
	}
	_, err := l.pool.Exec(ctx,
		`UPDATE import SET status = $1, finished_at = $2, mission_count = $3, created_count = $4,
			updated_count = $5, deleted_count = $6, refused_count = $7, failed_count = $8, error = $9
		 WHERE id = $10`,
		string(imp.Status), imp.FinishedAt, imp.Counts.Received, imp.Counts.Created,
		imp.Counts.Updated, imp.Counts.Deleted, imp.Counts.Refused, imp.Counts.Failed, errMsg,
		imp.ID)
	return eris.Wrapf(err, "store: finish import %s", imp.ID)
}

// LastSuccess returns the most recent successful import of a publisher, or
// nil if there is none.
func (l *ImportLog) LastSuccess(ctx context.Context, publisherID string) (*model.Import, error) {
	row := l.pool.QueryRow(ctx,
		`SELECT `+importColumns+` FROM import WHERE publisher_id = $1 AND status = $2
		 ORDER BY started_at DESC LIMIT 1`,
		publisherID, string(model.ImportSuccess))

	imp, err := scanImport(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "store: last successful import for %s", publisherID)
	}
	return imp, nil
}

// List returns the most recent imports, newest first, optionally for one
// publisher.
func (l *ImportLog) List(ctx context.Context, publisherID string, limit int) ([]model.Import, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + importColumns + ` FROM import ORDER BY started_at DESC LIMIT $1`
	args := []any{limit}
	if publisherID != "" {
		query = `SELECT ` + importColumns + ` FROM import WHERE publisher_id = $2 ORDER BY started_at DESC LIMIT $1`
		args = append(args, publisherID)
	}

	rows, err := l.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "store: list imports")
	}
	defer rows.Close()

	var out []model.Import
	for rows.Next() {
		imp, err := scanImport(rows)
		if err != nil {
			return nil, eris.Wrap(err, "store: scan import")
		}
		out = append(out, *imp)
	}
	return out, eris.Wrap(rows.Err(), "store: list imports")
}

func scanImport(row scanner) (*model.Import, error) {
	var (
		imp    model.Import
		status string
		errMsg *string
	)
	err := row.Scan(&imp.ID, &imp.PublisherID, &status, &imp.StartedAt, &imp.FinishedAt,
		&imp.Counts.Received, &imp.Counts.Created, &imp.Counts.Updated, &imp.Counts.Deleted,
		&imp.Counts.Refused, &imp.Counts.Failed, &errMsg)
	if err != nil {
		return nil, err
	}
	imp.Status = model.ImportStatus(status)
	if errMsg != nil {
		imp.Error = *errMsg
	}
	return &imp, nil
}
