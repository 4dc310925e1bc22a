package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/mission-sync/internal/db"
	"github.com/sells-group/mission-sync/internal/model"
)

var eventColumns = []string{"id", "mission_id", "type", "changes", "created_at"}

// updateMissionSQL sets every column but id from missionColumns, keyed by id.
var updateMissionSQL = func() string {
	set := make([]string, 0, len(missionColumns)-1)
	for i, col := range missionColumns[1:] {
		set = append(set, fmt.Sprintf("%s = $%d", col, i+2))
	}
	return "UPDATE mission SET " + strings.Join(set, ", ") + " WHERE id = $1"
}()

// InsertMissions writes new missions with their addresses and activity links
// in one transaction.
func (s *Postgres) InsertMissions(ctx context.Context, missions []*model.Mission) error {
	if len(missions) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "store: insert missions: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	rows := make([][]any, 0, len(missions))
	var addresses, activities [][]any
	for _, m := range missions {
		rows = append(rows, missionRow(m))
		addresses = append(addresses, addressRows(m)...)
		activities = append(activities, activityRows(m)...)
	}

	if _, err := db.CopyFrom(ctx, tx, "mission", missionColumns, rows); err != nil {
		return eris.Wrap(err, "store: insert missions")
	}
	if _, err := db.CopyFrom(ctx, tx, "mission_address", addressColumns, addresses); err != nil {
		return eris.Wrap(err, "store: insert mission addresses")
	}
	if _, err := db.CopyFrom(ctx, tx, "mission_activity", []string{"mission_id", "activity_id"}, activities); err != nil {
		return eris.Wrap(err, "store: insert mission activities")
	}
	return eris.Wrap(tx.Commit(ctx), "store: insert missions: commit tx")
}

// UpdateMissions rewrites existing missions in one transaction. Addresses and
// activity links are replaced wholesale.
func (s *Postgres) UpdateMissions(ctx context.Context, missions []*model.Mission) error {
	if len(missions) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "store: update missions: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	ids := make([]string, 0, len(missions))
	var addresses, activities [][]any
	for _, m := range missions {
		row := missionRow(m)
		tag, err := tx.Exec(ctx, updateMissionSQL, row...)
		if err != nil {
			return eris.Wrapf(err, "store: update mission %s", m.ID)
		}
		if tag.RowsAffected() == 0 {
			return eris.Errorf("store: update mission %s: not found", m.ID)
		}
		ids = append(ids, m.ID)
		addresses = append(addresses, addressRows(m)...)
		activities = append(activities, activityRows(m)...)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM mission_address WHERE mission_id = ANY($1)`, ids); err != nil {
		return eris.Wrap(err, "store: clear mission addresses")
	}
	if _, err := tx.Exec(ctx, `DELETE FROM mission_activity WHERE mission_id = ANY($1)`, ids); err != nil {
		return eris.Wrap(err, "store: clear mission activities")
	}
	if _, err := db.CopyFrom(ctx, tx, "mission_address", addressColumns, addresses); err != nil {
		return eris.Wrap(err, "store: update mission addresses")
	}
	if _, err := db.CopyFrom(ctx, tx, "mission_activity", []string{"mission_id", "activity_id"}, activities); err != nil {
		return eris.Wrap(err, "store: update mission activities")
	}
	return eris.Wrap(tx.Commit(ctx), "store: update missions: commit tx")
}

// TouchMissions advances the sync watermark of unchanged missions.
func (s *Postgres) TouchMissions(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx, `UPDATE mission SET last_sync_at = $1 WHERE id = ANY($2)`, at, ids)
	return eris.Wrap(err, "store: touch missions")
}

// StaleMissions returns the live missions of the publisher whose watermark
// is missing or predates before.
func (s *Postgres) StaleMissions(ctx context.Context, publisherID string, before time.Time) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id FROM mission
		 WHERE publisher_id = $1 AND deleted_at IS NULL AND (last_sync_at IS NULL OR last_sync_at < $2)
		 ORDER BY id`,
		publisherID, before)
	if err != nil {
		return nil, eris.Wrap(err, "store: find stale missions")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "store: scan stale id")
		}
		ids = append(ids, id)
	}
	return ids, eris.Wrap(rows.Err(), "store: find stale missions")
}

// SoftDeleteMissions marks the missions deleted and appends their events in
// one transaction.
func (s *Postgres) SoftDeleteMissions(ctx context.Context, ids []string, at time.Time, events []model.MissionEvent) error {
	if len(ids) == 0 {
		return nil
	}
	rows, err := eventRows(events)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "store: soft delete missions: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx,
		`UPDATE mission SET deleted_at = $1, updated_at = $1 WHERE id = ANY($2) AND deleted_at IS NULL`,
		at, ids); err != nil {
		return eris.Wrap(err, "store: soft delete missions")
	}
	if _, err := db.CopyFrom(ctx, tx, "mission_event", eventColumns, rows); err != nil {
		return eris.Wrap(err, "store: insert delete events")
	}
	return eris.Wrap(tx.Commit(ctx), "store: soft delete missions: commit tx")
}

// InsertEvents appends audit events.
func (s *Postgres) InsertEvents(ctx context.Context, events []model.MissionEvent) error {
	if len(events) == 0 {
		return nil
	}
	rows, err := eventRows(events)
	if err != nil {
		return err
	}
	_, err = db.CopyFrom(ctx, s.pool, "mission_event", eventColumns, rows)
	return eris.Wrap(err, "store: insert events")
}

func eventRows(events []model.MissionEvent) ([][]any, error) {
	rows := make([][]any, 0, len(events))
	for _, e := range events {
		var changes any
		if len(e.Changes) > 0 {
			data, err := json.Marshal(e.Changes)
			if err != nil {
				return nil, eris.Wrapf(err, "store: marshal changes of event %s", e.ID)
			}
			changes = string(data)
		}
		rows = append(rows, []any{e.ID, e.MissionID, string(e.Type), changes, e.CreatedAt})
	}
	return rows, nil
}
