// Package state persists the cross-run state of the pipeline in SQLite:
// per-entity processing markers, market-data failure records, the latest
// canonical security set and the run history.
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/consensus/internal/database"
	"github.com/aristath/consensus/internal/domain"
)

// Store is the SQLite-backed domain.StateStore.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewStore creates a store on a migrated "state" database
func NewStore(db *database.DB, log zerolog.Logger) *Store {
	return &Store{
		db:  db.Conn(),
		log: log.With().Str("component", "state_store").Logger(),
	}
}

// NewRunID returns a fresh run identifier
func NewRunID() string {
	return uuid.NewString()
}

// LoadState reads entity markers and failure records
func (s *Store) LoadState(ctx context.Context) (domain.PersistedState, error) {
	state := domain.NewPersistedState()

	rows, err := s.db.QueryContext(ctx, `SELECT entity_id, last_processed_modified, last_processed_at FROM entity_state`)
	if err != nil {
		return state, fmt.Errorf("failed to query entity state: %w", err)
	}
	for rows.Next() {
		var id, modified string
		var at int64
		if err := rows.Scan(&id, &modified, &at); err != nil {
			rows.Close()
			return state, fmt.Errorf("failed to scan entity state: %w", err)
		}
		state.Entities[id] = domain.EntityState{
			LastProcessedModified: modified,
			LastProcessedAt:       fromUnix(at),
		}
	}
	if err := closeRows(rows); err != nil {
		return state, fmt.Errorf("failed to read entity state: %w", err)
	}

	failures, err := s.ListFailures(ctx)
	if err != nil {
		return state, err
	}
	for _, rec := range failures {
		state.Failures[rec.Ticker] = rec
	}

	s.log.Debug().
		Int("entities", len(state.Entities)).
		Int("failures", len(state.Failures)).
		Msg("Loaded persisted state")

	return state, nil
}

// LoadSnapshot returns the canonical set written by the last committed run.
// An empty store yields an empty set.
func (s *Store) LoadSnapshot(ctx context.Context) ([]domain.CanonicalSecurity, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM snapshot WHERE id = 1`).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot: %w", err)
	}

	var secs []domain.CanonicalSecurity
	if err := msgpack.Unmarshal(data, &secs); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return secs, nil
}

// Commit writes the whole end-of-run state in a single transaction.
// Failure records are replaced wholesale; entity markers are upserted.
func (s *Store) Commit(ctx context.Context, commit domain.RunCommit) error {
	if commit.Run.ID == "" {
		commit.Run.ID = NewRunID()
	}

	var blob []byte
	if !commit.KeepSnapshot {
		var err error
		blob, err = msgpack.Marshal(commit.Securities)
		if err != nil {
			return fmt.Errorf("failed to encode snapshot: %w", err)
		}
	}

	err := database.WithTransaction(ctx, s.db, func(tx *sql.Tx) error {
		for id, es := range commit.State.Entities {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO entity_state (entity_id, last_processed_modified, last_processed_at)
				VALUES (?, ?, ?)
				ON CONFLICT(entity_id) DO UPDATE SET
					last_processed_modified = excluded.last_processed_modified,
					last_processed_at = excluded.last_processed_at`,
				id, es.LastProcessedModified, toUnix(es.LastProcessedAt))
			if err != nil {
				return fmt.Errorf("failed to upsert entity %s: %w", id, err)
			}
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM failure_records`); err != nil {
			return fmt.Errorf("failed to clear failure records: %w", err)
		}
		for ticker, rec := range commit.State.Failures {
			if rec.ConsecutiveCount <= 0 {
				continue
			}
			_, err := tx.ExecContext(ctx, `
				INSERT INTO failure_records (ticker, first_failed_at, last_failed_at, consecutive_count)
				VALUES (?, ?, ?, ?)`,
				ticker, toUnix(rec.FirstFailedAt), toUnix(rec.LastFailedAt), rec.ConsecutiveCount)
			if err != nil {
				return fmt.Errorf("failed to insert failure record %s: %w", ticker, err)
			}
		}

		if !commit.KeepSnapshot {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO snapshot (id, run_id, security_count, data, updated_at)
				VALUES (1, ?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET
					run_id = excluded.run_id,
					security_count = excluded.security_count,
					data = excluded.data,
					updated_at = excluded.updated_at`,
				commit.Run.ID, len(commit.Securities), blob, toUnix(commit.Run.FinishedAt))
			if err != nil {
				return fmt.Errorf("failed to write snapshot: %w", err)
			}
		}

		r := commit.Run
		_, err := tx.ExecContext(ctx, `
			INSERT INTO runs (id, started_at, finished_at, status,
				entities_fetched, entities_skipped, entities_failed, articles,
				securities, market_failures, alerts, delivered)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, toUnix(r.StartedAt), toUnix(r.FinishedAt), string(r.Status),
			r.EntitiesFetched, r.EntitiesSkipped, r.EntitiesFailed, r.Articles,
			r.Securities, r.MarketFailures, r.Alerts, r.Delivered)
		if err != nil {
			return fmt.Errorf("failed to insert run %s: %w", r.ID, err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to commit run state: %w", err)
	}

	s.log.Info().
		Str("run_id", commit.Run.ID).
		Str("status", string(commit.Run.Status)).
		Int("entities", len(commit.State.Entities)).
		Int("failures", len(commit.State.Failures)).
		Bool("snapshot_kept", commit.KeepSnapshot).
		Msg("Committed run state")

	return nil
}

// ListFailures returns the failure records ordered by ticker
func (s *Store) ListFailures(ctx context.Context) ([]domain.FailureRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ticker, first_failed_at, last_failed_at, consecutive_count
		FROM failure_records ORDER BY ticker`)
	if err != nil {
		return nil, fmt.Errorf("failed to query failure records: %w", err)
	}

	var out []domain.FailureRecord
	for rows.Next() {
		var rec domain.FailureRecord
		var first, last int64
		if err := rows.Scan(&rec.Ticker, &first, &last, &rec.ConsecutiveCount); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan failure record: %w", err)
		}
		rec.FirstFailedAt = fromUnix(first)
		rec.LastFailedAt = fromUnix(last)
		out = append(out, rec)
	}
	if err := closeRows(rows); err != nil {
		return nil, fmt.Errorf("failed to read failure records: %w", err)
	}
	return out, nil
}

// ResetFailures deletes the failure records of the given tickers, or all of
// them when none are given, and reports how many were removed.
func (s *Store) ResetFailures(ctx context.Context, tickers ...string) (int, error) {
	query := `DELETE FROM failure_records`
	args := make([]interface{}, 0, len(tickers))
	if len(tickers) > 0 {
		placeholders := make([]string, len(tickers))
		for i, t := range tickers {
			placeholders[i] = "?"
			args = append(args, strings.ToUpper(strings.TrimSpace(t)))
		}
		query += ` WHERE ticker IN (` + strings.Join(placeholders, ",") + `)`
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to reset failure records: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count reset failure records: %w", err)
	}

	s.log.Info().Strs("tickers", tickers).Int64("removed", n).Msg("Reset failure records")
	return int(n), nil
}

// ListRuns returns the most recent runs, newest first
func (s *Store) ListRuns(ctx context.Context, limit int) ([]domain.RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, status,
			entities_fetched, entities_skipped, entities_failed, articles,
			securities, market_failures, alerts, delivered
		FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}

	var out []domain.RunRecord
	for rows.Next() {
		var r domain.RunRecord
		var started, finished int64
		var status string
		err := rows.Scan(&r.ID, &started, &finished, &status,
			&r.EntitiesFetched, &r.EntitiesSkipped, &r.EntitiesFailed, &r.Articles,
			&r.Securities, &r.MarketFailures, &r.Alerts, &r.Delivered)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.StartedAt = fromUnix(started)
		r.FinishedAt = fromUnix(finished)
		r.Status = domain.RunStatus(status)
		out = append(out, r)
	}
	if err := closeRows(rows); err != nil {
		return nil, fmt.Errorf("failed to read runs: %w", err)
	}
	return out, nil
}

// PruneRuns keeps the newest keep run records and deletes the rest
func (s *Store) PruneRuns(ctx context.Context, keep int) (int, error) {
	if keep < 1 {
		return 0, fmt.Errorf("keep must be positive, got %d", keep)
	}
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM runs WHERE id NOT IN (
			SELECT id FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?
		)`, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune runs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned runs: %w", err)
	}
	return int(n), nil
}

func closeRows(rows *sql.Rows) error {
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	return rows.Close()
}

func toUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func fromUnix(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
