package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/samber/mo"

	"guildcloner/models"
)

type PostgresRunsRepository struct {
	db     *sqlx.DB
	schema string
}

// Column names for clone_runs table
var runsColumns = []string{
	"id",
	"source_guild_id",
	"source_guild_name",
	"destination_guild_id",
	"state",
	"roles_created",
	"total_roles",
	"categories_created",
	"total_categories",
	"channels_created",
	"total_channels",
	"overwrites_applied",
	"messages_copied",
	"errors",
	"elapsed_ms",
	"error_kind",
	"error_message",
	"started_at",
	"finished_at",
	"created_at",
}

func NewPostgresRunsRepository(db *sqlx.DB, schema string) *PostgresRunsRepository {
	return &PostgresRunsRepository{db: db, schema: schema}
}

// EnsureSchema creates the schema and clone_runs table when missing.
func (r *PostgresRunsRepository) EnsureSchema(ctx context.Context) error {
	schema := pq.QuoteIdentifier(r.schema)
	statements := []string{
		fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, schema),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s.clone_runs (
				id                   TEXT PRIMARY KEY,
				source_guild_id      TEXT NOT NULL,
				source_guild_name    TEXT NOT NULL DEFAULT '',
				destination_guild_id TEXT NOT NULL,
				state                TEXT NOT NULL,
				roles_created        INTEGER NOT NULL DEFAULT 0,
				total_roles          INTEGER NOT NULL DEFAULT 0,
				categories_created   INTEGER NOT NULL DEFAULT 0,
				total_categories     INTEGER NOT NULL DEFAULT 0,
				channels_created     INTEGER NOT NULL DEFAULT 0,
				total_channels       INTEGER NOT NULL DEFAULT 0,
				overwrites_applied   INTEGER NOT NULL DEFAULT 0,
				messages_copied      INTEGER NOT NULL DEFAULT 0,
				errors               INTEGER NOT NULL DEFAULT 0,
				elapsed_ms           BIGINT NOT NULL DEFAULT 0,
				error_kind           TEXT NOT NULL DEFAULT '',
				error_message        TEXT NOT NULL DEFAULT '',
				started_at           TIMESTAMPTZ NOT NULL,
				finished_at          TIMESTAMPTZ NOT NULL,
				created_at           TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`, schema),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS clone_runs_finished_at_idx ON %s.clone_runs (finished_at DESC)`, schema),
	}

	for _, stmt := range statements {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure clone_runs schema: %w", err)
		}
	}
	return nil
}

func (r *PostgresRunsRepository) InsertRun(ctx context.Context, record *models.RunRecord) error {
	columnsStr := strings.Join(runsColumns, ", ")
	query := fmt.Sprintf(`
		INSERT INTO %s.clone_runs (
			id, source_guild_id, source_guild_name, destination_guild_id, state,
			roles_created, total_roles, categories_created, total_categories,
			channels_created, total_channels, overwrites_applied, messages_copied,
			errors, elapsed_ms, error_kind, error_message, started_at, finished_at
		) VALUES (
			:id, :source_guild_id, :source_guild_name, :destination_guild_id, :state,
			:roles_created, :total_roles, :categories_created, :total_categories,
			:channels_created, :total_channels, :overwrites_applied, :messages_copied,
			:errors, :elapsed_ms, :error_kind, :error_message, :started_at, :finished_at
		)
		RETURNING %s`, pq.QuoteIdentifier(r.schema), columnsStr)

	rows, err := r.db.NamedQueryContext(ctx, query, record)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	defer rows.Close()

	if rows.Next() {
		if err := rows.StructScan(record); err != nil {
			return fmt.Errorf("failed to scan inserted run: %w", err)
		}
	}
	return rows.Err()
}

func (r *PostgresRunsRepository) GetRunByID(ctx context.Context, id string) (mo.Option[*models.RunRecord], error) {
	columnsStr := strings.Join(runsColumns, ", ")
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s.clone_runs
		WHERE id = $1`, columnsStr, pq.QuoteIdentifier(r.schema))

	var record models.RunRecord
	if err := r.db.GetContext(ctx, &record, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return mo.None[*models.RunRecord](), nil
		}
		return mo.None[*models.RunRecord](), fmt.Errorf("failed to get run: %w", err)
	}
	return mo.Some(&record), nil
}

func (r *PostgresRunsRepository) ListRecentRuns(ctx context.Context, limit int) ([]*models.RunRecord, error) {
	columnsStr := strings.Join(runsColumns, ", ")
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s.clone_runs
		ORDER BY finished_at DESC
		LIMIT $1`, columnsStr, pq.QuoteIdentifier(r.schema))

	records := []*models.RunRecord{}
	if err := r.db.SelectContext(ctx, &records, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return records, nil
}
