package database

import (
	"context"
	"fmt"
	"regexp"

	"github.com/jmoiron/sqlx"
)

var channelPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS admission_records (
	id UUID PRIMARY KEY,
	upload_date TEXT NOT NULL DEFAULT 'N/A',
	date_of_payment TEXT NOT NULL DEFAULT 'N/A',
	transaction_id TEXT NOT NULL,
	first_name TEXT NOT NULL DEFAULT '',
	last_name TEXT NOT NULL DEFAULT '',
	college TEXT NOT NULL DEFAULT '',
	fee_paid TEXT NOT NULL DEFAULT 'No',
	sem_fee TEXT NOT NULL DEFAULT 'No',
	gender TEXT NOT NULL DEFAULT '',
	fees BIGINT NOT NULL DEFAULT 0,
	year INTEGER NOT NULL DEFAULT 2025,
	withdrawal TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	CONSTRAINT admission_records_transaction_id_key UNIQUE (transaction_id),
	CONSTRAINT admission_records_transaction_id_not_blank CHECK (transaction_id <> '')
)`,
	`CREATE INDEX IF NOT EXISTS idx_admission_records_college ON admission_records ((TRIM(college)))`,
	`CREATE TABLE IF NOT EXISTS sync_states (
	dataset TEXT PRIMARY KEY,
	last_synced_at TIMESTAMPTZ NOT NULL,
	provenance TEXT NOT NULL,
	updated_by TEXT NOT NULL DEFAULT 'system',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`,
	`CREATE TABLE IF NOT EXISTS admin_users (
	id UUID PRIMARY KEY,
	email TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	role TEXT NOT NULL DEFAULT 'admin',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	CONSTRAINT admin_users_email_key UNIQUE (email)
)`,
	`CREATE OR REPLACE FUNCTION notify_admission_change() RETURNS trigger AS $$
BEGIN
	PERFORM pg_notify(TG_ARGV[0], json_build_object('table', TG_TABLE_NAME, 'op', TG_OP)::text);
	RETURN NULL;
END;
$$ LANGUAGE plpgsql`,
}

// Migrate applies the idempotent schema and installs statement-level NOTIFY triggers
// that publish mutations of the tracked tables on channel.
func Migrate(ctx context.Context, db *sqlx.DB, channel string) error {
	if !channelPattern.MatchString(channel) {
		return fmt.Errorf("invalid notification channel %q", channel)
	}
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	for _, table := range []string{"admission_records", "admin_users"} {
		trigger := table + "_notify"
		if _, err := db.ExecContext(ctx, fmt.Sprintf(`DROP TRIGGER IF EXISTS %s ON %s`, trigger, table)); err != nil {
			return fmt.Errorf("drop trigger %s: %w", trigger, err)
		}
		create := fmt.Sprintf(`CREATE TRIGGER %s AFTER INSERT OR UPDATE OR DELETE OR TRUNCATE ON %s
FOR EACH STATEMENT EXECUTE FUNCTION notify_admission_change('%s')`, trigger, table, channel)
		if _, err := db.ExecContext(ctx, create); err != nil {
			return fmt.Errorf("create trigger %s: %w", trigger, err)
		}
	}
	return nil
}
