package db

import (
	"fmt"

	"gorm.io/gorm"
)

// Only service-owned tables are created here. reservation_assignments and
// user_devices belong to the back-office schema and are read in place.
var migrationStatements = []string{
	`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`,
	`CREATE EXTENSION IF NOT EXISTS "pgcrypto";`,
	`CREATE TABLE IF NOT EXISTS assignment_tracking (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		reservation_assignment_id BIGINT NOT NULL,
		reservation_id BIGINT NOT NULL,
		contractor_id BIGINT NOT NULL,
		claimant_id BIGINT NOT NULL,
		current_button_id INT NOT NULL DEFAULT 1,
		start_at TIMESTAMPTZ,
		start_lat DOUBLE PRECISION,
		start_lng DOUBLE PRECISION,
		reached_at TIMESTAMPTZ,
		reached_lat DOUBLE PRECISION,
		reached_lng DOUBLE PRECISION,
		picked_up_at TIMESTAMPTZ,
		picked_up_lat DOUBLE PRECISION,
		picked_up_lng DOUBLE PRECISION,
		trip_end_at TIMESTAMPTZ,
		trip_end_lat DOUBLE PRECISION,
		trip_end_lng DOUBLE PRECISION,
		dead_miles DOUBLE PRECISION,
		travelling_miles DOUBLE PRECISION,
		reached_image_url TEXT,
		trip_end_image_url TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uniq_tracking_assignment
		ON assignment_tracking (reservation_assignment_id);`,
	`CREATE INDEX IF NOT EXISTS idx_tracking_contractor ON assignment_tracking (contractor_id);`,
	`CREATE TABLE IF NOT EXISTS waiting_records (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		tracking_id UUID NOT NULL REFERENCES assignment_tracking(id) ON DELETE CASCADE,
		lat DOUBLE PRECISION NOT NULL,
		lng DOUBLE PRECISION NOT NULL,
		started_at TIMESTAMPTZ NOT NULL,
		ended_at TIMESTAMPTZ,
		comment TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_waiting_tracking_id ON waiting_records (tracking_id);`,
	`CREATE TABLE IF NOT EXISTS coordinate_pings (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		reservation_assignment_id BIGINT NOT NULL,
		tracking_id UUID NOT NULL,
		latitude DOUBLE PRECISION NOT NULL,
		longitude DOUBLE PRECISION NOT NULL,
		recorded_at TIMESTAMPTZ NOT NULL,
		dead_mile BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_pings_assignment_time
		ON coordinate_pings (reservation_assignment_id, recorded_at);`,
	`CREATE TABLE IF NOT EXISTS assignment_paths (
		reservation_assignment_id BIGINT PRIMARY KEY,
		points TEXT NOT NULL DEFAULT '[]',
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE TABLE IF NOT EXISTS notifications (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		reference_id UUID NOT NULL,
		notification_type VARCHAR(64) NOT NULL,
		reference_key VARCHAR(128) NOT NULL,
		recipient_id BIGINT NOT NULL,
		recipient_type VARCHAR(32) NOT NULL,
		reservation_id BIGINT,
		assignment_id BIGINT,
		title VARCHAR(255) NOT NULL,
		body TEXT,
		payload JSONB,
		sent_at TIMESTAMPTZ NOT NULL,
		is_read BOOLEAN NOT NULL DEFAULT FALSE,
		read_at TIMESTAMPTZ,
		created_by VARCHAR(64),
		push_token TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uniq_notification_dedup
		ON notifications (notification_type, reference_key, recipient_id);`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_recipient ON notifications (recipient_id);`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_sent_at ON notifications (sent_at);`,
	`CREATE OR REPLACE FUNCTION set_row_updated_at()
	RETURNS TRIGGER AS $$
	BEGIN
		NEW.updated_at = NOW();
		RETURN NEW;
	END;
	$$ LANGUAGE plpgsql;`,
	`DO $$
	BEGIN
		IF NOT EXISTS (SELECT 1 FROM pg_trigger WHERE tgname = 'trg_tracking_updated_at') THEN
			CREATE TRIGGER trg_tracking_updated_at
				BEFORE UPDATE ON assignment_tracking
				FOR EACH ROW
				EXECUTE PROCEDURE set_row_updated_at();
		END IF;
		IF NOT EXISTS (SELECT 1 FROM pg_trigger WHERE tgname = 'trg_paths_updated_at') THEN
			CREATE TRIGGER trg_paths_updated_at
				BEFORE UPDATE ON assignment_paths
				FOR EACH ROW
				EXECUTE PROCEDURE set_row_updated_at();
		END IF;
	END
	$$;`,
	`DO $$
	BEGIN
		IF NOT EXISTS (
			SELECT 1 FROM pg_constraint WHERE conname = 'chk_tracking_button_range'
		) THEN
			ALTER TABLE assignment_tracking
				ADD CONSTRAINT chk_tracking_button_range
				CHECK (current_button_id BETWEEN 1 AND 4);
		END IF;
	END
	$$;`,
}

func runMigrations(db *gorm.DB) error {
	for i, stmt := range migrationStatements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
