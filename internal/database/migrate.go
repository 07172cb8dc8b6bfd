package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
)

// migrations is the fixed, versioned schema.  Each entry runs at most once,
// tracked by the schema_migrations table; there is no request-time schema
// probing anywhere in the application.
var migrations = []struct {
	version int
	name    string
	stmts   []string
}{
	{
		version: 1,
		name:    "users and refresh tokens",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS users (
				id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
				netid VARCHAR(64) NULL,
				email VARCHAR(255) NULL,
				display_name VARCHAR(255) NOT NULL DEFAULT '',
				password_hash VARCHAR(255) NULL,
				role ENUM('RENTER','LENDER','ADMIN') NOT NULL DEFAULT 'RENTER',
				is_active TINYINT(1) NOT NULL DEFAULT 1,
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
				UNIQUE KEY uq_users_netid (netid),
				UNIQUE KEY uq_users_email (email)
			) ENGINE=InnoDB`,
			`CREATE TABLE IF NOT EXISTS refresh_tokens (
				id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
				user_id BIGINT UNSIGNED NOT NULL,
				token_hash CHAR(64) NOT NULL,
				expires_at DATETIME NOT NULL,
				revoked_at DATETIME NULL,
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				UNIQUE KEY uq_refresh_hash (token_hash),
				KEY idx_refresh_user (user_id),
				CONSTRAINT fk_refresh_user FOREIGN KEY (user_id) REFERENCES users(id)
			) ENGINE=InnoDB`,
		},
	},
	{
		version: 2,
		name:    "listings",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS listings (
				id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
				owner_id BIGINT UNSIGNED NOT NULL,
				title VARCHAR(255) NOT NULL,
				description TEXT NULL,
				location VARCHAR(255) NOT NULL,
				latitude DOUBLE NULL,
				longitude DOUBLE NULL,
				cost_cents INT UNSIGNED NOT NULL DEFAULT 0,
				total_space BIGINT NOT NULL,
				remaining_space BIGINT NOT NULL,
				start_date DATE NOT NULL,
				end_date DATE NOT NULL,
				image_url VARCHAR(512) NULL,
				is_available TINYINT(1) NOT NULL DEFAULT 1,
				withdrawn TINYINT(1) NOT NULL DEFAULT 0,
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
				KEY idx_listings_owner (owner_id),
				KEY idx_listings_available (is_available, withdrawn),
				CONSTRAINT fk_listings_owner FOREIGN KEY (owner_id) REFERENCES users(id),
				CONSTRAINT chk_listings_space CHECK (remaining_space >= 0 AND remaining_space <= total_space)
			) ENGINE=InnoDB`,
		},
	},
	{
		version: 3,
		name:    "reservation requests",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS reservation_requests (
				id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
				listing_id BIGINT UNSIGNED NOT NULL,
				renter_id BIGINT UNSIGNED NOT NULL,
				requested_space BIGINT NOT NULL,
				approved_space BIGINT NULL,
				status ENUM('pending','approved_full','approved_partial','rejected','cancelled_by_renter','expired')
					NOT NULL DEFAULT 'pending',
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
				KEY idx_requests_listing_status (listing_id, status),
				KEY idx_requests_renter (renter_id),
				KEY idx_requests_pair (listing_id, renter_id, status),
				CONSTRAINT fk_requests_listing FOREIGN KEY (listing_id) REFERENCES listings(id),
				CONSTRAINT fk_requests_renter FOREIGN KEY (renter_id) REFERENCES users(id),
				CONSTRAINT chk_requests_space CHECK (requested_space > 0)
			) ENGINE=InnoDB`,
		},
	},
	{
		version: 4,
		name:    "interest and reviews",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS listing_interests (
				id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
				listing_id BIGINT UNSIGNED NOT NULL,
				renter_id BIGINT UNSIGNED NOT NULL,
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				UNIQUE KEY uq_interest_pair (listing_id, renter_id),
				CONSTRAINT fk_interest_listing FOREIGN KEY (listing_id) REFERENCES listings(id) ON DELETE CASCADE,
				CONSTRAINT fk_interest_renter FOREIGN KEY (renter_id) REFERENCES users(id)
			) ENGINE=InnoDB`,
			`CREATE TABLE IF NOT EXISTS lender_reviews (
				id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
				lender_id BIGINT UNSIGNED NOT NULL,
				renter_id BIGINT UNSIGNED NOT NULL,
				rating TINYINT UNSIGNED NOT NULL,
				comment TEXT NULL,
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				UNIQUE KEY uq_review_pair (lender_id, renter_id),
				CONSTRAINT fk_reviews_lender FOREIGN KEY (lender_id) REFERENCES users(id),
				CONSTRAINT fk_reviews_renter FOREIGN KEY (renter_id) REFERENCES users(id),
				CONSTRAINT chk_review_rating CHECK (rating BETWEEN 1 AND 5)
			) ENGINE=InnoDB`,
		},
	},
}

// Migrate applies all pending migrations in order.  It is safe to call on
// every startup; applied versions are skipped.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INT NOT NULL PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	) ENGINE=InnoDB`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	for _, m := range migrations {
		var exists int
		err := db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, m.version).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.version, err)
		}
		if exists > 0 {
			continue
		}
		log.Printf("migrate: applying %d (%s)", m.version, m.name)
		for _, stmt := range m.stmts {
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
			}
		}
		if _, err := db.ExecContext(ctx,
			`INSERT INTO schema_migrations (version, name) VALUES (?, ?)`, m.version, m.name); err != nil {
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
	}
	return nil
}
