package config

import (
	"fmt"
	"strings"
)

// dialect returns the DDL fragments that differ between backends. Everything
// else in the schema is written in the common subset.
func (s *Store) dialect() (idCol, boolCol, timeCol string) {
	switch s.driver {
	case "postgres":
		return "BIGSERIAL PRIMARY KEY", "BOOLEAN", "TIMESTAMPTZ"
	case "mysql":
		return "BIGINT PRIMARY KEY AUTO_INCREMENT", "TINYINT(1)", "DATETIME(6)"
	default: // sqlite
		return "INTEGER PRIMARY KEY AUTOINCREMENT", "INTEGER", "DATETIME"
	}
}

func (s *Store) migrate() error {
	id, boolean, ts := s.dialect()

	migrations := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS users (
			id %s,
			email VARCHAR(255) UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			password_salt TEXT NOT NULL,
			name VARCHAR(255) NOT NULL DEFAULT '',
			is_active %s NOT NULL DEFAULT 1,
			last_login_at %s,
			created_at %s NOT NULL,
			updated_at %s NOT NULL
		)`, id, boolean, ts, ts, ts),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS api_keys (
			id %s,
			user_id BIGINT NOT NULL,
			key_hash VARCHAR(64) UNIQUE NOT NULL,
			key_prefix VARCHAR(32) NOT NULL,
			name VARCHAR(255) NOT NULL DEFAULT '',
			wallet_address VARCHAR(42) NOT NULL,
			encrypted_key TEXT NOT NULL,
			key_iv TEXT NOT NULL,
			key_auth_tag TEXT NOT NULL,
			permissions TEXT NOT NULL DEFAULT '[]',
			is_active %s NOT NULL DEFAULT 1,
			expires_at %s,
			created_at %s NOT NULL,
			last_used %s,
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		)`, id, boolean, ts, ts, ts),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS usage_log (
			id %s,
			api_key_id BIGINT NOT NULL,
			endpoint VARCHAR(255) NOT NULL,
			method VARCHAR(16) NOT NULL,
			status INTEGER NOT NULL,
			caller_ip VARCHAR(64) NOT NULL DEFAULT '',
			created_at %s NOT NULL,
			FOREIGN KEY (api_key_id) REFERENCES api_keys(id) ON DELETE CASCADE
		)`, id, ts),

		// No IF NOT EXISTS: MySQL has no such clause for CREATE INDEX, so
		// re-runs rely on the duplicate check below instead.
		`CREATE INDEX idx_api_keys_hash ON api_keys(key_hash)`,
		`CREATE INDEX idx_api_keys_user ON api_keys(user_id)`,
		`CREATE INDEX idx_usage_log_key ON usage_log(api_key_id)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			lower := strings.ToLower(err.Error())
			if strings.Contains(lower, "duplicate") || strings.Contains(lower, "already exists") {
				continue
			}
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}
