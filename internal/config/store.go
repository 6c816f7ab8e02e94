package config

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/treenteq/harbor/internal/model"
)

// Store manages Harbor's relational records: users, API keys (with their
// custodial wallet material inline), and the usage audit log. SQLite is the
// default backend; postgres and mysql are selectable by DSN for multi-node
// deployments.
type Store struct {
	db     *sqlx.DB
	driver string
}

// NewStore opens the record store for the given backend. For sqlite, pass an
// empty DataDir to get an in-memory database (used by tests).
func NewStore(cfg StoreConfig) (*Store, error) {
	var (
		db  *sqlx.DB
		err error
	)

	switch cfg.Driver {
	case "", "sqlite":
		var dsn string
		if cfg.DataDir == "" {
			dsn = ":memory:?_journal_mode=WAL"
		} else {
			if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
				return nil, fmt.Errorf("create data dir: %w", err)
			}
			dsn = filepath.Join(cfg.DataDir, "harbor.db") + "?_journal_mode=WAL&_busy_timeout=5000"
		}
		db, err = sqlx.Connect("sqlite", dsn)
		if err == nil {
			db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes
			_, err = db.Exec("PRAGMA foreign_keys = ON")
		}
		cfg.Driver = "sqlite"
	case "postgres":
		db, err = sqlx.Connect("pgx", cfg.DSN)
	case "mysql":
		db, err = sqlx.Connect("mysql", cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open record store: %w", err)
	}

	s := &Store{db: db, driver: cfg.Driver}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate record store: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the store connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// HashAPIKey returns the hex-encoded SHA-256 hash under which a raw API key
// is stored and looked up.
func HashAPIKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:])
}

// namedInsert runs a named INSERT and returns the new row id, papering over
// the postgres RETURNING / everyone-else LastInsertId split.
func (s *Store) namedInsert(ctx context.Context, q string, arg interface{}) (int64, error) {
	if s.driver == "postgres" {
		rows, err := s.db.NamedQueryContext(ctx, q+" RETURNING id", arg)
		if err != nil {
			return 0, err
		}
		defer rows.Close()
		if !rows.Next() {
			return 0, errors.New("insert returned no id")
		}
		var id int64
		if err := rows.Scan(&id); err != nil {
			return 0, err
		}
		return id, rows.Err()
	}

	res, err := s.db.NamedExecContext(ctx, q, arg)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ---------------------------------------------------------------------------
// User CRUD
// ---------------------------------------------------------------------------

// CreateUser inserts a new user account. ID, CreatedAt, and UpdatedAt are
// populated after a successful insert.
func (s *Store) CreateUser(ctx context.Context, u *model.User) error {
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now

	const q = `INSERT INTO users
		(email, password_hash, password_salt, name, is_active, created_at, updated_at)
		VALUES
		(:email, :password_hash, :password_salt, :name, :is_active, :created_at, :updated_at)`

	id, err := s.namedInsert(ctx, q, u)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	u.ID = id
	return nil
}

// GetUser returns a user by ID.
func (s *Store) GetUser(ctx context.Context, id int64) (*model.User, error) {
	var u model.User
	q := s.db.Rebind("SELECT * FROM users WHERE id = ?")
	if err := s.db.GetContext(ctx, &u, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// GetUserByEmail returns a user by email address.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	var u model.User
	q := s.db.Rebind("SELECT * FROM users WHERE email = ?")
	if err := s.db.GetContext(ctx, &u, q, email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return &u, nil
}

// HasAnyUser reports whether at least one user account exists, used for
// first-run detection.
func (s *Store) HasAnyUser(ctx context.Context) (bool, error) {
	var count int
	if err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM users"); err != nil {
		return false, fmt.Errorf("count users: %w", err)
	}
	return count > 0, nil
}

// UpdateUserLastLogin sets the last_login_at timestamp for a user.
func (s *Store) UpdateUserLastLogin(ctx context.Context, id int64) error {
	q := s.db.Rebind("UPDATE users SET last_login_at = ? WHERE id = ?")
	_, err := s.db.ExecContext(ctx, q, time.Now().UTC(), id)
	return err
}

// ---------------------------------------------------------------------------
// API key CRUD
// ---------------------------------------------------------------------------

// apiKeyRow is a flat struct mapping 1:1 to the api_keys table. Permissions
// are stored as a JSON array in a text column.
type apiKeyRow struct {
	ID            int64      `db:"id"`
	UserID        int64      `db:"user_id"`
	KeyHash       string     `db:"key_hash"`
	KeyPrefix     string     `db:"key_prefix"`
	Name          string     `db:"name"`
	WalletAddress string     `db:"wallet_address"`
	EncryptedKey  string     `db:"encrypted_key"`
	KeyIV         string     `db:"key_iv"`
	KeyAuthTag    string     `db:"key_auth_tag"`
	Permissions   string     `db:"permissions"`
	IsActive      bool       `db:"is_active"`
	ExpiresAt     *time.Time `db:"expires_at"`
	CreatedAt     time.Time  `db:"created_at"`
	LastUsed      *time.Time `db:"last_used"`
}

func apiKeyRowFromModel(k *model.APIKey) (apiKeyRow, error) {
	perms, err := json.Marshal(k.Permissions)
	if err != nil {
		return apiKeyRow{}, fmt.Errorf("marshal permissions: %w", err)
	}
	return apiKeyRow{
		ID:            k.ID,
		UserID:        k.UserID,
		KeyHash:       k.KeyHash,
		KeyPrefix:     k.KeyPrefix,
		Name:          k.Name,
		WalletAddress: k.WalletAddress,
		EncryptedKey:  k.EncryptedKey,
		KeyIV:         k.KeyIV,
		KeyAuthTag:    k.KeyAuthTag,
		Permissions:   string(perms),
		IsActive:      k.IsActive,
		ExpiresAt:     k.ExpiresAt,
		CreatedAt:     k.CreatedAt,
		LastUsed:      k.LastUsed,
	}, nil
}

func (r apiKeyRow) toModel() model.APIKey {
	var perms []string
	_ = json.Unmarshal([]byte(r.Permissions), &perms)
	return model.APIKey{
		ID:            r.ID,
		UserID:        r.UserID,
		KeyHash:       r.KeyHash,
		KeyPrefix:     r.KeyPrefix,
		Name:          r.Name,
		WalletAddress: r.WalletAddress,
		EncryptedKey:  r.EncryptedKey,
		KeyIV:         r.KeyIV,
		KeyAuthTag:    r.KeyAuthTag,
		Permissions:   perms,
		IsActive:      r.IsActive,
		ExpiresAt:     r.ExpiresAt,
		CreatedAt:     r.CreatedAt,
		LastUsed:      r.LastUsed,
	}
}

// CreateAPIKey inserts a new API key record with its wallet material. The
// key_hash must already be set (use HashAPIKey). ID and CreatedAt are
// populated after insert.
func (s *Store) CreateAPIKey(ctx context.Context, key *model.APIKey) error {
	key.CreatedAt = time.Now().UTC()

	row, err := apiKeyRowFromModel(key)
	if err != nil {
		return err
	}

	const q = `INSERT INTO api_keys
		(user_id, key_hash, key_prefix, name, wallet_address, encrypted_key,
		 key_iv, key_auth_tag, permissions, is_active, expires_at, created_at)
		VALUES
		(:user_id, :key_hash, :key_prefix, :name, :wallet_address, :encrypted_key,
		 :key_iv, :key_auth_tag, :permissions, :is_active, :expires_at, :created_at)`

	id, err := s.namedInsert(ctx, q, row)
	if err != nil {
		return fmt.Errorf("insert api key: %w", err)
	}
	key.ID = id
	return nil
}

// GetAPIKeyByHash looks up an API key by its SHA-256 hash.
func (s *Store) GetAPIKeyByHash(ctx context.Context, hash string) (*model.APIKey, error) {
	var row apiKeyRow
	q := s.db.Rebind("SELECT * FROM api_keys WHERE key_hash = ?")
	if err := s.db.GetContext(ctx, &row, q, hash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get api key: %w", err)
	}
	key := row.toModel()
	return &key, nil
}

// GetAPIKey returns an API key by ID.
func (s *Store) GetAPIKey(ctx context.Context, id int64) (*model.APIKey, error) {
	var row apiKeyRow
	q := s.db.Rebind("SELECT * FROM api_keys WHERE id = ?")
	if err := s.db.GetContext(ctx, &row, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get api key: %w", err)
	}
	key := row.toModel()
	return &key, nil
}

// ListAPIKeysByUser returns all API keys belonging to a user, newest first.
func (s *Store) ListAPIKeysByUser(ctx context.Context, userID int64) ([]model.APIKey, error) {
	var rows []apiKeyRow
	q := s.db.Rebind("SELECT * FROM api_keys WHERE user_id = ? ORDER BY created_at DESC")
	if err := s.db.SelectContext(ctx, &rows, q, userID); err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	keys := make([]model.APIKey, len(rows))
	for i, r := range rows {
		keys[i] = r.toModel()
	}
	return keys, nil
}

// DeleteAPIKey removes an API key and, because the wallet material lives on
// the same row, its encrypted private key with it. The delete is scoped to
// the owning user; a non-owner gets ErrNotFound, never someone else's key.
func (s *Store) DeleteAPIKey(ctx context.Context, id, userID int64) error {
	q := s.db.Rebind("DELETE FROM api_keys WHERE id = ? AND user_id = ?")
	res, err := s.db.ExecContext(ctx, q, id, userID)
	if err != nil {
		return fmt.Errorf("delete api key: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateAPIKeyLastUsed sets the last_used timestamp for an API key.
func (s *Store) UpdateAPIKeyLastUsed(ctx context.Context, id int64) error {
	q := s.db.Rebind("UPDATE api_keys SET last_used = ? WHERE id = ?")
	_, err := s.db.ExecContext(ctx, q, time.Now().UTC(), id)
	return err
}

// CountAPIKeysCreatedSince counts keys a user created after the cutoff,
// backing the rolling issuance window.
func (s *Store) CountAPIKeysCreatedSince(ctx context.Context, userID int64, since time.Time) (int, error) {
	var count int
	q := s.db.Rebind("SELECT COUNT(*) FROM api_keys WHERE user_id = ? AND created_at > ?")
	if err := s.db.GetContext(ctx, &count, q, userID, since); err != nil {
		return 0, fmt.Errorf("count api keys: %w", err)
	}
	return count, nil
}

// ---------------------------------------------------------------------------
// Usage audit log
// ---------------------------------------------------------------------------

// InsertUsage appends one audit record for an authenticated request.
func (s *Store) InsertUsage(ctx context.Context, rec *model.UsageRecord) error {
	rec.CreatedAt = time.Now().UTC()

	const q = `INSERT INTO usage_log
		(api_key_id, endpoint, method, status, caller_ip, created_at)
		VALUES
		(:api_key_id, :endpoint, :method, :status, :caller_ip, :created_at)`

	id, err := s.namedInsert(ctx, q, rec)
	if err != nil {
		return fmt.Errorf("insert usage record: %w", err)
	}
	rec.ID = id
	return nil
}

// ListUsageByKey returns the most recent audit records for an API key.
func (s *Store) ListUsageByKey(ctx context.Context, keyID int64, limit int) ([]model.UsageRecord, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	var recs []model.UsageRecord
	q := s.db.Rebind("SELECT * FROM usage_log WHERE api_key_id = ? ORDER BY created_at DESC LIMIT ?")
	if err := s.db.SelectContext(ctx, &recs, q, keyID, limit); err != nil {
		return nil, fmt.Errorf("list usage records: %w", err)
	}
	return recs, nil
}
