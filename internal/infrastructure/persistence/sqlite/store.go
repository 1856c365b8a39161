package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"stageLink/internal/domain"
)

// Store guarda usuarios, claves activas y tokens por proveedor.
type Store struct {
	db *sql.DB
}

func NewStore(dbPath string) (*Store, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("sqlite: empty db path")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("sqlite: creating dir: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}

	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	const twitchUsersTable = `
CREATE TABLE IF NOT EXISTS twitch_users (
	id INTEGER PRIMARY KEY,
	joined_at TIMESTAMP NOT NULL
);`

	if _, err := db.Exec(twitchUsersTable); err != nil {
		return fmt.Errorf("sqlite: migrate twitch_users: %w", err)
	}

	const streamlabsUsersTable = `
CREATE TABLE IF NOT EXISTS streamlabs_users (
	id INTEGER PRIMARY KEY,
	joined_at TIMESTAMP NOT NULL
);`

	if _, err := db.Exec(streamlabsUsersTable); err != nil {
		return fmt.Errorf("sqlite: migrate streamlabs_users: %w", err)
	}

	const activeKeysTable = `
CREATE TABLE IF NOT EXISTS active_keys (
	state TEXT PRIMARY KEY,
	created_at TIMESTAMP NOT NULL
);`

	if _, err := db.Exec(activeKeysTable); err != nil {
		return fmt.Errorf("sqlite: migrate active_keys: %w", err)
	}

	const twitchKeysTable = `
CREATE TABLE IF NOT EXISTS active_twitch_keys (
	id INTEGER PRIMARY KEY,
	authentication TEXT NOT NULL,
	refresh TEXT NOT NULL,
	user INTEGER NOT NULL UNIQUE,
	state TEXT NOT NULL,
	version INTEGER NOT NULL,
	FOREIGN KEY (user) REFERENCES twitch_users (id),
	FOREIGN KEY (state) REFERENCES active_keys (state)
);`

	if _, err := db.Exec(twitchKeysTable); err != nil {
		return fmt.Errorf("sqlite: migrate active_twitch_keys: %w", err)
	}

	const streamlabsKeysTable = `
CREATE TABLE IF NOT EXISTS active_stream_labs_keys (
	id INTEGER PRIMARY KEY,
	authentication TEXT NOT NULL,
	refresh TEXT NOT NULL,
	user INTEGER NOT NULL UNIQUE,
	state TEXT NOT NULL,
	version INTEGER NOT NULL,
	FOREIGN KEY (user) REFERENCES streamlabs_users (id),
	FOREIGN KEY (state) REFERENCES active_keys (state)
);`

	if _, err := db.Exec(streamlabsKeysTable); err != nil {
		return fmt.Errorf("sqlite: migrate active_stream_labs_keys: %w", err)
	}

	return nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// InsertActiveKey registra un state token; repetir es inofensivo.
func (s *Store) InsertActiveKey(ctx context.Context, state string) error {
	const stmt = `INSERT OR IGNORE INTO active_keys (state, created_at) VALUES (?, ?);`

	if _, err := s.db.ExecContext(ctx, stmt, state, time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("sqlite: insert active key: %w", err)
	}
	return nil
}

func (s *Store) InsertTwitchUser(ctx context.Context, id int64) error {
	return s.insertUser(ctx, "twitch_users", id)
}

func (s *Store) InsertStreamlabsUser(ctx context.Context, id int64) error {
	return s.insertUser(ctx, "streamlabs_users", id)
}

func (s *Store) insertUser(ctx context.Context, table string, id int64) error {
	stmt := fmt.Sprintf(`INSERT OR IGNORE INTO %s (id, joined_at) VALUES (?, ?);`, table)

	if _, err := s.db.ExecContext(ctx, stmt, id, time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("sqlite: insert into %s: %w", table, err)
	}
	return nil
}

// UpsertTwitchKey inserta o reemplaza el token del usuario y sube la
// versión almacenada en uno.
func (s *Store) UpsertTwitchKey(ctx context.Context, key domain.StoredKey) error {
	return s.upsertKey(ctx, "active_twitch_keys", key)
}

func (s *Store) UpsertStreamlabsKey(ctx context.Context, key domain.StoredKey) error {
	return s.upsertKey(ctx, "active_stream_labs_keys", key)
}

func (s *Store) upsertKey(ctx context.Context, table string, key domain.StoredKey) error {
	stmt := fmt.Sprintf(`
INSERT INTO %[1]s (authentication, refresh, user, state, version)
VALUES (?, ?, ?, ?, 1)
ON CONFLICT(user) DO UPDATE SET
	authentication=excluded.authentication,
	refresh=excluded.refresh,
	state=excluded.state,
	version=%[1]s.version+1;
`, table)

	if _, err := s.db.ExecContext(ctx, stmt, key.Access, key.Refresh, key.UserID, key.State); err != nil {
		return fmt.Errorf("sqlite: upsert into %s: %w", table, err)
	}
	return nil
}

func (s *Store) TwitchKeyByState(ctx context.Context, state string) (*domain.StoredKey, error) {
	return s.keyByState(ctx, "active_twitch_keys", state)
}

func (s *Store) StreamlabsKeyByState(ctx context.Context, state string) (*domain.StoredKey, error) {
	return s.keyByState(ctx, "active_stream_labs_keys", state)
}

func (s *Store) keyByState(ctx context.Context, table, state string) (*domain.StoredKey, error) {
	query := fmt.Sprintf(`
SELECT authentication, refresh, user, state, version
FROM %s
WHERE state = ?
LIMIT 1;
`, table)

	row := s.db.QueryRowContext(ctx, query, state)

	var key domain.StoredKey
	if err := row.Scan(&key.Access, &key.Refresh, &key.UserID, &key.State, &key.Version); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("sqlite: key from %s: %w", table, err)
	}

	return &key, nil
}

var _ domain.TokenStore = (*Store)(nil)
