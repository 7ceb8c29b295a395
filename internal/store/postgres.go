package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
)

const changeNotification = "directory_changed"

// PostgresStore is the alternative Persistent Store backend: the Directory
// lives as jsonb in a single fixed row and LISTEN/NOTIFY carries the change
// signal. Selected over Redis when DATABASE_URL is configured.
type PostgresStore struct {
	db          *sql.DB
	databaseURL string
}

// NewPostgresStore wraps an open database handle. The URL is kept so
// Subscribe can open its own dedicated listening connection.
func NewPostgresStore(db *sql.DB, databaseURL string) *PostgresStore {
	return &PostgresStore{db: db, databaseURL: databaseURL}
}

// Load reads the Directory row. Missing row and unparseable document both
// report absence, the latter with a log line so the operator can see the
// corruption was discarded.
func (s *PostgresStore) Load(ctx context.Context) (Directory, bool, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM directory_doc WHERE id = 1`).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return Directory{}, false, nil
	}
	if err != nil {
		return Directory{}, false, fmt.Errorf("load directory: %w", err)
	}

	var directory Directory
	if err := json.Unmarshal(raw, &directory); err != nil {
		log.Printf("WARNING: stored directory is unparseable, treating as absent: %v", err)
		return Directory{}, false, nil
	}
	return directory, true, nil
}

// Save upserts the document row and notifies listeners in one transaction.
func (s *PostgresStore) Save(ctx context.Context, directory Directory) error {
	raw, err := json.Marshal(directory)
	if err != nil {
		return fmt.Errorf("marshal directory: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO directory_doc (id, doc)
		VALUES (1, $1)
		ON CONFLICT (id) DO UPDATE SET doc = EXCLUDED.doc
	`, raw); err != nil {
		return fmt.Errorf("save directory: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `SELECT pg_notify($1, '')`, changeNotification); err != nil {
		return fmt.Errorf("notify directory change: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save: %w", err)
	}
	return nil
}

// Subscribe opens a dedicated connection, LISTENs for directory changes, and
// forwards them as empty signals. Notifications arriving while the consumer
// is busy are coalesced into one pending signal.
func (s *PostgresStore) Subscribe(ctx context.Context) (<-chan struct{}, error) {
	conn, err := pgx.Connect(ctx, s.databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect listener: %w", err)
	}
	if _, err := conn.Exec(ctx, `LISTEN `+changeNotification); err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("listen %s: %w", changeNotification, err)
	}

	signals := make(chan struct{}, 1)
	go func() {
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = conn.Close(closeCtx)
		}()
		for {
			if _, err := conn.WaitForNotification(ctx); err != nil {
				if ctx.Err() == nil {
					log.Printf("WARNING: directory change listener stopped: %v", err)
				}
				return
			}
			select {
			case signals <- struct{}{}:
			default:
			}
		}
	}()
	return signals, nil
}

// SoundPreference returns the stored alert-sound identifier for an advisor,
// or "" when none was saved.
func (s *PostgresStore) SoundPreference(ctx context.Context, username string) (string, error) {
	var sound string
	err := s.db.QueryRowContext(ctx, `SELECT sound FROM sound_preferences WHERE username = $1`, username).Scan(&sound)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load sound preference: %w", err)
	}
	return sound, nil
}

// SaveSoundPreference stores an advisor's alert-sound identifier.
func (s *PostgresStore) SaveSoundPreference(ctx context.Context, username, sound string) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO sound_preferences (username, sound)
		VALUES ($1, $2)
		ON CONFLICT (username) DO UPDATE SET sound = EXCLUDED.sound
	`, username, sound); err != nil {
		return fmt.Errorf("save sound preference: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database handle.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
