package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	_ "github.com/glebarez/go-sqlite"
	"go.uber.org/zap"
)

var _ Store = (*SQLiteStore)(nil)

// SQLiteStore keeps the shared state in a WAL-mode SQLite file, so it survives
// crashes and can be shared with producers running in other processes.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger *zap.Logger

	mu       sync.Mutex
	watchers map[chan struct{}]struct{}
}

func NewSQLiteStore(path string, logger *zap.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %s: %w", pragma, err)
		}
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS widget_state (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create widget_state table: %w", err)
	}

	return &SQLiteStore{
		db:       db,
		path:     path,
		logger:   logger,
		watchers: make(map[chan struct{}]struct{}),
	}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (string, bool) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM widget_state WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false
	}
	if err != nil {
		s.logger.Warn("SQLite read failed, treating as absent", zap.String("key", key), zap.Error(err))
		return "", false
	}
	return value, true
}

func (s *SQLiteStore) Set(ctx context.Context, key, value string) error {
	return s.SetMany(ctx, map[string]string{key: value})
}

func (s *SQLiteStore) SetMany(ctx context.Context, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite begin: %w", err)
	}
	now := time.Now().UnixMicro()
	for k, v := range fields {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO widget_state (key, value, updated_at) VALUES (?, ?, ?) ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at",
			k, v, now,
		)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("sqlite upsert %s: %w", k, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite commit: %w", err)
	}

	s.notifyLocal()
	return nil
}

// Watch reports writes made through this handle directly, and writes from other
// processes through file system events on the database and its WAL.
func (s *SQLiteStore) Watch(ctx context.Context) (<-chan struct{}, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("fsnotify: %w", err)
	}
	if err := fw.Add(filepath.Dir(s.path)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(s.path), err)
	}

	local := make(chan struct{}, 1)
	s.mu.Lock()
	s.watchers[local] = struct{}{}
	s.mu.Unlock()

	base := filepath.Base(s.path)
	watched := map[string]bool{base: true, base + "-wal": true}

	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		defer fw.Close()
		defer func() {
			s.mu.Lock()
			delete(s.watchers, local)
			s.mu.Unlock()
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case <-local:
				signal(out)
			case ev, ok := <-fw.Events:
				if !ok {
					return
				}
				if watched[filepath.Base(ev.Name)] && ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					signal(out)
				}
			case err, ok := <-fw.Errors:
				if !ok {
					return
				}
				s.logger.Warn("SQLite watch error", zap.Error(err))
			}
		}
	}()
	return out, nil
}

func (s *SQLiteStore) notifyLocal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.watchers {
		signal(ch)
	}
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
