// Package sqlite provides a SQLite-backed entity store with an in-process
// change feed.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/signalsfoundry/geovoxel/internal/logging"
	"github.com/signalsfoundry/geovoxel/model"
	"github.com/signalsfoundry/geovoxel/store"
	"github.com/signalsfoundry/geovoxel/store/sqlite/migrations"
)

// Store persists placed entities in SQLite.
type Store struct {
	db  *sql.DB
	hub *store.Hub
	log logging.Logger

	newID func() string
	now   func() time.Time
}

// Option customises a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(l logging.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// WithFeedBuffer sets the per-subscriber feed buffer.
func WithFeedBuffer(n int) Option {
	return func(s *Store) { s.hub = store.NewHub(n) }
}

// WithClock overrides time.Now for created_at.
func WithClock(fn func() time.Time) Option {
	return func(s *Store) { s.now = fn }
}

func toMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(v int64) time.Time { return time.UnixMilli(v).UTC() }

// Open opens (creating if needed) the database at path and applies the
// embedded migrations.
func Open(path string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer keeps SQLITE_BUSY out of the delete transaction.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := migrateUp(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	s := &Store{
		db:    db,
		hub:   store.NewHub(store.DefaultFeedBuffer),
		log:   logging.Noop(),
		newID: uuid.NewString,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// migrateUp does not close the migrate instance because that would close db.
func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("load embedded migrations: %w", err)
	}
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("create sqlite migrate driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// Close ends every feed and closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	s.hub.Close()
	return s.db.Close()
}

// List returns entities inside box ordered by creation time.
func (s *Store) List(ctx context.Context, box model.BoundingBox) ([]model.PlacedEntity, error) {
	query := `SELECT id, lat, lon, alt, color, owner_id, created_at FROM placed_entities`
	var args []any
	if !box.IsZero() {
		query += ` WHERE lat BETWEEN ? AND ? AND lon BETWEEN ? AND ?`
		args = append(args, box.MinLat, box.MaxLat, box.MinLng, box.MaxLng)
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	defer rows.Close()

	var res []model.PlacedEntity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		res = append(res, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entities: %w", err)
	}
	return res, nil
}

// Insert validates e, stores it under a new uuid and publishes a created
// event after commit.
func (s *Store) Insert(ctx context.Context, e model.PlacedEntity) (string, error) {
	if err := store.Validate(e); err != nil {
		return "", err
	}
	e.ID = s.newID()
	e.CreatedAt = s.now().UTC().Truncate(time.Millisecond)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO placed_entities (id, lat, lon, alt, color, owner_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Lat, e.Lon, e.Alt, e.Color, e.OwnerID, toMillis(e.CreatedAt),
	)
	if err != nil {
		return "", fmt.Errorf("insert entity: %w", err)
	}
	s.log.Debug(ctx, "entity inserted",
		logging.String("entity_id", e.ID),
		logging.String("owner_id", e.OwnerID),
	)
	s.hub.Publish(model.Change{Type: model.ChangeCreated, Entity: e})
	return e.ID, nil
}

// Delete removes id when requester owns it.
func (s *Store) Delete(ctx context.Context, id, requester string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx,
		`SELECT id, lat, lon, alt, color, owner_id, created_at FROM placed_entities WHERE id = ?`, id)
	e, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("delete %q: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("load entity %q: %w", id, err)
	}
	if e.OwnerID != requester {
		return fmt.Errorf("delete %q by %q: %w", id, requester, store.ErrNotOwner)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM placed_entities WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete entity %q: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}

	s.log.Debug(ctx, "entity deleted", logging.String("entity_id", id))
	s.hub.Publish(model.Change{Type: model.ChangeDeleted, Entity: e})
	return nil
}

// Watch subscribes to changes inside box.
func (s *Store) Watch(ctx context.Context, box model.BoundingBox) (<-chan model.Change, error) {
	return s.hub.Subscribe(ctx, box)
}

// CountByOwner returns the number of entities per owner.
func (s *Store) CountByOwner(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT owner_id, COUNT(*) FROM placed_entities GROUP BY owner_id`)
	if err != nil {
		return nil, fmt.Errorf("count by owner: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			owner string
			n     int
		)
		if err := rows.Scan(&owner, &n); err != nil {
			return nil, fmt.Errorf("scan owner count: %w", err)
		}
		counts[owner] = n
	}
	return counts, rows.Err()
}

// Subscribers returns the number of live feed subscribers.
func (s *Store) Subscribers() int { return s.hub.Len() }

type scanner interface {
	Scan(dest ...any) error
}

func scanEntity(sc scanner) (model.PlacedEntity, error) {
	var (
		e         model.PlacedEntity
		createdAt int64
	)
	if err := sc.Scan(&e.ID, &e.Lat, &e.Lon, &e.Alt, &e.Color, &e.OwnerID, &createdAt); err != nil {
		return model.PlacedEntity{}, err
	}
	e.CreatedAt = fromMillis(createdAt)
	return e, nil
}
