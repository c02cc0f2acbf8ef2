// Package state manages the SQLite database that mirrors the mosque's display
// settings and carousel images on this device.
//
// Only this package may open or query the database. All other packages receive
// a [*Store] and call its methods. Every write carries a [model.Origin] and is
// published on the change feed returned by [Store.Subscribe].
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/njoerd114/mosquesync/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS settings (
    id                  INTEGER PRIMARY KEY CHECK (id = 1),
    mosque_name         TEXT    NOT NULL DEFAULT '',
    mosque_location     TEXT    NOT NULL DEFAULT '',
    logo_image          TEXT,
    prayer_address      TEXT    NOT NULL DEFAULT '',
    prayer_timezone     TEXT    NOT NULL DEFAULT '',
    quote_text          TEXT    NOT NULL DEFAULT '',
    marquee_text        TEXT    NOT NULL DEFAULT '',
    iqomah_minutes      INTEGER NOT NULL DEFAULT 0,
    updated_at          TEXT    NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS images (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    remote_id     TEXT    NOT NULL DEFAULT '',
    image_uri     TEXT    NOT NULL,
    display_order INTEGER NOT NULL DEFAULT 0,
    file_size     INTEGER NOT NULL DEFAULT 0,
    mime_type     TEXT    NOT NULL DEFAULT '',
    created_at    TEXT    NOT NULL DEFAULT ''
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_images_uri   ON images (image_uri);
CREATE INDEX        IF NOT EXISTS idx_images_order ON images (display_order);

CREATE TABLE IF NOT EXISTS sync_status (
    resource      TEXT PRIMARY KEY,
    last_success  TEXT NOT NULL DEFAULT '',
    last_error    TEXT NOT NULL DEFAULT '',
    last_error_at TEXT NOT NULL DEFAULT ''
);
`

// Resource names a mirrored collection.
type Resource string

const (
	ResourceSettings Resource = "settings"
	ResourceImages   Resource = "images"
)

// Change is published after every committed write.
type Change struct {
	Resource Resource
	Origin   model.Origin
}

// subscriberBuffer bounds each change-feed channel. Subscribers re-read the
// store on every notification, so a full buffer only drops redundant wakeups.
const subscriberBuffer = 64

// Store is the SQLite-backed local mirror.
type Store struct {
	db *sql.DB

	mu     sync.Mutex
	subs   map[int]chan Change
	nextID int
}

// DefaultDBPath returns the default path for the mirror database:
// ~/.local/share/mosquesync/mirror.db
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "mosquesync", "mirror.db"), nil
}

// Open opens (or creates) the SQLite database at path, applies the schema, and
// configures WAL mode for better concurrent read performance.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database %q: %w", path, err)
	}

	// Single writer to avoid SQLITE_BUSY under WAL. This also serialises
	// writes coming from the pollers and from user-triggered mutations.
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &Store{db: db, subs: make(map[int]chan Change)}, nil
}

// Close closes every subscriber channel and releases the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
	s.mu.Unlock()
	return s.db.Close()
}

// migrate applies the schema DDL idempotently (CREATE IF NOT EXISTS).
func migrate(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}

// --- Change feed -------------------------------------------------------------

// Subscribe returns a channel that receives a [Change] after every committed
// write, and a cancel function that unsubscribes and closes the channel.
func (s *Store) Subscribe() (<-chan Change, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	ch := make(chan Change, subscriberBuffer)
	s.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if c, ok := s.subs[id]; ok {
				close(c)
				delete(s.subs, id)
			}
		})
	}
	return ch, cancel
}

func (s *Store) publish(c Change) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- c:
		default:
		}
	}
}

// --- Settings ----------------------------------------------------------------

// GetSettings returns the mirrored settings, or (nil, nil) if none exist yet.
func (s *Store) GetSettings(ctx context.Context) (*model.Settings, error) {
	const q = `
		SELECT mosque_name, mosque_location, logo_image, prayer_address,
		       prayer_timezone, quote_text, marquee_text, iqomah_minutes, updated_at
		FROM settings WHERE id = 1`

	var (
		st        model.Settings
		logo      sql.NullString
		updatedAt string
	)
	err := s.db.QueryRowContext(ctx, q).Scan(
		&st.MosqueName,
		&st.MosqueLocation,
		&logo,
		&st.PrayerAddress,
		&st.PrayerTimezone,
		&st.QuoteText,
		&st.MarqueeText,
		&st.IqomahDurationMinutes,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // intentional: "not found" sentinel
	}
	if err != nil {
		return nil, fmt.Errorf("reading settings: %w", err)
	}
	if logo.Valid {
		st.LogoImage = &logo.String
	}
	st.UpdatedAt, _ = parseTime(updatedAt)
	return &st, nil
}

// ReplaceSettings writes the whole settings record, replacing any existing
// copy. AccountID is not stored.
func (s *Store) ReplaceSettings(ctx context.Context, st *model.Settings, origin model.Origin) error {
	const q = `
		INSERT INTO settings
		    (id, mosque_name, mosque_location, logo_image, prayer_address,
		     prayer_timezone, quote_text, marquee_text, iqomah_minutes, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		    mosque_name     = excluded.mosque_name,
		    mosque_location = excluded.mosque_location,
		    logo_image      = excluded.logo_image,
		    prayer_address  = excluded.prayer_address,
		    prayer_timezone = excluded.prayer_timezone,
		    quote_text      = excluded.quote_text,
		    marquee_text    = excluded.marquee_text,
		    iqomah_minutes  = excluded.iqomah_minutes,
		    updated_at      = excluded.updated_at`

	var logo sql.NullString
	if st.LogoImage != nil {
		logo = sql.NullString{String: *st.LogoImage, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, q,
		st.MosqueName,
		st.MosqueLocation,
		logo,
		st.PrayerAddress,
		st.PrayerTimezone,
		st.QuoteText,
		st.MarqueeText,
		st.IqomahDurationMinutes,
		formatTime(st.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("replacing settings: %w", err)
	}
	s.publish(Change{Resource: ResourceSettings, Origin: origin})
	return nil
}

// --- Images ------------------------------------------------------------------

// ListImages returns the mirrored images in display order.
func (s *Store) ListImages(ctx context.Context) ([]model.LocalImage, error) {
	const q = `
		SELECT id, remote_id, image_uri, display_order, file_size, mime_type, created_at
		FROM images ORDER BY display_order, id`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("querying images: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var images []model.LocalImage
	for rows.Next() {
		var (
			img       model.LocalImage
			createdAt string
		)
		if err := rows.Scan(
			&img.ID,
			&img.RemoteID,
			&img.ImageURI,
			&img.DisplayOrder,
			&img.FileSize,
			&img.MimeType,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("scanning image row: %w", err)
		}
		img.CreatedAt, _ = parseTime(createdAt)
		images = append(images, img)
	}
	return images, rows.Err()
}

// CountImages returns the number of mirrored images.
func (s *Store) CountImages(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM images`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting images: %w", err)
	}
	return n, nil
}

// InsertImage inserts img, or replaces the row with the same URI. The image's
// ID field is updated with the row ID.
func (s *Store) InsertImage(ctx context.Context, img *model.LocalImage, origin model.Origin) error {
	const q = `
		INSERT INTO images (remote_id, image_uri, display_order, file_size, mime_type, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(image_uri) DO UPDATE SET
		    remote_id     = excluded.remote_id,
		    display_order = excluded.display_order,
		    file_size     = excluded.file_size,
		    mime_type     = excluded.mime_type,
		    created_at    = excluded.created_at
		RETURNING id`

	err := s.db.QueryRowContext(ctx, q,
		img.RemoteID,
		img.ImageURI,
		img.DisplayOrder,
		img.FileSize,
		img.MimeType,
		formatTime(img.CreatedAt),
	).Scan(&img.ID)
	if err != nil {
		return fmt.Errorf("inserting image %q: %w", img.ImageURI, err)
	}
	s.publish(Change{Resource: ResourceImages, Origin: origin})
	return nil
}

// DeleteImage removes the image with the given local ID.
func (s *Store) DeleteImage(ctx context.Context, id int64, origin model.Origin) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM images WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting image id=%d: %w", id, err)
	}
	s.publish(Change{Resource: ResourceImages, Origin: origin})
	return nil
}

// UpdateImageOrder sets the display order of the image with the given local ID.
func (s *Store) UpdateImageOrder(ctx context.Context, id int64, order int, origin model.Origin) error {
	const q = `UPDATE images SET display_order = ? WHERE id = ?`
	if _, err := s.db.ExecContext(ctx, q, order, id); err != nil {
		return fmt.Errorf("updating order of image id=%d: %w", id, err)
	}
	s.publish(Change{Resource: ResourceImages, Origin: origin})
	return nil
}

// IsEmpty reports whether the mirror holds neither settings nor images.
// Used by the first-run bootstrap to detect a fresh install.
func (s *Store) IsEmpty(ctx context.Context) (bool, error) {
	var count int
	const q = `SELECT (SELECT COUNT(*) FROM settings) + (SELECT COUNT(*) FROM images)`
	if err := s.db.QueryRowContext(ctx, q).Scan(&count); err != nil {
		return false, fmt.Errorf("checking if store is empty: %w", err)
	}
	return count == 0, nil
}

// Clear removes all mirrored data and sync bookkeeping.
func (s *Store) Clear(ctx context.Context) error {
	const q = `DELETE FROM settings; DELETE FROM images; DELETE FROM sync_status;`
	if _, err := s.db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("clearing mirror: %w", err)
	}
	s.publish(Change{Resource: ResourceSettings, Origin: model.OriginLocal})
	s.publish(Change{Resource: ResourceImages, Origin: model.OriginLocal})
	return nil
}

// --- Sync bookkeeping --------------------------------------------------------

// SyncStatus is the outcome of the most recent sync iterations for a resource.
type SyncStatus struct {
	Resource    Resource
	LastSuccess time.Time
	LastError   string
	LastErrorAt time.Time
}

// RecordSync stores the outcome of one sync iteration. A nil syncErr records
// a success and keeps the last error for reference.
func (s *Store) RecordSync(ctx context.Context, res Resource, syncErr error, at time.Time) error {
	var q string
	var args []any
	if syncErr == nil {
		q = `
			INSERT INTO sync_status (resource, last_success) VALUES (?, ?)
			ON CONFLICT(resource) DO UPDATE SET last_success = excluded.last_success`
		args = []any{string(res), formatTime(at)}
	} else {
		q = `
			INSERT INTO sync_status (resource, last_error, last_error_at) VALUES (?, ?, ?)
			ON CONFLICT(resource) DO UPDATE SET
			    last_error    = excluded.last_error,
			    last_error_at = excluded.last_error_at`
		args = []any{string(res), syncErr.Error(), formatTime(at)}
	}
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("recording sync status for %s: %w", res, err)
	}
	return nil
}

// SyncStatuses returns the bookkeeping rows for every resource that has synced.
func (s *Store) SyncStatuses(ctx context.Context) ([]SyncStatus, error) {
	const q = `SELECT resource, last_success, last_error, last_error_at FROM sync_status ORDER BY resource`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("querying sync status: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []SyncStatus
	for rows.Next() {
		var (
			st                  SyncStatus
			res, success, errAt string
		)
		if err := rows.Scan(&res, &success, &st.LastError, &errAt); err != nil {
			return nil, fmt.Errorf("scanning sync status row: %w", err)
		}
		st.Resource = Resource(res)
		st.LastSuccess, _ = parseTime(success)
		st.LastErrorAt, _ = parseTime(errAt)
		out = append(out, st)
	}
	return out, rows.Err()
}

// --- helpers -----------------------------------------------------------------

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
