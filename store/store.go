// Package store handles SQLite storage for named session images.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/catena-lang/catena/vm"
)

// ErrNotFound indicates the requested image doesn't exist.
var ErrNotFound = errors.New("image not found")

// Store persists machine images under session names. Saving to an existing
// name replaces the image; the previous one is gone.
type Store struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// Info describes one stored image without loading its payload.
type Info struct {
	Name    string
	ID      string
	Size    int
	Created time.Time
}

// Open opens (creating if needed) an image store at the given path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Set busy timeout for concurrent access
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS images (
		name       TEXT PRIMARY KEY,
		id         TEXT NOT NULL,
		data       BLOB NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Save persists an image under a session name, replacing any previous
// image with that name.
func (s *Store) Save(name string, img *vm.Image) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := vm.MarshalImage(img)
	if err != nil {
		return fmt.Errorf("encoding image %q: %w", name, err)
	}
	_, err = s.db.Exec(
		"INSERT OR REPLACE INTO images (name, id, data, created_at) VALUES (?, ?, ?, ?)",
		name, img.ID, data, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("saving image %q: %w", name, err)
	}
	return nil
}

// Load retrieves the image stored under a session name.
func (s *Store) Load(name string) (*vm.Image, error) {
	var data []byte
	err := s.db.QueryRow("SELECT data FROM images WHERE name = ?", name).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("image %q: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("querying image %q: %w", name, err)
	}
	img, err := vm.UnmarshalImage(data)
	if err != nil {
		return nil, fmt.Errorf("decoding image %q: %w", name, err)
	}
	return img, nil
}

// Delete removes the image stored under a session name.
func (s *Store) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec("DELETE FROM images WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("deleting image %q: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting image %q: %w", name, err)
	}
	if n == 0 {
		return fmt.Errorf("image %q: %w", name, ErrNotFound)
	}
	return nil
}

// List returns every stored image's metadata, newest first.
func (s *Store) List() ([]Info, error) {
	rows, err := s.db.Query(
		"SELECT name, id, length(data), created_at FROM images ORDER BY created_at DESC, name")
	if err != nil {
		return nil, fmt.Errorf("listing images: %w", err)
	}
	defer rows.Close()

	var infos []Info
	for rows.Next() {
		var info Info
		if err := rows.Scan(&info.Name, &info.ID, &info.Size, &info.Created); err != nil {
			return nil, fmt.Errorf("listing images: %w", err)
		}
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing images: %w", err)
	}
	return infos, nil
}
