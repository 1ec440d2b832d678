package recovery

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DBFileName is the SQLite database kept in the data directory
const DBFileName = "relocations.db"

// relocation is the row model for one entry
type relocation struct {
	TempDesktopID string `gorm:"primaryKey;size:36"`
	ProcessName   *string
	CreatedAt     time.Time
}

func (relocation) TableName() string { return "relocations" }

// SQLiteStore keeps entries in a SQLite database. The database is opened
// lazily and the file removed when the set becomes empty, so absence still
// means nothing is active.
type SQLiteStore struct {
	path string
	mu   sync.Mutex
	db   *gorm.DB
}

// NewSQLiteStore returns a store using dir/relocations.db
func NewSQLiteStore(dir string) *SQLiteStore {
	return &SQLiteStore{path: filepath.Join(dir, DBFileName)}
}

// Path returns the database file location
func (s *SQLiteStore) Path() string {
	return s.path
}

// open must be called with s.mu held
func (s *SQLiteStore) open() (*gorm.DB, error) {
	if s.db != nil {
		return s.db, nil
	}

	dsn := s.path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(30000)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := db.AutoMigrate(&relocation{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	log.Printf("[Recovery] Database opened: %s", s.path)
	s.db = db
	return db, nil
}

// close must be called with s.mu held
func (s *SQLiteStore) close() error {
	if s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	s.db = nil
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *SQLiteStore) Save(entries []Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(entries) == 0 {
		return s.remove()
	}

	db, err := s.open()
	if err != nil {
		return err
	}

	rows := make([]relocation, len(entries))
	for i, e := range entries {
		rows[i] = relocation{
			TempDesktopID: e.TempDesktopID.String(),
			ProcessName:   e.ProcessName,
			CreatedAt:     e.CreatedAt,
		}
	}

	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&relocation{}).Error; err != nil {
			return fmt.Errorf("failed to clear relocations: %w", err)
		}
		if err := tx.Create(&rows).Error; err != nil {
			return fmt.Errorf("failed to insert relocations: %w", err)
		}
		return nil
	})
}

func (s *SQLiteStore) Load() ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.path); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}

	db, err := s.open()
	if err != nil {
		return nil, err
	}

	var rows []relocation
	if err := db.Order("created_at").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query relocations: %w", err)
	}

	entries := make([]Entry, 0, len(rows))
	for _, r := range rows {
		id, err := uuid.Parse(r.TempDesktopID)
		if err != nil {
			log.Printf("[Recovery] Warning: skipping row with bad desktop id %q", r.TempDesktopID)
			continue
		}
		entries = append(entries, Entry{
			TempDesktopID: id,
			ProcessName:   r.ProcessName,
			CreatedAt:     r.CreatedAt,
		})
	}
	return entries, nil
}

// Close closes the database if it is open. The store reopens it on demand.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.close()
}

func (s *SQLiteStore) Delete() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remove()
}

// remove must be called with s.mu held
func (s *SQLiteStore) remove() error {
	if err := s.close(); err != nil {
		log.Printf("[Recovery] Warning: close database: %v", err)
	}
	for _, p := range []string{s.path, s.path + "-wal", s.path + "-shm"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to delete %s: %w", p, err)
		}
	}
	return nil
}
