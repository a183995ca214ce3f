// Package store persists the service's local state: cache blobs, the
// counting session snapshot, the counted-product set and the price/cost
// audit trail.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

type kvEntry struct {
	Name      string `gorm:"primaryKey;size:100"`
	Value     []byte
	UpdatedAt time.Time
}

func (kvEntry) TableName() string { return "kv_entries" }

type countedProduct struct {
	ProductID string `gorm:"primaryKey;size:64"`
	CountedAt time.Time
}

func (countedProduct) TableName() string { return "counted_products" }

// AuditEntry records one applied price or cost change.
type AuditEntry struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ProductID string    `gorm:"size:64;index" json:"productId"`
	Field     string    `gorm:"size:16" json:"field"`
	Previous  *float64  `json:"previous"`
	Next      *float64  `json:"next"`
	ChangedBy string    `gorm:"size:100" json:"changedBy,omitempty"`
	SessionID string    `gorm:"size:64;index" json:"sessionId,omitempty"`
	At        time.Time `gorm:"index" json:"at"`
}

// Store is a gorm-backed state store.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
}

// Open connects to the database named by dsn and migrates the schema.
// Supported forms are sqlite://<path> and postgres://... (or postgresql://).
func Open(dsn string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	var (
		dialector gorm.Dialector
		driver    string
	)
	switch {
	case strings.HasPrefix(dsn, "sqlite://"):
		driver = "sqlite"
		dialector = sqlite.Open(strings.TrimPrefix(dsn, "sqlite://"))
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		driver = "postgres"
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported STATE_DSN %q: want sqlite:// or postgres://", dsn)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening %s state store: %w", driver, err)
	}

	if driver == "sqlite" {
		// sqlite allows one writer; a single connection also keeps
		// :memory: databases shared.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("opening sqlite state store: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(&kvEntry{}, &countedProduct{}, &AuditEntry{}); err != nil {
		return nil, fmt.Errorf("migrating state store: %w", err)
	}

	logger.Info("state store ready", slog.String("driver", driver))
	return &Store{db: db, logger: logger}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Get returns the blob stored under key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var e kvEntry
	err := s.db.WithContext(ctx).First(&e, "name = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading %s: %w", key, err)
	}
	return e.Value, true, nil
}

// Put stores value under key, replacing any previous blob.
func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	e := kvEntry{Name: key, Value: value, UpdatedAt: time.Now()}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&e).Error
	if err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

// Delete removes the blob stored under key. Missing keys are not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.db.WithContext(ctx).Delete(&kvEntry{}, "name = ?", key).Error; err != nil {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}

// ReplaceCounted overwrites the counted-product set.
func (s *Store) ReplaceCounted(ctx context.Context, ids []string) error {
	now := time.Now()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&countedProduct{}).Error; err != nil {
			return fmt.Errorf("clearing counted products: %w", err)
		}
		if len(ids) == 0 {
			return nil
		}
		seen := make(map[string]bool, len(ids))
		rows := make([]countedProduct, 0, len(ids))
		for _, id := range ids {
			if seen[id] {
				continue
			}
			seen[id] = true
			rows = append(rows, countedProduct{ProductID: id, CountedAt: now})
		}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error; err != nil {
			return fmt.Errorf("writing counted products: %w", err)
		}
		return nil
	})
}

// Counted returns the counted-product set, sorted.
func (s *Store) Counted(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&countedProduct{}).Pluck("product_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("reading counted products: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

// AppendAudit records price/cost changes.
func (s *Store) AppendAudit(ctx context.Context, entries ...AuditEntry) error {
	if len(entries) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Create(&entries).Error; err != nil {
		return fmt.Errorf("writing audit trail: %w", err)
	}
	return nil
}

// Audit returns audit entries, newest first. An empty productID returns
// entries for every product. limit <= 0 means no limit.
func (s *Store) Audit(ctx context.Context, productID string, limit int) ([]AuditEntry, error) {
	q := s.db.WithContext(ctx).Order("at DESC").Order("id DESC")
	if productID != "" {
		q = q.Where("product_id = ?", productID)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []AuditEntry
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("reading audit trail: %w", err)
	}
	return out, nil
}
