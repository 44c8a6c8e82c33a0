package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"voucherchain/core/events"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	// MaxPageSize caps List results.
	MaxPageSize = 1000
)

var ErrUnknownDriver = errors.New("indexer: unknown driver")

// EventRecord is one committed event.
type EventRecord struct {
	ID         uint64 `gorm:"primaryKey;autoIncrement"`
	Height     uint64 `gorm:"index:idx_event_position,priority:1;not null"`
	Op         string `gorm:"size:64"`
	Position   int    `gorm:"index:idx_event_position,priority:2;not null"`
	Timestamp  int64  `gorm:"not null"`
	Type       string `gorm:"size:64;index;not null"`
	Attributes string `gorm:"type:text"`
	CreatedAt  time.Time
}

// Attrs decodes the stored attribute map.
func (r EventRecord) Attrs() (map[string]string, error) {
	out := map[string]string{}
	if strings.TrimSpace(r.Attributes) == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(r.Attributes), &out); err != nil {
		return nil, fmt.Errorf("indexer: decode attributes of event %d: %w", r.ID, err)
	}
	return out, nil
}

// Filter narrows List and Export queries. Zero values match everything.
type Filter struct {
	Type       string
	FromHeight uint64
	ToHeight   uint64
	Limit      int
	Offset     int
}

// Open connects to the event database named by driver and dsn.
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", DriverSQLite:
		dialector = sqlite.Open(dsn)
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("indexer: open %s: %w", driver, err)
	}
	return db, nil
}

// Indexer persists committed events. It implements events.Emitter so it can
// be installed as a runtime sink.
type Indexer struct {
	db     *gorm.DB
	logger *slog.Logger
}

func New(db *gorm.DB, log *slog.Logger) (*Indexer, error) {
	if db == nil {
		return nil, fmt.Errorf("indexer: database must be provided")
	}
	if err := db.AutoMigrate(&EventRecord{}); err != nil {
		return nil, fmt.Errorf("indexer: migrate: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Indexer{db: db, logger: log.With("component", "indexer")}, nil
}

// Emit stores evt. Events that were not published by the runtime carry no
// block position and are dropped. Write failures are logged because the
// chain state has already been committed.
func (i *Indexer) Emit(evt events.Event) {
	committed, ok := evt.(events.Committed)
	if !ok {
		i.logger.Warn("dropping uncommitted event", "type", evt.EventType())
		return
	}
	if err := i.Store(committed); err != nil {
		i.logger.Error("index event", "type", committed.EventType(), "height", committed.Height, "error", err)
	}
}

// Store writes a single committed event.
func (i *Indexer) Store(evt events.Committed) error {
	rendered := evt.Render()
	attrs, err := json.Marshal(rendered.Attributes)
	if err != nil {
		return fmt.Errorf("indexer: encode attributes: %w", err)
	}
	rec := EventRecord{
		Height:     evt.Height,
		Op:         evt.Op,
		Position:   evt.Index,
		Timestamp:  evt.Timestamp,
		Type:       rendered.Type,
		Attributes: string(attrs),
	}
	return i.db.Create(&rec).Error
}

func (i *Indexer) query(ctx context.Context, f Filter) *gorm.DB {
	q := i.db.WithContext(ctx).Model(&EventRecord{})
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}
	if f.FromHeight > 0 {
		q = q.Where("height >= ?", f.FromHeight)
	}
	if f.ToHeight > 0 {
		q = q.Where("height <= ?", f.ToHeight)
	}
	return q.Order("id ASC")
}

// List returns events matching f in commit order.
func (i *Indexer) List(ctx context.Context, f Filter) ([]EventRecord, error) {
	limit := f.Limit
	if limit <= 0 || limit > MaxPageSize {
		limit = MaxPageSize
	}
	var out []EventRecord
	err := i.query(ctx, f).Offset(f.Offset).Limit(limit).Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("indexer: list: %w", err)
	}
	return out, nil
}

// Count reports how many events match f, ignoring paging.
func (i *Indexer) Count(ctx context.Context, f Filter) (int64, error) {
	var n int64
	if err := i.query(ctx, f).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("indexer: count: %w", err)
	}
	return n, nil
}

// Close releases the underlying connection pool.
func (i *Indexer) Close() error {
	sqlDB, err := i.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
