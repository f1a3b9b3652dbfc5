// Package indexer keeps a queryable copy of the events the node commits.
package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"ndxgov/core/events"
	"ndxgov/crypto"
)

// DefaultLimit caps Query results when the filter sets none.
const DefaultLimit = 500

// Filter narrows Query. Zero fields match everything. Module matches every
// event type in a namespace, e.g. "gov".
type Filter struct {
	Type      string
	Module    string
	Address   crypto.Address
	FromBlock uint64
	ToBlock   uint64
	Limit     int
}

// Indexer persists events through gorm. It is an events.Emitter so the chain
// can publish committed logs straight into it.
type Indexer struct {
	db     *gorm.DB
	logger *slog.Logger

	mu  sync.Mutex
	seq uint64
}

// Open connects to dsn. Postgres URLs and key/value DSNs select the postgres
// driver; anything else is treated as a sqlite path.
func Open(dsn string, log *slog.Logger) (*Indexer, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("indexer: dsn required")
	}
	var dialector gorm.Dialector
	if isPostgres(dsn) {
		dialector = postgres.Open(dsn)
	} else {
		dialector = sqlite.Open(dsn)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("indexer: open: %w", err)
	}
	return New(db, log)
}

func isPostgres(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=")
}

// New wraps an open database, migrating the schema.
func New(db *gorm.DB, log *slog.Logger) (*Indexer, error) {
	if db == nil {
		return nil, errors.New("indexer: database required")
	}
	if log == nil {
		log = slog.Default()
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("indexer: migrate: %w", err)
	}
	var last struct{ Max uint64 }
	if err := db.Model(&EventRecord{}).Select("COALESCE(MAX(seq), 0) AS max").Scan(&last).Error; err != nil {
		return nil, fmt.Errorf("indexer: resume: %w", err)
	}
	return &Indexer{db: db, logger: log, seq: last.Max}, nil
}

// Record stores logs in one database transaction.
func (ix *Indexer) Record(ctx context.Context, logs []events.Log) error {
	if len(logs) == 0 {
		return nil
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()

	records := make([]EventRecord, 0, len(logs))
	next := ix.seq
	for _, log := range logs {
		if log.Event == nil {
			continue
		}
		attrs, err := json.Marshal(log.Event.Attributes)
		if err != nil {
			return err
		}
		next++
		records = append(records, EventRecord{
			ID:         uuid.New(),
			Seq:        next,
			Block:      log.Height,
			Time:       time.Unix(int64(log.Timestamp), 0).UTC(),
			Type:       log.Event.Type,
			Module:     log.Event.Module(),
			Address:    log.Contract.String(),
			Attributes: string(attrs),
		})
	}
	if len(records) == 0 {
		return nil
	}
	err := ix.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&records).Error
	})
	if err != nil {
		return fmt.Errorf("indexer: record: %w", err)
	}
	ix.seq = next
	return nil
}

// Emit implements events.Emitter. Failures are logged; the chain has
// already committed the events.
func (ix *Indexer) Emit(evt events.Event) {
	log, ok := evt.(events.Log)
	if !ok {
		return
	}
	if err := ix.Record(context.Background(), []events.Log{log}); err != nil {
		ix.logger.Warn("index event", slog.String("type", log.EventType()), slog.Any("error", err))
	}
}

// Query returns matching events in commit order.
func (ix *Indexer) Query(ctx context.Context, f Filter) ([]EventRecord, error) {
	q := ix.db.WithContext(ctx).Model(&EventRecord{})
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}
	if f.Module != "" {
		q = q.Where("module = ?", f.Module)
	}
	if !f.Address.IsZero() {
		q = q.Where("address = ?", f.Address.String())
	}
	if f.FromBlock > 0 {
		q = q.Where("block >= ?", f.FromBlock)
	}
	if f.ToBlock > 0 {
		q = q.Where("block <= ?", f.ToBlock)
	}
	limit := f.Limit
	if limit <= 0 || limit > DefaultLimit {
		limit = DefaultLimit
	}
	var out []EventRecord
	if err := q.Order("seq asc").Limit(limit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("indexer: query: %w", err)
	}
	return out, nil
}

// Close releases the underlying connection pool.
func (ix *Indexer) Close() error {
	sqlDB, err := ix.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
