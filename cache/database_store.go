package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Connector provides the gorm connection a DatabaseStore writes to.
type Connector interface {
	GetConnection() *gorm.DB
}

// Entry is a row of the backpack_cache table.
type Entry struct {
	Key       string `gorm:"primaryKey;size:255"`
	Value     []byte
	ExpiresAt int64 `gorm:"index"` // unix milliseconds
	CreatedAt int64 `gorm:"index"` // unix milliseconds, eviction order
}

// TableName keeps the table next to the other admin tables.
func (Entry) TableName() string {
	return "backpack_cache"
}

// DatabaseStore keeps throttle counters in the database so several
// server processes share one login and reset throttle.
type DatabaseStore struct {
	conn    Connector
	opts    Options
	now     func() time.Time
	stopCh  chan struct{}
	stopped sync.Once
}

// NewDatabaseStore migrates the backpack_cache table and returns a store
// over it.
func NewDatabaseStore(conn Connector, opts ...Option) (*DatabaseStore, error) {
	db := conn.GetConnection()
	if db == nil {
		return nil, fmt.Errorf("cache: database store: no connection")
	}
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, fmt.Errorf("cache: migrate %s: %w", Entry{}.TableName(), err)
	}

	s := &DatabaseStore{
		conn:   conn,
		opts:   applyOptions(opts...),
		now:    time.Now,
		stopCh: make(chan struct{}),
	}
	if s.opts.CleanupInterval > 0 {
		go s.cleanupLoop()
	}
	return s, nil
}

func (s *DatabaseStore) db(ctx context.Context) *gorm.DB {
	return s.conn.GetConnection().WithContext(ctx)
}

// Read retrieves a value.
func (s *DatabaseStore) Read(ctx context.Context, key string) ([]byte, bool) {
	var entry Entry
	err := s.db(ctx).
		Where("key = ? AND expires_at > ?", key, s.now().UnixMilli()).
		Take(&entry).Error
	if err != nil {
		return nil, false
	}
	return entry.Value, true
}

// Write stores a value with the default TTL.
func (s *DatabaseStore) Write(ctx context.Context, key string, value []byte) error {
	return s.WriteWithTTL(ctx, key, value, s.opts.TTL)
}

// WriteWithTTL upserts a value with a custom TTL.
func (s *DatabaseStore) WriteWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	now := s.now().UnixMilli()
	entry := Entry{Key: key, Value: value, ExpiresAt: now + ttl.Milliseconds(), CreatedAt: now}

	err := s.db(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "expires_at"}),
	}).Create(&entry).Error
	if err != nil {
		return fmt.Errorf("cache: write %s: %w", key, err)
	}
	return s.evict(ctx)
}

// Delete removes a key.
func (s *DatabaseStore) Delete(ctx context.Context, key string) error {
	return s.db(ctx).Where("key = ?", key).Delete(&Entry{}).Error
}

// Clear removes every entry.
func (s *DatabaseStore) Clear(ctx context.Context) error {
	return s.db(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&Entry{}).Error
}

// Exist reports whether key is present and not expired.
func (s *DatabaseStore) Exist(ctx context.Context, key string) bool {
	var count int64
	s.db(ctx).Model(&Entry{}).
		Where("key = ? AND expires_at > ?", key, s.now().UnixMilli()).
		Count(&count)
	return count > 0
}

// Close stops the cleanup loop. The connection stays open.
func (s *DatabaseStore) Close() error {
	s.stopped.Do(func() { close(s.stopCh) })
	return nil
}

// evict deletes the oldest rows beyond MaxEntries.
func (s *DatabaseStore) evict(ctx context.Context) error {
	if s.opts.MaxEntries <= 0 {
		return nil
	}
	var count int64
	if err := s.db(ctx).Model(&Entry{}).Count(&count).Error; err != nil {
		return err
	}
	excess := count - int64(s.opts.MaxEntries)
	if excess <= 0 {
		return nil
	}
	oldest := s.db(ctx).Model(&Entry{}).Select("key").Order("created_at ASC").Limit(int(excess))
	return s.db(ctx).Where("key IN (?)", oldest).Delete(&Entry{}).Error
}

// DeleteExpired removes expired rows and returns how many were deleted.
func (s *DatabaseStore) DeleteExpired(ctx context.Context) (int64, error) {
	res := s.db(ctx).Where("expires_at <= ?", s.now().UnixMilli()).Delete(&Entry{})
	return res.RowsAffected, res.Error
}

func (s *DatabaseStore) cleanupLoop() {
	ticker := time.NewTicker(s.opts.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_, _ = s.DeleteExpired(context.Background())
		case <-s.stopCh:
			return
		}
	}
}
