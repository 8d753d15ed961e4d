package crud

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"

	"github.com/karloscodes/backpack/database"
)

// Connector provides the database connection.
type Connector interface {
	GetConnection() *gorm.DB
}

// Query selects a page of entries.
type Query struct {
	Page    int
	PerPage int
	Search  string
	// SearchColumns are matched case-insensitively with LIKE.
	SearchColumns []string
	Order         string
	Desc          bool
}

// Page is one page of entries.
type Page[T any] struct {
	Entries []T
	Total   int64
	Page    int
	PerPage int
}

// From is the 1-based position of the first entry, 0 when empty.
func (p Page[T]) From() int {
	if len(p.Entries) == 0 {
		return 0
	}
	return (p.Page-1)*p.PerPage + 1
}

// To is the 1-based position of the last entry.
func (p Page[T]) To() int {
	if len(p.Entries) == 0 {
		return 0
	}
	return (p.Page-1)*p.PerPage + len(p.Entries)
}

// Repository reads and writes entries of model T.
type Repository[T any] struct {
	conn   Connector
	logger *slog.Logger
	retry  database.RetryConfig

	schemaOnce sync.Once
	schema     *schema.Schema
	schemaErr  error
}

// NewRepository creates a repository over conn.
func NewRepository[T any](conn Connector, logger *slog.Logger) *Repository[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository[T]{conn: conn, logger: logger, retry: database.DefaultRetryConfig()}
}

func (r *Repository[T]) db(ctx context.Context) (*gorm.DB, error) {
	db := r.conn.GetConnection()
	if db == nil {
		return nil, errors.New("crud: no database connection")
	}
	return db.WithContext(ctx), nil
}

// Schema returns the parsed gorm schema of T.
func (r *Repository[T]) Schema() (*schema.Schema, error) {
	r.schemaOnce.Do(func() {
		var naming schema.Namer = schema.NamingStrategy{}
		if db := r.conn.GetConnection(); db != nil {
			naming = db.NamingStrategy
		}
		r.schema, r.schemaErr = schema.Parse(new(T), &sync.Map{}, naming)
		if r.schemaErr != nil {
			r.schemaErr = fmt.Errorf("crud: parse schema: %w", r.schemaErr)
		}
	})
	return r.schema, r.schemaErr
}

// Migrate creates or updates the table of T.
func (r *Repository[T]) Migrate(ctx context.Context) error {
	db, err := r.db(ctx)
	if err != nil {
		return err
	}
	return db.AutoMigrate(new(T))
}

// Count returns the number of entries.
func (r *Repository[T]) Count(ctx context.Context) (int64, error) {
	db, err := r.db(ctx)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := db.Model(new(T)).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("crud: count: %w", err)
	}
	return n, nil
}

// List returns one page of entries matching q.
func (r *Repository[T]) List(ctx context.Context, q Query) (Page[T], error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PerPage < 1 {
		q.PerPage = 25
	}
	page := Page[T]{Page: q.Page, PerPage: q.PerPage}

	db, err := r.db(ctx)
	if err != nil {
		return page, err
	}
	sch, err := r.Schema()
	if err != nil {
		return page, err
	}

	tx := db.Model(new(T))
	if search := strings.TrimSpace(q.Search); search != "" {
		tx = tx.Where(searchCondition(sch, q.SearchColumns, search))
	}

	if err := tx.Session(&gorm.Session{}).Count(&page.Total).Error; err != nil {
		return page, fmt.Errorf("crud: list count: %w", err)
	}

	if field := sch.LookUpField(q.Order); field != nil && field.DBName != "" {
		tx = tx.Order(clause.OrderByColumn{Column: clause.Column{Name: field.DBName}, Desc: q.Desc})
	} else if sch.PrioritizedPrimaryField != nil {
		tx = tx.Order(clause.OrderByColumn{Column: clause.Column{Name: sch.PrioritizedPrimaryField.DBName}})
	}

	if err := tx.Offset((q.Page - 1) * q.PerPage).Limit(q.PerPage).Find(&page.Entries).Error; err != nil {
		return page, fmt.Errorf("crud: list: %w", err)
	}
	return page, nil
}

// searchCondition ORs a LIKE over every searchable text column. Unknown
// columns are ignored so the search string never reaches SQL as an
// identifier.
func searchCondition(sch *schema.Schema, columns []string, search string) clause.Expression {
	pattern := "%" + strings.ToLower(search) + "%"
	var exprs []clause.Expression
	for _, name := range columns {
		field := sch.LookUpField(name)
		if field == nil || field.DBName == "" || field.DataType != schema.String {
			continue
		}
		exprs = append(exprs, clause.Expr{
			SQL:  "LOWER(?) LIKE ?",
			Vars: []any{clause.Column{Name: field.DBName}, pattern},
		})
	}
	if len(exprs) == 0 {
		return clause.Expr{SQL: "1 = 0"}
	}
	return clause.Or(exprs...)
}

// Find returns the entry whose primary key is id.
func (r *Repository[T]) Find(ctx context.Context, id string) (*T, error) {
	db, err := r.db(ctx)
	if err != nil {
		return nil, err
	}
	cond, err := r.keyCondition(id)
	if err != nil {
		return nil, err
	}

	entry := new(T)
	if err := db.Where(cond).First(entry).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("crud: find %s: %w", id, err)
	}
	return entry, nil
}

// Create inserts entry.
func (r *Repository[T]) Create(ctx context.Context, entry *T) error {
	db, err := r.db(ctx)
	if err != nil {
		return err
	}
	err = database.PerformWriteWithConfig(ctx, r.logger, db, func(tx *gorm.DB) error {
		return tx.Create(entry).Error
	}, r.retry)
	if err != nil {
		return fmt.Errorf("crud: create: %w", err)
	}
	return nil
}

// Save writes every column of an existing entry.
func (r *Repository[T]) Save(ctx context.Context, entry *T) error {
	db, err := r.db(ctx)
	if err != nil {
		return err
	}
	err = database.PerformWriteWithConfig(ctx, r.logger, db, func(tx *gorm.DB) error {
		return tx.Save(entry).Error
	}, r.retry)
	if err != nil {
		return fmt.Errorf("crud: save: %w", err)
	}
	return nil
}

// Delete removes the entry whose primary key is id.
func (r *Repository[T]) Delete(ctx context.Context, id string) error {
	db, err := r.db(ctx)
	if err != nil {
		return err
	}
	cond, err := r.keyCondition(id)
	if err != nil {
		return err
	}

	err = database.PerformWriteWithConfig(ctx, r.logger, db, func(tx *gorm.DB) error {
		res := tx.Where(cond).Delete(new(T))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil
	}, r.retry)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("crud: delete %s: %w", id, err)
	}
	return nil
}

func (r *Repository[T]) keyCondition(id string) (clause.Expression, error) {
	sch, err := r.Schema()
	if err != nil {
		return nil, err
	}
	pk := sch.PrioritizedPrimaryField
	if pk == nil {
		return nil, fmt.Errorf("crud: %s has no primary key", sch.Name)
	}
	value, err := convert(pk, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return clause.Eq{Column: clause.Column{Name: pk.DBName}, Value: value}, nil
}

// Attributes maps the column names of entry to their values.
func (r *Repository[T]) Attributes(ctx context.Context, entry *T) (map[string]any, error) {
	sch, err := r.Schema()
	if err != nil {
		return nil, err
	}
	rv := reflect.Indirect(reflect.ValueOf(entry))
	attrs := make(map[string]any, len(sch.Fields))
	for _, field := range sch.Fields {
		if field.DBName == "" || !field.Readable {
			continue
		}
		if isSecret(field.DBName) {
			continue
		}
		value, _ := field.ValueOf(ctx, rv)
		attrs[field.DBName] = value
	}
	return attrs, nil
}

// SetAttributes assigns form values to entry, converting each to the
// column type. Unknown columns and the primary key are ignored.
func (r *Repository[T]) SetAttributes(ctx context.Context, entry *T, values map[string]string) error {
	sch, err := r.Schema()
	if err != nil {
		return err
	}
	rv := reflect.Indirect(reflect.ValueOf(entry))

	var errs []error
	for name, raw := range values {
		field := sch.LookUpField(name)
		if field == nil || field.DBName == "" || field.PrimaryKey || !field.Updatable {
			continue
		}
		value, err := convert(field, raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", field.DBName, err))
			continue
		}
		if value == nil {
			field.ReflectValueOf(ctx, rv).Set(reflect.Zero(field.FieldType))
			continue
		}
		if err := field.Set(ctx, rv, value); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", field.DBName, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("crud: set attributes: %w", errors.Join(errs...))
	}
	return nil
}

var timeLayouts = []string{time.RFC3339, "2006-01-02T15:04", "2006-01-02 15:04:05", "2006-01-02"}

func convert(field *schema.Field, raw string) (any, error) {
	raw = strings.TrimSpace(raw)
	switch field.DataType {
	case schema.Bool:
		switch strings.ToLower(raw) {
		case "", "0", "false", "off", "no":
			return false, nil
		default:
			return true, nil
		}
	case schema.Int:
		if raw == "" {
			return int64(0), nil
		}
		return strconv.ParseInt(raw, 10, 64)
	case schema.Uint:
		if raw == "" {
			return uint64(0), nil
		}
		return strconv.ParseUint(raw, 10, 64)
	case schema.Float:
		if raw == "" {
			return float64(0), nil
		}
		return strconv.ParseFloat(raw, 64)
	case schema.Time:
		if raw == "" {
			if field.FieldType.Kind() == reflect.Ptr {
				return nil, nil
			}
			return time.Time{}, nil
		}
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, raw); err == nil {
				return t, nil
			}
		}
		return nil, fmt.Errorf("invalid time %q", raw)
	default:
		return raw, nil
	}
}

func isSecret(column string) bool {
	switch column {
	case "password", "remember_token":
		return true
	}
	return false
}
