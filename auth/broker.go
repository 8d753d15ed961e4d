package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/karloscodes/backpack/cache"
	"github.com/karloscodes/backpack/crypto"
	"gorm.io/gorm"
)

// DefaultResetThrottle is the minimum delay between reset requests per user.
const DefaultResetThrottle = 60 * time.Second

// PasswordReset is a stored reset token. Token holds a bcrypt hash.
type PasswordReset struct {
	ID        uint      `gorm:"primaryKey"`
	Email     string    `gorm:"index;not null"`
	Token     string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"index"`
}

// Notifier delivers a reset token to the user, usually by email.
type Notifier func(ctx context.Context, user *User, token string) error

// Broker issues and redeems password reset tokens.
type Broker struct {
	name     string
	table    string
	expire   time.Duration
	throttle time.Duration
	provider UserProvider
	db       Connector
	store    cache.Store
	notify   Notifier
	now      func() time.Time
}

// NewBroker creates a broker from cfg. A nil notify discards tokens.
func NewBroker(name string, cfg BrokerConfig, provider UserProvider, db Connector, store cache.Store, notify Notifier) *Broker {
	table := cfg.Table
	if table == "" {
		table = DefaultResetTable
	}
	expire := cfg.Expire
	if expire <= 0 {
		expire = DefaultResetExpire
	}
	throttle := DefaultResetThrottle
	if cfg.Throttle > 0 {
		throttle = time.Duration(cfg.Throttle) * time.Second
	}
	if notify == nil {
		notify = func(context.Context, *User, string) error { return nil }
	}

	return &Broker{
		name:     name,
		table:    table,
		expire:   time.Duration(expire) * time.Minute,
		throttle: throttle,
		provider: provider,
		db:       db,
		store:    store,
		notify:   notify,
		now:      time.Now,
	}
}

// Name returns the broker name.
func (b *Broker) Name() string { return b.name }

// Table returns the reset token table.
func (b *Broker) Table() string { return b.table }

// Migrate creates the token table.
func (b *Broker) Migrate(ctx context.Context) error {
	if err := b.conn(ctx).AutoMigrate(&PasswordReset{}); err != nil {
		return fmt.Errorf("auth: migrate %s: %w", b.table, err)
	}
	return nil
}

// SendResetLink creates a token for the user with email and hands it to the
// notifier.
func (b *Broker) SendResetLink(ctx context.Context, email string) error {
	user, err := b.provider.RetrieveByEmail(ctx, email)
	if err != nil {
		return err
	}

	if b.store.Exist(ctx, b.throttleKey(user.Email)) {
		return ErrThrottled
	}

	token, err := b.CreateToken(ctx, user)
	if err != nil {
		return err
	}

	if err := b.store.WriteWithTTL(ctx, b.throttleKey(user.Email), []byte("1"), b.throttle); err != nil {
		return fmt.Errorf("auth: throttle reset: %w", err)
	}

	return b.notify(ctx, user, token)
}

// CreateToken replaces any existing token for user and returns the new
// plain token.
func (b *Broker) CreateToken(ctx context.Context, user *User) (string, error) {
	token := uuid.NewString()
	hash, err := crypto.HashPassword(token)
	if err != nil {
		return "", err
	}

	err = b.db.GetConnection().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Table(b.table).Where("email = ?", user.Email).Delete(&PasswordReset{}).Error; err != nil {
			return err
		}
		return tx.Table(b.table).Create(&PasswordReset{Email: user.Email, Token: hash, CreatedAt: b.now()}).Error
	})
	if err != nil {
		return "", fmt.Errorf("auth: store reset token: %w", err)
	}
	return token, nil
}

// TokenExists reports whether token is current for user.
func (b *Broker) TokenExists(ctx context.Context, user *User, token string) bool {
	var record PasswordReset
	if err := b.conn(ctx).Where("email = ?", user.Email).First(&record).Error; err != nil {
		return false
	}
	if b.expired(record.CreatedAt) {
		return false
	}
	return crypto.VerifyPassword(record.Token, token)
}

// Reset sets a new password for the user with email when token is valid,
// then deletes the token.
func (b *Broker) Reset(ctx context.Context, email, token, password string) (*User, error) {
	user, err := b.provider.RetrieveByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	if !b.TokenExists(ctx, user, token) {
		return nil, ErrInvalidToken
	}

	if err := b.provider.UpdatePassword(ctx, user, password); err != nil {
		return nil, err
	}

	if err := b.DeleteToken(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// DeleteToken removes the user's tokens.
func (b *Broker) DeleteToken(ctx context.Context, user *User) error {
	if err := b.conn(ctx).Where("email = ?", user.Email).Delete(&PasswordReset{}).Error; err != nil {
		return fmt.Errorf("auth: delete reset token: %w", err)
	}
	return nil
}

// DeleteExpired prunes tokens older than the expiry window.
func (b *Broker) DeleteExpired(ctx context.Context) (int64, error) {
	cutoff := b.now().Add(-b.expire)
	result := b.conn(ctx).Where("created_at < ?", cutoff).Delete(&PasswordReset{})
	if result.Error != nil {
		return 0, fmt.Errorf("auth: prune reset tokens: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (b *Broker) expired(createdAt time.Time) bool {
	return !createdAt.Add(b.expire).After(b.now())
}

func (b *Broker) throttleKey(email string) string {
	return "password_reset:" + b.name + ":" + strings.ToLower(email)
}

func (b *Broker) conn(ctx context.Context) *gorm.DB {
	return b.db.GetConnection().WithContext(ctx).Table(b.table)
}
