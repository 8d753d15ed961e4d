package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/karloscodes/backpack/crypto"
	"gorm.io/gorm"
)

// UserModel is the identifier of the built-in User model in provider config.
const UserModel = "auth.User"

// User is an admin panel account.
type User struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Name          string    `gorm:"not null" json:"name"`
	Email         string    `gorm:"uniqueIndex;not null" json:"email"`
	Password      string    `gorm:"not null" json:"-"`
	RememberToken string    `json:"-"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TableName pins the table name.
func (User) TableName() string { return "users" }

// Connector provides database connections.
type Connector interface {
	GetConnection() *gorm.DB
}

// UserProvider retrieves users and checks their credentials.
type UserProvider interface {
	RetrieveByID(ctx context.Context, id uint) (*User, error)
	RetrieveByEmail(ctx context.Context, email string) (*User, error)
	ValidateCredentials(user *User, password string) bool
	UpdatePassword(ctx context.Context, user *User, password string) error
}

// GormProvider is the "gorm" provider driver.
type GormProvider struct {
	db Connector
}

// NewGormProvider creates a provider backed by db.
func NewGormProvider(db Connector) *GormProvider {
	return &GormProvider{db: db}
}

// RetrieveByID returns the user with the given primary key.
func (p *GormProvider) RetrieveByID(ctx context.Context, id uint) (*User, error) {
	var user User
	if err := p.conn(ctx).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("auth: retrieve user %d: %w", id, err)
	}
	return &user, nil
}

// RetrieveByEmail returns the user with the given email, case-insensitively.
func (p *GormProvider) RetrieveByEmail(ctx context.Context, email string) (*User, error) {
	var user User
	err := p.conn(ctx).Where("LOWER(email) = ?", strings.ToLower(strings.TrimSpace(email))).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("auth: retrieve user by email: %w", err)
	}
	return &user, nil
}

// ValidateCredentials reports whether password matches the user's hash.
func (p *GormProvider) ValidateCredentials(user *User, password string) bool {
	return user != nil && crypto.VerifyPassword(user.Password, password)
}

// UpdatePassword hashes and stores a new password for user.
func (p *GormProvider) UpdatePassword(ctx context.Context, user *User, password string) error {
	hash, err := crypto.HashPassword(password)
	if err != nil {
		return err
	}
	if err := p.conn(ctx).Model(user).Update("password", hash).Error; err != nil {
		return fmt.Errorf("auth: update password: %w", err)
	}
	user.Password = hash
	return nil
}

// CreateUser hashes password and inserts a new user.
func (p *GormProvider) CreateUser(ctx context.Context, name, email, password string) (*User, error) {
	hash, err := crypto.HashPassword(password)
	if err != nil {
		return nil, err
	}
	user := &User{Name: name, Email: strings.ToLower(strings.TrimSpace(email)), Password: hash}
	if err := p.conn(ctx).Create(user).Error; err != nil {
		return nil, fmt.Errorf("auth: create user: %w", err)
	}
	return user, nil
}

func (p *GormProvider) conn(ctx context.Context) *gorm.DB {
	return p.db.GetConnection().WithContext(ctx)
}
