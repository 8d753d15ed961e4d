package auth

import "errors"

var (
	// ErrInvalidCredentials is returned when email or password do not match.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrUnauthenticated is returned when a request carries no valid identity.
	ErrUnauthenticated = errors.New("auth: unauthenticated")
	// ErrInvalidToken is returned for unknown or expired reset tokens.
	ErrInvalidToken = errors.New("auth: invalid token")
	// ErrThrottled is returned when reset links are requested too often.
	ErrThrottled = errors.New("auth: too many reset requests")
	// ErrUserNotFound is returned when no user matches.
	ErrUserNotFound = errors.New("auth: user not found")
	// ErrUnknownGuard is returned for a guard missing from the config.
	ErrUnknownGuard = errors.New("auth: unknown guard")
	// ErrUnknownProvider is returned for a provider missing from the config.
	ErrUnknownProvider = errors.New("auth: unknown provider")
	// ErrUnknownBroker is returned for a broker missing from the config.
	ErrUnknownBroker = errors.New("auth: unknown password broker")
	// ErrUnsupportedDriver is returned for driver names with no implementation.
	ErrUnsupportedDriver = errors.New("auth: unsupported driver")
)
