// Package admin checks the single operator credential that guards site
// registration.
package admin

import (
	"crypto/subtle"
	"errors"
	"strings"

	"github.com/smallbiznis/tally/internal/config"
)

var (
	ErrMissingCredentials = errors.New("missing_credentials")
	ErrInvalidCredentials = errors.New("invalid_credentials")
)

type Authenticator struct {
	user         string
	password     string
	passwordHash string
}

func NewAuthenticator(cfg config.Config) *Authenticator {
	return &Authenticator{
		user:         cfg.Admin.User,
		password:     cfg.Admin.Password,
		passwordHash: cfg.Admin.PasswordHash,
	}
}

// Configured reports whether any credential is set. Without one every
// registration attempt is rejected.
func (a *Authenticator) Configured() bool {
	return a != nil && a.user != "" && (a.password != "" || a.passwordHash != "")
}

// Check validates user and password. A configured hash takes precedence over
// the plain password.
func (a *Authenticator) Check(user, password string) error {
	user = strings.TrimSpace(user)
	if user == "" || password == "" {
		return ErrMissingCredentials
	}
	if !a.Configured() {
		return ErrInvalidCredentials
	}

	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(a.user)) == 1
	var passOK bool
	if a.passwordHash != "" {
		passOK = VerifyPassword(password, a.passwordHash)
	} else {
		passOK = subtle.ConstantTimeCompare([]byte(password), []byte(a.password)) == 1
	}
	if !userOK || !passOK {
		return ErrInvalidCredentials
	}
	return nil
}
