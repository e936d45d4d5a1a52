package core

import (
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// HashPassword returns the bcrypt hash stored in `auth.adminPasswordHash`.
func HashPassword(pwd string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return "", errors.Wrap(err, "hashing password")
	}
	return string(hash), nil
}

// CheckAdminCredentials validates a login against the configured administrator account.
func CheckAdminCredentials(conf AuthConfig, username, pwd string) error {
	if conf.AdminPasswordHash == "" || CleanString(username, true /* lower */) != conf.AdminUsername {
		return ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(conf.AdminPasswordHash), []byte(pwd)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}
