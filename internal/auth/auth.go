package auth

import (
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const Issuer = "DietPi Dashboard"

var (
	ErrAuthDisabled       = errors.New("authentication disabled")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
)

type Options struct {
	Enabled      bool
	PasswordHash string
	Secret       string
	Expiry       time.Duration
}

// Authenticator checks the dashboard password and issues HS256 tokens.
type Authenticator struct {
	enabled bool
	hash    []byte
	secret  []byte
	expiry  time.Duration
	now     func() time.Time
}

func New(opts Options) *Authenticator {
	return &Authenticator{
		enabled: opts.Enabled,
		hash:    []byte(strings.ToLower(opts.PasswordHash)),
		secret:  []byte(opts.Secret),
		expiry:  opts.Expiry,
		now:     time.Now,
	}
}

func (a *Authenticator) Enabled() bool { return a.enabled }

// HashPassword returns the hex SHA-512 digest stored in the config.
func HashPassword(password string) string {
	sum := sha512.Sum512([]byte(password))
	return hex.EncodeToString(sum[:])
}

// Login exchanges the password for a signed token.
func (a *Authenticator) Login(password string) (string, time.Time, error) {
	if !a.enabled {
		return "", time.Time{}, ErrAuthDisabled
	}
	if subtle.ConstantTimeCompare([]byte(HashPassword(password)), a.hash) != 1 {
		return "", time.Time{}, ErrInvalidCredentials
	}
	now := a.now()
	exp := now.Add(a.expiry)
	claims := jwt.RegisteredClaims{
		Issuer:    Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return token, exp, nil
}

// Verify checks signature, issuer and expiry and returns the expiry time.
func (a *Authenticator) Verify(token string) (time.Time, error) {
	if !a.enabled {
		return time.Time{}, ErrAuthDisabled
	}
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return a.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims.ExpiresAt.Time, nil
}
