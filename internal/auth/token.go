package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	issuer        = "passbot"
	scannerScope  = "scanner"
	tokenQueryKey = "token"
)

var (
	ErrMissingToken = errors.New("authorization token is missing")
	ErrInvalidToken = errors.New("invalid scanner token")
)

// ScannerClaims is what a door scanner token carries. Subject is the
// Telegram id of the admin it was issued to.
type ScannerClaims struct {
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

// Tokens issues and verifies HS256 scanner tokens.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokens(secret string, ttl time.Duration) *Tokens {
	return &Tokens{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Enabled is false without a secret; the scanner API then refuses everything.
func (t *Tokens) Enabled() bool {
	return len(t.secret) > 0
}

func (t *Tokens) Issue(adminID int64) (string, time.Time, error) {
	if !t.Enabled() {
		return "", time.Time{}, errors.New("scanner tokens are disabled")
	}
	now := t.now()
	expires := now.Add(t.ttl)
	claims := ScannerClaims{
		Scope: scannerScope,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   strconv.FormatInt(adminID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign scanner token: %w", err)
	}
	return signed, expires, nil
}

// Verify checks signature, expiry and scope and returns the admin id.
func (t *Tokens) Verify(raw string) (int64, error) {
	if !t.Enabled() {
		return 0, ErrInvalidToken
	}
	claims := &ScannerClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Scope != scannerScope {
		return 0, fmt.Errorf("%w: scope %q", ErrInvalidToken, claims.Scope)
	}
	adminID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: subject %q", ErrInvalidToken, claims.Subject)
	}
	return adminID, nil
}

// ExtractTokenFromRequest reads "Authorization: Bearer <token>". Browsers'
// EventSource cannot set headers, so a ?token= query parameter is accepted too.
func ExtractTokenFromRequest(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		if q := r.URL.Query().Get(tokenQueryKey); q != "" {
			return q, nil
		}
		return "", ErrMissingToken
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("authorization header format must be 'Bearer {token}'")
	}
	return parts[1], nil
}
