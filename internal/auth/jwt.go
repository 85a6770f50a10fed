package auth

import (
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	"lead-recovery/internal/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidCredentials = errors.New("auth: invalid credentials")

type credential struct {
	role   string
	secret string
}

type Manager struct {
	secret      []byte
	issuer      string
	ttl         time.Duration
	credentials []credential
}

func NewManager(cfg config.AuthConfig) (*Manager, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	if cfg.OperatorPassword == "" {
		return nil, errors.New("AUTH_OPERATOR_PASSWORD is required")
	}
	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = 365 * 24 * time.Hour
	}

	m := &Manager{
		secret:      []byte(cfg.JWTSecret),
		issuer:      cfg.JWTIssuer,
		ttl:         ttl,
		credentials: []credential{{role: RoleOperator, secret: cfg.OperatorPassword}},
	}
	if cfg.ViewerPassword != "" {
		m.credentials = append(m.credentials, credential{role: RoleViewer, secret: cfg.ViewerPassword})
	}
	return m, nil
}

// TTL is the lifetime of issued sessions.
func (m *Manager) TTL() time.Duration { return m.ttl }

// Session is the result of a successful login.
type Session struct {
	Token     string    `json:"token"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

/* ===================== LOGIN ===================== */

// Login checks password against every configured credential and issues a
// session for the first match.
func (m *Manager) Login(password string, now time.Time) (Session, error) {
	if password == "" {
		return Session{}, ErrInvalidCredentials
	}
	for _, c := range m.credentials {
		if !passwordMatches(c.secret, password) {
			continue
		}
		token, exp, err := m.Issue(now, c.role, c.role)
		if err != nil {
			return Session{}, err
		}
		return Session{Token: token, Role: c.role, ExpiresAt: exp}, nil
	}
	return Session{}, ErrInvalidCredentials
}

// passwordMatches accepts either a bcrypt hash or a plain value in configuration.
func passwordMatches(stored, given string) bool {
	if strings.HasPrefix(stored, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(given)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(given)) == 1
}

/* ===================== ISSUE TOKEN ===================== */

func (m *Manager) Issue(now time.Time, subject, role string) (string, time.Time, error) {
	exp := now.Add(m.ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
		Role: role,
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := t.SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return s, exp, nil
}

/* ===================== VERIFY TOKEN ===================== */

func (m *Manager) Verify(tokenString string, now time.Time) (Claims, error) {
	var claims Claims

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithLeeway(30 * time.Second), // clock skew tolerance
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}
	parser := jwt.NewParser(opts...)

	if _, err := parser.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		return m.secret, nil
	}); err != nil {
		return Claims{}, err
	}

	if claims.Subject == "" {
		return Claims{}, errors.New("subject missing")
	}
	if claims.Role != RoleOperator && claims.Role != RoleViewer {
		return Claims{}, errors.New("unknown role in token")
	}
	return claims, nil
}
