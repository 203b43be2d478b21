// Package auth verifies bearer tokens and turns them into a caller identity.
package auth

import (
	"errors"
	"time"

	"stockwatch/internal/model"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when the token is malformed, badly signed
	// or not an access token.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is returned when the token has expired.
	ErrExpiredToken = errors.New("token has expired")
)

// tokenUseAccess is the token_use claim value of access tokens.
const tokenUseAccess = "access"

// Claims are the access token claims, laid out like a user pool access token.
type Claims struct {
	Email    string   `json:"email,omitempty"`
	Groups   []string `json:"cognito:groups,omitempty"`
	TokenUse string   `json:"token_use"`
	jwt.RegisteredClaims
}

// Verifier validates access tokens.
type Verifier interface {
	Verify(token string) (*model.Caller, error)
}

// JWTManager signs and verifies HS256 access tokens.
type JWTManager struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewJWTManager creates a manager. An empty issuer disables issuer checks.
func NewJWTManager(secret, issuer string) *JWTManager {
	return &JWTManager{
		secret: []byte(secret),
		issuer: issuer,
		now:    time.Now,
	}
}

// Issue signs an access token for subject valid for ttl.
func (m *JWTManager) Issue(subject, email string, groups []string, ttl time.Duration) (string, error) {
	now := m.now()
	claims := Claims{
		Email:    email,
		Groups:   groups,
		TokenUse: tokenUseAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// Verify validates token and returns the caller it identifies.
func (m *JWTManager) Verify(tokenString string) (*model.Caller, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		return m.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.TokenUse != tokenUseAccess || claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	return &model.Caller{
		Subject: claims.Subject,
		Email:   claims.Email,
		Groups:  claims.Groups,
	}, nil
}
